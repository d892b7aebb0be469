package report

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/sim"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curve(step time.Duration, equity ...float64) []sim.EquityPoint {
	out := make([]sim.EquityPoint, len(equity))
	for i, e := range equity {
		out[i] = sim.EquityPoint{Time: t0.Add(time.Duration(i) * step), Equity: e, Cash: e}
	}
	return out
}

func trade(strategy string, pnl, fee float64) sim.Trade {
	return sim.Trade{
		ID: "t", Strategy: strategy, Symbol: "SPY", Long: true, Qty: 10,
		EntryPrice: 100, ExitPrice: 100 + pnl/10,
		EntryTime: t0, ExitTime: t0.Add(time.Hour),
		Commission: fee, PnL: pnl, Reason: "Signal",
	}
}

func TestMaxDrawdown(t *testing.T) {
	t.Parallel()

	c := curve(time.Hour, 100, 120, 90, 110, 60, 130)
	assert.InDelta(t, 0.5, MaxDrawdown(c), 1e-12)
	assert.Zero(t, MaxDrawdown(curve(time.Hour, 100, 101, 102)))
	assert.Zero(t, MaxDrawdown(nil))
}

func TestComputeReturns(t *testing.T) {
	t.Parallel()

	m := Compute(100, curve(24*time.Hour, 100, 110, 99, 121), nil)
	assert.InDelta(t, 0.21, m.TotalReturn, 1e-12)
	assert.InDelta(t, 3, m.Days, 1e-12)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-12)
	assert.Greater(t, m.AnnualizedReturn, m.TotalReturn)
	assert.Greater(t, m.Volatility, 0.0)

	want := (m.AnnualizedReturn - RiskFreeRate) / m.Volatility
	assert.InDelta(t, want, m.Sharpe, 1e-12)
	assert.InDelta(t, m.AnnualizedReturn/m.MaxDrawdown, m.Calmar, 1e-12)
}

func TestComputeVolatilityUsesSampleInterval(t *testing.T) {
	t.Parallel()

	eq := []float64{100, 101, 100, 101, 100}
	daily := Compute(100, curve(24*time.Hour, eq...), nil)
	hourly := Compute(100, curve(time.Hour, eq...), nil)
	// same per-sample returns, 24x the samples per year
	assert.InDelta(t, daily.Volatility*math.Sqrt(24), hourly.Volatility, 1e-9)
}

func TestComputeFlatCurve(t *testing.T) {
	t.Parallel()

	m := Compute(100, curve(time.Hour, 100, 100, 100), nil)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.Volatility)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.Calmar)

	empty := Compute(100, nil, nil)
	assert.Equal(t, 100.0, empty.FinalEquity)
	assert.Zero(t, empty.Trades)
}

func TestTradeStats(t *testing.T) {
	t.Parallel()

	trades := []sim.Trade{trade("a", 30, 1), trade("a", -10, 1), trade("b", 20, 0), trade("b", 0, 0)}
	m := Compute(1000, nil, trades)

	assert.Equal(t, 4, m.Trades)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 1, m.Losses)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)
	assert.InDelta(t, 5, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 10, m.AvgTrade, 1e-12)
	assert.InDelta(t, 25, m.AvgWin, 1e-12)
	assert.InDelta(t, -10, m.AvgLoss, 1e-12)
	assert.InDelta(t, 30, m.LargestWin, 1e-12)
	assert.InDelta(t, -10, m.LargestLoss, 1e-12)
	assert.InDelta(t, 2, m.Fees, 1e-12)
	assert.InDelta(t, 40, m.NetPnL, 1e-12)

	// no losers: profit factor is reported as zero
	assert.Zero(t, Compute(1000, nil, []sim.Trade{trade("a", 5, 0)}).ProfitFactor)

	by := ByStrategy(trades)
	require.Len(t, by, 2)
	assert.Equal(t, "a", by[0].Strategy)
	assert.Equal(t, 2, by[0].Trades)
	assert.InDelta(t, 3, by[0].ProfitFactor, 1e-12)
	assert.Equal(t, "b", by[1].Strategy)
	assert.Zero(t, by[1].Losses)
}

func testResult() backtest.Result {
	return backtest.Result{
		RunID:          "run-1",
		Strategies:     []string{"a", "b"},
		Start:          t0,
		End:            t0.Add(48 * time.Hour),
		Steps:          3,
		InitialCapital: 1000,
		Final:          sim.Account{Equity: 1040, Fees: 2},
		Trades:         []sim.Trade{trade("a", 30, 1), trade("a", -10, 1), trade("b", 20, 0)},
		EquityCurve:    curve(24*time.Hour, 1000, 1030, 1040),
		Blocked:        map[string]int{"daily_halt": 2},
		Skipped:        map[string]int{"ETH/USD: data unavailable": 3},
	}
}

func TestLabelIsDeterministic(t *testing.T) {
	t.Parallel()

	res := testResult()
	assert.Equal(t, "combined_20240101_20240103", Label(res))
	res.Strategies = []string{"crypto_mean_reversion"}
	assert.Equal(t, "crypto_mean_reversion_20240101_20240103", Label(res))
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(testResult()).WriteSummary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Run ID:        run-1")
	assert.Contains(t, out, "Return:        4.00%")
	assert.Contains(t, out, "Trades:        3")
	assert.Contains(t, out, "Strategy: a")
	assert.Contains(t, out, "Strategy: b")
	assert.Contains(t, out, "- blocked daily_halt: 2")
	assert.Contains(t, out, "- skipped ETH/USD: data unavailable: 3")
	assert.NotContains(t, out, "cancelled")
}

func TestWriteTradesCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tr := trade("a", 12.5, 0.25)
	tr.Qty = 0.10638
	require.NoError(t, WriteTradesCSV(&buf, []sim.Trade{tr}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, []string{
		"t", "a", "SPY", "long", "0.10638",
		"2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z", "100", "101.25",
		"0.25", "12.5", "Signal",
	}, rows[1])
}

func TestWriteFiles(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "results")
	files, err := New(testResult()).WriteFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "combined_20240101_20240103_summary.txt"), files.Summary)

	eq, err := os.ReadFile(files.Equity)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,equity,cash\n"+
		"2024-01-01T00:00:00Z,1000,1000\n"+
		"2024-01-02T00:00:00Z,1030,1030\n"+
		"2024-01-03T00:00:00Z,1040,1040\n", string(eq))

	tr, err := os.ReadFile(files.Trades)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(tr)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	sum, err := os.ReadFile(files.Summary)
	require.NoError(t, err)
	assert.Contains(t, string(sum), "Backtest Result")
}

func TestRunRecord(t *testing.T) {
	t.Parallel()

	rec := New(testResult()).RunRecord()
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "a,b", rec.Strategy)
	assert.Equal(t, 3, rec.Trades)
	assert.InDelta(t, 1040, rec.FinalEquity, 1e-9)
	assert.InDelta(t, 0.04, rec.TotalReturn, 1e-12)
	assert.InDelta(t, 2, rec.Fees, 1e-12)
	assert.False(t, rec.Cancelled)
}
