package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/replay"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

type memSource map[string][]market.Bar

func (m memSource) GetBars(_ context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	bars, ok := m[symbol+"|"+tf.String()]
	if !ok {
		return nil, replay.ErrDataUnavailable
	}
	var out []market.Bar
	for _, b := range bars {
		if !b.Time.Before(start) && !b.Time.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// scripted enters whenever flat above floor and exits at or below it.
type scripted struct {
	symbol string
	floor  float64
	size   float64
	calls  int
	onCall func(n int)
}

func (s *scripted) Name() string                { return "scripted" }
func (s *scripted) Timeframe() market.Timeframe { return market.M5 }
func (s *scripted) Symbols() []string           { return []string{s.symbol} }

func (s *scripted) Evaluate(_ time.Time, snap indicators.Snapshot, acct strategies.AccountState) strategies.Decision {
	s.calls++
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	if acct.InPosition {
		if snap.Close <= s.floor {
			return strategies.Decision{Signal: strategies.Exit, Reason: "floor"}
		}
		return strategies.Decision{Signal: strategies.Hold}
	}
	if snap.Close > s.floor {
		return strategies.Decision{Signal: strategies.EnterLong, SizeHint: s.size, Reason: "flat"}
	}
	return strategies.Decision{Signal: strategies.Hold}
}

func flatBars(symbol string, start time.Time, step time.Duration, closes ...float64) []market.Bar {
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * step),
			Open:   c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return out
}

func breakersOnly() risk.Limits {
	l := risk.DefaultLimits()
	l.MaxPositionPct = 0
	l.MaxCryptoPct = 0
	l.CashReservePct = 0
	return l
}

func testOptions(start, end time.Time) Options {
	o := DefaultOptions()
	o.Start = start
	o.End = end
	o.Warmup = 0
	o.Regime = RegimeOptions{}
	o.RunID = "test-run"
	o.Seed = 42
	return o
}

// btcDip builds 15-minute BTC bars: an alternating base, a sell-off until
// the crypto strategy enters, then one bar that wicks through the stop and
// closes higher. It returns the bars, the entry index and the entry stop.
func btcDip(t *testing.T, start time.Time) ([]market.Bar, int, float64) {
	t.Helper()
	strat := strategies.NewCryptoMeanReversion(strategies.DefaultCryptoParams())

	var bars []market.Bar
	prev := 100.0
	add := func(c float64) {
		bars = append(bars, market.Bar{
			Symbol: "BTC/USD",
			Time:   start.Add(time.Duration(len(bars)) * 15 * time.Minute),
			Open:   prev, High: max(prev, c) + 0.5, Low: min(prev, c) - 0.5, Close: c,
			Volume: 10,
		})
		prev = c
	}
	for i := 0; i < 30; i++ {
		add(100 + float64(i%2))
	}

	entry := -1
	var stop float64
	for k := 0; k < 12 && entry < 0; k++ {
		add(prev - 2)
		i := len(bars) - 1
		lo := max(0, i+1-replay.DefaultIndicatorWindow)
		snap := indicators.Compute("BTC/USD", bars[lo:i+1])
		d := strat.Evaluate(bars[i].Time, snap, strategies.AccountState{Equity: 100000, Cash: 100000})
		if d.Signal == strategies.EnterLong {
			entry, stop = i, d.StopPrice
		}
	}
	require.GreaterOrEqual(t, entry, 0, "sell-off never triggered an entry")

	c := bars[entry].Close
	bars = append(bars, market.Bar{
		Symbol: "BTC/USD",
		Time:   bars[entry].Time.Add(15 * time.Minute),
		Open:   c, High: c + 12, Low: c * 0.9, Close: c + 10,
		Volume: 50,
	})
	require.Less(t, bars[entry+1].Low, stop)
	return bars, entry, stop
}

func btcRunner(t *testing.T) (*Runner, []market.Bar, int, float64) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, entry, stop := btcDip(t, start)
	r := &Runner{
		Source:     memSource{"BTC/USD|15Min": bars},
		Strategies: []strategies.Strategy{strategies.NewCryptoMeanReversion(strategies.DefaultCryptoParams())},
		Options:    testOptions(start, bars[len(bars)-1].Time),
	}
	return r, bars, entry, stop
}

func TestRunnerValidation(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := memSource{}
	strat := []strategies.Strategy{&scripted{symbol: "SPY"}}

	tests := []struct {
		name string
		r    Runner
	}{
		{"missing source", Runner{Strategies: strat, Options: testOptions(start, start.Add(time.Hour))}},
		{"no strategies", Runner{Source: src, Options: testOptions(start, start.Add(time.Hour))}},
		{"end before start", Runner{Source: src, Strategies: strat, Options: testOptions(start, start.Add(-time.Hour))}},
		{"zero capital", Runner{Source: src, Strategies: strat, Options: func() Options {
			o := testOptions(start, start.Add(time.Hour))
			o.InitialCapital = 0
			return o
		}()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.r.Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}

func TestRunnerBTCStopLoss(t *testing.T) {
	t.Parallel()

	r, bars, entry, stop := btcRunner(t)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	px := bars[entry].Close
	wantQty := market.RoundQty(0.10*100000/px, 5)

	assert.Equal(t, "BTC/USD", tr.Symbol)
	assert.Equal(t, strategies.CryptoMeanReversionName, tr.Strategy)
	assert.Equal(t, "StopLoss", tr.Reason)
	assert.InDelta(t, wantQty, tr.Qty, 1e-9)
	assert.InDelta(t, px*1.001, tr.EntryPrice, 1e-9)
	assert.InDelta(t, stop*0.999, tr.ExitPrice, 1e-9)
	assert.True(t, tr.EntryTime.Equal(bars[entry].Time))
	assert.True(t, tr.ExitTime.Equal(bars[entry+1].Time))

	fees := wantQty*px*1.001*0.001 + wantQty*stop*0.999*0.001
	assert.InDelta(t, (stop*0.999-px*1.001)*wantQty-fees, tr.PnL, 1e-6)
	assert.InDelta(t, fees, res.Final.Fees, 1e-6)

	assert.Equal(t, 1, res.Entries)
	assert.Empty(t, res.OpenPositions)
	assert.Equal(t, len(bars), res.Steps)
	assert.Len(t, res.EquityCurve, len(bars))
	assert.InDelta(t, 100000+tr.PnL, res.Final.Equity, 1e-6)

	// the other crypto symbols have no data and are skipped each step
	assert.Equal(t, len(bars), res.Skipped["ETH/USD: data unavailable"])
	assert.Equal(t, len(bars), res.Skipped["SOL/USD: data unavailable"])
}

func TestRunnerDeterministic(t *testing.T) {
	t.Parallel()

	r1, _, _, _ := btcRunner(t)
	r2, _, _, _ := btcRunner(t)

	a, err := r1.Run(context.Background())
	require.NoError(t, err)
	b, err := r2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.Final, b.Final)
	assert.Equal(t, a.Skipped, b.Skipped)
}

func TestRunnerDailyHaltBlocksEntriesUntilNextDay(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	// 23:30 enter, 23:40 drop to 96 (exactly -2%), exit, then flat
	closes := []float64{100, 100, 96, 100, 100, 100, 100}
	bars := flatBars("SPY", start, 5*time.Minute, closes...)

	opts := testOptions(start, bars[len(bars)-1].Time)
	opts.Costs = sim.Costs{}
	opts.Limits = breakersOnly()

	r := &Runner{
		Source:     memSource{"SPY|5Min": bars},
		Strategies: []strategies.Strategy{&scripted{symbol: "SPY", floor: 96, size: 0.5}},
		Options:    opts,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.InDelta(t, -2000, res.Trades[0].PnL, 1e-9)
	assert.True(t, res.Trades[0].ExitTime.Equal(start.Add(10*time.Minute)))

	// 23:45, 23:50 and 23:55 are refused; midnight clears the halt
	assert.Equal(t, 3, res.Blocked["daily_halt"])
	assert.Equal(t, 2, res.Entries)

	require.Len(t, res.OpenPositions, 1)
	pos := res.OpenPositions[0]
	assert.True(t, pos.EntryTime.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 490, pos.Qty, 1e-9)
	assert.False(t, res.Risk.DailyHalted)
}

func TestRunnerCloseEnd(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := flatBars("SPY", start, 5*time.Minute, 100, 101, 102)
	opts := testOptions(start, bars[len(bars)-1].Time)
	opts.Costs = sim.Costs{}
	opts.Limits = breakersOnly()
	opts.CloseEnd = true

	r := &Runner{
		Source:     memSource{"SPY|5Min": bars},
		Strategies: []strategies.Strategy{&scripted{symbol: "SPY", floor: 50, size: 0.1}},
		Options:    opts,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, DefaultCloseReason, res.Trades[0].Reason)
	assert.InDelta(t, 100*2, res.Trades[0].PnL, 1e-9)
	assert.Empty(t, res.OpenPositions)

	// The close lands in the last step's sample rather than a second one.
	require.Len(t, res.EquityCurve, res.Steps)
	for i := 1; i < len(res.EquityCurve); i++ {
		assert.True(t, res.EquityCurve[i].Time.After(res.EquityCurve[i-1].Time))
	}
	last := res.EquityCurve[len(res.EquityCurve)-1]
	assert.True(t, last.Time.Equal(bars[len(bars)-1].Time))
	assert.InDelta(t, opts.InitialCapital+200, last.Equity, 1e-9)
	assert.InDelta(t, last.Equity, last.Cash, 1e-9)
}

func TestRunnerCancellationReturnsPartialResult(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := flatBars("SPY", start, 5*time.Minute, 100, 100, 100, 100, 100, 100, 100, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strat := &scripted{symbol: "SPY", floor: 50, size: 0.1}
	strat.onCall = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	opts := testOptions(start, bars[len(bars)-1].Time)
	opts.Limits = breakersOnly()
	r := &Runner{
		Source:     memSource{"SPY|5Min": bars},
		Strategies: []strategies.Strategy{strat},
		Options:    opts,
	}
	res, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 3, res.Steps)
	assert.Len(t, res.EquityCurve, 3)
	assert.True(t, res.End.Equal(start.Add(10*time.Minute)))
	assert.Len(t, res.OpenPositions, 1)
}

func TestRunnerRegimeScalesSize(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := flatBars("SPY", start, 5*time.Minute, 100, 100)
	opts := testOptions(start, bars[len(bars)-1].Time)
	opts.Costs = sim.Costs{}
	opts.Limits = breakersOnly()

	r := &Runner{
		Source:     memSource{"SPY|5Min": bars},
		Strategies: []strategies.Strategy{&scripted{symbol: "SPY", floor: 50, size: 0.1}},
		Regime:     risk.Static(0.25),
		Options:    opts,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.OpenPositions, 1)
	// 0.1 * 100000 * 0.25 / 100
	assert.InDelta(t, 25, res.OpenPositions[0].Qty, 1e-9)
	assert.InDelta(t, 0.25, res.Risk.RegimeMultiplier, 1e-12)
}

func TestRunnerSkipsUnknownSymbol(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	opts := testOptions(start, start.Add(10*time.Minute))
	r := &Runner{
		Source:     memSource{},
		Strategies: []strategies.Strategy{&scripted{symbol: "NOPE"}},
		Options:    opts,
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped["NOPE: unknown symbol"])
	assert.Empty(t, res.Trades)
	assert.Len(t, res.EquityCurve, 3)
}

func TestClockBoundaries(t *testing.T) {
	t.Parallel()

	// Sunday 23:00 to Monday 01:00 crosses both a day and an ISO week
	start := time.Date(2024, 3, 3, 23, 0, 0, 0, time.UTC)
	c, err := NewClock(start, start.Add(2*time.Hour), time.Hour, nil)
	require.NoError(t, err)

	var ticks []Tick
	for {
		tk, ok := c.Next()
		if !ok {
			break
		}
		ticks = append(ticks, tk)
	}
	require.Len(t, ticks, 3)
	assert.False(t, ticks[0].NewDay)
	assert.True(t, ticks[1].NewDay)
	assert.True(t, ticks[1].NewWeek)
	assert.False(t, ticks[2].NewDay)
	assert.False(t, ticks[1].Last)
	assert.True(t, ticks[2].Last)
	assert.True(t, c.Done())

	_, ok := c.Next()
	assert.False(t, ok)

	_, err = NewClock(start, start, 0, nil)
	assert.Error(t, err)

	single, err := NewClock(start, start.Add(30*time.Minute), time.Hour, nil)
	require.NoError(t, err)
	tk, ok := single.Next()
	require.True(t, ok)
	assert.True(t, tk.Last)
}

func TestDefaultRunID(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "bt-crypto_mean_reversion-20240101-20240131",
		DefaultRunID([]string{"crypto_mean_reversion"}, start, end))
	assert.Equal(t,
		DefaultRunID([]string{"b", "a"}, start, end),
		DefaultRunID([]string{"a", "b"}, start, end))
	assert.NotEqual(t,
		DefaultRunID([]string{"a"}, start, end),
		DefaultRunID([]string{"a", "b"}, start, end))
}
