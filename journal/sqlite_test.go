package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleTrade(id string, closeAt time.Time) TradeRecord {
	return TradeRecord{
		TradeID:    id,
		RunID:      "RUN1",
		Strategy:   "crypto_mean_reversion",
		Symbol:     "BTC/USD",
		Side:       "long",
		Qty:        0.12345,
		EntryPrice: 42000.5,
		ExitPrice:  42100.25,
		OpenTime:   closeAt.Add(-time.Hour),
		CloseTime:  closeAt,
		Commission: 10.37,
		RealizedPL: 1.94,
		Reason:     "Signal",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity','runs')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
	assert.True(t, found["runs"])
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	closeAt := time.Date(2024, 4, 10, 15, 30, 0, 0, time.UTC)
	want := sampleTrade("T123", closeAt)
	require.NoError(t, j.RecordTrade(want))

	got, err := j.GetTrade(ctx, "T123")
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.InDelta(t, want.Qty, got.Qty, 1e-9)
	assert.InDelta(t, want.Commission, got.Commission, 1e-9)
	assert.InDelta(t, want.RealizedPL, got.RealizedPL, 1e-9)
	assert.True(t, got.OpenTime.Equal(want.OpenTime))
	assert.True(t, got.CloseTime.Equal(want.CloseTime))

	_, err = j.GetTrade(ctx, "missing")
	assert.Error(t, err)

	// duplicate trade ids are rejected by the primary key
	assert.Error(t, j.RecordTrade(want))
}

func TestSQLiteListTrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("B", base.Add(2*time.Hour))))
	require.NoError(t, j.RecordTrade(sampleTrade("A", base.Add(time.Hour))))
	other := sampleTrade("C", base.Add(3*time.Hour))
	other.RunID = "RUN2"
	require.NoError(t, j.RecordTrade(other))

	run1, err := j.ListTrades(ctx, "RUN1")
	require.NoError(t, err)
	require.Len(t, run1, 2)
	assert.Equal(t, "A", run1[0].TradeID)
	assert.Equal(t, "B", run1[1].TradeID)

	all, err := j.ListTrades(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	between, err := j.ListTradesClosedBetween(ctx, base.Add(90*time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, between, 1)
	assert.Equal(t, "B", between[0].TradeID)
}

func TestSQLiteEquityAndRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			RunID:         "RUN1",
			Time:          ts.Add(time.Duration(2-i) * time.Minute),
			Cash:          1000,
			Equity:        1000 + float64(i),
			OpenPositions: i,
		}))
	}
	eq, err := j.ListEquity(ctx, "RUN1")
	require.NoError(t, err)
	require.Len(t, eq, 3)
	assert.True(t, eq[0].Time.Equal(ts))
	assert.Equal(t, 2, eq[0].OpenPositions)

	run := RunRecord{
		RunID:          "RUN1",
		Strategy:       "all",
		Start:          ts,
		End:            ts.Add(24 * time.Hour),
		InitialCapital: 100000,
		FinalEquity:    101000,
		TotalReturn:    0.01,
		Trades:         4,
		Cancelled:      true,
	}
	require.NoError(t, j.RecordRun(ctx, run))
	run.FinalEquity = 102000
	require.NoError(t, j.RecordRun(ctx, run))

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 102000.0, runs[0].FinalEquity)
	assert.True(t, runs[0].Cancelled)
	assert.Equal(t, 4, runs[0].Trades)
}

func TestSQLiteResetRunKeepsOtherRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	for _, runID := range []string{"RUN1", "RUN2"} {
		tr := sampleTrade(runID+"-T", ts)
		tr.RunID = runID
		require.NoError(t, j.RecordTrade(tr))
		require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: runID, Time: ts, Cash: 1, Equity: 1}))
		require.NoError(t, j.RecordRun(ctx, RunRecord{RunID: runID, Strategy: "all", Start: ts, End: ts}))
	}

	var r Resetter = j
	require.NoError(t, r.ResetRun(ctx, "RUN1"))

	trades, err := j.ListTrades(ctx, "")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "RUN2", trades[0].RunID)

	eq, err := j.ListEquity(ctx, "RUN1")
	require.NoError(t, err)
	assert.Empty(t, eq)
	eq, err = j.ListEquity(ctx, "RUN2")
	require.NoError(t, err)
	assert.Len(t, eq, 1)

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "RUN2", runs[0].RunID)

	// The same trade id can be recorded again once its run is reset.
	require.NoError(t, j.ResetRun(ctx, "RUN2"))
	tr := sampleTrade("RUN2-T", ts)
	tr.RunID = "RUN2"
	assert.NoError(t, j.RecordTrade(tr))
}

func TestNopJournal(t *testing.T) {
	t.Parallel()

	var j Journal = Nop{}
	assert.NoError(t, j.RecordTrade(TradeRecord{}))
	assert.NoError(t, j.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, j.Close())
}
