// Package journal persists closed trades, equity samples and run summaries.
package journal

import (
	"context"
	"time"
)

// TradeRecord is one closed round trip.
type TradeRecord struct {
	TradeID    string
	RunID      string
	Strategy   string
	Symbol     string
	Side       string // "long" or "short"
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Commission float64
	RealizedPL float64 // net of commission
	Reason     string
}

// EquitySnapshot is one sample of the equity curve.
type EquitySnapshot struct {
	RunID         string
	Time          time.Time
	Cash          float64
	Equity        float64
	RealizedPL    float64
	UnrealizedPL  float64
	OpenPositions int
}

// RunRecord summarizes a finished backtest run.
type RunRecord struct {
	RunID          string
	Strategy       string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	FinalEquity    float64
	TotalReturn    float64
	Sharpe         float64
	MaxDrawdown    float64
	Trades         int
	WinRate        float64
	ProfitFactor   float64
	Fees           float64
	Cancelled      bool
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Resetter is implemented by journals that can drop what an earlier run with
// the same id recorded, so a repeated run replaces it instead of mixing in.
type Resetter interface {
	ResetRun(ctx context.Context, runID string) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }
