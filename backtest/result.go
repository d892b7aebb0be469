package backtest

import (
	"time"

	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
)

// Result is everything a run produced, complete up to the last fully
// processed step even when the run was cancelled.
type Result struct {
	RunID      string
	Strategies []string

	Start time.Time
	End   time.Time // last processed step
	Steps int

	InitialCapital float64
	Final          sim.Account
	Trades         []sim.Trade
	EquityCurve    []sim.EquityPoint
	Rejections     []sim.Rejection
	OpenPositions  []sim.Position
	Risk           risk.State

	// Entries counts entry orders that filled.
	Entries int
	// Blocked counts entries suppressed by the risk gate, by reason.
	Blocked map[string]int
	// Skipped counts per-symbol steps that could not be evaluated, keyed
	// by "symbol: reason".
	Skipped map[string]int

	Cancelled bool
}

func (r *Result) skip(symbol, reason string) {
	if r.Skipped == nil {
		r.Skipped = make(map[string]int)
	}
	r.Skipped[symbol+": "+reason]++
}

func (r *Result) block(reason string) {
	if r.Blocked == nil {
		r.Blocked = make(map[string]int)
	}
	r.Blocked[reason]++
}
