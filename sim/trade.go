package sim

import "time"

// Trade is a closed round trip, produced once when a position returns to
// zero. PnL is GrossPnL minus every commission charged on the round trip.
type Trade struct {
	ID         string
	Strategy   string
	Symbol     string
	Long       bool
	Qty        float64 // total quantity opened
	EntryPrice float64 // average entry
	ExitPrice  float64 // average exit
	EntryTime  time.Time
	ExitTime   time.Time
	GrossPnL   float64
	Commission float64
	PnL        float64
	Reason     string
}

func (t Trade) Side() string {
	if t.Long {
		return "long"
	}
	return "short"
}

// ReturnPct is net P&L relative to the entry notional.
func (t Trade) ReturnPct() float64 {
	notional := t.Qty * t.EntryPrice
	if notional == 0 {
		return 0
	}
	return t.PnL / notional
}
