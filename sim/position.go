package sim

import "time"

// Position is an open holding in one canonical symbol. Qty is signed: long
// positive, short negative. AvgPrice is executed price only; commission is
// tracked separately and never enters the cost basis.
type Position struct {
	Symbol    string
	Qty       float64
	AvgPrice  float64
	EntryTime time.Time
	Strategy  string

	// StopOrderID is the pending protective stop, if any.
	StopOrderID string

	// round-trip accumulators, folded into a Trade when Qty returns to zero
	openedQty  float64
	exitQty    float64
	exitValue  float64
	grossPL    float64
	commission float64
}

func (p *Position) Long() bool { return p.Qty > 0 }

// CostBasis is |Qty| x AvgPrice.
func (p *Position) CostBasis() float64 { return abs(p.Qty) * p.AvgPrice }

// Unrealized is the mark-to-market P&L at price, before commission.
func (p *Position) Unrealized(price float64) float64 {
	return p.Qty * (price - p.AvgPrice)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
