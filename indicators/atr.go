package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/papertrader/market"
)

// ATR is the average true range with Wilder smoothing. The first bar's
// true range is its high-low span.
type ATR struct {
	period    int
	prevClose float64
	count     int
	sum       float64
	value     float64
}

func NewATR(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("atr_%d", a.period) }
func (a *ATR) Warmup() int  { return a.period }

func (a *ATR) Reset() {
	a.prevClose, a.count, a.sum, a.value = 0, 0, 0, 0
}

func (a *ATR) Update(b market.Bar) {
	tr := b.High - b.Low
	if a.count > 0 {
		tr = math.Max(tr, math.Max(math.Abs(b.High-a.prevClose), math.Abs(b.Low-a.prevClose)))
	}
	a.prevClose = b.Close
	a.count++

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.value = a.sum / float64(a.period)
		}
		return
	}
	n := float64(a.period)
	a.value = (a.value*(n-1) + tr) / n
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.value
}
