package indicators

import (
	"fmt"

	"github.com/rustyeddy/papertrader/market"
)

// RSI is the relative strength index with Wilder smoothing. It needs
// period+1 closes: the first close only primes the previous value.
type RSI struct {
	period  int
	prev    float64
	count   int
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI {
	if period <= 0 {
		period = 14
	}
	return &RSI{period: period}
}

func (r *RSI) Name() string { return fmt.Sprintf("rsi_%d", r.period) }
func (r *RSI) Warmup() int  { return r.period + 1 }

func (r *RSI) Reset() {
	r.prev, r.count, r.avgGain, r.avgLoss = 0, 0, 0, 0
}

func (r *RSI) Update(b market.Bar) {
	r.count++
	if r.count == 1 {
		r.prev = b.Close
		return
	}

	change := b.Close - r.prev
	r.prev = b.Close
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(r.period)
	if r.count <= r.period+1 {
		// seed with a plain average of the first period changes
		r.avgGain += gain / n
		r.avgLoss += loss / n
		return
	}
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

func (r *RSI) Ready() bool { return r.count >= r.period+1 }

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
