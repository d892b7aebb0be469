package indicators

import (
	"math"

	"github.com/rustyeddy/papertrader/market"
)

// Bollinger tracks the middle band (SMA) and upper/lower bands at k
// population standard deviations.
type Bollinger struct {
	period int
	k      float64
	buf    []float64
	idx    int
	count  int
}

func NewBollinger(period int, k float64) *Bollinger {
	if period <= 1 {
		period = 20
	}
	return &Bollinger{period: period, k: k, buf: make([]float64, period)}
}

func (bb *Bollinger) Reset() {
	for i := range bb.buf {
		bb.buf[i] = 0
	}
	bb.idx, bb.count = 0, 0
}

func (bb *Bollinger) Update(b market.Bar) {
	bb.buf[bb.idx] = b.Close
	bb.idx = (bb.idx + 1) % bb.period
	if bb.count < bb.period {
		bb.count++
	}
}

func (bb *Bollinger) Ready() bool { return bb.count >= bb.period }

func (bb *Bollinger) stats() (mean, std float64) {
	if !bb.Ready() {
		return 0, 0
	}
	return meanStd(bb.buf, false)
}

func (bb *Bollinger) Middle() float64 {
	m, _ := bb.stats()
	return m
}

func (bb *Bollinger) Upper() float64 {
	m, s := bb.stats()
	return m + bb.k*s
}

func (bb *Bollinger) Lower() float64 {
	m, s := bb.stats()
	return m - bb.k*s
}

// meanStd returns the mean and standard deviation of xs. sample selects the
// n-1 denominator.
func meanStd(xs []float64, sample bool) (float64, float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	den := n
	if sample {
		den = n - 1
	}
	if den <= 0 {
		return mean, 0
	}
	return mean, math.Sqrt(ss / den)
}
