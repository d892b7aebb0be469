package indicators

import (
	"fmt"

	"github.com/rustyeddy/papertrader/market"
)

// ZScore is (close - mean) / sample std over the trailing window.
type ZScore struct {
	period int
	buf    []float64
	idx    int
	count  int
	last   float64
}

func NewZScore(period int) *ZScore {
	if period <= 1 {
		period = 20
	}
	return &ZScore{period: period, buf: make([]float64, period)}
}

func (z *ZScore) Name() string {
	if z.period == 20 {
		return ZScore20
	}
	return fmt.Sprintf("zscore_%d", z.period)
}

func (z *ZScore) Warmup() int { return z.period }

func (z *ZScore) Reset() {
	for i := range z.buf {
		z.buf[i] = 0
	}
	z.idx, z.count, z.last = 0, 0, 0
}

func (z *ZScore) Update(b market.Bar) {
	z.buf[z.idx] = b.Close
	z.idx = (z.idx + 1) % z.period
	if z.count < z.period {
		z.count++
	}
	z.last = b.Close
}

func (z *ZScore) Ready() bool { return z.count >= z.period }

func (z *ZScore) Value() float64 {
	if !z.Ready() {
		return 0
	}
	mean, std := meanStd(z.buf, true)
	if std == 0 {
		return 0
	}
	return (z.last - mean) / std
}

// VWAP is the cumulative volume-weighted typical price of every bar seen.
type VWAP struct {
	pv  float64
	vol float64
	n   int
}

func NewVWAP() *VWAP { return &VWAP{} }

func (v *VWAP) Name() string { return VWAPName }
func (v *VWAP) Warmup() int  { return 1 }
func (v *VWAP) Reset()       { v.pv, v.vol, v.n = 0, 0, 0 }

func (v *VWAP) Update(b market.Bar) {
	typical := (b.High + b.Low + b.Close) / 3
	v.pv += typical * b.Volume
	v.vol += b.Volume
	v.n++
}

func (v *VWAP) Ready() bool { return v.n > 0 && v.vol > 0 }

func (v *VWAP) Value() float64 {
	if !v.Ready() {
		return 0
	}
	return v.pv / v.vol
}
