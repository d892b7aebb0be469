package indicators

import (
	"fmt"

	"github.com/rustyeddy/papertrader/market"
)

// SMA is a simple moving average of closes over a fixed window.
type SMA struct {
	period int
	buf    []float64
	idx    int
	count  int
	sum    float64
}

func NewSMA(period int) *SMA {
	if period <= 0 {
		period = 1
	}
	return &SMA{period: period, buf: make([]float64, period)}
}

func (m *SMA) Name() string { return fmt.Sprintf("sma_%d", m.period) }
func (m *SMA) Warmup() int  { return m.period }

func (m *SMA) Reset() {
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.idx, m.count, m.sum = 0, 0, 0
}

func (m *SMA) Update(b market.Bar) { m.add(b.Close) }

func (m *SMA) add(v float64) {
	if m.count < m.period {
		m.count++
	} else {
		m.sum -= m.buf[m.idx]
	}
	m.buf[m.idx] = v
	m.sum += v
	m.idx = (m.idx + 1) % m.period
}

func (m *SMA) Ready() bool { return m.count >= m.period }

func (m *SMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.sum / float64(m.period)
}

// EMA is an exponential moving average seeded with the SMA of its first
// period closes.
type EMA struct {
	period int
	alpha  float64
	seed   float64
	count  int
	value  float64
}

func NewEMA(period int) *EMA {
	if period <= 0 {
		period = 1
	}
	return &EMA{period: period, alpha: 2.0 / float64(period+1)}
}

func (e *EMA) Name() string { return fmt.Sprintf("ema_%d", e.period) }
func (e *EMA) Warmup() int  { return e.period }

func (e *EMA) Reset() {
	e.seed, e.count, e.value = 0, 0, 0
}

func (e *EMA) Update(b market.Bar) {
	e.count++
	if e.count <= e.period {
		e.seed += b.Close
		if e.count == e.period {
			e.value = e.seed / float64(e.period)
		}
		return
	}
	e.value = e.alpha*b.Close + (1-e.alpha)*e.value
}

func (e *EMA) Ready() bool { return e.count >= e.period }

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.value
}
