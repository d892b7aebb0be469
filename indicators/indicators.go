// Package indicators provides technical analysis indicators for trading.
//
// Every indicator is a streaming state machine fed one closed bar at a time.
// A Snapshot is built by replaying a point-in-time window through fresh
// indicators, so nothing computed here can observe a bar the caller did not
// hand it.
package indicators

import (
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// Indicator computes a single streaming value from bars.
type Indicator interface {
	// Name returns a stable identifier like "rsi_7" or "atr_14".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, 0 before warmup completes.
	Value() float64
}

// Snapshot is the indicator state of one symbol as of Time.
type Snapshot struct {
	Symbol string
	Time   time.Time // timestamp of the newest bar used
	Close  float64
	Bars   int // number of bars the values were computed from
	Values map[string]float64
}

// Get returns a named value and whether it was warmed up.
func (s Snapshot) Get(name string) (float64, bool) {
	v, ok := s.Values[name]
	return v, ok
}

// Names of the standard indicator set.
const (
	RSI7     = "rsi_7"
	RSI14    = "rsi_14"
	EMA8     = "ema_8"
	EMA21    = "ema_21"
	BBUpper  = "bb_upper"
	BBMiddle = "bb_middle"
	BBLower  = "bb_lower"
	ATR14    = "atr_14"
	ZScore20 = "zscore"
	VWAPName = "vwap"
)

// Standard returns fresh instances of the single-valued indicators in the
// standard set. Bollinger bands are tracked separately by Compute.
func Standard() []Indicator {
	return []Indicator{
		NewRSI(7),
		NewRSI(14),
		NewEMA(8),
		NewEMA(21),
		NewATR(14),
		NewZScore(20),
		NewVWAP(),
	}
}

// Compute runs bars through a fresh standard set. bars must already be
// filtered to the snapshot instant and sorted ascending. Indicators that have
// not warmed up are absent from Values.
func Compute(symbol string, bars []market.Bar) Snapshot {
	snap := Snapshot{Symbol: symbol, Bars: len(bars), Values: make(map[string]float64)}
	if len(bars) == 0 {
		return snap
	}

	set := Standard()
	bb := NewBollinger(20, 2)
	for _, b := range bars {
		for _, ind := range set {
			ind.Update(b)
		}
		bb.Update(b)
	}
	for _, ind := range set {
		if ind.Ready() {
			snap.Values[ind.Name()] = ind.Value()
		}
	}
	if bb.Ready() {
		snap.Values[BBUpper] = bb.Upper()
		snap.Values[BBMiddle] = bb.Middle()
		snap.Values[BBLower] = bb.Lower()
	}

	last := bars[len(bars)-1]
	snap.Time = last.Time
	snap.Close = last.Close
	return snap
}
