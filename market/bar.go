package market

import (
	"fmt"
	"time"
)

// Bar is one OHLCV sample. Time is the instant the bar becomes known to the
// replay, so a bar stamped T may be used by any decision made at T or later.
type Bar struct {
	Symbol string
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate reports obviously broken bars (non-positive prices, inverted range).
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("bar %s: zero timestamp", b.Symbol)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s @ %s: non-positive price", b.Symbol, b.Time.Format(time.RFC3339))
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s @ %s: high %.6f < low %.6f", b.Symbol, b.Time.Format(time.RFC3339), b.High, b.Low)
	}
	return nil
}

// Timeframe is a bar interval.
type Timeframe time.Duration

const (
	M1  = Timeframe(time.Minute)
	M5  = Timeframe(5 * time.Minute)
	M15 = Timeframe(15 * time.Minute)
	H1  = Timeframe(time.Hour)
	H4  = Timeframe(4 * time.Hour)
	D1  = Timeframe(24 * time.Hour)
)

func (tf Timeframe) Duration() time.Duration { return time.Duration(tf) }

// String returns the canonical name, e.g. "15Min" or "1Day".
func (tf Timeframe) String() string {
	switch tf {
	case M1:
		return "1Min"
	case M5:
		return "5Min"
	case M15:
		return "15Min"
	case H1:
		return "1Hour"
	case H4:
		return "4Hour"
	case D1:
		return "1Day"
	}
	return time.Duration(tf).String()
}

var timeframeNames = map[string]Timeframe{
	"1Min": M1, "1min": M1, "M1": M1,
	"5Min": M5, "5min": M5, "M5": M5,
	"15Min": M15, "15min": M15, "M15": M15,
	"1Hour": H1, "1h": H1, "1H": H1, "H1": H1,
	"4Hour": H4, "4h": H4, "4H": H4, "H4": H4,
	"1Day": D1, "1d": D1, "1D": D1, "D1": D1,
}

// ParseTimeframe accepts the canonical names plus the common short aliases.
func ParseTimeframe(s string) (Timeframe, error) {
	if tf, ok := timeframeNames[s]; ok {
		return tf, nil
	}
	return 0, fmt.Errorf("unsupported timeframe %q", s)
}
