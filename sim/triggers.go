package sim

import "github.com/rustyeddy/papertrader/market"

// stopHit reports whether a protective stop triggers inside the bar. A long
// is stopped when the low reaches the stop, a short when the high does.
func stopHit(long bool, stop float64, b market.Bar) bool {
	if long {
		return b.Low <= stop
	}
	return b.High >= stop
}

// limitHit reports whether a resting limit order trades inside the bar.
func limitHit(side Side, limit float64, b market.Bar) bool {
	if side == Buy {
		return b.Low <= limit
	}
	return b.High >= limit
}
