// Package risk holds the portfolio circuit breakers that gate new entries
// and scale position size, plus per-order exposure checks.
package risk

// Limits are the breaker thresholds and exposure caps, as fractions.
type Limits struct {
	DailyLossPct   float64 // 0.02: halt entries for the rest of the day
	WeeklyLossPct  float64 // 0.05: half size for HalfSizeDays
	MaxDrawdownPct float64 // 0.10: kill switch
	HalfSizeDays   int     // 3
	HalfSizeFactor float64 // 0.5

	// Exposure caps checked per order. Zero disables a check.
	MaxPositionPct float64 // 0.15 of equity per position
	MaxCryptoPct   float64 // 0.30 of equity across crypto
	CashReservePct float64 // 0.10 of equity kept in cash after a buy
}

func DefaultLimits() Limits {
	return Limits{
		DailyLossPct:   0.02,
		WeeklyLossPct:  0.05,
		MaxDrawdownPct: 0.10,
		HalfSizeDays:   3,
		HalfSizeFactor: 0.5,
		MaxPositionPct: 0.15,
		MaxCryptoPct:   0.30,
		CashReservePct: 0.10,
	}
}

const (
	MinRegimeMultiplier = 0.25
	MaxRegimeMultiplier = 1.0
)

// ClampRegime bounds a regime multiplier to [0.25, 1].
func ClampRegime(m float64) float64 {
	if m != m || m > MaxRegimeMultiplier {
		return MaxRegimeMultiplier
	}
	if m < MinRegimeMultiplier {
		return MinRegimeMultiplier
	}
	return m
}
