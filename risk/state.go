package risk

type Mode int

const (
	Normal Mode = iota
	WeeklyHalfSize
	DailyHalted
	KillSwitch
)

func (m Mode) String() string {
	switch m {
	case WeeklyHalfSize:
		return "weekly_half_size"
	case DailyHalted:
		return "daily_halted"
	case KillSwitch:
		return "kill_switch"
	}
	return "normal"
}

// State is a copy of the breaker state. Loss and drawdown fields are
// positive fractions.
type State struct {
	DayStartEquity  float64
	WeekStartEquity float64
	PeakEquity      float64
	Equity          float64

	DailyLoss  float64
	WeeklyLoss float64
	Drawdown   float64

	DailyHalted bool
	HalfSize    bool
	// HalfSizeDaysLeft counts the full days of half size still to come
	// after the current one.
	HalfSizeDaysLeft int
	KillSwitch       bool

	RegimeMultiplier float64
}

// Mode is the most severe active breaker.
func (s State) Mode() Mode {
	switch {
	case s.KillSwitch:
		return KillSwitch
	case s.DailyHalted:
		return DailyHalted
	case s.HalfSize:
		return WeeklyHalfSize
	}
	return Normal
}
