package risk

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/internal/logger"
)

// ErrRiskBreach marks an entry blocked by a breaker.
var ErrRiskBreach = errors.New("risk breach")

// thresholdEpsilon lets a loss of exactly the limit trip it despite float
// noise in equity arithmetic.
const thresholdEpsilon = 1e-9

// Permit is the answer to "may I open a position, and how big".
type Permit struct {
	Allowed        bool
	SizeMultiplier float64
	Reason         string
}

// Err returns nil for an allowed permit, else an error wrapping ErrRiskBreach.
func (p Permit) Err() error {
	if p.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRiskBreach, p.Reason)
}

// Gate is the breaker state machine as seen by the runner. Boundaries and
// equity updates are driven by simulated time. A concurrent caller wraps a
// Gate in Guarded.
type Gate interface {
	Start(t time.Time, equity float64)
	OnDayBoundary(t time.Time, equity float64)
	OnWeekBoundary(t time.Time, equity float64)
	Update(t time.Time, equity float64)
	SetRegime(multiplier float64)
	Permit(symbol string) Permit
	State() State
}

// Breaker is the single-threaded Gate used by replay.
type Breaker struct {
	limits Limits
	state  State
	log    *zap.Logger
}

var _ Gate = (*Breaker)(nil)

func NewBreaker(limits Limits, log *zap.Logger) *Breaker {
	if limits.HalfSizeFactor <= 0 {
		limits.HalfSizeFactor = 0.5
	}
	return &Breaker{
		limits: limits,
		state:  State{RegimeMultiplier: 1},
		log:    logger.OrNop(log),
	}
}

func (b *Breaker) Limits() Limits { return b.limits }

// Start seeds day, week and peak equity before the first bar.
func (b *Breaker) Start(t time.Time, equity float64) {
	b.state = State{
		DayStartEquity:   equity,
		WeekStartEquity:  equity,
		PeakEquity:       equity,
		Equity:           equity,
		RegimeMultiplier: 1,
	}
	b.log.Info("risk gate started", zap.Time("at", t), zap.Float64("equity", equity))
}

// OnDayBoundary resets the daily halt unconditionally and ticks the
// half-size countdown.
func (b *Breaker) OnDayBoundary(t time.Time, equity float64) {
	s := &b.state
	if s.DailyHalted {
		b.log.Info("daily halt cleared", zap.Time("at", t))
	}
	s.DailyHalted = false
	s.DayStartEquity = equity
	s.DailyLoss = 0

	if s.HalfSize {
		if s.HalfSizeDaysLeft <= 0 {
			s.HalfSize = false
			b.log.Info("half size expired", zap.Time("at", t))
		} else {
			s.HalfSizeDaysLeft--
		}
	}
	b.observe(equity)
}

func (b *Breaker) OnWeekBoundary(t time.Time, equity float64) {
	b.state.WeekStartEquity = equity
	b.state.WeeklyLoss = 0
	b.observe(equity)
	b.log.Debug("new week", zap.Time("at", t), zap.Float64("equity", equity))
}

// Update re-evaluates every breaker against equity.
func (b *Breaker) Update(t time.Time, equity float64) {
	s := &b.state
	b.observe(equity)

	if s.DayStartEquity > 0 {
		s.DailyLoss = (s.DayStartEquity - equity) / s.DayStartEquity
		if !s.DailyHalted && tripped(s.DailyLoss, b.limits.DailyLossPct) {
			s.DailyHalted = true
			b.log.Warn("daily loss breaker",
				zap.Time("at", t),
				zap.Float64("loss_pct", 100*s.DailyLoss),
			)
		}
	}

	if s.WeekStartEquity > 0 {
		s.WeeklyLoss = (s.WeekStartEquity - equity) / s.WeekStartEquity
		if !s.HalfSize && tripped(s.WeeklyLoss, b.limits.WeeklyLossPct) {
			s.HalfSize = true
			s.HalfSizeDaysLeft = b.limits.HalfSizeDays
			b.log.Warn("weekly loss breaker, halving size",
				zap.Time("at", t),
				zap.Float64("loss_pct", 100*s.WeeklyLoss),
				zap.Int("days", b.limits.HalfSizeDays),
			)
		}
	}

	if s.PeakEquity > 0 {
		s.Drawdown = (s.PeakEquity - equity) / s.PeakEquity
		if !s.KillSwitch && tripped(s.Drawdown, b.limits.MaxDrawdownPct) {
			s.KillSwitch = true
			b.log.Error("kill switch",
				zap.Time("at", t),
				zap.Float64("drawdown_pct", 100*s.Drawdown),
			)
		}
	}
}

func (b *Breaker) observe(equity float64) {
	b.state.Equity = equity
	if equity > b.state.PeakEquity {
		b.state.PeakEquity = equity
	}
}

func tripped(loss, limit float64) bool {
	return limit > 0 && loss >= limit-thresholdEpsilon
}

func (b *Breaker) SetRegime(multiplier float64) {
	m := ClampRegime(multiplier)
	if m != b.state.RegimeMultiplier {
		b.log.Info("regime multiplier", zap.Float64("from", b.state.RegimeMultiplier), zap.Float64("to", m))
	}
	b.state.RegimeMultiplier = m
}

// Permit blocks entries under the kill switch or a daily halt; otherwise the
// size multiplier is the regime multiplier, halved while half size is on.
func (b *Breaker) Permit(symbol string) Permit {
	s := b.state
	switch {
	case s.KillSwitch:
		return Permit{Reason: "kill_switch"}
	case s.DailyHalted:
		return Permit{Reason: "daily_halt"}
	}

	mult := s.RegimeMultiplier
	if mult == 0 {
		mult = 1
	}
	reason := "approved"
	if s.HalfSize {
		mult *= b.limits.HalfSizeFactor
		reason = "approved_half_size"
	}
	return Permit{Allowed: true, SizeMultiplier: mult, Reason: reason}
}

func (b *Breaker) State() State { return b.state }
