package risk

import (
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/internal/logger"
	"github.com/rustyeddy/papertrader/market"
)

// RegimeSignal supplies a size multiplier in [0.25, 1] for an instant.
type RegimeSignal interface {
	MultiplierAt(t time.Time) float64
}

// Static is a constant regime multiplier.
type Static float64

func (s Static) MultiplierAt(time.Time) float64 { return ClampRegime(float64(s)) }

// BarLookup is the point-in-time bar query a volatility proxy needs.
type BarLookup interface {
	BarsAtOrBefore(symbol string, tf market.Timeframe, t time.Time, limit int) ([]market.Bar, error)
}

// VolatilityProxy goes risk-off when the proxy's latest daily close is up
// more than Threshold on the previous close. Missing data reads as normal.
type VolatilityProxy struct {
	Bars      BarLookup
	Symbol    string
	Timeframe market.Timeframe
	Threshold float64
	RiskOff   float64
	Log       *zap.Logger

	riskOff bool
}

func NewVolatilityProxy(bars BarLookup, symbol string, threshold, riskOff float64, log *zap.Logger) *VolatilityProxy {
	return &VolatilityProxy{
		Bars:      bars,
		Symbol:    symbol,
		Timeframe: market.D1,
		Threshold: threshold,
		RiskOff:   riskOff,
		Log:       logger.OrNop(log),
	}
}

func (v *VolatilityProxy) MultiplierAt(t time.Time) float64 {
	bars, err := v.Bars.BarsAtOrBefore(v.Symbol, v.Timeframe, t, 2)
	if err != nil || len(bars) < 2 || bars[0].Close <= 0 {
		return MaxRegimeMultiplier
	}

	change := (bars[1].Close - bars[0].Close) / bars[0].Close
	off := change > v.Threshold
	if off != v.riskOff && v.Log != nil {
		v.Log.Info("regime change",
			zap.String("proxy", v.Symbol),
			zap.Bool("risk_off", off),
			zap.Float64("change_pct", 100*change),
			zap.Time("at", t),
		)
	}
	v.riskOff = off

	if off {
		return ClampRegime(v.RiskOff)
	}
	return MaxRegimeMultiplier
}
