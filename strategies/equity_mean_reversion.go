package strategies

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

const EquityMeanReversionName = "equity_mean_reversion"

type EquityParams struct {
	Universe    []string
	Timeframe   market.Timeframe
	EntryRSI    float64 // enter below, with close at or under the lower band
	ExitRSI     float64 // exit at or above, or at the middle band
	MaxPct      float64
	ATRStopMult float64
	MinBars     int
	Location    *time.Location // exchange time zone
}

func DefaultEquityParams() EquityParams {
	return EquityParams{
		Universe:    []string{"SPY", "QQQ", "AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AMD"},
		Timeframe:   market.M5,
		EntryRSI:    20,
		ExitRSI:     50,
		MaxPct:      0.05,
		ATRStopMult: 1.5,
		MinBars:     25,
		Location:    NewYork(),
	}
}

// NewYork returns America/New_York, or UTC-5 if the zone database is
// unavailable.
func NewYork() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// MarketOpen reports whether t falls in regular US equity hours,
// 09:30-16:00 exchange time on weekdays. Holidays are not modelled.
func MarketOpen(t time.Time, loc *time.Location) bool {
	et := t.In(loc)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	mins := et.Hour()*60 + et.Minute()
	if mins < 9*60+30 {
		return false
	}
	if mins > 16*60 || (mins == 16*60 && (et.Second() > 0 || et.Nanosecond() > 0)) {
		return false
	}
	return true
}

// EquityMeanReversion buys large caps that close at or under the lower
// Bollinger band with a deeply oversold RSI(7), during market hours only.
type EquityMeanReversion struct {
	p EquityParams
}

func NewEquityMeanReversion(p EquityParams) *EquityMeanReversion {
	if p.Location == nil {
		p.Location = NewYork()
	}
	return &EquityMeanReversion{p: p}
}

func (s *EquityMeanReversion) Name() string                { return EquityMeanReversionName }
func (s *EquityMeanReversion) Timeframe() market.Timeframe { return s.p.Timeframe }
func (s *EquityMeanReversion) Symbols() []string           { return append([]string(nil), s.p.Universe...) }

func (s *EquityMeanReversion) Evaluate(now time.Time, snap indicators.Snapshot, acct AccountState) Decision {
	if !MarketOpen(now, s.p.Location) {
		return hold("market closed")
	}
	if snap.Bars < s.p.MinBars {
		return hold(fmt.Sprintf("warmup %d/%d bars", snap.Bars, s.p.MinBars))
	}

	rsi, ok1 := snap.Get(indicators.RSI7)
	lower, ok2 := snap.Get(indicators.BBLower)
	middle, ok3 := snap.Get(indicators.BBMiddle)
	atr, ok4 := snap.Get(indicators.ATR14)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return hold("indicators not ready")
	}
	price := snap.Close

	if acct.InPosition {
		switch {
		case price >= middle:
			return Decision{Signal: Exit, Reason: fmt.Sprintf("bb_mid=%.2f", middle)}
		case rsi >= s.p.ExitRSI:
			return Decision{Signal: Exit, Reason: fmt.Sprintf("rsi_7=%.1f", rsi)}
		}
		return hold("in position")
	}

	if price <= lower && rsi < s.p.EntryRSI {
		return Decision{
			Signal:    EnterLong,
			SizeHint:  s.p.MaxPct,
			StopPrice: math.Round((price-s.p.ATRStopMult*atr)*100) / 100,
			Reason:    fmt.Sprintf("close=%.2f<=bb_lower=%.2f rsi_7=%.1f", price, lower, rsi),
		}
	}
	return hold("no signal")
}
