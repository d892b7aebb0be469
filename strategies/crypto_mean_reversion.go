package strategies

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

const CryptoMeanReversionName = "crypto_mean_reversion"

// CryptoAsset sizes one pair: notional = MaxPct x VolMult x equity.
type CryptoAsset struct {
	MaxPct  float64
	VolMult float64
}

type CryptoParams struct {
	Universe    map[string]CryptoAsset
	Timeframe   market.Timeframe
	EntryRSI    float64 // enter long below
	ExitRSI     float64 // exit at or above
	ATRStopMult float64
	MinBars     int
}

func DefaultCryptoParams() CryptoParams {
	return CryptoParams{
		Universe: map[string]CryptoAsset{
			"BTC/USD": {MaxPct: 0.10, VolMult: 1.0},
			"ETH/USD": {MaxPct: 0.10, VolMult: 1.0},
			"SOL/USD": {MaxPct: 0.05, VolMult: 0.5},
		},
		Timeframe:   market.M15,
		EntryRSI:    25,
		ExitRSI:     45,
		ATRStopMult: 1.5,
		MinBars:     20,
	}
}

// CryptoMeanReversion buys oversold RSI(7) readings on 15 minute bars around
// the clock and exits once RSI recovers.
type CryptoMeanReversion struct {
	p CryptoParams
}

func NewCryptoMeanReversion(p CryptoParams) *CryptoMeanReversion {
	return &CryptoMeanReversion{p: p}
}

func (s *CryptoMeanReversion) Name() string                { return CryptoMeanReversionName }
func (s *CryptoMeanReversion) Timeframe() market.Timeframe { return s.p.Timeframe }

func (s *CryptoMeanReversion) Symbols() []string {
	out := make([]string, 0, len(s.p.Universe))
	for sym := range s.p.Universe {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *CryptoMeanReversion) Evaluate(now time.Time, snap indicators.Snapshot, acct AccountState) Decision {
	if snap.Bars < s.p.MinBars {
		return hold(fmt.Sprintf("warmup %d/%d bars", snap.Bars, s.p.MinBars))
	}
	rsi, okRSI := snap.Get(indicators.RSI7)
	atr, okATR := snap.Get(indicators.ATR14)
	if !okRSI || !okATR {
		return hold("indicators not ready")
	}

	if acct.InPosition {
		if rsi >= s.p.ExitRSI {
			return Decision{Signal: Exit, Reason: fmt.Sprintf("rsi_7=%.1f>=%.0f", rsi, s.p.ExitRSI)}
		}
		return hold("in position")
	}

	if rsi < s.p.EntryRSI {
		asset, ok := s.p.Universe[snap.Symbol]
		if !ok {
			return hold("not in universe")
		}
		return Decision{
			Signal:    EnterLong,
			SizeHint:  asset.MaxPct * asset.VolMult,
			StopPrice: snap.Close - s.p.ATRStopMult*atr,
			Reason:    fmt.Sprintf("rsi_7=%.1f<%.0f", rsi, s.p.EntryRSI),
		}
	}
	return hold("no signal")
}
