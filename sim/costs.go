package sim

import "github.com/rustyeddy/papertrader/market"

const (
	DefaultSlippage         = 0.001
	DefaultCryptoCommission = 0.001
	DefaultEquityCommission = 0.0
	DefaultMaxPositions     = 15
)

// Costs holds the fill cost model. Slippage is a fraction of price applied
// against the trader on every market and stop fill regardless of asset
// class; commission is a fraction of notional by asset class.
type Costs struct {
	Slippage         float64
	CryptoCommission float64
	EquityCommission float64
}

func DefaultCosts() Costs {
	return Costs{
		Slippage:         DefaultSlippage,
		CryptoCommission: DefaultCryptoCommission,
		EquityCommission: DefaultEquityCommission,
	}
}

// CommissionRate returns the rate for an asset class.
func (c Costs) CommissionRate(class market.AssetClass) float64 {
	if class == market.Crypto {
		return c.CryptoCommission
	}
	return c.EquityCommission
}

// Slipped moves price against the side: buys pay more, sells receive less.
func (c Costs) Slipped(price float64, side Side) float64 {
	if side == Buy {
		return price * (1 + c.Slippage)
	}
	return price * (1 - c.Slippage)
}
