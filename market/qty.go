package market

import "github.com/shopspring/decimal"

// RoundQty floors qty to the given number of decimal places. Flooring keeps a
// sized order from ever exceeding the notional it was sized against.
func RoundQty(qty float64, places int32) float64 {
	if qty <= 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(qty).RoundFloor(places).Float64()
	return f
}
