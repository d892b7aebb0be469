package risk

import "fmt"

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins violation codes for reporting.
func (d Decision) Reason() string {
	if d.Allowed {
		return "approved"
	}
	out := ""
	for i, v := range d.Violations {
		if i > 0 {
			out += "; "
		}
		out += v.Code + ": " + v.Msg
	}
	return out
}

// OrderIntent is a sized entry about to be submitted.
type OrderIntent struct {
	Symbol   string
	Crypto   bool
	Buy      bool
	Notional float64
}

// Exposure is the portfolio an intent is checked against.
type Exposure struct {
	Equity         float64
	Cash           float64
	CryptoNotional float64 // marked value of open crypto positions
}

// Evaluate applies the per-order exposure caps in l.
func Evaluate(l Limits, intent OrderIntent, exp Exposure) Decision {
	d := Decision{Allowed: true}

	if intent.Notional <= 0 {
		d.add("INVALID_NOTIONAL", fmt.Sprintf("notional %.2f must be positive", intent.Notional))
		return d
	}
	if exp.Equity <= 0 {
		d.add("NO_EQUITY", fmt.Sprintf("equity %.2f", exp.Equity))
		return d
	}

	if l.MaxPositionPct > 0 && intent.Notional > l.MaxPositionPct*exp.Equity {
		d.add("POSITION_TOO_LARGE",
			fmt.Sprintf("%.2f > %.0f%% of equity %.2f", intent.Notional, 100*l.MaxPositionPct, exp.Equity))
	}

	if intent.Crypto && intent.Buy && l.MaxCryptoPct > 0 {
		if total := exp.CryptoNotional + intent.Notional; total > l.MaxCryptoPct*exp.Equity {
			d.add("CRYPTO_LIMIT",
				fmt.Sprintf("%.2f > %.0f%% of equity %.2f", total, 100*l.MaxCryptoPct, exp.Equity))
		}
	}

	if intent.Buy && l.CashReservePct > 0 {
		minCash := l.CashReservePct * exp.Equity
		if exp.Cash-intent.Notional < minCash {
			d.add("CASH_RESERVE",
				fmt.Sprintf("cash %.2f - %.2f < reserve %.2f", exp.Cash, intent.Notional, minCash))
		}
	}

	return d
}
