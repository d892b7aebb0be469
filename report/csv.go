package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrader/sim"
)

var tradeHeader = []string{
	"trade_id", "strategy", "symbol", "side", "qty",
	"entry_time", "exit_time", "entry_price", "exit_price",
	"commission", "realized_pnl", "reason",
}

// WriteTradesCSV writes one row per closed trade.
func WriteTradesCSV(w io.Writer, trades []sim.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.ID,
			t.Strategy,
			t.Symbol,
			t.Side(),
			num(t.Qty),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			num(t.EntryPrice),
			num(t.ExitPrice),
			num(t.Commission),
			num(t.PnL),
			t.Reason,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the equity curve as timestamp,equity,cash.
func WriteEquityCSV(w io.Writer, curve []sim.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "equity", "cash"}); err != nil {
		return err
	}
	for _, p := range curve {
		if err := cw.Write([]string{p.Time.UTC().Format(time.RFC3339), num(p.Equity), num(p.Cash)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// num prints the shortest exact decimal for v.
func num(v float64) string {
	return decimal.NewFromFloat(v).String()
}
