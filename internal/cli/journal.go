package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/journal"
)

func newJournalCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the backtest journal",
		Long: `Query trades and run summaries recorded by "trader backtest --db".

Examples:
  trader journal runs --db trader.sqlite
  trader journal trades --db trader.sqlite --run bt-20240101-20240131
  trader journal trade --db trader.sqlite <trade-id>
  trader journal day --db trader.sqlite 2024-01-15`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./trader.sqlite", "path to SQLite journal DB")

	var runID string
	tradesCmd := &cobra.Command{
		Use:   "trades",
		Short: "List recorded trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(dbPath, func(j *journal.SQLite) error {
				recs, err := j.ListTrades(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("query trades: %w", err)
				}
				printTrades(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	tradesCmd.Flags().StringVar(&runID, "run", "", "only trades from this run id")

	tradeCmd := &cobra.Command{
		Use:   "trade <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(dbPath, func(j *journal.SQLite) error {
				rec, err := j.GetTrade(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get trade: %w", err)
				}
				printTrades(cmd.OutOrStdout(), []journal.TradeRecord{rec})
				return nil
			})
		},
	}

	dayCmd := &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "List trades closed on a simulated day (UTC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dayBounds(time.UTC, args[0])
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}
			return withJournal(dbPath, func(j *journal.SQLite) error {
				recs, err := j.ListTradesClosedBetween(cmd.Context(), start, end)
				if err != nil {
					return fmt.Errorf("query trades: %w", err)
				}
				printTrades(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded backtest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(dbPath, func(j *journal.SQLite) error {
				runs, err := j.ListRuns(cmd.Context())
				if err != nil {
					return fmt.Errorf("query runs: %w", err)
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}

	cmd.AddCommand(tradesCmd, tradeCmd, dayCmd, runsCmd)
	return cmd
}

func withJournal(path string, fn func(*journal.SQLite) error) error {
	j, err := journal.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	return fn(j)
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

func printTrades(w io.Writer, recs []journal.TradeRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	fmt.Fprintf(w, "%-26s %-22s %-8s %-5s %12s %12s %12s %12s  %s\n",
		"TRADE", "STRATEGY", "SYMBOL", "SIDE", "QTY", "ENTRY", "EXIT", "P/L", "CLOSED")
	var total float64
	for _, r := range recs {
		fmt.Fprintf(w, "%-26s %-22s %-8s %-5s %12.5f %12.4f %12.4f %12.2f  %s\n",
			r.TradeID, r.Strategy, r.Symbol, r.Side, r.Qty, r.EntryPrice, r.ExitPrice,
			r.RealizedPL, r.CloseTime.UTC().Format(time.RFC3339))
		total += r.RealizedPL
	}
	fmt.Fprintf(w, "%d trades, net P/L %.2f\n", len(recs), total)
}

func printRuns(w io.Writer, runs []journal.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs")
		return
	}
	fmt.Fprintf(w, "%-48s %-34s %-10s %-10s %9s %8s %8s %6s\n",
		"RUN", "STRATEGY", "START", "END", "RETURN", "SHARPE", "MAXDD", "TRADES")
	for _, r := range runs {
		fmt.Fprintf(w, "%-48s %-34s %-10s %-10s %8.2f%% %8.3f %7.2f%% %6d\n",
			r.RunID, r.Strategy, r.Start.UTC().Format(time.DateOnly), r.End.UTC().Format(time.DateOnly),
			100*r.TotalReturn, r.Sharpe, 100*r.MaxDrawdown, r.Trades)
	}
}
