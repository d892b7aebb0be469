package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/replay"
)

func newDataCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage historical bar data",
	}

	var dbPath, symbol, timeframe, csvPath string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load a bar CSV into the SQLite bar store",
		Long: `Load a CSV of time,open,high,low,close,volume rows into the SQLite bar
store read by "trader backtest --bars-db". Existing rows with the same
timestamp are replaced.

Example:
  trader data import --db bars.sqlite --symbol BTC/USD --timeframe 15Min --csv BTCUSD_15Min.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			log, err := ro.logger(cfg)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			canon, err := market.DefaultSymbols().Resolve(symbol)
			if err != nil {
				return fmt.Errorf("%w: --symbol: %v", config.ErrInvalid, err)
			}
			tf, err := market.ParseTimeframe(timeframe)
			if err != nil {
				return fmt.Errorf("%w: --timeframe: %v", config.ErrInvalid, err)
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			bars, err := replay.ReadBarsCSV(cmd.Context(), f, canon)
			if err != nil {
				return fmt.Errorf("read csv: %w", err)
			}

			store, err := replay.OpenSQLiteSource(dbPath)
			if err != nil {
				return fmt.Errorf("open bar store: %w", err)
			}
			defer store.Close()

			n, err := store.Import(cmd.Context(), canon, tf, bars)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			log.Info("imported bars",
				zap.String("symbol", canon),
				zap.Stringer("timeframe", tf),
				zap.Int("rows", n),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s %s bars into %s\n", n, canon, tf, dbPath)
			return nil
		},
	}
	f := importCmd.Flags()
	f.StringVar(&dbPath, "db", "./bars.sqlite", "SQLite bar store")
	f.StringVar(&symbol, "symbol", "", "symbol, any registered alias (required)")
	f.StringVar(&timeframe, "timeframe", "", "bar timeframe, e.g. 5Min, 15Min, 1Day (required)")
	f.StringVar(&csvPath, "csv", "", "CSV file to import (required)")
	_ = importCmd.MarkFlagRequired("symbol")
	_ = importCmd.MarkFlagRequired("timeframe")
	_ = importCmd.MarkFlagRequired("csv")

	cmd.AddCommand(importCmd)
	return cmd
}
