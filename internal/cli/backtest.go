package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/replay"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/strategies"
)

type backtestOptions struct {
	Strategy       string
	Start          string
	End            string
	InitialCapital float64
	Commission     float64
	Slippage       float64
	OutputDir      string
	DataDir        string
	BarsDB         string
	JournalDB      string
	CloseEnd       bool
	Seed           int64
	RunID          string
}

func newBacktestCmd(ro *rootOptions) *cobra.Command {
	o := &backtestOptions{}

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through a strategy",
		Long: `Replay historical bars through one strategy, or all of them, with the
risk gate and ledger in the loop, then write a summary, a trades CSV and an
equity CSV to the output directory.

Examples:
  trader backtest --strategy crypto_mean_reversion --start 2024-01-01 --end 2024-03-31
  trader backtest --strategy all --start 2024-01-01 --end 2024-01-31 --bars-db bars.sqlite`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, ro, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.Strategy, "strategy", "", "Strategy name or \"all\" (required)")
	f.StringVar(&o.Start, "start", "", "First day, YYYY-MM-DD (required)")
	f.StringVar(&o.End, "end", "", "Last day inclusive, YYYY-MM-DD (required)")
	f.Float64Var(&o.InitialCapital, "initial-capital", 100000, "Starting cash")
	f.Float64Var(&o.Commission, "commission", 0, "Override the crypto commission rate")
	f.Float64Var(&o.Slippage, "slippage", 0.001, "Slippage fraction applied to fills")
	f.StringVar(&o.OutputDir, "output-dir", "./results", "Destination for report files")
	f.StringVar(&o.DataDir, "data-dir", "", "Directory of <SYMBOL>_<tf>.csv bar files")
	f.StringVar(&o.BarsDB, "bars-db", "", "SQLite bar store (instead of --data-dir)")
	f.StringVar(&o.JournalDB, "db", "", "SQLite journal for trades, equity and run summaries")
	f.BoolVar(&o.CloseEnd, "close-end", false, "Close open positions at the end of the replay")
	f.Int64Var(&o.Seed, "seed", 0, "Id generator seed")
	f.StringVar(&o.RunID, "run-id", "", "Journal run id (default bt-<strategies>-<start>-<end>; an existing run with this id is replaced)")
	_ = cmd.MarkFlagRequired("strategy")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

// applyFlags lets explicitly set flags override the config file.
func (o *backtestOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("initial-capital") {
		cfg.Account.InitialCapital = o.InitialCapital
	}
	if f.Changed("commission") {
		cfg.Costs.CryptoCommission = o.Commission
	}
	if f.Changed("slippage") {
		cfg.Costs.Slippage = o.Slippage
	}
	if f.Changed("output-dir") {
		cfg.Output.Dir = o.OutputDir
	}
	if f.Changed("data-dir") {
		cfg.Replay.Source = "csv"
		cfg.Replay.DataDir = o.DataDir
	}
	if f.Changed("bars-db") {
		cfg.Replay.Source = "sqlite"
		cfg.Replay.DBPath = o.BarsDB
	}
	if f.Changed("db") {
		cfg.Output.JournalDB = o.JournalDB
	}
	if f.Changed("close-end") {
		cfg.Output.CloseEnd = o.CloseEnd
	}
	if f.Changed("seed") {
		cfg.Replay.Seed = o.Seed
	}
}

// dateRange parses inclusive YYYY-MM-DD bounds in UTC.
func dateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --start: %v", config.ErrInvalid, err)
	}
	e, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --end: %v", config.ErrInvalid, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: --end %s before --start %s", config.ErrInvalid, end, start)
	}
	return s, e.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func runBacktest(cmd *cobra.Command, ro *rootOptions, o *backtestOptions) error {
	cfg, err := ro.loadConfig()
	if err != nil {
		return err
	}
	o.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	start, end, err := dateRange(o.Start, o.End)
	if err != nil {
		return err
	}
	strats, err := strategies.ByName(o.Strategy)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	opts, err := cfg.BacktestOptions(start, end)
	if err != nil {
		return err
	}
	opts.RunID = o.RunID

	log, err := ro.logger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	var source replay.BarSource
	switch cfg.Replay.Source {
	case "sqlite":
		s, err := replay.OpenSQLiteSource(cfg.Replay.DBPath)
		if err != nil {
			return fmt.Errorf("open bar store: %w", err)
		}
		defer s.Close()
		source = s
	default:
		source = replay.NewCSVSource(cfg.Replay.DataDir)
	}

	var j *journal.SQLite
	runner := &backtest.Runner{
		Source:     source,
		Strategies: strats,
		Log:        log,
		Options:    opts,
	}
	if cfg.Output.JournalDB != "" {
		j, err = journal.NewSQLite(cfg.Output.JournalDB)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		runner.Journal = j
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := runner.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	rep := report.New(res)
	files, err := rep.WriteFiles(cfg.Output.Dir)
	if err != nil {
		return err
	}
	if j != nil {
		if err := j.RecordRun(context.Background(), rep.RunRecord()); err != nil {
			log.Warn("journal run summary", zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	rep.WriteSummary(out)
	fmt.Fprintf(out, "Summary:       %s\n", files.Summary)
	fmt.Fprintf(out, "Trades:        %s\n", files.Trades)
	fmt.Fprintf(out, "Equity:        %s\n", files.Equity)
	return runErr
}
