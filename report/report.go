package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/journal"
)

// Report is the reportable view of one run.
type Report struct {
	Label      string
	Run        backtest.Result
	Metrics    Metrics
	Strategies []StrategyMetrics
}

func New(res backtest.Result) Report {
	return Report{
		Label:      Label(res),
		Run:        res,
		Metrics:    Compute(res.InitialCapital, res.EquityCurve, res.Trades),
		Strategies: ByStrategy(res.Trades),
	}
}

// Label names a run's files from its strategies and date range only, so
// the same run always writes to the same paths.
func Label(res backtest.Result) string {
	name := "combined"
	if len(res.Strategies) == 1 {
		name = res.Strategies[0]
	}
	return fmt.Sprintf("%s_%s_%s", name, res.Start.UTC().Format("20060102"), res.End.UTC().Format("20060102"))
}

// Files are the paths written by WriteFiles.
type Files struct {
	Summary string
	Trades  string
	Equity  string
}

// WriteFiles writes the summary, trades CSV and equity CSV into dir.
func (r Report) WriteFiles(dir string) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create output dir: %w", err)
	}
	f := Files{
		Summary: filepath.Join(dir, r.Label+"_summary.txt"),
		Trades:  filepath.Join(dir, r.Label+"_trades.csv"),
		Equity:  filepath.Join(dir, r.Label+"_equity.csv"),
	}

	writers := []struct {
		path  string
		write func(io.Writer) error
	}{
		{f.Summary, func(w io.Writer) error { r.WriteSummary(w); return nil }},
		{f.Trades, func(w io.Writer) error { return WriteTradesCSV(w, r.Run.Trades) }},
		{f.Equity, func(w io.Writer) error { return WriteEquityCSV(w, r.Run.EquityCurve) }},
	}
	for _, wr := range writers {
		if err := writeFile(wr.path, wr.write); err != nil {
			return Files{}, err
		}
	}
	return f, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(fh); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}

// WriteSummary prints the human-readable run summary.
func (r Report) WriteSummary(w io.Writer) {
	m := r.Metrics
	res := r.Run

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Run ID:        %s\n", res.RunID)
	fmt.Fprintf(w, "Strategies:    %s\n", strings.Join(res.Strategies, ", "))
	if res.Cancelled {
		fmt.Fprintln(w, "Status:        cancelled (partial results)")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", res.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", res.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Days:          %.1f\n", m.Days)
	fmt.Fprintf(w, "Steps:         %d\n", res.Steps)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Initial:       %.2f\n", m.InitialCapital)
	fmt.Fprintf(w, "Final Equity:  %.2f\n", m.FinalEquity)
	fmt.Fprintf(w, "Return:        %.2f%%\n", 100*m.TotalReturn)
	fmt.Fprintf(w, "Annualized:    %.2f%%\n", 100*m.AnnualizedReturn)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Risk")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Volatility:    %.2f%%\n", 100*m.Volatility)
	fmt.Fprintf(w, "Sharpe:        %.3f\n", m.Sharpe)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", 100*m.MaxDrawdown)
	fmt.Fprintf(w, "Calmar:        %.3f\n", m.Calmar)
	fmt.Fprintf(w, "Final State:   %s\n", res.Risk.Mode())

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	writeTradeStats(w, m)
	fmt.Fprintf(w, "Open:          %d\n", len(res.OpenPositions))
	fmt.Fprintf(w, "Rejected:      %d\n", len(res.Rejections))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Costs")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Fees:          %.2f\n", res.Final.Fees)
	if m.InitialCapital > 0 {
		fmt.Fprintf(w, "Fee Impact:    %.3f%% of capital\n", 100*res.Final.Fees/m.InitialCapital)
	}

	if len(r.Strategies) > 1 {
		for _, s := range r.Strategies {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Strategy: %s\n", s.Strategy)
			fmt.Fprintln(w, "--------------------------------------------------")
			writeTradeStats(w, s.Metrics)
		}
	}

	if len(res.Blocked) > 0 || len(res.Skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Suppressed")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, k := range sortedKeys(res.Blocked) {
			fmt.Fprintf(w, "- blocked %s: %d\n", k, res.Blocked[k])
		}
		for _, k := range sortedKeys(res.Skipped) {
			fmt.Fprintf(w, "- skipped %s: %d\n", k, res.Skipped[k])
		}
	}
	fmt.Fprintln(w)
}

func writeTradeStats(w io.Writer, m Metrics) {
	fmt.Fprintf(w, "Trades:        %d\n", m.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", m.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", m.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", 100*m.WinRate)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", m.NetPnL)
	if m.Trades > 0 {
		fmt.Fprintf(w, "Avg Trade:     %.2f\n", m.AvgTrade)
		fmt.Fprintf(w, "Avg Win:       %.2f\n", m.AvgWin)
		fmt.Fprintf(w, "Avg Loss:      %.2f\n", m.AvgLoss)
		fmt.Fprintf(w, "Largest Win:   %.2f\n", m.LargestWin)
		fmt.Fprintf(w, "Largest Loss:  %.2f\n", m.LargestLoss)
	}
	if m.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", m.ProfitFactor)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunRecord is the journal row summarizing this run.
func (r Report) RunRecord() journal.RunRecord {
	m := r.Metrics
	return journal.RunRecord{
		RunID:          r.Run.RunID,
		Strategy:       strings.Join(r.Run.Strategies, ","),
		Start:          r.Run.Start,
		End:            r.Run.End,
		InitialCapital: m.InitialCapital,
		FinalEquity:    m.FinalEquity,
		TotalReturn:    m.TotalReturn,
		Sharpe:         m.Sharpe,
		MaxDrawdown:    m.MaxDrawdown,
		Trades:         m.Trades,
		WinRate:        m.WinRate,
		ProfitFactor:   m.ProfitFactor,
		Fees:           r.Run.Final.Fees,
		Cancelled:      r.Run.Cancelled,
	}
}
