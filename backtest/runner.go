// Package backtest drives a simulated clock over replayed market data and
// routes strategy decisions through the risk gate into the ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/internal/logger"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/replay"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/strategies"
)

// ErrConfig wraps every reason a run refuses to start.
var ErrConfig = errors.New("backtest configuration")

const (
	DefaultCloseReason = "EndOfReplay"
	DefaultWarmup      = 5 * 24 * time.Hour
	DefaultStaleBars   = 2
)

// RegimeOptions configure the volatility-proxy regime signal. An empty
// Symbol disables it.
type RegimeOptions struct {
	Symbol    string
	Threshold float64
	RiskOff   float64
}

type Options struct {
	RunID string
	Start time.Time
	End   time.Time

	InitialCapital float64
	Costs          sim.Costs
	MaxPositions   int
	Limits         risk.Limits
	Regime         RegimeOptions

	// Warmup is history loaded before Start so indicators are ready on the
	// first step.
	Warmup          time.Duration
	FetchTimeout    time.Duration
	IndicatorWindow int

	// Location decides where calendar days and weeks roll over.
	Location *time.Location

	// StaleBars skips a symbol when its newest bar is more than this many
	// bars older than the step.
	StaleBars int

	Seed        int64
	CloseEnd    bool
	CloseReason string
}

func DefaultOptions() Options {
	return Options{
		InitialCapital: 100000,
		Costs:          sim.DefaultCosts(),
		MaxPositions:   sim.DefaultMaxPositions,
		Limits:         risk.DefaultLimits(),
		Regime:         RegimeOptions{Symbol: "UVXY", Threshold: 0.05, RiskOff: risk.MinRegimeMultiplier},
		Warmup:         DefaultWarmup,
		FetchTimeout:   30 * time.Second,
		Location:       time.UTC,
		StaleBars:      DefaultStaleBars,
		CloseReason:    DefaultCloseReason,
	}
}

// Runner runs one backtest. Gate and Regime are optional: by default a
// Breaker over Options.Limits and the proxy in Options.Regime are used.
type Runner struct {
	Symbols    *market.Symbols
	Source     replay.BarSource
	Strategies []strategies.Strategy
	Gate       risk.Gate
	Regime     risk.RegimeSignal
	Journal    journal.Journal
	Log        *zap.Logger
	Options    Options
}

func (r *Runner) validate() error {
	o := r.Options
	switch {
	case r.Source == nil:
		return fmt.Errorf("%w: backtest: Source is required", ErrConfig)
	case len(r.Strategies) == 0:
		return fmt.Errorf("%w: backtest: at least one strategy is required", ErrConfig)
	case o.Start.IsZero() || o.End.IsZero():
		return fmt.Errorf("%w: backtest: start and end are required", ErrConfig)
	case !o.End.After(o.Start):
		return fmt.Errorf("%w: backtest: end %s must be after start %s", ErrConfig,
			o.End.Format(time.RFC3339), o.Start.Format(time.RFC3339))
	case o.InitialCapital <= 0:
		return fmt.Errorf("%w: backtest: initial capital must be positive, got %.2f", ErrConfig, o.InitialCapital)
	}
	for _, s := range r.Strategies {
		if s == nil {
			return fmt.Errorf("%w: backtest: nil strategy", ErrConfig)
		}
		if s.Timeframe() <= 0 {
			return fmt.Errorf("%w: backtest: strategy %s has no timeframe", ErrConfig, s.Name())
		}
	}
	return nil
}

// feed is one loaded series the ledger is marked from.
type feed struct {
	symbol string
	tf     market.Timeframe
}

// run is the per-run context: every component of one simulation, built
// before the first step and torn down after the last.
type run struct {
	opts    Options
	log     *zap.Logger
	symbols *market.Symbols
	replay  *replay.Replay
	ledger  *sim.Ledger
	gate    risk.Gate
	limits  risk.Limits
	regime  risk.RegimeSignal
	strats  []strategies.Strategy
	feeds   []feed
	result  Result
}

// Run executes the backtest. On cancellation it returns the partial Result
// up to the last fully processed step together with ctx.Err().
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	rc := r.newRun()

	if rs, ok := r.Journal.(journal.Resetter); ok {
		if err := rs.ResetRun(ctx, rc.opts.RunID); err != nil {
			return rc.finish(), fmt.Errorf("journal: reset run %s: %w", rc.opts.RunID, err)
		}
	}

	rc.log.Info("backtest starting",
		zap.String("run_id", rc.opts.RunID),
		zap.Strings("strategies", rc.result.Strategies),
		zap.Time("start", rc.opts.Start),
		zap.Time("end", rc.opts.End),
		zap.Float64("initial_capital", rc.opts.InitialCapital),
	)

	if err := rc.load(ctx); err != nil {
		return rc.finish(), err
	}

	clock, err := NewClock(rc.opts.Start, rc.opts.End, rc.step(), rc.opts.Location)
	if err != nil {
		return rc.finish(), fmt.Errorf("%w: %v", ErrConfig, err)
	}

	rc.ledger.SetTime(rc.opts.Start)
	rc.gate.Start(rc.opts.Start, rc.opts.InitialCapital)

	for {
		if err := ctx.Err(); err != nil {
			rc.result.Cancelled = true
			rc.log.Warn("backtest cancelled",
				zap.Time("at", rc.result.End),
				zap.Int("steps", rc.result.Steps),
			)
			return rc.finish(), err
		}
		tick, ok := clock.Next()
		if !ok {
			break
		}
		rc.advance(tick)
	}

	res := rc.finish()
	rc.log.Info("backtest finished",
		zap.Int("steps", res.Steps),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.Final.Equity),
	)
	return res, nil
}

// DefaultRunID names a run by its strategy set and date range, so repeating
// a backtest replaces its journal rows while other strategy sets over the
// same dates keep their own.
func DefaultRunID(strategyNames []string, start, end time.Time) string {
	names := append([]string(nil), strategyNames...)
	sort.Strings(names)
	return fmt.Sprintf("bt-%s-%s-%s", strings.Join(names, "+"),
		start.UTC().Format("20060102"), end.UTC().Format("20060102"))
}

func (r *Runner) newRun() *run {
	opts := r.Options
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.StaleBars <= 0 {
		opts.StaleBars = DefaultStaleBars
	}
	if opts.CloseReason == "" {
		opts.CloseReason = DefaultCloseReason
	}
	names := make([]string, len(r.Strategies))
	for i, s := range r.Strategies {
		names[i] = s.Name()
	}
	if opts.RunID == "" {
		opts.RunID = DefaultRunID(names, opts.Start, opts.End)
	}

	log := logger.OrNop(r.Log).With(zap.String("run_id", opts.RunID))
	symbols := r.Symbols
	if symbols == nil {
		symbols = market.DefaultSymbols()
	}
	j := r.Journal
	if j == nil {
		j = journal.Nop{}
	}

	rp := replay.New(symbols, r.Source, replay.Options{
		FetchTimeout:    opts.FetchTimeout,
		IndicatorWindow: opts.IndicatorWindow,
		Logger:          log,
	})

	ledger := sim.NewLedger(symbols, sim.Config{
		RunID:        opts.RunID,
		InitialCash:  opts.InitialCapital,
		Costs:        opts.Costs,
		MaxPositions: opts.MaxPositions,
		Seed:         opts.Seed,
	}, j, log)

	gate := r.Gate
	if gate == nil {
		gate = risk.NewBreaker(opts.Limits, log)
	}

	regime := r.Regime
	if regime == nil {
		if opts.Regime.Symbol != "" {
			regime = risk.NewVolatilityProxy(rp, opts.Regime.Symbol, opts.Regime.Threshold, opts.Regime.RiskOff, log)
		} else {
			regime = risk.Static(risk.MaxRegimeMultiplier)
		}
	}

	return &run{
		opts:    opts,
		log:     log,
		symbols: symbols,
		replay:  rp,
		ledger:  ledger,
		gate:    gate,
		limits:  opts.Limits,
		regime:  regime,
		strats:  r.Strategies,
		result: Result{
			RunID:          opts.RunID,
			Strategies:     names,
			Start:          opts.Start,
			InitialCapital: opts.InitialCapital,
		},
	}
}

// step is the clock step: the finest strategy timeframe.
func (rc *run) step() time.Duration {
	step := rc.strats[0].Timeframe().Duration()
	for _, s := range rc.strats[1:] {
		if d := s.Timeframe().Duration(); d < step {
			step = d
		}
	}
	return step
}

// load fetches every strategy symbol plus the regime proxy. Missing data is
// logged and counted; only cancellation is fatal.
func (rc *run) load(ctx context.Context) error {
	from := rc.opts.Start.Add(-rc.opts.Warmup)
	seen := make(map[feed]bool)

	for _, s := range rc.strats {
		for _, sym := range s.Symbols() {
			canon, err := rc.symbols.Resolve(sym)
			if err != nil {
				rc.log.Warn("skipping symbol", zap.String("symbol", sym), zap.Error(err))
				rc.result.skip(sym, "unknown symbol")
				continue
			}
			f := feed{canon, s.Timeframe()}
			if seen[f] {
				continue
			}
			seen[f] = true

			if err := rc.replay.Load(ctx, canon, f.tf, from, rc.opts.End); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				rc.log.Warn("no data", zap.String("symbol", canon), zap.Stringer("timeframe", f.tf), zap.Error(err))
				continue
			}
			rc.feeds = append(rc.feeds, f)
		}
	}

	if sym := rc.opts.Regime.Symbol; sym != "" {
		// daily proxy bars need a longer lead than intraday warmup
		err := rc.replay.Load(ctx, sym, market.D1, from.AddDate(0, 0, -10), rc.opts.End)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rc.log.Warn("regime proxy unavailable, sizing unadjusted", zap.String("symbol", sym), zap.Error(err))
		}
	}

	// finer timeframes first so a symbol traded on two timeframes is
	// marked from the freshest bar
	sort.SliceStable(rc.feeds, func(i, j int) bool {
		if rc.feeds[i].tf != rc.feeds[j].tf {
			return rc.feeds[i].tf < rc.feeds[j].tf
		}
		return rc.feeds[i].symbol < rc.feeds[j].symbol
	})
	return nil
}

// advance processes one tick: stops and marks, risk, strategies, the
// end-of-replay close, sample.
func (rc *run) advance(tick Tick) {
	now := tick.Time
	rc.ledger.SetTime(now)

	marked := make(map[string]bool, len(rc.feeds))
	for _, f := range rc.feeds {
		if marked[f.symbol] {
			continue
		}
		bar, err := rc.replay.LatestBar(f.symbol, f.tf, now)
		if err != nil {
			continue
		}
		marked[f.symbol] = true
		filled, err := rc.ledger.EvaluateBar(bar)
		if err != nil {
			rc.log.Warn("evaluating bar", zap.String("symbol", f.symbol), zap.Error(err))
		}
		for _, o := range filled {
			rc.log.Debug("order triggered",
				zap.String("order_id", o.ID),
				zap.String("symbol", o.Symbol),
				zap.Stringer("kind", o.Kind),
				zap.Float64("fill", o.FillPrice),
			)
		}
	}

	equity := rc.ledger.Equity()
	if tick.NewWeek {
		rc.gate.OnWeekBoundary(now, equity)
	}
	if tick.NewDay {
		rc.gate.OnDayBoundary(now, equity)
	}
	rc.gate.Update(now, equity)
	rc.gate.SetRegime(rc.regime.MultiplierAt(now))

	for _, s := range rc.strats {
		tf := s.Timeframe()
		if !now.Equal(now.Truncate(tf.Duration())) {
			continue
		}
		for _, sym := range s.Symbols() {
			rc.evaluate(now, s, sym)
		}
	}

	// Closing on the last tick keeps one equity sample per step.
	if tick.Last && rc.opts.CloseEnd {
		if err := rc.ledger.CloseAll(rc.opts.CloseReason); err != nil {
			rc.log.Warn("closing positions at end of replay", zap.Error(err))
		}
	}

	if _, err := rc.ledger.Sample(now); err != nil {
		rc.log.Warn("journal equity sample", zap.Error(err))
	}
	rc.result.End = now
	rc.result.Steps++
}

func (rc *run) evaluate(now time.Time, s strategies.Strategy, sym string) {
	canon, err := rc.symbols.Resolve(sym)
	if err != nil {
		return
	}
	tf := s.Timeframe()

	snap, err := rc.replay.IndicatorsAt(canon, tf, now)
	if err != nil {
		rc.result.skip(canon, "data unavailable")
		rc.log.Debug("skipping", zap.String("symbol", canon), zap.Error(err))
		return
	}
	if now.Sub(snap.Time) > time.Duration(rc.opts.StaleBars)*tf.Duration() {
		rc.result.skip(canon, "stale data")
		return
	}

	pos, held := rc.ledger.Position(canon)
	if held && pos.Strategy != s.Name() {
		// another strategy owns the position
		return
	}

	acct := rc.ledger.Account()
	state := strategies.AccountState{Equity: acct.Equity, Cash: acct.Cash}
	if held {
		state.InPosition = true
		state.Qty = pos.Qty
		state.AvgPrice = pos.AvgPrice
	}

	d := s.Evaluate(now, snap, state)
	switch d.Signal {
	case strategies.Exit:
		if !held {
			return
		}
		o, err := rc.ledger.ClosePosition(canon, "Signal: "+d.Reason)
		if err != nil {
			rc.log.Warn("exit failed", zap.String("symbol", canon), zap.Error(err))
			return
		}
		rc.log.Debug("exit", zap.String("symbol", canon), zap.String("order_id", o.ID), zap.String("reason", d.Reason))

	case strategies.EnterLong:
		if held {
			return
		}
		rc.enter(now, s, canon, d, acct)
	}
}

func (rc *run) enter(now time.Time, s strategies.Strategy, canon string, d strategies.Decision, acct sim.Account) {
	permit := rc.gate.Permit(canon)
	if !permit.Allowed {
		rc.result.block(permit.Reason)
		rc.log.Debug("entry blocked", zap.String("symbol", canon), zap.String("reason", permit.Reason))
		return
	}

	inst, err := rc.symbols.Lookup(canon)
	if err != nil {
		return
	}
	price, err := rc.ledger.Price(canon)
	if err != nil || price <= 0 {
		rc.result.skip(canon, "no price")
		return
	}

	notional := d.SizeHint * acct.Equity * permit.SizeMultiplier
	qty := market.RoundQty(notional/price, inst.QtyPrecision)
	if qty <= 0 {
		rc.result.skip(canon, "size rounds to zero")
		return
	}

	dec := risk.Evaluate(rc.limits, risk.OrderIntent{
		Symbol:   canon,
		Crypto:   inst.Class == market.Crypto,
		Buy:      true,
		Notional: qty * price,
	}, rc.exposure(acct))
	if !dec.Allowed {
		rc.result.block(dec.Reason())
		rc.log.Debug("entry exceeds exposure limits", zap.String("symbol", canon), zap.String("reason", dec.Reason()))
		return
	}

	o, err := rc.ledger.Submit(sim.OrderRequest{
		Symbol:   canon,
		Side:     sim.Buy,
		Qty:      qty,
		Kind:     sim.Market,
		Strategy: s.Name(),
		Reason:   "Signal: " + d.Reason,
	})
	if err != nil {
		rc.log.Debug("entry rejected", zap.String("symbol", canon), zap.Error(err))
		return
	}
	rc.result.Entries++
	rc.log.Debug("entry",
		zap.String("symbol", canon),
		zap.String("order_id", o.ID),
		zap.Float64("qty", o.Qty),
		zap.Float64("fill", o.FillPrice),
		zap.Float64("size_multiplier", permit.SizeMultiplier),
		zap.Time("at", now),
	)

	if d.StopPrice > 0 {
		if _, err := rc.ledger.AttachStop(canon, d.StopPrice); err != nil {
			rc.log.Warn("attaching stop", zap.String("symbol", canon), zap.Error(err))
		}
	}
}

func (rc *run) exposure(acct sim.Account) risk.Exposure {
	exp := risk.Exposure{Equity: acct.Equity, Cash: acct.Cash}
	for _, p := range rc.ledger.Positions() {
		inst, err := rc.symbols.Lookup(p.Symbol)
		if err != nil || inst.Class != market.Crypto {
			continue
		}
		price, err := rc.ledger.Price(p.Symbol)
		if err != nil {
			continue
		}
		if p.Qty < 0 {
			exp.CryptoNotional -= p.Qty * price
		} else {
			exp.CryptoNotional += p.Qty * price
		}
	}
	return exp
}

func (rc *run) finish() Result {
	res := rc.result
	res.Final = rc.ledger.Account()
	res.Trades = rc.ledger.Trades()
	res.EquityCurve = rc.ledger.EquityCurve()
	res.Rejections = rc.ledger.Rejections()
	res.OpenPositions = rc.ledger.Positions()
	res.Risk = rc.gate.State()
	return res
}
