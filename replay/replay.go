package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

// DefaultIndicatorWindow caps how many trailing bars feed one snapshot.
const DefaultIndicatorWindow = 50

// Options controls how a Replay loads and serves data.
type Options struct {
	// FetchTimeout bounds each BarSource call. Zero means no timeout.
	FetchTimeout time.Duration

	// IndicatorWindow is the number of trailing bars fed to indicators.
	IndicatorWindow int

	Logger *zap.Logger
}

type seriesKey struct {
	symbol string
	tf     market.Timeframe
}

type snapKey struct {
	symbol string
	tf     market.Timeframe
	last   int64
}

// Replay holds per-symbol ordered bar series and answers point-in-time
// queries against them. All lookups resolve through the symbol registry, so
// an alias and its canonical form share one series and one cache entry.
type Replay struct {
	symbols *market.Symbols
	source  BarSource
	opts    Options
	log     *zap.Logger

	series map[seriesKey][]market.Bar
	snaps  map[snapKey]indicators.Snapshot
}

func New(symbols *market.Symbols, source BarSource, opts Options) *Replay {
	if opts.IndicatorWindow <= 0 {
		opts.IndicatorWindow = DefaultIndicatorWindow
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Replay{
		symbols: symbols,
		source:  source,
		opts:    opts,
		log:     log,
		series:  make(map[seriesKey][]market.Bar),
		snaps:   make(map[snapKey]indicators.Snapshot),
	}
}

// Symbols returns the registry used for resolution.
func (r *Replay) Symbols() *market.Symbols { return r.symbols }

// Load fetches [start, end] for one symbol and timeframe. Invalid bars are
// dropped, the series is sorted and duplicate timestamps keep the last row.
// A failed or empty fetch returns ErrDataUnavailable and leaves the series
// empty so later queries for it fail the same way.
func (r *Replay) Load(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) error {
	canon, err := r.symbols.Resolve(symbol)
	if err != nil {
		return err
	}

	fctx := ctx
	if r.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.opts.FetchTimeout)
		defer cancel()
	}

	bars, err := r.source.GetBars(fctx, canon, tf, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrDataUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %v", ErrDataUnavailable, canon, tf, err)
	}

	clean := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			r.log.Debug("dropping bar", zap.String("symbol", canon), zap.Error(err))
			continue
		}
		b.Symbol = canon
		clean = append(clean, b)
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Time.Before(clean[j].Time) })
	clean = dedupe(clean)

	r.series[seriesKey{canon, tf}] = clean
	r.snaps = make(map[snapKey]indicators.Snapshot)
	r.log.Debug("loaded bars",
		zap.String("symbol", canon),
		zap.Stringer("timeframe", tf),
		zap.Int("bars", len(clean)),
	)
	if len(clean) == 0 {
		return fmt.Errorf("%w: %s %s: no bars in range", ErrDataUnavailable, canon, tf)
	}
	return nil
}

// Add merges already-known bars into a series, keeping it ordered. Tests and
// in-process feeds use it instead of a BarSource. An invalid bar rejects the
// whole call. The merged series is a new slice, so windows handed out
// earlier by BarsAtOrBefore keep their contents.
func (r *Replay) Add(symbol string, tf market.Timeframe, bars ...market.Bar) error {
	canon, err := r.symbols.Resolve(symbol)
	if err != nil {
		return err
	}
	key := seriesKey{canon, tf}
	old := r.series[key]

	s := make([]market.Bar, 0, len(old)+len(bars))
	s = append(s, old...)
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("replay: add %s %s: %w", canon, tf, err)
		}
		b.Symbol = canon
		s = append(s, b)
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
	r.series[key] = dedupe(s)
	r.snaps = make(map[snapKey]indicators.Snapshot)
	return nil
}

func dedupe(s []market.Bar) []market.Bar {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, b := range s[1:] {
		if b.Time.Equal(out[len(out)-1].Time) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// BarsAtOrBefore returns up to limit of the most recent bars with Time <= t,
// oldest first. limit <= 0 returns every such bar. The returned slice shares
// storage with the series and must not be modified.
func (r *Replay) BarsAtOrBefore(symbol string, tf market.Timeframe, t time.Time, limit int) ([]market.Bar, error) {
	canon, err := r.symbols.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	return r.barsAtOrBefore(canon, tf, t, limit)
}

func (r *Replay) barsAtOrBefore(canon string, tf market.Timeframe, t time.Time, limit int) ([]market.Bar, error) {
	s := r.series[seriesKey{canon, tf}]
	// first index strictly after t
	hi := sort.Search(len(s), func(i int) bool { return s[i].Time.After(t) })
	if hi == 0 {
		return nil, fmt.Errorf("%w: %s %s at %s", ErrDataUnavailable, canon, tf, t.Format(time.RFC3339))
	}
	lo := 0
	if limit > 0 && hi > limit {
		lo = hi - limit
	}
	return s[lo:hi:hi], nil
}

// LatestBar returns the newest bar with Time <= t.
func (r *Replay) LatestBar(symbol string, tf market.Timeframe, t time.Time) (market.Bar, error) {
	bars, err := r.BarsAtOrBefore(symbol, tf, t, 1)
	if err != nil {
		return market.Bar{}, err
	}
	return bars[0], nil
}

// IndicatorsAt computes the standard indicator set from bars with
// Time <= t only. The window is filtered before anything is computed.
func (r *Replay) IndicatorsAt(symbol string, tf market.Timeframe, t time.Time) (indicators.Snapshot, error) {
	canon, err := r.symbols.Resolve(symbol)
	if err != nil {
		return indicators.Snapshot{}, err
	}
	window, err := r.barsAtOrBefore(canon, tf, t, r.opts.IndicatorWindow)
	if err != nil {
		return indicators.Snapshot{}, err
	}

	key := snapKey{canon, tf, window[len(window)-1].Time.UnixNano()}
	if snap, ok := r.snaps[key]; ok {
		return snap, nil
	}
	snap := indicators.Compute(canon, window)
	r.snaps[key] = snap
	return snap, nil
}
