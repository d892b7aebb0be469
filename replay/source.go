// Package replay serves historical bars and indicator snapshots strictly as of
// a simulated instant.
package replay

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

// ErrDataUnavailable means no bars exist for a symbol at or before the
// requested instant. It is a per-symbol condition; callers skip the symbol
// for the step and keep going.
var ErrDataUnavailable = errors.New("data unavailable")

// BarSource produces historical bars for one canonical symbol. Returned bars
// must lie in [start, end]; ordering is not required.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)
}

// SourceFunc adapts a function to BarSource.
type SourceFunc func(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error)

func (f SourceFunc) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	return f(ctx, symbol, tf, start, end)
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
