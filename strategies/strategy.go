// Package strategies holds the signal generators driven by the backtest
// runner. A strategy sees one point-in-time indicator snapshot per symbol
// and returns a Decision; it never touches the ledger.
package strategies

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/indicators"
	"github.com/rustyeddy/papertrader/market"
)

// ErrUnknownStrategy is returned by ByName for an unregistered name.
var ErrUnknownStrategy = errors.New("unknown strategy")

// All selects every registered strategy.
const All = "all"

type Signal int

const (
	Hold Signal = iota
	EnterLong
	Exit
)

func (s Signal) String() string {
	switch s {
	case EnterLong:
		return "enter_long"
	case Exit:
		return "exit"
	}
	return "hold"
}

// Decision is a strategy's answer for one symbol at one instant.
type Decision struct {
	Signal Signal

	// SizeHint is the entry notional as a fraction of equity, before the
	// risk gate's multiplier.
	SizeHint float64

	// StopPrice is the protective stop to attach after an entry fills.
	StopPrice float64

	Reason string
}

// AccountState is what a strategy may know about the account.
type AccountState struct {
	Equity float64
	Cash   float64

	// Position in the snapshot's symbol held by this strategy, if any.
	InPosition bool
	Qty        float64
	AvgPrice   float64
}

// Strategy is the contract every strategy variant implements. now is always
// simulated time.
type Strategy interface {
	Name() string
	Timeframe() market.Timeframe
	Symbols() []string
	Evaluate(now time.Time, snap indicators.Snapshot, acct AccountState) Decision
}

// Factory builds a fresh strategy for a run.
type Factory func() Strategy

var registry = map[string]Factory{
	CryptoMeanReversionName: func() Strategy { return NewCryptoMeanReversion(DefaultCryptoParams()) },
	EquityMeanReversionName: func() Strategy { return NewEquityMeanReversion(DefaultEquityParams()) },
}

// Register adds or replaces a named factory.
func Register(name string, f Factory) {
	registry[strings.ToLower(strings.TrimSpace(name))] = f
}

// Names returns the registered strategy names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByName returns fresh strategies for name, or for every registered name
// when name is "all".
func ByName(name string) ([]Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == All {
		var out []Strategy
		for _, n := range Names() {
			out = append(out, registry[n]())
		}
		return out, nil
	}
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w %q (have: %s, %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "), All)
	}
	return []Strategy{f()}, nil
}

func hold(reason string) Decision {
	return Decision{Signal: Hold, Reason: reason}
}
