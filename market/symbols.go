package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownSymbol is returned when a name resolves to no canonical entry.
var ErrUnknownSymbol = errors.New("symbol resolution")

// AssetClass drives the commission schedule and quantity precision.
type AssetClass int

const (
	Equity AssetClass = iota
	Crypto
)

func (a AssetClass) String() string {
	if a == Crypto {
		return "crypto"
	}
	return "equity"
}

// Instrument is the metadata for one canonical symbol.
type Instrument struct {
	Symbol       string // canonical, e.g. "BTC/USD" or "SPY"
	Class        AssetClass
	QtyPrecision int32 // decimal places allowed on order quantities
}

// Symbols maps canonical symbols and their aliases. Every price, bar and
// indicator lookup resolves through it so caches are keyed on one name.
type Symbols struct {
	instruments map[string]Instrument
	aliases     map[string]string
}

func NewSymbols() *Symbols {
	return &Symbols{
		instruments: make(map[string]Instrument),
		aliases:     make(map[string]string),
	}
}

// Register adds an instrument. Crypto pairs written with a separator also get
// the separator-free alias ("BTC/USD" -> "BTCUSD") automatically.
func (s *Symbols) Register(inst Instrument, aliases ...string) {
	canon := strings.ToUpper(strings.TrimSpace(inst.Symbol))
	inst.Symbol = canon
	s.instruments[canon] = inst
	s.aliases[canon] = canon

	if strings.Contains(canon, "/") {
		s.aliases[strings.ReplaceAll(canon, "/", "")] = canon
		s.aliases[strings.ReplaceAll(canon, "/", "-")] = canon
	}
	for _, a := range aliases {
		s.aliases[strings.ToUpper(strings.TrimSpace(a))] = canon
	}
}

// Resolve returns the canonical form of name.
func (s *Symbols) Resolve(name string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if canon, ok := s.aliases[key]; ok {
		return canon, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, name)
}

// Lookup resolves name and returns its instrument metadata.
func (s *Symbols) Lookup(name string) (Instrument, error) {
	canon, err := s.Resolve(name)
	if err != nil {
		return Instrument{}, err
	}
	return s.instruments[canon], nil
}

// Canonical returns all registered canonical symbols, sorted.
func (s *Symbols) Canonical() []string {
	out := make([]string, 0, len(s.instruments))
	for sym := range s.instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// FileKey is the filesystem/db-safe spelling of a canonical symbol.
func FileKey(canonical string) string {
	return strings.ReplaceAll(canonical, "/", "")
}

// DefaultSymbols registers the universe traded by the bundled strategies plus
// the volatility proxy used by the regime signal.
func DefaultSymbols() *Symbols {
	s := NewSymbols()
	s.Register(Instrument{Symbol: "BTC/USD", Class: Crypto, QtyPrecision: 5})
	s.Register(Instrument{Symbol: "ETH/USD", Class: Crypto, QtyPrecision: 4})
	s.Register(Instrument{Symbol: "SOL/USD", Class: Crypto, QtyPrecision: 3})
	for _, eq := range []string{"SPY", "QQQ", "AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "AMD", "UVXY"} {
		s.Register(Instrument{Symbol: eq, Class: Equity})
	}
	return s
}
