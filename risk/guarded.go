package risk

import (
	"sync"
	"time"
)

// Guarded serializes every call into a Gate so polling loops in a live
// deployment can share one breaker state.
type Guarded struct {
	mu   sync.Mutex
	gate Gate
}

var _ Gate = (*Guarded)(nil)

func NewGuarded(g Gate) *Guarded {
	return &Guarded{gate: g}
}

func (g *Guarded) Start(t time.Time, equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.Start(t, equity)
}

func (g *Guarded) OnDayBoundary(t time.Time, equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.OnDayBoundary(t, equity)
}

func (g *Guarded) OnWeekBoundary(t time.Time, equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.OnWeekBoundary(t, equity)
}

func (g *Guarded) Update(t time.Time, equity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.Update(t, equity)
}

func (g *Guarded) SetRegime(multiplier float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.SetRegime(multiplier)
}

func (g *Guarded) Permit(symbol string) Permit {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.Permit(symbol)
}

func (g *Guarded) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gate.State()
}

// UpdateAndPermit refreshes equity and asks for a permit without letting
// another caller run between the two.
func (g *Guarded) UpdateAndPermit(t time.Time, equity float64, symbol string) Permit {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate.Update(t, equity)
	return g.gate.Permit(symbol)
}
