// Package id generates ULIDs for orders, trades and runs.
package id

import (
	"hash/fnv"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var epoch = time.Unix(0, 0).UTC()

// Generator produces time-sortable ULIDs from a seeded entropy source. Two
// generators built with the same seed and fed the same timestamps produce the
// same sequence, which keeps replay output reproducible.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Scoped mixes scope into seed so generators for different runs sharing a
// seed do not repeat each other's ids.
func Scoped(seed int64, scope string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(scope))
	return seed ^ int64(h.Sum64())
}

// New returns a ULID stamped with t. Callers pass simulated time, not the
// wall clock. Times before the Unix epoch, including the zero time, are
// stamped at the epoch.
func (g *Generator) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.Before(epoch) {
		t = epoch
	}

	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.mono)
	if err != nil {
		// Errors are extremely unlikely unless entropy overflows within one millisecond.
		panic(err)
	}
	return id.String()
}
