package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorDeterministic(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a, b := NewGenerator(42), NewGenerator(42)
	for i := 0; i < 5; i++ {
		ts := at.Add(time.Duration(i) * time.Second)
		assert.Equal(t, a.New(ts), b.New(ts))
	}

	c := NewGenerator(7)
	assert.NotEqual(t, NewGenerator(42).New(at), c.New(at))
}

func TestGeneratorSortableWithinMillisecond(t *testing.T) {
	t.Parallel()

	g := NewGenerator(1)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := g.New(at)
	second := g.New(at)
	assert.Less(t, first, second)

	parsed, err := ulid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uint64(at.UnixMilli()), parsed.Time())
}

func TestGeneratorZeroTime(t *testing.T) {
	t.Parallel()

	g := NewGenerator(3)
	s := g.New(time.Time{})
	parsed, err := ulid.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), parsed.Time())
}

func TestScopedSeeds(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, Scoped(0, "run-a"), Scoped(0, "run-a"))
	assert.NotEqual(t, Scoped(0, "run-a"), Scoped(0, "run-b"))
	assert.NotEqual(t,
		NewGenerator(Scoped(0, "run-a")).New(at),
		NewGenerator(Scoped(0, "run-b")).New(at),
	)
}
