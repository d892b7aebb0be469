package backtest

import (
	"fmt"
	"time"
)

// Tick is one step of simulated time.
type Tick struct {
	Time    time.Time
	NewDay  bool // first tick of a calendar day after the previous tick's day
	NewWeek bool // first tick of an ISO week after the previous tick's week
	Last    bool // no tick follows this one
}

// Clock walks [start, end] in fixed steps. Day and week boundaries are
// computed from simulated time in loc, never from the wall clock. Once the
// end is passed the clock is done and stays done.
type Clock struct {
	start time.Time
	end   time.Time
	step  time.Duration
	loc   *time.Location

	now     time.Time
	started bool
	done    bool
}

func NewClock(start, end time.Time, step time.Duration, loc *time.Location) (*Clock, error) {
	if step <= 0 {
		return nil, fmt.Errorf("clock: step must be positive, got %s", step)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("clock: end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{start: start, end: end, step: step, loc: loc}, nil
}

// Next advances one step and reports whether a tick was produced.
func (c *Clock) Next() (Tick, bool) {
	if c.done {
		return Tick{}, false
	}
	if !c.started {
		c.started = true
		c.now = c.start
		return Tick{Time: c.now, Last: c.last(c.now)}, true
	}

	next := c.now.Add(c.step)
	if next.After(c.end) {
		c.done = true
		return Tick{}, false
	}
	prev := c.now
	c.now = next
	return Tick{
		Time:    next,
		NewDay:  dayKey(prev, c.loc) != dayKey(next, c.loc),
		NewWeek: weekKey(prev, c.loc) != weekKey(next, c.loc),
		Last:    c.last(next),
	}, true
}

func (c *Clock) last(t time.Time) bool { return t.Add(c.step).After(c.end) }

func (c *Clock) Now() time.Time { return c.now }
func (c *Clock) Done() bool     { return c.done }
func (c *Clock) Step() time.Duration {
	return c.step
}

func dayKey(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return y*10000 + int(m)*100 + d
}

func weekKey(t time.Time, loc *time.Location) int {
	y, w := t.In(loc).ISOWeek()
	return y*100 + w
}
