package trace

import "sync/atomic"

// Clock is the monotonic logical clock every trace event is stamped
// with. Ordering is logical on purpose: wall-clock time appears
// nowhere in a trace, so replays reproduce the exact sequence.
//
// The atomic counter makes the clock safe to share, though the runner
// drives it from a single flow of control.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock starting at a specific sequence number,
// for resuming against an existing trace.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next increments the clock and returns the new sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
