package engine

import "sync/atomic"

// Clock is the monotonic pass sequence counter. Every pass is stamped
// with a strictly increasing seq so logs and reports from interleaved
// triggers order unambiguously.
//
// Thread-safety: safe for concurrent use (atomic operations). RunPass
// serializes anyway, but Runner reads Current from other goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0; the first pass gets seq 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from a persisted sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
