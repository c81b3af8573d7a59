package engine

import "sync/atomic"

// Clock is the monotonic logical clock that stamps firing records.
//
// Every record carries a strictly increasing seq, making the emission
// order explicit in the report itself rather than implied by slice
// position. A fresh clock starts at 0 for every run, so two runs with
// identical inputs produce byte-identical records.
//
// Thread-safety: Clock uses atomic operations, though a run only ever
// advances it from a single goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
