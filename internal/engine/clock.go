package engine

import "sync/atomic"

// Clock numbers reconciliation cycles.
//
// The count is persisted with every saved document and resumed on restart,
// so log lines and saved documents can be correlated across restarts.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the loop goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific cycle number.
// Used on restore to resume from the last saved cycle.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next cycle number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current cycle number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Advance moves the clock forward to at least n. It never moves backward.
func (c *Clock) Advance(n int64) {
	for {
		cur := c.seq.Load()
		if n <= cur || c.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}
