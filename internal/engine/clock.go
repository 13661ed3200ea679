package engine

import "sync"

// Sequencer stamps run-log records with strictly increasing seq numbers.
// Current reports the last stamp handed out, 0 before the first.
// testutil.DeterministicClock satisfies it for tests.
type Sequencer interface {
	Next() int64
	Current() int64
}

// Clock is the engine's default Sequencer.
//
// A run log orders runs, loops, trials and staircase steps by seq alone, so
// two runs appended to one database must never reuse a seq. The engine
// calls ResumeAfter with the log's highest seq before writing a run.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next stamps one record.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Current returns the last stamp.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// ResumeAfter moves the clock so the next stamp follows seq. The clock
// never moves backward; it reports whether it moved.
func (c *Clock) ResumeAfter(seq int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq <= c.last {
		return false
	}
	c.last = seq
	return true
}
