package scheduler

import "sync"

// SignalQueuingCondition coalesces wakeups for the scheduler's single
// worker loop: any number of Signal calls between two Await calls are
// collapsed into exactly one wakeup, so the runner never busy-waits and
// never misses a signal that arrived just before it started waiting.
// Grounded on the round-robin polling loop in the teacher's
// internal/master/scheduler.go Run, reworked from a fixed-interval
// ticker into an event-driven condition variable per spec.md §5.
type SignalQueuingCondition struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	closed  bool
}

// NewSignalQueuingCondition returns a condition with no signal pending.
func NewSignalQueuingCondition() *SignalQueuingCondition {
	c := &SignalQueuingCondition{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Signal records that something changed that the runner should look
// at. Multiple signals before the runner wakes are collapsed into one.
func (c *SignalQueuingCondition) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = true
	c.cond.Signal()
}

// Await blocks until a signal is pending (consuming it) or the
// condition is closed, in which case it returns false.
func (c *SignalQueuingCondition) Await() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.pending && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return false
	}
	c.pending = false
	return true
}

// Close wakes any blocked Await permanently; subsequent Awaits return
// false immediately.
func (c *SignalQueuingCondition) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}
