package txn

import "sync"

// Clock is raised while a structural batch is in flight and lowered once
// its commit has been delivered to local subscribers. Readers use it to hold
// back intermediate snapshots.
type Clock struct {
	mu      sync.Mutex
	raised  bool
	changed chan struct{}
}

// NewClock returns a lowered clock.
func NewClock() *Clock {
	return &Clock{changed: make(chan struct{})}
}

// Raise marks a structural batch as in flight.
func (c *Clock) Raise() { c.set(true) }

// Lower marks the structural batch as settled.
func (c *Clock) Lower() { c.set(false) }

func (c *Clock) set(raised bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raised == raised {
		return
	}
	c.raised = raised
	close(c.changed)
	c.changed = make(chan struct{})
}

// Raised reports the current state.
func (c *Clock) Raised() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raised
}

// Watch returns the current state and a channel closed on the next change.
func (c *Clock) Watch() (bool, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raised, c.changed
}
