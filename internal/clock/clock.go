package clock

import "sync"

// Clock is a Lamport logical clock. It is safe for concurrent use; the
// change-watch loop, the operation-apply loop and the reconciler all share
// one instance.
type Clock struct {
	mu sync.Mutex
	ts int64
}

// New creates a clock starting at zero. The first Tick returns 1.
func New() *Clock {
	return &Clock{}
}

// Tick increments the counter and returns the new value. It is used for
// locally originated events; no two calls on one node ever return the
// same value.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts++
	return c.ts
}

// Observe advances the counter to max(counter, t) without emitting a new
// event. It is called when processing a remote operation or when seeding
// from existing stored state, so that subsequent Tick calls produce values
// strictly greater than any timestamp this node has seen.
func (c *Clock) Observe(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.ts {
		c.ts = t
	}
}

// Now returns the current counter value without advancing it.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}
