package admission

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// ResetAtMillis returns ResetAt as Unix epoch milliseconds.
func (d Decision) ResetAtMillis() int64 {
	return d.ResetAt.UnixMilli()
}

// Controller admits or rejects calls under a fixed-window budget per key.
//
// Limits are supplied on every call so one controller can serve every
// operation through distinct keys. A caller may get up to twice the limit in
// a short span that straddles a window boundary.
type Controller struct {
	Store Store
	Clock func() time.Time

	once sync.Once
}

// New returns a controller backed by store, or by a fresh MemoryStore when nil.
func New(store Store) *Controller {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Controller{Store: store}
}

// Check counts one call against key and reports whether it may proceed.
// Rejected calls are not counted.
func (c *Controller) Check(key string, limit int, window time.Duration) Decision {
	now := c.now()
	state, allowed := c.store().Increment(key, limit, window, now)

	decision := Decision{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: state.WindowStart.Add(window),
	}
	if allowed {
		decision.Remaining = limit - state.Count
	}
	return decision
}

// Peek reports the current window for key without counting a call.
func (c *Controller) Peek(key string) (WindowState, bool) {
	return c.store().Get(key)
}

// Sweep evicts long-expired windows and returns how many were removed.
func (c *Controller) Sweep() int {
	return c.store().Evict(c.now())
}

func (c *Controller) store() Store {
	c.once.Do(func() {
		if c.Store == nil {
			c.Store = NewMemoryStore()
		}
	})
	return c.Store
}

func (c *Controller) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

// advance applies one fixed-window step to state. Stores call it inside the
// key's critical section.
func advance(state *WindowState, limit int, window time.Duration, now time.Time) bool {
	if state.WindowStart.IsZero() || now.Sub(state.WindowStart) >= window {
		state.WindowStart = now
		state.Count = 0
	}
	state.Window = window

	if state.Count >= limit {
		return false
	}
	state.Count++
	return true
}
