package admission

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCapacityExceeded is returned to callers that want an error rather than
// the boolean from TryAdmit.
var ErrCapacityExceeded = errors.New("max streams reached")

// Controller enforces a hard cap on concurrently admitted streams.
type Controller struct {
	capacity int64
	counters *Counters
	nextID   atomic.Int64
}

// NewController returns a controller admitting at most capacity streams.
// A nil counters allocates a private set.
func NewController(capacity int, counters *Counters) *Controller {
	if counters == nil {
		counters = &Counters{}
	}
	return &Controller{capacity: int64(capacity), counters: counters}
}

// Capacity returns the configured cap.
func (c *Controller) Capacity() int { return int(c.capacity) }

// Counters returns the counters the controller updates.
func (c *Controller) Counters() *Counters { return c.counters }

// TryAdmit atomically reserves a slot. On success TotalCreated and the
// report window are incremented and a Ticket owning the slot is returned.
// On failure nothing in Counters besides Rejected changes.
func (c *Controller) TryAdmit() (*Ticket, bool) {
	for {
		cur := c.counters.active.Load()
		if cur >= c.capacity {
			c.counters.rejected.Add(1)
			return nil, false
		}
		if c.counters.active.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	c.counters.totalCreated.Add(1)
	c.counters.window.Add(1)
	return &Ticket{id: c.nextID.Add(1), ctrl: c}, true
}

// Admit is TryAdmit returning ErrCapacityExceeded on rejection.
func (c *Controller) Admit() (*Ticket, error) {
	t, ok := c.TryAdmit()
	if !ok {
		return nil, ErrCapacityExceeded
	}
	return t, nil
}

// Ticket is proof of admission. Release frees the slot exactly once no
// matter how many times it is called.
type Ticket struct {
	id   int64
	ctrl *Controller
	once sync.Once
}

// ID is unique per controller and doubles as the stream id.
func (t *Ticket) ID() int64 { return t.id }

// Release returns the slot to the controller.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.ctrl.counters.totalCompleted.Add(1)
		t.ctrl.counters.active.Add(-1)
	})
}
