package admission

import "sync/atomic"

// Counters are the process-wide stream counters. All fields are updated
// atomically; no lock is shared with the hot path.
//
// When no admit or release is in flight, Active == TotalCreated - TotalCompleted.
type Counters struct {
	active         atomic.Int64
	totalCreated   atomic.Int64
	totalCompleted atomic.Int64
	window         atomic.Int64
	rejected       atomic.Int64
}

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Active          int64 `json:"active"`
	TotalCreated    int64 `json:"totalCreated"`
	TotalCompleted  int64 `json:"totalCompleted"`
	SinceLastReport int64 `json:"sinceLastReport"`
	Rejected        int64 `json:"rejected"`
}

func (c *Counters) Active() int64         { return c.active.Load() }
func (c *Counters) TotalCreated() int64   { return c.totalCreated.Load() }
func (c *Counters) TotalCompleted() int64 { return c.totalCompleted.Load() }
func (c *Counters) Rejected() int64       { return c.rejected.Load() }

// Snapshot reads every counter without resetting the report window.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Active:          c.active.Load(),
		TotalCreated:    c.totalCreated.Load(),
		TotalCompleted:  c.totalCompleted.Load(),
		SinceLastReport: c.window.Load(),
		Rejected:        c.rejected.Load(),
	}
}

// ResetWindow returns the number of streams created since the previous
// reset and zeroes the window in one atomic step.
func (c *Counters) ResetWindow() int64 {
	return c.window.Swap(0)
}
