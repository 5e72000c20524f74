// Package pulse accumulates hall-effect flow sensor edges into a monotonic
// pulse count. The real edge source uses the Linux GPIO character device;
// the fake source allows testing without hardware.
package pulse

import "sync/atomic"

// DebounceMillis is the minimum spacing between accepted edges. Edges closer
// together than this are treated as electrical noise and dropped — a deliberate
// false-negative bias: missing a spurious pulse is preferable to double
// counting one.
const DebounceMillis = 10

// DefaultPin is the BCM pin for the YF-S201 flow sensor signal line.
const DefaultPin = 27

// Counter is the shared pulse accumulator. OnEdge is called from the edge
// delivery goroutine (the ISR stand-in); Read, ReadAndReset and
// LastEdgeMillis are called from the main loop. All shared fields are
// atomics held for single loads/stores only, so the edge path never blocks
// behind task-context work.
type Counter struct {
	total    atomic.Uint64
	lastEdge atomic.Int64
}

// NewCounter returns a Counter ready to accept edges, including one arriving
// at time zero.
func NewCounter() *Counter {
	c := &Counter{}
	c.lastEdge.Store(-(DebounceMillis + 1))
	return c
}

// OnEdge records one qualifying sensor edge at the given monotonic
// millisecond timestamp. Edges inside the debounce window are dropped
// silently. Must only be called from a single goroutine.
func (c *Counter) OnEdge(nowMillis int64) {
	if nowMillis-c.lastEdge.Load() < DebounceMillis {
		return
	}
	c.total.Add(1)
	c.lastEdge.Store(nowMillis)
}

// Read returns the cumulative pulse count without resetting it.
func (c *Counter) Read() uint64 {
	return c.total.Load()
}

// ReadAndReset atomically captures and zeroes the pulse count. Only valid
// when no pour is active — the caller is responsible for that ordering.
func (c *Counter) ReadAndReset() uint64 {
	return c.total.Swap(0)
}

// LastEdgeMillis returns the timestamp of the last accepted edge, used for
// stall detection. Negative before the first edge.
func (c *Counter) LastEdgeMillis() int64 {
	return c.lastEdge.Load()
}
