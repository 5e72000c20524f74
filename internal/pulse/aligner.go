package pulse

import "sync/atomic"

// Aligner maps edge timestamps from the event source's clock onto the
// daemon's monotonic clock. The two clocks advance at the same rate but
// have different epochs (kernel boot vs process start); the offset is
// captured on the first edge and applied to every one after.
type Aligner struct {
	now    func() int64
	offset atomic.Int64
	set    atomic.Bool
}

// NewAligner creates an Aligner targeting the given monotonic millisecond
// clock.
func NewAligner(now func() int64) *Aligner {
	return &Aligner{now: now}
}

// Align converts a source timestamp to daemon-clock milliseconds.
func (a *Aligner) Align(tsMillis int64) int64 {
	if a.set.CompareAndSwap(false, true) {
		a.offset.Store(tsMillis - a.now())
	}
	return tsMillis - a.offset.Load()
}
