package ingress

import "sync"

// Fault policy defaults: this many consecutive failures inside the window
// marks the device as wedged and triggers the restart-of-last-resort.
const (
	DefaultFaultThreshold    = 10
	DefaultFaultWindowMillis = 60_000
)

// FaultWindow counts consecutive errors over a bounded time window. An
// unattended kiosk that keeps rejecting commands (or keeps losing its
// transport) is better restarted than left silently wedged, so crossing the
// threshold reports restart-required to whoever polls Exceeded.
//
// Safe for concurrent use: Record runs on the transport goroutine while the
// main loop polls Exceeded.
type FaultWindow struct {
	threshold    int
	windowMillis int64

	mu          sync.Mutex
	count       int
	firstMillis int64
}

// NewFaultWindow creates a FaultWindow. Non-positive arguments select the
// defaults.
func NewFaultWindow(threshold int, windowMillis int64) *FaultWindow {
	if threshold <= 0 {
		threshold = DefaultFaultThreshold
	}
	if windowMillis <= 0 {
		windowMillis = DefaultFaultWindowMillis
	}
	return &FaultWindow{threshold: threshold, windowMillis: windowMillis}
}

// Record counts one failure at the given time. Failures older than the
// window no longer count toward the threshold: a fresh failure after a quiet
// period restarts the run.
func (f *FaultWindow) Record(nowMillis int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == 0 || nowMillis-f.firstMillis > f.windowMillis {
		f.count = 1
		f.firstMillis = nowMillis
		return
	}
	f.count++
}

// Succeed resets the consecutive-failure count.
func (f *FaultWindow) Succeed() {
	f.mu.Lock()
	f.count = 0
	f.mu.Unlock()
}

// Exceeded reports whether the consecutive-failure threshold has been
// crossed within the window.
func (f *FaultWindow) Exceeded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count >= f.threshold
}

// Count returns the current consecutive-failure count, for status display.
func (f *FaultWindow) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
