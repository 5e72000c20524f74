package pulse

import "errors"

// FakeSource is a test double that delivers scripted edges on demand.
type FakeSource struct {
	// StartError, if set, will be returned by Start.
	StartError error

	// Closed tracks if Close was called.
	Closed bool

	handler EdgeHandler
}

// NewFakeSource creates a FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Start stores the handler for later Fire calls.
func (f *FakeSource) Start(handler EdgeHandler) error {
	if f.StartError != nil {
		return f.StartError
	}
	f.handler = handler
	return nil
}

// Fire delivers one edge at the given timestamp.
func (f *FakeSource) Fire(nowMillis int64) error {
	if f.handler == nil {
		return errors.New("fake source not started")
	}
	f.handler(nowMillis)
	return nil
}

// FireSeries delivers n edges starting at startMillis with the given gap.
func (f *FakeSource) FireSeries(startMillis, gapMillis int64, n int) error {
	for i := 0; i < n; i++ {
		if err := f.Fire(startMillis + int64(i)*gapMillis); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	f.handler = nil
	return nil
}
