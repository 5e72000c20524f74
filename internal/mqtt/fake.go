package mqtt

// FakeClient records published events for test assertions and lets tests
// drive the inbound command path and the connection status.
type FakeClient struct {
	// PourEvents contains all pour events that were published.
	PourEvents []PourEvent

	// PourPayloads contains the JSON payloads that were published.
	PourPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishPourError, if set, will be returned by PublishPour.
	PublishPourError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// RSSI controls the return value of SignalStrength.
	RSSI int

	// Activity controls the return value of HasRecentActivity.
	Activity bool

	// OnCommand, if set, receives payloads passed to InjectCommand.
	OnCommand CommandHandler
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// PublishPour records the pour event.
func (f *FakeClient) PublishPour(event PourEvent) error {
	if f.PublishPourError != nil {
		return f.PublishPourError
	}

	f.PourEvents = append(f.PourEvents, event)

	payload, err := FormatPourPayload(event)
	if err != nil {
		return err
	}
	f.PourPayloads = append(f.PourPayloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// InjectCommand delivers a raw paid command payload to the registered
// handler, as the real client would on message receipt.
func (f *FakeClient) InjectCommand(raw []byte) {
	if f.OnCommand != nil {
		f.OnCommand(raw)
	}
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

// SignalStrength returns the configured RSSI.
func (f *FakeClient) SignalStrength() int {
	return f.RSSI
}

// HasRecentActivity returns the configured activity flag.
func (f *FakeClient) HasRecentActivity() bool {
	return f.Activity
}

// Reset clears recorded events.
func (f *FakeClient) Reset() {
	f.PourEvents = nil
	f.PourPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishPourError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.RSSI = 0
	f.Activity = false
}
