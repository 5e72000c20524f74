// Package status provides a thread-safe status tracker for the kiosk
// daemon. It is read by HTTP handlers and serialized into MQTT system
// events.
package status

import (
	"sync"
	"time"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	SSID       string
	RSSI       int
	SignalBars int
}

// Config contains daemon configuration for display.
type Config struct {
	DeviceID       string
	TickMs         int64
	Broker         string
	HTTPPort       string
	PayURL         string
	PulsesPerLiter float32
}

// PourInfo is the currently active pour, if any.
type PourInfo struct {
	Active       bool
	ID           string
	VolumeML     float32
	RateMLPerMin float32
	Cost         float32
	Currency     string
}

// Counts tallies pour lifecycle events since startup.
type Counts struct {
	Started   int
	Finished  int
	Cancelled int
	Rejected  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Screen         string
	Pour           PourInfo
	Counts         Counts
	LifetimePulses uint64
	FaultCount     int
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the screen state, active pour, event counts, and lifetime
// pulse total. Called from runLoop on every tick.
func (t *Tracker) Update(screen string, pour PourInfo, counts Counts, lifetimePulses uint64) {
	t.mu.Lock()
	t.snap.Screen = screen
	t.snap.Pour = pour
	t.snap.Counts = counts
	t.snap.LifetimePulses = lifetimePulses
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetFaultCount sets the current consecutive command-fault count.
func (t *Tracker) SetFaultCount(count int) {
	t.mu.Lock()
	t.snap.FaultCount = count
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
