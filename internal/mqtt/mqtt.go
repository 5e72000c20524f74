// Package mqtt connects the kiosk to its broker: pour lifecycle and system
// events go out, paid commands come in. Publishing is abstracted behind
// Publisher so the rest of the code can be tested against a fake.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topics holds the per-device topic set, derived from the configured prefix
// and the device id.
type Topics struct {
	// Commands receives paid authorization commands from the payment backend.
	Commands string

	// Events carries pour lifecycle events.
	Events string

	// System carries system lifecycle events (startup, shutdown).
	System string
}

// NewTopics builds the topic set for a device.
func NewTopics(prefix, deviceID string) Topics {
	base := prefix + "/" + deviceID
	return Topics{
		Commands: base + "/commands/paid",
		Events:   base + "/events",
		System:   base + "/system",
	}
}

// CommandHandler receives raw paid command payloads from the broker, on the
// client's network goroutine. Implementations must not block.
type CommandHandler func(raw []byte)

// Publisher publishes kiosk events.
type Publisher interface {
	// PublishPour sends a pour lifecycle event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPour(event PourEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports link state for status display.
type ConnectionStatus interface {
	IsConnected() bool
	SignalStrength() int
	HasRecentActivity() bool
}

// PourEvent represents a pour lifecycle event.
type PourEvent struct {
	Timestamp time.Time
	Event     string // "POUR_STARTED", "POUR_FINISHED", "POUR_CANCELLED"
	PourID    string
	VolumeML  float32
	Cost      float32
	Currency  string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for pour events.
type Payload struct {
	Pour PourPayload `json:"pour"`
}

// PourPayload contains the pour event details.
type PourPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	ID        string  `json:"id"`
	VolumeML  float32 `json:"volume_ml"`
	Cost      float32 `json:"cost"`
	Currency  string  `json:"currency"`
}

// FormatPourPayload creates the JSON payload for a pour event.
func FormatPourPayload(event PourEvent) ([]byte, error) {
	payload := Payload{
		Pour: PourPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			ID:        event.PourID,
			VolumeML:  event.VolumeML,
			Cost:      event.Cost,
			Currency:  event.Currency,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status
// snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
