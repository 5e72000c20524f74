package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Screen         string       `json:"screen"`
	Pour           *PourJSON    `json:"pour,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"pour_counts"`
	LifetimePulses uint64       `json:"lifetime_pulses"`
	FaultCount     int          `json:"fault_count"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// PourJSON is the JSON representation of the active pour.
type PourJSON struct {
	ID           string  `json:"id"`
	VolumeML     float32 `json:"volume_ml"`
	RateMLPerMin float32 `json:"rate_ml_min"`
	Cost         float32 `json:"cost"`
	Currency     string  `json:"currency"`
}

// CountsJSON is the JSON representation of pour counts.
type CountsJSON struct {
	Started   int `json:"started"`
	Finished  int `json:"finished"`
	Cancelled int `json:"cancelled"`
	Rejected  int `json:"rejected"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	SSID       string `json:"ssid"`
	RSSI       int    `json:"rssi"`
	SignalBars int    `json:"signal_bars"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceID       string  `json:"device_id"`
	TickMs         int64   `json:"tick_ms"`
	Broker         string  `json:"broker"`
	HTTPPort       string  `json:"http_port"`
	PayURL         string  `json:"pay_url"`
	PulsesPerLiter float32 `json:"pulses_per_liter"`
}

func buildInner(snap Snapshot) StatusInner {
	screen := snap.Screen
	if screen == "" {
		screen = "UNKNOWN"
	}

	inner := StatusInner{
		Screen:         screen,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		LifetimePulses: snap.LifetimePulses,
		FaultCount:     snap.FaultCount,
		Counts: CountsJSON{
			Started:   snap.Counts.Started,
			Finished:  snap.Counts.Finished,
			Cancelled: snap.Counts.Cancelled,
			Rejected:  snap.Counts.Rejected,
		},
		Config: ConfigJSON{
			DeviceID:       snap.Config.DeviceID,
			TickMs:         snap.Config.TickMs,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
			PayURL:         snap.Config.PayURL,
			PulsesPerLiter: snap.Config.PulsesPerLiter,
		},
	}

	if snap.Pour.Active {
		inner.Pour = &PourJSON{
			ID:           snap.Pour.ID,
			VolumeML:     snap.Pour.VolumeML,
			RateMLPerMin: snap.Pour.RateMLPerMin,
			Cost:         snap.Pour.Cost,
			Currency:     snap.Pour.Currency,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			SSID:       snap.Network.SSID,
			RSSI:       snap.Network.RSSI,
			SignalBars: snap.Network.SignalBars,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
