// Package ingress validates and decodes externally delivered "paid"
// authorization commands into pour activation requests. It is a pure
// adapter boundary: it never touches session or screen state, it only hands
// validated commands to the screen state machine.
package ingress

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Field limits for the paid command payload. These intentionally duplicate
// the session-side checks so malformed external input is rejected at the
// transport boundary and never reaches the session object.
const (
	maxIDLength  = 128
	maxCostPerML = 1000.0
	maxVolumeML  = 100000
)

// Command is a validated pour authorization.
type Command struct {
	ID        string  `json:"id"`
	CostPerML float32 `json:"cost_per_ml"`
	MaxML     int32   `json:"max_ml"`
	Currency  string  `json:"currency,omitempty"`
}

// ValidationError reports a rejected command field. Field is "payload" for
// payloads that did not parse at all.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Decoder parses paid command payloads and tracks consecutive failures in
// the given fault window (which may be nil).
type Decoder struct {
	logger *zap.Logger
	faults *FaultWindow
}

// NewDecoder creates a Decoder. faults may be nil to disable fault counting.
func NewDecoder(faults *FaultWindow, logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger, faults: faults}
}

// DecodeAndValidate parses a raw paid command payload. On failure it returns
// a structured error and records a fault; it takes no state machine action
// itself. A success resets the consecutive-fault count.
func (d *Decoder) DecodeAndValidate(raw []byte, nowMillis int64) (Command, error) {
	cmd, err := decode(raw)
	if err != nil {
		if d.faults != nil {
			d.faults.Record(nowMillis)
		}
		d.logger.Warn("rejected paid command",
			zap.Error(err),
			zap.Int("payload_bytes", len(raw)))
		return Command{}, err
	}

	if d.faults != nil {
		d.faults.Succeed()
	}
	d.logger.Info("paid command accepted",
		zap.String("pour_id", cmd.ID),
		zap.Float32("cost_per_ml", cmd.CostPerML),
		zap.Int32("max_ml", cmd.MaxML),
		zap.String("currency", cmd.Currency))
	return cmd, nil
}

func decode(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, &ValidationError{Field: "payload", Reason: err.Error()}
	}

	if cmd.ID == "" {
		return Command{}, &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if len(cmd.ID) > maxIDLength {
		return Command{}, &ValidationError{Field: "id", Reason: fmt.Sprintf("longer than %d characters", maxIDLength)}
	}
	if cmd.CostPerML <= 0 || cmd.CostPerML > maxCostPerML {
		return Command{}, &ValidationError{Field: "cost_per_ml", Reason: fmt.Sprintf("must be in (0, %g]", float32(maxCostPerML))}
	}
	if cmd.MaxML <= 0 || cmd.MaxML > maxVolumeML {
		return Command{}, &ValidationError{Field: "max_ml", Reason: fmt.Sprintf("must be in (0, %d]", maxVolumeML)}
	}
	switch strings.ToUpper(cmd.Currency) {
	case "", "GBP", "USD":
	default:
		return Command{}, &ValidationError{Field: "currency", Reason: "must be GBP or USD"}
	}
	return cmd, nil
}
