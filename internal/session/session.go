// Package session holds the billing state for one pour: authorization
// parameters, running cost, and the cap-reached predicate. The session
// record is created once and reused across pours; fields are cleared when a
// pour ends.
package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/flow"
)

// Authorization field limits. These mirror the ingress boundary checks on
// purpose — malformed input must not reach an active session even if the
// transport-side validation regresses.
const (
	MaxIDLength  = 128
	MaxCostPerML = 1000.0
	MaxVolumeML  = 100000
)

// ValidationError reports a rejected authorization field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Snapshot is the final reading taken by Finish.
type Snapshot struct {
	ID       string
	VolumeML float32
	Cost     float32
	Currency Currency
}

// Session derives running cost and the cap predicate from the flow engine.
// Owned by the screen state machine; not safe for concurrent use.
type Session struct {
	engine *flow.Engine
	logger *zap.Logger

	active    bool
	id        string
	costPerML float32
	maxML     int32
	currency  Currency
}

// New creates an inactive session reading volume from the given engine.
func New(engine *flow.Engine, logger *zap.Logger) *Session {
	return &Session{engine: engine, logger: logger}
}

func validateParams(id string, costPerML float32, maxML int32) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if len(id) > MaxIDLength {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("longer than %d characters", MaxIDLength)}
	}
	if costPerML <= 0 || costPerML > MaxCostPerML {
		return &ValidationError{Field: "cost_per_ml", Reason: fmt.Sprintf("must be in (0, %g]", float32(MaxCostPerML))}
	}
	if maxML <= 0 || maxML > MaxVolumeML {
		return &ValidationError{Field: "max_ml", Reason: fmt.Sprintf("must be in (0, %d]", MaxVolumeML)}
	}
	return nil
}

// Start validates the authorization, resets the flow engine, and activates
// the session. On a validation error the prior state is left untouched.
func (s *Session) Start(id string, costPerML float32, maxML int32, currency string) error {
	cur, err := ParseCurrency(currency)
	if err != nil {
		return err
	}
	if err := validateParams(id, costPerML, maxML); err != nil {
		return err
	}

	// start() always resets so a cancelled previous pour cannot leak volume
	// into this one's baseline.
	s.engine.Reset()

	s.active = true
	s.id = id
	s.costPerML = costPerML
	s.maxML = maxML
	s.currency = cur

	if cur == CurrencyNone {
		s.logger.Info("no currency in authorization, defaulting to GBP", zap.String("pour_id", id))
	}
	s.logger.Info("pour session started",
		zap.String("pour_id", id),
		zap.Float32("cost_per_ml", costPerML),
		zap.Int32("max_ml", maxML),
		zap.String("currency", cur.Display()))
	return nil
}

// UpdateParams applies a refinement of an in-flight pour's parameters (e.g.
// a corrected price) without losing accumulated volume. Same validation as
// Start; no engine reset.
func (s *Session) UpdateParams(id string, costPerML float32, maxML int32, currency string) error {
	cur, err := ParseCurrency(currency)
	if err != nil {
		return err
	}
	if err := validateParams(id, costPerML, maxML); err != nil {
		return err
	}

	s.id = id
	s.costPerML = costPerML
	s.maxML = maxML
	s.currency = cur
	s.active = true

	s.logger.Info("pour session parameters updated",
		zap.String("pour_id", id),
		zap.Float32("cost_per_ml", costPerML),
		zap.Int32("max_ml", maxML),
		zap.String("currency", cur.Display()))
	return nil
}

// Active reports whether a pour is in progress.
func (s *Session) Active() bool { return s.active }

// ID returns the authorization's unique transaction id.
func (s *Session) ID() string { return s.id }

// CostPerML returns the authorized price per milliliter.
func (s *Session) CostPerML() float32 { return s.costPerML }

// MaxML returns the authorized volume cap.
func (s *Session) MaxML() int32 { return s.maxML }

// Currency returns the authorization currency (CurrencyNone if absent).
func (s *Session) Currency() Currency { return s.currency }

// VolumeML returns the volume dispensed so far in this pour.
func (s *Session) VolumeML() float32 {
	return s.engine.TotalVolumeML()
}

// CurrentCost returns the running cost: volume_ml * cost_per_ml.
func (s *Session) CurrentCost() float32 {
	return s.engine.TotalVolumeML() * s.costPerML
}

// IsCapReached reports whether the dispensed volume has reached the
// authorized maximum. Always false for an inactive session.
func (s *Session) IsCapReached() bool {
	return s.active && s.engine.TotalVolumeML() >= float32(s.maxML)
}

// Finish snapshots the final readings and deactivates the session. Call
// exactly once per pour, before the engine is reset for the next one — the
// final readings are lost otherwise.
func (s *Session) Finish() Snapshot {
	snap := Snapshot{
		ID:       s.id,
		VolumeML: s.engine.TotalVolumeML(),
		Cost:     s.engine.TotalVolumeML() * s.costPerML,
		Currency: s.currency,
	}

	s.active = false
	s.id = ""
	s.costPerML = 0
	s.maxML = 0
	s.currency = CurrencyNone

	s.logger.Info("pour session finished",
		zap.String("pour_id", snap.ID),
		zap.Float32("final_volume_ml", snap.VolumeML),
		zap.Float32("final_cost", snap.Cost),
		zap.String("currency", snap.Currency.Display()))
	return snap
}
