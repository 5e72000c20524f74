// Package flow derives flow rate and dispensed volume from the pulse
// accumulator. It is pure logic: no hardware, no goroutines, time always
// injected as monotonic milliseconds.
package flow

import (
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/pulse"
)

// YF-S201 defaults. Flow Rate (L/min) = Pulse Frequency (Hz) / 7.5,
// and 450 pulses pass per liter dispensed. Override per sensor datasheet.
const (
	DefaultPulsesPerLiter float32 = 450
	DefaultPulsesPerLPM   float32 = 7.5
)

const (
	// sampleIntervalMillis is the rate/volume calculation cadence.
	sampleIntervalMillis = 1000

	// stallTimeoutMillis forces the rate to zero when no pulse has arrived
	// for this long. Checked on every Tick, not just on sample boundaries.
	stallTimeoutMillis = 2000
)

// Calibration holds the sensor-specific conversion constants. The zero value
// selects the YF-S201 defaults.
type Calibration struct {
	PulsesPerLiter float32
	PulsesPerLPM   float32
}

// Engine samples the pulse counter once per second, differentiating the
// count into an instantaneous flow rate and integrating it into total
// dispensed volume. All arithmetic is single-precision; the pulse count
// since reset stays authoritative for volume, so repeated per-tick addition
// cannot drift.
type Engine struct {
	counter *pulse.Counter
	cal     Calibration
	logger  *zap.Logger

	started          bool
	lastSampleMillis int64
	lastSamplePulses uint64
	pulsesSinceReset uint64
	rate             float32
	volumeLiters     float32
}

// NewEngine creates an Engine reading from the given counter. Zero
// calibration fields fall back to the YF-S201 defaults.
func NewEngine(counter *pulse.Counter, cal Calibration, logger *zap.Logger) *Engine {
	if cal.PulsesPerLiter <= 0 {
		cal.PulsesPerLiter = DefaultPulsesPerLiter
	}
	if cal.PulsesPerLPM <= 0 {
		cal.PulsesPerLPM = DefaultPulsesPerLPM
	}
	return &Engine{counter: counter, cal: cal, logger: logger}
}

// Tick advances the engine. Call once per main-loop iteration; the rate and
// volume recalculation runs when a full sample interval has elapsed, while
// stall detection runs on every call.
func (e *Engine) Tick(nowMillis int64) {
	if !e.started {
		e.started = true
		e.lastSampleMillis = nowMillis
		e.lastSamplePulses = e.counter.Read()
	}

	if nowMillis-e.lastSampleMillis >= sampleIntervalMillis {
		current := e.counter.Read()
		delta := current - e.lastSamplePulses
		elapsedSeconds := float32(nowMillis-e.lastSampleMillis) / 1000.0

		frequencyHz := float32(delta) / elapsedSeconds
		e.rate = frequencyHz / e.cal.PulsesPerLPM

		e.pulsesSinceReset += delta
		e.volumeLiters = LitersForPulses(e.pulsesSinceReset, e.cal.PulsesPerLiter)

		e.lastSamplePulses = current
		e.lastSampleMillis = nowMillis

		if e.rate > 0.1 {
			e.logger.Debug("flow sample",
				zap.Float32("rate_lpm", e.rate),
				zap.Float32("total_liters", e.volumeLiters),
				zap.Uint64("pulses", e.pulsesSinceReset))
		}
	}

	// Stall rule: no pulses for 2s means the flow has stopped, regardless of
	// where we are in the sampling interval.
	if e.rate > 0 && nowMillis-e.counter.LastEdgeMillis() > stallTimeoutMillis {
		e.rate = 0
	}
}

// Rate returns the current flow rate in liters per minute.
func (e *Engine) Rate() float32 {
	return e.rate
}

// TotalVolumeLiters returns the volume dispensed since the last reset.
func (e *Engine) TotalVolumeLiters() float32 {
	return e.volumeLiters
}

// TotalVolumeML returns the volume dispensed since the last reset, in
// milliliters.
func (e *Engine) TotalVolumeML() float32 {
	return e.volumeLiters * 1000.0
}

// PulsesSinceReset returns the authoritative pulse total behind the volume
// figure, for diagnostics.
func (e *Engine) PulsesSinceReset() uint64 {
	return e.pulsesSinceReset
}

// Reset zeroes the accumulated volume and delegates a pulse-count reset to
// the counter. Only valid when no pour is active — the engine does not check
// session state itself.
func (e *Engine) Reset() {
	e.counter.ReadAndReset()
	e.lastSamplePulses = 0
	e.pulsesSinceReset = 0
	e.volumeLiters = 0
	e.rate = 0
	e.logger.Info("volume counter reset")
}

// LitersForPulses converts a pulse count into liters using the given
// calibration constant.
func LitersForPulses(pulses uint64, pulsesPerLiter float32) float32 {
	return float32(pulses) / pulsesPerLiter
}
