package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/pulse"
)

func newTestEngine() (*Engine, *pulse.Counter) {
	c := pulse.NewCounter()
	return NewEngine(c, Calibration{}, zap.NewNop()), c
}

// feedPulses delivers n debounce-spaced edges starting at startMillis.
func feedPulses(c *pulse.Counter, startMillis int64, n int) {
	for i := 0; i < n; i++ {
		c.OnEdge(startMillis + int64(i)*pulse.DebounceMillis)
	}
}

func TestRateFromOneSecondOfPulses(t *testing.T) {
	e, c := newTestEngine()

	e.Tick(0)
	feedPulses(c, 100, 7)
	e.Tick(1000)

	// 7 pulses/s / 7.5 pulses per (L/min) = 0.933 L/min
	assert.InDelta(t, 7.0/7.5, e.Rate(), 0.1)
}

func TestVolumeExactAtCalibrationConstant(t *testing.T) {
	assert.Equal(t, float32(1.0), LitersForPulses(450, DefaultPulsesPerLiter))
	assert.Equal(t, float32(0.0), LitersForPulses(0, DefaultPulsesPerLiter))
}

func TestVolumeAccumulatesAcrossSamples(t *testing.T) {
	e, c := newTestEngine()

	e.Tick(0)
	feedPulses(c, 0, 90)
	e.Tick(1000)
	feedPulses(c, 1000, 90)
	e.Tick(2000)

	// 180 pulses / 450 pulses per liter = 0.4 L
	assert.InDelta(t, 0.4, e.TotalVolumeLiters(), 0.0001)
	assert.InDelta(t, 400.0, e.TotalVolumeML(), 0.1)
	assert.Equal(t, uint64(180), e.PulsesSinceReset())
}

func TestNoVolumeWithoutPulses(t *testing.T) {
	e, _ := newTestEngine()

	e.Tick(0)
	e.Tick(1000)
	e.Tick(2000)

	assert.Equal(t, float32(0), e.Rate())
	assert.Equal(t, float32(0), e.TotalVolumeLiters())
}

func TestStallForcesRateToZero(t *testing.T) {
	e, c := newTestEngine()

	e.Tick(0)
	feedPulses(c, 100, 10)
	e.Tick(1000)
	assert.Greater(t, e.Rate(), float32(0))

	// No further pulses. Last edge was at 190ms, so by 2195ms the stall
	// window has elapsed and the next tick must report zero.
	e.Tick(2195)
	assert.Equal(t, float32(0), e.Rate())

	// Volume is unaffected by stall.
	assert.InDelta(t, 10.0/450.0, e.TotalVolumeLiters(), 0.0001)
}

func TestStallNotTriggeredWhileFlowing(t *testing.T) {
	e, c := newTestEngine()

	e.Tick(0)
	feedPulses(c, 500, 40)
	e.Tick(1000)

	rate := e.Rate()
	assert.Greater(t, rate, float32(0))

	// A tick shortly after the last edge must not zero the rate.
	e.Tick(1500)
	assert.Equal(t, rate, e.Rate())
}

func TestCustomCalibration(t *testing.T) {
	c := pulse.NewCounter()
	e := NewEngine(c, Calibration{PulsesPerLiter: 900, PulsesPerLPM: 15}, zap.NewNop())

	e.Tick(0)
	feedPulses(c, 0, 90)
	e.Tick(1000)

	assert.InDelta(t, 90.0/15.0, e.Rate(), 0.01)
	assert.InDelta(t, 90.0/900.0, e.TotalVolumeLiters(), 0.0001)
}

func TestResetZeroesVolumeAndCounter(t *testing.T) {
	e, c := newTestEngine()

	e.Tick(0)
	feedPulses(c, 0, 45)
	e.Tick(1000)
	assert.Greater(t, e.TotalVolumeLiters(), float32(0))

	e.Reset()
	assert.Equal(t, float32(0), e.TotalVolumeLiters())
	assert.Equal(t, float32(0), e.Rate())
	assert.Equal(t, uint64(0), c.Read())

	// A second accumulation starts from a clean baseline.
	feedPulses(c, 1100, 45)
	e.Tick(2000)
	assert.InDelta(t, 45.0/450.0, e.TotalVolumeLiters(), 0.0001)
}
