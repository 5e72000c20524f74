package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/flow"
	"github.com/precisionpour/pour-kiosk/internal/pulse"
)

func newTestSession() (*Session, *flow.Engine, *pulse.Counter) {
	c := pulse.NewCounter()
	e := flow.NewEngine(c, flow.Calibration{}, zap.NewNop())
	return New(e, zap.NewNop()), e, c
}

// pour simulates a flow of n pulses through one engine sample at the given
// start time.
func pour(e *flow.Engine, c *pulse.Counter, startMillis int64, n int) {
	e.Tick(startMillis)
	for i := 0; i < n; i++ {
		c.OnEdge(startMillis + int64(i)*pulse.DebounceMillis)
	}
	e.Tick(startMillis + sampleSpan(n))
}

func sampleSpan(n int) int64 {
	span := int64(n) * pulse.DebounceMillis
	if span < 1000 {
		return 1000
	}
	return span + 1000
}

func TestStartActivatesAndResets(t *testing.T) {
	s, e, c := newTestSession()

	// Stale volume from a previous run must not leak into the new pour.
	pour(e, c, 0, 90)
	require.Greater(t, e.TotalVolumeML(), float32(0))

	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))
	assert.True(t, s.Active())
	assert.Equal(t, "id1", s.ID())
	assert.Equal(t, float32(0), s.VolumeML())
	assert.Equal(t, uint64(0), c.Read())
}

func TestCapAndCostAtAuthorizedVolume(t *testing.T) {
	s, e, c := newTestSession()
	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))

	// 500 mL at 450 pulses/L = 225 pulses.
	pour(e, c, 0, 225)

	assert.True(t, s.IsCapReached())
	assert.InDelta(t, 500.0, s.VolumeML(), 1.0)
	assert.InDelta(t, 2.50, s.CurrentCost(), 0.01)
}

func TestCapNotReachedBelowMax(t *testing.T) {
	s, e, c := newTestSession()
	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))

	pour(e, c, 0, 100) // ~222 mL
	assert.False(t, s.IsCapReached())
}

func TestCapFalseWhenInactive(t *testing.T) {
	s, e, c := newTestSession()
	pour(e, c, 0, 500)
	assert.False(t, s.IsCapReached())
}

func TestValidationRejections(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		costPerML float32
		maxML     int32
		currency  string
		field     string
	}{
		{"empty id", "", 0.005, 500, "GBP", "id"},
		{"id too long", strings.Repeat("x", 129), 0.005, 500, "GBP", "id"},
		{"zero cost", "id1", 0, 500, "GBP", "cost_per_ml"},
		{"negative cost", "id1", -1, 500, "GBP", "cost_per_ml"},
		{"cost too high", "id1", 1000.5, 500, "GBP", "cost_per_ml"},
		{"zero max", "id1", 0.005, 0, "GBP", "max_ml"},
		{"negative max", "id1", 0.005, -10, "GBP", "max_ml"},
		{"max too high", "id1", 0.005, 100001, "GBP", "max_ml"},
		{"bad currency", "id1", 0.005, 500, "EUR", "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestSession()
			err := s.Start(tt.id, tt.costPerML, tt.maxML, tt.currency)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.False(t, s.Active(), "failed Start must leave session inactive")
		})
	}
}

func TestValidationBoundaryValues(t *testing.T) {
	s, _, _ := newTestSession()
	assert.NoError(t, s.Start(strings.Repeat("x", 128), 1000, 100000, "usd"))
}

func TestValidationFailureLeavesPriorStateUntouched(t *testing.T) {
	s, e, c := newTestSession()
	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))
	pour(e, c, 0, 100)
	volume := s.VolumeML()

	require.Error(t, s.Start("", 0.005, 500, "GBP"))

	assert.True(t, s.Active())
	assert.Equal(t, "id1", s.ID())
	assert.Equal(t, volume, s.VolumeML(), "rejected Start must not reset volume")
}

func TestUpdateParamsKeepsProgress(t *testing.T) {
	s, e, c := newTestSession()
	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))
	pour(e, c, 0, 100)
	volume := s.VolumeML()
	require.Greater(t, volume, float32(0))

	require.NoError(t, s.UpdateParams("id1", 0.01, 600, "GBP"))

	assert.Equal(t, volume, s.VolumeML(), "UpdateParams must not reset volume")
	assert.Equal(t, float32(0.01), s.CostPerML())
	assert.Equal(t, int32(600), s.MaxML())
	assert.InDelta(t, volume*0.01, s.CurrentCost(), 0.001)
}

func TestFinishSnapshotsAndClears(t *testing.T) {
	s, e, c := newTestSession()
	require.NoError(t, s.Start("id1", 0.005, 500, "GBP"))
	pour(e, c, 0, 225)

	snap := s.Finish()

	assert.Equal(t, "id1", snap.ID)
	assert.InDelta(t, 500.0, snap.VolumeML, 1.0)
	assert.InDelta(t, 2.50, snap.Cost, 0.01)
	assert.Equal(t, CurrencyGBP, snap.Currency)

	assert.False(t, s.Active())
	assert.Empty(t, s.ID())
	assert.Equal(t, float32(0), s.CostPerML())
}

func TestStartFinishStartRoundTrip(t *testing.T) {
	s, e, c := newTestSession()

	require.NoError(t, s.Start("pour-1", 0.005, 500, "GBP"))
	pour(e, c, 0, 225)
	first := s.Finish()
	assert.InDelta(t, 500.0, first.VolumeML, 1.0)

	// Second pour accumulates independently of the first.
	require.NoError(t, s.Start("pour-2", 0.01, 300, "USD"))
	assert.Equal(t, float32(0), s.VolumeML())
	pour(e, c, 10000, 90)
	second := s.Finish()
	assert.InDelta(t, 200.0, second.VolumeML, 1.0)
	assert.InDelta(t, 2.0, second.Cost, 0.05)
	assert.Equal(t, CurrencyUSD, second.Currency)
}

func TestCurrencyParsing(t *testing.T) {
	for in, want := range map[string]Currency{
		"GBP": CurrencyGBP,
		"gbp": CurrencyGBP,
		"USD": CurrencyUSD,
		"usd": CurrencyUSD,
		"":    CurrencyNone,
	} {
		got, err := ParseCurrency(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCurrency("EUR")
	assert.Error(t, err)
}

func TestCurrencyDisplayDefaultsToGBP(t *testing.T) {
	assert.Equal(t, "GBP", CurrencyNone.Display())
	assert.Equal(t, "£", CurrencyNone.Symbol())
	assert.Equal(t, "$", CurrencyUSD.Symbol())
	assert.Equal(t, "£", CurrencyGBP.Symbol())
}
