package screen

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/flow"
	"github.com/precisionpour/pour-kiosk/internal/ingress"
	"github.com/precisionpour/pour-kiosk/internal/pulse"
	"github.com/precisionpour/pour-kiosk/internal/session"
)

type fixture struct {
	m *Manager
	p *FakePresenter
	c *pulse.Counter
	e *flow.Engine
	s *session.Session
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	p := NewFakePresenter()
	c := pulse.NewCounter()
	e := flow.NewEngine(c, flow.Calibration{}, zap.NewNop())
	s := session.New(e, zap.NewNop())
	m := NewManager(p, nil, e, s, nil, cfg, zap.NewNop())
	require.NoError(t, m.Start())
	e.Tick(0) // establish the sampling baseline, as the main loop does
	return &fixture{m: m, p: p, c: c, e: e, s: s}
}

// boot moves the fixture onto the payment screen.
func (f *fixture) boot(nowMillis int64) {
	f.m.BootComplete()
	f.m.Update(nowMillis)
}

// pour delivers n debounce-spaced pulses starting at startMillis and ticks
// the engine far enough past them to take a sample.
func (f *fixture) pour(startMillis int64, n int) {
	for i := 0; i < n; i++ {
		f.c.OnEdge(startMillis + int64(i)*pulse.DebounceMillis)
	}
	f.e.Tick(startMillis + int64(n)*pulse.DebounceMillis + 1000)
}

func testCommand() ingress.Command {
	return ingress.Command{ID: "txn-1", CostPerML: 0.005, MaxML: 500, Currency: "GBP"}
}

func TestStartShowsSplash(t *testing.T) {
	f := newFixture(t, Config{})

	assert.Equal(t, StateSplash, f.m.State())
	assert.Equal(t, 1, f.p.LiveCount(StateSplash))
}

func TestBootCompleteShowsPaymentScreen(t *testing.T) {
	f := newFixture(t, Config{PayURL: "https://precisionpour.co.uk/pay"})
	f.boot(0)

	assert.Equal(t, StateAwaitingPayment, f.m.State())
	assert.Equal(t, 0, f.p.LiveCount(StateSplash))
	assert.Equal(t, 1, f.p.LiveCount(StateAwaitingPayment))
	assert.Equal(t, 1, f.p.LiveCount(StateShared))
	assert.Equal(t, "https://precisionpour.co.uk/pay", f.p.LastParams[StateAwaitingPayment].PayURL)
}

func TestDuplicateBootCompleteIsNoOp(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)

	before := len(f.p.Constructed)
	f.m.BootComplete()
	f.m.Update(100)

	// No teardown, no reconstruction.
	assert.Equal(t, before, len(f.p.Constructed))
	assert.Equal(t, 1, f.p.LiveCount(StateAwaitingPayment))
	assert.Equal(t, 1, f.p.ConstructCount(StateShared))
}

func TestCommandStartsPour(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)

	f.m.HandleCommand(testCommand())
	notes := f.m.Update(100)

	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourStarted, notes[0].Kind)
	assert.Equal(t, "txn-1", notes[0].PourID)
	assert.Equal(t, "GBP", notes[0].Currency)

	assert.Equal(t, StatePouring, f.m.State())
	assert.True(t, f.s.Active())
	assert.Equal(t, 0, f.p.LiveCount(StateAwaitingPayment))
	assert.Equal(t, 1, f.p.LiveCount(StatePouring))
	assert.Equal(t, 1, f.p.LiveCount(StateShared))

	params := f.p.LastParams[StatePouring]
	assert.Equal(t, "txn-1", params.PourID)
	assert.Equal(t, int32(500), params.MaxML)
	assert.Equal(t, "£", params.CurrencySymbol)
}

func TestInvalidCommandLeavesPaymentScreen(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)

	bad := testCommand()
	bad.CostPerML = 0
	f.m.HandleCommand(bad)
	notes := f.m.Update(100)

	assert.Empty(t, notes)
	assert.Equal(t, StateAwaitingPayment, f.m.State())
	assert.False(t, f.s.Active())
	// The speculatively constructed pouring screen was torn down again.
	assert.Equal(t, 0, f.p.LiveCount(StatePouring))
}

func TestPouringMetricsRefresh(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)

	f.pour(200, 90) // 200 mL
	h := f.p.HandleFor(StatePouring)
	f.m.Update(2200)

	m := f.p.LastMetrics[h]
	assert.InDelta(t, 200.0, m.VolumeML, 0.1)
	assert.InDelta(t, 1.0, m.Cost, 0.001)
	assert.False(t, m.CapReached)
	assert.Equal(t, "£", m.CurrencySymbol)
}

func TestCapReachedFinishesPour(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)

	f.pour(200, 225) // 500 mL, exactly the cap
	notes := f.m.Update(4000)

	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourFinished, notes[0].Kind)
	assert.Equal(t, "txn-1", notes[0].PourID)
	assert.InDelta(t, 500.0, notes[0].VolumeML, 0.1)
	assert.InDelta(t, 2.5, notes[0].Cost, 0.001)

	assert.Equal(t, StateFinished, f.m.State())
	assert.False(t, f.s.Active())
	assert.Equal(t, 0, f.p.LiveCount(StatePouring))

	params := f.p.LastParams[StateFinished]
	assert.InDelta(t, 500.0, params.FinalVolumeML, 0.1)
	assert.InDelta(t, 2.5, params.FinalCost, 0.001)
}

func TestFinishedTimesOutToPaymentScreen(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 225)
	f.m.Update(4000)
	require.Equal(t, StateFinished, f.m.State())

	// Countdown still running just before the timeout.
	f.m.Update(4000 + DefaultFinishedTimeoutMillis - 1)
	assert.Equal(t, StateFinished, f.m.State())

	f.m.Update(4000 + DefaultFinishedTimeoutMillis)
	assert.Equal(t, StateAwaitingPayment, f.m.State())
	assert.Equal(t, 0, f.p.LiveCount(StateFinished))
	assert.Equal(t, 1, f.p.LiveCount(StateAwaitingPayment))
}

func TestTapCancelsPour(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 90)

	f.m.Tap()
	notes := f.m.Update(2200)

	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourCancelled, notes[0].Kind)
	assert.Equal(t, "txn-1", notes[0].PourID)
	assert.InDelta(t, 200.0, notes[0].VolumeML, 0.1)

	assert.Equal(t, StateAwaitingPayment, f.m.State())
	assert.False(t, f.s.Active())
}

func TestConstructionFailureKeepsCurrentScreen(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.p.ConstructErrors[StatePouring] = errors.New("panel fault")

	f.m.HandleCommand(testCommand())
	notes := f.m.Update(100)

	assert.Empty(t, notes)
	assert.Equal(t, StateAwaitingPayment, f.m.State())
	assert.Equal(t, 1, f.p.LiveCount(StateAwaitingPayment))
	assert.False(t, f.s.Active())

	// Once the presenter recovers the same command goes through.
	delete(f.p.ConstructErrors, StatePouring)
	f.m.HandleCommand(testCommand())
	notes = f.m.Update(200)
	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourStarted, notes[0].Kind)
}

func TestConflictingCommandIgnoredWhilePouring(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 90)

	other := testCommand()
	other.ID = "txn-2"
	f.m.HandleCommand(other)
	notes := f.m.Update(2200)

	assert.Empty(t, notes)
	assert.Equal(t, "txn-1", f.s.ID())
	assert.InDelta(t, 200.0, f.s.VolumeML(), 0.1)
}

func TestSameCommandRefinesActivePour(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 90)

	refined := testCommand()
	refined.MaxML = 1000
	f.m.HandleCommand(refined)
	f.m.Update(2200)

	assert.Equal(t, int32(1000), f.s.MaxML())
	// Accumulated volume survives the refinement.
	assert.InDelta(t, 200.0, f.s.VolumeML(), 0.1)
	assert.Equal(t, StatePouring, f.m.State())
}

func TestCommandIgnoredDuringSplashAndFinished(t *testing.T) {
	f := newFixture(t, Config{})

	f.m.HandleCommand(testCommand())
	notes := f.m.Update(0)
	assert.Empty(t, notes)
	assert.Equal(t, StateSplash, f.m.State())

	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 225)
	f.m.Update(4000)
	require.Equal(t, StateFinished, f.m.State())

	f.m.HandleCommand(testCommand())
	notes = f.m.Update(4100)
	assert.Empty(t, notes)
	assert.Equal(t, StateFinished, f.m.State())
}

func TestTapIgnoredWithoutDebugOption(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)

	f.m.Tap()
	notes := f.m.Update(100)

	assert.Empty(t, notes)
	assert.Equal(t, StateAwaitingPayment, f.m.State())
}

func TestDebugTapStartsTestPour(t *testing.T) {
	f := newFixture(t, Config{Debug: DebugOptions{TapToPour: true}})
	f.boot(0)

	f.m.Tap()
	notes := f.m.Update(100)

	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourStarted, notes[0].Kind)
	assert.True(t, strings.HasPrefix(notes[0].PourID, "test-"))
	assert.Equal(t, StatePouring, f.m.State())
	assert.Equal(t, testPourMaxML, f.s.MaxML())
}

func TestDebugTapFinishesInsteadOfCancelling(t *testing.T) {
	f := newFixture(t, Config{Debug: DebugOptions{TapToFinish: true}})
	f.boot(0)
	f.m.HandleCommand(testCommand())
	f.m.Update(100)
	f.pour(200, 90)

	f.m.Tap()
	notes := f.m.Update(2200)

	require.Len(t, notes, 1)
	assert.Equal(t, NotifyPourFinished, notes[0].Kind)
	assert.Equal(t, StateFinished, f.m.State())
}

func TestFaultThresholdRequestsRestart(t *testing.T) {
	fw := ingress.NewFaultWindow(2, 60_000)
	p := NewFakePresenter()
	c := pulse.NewCounter()
	e := flow.NewEngine(c, flow.Calibration{}, zap.NewNop())
	s := session.New(e, zap.NewNop())
	m := NewManager(p, nil, e, s, fw, Config{}, zap.NewNop())
	require.NoError(t, m.Start())

	m.Update(0)
	assert.False(t, m.RestartRequested())

	fw.Record(100)
	fw.Record(200)
	m.Update(300)
	assert.True(t, m.RestartRequested())
}

func TestSharedIconsGetConnectivityMetrics(t *testing.T) {
	conn := &FakeConnStatus{Connected: true, RSSI: -55, Activity: true}
	p := NewFakePresenter()
	c := pulse.NewCounter()
	e := flow.NewEngine(c, flow.Calibration{}, zap.NewNop())
	s := session.New(e, zap.NewNop())
	m := NewManager(p, conn, e, s, nil, Config{}, zap.NewNop())
	require.NoError(t, m.Start())
	m.BootComplete()
	m.Update(0)

	h := p.HandleFor(StateShared)
	require.NotEqual(t, NoHandle, h)

	metrics := p.LastMetrics[h]
	assert.True(t, metrics.Connected)
	assert.Equal(t, 3, metrics.SignalBars)
	assert.True(t, metrics.DataActivity)
}

func TestCloseTearsDownEverything(t *testing.T) {
	f := newFixture(t, Config{})
	f.boot(0)

	f.m.Close()
	assert.Empty(t, f.p.Live())
}

func TestSignalBars(t *testing.T) {
	tests := []struct {
		connected bool
		rssi      int
		bars      int
	}{
		{false, -40, 0},
		{true, 0, 0},
		{true, -45, 4},
		{true, -50, 3},
		{true, -55, 3},
		{true, -65, 2},
		{true, -75, 1},
		{true, -85, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bars, SignalBars(tt.connected, tt.rssi), "rssi %d", tt.rssi)
	}
}
