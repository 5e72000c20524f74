package screen

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/precisionpour/pour-kiosk/internal/flow"
	"github.com/precisionpour/pour-kiosk/internal/ingress"
	"github.com/precisionpour/pour-kiosk/internal/session"
)

// DefaultFinishedTimeoutMillis is how long the Finished screen lingers
// before the kiosk returns to AwaitingPayment on its own.
const DefaultFinishedTimeoutMillis int64 = 5000

// Debug test pour parameters, used by the tap-to-pour shortcut.
const (
	testPourCostPerML float32 = 0.005
	testPourMaxML     int32   = 500
)

// DebugOptions enables bench-test shortcuts. All off by default; never
// enable on a deployed kiosk.
type DebugOptions struct {
	// TapToPour starts a synthetic pour from a tap on AwaitingPayment,
	// without a paid command.
	TapToPour bool

	// TapToFinish ends an active pour from a tap as a normal finish
	// instead of a cancellation.
	TapToFinish bool
}

// Config carries the Manager's tunables.
type Config struct {
	// PayURL is encoded into the payment QR code.
	PayURL string

	// FinishedTimeoutMillis overrides the Finished screen dwell time.
	// Non-positive selects the default.
	FinishedTimeoutMillis int64

	Debug DebugOptions
}

// NotificationKind labels a pour lifecycle event for publication.
type NotificationKind string

const (
	NotifyPourStarted   NotificationKind = "POUR_STARTED"
	NotifyPourFinished  NotificationKind = "POUR_FINISHED"
	NotifyPourCancelled NotificationKind = "POUR_CANCELLED"
)

// Notification is a pour lifecycle event produced by Update. The caller
// owns delivery; the Manager never talks to the transport itself.
type Notification struct {
	Kind     NotificationKind
	PourID   string
	VolumeML float32
	Cost     float32
	Currency string
}

type eventKind int

const (
	eventBootComplete eventKind = iota
	eventCommand
	eventTap
)

type event struct {
	kind eventKind
	cmd  ingress.Command
}

// Manager is the screen state machine. External inputs (boot completion,
// paid commands, touch taps) arrive from any goroutine and are queued;
// every state change happens inside Update, on the caller's loop
// goroutine, so there is exactly one place transitions occur.
type Manager struct {
	presenter Presenter
	conn      ConnStatus
	engine    *flow.Engine
	session   *session.Session
	faults    *ingress.FaultWindow
	logger    *zap.Logger

	payURL          string
	finishedTimeout int64
	debug           DebugOptions

	mu      sync.Mutex
	pending []event

	// Touched only from Start/Update/Close.
	state            State
	handle           Handle
	sharedHandle     Handle
	finishedAtMillis int64
	restartRequested bool
}

// NewManager creates a Manager. conn and faults may be nil.
func NewManager(presenter Presenter, conn ConnStatus, engine *flow.Engine, sess *session.Session, faults *ingress.FaultWindow, cfg Config, logger *zap.Logger) *Manager {
	timeout := cfg.FinishedTimeoutMillis
	if timeout <= 0 {
		timeout = DefaultFinishedTimeoutMillis
	}
	return &Manager{
		presenter:       presenter,
		conn:            conn,
		engine:          engine,
		session:         sess,
		faults:          faults,
		logger:          logger,
		payURL:          cfg.PayURL,
		finishedTimeout: timeout,
		debug:           cfg.Debug,
	}
}

// Start constructs the boot splash. Must be called once before Update.
func (m *Manager) Start() error {
	h, err := m.presenter.Construct(StateSplash, Params{BootStatus: "Starting..."})
	if err != nil {
		return err
	}
	m.handle = h
	m.state = StateSplash
	m.logger.Info("screen constructed", zap.String("state", string(StateSplash)))
	return nil
}

// BootStage refreshes the splash progress bar. Ignored once the splash is
// gone.
func (m *Manager) BootStage(progress int, status string) {
	if m.state != StateSplash {
		return
	}
	m.presenter.Update(m.handle, Metrics{BootProgress: progress, BootStatus: status})
	m.logger.Info("boot stage", zap.Int("progress", progress), zap.String("status", status))
}

// BootComplete queues the transition off the splash screen.
func (m *Manager) BootComplete() {
	m.enqueue(event{kind: eventBootComplete})
}

// HandleCommand queues a validated paid command. Safe from any goroutine.
func (m *Manager) HandleCommand(cmd ingress.Command) {
	m.enqueue(event{kind: eventCommand, cmd: cmd})
}

// Tap queues a touch event. Safe from any goroutine.
func (m *Manager) Tap() {
	m.enqueue(event{kind: eventTap})
}

func (m *Manager) enqueue(ev event) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
}

func (m *Manager) takePending() []event {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	m.mu.Unlock()
	return events
}

// State returns the current screen state, for status reporting.
func (m *Manager) State() State { return m.state }

// RestartRequested reports whether the fault policy has decided the
// process should exit for a supervisor restart.
func (m *Manager) RestartRequested() bool { return m.restartRequested }

// Update drains queued inputs, applies state-specific periodic work, and
// returns any pour lifecycle notifications for the caller to publish.
// Call it once per loop tick, always from the same goroutine.
func (m *Manager) Update(nowMillis int64) []Notification {
	var notes []Notification

	for _, ev := range m.takePending() {
		if n, ok := m.handleEvent(ev, nowMillis); ok {
			notes = append(notes, n)
		}
	}

	switch m.state {
	case StatePouring:
		m.presenter.Update(m.handle, m.pouringMetrics())
		if m.session.IsCapReached() {
			if n, ok := m.finishPour(nowMillis); ok {
				notes = append(notes, n)
			}
		}
	case StateFinished:
		elapsed := nowMillis - m.finishedAtMillis
		if elapsed >= m.finishedTimeout {
			m.toAwaitingPayment()
		} else {
			remaining := int((m.finishedTimeout - elapsed + 999) / 1000)
			m.presenter.Update(m.handle, Metrics{RemainingSeconds: remaining})
		}
	}

	if m.sharedHandle != NoHandle {
		m.presenter.Update(m.sharedHandle, m.connMetrics())
	}

	if m.faults != nil && m.faults.Exceeded() && !m.restartRequested {
		m.restartRequested = true
		m.logger.Error("fault threshold exceeded, requesting restart",
			zap.Int("consecutive_faults", m.faults.Count()))
	}
	return notes
}

func (m *Manager) handleEvent(ev event, nowMillis int64) (Notification, bool) {
	switch ev.kind {
	case eventBootComplete:
		if m.state != StateSplash {
			m.logger.Warn("boot complete ignored", zap.String("state", string(m.state)))
			return Notification{}, false
		}
		// The shared decorations outlive every individual screen; build
		// them once, before the first real screen appears.
		h, err := m.presenter.Construct(StateShared, Params{})
		if err != nil {
			m.logger.Error("shared decorations construction failed, staying on splash", zap.Error(err))
			return Notification{}, false
		}
		m.sharedHandle = h
		m.toAwaitingPayment()
		return Notification{}, false

	case eventCommand:
		return m.handleCommandEvent(ev.cmd)

	case eventTap:
		return m.handleTapEvent(nowMillis)
	}
	return Notification{}, false
}

func (m *Manager) handleCommandEvent(cmd ingress.Command) (Notification, bool) {
	switch m.state {
	case StateAwaitingPayment:
		return m.startPour(cmd)
	case StatePouring:
		if cmd.ID == m.session.ID() {
			// Same transaction: treat as a parameter refinement, keep the
			// accumulated volume.
			if err := m.session.UpdateParams(cmd.ID, cmd.CostPerML, cmd.MaxML, cmd.Currency); err != nil {
				m.logger.Warn("pour parameter update rejected", zap.Error(err))
			}
			return Notification{}, false
		}
		m.logger.Warn("paid command for a different pour ignored while pouring",
			zap.String("active_pour_id", m.session.ID()),
			zap.String("rejected_pour_id", cmd.ID))
		return Notification{}, false
	default:
		m.logger.Warn("paid command ignored",
			zap.String("state", string(m.state)),
			zap.String("pour_id", cmd.ID))
		return Notification{}, false
	}
}

func (m *Manager) handleTapEvent(nowMillis int64) (Notification, bool) {
	switch m.state {
	case StatePouring:
		if m.debug.TapToFinish {
			m.logger.Info("debug tap: finishing pour")
			return m.finishPour(nowMillis)
		}
		return m.cancelPour()
	case StateAwaitingPayment:
		if m.debug.TapToPour {
			cmd := ingress.Command{
				ID:        "test-" + uuid.NewString(),
				CostPerML: testPourCostPerML,
				MaxML:     testPourMaxML,
				Currency:  "GBP",
			}
			m.logger.Info("debug tap: starting test pour", zap.String("pour_id", cmd.ID))
			return m.startPour(cmd)
		}
		return Notification{}, false
	default:
		return Notification{}, false
	}
}

// startPour builds the pouring screen and activates the session. The new
// screen is constructed before the old one is destroyed so a construction
// failure leaves the current screen live.
func (m *Manager) startPour(cmd ingress.Command) (Notification, bool) {
	h, err := m.presenter.Construct(StatePouring, Params{
		PourID:         cmd.ID,
		CostPerML:      cmd.CostPerML,
		MaxML:          cmd.MaxML,
		CurrencySymbol: currencySymbol(cmd.Currency),
	})
	if err != nil {
		m.logger.Error("pouring screen construction failed, staying on current screen", zap.Error(err))
		return Notification{}, false
	}

	if err := m.session.Start(cmd.ID, cmd.CostPerML, cmd.MaxML, cmd.Currency); err != nil {
		m.presenter.Destroy(h)
		m.logger.Warn("pour authorization rejected", zap.Error(err))
		return Notification{}, false
	}

	m.swapTo(StatePouring, h)
	return Notification{
		Kind:     NotifyPourStarted,
		PourID:   m.session.ID(),
		Currency: m.session.Currency().Display(),
	}, true
}

// finishPour ends the active pour normally: Finished screen, final
// readings frozen. On construction failure nothing changes; the cap check
// will retry on the next tick.
func (m *Manager) finishPour(nowMillis int64) (Notification, bool) {
	h, err := m.presenter.Construct(StateFinished, Params{
		FinalVolumeML:  m.session.VolumeML(),
		FinalCost:      m.session.CurrentCost(),
		CurrencySymbol: m.session.Currency().Symbol(),
	})
	if err != nil {
		m.logger.Error("finished screen construction failed, staying on current screen", zap.Error(err))
		return Notification{}, false
	}

	snap := m.session.Finish()
	m.swapTo(StateFinished, h)
	m.finishedAtMillis = nowMillis
	return Notification{
		Kind:     NotifyPourFinished,
		PourID:   snap.ID,
		VolumeML: snap.VolumeML,
		Cost:     snap.Cost,
		Currency: snap.Currency.Display(),
	}, true
}

// cancelPour aborts the active pour from a tap and returns to the payment
// screen.
func (m *Manager) cancelPour() (Notification, bool) {
	h, err := m.presenter.Construct(StateAwaitingPayment, Params{PayURL: m.payURL})
	if err != nil {
		m.logger.Error("payment screen construction failed, pour continues", zap.Error(err))
		return Notification{}, false
	}

	snap := m.session.Finish()
	m.swapTo(StateAwaitingPayment, h)
	m.logger.Info("pour cancelled by tap", zap.String("pour_id", snap.ID))
	return Notification{
		Kind:     NotifyPourCancelled,
		PourID:   snap.ID,
		VolumeML: snap.VolumeML,
		Cost:     snap.Cost,
		Currency: snap.Currency.Display(),
	}, true
}

func (m *Manager) toAwaitingPayment() {
	if m.state == StateAwaitingPayment {
		m.logger.Info("already on payment screen")
		return
	}
	h, err := m.presenter.Construct(StateAwaitingPayment, Params{PayURL: m.payURL})
	if err != nil {
		m.logger.Error("payment screen construction failed, staying on current screen", zap.Error(err))
		return
	}
	m.swapTo(StateAwaitingPayment, h)
}

// swapTo replaces the exclusive screen with an already-constructed one.
func (m *Manager) swapTo(state State, h Handle) {
	if m.handle != NoHandle {
		m.presenter.Destroy(m.handle)
	}
	prev := m.state
	m.handle = h
	m.state = state
	m.logger.Info("screen transition",
		zap.String("from", string(prev)),
		zap.String("to", string(state)))
}

func (m *Manager) pouringMetrics() Metrics {
	mm := m.connMetrics()
	mm.FlowRateMLPerMin = m.engine.Rate() * 1000
	mm.VolumeML = m.session.VolumeML()
	mm.Cost = m.session.CurrentCost()
	mm.CapReached = m.session.IsCapReached()
	mm.CurrencySymbol = m.session.Currency().Symbol()
	return mm
}

func (m *Manager) connMetrics() Metrics {
	if m.conn == nil {
		return Metrics{}
	}
	connected := m.conn.IsConnected()
	return Metrics{
		Connected:    connected,
		SignalBars:   SignalBars(connected, m.conn.SignalStrength()),
		DataActivity: m.conn.HasRecentActivity(),
	}
}

func currencySymbol(raw string) string {
	cur, err := session.ParseCurrency(raw)
	if err != nil {
		return session.CurrencyNone.Symbol()
	}
	return cur.Symbol()
}

// Close tears down whatever is on screen.
func (m *Manager) Close() {
	if m.handle != NoHandle {
		m.presenter.Destroy(m.handle)
		m.handle = NoHandle
	}
	if m.sharedHandle != NoHandle {
		m.presenter.Destroy(m.sharedHandle)
		m.sharedHandle = NoHandle
	}
}
