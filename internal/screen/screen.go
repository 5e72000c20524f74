// Package screen drives the kiosk UX lifecycle: Splash → AwaitingPayment →
// Pouring → Finished → AwaitingPayment. The state machine owns the pour
// session, decides every transition, and talks to the display through the
// Presenter boundary so the rendering stack stays out of the core.
package screen

// State identifies the active screen.
type State string

const (
	StateSplash          State = "SPLASH"
	StateAwaitingPayment State = "AWAITING_PAYMENT"
	StatePouring         State = "POURING"
	StateFinished        State = "FINISHED"

	// StateShared names the decorative elements (logo, wifi and data icons)
	// that persist across all non-Splash screens. Constructed once when the
	// boot sequence completes and torn down only at full shutdown.
	StateShared State = "SHARED"
)

// Handle is an opaque reference to a constructed presentation, issued by the
// Presenter. NoHandle means nothing is constructed.
type Handle int

// NoHandle is the zero Handle.
const NoHandle Handle = 0

// Params carries the construction inputs for a screen. Only the fields for
// the state being constructed are set.
type Params struct {
	// Splash
	BootStatus string

	// AwaitingPayment
	PayURL string

	// Pouring
	PourID         string
	CostPerML      float32
	MaxML          int32
	CurrencySymbol string

	// Finished
	FinalVolumeML float32
	FinalCost     float32
}

// Metrics carries the periodic refresh data for a screen.
type Metrics struct {
	// Splash boot progress
	BootProgress int
	BootStatus   string

	// Pouring
	FlowRateMLPerMin float32
	VolumeML         float32
	Cost             float32
	CapReached       bool
	CurrencySymbol   string

	// Finished countdown
	RemainingSeconds int

	// Shared decorations
	Connected    bool
	SignalBars   int
	DataActivity bool
}

// Presenter renders screens. Implemented by the display collaborator;
// the core only ever holds Handles. Construct must either fully build the
// presentation or fail without side effects; Destroy must release
// everything Construct built.
type Presenter interface {
	Construct(state State, params Params) (Handle, error)
	Destroy(h Handle)
	Update(h Handle, m Metrics)
}

// ConnStatus reports link state for the shared connectivity icons.
type ConnStatus interface {
	IsConnected() bool

	// SignalStrength returns the link RSSI in dBm (negative), or 0 when
	// unknown.
	SignalStrength() int

	// HasRecentActivity reports TX/RX within the activity window.
	HasRecentActivity() bool
}

// SignalBars maps an RSSI reading to the 0–4 bar wifi icon scale.
func SignalBars(connected bool, rssi int) int {
	if !connected {
		return 0
	}
	switch {
	case rssi == 0:
		return 0 // unknown
	case rssi > -50:
		return 4
	case rssi > -60:
		return 3
	case rssi > -70:
		return 2
	case rssi > -80:
		return 1
	default:
		return 0
	}
}
