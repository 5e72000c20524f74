package screen

// FakePresenter records construct/destroy/update traffic for tests and
// can be made to fail construction of chosen states.
type FakePresenter struct {
	// ConstructErrors maps a state to the error Construct returns for it.
	ConstructErrors map[State]error

	Constructed  []State
	Destroyed    []State
	LastParams   map[State]Params
	UpdateCounts map[Handle]int
	LastMetrics  map[Handle]Metrics

	next Handle
	live map[Handle]State
}

func NewFakePresenter() *FakePresenter {
	return &FakePresenter{
		ConstructErrors: make(map[State]error),
		LastParams:      make(map[State]Params),
		UpdateCounts:    make(map[Handle]int),
		LastMetrics:     make(map[Handle]Metrics),
		next:            1,
		live:            make(map[Handle]State),
	}
}

func (p *FakePresenter) Construct(state State, params Params) (Handle, error) {
	if err := p.ConstructErrors[state]; err != nil {
		return NoHandle, err
	}
	h := p.next
	p.next++
	p.live[h] = state
	p.Constructed = append(p.Constructed, state)
	p.LastParams[state] = params
	return h, nil
}

func (p *FakePresenter) Destroy(h Handle) {
	if state, ok := p.live[h]; ok {
		p.Destroyed = append(p.Destroyed, state)
		delete(p.live, h)
	}
}

func (p *FakePresenter) Update(h Handle, m Metrics) {
	p.UpdateCounts[h]++
	p.LastMetrics[h] = m
}

// Live returns the states currently constructed, in no particular order.
func (p *FakePresenter) Live() []State {
	var states []State
	for _, s := range p.live {
		states = append(states, s)
	}
	return states
}

// LiveCount returns how many presentations of the given state are live.
func (p *FakePresenter) LiveCount(state State) int {
	n := 0
	for _, s := range p.live {
		if s == state {
			n++
		}
	}
	return n
}

// ConstructCount returns how many times the given state was constructed.
func (p *FakePresenter) ConstructCount(state State) int {
	n := 0
	for _, s := range p.Constructed {
		if s == state {
			n++
		}
	}
	return n
}

// HandleFor returns the live handle for a state, or NoHandle.
func (p *FakePresenter) HandleFor(state State) Handle {
	for h, s := range p.live {
		if s == state {
			return h
		}
	}
	return NoHandle
}

// FakeConnStatus is a settable ConnStatus for tests.
type FakeConnStatus struct {
	Connected bool
	RSSI      int
	Activity  bool
}

func (f *FakeConnStatus) IsConnected() bool       { return f.Connected }
func (f *FakeConnStatus) SignalStrength() int     { return f.RSSI }
func (f *FakeConnStatus) HasRecentActivity() bool { return f.Activity }
