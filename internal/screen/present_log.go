package screen

import "go.uber.org/zap"

// LogPresenter renders screens as structured log lines. It is the
// presenter used when the kiosk runs headless (no panel attached, or the
// panel stack is disabled in config) and doubles as a readable trace of
// the UX in the journal.
type LogPresenter struct {
	logger *zap.Logger
	next   Handle
	live   map[Handle]State
}

// NewLogPresenter creates a LogPresenter.
func NewLogPresenter(logger *zap.Logger) *LogPresenter {
	return &LogPresenter{logger: logger, next: 1, live: make(map[Handle]State)}
}

func (p *LogPresenter) Construct(state State, params Params) (Handle, error) {
	h := p.next
	p.next++
	p.live[h] = state

	fields := []zap.Field{zap.String("state", string(state))}
	switch state {
	case StateAwaitingPayment:
		fields = append(fields, zap.String("pay_url", params.PayURL))
	case StatePouring:
		fields = append(fields,
			zap.String("pour_id", params.PourID),
			zap.Float32("cost_per_ml", params.CostPerML),
			zap.Int32("max_ml", params.MaxML))
	case StateFinished:
		fields = append(fields,
			zap.Float32("final_volume_ml", params.FinalVolumeML),
			zap.Float32("final_cost", params.FinalCost))
	}
	p.logger.Info("screen shown", fields...)
	return h, nil
}

func (p *LogPresenter) Destroy(h Handle) {
	state, ok := p.live[h]
	if !ok {
		p.logger.Warn("destroy of unknown screen handle", zap.Int("handle", int(h)))
		return
	}
	delete(p.live, h)
	p.logger.Info("screen torn down", zap.String("state", string(state)))
}

func (p *LogPresenter) Update(h Handle, m Metrics) {
	state, ok := p.live[h]
	if !ok {
		return
	}
	// Periodic refreshes are debug-level; the pouring readout is the one
	// worth seeing at a glance.
	if state == StatePouring {
		p.logger.Debug("pouring",
			zap.Float32("rate_ml_min", m.FlowRateMLPerMin),
			zap.Float32("volume_ml", m.VolumeML),
			zap.Float32("cost", m.Cost),
			zap.Bool("cap_reached", m.CapReached))
	}
}
