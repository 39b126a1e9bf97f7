// Package obstacle derives the directional blocked flags from the
// latest distance readings.
package obstacle

import (
	"context"
	"time"

	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/state"
)

// Monitor periodically reads the shared distances and publishes the
// blocked flags. It is a pure derivation: no side effects beyond the
// flags cell.
type Monitor struct {
	store       *state.Store
	thresholdCm float64
	tick        time.Duration
	logger      customlog.Logger
}

// NewMonitor creates an obstacle monitor.
func NewMonitor(store *state.Store, thresholdCm float64, tick time.Duration, logger customlog.Logger) *Monitor {
	return &Monitor{
		store:       store,
		thresholdCm: thresholdCm,
		tick:        tick,
		logger:      logger,
	}
}

// Name implements supervisor.Worker.
func (m *Monitor) Name() string { return "obstacle-monitor" }

// Run ticks until the context is cancelled. Reads are snapshot reads of
// the shared cells; the samplers are never blocked.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Infof("Obstacle monitor started (threshold=%.0fcm tick=%s)", m.thresholdCm, m.tick)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("Obstacle monitor stopping")
			return nil
		case <-ticker.C:
			front := m.store.Distance(state.SensorFront)
			back := m.store.Distance(state.SensorBack)
			flags := Derive(front, back, m.thresholdCm)
			m.store.SetBlocked(flags)
			m.logger.Debugf("Front: %.2f cm | Back: %.2f cm | Blocked: F=%t B=%t",
				front, back, flags.ForwardBlocked, flags.BackwardBlocked)
		}
	}
}

// Derive computes the blocked flags for a pair of distances.
func Derive(frontCm, backCm, thresholdCm float64) state.BlockedFlags {
	return state.BlockedFlags{
		ForwardBlocked:  frontCm < thresholdCm,
		BackwardBlocked: backCm < thresholdCm,
	}
}
