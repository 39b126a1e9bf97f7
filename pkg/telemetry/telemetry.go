// Package telemetry streams sensor snapshots and battery readings out
// onto the message bus.
package telemetry

import (
	"context"
	"time"

	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/state"
)

// SnapshotPublisher is the outbound bus surface for sensor telemetry.
type SnapshotPublisher interface {
	PublishTelemetry(snap state.Snapshot) error
}

// Publisher periodically broadcasts the shared-state snapshot.
type Publisher struct {
	store    *state.Store
	bus      SnapshotPublisher
	interval time.Duration
	logger   customlog.Logger
}

// NewPublisher creates the telemetry publisher worker.
func NewPublisher(store *state.Store, bus SnapshotPublisher, interval time.Duration, logger customlog.Logger) *Publisher {
	return &Publisher{store: store, bus: bus, interval: interval, logger: logger}
}

// Name implements supervisor.Worker.
func (p *Publisher) Name() string { return "telemetry-publisher" }

// Run publishes until the context is cancelled. Publish failures are
// log-only: telemetry is best-effort.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Infof("Telemetry publisher started (interval=%s)", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infof("Telemetry publisher stopping")
			return nil
		case <-ticker.C:
			if err := p.bus.PublishTelemetry(p.store.Snapshot()); err != nil {
				p.logger.Debugf("Telemetry publish failed: %v", err)
			}
		}
	}
}
