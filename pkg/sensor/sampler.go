// Package sensor implements the ultrasonic distance sampling workers.
package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/open-rover/controller/pkg/config"
	"github.com/open-rover/controller/pkg/hal"
	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/state"
)

const (
	// speedOfSoundCmPerSec at room temperature.
	speedOfSoundCmPerSec = 34300.0

	// triggerPulseWidth is the HC-SR04 trigger pulse width.
	triggerPulseWidth = 10 * time.Microsecond

	// minDistanceCm is the sensor's shortest valid reading.
	minDistanceCm = 2.0
)

// Sampler continuously measures distance on one trigger/echo pin pair
// and writes the latest reading into the shared store.
type Sampler struct {
	id          state.SensorID
	trigger     hal.OutputLine
	echo        hal.EchoLine
	store       *state.Store
	logger      customlog.Logger
	sampleDelay time.Duration
	echoTimeout time.Duration
	errorBudget int
	backoff     time.Duration
}

// NewSampler claims the sensor's pin pair from the chip.
func NewSampler(chip hal.Chip, id state.SensorID, cfg config.SensorConfig, store *state.Store, logger customlog.Logger) (*Sampler, error) {
	trigger, err := chip.Output(cfg.TriggerPin)
	if err != nil {
		return nil, fmt.Errorf("failed to claim trigger pin %s: %w", cfg.TriggerPin, err)
	}
	echo, err := chip.Echo(cfg.EchoPin)
	if err != nil {
		return nil, fmt.Errorf("failed to claim echo pin %s: %w", cfg.EchoPin, err)
	}

	return &Sampler{
		id:          id,
		trigger:     trigger,
		echo:        echo,
		store:       store,
		logger:      logger.WithField("sensor", id.String()),
		sampleDelay: time.Duration(cfg.SampleDelayMs) * time.Millisecond,
		echoTimeout: time.Duration(cfg.EchoTimeoutMs) * time.Millisecond,
		errorBudget: cfg.ErrorBudget,
		backoff:     time.Duration(cfg.ErrorBackoffMs) * time.Millisecond,
	}, nil
}

// Name implements supervisor.Worker.
func (s *Sampler) Name() string {
	return fmt.Sprintf("sampler-%s", s.id)
}

// Run samples in a loop until the context is cancelled. It returns an
// error once the consecutive-failure budget is exhausted so the
// supervisor can restart the worker instead of letting it free-run
// against faulty hardware.
func (s *Sampler) Run(ctx context.Context) error {
	s.logger.Infof("Ultrasonic sampler started (trigger=%s echo=%s)", s.trigger.Name(), s.echo.Name())

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Ultrasonic sampler stopping")
			return nil
		default:
		}

		distance, err := s.SampleOnce()
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors <= 3 {
				s.logger.Warnf("Measurement error: %v", err)
			}
			if consecutiveErrors > s.errorBudget {
				return fmt.Errorf("sensor %s: %d consecutive measurement failures: %w", s.id, consecutiveErrors, err)
			}
			if !sleepCtx(ctx, s.backoff) {
				return nil
			}
			continue
		}

		consecutiveErrors = 0
		s.store.SetDistance(s.id, distance)
		s.logger.Debugf("Distance: %.2f cm", distance)

		if !sleepCtx(ctx, s.sampleDelay) {
			return nil
		}
	}
}

// SampleOnce triggers a ranging pulse and times the echo. Timeouts and
// out-of-range results report the maximum distance: a missing echo must
// read as "clear", never as an obstacle or an undefined value. An error
// is returned only for hardware faults (failed pin writes), which count
// against the failure budget.
func (s *Sampler) SampleOnce() (float64, error) {
	if err := s.trigger.Set(hal.High); err != nil {
		return 0, fmt.Errorf("trigger pulse failed: %w", err)
	}
	time.Sleep(triggerPulseWidth)
	if err := s.trigger.Set(hal.Low); err != nil {
		return 0, fmt.Errorf("trigger release failed: %w", err)
	}

	// One timeout window covers the whole echo, rising edge included.
	deadline := time.Now().Add(s.echoTimeout)

	if !s.echo.WaitForEdge(s.echoTimeout) {
		return state.MaxDistanceCm, nil
	}
	start := time.Now()

	// Falling edge, bounded by what remains of the window
	remaining := time.Until(deadline)
	if remaining <= 0 || !s.echo.WaitForEdge(remaining) {
		return state.MaxDistanceCm, nil
	}
	elapsed := time.Since(start)

	distance := elapsed.Seconds() * speedOfSoundCmPerSec / 2
	if distance < minDistanceCm || distance > state.MaxDistanceCm {
		return state.MaxDistanceCm, nil
	}
	return distance, nil
}

// sleepCtx sleeps for d, returning false if the context was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
