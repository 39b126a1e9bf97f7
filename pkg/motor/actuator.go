// Package motor drives the differential motor pair through a dual
// H-bridge and enforces the auto-stop fail-safe.
package motor

import (
	"fmt"
	"sync"
	"time"

	"github.com/open-rover/controller/pkg/config"
	"github.com/open-rover/controller/pkg/hal"
	customlog "github.com/open-rover/controller/pkg/log"
)

// Direction is a drive direction for the differential pair.
type Direction int

const (
	Forward Direction = iota
	Backward
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// pinPattern is the polarity of the four driver inputs for a direction.
// IN1/IN2 drive the left channel, IN3/IN4 the right channel. Opposing
// channel polarities rotate in place.
var pinPattern = map[Direction][4]hal.Level{
	Forward:  {hal.High, hal.Low, hal.High, hal.Low},
	Backward: {hal.Low, hal.High, hal.Low, hal.High},
	Left:     {hal.Low, hal.High, hal.High, hal.Low},
	Right:    {hal.High, hal.Low, hal.Low, hal.High},
}

// Actuator owns the four drive lines and the single outstanding
// auto-stop timer. Every Drive call supersedes the previous timer, so
// the motor never runs past the most recent command's duration and
// always eventually stops.
type Actuator struct {
	mu     sync.Mutex
	lines  [4]hal.OutputLine
	timer  *time.Timer
	active *Direction
	logger customlog.Logger
}

// New claims the four driver pins and leaves them in the neutral state.
func New(chip hal.Chip, cfg config.MotorConfig, logger customlog.Logger) (*Actuator, error) {
	names := [4]string{cfg.In1Pin, cfg.In2Pin, cfg.In3Pin, cfg.In4Pin}
	var lines [4]hal.OutputLine
	for i, name := range names {
		line, err := chip.Output(name)
		if err != nil {
			return nil, fmt.Errorf("failed to claim motor pin %s: %w", name, err)
		}
		lines[i] = line
	}

	a := &Actuator{lines: lines, logger: logger}
	if err := a.Stop(); err != nil {
		return nil, fmt.Errorf("failed to neutralize motor pins: %w", err)
	}
	return a, nil
}

// Drive sets the pin pattern for the direction and arms a one-shot
// auto-stop timer for the duration. Any previously armed timer is
// cancelled first.
func (a *Actuator) Drive(dir Direction, duration time.Duration) error {
	pattern, ok := pinPattern[dir]
	if !ok {
		return fmt.Errorf("invalid drive direction %d", dir)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelTimerLocked()

	if err := a.setPinsLocked(pattern); err != nil {
		// Leave nothing running on a partial write
		_ = a.setPinsLocked([4]hal.Level{hal.Low, hal.Low, hal.Low, hal.Low})
		a.active = nil
		return err
	}
	d := dir
	a.active = &d

	a.timer = time.AfterFunc(duration, func() {
		if err := a.Stop(); err != nil {
			a.logger.Errorf("Auto-stop failed: %v", err)
		}
	})

	a.logger.Infof("Driving %s for %s", dir, duration)
	return nil
}

// Stop sets all drive pins neutral and cancels any armed timer. Safe to
// call concurrently and redundantly.
func (a *Actuator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelTimerLocked()
	a.active = nil
	return a.setPinsLocked([4]hal.Level{hal.Low, hal.Low, hal.Low, hal.Low})
}

// Active returns the direction currently being driven, if any.
func (a *Actuator) Active() (Direction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return 0, false
	}
	return *a.active, true
}

// Close stops the motor and drops the timer.
func (a *Actuator) Close() error {
	return a.Stop()
}

func (a *Actuator) cancelTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Actuator) setPinsLocked(pattern [4]hal.Level) error {
	for i, line := range a.lines {
		if err := line.Set(pattern[i]); err != nil {
			return fmt.Errorf("failed to set %s: %w", line.Name(), err)
		}
	}
	return nil
}
