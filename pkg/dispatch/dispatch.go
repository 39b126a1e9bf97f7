// Package dispatch wires the synchronous command path: intake,
// arbitration, actuation, and the rejected-motion acknowledgment. Both
// the operator bus and the autonomous navigation engine feed through
// here, so every motion request passes the same staleness and obstacle
// checks.
package dispatch

import (
	"errors"
	"time"

	"github.com/open-rover/controller/pkg/arbiter"
	"github.com/open-rover/controller/pkg/command"
	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/motor"
	"github.com/open-rover/controller/pkg/nav"
	"github.com/open-rover/controller/pkg/state"
)

// MotorDriver is the actuator surface the dispatcher needs.
type MotorDriver interface {
	Drive(dir motor.Direction, duration time.Duration) error
	Stop() error
}

// AckPublisher reports obstacle vetoes back to the operator. May be nil.
type AckPublisher interface {
	PublishVetoAck(key string, direction string) error
}

// Dispatcher executes validated commands against the motor under the
// safety interlock. The whole path is in-memory and non-blocking; it
// returns well within the staleness budget.
type Dispatcher struct {
	store        *state.Store
	driver       MotorDriver
	acks         AckPublisher
	logger       customlog.Logger
	staleAfterMs int64
	defaultDurS  float64
	now          func() int64
	sleep        func(time.Duration)
}

// New creates a Dispatcher. acks may be nil when no bus is connected.
func New(store *state.Store, driver MotorDriver, acks AckPublisher, staleAfterMs int64, defaultDurS float64, logger customlog.Logger) *Dispatcher {
	if defaultDurS <= 0 {
		defaultDurS = command.DefaultDurationS
	}
	return &Dispatcher{
		store:        store,
		driver:       driver,
		acks:         acks,
		logger:       logger,
		staleAfterMs: staleAfterMs,
		defaultDurS:  defaultDurS,
		now:          func() int64 { return time.Now().UnixMilli() },
		sleep:        time.Sleep,
	}
}

// SetClock overrides the time source. Test hook.
func (d *Dispatcher) SetClock(now func() int64) { d.now = now }

// SetSleep overrides the plan pacing sleep. Test hook.
func (d *Dispatcher) SetSleep(sleep func(time.Duration)) { d.sleep = sleep }

// HandlePayload runs a raw bus payload through intake and dispatch.
// Stale and malformed-timestamp commands are dropped silently: surfacing
// every transient transport delay to the operator would be noise.
func (d *Dispatcher) HandlePayload(payload []byte) {
	env, err := command.Intake(payload, d.now(), d.staleAfterMs)
	if err != nil {
		if errors.Is(err, command.ErrStale) {
			d.logger.Debugf("Dropping stale command: %s", string(payload))
		} else {
			d.logger.Debugf("Dropping command without timestamp: %s", string(payload))
		}
		return
	}
	d.Handle(env)
}

// Handle arbitrates and actuates a validated envelope.
func (d *Dispatcher) Handle(env command.Envelope) {
	action := arbiter.Arbitrate(env, d.store.Blocked())

	if action.Vetoed {
		d.logger.Warnf("Obstacle veto: %s suppressed", env.Key)
		if err := d.driver.Stop(); err != nil {
			d.logger.Errorf("Stop after veto failed: %v", err)
		}
		d.publishVeto(env.Key)
		return
	}

	if !action.Drive {
		if env.Key == command.KeyUnknown {
			d.logger.Infof("Unknown command key, stopping")
		}
		if err := d.driver.Stop(); err != nil {
			d.logger.Errorf("Stop failed: %v", err)
		}
		return
	}

	duration := time.Duration(action.DurationS * float64(time.Second))
	if err := d.driver.Drive(action.Direction, duration); err != nil {
		d.logger.Errorf("Drive %s failed: %v", action.Direction, err)
	}
}

// RunPlan feeds a navigation plan through the normal command path. Each
// step gets a fresh timestamp so it passes intake like an operator
// command would; the navigation engine gets no safety bypass. Drive
// steps are paced one tick apart: issuing them back-to-back would rearm
// the auto-stop timer each time and collapse the whole maneuver into
// its final step. Flags are re-read per step, so an obstacle appearing
// mid-maneuver vetoes the remaining ticks it applies to.
func (d *Dispatcher) RunPlan(plan []nav.Command) {
	tick := time.Duration(d.defaultDurS * float64(time.Second))
	for _, step := range plan {
		key, ok := planKey(step)
		if !ok {
			if step == nav.Wait {
				continue
			}
			// nav.Stop and anything unmapped take the stop path
			key = command.KeyUnknown
		}
		d.Handle(command.Envelope{
			Key:         key,
			TimestampMs: d.now(),
			DurationS:   d.defaultDurS,
		})
		if ok {
			d.sleep(tick)
		}
	}
}

func planKey(c nav.Command) (command.Key, bool) {
	switch c {
	case nav.Forward:
		return command.KeyUp, true
	case nav.Backward:
		return command.KeyDown, true
	case nav.Left:
		return command.KeyLeft, true
	case nav.Right:
		return command.KeyRight, true
	}
	return command.KeyUnknown, false
}

func (d *Dispatcher) publishVeto(key command.Key) {
	if d.acks == nil {
		return
	}
	direction := "forward"
	if key == command.KeyDown {
		direction = "backward"
	}
	if err := d.acks.PublishVetoAck(key.String(), direction); err != nil {
		d.logger.Warnf("Failed to publish veto ack: %v", err)
	}
}

// SystemHandler consumes control-plane commands.
type SystemHandler interface {
	HandleSystemCommand(cmd command.SystemCommand)
}

// Router classifies raw bus payloads: system commands go to the
// supervisor, everything else takes the drive path.
type Router struct {
	dispatcher *Dispatcher
	system     SystemHandler
	logger     customlog.Logger
}

// NewRouter creates a Router.
func NewRouter(dispatcher *Dispatcher, system SystemHandler, logger customlog.Logger) *Router {
	return &Router{dispatcher: dispatcher, system: system, logger: logger}
}

// HandleMessage implements zeromq.MessageHandler.
func (r *Router) HandleMessage(payload []byte) {
	if cmd, ok := command.ParseSystem(payload); ok {
		r.logger.Infof("System command received: %s", cmd.Type)
		if r.system != nil {
			r.system.HandleSystemCommand(cmd)
		}
		return
	}
	r.dispatcher.HandlePayload(payload)
}
