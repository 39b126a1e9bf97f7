// Package arbiter implements the safety interlock between validated
// drive commands and the motor actuator.
package arbiter

import (
	"github.com/open-rover/controller/pkg/command"
	"github.com/open-rover/controller/pkg/motor"
	"github.com/open-rover/controller/pkg/state"
)

// Action is the outcome of arbitration.
type Action struct {
	// Drive is true when the command may actuate; Direction and
	// DurationS are valid only then.
	Drive     bool
	Direction motor.Direction
	DurationS float64

	// Vetoed is true when a linear command was suppressed by an
	// obstacle flag. Vetoed implies !Drive.
	Vetoed bool
}

// Arbitrate maps a validated envelope and the current blocked flags to
// an action. Pure function: fully table-testable.
//
// Forward/backward motion is vetoed by the matching obstacle flag.
// Rotation in place never advances into a blocked direction, so Left
// and Right are never vetoed. Unknown keys map to a stop.
func Arbitrate(env command.Envelope, flags state.BlockedFlags) Action {
	switch env.Key {
	case command.KeyUp:
		if flags.ForwardBlocked {
			return Action{Vetoed: true}
		}
		return Action{Drive: true, Direction: motor.Forward, DurationS: env.DurationS}
	case command.KeyDown:
		if flags.BackwardBlocked {
			return Action{Vetoed: true}
		}
		return Action{Drive: true, Direction: motor.Backward, DurationS: env.DurationS}
	case command.KeyLeft:
		return Action{Drive: true, Direction: motor.Left, DurationS: env.DurationS}
	case command.KeyRight:
		return Action{Drive: true, Direction: motor.Right, DurationS: env.DurationS}
	}
	return Action{}
}
