package arbiter

import (
	"testing"

	"github.com/open-rover/controller/pkg/command"
	"github.com/open-rover/controller/pkg/motor"
	"github.com/open-rover/controller/pkg/state"
)

func env(key command.Key) command.Envelope {
	return command.Envelope{Key: key, DurationS: 0.2}
}

func TestArbitrate(t *testing.T) {
	clear := state.BlockedFlags{}
	frontBlocked := state.BlockedFlags{ForwardBlocked: true}
	backBlocked := state.BlockedFlags{BackwardBlocked: true}
	bothBlocked := state.BlockedFlags{ForwardBlocked: true, BackwardBlocked: true}

	tests := []struct {
		name      string
		key       command.Key
		flags     state.BlockedFlags
		wantDrive bool
		wantDir   motor.Direction
		wantVeto  bool
	}{
		{"up clear", command.KeyUp, clear, true, motor.Forward, false},
		{"up vetoed", command.KeyUp, frontBlocked, false, 0, true},
		{"up ignores back flag", command.KeyUp, backBlocked, true, motor.Forward, false},
		{"down clear", command.KeyDown, clear, true, motor.Backward, false},
		{"down vetoed", command.KeyDown, backBlocked, false, 0, true},
		{"down ignores front flag", command.KeyDown, frontBlocked, true, motor.Backward, false},
		{"left never vetoed", command.KeyLeft, bothBlocked, true, motor.Left, false},
		{"right never vetoed", command.KeyRight, bothBlocked, true, motor.Right, false},
		{"unknown stops", command.KeyUnknown, clear, false, 0, false},
		{"unknown stops while blocked", command.KeyUnknown, bothBlocked, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Arbitrate(env(tt.key), tt.flags)
			if got.Drive != tt.wantDrive {
				t.Errorf("Drive = %t, want %t", got.Drive, tt.wantDrive)
			}
			if got.Vetoed != tt.wantVeto {
				t.Errorf("Vetoed = %t, want %t", got.Vetoed, tt.wantVeto)
			}
			if got.Drive && got.Direction != tt.wantDir {
				t.Errorf("Direction = %v, want %v", got.Direction, tt.wantDir)
			}
		})
	}
}

func TestArbitratePreservesDuration(t *testing.T) {
	e := command.Envelope{Key: command.KeyUp, DurationS: 1.5}
	got := Arbitrate(e, state.BlockedFlags{})
	if got.DurationS != 1.5 {
		t.Errorf("DurationS = %v, want 1.5", got.DurationS)
	}
}
