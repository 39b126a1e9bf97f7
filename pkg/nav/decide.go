// Package nav converts a tracked marker's relative pose into a
// prioritized drive command sequence for autonomous operation.
package nav

import "math"

// HorizontalDirection is where the marker sits relative to the frame
// center.
type HorizontalDirection string

const (
	DirLeft     HorizontalDirection = "Left"
	DirRight    HorizontalDirection = "Right"
	DirCentered HorizontalDirection = "Centered"
)

// Observation is the marker pose summary produced by the external
// vision pipeline. Pointer fields distinguish "absent" from zero.
type Observation struct {
	Direction  *HorizontalDirection `json:"direction"`
	DistanceMM *float64             `json:"distance_mm"`
	PitchDeg   *float64             `json:"pitch_deg"`
}

// Command is one step of a navigation plan. Every command is routed
// through the normal intake and arbitration path before actuation.
type Command int

const (
	Wait Command = iota
	Stop
	Forward
	Backward
	Left
	Right
)

func (c Command) String() string {
	switch c {
	case Wait:
		return "wait"
	case Stop:
		return "stop"
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

// Config holds the decision thresholds and maneuver shape.
type Config struct {
	// TiltPitchDeg is the pitch magnitude beyond which the tilt
	// correction maneuver runs.
	TiltPitchDeg float64
	// TiltBackoffMM: closer than this while tilted, back off instead of
	// turning (a rotation maneuver that close risks collision).
	TiltBackoffMM float64
	// ApproachStopMM is the goal distance when centered.
	ApproachStopMM float64
	// TiltRotateTicks and TiltAdvanceTicks shape the correction
	// maneuver: rotate N, advance M, rotate N back. Tuned empirically
	// on the robot; changing them changes the net displacement.
	TiltRotateTicks  int
	TiltAdvanceTicks int
}

// DefaultConfig matches the tuning of the deployed robot.
func DefaultConfig() Config {
	return Config{
		TiltPitchDeg:     40,
		TiltBackoffMM:    500,
		ApproachStopMM:   300,
		TiltRotateTicks:  3,
		TiltAdvanceTicks: 2,
	}
}

// Decide maps an observation to an ordered command plan. Pure function,
// no I/O. Rules are mutually exclusive and evaluated in priority order:
// tilt correction, horizontal centering, approach. Incomplete
// observations yield a single Wait.
func Decide(obs Observation, cfg Config) []Command {
	if obs.Direction == nil || obs.DistanceMM == nil || obs.PitchDeg == nil {
		return []Command{Wait}
	}
	direction, distance, pitch := *obs.Direction, *obs.DistanceMM, *obs.PitchDeg

	if math.Abs(pitch) > cfg.TiltPitchDeg {
		if distance <= cfg.TiltBackoffMM {
			return []Command{Backward}
		}
		return tiltManeuver(pitch, cfg)
	}

	switch direction {
	case DirLeft:
		return []Command{Left}
	case DirRight:
		return []Command{Right}
	}

	if distance > cfg.ApproachStopMM {
		return []Command{Forward}
	}
	return []Command{Stop}
}

// tiltManeuver rotates toward level, advances, and rotates back, so the
// net heading change is zero while the robot gains forward
// displacement. The initial rotation side follows the pitch sign.
func tiltManeuver(pitch float64, cfg Config) []Command {
	first, second := Left, Right
	if pitch < 0 {
		first, second = Right, Left
	}

	plan := make([]Command, 0, 2*cfg.TiltRotateTicks+cfg.TiltAdvanceTicks)
	for i := 0; i < cfg.TiltRotateTicks; i++ {
		plan = append(plan, first)
	}
	for i := 0; i < cfg.TiltAdvanceTicks; i++ {
		plan = append(plan, Forward)
	}
	for i := 0; i < cfg.TiltRotateTicks; i++ {
		plan = append(plan, second)
	}
	return plan
}
