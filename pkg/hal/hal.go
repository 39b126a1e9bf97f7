// Package hal abstracts the rover's digital I/O lines so that the motor
// and sensor code can run against real GPIO hardware or an in-memory
// fake in tests.
package hal

import (
	"errors"
	"time"
)

// Level is the logical state of a digital line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Common errors
var (
	ErrLineNotFound = errors.New("gpio line not found")
	ErrChipClosed   = errors.New("gpio chip is closed")
)

// OutputLine is a claimed digital output (motor driver input, sensor
// trigger).
type OutputLine interface {
	Set(level Level) error
	Name() string
}

// EchoLine is a claimed digital input that can wait for edge
// transitions (the ultrasonic echo pin).
type EchoLine interface {
	// WaitForEdge blocks until the line changes state or the timeout
	// expires. Returns false on timeout.
	WaitForEdge(timeout time.Duration) bool
	Read() Level
	Name() string
}

// Chip claims lines by name and owns their release.
type Chip interface {
	Output(name string) (OutputLine, error)
	Echo(name string) (EchoLine, error)
	Close() error
}
