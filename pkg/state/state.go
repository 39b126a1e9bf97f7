// Package state holds the cross-worker shared cells: the latest
// distance per ultrasonic sensor and the derived blocked flags. Each
// cell has exactly one writer (the sensor sampler writes distances, the
// obstacle monitor writes flags) and any number of readers; all access
// is atomic so the real-time sampling loop never waits on a lock.
package state

import (
	"math"
	"sync/atomic"
)

// SensorID identifies one of the rover's two ultrasonic sensors.
type SensorID int

const (
	SensorFront SensorID = iota
	SensorBack
)

func (id SensorID) String() string {
	switch id {
	case SensorFront:
		return "front"
	case SensorBack:
		return "back"
	}
	return "unknown"
}

// MaxDistanceCm is the sensor's maximum range; it doubles as the
// "no obstacle" value for invalid or timed-out readings.
const MaxDistanceCm = 400.0

// distanceCell stores a float64 distance with atomic reads and writes.
type distanceCell struct {
	bits atomic.Uint64
}

func (c *distanceCell) store(cm float64) {
	c.bits.Store(math.Float64bits(cm))
}

func (c *distanceCell) load() float64 {
	return math.Float64frombits(c.bits.Load())
}

// BlockedFlags is a snapshot of the obstacle interlock state.
type BlockedFlags struct {
	ForwardBlocked  bool
	BackwardBlocked bool
}

// Store aggregates the shared distance cells and the blocked flags.
type Store struct {
	front    distanceCell
	back     distanceCell
	forward  atomic.Bool
	backward atomic.Bool
}

// NewStore returns a Store with both distances at maximum range
// (no obstacle) and no directions blocked.
func NewStore() *Store {
	s := &Store{}
	s.front.store(MaxDistanceCm)
	s.back.store(MaxDistanceCm)
	return s
}

// SetDistance records the latest reading for a sensor. Called only by
// that sensor's sampler; last writer wins.
func (s *Store) SetDistance(id SensorID, cm float64) {
	switch id {
	case SensorFront:
		s.front.store(cm)
	case SensorBack:
		s.back.store(cm)
	}
}

// Distance returns the latest reading for a sensor.
func (s *Store) Distance(id SensorID) float64 {
	switch id {
	case SensorFront:
		return s.front.load()
	case SensorBack:
		return s.back.load()
	}
	return MaxDistanceCm
}

// SetBlocked records the derived flags. Called only by the obstacle
// monitor.
func (s *Store) SetBlocked(flags BlockedFlags) {
	s.forward.Store(flags.ForwardBlocked)
	s.backward.Store(flags.BackwardBlocked)
}

// Blocked returns the current flags. The two bools are read separately;
// the flags are eventually consistent with the distances by design.
func (s *Store) Blocked() BlockedFlags {
	return BlockedFlags{
		ForwardBlocked:  s.forward.Load(),
		BackwardBlocked: s.backward.Load(),
	}
}

// Snapshot bundles both distances and the flags for telemetry.
type Snapshot struct {
	FrontCm         float64 `json:"front_cm"`
	BackCm          float64 `json:"back_cm"`
	ForwardBlocked  bool    `json:"forward_blocked"`
	BackwardBlocked bool    `json:"backward_blocked"`
}

// Snapshot returns a point-in-time copy of the shared state.
func (s *Store) Snapshot() Snapshot {
	flags := s.Blocked()
	return Snapshot{
		FrontCm:         s.Distance(SensorFront),
		BackCm:          s.Distance(SensorBack),
		ForwardBlocked:  flags.ForwardBlocked,
		BackwardBlocked: flags.BackwardBlocked,
	}
}
