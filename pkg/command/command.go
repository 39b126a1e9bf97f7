// Package command parses inbound bus payloads into drive and system
// commands and applies the staleness filter. This is the boundary
// between transport nondeterminism (delay, duplication, reordering) and
// the physical actuator: the staleness filter is the sole defense
// against executing outdated motion.
package command

import (
	"encoding/json"
	"errors"
)

// Key is a normalized drive command key.
type Key int

const (
	KeyUnknown Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "ArrowUp"
	case KeyDown:
		return "ArrowDown"
	case KeyLeft:
		return "ArrowLeft"
	case KeyRight:
		return "ArrowRight"
	}
	return "Unknown"
}

// DefaultDurationS is applied when the envelope omits a duration.
const DefaultDurationS = 0.2

// DefaultStaleAfterMs is the default maximum command age.
const DefaultStaleAfterMs = int64(2000)

// Rejection errors. Rejected commands are dropped silently at the
// dispatch layer; these sentinels exist for logging and tests.
var (
	ErrStale            = errors.New("command is stale")
	ErrMissingTimestamp = errors.New("command has no timestamp")
)

// Envelope is a validated drive command.
type Envelope struct {
	Key         Key
	TimestampMs int64
	DurationS   float64
}

// rawEnvelope mirrors the wire format.
type rawEnvelope struct {
	Key       string   `json:"key"`
	Timestamp int64    `json:"timestamp"`
	Duration  *float64 `json:"duration"`
}

// ParseKey maps a wire key string to a Key.
func ParseKey(s string) Key {
	switch s {
	case "ArrowUp":
		return KeyUp
	case "ArrowDown":
		return KeyDown
	case "ArrowLeft":
		return KeyLeft
	case "ArrowRight":
		return KeyRight
	}
	return KeyUnknown
}

// Intake parses a raw payload into an Envelope, fills defaults and
// rejects stale commands. An unparseable payload is not an error: it
// maps to KeyUnknown so the caller routes it to the stop path. A
// command older than staleAfterMs relative to nowMs is rejected with
// ErrStale and must produce no actuation.
func Intake(payload []byte, nowMs int64, staleAfterMs int64) (Envelope, error) {
	if staleAfterMs <= 0 {
		staleAfterMs = DefaultStaleAfterMs
	}

	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil || raw.Key == "" {
		return Envelope{Key: KeyUnknown, TimestampMs: nowMs, DurationS: DefaultDurationS}, nil
	}

	if raw.Timestamp == 0 {
		return Envelope{}, ErrMissingTimestamp
	}
	if age := nowMs - raw.Timestamp; age > staleAfterMs {
		return Envelope{}, ErrStale
	}

	duration := DefaultDurationS
	if raw.Duration != nil {
		duration = *raw.Duration
	}

	return Envelope{
		Key:         ParseKey(raw.Key),
		TimestampMs: raw.Timestamp,
		DurationS:   duration,
	}, nil
}

// SystemType identifies a control-plane command.
type SystemType string

const (
	SystemDisconnect   SystemType = "disconnect"
	SystemReconnect    SystemType = "reconnect"
	SystemVideocallOn  SystemType = "videocall_on"
	SystemVideocallOff SystemType = "videocall_off"
)

// SystemCommand drives supervisor-level lifecycle transitions,
// independent of the motion path.
type SystemCommand struct {
	Type   SystemType `json:"type"`
	CallID string     `json:"callId,omitempty"`
}

// ParseSystem reports whether the payload is a recognized system
// command. Drive commands and junk return false.
func ParseSystem(payload []byte) (SystemCommand, bool) {
	var cmd SystemCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return SystemCommand{}, false
	}
	switch cmd.Type {
	case SystemDisconnect, SystemReconnect, SystemVideocallOn, SystemVideocallOff:
		return cmd, true
	}
	return SystemCommand{}, false
}
