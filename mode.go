package reactor

import (
	"fmt"
)

// Mode selects one of the dispatcher's handler registries.
//
// The three I/O modes are readiness-gated, ModeTask is not: task-mode events
// run once per tick regardless of I/O activity.
type Mode uint8

const (
	// ModeRead selects read-readiness.
	ModeRead Mode = iota + 1
	// ModeWrite selects write-readiness.
	ModeWrite
	// ModeError selects error-readiness (exceptional conditions, hangup).
	ModeError
	// ModeTask selects deferred work that is not bound to readiness.
	ModeTask
)

// ioModes is the order in which ready handles are collected each tick.
var ioModes = [...]Mode{ModeRead, ModeWrite, ModeError}

// String returns a human-readable representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeError:
		return "error"
	case ModeTask:
		return "task"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Valid reports whether m is one of the four defined modes.
func (m Mode) Valid() bool {
	return m >= ModeRead && m <= ModeTask
}

// IO reports whether m is readiness-gated.
func (m Mode) IO() bool {
	return m >= ModeRead && m <= ModeError
}

// ParseMode converts the textual form of a mode (as returned by
// [Mode.String]) back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "read":
		return ModeRead, nil
	case "write":
		return ModeWrite, nil
	case "error":
		return ModeError, nil
	case "task":
		return ModeTask, nil
	}
	return 0, &ConfigurationError{Op: "parse mode", Cause: ErrInvalidMode, Detail: s}
}
