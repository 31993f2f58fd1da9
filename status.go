package reactor

// Status is the clean/dirty lifecycle flag carried by events and registries.
//
// State machine:
//
//	StatusClean → StatusDirty   [callback list replaced, or structural removal]
//	StatusDirty → StatusClean   [observed by the poll phase (Settle)]
//
// Any other value is rejected by [statusFlag.set].
type Status uint8

const (
	// StatusClean indicates the owner is stable and safe to iterate as-is.
	StatusClean Status = iota
	// StatusDirty indicates a structural mutation since the last observation.
	StatusDirty
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusClean:
		return "Clean"
	case StatusDirty:
		return "Dirty"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	return s == StatusClean || s == StatusDirty
}

// statusFlag guards a Status behind a validated setter.
type statusFlag struct {
	v Status
}

func (f *statusFlag) get() Status {
	return f.v
}

func (f *statusFlag) set(s Status) error {
	if !s.Valid() {
		return &ConfigurationError{Op: "set status", Cause: ErrInvalidStatus, Detail: s.String()}
	}
	f.v = s
	return nil
}

// mark is set for values known to be valid.
func (f *statusFlag) mark(s Status) {
	f.v = s
}
