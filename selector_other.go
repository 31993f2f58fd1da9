//go:build !linux && !darwin

package reactor

import (
	"time"
)

// sleepSelector is used where no readiness primitive is implemented. It
// supports task-only dispatchers, sleeping for the quantum each tick.
type sleepSelector struct {
	closed bool
}

func newDefaultSelector() (Selector, error) {
	return &sleepSelector{}, nil
}

func (s *sleepSelector) Select(read, write, except []Handle, timeout time.Duration, ready *ReadySet) error {
	if s.closed {
		return ErrClosed
	}
	ready.Reset()
	if len(read) != 0 || len(write) != 0 || len(except) != 0 {
		return ErrSelectorUnsupported
	}
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return nil
}

// ValidateHandle rejects every handle, only tasks are supported.
func (s *sleepSelector) ValidateHandle(Handle) error { return ErrSelectorUnsupported }

func (s *sleepSelector) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}
