package reactor

import (
	"errors"
	"fmt"
	"os"
)

// Standard errors.
var (
	// ErrInvalidMode is the cause of a ConfigurationError for an unknown Mode.
	ErrInvalidMode = errors.New("reactor: invalid mode")

	// ErrMissingCallback is the cause of a ConfigurationError for a nil callback.
	ErrMissingCallback = errors.New("reactor: missing callback")

	// ErrInvalidStatus is the cause of a ConfigurationError for an unknown Status.
	ErrInvalidStatus = errors.New("reactor: invalid status")

	// ErrIONotAllowed is returned when attaching I/O interest to a dispatcher
	// configured as task-only.
	ErrIONotAllowed = errors.New("reactor: i/o attach not allowed")

	// ErrInvalidQuantum is the cause of a ConfigurationError for a quantum
	// rejected at construction time.
	ErrInvalidQuantum = errors.New("reactor: invalid quantum")

	// ErrInvalidTimer is the cause of a ConfigurationError for a timed task
	// attached without timers.
	ErrInvalidTimer = errors.New("reactor: invalid timer")

	// ErrInvalidHandle is returned for a handle the Selector cannot poll, by
	// AttachHandler where the Selector implements HandleValidator.
	ErrInvalidHandle = errors.New("reactor: handle does not expose a file descriptor")

	// ErrReentrantRun is returned when Run or RunCycle is called from within a callback.
	ErrReentrantRun = errors.New("reactor: cannot run the dispatcher from within a callback")

	// ErrAlreadyRunning is returned when Run is called on a running dispatcher.
	ErrAlreadyRunning = errors.New("reactor: dispatcher is already running")

	// ErrClosed is returned by operations on a closed dispatcher or selector.
	ErrClosed = errors.New("reactor: closed")

	// ErrInterrupted is matched by the error Run returns after catching a signal.
	ErrInterrupted = errors.New("reactor: interrupted")

	// ErrSelectorUnsupported is returned where no readiness primitive exists.
	ErrSelectorUnsupported = errors.New("reactor: no readiness selector for this platform")
)

// ConfigurationError reports invalid use of the attach/detach surface or of
// the configuration. It is always returned to the caller, never swallowed.
type ConfigurationError struct {
	Cause  error
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := "reactor: configuration error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// ConfigurationWarning describes a rejected, non-fatal configuration change.
// Warnings are logged and the previous configuration retained; they are
// never returned from the call that produced them.
type ConfigurationWarning struct {
	Setting  string
	Value    any
	Retained any
}

// Error implements the error interface, so warnings can be logged with Err.
func (w *ConfigurationWarning) Error() string {
	return fmt.Sprintf("reactor: ignoring invalid %s %v, keeping %v", w.Setting, w.Value, w.Retained)
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("reactor: callback panicked: %v", e.Value)
}

// Unwrap returns the panic value if it is an error, otherwise nil.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// CallbackError attributes a callback failure to the source that fired it.
type CallbackError struct {
	Handle Handle
	Cause  error
	Mode   Mode
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Handle == nil {
		return fmt.Sprintf("reactor: %s callback failed: %v", e.Mode, e.Cause)
	}
	return fmt.Sprintf("reactor: %s callback failed for handle %v: %v", e.Mode, e.Handle, e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *CallbackError) Unwrap() error {
	return e.Cause
}

// InterruptError is returned by Run when an interrupt signal ended the loop.
// It matches ErrInterrupted.
type InterruptError struct {
	Signal os.Signal
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	if e.Signal == nil {
		return ErrInterrupted.Error()
	}
	return ErrInterrupted.Error() + " by " + e.Signal.String()
}

// Is matches ErrInterrupted.
func (e *InterruptError) Is(target error) bool {
	return target == ErrInterrupted
}
