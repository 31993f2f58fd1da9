package reactor

import (
	"cmp"
	"time"

	"golang.org/x/exp/slices"
)

// Handle identifies an I/O source (or, optionally, a task). Handles are
// opaque to the dispatcher and compared with ==, so they must be comparable.
type Handle = any

// Callback is the unit of work attached to the dispatcher. I/O callbacks
// receive the ready handle, task callbacks the handle they were attached
// with (possibly nil). A returned error aborts the current tick.
type Callback func(h Handle, d *Dispatcher) error

// Event is the unit of dispatchable work owned by a [HandlerRegistry].
type Event interface {
	// Status returns the clean/dirty flag.
	Status() Status

	// SetStatus changes the clean/dirty flag, failing for unknown values.
	SetStatus(s Status) error

	// Callbacks returns the queued callbacks in dispatch order. The returned
	// slice must not be modified.
	Callbacks() []Callback

	// Front returns the first queued callback, or nil.
	Front() Callback

	// Len returns the number of queued callbacks.
	Len() int

	// AddCallback either supersedes every queued callback with cb (marking
	// the event dirty) when replaceIfBusy is set, or queues cb behind them.
	AddCallback(replaceIfBusy bool, cb Callback)

	// RemoveLastCallback drops the most recently added callback, reporting
	// whether there was one.
	RemoveLastCallback() bool
}

// HandleEvent is an Event keyed by a handle.
type HandleEvent interface {
	Event
	Handle() Handle
}

// Executable is an Event that runs as a whole, once per tick, from the task
// registry.
type Executable interface {
	Event
	Execute(d *Dispatcher) error
}

// baseEvent implements the callback list and status shared by all events.
type baseEvent struct {
	callbacks []Callback
	status    statusFlag
}

func (e *baseEvent) Status() Status { return e.status.get() }

func (e *baseEvent) SetStatus(s Status) error { return e.status.set(s) }

func (e *baseEvent) Callbacks() []Callback { return e.callbacks }

func (e *baseEvent) Len() int { return len(e.callbacks) }

func (e *baseEvent) Front() Callback {
	if len(e.callbacks) == 0 {
		return nil
	}
	return e.callbacks[0]
}

func (e *baseEvent) AddCallback(replaceIfBusy bool, cb Callback) {
	if replaceIfBusy {
		// fresh backing array: anything iterating the old list keeps its view
		e.callbacks = []Callback{cb}
		e.status.mark(StatusDirty)
		return
	}
	e.callbacks = append(e.callbacks, cb)
}

func (e *baseEvent) RemoveLastCallback() bool {
	n := len(e.callbacks)
	if n == 0 {
		return false
	}
	e.callbacks = e.callbacks[: n-1 : n-1]
	return true
}

// TaskEvent runs every one of its callbacks, in insertion order, each time
// it executes.
type TaskEvent struct {
	handle Handle
	baseEvent
}

// NewTaskEvent returns a task with a fixed list of callbacks. The handle is
// optional, and only used to detach the task later.
func NewTaskEvent(h Handle, callbacks ...Callback) *TaskEvent {
	return &TaskEvent{
		handle:    h,
		baseEvent: baseEvent{callbacks: slices.Clone(callbacks)},
	}
}

// Handle returns the handle the task was attached with, possibly nil.
func (e *TaskEvent) Handle() Handle { return e.handle }

// Execute runs every callback in insertion order. Failures are not isolated:
// the first error is returned and the remaining callbacks are skipped.
func (e *TaskEvent) Execute(d *Dispatcher) error {
	for _, cb := range e.callbacks {
		if err := cb(e.handle, d); err != nil {
			return err
		}
	}
	return nil
}

// TimedEvent is a TaskEvent gated by one or more timers: it executes only
// when all of them have elapsed.
type TimedEvent struct {
	timers []Timer
	TaskEvent
}

// NewTimedEvent composes timers with a task. It panics if no timers are
// given, see [Dispatcher.AttachTimer] for the validated entry point.
func NewTimedEvent(h Handle, timers []Timer, callbacks ...Callback) *TimedEvent {
	if len(timers) == 0 {
		panic(ErrInvalidTimer)
	}
	return &TimedEvent{
		timers:    slices.Clone(timers),
		TaskEvent: *NewTaskEvent(h, callbacks...),
	}
}

// Timers returns the composed timers, soonest first as of the last
// execution. The returned slice must not be modified.
func (e *TimedEvent) Timers() []Timer { return e.timers }

// Ready reports whether every timer has elapsed.
func (e *TimedEvent) Ready(now time.Time) bool {
	for _, t := range e.timers {
		if !t.Elapsed(now) {
			return false
		}
	}
	return true
}

// Remaining returns the time until the gate opens, i.e. the largest
// remaining time across all timers.
func (e *TimedEvent) Remaining(now time.Time) time.Duration {
	var r time.Duration
	for _, t := range e.timers {
		r = max(r, t.Remaining(now))
	}
	return r
}

// Exhausted reports whether a one-shot timer has been spent, meaning the
// gate can never open again.
func (e *TimedEvent) Exhausted() bool {
	for _, t := range e.timers {
		if s, ok := t.(spentTimer); ok && s.Spent() {
			return true
		}
	}
	return false
}

// Execute runs the task at the dispatcher's tick time, see [TimedEvent.ExecuteAt].
func (e *TimedEvent) Execute(d *Dispatcher) error {
	_, err := e.ExecuteAt(d, d.TickTime())
	return err
}

// ExecuteAt runs the task if the gate is open at now, then consumes every
// timer and re-sorts them by remaining time. A closed gate is a no-op.
// Timers are consumed once the task ran, even if a callback failed, so a
// failing task is not retried until its timers elapse again.
func (e *TimedEvent) ExecuteAt(d *Dispatcher, now time.Time) (fired bool, err error) {
	if !e.Ready(now) {
		return false, nil
	}
	err = e.TaskEvent.Execute(d)
	for _, t := range e.timers {
		t.Consume(now)
	}
	slices.SortStableFunc(e.timers, func(a, b Timer) int {
		return cmp.Compare(a.Remaining(now), b.Remaining(now))
	})
	return true, err
}

// IOEvent binds a handle to a stack of callbacks. Only the front callback
// fires on readiness; the rest stay queued.
type IOEvent struct {
	handle Handle
	baseEvent
}

// NewIOEvent returns an event for the handle with a single callback.
func NewIOEvent(h Handle, cb Callback) *IOEvent {
	return &IOEvent{
		handle:    h,
		baseEvent: baseEvent{callbacks: []Callback{cb}},
	}
}

// Handle returns the handle the event is keyed by.
func (e *IOEvent) Handle() Handle { return e.handle }

var (
	// compile time assertions

	_ HandleEvent = (*IOEvent)(nil)
	_ HandleEvent = (*TaskEvent)(nil)
	_ Executable  = (*TaskEvent)(nil)
	_ Executable  = (*TimedEvent)(nil)
)
