package reactor

import (
	"fmt"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/exp/slices"
)

// HandlerRegistry is the unordered collection of events for one mode.
//
// A registry exclusively owns its events, and is owned by a single
// Dispatcher. It is not safe for concurrent use.
type HandlerRegistry struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter

	events []Event

	// reused by Partition
	clean []Handle
	dirty []Handle

	status    statusFlag
	mode      Mode
	ioAllowed bool
}

// diagnosticCategory is the catrate category for rate limited registry
// diagnostics.
type diagnosticCategory struct {
	kind string
	mode Mode
}

func newHandlerRegistry(mode Mode, ioAllowed bool, logger *logiface.Logger[logiface.Event], limiter *catrate.Limiter) *HandlerRegistry {
	return &HandlerRegistry{
		logger:    logger,
		limiter:   limiter,
		mode:      mode,
		ioAllowed: ioAllowed,
	}
}

// Mode returns the mode this registry serves.
func (r *HandlerRegistry) Mode() Mode { return r.mode }

// Len returns the number of events.
func (r *HandlerRegistry) Len() int { return len(r.events) }

// Events returns the events in insertion order. The returned slice must not
// be modified, and is invalidated by any structural change.
func (r *HandlerRegistry) Events() []Event { return r.events }

// Status is dirty if an event was structurally removed since the last Settle.
func (r *HandlerRegistry) Status() Status { return r.status.get() }

// FindByHandle performs a linear scan for the first event keyed by h.
// Events that have no handle are skipped, and a nil h matches nothing, so
// anonymous tasks cannot be found.
func (r *HandlerRegistry) FindByHandle(h Handle) (Event, bool) {
	if i := r.indexOfHandle(h); i >= 0 {
		return r.events[i], true
	}
	return nil, false
}

func (r *HandlerRegistry) indexOfHandle(h Handle) int {
	if h == nil {
		return -1
	}
	for i, ev := range r.events {
		he, ok := ev.(HandleEvent)
		if !ok {
			r.diagnose("handleless", ev)
			continue
		}
		if he.Handle() == h {
			return i
		}
	}
	return -1
}

func (r *HandlerRegistry) indexOf(ev Event) int {
	for i, v := range r.events {
		if v == ev {
			return i
		}
	}
	return -1
}

// Insert adds an event as-is. I/O registries keep at most one event per
// handle, so prefer AttachIO there.
func (r *HandlerRegistry) Insert(ev Event) {
	r.events = append(r.events, ev)
}

// Attach appends a new task. Tasks are never deduplicated: attaching the
// same handle twice yields two tasks.
func (r *HandlerRegistry) Attach(h Handle, cb Callback) *TaskEvent {
	ev := NewTaskEvent(h, cb)
	r.events = append(r.events, ev)
	return ev
}

// AttachTimed appends a new timer-gated task.
func (r *HandlerRegistry) AttachTimed(h Handle, timers []Timer, cb Callback) *TimedEvent {
	ev := NewTimedEvent(h, timers, cb)
	r.events = append(r.events, ev)
	return ev
}

// AttachIO adds cb to the event for h, creating the event if there is none.
// See [Event.AddCallback] for the meaning of replaceIfBusy.
func (r *HandlerRegistry) AttachIO(h Handle, replaceIfBusy bool, cb Callback) (Event, error) {
	if !r.ioAllowed {
		return nil, &ConfigurationError{Op: "attach " + r.mode.String(), Cause: ErrIONotAllowed}
	}
	if !r.mode.IO() {
		return nil, &ConfigurationError{Op: "attach io", Cause: ErrInvalidMode, Detail: r.mode.String()}
	}
	if ev, ok := r.FindByHandle(h); ok {
		ev.AddCallback(replaceIfBusy, cb)
		return ev, nil
	}
	ev := NewIOEvent(h, cb)
	r.events = append(r.events, ev)
	return ev, nil
}

// Detach drops interest in ev. Unless forced, an event holding more than one
// callback only loses its most recently added callback, and stays
// registered. Otherwise the event is removed and the registry marked dirty.
// Reports whether the event was removed.
func (r *HandlerRegistry) Detach(ev Event, force bool) bool {
	i := r.indexOf(ev)
	if i < 0 {
		return false
	}
	if !force && ev.Len() > 1 {
		ev.RemoveLastCallback()
		return false
	}
	r.events = slices.Delete(r.events, i, i+1)
	r.status.mark(StatusDirty)
	return true
}

// Clear removes every event, returning how many there were.
func (r *HandlerRegistry) Clear() int {
	n := len(r.events)
	clear(r.events)
	r.events = r.events[:0]
	if n != 0 {
		r.status.mark(StatusDirty)
	}
	return n
}

// Partition splits the handles of every non-inert event into those whose
// events are clean, and those just superseded (dirty). The returned slices
// are reused by the next call.
func (r *HandlerRegistry) Partition() (clean, dirty []Handle) {
	clear(r.clean)
	clear(r.dirty)
	r.clean = r.clean[:0]
	r.dirty = r.dirty[:0]
	for _, ev := range r.events {
		he, ok := ev.(HandleEvent)
		if !ok {
			r.diagnose("handleless", ev)
			continue
		}
		if ev.Len() == 0 {
			continue
		}
		if ev.Status() == StatusDirty {
			r.dirty = append(r.dirty, he.Handle())
		} else {
			r.clean = append(r.clean, he.Handle())
		}
	}
	return r.clean, r.dirty
}

// Settle marks every event and the registry itself clean, reporting whether
// anything was dirty.
func (r *HandlerRegistry) Settle() (changed bool) {
	if r.status.get() == StatusDirty {
		changed = true
		r.status.mark(StatusClean)
	}
	for _, ev := range r.events {
		if ev.Status() == StatusDirty {
			changed = true
			_ = ev.SetStatus(StatusClean)
		}
	}
	return changed
}

func (r *HandlerRegistry) diagnose(kind string, ev Event) {
	if _, ok := r.limiter.Allow(diagnosticCategory{kind: kind, mode: r.mode}); !ok {
		return
	}
	r.logger.Warning().
		Str(`mode`, r.mode.String()).
		Str(`event`, fmt.Sprintf(`%T`, ev)).
		Log(`reactor: skipping event without a handle`)
}
