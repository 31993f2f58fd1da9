package reactor

import (
	"golang.org/x/exp/slices"
)

// ListenerFunc receives attach or detach notifications.
type ListenerFunc func(mode Mode, h Handle)

// Listener is a named, optionally single-fire, attach/detach observer.
type Listener struct {
	Fn      ListenerFunc
	Name    string
	RunOnce bool
}

type listenerEntry struct {
	Listener
	id uint64
}

// listenerList preserves registration order.
type listenerList struct {
	items   []listenerEntry
	scratch []listenerEntry
	nextID  uint64
	depth   int
}

func (x *listenerList) add(l Listener) {
	x.nextID++
	x.items = append(x.items, listenerEntry{Listener: l, id: x.nextID})
}

// remove drops every listener with the given name.
func (x *listenerList) remove(name string) bool {
	n := len(x.items)
	x.retain(func(e listenerEntry) bool { return e.Name != name })
	return len(x.items) != n
}

func (x *listenerList) reset() {
	clear(x.items)
	x.items = x.items[:0]
}

func (x *listenerList) len() int { return len(x.items) }

// notify invokes the listeners registered when the pass started, in order,
// iterating a snapshot so listeners may add or remove listeners. Added
// listeners wait for the next pass, removed ones are skipped. A run-once
// listener is filtered out of the list as it is invoked, so nested passes
// never see it again.
func (x *listenerList) notify(mode Mode, h Handle) {
	if len(x.items) == 0 {
		return
	}

	var snapshot []listenerEntry
	if x.depth == 0 {
		x.scratch = append(x.scratch[:0], x.items...)
		snapshot = x.scratch
	} else {
		// a listener attached or detached a handler
		snapshot = slices.Clone(x.items)
	}
	x.depth++
	defer func() {
		x.depth--
		if x.depth == 0 {
			clear(x.scratch)
		}
	}()

	for _, e := range snapshot {
		if !x.contains(e.id) {
			// removed earlier in this pass
			continue
		}
		if e.RunOnce {
			x.retain(func(v listenerEntry) bool { return v.id != e.id })
		}
		e.Fn(mode, h)
	}
}

func (x *listenerList) contains(id uint64) bool {
	for _, e := range x.items {
		if e.id == id {
			return true
		}
	}
	return false
}

func (x *listenerList) retain(keep func(listenerEntry) bool) {
	out := x.items[:0]
	for _, e := range x.items {
		if keep(e) {
			out = append(out, e)
		}
	}
	clear(x.items[len(out):])
	x.items = out
}
