// Package reactor provides a single-goroutine, cooperative reactor: an event
// loop multiplexing readiness on a set of I/O handles, timer-gated tasks,
// and plain deferred tasks, dispatching exactly one callback per ready
// source per tick.
//
// # Architecture
//
// A [Dispatcher] owns four [HandlerRegistry] instances, one per [Mode]:
// [ModeRead], [ModeWrite] and [ModeError] hold readiness-gated [IOEvent]s
// keyed by handle, while [ModeTask] holds [TaskEvent]s and [TimedEvent]s,
// which run every tick.
//
// Each tick ([Dispatcher.RunCycle]):
//  1. Partitions each I/O registry into clean and dirty handles.
//  2. Polls every handle once, through the [Selector], blocking for at most
//     the quantum.
//  3. Queues the front callback of each ready event, read then write then
//     error, and settles every registry clean.
//  4. Invokes the queued callbacks, in order.
//  5. Runs every task, in insertion order. Timed tasks only run once all of
//     their timers elapsed, and those gated by a spent one-shot timer are
//     then detached.
//
// # Clean and dirty
//
// Callbacks may attach and detach handlers while a tick is in progress.
// Replacing the callbacks of an event, or removing an event, marks it (or
// its registry) [StatusDirty] until the next poll observes it. Handlers
// attached mid-tick are first polled, or run, on the next tick; callbacks
// already queued for the current tick still run if their handler is
// detached.
//
// # Platform Support
//
// The default [Selector] is [PollSelector], using poll(2), on Linux and
// macOS. [EpollSelector] is available on Linux. Handles are anything
// exposing a file descriptor: an int or uintptr descriptor, an [FDHandle]
// such as *os.File, or a syscall.Conn such as *net.TCPConn. Any other
// handle is rejected by [Dispatcher.AttachHandler].
//
// # Usage
//
//	d, err := reactor.New(reactor.WithQuantum(20))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	err = d.Run(ctx, func(d *reactor.Dispatcher) error {
//	    return d.AttachHandler(reactor.ModeRead, conn, false, func(h reactor.Handle, d *reactor.Dispatcher) error {
//	        // conn is readable
//	        return nil
//	    })
//	})
//
// # Errors
//
// Misuse of the attach and detach surface fails with a
// [*ConfigurationError]. A callback returning an error (or panicking) aborts
// the tick, and ends [Dispatcher.Run], unless [WithCallbackIsolation] is
// enabled.
package reactor
