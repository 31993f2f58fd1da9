package reactor

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// maxQuantumMillis is the largest quantum representable as a time.Duration.
const maxQuantumMillis = math.MaxInt64 / int64(time.Millisecond)

// Dispatcher is the reactor: it owns one [HandlerRegistry] per [Mode], and
// runs the poll, fire, task cycle over them.
//
// A Dispatcher is driven by a single goroutine, the one calling Run or
// RunCycle. Callbacks run on that goroutine, and may freely attach and
// detach handlers. Only Stop, Running, Ticks and Metrics are safe to call
// from other goroutines.
type Dispatcher struct {
	tickTime time.Time

	selector Selector
	clock    Clock
	logger   *logiface.Logger[logiface.Event]
	limiter  *catrate.Limiter
	metrics  *Metrics
	work     *workList

	registries [ModeTask + 1]*HandlerRegistry

	ready   ReadySet
	polled  [len(ioModes)][]Handle
	taskBuf []Event
	signals []os.Signal

	attachListeners listenerList
	detachListeners listenerList

	stats tickStats

	quantum time.Duration
	ticks   atomic.Uint64
	running atomic.Bool

	// depth is the callback nesting level, non-zero within a callback
	depth int

	active  bool
	closed  bool
	debug   bool
	isolate bool
}

// New creates a new Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	selector := cfg.selector
	if selector == nil {
		if selector, err = NewSelector(); err != nil {
			return nil, err
		}
	}

	d := &Dispatcher{
		selector: selector,
		clock:    cfg.clock,
		logger:   cfg.logger,
		// at most one diagnostic per category per second, and ten per minute
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		}),
		work:    newWorkList(),
		signals: cfg.signals,
		quantum: time.Duration(cfg.quantum) * time.Millisecond,
		debug:   cfg.debug,
		isolate: cfg.isolate,
	}
	if cfg.metrics {
		d.metrics = new(Metrics)
	}
	for _, mode := range [...]Mode{ModeRead, ModeWrite, ModeError, ModeTask} {
		d.registries[mode] = newHandlerRegistry(mode, cfg.ioAllowed, d.logger, d.limiter)
	}

	d.logDebug().
		Dur(`quantum`, d.quantum).
		Bool(`io_allowed`, cfg.ioAllowed).
		Bool(`isolate`, d.isolate).
		Log(`reactor: created`)

	return d, nil
}

// Registry returns the registry serving mode. Registries must only be
// inspected: mutating them directly bypasses listener notification.
func (d *Dispatcher) Registry(mode Mode) (*HandlerRegistry, error) {
	return d.registry(mode, `registry`)
}

func (d *Dispatcher) registry(mode Mode, op string) (*HandlerRegistry, error) {
	if !mode.Valid() {
		return nil, &ConfigurationError{Op: op, Cause: ErrInvalidMode, Detail: mode.String()}
	}
	return d.registries[mode], nil
}

// AttachHandler registers cb under mode. For the I/O modes, the callback is
// added to the event for h (created on first attach): replaceIfBusy
// supersedes any callbacks already queued, otherwise cb queues behind them.
// Attach listeners are notified of I/O attaches only.
//
// A handle the selector reports it cannot poll (see [HandleValidator]) is
// rejected here, rather than failing every subsequent tick.
//
// For ModeTask, a new task running cb every tick is appended, and h is
// optional (it is passed to cb, and used to detach the task). Tasks are
// never deduplicated, and replaceIfBusy is ignored.
func (d *Dispatcher) AttachHandler(mode Mode, h Handle, replaceIfBusy bool, cb Callback) error {
	r, err := d.registry(mode, `attach handler`)
	if err != nil {
		return err
	}
	if cb == nil {
		return &ConfigurationError{Op: `attach handler`, Cause: ErrMissingCallback, Detail: mode.String()}
	}
	if d.closed {
		return ErrClosed
	}

	if mode == ModeTask {
		r.Attach(h, cb)
		d.logAttach(mode, h, replaceIfBusy)
		return nil
	}

	if h == nil {
		return &ConfigurationError{Op: `attach handler`, Cause: ErrInvalidHandle, Detail: mode.String()}
	}
	if v, ok := d.selector.(HandleValidator); ok {
		if err := v.ValidateHandle(h); err != nil {
			return &ConfigurationError{Op: `attach handler`, Cause: err, Detail: fmt.Sprintf(`%s %v`, mode, h)}
		}
	}
	if _, err := r.AttachIO(h, replaceIfBusy, cb); err != nil {
		return err
	}
	d.logAttach(mode, h, replaceIfBusy)
	d.attachListeners.notify(mode, h)
	return nil
}

// AttachTimer appends a task that runs cb once every one of timers has
// elapsed, as of the dispatcher's clock. A task gated by a spent one-shot
// timer, e.g. a [DeadlineTimer], is detached after it fires.
func (d *Dispatcher) AttachTimer(h Handle, cb Callback, timers ...Timer) error {
	if cb == nil {
		return &ConfigurationError{Op: `attach timer`, Cause: ErrMissingCallback}
	}
	if len(timers) == 0 {
		return &ConfigurationError{Op: `attach timer`, Cause: ErrInvalidTimer, Detail: `no timers`}
	}
	for _, t := range timers {
		if t == nil {
			return &ConfigurationError{Op: `attach timer`, Cause: ErrInvalidTimer, Detail: `nil timer`}
		}
	}
	if d.closed {
		return ErrClosed
	}
	ev := d.registries[ModeTask].AttachTimed(h, timers, cb)
	if b := d.logDebug(); b.Enabled() {
		b.Str(`handle`, fmt.Sprint(h)).
			Int(`timers`, len(timers)).
			Dur(`remaining`, ev.Remaining(d.clock.Now())).
			Log(`reactor: attached timer`)
	}
	return nil
}

// Every runs cb each time interval elapses, starting one interval from now.
func (d *Dispatcher) Every(h Handle, interval time.Duration, cb Callback) error {
	return d.AttachTimer(h, cb, NewIntervalTimer(d.clock.Now(), interval))
}

// After runs cb once, after delay.
func (d *Dispatcher) After(h Handle, delay time.Duration, cb Callback) error {
	return d.AttachTimer(h, cb, NewDeadlineTimer(d.clock.Now().Add(delay)))
}

// DetachHandler drops interest in h. Unless force is set, an event holding
// several callbacks only loses the most recently added one. Detaching an
// unknown handle is a no-op, and does not notify detach listeners. A nil
// handle is never known: tasks attached without a handle can only be
// removed with DetachAllHandlers.
//
// A callback already selected for the current tick still runs.
func (d *Dispatcher) DetachHandler(mode Mode, h Handle, force bool) error {
	r, err := d.registry(mode, `detach handler`)
	if err != nil {
		return err
	}
	ev, ok := r.FindByHandle(h)
	if !ok {
		return nil
	}
	removed := r.Detach(ev, force)
	d.logDetach(mode, h, removed)
	d.detachListeners.notify(mode, h)
	return nil
}

// DetachAllHandlers removes every event of mode, regardless of queued
// callbacks. Detach listeners are notified once per removed handle.
func (d *Dispatcher) DetachAllHandlers(mode Mode) error {
	r, err := d.registry(mode, `detach all handlers`)
	if err != nil {
		return err
	}

	var handles []Handle
	if d.detachListeners.len() != 0 {
		handles = make([]Handle, 0, r.Len())
		for _, ev := range r.Events() {
			if he, ok := ev.(HandleEvent); ok {
				handles = append(handles, he.Handle())
			}
		}
	}

	n := r.Clear()
	d.logDebug().
		Str(`mode`, mode.String()).
		Int(`removed`, n).
		Log(`reactor: detached all`)

	for _, h := range handles {
		d.detachListeners.notify(mode, h)
	}
	return nil
}

// AddAttachListener registers fn to be called after each I/O attach.
// A runOnce listener is removed as it is first invoked.
func (d *Dispatcher) AddAttachListener(name string, runOnce bool, fn ListenerFunc) error {
	if fn == nil {
		return &ConfigurationError{Op: `add attach listener`, Cause: ErrMissingCallback, Detail: name}
	}
	d.attachListeners.add(Listener{Fn: fn, Name: name, RunOnce: runOnce})
	return nil
}

// AddDetachListener registers fn to be called after each detach of a known
// handle. A runOnce listener is removed as it is first invoked.
func (d *Dispatcher) AddDetachListener(name string, runOnce bool, fn ListenerFunc) error {
	if fn == nil {
		return &ConfigurationError{Op: `add detach listener`, Cause: ErrMissingCallback, Detail: name}
	}
	d.detachListeners.add(Listener{Fn: fn, Name: name, RunOnce: runOnce})
	return nil
}

// RemoveAttachListener removes every attach listener with the given name,
// reporting whether there were any.
func (d *Dispatcher) RemoveAttachListener(name string) bool {
	return d.attachListeners.remove(name)
}

// RemoveDetachListener removes every detach listener with the given name,
// reporting whether there were any.
func (d *Dispatcher) RemoveDetachListener(name string) bool {
	return d.detachListeners.remove(name)
}

// RemoveAllAttachListeners removes every attach listener.
func (d *Dispatcher) RemoveAllAttachListeners() {
	d.attachListeners.reset()
}

// RemoveAllDetachListeners removes every detach listener.
func (d *Dispatcher) RemoveAllDetachListeners() {
	d.detachListeners.reset()
}

// ChangeReactorQuantum sets the poll timeout, in whole milliseconds. Any
// other value (fractional, negative, NaN or out of range) is logged as a
// [ConfigurationWarning] and the previous quantum retained. Reports whether
// the quantum was changed.
func (d *Dispatcher) ChangeReactorQuantum(milliseconds float64) bool {
	if math.IsNaN(milliseconds) ||
		milliseconds < 0 ||
		milliseconds > float64(maxQuantumMillis) ||
		milliseconds != math.Trunc(milliseconds) {
		d.logWarning(&ConfigurationWarning{
			Setting:  `quantum`,
			Value:    milliseconds,
			Retained: d.quantum,
		})
		return false
	}
	d.quantum = time.Duration(milliseconds) * time.Millisecond
	d.logDebug().Dur(`quantum`, d.quantum).Log(`reactor: quantum changed`)
	return true
}

// Quantum returns the poll timeout.
func (d *Dispatcher) Quantum() time.Duration { return d.quantum }

// Running reports whether Run is looping.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Stop makes Run return after the current tick. It may be called from any
// goroutine.
func (d *Dispatcher) Stop() { d.running.Store(false) }

// Ticks returns the number of completed ticks.
func (d *Dispatcher) Ticks() uint64 { return d.ticks.Load() }

// Metrics returns a snapshot of the collected metrics, or nil if collection
// was not enabled with [WithMetrics].
func (d *Dispatcher) Metrics() *Metrics {
	if d.metrics == nil {
		return nil
	}
	return d.metrics.snapshot()
}

// TickTime returns the time the current task phase started, i.e. the time
// timed tasks are gated against. Outside the task phase it returns the
// current time of the dispatcher's clock. It may be called on a nil
// Dispatcher, returning the wall clock.
func (d *Dispatcher) TickTime() time.Time {
	if d == nil {
		return systemClock.Now()
	}
	if d.tickTime.IsZero() {
		return d.clock.Now()
	}
	return d.tickTime
}

// Run runs setup (if any) from the dispatcher goroutine, then ticks until
// Stop is called, ctx is done, a callback fails, or one of the configured
// signals (see [WithSignals]) is received. A signal ends Run with an
// [*InterruptError], matching [ErrInterrupted].
func (d *Dispatcher) Run(ctx context.Context, setup func(*Dispatcher) error) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.depth != 0:
		return ErrReentrantRun
	case d.active:
		return ErrAlreadyRunning
	}
	d.active = true
	d.running.Store(true)
	defer func() {
		d.running.Store(false)
		d.active = false
	}()

	var interrupts chan os.Signal
	if len(d.signals) != 0 {
		interrupts = make(chan os.Signal, 1)
		signal.Notify(interrupts, d.signals...)
		defer signal.Stop(interrupts)
	}

	if setup != nil {
		if err := d.setup(setup); err != nil {
			return err
		}
	}

	d.logger.Info().
		Dur(`quantum`, d.quantum).
		Log(`reactor: running`)

	for d.running.Load() {
		select {
		case <-ctx.Done():
			d.logger.Info().
				Uint64(`ticks`, d.Ticks()).
				Err(ctx.Err()).
				Log(`reactor: context done`)
			return ctx.Err()
		case sig := <-interrupts:
			d.logger.Warning().
				Str(`signal`, sig.String()).
				Uint64(`ticks`, d.Ticks()).
				Log(`reactor: interrupted`)
			return &InterruptError{Signal: sig}
		default:
		}
		if err := d.runCycle(); err != nil {
			d.logger.Err().
				Uint64(`ticks`, d.Ticks()).
				Err(err).
				Log(`reactor: tick failed`)
			return err
		}
	}

	d.logger.Info().
		Uint64(`ticks`, d.Ticks()).
		Log(`reactor: stopped`)

	return nil
}

func (d *Dispatcher) setup(fn func(*Dispatcher) error) error {
	d.depth++
	defer func() { d.depth-- }()
	return fn(d)
}

// RunCycle performs a single tick, see [Dispatcher.Run]. It must not be
// called from within a callback.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	switch {
	case d.closed:
		return ErrClosed
	case d.depth != 0:
		return ErrReentrantRun
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.runCycle()
}

func (d *Dispatcher) runCycle() error {
	d.stats = tickStats{}
	// anything left behind by a panicking callback
	d.work.reset()

	for i, mode := range ioModes {
		clean, dirty := d.registries[mode].Partition()
		d.polled[i] = append(append(d.polled[i][:0], clean...), dirty...)
	}

	err := d.selector.Select(d.polled[0], d.polled[1], d.polled[2], d.quantum, &d.ready)
	for i := range d.polled {
		clear(d.polled[i])
	}
	if err != nil {
		return err
	}

	start := time.Now()

	for _, mode := range ioModes {
		r := d.registries[mode]
		for _, h := range d.ready.list(mode) {
			ev, ok := r.FindByHandle(h)
			if !ok {
				continue
			}
			if cb := ev.Front(); cb != nil {
				d.work.push(mode, h, cb)
			}
		}
	}
	d.stats.ready = d.ready.Len()
	d.ready.Reset()

	// the poll observed every registry: anything replaced or removed from
	// here on is dirty as of the next tick
	for _, mode := range ioModes {
		if d.registries[mode].Settle() {
			d.logDebug().Str(`mode`, mode.String()).Log(`reactor: settled dirty registry`)
		}
	}

	for {
		item, ok := d.work.pop()
		if !ok {
			break
		}
		d.stats.ioCalls++
		if err := d.fire(item); err != nil {
			d.work.reset()
			return err
		}
	}

	if err := d.runTasks(); err != nil {
		return err
	}

	d.ticks.Add(1)
	if d.metrics != nil {
		d.metrics.record(&d.stats, time.Since(start))
	}

	return nil
}

// runTasks executes a snapshot of the task registry, in insertion order.
// Tasks attached during the phase first run next tick.
func (d *Dispatcher) runTasks() error {
	tasks := d.registries[ModeTask]
	d.taskBuf = append(d.taskBuf[:0], tasks.Events()...)
	d.tickTime = d.clock.Now()
	defer func() {
		clear(d.taskBuf)
		d.taskBuf = d.taskBuf[:0]
		d.tickTime = time.Time{}
	}()

	for _, ev := range d.taskBuf {
		ex, ok := ev.(Executable)
		if !ok {
			tasks.diagnose(`unexecutable`, ev)
			continue
		}
		d.stats.taskRuns++
		if err := d.execute(ex); err != nil {
			return err
		}
	}

	for _, ev := range d.taskBuf {
		te, ok := ev.(*TimedEvent)
		if !ok || !te.Exhausted() {
			continue
		}
		if tasks.Detach(te, true) {
			d.stats.retired++
			d.logDetach(ModeTask, te.Handle(), true)
			d.detachListeners.notify(ModeTask, te.Handle())
		}
	}

	return nil
}

func (d *Dispatcher) fire(item workItem) (err error) {
	d.depth++
	defer d.leave(item.mode, item.handle, &err)
	return item.cb(item.handle, d)
}

func (d *Dispatcher) execute(ex Executable) (err error) {
	var h Handle
	if he, ok := ex.(HandleEvent); ok {
		h = he.Handle()
	}
	d.depth++
	defer d.leave(ModeTask, h, &err)
	if te, ok := ex.(*TimedEvent); ok {
		var fired bool
		fired, err = te.ExecuteAt(d, d.tickTime)
		if fired {
			d.stats.timedFires++
		}
		return err
	}
	return ex.Execute(d)
}

// leave must be deferred directly by the callback invocation. With isolation
// enabled it recovers panics, and reports then swallows failures. Otherwise
// failures are attributed and propagated, and panics are left alone.
func (d *Dispatcher) leave(mode Mode, h Handle, err *error) {
	d.depth--
	if d.isolate {
		if r := recover(); r != nil {
			*err = PanicError{Value: r}
		}
	}
	if *err == nil {
		return
	}
	d.stats.failures++
	cbErr := &CallbackError{Handle: h, Cause: *err, Mode: mode}
	if d.isolate {
		d.logCallbackFailure(cbErr)
		*err = nil
		return
	}
	*err = cbErr
}

// Close stops the dispatcher, drops every handler and listener, and closes
// the selector. Handles are owned by the application and left open.
func (d *Dispatcher) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.Stop()
	for _, r := range d.registries[ModeRead:] {
		r.Clear()
	}
	d.attachListeners.reset()
	d.detachListeners.reset()
	d.work.reset()
	d.logDebug().Uint64(`ticks`, d.Ticks()).Log(`reactor: closed`)
	return d.selector.Close()
}
