// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"os"
	"syscall"

	"github.com/joeycumines/logiface"
)

// DefaultQuantumMillis is the poll timeout used unless [WithQuantum] is given.
const DefaultQuantumMillis = 10

// dispatcherOptions holds configuration options for Dispatcher creation.
type dispatcherOptions struct {
	logger    *logiface.Logger[logiface.Event]
	selector  Selector
	clock     Clock
	signals   []os.Signal
	quantum   int
	debug     bool
	ioAllowed bool
	isolate   bool
	metrics   bool
}

// --- Dispatcher Options ---

// Option configures a Dispatcher instance.
type Option interface {
	applyDispatcher(*dispatcherOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyDispatcherFunc func(*dispatcherOptions) error
}

func (o *optionImpl) applyDispatcher(opts *dispatcherOptions) error {
	return o.applyDispatcherFunc(opts)
}

// WithDebug enables debug-level logging of attach, detach and tick activity.
// Without a logger (see [WithLogger]) this has no visible effect.
func WithDebug(enabled bool) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.debug = enabled
		return nil
	}}
}

// WithQuantum sets the maximum time, in milliseconds, that a tick blocks
// waiting for readiness. Zero makes every poll non-blocking. Negative values
// are rejected.
func WithQuantum(milliseconds int) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		if milliseconds < 0 {
			return &ConfigurationError{Op: "with quantum", Cause: ErrInvalidQuantum}
		}
		opts.quantum = milliseconds
		return nil
	}}
}

// WithIOAllowed controls whether I/O interest may be attached. A dispatcher
// with I/O disallowed only accepts task-mode handlers.
func WithIOAllowed(allowed bool) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.ioAllowed = allowed
		return nil
	}}
}

// WithLogger sets the structured logger. Logging is disabled by default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithSelector replaces the readiness primitive, e.g. with an
// [EpollSelector]. The dispatcher takes ownership, closing it on Close.
func WithSelector(selector Selector) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.selector = selector
		return nil
	}}
}

// WithClock replaces the clock used to gate timed tasks.
func WithClock(clock Clock) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.clock = clock
		return nil
	}}
}

// WithCallbackIsolation makes the dispatcher recover from failing callbacks:
// returned errors and panics are logged (rate limited), and the tick goes on.
// By default a failing callback aborts the tick, and Run returns its error.
func WithCallbackIsolation(enabled bool) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.isolate = enabled
		return nil
	}}
}

// WithMetrics enables collection of tick and callback statistics, see
// [Dispatcher.Metrics].
func WithMetrics(enabled bool) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.metrics = enabled
		return nil
	}}
}

// WithSignals sets the signals Run treats as an interrupt. Defaults to
// os.Interrupt and SIGTERM. Calling it with no signals disables signal
// handling.
func WithSignals(signals ...os.Signal) Option {
	return &optionImpl{func(opts *dispatcherOptions) error {
		opts.signals = append(make([]os.Signal, 0, len(signals)), signals...)
		return nil
	}}
}

// resolveOptions applies Option instances to dispatcherOptions.
func resolveOptions(opts []Option) (*dispatcherOptions, error) {
	cfg := &dispatcherOptions{
		quantum:   DefaultQuantumMillis,
		ioAllowed: true,
		signals:   []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyDispatcher(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = systemClock
	}
	return cfg, nil
}
