package reactor

import (
	"math"
	"time"
)

// maxRemaining is reported by timers that will never elapse again.
const maxRemaining = time.Duration(math.MaxInt64)

// Clock provides the time used to gate timed tasks. The dispatcher samples it
// once per tick.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

var systemClock Clock = ClockFunc(time.Now)

// Timer is a delay or deadline composed into a [TimedEvent].
//
// Implementations are owned by exactly one TimedEvent, and are only ever
// called from the dispatcher goroutine.
type Timer interface {
	// Remaining returns the time left until the timer elapses, never negative.
	Remaining(now time.Time) time.Duration

	// Elapsed reports whether the timer is due.
	Elapsed(now time.Time) bool

	// Consume marks one firing as spent, rearming the timer according to its
	// own reissue policy.
	Consume(now time.Time)
}

// spentTimer is implemented by timers that can become permanently inert.
type spentTimer interface {
	Spent() bool
}

// IntervalTimer elapses every interval. After a firing is consumed, the next
// deadline is one interval after the previous one, unless that is already in
// the past, in which case it is one interval after the time of consumption
// (missed intervals are skipped, never replayed in a burst).
type IntervalTimer struct {
	next     time.Time
	interval time.Duration
}

// NewIntervalTimer returns a timer first elapsing at start+interval.
// A non-positive interval elapses on every check.
func NewIntervalTimer(start time.Time, interval time.Duration) *IntervalTimer {
	if interval < 0 {
		interval = 0
	}
	return &IntervalTimer{next: start.Add(interval), interval: interval}
}

// Interval returns the configured period.
func (t *IntervalTimer) Interval() time.Duration { return t.interval }

// Remaining implements Timer.
func (t *IntervalTimer) Remaining(now time.Time) time.Duration {
	if d := t.next.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Elapsed implements Timer.
func (t *IntervalTimer) Elapsed(now time.Time) bool {
	return !now.Before(t.next)
}

// Consume implements Timer.
func (t *IntervalTimer) Consume(now time.Time) {
	t.next = t.next.Add(t.interval)
	if !t.next.After(now) {
		t.next = now.Add(t.interval)
	}
}

// DeadlineTimer elapses once, at a fixed time. Once consumed it is spent:
// it never elapses again and its TimedEvent is retired by the dispatcher.
type DeadlineTimer struct {
	at    time.Time
	spent bool
}

// NewDeadlineTimer returns a one-shot timer elapsing at the given time.
func NewDeadlineTimer(at time.Time) *DeadlineTimer {
	return &DeadlineTimer{at: at}
}

// Remaining implements Timer.
func (t *DeadlineTimer) Remaining(now time.Time) time.Duration {
	if t.spent {
		return maxRemaining
	}
	if d := t.at.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Elapsed implements Timer.
func (t *DeadlineTimer) Elapsed(now time.Time) bool {
	return !t.spent && !now.Before(t.at)
}

// Consume implements Timer.
func (t *DeadlineTimer) Consume(time.Time) {
	t.spent = true
}

// Spent reports whether the single firing has been consumed.
func (t *DeadlineTimer) Spent() bool {
	return t.spent
}
