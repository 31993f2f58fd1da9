package reactor

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// Metrics tracks runtime statistics for the dispatcher. Collection is
// enabled with [WithMetrics].
//
// The dispatcher goroutine records into its own instance, once per tick.
// [Dispatcher.Metrics] returns a copy, safe to read from any goroutine.
type Metrics struct {
	// TickLatency is the distribution of the time spent per tick, excluding
	// the time blocked in the selector.
	TickLatency LatencyMetrics

	// Ticks is the number of completed ticks.
	Ticks uint64

	// ReadyHandles is the number of (handle, mode) pairs reported ready.
	ReadyHandles uint64

	// IOCallbacks is the number of I/O callbacks invoked.
	IOCallbacks uint64

	// TaskRuns is the number of task-mode events executed, including timed
	// events whose gate was still closed.
	TaskRuns uint64

	// TimedFires is the number of timed events whose gate was open.
	TimedFires uint64

	// Retired is the number of spent timed events detached.
	Retired uint64

	// CallbackFailures is the number of callbacks that returned an error or
	// panicked.
	CallbackFailures uint64

	mu sync.Mutex
}

// tickStats accumulates the counters of a single tick without locking.
type tickStats struct {
	ready      int
	ioCalls    int
	taskRuns   int
	timedFires int
	retired    int
	failures   int
}

func (m *Metrics) record(s *tickStats, elapsed time.Duration) {
	m.mu.Lock()
	m.Ticks++
	m.ReadyHandles += uint64(s.ready)
	m.IOCallbacks += uint64(s.ioCalls)
	m.TaskRuns += uint64(s.taskRuns)
	m.TimedFires += uint64(s.timedFires)
	m.Retired += uint64(s.retired)
	m.CallbackFailures += uint64(s.failures)
	m.mu.Unlock()
	m.TickLatency.Record(elapsed)
}

// snapshot copies the counters, and computes the latency percentiles.
func (m *Metrics) snapshot() *Metrics {
	out := new(Metrics)
	m.mu.Lock()
	out.Ticks = m.Ticks
	out.ReadyHandles = m.ReadyHandles
	out.IOCallbacks = m.IOCallbacks
	out.TaskRuns = m.TaskRuns
	out.TimedFires = m.TimedFires
	out.Retired = m.Retired
	out.CallbackFailures = m.CallbackFailures
	m.mu.Unlock()
	m.TickLatency.copyTo(&out.TickLatency)
	return out
}

// sampleSize bounds the latency window: only the most recent ticks count.
const sampleSize = 1000

// LatencyMetrics summarises tick latencies over a window of the last
// sampleSize observations. The exported fields hold the result of the last
// Sample, and are zero until then.
type LatencyMetrics struct {
	window [sampleSize]time.Duration
	// next is the slot the following observation overwrites
	next   int
	filled int

	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
	Max time.Duration

	// Mean and Sum cover the window, not every observation ever made.
	Mean time.Duration
	Sum  time.Duration

	mu sync.RWMutex
}

// Record adds an observation, evicting the oldest once the window is full.
func (l *LatencyMetrics) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.filled == sampleSize {
		l.Sum -= l.window[l.next]
	} else {
		l.filled++
	}
	l.window[l.next] = d
	l.Sum += d
	l.next = (l.next + 1) % sampleSize
}

// Sample refreshes the exported summary from the window, returning how many
// observations it covers.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summarize()
}

func (l *LatencyMetrics) summarize() int {
	n := l.filled
	if n == 0 {
		return 0
	}
	ordered := slices.Clone(l.window[:n])
	slices.Sort(ordered)
	l.P50 = ordered[percentileIndex(n, 50)]
	l.P90 = ordered[percentileIndex(n, 90)]
	l.P99 = ordered[percentileIndex(n, 99)]
	l.Max = ordered[n-1]
	l.Mean = l.Sum / time.Duration(n)
	return n
}

// Count returns the number of observations in the window.
func (l *LatencyMetrics) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filled
}

// copyTo summarizes then copies the window into dst, which must not be
// shared yet.
func (l *LatencyMetrics) copyTo(dst *LatencyMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summarize()
	dst.window = l.window
	dst.next = l.next
	dst.filled = l.filled
	dst.P50, dst.P90, dst.P99, dst.Max = l.P50, l.P90, l.P99, l.Max
	dst.Mean, dst.Sum = l.Mean, l.Sum
}

// percentileIndex maps percentile p (0-100) to an index into n ordered
// observations, clamped to the last.
func percentileIndex(n, p int) int {
	return min(p*n/100, n-1)
}
