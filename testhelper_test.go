package reactor

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"golang.org/x/exp/slices"
)

// fakeSelector reports level-triggered readiness for the handles flagged
// ready in each mode, in the order they were passed in.
type fakeSelector struct {
	ready  [3]map[Handle]bool
	polled [3][]Handle
	err    error

	timeouts []time.Duration
	calls    int
	closed   bool
}

func newFakeSelector() *fakeSelector {
	s := new(fakeSelector)
	for i := range s.ready {
		s.ready[i] = make(map[Handle]bool)
	}
	return s
}

func (s *fakeSelector) setReady(mode Mode, h Handle, ready bool) {
	if ready {
		s.ready[mode-ModeRead][h] = true
	} else {
		delete(s.ready[mode-ModeRead], h)
	}
}

func (s *fakeSelector) Select(read, write, except []Handle, timeout time.Duration, ready *ReadySet) error {
	s.calls++
	s.timeouts = append(s.timeouts, timeout)
	ready.Reset()
	if s.closed {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	for i, handles := range [...][]Handle{read, write, except} {
		s.polled[i] = slices.Clone(handles)
		for _, h := range handles {
			if !s.ready[i][h] {
				continue
			}
			switch i {
			case 0:
				ready.Read = append(ready.Read, h)
			case 1:
				ready.Write = append(ready.Write, h)
			default:
				ready.Error = append(ready.Error, h)
			}
		}
	}
	return nil
}

func (s *fakeSelector) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// syncBuffer is a goroutine safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(``)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
}

// newTestDispatcher uses a fake selector and clock, and disables signal
// handling.
func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *fakeSelector, *fakeClock) {
	t.Helper()
	sel := newFakeSelector()
	clock := newFakeClock()
	opts = append([]Option{
		WithSelector(sel),
		WithClock(clock),
		WithSignals(),
		WithQuantum(0),
	}, opts...)
	d, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d, sel, clock
}

// recorder returns a callback appending its handle and tag to calls.
func recorder(calls *[]string, tag string) Callback {
	return func(h Handle, d *Dispatcher) error {
		if h == nil {
			*calls = append(*calls, tag)
		} else {
			*calls = append(*calls, tag+":"+h.(string))
		}
		return nil
	}
}

func runTicks(t *testing.T, d *Dispatcher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := d.RunCycle(testContext(t)); err != nil {
			t.Fatalf("RunCycle() tick %d failed: %v", i, err)
		}
	}
}

// testContext stands in for t.Context (Go 1.24+): it returns a context that
// is canceled when the test finishes.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
