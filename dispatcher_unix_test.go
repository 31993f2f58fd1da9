//go:build linux || darwin

package reactor

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDispatcher_pipeEndToEnd(t *testing.T) {
	testSelectors(t, func(t *testing.T, s Selector) {
		d, err := New(WithSelector(s), WithSignals(), WithQuantum(20))
		require.NoError(t, err)

		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		defer w.Close()

		type call struct {
			h Handle
			d *Dispatcher
		}
		var calls []call
		require.NoError(t, d.AttachHandler(ModeRead, r, false, func(h Handle, d *Dispatcher) error {
			calls = append(calls, call{h, d})
			var buf [64]byte
			_, err := h.(*os.File).Read(buf[:])
			return err
		}))

		// nothing to read: the poll times out
		start := time.Now()
		runTicks(t, d, 1)
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
		assert.Empty(t, calls)

		_, err = w.Write([]byte("ping"))
		require.NoError(t, err)
		runTicks(t, d, 1)
		require.Len(t, calls, 1)
		assert.Same(t, r, calls[0].h)
		assert.Same(t, d, calls[0].d)

		require.NoError(t, d.DetachHandler(ModeRead, r, true))
		_, err = w.Write([]byte("pong"))
		require.NoError(t, err)
		runTicks(t, d, 2)
		assert.Len(t, calls, 1)

		require.NoError(t, d.Close())
	})
}

func TestDispatcher_AttachHandler_unpollable(t *testing.T) {
	d, err := New(WithSignals(), WithQuantum(20))
	require.NoError(t, err)
	defer d.Close()

	var attached int
	require.NoError(t, d.AddAttachListener("l", false, func(Mode, Handle) { attached++ }))

	err = d.AttachHandler(ModeRead, "not-an-fd", false, func(Handle, *Dispatcher) error { return nil })
	require.ErrorIs(t, err, ErrInvalidHandle)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "attach handler", cfgErr.Op)

	rr, _ := d.Registry(ModeRead)
	assert.Zero(t, rr.Len())
	assert.Zero(t, attached)

	// the rest of the dispatcher keeps working
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	var fired, tasks int
	require.NoError(t, d.AttachHandler(ModeRead, r, false, func(Handle, *Dispatcher) error {
		fired++
		return nil
	}))
	require.NoError(t, d.AttachHandler(ModeTask, nil, false, func(Handle, *Dispatcher) error {
		tasks++
		return nil
	}))
	runTicks(t, d, 2)
	assert.Equal(t, 2, fired)
	assert.Equal(t, 2, tasks)
	assert.Equal(t, 1, attached)
}

func TestDispatcher_closedDescriptorFires(t *testing.T) {
	d, err := New(WithSelector(NewPollSelector()), WithSignals(), WithQuantum(50))
	require.NoError(t, err)
	defer d.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.Close(fds[1]))
	require.NoError(t, unix.Close(fds[0]))

	var fired int
	require.NoError(t, d.AttachHandler(ModeRead, fds[0], false, func(h Handle, d *Dispatcher) error {
		fired++
		return d.DetachHandler(ModeRead, h, true)
	}))
	runTicks(t, d, 1)
	assert.Equal(t, 1, fired)

	// detached, so the next tick blocks for the quantum
	start := time.Now()
	runTicks(t, d, 1)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestDispatcher_pipeWriteThenRead(t *testing.T) {
	d, err := New(WithSignals(), WithQuantum(50))
	require.NoError(t, err)
	defer d.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	const messages = 3
	var (
		sent     int
		received []byte
	)
	err = d.Run(testContext(t), func(d *Dispatcher) error {
		if err := d.AttachHandler(ModeWrite, w, false, func(h Handle, d *Dispatcher) error {
			sent++
			if _, err := h.(*os.File).Write([]byte{byte('0' + sent)}); err != nil {
				return err
			}
			if sent == messages {
				return d.DetachHandler(ModeWrite, h, true)
			}
			return nil
		}); err != nil {
			return err
		}
		return d.AttachHandler(ModeRead, r, false, func(h Handle, d *Dispatcher) error {
			var buf [16]byte
			n, err := h.(*os.File).Read(buf[:])
			received = append(received, buf[:n]...)
			if len(received) == messages {
				d.Stop()
			}
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, "123", string(received))
	assert.Equal(t, messages, sent)
}

func TestDispatcher_Run_interrupt(t *testing.T) {
	var logs syncBuffer
	d, _, _ := newTestDispatcher(t,
		WithSignals(unix.SIGUSR1),
		WithLogger(newTestLogger(&logs)),
	)

	sent := false
	err := d.Run(testContext(t), func(d *Dispatcher) error {
		return d.AttachHandler(ModeTask, nil, false, func(Handle, *Dispatcher) error {
			if !sent {
				sent = true
				return unix.Kill(unix.Getpid(), unix.SIGUSR1)
			}
			time.Sleep(time.Millisecond)
			return nil
		})
	})
	require.ErrorIs(t, err, ErrInterrupted)
	var interrupt *InterruptError
	require.True(t, errors.As(err, &interrupt))
	assert.Equal(t, unix.SIGUSR1, interrupt.Signal)
	assert.Contains(t, logs.String(), `reactor: interrupted`)
	assert.False(t, d.Running())
}
