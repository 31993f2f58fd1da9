package reactor

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// ReadySet receives the handles a Selector found ready, one list per I/O
// mode. A handle only appears in a mode's list if it was passed in for
// that mode.
type ReadySet struct {
	Read  []Handle
	Write []Handle
	Error []Handle
}

// Reset empties the lists, keeping their capacity.
func (x *ReadySet) Reset() {
	clear(x.Read)
	clear(x.Write)
	clear(x.Error)
	x.Read = x.Read[:0]
	x.Write = x.Write[:0]
	x.Error = x.Error[:0]
}

// Len returns the total number of ready entries.
func (x *ReadySet) Len() int {
	return len(x.Read) + len(x.Write) + len(x.Error)
}

func (x *ReadySet) list(mode Mode) []Handle {
	switch mode {
	case ModeRead:
		return x.Read
	case ModeWrite:
		return x.Write
	case ModeError:
		return x.Error
	default:
		return nil
	}
}

// Selector is the readiness primitive: one call checks every given handle,
// blocking for at most timeout when nothing is ready. Running out of time is
// not an error, neither is being interrupted by a signal; both leave ready
// empty.
//
// A Selector is used from the dispatcher goroutine only.
type Selector interface {
	Select(read, write, except []Handle, timeout time.Duration, ready *ReadySet) error
	Close() error
}

// HandleValidator is optionally implemented by a Selector, to reject a
// handle it could never poll before it is attached. The error should match
// [ErrInvalidHandle] or [ErrSelectorUnsupported].
type HandleValidator interface {
	ValidateHandle(h Handle) error
}

// validateFD implements HandleValidator for the descriptor based selectors.
func validateFD(h Handle) error {
	fd, err := handleFD(h)
	switch {
	case errors.Is(err, ErrInvalidHandle):
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", ErrInvalidHandle, err)
	case fd < 0:
		return fmt.Errorf("%w: negative descriptor %d", ErrInvalidHandle, fd)
	}
	return nil
}

// FDHandle is implemented by handles exposing a file descriptor, such as
// *os.File.
type FDHandle interface {
	Fd() uintptr
}

// handleFD resolves the descriptor of a handle. Supported handles are plain
// int or uintptr descriptors, FDHandle, and syscall.Conn (e.g. *net.TCPConn).
func handleFD(h Handle) (int, error) {
	switch v := h.(type) {
	case int:
		return v, nil
	case uintptr:
		return int(v), nil
	case FDHandle:
		return int(v.Fd()), nil
	case syscall.Conn:
		raw, err := v.SyscallConn()
		if err != nil {
			return -1, err
		}
		fd := -1
		if err := raw.Control(func(u uintptr) { fd = int(u) }); err != nil {
			return -1, err
		}
		return fd, nil
	default:
		return -1, ErrInvalidHandle
	}
}

// timeoutMillis converts the quantum to the millisecond timeout of poll(2)
// and epoll_wait(2), rounding up so a sub-millisecond quantum still yields.
func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}

// NewSelector returns the default readiness primitive for the platform.
func NewSelector() (Selector, error) {
	return newDefaultSelector()
}
