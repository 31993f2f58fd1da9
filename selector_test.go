package reactor

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutMillis(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want int
	}{
		{-time.Second, 0},
		{0, 0},
		{time.Nanosecond, 1},
		{time.Millisecond, 1},
		{time.Millisecond + 1, 2},
		{10 * time.Millisecond, 10},
		{1500 * time.Microsecond, 2},
	} {
		assert.Equal(t, tc.want, timeoutMillis(tc.in), tc.in.String())
	}
}

func TestReadySet(t *testing.T) {
	var x ReadySet
	x.Read = append(x.Read, "a", "b")
	x.Write = append(x.Write, "c")
	x.Error = append(x.Error, "d")
	assert.Equal(t, 4, x.Len())
	assert.Equal(t, []Handle{"a", "b"}, x.list(ModeRead))
	assert.Equal(t, []Handle{"c"}, x.list(ModeWrite))
	assert.Equal(t, []Handle{"d"}, x.list(ModeError))
	assert.Nil(t, x.list(ModeTask))

	readCap := cap(x.Read)
	x.Reset()
	assert.Zero(t, x.Len())
	assert.Equal(t, readCap, cap(x.Read))
	assert.Nil(t, x.Read[:2][0])
}

func TestHandleFD(t *testing.T) {
	fd, err := handleFD(7)
	require.NoError(t, err)
	assert.Equal(t, 7, fd)

	fd, err = handleFD(uintptr(9))
	require.NoError(t, err)
	assert.Equal(t, 9, fd)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	fd, err = handleFD(r)
	require.NoError(t, err)
	assert.Equal(t, int(r.Fd()), fd)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	fd, err = handleFD(ln.(*net.TCPListener))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, fd, 0)

	_, err = handleFD("not a handle")
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = handleFD(nil)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestValidateFD(t *testing.T) {
	assert.NoError(t, validateFD(0))
	assert.NoError(t, validateFD(uintptr(3)))
	assert.ErrorIs(t, validateFD("not-an-fd"), ErrInvalidHandle)
	assert.ErrorIs(t, validateFD(-1), ErrInvalidHandle)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, validateFD(r))
	require.NoError(t, r.Close())
	// a closed file reports an invalid descriptor
	assert.ErrorIs(t, validateFD(r), ErrInvalidHandle)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	assert.ErrorIs(t, validateFD(ln.(*net.TCPListener)), ErrInvalidHandle)
}
