package evloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddEventNarrowingAndWidening(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	fd := int(w.Fd())

	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	require.NoError(t, loop.AddReadEvent(fd))
	require.True(t, loop.readable.has(fd))

	// Widening: fd already carries a read registration, adding write must
	// reregister rather than double-register.
	require.NoError(t, loop.AddWriteEvent(fd))
	require.True(t, loop.writable.has(fd))
	require.True(t, loop.readable.has(fd))

	// Narrowing: dropping read with write still present reregisters
	// write-only instead of deregistering entirely.
	require.NoError(t, loop.DelReadEvent(fd))
	require.False(t, loop.readable.has(fd))
	require.True(t, loop.writable.has(fd))

	require.NoError(t, loop.DelWriteEvent(fd))
	require.False(t, loop.writable.has(fd))
}

func TestDelEventOnUnregisteredFD(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	err = loop.DelEvent(int(r.Fd()))
	require.ErrorIs(t, err, ErrUnregisteredFD)
}

func TestWaitReadEventFiresWhenDataReady(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	err = loop.WaitReadEvent(int(r.Fd()), time.Second)
	require.NoError(t, err)
	require.False(t, loop.readable.has(int(r.Fd())), "event consumes the registration")
}

func TestClosedLoopRejectsSubmitAndWait(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	require.NoError(t, loop.Close())

	_, err = loop.Submit(func(s *Suspender) any { return nil }, 0)
	require.ErrorIs(t, err, ErrClosed)

	err = loop.WaitEvent(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSubmitAndWaitEventDrivesComputation(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	h, err := loop.Submit(func(s *Suspender) any { return 9 }, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		require.NoError(t, loop.WaitEvent(10*time.Millisecond))
		v, ok := loop.scheduler.GetResult(h.Name())
		return ok && v == 9
	}, time.Second, 5*time.Millisecond)
}
