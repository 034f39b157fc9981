package evloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinSingleComputation(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	h, err := loop.Submit(func(s *Suspender) any { return 3 }, 0)
	require.NoError(t, err)

	v, ok, err := h.Join()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestJoinTwoComputationsInOrder(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	h1, err := loop.Submit(func(s *Suspender) any { return 3 }, 0)
	require.NoError(t, err)
	h2, err := loop.Submit(func(s *Suspender) any { return 4 }, 0)
	require.NoError(t, err)

	v1, ok, err := h1.Join()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, v1)

	v2, ok, err := h2.Join()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 4, v2)
}

func TestTimeoutJoinExpiresThenSucceeds(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	release := make(chan struct{})
	h, err := loop.Submit(func(s *Suspender) any {
		<-release
		return 5
	}, 0)
	require.NoError(t, err)

	_, ok, err := h.TimeoutJoin(0)
	require.ErrorIs(t, err, ErrTimedOut)
	require.False(t, ok)

	close(release)

	v, ok, err := h.TimeoutJoin(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 5, v)
}

func TestSentinelJoinHandleReturnsImmediately(t *testing.T) {
	var h JoinHandle
	require.True(t, h.IsSentinel())

	v, ok, err := h.Join()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)

	v, ok, err = h.TimeoutJoin(time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}
