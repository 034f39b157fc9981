package evloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerSubmitDoesNotRunSynchronously(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	ran := make(chan struct{}, 1)
	name, err := loop.scheduler.Submit(func(s *Suspender) any {
		ran <- struct{}{}
		return 3
	}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	select {
	case <-ran:
		t.Fatal("body ran before scheduling")
	case <-time.After(20 * time.Millisecond):
	}

	loop.scheduler.TryTimedSchedule(int64(50 * time.Millisecond))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("body never ran after scheduling")
	}
}

func TestSchedulerSubmitRejectsNilBody(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	_, err = loop.scheduler.Submit(nil, 0)
	require.ErrorIs(t, err, ErrSubmissionFailed)
}

func TestSchedulerGetResultIsNonConsuming(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	name, err := loop.scheduler.Submit(func(s *Suspender) any { return 7 }, 0)
	require.NoError(t, err)
	loop.scheduler.TryTimedSchedule(int64(50 * time.Millisecond))

	require.Eventually(t, func() bool {
		v, ok := loop.scheduler.GetResult(name)
		return ok && v == 7
	}, time.Second, time.Millisecond)

	v, ok := loop.scheduler.GetResult(name)
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestSchedulerLetsOthersRunWhileOneIsSuspended(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	hSuspended, err := loop.Submit(func(s *Suspender) any {
		s.Suspend() // parks, releasing the run token for the other computation
		return "woke"
	}, 0)
	require.NoError(t, err)

	hOther, err := loop.Submit(func(s *Suspender) any { return "ran" }, 0)
	require.NoError(t, err)

	// Whichever of the two takes the run token first, hSuspended parks in
	// Suspend() without finishing; hOther must still be able to acquire the
	// run token and complete.
	require.Eventually(t, func() bool {
		loop.scheduler.TryTimedSchedule(int64(10 * time.Millisecond))
		v, ok := loop.scheduler.GetResult(hOther.Name())
		return ok && v == "ran"
	}, time.Second, 5*time.Millisecond)

	tok, ok := loop.scheduler.names.byName[hSuspended.Name()]
	require.True(t, ok)
	loop.scheduler.ResumeSyscall(tok)

	v, ok, err := hSuspended.Join()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "woke", v)
}

func TestSchedulerCurrentAlwaysEmpty(t *testing.T) {
	loop, err := NewEventLoop()
	require.NoError(t, err)
	defer loop.Close()

	name, ok := loop.scheduler.Current()
	require.False(t, ok)
	require.Empty(t, name)
}
