package evloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonotonicTimerGetTimeoutTime(t *testing.T) {
	timer := defaultTimer
	now := timer.Now()
	deadline := timer.GetTimeoutTime(time.Second)
	require.Greater(t, deadline, now)
	require.InDelta(t, now+int64(time.Second), deadline, float64(50*time.Millisecond))
}

func TestMonotonicTimerGetTimeoutTimeSaturates(t *testing.T) {
	timer := monotonicTimer{}
	deadline := timer.GetTimeoutTime(time.Duration(1<<63 - 1))
	require.Equal(t, int64(1<<63-1), deadline)
}

func TestMonotonicTimerGetTimeoutTimeNonPositive(t *testing.T) {
	timer := monotonicTimer{}
	now := timer.Now()
	deadline := timer.GetTimeoutTime(0)
	require.GreaterOrEqual(t, deadline, now)
}

func TestRemainingFloorsAtZero(t *testing.T) {
	timer := defaultTimer
	past := timer.Now() - int64(time.Second)
	require.Equal(t, time.Duration(0), remaining(timer, past))
}
