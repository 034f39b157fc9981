package evloop

import "time"

// JoinHandle is the rendezvous primitive: an immutable (event loop,
// computation name) pair that blocks — by driving the loop — until the
// named computation completes or a deadline elapses.
//
// The zero JoinHandle is the sentinel handle (§3): a null loop reference
// and an empty name. Its operations return "no result" immediately, with
// no error. Submit hands back JoinHandle{} alongside the error on its
// failure paths.
type JoinHandle struct {
	loop *EventLoop
	name string
}

// joinPollInterval is the 10ms per-iteration cap from spec §4.3: it
// ensures progress even if the scheduler marks a result ready without
// any I/O wakeup.
const joinPollInterval = 10 * time.Millisecond

// IsSentinel reports whether h is the zero/error handle.
func (h JoinHandle) IsSentinel() bool {
	return h.loop == nil || h.name == ""
}

// Join blocks until the computation completes, returning its result.
// Errors from driving the loop are surfaced; a sentinel handle returns
// (nil, false, nil) immediately.
func (h JoinHandle) Join() (any, bool, error) {
	if h.IsSentinel() {
		return nil, false, nil
	}
	for {
		if v, ok := h.loop.scheduler.GetResult(h.name); ok {
			return v, true, nil
		}
		if err := h.loop.WaitEvent(joinPollInterval); err != nil {
			return nil, false, err
		}
	}
}

// TimeoutJoin is Join bounded by dur.
func (h JoinHandle) TimeoutJoin(dur time.Duration) (any, bool, error) {
	return h.TimeoutAtJoin(h.deadlineTimer().GetTimeoutTime(dur))
}

// TimeoutAtJoin is Join bounded by an absolute deadline in nanoseconds
// (as produced by a Timer). Each iteration waits min(deadline-now, 10ms);
// once that budget reaches zero without a result, it returns ErrTimedOut.
func (h JoinHandle) TimeoutAtJoin(deadlineNS int64) (any, bool, error) {
	if h.IsSentinel() {
		return nil, false, nil
	}
	timer := h.deadlineTimer()
	for {
		if v, ok := h.loop.scheduler.GetResult(h.name); ok {
			return v, true, nil
		}
		left := remaining(timer, deadlineNS)
		if left <= 0 {
			return nil, false, ErrTimedOut
		}
		if left > joinPollInterval {
			left = joinPollInterval
		}
		if err := h.loop.WaitEvent(left); err != nil {
			return nil, false, err
		}
	}
}

func (h JoinHandle) deadlineTimer() Timer {
	if h.loop == nil {
		return defaultTimer
	}
	return h.loop.timer
}

// Name returns the computation name this handle refers to, or "" for
// the sentinel handle.
func (h JoinHandle) Name() string { return h.name }
