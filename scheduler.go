package evloop

import (
	"fmt"
	"sync"
	"time"
)

// Body is the computation a caller submits: it runs on its own goroutine,
// receives a Suspender bound to its own token, and returns the opaque
// result delivered to any JoinHandle waiting on it.
type Body func(s *Suspender) any

// Scheduler is the required external contract (§6): it owns a ready
// queue of named computations, advances them, and stores completion
// results keyed by name. The coroutine/stack-switching machinery itself
// is out of scope (§1); this implementation maps "computation" onto a
// goroutine and "suspend" onto a blocking receive on a private channel,
// so the Go runtime supplies the stack switching for free.
//
// Spec §5 requires the inner tier to be single-threaded cooperative:
// exactly one computation runs on a given loop's "thread" at a time,
// yielding only at a suspension point. A bare per-computation goroutine
// does not give that for free, so turn is a one-token baton: a
// computation's goroutine must hold it to run body code at all, and
// gives it up for the duration of any Suspend/SuspendTimeout call. This
// keeps the Go-goroutine-per-computation shape (cheap, auto-growing
// stacks) while restoring the serialization the fd registries rely on.
type Scheduler struct {
	loop  *EventLoop
	names *nameTable

	mu      sync.Mutex
	counter uint64
	pending []*computation
	active  map[Token]*computation

	results sync.Map // name string -> any

	turn chan struct{}
}

type computation struct {
	name      string
	token     Token
	stackSize int
	body      Body
	resumeCh  chan struct{}
	started   bool
}

func newScheduler(loop *EventLoop) *Scheduler {
	s := &Scheduler{
		loop:   loop,
		names:  newNameTable(),
		active: make(map[Token]*computation),
		turn:   make(chan struct{}, 1),
	}
	s.turn <- struct{}{}
	return s
}

// defaultStackSize mirrors gaio's "default internal buffer" convention:
// a zero/negative stackSize falls back to a sane default rather than
// erroring, since Go goroutines auto-grow their stacks regardless.
const defaultStackSize = 64 * 1024

// Submit allocates a fresh unique name and enqueues the computation. No
// scheduling happens synchronously (§4.1): the goroutine backing it is
// not started until a TryTimedSchedule/TryTimeoutSchedule call drains it.
func (s *Scheduler) Submit(body Body, stackSize int) (string, error) {
	if body == nil {
		return "", ErrSubmissionFailed
	}
	if stackSize <= 0 {
		stackSize = defaultStackSize
	}

	s.mu.Lock()
	s.counter++
	name := fmt.Sprintf("co-%d", s.counter)
	token := s.names.intern(name)
	c := &computation{
		name:      name,
		token:     token,
		stackSize: stackSize,
		body:      body,
		resumeCh:  make(chan struct{}, 1),
	}
	s.active[token] = c
	s.pending = append(s.pending, c)
	s.mu.Unlock()

	return name, nil
}

// popPending drains the ready queue, spawning each computation's
// goroutine, stopping once budget nanoseconds have elapsed or the queue
// is empty. Returns the number of computations started. Spawning a
// computation's goroutine does not run its body immediately: the
// goroutine blocks acquiring turn, so computations still execute one at
// a time regardless of how many are spawned back-to-back here.
func (s *Scheduler) popPending(budget time.Duration) int {
	deadline := time.Now().Add(budget)
	started := 0
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return started
		}
		c := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.start(c)
		started++

		if budget <= 0 || time.Now().After(deadline) {
			return started
		}
	}
}

func (s *Scheduler) start(c *computation) {
	c.started = true
	go func() {
		<-s.turn // wait for exclusive run access to this loop
		result := c.body(&Suspender{c: c, loop: s.loop, sched: s})
		s.results.Store(c.name, result)
		s.names.release(c.name)

		s.mu.Lock()
		delete(s.active, c.token)
		s.mu.Unlock()

		s.turn <- struct{}{} // hand the turn to whatever runs next
	}()
}

// releaseTurn gives up this loop's single run token; called by a
// Suspender around a suspension so another ready or newly started
// computation can run while this one is parked.
func (s *Scheduler) releaseTurn() {
	s.turn <- struct{}{}
}

// acquireTurn reclaims the run token; called by a Suspender after
// waking from suspension, before its body resumes executing.
func (s *Scheduler) acquireTurn() {
	<-s.turn
}

// TryTimedSchedule drains ready computations for up to maxNS nanoseconds
// and returns the remaining budget (possibly zero).
func (s *Scheduler) TryTimedSchedule(maxNS int64) int64 {
	start := time.Now()
	s.popPending(time.Duration(maxNS))
	elapsed := time.Since(start)
	remaining := maxNS - elapsed.Nanoseconds()
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// TryTimeoutSchedule drains ready computations until the absolute
// deadline (nanoseconds, as returned by a Timer) and returns the
// remaining budget.
func (s *Scheduler) TryTimeoutSchedule(deadlineNS int64, timer Timer) int64 {
	budget := remaining(timer, deadlineNS)
	s.popPending(budget)
	left := deadlineNS - timer.Now()
	if left < 0 {
		left = 0
	}
	return left
}

// GetResult is a non-blocking lookup; it does not remove the cell, so a
// second join after completion observes the same payload (§9 open
// question, resolved in favor of the re-readable interpretation).
func (s *Scheduler) GetResult(name string) (any, bool) {
	return s.results.Load(name)
}

// ResumeSyscall marks the computation associated with token ready by
// waking its goroutine. A no-op for TokenNone.
func (s *Scheduler) ResumeSyscall(token Token) {
	if token == TokenNone {
		return
	}
	s.mu.Lock()
	c, ok := s.active[token]
	s.mu.Unlock()
	if !ok {
		if name, found := s.names.lookup(token); found {
			s.loop.log.WithField("token", token).WithField("name", name).
				Debug("evloop: resume_syscall for a completed or unknown computation")
		}
		return
	}
	select {
	case c.resumeCh <- struct{}{}:
	default:
		// already has a pending wakeup; idempotent.
	}
}

// Current is part of the Scheduler contract (§6), used by implementations
// that derive a registration token from implicit thread-local state.
// This runtime never needs it: a computation's token is carried
// explicitly on the Suspender handed to its body (see Suspender.Token),
// which is the idiomatic Go substitute for the source's thread-local
// coroutine lookup. Current always reports "no running computation";
// callers that need the token of the computation they're in should read
// it off their own Suspender instead.
func (s *Scheduler) Current() (string, bool) {
	return "", false
}
