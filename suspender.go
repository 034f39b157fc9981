package evloop

import "time"

// Suspender is handed to a submitted Body; it is the computation's own
// execution context, carrying the token the event loop needs to route a
// readiness event back to it. The stackful coroutine Suspender this
// mirrors (§1, out of scope) is implemented by explicit stack switching;
// here the "stack" is simply the goroutine Go already gave the body, and
// "suspend" is a blocking channel receive.
type Suspender struct {
	c     *computation
	loop  *EventLoop
	sched *Scheduler
}

// Suspend parks the calling computation until ResumeSyscall(token) wakes
// it, with no deadline. Bodies call this after registering interest on a
// fd via AddReadEvent/AddWriteEvent, exactly at the suspension points
// named in spec §5 ("exclusively at wait, wait_just, wait_event").
//
// This is the only point (besides SuspendTimeout) where a computation
// gives up its loop's run token: it releases the token before blocking
// so another ready computation can execute while this one waits, then
// reacquires it before returning, restoring the "one computation runs
// at a time" invariant for the body code that follows.
func (s *Suspender) Suspend() {
	s.sched.releaseTurn()
	<-s.c.resumeCh
	s.sched.acquireTurn()
}

// SuspendTimeout is Suspend bounded by a duration; it returns false if
// the deadline elapsed before a resume arrived. The fd registration (if
// any) is left in place either way — callers that time out and want to
// abandon the wait must still call DelReadEvent/DelWriteEvent themselves.
//
// A non-positive d is a non-blocking poll: since it never actually
// suspends, it does not release/reacquire the run token.
func (s *Suspender) SuspendTimeout(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.c.resumeCh:
			return true
		default:
			return false
		}
	}
	s.sched.releaseTurn()
	defer s.sched.acquireTurn()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.c.resumeCh:
		return true
	case <-t.C:
		return false
	}
}

// Token returns the stable id the event loop resumes this computation
// by. Exposed for callers building their own suspension points on top of
// a raw fd registration instead of WaitReadEvent/WaitWriteEvent.
func (s *Suspender) Token() Token { return s.c.token }

// Name returns the computation's name, the same one a JoinHandle for it
// carries.
func (s *Suspender) Name() string { return s.c.name }

// AddReadEvent registers fd for read readiness against this computation's
// token (§4.1 add_read_event, "derived from the running computation").
func (s *Suspender) AddReadEvent(fd int) error {
	return s.loop.addEvent(fd, s.c.token, InterestReadable)
}

// AddWriteEvent registers fd for write readiness against this
// computation's token.
func (s *Suspender) AddWriteEvent(fd int) error {
	return s.loop.addEvent(fd, s.c.token, InterestWritable)
}

// WaitReadEvent registers fd for read readiness then suspends until
// resumed or timeout elapses (§4.1 wait_read_event). Unlike the
// EventLoop-level method of the same name, this does not itself drive
// the OS selector wait — it parks, relying on a pool worker (or whatever
// goroutine is draining this loop) to observe the readiness event and
// call ResumeSyscall on this computation's token.
func (s *Suspender) WaitReadEvent(fd int, timeout time.Duration) error {
	if err := s.AddReadEvent(fd); err != nil {
		return err
	}
	if timeout <= 0 {
		s.Suspend()
		return nil
	}
	if !s.SuspendTimeout(timeout) {
		return ErrTimedOut
	}
	return nil
}

// WaitWriteEvent is WaitReadEvent's write-side analog.
func (s *Suspender) WaitWriteEvent(fd int, timeout time.Duration) error {
	if err := s.AddWriteEvent(fd); err != nil {
		return err
	}
	if timeout <= 0 {
		s.Suspend()
		return nil
	}
	if !s.SuspendTimeout(timeout) {
		return ErrTimedOut
	}
	return nil
}
