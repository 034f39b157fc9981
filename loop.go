package evloop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EventLoop binds one Selector and one Scheduler on a single thread's
// worth of driving, plus the fd bookkeeping from spec §3. It is gaio's
// watcher generalized from proactor-style buffered read/write completion
// to reactor-style readiness dispatch: one OS readiness facility, one
// per-fd ledger, one CAS-gated entry point into the blocking syscall.
type EventLoop struct {
	id int

	selector  Selector
	scheduler *Scheduler
	timer     Timer
	log       logrus.FieldLogger

	readable *fdRegistry
	writable *fdRegistry
	// fdMu spans every check-then-act sequence that touches both
	// registries (addEvent's widen, DelReadEvent/DelWriteEvent's narrow,
	// wait's per-event removal). readable/writable each guard their own
	// map, but a has-check on one side followed by a register/insert on
	// the other is only atomic if something wider also serializes it;
	// this is that something.
	fdMu sync.Mutex

	waiting  atomic.Bool
	eventBuf []Event

	closed atomic.Bool
}

// NewEventLoop constructs a standalone event loop. Most callers should
// use a Pool instead; NewEventLoop is exposed for tests and for embedding
// a loop in a single-threaded program that wants to drive it itself via
// TryTimeoutSchedule.
func NewEventLoop(opts ...Option) (*EventLoop, error) {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	sel, err := newSelector()
	if err != nil {
		return nil, errors.Wrap(err, "new selector")
	}

	l := &EventLoop{
		selector: sel,
		timer:    cfg.timer,
		log:      cfg.log,
		readable: newFdRegistry(),
		writable: newFdRegistry(),
		eventBuf: make([]Event, 0, maxSelectorEvents),
	}
	l.scheduler = newScheduler(l)
	return l, nil
}

// ID is this loop's index within its Pool, or 0 for a standalone loop.
func (l *EventLoop) ID() int { return l.id }

// Close releases the underlying selector. Not part of spec §4.1; needed
// so tests and standalone callers can tear a loop down deterministically.
func (l *EventLoop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.selector.Close()
}

// Submit forwards to the Scheduler, which allocates a fresh name and
// (conceptually) a coroutine stack of stackSize bytes, or a default. No
// scheduling occurs synchronously.
func (l *EventLoop) Submit(body Body, stackSize int) (JoinHandle, error) {
	if l.closed.Load() {
		return JoinHandle{}, ErrClosed
	}
	name, err := l.scheduler.Submit(body, stackSize)
	if err != nil {
		return JoinHandle{}, errors.Wrap(err, "submit")
	}
	return JoinHandle{loop: l, name: name}, nil
}

// addEvent is the idempotent core of AddReadEvent/AddWriteEvent/
// Suspender.AddReadEvent/Suspender.AddWriteEvent (§4.1). The whole
// check-register-insert sequence runs under fdMu: reading the other
// side's registry, issuing the selector syscall, and inserting into
// this side's registry must be one atomic step, or two concurrent
// callers adding opposite interests on the same fd can both miss each
// other's registration and both issue a bare Register instead of one
// Reregister (EEXIST on Linux).
func (l *EventLoop) addEvent(fd int, token Token, interest Interest) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.fdMu.Lock()
	defer l.fdMu.Unlock()

	reg, other, otherInterest := l.sides(interest)
	if reg.has(fd) {
		return nil // idempotent: already registered, first-writer-wins
	}

	var err error
	if other.has(fd) {
		// fd already monitored for the other interest: widen the single OS
		// registration to cover both sides. The new token governs events
		// reported while both sides are active; this is a documented
		// limitation of packing one token per fd registration (DESIGN.md).
		err = l.selector.Reregister(fd, token, interest|otherInterest)
	} else {
		err = l.selector.Register(fd, token, interest)
	}
	if err != nil {
		return errors.Wrapf(err, "register fd=%d", fd)
	}

	if !reg.insert(fd, token) {
		l.log.WithField("fd", fd).Panic("evloop: double registration of fd, invariant violated")
	}
	return nil
}

func (l *EventLoop) sides(interest Interest) (mine, other *fdRegistry, otherInterest Interest) {
	if interest == InterestReadable {
		return l.readable, l.writable, InterestWritable
	}
	return l.writable, l.readable, InterestReadable
}

// AddReadEvent registers fd for read readiness from outside any
// computation (token is TokenNone). Computations should call
// Suspender.AddReadEvent instead so the registration carries their own
// token.
func (l *EventLoop) AddReadEvent(fd int) error {
	return l.addEvent(fd, TokenNone, InterestReadable)
}

// AddWriteEvent is AddReadEvent's write-side analog.
func (l *EventLoop) AddWriteEvent(fd int) error {
	return l.addEvent(fd, TokenNone, InterestWritable)
}

// DelEvent deregisters fd unconditionally, clearing both interests.
// Callers that want to drop only one side must use DelReadEvent/
// DelWriteEvent.
func (l *EventLoop) DelEvent(fd int) error {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()
	return l.delEventLocked(fd)
}

// delEventLocked is DelEvent's body, factored out so DelReadEvent/
// DelWriteEvent can fall through to it while already holding fdMu.
func (l *EventLoop) delEventLocked(fd int) error {
	_, readPresent := l.readable.get(fd)
	_, writePresent := l.writable.get(fd)
	if !readPresent && !writePresent {
		return ErrUnregisteredFD
	}
	if err := l.selector.Deregister(fd); err != nil {
		return errors.Wrapf(err, "deregister fd=%d", fd)
	}
	l.readable.remove(fd)
	l.writable.remove(fd)
	return nil
}

// DelReadEvent drops fd's read interest. If fd also carries a write
// interest, the OS registration is narrowed to write-only by
// reregistering with the stored write token (§4.1 "Narrowing"); the
// write side's own registration is never closed. The has-check,
// selector syscall and registry mutation run under fdMu, the same lock
// addEvent uses, so a concurrent AddWriteEvent/DelWriteEvent on the same
// fd can't interleave with this narrowing.
func (l *EventLoop) DelReadEvent(fd int) error {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()

	if !l.readable.has(fd) {
		return nil
	}
	if wtok, ok := l.writable.get(fd); ok {
		if err := l.selector.Reregister(fd, wtok, InterestWritable); err != nil {
			return errors.Wrapf(err, "narrow fd=%d to write", fd)
		}
		l.readable.remove(fd)
		return nil
	}
	return l.delEventLocked(fd)
}

// DelWriteEvent is DelReadEvent's write-side analog.
func (l *EventLoop) DelWriteEvent(fd int) error {
	l.fdMu.Lock()
	defer l.fdMu.Unlock()

	if !l.writable.has(fd) {
		return nil
	}
	if rtok, ok := l.readable.get(fd); ok {
		if err := l.selector.Reregister(fd, rtok, InterestReadable); err != nil {
			return errors.Wrapf(err, "narrow fd=%d to read", fd)
		}
		l.writable.remove(fd)
		return nil
	}
	return l.delEventLocked(fd)
}

// wait is the private primitive behind WaitJust/WaitEvent (§4.1).
func (l *EventLoop) wait(timeout time.Duration, scheduleBeforeWait bool) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.waiting.CompareAndSwap(false, true) {
		// Another caller is already inside the selector syscall. Returning
		// success immediately avoids thundering-herd entry; pool workers
		// loop continuously, so a missed wait is attempted again right away.
		return nil
	}

	if scheduleBeforeWait {
		remainingNS := l.scheduler.TryTimedSchedule(timeout.Nanoseconds())
		timeout = time.Duration(remainingNS)
	}

	events, err := l.selector.Select(l.eventBuf[:0], timeout)
	if err != nil {
		l.waiting.Store(false)
		return errors.Wrap(err, "selector select")
	}
	l.eventBuf = events
	l.waiting.Store(false)

	l.fdMu.Lock()
	for _, ev := range events {
		l.scheduler.ResumeSyscall(ev.Token)
		if ev.Readable {
			if _, ok := l.readable.remove(ev.FD); !ok {
				// §9 open question: tolerated, not asserted. A multi-loop
				// DelEvent fan-out can race a concurrent selector wait.
				l.log.WithField("fd", ev.FD).Debug("evloop: readable event for fd with no token entry")
			}
		}
		if ev.Writable {
			if _, ok := l.writable.remove(ev.FD); !ok {
				l.log.WithField("fd", ev.FD).Debug("evloop: writable event for fd with no token entry")
			}
		}
	}
	l.fdMu.Unlock()
	return nil
}

// WaitJust waits for selector readiness without first driving the
// scheduler.
func (l *EventLoop) WaitJust(timeout time.Duration) error {
	return l.wait(timeout, false)
}

// WaitEvent drives the scheduler for up to timeout, then waits out
// whatever budget remains on the selector.
func (l *EventLoop) WaitEvent(timeout time.Duration) error {
	return l.wait(timeout, true)
}

// WaitReadEvent registers fd for read readiness (token TokenNone, a
// thread-level wait with no computation to resume) then waits.
func (l *EventLoop) WaitReadEvent(fd int, timeout time.Duration) error {
	if err := l.AddReadEvent(fd); err != nil {
		return err
	}
	return l.WaitEvent(timeout)
}

// WaitWriteEvent is WaitReadEvent's write-side analog.
func (l *EventLoop) WaitWriteEvent(fd int, timeout time.Duration) error {
	if err := l.AddWriteEvent(fd); err != nil {
		return err
	}
	return l.WaitEvent(timeout)
}

// TryTimeoutSchedule drains the scheduler until the absolute deadline
// (nanoseconds), performs one non-blocking selector poll to harvest
// anything that became ready meanwhile, and returns the remaining
// budget. This is the primitive a single-threaded caller uses to drive
// its own loop instead of handing it to a Pool.
func (l *EventLoop) TryTimeoutSchedule(deadlineNS int64) (int64, error) {
	l.scheduler.TryTimeoutSchedule(deadlineNS, l.timer)
	if err := l.wait(0, false); err != nil {
		return 0, err
	}
	left := deadlineNS - l.timer.Now()
	if left < 0 {
		left = 0
	}
	return left, nil
}
