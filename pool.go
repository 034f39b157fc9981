package evloop

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// chunkTimeout bounds how long a single pool-level WaitEvent iteration
// may block the selector for, so STARTED can be observed promptly by
// Stop() and so Join's 10ms progress cap (§4.3) has somewhere to come
// from at the pool layer too.
const chunkTimeout = 10 * time.Millisecond

// Pool is a fixed-size, process-wide collection of event loops with
// round-robin dispatch, worker goroutines that keep them draining, and
// loop 0 reserved for a preemptive monitor (§4.2). Where EventLoop
// generalizes gaio's single watcher, Pool generalizes the thread-per-fd
// fan-out gaio's own watcher.loop()/pfd.Wait() pair hints at, made
// explicit as a fixed worker roster instead of one watcher goroutine.
type Pool struct {
	loops []*EventLoop
	index atomic.Uint64

	started atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	log logrus.FieldLogger
}

// NewPool builds a pool sized to runtime.NumCPU(), or WithPoolSize(n) if
// given. Loops are constructed eagerly (Go has no convenient lazy-static
// array primitive equivalent to the source's Lazy<Box<[EventLoop]>>, and
// eager construction keeps fd registry ownership simple to reason about).
func NewPool(opts ...Option) (*Pool, error) {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	n := cfg.poolSize
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}

	p := &Pool{
		loops: make([]*EventLoop, n),
		stop:  make(chan struct{}),
		log:   cfg.log,
	}
	for i := range p.loops {
		l, err := NewEventLoop(WithTimer(cfg.timer), WithLogger(cfg.log))
		if err != nil {
			for _, built := range p.loops[:i] {
				if built != nil {
					_ = built.Close()
				}
			}
			return nil, err
		}
		l.id = i
		p.loops[i] = l
	}
	return p, nil
}

// next picks the next loop round-robin. INDEX wraps to 1 (not 0) on
// overflow, matching the source: the call that observes the wraparound
// still dispatches against the wrapped value, only the *next* call
// benefits from the reset (§9 design note, intentionally unfixed).
func (p *Pool) next() *EventLoop {
	return p.loops[p.nextIndex()]
}

func (p *Pool) nextIndex() uint64 {
	newVal := p.index.Add(1)
	old := newVal - 1
	if old == math.MaxUint64 {
		p.index.Store(1)
	}
	return old % uint64(len(p.loops))
}

// Monitor returns loop 0, reserved for a preemptive monitor (out of
// scope, §1). It does not advance the round-robin counter, so Monitor()
// calls leave the dispatch sequence seen by next() unchanged.
func (p *Pool) Monitor() *EventLoop {
	return p.loops[0]
}

// Start spawns len(loops)-1 worker goroutines, one for each of loops
// 1..N-1 (loop 0 is left to the monitor), each draining its loop with
// 10ms WaitEvent ticks, until Stop is called. Safe to call more than
// once; only the first call has effect.
func (p *Pool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 1; i < len(p.loops); i++ {
		loop := p.loops[i]
		p.wg.Add(1)
		go func(loop *EventLoop) {
			defer p.wg.Done()
			for p.started.Load() {
				select {
				case <-p.stop:
					return
				default:
				}
				if err := loop.WaitEvent(chunkTimeout); err != nil {
					p.log.WithField("loop", loop.ID()).WithError(err).Warn("evloop: pool worker wait failed")
				}
			}
		}(loop)
	}
}

// Stop clears the started flag; worker goroutines drain their current
// wait and exit. Safe to call more than once or before Start.
func (p *Pool) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.stop = make(chan struct{})
}

// Submit lazily starts the pool, then dispatches to the next loop.
func (p *Pool) Submit(body Body, stackSize int) (JoinHandle, error) {
	p.Start()
	return p.next().Submit(body, stackSize)
}

// WaitEvent drives round-robin-chosen-once loop in <=10ms chunks until
// timeout is exhausted or a chunk errors.
func (p *Pool) WaitEvent(timeout time.Duration) error {
	loop := p.next()
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		chunk := left
		if chunk > chunkTimeout {
			chunk = chunkTimeout
		}
		if err := loop.WaitEvent(chunk); err != nil {
			return err
		}
	}
}

// WaitReadEvent forwards to the next loop's WaitReadEvent.
func (p *Pool) WaitReadEvent(fd int, timeout time.Duration) error {
	return p.next().WaitReadEvent(fd, timeout)
}

// WaitWriteEvent forwards to the next loop's WaitWriteEvent.
func (p *Pool) WaitWriteEvent(fd int, timeout time.Duration) error {
	return p.next().WaitWriteEvent(fd, timeout)
}

// DelEvent fans out across every loop: each may independently hold a
// registration for fd, and a fd not registered in a given loop is not an
// error, so per-loop errors are swallowed (logged at debug).
func (p *Pool) DelEvent(fd int) {
	for i := 0; i < len(p.loops); i++ {
		if err := p.next().DelEvent(fd); err != nil {
			p.log.WithField("fd", fd).WithError(err).Debug("evloop: pool DelEvent on one loop")
		}
	}
}

// DelReadEvent is DelEvent's read-only narrowing analog, fanned out the
// same way.
func (p *Pool) DelReadEvent(fd int) {
	for i := 0; i < len(p.loops); i++ {
		if err := p.next().DelReadEvent(fd); err != nil {
			p.log.WithField("fd", fd).WithError(err).Debug("evloop: pool DelReadEvent on one loop")
		}
	}
}

// DelWriteEvent is DelEvent's write-only narrowing analog, fanned out
// the same way.
func (p *Pool) DelWriteEvent(fd int) {
	for i := 0; i < len(p.loops); i++ {
		if err := p.next().DelWriteEvent(fd); err != nil {
			p.log.WithField("fd", fd).WithError(err).Debug("evloop: pool DelWriteEvent on one loop")
		}
	}
}

// TryTimeoutSchedule forwards to the next loop.
func (p *Pool) TryTimeoutSchedule(deadlineNS int64) (int64, error) {
	return p.next().TryTimeoutSchedule(deadlineNS)
}

// Size returns the number of loops in the pool.
func (p *Pool) Size() int { return len(p.loops) }

// Close stops the pool and closes every loop's selector.
func (p *Pool) Close() error {
	p.Stop()
	var first error
	for _, l := range p.loops {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
