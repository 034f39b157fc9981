package evloop

import "time"

// Interest is the set of readiness conditions a fd is registered for.
type Interest uint8

const (
	// InterestReadable registers for read readiness.
	InterestReadable Interest = 1 << iota
	// InterestWritable registers for write readiness.
	InterestWritable
)

// Token identifies which computation is blocked on a fd. TokenNone means
// "a thread-level wait, no computation to resume".
type Token uint64

// TokenNone is the sentinel token produced outside any computation.
const TokenNone Token = 0

// Event is one readiness notification reported by a Selector.
type Event struct {
	FD         int
	Token      Token
	Readable   bool
	Writable   bool
}

// Selector is the required external OS-readiness contract (§6). gaio's
// watcher and trpc-group/tnet's poller package are its ancestors: one
// epoll or kqueue instance, registered/reregistered/deregistered by fd.
type Selector interface {
	// Register starts monitoring fd for interest, associating token with it.
	Register(fd int, token Token, interest Interest) error
	// Reregister changes the interest set (and token) already registered for fd.
	Reregister(fd int, token Token, interest Interest) error
	// Deregister stops monitoring fd entirely.
	Deregister(fd int) error
	// Select blocks up to timeout waiting for readiness, appending fired
	// events to the supplied slice's backing array (via the returned slice).
	Select(events []Event, timeout time.Duration) ([]Event, error)
	// Close releases the OS readiness facility handle.
	Close() error
}

// maxSelectorEvents is the capacity of the per-wait event buffer (spec §4.1).
const maxSelectorEvents = 1024
