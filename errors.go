package evloop

import "github.com/pkg/errors"

// Sentinel errors returned by this package. Wrap with errors.Wrap at
// call boundaries so callers can still errors.Is against these.
var (
	// ErrTimedOut means a deadline elapsed before a join or selector wait completed.
	ErrTimedOut = errors.New("evloop: timed out")
	// ErrSubmissionFailed means the scheduler could not enqueue a computation;
	// Scheduler.Submit returns it for a nil Body.
	ErrSubmissionFailed = errors.New("evloop: submission failed")
	// ErrClosed means the event loop has been closed; returned by Submit
	// and by any wait (WaitJust/WaitEvent/WaitReadEvent/WaitWriteEvent)
	// called afterward.
	ErrClosed = errors.New("evloop: closed")
	// ErrUnregisteredFD means DelEvent was called on a fd that carries no
	// interest in this loop. DelReadEvent/DelWriteEvent on a fd without
	// that interest return nil instead.
	ErrUnregisteredFD = errors.New("evloop: fd not registered")
)
