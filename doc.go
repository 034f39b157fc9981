// Package evloop is a user-space cooperative task runtime: a coroutine
// scheduler coupled with a readiness-based I/O event loop.
//
// Application code submits computations that may voluntarily suspend on
// I/O. A suspension registers the computation's file descriptor with the
// operating system's readiness facility (epoll on Linux, kqueue on
// BSD/Darwin); a worker thread resumes the computation once the fd
// becomes ready. Results are rendezvous-delivered to callers through a
// JoinHandle.
//
// The package exposes three tightly coupled pieces: EventLoop (one
// selector + one scheduler + per-fd bookkeeping on a single goroutine at
// a time), Pool (a fixed-size, process-wide collection of event loops
// with round-robin dispatch and draining workers), and JoinHandle (the
// rendezvous primitive).
//
// There are no fairness guarantees across computations, no work
// stealing between loops, and no cancellation of a running computation.
package evloop
