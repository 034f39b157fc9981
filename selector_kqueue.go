//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package evloop

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// tokenToPointer/pointerToToken stash the small interned Token in
// kqueue's pointer-sized Udata field. The value is never dereferenced as
// a pointer; it is an opaque integer round-tripped through the kernel,
// the same trick trpc-group/tnet's poller_kqueue.go plays with *Desc.
func tokenToPointer(token Token) unsafe.Pointer {
	return unsafe.Pointer(uintptr(token))
}

func pointerToToken(p *byte) Token {
	return Token(uintptr(unsafe.Pointer(p)))
}

// kqueueSelector is the BSD/Darwin Selector, grounded on
// trpc-group/tnet's poller_kqueue.go: one kqueue fd, a pair of
// EVFILT_READ/EVFILT_WRITE registrations per fd, the token stashed in
// Udata.
type kqueueSelector struct {
	fd     int
	events []unix.Kevent_t
}

func newSelector() (Selector, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "fcntl cloexec")
	}
	return &kqueueSelector{
		fd:     fd,
		events: make([]unix.Kevent_t, maxSelectorEvents),
	}, nil
}

func (s *kqueueSelector) changes(fd int, token Token, interest Interest, add bool) []unix.Kevent_t {
	flags := uint16(unix.EV_DELETE)
	if add {
		flags = unix.EV_ADD | unix.EV_CLEAR
	}
	var changes []unix.Kevent_t
	if add && interest&InterestReadable == 0 && interest&InterestWritable == 0 {
		return changes
	}
	mk := func(filter int16) unix.Kevent_t {
		return unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: filter,
			Flags:  flags,
			Udata:  (*byte)(tokenToPointer(token)),
		}
	}
	if interest&InterestReadable != 0 {
		changes = append(changes, mk(unix.EVFILT_READ))
	}
	if interest&InterestWritable != 0 {
		changes = append(changes, mk(unix.EVFILT_WRITE))
	}
	return changes
}

func (s *kqueueSelector) Register(fd int, token Token, interest Interest) error {
	changes := s.changes(fd, token, interest, true)
	if _, err := unix.Kevent(s.fd, changes, nil, nil); err != nil {
		return errors.Wrapf(err, "kevent add fd=%d", fd)
	}
	return nil
}

func (s *kqueueSelector) Reregister(fd int, token Token, interest Interest) error {
	// kqueue registrations are per-filter: narrowing deletes the dropped
	// filter, then EV_ADD re-adds the kept filter(s), replacing in place.
	if dropped := (InterestReadable | InterestWritable) &^ interest; dropped != 0 {
		del := s.changes(fd, token, dropped, false)
		if _, err := unix.Kevent(s.fd, del, nil, nil); err != nil && err != unix.ENOENT {
			return errors.Wrapf(err, "kevent del fd=%d", fd)
		}
	}
	return s.Register(fd, token, interest)
}

func (s *kqueueSelector) Deregister(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	// Either filter may be unregistered; kqueue reports ENOENT for the one
	// that was never added. That is not a caller-visible error.
	_, err := unix.Kevent(s.fd, changes, nil, nil)
	if err != nil && err != unix.ENOENT {
		return errors.Wrapf(err, "kevent del fd=%d", fd)
	}
	return nil
}

func (s *kqueueSelector) Select(events []Event, timeout time.Duration) ([]Event, error) {
	ts := durationToTimespec(timeout)
	n, err := unix.Kevent(s.fd, nil, s.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return events, nil
		}
		return events, errors.Wrap(err, "kevent wait")
	}
	for i := 0; i < n; i++ {
		raw := s.events[i]
		events = append(events, Event{
			FD:       int(raw.Ident),
			Token:    pointerToToken(raw.Udata),
			Readable: raw.Filter == unix.EVFILT_READ,
			Writable: raw.Filter == unix.EVFILT_WRITE,
		})
	}
	return events, nil
}

func (s *kqueueSelector) Close() error {
	return errors.Wrap(unix.Close(s.fd), "close kqueue fd")
}

func durationToTimespec(timeout time.Duration) *unix.Timespec {
	if timeout <= 0 {
		ts := unix.NsecToTimespec(0)
		return &ts
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	return &ts
}
