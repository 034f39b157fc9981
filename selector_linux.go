//go:build linux

package evloop

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollSelector is the Linux Selector, grounded on trpc-group/tnet's
// poller_epoll.go: a single epoll instance, EPOLLIN/EPOLLOUT interests,
// one token per fd stashed in the epoll_event's 64-bit data field.
type epollSelector struct {
	fd     int
	events []unix.EpollEvent
}

func newSelector() (Selector, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &epollSelector{
		fd:     fd,
		events: make([]unix.EpollEvent, maxSelectorEvents),
	}, nil
}

func interestToEpoll(interest Interest) uint32 {
	var events uint32
	if interest&InterestReadable != 0 {
		events |= unix.EPOLLIN
	}
	if interest&InterestWritable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func packToken(fd int, token Token) unix.EpollEvent {
	ev := unix.EpollEvent{Fd: int32(fd)}
	// Data is a union; storing the token in Pad alongside Fd survives the
	// round trip through the kernel, which echoes back whatever we set.
	ev.Pad = int32(token)
	return ev
}

func (s *epollSelector) Register(fd int, token Token, interest Interest) error {
	ev := packToken(fd, token)
	ev.Events = interestToEpoll(interest)
	if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl add fd=%d", fd)
	}
	return nil
}

func (s *epollSelector) Reregister(fd int, token Token, interest Interest) error {
	ev := packToken(fd, token)
	ev.Events = interestToEpoll(interest)
	if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return errors.Wrapf(err, "epoll_ctl mod fd=%d", fd)
	}
	return nil
}

func (s *epollSelector) Deregister(fd int) error {
	if err := unix.EpollCtl(s.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errors.Wrapf(err, "epoll_ctl del fd=%d", fd)
	}
	return nil
}

func (s *epollSelector) Select(events []Event, timeout time.Duration) ([]Event, error) {
	msec := durationToMillis(timeout)
	n, err := unix.EpollWait(s.fd, s.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return events, nil
		}
		return events, errors.Wrap(err, "epoll_wait")
	}
	for i := 0; i < n; i++ {
		raw := s.events[i]
		events = append(events, Event{
			FD:       int(raw.Fd),
			Token:    Token(uint32(raw.Pad)),
			Readable: raw.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: raw.Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}
	return events, nil
}

func (s *epollSelector) Close() error {
	return errors.Wrap(unix.Close(s.fd), "close epoll fd")
}

// durationToMillis saturates to epoll_wait's int-milliseconds contract:
// <0 reserved for "block forever" so a negative or zero Duration becomes
// a non-blocking poll, never an infinite wait by accident.
func durationToMillis(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	ms := timeout.Milliseconds()
	if ms > int64(int(^uint(0)>>1)) {
		return int(^uint(0) >> 1)
	}
	return int(ms)
}
