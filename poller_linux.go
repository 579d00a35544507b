//go:build linux

package coros

import (
	"golang.org/x/sys/unix"
)

// epollPoller implements readinessPoller over epoll:
// register/modify/unregister/wait, returning events instead of invoking
// stored callbacks, since here the scheduler's wait tree — not the poller —
// owns the dispatch decision.
type epollPoller struct {
	epfd     int
	eventBuf []unix.EpollEvent
}

func newPoller() (readinessPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrapError("coros: epoll_create1", err)
	}
	return &epollPoller{
		epfd:     epfd,
		eventBuf: make([]unix.EpollEvent, 256),
	}, nil
}

func (p *epollPoller) register(fd int, events IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) modify(fd int, events IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *epollPoller) unregister(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wait(timeoutMs int, dst []pollEvent) ([]pollEvent, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.eventBuf, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue // transient kernel error: retried locally, invisible to callers.
			}
			return dst, wrapError("coros: epoll_wait", err)
		}
		for i := 0; i < n; i++ {
			dst = append(dst, pollEvent{
				fd:    int(p.eventBuf[i].Fd),
				event: epollToEvents(p.eventBuf[i].Events),
			})
		}
		return dst, nil
	}
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
