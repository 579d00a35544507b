//go:build darwin

package coros

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller implements readinessPoller over kqueue:
// register/modify/unregister/wait, returning events rather than invoking
// stored callbacks.
type kqueuePoller struct {
	kq       int
	eventBuf []unix.Kevent_t
	// events tracks what's currently registered per fd, needed because
	// kqueue models read/write as independent filters that must each be
	// added/deleted explicitly rather than updated in place.
	events map[int]IOEvents
}

func newPoller() (readinessPoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, wrapError("coros: kqueue", err)
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:       kq,
		eventBuf: make([]unix.Kevent_t, 256),
		events:   make(map[int]IOEvents),
	}, nil
}

func (p *kqueuePoller) register(fd int, events IOEvents) error {
	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			return err
		}
	}
	p.events[fd] = events
	return nil
}

func (p *kqueuePoller) modify(fd int, events IOEvents) error {
	old := p.events[fd]
	if del := old &^ events; del != 0 {
		if kevents := eventsToKevents(fd, del, unix.EV_DELETE); len(kevents) > 0 {
			_, _ = unix.Kevent(p.kq, kevents, nil, nil)
		}
	}
	if add := events &^ old; add != 0 {
		if kevents := eventsToKevents(fd, add, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
			if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
				return err
			}
		}
	}
	p.events[fd] = events
	return nil
}

func (p *kqueuePoller) unregister(fd int) error {
	old := p.events[fd]
	delete(p.events, fd)
	kevents := eventsToKevents(fd, old, unix.EV_DELETE)
	if len(kevents) > 0 {
		_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	}
	return nil
}

func (p *kqueuePoller) wait(timeoutMs int, dst []pollEvent) ([]pollEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}
	for {
		n, err := unix.Kevent(p.kq, nil, p.eventBuf, ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, wrapError("coros: kevent", err)
		}
		for i := 0; i < n; i++ {
			fd := int(p.eventBuf[i].Ident)
			dst = append(dst, pollEvent{fd: fd, event: keventToEvents(&p.eventBuf[i])})
		}
		return dst, nil
	}
}

func (p *kqueuePoller) close() error {
	return unix.Close(p.kq)
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
