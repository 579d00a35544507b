package coros

import "strconv"

// waitTree is an ordered set of coroutines keyed by awaited file
// descriptor. Unlike the sleep tree it needs only exact-key lookup, insert,
// and remove — no min() — so it uses a direct-indexed array instead of a
// general tree: fds below the array length passed to newWaitTree
// (defaultMaxWaitFDArray for a Scheduler) are O(1) array lookups, anything
// larger falls back to an overflow map.
type waitTree struct {
	small    []*Coroutine // indexed directly by fd
	overflow map[int]*Coroutine
	count    int
}

func newWaitTree(maxFD int) *waitTree {
	return &waitTree{
		small:    make([]*Coroutine, maxFD),
		overflow: make(map[int]*Coroutine),
	}
}

func (t *waitTree) get(fd int) *Coroutine {
	if fd < 0 {
		return nil
	}
	if fd < len(t.small) {
		return t.small[fd]
	}
	return t.overflow[fd]
}

// insert registers co as the unique waiter on fd. Duplicate registration on
// an fd already waited upon is a programming error, not a recoverable
// condition, and panics.
func (t *waitTree) insert(co *Coroutine, fd int, events IOEvents) {
	if t.get(fd) != nil {
		panic("coros: duplicate wait registration for fd " + strconv.Itoa(fd))
	}
	if fd < len(t.small) {
		t.small[fd] = co
	} else {
		t.overflow[fd] = co
	}
	t.count++
	co.waitFD = fd
	co.waitEvents = events
	switch {
	case events&EventWrite != 0:
		co.status |= StatusWaitWrite
	default:
		co.status |= StatusWaitRead
	}
}

// remove looks up and clears the waiter on fd, also clearing wait-related
// status bits. Returns nil if none is registered.
func (t *waitTree) remove(fd int) *Coroutine {
	co := t.get(fd)
	if co == nil {
		return nil
	}
	if fd < len(t.small) {
		t.small[fd] = nil
	} else {
		delete(t.overflow, fd)
	}
	t.count--
	co.waitFD = -1
	co.waitEvents = 0
	co.status &^= StatusWaitRead | StatusWaitWrite
	return co
}

// cancel unconditionally removes co's own registration, used on teardown.
func (t *waitTree) cancel(co *Coroutine) {
	if co.waitFD >= 0 {
		t.remove(co.waitFD)
	}
}

func (t *waitTree) len() int { return t.count }
