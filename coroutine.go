package coros

import (
	"fmt"
	"sync"
	"time"
)

// EntryFunc is a coroutine's body. It runs exactly once, from creation to
// return (or panic), interleaved with other coroutines only at the
// suspension primitives (Yield, Sleep, Park).
type EntryFunc func(arg any)

// Coroutine is a single cooperatively-scheduled unit of execution. Create
// one with Scheduler.Spawn; operate on the one currently running via
// Current().
type Coroutine struct {
	id     uint64
	status Status

	entry EntryFunc
	arg   any

	sched *Scheduler

	// resume is the rendezvous channel the scheduler sends on to hand
	// control to this coroutine, and the coroutine itself receives from
	// after calling leave() (or, for a brand-new coroutine, before ever
	// touching entry — the one-shot bootstrap).
	resume chan struct{}

	savedStackSize int64
	savedStackCap  int64

	waitFD     int
	waitEvents IOEvents

	sleepDeadline int64
	heapIndex     int // position in the sleep tree's heap; -1 when absent

	birth int64
	ops   int

	freed  bool
	freeMu sync.Mutex

	// Label and CreatedBy are purely diagnostic; scheduling logic never
	// reads them.
	Label     string
	CreatedBy uint64
}

// ID returns the coroutine's scheduler-unique identifier.
func (co *Coroutine) ID() uint64 { return co.id }

// Status returns the coroutine's current status bit-set.
func (co *Coroutine) Status() Status { return co.status }

// StackUsage returns the most recently sampled live-stack size and the
// monotonically-grown high-water capacity this coroutine has reached.
func (co *Coroutine) StackUsage() (size, cap int64) { return co.savedStackSize, co.savedStackCap }

// Scheduler returns the scheduler this coroutine belongs to.
func (co *Coroutine) Scheduler() *Scheduler { return co.sched }

// leave hands control back to the scheduler and blocks until resumed again.
// Every suspension primitive ends by calling this.
func (co *Coroutine) leave() {
	co.sched.wake <- co
	<-co.resume
}

// Yield voluntarily gives up the rest of this turn, re-enqueuing at the
// back of the ready queue. Sleep(0) is defined as exactly this operation.
func (co *Coroutine) Yield() {
	if co.status.Has(StatusExited) {
		return
	}
	sampleStack(co)
	co.status = (co.status &^ (StatusRunning)) | StatusReady
	co.sched.ready.pushBack(co)
	co.leave()
}

// Sleep suspends the coroutine until d has elapsed. A non-positive duration
// is equivalent to Yield.
func (co *Coroutine) Sleep(d time.Duration) {
	if co.status.Has(StatusExited) {
		return
	}
	if d <= 0 {
		co.Yield()
		return
	}
	deadline := co.sched.clock.deadlineMicro(d)
	sampleStack(co)
	co.status &^= StatusRunning
	co.sched.sleep.insert(co, deadline)
	co.leave()
}

// Detach marks the coroutine so the scheduler frees it automatically, the
// same way it would on its own once the coroutine exits. Calling it early
// has no effect beyond setting the bit ahead of time: a natural exit
// always sets it regardless.
func (co *Coroutine) Detach() {
	co.status |= StatusDetach
}

// Renice increments a per-coroutine yield heuristic counter and, once it
// reaches the scheduler's configured threshold (default 5), resets it and
// yields. Intended to be sprinkled inside tight loops that would otherwise
// monopolize the scheduler, since this runtime has no preemption.
func (co *Coroutine) Renice() {
	co.ops++
	if co.ops >= co.sched.opts.reniceAt {
		co.ops = 0
		co.Yield()
	}
}

// Park registers the coroutine as waiting on fd for the given events and
// suspends until readiness or timeout. A timeout of 0 or less means no
// deadline. Returns ErrFDOutOfRange if fd is negative.
//
// Panics if this coroutine is already waiting on a descriptor; double-parking
// is a programming error, not a recoverable condition.
func (co *Coroutine) Park(fd int, events IOEvents, timeout time.Duration) error {
	if fd < 0 {
		return wrapError("coros: Park", ErrFDOutOfRange)
	}
	if co.status.Any(StatusWaitRead | StatusWaitWrite) {
		panic(fmt.Sprintf("coros: coroutine %d already parked", co.id))
	}
	sampleStack(co)
	co.status &^= StatusRunning
	co.sched.wait.insert(co, fd, events)
	if err := co.sched.poller.register(fd, events); err != nil {
		co.sched.wait.remove(fd)
		co.status &^= StatusWaitRead | StatusWaitWrite
		return wrapError("coros: register fd", err)
	}
	if timeout > 0 {
		co.sched.sleep.insert(co, co.sched.clock.deadlineMicro(timeout))
	}
	co.leave()

	_ = co.sched.poller.unregister(fd)

	if co.status.Has(StatusExpired) {
		co.status &^= StatusExpired
		return ErrTimeout
	}
	if co.status.Has(StatusFDEOF) {
		return ErrConnReset
	}
	return nil
}

// runTrampoline is the body every coroutine's goroutine runs. It blocks for
// the first hand-off (the one-shot bootstrap every coroutine goroutine
// needs before it can run entry), executes entry exactly once, recovers
// a panic rather than letting it escape (Go has no per-goroutine panic
// isolation, so an unrecovered entry panic would crash the whole process,
// taking the scheduler down with it), and finally marks itself
// EXITED|FDEOF|DETACH before handing off to the scheduler one last time.
func runTrampoline(co *Coroutine) {
	<-co.resume

	gid := goroutineID()
	globalRegistry.set(gid, co)
	defer globalRegistry.delete(gid)

	func() {
		defer func() {
			if r := recover(); r != nil {
				co.sched.opts.logger.Log(LogEntry{
					Level:       LevelError,
					Phase:       "panic",
					CoroutineID: co.id,
					Message:     fmt.Sprintf("coroutine entry panicked: %v", r),
				})
			}
		}()
		co.entry(co.arg)
	}()

	co.status = (co.status &^ (StatusRunning | StatusReady)) | StatusExited | StatusFDEOF | StatusDetach
	co.sched.wait.cancel(co)
	co.sched.sleep.remove(co)
	co.sched.wake <- co
}
