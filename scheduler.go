package coros

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds lightweight, best-effort scheduler counters, populated only
// when WithMetrics(true) is set.
type Metrics struct {
	Spawned       int64
	ReadyDepth    int
	SleepDepth    int
	WaitDepth     int
	PollIteration int64
}

// Scheduler owns one ready queue, one sleep tree, one wait tree, and one
// readiness poller, exactly as spec.md's Scheduler data model describes.
// One Scheduler is meant to be driven by Run() on a single goroutine/OS
// thread for its whole lifetime — schedulers never communicate and never
// steal work from one another.
type Scheduler struct {
	clock *clock
	opts  *schedOptions

	ready *readyQueue
	sleep *sleepTree
	wait  *waitTree

	// busyMu guards busy. The scheduler loop itself never contends it (the
	// channel hand-off already serializes everything it touches); it exists
	// so Scheduler.Free can be called safely from a goroutine other than the
	// one running Run(), guarding against a cross-thread destruction race if
	// an embedder exposes a coroutine handle to other goroutines.
	busyMu sync.Mutex
	busy   map[uint64]*Coroutine

	poller readinessPoller

	nextID uint64

	// wake is the hand-off channel every coroutine sends itself on when
	// leaving; the scheduler goroutine is always the sole receiver.
	wake    chan *Coroutine
	running *Coroutine

	closed bool

	pollIterations int64
}

// New creates a Scheduler, initializing its readiness poller. The returned
// Scheduler has no coroutines; call Spawn to create some, then Run to drive
// the loop to completion.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := newPoller()
	if err != nil {
		return nil, wrapError("coros: scheduler init", ErrPollerInit)
	}
	return &Scheduler{
		clock:  newClock(),
		opts:   cfg,
		ready:  &readyQueue{},
		sleep:  newSleepTree(),
		wait:   newWaitTree(defaultMaxWaitFDArray),
		busy:   make(map[uint64]*Coroutine),
		poller: p,
		wake:   make(chan *Coroutine),
	}, nil
}

// Spawn creates a coroutine bound to this scheduler, running entry(arg) on
// its own goroutine once the scheduler's loop first dispatches it. The
// coroutine starts NEW and is immediately enqueued to the ready queue.
func (s *Scheduler) Spawn(entry EntryFunc, arg any) (*Coroutine, error) {
	if s.closed {
		return nil, &SpawnError{Cause: ErrSchedulerClosed}
	}

	id := atomic.AddUint64(&s.nextID, 1)
	co := &Coroutine{
		id:        id,
		status:    StatusNew,
		entry:     entry,
		arg:       arg,
		sched:     s,
		resume:    make(chan struct{}),
		waitFD:    -1,
		heapIndex: -1,
		birth:     s.clock.nowMicro(),
	}
	if cur := Current(); cur != nil {
		co.CreatedBy = cur.id
	}

	s.busyMu.Lock()
	s.busy[id] = co
	s.busyMu.Unlock()
	s.ready.pushBack(co)

	go runTrampoline(co)

	s.opts.logger.Log(LogEntry{Level: LevelDebug, Phase: "spawn", CoroutineID: id})
	return co, nil
}

// Unpark removes and returns the coroutine waiting on fd, if any, cancels
// any associated timeout, and moves it to the ready queue. It is the
// external-facing half of park: an I/O shim (or, in tests, a stand-in for
// one) calls this once it has observed readiness by some means other than
// this scheduler's own poller. Returns ErrFDNotRegistered if no coroutine
// is waiting on fd.
func (s *Scheduler) Unpark(fd int) (*Coroutine, error) {
	co := s.wait.remove(fd)
	if co == nil {
		return nil, ErrFDNotRegistered
	}
	s.sleep.remove(co)
	_ = s.poller.unregister(fd)
	co.status |= StatusReady
	s.ready.pushBack(co)
	return co, nil
}

// Free releases bookkeeping for a coroutine that has EXITED. The scheduler
// already does this automatically once a coroutine exits (every exit sets
// DETACH, whether or not the entry called Detach itself); Free exists so
// an embedder holding a *Coroutine handle can reclaim it explicitly
// without racing the scheduler's own cleanup. It is idempotent and safe to
// call more than once, or concurrently with Run. Calling it on a
// coroutine that has not exited returns ErrNotExited.
func (s *Scheduler) Free(co *Coroutine) error {
	if !co.status.Has(StatusExited) {
		return ErrNotExited
	}
	s.free(co)
	return nil
}

// free is guarded per-coroutine against double invocation via co.freed; it
// is called automatically by the main loop for DETACHed coroutines, and by
// Free for everything else.
func (s *Scheduler) free(co *Coroutine) {
	co.freeMu.Lock()
	defer co.freeMu.Unlock()
	if co.freed {
		return
	}
	co.freed = true
	s.busyMu.Lock()
	delete(s.busy, co.id)
	s.busyMu.Unlock()
}

// resumeCoroutine performs one enter/leave cycle: hand control to co, block
// until it suspends or exits, then reconcile bookkeeping.
func (s *Scheduler) resumeCoroutine(co *Coroutine) {
	co.status = (co.status &^ (StatusNew | StatusReady)) | StatusRunning
	s.running = co

	co.resume <- struct{}{}
	<-s.wake

	s.running = nil
	co.status &^= StatusRunning

	if co.status.Has(StatusExited) && co.status.Has(StatusDetach) {
		s.free(co)
	}
}

// isDone reports whether the scheduler has no more work: no ready, sleeping,
// or waiting coroutines, and none currently busy (spawned but not yet
// freed) — the same "all four collections empty" condition spec.md's main
// loop checks before tearing itself down.
func (s *Scheduler) isDone() bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	return len(s.busy) == 0
}

// pollTimeout computes the millisecond timeout for the next poll call: the
// time until the nearest sleeper, or the scheduler's configured default if
// there are none.
func (s *Scheduler) pollTimeout(now int64) int {
	min := s.sleep.min()
	if min == nil {
		ms := s.opts.defaultTimeout.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return int(ms)
	}
	d := min.sleepDeadline - now
	if d < 0 {
		d = 0
	}
	return int(d / 1000)
}

// Run drives the scheduler's main loop to completion on the calling
// goroutine, which is locked to its OS thread for the duration — the
// Go-native expression of "one operating-system thread owns one
// scheduler." It returns once every spawned coroutine has exited and been
// freed, or a fatal poller error occurs.
//
// One iteration: expire sleepers, drain the ready queue (bounded by a
// snapshot so coroutines made ready during the pass wait for the next
// iteration), poll for readiness up to the next sleep deadline, then
// dispatch.
func (s *Scheduler) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() { _ = s.poller.close(); s.closed = true }()

	var events []pollEvent

	for !s.isDone() {
		now := s.clock.nowMicro()

		// 1. Expire sleepers.
		for _, co := range s.sleep.drainExpired(now) {
			if co.waitFD >= 0 && co.status.Any(StatusWaitRead|StatusWaitWrite) {
				_ = s.poller.unregister(co.waitFD)
				s.wait.remove(co.waitFD)
			}
			s.resumeCoroutine(co)
		}

		// 2. Drain ready queue, bounded by this iteration's starting depth
		// so newly-readied coroutines are deferred to the next pass.
		for n := s.ready.len(); n > 0; n-- {
			co, ok := s.ready.popFront()
			if !ok {
				break
			}
			if co.status.Has(StatusExited) {
				if co.status.Has(StatusDetach) {
					s.free(co)
				}
				continue
			}
			s.resumeCoroutine(co)
		}

		// 3. Poll for readiness. A non-empty ready queue elides the wait
		// (effectively a zero timeout) so newly-readied work isn't delayed
		// behind a kernel call.
		timeoutMs := s.pollTimeout(now)
		if s.ready.len() > 0 {
			timeoutMs = 0
		}

		events = events[:0]
		var err error
		events, err = s.poller.wait(timeoutMs, events)
		if err != nil {
			return err
		}
		if s.opts.metricsEnabled {
			s.pollIterations++
		}

		for _, ev := range events {
			co := s.wait.remove(ev.fd)
			if co == nil {
				continue
			}
			s.sleep.remove(co)
			if ev.event&EventHangup != 0 {
				co.status |= StatusFDEOF
			}
			s.resumeCoroutine(co)
		}
	}

	return nil
}

// Metrics returns a point-in-time snapshot of scheduler counters. It
// returns the zero Metrics unless WithMetrics(true) was set at
// construction.
func (s *Scheduler) Metrics() Metrics {
	if !s.opts.metricsEnabled {
		return Metrics{}
	}
	s.busyMu.Lock()
	spawned := int64(len(s.busy))
	s.busyMu.Unlock()
	return Metrics{
		Spawned:       spawned,
		ReadyDepth:    s.ready.len(),
		SleepDepth:    s.sleep.len(),
		WaitDepth:     s.wait.len(),
		PollIteration: s.pollIterations,
	}
}

// Current-coroutine convenience wrappers. Each resolves the coroutine
// running on the calling goroutine via Current. The void-returning ones
// (Yield, Sleep, Detach, Renice) have no error channel to report "no
// current coroutine" through, so they panic; Park already returns an
// error, so it reports the same condition as ErrNoCurrent instead.

// Yield suspends the current coroutine, re-enqueuing it at the back of the
// ready queue.
func Yield() {
	co := mustCurrent("Yield")
	co.Yield()
}

// Sleep suspends the current coroutine for d.
func Sleep(d time.Duration) {
	co := mustCurrent("Sleep")
	co.Sleep(d)
}

// Detach marks the current coroutine so its scheduler frees it automatically on exit.
func Detach() {
	co := mustCurrent("Detach")
	co.Detach()
}

// Park suspends the current coroutine on fd until readiness or timeout.
// Returns ErrNoCurrent if called from outside a running coroutine.
func Park(fd int, events IOEvents, timeout time.Duration) error {
	co := Current()
	if co == nil {
		return wrapError("coros: Park", ErrNoCurrent)
	}
	return co.Park(fd, events, timeout)
}

// Renice applies the current coroutine's voluntary-yield heuristic.
func Renice() {
	co := mustCurrent("Renice")
	co.Renice()
}

func mustCurrent(op string) *Coroutine {
	co := Current()
	if co == nil {
		panic("coros: " + op + " called outside a running coroutine")
	}
	return co
}
