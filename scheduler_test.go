//go:build linux || darwin

package coros

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mustSocketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, setNonblock(fds[0]))
	t.Cleanup(func() {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
	})
	return fds[0], fds[1]
}

// Scenario 1: single sleep.
func TestScenarioSingleSleep(t *testing.T) {
	sched, err := New(WithMetrics(true))
	require.NoError(t, err)

	start := time.Now()
	_, err = sched.Spawn(func(any) {
		Sleep(100 * time.Millisecond)
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.Equal(t, int64(0), sched.Metrics().Spawned)
}

// Scenario 2: two-coroutine ping-pong, interleaved FIFO order.
func TestScenarioPingPong(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	_, err = sched.Spawn(func(any) {
		for i := 0; i < 5; i++ {
			record("A")
			Yield()
		}
		Detach()
	}, nil)
	require.NoError(t, err)

	_, err = sched.Spawn(func(any) {
		for i := 0; i < 5; i++ {
			record("B")
			Yield()
		}
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.Equal(t, []string{"A", "B", "A", "B", "A", "B", "A", "B", "A", "B"}, order)
}

// Scenario 3: timed wait firing by I/O — the descriptor becomes readable
// before its timeout, so Park returns with no timeout error.
func TestScenarioTimedWaitFiresByIO(t *testing.T) {
	fd, peer := mustSocketpair(t)

	sched, err := New()
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = sched.Spawn(func(any) {
		result <- Current().Park(fd, EventRead, time.Second)
		Detach()
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	time.Sleep(100 * time.Millisecond)
	_, err = unix.Write(peer, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, <-done)
	require.NoError(t, <-result)
}

// Scenario 4: timed wait firing by timeout — the descriptor never becomes
// ready, so Park returns ErrTimeout once its deadline passes.
func TestScenarioTimedWaitFiresByTimeout(t *testing.T) {
	fd, _ := mustSocketpair(t)

	sched, err := New()
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = sched.Spawn(func(any) {
		result <- Current().Park(fd, EventRead, 150*time.Millisecond)
		Detach()
	}, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, sched.Run())
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	require.ErrorIs(t, <-result, ErrTimeout)
}

// Scenario 5: hangup — the peer closes, the poller reports hangup, and the
// waiter resumes with FDEOF / ErrConnReset instead of a timeout.
func TestScenarioHangupSetsFDEOF(t *testing.T) {
	fd, peer := mustSocketpair(t)

	sched, err := New()
	require.NoError(t, err)

	result := make(chan error, 1)
	var status Status
	_, err = sched.Spawn(func(any) {
		result <- Current().Park(fd, EventRead, 2*time.Second)
		status = Current().Status()
		Detach()
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, unix.Close(peer))

	require.NoError(t, <-done)
	require.ErrorIs(t, <-result, ErrConnReset)
	require.True(t, status.Has(StatusFDEOF))
}

// Scenario 6: detach and completion — the scheduler frees a detached
// coroutine automatically; no explicit Free call is required.
func TestScenarioDetachAndCompletion(t *testing.T) {
	sched, err := New(WithMetrics(true))
	require.NoError(t, err)

	var ran bool
	co, err := sched.Spawn(func(any) {
		ran = true
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.True(t, ran)
	require.True(t, co.Status().Has(StatusExited))
	require.Equal(t, int64(0), sched.Metrics().Spawned)
}

// A coroutine that returns normally without calling Detach is still
// auto-detached and auto-freed by the scheduler on exit (matching the
// ground-truth behavior: a natural return unconditionally sets
// EXITED|FDEOF|DETACH). Free remains safe to call manually on it even
// after the scheduler has already reclaimed it — it is idempotent — and
// still rejects a coroutine that has not exited yet.
func TestExitWithoutDetachIsStillAutoFreed(t *testing.T) {
	sched, err := New(WithMetrics(true))
	require.NoError(t, err)

	firstDone := make(chan struct{})
	co, err := sched.Spawn(func(any) {
		close(firstDone) // signals exit is imminent; Run() still owns co.status
	}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, sched.Free(co), ErrNotExited)

	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	<-firstDone
	require.NoError(t, <-done)

	require.True(t, co.Status().Has(StatusExited))
	require.True(t, co.Status().Has(StatusDetach))
	require.Equal(t, int64(0), sched.Metrics().Spawned)

	// Calling Free again after the scheduler already freed it is a no-op.
	require.NoError(t, sched.Free(co))
}

// Metrics is a no-op unless WithMetrics(true) is set.
func TestMetricsDisabledByDefault(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	_, err = sched.Spawn(func(any) {
		Detach()
	}, nil)
	require.NoError(t, err)

	require.Equal(t, Metrics{}, sched.Metrics())
	require.NoError(t, sched.Run())
	require.Equal(t, Metrics{}, sched.Metrics())
}

// Law: sleep(0) is equivalent to yield plus immediate re-ready insertion.
func TestLawYieldIdempotence(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	var order []string
	_, err = sched.Spawn(func(any) {
		Sleep(0)
		order = append(order, "A2")
		Detach()
	}, nil)
	require.NoError(t, err)

	_, err = sched.Spawn(func(any) {
		order = append(order, "B1")
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.Equal(t, []string{"B1", "A2"}, order)
}

// Stack introspection: capacity only grows, and a suspended coroutine has a
// positive sampled size, standing in for the round-trip law on the
// adapted stack-copy mechanism.
func TestStackUsageSampledOnSuspend(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	co, err := sched.Spawn(func(any) {
		Sleep(10 * time.Millisecond)
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	size, cap := co.StackUsage()
	require.Greater(t, size, int64(0))
	require.GreaterOrEqual(t, cap, size)
}

// Parking an already-parked coroutine is a programming error and panics.
func TestParkAlreadyParkedPanics(t *testing.T) {
	fd, _ := mustSocketpair(t)

	sched, err := New()
	require.NoError(t, err)

	panicked := make(chan any, 1)
	_, err = sched.Spawn(func(any) {
		defer func() { panicked <- recover() }()
		co := Current()
		co.status |= StatusWaitRead
		_ = co.Park(fd, EventRead, 0)
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.NotNil(t, <-panicked)
}

// A panicking entry is recovered by the trampoline and surfaces as
// EXITED|FDEOF|DETACH rather than crashing the scheduler.
func TestEntryPanicIsRecovered(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	co, err := sched.Spawn(func(any) {
		panic("boom")
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.True(t, co.Status().Has(StatusExited))
	require.True(t, co.Status().Has(StatusDetach))
	require.True(t, co.Status().Has(StatusFDEOF))
}

// Package-level suspension primitives called with no current coroutine
// report themselves or panic, depending on whether they have an error
// channel to report through.
func TestCurrentCoroutineGuards(t *testing.T) {
	require.ErrorIs(t, Park(0, EventRead, 0), ErrNoCurrent)
	require.Panics(t, Yield)
	require.Panics(t, func() { Sleep(time.Second) })
	require.Panics(t, Detach)
	require.Panics(t, Renice)
}

// Parking on a negative fd is rejected rather than silently registered.
func TestParkNegativeFDRejected(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	result := make(chan error, 1)
	_, err = sched.Spawn(func(any) {
		result <- Current().Park(-1, EventRead, 0)
		Detach()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, sched.Run())
	require.ErrorIs(t, <-result, ErrFDOutOfRange)
}

// Unpark reports ErrFDNotRegistered when nothing is waiting on the fd.
func TestUnparkUnknownFD(t *testing.T) {
	sched, err := New()
	require.NoError(t, err)

	co, err := sched.Unpark(999)
	require.Nil(t, co)
	require.ErrorIs(t, err, ErrFDNotRegistered)

	// No coroutines were spawned, so Run returns immediately; this also
	// releases the poller's kernel resources.
	require.NoError(t, sched.Run())
}

// WithStackHint rejects a non-positive hint with ErrInvalidArgument.
func TestWithStackHintRejectsNonPositive(t *testing.T) {
	_, err := New(WithStackHint(0))
	require.ErrorIs(t, err, ErrInvalidArgument)
}
