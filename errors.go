package coros

import (
	"errors"
	"fmt"
)

// Sentinel errors returned at API boundaries. Resource-exhaustion
// conditions surface this way (a transient EINTR from the poller is retried
// inside the poller and never surfaces at all); broken invariants (a
// duplicate fd registration, parking an already-parked coroutine) panic
// instead, since they represent programming errors, not recoverable ones.
var (
	ErrPollerInit      = errors.New("coros: poller initialization failed")
	ErrSchedulerClosed = errors.New("coros: scheduler is closed")
	ErrNoCurrent       = errors.New("coros: no coroutine is running on this goroutine")
	ErrFDOutOfRange    = errors.New("coros: fd out of range")
	ErrFDNotRegistered = errors.New("coros: fd not registered")

	// ErrInvalidArgument is returned by WithStackHint when given a
	// non-positive hint. (WithReniceThreshold does not return it: it clamps
	// a non-positive threshold to 1.)
	ErrInvalidArgument = errors.New("coros: invalid argument")

	// ErrConnReset is returned by Park when the poller reported hangup on
	// the parked coroutine's fd; the coroutine's status also carries FDEOF.
	// Callers that do their own read/write wrapping can use it as the name
	// for that condition.
	ErrConnReset = errors.New("coros: connection reset by peer")

	// ErrTimeout is returned by Park when a timed wait expires before the
	// descriptor became ready.
	ErrTimeout = errors.New("coros: operation timed out")

	// ErrNotExited is returned by Scheduler.Free when called on a
	// coroutine that has not yet reached EXITED.
	ErrNotExited = errors.New("coros: coroutine has not exited")
)

// SpawnError wraps the cause of a failed Spawn, e.g. a scheduler that has
// already been closed.
type SpawnError struct {
	Cause error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("coros: spawn failed: %v", e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// wrapError attaches a message prefix to a %w-wrapped cause, so
// errors.Is/errors.As still see through it.
func wrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
