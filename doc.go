// Package coros implements a cooperative, single-goroutine-scheduler
// coroutine runtime with an integrated I/O readiness poller.
//
// A Scheduler owns a ready queue, a sleep tree (coroutines ordered by wake
// deadline), a wait tree (coroutines ordered by awaited file descriptor),
// and a readiness poller. Application code is written as entry functions
// that run to completion on their own goroutine between calls to Yield,
// Sleep, or Park; the scheduler interleaves them cooperatively, the same
// way a single-threaded stackful coroutine library would, but using a
// strict goroutine hand-off in place of manual stack-pointer manipulation
// (which Go's moving, growable goroutine stacks make impossible to do
// safely from user code).
//
// Exactly one goroutine is ever runnable at a time per Scheduler: either
// the scheduler's own loop, or the one coroutine it has currently resumed.
// Only one coroutine is ever "on stack" at once, the same invariant a
// single shared physical stack would enforce; here it is enforced instead
// by a pair of unbuffered rendezvous channels.
package coros
