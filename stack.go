package coros

import "runtime"

// stackSampleBuf bounds how much of a coroutine's goroutine stack trace we
// capture when sampling; it is a diagnostic high-water mark, not the actual
// stack content (Go does not let user code copy a goroutine's live stack).
const stackSampleBuf = 8192

// sampleStack records an approximate live-stack high-water mark on co. It
// must be called from inside the coroutine's own goroutine, immediately
// before it suspends, so runtime.Stack captures that goroutine's frames.
//
// Capacity only ever grows: a shrinking capacity would misrepresent the
// coroutine's true peak usage.
func sampleStack(co *Coroutine) {
	buf := make([]byte, stackSampleBuf)
	n := runtime.Stack(buf, false)
	co.savedStackSize = int64(n)
	if int64(n) > co.savedStackCap {
		co.savedStackCap = int64(n)
	}
}
