package coros

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// runningRegistry maps a goroutine id to the *Coroutine executing on it.
// Since each coroutine here owns its own goroutine, and the rendezvous
// channel pair guarantees at most one coroutine goroutine is ever unblocked
// at a time, looking a goroutine up by id is equivalent to asking "which
// coroutine, if any, currently owns the hand-off."
//
// goroutine-id extraction uses the portable runtime.Stack self-trace idiom
// rather than reaching into runtime internals via go:linkname to read the
// current g directly: that pins the module to the exact layout of an
// unexported runtime struct, breaking across Go versions in a way a
// self-trace parse does not.
type runningRegistry struct {
	mu sync.RWMutex
	m  map[uint64]*Coroutine
}

var globalRegistry = &runningRegistry{m: make(map[uint64]*Coroutine)}

func (r *runningRegistry) set(gid uint64, co *Coroutine) {
	r.mu.Lock()
	r.m[gid] = co
	r.mu.Unlock()
}

func (r *runningRegistry) delete(gid uint64) {
	r.mu.Lock()
	delete(r.m, gid)
	r.mu.Unlock()
}

func (r *runningRegistry) get(gid uint64) *Coroutine {
	r.mu.RLock()
	co := r.m[gid]
	r.mu.RUnlock()
	return co
}

// goroutineID parses the numeric id out of the calling goroutine's own
// stack trace header ("goroutine 123 [running]:"). It is comparatively
// slow. It runs once at coroutine entry, once per Spawn, and once per call
// of the package-level Yield/Sleep/Park/Detach/Renice (via Current); the
// *Coroutine methods of the same names do not call it.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// Current returns the coroutine running on the calling goroutine, or nil if
// none — i.e., the caller is the scheduler loop itself, or an unrelated
// goroutine.
func Current() *Coroutine {
	return globalRegistry.get(goroutineID())
}
