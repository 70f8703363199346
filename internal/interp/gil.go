package interp

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// The global interpreter lock. It is process-wide: every interpreter in the
// process shares it, so guest execution is totally ordered.
var (
	threadsMu          sync.Mutex
	threadsInitialized atomic.Bool
	global             *gil
)

type gil struct {
	mu    sync.Mutex
	owner atomic.Int64 // OS thread id of the holder, 0 when free
	depth int
}

// InitThreads performs the one-time threading setup and reports whether this
// call was the one that did it. Safe to call from any number of goroutines.
func InitThreads() bool {
	if threadsInitialized.Load() {
		return false
	}
	threadsMu.Lock()
	defer threadsMu.Unlock()
	if threadsInitialized.Load() {
		return false
	}
	global = &gil{}
	threadsInitialized.Store(true)
	return true
}

// ThreadsInitialized reports whether InitThreads has run in this process.
func ThreadsInitialized() bool {
	return threadsInitialized.Load()
}

// Acquire takes the global lock for the calling goroutine, pinning it to its
// OS thread until the matching Release. Acquisition is reentrant per thread
// and blocks without timeout. It returns the thread id used as owner key.
func Acquire() int64 {
	InitThreads()
	runtime.LockOSThread()
	tid := threadID()
	if global.owner.Load() == tid {
		global.depth++
		return tid
	}
	global.mu.Lock()
	global.owner.Store(tid)
	global.depth = 1
	return tid
}

// Release undoes one Acquire.
func Release() {
	tid := threadID()
	if global == nil || global.owner.Load() != tid {
		panic("interp: global lock released by a thread that does not hold it")
	}
	global.depth--
	if global.depth == 0 {
		global.owner.Store(0)
		global.mu.Unlock()
	}
	runtime.UnlockOSThread()
}

// Held reports whether the calling thread owns the global lock.
func Held() bool {
	return global != nil && global.owner.Load() == threadID()
}

// SaveThread fully releases the lock held by the calling thread, whatever its
// depth, and returns the depth for RestoreThread. The goroutine stays pinned.
func SaveThread() int {
	depth := global.depth
	global.depth = 0
	global.owner.Store(0)
	global.mu.Unlock()
	return depth
}

// RestoreThread reacquires the lock released by SaveThread.
func RestoreThread(depth int) {
	global.mu.Lock()
	global.owner.Store(threadID())
	global.depth = depth
}
