package embedpy

import (
	"github.com/richinsley/embedpy/internal/interp"
)

// guard is one scoped acquisition of the interpreter: the global lock plus
// the calling thread's guest state. Obtain it with enter and release it with
// a deferred leave.
type guard struct {
	b  *Bridge
	ts *interp.ThreadState
}

// enter acquires the global lock, starting the interpreter with default
// options if it is not running.
func (b *Bridge) enter() (*guard, error) {
	tid := interp.Acquire()
	if err := b.ensureStarted(tid, nil); err != nil {
		interp.Release()
		return nil, err
	}
	return &guard{b: b, ts: b.it.Attach(tid)}, nil
}

// enterRunning acquires the global lock only if the bridge is already
// running; ok is false otherwise and nothing is held.
func (b *Bridge) enterRunning() (g *guard, ok bool) {
	tid := interp.Acquire()
	if !b.it.IsInitialized() || !b.companionLoaded {
		interp.Release()
		return nil, false
	}
	return &guard{b: b, ts: b.it.Attach(tid)}, true
}

func (g *guard) leave() {
	g.b.it.Detach(g.ts)
	interp.Release()
}

// AllowThreads runs fn with the global lock released, so that other
// goroutines can use the bridge while the caller blocks on them. Call it only
// from host code already running inside the bridge, such as a host function
// invoked by the guest. fn must not touch guest values directly.
func (b *Bridge) AllowThreads(fn func()) {
	if !interp.Held() {
		fn()
		return
	}
	depth := interp.SaveThread()
	defer interp.RestoreThread(depth)
	fn()
}
