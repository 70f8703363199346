package embedpy

import (
	"fmt"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// Handle is an opaque reference to a live guest value. Its lifetime is
// governed by the guest reference count: it is valid from the operation that
// returned it until the matching DecRef brings the count to zero, and never
// after Stop. NullHandle never names a value.
type Handle uint64

const NullHandle Handle = 0

func (h Handle) String() string { return fmt.Sprintf("Handle(%d)", uint64(h)) }

// IncRef adds a reference to h. It does nothing, apart from a warning, if
// the bridge is not running or h is not live.
func (b *Bridge) IncRef(h Handle) {
	g, ok := b.enterRunning()
	if !ok {
		b.log.Warn("incRef without a running interpreter", zap.Stringer("handle", h))
		return
	}
	defer g.leave()
	if !b.it.Objects().IncRef(interp.Ref(h)) {
		b.log.Warn("incRef of a handle that is not live", zap.Stringer("handle", h))
		return
	}
	b.diag(DiagMem, "incRef", zap.Stringer("handle", h), zap.Int64("refs", b.it.Objects().RefCount(interp.Ref(h))))
}

// DecRef drops a reference to h. Decrementing a handle whose count is
// already zero is logged and otherwise ignored.
func (b *Bridge) DecRef(h Handle) {
	g, ok := b.enterRunning()
	if !ok {
		b.log.Warn("decRef without a running interpreter", zap.Stringer("handle", h))
		return
	}
	defer g.leave()
	g.decRef(h)
}

func (g *guard) decRef(h Handle) {
	remaining, ok := g.b.it.Objects().DecRef(interp.Ref(h))
	if !ok {
		g.b.log.Warn("decRef of a handle with refCount <= 0", zap.Stringer("handle", h))
		return
	}
	g.b.diag(DiagMem, "decRef", zap.Stringer("handle", h), zap.Int64("refs", remaining))
}

// RefCount returns the guest reference count of h, 0 if it is not live.
func (b *Bridge) RefCount(h Handle) int64 {
	g, ok := b.enterRunning()
	if !ok {
		return 0
	}
	defer g.leave()
	return g.b.it.Objects().RefCount(interp.Ref(h))
}

// LiveHandles is the number of handles currently held by the host.
func (b *Bridge) LiveHandles() int {
	g, ok := b.enterRunning()
	if !ok {
		return 0
	}
	defer g.leave()
	return g.b.it.Objects().Len()
}

// newRef registers v and returns an owned handle.
func (g *guard) newRef(v starlark.Value) Handle {
	h := Handle(g.b.it.Objects().NewRef(v))
	g.b.diag(DiagMem, "newRef", zap.Stringer("handle", h), zap.String("type", v.Type()))
	return h
}

// value resolves h. A handle that is not live is reported as a guest
// runtime failure.
func (g *guard) value(op string, h Handle) (starlark.Value, error) {
	v, ok := g.b.it.Objects().Get(interp.Ref(h))
	if !ok {
		return nil, hostError(ErrGuestRuntime, op, "%s is not a live handle", h)
	}
	return v, nil
}
