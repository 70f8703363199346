package embedpy

import (
	"reflect"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// ImportModule imports a guest module by dotted name and returns an owned
// handle to it.
func (b *Bridge) ImportModule(name string) (Handle, error) {
	g, err := b.enter()
	if err != nil {
		return NullHandle, err
	}
	defer g.leave()
	b.diag(DiagExec, "importModule", zap.String("module", name))
	m, err := b.it.Import(g.ts, name)
	if err != nil {
		return NullHandle, b.translate(g.ts, ErrImport, "importModule", name)
	}
	return g.newRef(m), nil
}

// getAttr resolves h.name under an active guard.
func (g *guard) getAttr(op string, h Handle, name string) (starlark.Value, error) {
	target, err := g.value(op, h)
	if err != nil {
		return nil, err
	}
	x, err := g.b.it.GetAttr(g.ts, target, name)
	if err != nil {
		return nil, g.b.translate(g.ts, ErrAttributeNotFound, op, name)
	}
	return x, nil
}

// GetAttribute returns an owned handle to h.name.
func (b *Bridge) GetAttribute(h Handle, name string) (Handle, error) {
	g, err := b.enter()
	if err != nil {
		return NullHandle, err
	}
	defer g.leave()
	b.diag(DiagMeth, "getAttribute", zap.Stringer("handle", h), zap.String("name", name))
	x, err := g.getAttr("getAttribute", h, name)
	if err != nil {
		return NullHandle, err
	}
	return g.newRef(x), nil
}

// GetAttributeTyped converts h.name to a host value described by t. The
// intermediate guest reference is released whether or not the conversion
// succeeds.
func (b *Bridge) GetAttributeTyped(h Handle, name string, t *TypeDescriptor) (any, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()
	b.diag(DiagMeth, "getAttributeTyped", zap.Stringer("handle", h), zap.String("name", name), zap.Stringer("type", t))
	x, err := g.getAttr("getAttributeTyped", h, name)
	if err != nil {
		return nil, err
	}
	tmp := g.newRef(x)
	defer g.decRef(tmp)
	return b.fromGuestAny(x, t.GoType())
}

// SetAttribute assigns h.name = v, converting v as described by t.
func (b *Bridge) SetAttribute(h Handle, name string, v any, t *TypeDescriptor) error {
	g, err := b.enter()
	if err != nil {
		return err
	}
	defer g.leave()
	b.diag(DiagMeth, "setAttribute", zap.Stringer("handle", h), zap.String("name", name), zap.Stringer("type", t))
	target, err := g.value("setAttribute", h)
	if err != nil {
		return err
	}
	x, err := b.toGuest(v, t)
	if err != nil {
		return err
	}
	tmp := g.newRef(x)
	defer g.decRef(tmp)
	if err := b.it.SetAttr(g.ts, target, name, x); err != nil {
		return b.translate(g.ts, ErrAttributeAssignment, "setAttribute", name)
	}
	return nil
}

// callFrame holds the transient references of one invocation. All of them
// are released by teardown, on success and on failure.
type callFrame struct {
	g      *guard
	callee Handle
	args   []Handle
	params []*TypeDescriptor
}

func (f *callFrame) teardown() {
	for _, h := range f.args {
		f.g.decRef(h)
	}
	if f.callee != NullHandle {
		f.g.decRef(f.callee)
	}
}

// invoke resolves h.name, converts args positionally and calls. Argument
// conversion stops at the first failure, before anything is invoked.
func (g *guard) invoke(op string, h Handle, name string, args []any, params []*TypeDescriptor) (starlark.Value, error) {
	fn, err := g.getAttr(op, h, name)
	if err != nil {
		return nil, err
	}
	frame := &callFrame{g: g, callee: g.newRef(fn), params: params}
	defer frame.teardown()

	if !interp.IsCallable(fn) {
		return nil, &Error{Kind: ErrNotCallable, Op: op, Name: name,
			msg: ErrNotCallable.String() + ": '" + fn.Type() + "' object '" + name + "' is not callable"}
	}

	tuple := make(starlark.Tuple, len(args))
	for i, a := range args {
		var d *TypeDescriptor
		if i < len(params) {
			d = params[i]
		}
		x, err := g.b.toGuest(a, d)
		if err != nil {
			return nil, wrapHostError(ErrConversion, op, err, "argument %d of %s", i, name)
		}
		frame.args = append(frame.args, g.newRef(x))
		tuple[i] = x
	}

	res, err := g.b.it.Call(g.ts, fn, tuple, nil)
	if err != nil {
		return nil, g.b.translate(g.ts, ErrGuestRuntime, op, name)
	}
	return res, nil
}

// Call invokes h.name(args...) and returns an owned handle to the result.
// params optionally describes each argument; missing entries use the
// default conversion. isMethod is accepted for compatibility and does not
// change dispatch: bound methods and plain callables are both resolved as
// attributes and then called.
func (b *Bridge) Call(h Handle, isMethod bool, name string, args []any, params []*TypeDescriptor) (Handle, error) {
	g, err := b.enter()
	if err != nil {
		return NullHandle, err
	}
	defer g.leave()
	b.diag(DiagMeth, "call", zap.Stringer("handle", h), zap.String("name", name),
		zap.Bool("method", isMethod), zap.Int("args", len(args)))
	res, err := g.invoke("call", h, name, args, params)
	if err != nil {
		return NullHandle, err
	}
	return g.newRef(res), nil
}

// CallTyped is Call returning the result converted as described by ret.
func (b *Bridge) CallTyped(h Handle, isMethod bool, name string, args []any, params []*TypeDescriptor, ret *TypeDescriptor) (any, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()
	b.diag(DiagMeth, "callTyped", zap.Stringer("handle", h), zap.String("name", name),
		zap.Bool("method", isMethod), zap.Int("args", len(args)), zap.Stringer("ret", ret))
	res, err := g.invoke("callTyped", h, name, args, params)
	if err != nil {
		return nil, err
	}
	return b.fromGuestAny(res, ret.GoType())
}

// GetAttributeAs is GetAttributeTyped with the result type taken from T.
func GetAttributeAs[T any](b *Bridge, h Handle, name string) (T, error) {
	var zero T
	v, err := b.GetAttributeTyped(h, name, TypeFor[T]())
	if err != nil || v == nil {
		return zero, err
	}
	return convertResult[T](v)
}

// CallAs is CallTyped with the result type taken from T.
func CallAs[T any](b *Bridge, h Handle, name string, args ...any) (T, error) {
	var zero T
	v, err := b.CallTyped(h, false, name, args, nil, TypeFor[T]())
	if err != nil || v == nil {
		return zero, err
	}
	return convertResult[T](v)
}

func convertResult[T any](v any) (T, error) {
	if x, ok := v.(T); ok {
		return x, nil
	}
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	rv := reflect.ValueOf(v)
	if rv.CanConvert(t) {
		return rv.Convert(t).Interface().(T), nil
	}
	return zero, hostError(ErrTypeMismatch, "convert", "%T is not a %s", v, t)
}
