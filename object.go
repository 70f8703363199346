package embedpy

import (
	"fmt"
	"sync/atomic"

	"github.com/richinsley/embedpy/internal/interp"
)

// Object owns one reference to a guest value. Release gives the reference
// back; it is safe to call more than once, so the usual pattern is
//
//	obj, err := b.Import("math")
//	if err != nil {
//		return err
//	}
//	defer obj.Release()
//
// Passing an *Object as an argument or attribute value hands the guest the
// value it refers to, without conversion.
type Object struct {
	b        *Bridge
	h        Handle
	released atomic.Bool
}

// Wrap takes ownership of an existing reference.
func (b *Bridge) Wrap(h Handle) *Object {
	return &Object{b: b, h: h}
}

// Import imports a guest module and returns an owned reference to it.
func (b *Bridge) Import(name string) (*Object, error) {
	h, err := b.ImportModule(name)
	if err != nil {
		return nil, err
	}
	return b.Wrap(h), nil
}

func (o *Object) Handle() Handle  { return o.h }
func (o *Object) Bridge() *Bridge { return o.b }

// Release drops the reference. Only the first call has an effect.
func (o *Object) Release() {
	if o == nil || !o.released.CompareAndSwap(false, true) {
		return
	}
	o.b.DecRef(o.h)
}

// Released reports whether Release has been called.
func (o *Object) Released() bool { return o.released.Load() }

func (o *Object) String() string {
	return fmt.Sprintf("Object(handle=%d)", uint64(o.h))
}

// Equal reports whether both objects refer to the same guest value. Ints,
// floats, strings and other values without identity get a fresh handle each
// time they cross the bridge, so they are compared by value.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.b != other.b {
		return false
	}
	g, ok := o.b.enterRunning()
	if !ok {
		return false
	}
	defer g.leave()
	return o.b.it.Objects().Same(interp.Ref(o.h), interp.Ref(other.h))
}

// GetAttribute returns an owned reference to o.name.
func (o *Object) GetAttribute(name string) (*Object, error) {
	h, err := o.b.GetAttribute(o.h, name)
	if err != nil {
		return nil, err
	}
	return o.b.Wrap(h), nil
}

// GetAttributeValue converts o.name to a host value described by t.
func (o *Object) GetAttributeValue(name string, t *TypeDescriptor) (any, error) {
	return o.b.GetAttributeTyped(o.h, name, t)
}

// SetAttributeValue assigns o.name = v, converting v as described by t.
func (o *Object) SetAttributeValue(name string, v any, t *TypeDescriptor) error {
	return o.b.SetAttribute(o.h, name, v, t)
}

// Call invokes o.name(args...) and returns an owned reference to the result.
func (o *Object) Call(name string, args ...any) (*Object, error) {
	h, err := o.b.Call(o.h, false, name, args, nil)
	if err != nil {
		return nil, err
	}
	return o.b.Wrap(h), nil
}

// CallMethod is Call for bound methods.
func (o *Object) CallMethod(name string, args ...any) (*Object, error) {
	h, err := o.b.Call(o.h, true, name, args, nil)
	if err != nil {
		return nil, err
	}
	return o.b.Wrap(h), nil
}

// CallValue invokes o.name(args...) and converts the result as described by
// ret.
func (o *Object) CallValue(name string, ret *TypeDescriptor, args ...any) (any, error) {
	return o.b.CallTyped(o.h, false, name, args, nil, ret)
}

func (o *Object) Int() (int32, error)     { return o.b.AsInt32(o.h) }
func (o *Object) Float() (float64, error) { return o.b.AsDouble(o.h) }
func (o *Object) Text() (string, error)   { return o.b.AsText(o.h) }

// Value converts the referenced value with the default strategy.
func (o *Object) Value() (any, error) { return o.b.AsHostObject(o.h, nil) }
