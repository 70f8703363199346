package embedpy

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"unicode"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// HostObject is a host value visible to the guest. Exported methods are
// callable attributes and exported struct fields are readable attributes;
// fields of a struct reached through a pointer are also assignable. Guest
// code may use the Go name or the same name with a lower-case first letter.
type HostObject struct {
	b *Bridge
	v reflect.Value
}

var (
	_ starlark.HasSetField = (*HostObject)(nil)
	_ starlark.Comparable  = (*HostObject)(nil)
	_ starlark.Callable    = (*hostFunc)(nil)
)

func (b *Bridge) newHostObject(rv reflect.Value) *HostObject {
	return &HostObject{b: b, v: rv}
}

// Value returns the wrapped host value.
func (o *HostObject) Value() any { return o.v.Interface() }

func (o *HostObject) String() string { return fmt.Sprintf("<host %s>", o.v.Type()) }
func (o *HostObject) Type() string   { return o.v.Type().String() }
func (o *HostObject) Freeze()        {}

func (o *HostObject) Truth() starlark.Bool {
	return starlark.Bool(!(o.v.Kind() == reflect.Pointer && o.v.IsNil()))
}

func (o *HostObject) Hash() (uint32, error) {
	if o.v.Kind() == reflect.Pointer {
		p := o.v.Pointer()
		return uint32(p) ^ uint32(uint64(p)>>32), nil
	}
	return 0, fmt.Errorf("unhashable type: %s", o.Type())
}

func (o *HostObject) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*HostObject)
	var eq bool
	if o.v.Type() == other.v.Type() && o.v.Type().Comparable() {
		eq = o.v.Interface() == other.v.Interface()
	}
	switch op {
	case syntax.EQL:
		return eq, nil
	case syntax.NEQ:
		return !eq, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", o.Type(), op, other.Type())
}

// hostName maps a guest attribute name to candidate Go names.
func hostName(name string) []string {
	if name == "" {
		return nil
	}
	r := []rune(name)
	if unicode.IsUpper(r[0]) {
		return []string{name}
	}
	r[0] = unicode.ToUpper(r[0])
	return []string{name, string(r)}
}

func (o *HostObject) structValue() (reflect.Value, bool) {
	sv := o.v
	for sv.Kind() == reflect.Pointer || sv.Kind() == reflect.Interface {
		if sv.IsNil() {
			return reflect.Value{}, false
		}
		sv = sv.Elem()
	}
	return sv, sv.Kind() == reflect.Struct
}

func (o *HostObject) field(name string) (reflect.StructField, reflect.Value, bool) {
	sv, ok := o.structValue()
	if !ok {
		return reflect.StructField{}, reflect.Value{}, false
	}
	for _, n := range hostName(name) {
		f, ok := sv.Type().FieldByName(n)
		if !ok || !f.IsExported() {
			continue
		}
		fv, err := sv.FieldByIndexErr(f.Index)
		if err != nil {
			return reflect.StructField{}, reflect.Value{}, false
		}
		return f, fv, true
	}
	return reflect.StructField{}, reflect.Value{}, false
}

func (o *HostObject) Attr(name string) (starlark.Value, error) {
	for _, n := range hostName(name) {
		if m := o.v.MethodByName(n); m.IsValid() {
			return o.b.newNamedHostFunc(o.Type()+"."+n, m), nil
		}
	}
	if _, fv, ok := o.field(name); ok {
		return o.b.toGuest(fv.Interface(), nil)
	}
	return nil, nil
}

func (o *HostObject) AttrNames() []string {
	var names []string
	t := o.v.Type()
	for i := 0; i < t.NumMethod(); i++ {
		names = append(names, t.Method(i).Name)
	}
	if sv, ok := o.structValue(); ok {
		for _, f := range reflect.VisibleFields(sv.Type()) {
			if f.IsExported() && !f.Anonymous {
				names = append(names, f.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (o *HostObject) SetField(name string, val starlark.Value) error {
	f, fv, ok := o.field(name)
	if !ok {
		return starlark.NoSuchAttrError(fmt.Sprintf("'%s' object has no attribute '%s'", o.Type(), name))
	}
	if !fv.CanSet() {
		return interp.NewException(interp.AttributeError, "'%s' object attribute '%s' is read-only", o.Type(), name)
	}
	x, err := o.b.fromGuest(val, f.Type)
	if err != nil {
		return interp.NewException(interp.TypeError, "cannot assign %s to %s.%s: %v", val.Type(), o.Type(), f.Name, err)
	}
	if !x.IsValid() {
		x = reflect.Zero(f.Type)
	}
	fv.Set(x)
	o.b.diag(DiagHost, "host field assigned", zap.String("type", o.Type()), zap.String("field", f.Name))
	return nil
}

// hostFunc is a host function or bound method callable from the guest.
type hostFunc struct {
	b    *Bridge
	name string
	fn   reflect.Value
}

func (b *Bridge) newHostFunc(fn reflect.Value) *hostFunc {
	name := "func"
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		name = f.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
	}
	return b.newNamedHostFunc(name, fn)
}

func (b *Bridge) newNamedHostFunc(name string, fn reflect.Value) *hostFunc {
	return &hostFunc{b: b, name: name, fn: fn}
}

func (f *hostFunc) Name() string          { return f.name }
func (f *hostFunc) String() string        { return fmt.Sprintf("<host function %s>", f.name) }
func (f *hostFunc) Type() string          { return "host_function" }
func (f *hostFunc) Freeze()               {}
func (f *hostFunc) Truth() starlark.Bool  { return true }
func (f *hostFunc) Hash() (uint32, error) { return starlark.String(f.name).Hash() }

func (f *hostFunc) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return f.b.callHost(f.name, f.fn, args, kwargs)
}

// callHost invokes a host function with guest arguments. Arguments are
// converted to the parameter types; a panic, or a non-nil trailing error
// result, is raised in the guest as HostError. Zero results give None, one
// gives its converted value, more give a tuple.
func (b *Bridge) callHost(name string, fn reflect.Value, args starlark.Tuple, kwargs []starlark.Tuple) (res starlark.Value, err error) {
	b.diag(DiagHost, "host function called", zap.String("func", name), zap.Int("args", len(args)))
	if len(kwargs) > 0 {
		return nil, interp.NewException(interp.TypeError, "%s() does not accept keyword arguments", name)
	}
	ft := fn.Type()
	numIn := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, interp.NewException(interp.TypeError, "%s() takes at least %d arguments (%d given)", name, numIn-1, len(args))
		}
	} else if len(args) != numIn {
		return nil, interp.NewException(interp.TypeError, "%s() takes %d arguments (%d given)", name, numIn, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= numIn-1 {
			pt = ft.In(numIn - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		x, err := b.fromGuest(a, pt)
		if err != nil {
			for _, done := range in[:i] {
				b.releaseConverted(done)
			}
			return nil, interp.NewException(interp.TypeError, "%s() argument %d: %v", name, i+1, err)
		}
		if !x.IsValid() {
			x = reflect.Zero(pt)
		}
		in[i] = x
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, interp.NewException(b.hostErrors(), "%s() panicked: %v", name, r)
		}
	}()
	out := fn.Call(in)

	if n := ft.NumOut(); n > 0 && ft.Out(n-1) == errorType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			var exc *interp.Exception
			if errors.As(e, &exc) {
				return nil, exc
			}
			return nil, interp.NewException(b.hostErrors(), "%v", e)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return starlark.None, nil
	case 1:
		return b.toGuest(out[0].Interface(), nil)
	}
	tuple := make(starlark.Tuple, len(out))
	for i, o := range out {
		x, err := b.toGuest(o.Interface(), nil)
		if err != nil {
			return nil, err
		}
		tuple[i] = x
	}
	return tuple, nil
}

func (b *Bridge) hostErrors() *interp.ExceptionType {
	if b.hostErrorClass != nil {
		return b.hostErrorClass
	}
	return interp.RuntimeError
}
