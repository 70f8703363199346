package embedpy

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// toGuestFunc converts a non-nil host value of one reflect.Kind.
type toGuestFunc func(b *Bridge, rv reflect.Value, path convPath) (starlark.Value, error)

// convPath holds the containers on the current conversion path. A value met
// again while it is still being converted contains itself.
type convPath map[any]struct{}

type hostContainer struct {
	t reflect.Type
	p uintptr
	n int
}

func (p convPath) enter(key any, what string) (convPath, func(), error) {
	if _, ok := p[key]; ok {
		return p, nil, hostError(ErrConversion, "convert", "%s value contains itself", what)
	}
	if p == nil {
		p = make(convPath)
	}
	p[key] = struct{}{}
	return p, func() { delete(p, key) }, nil
}

// enterGuest records a mutable guest container on path.
func enterGuest(path convPath, v starlark.Value) (convPath, func(), error) {
	switch v.(type) {
	case *starlark.List, *starlark.Dict, *starlark.Set:
		return path.enter(v, v.Type())
	}
	return path, func() {}, nil
}

// enterHost records a non-empty host map or slice on path.
func enterHost(path convPath, rv reflect.Value) (convPath, func(), error) {
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.Len() > 0 {
			return path.enter(hostContainer{rv.Type(), rv.Pointer(), rv.Len()}, rv.Type().String())
		}
	}
	return path, func() {}, nil
}

// toGuestDefaults is the default strategy table, keyed by the runtime kind
// of the host value. Kinds missing here (chan, complex, unsafe pointers)
// cannot be sent to the guest.
var toGuestDefaults map[reflect.Kind]toGuestFunc

func init() {
	toGuestDefaults = map[reflect.Kind]toGuestFunc{
		reflect.Bool:      func(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) { return starlark.Bool(rv.Bool()), nil },
		reflect.Int:       intToGuest,
		reflect.Int8:      intToGuest,
		reflect.Int16:     intToGuest,
		reflect.Int32:     intToGuest,
		reflect.Int64:     intToGuest,
		reflect.Uint:      uintToGuest,
		reflect.Uint8:     uintToGuest,
		reflect.Uint16:    uintToGuest,
		reflect.Uint32:    uintToGuest,
		reflect.Uint64:    uintToGuest,
		reflect.Uintptr:   uintToGuest,
		reflect.Float32:   func(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) { return starlark.Float(rv.Float()), nil },
		reflect.Float64:   func(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) { return starlark.Float(rv.Float()), nil },
		reflect.String:    func(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) { return starlark.String(encodeText(rv.String())), nil },
		reflect.Slice:     sliceToGuest,
		reflect.Array:     sliceToGuest,
		reflect.Map:       mapToGuest,
		reflect.Func:      funcToGuest,
		reflect.Struct:    hostObjectToGuest,
		reflect.Pointer:   hostObjectToGuest,
		reflect.Interface: interfaceToGuest,
	}
}

func intToGuest(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) {
	return starlark.MakeInt64(rv.Int()), nil
}

func uintToGuest(_ *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) {
	return starlark.MakeUint64(rv.Uint()), nil
}

func sliceToGuest(b *Bridge, rv reflect.Value, path convPath) (starlark.Value, error) {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return starlark.None, nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		buf := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(buf), rv)
		return starlark.Bytes(buf), nil
	}
	path, leave, err := enterHost(path, rv)
	if err != nil {
		return nil, err
	}
	defer leave()
	items := make([]starlark.Value, rv.Len())
	for i := range items {
		x, err := b.toGuestPath(rv.Index(i).Interface(), nil, path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "toGuest", err, "element %d of %s", i, rv.Type())
		}
		items[i] = x
	}
	return starlark.NewList(items), nil
}

func mapToGuest(b *Bridge, rv reflect.Value, path convPath) (starlark.Value, error) {
	if rv.IsNil() {
		return starlark.None, nil
	}
	path, leave, err := enterHost(path, rv)
	if err != nil {
		return nil, err
	}
	defer leave()
	keys := rv.MapKeys()
	// Stable insertion order for string-keyed maps.
	if rv.Type().Key().Kind() == reflect.String {
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	}
	d := starlark.NewDict(len(keys))
	for _, k := range keys {
		gk, err := b.toGuestPath(k.Interface(), nil, path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "toGuest", err, "key of %s", rv.Type())
		}
		gv, err := b.toGuestPath(rv.MapIndex(k).Interface(), nil, path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "toGuest", err, "value for key %v", k.Interface())
		}
		if err := d.SetKey(gk, gv); err != nil {
			return nil, wrapHostError(ErrConversion, "toGuest", err, "key %v", k.Interface())
		}
	}
	return d, nil
}

func funcToGuest(b *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) {
	if rv.IsNil() {
		return starlark.None, nil
	}
	return b.newHostFunc(rv), nil
}

func hostObjectToGuest(b *Bridge, rv reflect.Value, _ convPath) (starlark.Value, error) {
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return starlark.None, nil
	}
	return b.newHostObject(rv), nil
}

func interfaceToGuest(b *Bridge, rv reflect.Value, path convPath) (starlark.Value, error) {
	if rv.IsNil() {
		return starlark.None, nil
	}
	return b.toGuestPath(rv.Elem().Interface(), nil, path)
}

// toGuest converts a host value for the guest. d selects the strategy; nil
// falls back to the default table. A passthrough value (an *Object, or a
// guest value) is never re-boxed. A host map or slice that contains itself
// fails with ErrConversion.
func (b *Bridge) toGuest(v any, d *TypeDescriptor) (starlark.Value, error) {
	return b.toGuestPath(v, d, nil)
}

func (b *Bridge) toGuestPath(v any, d *TypeDescriptor, path convPath) (starlark.Value, error) {
	if gv, ok, err := b.passthrough(v); ok {
		return gv, err
	}
	var (
		gv  starlark.Value
		err error
	)
	switch {
	case d == nil:
		gv, err = b.defaultToGuest(v, path)
	case d.Kind == KindPrimitive:
		gv, err = b.primitiveToGuest(v, d.Primitive)
	case d.Kind == KindObject:
		gv, err = b.objectToGuest(v, d.Class, path)
	case d.Kind == KindArray:
		gv, err = b.arrayToGuest(v, d.Elem, path)
	default:
		err = hostError(ErrConversion, "toGuest", "invalid type descriptor %v", d)
	}
	if err == nil {
		b.diag(DiagType, "host value converted", zap.String("host", fmt.Sprintf("%T", v)),
			zap.Stringer("descriptor", d), zap.String("guest", gv.Type()))
	}
	return gv, err
}

func (b *Bridge) passthrough(v any) (starlark.Value, bool, error) {
	switch x := v.(type) {
	case *Object:
		if x == nil {
			return starlark.None, true, nil
		}
		gv, ok := b.it.Objects().Get(interp.Ref(x.h))
		if !ok || x.Released() {
			return nil, true, hostError(ErrConversion, "toGuest", "%s no longer refers to a live value", x)
		}
		return gv, true, nil
	case starlark.Value:
		return x, true, nil
	}
	return nil, false, nil
}

func (b *Bridge) defaultToGuest(v any, path convPath) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	rv := reflect.ValueOf(v)
	fn, ok := toGuestDefaults[rv.Kind()]
	if !ok {
		return nil, hostError(ErrConversion, "toGuest", "no conversion strategy for %s", rv.Type())
	}
	return fn(b, rv, path)
}

// primitiveToGuest boxes v as the declared primitive. Integers are narrowed
// to the declared width by truncation, without overflow checks.
func (b *Bridge) primitiveToGuest(v any, k reflect.Kind) (starlark.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, hostError(ErrConversion, "toGuest", "cannot convert nil to %s", k)
	}
	switch k {
	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return starlark.Bool(rv.Bool()), nil
		}
	case reflect.String:
		if rv.Kind() == reflect.String {
			return starlark.String(encodeText(rv.String())), nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := numberOf(rv); ok {
			if k == reflect.Float32 {
				f = float64(float32(f))
			}
			return starlark.Float(f), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n, ok := integerBits(rv); ok {
			return narrowInt(n, k), nil
		}
	default:
		return nil, hostError(ErrConversion, "toGuest", "no primitive strategy for %s", k)
	}
	return nil, hostError(ErrConversion, "toGuest", "cannot convert %s to %s", rv.Type(), k)
}

// integerBits returns the two's complement bits of an integer or the
// truncated value of a float.
func integerBits(rv reflect.Value) (int64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func numberOf(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func narrowInt(n int64, k reflect.Kind) starlark.Value {
	switch k {
	case reflect.Int8:
		return starlark.MakeInt64(int64(int8(n)))
	case reflect.Int16:
		return starlark.MakeInt64(int64(int16(n)))
	case reflect.Int32:
		return starlark.MakeInt64(int64(int32(n)))
	case reflect.Int:
		return starlark.MakeInt64(int64(int(n)))
	case reflect.Uint8:
		return starlark.MakeUint64(uint64(uint8(n)))
	case reflect.Uint16:
		return starlark.MakeUint64(uint64(uint16(n)))
	case reflect.Uint32:
		return starlark.MakeUint64(uint64(uint32(n)))
	case reflect.Uint, reflect.Uint64:
		return starlark.MakeUint64(uint64(n))
	}
	return starlark.MakeInt64(n)
}

// objectToGuest converts v declared as class. Structs and pointers become
// host object proxies; other classes use the default table.
func (b *Bridge) objectToGuest(v any, class reflect.Type, path convPath) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	rv := reflect.ValueOf(v)
	if class != nil && !rv.Type().AssignableTo(class) {
		return nil, hostError(ErrConversion, "toGuest", "value of type %s is not a %s", rv.Type(), class)
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Pointer:
		return hostObjectToGuest(b, rv, path)
	}
	return b.defaultToGuest(v, path)
}

// arrayToGuest builds a guest list, converting each element with elem. Any
// element failure abandons the whole list.
func (b *Bridge) arrayToGuest(v any, elem *TypeDescriptor, path convPath) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return starlark.None, nil
		}
	case reflect.Array:
	default:
		return nil, hostError(ErrConversion, "toGuest", "%s is not an array", rv.Type())
	}
	path, leave, err := enterHost(path, rv)
	if err != nil {
		return nil, err
	}
	defer leave()
	items := make([]starlark.Value, rv.Len())
	for i := range items {
		x, err := b.toGuestPath(rv.Index(i).Interface(), elem, path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "toGuest", err, "array element %d", i)
		}
		items[i] = x
	}
	return starlark.NewList(items), nil
}
