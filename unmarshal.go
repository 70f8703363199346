package embedpy

import (
	"math/big"
	"reflect"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

var (
	objectType = reflect.TypeOf((*Object)(nil))
	anyType    = reflect.TypeOf((*any)(nil)).Elem()
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	bytesType  = reflect.TypeOf([]byte(nil))
)

var mask64 = new(big.Int).SetUint64(^uint64(0))

// fromGuestAny is fromGuest returning an interface; nil for None.
func (b *Bridge) fromGuestAny(v starlark.Value, t reflect.Type) (any, error) {
	rv, err := b.fromGuest(v, t)
	if err != nil || !rv.IsValid() {
		return nil, err
	}
	return rv.Interface(), nil
}

// fromGuest converts a guest value to host type t. A nil t, or any, asks for
// the generic host form of the value (see generic). The result is either
// invalid (None with a nil t) or assignable to t. An *Object t wraps any
// guest value, host proxies included, as a token.
func (b *Bridge) fromGuest(v starlark.Value, t reflect.Type) (reflect.Value, error) {
	return b.fromGuestPath(v, t, nil)
}

func (b *Bridge) fromGuestPath(v starlark.Value, t reflect.Type, path convPath) (reflect.Value, error) {
	if t == objectType {
		return reflect.ValueOf(b.Wrap(Handle(b.it.Objects().NewRef(v)))), nil
	}
	switch x := v.(type) {
	case *HostObject:
		return unwrapHost(x.v, t)
	case *hostFunc:
		return unwrapHost(x.fn, t)
	}
	if t == nil || t == anyType {
		x, err := b.genericPath(v, path)
		if err != nil {
			return reflect.Value{}, err
		}
		if t == nil {
			return reflect.ValueOf(x), nil
		}
		out := reflect.New(anyType).Elem()
		if x != nil {
			out.Set(reflect.ValueOf(x))
		}
		return out, nil
	}
	if v == starlark.None {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "None cannot be converted to %s", t)
	}

	rv, err := b.fromGuestKind(v, t, path)
	if err == nil {
		b.diag(DiagType, "guest value converted", zap.String("guest", v.Type()), zap.Stringer("host", t))
	}
	return rv, err
}

func (b *Bridge) fromGuestKind(v starlark.Value, t reflect.Type, path convPath) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		if x, ok := v.(starlark.Bool); ok {
			out.SetBool(bool(x))
			return out, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := guestInt(v); ok {
			out.SetInt(n)
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if n, ok := guestInt(v); ok {
			out.SetUint(uint64(n))
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		if f, ok := starlark.AsFloat(v); ok {
			out.SetFloat(f)
			return out, nil
		}
	case reflect.String:
		if s, ok := v.(starlark.String); ok {
			out.SetString(decodeText(string(s)))
			return out, nil
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if bs, ok := v.(starlark.Bytes); ok {
				return reflect.ValueOf([]byte(bs)).Convert(t), nil
			}
		}
		return b.sequenceToSlice(v, t, path)
	case reflect.Array:
		sl, err := b.sequenceToSlice(v, reflect.SliceOf(t.Elem()), path)
		if err != nil {
			return reflect.Value{}, err
		}
		if sl.Len() != t.Len() {
			b.releaseConverted(sl)
			return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "sequence of length %d cannot be converted to %s", sl.Len(), t)
		}
		reflect.Copy(out, sl)
		return out, nil
	case reflect.Map:
		return b.mappingToMap(v, t, path)
	case reflect.Struct:
		return b.decodeStruct(v, t, path)
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return b.decodeStruct(v, t, path)
		}
		return reflect.Value{}, hostError(ErrUnsupportedType, "fromGuest", "no guest conversion to %s", t)
	case reflect.Interface:
		x, err := b.genericPath(v, path)
		if err != nil {
			return reflect.Value{}, err
		}
		if x == nil || !reflect.TypeOf(x).Implements(t) {
			return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value does not implement %s", v.Type(), t)
		}
		out.Set(reflect.ValueOf(x))
		return out, nil
	default:
		return reflect.Value{}, hostError(ErrUnsupportedType, "fromGuest", "no guest conversion to %s", t)
	}
	return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value cannot be converted to %s", v.Type(), t)
}

func unwrapHost(rv reflect.Value, t reflect.Type) (reflect.Value, error) {
	if t == nil || t == anyType || rv.Type().AssignableTo(t) {
		return rv, nil
	}
	return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "host value of type %s is not a %s", rv.Type(), t)
}

// guestInt returns the low 64 bits of a guest int, or 0 and 1 for a bool.
func guestInt(v starlark.Value) (int64, bool) {
	switch x := v.(type) {
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n, true
		}
		return int64(new(big.Int).And(x.BigInt(), mask64).Uint64()), true
	case starlark.Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sequenceToSlice converts every element of a guest sequence to t.Elem().
// The conversion is all or nothing: when an element fails, handles already
// created for earlier elements are released before the error is returned.
func (b *Bridge) sequenceToSlice(v starlark.Value, t reflect.Type, path convPath) (reflect.Value, error) {
	switch v.(type) {
	case starlark.String, starlark.Bytes:
		return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value cannot be converted to %s", v.Type(), t)
	}
	path, leave, err := enterGuest(path, v)
	if err != nil {
		return reflect.Value{}, err
	}
	defer leave()
	var items []starlark.Value
	switch seq := v.(type) {
	case starlark.Indexable:
		items = make([]starlark.Value, seq.Len())
		for i := range items {
			items[i] = seq.Index(i)
		}
	case *starlark.Set:
		iter := seq.Iterate()
		var x starlark.Value
		for iter.Next(&x) {
			items = append(items, x)
		}
		iter.Done()
	default:
		return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value is not a sequence", v.Type())
	}

	out := reflect.MakeSlice(t, len(items), len(items))
	for i, item := range items {
		ev, err := b.fromGuestPath(item, t.Elem(), path)
		if err != nil {
			b.releaseConverted(out.Slice(0, i))
			return reflect.Value{}, wrapHostError(ErrSequenceConversion, "fromGuest", err,
				"element %d of %s cannot be converted to %s", i, v.Type(), t.Elem())
		}
		if ev.IsValid() {
			out.Index(i).Set(ev)
		}
	}
	return out, nil
}

// releaseConverted drops every *Object reachable from rv.
func (b *Bridge) releaseConverted(rv reflect.Value) {
	if !rv.IsValid() {
		return
	}
	if rv.Type() == objectType {
		if o, _ := rv.Interface().(*Object); o != nil && o.released.CompareAndSwap(false, true) {
			b.it.Objects().DecRef(interp.Ref(o.h))
		}
		return
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			b.releaseConverted(rv.Index(i))
		}
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			b.releaseConverted(iter.Key())
			b.releaseConverted(iter.Value())
		}
	case reflect.Interface:
		if !rv.IsNil() {
			b.releaseConverted(rv.Elem())
		}
	}
}

func (b *Bridge) mappingToMap(v starlark.Value, t reflect.Type, path convPath) (reflect.Value, error) {
	d, ok := v.(starlark.IterableMapping)
	if !ok {
		return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value is not a mapping", v.Type())
	}
	path, leave, err := enterGuest(path, v)
	if err != nil {
		return reflect.Value{}, err
	}
	defer leave()
	items := d.Items()
	out := reflect.MakeMapWithSize(t, len(items))
	for _, kv := range items {
		k, err := b.fromGuestPath(kv[0], t.Key(), path)
		if err == nil && !k.IsValid() {
			k = reflect.Zero(t.Key())
		}
		if err != nil {
			b.releaseConverted(out)
			return reflect.Value{}, wrapHostError(ErrConversion, "fromGuest", err, "key %s", kv[0])
		}
		e, err := b.fromGuestPath(kv[1], t.Elem(), path)
		if err != nil {
			b.releaseConverted(k)
			b.releaseConverted(out)
			return reflect.Value{}, wrapHostError(ErrConversion, "fromGuest", err, "value for key %s", kv[0])
		}
		if !e.IsValid() {
			e = reflect.Zero(t.Elem())
		}
		out.SetMapIndex(k, e)
	}
	return out, nil
}

// decodeStruct fills a struct (or pointer to struct) from a guest mapping by
// round-tripping its generic form through the bridge serializer.
func (b *Bridge) decodeStruct(v starlark.Value, t reflect.Type, path convPath) (reflect.Value, error) {
	if _, ok := v.(starlark.IterableMapping); !ok {
		return reflect.Value{}, hostError(ErrTypeMismatch, "fromGuest", "%s value cannot be converted to %s", v.Type(), t)
	}
	tree, err := b.genericPath(v, path)
	if err != nil {
		return reflect.Value{}, err
	}
	data, err := b.serializer.Marshal(tree)
	if err != nil {
		return reflect.Value{}, wrapHostError(ErrConversion, "fromGuest", err, "encode %s", v.Type())
	}
	st := t
	if t.Kind() == reflect.Pointer {
		st = t.Elem()
	}
	target := reflect.New(st)
	if err := b.serializer.Unmarshal(data, target.Interface()); err != nil {
		return reflect.Value{}, wrapHostError(ErrConversion, "fromGuest", err, "decode into %s", t)
	}
	if t.Kind() == reflect.Pointer {
		return target, nil
	}
	return target.Elem(), nil
}

// generic converts a guest value to its natural host form: nil, bool, int64
// (or *big.Int when it does not fit), float64, string, []byte, []any for
// lists, tuples and sets, and map[string]any (map[any]any for non-string
// keys) for dicts. Host objects unwrap to the original value. A container
// that contains itself fails with ErrConversion.
func (b *Bridge) generic(v starlark.Value) (any, error) {
	return b.genericPath(v, nil)
}

func (b *Bridge) genericPath(v starlark.Value, path convPath) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return n, nil
		}
		return x.BigInt(), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return decodeText(string(x)), nil
	case starlark.Bytes:
		return []byte(x), nil
	case *HostObject:
		return x.v.Interface(), nil
	case *hostFunc:
		return x.fn.Interface(), nil
	case *interp.Exception:
		return x, nil
	case *starlark.List, starlark.Tuple, *starlark.Set:
		rv, err := b.sequenceToSlice(v, reflect.TypeOf([]any(nil)), path)
		if err != nil {
			return nil, err
		}
		return rv.Interface(), nil
	case starlark.IterableMapping:
		return b.genericMap(x, path)
	}
	return nil, hostError(ErrUnsupportedType, "fromGuest", "no host conversion for guest type %s", v.Type())
}

func (b *Bridge) genericMap(d starlark.IterableMapping, path convPath) (any, error) {
	path, leave, err := enterGuest(path, d)
	if err != nil {
		return nil, err
	}
	defer leave()
	items := d.Items()
	stringKeys := true
	for _, kv := range items {
		if _, ok := kv[0].(starlark.String); !ok {
			stringKeys = false
			break
		}
	}
	if stringKeys {
		out := make(map[string]any, len(items))
		for _, kv := range items {
			e, err := b.genericPath(kv[1], path)
			if err != nil {
				return nil, wrapHostError(ErrConversion, "fromGuest", err, "value for key %s", kv[0])
			}
			out[decodeText(string(kv[0].(starlark.String)))] = e
		}
		return out, nil
	}
	out := make(map[any]any, len(items))
	for _, kv := range items {
		k, err := b.genericPath(kv[0], path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "fromGuest", err, "key %s", kv[0])
		}
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, hostError(ErrUnsupportedType, "fromGuest", "dict key %s has no hashable host form", kv[0])
		}
		e, err := b.genericPath(kv[1], path)
		if err != nil {
			return nil, wrapHostError(ErrConversion, "fromGuest", err, "value for key %s", kv[0])
		}
		out[k] = e
	}
	return out, nil
}

// AsInt32 extracts a guest int, truncated to 32 bits.
func (b *Bridge) AsInt32(h Handle) (int32, error) {
	g, err := b.enter()
	if err != nil {
		return 0, err
	}
	defer g.leave()
	v, err := g.value("asInt32", h)
	if err != nil {
		return 0, err
	}
	n, ok := guestInt(v)
	if !ok {
		return 0, hostError(ErrTypeMismatch, "asInt32", "%s value is not an int", v.Type())
	}
	return int32(n), nil
}

// AsDouble extracts a guest float. Ints are widened.
func (b *Bridge) AsDouble(h Handle) (float64, error) {
	g, err := b.enter()
	if err != nil {
		return 0, err
	}
	defer g.leave()
	v, err := g.value("asDouble", h)
	if err != nil {
		return 0, err
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, hostError(ErrTypeMismatch, "asDouble", "%s value is not a number", v.Type())
	}
	return f, nil
}

// AsText extracts a guest string. Ill-formed UTF-8 is replaced, never
// rejected.
func (b *Bridge) AsText(h Handle) (string, error) {
	g, err := b.enter()
	if err != nil {
		return "", err
	}
	defer g.leave()
	v, err := g.value("asText", h)
	if err != nil {
		return "", err
	}
	s, ok := v.(starlark.String)
	if !ok {
		return "", hostError(ErrTypeMismatch, "asText", "%s value is not a string", v.Type())
	}
	return decodeText(string(s)), nil
}

// AsHostObject converts the value of h as described by t; a nil t selects
// the generic form.
func (b *Bridge) AsHostObject(h Handle, t *TypeDescriptor) (any, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()
	v, err := g.value("asHostObject", h)
	if err != nil {
		return nil, err
	}
	return b.fromGuestAny(v, t.GoType())
}

// AsHostArray converts the guest sequence of h to a slice whose element type
// is described by elem. None yields nil; a wrapped host slice is returned
// as is.
func (b *Bridge) AsHostArray(h Handle, elem *TypeDescriptor) (any, error) {
	g, err := b.enter()
	if err != nil {
		return nil, err
	}
	defer g.leave()
	v, err := g.value("asHostArray", h)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case *HostObject:
		return x.v.Interface(), nil
	}
	et := elem.GoType()
	if et == nil {
		et = anyType
	}
	rv, err := b.sequenceToSlice(v, reflect.SliceOf(et), nil)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}
