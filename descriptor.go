package embedpy

import (
	"fmt"
	"reflect"
)

// DescriptorKind selects the marshalling strategy of a TypeDescriptor.
type DescriptorKind uint8

const (
	KindPrimitive DescriptorKind = iota + 1
	KindObject
	KindArray
)

// TypeDescriptor is a host-declared type guiding conversion of one value.
// A nil *TypeDescriptor means "no declaration": the default strategy for the
// value's runtime type is used.
type TypeDescriptor struct {
	Kind DescriptorKind

	// Primitive is set for KindPrimitive.
	Primitive reflect.Kind

	// Class is set for KindObject. A nil Class accepts any value.
	Class reflect.Type

	// Elem is set for KindArray.
	Elem *TypeDescriptor
}

// PrimitiveOf describes a primitive of kind k: bool, a sized integer, a
// float, or string.
func PrimitiveOf(k reflect.Kind) *TypeDescriptor {
	return &TypeDescriptor{Kind: KindPrimitive, Primitive: k}
}

// ObjectOf describes a value of class t.
func ObjectOf(t reflect.Type) *TypeDescriptor {
	return &TypeDescriptor{Kind: KindObject, Class: t}
}

// ArrayOf describes an array whose elements are described by elem.
func ArrayOf(elem *TypeDescriptor) *TypeDescriptor {
	return &TypeDescriptor{Kind: KindArray, Elem: elem}
}

var (
	Bool    = PrimitiveOf(reflect.Bool)
	Int     = PrimitiveOf(reflect.Int)
	Int8    = PrimitiveOf(reflect.Int8)
	Int16   = PrimitiveOf(reflect.Int16)
	Int32   = PrimitiveOf(reflect.Int32)
	Int64   = PrimitiveOf(reflect.Int64)
	Uint8   = PrimitiveOf(reflect.Uint8)
	Uint16  = PrimitiveOf(reflect.Uint16)
	Uint32  = PrimitiveOf(reflect.Uint32)
	Uint64  = PrimitiveOf(reflect.Uint64)
	Float32 = PrimitiveOf(reflect.Float32)
	Float64 = PrimitiveOf(reflect.Float64)
	Text    = PrimitiveOf(reflect.String)
	// Any is an object of any class.
	Any = ObjectOf(nil)
)

var primitiveTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeOf(false),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
	reflect.String:  reflect.TypeOf(""),
}

// DescriptorFor derives a descriptor from a Go type. Unnamed primitive types
// become primitives, slices and arrays (other than byte slices) become
// arrays, and everything else is an object of that class.
func DescriptorFor(t reflect.Type) *TypeDescriptor {
	if t == nil {
		return Any
	}
	if pt, ok := primitiveTypes[t.Kind()]; ok && pt == t {
		return PrimitiveOf(t.Kind())
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() != reflect.Uint8 {
			return ArrayOf(DescriptorFor(t.Elem()))
		}
	}
	return ObjectOf(t)
}

// TypeFor is DescriptorFor of T.
func TypeFor[T any]() *TypeDescriptor {
	return DescriptorFor(reflect.TypeOf((*T)(nil)).Elem())
}

// GoType is the host type a value described by d converts to. It is nil for
// Any.
func (d *TypeDescriptor) GoType() reflect.Type {
	if d == nil {
		return nil
	}
	switch d.Kind {
	case KindPrimitive:
		return primitiveTypes[d.Primitive]
	case KindObject:
		return d.Class
	case KindArray:
		if et := d.Elem.GoType(); et != nil {
			return reflect.SliceOf(et)
		}
		return reflect.TypeOf([]any(nil))
	}
	return nil
}

func (d *TypeDescriptor) String() string {
	if d == nil {
		return "<default>"
	}
	switch d.Kind {
	case KindPrimitive:
		return d.Primitive.String()
	case KindObject:
		if d.Class == nil {
			return "object"
		}
		return d.Class.String()
	case KindArray:
		return "[]" + d.Elem.String()
	}
	return fmt.Sprintf("TypeDescriptor(kind=%d)", d.Kind)
}
