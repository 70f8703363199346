package embedpy

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestInt32RoundTrip(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	for _, n := range []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32} {
		if err := b.SetAttribute(main, "v", n, Int32); err != nil {
			t.Fatalf("SetAttribute(%d): %v", n, err)
		}
		h, err := b.GetAttribute(main, "v")
		if err != nil {
			t.Fatal(err)
		}
		got, err := b.AsInt32(h)
		b.DecRef(h)
		if err != nil || got != n {
			t.Errorf("round trip of %d = %d, %v", n, got, err)
		}
	}
}

func TestIntegerNarrowing(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	tests := []struct {
		in   any
		desc *TypeDescriptor
		want int64
	}{
		{300, Int8, 44},
		{-1, Uint8, 255},
		{int64(1) << 40, Int32, 0},
		{3.9, Int, 3},
		{uint16(65535), Int16, -1},
	}
	for _, tt := range tests {
		if err := b.SetAttribute(main, "v", tt.in, tt.desc); err != nil {
			t.Fatalf("SetAttribute(%v as %s): %v", tt.in, tt.desc, err)
		}
		got, err := GetAttributeAs[int64](b, main, "v")
		if err != nil || got != tt.want {
			t.Errorf("%v as %s = %d, %v; want %d", tt.in, tt.desc, got, err, tt.want)
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	tests := []struct{ in, want string }{
		{"", ""},
		{"plain ascii", "plain ascii"},
		{"héllo, 世界 🌍", "héllo, 世界 🌍"},
		{"bad \xff byte", "bad � byte"},
	}
	for _, tt := range tests {
		if err := b.SetAttribute(main, "s", tt.in, Text); err != nil {
			t.Fatal(err)
		}
		h, err := b.GetAttribute(main, "s")
		if err != nil {
			t.Fatal(err)
		}
		got, err := b.AsText(h)
		b.DecRef(h)
		if err != nil || got != tt.want {
			t.Errorf("round trip of %q = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestPrimitiveExtractorsRejectOtherTypes(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "s = 'text'\nn = 7\nf = 2.5")

	get := func(name string) Handle {
		h, err := b.GetAttribute(main, name)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { b.DecRef(h) })
		return h
	}
	if _, err := b.AsInt32(get("s")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsInt32(str) = %v", err)
	}
	if _, err := b.AsText(get("n")); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsText(int) = %v", err)
	}
	if f, err := b.AsDouble(get("n")); err != nil || f != 7 {
		t.Errorf("AsDouble(int) = %v, %v", f, err)
	}
	if f, err := b.AsDouble(get("f")); err != nil || f != 2.5 {
		t.Errorf("AsDouble(float) = %v, %v", f, err)
	}
}

func TestDefaultConversions(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	in := map[string]any{
		"name":  "widget",
		"count": 3,
		"tags":  []string{"a", "b"},
		"blob":  []byte{1, 2},
		"none":  nil,
		"ok":    true,
	}
	if err := b.SetAttribute(main, "d", in, nil); err != nil {
		t.Fatal(err)
	}
	mustExec(t, b, "kinds = {k: type(v) for k, v in d.items()}")
	got, err := GetAttributeAs[map[string]string](b, main, "kinds")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"name": "string", "count": "int", "tags": "list",
		"blob": "bytes", "none": "NoneType", "ok": "bool",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("guest types = %v, want %v", got, want)
	}

	back, err := b.GetAttributeTyped(main, "d", Any)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := back.(map[string]any)
	if !ok {
		t.Fatalf("generic form is %T", back)
	}
	if m["count"] != int64(3) || m["name"] != "widget" || m["none"] != nil {
		t.Errorf("generic form = %v", m)
	}
	if tags, _ := m["tags"].([]any); len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %#v", m["tags"])
	}
}

func TestNoStrategy(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	err := b.SetAttribute(main, "c", make(chan int), nil)
	if !errors.Is(err, ErrConversion) {
		t.Errorf("SetAttribute(chan) = %v, want ConversionError", err)
	}
	err = b.SetAttribute(main, "c", "x", Int32)
	if !errors.Is(err, ErrConversion) {
		t.Errorf("SetAttribute(string as int32) = %v, want ConversionError", err)
	}
	err = b.SetAttribute(main, "c", []any{1, make(chan int)}, ArrayOf(Any))
	if !errors.Is(err, ErrConversion) {
		t.Errorf("SetAttribute(array with chan) = %v, want ConversionError", err)
	}
}

func TestSequenceConversionIsAtomic(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "nums = [1, 2, 3, 'four', 5]\nnested = [[1], [2], [3], 'four', [5]]\ngood = [1, 2, 3, 4, 5]")

	seq, err := b.GetAttribute(main, "nums")
	if err != nil {
		t.Fatal(err)
	}
	defer b.DecRef(seq)
	got, err := b.AsHostArray(seq, Int32)
	if !errors.Is(err, ErrSequenceConversion) || !errors.Is(err, ErrConversion) {
		t.Fatalf("AsHostArray = %v, want SequenceConversionError", err)
	}
	if got != nil {
		t.Errorf("partial result %v returned with the error", got)
	}

	// Elements converted to handles before the failure are released.
	base := b.LiveHandles()
	nested, err := b.GetAttribute(main, "nested")
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.AsHostArray(nested, ObjectOf(reflect.TypeOf([]*Object(nil))))
	if !errors.Is(err, ErrSequenceConversion) {
		t.Fatalf("AsHostArray(nested) = %v", err)
	}
	b.DecRef(nested)
	if got := b.LiveHandles(); got != base {
		t.Errorf("LiveHandles = %d after failed conversion, want %d", got, base)
	}

	ok, err := b.GetAttribute(main, "good")
	if err != nil {
		t.Fatal(err)
	}
	defer b.DecRef(ok)
	arr, err := b.AsHostArray(ok, Int32)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(arr, []int32{1, 2, 3, 4, 5}) {
		t.Errorf("AsHostArray = %#v", arr)
	}
}

type point struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Label string `json:"label"`
}

func TestGuestDictToStruct(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "p = {'x': 1, 'y': -2, 'label': 'origin'}\nq = [1, 2]")

	p, err := GetAttributeAs[point](b, main, "p")
	if err != nil {
		t.Fatal(err)
	}
	if p != (point{X: 1, Y: -2, Label: "origin"}) {
		t.Errorf("p = %+v", p)
	}
	pp, err := GetAttributeAs[*point](b, main, "p")
	if err != nil || pp == nil || pp.Label != "origin" {
		t.Errorf("*point = %+v, %v", pp, err)
	}
	if _, err := GetAttributeAs[point](b, main, "q"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("list to struct = %v, want TypeMismatchError", err)
	}
}

func TestNoneIntoValueType(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "nothing = None")

	if _, err := GetAttributeAs[int32](b, main, "nothing"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("None as int32 = %v", err)
	}
	v, err := b.GetAttributeTyped(main, "nothing", ArrayOf(Int32))
	if err != nil || !reflect.ValueOf(v).IsNil() {
		t.Errorf("None as []int32 = %#v, %v", v, err)
	}
}

func TestSelfContainingValues(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "l = []\nl.append(l)\nd = {}\nd['self'] = [d]\nshared = [1]\npair = [shared, shared]")

	base := b.LiveHandles()
	for _, name := range []string{"l", "d"} {
		if _, err := b.GetAttributeTyped(main, name, nil); !errors.Is(err, ErrConversion) {
			t.Errorf("GetAttributeTyped(%s) = %v, want ConversionError", name, err)
		}
	}
	if _, err := b.GetAttributeTyped(main, "l", ArrayOf(Any)); !errors.Is(err, ErrConversion) {
		t.Errorf("GetAttributeTyped(l, []any) = %v, want ConversionError", err)
	}
	if got := b.LiveHandles(); got != base {
		t.Errorf("LiveHandles = %d after failed conversions, want %d", got, base)
	}

	// A value reached twice without containing itself still converts.
	v, err := b.GetAttributeTyped(main, "pair", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := []any{[]any{int64(1)}, []any{int64(1)}}; !reflect.DeepEqual(v, want) {
		t.Errorf("pair = %#v", v)
	}

	m := map[string]any{}
	m["self"] = m
	if err := b.SetAttribute(main, "x", m, nil); !errors.Is(err, ErrConversion) {
		t.Errorf("SetAttribute(self-containing map) = %v, want ConversionError", err)
	}
	s := []any{nil}
	s[0] = s
	if err := b.SetAttribute(main, "x", s, ArrayOf(nil)); !errors.Is(err, ErrConversion) {
		t.Errorf("SetAttribute(self-containing slice) = %v, want ConversionError", err)
	}
	inner := []any{1}
	if err := b.SetAttribute(main, "x", map[string]any{"a": inner, "b": inner}, nil); err != nil {
		t.Errorf("SetAttribute(shared slice) = %v", err)
	}
}

func TestHostProxiesAsObjects(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	c1, c2 := &counter{Name: "one"}, &counter{Name: "two"}
	if err := b.SetAttribute(main, "counters", []any{c1, c2}, nil); err != nil {
		t.Fatal(err)
	}
	h, err := b.GetAttribute(main, "counters")
	if err != nil {
		t.Fatal(err)
	}
	defer b.DecRef(h)

	got, err := b.AsHostArray(h, ObjectOf(reflect.TypeOf((*Object)(nil))))
	if err != nil {
		t.Fatal(err)
	}
	objs, ok := got.([]*Object)
	if !ok || len(objs) != 2 {
		t.Fatalf("AsHostArray = %#v, want two *Object", got)
	}
	for i, want := range []*counter{c1, c2} {
		v, err := objs[i].Value()
		objs[i].Release()
		if err != nil || v != want {
			t.Errorf("objs[%d].Value() = %v, %v; want %p", i, v, err, want)
		}
	}
}
