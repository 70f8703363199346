package interp

import (
	"testing"

	"go.starlark.net/starlark"
)

func TestTableSharesHandlesForIdentityValues(t *testing.T) {
	tab := newTable()
	l := starlark.NewList(nil)

	a := tab.NewRef(l)
	b := tab.NewRef(l)
	if a != b {
		t.Fatalf("same list got handles %d and %d", a, b)
	}
	if got := tab.RefCount(a); got != 2 {
		t.Errorf("RefCount = %d, want 2", got)
	}

	x := tab.NewRef(starlark.MakeInt(7))
	y := tab.NewRef(starlark.MakeInt(7))
	if x == y {
		t.Error("scalar values shared a handle")
	}
	if tab.NewRef(nil) != NullRef {
		t.Error("nil value did not map to the null handle")
	}
}

func TestTableDecRef(t *testing.T) {
	tab := newTable()
	d := starlark.NewDict(0)
	r := tab.NewRef(d)
	tab.IncRef(r)

	if n, ok := tab.DecRef(r); !ok || n != 1 {
		t.Fatalf("DecRef = (%d, %v), want (1, true)", n, ok)
	}
	if n, ok := tab.DecRef(r); !ok || n != 0 {
		t.Fatalf("DecRef = (%d, %v), want (0, true)", n, ok)
	}
	if _, ok := tab.Get(r); ok {
		t.Error("handle still live at zero count")
	}
	if _, ok := tab.DecRef(r); ok {
		t.Error("DecRef of a dead handle reported success")
	}
	if tab.Len() != 0 {
		t.Errorf("Len = %d, want 0", tab.Len())
	}

	// A value that comes back after being freed gets a new handle.
	if r2 := tab.NewRef(d); r2 == r {
		t.Error("freed handle number was reused")
	}
}

func TestTableSame(t *testing.T) {
	tab := newTable()
	l := tab.NewRef(starlark.NewList(nil))
	m := tab.NewRef(starlark.NewList(nil))
	x := tab.NewRef(starlark.MakeInt(7))
	y := tab.NewRef(starlark.MakeInt(7))
	z := tab.NewRef(starlark.String("7"))

	tests := []struct {
		a, b Ref
		want bool
	}{
		{l, l, true},
		{l, m, false},
		{x, y, true},
		{x, z, false},
		{x, l, false},
		{x, NullRef, false},
	}
	for _, tt := range tests {
		if got := tab.Same(tt.a, tt.b); got != tt.want {
			t.Errorf("Same(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	tab.DecRef(y)
	if tab.Same(x, y) {
		t.Error("released handle compared equal")
	}
}
