package interp

import (
	"reflect"
	"sync/atomic"

	"go.starlark.net/starlark"
)

// Ref is a reference-counted handle on a guest value. 0 is the null handle.
type Ref uint64

// NullRef never names a value.
const NullRef Ref = 0

// Handle numbers are process-wide so that refs from a finalized interpreter
// never alias values of a later one.
var refSeq atomic.Uint64

type refEntry struct {
	value starlark.Value
	count int64
}

// Table owns the guest values the host holds refs to. Callers hold the
// global lock for every operation.
type Table struct {
	entries map[Ref]*refEntry
	byValue map[starlark.Value]Ref
}

func newTable() *Table {
	return &Table{
		entries: make(map[Ref]*refEntry),
		byValue: make(map[starlark.Value]Ref),
	}
}

// identity reports whether v has reference identity. Only such values share
// a handle; scalars and tuples get a fresh one each time.
func identity(v starlark.Value) bool {
	return reflect.ValueOf(v).Kind() == reflect.Pointer
}

// NewRef returns a new reference to v. If v already has a handle its count
// is incremented and the same handle returned.
func (t *Table) NewRef(v starlark.Value) Ref {
	if v == nil {
		return NullRef
	}
	if identity(v) {
		if r, ok := t.byValue[v]; ok {
			t.entries[r].count++
			return r
		}
	}
	r := Ref(refSeq.Add(1))
	t.entries[r] = &refEntry{value: v, count: 1}
	if identity(v) {
		t.byValue[v] = r
	}
	return r
}

// Get resolves r without touching its count.
func (t *Table) Get(r Ref) (starlark.Value, bool) {
	e, ok := t.entries[r]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// IncRef bumps the count of a live handle.
func (t *Table) IncRef(r Ref) bool {
	e, ok := t.entries[r]
	if !ok {
		return false
	}
	e.count++
	return true
}

// DecRef drops one reference and returns the remaining count. ok is false
// when r was not live, in which case nothing changes.
func (t *Table) DecRef(r Ref) (remaining int64, ok bool) {
	e, ok := t.entries[r]
	if !ok || e.count <= 0 {
		return 0, false
	}
	e.count--
	if e.count == 0 {
		delete(t.entries, r)
		if identity(e.value) {
			delete(t.byValue, e.value)
		}
	}
	return e.count, true
}

// RefCount is 0 for handles that are not live.
func (t *Table) RefCount(r Ref) int64 {
	if e, ok := t.entries[r]; ok {
		return e.count
	}
	return 0
}

// Same reports whether a and b are live and name equal values. Values with
// identity share one handle, so for them only a == b holds; scalars and
// tuples are compared by value.
func (t *Table) Same(a, b Ref) bool {
	x, ok := t.Get(a)
	if !ok {
		return false
	}
	if a == b {
		return true
	}
	y, ok := t.Get(b)
	if !ok || identity(x) || identity(y) {
		return false
	}
	eq, err := starlark.Equal(x, y)
	return err == nil && eq
}

// Len is the number of live handles.
func (t *Table) Len() int { return len(t.entries) }

func (t *Table) clear() {
	t.entries = make(map[Ref]*refEntry)
	t.byValue = make(map[starlark.Value]Ref)
}
