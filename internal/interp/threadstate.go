package interp

import (
	"fmt"

	"go.starlark.net/starlark"
)

const threadStateKey = "embedpy.threadstate"

// ThreadState is the guest-side state of one OS thread: its evaluation
// stack and its pending exception.
type ThreadState struct {
	ID     int64
	Thread *starlark.Thread
	depth  int

	curType  *ExceptionType
	curValue starlark.Value
	curTB    string
}

// Attach returns the thread state for tid, creating it on first use. Each
// Attach must be paired with Detach.
func (it *Interpreter) Attach(tid int64) *ThreadState {
	ts, ok := it.states[tid]
	if !ok {
		ts = &ThreadState{ID: tid}
		ts.Thread = &starlark.Thread{
			Name:  fmt.Sprintf("embedpy-%d", tid),
			Print: it.print,
			Load:  it.loadHook,
		}
		ts.Thread.SetLocal(threadStateKey, ts)
		it.states[tid] = ts
	}
	ts.depth++
	return ts
}

// Detach releases one Attach; the state is dropped when the outermost one
// is released.
func (it *Interpreter) Detach(ts *ThreadState) {
	ts.depth--
	if ts.depth <= 0 {
		if it.states[ts.ID] == ts {
			delete(it.states, ts.ID)
		}
	}
}

// CurrentThreadState returns the thread state bound to a guest thread.
func CurrentThreadState(thread *starlark.Thread) *ThreadState {
	ts, _ := thread.Local(threadStateKey).(*ThreadState)
	return ts
}

// Raise sets the pending exception.
func (ts *ThreadState) Raise(exc *Exception) {
	ts.curType = exc.typ
	ts.curValue = exc
	ts.curTB = exc.traceback
}

// SetString sets a pending exception of typ whose value is not yet an
// instance; NormalizeException builds it.
func (ts *ThreadState) SetString(typ *ExceptionType, msg string) {
	ts.curType = typ
	ts.curValue = starlark.String(msg)
	ts.curTB = ""
}

// Occurred returns the class of the pending exception, or nil.
func (ts *ThreadState) Occurred() *ExceptionType { return ts.curType }

// Fetch returns the pending exception triple and clears it.
func (ts *ThreadState) Fetch() (typ *ExceptionType, value starlark.Value, tb string) {
	typ, value, tb = ts.curType, ts.curValue, ts.curTB
	ts.Clear()
	return typ, value, tb
}

// Restore makes a fetched triple pending again.
func (ts *ThreadState) Restore(typ *ExceptionType, value starlark.Value, tb string) {
	ts.curType, ts.curValue, ts.curTB = typ, value, tb
}

// Clear drops the pending exception.
func (ts *ThreadState) Clear() {
	ts.curType, ts.curValue, ts.curTB = nil, nil, ""
}

// fail classifies err, makes it the pending exception, and returns it.
func (ts *ThreadState) fail(err error) error {
	exc := Classify(err)
	ts.Raise(exc)
	return exc
}

// NormalizeException turns a fetched triple into a class and an instance of
// it. A nil class normalizes to RuntimeError.
func NormalizeException(typ *ExceptionType, value starlark.Value, tb string) (*ExceptionType, *Exception, string) {
	if typ == nil {
		typ = RuntimeError
	}
	switch v := value.(type) {
	case *Exception:
		if v.typ.IsSubclass(typ) {
			if tb == "" {
				tb = v.traceback
			}
			return v.typ, v, tb
		}
		return typ, &Exception{typ: typ, args: starlark.Tuple{v}, traceback: tb}, tb
	case nil:
		return typ, &Exception{typ: typ, traceback: tb}, tb
	case starlark.NoneType:
		return typ, &Exception{typ: typ, traceback: tb}, tb
	case starlark.Tuple:
		return typ, &Exception{typ: typ, args: v, traceback: tb}, tb
	}
	return typ, &Exception{typ: typ, args: starlark.Tuple{value}, traceback: tb}, tb
}
