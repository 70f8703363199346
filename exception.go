package embedpy

import (
	"fmt"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// TranslatedException is a guest exception captured at the bridge boundary.
type TranslatedException struct {
	// Type is the guest exception class, e.g. "AttributeError".
	Type string

	// Value is the string form of the exception instance.
	Value string

	// Traceback is the guest call stack at the point of failure, if known.
	Traceback string
}

// String formats the exception the way the guest reports an uncaught one.
func (e *TranslatedException) String() string {
	if e.Traceback == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Value)
	}
	return fmt.Sprintf("%s%s: %s", e.Traceback, e.Type, e.Value)
}

type translatorState int

const (
	stateNoError translatorState = iota
	stateCaptured
	stateFormatted
	stateRaised
	stateCleared
)

func (s translatorState) String() string {
	return [...]string{"NoError", "Captured", "Formatted", "Raised", "Cleared"}[s]
}

// translation converts one pending guest exception into one *Error.
type translation struct {
	state translatorState
	typ   *interp.ExceptionType
	value starlark.Value
	tb    string
	exc   TranslatedException
	msg   string
}

// capture fetches the pending exception. A value pending without a class is
// still an exception; format reports it as a RuntimeError.
func (tr *translation) capture(ts *interp.ThreadState) bool {
	typ, value, tb := ts.Fetch()
	if typ == nil && value == nil {
		return false
	}
	tr.typ, tr.value, tr.tb = typ, value, tb
	tr.state = stateCaptured
	return true
}

// format stringifies each component on its own; a component that cannot be
// stringified becomes empty.
func (tr *translation) format(kind ErrorKind) ErrorKind {
	typ, exc, tb := interp.NormalizeException(tr.typ, tr.value, tr.tb)
	tr.exc.Type = typ.Name()
	if s, err := interp.Str(exc); err == nil {
		tr.exc.Value = s
	}
	tr.exc.Traceback = tb

	if !kind.accepts(tr.exc.Type) {
		kind = ErrGuestRuntime
	}
	tr.msg = fmt.Sprintf("%s: %s: %s", kind, tr.exc.Type, tr.exc.Value)
	if tr.exc.Traceback != "" {
		tr.msg += "\nTraceback: " + tr.exc.Traceback
	}
	tr.state = stateFormatted
	return kind
}

func (tr *translation) raise(kind ErrorKind, op, name string) *Error {
	exc := tr.exc
	tr.state = stateRaised
	return &Error{Kind: kind, Op: op, Name: name, Exception: &exc, msg: tr.msg}
}

func (tr *translation) clear(ts *interp.ThreadState) {
	ts.Clear()
	tr.state = stateCleared
}

// translate turns the pending guest exception on ts into an *Error of the
// given kind (or ErrGuestRuntime when the guest class does not fit the kind).
// The guest error state is cleared on every path. With nothing pending it
// still returns an error, since the caller saw the operation fail.
func (b *Bridge) translate(ts *interp.ThreadState, kind ErrorKind, op, name string) error {
	tr := &translation{}
	defer tr.clear(ts)

	if !tr.capture(ts) {
		return &Error{Kind: kind, Op: op, Name: name,
			msg: fmt.Sprintf("%s: %s failed without a guest exception", kind, op)}
	}
	kind = tr.format(kind)
	err := tr.raise(kind, op, name)
	b.diag(DiagErr, "guest exception translated",
		zap.String("op", op), zap.String("name", name),
		zap.String("kind", kind.String()), zap.String("type", tr.exc.Type))
	return err
}
