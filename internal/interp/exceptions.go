package interp

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ExceptionType is a guest exception class. Calling it builds an instance.
type ExceptionType struct {
	name string
	base *ExceptionType
}

var (
	_ starlark.Callable = (*ExceptionType)(nil)
	_ starlark.HasAttrs = (*ExceptionType)(nil)
)

// NewExceptionType defines a class deriving from base (BaseException if nil).
func NewExceptionType(name string, base *ExceptionType) *ExceptionType {
	if base == nil && name != "BaseException" {
		base = BaseException
	}
	return &ExceptionType{name: name, base: base}
}

var (
	BaseException  = &ExceptionType{name: "BaseException"}
	ExceptionClass = NewExceptionType("Exception", BaseException)
	RuntimeError   = NewExceptionType("RuntimeError", ExceptionClass)
	AttributeError = NewExceptionType("AttributeError", ExceptionClass)
	ImportError    = NewExceptionType("ImportError", ExceptionClass)
	TypeError      = NewExceptionType("TypeError", ExceptionClass)
	ValueError     = NewExceptionType("ValueError", ExceptionClass)
	NameError      = NewExceptionType("NameError", ExceptionClass)
	KeyError       = NewExceptionType("KeyError", ExceptionClass)
	IndexError     = NewExceptionType("IndexError", ExceptionClass)
	SyntaxError    = NewExceptionType("SyntaxError", ExceptionClass)
)

var builtinExceptions = []*ExceptionType{
	BaseException, ExceptionClass, RuntimeError, AttributeError, ImportError,
	TypeError, ValueError, NameError, KeyError, IndexError, SyntaxError,
}

func (t *ExceptionType) Name() string          { return t.name }
func (t *ExceptionType) String() string        { return "<class '" + t.name + "'>" }
func (t *ExceptionType) Type() string          { return "type" }
func (t *ExceptionType) Freeze()               {}
func (t *ExceptionType) Truth() starlark.Bool  { return true }
func (t *ExceptionType) Hash() (uint32, error) { return starlark.String(t.name).Hash() }
func (t *ExceptionType) AttrNames() []string   { return []string{"__name__", "__base__"} }

func (t *ExceptionType) Attr(name string) (starlark.Value, error) {
	switch name {
	case "__name__":
		return starlark.String(t.name), nil
	case "__base__":
		if t.base == nil {
			return starlark.None, nil
		}
		return t.base, nil
	}
	return nil, nil
}

// IsSubclass reports whether t is other or derives from it.
func (t *ExceptionType) IsSubclass(other *ExceptionType) bool {
	for c := t; c != nil; c = c.base {
		if c == other {
			return true
		}
	}
	return false
}

func (t *ExceptionType) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", t.name)
	}
	return &Exception{typ: t, args: args}, nil
}

// Exception is a guest exception instance. It is also a Go error, so host
// callbacks and builtins can return it directly.
type Exception struct {
	typ       *ExceptionType
	args      starlark.Tuple
	traceback string
}

var _ starlark.HasAttrs = (*Exception)(nil)

// NewException builds an instance of typ carrying a single message argument.
func NewException(typ *ExceptionType, format string, a ...any) *Exception {
	return &Exception{typ: typ, args: starlark.Tuple{starlark.String(fmt.Sprintf(format, a...))}}
}

func (e *Exception) Class() *ExceptionType { return e.typ }
func (e *Exception) Traceback() string     { return e.traceback }
func (e *Exception) Args() starlark.Tuple  { return e.args }

// Message is the str() of the instance: empty, the lone argument, or the
// argument tuple.
func (e *Exception) Message() string {
	switch len(e.args) {
	case 0:
		return ""
	case 1:
		if s, ok := starlark.AsString(e.args[0]); ok {
			return s
		}
		return e.args[0].String()
	}
	return e.args.String()
}

func (e *Exception) Error() string {
	if msg := e.Message(); msg != "" {
		return e.typ.name + ": " + msg
	}
	return e.typ.name
}

func (e *Exception) String() string {
	var sb strings.Builder
	sb.WriteString(e.typ.name)
	sb.WriteByte('(')
	for i, a := range e.args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (e *Exception) Type() string         { return e.typ.name }
func (e *Exception) Freeze()              { e.args.Freeze() }
func (e *Exception) Truth() starlark.Bool { return true }
func (e *Exception) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", e.typ.name)
}
func (e *Exception) AttrNames() []string { return []string{"__class__", "args", "message"} }

func (e *Exception) Attr(name string) (starlark.Value, error) {
	switch name {
	case "__class__":
		return e.typ, nil
	case "args":
		return e.args, nil
	case "message":
		return starlark.String(e.Message()), nil
	}
	return nil, nil
}

// withTraceback returns a copy of e carrying tb.
func (e *Exception) withTraceback(tb string) *Exception {
	c := *e
	c.traceback = tb
	return &c
}

// Classify maps any error produced while running guest code onto a guest
// exception. Exceptions raised explicitly keep their class; interpreter
// errors are classified by shape and message.
func Classify(err error) *Exception {
	if err == nil {
		return nil
	}
	var tb string
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		tb = evalErr.CallStack.String()
	}

	var exc *Exception
	if errors.As(err, &exc) {
		if tb != "" && exc.traceback == "" {
			return exc.withTraceback(tb)
		}
		return exc
	}

	msg := err.Error()
	if evalErr != nil {
		msg = evalErr.Msg
	}
	typ := RuntimeError

	var nsa starlark.NoSuchAttrError
	var synErr syntax.Error
	var resErr resolve.ErrorList
	switch {
	case errors.As(err, &nsa):
		typ = AttributeError
	case errors.As(err, &synErr):
		typ = SyntaxError
	case errors.As(err, &resErr):
		typ = SyntaxError
		if strings.Contains(resErr[0].Msg, "undefined") {
			typ = NameError
		}
	case strings.Contains(msg, "field or method"):
		typ = AttributeError
	case strings.Contains(msg, "cannot load"), strings.Contains(msg, "no module named"):
		typ = ImportError
	case strings.Contains(msg, "invalid call of non-function"), strings.Contains(msg, "not callable"),
		strings.Contains(msg, "unhashable"), strings.Contains(msg, "unknown binary op"):
		typ = TypeError
	case strings.Contains(msg, "not in dict"):
		typ = KeyError
	case strings.Contains(msg, "out of range"):
		typ = IndexError
	}
	return &Exception{typ: typ, args: starlark.Tuple{starlark.String(msg)}, traceback: tb}
}
