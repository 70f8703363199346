package embedpy

import (
	"fmt"
)

// ErrorKind classifies bridge failures. Each kind is also a sentinel usable
// with errors.Is.
type ErrorKind int

const (
	ErrBootstrap ErrorKind = iota + 1
	ErrImport
	ErrAttributeNotFound
	ErrAttributeAssignment
	ErrNotCallable
	ErrConversion
	ErrTypeMismatch
	ErrSequenceConversion
	ErrUnsupportedType
	ErrGuestRuntime
)

var kindNames = map[ErrorKind]string{
	ErrBootstrap:           "BootstrapError",
	ErrImport:              "ImportError",
	ErrAttributeNotFound:   "AttributeNotFoundError",
	ErrAttributeAssignment: "AttributeAssignmentError",
	ErrNotCallable:         "NotCallableError",
	ErrConversion:          "ConversionError",
	ErrTypeMismatch:        "TypeMismatchError",
	ErrSequenceConversion:  "SequenceConversionError",
	ErrUnsupportedType:     "UnsupportedTypeError",
	ErrGuestRuntime:        "GuestRuntimeError",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func (k ErrorKind) Error() string { return k.String() }

// marshalling reports whether k belongs to the conversion family, all of
// which match ErrConversion.
func (k ErrorKind) marshalling() bool {
	return k >= ErrConversion && k <= ErrUnsupportedType
}

// accepts reports whether a guest exception of the given class is reported
// under k. Anything else surfaces as ErrGuestRuntime.
func (k ErrorKind) accepts(guestType string) bool {
	switch k {
	case ErrAttributeNotFound:
		return guestType == "AttributeError"
	case ErrAttributeAssignment:
		return guestType == "AttributeError" || guestType == "TypeError"
	case ErrNotCallable:
		return guestType == "TypeError"
	case ErrConversion, ErrTypeMismatch, ErrSequenceConversion, ErrUnsupportedType:
		return false
	}
	return true
}

// Error is the single error type returned across the bridge boundary.
type Error struct {
	Kind ErrorKind
	// Op is the bridge operation that failed, e.g. "getAttribute".
	Op string
	// Name is the attribute or module involved, if any.
	Name string
	// Exception is set when the failure was raised inside the guest.
	Exception *TranslatedException
	// Err is the underlying cause for host-side failures.
	Err error

	msg string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrorKind sentinels. ErrConversion matches every marshalling
// failure.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	if !ok {
		return false
	}
	return k == e.Kind || (k == ErrConversion && e.Kind.marshalling())
}

// hostError builds a failure detected on the host side, without guest state.
func hostError(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		msg:  kind.String() + ": " + fmt.Sprintf(format, args...),
	}
}

// wrapHostError is hostError carrying a cause.
func wrapHostError(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	e := hostError(kind, op, format, args...)
	e.Err = err
	e.msg += ": " + err.Error()
	return e
}
