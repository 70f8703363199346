package embedpy

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorKindsMatch(t *testing.T) {
	err := hostError(ErrSequenceConversion, "fromGuest", "element %d", 3)
	if !errors.Is(err, ErrSequenceConversion) || !errors.Is(err, ErrConversion) {
		t.Errorf("%v does not match its kind and family", err)
	}
	if errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrGuestRuntime) {
		t.Errorf("%v matches an unrelated kind", err)
	}
	if got := err.Error(); got != "SequenceConversionError: element 3" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("disk on fire")
	wrapped := fmt.Errorf("loading: %w", wrapHostError(ErrBootstrap, "start", cause, "bad options"))
	if !errors.Is(wrapped, ErrBootstrap) || !errors.Is(wrapped, cause) {
		t.Errorf("%v lost its kind or cause", wrapped)
	}
	if errors.Is(wrapped, ErrConversion) {
		t.Error("bootstrap failure matched the conversion family")
	}
	if s := ErrorKind(99).String(); s != "ErrorKind(99)" {
		t.Errorf("unknown kind String() = %q", s)
	}
}

func TestTranslateClearsGuestState(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	g, err := b.enter()
	if err != nil {
		t.Fatal(err)
	}
	defer g.leave()

	cases := []struct {
		typ  *interp.ExceptionType
		kind ErrorKind
		want ErrorKind
	}{
		{interp.AttributeError, ErrAttributeNotFound, ErrAttributeNotFound},
		{interp.ValueError, ErrAttributeNotFound, ErrGuestRuntime},
		{interp.TypeError, ErrAttributeAssignment, ErrAttributeAssignment},
		{interp.KeyError, ErrImport, ErrImport},
		{interp.TypeError, ErrConversion, ErrGuestRuntime},
	}
	for _, c := range cases {
		g.ts.SetString(c.typ, "bad")
		err := b.translate(g.ts, c.kind, "test", "attr")
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("translate returned %T", err)
		}
		if e.Kind != c.want {
			t.Errorf("%s under %v: kind = %v, want %v", c.typ.Name(), c.kind, e.Kind, c.want)
		}
		if e.Exception == nil || e.Exception.Type != c.typ.Name() || e.Exception.Value != "bad" {
			t.Errorf("exception = %+v", e.Exception)
		}
		wantMsg := c.want.String() + ": " + c.typ.Name() + ": bad"
		if e.Error() != wantMsg {
			t.Errorf("Error() = %q, want %q", e.Error(), wantMsg)
		}
		if g.ts.Occurred() != nil {
			t.Errorf("guest error state left set after translating %s", c.typ.Name())
		}
	}

	if err := b.translate(g.ts, ErrImport, "importModule", "x"); !errors.Is(err, ErrImport) {
		t.Errorf("translate with nothing pending = %v", err)
	}
}

type unprintable struct{}

func (unprintable) String() string        { panic("no string form") }
func (unprintable) Type() string          { return "unprintable" }
func (unprintable) Freeze()               {}
func (unprintable) Truth() starlark.Bool  { return starlark.True }
func (unprintable) Hash() (uint32, error) { return 0, errors.New("unhashable") }

func TestTranslateDegradedException(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	g, err := b.enter()
	if err != nil {
		t.Fatal(err)
	}
	defer g.leave()

	cases := []struct {
		name    string
		typ     *interp.ExceptionType
		value   starlark.Value
		want    string
		wantTyp string
	}{
		{"unprintable value", interp.ValueError, unprintable{}, "GuestRuntimeError: ValueError: ", "ValueError"},
		{"no class", nil, starlark.String("lost"), "GuestRuntimeError: RuntimeError: lost", "RuntimeError"},
	}
	for _, c := range cases {
		g.ts.Restore(c.typ, c.value, "")
		err := b.translate(g.ts, ErrAttributeNotFound, "getAttribute", "attr")
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("%s: translate returned %T", c.name, err)
		}
		if e.Error() != c.want {
			t.Errorf("%s: Error() = %q, want %q", c.name, e.Error(), c.want)
		}
		if e.Exception == nil || e.Exception.Type != c.wantTyp {
			t.Errorf("%s: exception = %+v", c.name, e.Exception)
		}
		if g.ts.Occurred() != nil {
			t.Errorf("%s: guest error state left set", c.name)
		}
	}
}

func TestTracebackInMessage(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	err := b.Exec(`
def inner():
    fail("deep")
def outer():
    inner()
outer()
`)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("Exec = %v", err)
	}
	if e.Exception == nil || e.Exception.Traceback == "" {
		t.Fatalf("no traceback captured: %+v", e.Exception)
	}
	if !strings.Contains(e.Error(), "\nTraceback: ") || !strings.Contains(e.Exception.Traceback, "inner") {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestDiagFlagsParse(t *testing.T) {
	cases := []struct {
		in   string
		want DiagFlags
	}{
		{"", DiagOff},
		{"off", DiagOff},
		{"all", DiagAll},
		{"0x24", DiagExec | DiagErr},
		{"36", DiagExec | DiagErr},
		{"exec,err", DiagExec | DiagErr},
		{"Type | MEM", DiagType | DiagMem},
	}
	for _, c := range cases {
		got, err := ParseDiagFlags(c.in)
		if err != nil || got != c.want {
			t.Errorf("ParseDiagFlags(%q) = %v, %v; want %v", c.in, got, err, c.want)
		}
	}
	if _, err := ParseDiagFlags("loud"); err == nil {
		t.Error("ParseDiagFlags accepted an unknown name")
	}

	for f, want := range map[DiagFlags]string{
		DiagOff:            "off",
		DiagAll:            "all",
		DiagMeth | DiagErr: "meth|err",
		DiagHost | 0x40:    "host|0x40",
	} {
		if got := f.String(); got != want {
			t.Errorf("%#x.String() = %q, want %q", uint32(f), got, want)
		}
	}
}

func TestDiagLogging(t *testing.T) {
	defer SetDiagFlags(GetDiagFlags())
	core, logs := observer.New(zap.DebugLevel)
	b, _, _ := newTestBridge(t, Config{Logger: zap.New(core), Diag: DiagMeth})

	main := mainHandle(t, b)
	defer b.DecRef(main)
	mustExec(t, b, "x = 1")
	before := logs.FilterField(zap.Stringer("diag", DiagMeth)).Len()
	h, err := b.GetAttribute(main, "x")
	if err != nil {
		t.Fatal(err)
	}
	b.DecRef(h)
	if logs.FilterField(zap.Stringer("diag", DiagMeth)).Len() <= before {
		t.Error("GetAttribute logged nothing with DiagMeth enabled")
	}

	SetDiagFlags(DiagOff)
	n := logs.Len()
	h, _ = b.GetAttribute(main, "x")
	b.DecRef(h)
	if logs.Len() != n {
		t.Errorf("logged %d entries with diagnostics off", logs.Len()-n)
	}
}
