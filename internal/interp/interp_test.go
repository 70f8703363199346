package interp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

type bufSink struct{ strings.Builder }

func (b *bufSink) Write(s string) error { b.WriteString(s); return nil }
func (b *bufSink) Flush() error         { return nil }

func newTestInterp(t *testing.T) (*Interpreter, *ThreadState, *bufSink, *bufSink) {
	t.Helper()
	tid := Acquire()
	it := New(nil)
	it.Initialize(Options{ProgramName: "interp-test"})
	stdout, stderr := &bufSink{}, &bufSink{}
	it.SetStdio(stdout, stderr)
	ts := it.Attach(tid)
	t.Cleanup(func() {
		it.Detach(ts)
		it.Finalize()
		Release()
	})
	return it, ts, stdout, stderr
}

func TestRunStringStatus(t *testing.T) {
	it, ts, _, stderr := newTestInterp(t)

	if rc := it.RunString(ts, "x = 1"); rc != 0 {
		t.Fatalf("RunString ok script = %d", rc)
	}
	if rc := it.RunString(ts, "fail('boom')"); rc != -1 {
		t.Fatalf("RunString failing script = %d, want -1", rc)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Errorf("stderr = %q, want the failure message", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Traceback") {
		t.Errorf("stderr = %q, want a traceback", stderr.String())
	}
	if ts.Occurred() != nil {
		t.Error("error indicator left set after RunString")
	}
}

func TestMainGlobalsPersist(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	for _, src := range []string{"counter = 1", "counter = counter + 1", "def get(): return 'v'"} {
		if err := it.ExecMain(ts, "<test>", src); err != nil {
			t.Fatalf("ExecMain(%q): %v", src, err)
		}
	}
	if got, err := starlark.AsInt32(it.Main().Members()["counter"]); err != nil || got != 2 {
		t.Errorf("counter = %v, want 2", it.Main().Members()["counter"])
	}
	if _, ok := it.Main().Members()["__import__"]; ok {
		t.Error("builtins leaked into __main__")
	}
}

func TestPrintUsesSysStdout(t *testing.T) {
	it, ts, stdout, _ := newTestInterp(t)
	if err := it.ExecMain(ts, "<test>", `print("hello", 3)`); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "hello 3\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestImportFromSysPath(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mymod.star"), []byte("def answer():\n    return 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := "sys = __import__('sys')\nsys.path.append(" + starlark.String(dir).String() + ")\n"
	if err := it.ExecMain(ts, "<test>", src); err != nil {
		t.Fatal(err)
	}

	m, err := it.Import(ts, "mymod")
	if err != nil {
		t.Fatal(err)
	}
	fn, err := it.GetAttr(ts, m, "answer")
	if err != nil {
		t.Fatal(err)
	}
	res, err := it.Call(ts, fn, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n, err := starlark.AsInt32(res); err != nil || n != 42 {
		t.Errorf("answer() = %v", res)
	}

	again, _ := it.Import(ts, "mymod")
	if again != m {
		t.Error("second import did not return the cached module")
	}
}

func TestImportErrors(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)

	_, err := it.Import(ts, "no_such_module")
	var exc *Exception
	if !errors.As(err, &exc) || exc.Class() != ImportError {
		t.Fatalf("err = %v, want ImportError", err)
	}
	if ts.Occurred() != ImportError {
		t.Error("indicator not set to ImportError")
	}
	ts.Clear()

	it.AddSource(Source{Name: "a", Path: "a.star", Code: "b = __import__('b')"})
	it.AddSource(Source{Name: "b", Path: "b.star", Code: "a = __import__('a')"})
	_, err = it.Import(ts, "a")
	if !errors.As(err, &exc) || exc.Class() != ImportError || !strings.Contains(exc.Message(), "cycle") {
		t.Fatalf("cyclic import err = %v", err)
	}
}

func TestDottedImportBindsParent(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	it.AddSource(Source{Name: "pkg", Path: "pkg/__init__.star", Code: "name = 'pkg'"})
	it.AddSource(Source{Name: "pkg.util", Path: "pkg/util.star", Code: "def twice(x): return 2 * x"})

	if _, err := it.Import(ts, "pkg.util"); err != nil {
		t.Fatal(err)
	}
	pkg, _ := it.Import(ts, "pkg")
	if _, err := it.GetAttr(ts, pkg, "util"); err != nil {
		t.Errorf("pkg.util not bound on parent: %v", err)
	}
}

func TestAttrFailures(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	sys := it.Sys()

	_, err := it.GetAttr(ts, sys, "doesNotExist")
	var exc *Exception
	if !errors.As(err, &exc) || exc.Class() != AttributeError {
		t.Fatalf("GetAttr err = %v, want AttributeError", err)
	}
	if !strings.Contains(exc.Message(), "doesNotExist") {
		t.Errorf("message %q does not name the attribute", exc.Message())
	}
	ts.Clear()

	if err := it.SetAttr(ts, starlark.MakeInt(1), "x", starlark.None); !errors.As(err, &exc) || exc.Class() != AttributeError {
		t.Errorf("SetAttr on int err = %v", err)
	}
	ts.Clear()

	if _, err := it.Call(ts, starlark.MakeInt(1), nil, nil); !errors.As(err, &exc) || exc.Class() != TypeError {
		t.Errorf("Call on int err = %v", err)
	}
	ts.Clear()
}

func TestThrowAndCatch(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)

	err := it.ExecMain(ts, "<test>", "throw(ValueError('bad value'))")
	if err == nil {
		t.Fatal("throw did not fail")
	}
	typ, val, tb := ts.Fetch()
	if typ != ValueError {
		t.Errorf("pending class = %v, want ValueError", typ)
	}
	_, exc, _ := NormalizeException(typ, val, tb)
	if exc.Message() != "bad value" {
		t.Errorf("message = %q", exc.Message())
	}

	src := `
r = catch(throw, KeyError, "k")
caught = isinstance(r[1], KeyError) and isinstance(r[1], Exception)
`
	if err := it.ExecMain(ts, "<test>", src); err != nil {
		t.Fatal(err)
	}
	if it.Main().Members()["caught"] != starlark.True {
		t.Error("catch did not return the KeyError instance")
	}
}

func TestNewModuleIsMutable(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	src := `
imp = __import__("imp")
m = imp.new_module("myobj")
m.a = "Tut tut!"
`
	if err := it.ExecMain(ts, "<test>", src); err != nil {
		t.Fatal(err)
	}
	m := it.Main().Members()["m"]
	v, err := it.GetAttr(ts, m, "a")
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := starlark.AsString(v); s != "Tut tut!" {
		t.Errorf("m.a = %v", v)
	}
}

func TestNormalizeString(t *testing.T) {
	typ, exc, _ := NormalizeException(TypeError, starlark.String("wrong"), "")
	if typ != TypeError || exc.Message() != "wrong" {
		t.Errorf("normalized = %v %q", typ, exc.Message())
	}
	typ, exc, _ = NormalizeException(nil, nil, "")
	if typ != RuntimeError || exc.Message() != "" {
		t.Errorf("normalized empty = %v %q", typ, exc.Message())
	}
}

func TestNamespaceParents(t *testing.T) {
	it, ts, _, _ := newTestInterp(t)
	it.AddSource(Source{Name: "ns.inner.leaf", Path: "ns/inner/leaf.star", Code: "value = 1"})

	if _, err := it.Import(ts, "missing.parent.child"); err == nil {
		t.Fatal("import of a missing module succeeded")
	}
	ts.Clear()
	if it.IsModuleLoaded("missing") || it.IsModuleLoaded("missing.parent") {
		t.Error("failed import left namespace modules behind")
	}

	if _, err := it.Import(ts, "ns.inner.leaf"); err != nil {
		t.Fatal(err)
	}
	ns, err := it.Import(ts, "ns")
	if err != nil {
		t.Fatalf("namespace parent not registered: %v", err)
	}
	inner, err := it.GetAttr(ts, ns, "inner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := it.GetAttr(ts, inner, "leaf"); err != nil {
		t.Errorf("leaf not bound on its namespace parent: %v", err)
	}
}
