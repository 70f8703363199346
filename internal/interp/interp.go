// Package interp hosts the guest interpreter: a Python-dialect runtime built
// on go.starlark.net, extended with the pieces an embedding bridge expects
// from a CPython-style C API. That means a process-wide global lock with
// per-thread states, a per-thread error indicator, reference-counted handles,
// mutable modules, sys, and an importer.
package interp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// Options configures Initialize.
type Options struct {
	// ProgramName becomes sys.argv[0].
	ProgramName string
	Argv        []string
	Path        []string
	Logger      *zap.Logger
}

// Source is module text registered with the importer.
type Source struct {
	Name string // dotted import name
	Path string // reported as __file__
	Code string
}

// Interpreter is one guest runtime. All methods except New, RegisterNative
// and AddSource require the global lock.
type Interpreter struct {
	log         *zap.Logger
	initialized bool
	predeclared starlark.StringDict
	natives     map[string]NativeModule
	sources     map[string]Source
	modules     *starlark.Dict
	loading     map[string]bool
	sys         *Module
	main        *Module
	stdout      *Stream
	stderr      *Stream
	objects     *Table
	states      map[int64]*ThreadState
}

// active is the interpreter most recently initialized in this process.
var active atomic.Pointer[Interpreter]

// New returns an uninitialized interpreter.
func New(log *zap.Logger) *Interpreter {
	if log == nil {
		log = zap.NewNop()
	}
	it := &Interpreter{
		log:     log,
		natives: make(map[string]NativeModule),
		sources: make(map[string]Source),
		objects: newTable(),
		states:  make(map[int64]*ThreadState),
	}
	for _, nm := range stdlibModules() {
		it.natives[nm.Name] = nm
	}
	return it
}

// Version names the guest language implementation.
func Version() string {
	v := "(devel)"
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, d := range bi.Deps {
			if d.Path == "go.starlark.net" {
				v = d.Version
				break
			}
		}
	}
	return "starlark-go " + v
}

// RegisterNative makes a Go-defined module importable.
func (it *Interpreter) RegisterNative(nm NativeModule) { it.natives[nm.Name] = nm }

// AddSource registers module text with the importer.
func (it *Interpreter) AddSource(src Source) { it.sources[src.Name] = src }

// IsInitialized reports whether Initialize ran and Finalize did not.
func (it *Interpreter) IsInitialized() bool { return it.initialized }

// Initialize builds sys, builtins and __main__. It is a no-op when already
// initialized. A different interpreter already running in the process is
// reported as a warning and otherwise ignored.
func (it *Interpreter) Initialize(opts Options) {
	if it.initialized {
		return
	}
	if prev := active.Swap(it); prev != nil && prev != it && prev.initialized {
		it.log.Warn("another interpreter is already running in this process",
			zap.String("program", opts.ProgramName))
	}

	it.modules = starlark.NewDict(16)
	it.loading = make(map[string]bool)
	it.stdout = NewStream("<stdout>", WriterSink(os.Stdout))
	it.stderr = NewStream("<stderr>", WriterSink(os.Stderr))

	path := starlark.NewList(nil)
	for _, p := range opts.Path {
		path.Append(starlark.String(p))
	}
	argv := starlark.NewList([]starlark.Value{starlark.String(opts.ProgramName)})
	for _, a := range opts.Argv {
		argv.Append(starlark.String(a))
	}

	it.sys = newModuleWith("sys", starlark.StringDict{
		"argv":       argv,
		"path":       path,
		"modules":    it.modules,
		"stdout":     it.stdout,
		"stderr":     it.stderr,
		"__stdout__": it.stdout,
		"__stderr__": it.stderr,
		"version":    starlark.String(Version()),
		"executable": starlark.String(opts.ProgramName),
	})
	it.predeclared = it.newBuiltins()

	builtins := newModuleWith("builtins", starlark.Universe)
	for k, v := range it.predeclared {
		builtins.Set(k, v)
	}
	it.main = NewModule("__main__")

	for _, m := range []*Module{it.sys, builtins, it.main} {
		_ = it.modules.SetKey(starlark.String(m.name), m)
	}
	it.initialized = true
	it.log.Debug("interpreter initialized", zap.String("version", Version()))
}

// SetStdio rebinds sys.stdout and sys.stderr to streams over the given sinks.
func (it *Interpreter) SetStdio(stdout, stderr Sink) {
	it.stdout = NewStream("<stdout>", stdout)
	it.stderr = NewStream("<stderr>", stderr)
	it.sys.Set("stdout", it.stdout)
	it.sys.Set("stderr", it.stderr)
	it.sys.Set("__stdout__", it.stdout)
	it.sys.Set("__stderr__", it.stderr)
}

// Finalize tears the interpreter down. Every outstanding Ref is forgotten.
func (it *Interpreter) Finalize() {
	if !it.initialized {
		return
	}
	for _, s := range []*Stream{it.stdout, it.stderr} {
		if err := s.sink.Flush(); err != nil {
			it.log.Debug("flush on finalize failed", zap.String("stream", s.name), zap.Error(err))
		}
	}
	live := it.objects.Len()
	it.objects.clear()
	it.modules = nil
	it.loading = nil
	it.sys = nil
	it.main = nil
	it.predeclared = nil
	it.states = make(map[int64]*ThreadState)
	it.initialized = false
	active.CompareAndSwap(it, nil)
	it.log.Debug("interpreter finalized", zap.Int("dropped_refs", live))
}

// Objects is the handle table.
func (it *Interpreter) Objects() *Table { return it.objects }

// Sys returns the sys module.
func (it *Interpreter) Sys() *Module { return it.sys }

// Main returns the __main__ module.
func (it *Interpreter) Main() *Module { return it.main }

// Modules lists the names in sys.modules.
func (it *Interpreter) Modules() []string {
	if it.modules == nil {
		return nil
	}
	var names []string
	for _, k := range it.modules.Keys() {
		if s, ok := starlark.AsString(k); ok {
			names = append(names, s)
		}
	}
	sort.Strings(names)
	return names
}

// IsModuleLoaded reports whether name is present in sys.modules.
func (it *Interpreter) IsModuleLoaded(name string) bool {
	if it.modules == nil {
		return false
	}
	_, found, _ := it.modules.Get(starlark.String(name))
	return found
}

func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}
}

// Import returns the named module, loading it if needed.
func (it *Interpreter) Import(ts *ThreadState, name string) (*Module, error) {
	m, err := it.importModule(ts.Thread, name)
	if err != nil {
		return nil, ts.fail(err)
	}
	return m, nil
}

func (it *Interpreter) importModule(thread *starlark.Thread, name string) (*Module, error) {
	if !it.initialized {
		return nil, NewException(ImportError, "interpreter is not initialized")
	}
	if name == "" {
		return nil, NewException(ValueError, "empty module name")
	}
	if v, found, _ := it.modules.Get(starlark.String(name)); found {
		m, ok := v.(*Module)
		if !ok {
			return nil, NewException(ImportError, "sys.modules['%s'] is a %s, not a module", name, v.Type())
		}
		return m, nil
	}
	if it.loading[name] {
		return nil, NewException(ImportError, "cycle in import of '%s'", name)
	}

	// A parent that cannot be imported becomes a namespace module, kept
	// only if the child loads.
	var parent *Module
	namespace := false
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		p, err := it.importModule(thread, name[:i])
		if err != nil {
			var exc *Exception
			if !errors.As(err, &exc) || exc.typ != ImportError {
				return nil, err
			}
			p = NewModule(name[:i])
			namespace = true
		}
		parent = p
	}

	it.loading[name] = true
	defer delete(it.loading, name)

	m, err := it.findAndLoad(thread, name)
	if err != nil {
		return nil, err
	}
	if err := it.modules.SetKey(starlark.String(name), m); err != nil {
		return nil, err
	}
	if namespace {
		it.registerNamespace(parent)
	}
	if parent != nil {
		parent.Set(name[strings.LastIndexByte(name, '.')+1:], m)
	}
	it.log.Debug("module imported", zap.String("module", name), zap.String("file", m.file))
	return m, nil
}

// registerNamespace records a namespace module and binds it on its own
// parent, creating namespace ancestors as needed.
func (it *Interpreter) registerNamespace(m *Module) {
	if _, found, _ := it.modules.Get(starlark.String(m.name)); found {
		return
	}
	_ = it.modules.SetKey(starlark.String(m.name), m)
	i := strings.LastIndexByte(m.name, '.')
	if i < 0 {
		return
	}
	var parent *Module
	if v, found, _ := it.modules.Get(starlark.String(m.name[:i])); found {
		parent, _ = v.(*Module)
	}
	if parent == nil {
		parent = NewModule(m.name[:i])
		it.registerNamespace(parent)
	}
	parent.Set(m.name[i+1:], m)
}

func (it *Interpreter) findAndLoad(thread *starlark.Thread, name string) (*Module, error) {
	if nm, ok := it.natives[name]; ok {
		return it.loadNative(thread, nm)
	}
	if src, ok := it.sources[name]; ok {
		return it.loadSource(thread, name, src.Path, src.Code)
	}
	rel := filepath.Join(strings.Split(name, ".")...)
	for _, dir := range it.searchPath() {
		for _, cand := range []string{
			rel + ".star", rel + ".py",
			filepath.Join(rel, "__init__.star"), filepath.Join(rel, "__init__.py"),
		} {
			file := filepath.Join(dir, cand)
			code, err := os.ReadFile(file)
			if err != nil {
				continue
			}
			return it.loadSource(thread, name, file, string(code))
		}
	}
	return nil, NewException(ImportError, "No module named '%s'", name)
}

func (it *Interpreter) searchPath() []string {
	list, ok := it.sys.members["path"].(*starlark.List)
	if !ok {
		return nil
	}
	dirs := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		if s, ok := starlark.AsString(list.Index(i)); ok {
			dirs = append(dirs, s)
		}
	}
	return dirs
}

func (it *Interpreter) loadNative(thread *starlark.Thread, nm NativeModule) (*Module, error) {
	members, err := nm.Members(it)
	if err != nil {
		return nil, err
	}
	m := newModuleWith(nm.Name, members)
	if nm.Prelude == "" {
		return m, nil
	}
	pre := make(starlark.StringDict, len(it.predeclared)+len(members))
	for k, v := range it.predeclared {
		pre[k] = v
	}
	for k, v := range members {
		pre[k] = v
	}
	globals, err := it.run(thread, "<"+nm.Name+">", nm.Prelude, pre)
	if err != nil {
		return nil, err
	}
	for k, v := range globals {
		m.Set(k, v)
	}
	return m, nil
}

func (it *Interpreter) loadSource(thread *starlark.Thread, name, file, code string) (*Module, error) {
	globals, err := it.run(thread, file, code, it.predeclared)
	if err != nil {
		return nil, err
	}
	m := newModuleWith(name, globals)
	m.file = file
	return m, nil
}

// run compiles and executes a file without freezing its globals; modules
// stay mutable after import.
func (it *Interpreter) run(thread *starlark.Thread, file, code string, pre starlark.StringDict) (starlark.StringDict, error) {
	_, prog, err := starlark.SourceProgramOptions(fileOptions(), file, code, pre.Has)
	if err != nil {
		return nil, err
	}
	return prog.Init(thread, pre)
}

func (it *Interpreter) loadHook(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	m, err := it.importModule(thread, module)
	if err != nil {
		return nil, err
	}
	return m.members, nil
}

// ExecMain runs src in the namespace of __main__. Top-level bindings persist
// across calls.
func (it *Interpreter) ExecMain(ts *ThreadState, filename, src string) error {
	f, err := fileOptions().Parse(filename, src, 0)
	if err != nil {
		return ts.fail(err)
	}
	globals := make(starlark.StringDict, len(it.predeclared)+len(it.main.members))
	for k, v := range it.predeclared {
		globals[k] = v
	}
	for k, v := range it.main.members {
		globals[k] = v
	}
	err = starlark.ExecREPLChunk(f, ts.Thread, globals)
	for k, v := range globals {
		if p, ok := it.predeclared[k]; ok && p == v {
			if _, bound := it.main.members[k]; !bound {
				continue
			}
		}
		it.main.members[k] = v
	}
	if err != nil {
		return ts.fail(err)
	}
	return nil
}

// Eval evaluates an expression against the __main__ namespace.
func (it *Interpreter) Eval(ts *ThreadState, filename, expr string) (starlark.Value, error) {
	env := make(starlark.StringDict, len(it.predeclared)+len(it.main.members))
	for k, v := range it.predeclared {
		env[k] = v
	}
	for k, v := range it.main.members {
		env[k] = v
	}
	v, err := starlark.EvalOptions(fileOptions(), ts.Thread, filename, expr, env)
	if err != nil {
		return nil, ts.fail(err)
	}
	return v, nil
}

// RunString is the simple-string entry point: 0 on success, -1 on failure
// after printing the exception to sys.stderr. The error indicator is left
// clear either way.
func (it *Interpreter) RunString(ts *ThreadState, src string) int {
	if err := it.ExecMain(ts, "<string>", src); err != nil {
		it.PrintError(ts)
		return -1
	}
	return 0
}

// PrintError writes the pending exception to sys.stderr and clears it.
func (it *Interpreter) PrintError(ts *ThreadState) {
	typ, val, tb := ts.Fetch()
	if typ == nil {
		return
	}
	_, exc, tb := NormalizeException(typ, val, tb)
	var sb strings.Builder
	sb.WriteString(tb)
	sb.WriteString(exc.Error())
	sb.WriteByte('\n')
	it.writeStream(ts.Thread, "stderr", sb.String())
}

func (it *Interpreter) print(thread *starlark.Thread, msg string) {
	it.writeStream(thread, "stdout", msg+"\n")
}

// writeStream writes through whatever object sys.<name> currently is, so
// guest code may rebind it.
func (it *Interpreter) writeStream(thread *starlark.Thread, name, text string) {
	if it.sys != nil {
		if s, ok := it.sys.members[name]; ok {
			if w, err := attr(s, "write"); err == nil {
				_, err = starlark.Call(thread, w, starlark.Tuple{starlark.String(text)}, nil)
				if err == nil {
					return
				}
				it.log.Debug("stream write failed", zap.String("stream", name), zap.Error(err))
			}
		}
	}
	fmt.Fprint(os.Stderr, text)
}

func attr(v starlark.Value, name string) (starlark.Value, error) {
	if name == "__call__" {
		if _, ok := v.(starlark.Callable); ok {
			return v, nil
		}
	}
	ha, ok := v.(starlark.HasAttrs)
	if !ok {
		return nil, NewException(AttributeError, "'%s' object has no attribute '%s'", v.Type(), name)
	}
	x, err := ha.Attr(name)
	if err != nil {
		var nsa starlark.NoSuchAttrError
		if errors.As(err, &nsa) {
			return nil, NewException(AttributeError, "%s", string(nsa))
		}
		return nil, err
	}
	if x == nil {
		return nil, NewException(AttributeError, "'%s' object has no attribute '%s'", v.Type(), name)
	}
	return x, nil
}

func setField(v starlark.Value, name string, x starlark.Value) error {
	hs, ok := v.(starlark.HasSetField)
	if !ok {
		return NewException(AttributeError, "'%s' object attribute '%s' is read-only", v.Type(), name)
	}
	if err := hs.SetField(name, x); err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			return exc
		}
		return NewException(AttributeError, "cannot set attribute '%s' of '%s' object: %v", name, v.Type(), err)
	}
	return nil
}

// GetAttr resolves v.name. "__call__" on a callable is the callable itself.
func (it *Interpreter) GetAttr(ts *ThreadState, v starlark.Value, name string) (starlark.Value, error) {
	x, err := attr(v, name)
	if err != nil {
		return nil, ts.fail(err)
	}
	return x, nil
}

// SetAttr assigns v.name = x.
func (it *Interpreter) SetAttr(ts *ThreadState, v starlark.Value, name string, x starlark.Value) error {
	if err := setField(v, name, x); err != nil {
		return ts.fail(err)
	}
	return nil
}

// IsCallable reports whether v can be invoked.
func IsCallable(v starlark.Value) bool {
	_, ok := v.(starlark.Callable)
	return ok
}

// Call invokes fn with positional args on the thread's guest stack.
func (it *Interpreter) Call(ts *ThreadState, fn starlark.Value, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if !IsCallable(fn) {
		return nil, ts.fail(NewException(TypeError, "'%s' object is not callable", fn.Type()))
	}
	res, err := starlark.Call(ts.Thread, fn, args, kwargs)
	if err != nil {
		return nil, ts.fail(err)
	}
	return res, nil
}

// Str is str(v). It never panics; a value whose String method does reports
// the failure as an error.
func Str(v starlark.Value) (s string, err error) {
	if v == nil {
		return "", errors.New("nil value")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("str of %s: %v", v.Type(), r)
		}
	}()
	if s, ok := starlark.AsString(v); ok {
		return s, nil
	}
	if e, ok := v.(*Exception); ok {
		return e.Message(), nil
	}
	return v.String(), nil
}
