package embedpy

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/richinsley/embedpy/internal/interp"
	"github.com/spf13/pflag"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
)

// ProgramName is the fixed program identity the interpreter is started
// with; it becomes sys.argv[0].
const ProgramName = "embedpy"

// BridgeVersion is the version of this package.
var BridgeVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Bridge is the runtime context for one embedded interpreter. Every bridge
// entry point is a method on it. A Bridge is safe for concurrent use; calls
// are serialized by the interpreter's global lock.
type Bridge struct {
	cfg        Config
	log        *zap.Logger
	it         *interp.Interpreter
	serializer Serializer

	companionLoaded bool
	companion       *interp.Module
	hostErrorClass  *interp.ExceptionType

	hosts   map[string]any
	stdout  *lineSink
	stderr  *lineSink
	buffers *BufferPool
}

// New creates a bridge. The interpreter is not started until Start or the
// first operation that needs it.
func New(cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	b := &Bridge{
		cfg:        cfg,
		log:        log.With(zap.String("component", "embedpy")),
		serializer: cfg.Serializer,
		hosts:      make(map[string]any),
		buffers:    NewBufferPool(4096, 4),
	}
	b.it = interp.New(b.log)
	b.it.RegisterNative(b.companionModule(cfg.Companion))
	for _, m := range cfg.Modules {
		b.it.AddSource(m.source(""))
	}
	for _, p := range cfg.Packages {
		for _, src := range p.sources("") {
			b.it.AddSource(src)
		}
	}
	if cfg.Diag != DiagOff {
		SetDiagFlags(cfg.Diag)
	}
	return b
}

// startOptions is the parsed form of the argv-style options given to Start.
type startOptions struct {
	path       []string
	argv       []string
	companion  string
	noRedirect bool
	diag       string
}

func parseStartOptions(cfg Config, options []string) (startOptions, error) {
	so := startOptions{companion: cfg.Companion, noRedirect: cfg.NoRedirect}
	fs := pflag.NewFlagSet(ProgramName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringArrayVarP(&so.path, "path", "p", nil, "directory appended to sys.path")
	fs.StringVar(&so.companion, "companion", so.companion, "companion module to import")
	fs.BoolVar(&so.noRedirect, "no-redirect", so.noRedirect, "leave guest output unredirected")
	fs.StringVar(&so.diag, "diag", "", "diagnostic flags")
	if err := fs.Parse(options); err != nil {
		return so, err
	}
	so.path = append(append([]string{}, cfg.Path...), so.path...)
	so.argv = append(append([]string{}, cfg.Argv...), fs.Args()...)
	return so, nil
}

// Start initializes the interpreter and imports the companion module. It is
// idempotent: a running bridge ignores further calls and their options.
func (b *Bridge) Start(options []string) error {
	tid := interp.Acquire()
	defer interp.Release()
	return b.ensureStarted(tid, options)
}

// ensureStarted runs under the global lock.
func (b *Bridge) ensureStarted(tid int64, options []string) error {
	if b.it.IsInitialized() && b.companionLoaded {
		return nil
	}
	so, err := parseStartOptions(b.cfg, options)
	if err != nil {
		return wrapHostError(ErrBootstrap, "start", err, "invalid start options")
	}
	if so.diag != "" {
		f, err := ParseDiagFlags(so.diag)
		if err != nil {
			return wrapHostError(ErrBootstrap, "start", err, "invalid start options")
		}
		SetDiagFlags(f)
	}

	if !b.it.IsInitialized() {
		b.it.Initialize(interp.Options{
			ProgramName: ProgramName,
			Argv:        so.argv,
			Path:        so.path,
			Logger:      b.log,
		})
		if !so.noRedirect {
			b.installRedirector()
		}
		b.diag(DiagExec, "interpreter started", zap.Strings("path", so.path), zap.Strings("argv", so.argv))
	}

	if !b.companionLoaded {
		ts := b.it.Attach(tid)
		defer b.it.Detach(ts)
		m, err := b.it.Import(ts, so.companion)
		if err != nil {
			return b.translate(ts, ErrBootstrap, "start", so.companion)
		}
		if err := b.checkCompanion(m); err != nil {
			return err
		}
		b.companion = m
		b.hostErrorClass = interp.RuntimeError
		if c, ok := m.Members()["HostError"].(*interp.ExceptionType); ok {
			b.hostErrorClass = c
		}
		b.companionLoaded = true
		b.diag(DiagExec, "companion module loaded", zap.String("module", so.companion))
	}
	return nil
}

func (b *Bridge) checkCompanion(m *interp.Module) error {
	raw, ok := starlark.AsString(m.Members()["api_version"])
	if !ok {
		return hostError(ErrBootstrap, "start", "companion module %q does not define api_version", m.Name())
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return wrapHostError(ErrBootstrap, "start", err, "companion module %q has a bad api_version", m.Name())
	}
	if !v.Compatible(APIVersion) {
		return hostError(ErrBootstrap, "start", "companion module %q api_version %s is incompatible with %s",
			m.Name(), v.String(), APIVersion.String())
	}
	return nil
}

// Stop finalizes the interpreter. Every outstanding Handle becomes invalid.
// Stopping a stopped bridge does nothing.
func (b *Bridge) Stop() {
	interp.Acquire()
	defer interp.Release()
	if !b.it.IsInitialized() {
		return
	}
	b.it.Finalize()
	b.companionLoaded = false
	b.companion = nil
	b.stdout, b.stderr = nil, nil
	b.diag(DiagExec, "interpreter stopped")
}

// IsRunning reports whether the interpreter is initialized and the companion
// module loaded.
func (b *Bridge) IsRunning() bool {
	interp.Acquire()
	defer interp.Release()
	return b.it.IsInitialized() && b.companionLoaded
}

// Version describes the bridge and the guest interpreter.
func (b *Bridge) Version() string {
	return fmt.Sprintf("%s %s (%s)", ProgramName, BridgeVersion.String(), interp.Version())
}

// InterpreterState is a snapshot of the process-wide lifecycle flags.
type InterpreterState struct {
	Initialized          bool
	BridgeModuleLoaded   bool
	ThreadingInitialized bool
}

// State reports the lifecycle flags.
func (b *Bridge) State() InterpreterState {
	interp.Acquire()
	defer interp.Release()
	return InterpreterState{
		Initialized:          b.it.IsInitialized(),
		BridgeModuleLoaded:   b.companionLoaded,
		ThreadingInitialized: interp.ThreadsInitialized(),
	}
}

// Modules lists the modules currently loaded in the guest.
func (b *Bridge) Modules() []string {
	interp.Acquire()
	defer interp.Release()
	return b.it.Modules()
}

// RegisterHostObject makes v reachable from guest code as
// embedpy.host(name).
func (b *Bridge) RegisterHostObject(name string, v any) {
	interp.Acquire()
	defer interp.Release()
	b.hosts[name] = v
	b.diag(DiagHost, "host object registered", zap.String("name", name), zap.String("type", fmt.Sprintf("%T", v)))
}

func (b *Bridge) hostNames() []string {
	names := make([]string, 0, len(b.hosts))
	for k := range b.hosts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (b *Bridge) installRedirector() {
	stdout, stderr := b.cfg.Stdout, b.cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	b.stdout = newLineSink("stdout", stdout, b.buffers)
	b.stderr = newLineSink("stderr", stderr, b.buffers)
	b.it.SetStdio(b.stdout, b.stderr)
}
