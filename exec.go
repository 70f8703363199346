package embedpy

import (
	"go.uber.org/zap"
)

// Execute runs script in the __main__ namespace. It returns 0 on success
// and -1 on failure, in which case the guest traceback has been written to
// sys.stderr. Top-level bindings persist between calls.
func (b *Bridge) Execute(script string) int {
	g, err := b.enter()
	if err != nil {
		b.log.Error("execute: interpreter unavailable", zap.Error(err))
		return -1
	}
	defer g.leave()
	b.diag(DiagExec, "execute", zap.Int("bytes", len(script)))
	rc := b.it.RunString(g.ts, script)
	b.flushStdio()
	return rc
}

// Exec is Execute reporting the failure as an error instead of printing it.
func (b *Bridge) Exec(script string) error {
	return b.ExecFile("<string>", script)
}

// ExecFile runs src in __main__, using filename in tracebacks.
func (b *Bridge) ExecFile(filename, src string) error {
	g, err := b.enter()
	if err != nil {
		return err
	}
	defer g.leave()
	b.diag(DiagExec, "exec", zap.String("file", filename), zap.Int("bytes", len(src)))
	defer b.flushStdio()
	if err := b.it.ExecMain(g.ts, filename, src); err != nil {
		return b.translate(g.ts, ErrGuestRuntime, "exec", filename)
	}
	return nil
}

// Eval evaluates a single expression in __main__ and returns an owned handle
// to its value.
func (b *Bridge) Eval(expr string) (Handle, error) {
	g, err := b.enter()
	if err != nil {
		return NullHandle, err
	}
	defer g.leave()
	b.diag(DiagExec, "eval", zap.Int("bytes", len(expr)))
	defer b.flushStdio()
	v, err := b.it.Eval(g.ts, "<expr>", expr)
	if err != nil {
		return NullHandle, b.translate(g.ts, ErrGuestRuntime, "eval", expr)
	}
	return g.newRef(v), nil
}

func (b *Bridge) flushStdio() {
	for _, s := range []*lineSink{b.stdout, b.stderr} {
		if s == nil {
			continue
		}
		if err := s.Flush(); err != nil {
			b.log.Warn("flush of guest output failed", zap.String("stream", s.name), zap.Error(err))
		}
	}
}
