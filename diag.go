package embedpy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DiagFlags is the process-wide bitmask selecting which internal traces are
// logged. It changes output volume only, never behavior.
type DiagFlags uint32

const (
	DiagOff  DiagFlags = 0x00
	DiagType DiagFlags = 0x01 // value marshalling
	DiagMeth DiagFlags = 0x02 // attribute and call dispatch
	DiagExec DiagFlags = 0x04 // script execution and imports
	DiagMem  DiagFlags = 0x08 // reference counts
	DiagHost DiagFlags = 0x10 // host objects called from the guest
	DiagErr  DiagFlags = 0x20 // exception translation
	DiagAll  DiagFlags = 0xff
)

var diagNames = []struct {
	flag DiagFlags
	name string
}{
	{DiagType, "type"},
	{DiagMeth, "meth"},
	{DiagExec, "exec"},
	{DiagMem, "mem"},
	{DiagHost, "host"},
	{DiagErr, "err"},
}

var diagFlags atomic.Uint32

// GetDiagFlags returns the current diagnostic flags.
func GetDiagFlags() DiagFlags { return DiagFlags(diagFlags.Load()) }

// SetDiagFlags replaces the diagnostic flags.
func SetDiagFlags(f DiagFlags) { diagFlags.Store(uint32(f)) }

func (f DiagFlags) String() string {
	if f == DiagOff {
		return "off"
	}
	if f == DiagAll {
		return "all"
	}
	var parts []string
	for _, d := range diagNames {
		if f&d.flag != 0 {
			parts = append(parts, d.name)
		}
	}
	if rest := f &^ (DiagType | DiagMeth | DiagExec | DiagMem | DiagHost | DiagErr); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseDiagFlags accepts a number ("0x24", "36") or a list of names
// separated by commas or pipes ("exec,err", "all").
func ParseDiagFlags(s string) (DiagFlags, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DiagOff, nil
	}
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return DiagFlags(n), nil
	}
	var f DiagFlags
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "all":
			f |= DiagAll
			continue
		case "off", "none":
			continue
		}
		found := false
		for _, d := range diagNames {
			if d.name == part {
				f |= d.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown diag flag %q", part)
		}
	}
	return f, nil
}

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It is a no-op logger unless SetLogger
// was called.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger replaces the package logger used by bridges created without
// Config.Logger. Call it before creating bridges.
func SetLogger(l *zap.Logger) {
	logger = l
}

// diag logs msg at debug level when any of the flags in f are enabled.
func (b *Bridge) diag(f DiagFlags, msg string, fields ...zap.Field) {
	if GetDiagFlags()&f == 0 {
		return
	}
	b.log.Debug(msg, append(fields, zap.Stringer("diag", f))...)
}
