package embedpy

import (
	_ "embed"
	"sort"

	"github.com/richinsley/embedpy/internal/interp"
	"go.starlark.net/starlark"
)

// DefaultCompanion is the guest module imported by Start.
const DefaultCompanion = "embedpy"

// APIVersion is the companion protocol version. A companion module whose
// api_version has a different major version is rejected at Start.
var APIVersion = Version{Major: 1, Minor: 0, Patch: -1}

//go:embed companion/embedpy.star
var companionPrelude string

// companionModule builds the companion module: native members bound to b,
// followed by the embedded prelude.
func (b *Bridge) companionModule(name string) interp.NativeModule {
	return interp.NativeModule{
		Name:    name,
		Prelude: companionPrelude,
		Members: func(it *interp.Interpreter) (starlark.StringDict, error) {
			values := starlark.NewDict(len(b.cfg.Values))
			keys := make([]string, 0, len(b.cfg.Values))
			for k := range b.cfg.Values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if err := values.SetKey(starlark.String(k), starlark.String(encodeText(b.cfg.Values[k]))); err != nil {
					return nil, err
				}
			}
			return starlark.StringDict{
				"Error":          interp.ExceptionClass,
				"HostError":      interp.NewExceptionType("HostError", interp.RuntimeError),
				"host":           starlark.NewBuiltin("host", b.hostBuiltin),
				"host_names":     starlark.NewBuiltin("host_names", b.hostNamesBuiltin),
				"modules":        starlark.NewBuiltin("modules", modulesBuiltin(it)),
				"values":         values,
				"bridge_version": starlark.String(BridgeVersion.String()),
			}, nil
		},
	}
}

func (b *Bridge) hostBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	v, ok := b.hosts[name]
	if !ok {
		return nil, interp.NewException(interp.KeyError, "no host object named '%s'", name)
	}
	return b.toGuest(v, nil)
}

func (b *Bridge) hostNamesBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	names := b.hostNames()
	list := make([]starlark.Value, len(names))
	for i, n := range names {
		list[i] = starlark.String(n)
	}
	return starlark.NewList(list), nil
}

func modulesBuiltin(it *interp.Interpreter) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		names := it.Modules()
		list := make([]starlark.Value, len(names))
		for i, n := range names {
			list[i] = starlark.String(n)
		}
		return starlark.NewList(list), nil
	}
}
