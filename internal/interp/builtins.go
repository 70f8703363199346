package interp

import (
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
)

// NativeModule is an importable module whose members come from Go. An
// optional Prelude is executed in its namespace after the members are bound.
type NativeModule struct {
	Name    string
	Members func(it *Interpreter) (starlark.StringDict, error)
	Prelude string
}

func stdlibModules() []NativeModule {
	copyOf := func(d starlark.StringDict) func(*Interpreter) (starlark.StringDict, error) {
		return func(*Interpreter) (starlark.StringDict, error) {
			out := make(starlark.StringDict, len(d))
			for k, v := range d {
				out[k] = v
			}
			return out, nil
		}
	}
	return []NativeModule{
		{Name: "math", Members: copyOf(math.Module.Members)},
		{Name: "json", Members: copyOf(json.Module.Members)},
		{Name: "time", Members: copyOf(time.Module.Members)},
		{Name: "imp", Members: func(*Interpreter) (starlark.StringDict, error) {
			return starlark.StringDict{
				"new_module": starlark.NewBuiltin("new_module", newModuleBuiltin),
			}, nil
		}},
	}
}

func newModuleBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	return NewModule(name), nil
}

// newBuiltins returns the names predeclared in every module on top of the
// core language universe.
func (it *Interpreter) newBuiltins() starlark.StringDict {
	imp := starlark.NewBuiltin("__import__", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		return it.importModule(thread, name)
	})
	d := starlark.StringDict{
		"__import__":    imp,
		"import_module": imp,
		"setattr":       starlark.NewBuiltin("setattr", setattrBuiltin),
		"callable":      starlark.NewBuiltin("callable", callableBuiltin),
		"isinstance":    starlark.NewBuiltin("isinstance", isinstanceBuiltin),
		"throw":         starlark.NewBuiltin("throw", throwBuiltin),
		"catch":         starlark.NewBuiltin("catch", catchBuiltin),
	}
	for _, t := range builtinExceptions {
		d[t.name] = t
	}
	return d
}

func setattrBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		obj, val starlark.Value
		name     string
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 3, &obj, &name, &val); err != nil {
		return nil, err
	}
	if err := setField(obj, name, val); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func callableBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	_, ok := x.(starlark.Callable)
	return starlark.Bool(ok), nil
}

func isinstanceBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		x   starlark.Value
		cls *ExceptionType
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &x, &cls); err != nil {
		return nil, err
	}
	exc, ok := x.(*Exception)
	return starlark.Bool(ok && exc.typ.IsSubclass(cls)), nil
}

// throw(exc) raises an exception instance, a class, or a message as
// RuntimeError.
func throwBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &msg); err != nil {
		return nil, err
	}
	switch x := x.(type) {
	case *Exception:
		return nil, x
	case *ExceptionType:
		if msg == "" {
			return nil, &Exception{typ: x}
		}
		return nil, NewException(x, "%s", msg)
	case starlark.String:
		return nil, NewException(RuntimeError, "%s", string(x))
	}
	return nil, NewException(TypeError, "exceptions must derive from BaseException, not %s", x.Type())
}

// catch(fn, *args, **kwargs) calls fn and returns (result, None) or
// (None, exception).
func catchBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, NewException(TypeError, "%s: missing callable", b.Name())
	}
	res, err := starlark.Call(thread, args[0], args[1:], kwargs)
	if err != nil {
		return starlark.Tuple{starlark.None, Classify(err)}, nil
	}
	return starlark.Tuple{res, starlark.None}, nil
}
