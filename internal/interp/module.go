package interp

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// Module is a mutable guest module: a named attribute namespace.
type Module struct {
	name    string
	file    string
	members starlark.StringDict
}

var (
	_ starlark.HasAttrs    = (*Module)(nil)
	_ starlark.HasSetField = (*Module)(nil)
)

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{name: name, members: make(starlark.StringDict)}
}

func newModuleWith(name string, members starlark.StringDict) *Module {
	m := NewModule(name)
	for k, v := range members {
		m.members[k] = v
	}
	return m
}

func (m *Module) Name() string                 { return m.name }
func (m *Module) File() string                 { return m.file }
func (m *Module) Members() starlark.StringDict { return m.members }

// Set binds name in the module namespace.
func (m *Module) Set(name string, v starlark.Value) { m.members[name] = v }

func (m *Module) String() string {
	if m.file != "" {
		return fmt.Sprintf("<module '%s' from '%s'>", m.name, m.file)
	}
	return fmt.Sprintf("<module '%s'>", m.name)
}

func (m *Module) Type() string         { return "module" }
func (m *Module) Freeze()              {}
func (m *Module) Truth() starlark.Bool { return true }
func (m *Module) Hash() (uint32, error) {
	return starlark.String(m.name).Hash()
}

func (m *Module) Attr(name string) (starlark.Value, error) {
	switch name {
	case "__name__":
		return starlark.String(m.name), nil
	case "__file__":
		if m.file == "" {
			return starlark.None, nil
		}
		return starlark.String(m.file), nil
	}
	if v, ok := m.members[name]; ok {
		return v, nil
	}
	return nil, starlark.NoSuchAttrError(fmt.Sprintf("module '%s' has no attribute '%s'", m.name, name))
}

func (m *Module) AttrNames() []string {
	names := make([]string, 0, len(m.members))
	for k := range m.members {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m *Module) SetField(name string, v starlark.Value) error {
	m.members[name] = v
	return nil
}
