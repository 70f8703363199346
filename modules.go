package embedpy

import (
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/richinsley/embedpy/internal/interp"
)

// Module is guest source that is importable by name without touching
// sys.path. Modules are usually embedded in the host binary.
type Module struct {
	// Name is the import name relative to its package, e.g. "utils".
	Name string

	// Path is used for __file__ and in tracebacks.
	Path string

	// Source is the guest source text.
	Source string
}

// Package is a tree of modules importable under a common dotted prefix. A
// module named "__init__" provides the members of the package itself.
type Package struct {
	Name     string
	Path     string
	Modules  []Module
	Packages []Package
}

// NewModuleFromPath reads a module from a file.
func NewModuleFromPath(name, file string) (*Module, error) {
	src, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return &Module{Name: name, Path: file, Source: string(src)}, nil
}

// NewModuleFromString wraps source text; file is the virtual path shown in
// tracebacks.
func NewModuleFromString(name, file, source string) *Module {
	return &Module{Name: name, Path: file, Source: source}
}

// NewPackage groups existing modules.
func NewPackage(name, dir string, modules []Module) *Package {
	return &Package{Name: name, Path: dir, Modules: modules}
}

var moduleExts = []string{".star", ".py"}

func moduleName(file string) (string, bool) {
	for _, ext := range moduleExts {
		if strings.HasSuffix(file, ext) {
			return strings.TrimSuffix(file, ext), true
		}
	}
	return "", false
}

// NewPackageFromFS loads the package rooted at root in fsys, typically an
// embed.FS. Files ending in .star or .py become modules and directories
// become subpackages; anything else is skipped.
//
//	//go:embed scripts/mypkg
//	var scripts embed.FS
//
//	pkg, err := embedpy.NewPackageFromFS("mypkg", "scripts/mypkg", scripts)
func NewPackageFromFS(name, root string, fsys fs.FS) (*Package, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	pkg := &Package{Name: name, Path: root}
	for _, e := range entries {
		file := path.Join(root, e.Name())
		if e.IsDir() {
			sub, err := NewPackageFromFS(e.Name(), file, fsys)
			if err != nil {
				return nil, err
			}
			pkg.Packages = append(pkg.Packages, *sub)
			continue
		}
		mod, ok := moduleName(e.Name())
		if !ok {
			continue
		}
		src, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		pkg.Modules = append(pkg.Modules, *NewModuleFromString(mod, file, string(src)))
	}
	return pkg, nil
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (m Module) source(prefix string) interp.Source {
	return interp.Source{Name: qualify(prefix, m.Name), Path: m.Path, Code: m.Source}
}

func (p Package) sources(prefix string) []interp.Source {
	name := qualify(prefix, p.Name)
	var out []interp.Source
	for _, m := range p.Modules {
		if m.Name == "__init__" {
			out = append(out, interp.Source{Name: name, Path: m.Path, Code: m.Source})
			continue
		}
		out = append(out, m.source(name))
	}
	for _, sub := range p.Packages {
		out = append(out, sub.sources(name)...)
	}
	return out
}

// AddModule makes m importable. It takes effect for imports that have not
// happened yet.
func (b *Bridge) AddModule(m Module) {
	interp.Acquire()
	defer interp.Release()
	b.it.AddSource(m.source(""))
}

// AddPackage makes every module of p importable.
func (b *Bridge) AddPackage(p Package) {
	interp.Acquire()
	defer interp.Release()
	for _, src := range p.sources("") {
		b.it.AddSource(src)
	}
}
