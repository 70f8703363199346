package embedpy

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"testing/fstest"
)

var scripts = fstest.MapFS{
	"scripts/pkg/__init__.star":      {Data: []byte(`name = "pkg"`)},
	"scripts/pkg/util.star":          {Data: []byte("def double(x):\n    return 2 * x\n")},
	"scripts/pkg/sub/deep/leaf.star": {Data: []byte(`load("pkg.util", "double")` + "\nvalue = double(21)\n")},
	"scripts/pkg/README.md":          {Data: []byte("not a module")},
	"scripts/pkg/legacy.py":          {Data: []byte(`kind = "py"`)},
}

func TestNewPackageFromFS(t *testing.T) {
	pkg, err := NewPackageFromFS("pkg", "scripts/pkg", scripts)
	if err != nil {
		t.Fatalf("NewPackageFromFS: %v", err)
	}
	var names []string
	for _, src := range pkg.sources("") {
		names = append(names, src.Name)
	}
	sort.Strings(names)
	want := []string{"pkg", "pkg.legacy", "pkg.sub.deep.leaf", "pkg.util"}
	if len(names) != len(want) {
		t.Fatalf("sources = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("sources = %v, want %v", names, want)
			break
		}
	}

	if _, err := NewPackageFromFS("nope", "scripts/nope", scripts); err == nil {
		t.Error("NewPackageFromFS of a missing directory succeeded")
	}
}

func TestPackageImport(t *testing.T) {
	pkg, err := NewPackageFromFS("pkg", "scripts/pkg", scripts)
	if err != nil {
		t.Fatal(err)
	}
	b, _, _ := newTestBridge(t, Config{Packages: []Package{*pkg}})
	main := mainHandle(t, b)
	defer b.DecRef(main)

	mustExec(t, b, `
leaf = import_module("pkg.sub.deep.leaf")
top = import_module("pkg")
via_parent = top.sub.deep.leaf.value
legacy = import_module("pkg.legacy").kind
`)
	if v, err := GetAttributeAs[int](b, main, "via_parent"); err != nil || v != 42 {
		t.Errorf("pkg.sub.deep.leaf.value = %d, %v", v, err)
	}
	if v, _ := GetAttributeAs[string](b, main, "legacy"); v != "py" {
		t.Errorf("pkg.legacy.kind = %q", v)
	}

	h, err := b.ImportModule("pkg.sub")
	if err != nil {
		t.Fatalf("namespace parent not importable: %v", err)
	}
	b.DecRef(h)
	if _, err := b.ImportModule("pkg.missing"); !errors.Is(err, ErrImport) {
		t.Errorf("ImportModule(pkg.missing) = %v", err)
	}
}

func TestAddModule(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{})
	b.AddModule(*NewModuleFromString("greet", "<greet>", `def hello(who):
    return "hello " + who
`))

	m, err := b.Import("greet")
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release()
	got, err := m.CallValue("hello", nil, "host")
	if err != nil || got != "hello host" {
		t.Errorf("greet.hello = %v, %v", got, err)
	}
}

func TestNewModuleFromPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf.star")
	if err := os.WriteFile(file, []byte("limit = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	mod, err := NewModuleFromPath("conf", file)
	if err != nil {
		t.Fatal(err)
	}
	if mod.Path != file || mod.Source != "limit = 3\n" {
		t.Errorf("module = %+v", mod)
	}
	if _, err := NewModuleFromPath("gone", filepath.Join(t.TempDir(), "gone.star")); err == nil {
		t.Error("NewModuleFromPath of a missing file succeeded")
	}

	b, _, _ := newTestBridge(t, Config{Modules: []Module{*mod}})
	conf, err := b.Import("conf")
	if err != nil {
		t.Fatal(err)
	}
	defer conf.Release()
	if v, err := conf.GetAttributeValue("limit", nil); err != nil || v != int64(3) {
		t.Errorf("conf.limit = %v, %v", v, err)
	}
}
