package nagini

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nagini-lang/nagini/cache"
	"github.com/nagini-lang/nagini/manifest"
	"github.com/nagini-lang/nagini/pkg/bytecode"
	"github.com/nagini-lang/nagini/vm"
)

// Root is a set of directories whose modules are importable under Prefix.
// An empty prefix makes the modules importable by their path alone.
type Root struct {
	Prefix string
	Dirs   []string
}

// DirImporter resolves dotted module names to files: with the root prefix
// removed, "a.b" names a/b.nag or, failing that, a/b.nac in one of the
// root's directories. Roots are searched in order.
type DirImporter struct {
	Roots []Root
	Cache *cache.Cache
}

// NewDirImporter creates an importer over roots, compiling through c when
// it is not nil.
func NewDirImporter(c *cache.Cache, roots ...Root) *DirImporter {
	return &DirImporter{Roots: roots, Cache: c}
}

// ProjectImporter returns the importer for a project: its own source
// directories first, then every resolved dependency under its prefix.
func ProjectImporter(m *manifest.Manifest, deps []manifest.ResolvedDep, c *cache.Cache) *DirImporter {
	imp := NewDirImporter(c, Root{Dirs: m.SourceDirPaths()})
	for _, d := range deps {
		imp.Roots = append(imp.Roots, Root{Prefix: d.Prefix, Dirs: d.SourceDirs()})
	}
	return imp
}

// Import implements vm.Importer.
func (d *DirImporter) Import(name string) (*bytecode.Module, error) {
	for _, root := range d.Roots {
		rel, ok := root.relative(name)
		if !ok {
			continue
		}
		for _, dir := range root.Dirs {
			for _, ext := range []string{SourceExt, BytecodeExt} {
				path := filepath.Join(dir, rel+ext)
				if _, err := os.Stat(path); err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						continue
					}
					return nil, err
				}
				log.Debugf("import %s -> %s", name, path)
				m, err := LoadFile(path, d.Cache)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", path, err)
				}
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", name, vm.ErrModuleNotFound)
}

// relative strips the root prefix from a module name and returns the
// remaining path, or false when the name lies outside the root.
func (r Root) relative(name string) (string, bool) {
	if r.Prefix != "" {
		if !strings.HasPrefix(name, r.Prefix+".") {
			return "", false
		}
		name = name[len(r.Prefix)+1:]
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" {
			return "", false
		}
	}
	return filepath.Join(strings.Split(name, ".")...), true
}
