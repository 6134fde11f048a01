package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
)

// LockFile pins resolved dependencies so repeated builds see the same code.
type LockFile struct {
	Deps []LockedDep `toml:"dep"`
}

// LockedDep is one pinned dependency.
type LockedDep struct {
	Name   string `toml:"name"`
	Git    string `toml:"git,omitempty"`
	Tag    string `toml:"tag,omitempty"`
	Commit string `toml:"commit,omitempty"`
	Path   string `toml:"path,omitempty"`
}

// ReadLock reads a lock file. A missing file yields an empty lock.
func ReadLock(path string) (*LockFile, error) {
	var lf LockFile
	if _, err := toml.DecodeFile(path, &lf); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LockFile{}, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path with dependencies sorted by name.
func WriteLock(path string, lf *LockFile) error {
	sort.Slice(lf.Deps, func(i, j int) bool { return lf.Deps[i].Name < lf.Deps[j].Name })
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("# Generated by nag. Do not edit.\n\n"); err != nil {
		f.Close()
		return err
	}
	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// FindLockedDep returns the pinned entry for name, or nil.
func (lf *LockFile) FindLockedDep(name string) *LockedDep {
	for i := range lf.Deps {
		if lf.Deps[i].Name == name {
			return &lf.Deps[i]
		}
	}
	return nil
}
