package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nagini.manifest")

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Prefix    string    // module prefix the dependency is imported under
	Manifest  *Manifest // the dependency's own manifest (may be nil)

	dep Dependency
}

// SourceDirs returns the directories holding the dependency's modules.
func (d ResolvedDep) SourceDirs() []string {
	if d.Manifest != nil {
		return d.Manifest.SourceDirPaths()
	}
	return []string{d.LocalPath}
}

// Resolver manages dependency resolution.
type Resolver struct {
	manifest *Manifest
	lock     *LockFile
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	if len(r.manifest.Dependencies) == 0 {
		return nil, nil
	}

	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	resolved := make(map[string]*ResolvedDep)
	prefixes := make(map[string]string)
	order, err := r.resolveAll(r.manifest, resolved, prefixes)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(resolved); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

// resolveAll resolves the dependencies of owner recursively, in name order.
func (r *Resolver) resolveAll(owner *Manifest, resolved map[string]*ResolvedDep, prefixes map[string]string) ([]ResolvedDep, error) {
	names := make([]string, 0, len(owner.Dependencies))
	for name := range owner.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []ResolvedDep
	for _, name := range names {
		if _, ok := resolved[name]; ok {
			continue // already resolved
		}

		rd, err := r.resolveOne(owner, name, owner.Dependencies[name])
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		if other, taken := prefixes[rd.Prefix]; taken {
			return nil, fmt.Errorf("dependencies %q and %q both use module prefix %q", other, name, rd.Prefix)
		}
		prefixes[rd.Prefix] = name
		resolved[name] = rd

		if rd.Manifest != nil && len(rd.Manifest.Dependencies) > 0 {
			transitive, err := r.resolveAll(rd.Manifest, resolved, prefixes)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *rd)
	}
	return order, nil
}

// resolvePrefix determines the module prefix of a dependency:
//  1. Consumer override (dep.Prefix from TOML)
//  2. Producer manifest (depManifest.Project.Prefix)
//  3. ToModuleName(name)
func resolvePrefix(name string, dep Dependency, depManifest *Manifest) (string, error) {
	var prefix string
	switch {
	case dep.Prefix != "":
		prefix = dep.Prefix
	case depManifest != nil && depManifest.Project.Prefix != "":
		prefix = depManifest.Project.Prefix
	default:
		prefix = ToModuleName(name)
	}

	if !ValidPrefix(prefix) {
		return "", fmt.Errorf("dependency %q resolves to invalid module prefix %q; add prefix = \"...\" in [dependencies]", name, prefix)
	}
	if IsReservedPrefix(prefix) {
		return "", fmt.Errorf("dependency %q resolves to reserved module prefix %q; add prefix = \"...\" in [dependencies]", name, prefix)
	}
	return prefix, nil
}

// resolveOne resolves a single dependency declared by owner.
func (r *Resolver) resolveOne(owner *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	var localPath string
	switch {
	case dep.Path != "":
		p := owner.abs(dep.Path)
		p, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, p, err)
		}
		localPath = p

	case dep.Git != "":
		depsDir := r.manifest.DepsDir()
		if err := os.MkdirAll(depsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating deps dir: %w", err)
		}
		localPath = filepath.Join(depsDir, name)
		if err := r.fetch(name, dep, localPath); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("dependency %q has no git or path specified", name)
	}

	// A dependency without a manifest is a plain directory of modules.
	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		m, err := Load(localPath)
		if err != nil {
			return nil, err
		}
		depManifest = m
	}

	prefix, err := resolvePrefix(name, dep, depManifest)
	if err != nil {
		return nil, err
	}
	log.Debugf("dependency %s -> %s (prefix %s)", name, localPath, prefix)
	return &ResolvedDep{
		Name:      name,
		LocalPath: localPath,
		Prefix:    prefix,
		Manifest:  depManifest,
		dep:       dep,
	}, nil
}

// fetch clones or updates a git dependency and checks out its tag.
func (r *Resolver) fetch(name string, dep Dependency, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Infof("cloning %s from %s", name, dep.Git)
		if err := gitClone(dep.Git, dir); err != nil {
			return err
		}
	} else {
		clean, err := gitIsClean(dir)
		if err != nil {
			return err
		}
		if !clean {
			return fmt.Errorf("dependency %q has local changes in %s", name, dir)
		}
		locked := r.lock.FindLockedDep(name)
		if locked == nil || locked.Tag != dep.Tag || dep.Tag == "" {
			log.Infof("fetching %s", name)
			if err := gitFetch(dir); err != nil {
				return err
			}
		}
	}
	if dep.Tag != "" {
		return gitCheckout(dir, dep.Tag)
	}
	return nil
}

// writeLock writes the resolved dependencies to the lock file.
func (r *Resolver) writeLock(resolved map[string]*ResolvedDep) error {
	lf := &LockFile{}
	for _, rd := range resolved {
		ld := LockedDep{Name: rd.Name}
		switch {
		case rd.dep.Git != "":
			ld.Git = rd.dep.Git
			ld.Tag = rd.dep.Tag
			if commit, err := gitCurrentCommit(rd.LocalPath); err == nil {
				ld.Commit = commit
			}
		case rd.dep.Path != "":
			ld.Path = rd.LocalPath
		}
		lf.Deps = append(lf.Deps, ld)
	}

	if err := os.MkdirAll(filepath.Dir(r.manifest.LockFilePath()), 0755); err != nil {
		return err
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
