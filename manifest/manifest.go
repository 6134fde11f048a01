// Package manifest handles nagini.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/nagini-lang/nagini/vm"
)

// FileName is the name of the project manifest.
const FileName = "nagini.toml"

// Manifest represents a nagini.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Build        Build                 `toml:"build"`
	VM           VMConfig              `toml:"vm"`
	Log          Log                   `toml:"log"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the nagini.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
	// Prefix is the module prefix other projects import this one under.
	Prefix string `toml:"prefix"`
}

// Source configures source file locations.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// Build configures nag build and the compiled-module cache.
type Build struct {
	Output  string `toml:"output"`
	Cache   string `toml:"cache"`
	NoCache bool   `toml:"no-cache"`
	Jobs    int    `toml:"jobs"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	MaxFrames  int  `toml:"max-frames"`
	CheckStack bool `toml:"check-stack"`
	Trace      bool `toml:"trace"`
}

// Log configures logging. Verbosity follows commonlog: 0 errors only,
// 1 warnings, 2 notices, 3 info, 4 debug.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Dependency represents a single project dependency.
type Dependency struct {
	Git    string `toml:"git"`
	Tag    string `toml:"tag"`
	Path   string `toml:"path"`
	Prefix string `toml:"prefix"`
}

// Default returns the manifest used when a project has no nagini.toml.
func Default(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m := &Manifest{Dir: abs}
	m.Source.Dirs = []string{"."}
	if err := m.applyDefaults(); err != nil {
		return nil, err
	}
	return m, nil
}

// Load parses a nagini.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := m.applyDefaults(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() error {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Project.Entry == "" {
		m.Project.Entry = "main.nag"
	}
	if m.Build.Output == "" {
		m.Build.Output = "build"
	}
	if m.Build.Cache == "" {
		m.Build.Cache = filepath.Join(".nagini", "cache.db")
	}
	switch {
	case m.Build.Jobs < 0:
		return fmt.Errorf("build.jobs must not be negative, got %d", m.Build.Jobs)
	case m.Build.Jobs == 0:
		m.Build.Jobs = runtime.NumCPU()
	}
	switch {
	case m.VM.MaxFrames < 0:
		return fmt.Errorf("vm.max-frames must not be negative, got %d", m.VM.MaxFrames)
	case m.VM.MaxFrames == 0:
		m.VM.MaxFrames = vm.DefaultMaxFrames
	}
	if m.Log.Verbosity < 0 || m.Log.Verbosity > 4 {
		return fmt.Errorf("log.verbosity must be between 0 and 4, got %d", m.Log.Verbosity)
	}
	if m.Project.Prefix != "" && !ValidPrefix(m.Project.Prefix) {
		return fmt.Errorf("project.prefix %q is not a dotted module name", m.Project.Prefix)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a nagini.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// EntryPath returns the entry module, resolved against the first source
// directory that contains it.
func (m *Manifest) EntryPath() string {
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	for _, d := range m.SourceDirPaths() {
		p := filepath.Join(d, m.Project.Entry)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return m.abs(m.Project.Entry)
}

// OutputDir returns the absolute build output directory.
func (m *Manifest) OutputDir() string {
	return m.abs(m.Build.Output)
}

// CachePath returns the path of the compiled-module cache, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m.Build.NoCache {
		return ""
	}
	return m.abs(m.Build.Cache)
}

// LogFile returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.abs(m.Log.File)
}

// DepsDir returns the path to the .nagini/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".nagini", "deps")
}

// LockFilePath returns the path to .nagini/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".nagini", "lock.toml")
}
