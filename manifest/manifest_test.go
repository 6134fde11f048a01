package manifest

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nagini-lang/nagini/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"
entry = "app.nag"
prefix = "testapp"

[source]
dirs = ["src", "lib"]

[build]
output = "out"
cache = "tmp/cache.db"
jobs = 3

[vm]
max-frames = 200
check-stack = true

[log]
verbosity = 4
file = "nag.log"

[dependencies]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Project.Prefix != "testapp" {
		t.Errorf("project prefix = %q, want testapp", m.Project.Prefix)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Project.Entry != "app.nag" {
		t.Errorf("entry = %q, want app.nag", m.Project.Entry)
	}
	if m.Build.Jobs != 3 {
		t.Errorf("build jobs = %d, want 3", m.Build.Jobs)
	}
	if m.OutputDir() != filepath.Join(m.Dir, "out") {
		t.Errorf("output dir = %q", m.OutputDir())
	}
	if m.CachePath() != filepath.Join(m.Dir, "tmp", "cache.db") {
		t.Errorf("cache path = %q", m.CachePath())
	}
	if m.VM.MaxFrames != 200 || !m.VM.CheckStack {
		t.Errorf("vm = %+v, want max-frames 200 and check-stack", m.VM)
	}
	if m.Log.Verbosity != 4 || m.LogFile() != filepath.Join(m.Dir, "nag.log") {
		t.Errorf("log = %+v", m.Log)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Project.Entry != "main.nag" {
		t.Errorf("default entry = %q, want main.nag", m.Project.Entry)
	}
	if m.Build.Output != "build" {
		t.Errorf("default output = %q, want build", m.Build.Output)
	}
	if m.Build.Jobs != runtime.NumCPU() {
		t.Errorf("default jobs = %d, want %d", m.Build.Jobs, runtime.NumCPU())
	}
	if m.VM.MaxFrames != vm.DefaultMaxFrames {
		t.Errorf("default max-frames = %d, want %d", m.VM.MaxFrames, vm.DefaultMaxFrames)
	}
	if m.CachePath() != filepath.Join(m.Dir, ".nagini", "cache.db") {
		t.Errorf("default cache path = %q", m.CachePath())
	}
	if m.LogFile() != "" {
		t.Errorf("default log file = %q, want stderr", m.LogFile())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[project\nname = 1", "parse error"},
		{"unknown key", "[project]\nnmae = \"typo\"", "unknown key"},
		{"negative jobs", "[build]\njobs = -1", "build.jobs"},
		{"verbosity", "[log]\nverbosity = 9", "log.verbosity"},
		{"prefix", "[project]\nprefix = \"not valid\"", "project.prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tt.content)
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNoCache(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[build]\nno-cache = true\n")
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.CachePath() != "" {
		t.Errorf("cache path = %q, want disabled", m.CachePath())
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("Dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no nagini.toml exists")
	}
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	m, err := Default(dir)
	if err != nil {
		t.Fatal(err)
	}
	paths := m.SourceDirPaths()
	if len(paths) != 1 || paths[0] != m.Dir {
		t.Errorf("source dirs = %v, want [%s]", paths, m.Dir)
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "lib", "/abs"},
		},
	}

	paths := m.SourceDirPaths()
	want := []string{"/app/src", "/app/lib", "/abs"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d paths, got %d", len(want), len(paths))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestEntryPath(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[source]\ndirs = [\"src\", \"app\"]\n")
	if err := os.MkdirAll(filepath.Join(dir, "app"), 0755); err != nil {
		t.Fatal(err)
	}
	entry := filepath.Join(dir, "app", "main.nag")
	if err := os.WriteFile(entry, []byte("print(1)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := filepath.EvalSymlinks(m.EntryPath())
	want, _ := filepath.EvalSymlinks(entry)
	if got != want {
		t.Errorf("EntryPath = %q, want %q", got, want)
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock.toml")

	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "widgets", Git: "https://example.com/widgets.git", Commit: "abc123", Tag: "v0.5.0"},
			{Name: "helper", Path: "../helper"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(loaded.Deps))
	}
	// sorted by name on write
	if loaded.Deps[0].Name != "helper" || loaded.Deps[1].Name != "widgets" {
		t.Errorf("deps = %v, want helper then widgets", loaded.Deps)
	}
	if loaded.Deps[1].Commit != "abc123" {
		t.Errorf("dep[1].Commit = %q, want abc123", loaded.Deps[1].Commit)
	}

	found := loaded.FindLockedDep("helper")
	if found == nil || found.Path != "../helper" {
		t.Errorf("FindLockedDep(helper) = %v, want path ../helper", found)
	}
	if notFound := loaded.FindLockedDep("nonexistent"); notFound != nil {
		t.Errorf("FindLockedDep(nonexistent) = %v, want nil", notFound)
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock(filepath.Join(t.TempDir(), "lock.toml"))
	if err != nil {
		t.Fatalf("ReadLock of a missing file: %v", err)
	}
	if lf == nil || len(lf.Deps) != 0 {
		t.Errorf("ReadLock of a missing file = %v, want an empty lock", lf)
	}
}
