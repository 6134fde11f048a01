package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/cache"
	"github.com/nagini-lang/nagini/pkg/bytecode"
	"github.com/nagini-lang/nagini/vm"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "nagini.toml"), "[project]\nname = \"demo\"\n")
	writeFile(t, filepath.Join(dir, "src", "main.nag"), "print('main')\n")
	writeFile(t, filepath.Join(dir, "src", "lib", "util.nag"), "def twice(x):\n    return x * 2\n")
	writeFile(t, filepath.Join(dir, "src", "bad.nag"), "def (\n")
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "not a module")

	p, err := loadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !p.found {
		t.Fatal("manifest not found")
	}

	units, err := buildUnits(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 3 {
		t.Fatalf("got %d build units, want 3: %v", len(units), units)
	}

	c, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	out := filepath.Join(dir, "out")
	failed, err := build(context.Background(), c, units, out, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || filepath.Base(failed[0].unit.source) != "bad.nag" {
		t.Fatalf("failures = %+v, want bad.nag", failed)
	}
	if failed[0].diags[0].Phase != nagini.PhaseParse {
		t.Errorf("bad.nag diagnostic = %+v", failed[0].diags[0])
	}

	data, err := os.ReadFile(filepath.Join(out, "lib", "util.nac"))
	if err != nil {
		t.Fatalf("util.nac not written: %v", err)
	}
	m, err := bytecode.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "main.nac")); err != nil {
		t.Errorf("main.nac not written: %v", err)
	}

	// a second build is served from the cache
	if _, err := build(context.Background(), c, units, out, 1); err != nil {
		t.Fatal(err)
	}
	st, _ := c.Stats()
	if st.Hits != 2 {
		t.Errorf("cache hits = %d, want 2", st.Hits)
	}
}

func TestBuildExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.nag")
	writeFile(t, src, "print('hello')\n")

	p, err := loadProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	units, err := buildUnits(p, []string{src})
	if err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	if failed, err := build(context.Background(), nil, units, out, 0); err != nil || len(failed) != 0 {
		t.Fatalf("build = %v, %v", failed, err)
	}

	// the compiled module runs like the source
	m, err := nagini.LoadFile(filepath.Join(out, "hello.nac"), nil)
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	if _, err := vm.New(vm.WithStdout(&stdout)).Run(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "hello\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestWriteAST(t *testing.T) {
	prog, diags := nagini.CompileToAST("x = 1\n")
	if diags != nil {
		t.Fatal(diags)
	}
	var buf bytes.Buffer
	if err := writeAST(&buf, prog, "yaml"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Assignment") {
		t.Errorf("yaml dump lacks the assignment:\n%s", buf.String())
	}
	buf.Reset()
	if err := writeAST(&buf, prog, "cbor"); err != nil || buf.Len() == 0 {
		t.Errorf("cbor dump: %v (%d bytes)", err, buf.Len())
	}
	if err := writeAST(&buf, prog, "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestReportErrorExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"diagnostics", nagini.Diagnostics{{Phase: nagini.PhaseParse, Severity: nagini.SeverityError, Line: 1, Column: 1, Message: "bad"}}, 1},
		{"runtime", &vm.RuntimeError{Type: "ValueError", Message: "boom"}, 1},
		{"fatal", &vm.FatalError{Message: "invalid module", Err: bytecode.ErrCorrupt}, 2},
		{"other", errors.New("disk"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reportError("x.nag", tt.err); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	diags := nagini.Diagnostics{{Phase: nagini.PhaseLex, Severity: nagini.SeverityError, Line: 2, Column: 5, Message: "unterminated string"}}
	printDiagnostics(&buf, false, "a.nag", diags)
	if got, want := buf.String(), "a.nag:2:5: lex error: unterminated string\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	buf.Reset()
	printDiagnostics(&buf, true, "a.nag", diags)
	if !strings.HasPrefix(buf.String(), ansiBold+ansiRed) {
		t.Errorf("colored output = %q", buf.String())
	}
}
