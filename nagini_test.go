package nagini

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nagini-lang/nagini/cache"
	"github.com/nagini-lang/nagini/manifest"
	"github.com/nagini-lang/nagini/vm"
)

func TestCompileToAST(t *testing.T) {
	prog, diags := CompileToAST("x = 1\nif x:\n    print(x)\n")
	if diags != nil {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(prog.Body) != 2 {
		t.Errorf("got %d top-level statements, want 2", len(prog.Body))
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name   string
		source string
		phase  Phase
		count  int
		line   int
	}{
		{"lex", "x = 'unterminated\n", PhaseLex, 1, 1},
		{"indentation", "if x:\n        a\n    b\n", PhaseLex, 1, 3},
		{"parse recovers", "x = = 1\ny = 2\nif :\n    pass\n", PhaseParse, 2, 1},
		{"compile", "x = 1\nbreak\n", PhaseCompile, 1, 2},
		{"repeated star", "def A(*A, *B): 0\n", PhaseParse, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, diags := CompileToBytecode(tt.source)
			if m != nil {
				t.Fatal("expected no module")
			}
			if len(diags) < tt.count {
				t.Fatalf("got %d diagnostics, want at least %d: %v", len(diags), tt.count, diags)
			}
			d := diags[0]
			if d.Phase != tt.phase || d.Severity != SeverityError {
				t.Errorf("diagnostic = %+v, want a %s error", d, tt.phase)
			}
			if d.Line != tt.line {
				t.Errorf("line = %d, want %d", d.Line, tt.line)
			}
			if !diags.HasErrors() {
				t.Error("HasErrors = false")
			}
		})
	}
}

func TestDiagnosticFormat(t *testing.T) {
	d := Diagnostic{Phase: PhaseParse, Severity: SeverityError, Line: 3, Column: 7, Message: "expected ':'"}
	if got, want := d.Format("app.nag"), "app.nag:3:7: parse error: expected ':'"; got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
	if got, want := d.String(), "3:7: parse error: expected ':'"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
	other := DiagnosticsFromError(errors.New("disk on fire"))
	if len(other) != 1 || other[0].Phase != PhaseLoad || other[0].Line != 0 {
		t.Errorf("plain error = %+v", other)
	}
}

func TestRunSource(t *testing.T) {
	var out bytes.Buffer
	v, err := RunSource(context.Background(), "print('hi')\n6 * 7\n", vm.WithStdout(&out))
	if err != nil {
		t.Fatal(err)
	}
	if v != vm.Int(42) {
		t.Errorf("result = %v, want 42", v)
	}
	if out.String() != "hi\n" {
		t.Errorf("stdout = %q", out.String())
	}

	_, err = RunSource(context.Background(), "def (\n")
	var diags Diagnostics
	if !errors.As(err, &diags) {
		t.Errorf("got %v, want diagnostics", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDirImporter(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	lib := filepath.Join(dir, "lib")
	writeFile(t, filepath.Join(src, "util", "text.nag"), "def shout(s):\n    return s.upper() + '!'\n")
	writeFile(t, filepath.Join(lib, "colors.nag"), "RED = 'red'\n")
	writeFile(t, filepath.Join(src, "broken.nag"), "def (\n")

	// a precompiled module
	m, diags := CompileToBytecode("ANSWER = 42\n")
	if diags != nil {
		t.Fatal(diags)
	}
	code, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "answer.nac"), string(code))

	c, err := cache.Open(filepath.Join(dir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	imp := NewDirImporter(c, Root{Dirs: []string{src}}, Root{Prefix: "acme.ui", Dirs: []string{lib}})

	var out bytes.Buffer
	_, err = RunSource(context.Background(), `
from util.text import shout
import acme.ui.colors
from answer import ANSWER
print(shout('hey'), colors.RED, ANSWER)
`, vm.WithStdout(&out), vm.WithImporter(imp))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "HEY! red 42\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}

	if _, err := imp.Import("colors"); !errors.Is(err, vm.ErrModuleNotFound) {
		t.Errorf("unprefixed dependency module: got %v, want not found", err)
	}
	if _, err := imp.Import("util..text"); !errors.Is(err, vm.ErrModuleNotFound) {
		t.Errorf("empty segment: got %v, want not found", err)
	}
	_, err = imp.Import("broken")
	var bad Diagnostics
	if !errors.As(err, &bad) || !strings.Contains(err.Error(), "broken.nag") {
		t.Errorf("broken module: got %v, want diagnostics naming the file", err)
	}

	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 {
		t.Errorf("cache holds %d modules, want the 2 compiled sources", st.Entries)
	}
}

func TestProjectImporter(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	writeFile(t, filepath.Join(app, manifest.FileName), "[dependencies]\nwidgets = { path = \"../widgets\", prefix = \"w\" }\n")
	writeFile(t, filepath.Join(app, "src", "main.nag"), "import w.button\nbutton.label()\n")
	writeFile(t, filepath.Join(root, "widgets", "button.nag"), "def label():\n    return 'ok'\n")

	m, err := manifest.Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		t.Fatal(err)
	}
	imp := ProjectImporter(m, deps, nil)

	main, err := LoadFile(m.EntryPath(), nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := vm.New(vm.WithImporter(imp)).Run(context.Background(), main)
	if err != nil {
		t.Fatal(err)
	}
	if v != vm.Str("ok") {
		t.Errorf("result = %v, want 'ok'", v)
	}
}

func TestLoadFileRejectsCorruptBytecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nac")
	writeFile(t, path, "NOPE")
	if _, err := LoadFile(path, nil); err == nil {
		t.Fatal("expected an error for a corrupt module")
	}
}
