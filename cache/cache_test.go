package cache

import (
	"path/filepath"
	"testing"

	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

func compile(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	prog, err := compiler.ParseSource(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m, err := bytecode.Compile(prog)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return m
}

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHitAndMiss(t *testing.T) {
	c := openCache(t)
	src := []byte("x = 1 + 2\nprint(x)\n")

	got, err := c.Get(src)
	if err != nil || got != nil {
		t.Fatalf("Get on empty cache = %v, %v; want miss", got, err)
	}

	m := compile(t, string(src))
	if err := c.Put(src, "main.nag", m); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err = c.Get(src)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hit after Put")
	}
	if got.Disassemble() != m.Disassemble() {
		t.Errorf("cached module differs:\n%s\nwant:\n%s", got.Disassemble(), m.Disassemble())
	}

	// a one-byte change is a different key
	if got, _ := c.Get([]byte("x = 1 + 3\nprint(x)\n")); got != nil {
		t.Error("expected a miss for different source")
	}

	st, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 1 || st.Hits != 1 || st.Misses != 2 {
		t.Errorf("stats = %+v, want 1 entry, 1 hit, 2 misses", st)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	src := []byte("def f():\n    return 42\nf()\n")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(src, "f.nag", compile(t, string(src))); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got, err := c.Get(src); err != nil || got == nil {
		t.Fatalf("Get after reopen = %v, %v; want hit", got, err)
	}
}

func TestStaleAndCorruptEntries(t *testing.T) {
	tests := []struct {
		name   string
		update string
	}{
		{"old version", "UPDATE modules SET minor = minor + 1"},
		{"corrupt blob", "UPDATE modules SET code = x'00010203'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := openCache(t)
			src := []byte("print('hi')\n")
			if err := c.Put(src, "hi.nag", compile(t, string(src))); err != nil {
				t.Fatal(err)
			}
			if _, err := c.db.Exec(tt.update); err != nil {
				t.Fatal(err)
			}
			got, err := c.Get(src)
			if err != nil || got != nil {
				t.Fatalf("Get = %v, %v; want miss", got, err)
			}
			st, _ := c.Stats()
			if st.Entries != 0 {
				t.Errorf("bad entry kept: %d entries", st.Entries)
			}
		})
	}
}

func TestListAndClear(t *testing.T) {
	c := openCache(t)
	for _, src := range []string{"1\n", "2\n"} {
		if err := c.Put([]byte(src), "m"+src[:1]+".nag", compile(t, src)); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("List = %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Size == 0 || len(e.Key) != 64 {
			t.Errorf("bad entry %+v", e)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if entries, _ := c.List(); len(entries) != 0 {
		t.Errorf("List after Clear = %v", entries)
	}
}
