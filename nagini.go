// Package nagini is the embedding API of the Nagini toolchain. It turns
// source text into syntax trees or bytecode, normalizing every front-end
// failure into Diagnostics, and runs modules on a fresh VM.
//
//	m, diags := nagini.CompileToBytecode(src)
//	if diags.HasErrors() {
//		...
//	}
//	result, err := vm.New().Run(ctx, m)
package nagini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/nagini-lang/nagini/cache"
	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/pkg/bytecode"
	"github.com/nagini-lang/nagini/vm"
)

var log = commonlog.GetLogger("nagini")

const (
	// SourceExt is the extension of Nagini source files.
	SourceExt = ".nag"
	// BytecodeExt is the extension of compiled modules.
	BytecodeExt = ".nac"
)

// CompileToAST lexes and parses source. On failure the program is nil and
// the diagnostics hold every syntax error, or the single lexical error.
func CompileToAST(source string) (*compiler.Program, Diagnostics) {
	prog, err := compiler.ParseSource(source)
	if err != nil {
		return nil, DiagnosticsFromError(err)
	}
	return prog, nil
}

// CompileToBytecode compiles source to a validated module.
func CompileToBytecode(source string) (*bytecode.Module, Diagnostics) {
	prog, diags := CompileToAST(source)
	if diags != nil {
		return nil, diags
	}
	m, err := bytecode.Compile(prog)
	if err != nil {
		return nil, DiagnosticsFromError(err)
	}
	if err := m.Validate(); err != nil {
		return nil, Diagnostics{{Phase: PhaseCompile, Severity: SeverityError, Message: err.Error()}}
	}
	return m, nil
}

// CompileCached compiles source, consulting c first and storing the result
// on a miss. A nil cache compiles directly. Cache failures are logged and
// never fail the compilation.
func CompileCached(c *cache.Cache, name string, source []byte) (*bytecode.Module, Diagnostics) {
	if c != nil {
		m, err := c.Get(source)
		if err != nil {
			log.Warningf("cache lookup for %s: %s", name, err)
		} else if m != nil {
			log.Debugf("cache hit: %s", name)
			return m, nil
		}
	}

	m, diags := CompileToBytecode(string(source))
	if diags != nil {
		return nil, diags
	}
	if c != nil {
		if err := c.Put(source, name, m); err != nil {
			log.Warningf("cache store for %s: %s", name, err)
		}
	}
	return m, nil
}

// LoadFile reads a module from path. A .nac file is decoded and validated;
// anything else is compiled as source through the optional cache. Errors
// in source files are returned as Diagnostics.
func LoadFile(path string, c *cache.Cache) (*bytecode.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(path) == BytecodeExt {
		m := &bytecode.Module{}
		if err := m.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	}

	m, diags := CompileCached(c, path, data)
	if diags != nil {
		return nil, diags
	}
	return m, nil
}

// RunSource compiles source and runs it as the main module of a new VM.
func RunSource(ctx context.Context, source string, opts ...vm.Option) (vm.Value, error) {
	m, diags := CompileToBytecode(source)
	if diags != nil {
		return nil, diags
	}
	return vm.New(opts...).Run(ctx, m)
}
