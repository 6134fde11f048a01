package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/server"
	"github.com/nagini-lang/nagini/vm"
)

// handleDisasmCommand processes `nag disasm <file>`.
func handleDisasmCommand(p *project, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: nag disasm <file.nag|file.nac>")
		return 2
	}
	c := p.openCache()
	if c != nil {
		defer c.Close()
	}
	m, err := nagini.LoadFile(args[0], c)
	if err != nil {
		return reportError(args[0], err)
	}
	fmt.Print(m.DisassembleWithName(filepath.Base(args[0])))
	return 0
}

// handleASTCommand processes `nag ast [-format yaml|cbor] <file>`.
func handleASTCommand(args []string) int {
	fs := flag.NewFlagSet("ast", flag.ExitOnError)
	format := fs.String("format", "yaml", "Output format: yaml or cbor")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: nag ast [-format yaml|cbor] <file.nag>")
		return 2
	}

	path := fs.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		return reportError(path, err)
	}
	prog, diags := nagini.CompileToAST(string(src))
	if diags != nil {
		return reportError(path, diags)
	}
	if err := writeAST(os.Stdout, prog, *format); err != nil {
		return reportError(path, err)
	}
	return 0
}

func writeAST(w io.Writer, prog *compiler.Program, format string) error {
	var data []byte
	var err error
	switch format {
	case "yaml":
		data, err = compiler.MarshalYAML(prog)
	case "cbor":
		data, err = compiler.MarshalProgram(prog)
	default:
		return fmt.Errorf("unknown AST format %q (want yaml or cbor)", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// handleDepsCommand processes `nag deps`.
func handleDepsCommand(p *project) int {
	if !p.found {
		fmt.Fprintln(os.Stderr, "Error: no nagini.toml found")
		return 1
	}
	deps, err := p.dependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(deps) == 0 {
		fmt.Println("No dependencies")
		return 0
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPREFIX\tPATH")
	for _, d := range deps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Prefix, d.LocalPath)
	}
	tw.Flush()
	return 0
}

// handleCacheCommand processes `nag cache [stats|list|clear]`.
func handleCacheCommand(p *project, args []string) int {
	c := p.openCache()
	if c == nil {
		fmt.Fprintln(os.Stderr, "The compiled-module cache is disabled")
		return 1
	}
	defer c.Close()

	sub := "stats"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "stats":
		st, err := c.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Cache: %s\n", c.Path())
		fmt.Printf("  Modules: %d\n", st.Entries)
	case "list":
		entries, err := c.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSIZE\tCREATED\tSOURCE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Key[:12], e.Size, e.Created.Format("2006-01-02 15:04"), e.Name)
		}
		tw.Flush()
	case "clear":
		if err := c.Clear(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println("Cache cleared")
	default:
		fmt.Fprintf(os.Stderr, "Unknown cache subcommand: %s\n", sub)
		return 2
	}
	return 0
}

// handleLSPCommand processes `nag lsp`.
func handleLSPCommand(p *project) int {
	v := vm.New(vm.WithStdout(io.Discard), vm.WithMaxFrames(p.manifest.VM.MaxFrames))
	if err := server.NewLSP(v).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}
