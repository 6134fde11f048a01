// nag is the Nagini command-line tool: it runs, compiles, disassembles and
// inspects Nagini programs, and serves the language server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/nagini-lang/nagini/cache"
	"github.com/nagini-lang/nagini/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("nagini.cli")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: nag [options] <command> [arguments]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run [file]          Compile (through the cache) and run a program\n")
	fmt.Fprintf(os.Stderr, "  build [files...]    Compile sources to .nac modules\n")
	fmt.Fprintf(os.Stderr, "  disasm <file>       Print the disassembly of a module\n")
	fmt.Fprintf(os.Stderr, "  ast <file>          Dump the syntax tree\n")
	fmt.Fprintf(os.Stderr, "  deps                Resolve dependencies and update the lock file\n")
	fmt.Fprintf(os.Stderr, "  cache [stats|list|clear]  Inspect the compiled-module cache\n")
	fmt.Fprintf(os.Stderr, "  lsp                 Serve the language server on stdio\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  nag run                     # run the project entry from nagini.toml\n")
	fmt.Fprintf(os.Stderr, "  nag run -trace hello.nag    # run a file, logging every instruction\n")
	fmt.Fprintf(os.Stderr, "  nag build -o out -j 4       # compile every project source\n")
	fmt.Fprintf(os.Stderr, "  nag ast -format yaml app.nag\n")
}

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	logFile := flag.String("log", "", "Write logs to this file instead of stderr")
	noCache := flag.Bool("no-cache", false, "Do not read or write the compiled-module cache")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	p, err := loadProject(".")
	if err != nil {
		fatalf("loading manifest: %v", err)
	}
	configureLogging(p.manifest, *verbose, *logFile)
	if *noCache {
		p.manifest.Build.NoCache = true
	}

	cmd, rest := args[0], args[1:]
	var code int
	switch cmd {
	case "run":
		code = handleRunCommand(p, rest)
	case "build":
		code = handleBuildCommand(p, rest)
	case "disasm":
		code = handleDisasmCommand(p, rest)
	case "ast":
		code = handleASTCommand(rest)
	case "deps":
		code = handleDepsCommand(p)
	case "cache":
		code = handleCacheCommand(p, rest)
	case "lsp":
		code = handleLSPCommand(p)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		code = 2
	}
	os.Exit(code)
}

// configureLogging applies the [log] section, with command-line overrides.
func configureLogging(m *manifest.Manifest, verbose bool, logFile string) {
	verbosity := m.Log.Verbosity
	if verbose {
		verbosity = 4
	}
	path := m.LogFile()
	if logFile != "" {
		path = logFile
	}
	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
}

// project is the manifest of the working directory, or the default
// manifest when there is none.
type project struct {
	manifest *manifest.Manifest
	found    bool
}

func loadProject(dir string) (*project, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return &project{manifest: m, found: true}, nil
	}
	m, err = manifest.Default(dir)
	if err != nil {
		return nil, err
	}
	return &project{manifest: m}, nil
}

// openCache opens the project cache, or returns nil when it is disabled or
// cannot be opened. A broken cache never stops a build.
func (p *project) openCache() *cache.Cache {
	path := p.manifest.CachePath()
	if path == "" || !p.found {
		return nil
	}
	c, err := cache.Open(path)
	if err != nil {
		log.Warningf("cache disabled: %s", err)
		return nil
	}
	return c
}

// dependencies resolves the project's dependencies.
func (p *project) dependencies() ([]manifest.ResolvedDep, error) {
	if !p.found {
		return nil, nil
	}
	return manifest.NewResolver(p.manifest).Resolve()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
