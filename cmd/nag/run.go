package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/vm"
)

// handleRunCommand processes `nag run [-trace] [-check-stack] [file]`.
// Without a file it runs the project entry module.
func handleRunCommand(p *project, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	trace := fs.Bool("trace", p.manifest.VM.Trace, "Log every executed instruction (needs -v)")
	checkStack := fs.Bool("check-stack", p.manifest.VM.CheckStack, "Check the operand stack at every line")
	maxFrames := fs.Int("max-frames", p.manifest.VM.MaxFrames, "Maximum call depth")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nag run [options] [file.nag|file.nac]\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	var path string
	switch fs.NArg() {
	case 0:
		path = p.manifest.EntryPath()
	case 1:
		path = fs.Arg(0)
	default:
		fs.Usage()
		return 2
	}

	c := p.openCache()
	if c != nil {
		defer c.Close()
	}

	deps, err := p.dependencies()
	if err != nil {
		return reportError(path, err)
	}
	imp := nagini.ProjectImporter(p.manifest, deps, c)
	// The program's own directory comes first.
	if dir, err := filepath.Abs(filepath.Dir(path)); err == nil {
		imp.Roots = append([]nagini.Root{{Dirs: []string{dir}}}, imp.Roots...)
	}

	m, err := nagini.LoadFile(path, c)
	if err != nil {
		return reportError(path, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	v := vm.New(
		vm.WithMaxFrames(*maxFrames),
		vm.WithStackCheck(*checkStack),
		vm.WithTrace(*trace),
		vm.WithImporter(imp),
	)
	log.Debugf("running %s on vm %s", path, v.ID)
	if _, err := v.Run(ctx, m); err != nil {
		return reportError(path, err)
	}
	return 0
}
