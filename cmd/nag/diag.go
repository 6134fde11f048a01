package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/vm"
)

const (
	ansiRed   = "\x1b[31m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// colorEnabled reports whether f is a terminal that should get ANSI colors.
func colorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printDiagnostics writes diags for filename, one per line.
func printDiagnostics(w io.Writer, color bool, filename string, diags nagini.Diagnostics) {
	for _, d := range diags {
		line := d.Format(filename)
		if color {
			line = ansiBold + ansiRed + line + ansiReset
		}
		fmt.Fprintln(w, line)
	}
}

// reportError prints err the way its kind deserves and returns the exit
// code: 1 for program and compile errors, 2 for fatal VM errors.
func reportError(filename string, err error) int {
	color := colorEnabled(os.Stderr)

	var diags nagini.Diagnostics
	if errors.As(err, &diags) {
		printDiagnostics(os.Stderr, color, filename, diags)
		return 1
	}

	var re *vm.RuntimeError
	if errors.As(err, &re) {
		msg := re.Error()
		if color {
			msg = ansiRed + msg + ansiReset
		}
		fmt.Fprintln(os.Stderr, msg)
		return 1
	}

	var fe *vm.FatalError
	if errors.As(err, &fe) {
		fmt.Fprintln(os.Stderr, fe.Error())
		return 2
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
