package nagini

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/pkg/bytecode"
)

// Phase names the pipeline stage that produced a diagnostic.
type Phase string

const (
	PhaseLex     Phase = "lex"
	PhaseParse   Phase = "parse"
	PhaseCompile Phase = "compile"
	PhaseLoad    Phase = "load"
)

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Diagnostic is one problem found while turning source into bytecode.
// Line and Column are 1-based; zero means the position is unknown.
type Diagnostic struct {
	Phase    Phase
	Severity Severity
	Line     int
	Column   int
	Message  string
}

func (d Diagnostic) String() string {
	return d.Format("")
}

// Format renders d the way compilers print errors: "file:line:col: msg".
func (d Diagnostic) Format(filename string) string {
	var b strings.Builder
	if filename != "" {
		b.WriteString(filename)
		b.WriteByte(':')
	}
	if d.Line > 0 {
		fmt.Fprintf(&b, "%d:%d: ", d.Line, d.Column)
	} else if filename != "" {
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%s %s: %s", d.Phase, d.Severity, d.Message)
	return b.String()
}

// Diagnostics is a list of diagnostics usable as an error.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	switch len(ds) {
	case 0:
		return "no errors"
	case 1:
		return ds[0].String()
	}
	return fmt.Sprintf("%s (and %d more errors)", ds[0], len(ds)-1)
}

// HasErrors reports whether any diagnostic is an error.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// DiagnosticsFromError converts an error returned by the lexer, parser or
// bytecode compiler into diagnostics. Other errors become a single
// diagnostic of the load phase without a position.
func DiagnosticsFromError(err error) Diagnostics {
	if err == nil {
		return nil
	}

	var ds Diagnostics
	if errors.As(err, &ds) {
		return ds
	}

	var lexErr *compiler.LexError
	if errors.As(err, &lexErr) {
		return Diagnostics{{
			Phase:    PhaseLex,
			Severity: SeverityError,
			Line:     lexErr.Line,
			Column:   lexErr.Column,
			Message:  lexErr.Message,
		}}
	}

	var parseErrs compiler.ErrorList
	if errors.As(err, &parseErrs) {
		out := make(Diagnostics, 0, len(parseErrs))
		for _, pe := range parseErrs {
			out = append(out, Diagnostic{
				Phase:    PhaseParse,
				Severity: SeverityError,
				Line:     pe.Line,
				Column:   pe.Column,
				Message:  pe.Message,
			})
		}
		return out
	}

	var parseErr *compiler.ParseError
	if errors.As(err, &parseErr) {
		return Diagnostics{{
			Phase:    PhaseParse,
			Severity: SeverityError,
			Line:     parseErr.Line,
			Column:   parseErr.Column,
			Message:  parseErr.Message,
		}}
	}

	var compileErr *bytecode.CompileError
	if errors.As(err, &compileErr) {
		return Diagnostics{{
			Phase:    PhaseCompile,
			Severity: SeverityError,
			Line:     compileErr.Line,
			Column:   compileErr.Column,
			Message:  compileErr.Message,
		}}
	}

	return Diagnostics{{Phase: PhaseLoad, Severity: SeverityError, Message: err.Error()}}
}
