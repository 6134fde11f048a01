package server

import (
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/nagini-lang/nagini/compiler"
)

// symbol is a name bound by a definition in a document.
type symbol struct {
	Name     string
	Kind     protocol.SymbolKind
	Detail   string
	Doc      string
	Span     compiler.Span
	Children []symbol
}

// indexSymbols lists the module-level bindings of prog, with class
// members nested under their class. The first binding of a name wins.
func indexSymbols(prog *compiler.Program) []symbol {
	return collectSymbols(prog, prog.Body, false)
}

func collectSymbols(prog *compiler.Program, body []compiler.NodeID, inClass bool) []symbol {
	var out []symbol
	seen := make(map[string]bool)
	add := func(s symbol) {
		if s.Name == "" || seen[s.Name] {
			return
		}
		seen[s.Name] = true
		out = append(out, s)
	}

	for _, id := range body {
		switch n := prog.Node(id).(type) {
		case *compiler.FunctionDef:
			kind := protocol.SymbolKindFunction
			if inClass {
				kind = protocol.SymbolKindMethod
			}
			add(symbol{Name: n.Name, Kind: kind, Detail: signature(n), Doc: docstring(prog, n.Body), Span: n.Span()})

		case *compiler.ClassDef:
			add(symbol{
				Name:     n.Name,
				Kind:     protocol.SymbolKindClass,
				Detail:   classHeader(prog, n),
				Doc:      docstring(prog, n.Body),
				Span:     n.Span(),
				Children: collectSymbols(prog, n.Body, true),
			})

		case *compiler.Export:
			if n.Decl.Valid() {
				for _, s := range collectSymbols(prog, []compiler.NodeID{n.Decl}, inClass) {
					add(s)
				}
			}

		case *compiler.Assignment:
			kind := protocol.SymbolKindVariable
			if inClass {
				kind = protocol.SymbolKindField
			}
			for _, t := range n.Targets {
				if ident, ok := prog.Node(t).(*compiler.Identifier); ok {
					add(symbol{Name: ident.Name, Kind: kind, Span: n.Span()})
				}
			}

		case *compiler.Import:
			if n.Star {
				continue
			}
			for _, name := range n.Names {
				add(symbol{Name: importBinding(name, n.From), Kind: protocol.SymbolKindModule, Detail: importDetail(n, name), Span: n.Span()})
			}
		}
	}
	return out
}

func importBinding(name compiler.ImportName, from bool) string {
	if name.Alias != "" {
		return name.Alias
	}
	if from {
		return name.Name
	}
	return name.Name[strings.LastIndexByte(name.Name, '.')+1:]
}

func importDetail(n *compiler.Import, name compiler.ImportName) string {
	if n.From {
		return "from " + n.Module + " import " + name.Name
	}
	return "import " + name.Name
}

// signature renders the header of a function definition.
func signature(n *compiler.FunctionDef) string {
	var b strings.Builder
	if n.Async {
		b.WriteString("async ")
	}
	b.WriteString("def ")
	b.WriteString(n.Name)
	b.WriteByte('(')
	starred := false
	for i, p := range n.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		switch p.Kind {
		case compiler.ParamVarArgs:
			b.WriteByte('*')
			starred = true
		case compiler.ParamKwArgs:
			b.WriteString("**")
		case compiler.ParamKwOnly:
			if !starred {
				b.WriteString("*, ")
				starred = true
			}
		}
		b.WriteString(p.Name)
		if p.Default.Valid() {
			b.WriteString("=...")
		}
	}
	b.WriteByte(')')
	return b.String()
}

func classHeader(prog *compiler.Program, n *compiler.ClassDef) string {
	var bases []string
	for _, id := range n.Bases {
		if ident, ok := prog.Node(id).(*compiler.Identifier); ok {
			bases = append(bases, ident.Name)
		}
	}
	if len(bases) == 0 {
		return "class " + n.Name
	}
	return "class " + n.Name + "(" + strings.Join(bases, ", ") + ")"
}

// docstring returns the string literal opening body, if any.
func docstring(prog *compiler.Program, body []compiler.NodeID) string {
	if len(body) == 0 {
		return ""
	}
	stmt, ok := prog.Node(body[0]).(*compiler.ExprStmt)
	if !ok {
		return ""
	}
	lit, ok := prog.Node(stmt.Value).(*compiler.Literal)
	if !ok || lit.LitKind != compiler.LitString {
		return ""
	}
	return strings.TrimSpace(lit.Value)
}

// findSymbol looks name up among syms and their children.
func findSymbol(syms []symbol, name string) *symbol {
	for i := range syms {
		if syms[i].Name == name {
			return &syms[i]
		}
	}
	for i := range syms {
		if s := findSymbol(syms[i].Children, name); s != nil {
			return s
		}
	}
	return nil
}

func toPosition(p compiler.Position) protocol.Position {
	line, col := p.Line-1, p.Column-1
	if line < 0 {
		line = 0
	}
	if col < 0 {
		col = 0
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

func toRange(sp compiler.Span) protocol.Range {
	start, end := toPosition(sp.Start), toPosition(sp.End)
	if end.Line < start.Line || (end.Line == start.Line && end.Character <= start.Character) {
		end = protocol.Position{Line: start.Line, Character: start.Character + 1}
	}
	return protocol.Range{Start: start, End: end}
}

func documentSymbols(syms []symbol) []protocol.DocumentSymbol {
	out := make([]protocol.DocumentSymbol, 0, len(syms))
	for _, s := range syms {
		ds := protocol.DocumentSymbol{
			Name:           s.Name,
			Kind:           s.Kind,
			Range:          toRange(s.Span),
			SelectionRange: toRange(s.Span),
			Children:       documentSymbols(s.Children),
		}
		if s.Detail != "" {
			detail := s.Detail
			ds.Detail = &detail
		}
		out = append(out, ds)
	}
	return out
}
