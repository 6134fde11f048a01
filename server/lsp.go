// Package server implements the Nagini language server.
package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/compiler"
	"github.com/nagini-lang/nagini/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "nagini-lsp"

var log = commonlog.GetLogger("nagini.server")

// LspServer provides diagnostics and navigation for Nagini documents.
// Builtin names are looked up on a VM owned by a worker goroutine.
type LspServer struct {
	worker *vmWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. v supplies the builtin namespace.
func NewLSP(v *vm.VM) *LspServer {
	s := &LspServer{
		worker:  startWorker(v),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDefinition:     s.textDocumentDefinition,
		TextDocumentReferences:     s.textDocumentReferences,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.setDocument(string(uri), params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDocument(string(uri), whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDocument(uri, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// symbols parses the document and indexes its definitions. A document
// that does not parse has no symbols.
func (s *LspServer) symbols(uri protocol.DocumentUri) []symbol {
	text, ok := s.document(uri)
	if !ok {
		return nil
	}
	prog, diags := nagini.CompileToAST(text)
	if diags != nil {
		return nil
	}
	return indexSymbols(prog)
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	return s.complete(params.TextDocument.URI, params.Position)
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	return s.hover(params.TextDocument.URI, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	if loc := s.definition(params.TextDocument.URI, params.Position); loc != nil {
		return []protocol.Location{*loc}, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	return s.references(params.TextDocument.URI, params.Position), nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	return documentSymbols(s.symbols(params.TextDocument.URI)), nil
}

const maxCompletionItems = 100

func (s *LspServer) complete(uri protocol.DocumentUri, pos protocol.Position) ([]protocol.CompletionItem, error) {
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, pos)
	if prefix == "" {
		return nil, nil
	}

	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}

	for _, sym := range s.symbols(uri) {
		add(sym.Name, completionKind(sym.Kind), sym.Detail)
	}

	var builtins []builtinInfo
	if err := s.worker.Do(func(v *vm.VM) error {
		builtins = builtinDetails(v)
		return nil
	}); err != nil {
		return nil, err
	}
	for _, b := range builtins {
		kind := protocol.CompletionItemKindFunction
		if b.class {
			kind = protocol.CompletionItemKindClass
		}
		add(b.name, kind, b.detail)
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items, nil
}

func completionKind(k protocol.SymbolKind) protocol.CompletionItemKind {
	switch k {
	case protocol.SymbolKindClass:
		return protocol.CompletionItemKindClass
	case protocol.SymbolKindFunction:
		return protocol.CompletionItemKindFunction
	case protocol.SymbolKindMethod:
		return protocol.CompletionItemKindMethod
	case protocol.SymbolKindModule:
		return protocol.CompletionItemKindModule
	}
	return protocol.CompletionItemKindVariable
}

type builtinInfo struct {
	name   string
	detail string
	class  bool
}

// builtinDetails describes the VM's builtin namespace. Runs on the worker.
func builtinDetails(v *vm.VM) []builtinInfo {
	var out []builtinInfo
	v.Builtins().Range(func(key, value vm.Value) bool {
		name, ok := key.(vm.Str)
		if !ok {
			return true
		}
		info := builtinInfo{name: string(name)}
		switch value.(type) {
		case *vm.Class:
			info.detail = "builtin class"
			info.class = true
		case *vm.Builtin:
			info.detail = "builtin function"
		default:
			info.detail = "builtin " + vm.TypeName(value)
		}
		out = append(out, info)
		return true
	})
	return out
}

func (s *LspServer) hover(uri protocol.DocumentUri, pos protocol.Position) *protocol.Hover {
	text, ok := s.document(uri)
	if !ok {
		return nil
	}
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}

	var b strings.Builder
	if sym := findSymbol(s.symbols(uri), word); sym != nil {
		header := sym.Detail
		if header == "" {
			header = sym.Name
		}
		fmt.Fprintf(&b, "```nagini\n%s\n```", header)
		if sym.Doc != "" {
			b.WriteString("\n\n---\n\n")
			b.WriteString(sym.Doc)
		}
	} else {
		var detail string
		err := s.worker.Do(func(v *vm.VM) error {
			for _, info := range builtinDetails(v) {
				if info.name == word {
					detail = info.detail
					break
				}
			}
			return nil
		})
		if err != nil || detail == "" {
			return nil
		}
		fmt.Fprintf(&b, "**%s**: %s", word, detail)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func (s *LspServer) definition(uri protocol.DocumentUri, pos protocol.Position) *protocol.Location {
	text, ok := s.document(uri)
	if !ok {
		return nil
	}
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}
	sym := findSymbol(s.symbols(uri), word)
	if sym == nil {
		return nil
	}
	return &protocol.Location{URI: uri, Range: toRange(sym.Span)}
}

// references returns every identifier token in the document spelled like
// the word under the cursor.
func (s *LspServer) references(uri protocol.DocumentUri, pos protocol.Position) []protocol.Location {
	text, ok := s.document(uri)
	if !ok {
		return nil
	}
	word := extractWord(text, pos)
	if word == "" {
		return nil
	}
	tokens, err := compiler.Tokenize(text)
	if err != nil {
		return nil
	}

	var locations []protocol.Location
	for _, tok := range tokens {
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: toRange(compiler.Span{Start: tok.Pos, End: tok.End}),
			})
		}
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	log.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose compiles text and converts the resulting diagnostics.
func diagnose(text string) []protocol.Diagnostic {
	_, diags := nagini.CompileToBytecode(text)
	diagnostics := make([]protocol.Diagnostic, 0, len(diags))
	source := lspName
	for _, d := range diags {
		severity := protocol.DiagnosticSeverityError
		if d.Severity == nagini.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		start := compiler.Position{Line: d.Line, Column: d.Column}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    toRange(compiler.Span{Start: start, End: start}),
			Severity: &severity,
			Source:   &source,
			Message:  fmt.Sprintf("%s: %s", d.Phase, d.Message),
		})
	}
	return diagnostics
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}
	return string(line[start:col])
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(line[end]) {
		end++
	}
	return string(line[start:end])
}

// lineAt returns the runes of the cursor's line and the clamped column.
func lineAt(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(strings.TrimSuffix(lines[pos.Line], "\r"))
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

func boolPtr(b bool) *bool {
	return &b
}
