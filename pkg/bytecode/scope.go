package bytecode

import (
	"github.com/nagini-lang/nagini/compiler"
)

// ---------------------------------------------------------------------------
// Scope analysis
// ---------------------------------------------------------------------------

type scopeKind uint8

const (
	scopeModule scopeKind = iota
	scopeFunction
	scopeClass
	scopeComprehension
)

type symFlags uint8

const (
	symBound symFlags = 1 << iota
	symParam
	symUsed
	symGlobal
	symNonlocal
	symCell
)

// nameKind is how generated code reaches a name.
type nameKind uint8

const (
	nameGlobal nameKind = iota // LoadName/StoreName
	nameLocal                  // LoadLocal/StoreLocal
	nameCell                   // LoadCell/StoreCell
	nameFree                   // LoadUpvalue/StoreUpvalue
)

// comprehensionArg is the hidden parameter holding the outermost iterator.
const comprehensionArg = ".0"

type scope struct {
	kind   scopeKind
	name   string
	node   compiler.NodeID
	parent *scope

	symbols map[string]symFlags
	order   []string // first-seen order of every symbol
	params  []string

	frees     []string
	freeIndex map[string]int
	slots     map[string]int
	nslots    int

	async     bool
	generator bool
	children  []*scope
}

func newScope(kind scopeKind, name string, node compiler.NodeID, parent *scope) *scope {
	s := &scope{
		kind:      kind,
		name:      name,
		node:      node,
		parent:    parent,
		symbols:   make(map[string]symFlags),
		freeIndex: make(map[string]int),
		slots:     make(map[string]int),
	}
	if parent != nil {
		parent.children = append(parent.children, s)
	}
	return s
}

func (s *scope) isFunctionLike() bool {
	return s.kind == scopeFunction || s.kind == scopeComprehension
}

func (s *scope) add(name string, f symFlags) {
	old, seen := s.symbols[name]
	if !seen {
		s.order = append(s.order, name)
	}
	s.symbols[name] = old | f
}

// bindsLocally reports whether name is a local of this function scope.
func (s *scope) bindsLocally(name string) bool {
	f := s.symbols[name]
	return s.isFunctionLike() && f&symBound != 0 && f&(symGlobal|symNonlocal) == 0
}

func (s *scope) addFree(name string) {
	if _, ok := s.freeIndex[name]; ok {
		return
	}
	s.freeIndex[name] = len(s.frees)
	s.frees = append(s.frees, name)
}

// resolve says how code in this scope reaches name.
func (s *scope) resolve(name string) (nameKind, int) {
	f := s.symbols[name]
	if s.kind == scopeModule || f&symGlobal != 0 {
		return nameGlobal, 0
	}
	if s.kind == scopeClass && f&symBound != 0 && f&symNonlocal == 0 {
		return nameGlobal, 0
	}
	if idx, ok := s.freeIndex[name]; ok {
		return nameFree, idx
	}
	if slot, ok := s.slots[name]; ok {
		if f&symCell != 0 {
			return nameCell, slot
		}
		return nameLocal, slot
	}
	return nameGlobal, 0
}

// captureSource encodes where a nested function finds name in this scope,
// as the operand of a FuncCapture instruction.
func (s *scope) captureSource(name string) (uint32, bool) {
	if idx, ok := s.freeIndex[name]; ok {
		return uint32(idx), true
	}
	if slot, ok := s.slots[name]; ok && s.symbols[name]&symCell != 0 {
		return FromLocal | uint32(slot), true
	}
	return 0, false
}

// cells returns the local slots captured by nested functions.
func (s *scope) cells() []int {
	var out []int
	for _, name := range s.order {
		if s.symbols[name]&symCell != 0 {
			if slot, ok := s.slots[name]; ok {
				out = append(out, slot)
			}
		}
	}
	return out
}

// scopeBuilder walks a program and builds the scope tree.
type scopeBuilder struct {
	prog   *compiler.Program
	scopes map[compiler.NodeID]*scope
}

// analyzeScopes builds and resolves the scope tree of prog. The module
// scope is stored under compiler.NoNode.
func analyzeScopes(prog *compiler.Program) map[compiler.NodeID]*scope {
	b := &scopeBuilder{prog: prog, scopes: make(map[compiler.NodeID]*scope)}
	mod := newScope(scopeModule, "<module>", compiler.NoNode, nil)
	b.scopes[compiler.NoNode] = mod
	b.stmts(mod, prog.Body)
	b.resolveFrees(mod)
	b.assignSlots(mod)
	return b.scopes
}

func (b *scopeBuilder) errorf(id compiler.NodeID, format string, args ...interface{}) {
	panic(newCompileError(b.prog, id, format, args...))
}

func (b *scopeBuilder) stmts(s *scope, ids []compiler.NodeID) {
	for _, id := range ids {
		b.stmt(s, id)
	}
}

func (b *scopeBuilder) exprs(s *scope, ids []compiler.NodeID) {
	for _, id := range ids {
		b.expr(s, id)
	}
}

func (b *scopeBuilder) segments(s *scope, parts []compiler.TemplateSegment) {
	for _, part := range parts {
		if part.Expr.Valid() {
			b.expr(s, part.Expr)
			b.segments(s, part.Spec)
		}
	}
}

func (b *scopeBuilder) stmt(s *scope, id compiler.NodeID) {
	switch n := b.prog.Node(id).(type) {
	case *compiler.FunctionDef:
		b.exprs(s, n.Decorators)
		b.function(s, id, n.Name, n.Params, n.Async, func(fs *scope) { b.stmts(fs, n.Body) })
		s.add(n.Name, symBound)
	case *compiler.ClassDef:
		b.exprs(s, n.Decorators)
		b.exprs(s, n.Bases)
		for _, kw := range n.Keywords {
			b.expr(s, kw.Value)
		}
		cs := newScope(scopeClass, n.Name, id, s)
		b.scopes[id] = cs
		b.stmts(cs, n.Body)
		s.add(n.Name, symBound)
	case *compiler.If:
		b.expr(s, n.Cond)
		b.stmts(s, n.Body)
		b.stmts(s, n.Else)
	case *compiler.While:
		b.expr(s, n.Cond)
		b.stmts(s, n.Body)
		b.stmts(s, n.Else)
	case *compiler.For:
		b.expr(s, n.Iter)
		b.target(s, n.Target)
		b.stmts(s, n.Body)
		b.stmts(s, n.Else)
	case *compiler.Match:
		b.expr(s, n.Subject)
		for _, cid := range n.Cases {
			c := b.prog.Node(cid).(*compiler.Case)
			b.pattern(s, c.Pattern)
			if c.Guard.Valid() {
				b.expr(s, c.Guard)
			}
			b.stmts(s, c.Body)
		}
	case *compiler.Try:
		b.stmts(s, n.Body)
		for _, hid := range n.Handlers {
			h := b.prog.Node(hid).(*compiler.ExceptHandler)
			if h.Type.Valid() {
				b.expr(s, h.Type)
			}
			if h.Name != "" {
				s.add(h.Name, symBound)
			}
			b.stmts(s, h.Body)
		}
		b.stmts(s, n.Else)
		b.stmts(s, n.Finally)
	case *compiler.Import:
		if n.From {
			if n.Star {
				if s.kind != scopeModule {
					b.errorf(id, "'import *' only allowed at module level")
				}
				return
			}
			for _, name := range n.Names {
				s.add(importBinding(name, true), symBound)
			}
			return
		}
		for _, name := range n.Names {
			s.add(importBinding(name, false), symBound)
		}
	case *compiler.Export:
		if s.kind != scopeModule {
			b.errorf(id, "'export' outside module level")
		}
		if n.Decl.Valid() {
			b.stmt(s, n.Decl)
		}
		for _, name := range n.Names {
			s.add(name, symUsed)
		}
	case *compiler.Assignment:
		if !n.Value.Valid() {
			return
		}
		b.expr(s, n.Value)
		for _, t := range n.Targets {
			if n.Op != compiler.OpNone {
				b.expr(s, t)
			}
			b.target(s, t)
		}
	case *compiler.Destructuring:
		b.expr(s, n.Value)
		b.target(s, n.Target)
	case *compiler.Return:
		if !s.isFunctionLike() {
			b.errorf(id, "'return' outside function")
		}
		if n.Value.Valid() {
			b.expr(s, n.Value)
		}
	case *compiler.Raise:
		if n.Exc.Valid() {
			b.expr(s, n.Exc)
		}
		if n.Cause.Valid() {
			b.expr(s, n.Cause)
		}
	case *compiler.With:
		for _, item := range n.Items {
			b.expr(s, item.Context)
			if item.Target.Valid() {
				b.target(s, item.Target)
			}
		}
		b.stmts(s, n.Body)
	case *compiler.ExprStmt:
		b.expr(s, n.Value)
	case *compiler.Del:
		for _, t := range n.Targets {
			b.target(s, t)
		}
	case *compiler.Global:
		for _, name := range n.Names {
			if s.symbols[name]&symParam != 0 {
				b.errorf(id, "name '%s' is parameter and global", name)
			}
			s.add(name, symGlobal)
		}
	case *compiler.Nonlocal:
		if s.kind == scopeModule {
			b.errorf(id, "nonlocal declaration not allowed at module level")
		}
		for _, name := range n.Names {
			if s.symbols[name]&symParam != 0 {
				b.errorf(id, "name '%s' is parameter and nonlocal", name)
			}
			s.add(name, symNonlocal)
		}
	case *compiler.Assert:
		b.expr(s, n.Test)
		if n.Msg.Valid() {
			b.expr(s, n.Msg)
		}
	}
}

// importBinding returns the local name an import binds. A dotted module
// without an alias is bound under its last component.
func importBinding(n compiler.ImportName, from bool) string {
	if n.Alias != "" {
		return n.Alias
	}
	if from {
		return n.Name
	}
	name := n.Name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func (b *scopeBuilder) function(s *scope, id compiler.NodeID, name string, params []compiler.Param, async bool, body func(*scope)) {
	for _, p := range params {
		if p.Default.Valid() {
			b.expr(s, p.Default)
		}
	}
	fs := newScope(scopeFunction, name, id, s)
	fs.async = async
	b.scopes[id] = fs
	for _, p := range params {
		fs.add(p.Name, symBound|symParam)
		fs.params = append(fs.params, p.Name)
	}
	body(fs)
}

// target records the names bound by an assignment target.
func (b *scopeBuilder) target(s *scope, id compiler.NodeID) {
	switch n := b.prog.Node(id).(type) {
	case *compiler.Identifier:
		s.add(n.Name, symBound)
	case *compiler.Attribute:
		b.expr(s, n.Value)
	case *compiler.Subscript:
		b.expr(s, n.Value)
		b.expr(s, n.Index)
	case *compiler.DestructurePattern:
		b.exprs(s, n.Keys)
		for _, e := range n.Elts {
			b.target(s, e)
		}
		if n.Rest.Valid() {
			b.target(s, n.Rest)
		}
	case *compiler.TupleLiteral:
		for _, e := range n.Elts {
			b.target(s, e)
		}
	case *compiler.ListLiteral:
		for _, e := range n.Elts {
			b.target(s, e)
		}
	case *compiler.Spread:
		b.target(s, n.Value)
	default:
		b.expr(s, id)
	}
}

func (b *scopeBuilder) pattern(s *scope, id compiler.NodeID) {
	switch n := b.prog.Node(id).(type) {
	case *compiler.CapturePattern:
		s.add(n.Name, symBound)
	case *compiler.LiteralPattern:
		b.expr(s, n.Value)
	case *compiler.ValuePattern:
		b.expr(s, n.Value)
	case *compiler.SequencePattern:
		for _, p := range n.Patterns {
			b.pattern(s, p)
		}
		if n.StarName != "" {
			s.add(n.StarName, symBound)
		}
	case *compiler.MappingPattern:
		b.exprs(s, n.Keys)
		for _, p := range n.Patterns {
			b.pattern(s, p)
		}
		if n.Rest != "" {
			s.add(n.Rest, symBound)
		}
	case *compiler.ClassPattern:
		b.expr(s, n.Class)
		for _, p := range n.Patterns {
			b.pattern(s, p)
		}
		for _, p := range n.KwdPatterns {
			b.pattern(s, p)
		}
	case *compiler.OrPattern:
		for _, p := range n.Patterns {
			b.pattern(s, p)
		}
	case *compiler.AsPattern:
		if n.Pattern.Valid() {
			b.pattern(s, n.Pattern)
		}
		s.add(n.Name, symBound)
	}
}

func (b *scopeBuilder) expr(s *scope, id compiler.NodeID) {
	if !id.Valid() {
		return
	}
	switch n := b.prog.Node(id).(type) {
	case *compiler.Identifier:
		s.add(n.Name, symUsed)
	case *compiler.TemplateString:
		b.segments(s, n.Parts)
	case *compiler.BinaryOp:
		b.expr(s, n.Left)
		b.expr(s, n.Right)
	case *compiler.UnaryOp:
		b.expr(s, n.Operand)
	case *compiler.BoolOp:
		b.exprs(s, n.Values)
	case *compiler.Compare:
		b.expr(s, n.Left)
		b.exprs(s, n.Comparators)
	case *compiler.Call:
		b.expr(s, n.Func)
		b.exprs(s, n.Args)
		for _, kw := range n.Keywords {
			b.expr(s, kw.Value)
		}
	case *compiler.Attribute:
		b.expr(s, n.Value)
	case *compiler.Subscript:
		b.expr(s, n.Value)
		b.expr(s, n.Index)
	case *compiler.Slice:
		b.expr(s, n.Lower)
		b.expr(s, n.Upper)
		b.expr(s, n.Step)
	case *compiler.ListLiteral:
		b.exprs(s, n.Elts)
	case *compiler.TupleLiteral:
		b.exprs(s, n.Elts)
	case *compiler.SetLiteral:
		b.exprs(s, n.Elts)
	case *compiler.DictLiteral:
		b.exprs(s, n.Keys)
		b.exprs(s, n.Values)
	case *compiler.Lambda:
		b.function(s, id, "<lambda>", n.Params, false, func(fs *scope) { b.expr(fs, n.Body) })
	case *compiler.Comprehension:
		b.comprehension(s, id, n)
	case *compiler.Await:
		switch {
		case s.kind == scopeModule:
			// top-level await blocks on the host scheduler
		case s.kind == scopeComprehension:
			b.errorf(id, "'await' inside a comprehension is not supported")
		case !s.async:
			b.errorf(id, "'await' outside async function")
		}
		b.expr(s, n.Value)
	case *compiler.Yield:
		b.yield(s, id)
		b.expr(s, n.Value)
	case *compiler.YieldFrom:
		b.yield(s, id)
		b.expr(s, n.Value)
	case *compiler.IfExp:
		b.expr(s, n.Test)
		b.expr(s, n.Body)
		b.expr(s, n.Else)
	case *compiler.Spread:
		b.expr(s, n.Value)
	case *compiler.JSXElement:
		if head, ok := componentHead(n.Tag); ok {
			s.add(head, symUsed)
		}
		for _, a := range n.Attrs {
			b.expr(s, a.Value)
		}
		b.exprs(s, n.Children)
	case *compiler.JSXFragment:
		b.exprs(s, n.Children)
	}
}

func (b *scopeBuilder) yield(s *scope, id compiler.NodeID) {
	switch {
	case s.kind == scopeComprehension:
		b.errorf(id, "'yield' inside comprehension")
	case s.kind != scopeFunction:
		b.errorf(id, "'yield' outside function")
	case s.async:
		b.errorf(id, "'yield' inside async function")
	}
	s.generator = true
}

func (b *scopeBuilder) comprehension(s *scope, id compiler.NodeID, n *compiler.Comprehension) {
	if len(n.Generators) == 0 {
		return
	}
	b.expr(s, n.Generators[0].Iter)
	cs := newScope(scopeComprehension, comprehensionName(n.CompKind), id, s)
	cs.generator = n.CompKind == compiler.CompGenerator
	b.scopes[id] = cs
	cs.add(comprehensionArg, symBound|symParam)
	cs.params = []string{comprehensionArg}
	for i, g := range n.Generators {
		if g.Async {
			b.errorf(id, "asynchronous comprehensions are not supported")
		}
		if i > 0 {
			b.expr(cs, g.Iter)
		}
		b.target(cs, g.Target)
		b.exprs(cs, g.Ifs)
	}
	b.expr(cs, n.Elt)
	b.expr(cs, n.Value)
}

func comprehensionName(k compiler.CompKind) string {
	switch k {
	case compiler.CompSet:
		return "<setcomp>"
	case compiler.CompDict:
		return "<dictcomp>"
	case compiler.CompGenerator:
		return "<genexpr>"
	}
	return "<listcomp>"
}

// componentHead returns the variable a JSX tag refers to. Lowercase
// undotted tags are intrinsic elements and refer to nothing.
func componentHead(tag string) (string, bool) {
	if tag == "" {
		return "", false
	}
	head := tag
	for i := 0; i < len(tag); i++ {
		if tag[i] == '.' {
			head = tag[:i]
			break
		}
	}
	if head == tag && !(tag[0] >= 'A' && tag[0] <= 'Z') {
		return "", false
	}
	return head, true
}

// resolveFrees decides, top down, which names each scope takes from an
// enclosing function, marking the binding locals as cells.
func (b *scopeBuilder) resolveFrees(s *scope) {
	if s.kind != scopeModule {
		for _, name := range s.order {
			f := s.symbols[name]
			switch {
			case f&symGlobal != 0:
			case f&symNonlocal != 0:
				if !b.bindFree(s, name) {
					b.errorf(s.node, "no binding for nonlocal '%s' found", name)
				}
			case s.bindsLocally(name):
			case s.kind == scopeClass && f&symBound != 0:
			default:
				b.bindFree(s, name)
			}
		}
	}
	for _, child := range s.children {
		b.resolveFrees(child)
	}
}

// bindFree looks for name in the function scopes enclosing s. Class scopes
// are skipped for lookup but still pass the value through.
func (b *scopeBuilder) bindFree(s *scope, name string) bool {
	path := []*scope{s}
	for p := s.parent; p != nil && p.kind != scopeModule; p = p.parent {
		f := p.symbols[name]
		if p.kind != scopeClass {
			if f&symGlobal != 0 {
				return false
			}
			if p.bindsLocally(name) {
				p.symbols[name] |= symCell
				for _, q := range path {
					q.addFree(name)
				}
				return true
			}
		}
		path = append(path, p)
	}
	return false
}

// assignSlots gives every function local a slot: parameters first, in
// declaration order, then other locals in first-seen order.
func (b *scopeBuilder) assignSlots(s *scope) {
	if s.isFunctionLike() {
		for _, name := range s.params {
			if _, ok := s.slots[name]; !ok {
				s.slots[name] = s.nslots
				s.nslots++
			}
		}
		for _, name := range s.order {
			if _, ok := s.slots[name]; ok {
				continue
			}
			if _, free := s.freeIndex[name]; free {
				continue
			}
			if s.bindsLocally(name) {
				s.slots[name] = s.nslots
				s.nslots++
			}
		}
	}
	for _, child := range s.children {
		b.assignSlots(child)
	}
}
