package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: arena-allocated syntax tree for Nagini
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// NodeID indexes Program.Nodes. Children are always referenced by ID.
type NodeID int32

// NoNode marks an absent optional child.
const NoNode NodeID = -1

// Valid reports whether id refers to a node.
func (id NodeID) Valid() bool { return id >= 0 }

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() NodeKind
	Span() Span
}

// Program is the root of a parsed file. Nodes owns every node; Body lists
// the top-level statements in source order.
type Program struct {
	Nodes []Node
	Body  []NodeID
}

// Add appends n to the arena and returns its ID.
func (p *Program) Add(n Node) NodeID {
	p.Nodes = append(p.Nodes, n)
	return NodeID(len(p.Nodes) - 1)
}

// Node returns the node for id, or nil for NoNode.
func (p *Program) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(p.Nodes) {
		return nil
	}
	return p.Nodes[id]
}

type base struct {
	SpanVal Span
}

func (b *base) Span() Span { return b.SpanVal }

// ---------------------------------------------------------------------------
// Node kinds
// ---------------------------------------------------------------------------

// NodeKind tags the concrete node variant.
type NodeKind uint8

const (
	// Statements
	KindFunctionDef NodeKind = iota + 1
	KindAsyncFunctionDef
	KindClassDef
	KindIf
	KindWhile
	KindFor
	KindMatch
	KindCase
	KindTry
	KindExceptHandler
	KindImport
	KindExport
	KindAssignment
	KindDestructuring
	KindReturn
	KindBreak
	KindContinue
	KindRaise
	KindWith
	KindExprStmt
	KindPass
	KindDel
	KindGlobal
	KindNonlocal
	KindAssert

	// Expressions
	KindLiteral
	KindTemplateString
	KindIdentifier
	KindBinaryOp
	KindUnaryOp
	KindBoolOp
	KindCompare
	KindCall
	KindAttribute
	KindSubscript
	KindSlice
	KindListLiteral
	KindDictLiteral
	KindTupleLiteral
	KindSetLiteral
	KindLambda
	KindComprehension
	KindAwait
	KindYield
	KindYieldFrom
	KindIfExp
	KindSpread
	KindJSXElement
	KindJSXFragment
	KindJSXText

	// Patterns
	KindWildcardPattern
	KindCapturePattern
	KindLiteralPattern
	KindValuePattern
	KindSequencePattern
	KindMappingPattern
	KindClassPattern
	KindOrPattern
	KindAsPattern
	KindDestructurePattern
)

var nodeKindNames = map[NodeKind]string{
	KindFunctionDef:        "FunctionDef",
	KindAsyncFunctionDef:   "AsyncFunctionDef",
	KindClassDef:           "ClassDef",
	KindIf:                 "If",
	KindWhile:              "While",
	KindFor:                "For",
	KindMatch:              "Match",
	KindCase:               "Case",
	KindTry:                "Try",
	KindExceptHandler:      "ExceptHandler",
	KindImport:             "Import",
	KindExport:             "Export",
	KindAssignment:         "Assignment",
	KindDestructuring:      "Destructuring",
	KindReturn:             "Return",
	KindBreak:              "Break",
	KindContinue:           "Continue",
	KindRaise:              "Raise",
	KindWith:               "With",
	KindExprStmt:           "ExpressionStatement",
	KindPass:               "Pass",
	KindDel:                "Del",
	KindGlobal:             "Global",
	KindNonlocal:           "Nonlocal",
	KindAssert:             "Assert",
	KindLiteral:            "Literal",
	KindTemplateString:     "TemplateString",
	KindIdentifier:         "Identifier",
	KindBinaryOp:           "BinaryOp",
	KindUnaryOp:            "UnaryOp",
	KindBoolOp:             "BoolOp",
	KindCompare:            "Compare",
	KindCall:               "Call",
	KindAttribute:          "Attribute",
	KindSubscript:          "Subscript",
	KindSlice:              "Slice",
	KindListLiteral:        "ListLiteral",
	KindDictLiteral:        "DictLiteral",
	KindTupleLiteral:       "TupleLiteral",
	KindSetLiteral:         "SetLiteral",
	KindLambda:             "Lambda",
	KindComprehension:      "Comprehension",
	KindAwait:              "Await",
	KindYield:              "Yield",
	KindYieldFrom:          "YieldFrom",
	KindIfExp:              "IfExp",
	KindSpread:             "Spread",
	KindJSXElement:         "JSXElement",
	KindJSXFragment:        "JSXFragment",
	KindJSXText:            "JSXText",
	KindWildcardPattern:    "WildcardPattern",
	KindCapturePattern:     "CapturePattern",
	KindLiteralPattern:     "LiteralPattern",
	KindValuePattern:       "ValuePattern",
	KindSequencePattern:    "SequencePattern",
	KindMappingPattern:     "MappingPattern",
	KindClassPattern:       "ClassPattern",
	KindOrPattern:          "OrPattern",
	KindAsPattern:          "AsPattern",
	KindDestructurePattern: "DestructurePattern",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", k)
}

// IsStatement reports whether k is a statement kind.
func (k NodeKind) IsStatement() bool {
	return k >= KindFunctionDef && k <= KindAssert
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// Operator identifies a unary, binary, boolean or comparison operator.
type Operator uint8

const (
	OpNone Operator = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpMatMul
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLShift
	OpRShift
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpIn
	OpNotIn
	OpIs
	OpIsNot
	OpAnd
	OpOr
	OpNot
	OpNeg
	OpPos
	OpInvert
)

var operatorNames = [...]string{
	OpNone:     "",
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpFloorDiv: "//",
	OpMod:      "%",
	OpPow:      "**",
	OpMatMul:   "@",
	OpBitAnd:   "&",
	OpBitOr:    "|",
	OpBitXor:   "^",
	OpLShift:   "<<",
	OpRShift:   ">>",
	OpEq:       "==",
	OpNotEq:    "!=",
	OpLt:       "<",
	OpLtEq:     "<=",
	OpGt:       ">",
	OpGtEq:     ">=",
	OpIn:       "in",
	OpNotIn:    "not in",
	OpIs:       "is",
	OpIsNot:    "is not",
	OpAnd:      "and",
	OpOr:       "or",
	OpNot:      "not",
	OpNeg:      "-",
	OpPos:      "+",
	OpInvert:   "~",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", o)
}

// IsComparison reports whether o compares two operands.
func (o Operator) IsComparison() bool {
	return o >= OpEq && o <= OpIsNot
}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// ParamKind distinguishes ordinary, *args, **kwargs and keyword-only
// parameters.
type ParamKind uint8

const (
	ParamNormal ParamKind = iota
	ParamVarArgs
	ParamKwArgs
	ParamKwOnly
)

// Param is one formal parameter. Annotation and Default may be NoNode.
type Param struct {
	Name       string
	Kind       ParamKind
	Annotation NodeID
	Default    NodeID
}

// FunctionDef is `def` or `async def`.
type FunctionDef struct {
	base
	Name       string
	Params     []Param
	Returns    NodeID // annotation
	Body       []NodeID
	Decorators []NodeID
	Async      bool
}

func (n *FunctionDef) Kind() NodeKind {
	if n.Async {
		return KindAsyncFunctionDef
	}
	return KindFunctionDef
}

// Keyword is a `name=value` argument. An empty Name means `**value`.
type Keyword struct {
	Name  string
	Value NodeID
}

// ClassDef is a class statement.
type ClassDef struct {
	base
	Name       string
	Bases      []NodeID
	Keywords   []Keyword
	Body       []NodeID
	Decorators []NodeID
}

func (n *ClassDef) Kind() NodeKind { return KindClassDef }

// If is an if statement; elif chains nest in Else.
type If struct {
	base
	Cond NodeID
	Body []NodeID
	Else []NodeID
}

func (n *If) Kind() NodeKind { return KindIf }

type While struct {
	base
	Cond NodeID
	Body []NodeID
	Else []NodeID
}

func (n *While) Kind() NodeKind { return KindWhile }

type For struct {
	base
	Target NodeID
	Iter   NodeID
	Body   []NodeID
	Else   []NodeID
	Async  bool
}

func (n *For) Kind() NodeKind { return KindFor }

type Match struct {
	base
	Subject NodeID
	Cases   []NodeID
}

func (n *Match) Kind() NodeKind { return KindMatch }

// Case is one arm of a match statement. Guard may be NoNode.
type Case struct {
	base
	Pattern NodeID
	Guard   NodeID
	Body    []NodeID
}

func (n *Case) Kind() NodeKind { return KindCase }

type Try struct {
	base
	Body     []NodeID
	Handlers []NodeID
	Else     []NodeID
	Finally  []NodeID
}

func (n *Try) Kind() NodeKind { return KindTry }

// ExceptHandler is an except clause. Type is NoNode for a bare except.
type ExceptHandler struct {
	base
	Type NodeID
	Name string
	Body []NodeID
}

func (n *ExceptHandler) Kind() NodeKind { return KindExceptHandler }

// ImportName is one `name [as alias]` of an import.
type ImportName struct {
	Name  string
	Alias string
}

// Import covers `import a.b [as c]` and `from m import x, y` / `*`.
type Import struct {
	base
	Module string
	Alias  string
	From   bool
	Names  []ImportName
	Star   bool
}

func (n *Import) Kind() NodeKind { return KindImport }

// Export marks names visible to importers. Decl is a definition or
// assignment exported in place; otherwise Names lists existing bindings.
type Export struct {
	base
	Decl  NodeID
	Names []string
}

func (n *Export) Kind() NodeKind { return KindExport }

// Assignment binds Value to every target. Op is set for augmented
// assignment; Annotation for `x: T = v`. Value may be NoNode for a bare
// annotation.
type Assignment struct {
	base
	Targets    []NodeID
	Value      NodeID
	Op         Operator
	Annotation NodeID
}

func (n *Assignment) Kind() NodeKind { return KindAssignment }

// Destructuring unpacks Value into a DestructurePattern.
type Destructuring struct {
	base
	Target NodeID
	Value  NodeID
}

func (n *Destructuring) Kind() NodeKind { return KindDestructuring }

type Return struct {
	base
	Value NodeID
}

func (n *Return) Kind() NodeKind { return KindReturn }

type Break struct{ base }

func (n *Break) Kind() NodeKind { return KindBreak }

type Continue struct{ base }

func (n *Continue) Kind() NodeKind { return KindContinue }

type Raise struct {
	base
	Exc   NodeID
	Cause NodeID
}

func (n *Raise) Kind() NodeKind { return KindRaise }

// WithItem is `expr [as target]`.
type WithItem struct {
	Context NodeID
	Target  NodeID
}

type With struct {
	base
	Items []WithItem
	Body  []NodeID
	Async bool
}

func (n *With) Kind() NodeKind { return KindWith }

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	base
	Value NodeID
}

func (n *ExprStmt) Kind() NodeKind { return KindExprStmt }

type Pass struct{ base }

func (n *Pass) Kind() NodeKind { return KindPass }

type Del struct {
	base
	Targets []NodeID
}

func (n *Del) Kind() NodeKind { return KindDel }

type Global struct {
	base
	Names []string
}

func (n *Global) Kind() NodeKind { return KindGlobal }

type Nonlocal struct {
	base
	Names []string
}

func (n *Nonlocal) Kind() NodeKind { return KindNonlocal }

type Assert struct {
	base
	Test NodeID
	Msg  NodeID
}

func (n *Assert) Kind() NodeKind { return KindAssert }

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// LiteralKind distinguishes literal constants.
type LiteralKind uint8

const (
	LitInt LiteralKind = iota
	LitFloat
	LitString
	LitBool
	LitNone
)

// Literal is a constant. Value holds the lexeme for numbers, the decoded
// text for strings and "True"/"False"/"None" otherwise.
type Literal struct {
	base
	LitKind LiteralKind
	Value   string
}

func (n *Literal) Kind() NodeKind { return KindLiteral }

// TemplateSegment is literal text (Expr == NoNode) or an interpolation.
// Spec holds the format spec's segments when it contains nested fields.
type TemplateSegment struct {
	Text       string
	Expr       NodeID
	Conversion byte
	FormatSpec string
	Spec       []TemplateSegment
}

type TemplateString struct {
	base
	Parts []TemplateSegment
}

func (n *TemplateString) Kind() NodeKind { return KindTemplateString }

type Identifier struct {
	base
	Name string
}

func (n *Identifier) Kind() NodeKind { return KindIdentifier }

type BinaryOp struct {
	base
	Op    Operator
	Left  NodeID
	Right NodeID
}

func (n *BinaryOp) Kind() NodeKind { return KindBinaryOp }

type UnaryOp struct {
	base
	Op      Operator
	Operand NodeID
}

func (n *UnaryOp) Kind() NodeKind { return KindUnaryOp }

// BoolOp is a run of `and` or `or` operands.
type BoolOp struct {
	base
	Op     Operator
	Values []NodeID
}

func (n *BoolOp) Kind() NodeKind { return KindBoolOp }

// Compare is a chained comparison such as a < b <= c.
type Compare struct {
	base
	Left        NodeID
	Ops         []Operator
	Comparators []NodeID
}

func (n *Compare) Kind() NodeKind { return KindCompare }

// Call arguments may include Spread nodes for *args.
type Call struct {
	base
	Func     NodeID
	Args     []NodeID
	Keywords []Keyword
}

func (n *Call) Kind() NodeKind { return KindCall }

type Attribute struct {
	base
	Value NodeID
	Name  string
}

func (n *Attribute) Kind() NodeKind { return KindAttribute }

type Subscript struct {
	base
	Value NodeID
	Index NodeID
}

func (n *Subscript) Kind() NodeKind { return KindSubscript }

// Slice is lower:upper:step inside a subscript; each part may be NoNode.
type Slice struct {
	base
	Lower NodeID
	Upper NodeID
	Step  NodeID
}

func (n *Slice) Kind() NodeKind { return KindSlice }

type ListLiteral struct {
	base
	Elts []NodeID
}

func (n *ListLiteral) Kind() NodeKind { return KindListLiteral }

type TupleLiteral struct {
	base
	Elts []NodeID
}

func (n *TupleLiteral) Kind() NodeKind { return KindTupleLiteral }

type SetLiteral struct {
	base
	Elts []NodeID
}

func (n *SetLiteral) Kind() NodeKind { return KindSetLiteral }

// DictLiteral pairs Keys with Values. A NoNode key means `**value`.
type DictLiteral struct {
	base
	Keys   []NodeID
	Values []NodeID
}

func (n *DictLiteral) Kind() NodeKind { return KindDictLiteral }

type Lambda struct {
	base
	Params []Param
	Body   NodeID
}

func (n *Lambda) Kind() NodeKind { return KindLambda }

// CompKind is the flavor of a comprehension.
type CompKind uint8

const (
	CompList CompKind = iota
	CompSet
	CompDict
	CompGenerator
)

// CompFor is one `for target in iter [if cond]...` clause.
type CompFor struct {
	Target NodeID
	Iter   NodeID
	Ifs    []NodeID
	Async  bool
}

// Comprehension covers list, set, dict and generator forms. Value is only
// set for dict comprehensions, where Elt is the key.
type Comprehension struct {
	base
	CompKind   CompKind
	Elt        NodeID
	Value      NodeID
	Generators []CompFor
}

func (n *Comprehension) Kind() NodeKind { return KindComprehension }

type Await struct {
	base
	Value NodeID
}

func (n *Await) Kind() NodeKind { return KindAwait }

type Yield struct {
	base
	Value NodeID
}

func (n *Yield) Kind() NodeKind { return KindYield }

type YieldFrom struct {
	base
	Value NodeID
}

func (n *YieldFrom) Kind() NodeKind { return KindYieldFrom }

// IfExp is `body if test else orelse`.
type IfExp struct {
	base
	Test NodeID
	Body NodeID
	Else NodeID
}

func (n *IfExp) Kind() NodeKind { return KindIfExp }

// Spread is `*value` or, with Double, `**value`.
type Spread struct {
	base
	Value  NodeID
	Double bool
}

func (n *Spread) Kind() NodeKind { return KindSpread }

// JSXAttr is `name={expr}`, `name="text"`, a bare `name`, or `{...expr}`.
type JSXAttr struct {
	Name   string
	Value  NodeID
	Spread bool
}

// JSXElement is `<Tag attrs>children</Tag>` or `<Tag attrs />`.
type JSXElement struct {
	base
	Tag         string
	Attrs       []JSXAttr
	Children    []NodeID
	SelfClosing bool
}

func (n *JSXElement) Kind() NodeKind { return KindJSXElement }

type JSXFragment struct {
	base
	Children []NodeID
}

func (n *JSXFragment) Kind() NodeKind { return KindJSXFragment }

type JSXText struct {
	base
	Value string
}

func (n *JSXText) Kind() NodeKind { return KindJSXText }

// ---------------------------------------------------------------------------
// Pattern nodes
// ---------------------------------------------------------------------------

type WildcardPattern struct{ base }

func (n *WildcardPattern) Kind() NodeKind { return KindWildcardPattern }

type CapturePattern struct {
	base
	Name string
}

func (n *CapturePattern) Kind() NodeKind { return KindCapturePattern }

// LiteralPattern matches by equality (or identity for None/True/False).
type LiteralPattern struct {
	base
	Value NodeID
}

func (n *LiteralPattern) Kind() NodeKind { return KindLiteralPattern }

// ValuePattern matches against a dotted name.
type ValuePattern struct {
	base
	Value NodeID
}

func (n *ValuePattern) Kind() NodeKind { return KindValuePattern }

// SequencePattern matches lists and tuples. Star is the number of patterns
// before the star capture, or -1 without one; StarName is "" for `*_`.
type SequencePattern struct {
	base
	Patterns []NodeID
	Star     int
	StarName string
}

func (n *SequencePattern) Kind() NodeKind { return KindSequencePattern }

type MappingPattern struct {
	base
	Keys     []NodeID
	Patterns []NodeID
	Rest     string
}

func (n *MappingPattern) Kind() NodeKind { return KindMappingPattern }

type ClassPattern struct {
	base
	Class       NodeID
	Patterns    []NodeID
	KwdNames    []string
	KwdPatterns []NodeID
}

func (n *ClassPattern) Kind() NodeKind { return KindClassPattern }

type OrPattern struct {
	base
	Patterns []NodeID
}

func (n *OrPattern) Kind() NodeKind { return KindOrPattern }

type AsPattern struct {
	base
	Pattern NodeID
	Name    string
}

func (n *AsPattern) Kind() NodeKind { return KindAsPattern }

// DestructKind is the shape of a destructuring target.
type DestructKind uint8

const (
	DestructSequence DestructKind = iota
	DestructMapping
)

// DestructurePattern is the left-hand side of a destructuring assignment.
// For sequences, Elts are the targets and Star indexes the starred one (-1
// if none). For mappings, Keys[i] is stored into Elts[i] and Rest receives
// the remaining entries.
type DestructurePattern struct {
	base
	DestructKind DestructKind
	Elts         []NodeID
	Star         int
	Keys         []NodeID
	Rest         NodeID
}

func (n *DestructurePattern) Kind() NodeKind { return KindDestructurePattern }

// newNode allocates an empty node of the given kind.
func newNode(k NodeKind) Node {
	switch k {
	case KindFunctionDef:
		return &FunctionDef{}
	case KindAsyncFunctionDef:
		return &FunctionDef{Async: true}
	case KindClassDef:
		return &ClassDef{}
	case KindIf:
		return &If{}
	case KindWhile:
		return &While{}
	case KindFor:
		return &For{}
	case KindMatch:
		return &Match{}
	case KindCase:
		return &Case{}
	case KindTry:
		return &Try{}
	case KindExceptHandler:
		return &ExceptHandler{}
	case KindImport:
		return &Import{}
	case KindExport:
		return &Export{}
	case KindAssignment:
		return &Assignment{}
	case KindDestructuring:
		return &Destructuring{}
	case KindReturn:
		return &Return{}
	case KindBreak:
		return &Break{}
	case KindContinue:
		return &Continue{}
	case KindRaise:
		return &Raise{}
	case KindWith:
		return &With{}
	case KindExprStmt:
		return &ExprStmt{}
	case KindPass:
		return &Pass{}
	case KindDel:
		return &Del{}
	case KindGlobal:
		return &Global{}
	case KindNonlocal:
		return &Nonlocal{}
	case KindAssert:
		return &Assert{}
	case KindLiteral:
		return &Literal{}
	case KindTemplateString:
		return &TemplateString{}
	case KindIdentifier:
		return &Identifier{}
	case KindBinaryOp:
		return &BinaryOp{}
	case KindUnaryOp:
		return &UnaryOp{}
	case KindBoolOp:
		return &BoolOp{}
	case KindCompare:
		return &Compare{}
	case KindCall:
		return &Call{}
	case KindAttribute:
		return &Attribute{}
	case KindSubscript:
		return &Subscript{}
	case KindSlice:
		return &Slice{}
	case KindListLiteral:
		return &ListLiteral{}
	case KindDictLiteral:
		return &DictLiteral{}
	case KindTupleLiteral:
		return &TupleLiteral{}
	case KindSetLiteral:
		return &SetLiteral{}
	case KindLambda:
		return &Lambda{}
	case KindComprehension:
		return &Comprehension{}
	case KindAwait:
		return &Await{}
	case KindYield:
		return &Yield{}
	case KindYieldFrom:
		return &YieldFrom{}
	case KindIfExp:
		return &IfExp{}
	case KindSpread:
		return &Spread{}
	case KindJSXElement:
		return &JSXElement{}
	case KindJSXFragment:
		return &JSXFragment{}
	case KindJSXText:
		return &JSXText{}
	case KindWildcardPattern:
		return &WildcardPattern{}
	case KindCapturePattern:
		return &CapturePattern{}
	case KindLiteralPattern:
		return &LiteralPattern{}
	case KindValuePattern:
		return &ValuePattern{}
	case KindSequencePattern:
		return &SequencePattern{}
	case KindMappingPattern:
		return &MappingPattern{}
	case KindClassPattern:
		return &ClassPattern{}
	case KindOrPattern:
		return &OrPattern{}
	case KindAsPattern:
		return &AsPattern{}
	case KindDestructurePattern:
		return &DestructurePattern{}
	}
	return nil
}
