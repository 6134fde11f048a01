package compiler

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseStatement parses one logical line, or one compound statement with
// its blocks. Simple statements separated by ';' yield several IDs.
func (p *Parser) parseStatement() []NodeID {
	switch p.tok.Type {
	case TokenDef:
		return []NodeID{p.parseFunctionDef(nil, p.tok.Pos, false)}
	case TokenAsync:
		return []NodeID{p.parseAsync(nil)}
	case TokenClass:
		return []NodeID{p.parseClassDef(nil, p.tok.Pos)}
	case TokenAt:
		return []NodeID{p.parseDecorated()}
	case TokenIf:
		return []NodeID{p.parseIf()}
	case TokenWhile:
		return []NodeID{p.parseWhile()}
	case TokenFor:
		return []NodeID{p.parseFor(p.tok.Pos, false)}
	case TokenTry:
		return []NodeID{p.parseTry()}
	case TokenWith:
		return []NodeID{p.parseWith(p.tok.Pos, false)}
	case TokenExport:
		return []NodeID{p.parseExport()}
	case TokenIndent:
		p.fail("unexpected indent")
	case TokenDedent:
		p.fail("unexpected dedent")
	case TokenIdentifier:
		if p.tok.Literal == "match" && p.looksLikeMatch() {
			return []NodeID{p.parseMatch()}
		}
	}
	return p.parseSimpleStatements()
}

// parseSimpleStatements parses `stmt (; stmt)* NEWLINE`.
func (p *Parser) parseSimpleStatements() []NodeID {
	var ids []NodeID
	for {
		ids = append(ids, p.parseSmallStatement())
		if !p.accept(TokenSemicolon) {
			break
		}
		if p.at(TokenNewline) || p.at(TokenEOF) {
			break
		}
	}
	if !p.at(TokenEOF) {
		p.expect(TokenNewline)
	}
	return ids
}

func (p *Parser) parseSmallStatement() NodeID {
	start := p.tok.Pos
	switch p.tok.Type {
	case TokenPass:
		p.advance()
		return p.add(&Pass{spanned(p.span(start))})
	case TokenBreak:
		p.advance()
		return p.add(&Break{spanned(p.span(start))})
	case TokenContinue:
		p.advance()
		return p.add(&Continue{spanned(p.span(start))})
	case TokenReturn:
		p.advance()
		value := NoNode
		if p.canStartExpr() {
			value = p.parseExprList()
		}
		return p.add(&Return{base: spanned(p.span(start)), Value: value})
	case TokenRaise:
		return p.parseRaise()
	case TokenDel:
		p.advance()
		var targets []NodeID
		for {
			targets = append(targets, p.parseOr())
			if !p.accept(TokenComma) || !p.canStartExpr() {
				break
			}
		}
		return p.add(&Del{base: spanned(p.span(start)), Targets: targets})
	case TokenGlobal, TokenNonlocal:
		global := p.advance().Type == TokenGlobal
		names := []string{p.expectName()}
		for p.accept(TokenComma) {
			names = append(names, p.expectName())
		}
		if global {
			return p.add(&Global{base: spanned(p.span(start)), Names: names})
		}
		return p.add(&Nonlocal{base: spanned(p.span(start)), Names: names})
	case TokenAssert:
		p.advance()
		test := p.parseTest()
		msg := NoNode
		if p.accept(TokenComma) {
			msg = p.parseTest()
		}
		return p.add(&Assert{base: spanned(p.span(start)), Test: test, Msg: msg})
	case TokenImport:
		return p.parseImport()
	case TokenFrom:
		return p.parseFromImport()
	}
	return p.parseExprStatement()
}

func (p *Parser) parseRaise() NodeID {
	start := p.expect(TokenRaise).Pos
	exc, cause := NoNode, NoNode
	if p.canStartExpr() {
		exc = p.parseTest()
		if p.accept(TokenFrom) {
			cause = p.parseTest()
		}
	}
	return p.add(&Raise{base: spanned(p.span(start)), Exc: exc, Cause: cause})
}

// parseExprStatement parses an expression statement, assignment,
// augmented assignment, annotated assignment or destructuring.
func (p *Parser) parseExprStatement() NodeID {
	start := p.tok.Pos
	if p.hasTopLevelAssign() {
		return p.parseAssignment(start)
	}

	expr := p.parseExprListOrYield()
	if op, ok := augmentedOps[p.tok.Type]; ok {
		p.checkTarget(expr, false)
		p.advance()
		value := p.parseExprListOrYield()
		return p.add(&Assignment{base: spanned(p.span(start)), Targets: []NodeID{expr}, Value: value, Op: op, Annotation: NoNode})
	}
	if p.at(TokenColon) {
		p.checkTarget(expr, false)
		p.advance()
		ann := p.parseTest()
		return p.add(&Assignment{base: spanned(p.span(start)), Targets: []NodeID{expr}, Value: NoNode, Annotation: ann})
	}
	return p.add(&ExprStmt{base: spanned(p.span(start)), Value: expr})
}

var augmentedOps = map[TokenType]Operator{
	TokenPlusAssign:        OpAdd,
	TokenMinusAssign:       OpSub,
	TokenStarAssign:        OpMul,
	TokenSlashAssign:       OpDiv,
	TokenDoubleSlashAssign: OpFloorDiv,
	TokenPercentAssign:     OpMod,
	TokenDoubleStarAssign:  OpPow,
}

// hasTopLevelAssign scans the rest of the logical line for an '=' outside
// brackets.
func (p *Parser) hasTopLevelAssign() bool {
	if p.at(TokenLt) {
		return false
	}
	depth := 0
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case TokenLParen, TokenLBracket, TokenLBrace:
			depth++
		case TokenRParen, TokenRBracket, TokenRBrace:
			depth--
		case TokenAssign:
			if depth == 0 {
				return true
			}
		case TokenLambda:
			if depth == 0 {
				return false
			}
		case TokenLt:
			// a tag in operand position; targets never contain one
			if depth == 0 && i > p.pos && !endsOperand(p.tokens[i-1].Type) {
				return false
			}
		case TokenNewline, TokenSemicolon, TokenEOF, TokenIndent, TokenDedent:
			if depth <= 0 {
				return false
			}
		}
	}
	return false
}

func endsOperand(t TokenType) bool {
	switch t {
	case TokenIdentifier, TokenInteger, TokenFloat, TokenString, TokenTemplateString,
		TokenTrue, TokenFalse, TokenNone, TokenRParen, TokenRBracket, TokenRBrace:
		return true
	}
	return false
}

func (p *Parser) parseAssignment(start Position) NodeID {
	targets := []NodeID{p.parseTargetList()}

	if p.at(TokenColon) {
		p.checkTarget(targets[0], false)
		p.advance()
		ann := p.parseTest()
		p.expect(TokenAssign)
		value := p.parseExprListOrYield()
		return p.add(&Assignment{base: spanned(p.span(start)), Targets: targets, Value: value, Annotation: ann})
	}

	p.expect(TokenAssign)
	for p.hasTopLevelAssign() {
		targets = append(targets, p.parseTargetList())
		p.expect(TokenAssign)
	}
	value := p.parseExprListOrYield()

	if len(targets) == 1 {
		if _, ok := p.node(targets[0]).(*DestructurePattern); ok {
			return p.add(&Destructuring{base: spanned(p.span(start)), Target: targets[0], Value: value})
		}
	}
	return p.add(&Assignment{base: spanned(p.span(start)), Targets: targets, Value: value, Annotation: NoNode})
}

// ---------------------------------------------------------------------------
// Blocks and compound statements
// ---------------------------------------------------------------------------

// parseBlock parses `: NEWLINE INDENT stmts DEDENT` or `: simple_stmts`.
func (p *Parser) parseBlock() []NodeID {
	p.expect(TokenColon)
	if !p.at(TokenNewline) {
		return p.parseSimpleStatements()
	}
	p.advance()
	if !p.at(TokenIndent) {
		p.fail("expected an indented block")
	}
	p.advance()
	var body []NodeID
	for !p.at(TokenDedent) && !p.at(TokenEOF) {
		if p.accept(TokenNewline) {
			continue
		}
		body = append(body, p.parseStatementRecover()...)
	}
	if !p.accept(TokenDedent) {
		p.fail("unclosed block")
	}
	return body
}

func (p *Parser) parseDecorated() NodeID {
	start := p.tok.Pos
	var decorators []NodeID
	for p.accept(TokenAt) {
		decorators = append(decorators, p.parseTest())
		p.expect(TokenNewline)
	}
	switch p.tok.Type {
	case TokenDef:
		return p.parseFunctionDef(decorators, start, false)
	case TokenClass:
		return p.parseClassDef(decorators, start)
	case TokenAsync:
		return p.parseAsync(decorators)
	}
	p.fail("expected def or class after decorator, got %s", p.tokDesc())
	return NoNode
}

func (p *Parser) parseAsync(decorators []NodeID) NodeID {
	start := p.expect(TokenAsync).Pos
	switch p.tok.Type {
	case TokenDef:
		return p.parseFunctionDef(decorators, start, true)
	case TokenFor:
		if decorators == nil {
			return p.parseFor(start, true)
		}
	case TokenWith:
		if decorators == nil {
			return p.parseWith(start, true)
		}
	}
	p.fail("expected def, for or with after async, got %s", p.tokDesc())
	return NoNode
}

func (p *Parser) parseFunctionDef(decorators []NodeID, start Position, async bool) NodeID {
	p.expect(TokenDef)
	name := p.expectName()
	p.expect(TokenLParen)
	params := p.parseParams(TokenRParen, true)
	p.expect(TokenRParen)
	returns := NoNode
	if p.accept(TokenArrow) {
		returns = p.parseTest()
	}
	body := p.parseBlock()
	return p.add(&FunctionDef{
		base:       spanned(p.span(start)),
		Name:       name,
		Params:     params,
		Returns:    returns,
		Body:       body,
		Decorators: decorators,
		Async:      async,
	})
}

// parseParams parses a parameter list up to (not including) end.
func (p *Parser) parseParams(end TokenType, annotations bool) []Param {
	var params []Param
	kwOnly := false
	sawDefault := false
	bareStar := false
	seen := map[string]bool{}

	for !p.at(end) {
		paramPos := p.tok.Pos
		param := Param{Annotation: NoNode, Default: NoNode}
		switch {
		case p.accept(TokenDoubleStar):
			param.Kind = ParamKwArgs
			param.Name = p.expectName()
		case p.accept(TokenStar):
			if kwOnly {
				p.errorAt(paramPos, "* argument may appear only once")
			}
			if p.at(TokenComma) || p.at(end) {
				kwOnly, bareStar = true, true
				if !p.accept(TokenComma) {
					p.failAt(paramPos, "named arguments must follow bare *")
				}
				continue
			}
			param.Kind = ParamVarArgs
			param.Name = p.expectName()
			kwOnly = true
		case p.accept(TokenSlash):
			// positional-only marker
			if !p.at(end) {
				p.expect(TokenComma)
			}
			continue
		default:
			param.Name = p.expectName()
			if kwOnly {
				param.Kind = ParamKwOnly
			}
		}

		if seen[param.Name] {
			p.errorAt(paramPos, "duplicate argument '%s' in function definition", param.Name)
		}
		seen[param.Name] = true

		if annotations && p.accept(TokenColon) {
			param.Annotation = p.parseTest()
		}
		if param.Kind != ParamKwArgs && param.Kind != ParamVarArgs && p.accept(TokenAssign) {
			param.Default = p.parseTest()
			if param.Kind == ParamNormal {
				sawDefault = true
			}
		} else if param.Kind == ParamNormal && sawDefault {
			p.errorAt(paramPos, "non-default argument follows default argument")
		}
		params = append(params, param)

		if param.Kind == ParamKwArgs && !p.at(end) {
			p.accept(TokenComma)
			if !p.at(end) {
				p.fail("arguments cannot follow **%s", param.Name)
			}
		}
		if !p.accept(TokenComma) {
			break
		}
	}
	if bareStar && !hasKwOnly(params) {
		p.errorAt(p.tok.Pos, "named arguments must follow bare *")
	}
	return params
}

func hasKwOnly(params []Param) bool {
	for _, param := range params {
		if param.Kind == ParamKwOnly {
			return true
		}
	}
	return false
}

func (p *Parser) parseClassDef(decorators []NodeID, start Position) NodeID {
	p.expect(TokenClass)
	name := p.expectName()
	var bases []NodeID
	var keywords []Keyword
	if p.accept(TokenLParen) {
		bases, keywords = p.parseCallArgs()
		p.expect(TokenRParen)
	}
	body := p.parseBlock()
	return p.add(&ClassDef{
		base:       spanned(p.span(start)),
		Name:       name,
		Bases:      bases,
		Keywords:   keywords,
		Body:       body,
		Decorators: decorators,
	})
}

func (p *Parser) parseIf() NodeID {
	start := p.tok.Pos
	p.advance() // if / elif
	cond := p.parseTest()
	body := p.parseBlock()
	var orelse []NodeID
	switch {
	case p.at(TokenElif):
		orelse = []NodeID{p.parseIf()}
	case p.accept(TokenElse):
		orelse = p.parseBlock()
	}
	return p.add(&If{base: spanned(p.span(start)), Cond: cond, Body: body, Else: orelse})
}

func (p *Parser) parseWhile() NodeID {
	start := p.expect(TokenWhile).Pos
	cond := p.parseTest()
	body := p.parseBlock()
	var orelse []NodeID
	if p.accept(TokenElse) {
		orelse = p.parseBlock()
	}
	return p.add(&While{base: spanned(p.span(start)), Cond: cond, Body: body, Else: orelse})
}

func (p *Parser) parseFor(start Position, async bool) NodeID {
	p.expect(TokenFor)
	target := p.parseTargetList()
	p.expect(TokenIn)
	iter := p.parseExprList()
	body := p.parseBlock()
	var orelse []NodeID
	if p.accept(TokenElse) {
		orelse = p.parseBlock()
	}
	return p.add(&For{base: spanned(p.span(start)), Target: target, Iter: iter, Body: body, Else: orelse, Async: async})
}

func (p *Parser) parseTry() NodeID {
	start := p.expect(TokenTry).Pos
	body := p.parseBlock()

	var handlers []NodeID
	for p.at(TokenExcept) {
		hstart := p.advance().Pos
		typ := NoNode
		name := ""
		if !p.at(TokenColon) {
			typ = p.parseTest()
			if p.accept(TokenAs) {
				name = p.expectName()
			}
		}
		hbody := p.parseBlock()
		handlers = append(handlers, p.add(&ExceptHandler{base: spanned(p.span(hstart)), Type: typ, Name: name, Body: hbody}))
	}
	for i, h := range handlers {
		if p.node(h).(*ExceptHandler).Type == NoNode && i != len(handlers)-1 {
			p.errorAt(p.node(h).Span().Start, "default 'except:' must be last")
		}
	}

	var orelse, finally []NodeID
	if len(handlers) > 0 && p.accept(TokenElse) {
		orelse = p.parseBlock()
	}
	if p.accept(TokenFinally) {
		finally = p.parseBlock()
	}
	if len(handlers) == 0 && finally == nil {
		p.fail("expected 'except' or 'finally' block")
	}
	return p.add(&Try{base: spanned(p.span(start)), Body: body, Handlers: handlers, Else: orelse, Finally: finally})
}

func (p *Parser) parseWith(start Position, async bool) NodeID {
	p.expect(TokenWith)
	var items []WithItem
	for {
		item := WithItem{Context: p.parseTest(), Target: NoNode}
		if p.accept(TokenAs) {
			item.Target = p.parseTarget()
		}
		items = append(items, item)
		if !p.accept(TokenComma) {
			break
		}
	}
	body := p.parseBlock()
	return p.add(&With{base: spanned(p.span(start)), Items: items, Body: body, Async: async})
}

// looksLikeMatch reports whether a leading `match` identifier begins a
// match statement: the logical line must end with ':' followed by an
// indented block, and `match` must not itself be an assignment target or
// operand.
func (p *Parser) looksLikeMatch() bool {
	switch p.peek(1).Type {
	case TokenAssign, TokenDot, TokenComma, TokenColon, TokenNewline, TokenEOF, TokenRParen:
		return false
	}
	if _, ok := augmentedOps[p.peek(1).Type]; ok {
		return false
	}
	depth := 0
	for i := p.pos + 1; i < len(p.tokens)-1; i++ {
		switch p.tokens[i].Type {
		case TokenLParen, TokenLBracket, TokenLBrace:
			depth++
		case TokenRParen, TokenRBracket, TokenRBrace:
			depth--
		case TokenNewline:
			if depth == 0 {
				return p.tokens[i-1].Type == TokenColon && p.tokens[i+1].Type == TokenIndent
			}
		}
	}
	return false
}

func (p *Parser) parseMatch() NodeID {
	start := p.advance().Pos // match
	subject := p.parseExprList()
	p.expect(TokenColon)
	p.expect(TokenNewline)
	p.expect(TokenIndent)
	var cases []NodeID
	for !p.at(TokenDedent) && !p.at(TokenEOF) {
		if p.accept(TokenNewline) {
			continue
		}
		if !p.atName("case") {
			p.fail("expected 'case', got %s", p.tokDesc())
		}
		cases = append(cases, p.parseCase())
	}
	p.expect(TokenDedent)
	if len(cases) == 0 {
		p.failAt(start, "match statement has no cases")
	}
	return p.add(&Match{base: spanned(p.span(start)), Subject: subject, Cases: cases})
}

func (p *Parser) parseCase() NodeID {
	start := p.advance().Pos // case
	pattern := p.parsePattern()
	guard := NoNode
	if p.accept(TokenIf) {
		guard = p.parseTest()
	}
	body := p.parseBlock()
	return p.add(&Case{base: spanned(p.span(start)), Pattern: pattern, Guard: guard, Body: body})
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func (p *Parser) parseDottedName() string {
	name := p.expectName()
	for p.at(TokenDot) && p.peek(1).Type == TokenIdentifier {
		p.advance()
		name += "." + p.advance().Literal
	}
	return name
}

// parseImport parses `import a.b [as c], d`.
func (p *Parser) parseImport() NodeID {
	start := p.expect(TokenImport).Pos
	var names []ImportName
	for {
		n := ImportName{Name: p.parseDottedName()}
		if p.accept(TokenAs) {
			n.Alias = p.expectName()
		}
		names = append(names, n)
		if !p.accept(TokenComma) {
			break
		}
	}
	return p.add(&Import{base: spanned(p.span(start)), Names: names})
}

// parseFromImport parses `from [.]mod import x [as y], ...` or `import *`.
func (p *Parser) parseFromImport() NodeID {
	start := p.expect(TokenFrom).Pos
	module := ""
	for {
		if p.accept(TokenDot) {
			module += "."
		} else if p.accept(TokenEllipsis) {
			module += "..."
		} else {
			break
		}
	}
	if p.at(TokenIdentifier) {
		module += p.parseDottedName()
	}
	if module == "" {
		p.fail("expected module name")
	}
	p.expect(TokenImport)

	imp := &Import{Module: module, From: true}
	if p.accept(TokenStar) {
		imp.Star = true
	} else {
		paren := p.accept(TokenLParen)
		for {
			n := ImportName{Name: p.expectName()}
			if p.accept(TokenAs) {
				n.Alias = p.expectName()
			}
			imp.Names = append(imp.Names, n)
			if !p.accept(TokenComma) || (paren && p.at(TokenRParen)) {
				break
			}
		}
		if paren {
			p.expect(TokenRParen)
		}
	}
	imp.SpanVal = p.span(start)
	return p.add(imp)
}

// parseExport parses `export <def|class|assignment>` or `export a, b`.
func (p *Parser) parseExport() NodeID {
	start := p.expect(TokenExport).Pos
	var decl NodeID
	switch p.tok.Type {
	case TokenDef:
		decl = p.parseFunctionDef(nil, p.tok.Pos, false)
	case TokenAsync:
		decl = p.parseAsync(nil)
	case TokenClass:
		decl = p.parseClassDef(nil, p.tok.Pos)
	case TokenAt:
		decl = p.parseDecorated()
	case TokenIdentifier:
		if !p.hasTopLevelAssign() {
			names := []string{p.expectName()}
			for p.accept(TokenComma) {
				names = append(names, p.expectName())
			}
			p.expect(TokenNewline)
			return p.add(&Export{base: spanned(p.span(start)), Decl: NoNode, Names: names})
		}
		decl = p.parseAssignment(p.tok.Pos)
		p.expect(TokenNewline)
	default:
		p.fail("expected declaration or names after export, got %s", p.tokDesc())
	}
	return p.add(&Export{base: spanned(p.span(start)), Decl: decl})
}
