// Package parser implements the syntactic analyzer for gel source text.
//
// Unlike Monkey's infix-operator grammar, every gel form is a fully
// parenthesized prefix expression: `(head arg...)`. The parser is
// therefore recursive descent with head-token dispatch rather than
// Pratt/precedence climbing — there is no operator precedence to
// resolve, only "what does the head token mean". Special forms
// (define, let, cond, ...) each get their own parse function; anything
// else is parsed as a CallProc.
//
// Parse errors are collected rather than panicking, mirroring the
// teacher's Errors()-accumulation style, but each error carries the
// token.Position it occurred at (spec §7 requires fatal parse errors to
// point back at source).
package parser

import (
	"fmt"
	"strconv"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/token"
)

// ParseError is a single accumulated parse failure.
type ParseError struct {
	Position token.Position
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Position, e.Message)
}

// Parser turns a lexer.Lexer's token stream into ast.Expression trees.
type Parser struct {
	l      *lexer.Lexer
	errors []*ParseError

	cur  token.Token
	peek token.Token
}

// New creates a Parser reading from l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()
	return p
}

// Errors returns every parse error accumulated so far.
func (p *Parser) Errors() []*ParseError { return p.errors }

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.Next()
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	p.errors = append(p.errors, &ParseError{Position: pos, Message: fmt.Sprintf(format, args...)})
}

func (p *Parser) expect(kind token.Kind) bool {
	if p.cur.Kind != kind {
		p.errorf(p.cur.Position, "expected %s, got %s (%q)", kind, p.cur.Kind, p.cur.Literal)
		return false
	}
	return true
}

func (p *Parser) expectNext(kind token.Kind) bool {
	if !p.expect(kind) {
		return false
	}
	p.next()
	return true
}

// ParseScript parses every top-level form until EOF.
func (p *Parser) ParseScript() *ast.Script {
	script := &ast.Script{}
	for p.cur.Kind != token.EOF {
		expr := p.parseExpr()
		if expr != nil {
			script.Forms = append(script.Forms, expr)
		}
		p.next()
	}
	return script
}

// ParseExpr parses a single top-level expression; callers that want the
// whole program should use ParseScript instead.
func (p *Parser) ParseExpr() ast.Expression {
	return p.parseExpr()
}

// parseExpr dispatches on the current token to produce one Expression.
func (p *Parser) parseExpr() ast.Expression {
	switch p.cur.Kind {
	case token.LiteralLong:
		return p.parseLong()
	case token.LiteralDouble:
		return p.parseDouble()
	case token.LiteralString:
		return p.parseString()
	case token.True, token.False:
		return p.parseBool()
	case token.Ident:
		return p.parseIdentOrOperator()
	case token.Plus, token.Minus, token.Asterisk, token.Slash, token.Percent,
		token.Lt, token.Lte, token.Gt, token.Gte, token.Eq, token.NotEq:
		return p.parseIdentOrOperator()
	case token.Quote:
		return p.parseQuoted()
	case token.Lbracket:
		return p.parseArrayLiteral()
	case token.Lbrace:
		return p.parseMapLiteral()
	case token.Lparen:
		return p.parseForm()
	default:
		p.errorf(p.cur.Position, "unexpected token %s (%q)", p.cur.Kind, p.cur.Literal)
		return nil
	}
}

func (p *Parser) parseLong() ast.Expression {
	pos := p.cur.Position
	v, err := strconv.ParseInt(p.cur.Literal, 10, 64)
	if err != nil {
		p.errorf(pos, "invalid integer literal %q: %v", p.cur.Literal, err)
		return nil
	}
	return &ast.Literal{Position: pos, Value: &object.Long{Value: v}}
}

func (p *Parser) parseDouble() ast.Expression {
	pos := p.cur.Position
	v, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		p.errorf(pos, "invalid double literal %q: %v", p.cur.Literal, err)
		return nil
	}
	return &ast.Literal{Position: pos, Value: &object.Double{Value: v}}
}

func (p *Parser) parseString() ast.Expression {
	return &ast.Literal{Position: p.cur.Position, Value: &object.String{Value: p.cur.Literal}}
}

func (p *Parser) parseBool() ast.Expression {
	return &ast.Literal{Position: p.cur.Position, Value: &object.Bool{Value: p.cur.Kind == token.True}}
}

// parseIdentOrOperator handles a bare identifier or bare operator token
// appearing outside of head position — e.g. the `+` in `(map + xs)`,
// where it denotes the addition procedure as a value.
func (p *Parser) parseIdentOrOperator() ast.Expression {
	return &ast.Binding{Position: p.cur.Position, Name: p.cur.Literal}
}

// Binding doubles as a bare-name reference expression; it implements
// Expression via the same accept dispatch used for let-bindings.
var _ ast.Expression = (*ast.Binding)(nil)

func (p *Parser) parseQuoted() ast.Expression {
	pos := p.cur.Position
	p.next()
	datum := p.parseExpr()
	return &ast.Quoted{Position: pos, Datum: datum}
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	pos := p.cur.Position
	p.next() // consume '['
	var elems []ast.Expression
	for p.cur.Kind != token.Rbracket && p.cur.Kind != token.EOF {
		elems = append(elems, p.parseExpr())
		p.next()
	}
	if !p.expect(token.Rbracket) {
		return nil
	}
	return &ast.ListExpr{Position: pos, Elements: elems}
}

func (p *Parser) parseMapLiteral() ast.Expression {
	pos := p.cur.Position
	p.next() // consume '{'
	var keys, vals []ast.Expression
	for p.cur.Kind != token.Rbrace && p.cur.Kind != token.EOF {
		keys = append(keys, p.parseExpr())
		p.next()
		if p.cur.Kind == token.Rbrace {
			p.errorf(pos, "map literal has odd number of elements")
			break
		}
		vals = append(vals, p.parseExpr())
		p.next()
	}
	if !p.expect(token.Rbrace) {
		return nil
	}
	return &ast.NewMapExpr{Position: pos, Keys: keys, Values: vals}
}

// parseForm parses a parenthesized form, dispatching on its head token.
func (p *Parser) parseForm() ast.Expression {
	pos := p.cur.Position
	p.next() // consume '('

	var result ast.Expression
	switch p.cur.Kind {
	case token.Define:
		result = p.parseLocalDef(pos)
	case token.Defn:
		result = p.parseDefn(pos)
	case token.Fn:
		result = p.parseFn(pos, "")
	case token.Defmacro:
		result = p.parseDefmacro(pos)
	case token.Begin:
		result = p.parseBegin(pos)
	case token.Cond:
		result = p.parseCond(pos)
	case token.Case:
		result = p.parseCase(pos)
	case token.When:
		result = p.parseWhen(pos)
	case token.While:
		result = p.parseWhile(pos)
	case token.Let:
		result = p.parseLet(pos)
	case token.LetRec:
		result = p.parseLetRec(pos)
	case token.Set:
		result = p.parseSet(pos)
	case token.Throw:
		result = p.parseThrow(pos)
	case token.Import:
		result = p.parseImport(pos)
	case token.Module:
		result = p.parseModule(pos)
	case token.New:
		result = p.parseNew(pos)
	case token.NewMap:
		result = p.parseNewMapForm(pos)
	case token.Cast:
		result = p.parseCast(pos)
	case token.InstanceOf:
		result = p.parseInstanceOf(pos)
	case token.LoadInstanceMethod:
		result = p.parseLoadInstanceMethod(pos)
	case token.List:
		result = p.parseListForm(pos)
	case token.Rx:
		result = p.parseRxOp(pos)
	case token.Plus, token.Minus, token.Asterisk, token.Slash, token.Percent,
		token.Lt, token.Lte, token.Gt, token.Gte, token.Eq, token.NotEq:
		result = p.parseOperatorCall(pos)
	default:
		result = p.parseCallProc(pos)
	}

	if !p.expect(token.Rparen) {
		return nil
	}
	return result
}

func (p *Parser) parseBody(stop ...token.Kind) []ast.Expression {
	var body []ast.Expression
	for !p.curIsOneOf(stop...) && p.cur.Kind != token.EOF {
		body = append(body, p.parseExpr())
		p.next()
	}
	return body
}

func (p *Parser) curIsOneOf(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.cur.Kind == k {
			return true
		}
	}
	return false
}

func (p *Parser) parseLocalDef(pos token.Position) ast.Expression {
	p.next() // 'define'
	name := p.parseNameToken()
	p.next()
	value := p.parseExpr()
	p.next()
	return &ast.LocalDef{Position: pos, Name: name, Value: value}
}

func (p *Parser) parseNameToken() string {
	name := p.cur.Literal
	if p.cur.Kind != token.Ident && p.cur.Kind != token.Else {
		p.errorf(p.cur.Position, "expected identifier, got %s (%q)", p.cur.Kind, p.cur.Literal)
	}
	return name
}

func (p *Parser) parseParamList() []string {
	if !p.expect(token.Lparen) {
		return nil
	}
	p.next()
	var params []string
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		params = append(params, p.cur.Literal)
		p.next()
	}
	p.expect(token.Rparen)
	return params
}

func (p *Parser) parseDefn(pos token.Position) ast.Expression {
	p.next() // 'defn'
	name := p.parseNameToken()
	p.next()
	return p.parseFn(pos, name)
}

// parseFn parses the shared (args...) doc? body... tail of both `fn`
// and `defn` forms. name is empty for an anonymous `fn`.
func (p *Parser) parseFn(pos token.Position, name string) ast.Expression {
	if name != "" {
		// already past 'defn name'; cur is at the param list
	} else {
		p.next() // consume 'fn'
	}
	params := p.parseParamList()
	p.next()

	var docs string
	if p.cur.Kind == token.LiteralString {
		docs = p.cur.Literal
		p.next()
	}

	body := p.parseBody(token.Rparen)
	return &ast.LambdaDef{Position: pos, Name: name, Args: params, Docs: docs, Body: body}
}

func (p *Parser) parseDefmacro(pos token.Position) ast.Expression {
	p.next() // 'defmacro'
	name := p.parseNameToken()
	p.next()
	params := p.parseParamList()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.MacroDef{Position: pos, Name: name, Args: params, Body: body}
}

func (p *Parser) parseBegin(pos token.Position) ast.Expression {
	p.next() // 'begin'
	body := p.parseBody(token.Rparen)
	return &ast.Begin{Position: pos, Body: body}
}

func (p *Parser) parseCond(pos token.Position) ast.Expression {
	p.next() // 'cond'
	var clauses []*ast.Clause
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		clauses = append(clauses, p.parseClause())
		p.next()
	}
	return &ast.Cond{Position: pos, Clauses: clauses}
}

func (p *Parser) parseClause() *ast.Clause {
	pos := p.cur.Position
	if !p.expectNext(token.Lparen) {
		return &ast.Clause{Position: pos}
	}
	var test ast.Expression
	if p.cur.Kind == token.Else {
		p.next()
	} else {
		test = p.parseExpr()
		p.next()
	}
	body := p.parseBody(token.Rparen)
	p.expect(token.Rparen)
	return &ast.Clause{Position: pos, Test: test, Body: body}
}

func (p *Parser) parseCase(pos token.Position) ast.Expression {
	p.next() // 'case'
	key := p.parseExpr()
	p.next()
	var clauses []*ast.CaseClause
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		clauses = append(clauses, p.parseCaseClause())
		p.next()
	}
	return &ast.Case{Position: pos, Key: key, Clauses: clauses}
}

func (p *Parser) parseCaseClause() *ast.CaseClause {
	pos := p.cur.Position
	if !p.expectNext(token.Lparen) {
		return &ast.CaseClause{Position: pos}
	}
	var datums []ast.Expression
	if p.cur.Kind == token.Else {
		p.next()
	} else {
		if !p.expectNext(token.Lparen) {
			return &ast.CaseClause{Position: pos}
		}
		for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
			datums = append(datums, p.parseExpr())
			p.next()
		}
		p.expectNext(token.Rparen)
	}
	body := p.parseBody(token.Rparen)
	p.expect(token.Rparen)
	return &ast.CaseClause{Position: pos, Datums: datums, Body: body}
}

func (p *Parser) parseWhen(pos token.Position) ast.Expression {
	p.next() // 'when'
	test := p.parseExpr()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.When{Position: pos, Test: test, Body: body}
}

func (p *Parser) parseWhile(pos token.Position) ast.Expression {
	p.next() // 'while'
	test := p.parseExpr()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.While{Position: pos, Test: test, Body: body}
}

func (p *Parser) parseBindings() []*ast.Binding {
	if !p.expect(token.Lparen) {
		return nil
	}
	p.next()
	var bindings []*ast.Binding
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		bpos := p.cur.Position
		if !p.expect(token.Lparen) {
			break
		}
		p.next()
		name := p.parseNameToken()
		p.next()
		value := p.parseExpr()
		p.next()
		p.expect(token.Rparen)
		p.next()
		bindings = append(bindings, &ast.Binding{Position: bpos, Name: name, Value: value})
	}
	p.expect(token.Rparen)
	return bindings
}

func (p *Parser) parseLet(pos token.Position) ast.Expression {
	p.next() // 'let'
	bindings := p.parseBindings()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.Let{Position: pos, Bindings: bindings, Body: body}
}

func (p *Parser) parseLetRec(pos token.Position) ast.Expression {
	p.next() // 'letrec'
	bindings := p.parseBindings()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.LetRec{Position: pos, Bindings: bindings, Body: body}
}

func (p *Parser) parseSet(pos token.Position) ast.Expression {
	p.next() // 'set!'
	name := p.parseNameToken()
	p.next()
	value := p.parseExpr()
	p.next()
	return &ast.SetExpr{Position: pos, Name: name, Value: value}
}

func (p *Parser) parseThrow(pos token.Position) ast.Expression {
	p.next() // 'throw'
	value := p.parseExpr()
	p.next()
	return &ast.ThrowExpr{Position: pos, Value: value}
}

func (p *Parser) parseImport(pos token.Position) ast.Expression {
	p.next() // 'import'
	name := p.parseNameToken()
	p.next()
	return &ast.ImportExpr{Position: pos, Name: name}
}

func (p *Parser) parseModule(pos token.Position) ast.Expression {
	p.next() // 'module'
	name := p.parseNameToken()
	p.next()
	body := p.parseBody(token.Rparen)
	return &ast.ModuleDef{Position: pos, Name: name, Body: body}
}

func (p *Parser) parseNew(pos token.Position) ast.Expression {
	p.next() // 'new'
	className := p.parseNameToken()
	p.next()
	var args []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		args = append(args, p.parseExpr())
		p.next()
	}
	return &ast.NewExpr{Position: pos, ClassName: className, Args: args}
}

func (p *Parser) parseNewMapForm(pos token.Position) ast.Expression {
	p.next() // 'new-map'
	var keys, vals []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		keys = append(keys, p.parseExpr())
		p.next()
		if p.cur.Kind == token.Rparen {
			p.errorf(pos, "new-map requires an even number of key/value forms")
			break
		}
		vals = append(vals, p.parseExpr())
		p.next()
	}
	return &ast.NewMapExpr{Position: pos, Keys: keys, Values: vals}
}

func (p *Parser) parseCast(pos token.Position) ast.Expression {
	p.next() // 'cast'
	typeName := p.parseNameToken()
	p.next()
	value := p.parseExpr()
	p.next()
	return &ast.CastExpr{Position: pos, Type: typeName, Value: value}
}

func (p *Parser) parseInstanceOf(pos token.Position) ast.Expression {
	p.next() // 'instanceof'
	typeName := p.parseNameToken()
	p.next()
	value := p.parseExpr()
	p.next()
	return &ast.InstanceOfExpr{Position: pos, Type: typeName, Value: value}
}

func (p *Parser) parseLoadInstanceMethod(pos token.Position) ast.Expression {
	p.next() // 'load-instance-method'
	receiver := p.parseExpr()
	p.next()
	method := p.parseNameToken()
	p.next()
	return &ast.LoadInstanceMethodExpr{Position: pos, Receiver: receiver, Method: method}
}

func (p *Parser) parseListForm(pos token.Position) ast.Expression {
	p.next() // 'list'
	var elems []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		elems = append(elems, p.parseExpr())
		p.next()
	}
	return &ast.ListExpr{Position: pos, Elements: elems}
}

func (p *Parser) parseRxOp(pos token.Position) ast.Expression {
	p.next() // 'rx'
	op := p.parseNameToken()
	p.next()
	var args []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		args = append(args, p.parseExpr())
		p.next()
	}
	return &ast.RxOpExpr{Position: pos, Op: op, Args: args}
}

// parseOperatorCall handles (+ a b), (< a b) and so on: the head token
// is an operator, dispatched to BinaryOp/UnaryOp by argument count.
func (p *Parser) parseOperatorCall(pos token.Position) ast.Expression {
	op := p.cur.Kind
	p.next()
	var args []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		args = append(args, p.parseExpr())
		p.next()
	}
	switch len(args) {
	case 1:
		return &ast.UnaryOp{Position: pos, Op: op, Value: args[0]}
	case 2:
		return &ast.BinaryOp{Position: pos, Op: op, Left: args[0], Right: args[1]}
	default:
		p.errorf(pos, "operator %s expects 1 or 2 arguments, got %d", op, len(args))
		return nil
	}
}

// parseCallProc handles the general case: (target arg...).
func (p *Parser) parseCallProc(pos token.Position) ast.Expression {
	target := p.parseExpr()
	p.next()
	var args []ast.Expression
	for p.cur.Kind != token.Rparen && p.cur.Kind != token.EOF {
		args = append(args, p.parseExpr())
		p.next()
	}
	return &ast.CallProc{Position: pos, Target: target, Args: args}
}
