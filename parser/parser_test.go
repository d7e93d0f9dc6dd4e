package parser

import (
	"testing"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/object"
)

func parseOne(t *testing.T, input string) ast.Expression {
	t.Helper()
	p := New(lexer.New(input))
	expr := p.ParseExpr()
	if len(p.Errors()) != 0 {
		t.Fatalf("unexpected parse errors: %v", p.Errors())
	}
	return expr
}

func TestParseLocalDef(t *testing.T) {
	expr := parseOne(t, "(define x 5)")
	def, ok := expr.(*ast.LocalDef)
	if !ok {
		t.Fatalf("expected *ast.LocalDef, got %T", expr)
	}
	if def.Name != "x" {
		t.Fatalf("expected name x, got %s", def.Name)
	}
	lit, ok := def.Value.(*ast.Literal)
	if !ok {
		t.Fatalf("expected *ast.Literal value, got %T", def.Value)
	}
	long, ok := lit.Value.(*object.Long)
	if !ok || long.Value != 5 {
		t.Fatalf("expected Long(5), got %v", lit.Value)
	}
}

func TestParseBinaryOp(t *testing.T) {
	expr := parseOne(t, "(+ 1 2)")
	bin, ok := expr.(*ast.BinaryOp)
	if !ok {
		t.Fatalf("expected *ast.BinaryOp, got %T", expr)
	}
	if bin.Op != "+" {
		t.Fatalf("expected op +, got %s", bin.Op)
	}
}

func TestParseUnaryOp(t *testing.T) {
	expr := parseOne(t, "(- 5)")
	un, ok := expr.(*ast.UnaryOp)
	if !ok {
		t.Fatalf("expected *ast.UnaryOp, got %T", expr)
	}
	if un.Op != "-" {
		t.Fatalf("expected op -, got %s", un.Op)
	}
}

func TestParseDefn(t *testing.T) {
	expr := parseOne(t, `(defn add (a b) "adds two numbers" (+ a b))`)
	fn, ok := expr.(*ast.LambdaDef)
	if !ok {
		t.Fatalf("expected *ast.LambdaDef, got %T", expr)
	}
	if fn.Name != "add" {
		t.Fatalf("expected name add, got %s", fn.Name)
	}
	if len(fn.Args) != 2 || fn.Args[0] != "a" || fn.Args[1] != "b" {
		t.Fatalf("unexpected args %v", fn.Args)
	}
	if fn.Docs != "adds two numbers" {
		t.Fatalf("unexpected docs %q", fn.Docs)
	}
	if len(fn.Body) != 1 {
		t.Fatalf("expected 1 body form, got %d", len(fn.Body))
	}
}

func TestParseLet(t *testing.T) {
	expr := parseOne(t, "(let ((x 1) (y 2)) (+ x y))")
	let, ok := expr.(*ast.Let)
	if !ok {
		t.Fatalf("expected *ast.Let, got %T", expr)
	}
	if len(let.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(let.Bindings))
	}
	if let.Bindings[0].Name != "x" || let.Bindings[1].Name != "y" {
		t.Fatalf("unexpected binding names: %+v", let.Bindings)
	}
}

func TestParseCond(t *testing.T) {
	expr := parseOne(t, "(cond ((< x 0) 0) (else x))")
	cond, ok := expr.(*ast.Cond)
	if !ok {
		t.Fatalf("expected *ast.Cond, got %T", expr)
	}
	if len(cond.Clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(cond.Clauses))
	}
	if cond.Clauses[1].Test != nil {
		t.Fatalf("expected else clause to have nil test")
	}
}

func TestParseSetExpr(t *testing.T) {
	expr := parseOne(t, "(set! x 10)")
	set, ok := expr.(*ast.SetExpr)
	if !ok {
		t.Fatalf("expected *ast.SetExpr, got %T", expr)
	}
	if set.Name != "x" {
		t.Fatalf("expected name x, got %s", set.Name)
	}
}

func TestParseThrow(t *testing.T) {
	expr := parseOne(t, `(throw "boom")`)
	if _, ok := expr.(*ast.ThrowExpr); !ok {
		t.Fatalf("expected *ast.ThrowExpr, got %T", expr)
	}
}

func TestParseNewExpr(t *testing.T) {
	expr := parseOne(t, "(new Point 1 2)")
	n, ok := expr.(*ast.NewExpr)
	if !ok {
		t.Fatalf("expected *ast.NewExpr, got %T", expr)
	}
	if n.ClassName != "Point" || len(n.Args) != 2 {
		t.Fatalf("unexpected NewExpr %+v", n)
	}
}

func TestParseInstanceOf(t *testing.T) {
	expr := parseOne(t, "(instanceof Point p)")
	io, ok := expr.(*ast.InstanceOfExpr)
	if !ok {
		t.Fatalf("expected *ast.InstanceOfExpr, got %T", expr)
	}
	if io.Type != "Point" {
		t.Fatalf("unexpected type %s", io.Type)
	}
}

func TestParseCallProc(t *testing.T) {
	expr := parseOne(t, "(foo 1 2 3)")
	call, ok := expr.(*ast.CallProc)
	if !ok {
		t.Fatalf("expected *ast.CallProc, got %T", expr)
	}
	if len(call.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(call.Args))
	}
}

func TestParseArrayLiteral(t *testing.T) {
	expr := parseOne(t, "[1 2 3]")
	lst, ok := expr.(*ast.ListExpr)
	if !ok {
		t.Fatalf("expected *ast.ListExpr, got %T", expr)
	}
	if len(lst.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(lst.Elements))
	}
}

func TestParseQuoted(t *testing.T) {
	expr := parseOne(t, "'(1 2)")
	q, ok := expr.(*ast.Quoted)
	if !ok {
		t.Fatalf("expected *ast.Quoted, got %T", expr)
	}
	if _, ok := q.Datum.(*ast.CallProc); !ok {
		t.Fatalf("expected quoted datum to parse as a form, got %T", q.Datum)
	}
}

func TestParserReportsErrors(t *testing.T) {
	p := New(lexer.New("(define)"))
	p.ParseExpr()
	if len(p.Errors()) == 0 {
		t.Fatalf("expected parse errors for malformed define")
	}
}
