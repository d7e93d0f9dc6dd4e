// Package ast defines the abstract syntax tree produced by the gel
// parser and rewritten in place by the macro expander.
//
// Every node is a tagged Expression implementation that accepts a
// Visitor — there is no virtual-dispatch class hierarchy here, just one
// struct type per variant and one method per variant on Visitor. IsX/
// AsX-style queries become Go type switches at the call site instead of
// helper methods, per the "variant dispatch replacing inheritance"
// re-architecture note.
package ast

import (
	"strings"

	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/token"
)

// Expression is the interface every AST node implements.
type Expression interface {
	// Pos returns the source position the node was parsed from.
	Pos() token.Position
	// String renders the node for diagnostics and the disassembler.
	String() string
	// Accept dispatches to the matching Visitor method.
	Accept(v Visitor) error
}

// Visitor has one method per Expression variant. Implementations that
// don't care about most variants embed *BaseVisitor and override only
// what they need.
type Visitor interface {
	VisitLiteral(*Literal) error
	VisitBinding(*Binding) error
	VisitBinaryOp(*BinaryOp) error
	VisitUnaryOp(*UnaryOp) error
	VisitCallProc(*CallProc) error
	VisitBegin(*Begin) error
	VisitCond(*Cond) error
	VisitWhen(*When) error
	VisitWhile(*While) error
	VisitCase(*Case) error
	VisitQuoted(*Quoted) error
	VisitLet(*Let) error
	VisitLetRec(*LetRec) error
	VisitLambdaDef(*LambdaDef) error
	VisitMacroDef(*MacroDef) error
	VisitLocalDef(*LocalDef) error
	VisitModuleDef(*ModuleDef) error
	VisitImportExpr(*ImportExpr) error
	VisitSetExpr(*SetExpr) error
	VisitThrowExpr(*ThrowExpr) error
	VisitNewExpr(*NewExpr) error
	VisitNewMapExpr(*NewMapExpr) error
	VisitCastExpr(*CastExpr) error
	VisitInstanceOfExpr(*InstanceOfExpr) error
	VisitLoadInstanceMethodExpr(*LoadInstanceMethodExpr) error
	VisitListExpr(*ListExpr) error
	VisitRxOpExpr(*RxOpExpr) error
}

// Clause is a single test/body pair inside a Cond.
type Clause struct {
	Position token.Position
	Test     Expression // nil for the trailing else clause
	Body     []Expression
}

func (c *Clause) String() string {
	var b strings.Builder
	b.WriteString("(")
	if c.Test != nil {
		b.WriteString(c.Test.String())
	} else {
		b.WriteString("else")
	}
	for _, e := range c.Body {
		b.WriteString(" ")
		b.WriteString(e.String())
	}
	b.WriteString(")")
	return b.String()
}

// Binding is a single name/value pair inside a Let/LetRec form.
type Binding struct {
	Position token.Position
	Name     string
	Value    Expression
}

func (b *Binding) Pos() token.Position { return b.Position }
func (b *Binding) String() string      { return "(" + b.Name + " " + b.Value.String() + ")" }
func (b *Binding) Accept(v Visitor) error { return v.VisitBinding(b) }

// Literal wraps an already-constructed object.Object — booleans,
// numbers, strings, and symbols are built directly by the parser.
type Literal struct {
	Position token.Position
	Value    object.Object
}

func (l *Literal) Pos() token.Position   { return l.Position }
func (l *Literal) String() string        { return l.Value.Inspect() }
func (l *Literal) Accept(v Visitor) error { return v.VisitLiteral(l) }

// BinaryOp is a two-operand operator expression: (op left right).
type BinaryOp struct {
	Position token.Position
	Op       token.Kind
	Left     Expression
	Right    Expression
}

func (b *BinaryOp) Pos() token.Position { return b.Position }
func (b *BinaryOp) String() string {
	return "(" + string(b.Op) + " " + b.Left.String() + " " + b.Right.String() + ")"
}
func (b *BinaryOp) Accept(v Visitor) error { return v.VisitBinaryOp(b) }

// UnaryOp is a single-operand operator expression: (op value).
type UnaryOp struct {
	Position token.Position
	Op       token.Kind
	Value    Expression
}

func (u *UnaryOp) Pos() token.Position    { return u.Position }
func (u *UnaryOp) String() string         { return "(" + string(u.Op) + " " + u.Value.String() + ")" }
func (u *UnaryOp) Accept(v Visitor) error { return v.VisitUnaryOp(u) }

// CallProc is a procedure call: (target arg...). Target is usually a
// Literal symbol but may be any expression producing a Procedure.
type CallProc struct {
	Position token.Position
	Target   Expression
	Args     []Expression
}

func (c *CallProc) Pos() token.Position { return c.Position }
func (c *CallProc) String() string {
	parts := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	return "(" + c.Target.String() + " " + strings.Join(parts, " ") + ")"
}
func (c *CallProc) Accept(v Visitor) error { return v.VisitCallProc(c) }

// Begin is a sequence of expressions evaluated for effect, with the
// last one (if any) producing the sequence's value.
type Begin struct {
	Position token.Position
	Body     []Expression
}

func (b *Begin) Pos() token.Position { return b.Position }
func (b *Begin) String() string {
	parts := make([]string, 0, len(b.Body))
	for _, e := range b.Body {
		parts = append(parts, e.String())
	}
	return "(begin " + strings.Join(parts, " ") + ")"
}
func (b *Begin) Accept(v Visitor) error { return v.VisitBegin(b) }

// Cond is a multi-way conditional: (cond (test body...)... (else body...)?).
type Cond struct {
	Position token.Position
	Clauses  []*Clause
}

func (c *Cond) Pos() token.Position { return c.Position }
func (c *Cond) String() string {
	parts := make([]string, 0, len(c.Clauses))
	for _, cl := range c.Clauses {
		parts = append(parts, cl.String())
	}
	return "(cond " + strings.Join(parts, " ") + ")"
}
func (c *Cond) Accept(v Visitor) error { return v.VisitCond(c) }

// When is (when test body...): body runs only if test is truthy.
type When struct {
	Position token.Position
	Test     Expression
	Body     []Expression
}

func (w *When) Pos() token.Position { return w.Position }
func (w *When) String() string {
	parts := make([]string, 0, len(w.Body))
	for _, e := range w.Body {
		parts = append(parts, e.String())
	}
	return "(when " + w.Test.String() + " " + strings.Join(parts, " ") + ")"
}
func (w *When) Accept(v Visitor) error { return v.VisitWhen(w) }

// While is (while test body...), looping while test is truthy.
type While struct {
	Position token.Position
	Test     Expression
	Body     []Expression
}

func (w *While) Pos() token.Position { return w.Position }
func (w *While) String() string {
	parts := make([]string, 0, len(w.Body))
	for _, e := range w.Body {
		parts = append(parts, e.String())
	}
	return "(while " + w.Test.String() + " " + strings.Join(parts, " ") + ")"
}
func (w *While) Accept(v Visitor) error { return v.VisitWhile(w) }

// Case is (case key (datum... body...)... (else body...)?).
type CaseClause struct {
	Position token.Position
	Datums   []Expression // nil for the else clause
	Body     []Expression
}

// Case dispatches on structural equality of Key against each clause's
// datum list.
type Case struct {
	Position token.Position
	Key      Expression
	Clauses  []*CaseClause
}

func (c *Case) Pos() token.Position   { return c.Position }
func (c *Case) String() string        { return "(case " + c.Key.String() + " ...)" }
func (c *Case) Accept(v Visitor) error { return v.VisitCase(c) }

// Quoted wraps an unevaluated datum expression, e.g. '(1 2 3).
type Quoted struct {
	Position token.Position
	Datum    Expression
}

func (q *Quoted) Pos() token.Position   { return q.Position }
func (q *Quoted) String() string        { return "'" + q.Datum.String() }
func (q *Quoted) Accept(v Visitor) error { return v.VisitQuoted(q) }

// Let is (let ((name value)...) body...): bindings are evaluated
// against the enclosing scope, then bound in a fresh child scope.
type Let struct {
	Position token.Position
	Bindings []*Binding
	Body     []Expression
}

func (l *Let) Pos() token.Position { return l.Position }
func (l *Let) String() string {
	parts := make([]string, 0, len(l.Bindings))
	for _, b := range l.Bindings {
		parts = append(parts, b.String())
	}
	body := make([]string, 0, len(l.Body))
	for _, e := range l.Body {
		body = append(body, e.String())
	}
	return "(let (" + strings.Join(parts, " ") + ") " + strings.Join(body, " ") + ")"
}
func (l *Let) Accept(v Visitor) error { return v.VisitLet(l) }

// LetRec is like Let, but bindings may refer to one another (and to
// themselves, for recursive lambdas).
type LetRec struct {
	Position token.Position
	Bindings []*Binding
	Body     []Expression
}

func (l *LetRec) Pos() token.Position { return l.Position }
func (l *LetRec) String() string {
	parts := make([]string, 0, len(l.Bindings))
	for _, b := range l.Bindings {
		parts = append(parts, b.String())
	}
	body := make([]string, 0, len(l.Body))
	for _, e := range l.Body {
		body = append(body, e.String())
	}
	return "(letrec (" + strings.Join(parts, " ") + ") " + strings.Join(body, " ") + ")"
}
func (l *LetRec) Accept(v Visitor) error { return v.VisitLetRec(l) }

// LambdaDef is (fn (args...) doc? body...) or the named form produced
// by (defn name (args...) doc? body...).
type LambdaDef struct {
	Position token.Position
	Name     string // empty for an anonymous fn
	Args     []string
	Docs     string
	Body     []Expression
}

func (l *LambdaDef) Pos() token.Position { return l.Position }
func (l *LambdaDef) String() string {
	return "(fn" + nameSuffix(l.Name) + " (" + strings.Join(l.Args, " ") + ") ...)"
}
func (l *LambdaDef) Accept(v Visitor) error { return v.VisitLambdaDef(l) }

func nameSuffix(name string) string {
	if name == "" {
		return ""
	}
	return " " + name
}

// MacroDef is (defmacro name (args...) body...): the body produces a
// replacement AST fragment at expansion time, it is never compiled.
type MacroDef struct {
	Position token.Position
	Name     string
	Args     []string
	Body     []Expression
}

func (m *MacroDef) Pos() token.Position   { return m.Position }
func (m *MacroDef) String() string        { return "(defmacro " + m.Name + " (" + strings.Join(m.Args, " ") + ") ...)" }
func (m *MacroDef) Accept(v Visitor) error { return v.VisitMacroDef(m) }

// LocalDef is (define name value): introduces or rebinds a local in the
// current scope.
type LocalDef struct {
	Position token.Position
	Name     string
	Value    Expression
}

func (l *LocalDef) Pos() token.Position   { return l.Position }
func (l *LocalDef) String() string        { return "(define " + l.Name + " " + l.Value.String() + ")" }
func (l *LocalDef) Accept(v Visitor) error { return v.VisitLocalDef(l) }

// ModuleDef is (module name body...): a named grouping of top-level
// forms, merged into the importing scope under that name.
type ModuleDef struct {
	Position token.Position
	Name     string
	Body     []Expression
}

func (m *ModuleDef) Pos() token.Position   { return m.Position }
func (m *ModuleDef) String() string        { return "(module " + m.Name + " ...)" }
func (m *ModuleDef) Accept(v Visitor) error { return v.VisitModuleDef(m) }

// ImportExpr is (import name): loads and merges a module by symbol.
type ImportExpr struct {
	Position token.Position
	Name     string
}

func (i *ImportExpr) Pos() token.Position   { return i.Position }
func (i *ImportExpr) String() string        { return "(import " + i.Name + ")" }
func (i *ImportExpr) Accept(v Visitor) error { return v.VisitImportExpr(i) }

// SetExpr is (set! name value): rebinds an existing local, walking the
// scope chain.
type SetExpr struct {
	Position token.Position
	Name     string
	Value    Expression
}

func (s *SetExpr) Pos() token.Position   { return s.Position }
func (s *SetExpr) String() string        { return "(set! " + s.Name + " " + s.Value.String() + ")" }
func (s *SetExpr) Accept(v Visitor) error { return v.VisitSetExpr(s) }

// ThrowExpr is (throw value): raises value as an Error.
type ThrowExpr struct {
	Position token.Position
	Value    Expression
}

func (t *ThrowExpr) Pos() token.Position   { return t.Position }
func (t *ThrowExpr) String() string        { return "(throw " + t.Value.String() + ")" }
func (t *ThrowExpr) Accept(v Visitor) error { return v.VisitThrowExpr(t) }

// NewExpr is (new ClassName arg...): allocates an instance of a
// registered Class, binding Args to its fields in declaration order.
type NewExpr struct {
	Position  token.Position
	ClassName string
	Args      []Expression
}

func (n *NewExpr) Pos() token.Position { return n.Position }
func (n *NewExpr) String() string {
	parts := make([]string, 0, len(n.Args))
	for _, a := range n.Args {
		parts = append(parts, a.String())
	}
	return "(new " + n.ClassName + " " + strings.Join(parts, " ") + ")"
}
func (n *NewExpr) Accept(v Visitor) error { return v.VisitNewExpr(n) }

// NewMapExpr is (new-map key value...): constructs a Map literal.
type NewMapExpr struct {
	Position token.Position
	Keys     []Expression
	Values   []Expression
}

func (n *NewMapExpr) Pos() token.Position   { return n.Position }
func (n *NewMapExpr) String() string        { return "(new-map ...)" }
func (n *NewMapExpr) Accept(v Visitor) error { return v.VisitNewMapExpr(n) }

// CastExpr is (cast type value): coerces value to the named type.
type CastExpr struct {
	Position token.Position
	Type     string
	Value    Expression
}

func (c *CastExpr) Pos() token.Position   { return c.Position }
func (c *CastExpr) String() string        { return "(cast " + c.Type + " " + c.Value.String() + ")" }
func (c *CastExpr) Accept(v Visitor) error { return v.VisitCastExpr(c) }

// InstanceOfExpr is (instanceof type value): tests the runtime class of
// value against the named type, producing a Bool.
type InstanceOfExpr struct {
	Position token.Position
	Type     string
	Value    Expression
}

func (i *InstanceOfExpr) Pos() token.Position { return i.Position }
func (i *InstanceOfExpr) String() string {
	return "(instanceof " + i.Type + " " + i.Value.String() + ")"
}
func (i *InstanceOfExpr) Accept(v Visitor) error { return v.VisitInstanceOfExpr(i) }

// LoadInstanceMethodExpr is (load-instance-method receiver name):
// resolves a bound method Procedure off an instance's class.
type LoadInstanceMethodExpr struct {
	Position token.Position
	Receiver Expression
	Method   string
}

func (l *LoadInstanceMethodExpr) Pos() token.Position { return l.Position }
func (l *LoadInstanceMethodExpr) String() string {
	return "(load-instance-method " + l.Receiver.String() + " " + l.Method + ")"
}
func (l *LoadInstanceMethodExpr) Accept(v Visitor) error { return v.VisitLoadInstanceMethodExpr(l) }

// ListExpr is (list elem...): constructs a proper Pair-chain list,
// distinct from an Array.
type ListExpr struct {
	Position token.Position
	Elements []Expression
}

func (l *ListExpr) Pos() token.Position { return l.Position }
func (l *ListExpr) String() string {
	parts := make([]string, 0, len(l.Elements))
	for _, e := range l.Elements {
		parts = append(parts, e.String())
	}
	return "(list " + strings.Join(parts, " ") + ")"
}
func (l *ListExpr) Accept(v Visitor) error { return v.VisitListExpr(l) }

// RxOpExpr is (rx op function observable): a reactive-stream operator
// call, only legal when the runtime was initialized with reactive
// support enabled.
type RxOpExpr struct {
	Position token.Position
	Op       string
	Args     []Expression
}

func (r *RxOpExpr) Pos() token.Position { return r.Position }
func (r *RxOpExpr) String() string {
	parts := make([]string, 0, len(r.Args))
	for _, a := range r.Args {
		parts = append(parts, a.String())
	}
	return "(rx " + r.Op + " " + strings.Join(parts, " ") + ")"
}
func (r *RxOpExpr) Accept(v Visitor) error { return v.VisitRxOpExpr(r) }

// BaseVisitor implements Visitor by doing nothing; embed it to write a
// Visitor that only cares about a handful of variants.
type BaseVisitor struct{}

func (BaseVisitor) VisitLiteral(*Literal) error                               { return nil }
func (BaseVisitor) VisitBinding(*Binding) error                               { return nil }
func (BaseVisitor) VisitBinaryOp(*BinaryOp) error                             { return nil }
func (BaseVisitor) VisitUnaryOp(*UnaryOp) error                               { return nil }
func (BaseVisitor) VisitCallProc(*CallProc) error                             { return nil }
func (BaseVisitor) VisitBegin(*Begin) error                                   { return nil }
func (BaseVisitor) VisitCond(*Cond) error                                     { return nil }
func (BaseVisitor) VisitWhen(*When) error                                     { return nil }
func (BaseVisitor) VisitWhile(*While) error                                   { return nil }
func (BaseVisitor) VisitCase(*Case) error                                     { return nil }
func (BaseVisitor) VisitQuoted(*Quoted) error                                 { return nil }
func (BaseVisitor) VisitLet(*Let) error                                       { return nil }
func (BaseVisitor) VisitLetRec(*LetRec) error                                 { return nil }
func (BaseVisitor) VisitLambdaDef(*LambdaDef) error                           { return nil }
func (BaseVisitor) VisitMacroDef(*MacroDef) error                             { return nil }
func (BaseVisitor) VisitLocalDef(*LocalDef) error                             { return nil }
func (BaseVisitor) VisitModuleDef(*ModuleDef) error                          { return nil }
func (BaseVisitor) VisitImportExpr(*ImportExpr) error                        { return nil }
func (BaseVisitor) VisitSetExpr(*SetExpr) error                               { return nil }
func (BaseVisitor) VisitThrowExpr(*ThrowExpr) error                          { return nil }
func (BaseVisitor) VisitNewExpr(*NewExpr) error                               { return nil }
func (BaseVisitor) VisitNewMapExpr(*NewMapExpr) error                         { return nil }
func (BaseVisitor) VisitCastExpr(*CastExpr) error                             { return nil }
func (BaseVisitor) VisitInstanceOfExpr(*InstanceOfExpr) error                 { return nil }
func (BaseVisitor) VisitLoadInstanceMethodExpr(*LoadInstanceMethodExpr) error { return nil }
func (BaseVisitor) VisitListExpr(*ListExpr) error                             { return nil }
func (BaseVisitor) VisitRxOpExpr(*RxOpExpr) error                             { return nil }

// Script is the root of a parsed top-level program: an ordered list of
// forms. Name resolution happens later, when compiler.Compiler walks
// Forms against a compiler.SymbolTable.
type Script struct {
	Forms []Expression
}

func (s *Script) String() string {
	parts := make([]string, 0, len(s.Forms))
	for _, f := range s.Forms {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "\n")
}
