// Package macroexpand rewrites an ast.Expression tree by repeatedly
// applying user-defined macros until no slot changes, outermost form
// first.
//
// A macro call looks exactly like a procedure call — `(my-macro a b)`
// — so the expander must resolve the head symbol against the macro
// table before it can tell a macro invocation from an ordinary
// CallProc. Once resolved, the macro's body is evaluated against its
// (unevaluated) argument expressions to produce a replacement
// ast.Expression, which is then itself expanded before being spliced
// back in. Variants with no macro-call shape of their own (Literal,
// BinaryOp, ...) fall through to a default policy: recursively expand
// every child slot, and only allocate a new node if some child
// actually changed — an unmodified subtree is returned by the same
// pointer it came in on.
package macroexpand

import (
	"fmt"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/object"
)

// Evaluator is implemented by whatever can run a macro's body against
// its argument expressions and produce the replacement AST fragment —
// in practice the runtime package's tree-walking macro evaluator. It is
// an interface here so macroexpand has no dependency on runtime.
type Evaluator interface {
	// EvalMacroBody runs the macro body bound to args (each as the
	// literal, unevaluated ast.Expression the caller passed) and
	// returns the resulting expression to splice in.
	EvalMacroBody(macro *object.Macro, args []ast.Expression) (ast.Expression, error)
}

// MacroTable resolves a head symbol to a user-defined macro, if any.
type MacroTable interface {
	LookupMacro(name string) (*object.Macro, bool)
}

// Expander rewrites a tree to a fixed point with no remaining macro
// calls at any nesting depth.
type Expander struct {
	macros MacroTable
	eval   Evaluator
	// MaxPasses bounds runaway expansion from a macro whose body
	// produces another call to itself; spec.md does not require this,
	// but an unconditionally-recursive macro would otherwise hang the
	// expander rather than the program that defined it.
	MaxPasses int
}

// NewExpander creates an Expander backed by the given macro table and
// body evaluator.
func NewExpander(macros MacroTable, eval Evaluator) *Expander {
	return &Expander{macros: macros, eval: eval, MaxPasses: 512}
}

// ExpandScript expands every top-level form of a script in place.
func (e *Expander) ExpandScript(script *ast.Script) error {
	for i, form := range script.Forms {
		expanded, err := e.Expand(form)
		if err != nil {
			return err
		}
		script.Forms[i] = expanded
	}
	return nil
}

// Expand rewrites expr to a fixed point: outermost macro calls are
// expanded first, and the result is expanded again until no macro call
// remains anywhere in the tree.
func (e *Expander) Expand(expr ast.Expression) (ast.Expression, error) {
	cur := expr
	for pass := 0; pass < e.MaxPasses; pass++ {
		next, changed, err := e.expandOnce(cur)
		if err != nil {
			return nil, err
		}
		if !changed {
			return next, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("macroexpand: exceeded %d passes, possible non-terminating macro", e.MaxPasses)
}

// expandOnce performs a single outermost-first rewrite pass: it tries
// to expand expr itself as a macro call, and if that's not what expr
// is, recurses into its children via the Visitor-based default policy.
func (e *Expander) expandOnce(expr ast.Expression) (ast.Expression, bool, error) {
	if call, ok := expr.(*ast.CallProc); ok {
		if name, ok := headSymbol(call.Target); ok {
			if macro, ok := e.macros.LookupMacro(name); ok {
				replacement, err := e.eval.EvalMacroBody(macro, call.Args)
				if err != nil {
					return nil, false, fmt.Errorf("macroexpand: expanding %q: %w", name, err)
				}
				return replacement, true, nil
			}
		}
	}

	v := &childExpander{e: e}
	if err := expr.Accept(v); err != nil {
		return nil, false, err
	}
	if v.err != nil {
		return nil, false, v.err
	}
	return v.result, v.changed, nil
}

func headSymbol(expr ast.Expression) (string, bool) {
	if b, ok := expr.(*ast.Binding); ok {
		return b.Name, true
	}
	return "", false
}

// childExpander implements ast.Visitor to apply the default recurse-
// into-children policy for every variant that isn't itself a macro
// call. Each arm expands its child slots with expandOnce and only
// allocates a replacement node when something changed.
type childExpander struct {
	e       *Expander
	result  ast.Expression
	changed bool
	err     error
}

func (v *childExpander) expand(e ast.Expression) ast.Expression {
	if v.err != nil || e == nil {
		return e
	}
	next, changed, err := v.e.expandOnce(e)
	if err != nil {
		v.err = err
		return e
	}
	if changed {
		v.changed = true
	}
	return next
}

func (v *childExpander) expandAll(exprs []ast.Expression) []ast.Expression {
	if v.err != nil || exprs == nil {
		return exprs
	}
	out := make([]ast.Expression, len(exprs))
	any := false
	for i, e := range exprs {
		out[i] = v.expand(e)
		if out[i] != exprs[i] {
			any = true
		}
	}
	if !any {
		return exprs
	}
	v.changed = true
	return out
}

func (v *childExpander) VisitLiteral(n *ast.Literal) error { v.result = n; return nil }
func (v *childExpander) VisitBinding(n *ast.Binding) error  { v.result = n; return nil }

func (v *childExpander) VisitBinaryOp(n *ast.BinaryOp) error {
	left, right := v.expand(n.Left), v.expand(n.Right)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.BinaryOp{Position: n.Position, Op: n.Op, Left: left, Right: right}
	return nil
}

func (v *childExpander) VisitUnaryOp(n *ast.UnaryOp) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.UnaryOp{Position: n.Position, Op: n.Op, Value: val}
	return nil
}

func (v *childExpander) VisitCallProc(n *ast.CallProc) error {
	target := v.expand(n.Target)
	args := v.expandAll(n.Args)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.CallProc{Position: n.Position, Target: target, Args: args}
	return nil
}

func (v *childExpander) VisitBegin(n *ast.Begin) error {
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.Begin{Position: n.Position, Body: body}
	return nil
}

func (v *childExpander) VisitCond(n *ast.Cond) error {
	clauses := make([]*ast.Clause, len(n.Clauses))
	copy(clauses, n.Clauses)
	for i, c := range n.Clauses {
		test := v.expand(c.Test)
		body := v.expandAll(c.Body)
		if test != c.Test || !sameSlice(body, c.Body) {
			clauses[i] = &ast.Clause{Position: c.Position, Test: test, Body: body}
		}
	}
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.Cond{Position: n.Position, Clauses: clauses}
	return nil
}

func (v *childExpander) VisitWhen(n *ast.When) error {
	test := v.expand(n.Test)
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.When{Position: n.Position, Test: test, Body: body}
	return nil
}

func (v *childExpander) VisitWhile(n *ast.While) error {
	test := v.expand(n.Test)
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.While{Position: n.Position, Test: test, Body: body}
	return nil
}

func (v *childExpander) VisitCase(n *ast.Case) error {
	key := v.expand(n.Key)
	clauses := make([]*ast.CaseClause, len(n.Clauses))
	copy(clauses, n.Clauses)
	for i, c := range n.Clauses {
		datums := v.expandAll(c.Datums)
		body := v.expandAll(c.Body)
		if !sameSlice(datums, c.Datums) || !sameSlice(body, c.Body) {
			clauses[i] = &ast.CaseClause{Position: c.Position, Datums: datums, Body: body}
		}
	}
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.Case{Position: n.Position, Key: key, Clauses: clauses}
	return nil
}

func (v *childExpander) VisitQuoted(n *ast.Quoted) error {
	// Quoted data is never expanded — that's the point of quoting.
	v.result = n
	return nil
}

func (v *childExpander) VisitLet(n *ast.Let) error {
	bindings := v.expandBindings(n.Bindings)
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.Let{Position: n.Position, Bindings: bindings, Body: body}
	return nil
}

func (v *childExpander) VisitLetRec(n *ast.LetRec) error {
	bindings := v.expandBindings(n.Bindings)
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.LetRec{Position: n.Position, Bindings: bindings, Body: body}
	return nil
}

func (v *childExpander) expandBindings(bindings []*ast.Binding) []*ast.Binding {
	out := make([]*ast.Binding, len(bindings))
	copy(out, bindings)
	for i, b := range bindings {
		val := v.expand(b.Value)
		if val != b.Value {
			out[i] = &ast.Binding{Position: b.Position, Name: b.Name, Value: val}
		}
	}
	return out
}

func (v *childExpander) VisitLambdaDef(n *ast.LambdaDef) error {
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.LambdaDef{Position: n.Position, Name: n.Name, Args: n.Args, Docs: n.Docs, Body: body}
	return nil
}

func (v *childExpander) VisitMacroDef(n *ast.MacroDef) error {
	// A macro definition's own body is not expanded at definition time
	// — it runs un-expanded against each call site's arguments.
	v.result = n
	return nil
}

func (v *childExpander) VisitLocalDef(n *ast.LocalDef) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.LocalDef{Position: n.Position, Name: n.Name, Value: val}
	return nil
}

func (v *childExpander) VisitModuleDef(n *ast.ModuleDef) error {
	body := v.expandAll(n.Body)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.ModuleDef{Position: n.Position, Name: n.Name, Body: body}
	return nil
}

func (v *childExpander) VisitImportExpr(n *ast.ImportExpr) error { v.result = n; return nil }

func (v *childExpander) VisitSetExpr(n *ast.SetExpr) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.SetExpr{Position: n.Position, Name: n.Name, Value: val}
	return nil
}

func (v *childExpander) VisitThrowExpr(n *ast.ThrowExpr) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.ThrowExpr{Position: n.Position, Value: val}
	return nil
}

func (v *childExpander) VisitNewExpr(n *ast.NewExpr) error {
	args := v.expandAll(n.Args)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.NewExpr{Position: n.Position, ClassName: n.ClassName, Args: args}
	return nil
}

func (v *childExpander) VisitNewMapExpr(n *ast.NewMapExpr) error {
	keys := v.expandAll(n.Keys)
	vals := v.expandAll(n.Values)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.NewMapExpr{Position: n.Position, Keys: keys, Values: vals}
	return nil
}

func (v *childExpander) VisitCastExpr(n *ast.CastExpr) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.CastExpr{Position: n.Position, Type: n.Type, Value: val}
	return nil
}

func (v *childExpander) VisitInstanceOfExpr(n *ast.InstanceOfExpr) error {
	val := v.expand(n.Value)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.InstanceOfExpr{Position: n.Position, Type: n.Type, Value: val}
	return nil
}

func (v *childExpander) VisitLoadInstanceMethodExpr(n *ast.LoadInstanceMethodExpr) error {
	recv := v.expand(n.Receiver)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.LoadInstanceMethodExpr{Position: n.Position, Receiver: recv, Method: n.Method}
	return nil
}

func (v *childExpander) VisitListExpr(n *ast.ListExpr) error {
	elems := v.expandAll(n.Elements)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.ListExpr{Position: n.Position, Elements: elems}
	return nil
}

func (v *childExpander) VisitRxOpExpr(n *ast.RxOpExpr) error {
	args := v.expandAll(n.Args)
	if !v.changed {
		v.result = n
		return nil
	}
	v.result = &ast.RxOpExpr{Position: n.Position, Op: n.Op, Args: args}
	return nil
}

func sameSlice(a, b []ast.Expression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
