package runtime

import (
	"fmt"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/compiler"
	"github.com/dr8co/gel/object"
)

// LookupMacro implements macroexpand.MacroTable: a macro call site is
// any CallProc whose head symbol is registered here by a prior
// top-level `defmacro`.
func (rt *Runtime) LookupMacro(name string) (*object.Macro, bool) {
	m, ok := rt.macros[name]
	return m, ok
}

func (rt *Runtime) registerMacro(def *ast.MacroDef) {
	body := make([]any, len(def.Body))
	for i, e := range def.Body {
		body[i] = e
	}
	rt.macros[def.Name] = &object.Macro{Name: def.Name, Params: def.Args, Body: body}
}

// EvalMacroBody implements macroexpand.Evaluator. gel is homoiconic
// enough that a macro's unevaluated argument expressions fold to plain
// data the same way a quoted literal does (compiler.QuoteToObject);
// the body then runs as an ordinary compiled procedure against that
// data, and whatever value it returns is read back into the
// ast.Expression it denotes (the inverse of QuoteToObject) to splice
// into the call site. This is exactly how `(defmacro inc (x) (+ x 1))
// (inc 41)` expands straight to the literal 42 rather than to a new
// `(+ 41 1)` form that still needs evaluating — the macro runs to
// completion at expansion time, it doesn't just rewrite syntax.
func (rt *Runtime) EvalMacroBody(macro *object.Macro, args []ast.Expression) (ast.Expression, error) {
	argValues := make([]object.Object, len(args))
	for i, a := range args {
		v, err := compiler.QuoteToObject(a)
		if err != nil {
			return nil, fmt.Errorf("runtime: quoting macro argument %d: %w", i, err)
		}
		argValues[i] = v
	}

	proc, err := rt.compileMacro(macro)
	if err != nil {
		return nil, fmt.Errorf("runtime: compiling macro %q: %w", macro.Name, err)
	}

	result, err := rt.interp.CallProcedure(proc, argValues)
	if err != nil {
		return nil, fmt.Errorf("runtime: evaluating macro %q: %w", macro.Name, err)
	}
	if errObj, ok := result.(*object.Error); ok {
		return nil, fmt.Errorf("runtime: macro %q: %s", macro.Name, errObj.Message)
	}

	return exprFromObject(result)
}

// compileMacro compiles macro's body the first time it's invoked,
// caching the result the same way rt.compileLambdaValue does for
// lambdas — a macro is structurally identical to a Lambda (name,
// params, body), just evaluated at expansion time instead of
// run time.
func (rt *Runtime) compileMacro(macro *object.Macro) (*object.CompiledProcedure, error) {
	if proc, ok := rt.macroCache[macro]; ok {
		return proc, nil
	}
	body := make([]ast.Expression, 0, len(macro.Body))
	for _, e := range macro.Body {
		expr, ok := e.(ast.Expression)
		if !ok {
			return nil, fmt.Errorf("runtime: macro body element is not an ast.Expression: %T", e)
		}
		body = append(body, expr)
	}
	lam := &object.Lambda{Name: macro.Name, Params: macro.Params}
	for _, e := range body {
		lam.Body = append(lam.Body, e)
	}
	proc, err := rt.compiler.CompileLambdaValue(lam)
	if err != nil {
		return nil, err
	}
	rt.macroCache[macro] = proc
	return proc, nil
}

// exprFromObject is the inverse of compiler.QuoteToObject: it reads a
// runtime datum back as the syntax that would quote to it, so a
// macro's result (or any quoted value that needs splicing back into an
// AST) becomes an ordinary ast.Expression node the flowgraph builder
// already knows how to lower.
func exprFromObject(obj object.Object) (ast.Expression, error) {
	switch v := obj.(type) {
	case *object.Null:
		return &ast.ListExpr{}, nil
	case *object.Symbol:
		return &ast.Binding{Name: v.Value}, nil
	case *object.Pair:
		if sym, ok := v.Car.(*object.Symbol); ok && sym.Value == "quote" {
			if rest, ok := v.Cdr.(*object.Pair); ok {
				datum, err := exprFromObject(rest.Car)
				if err != nil {
					return nil, err
				}
				return &ast.Quoted{Datum: datum}, nil
			}
		}
		elems, err := pairToExprs(v)
		if err != nil {
			return nil, err
		}
		return &ast.CallProc{Target: elems[0], Args: elems[1:]}, nil
	default:
		// Long, Double, String, Bool — any self-evaluating datum
		// becomes the literal that denotes it.
		return &ast.Literal{Value: obj}, nil
	}
}

func pairToExprs(p *object.Pair) ([]ast.Expression, error) {
	var elems []ast.Expression
	var cur object.Object = p
	for {
		pair, ok := cur.(*object.Pair)
		if !ok {
			break
		}
		e, err := exprFromObject(pair.Car)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		cur = pair.Cdr
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("runtime: cannot splice an empty call form")
	}
	return elems, nil
}
