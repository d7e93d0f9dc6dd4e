package macroexpand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/token"
)

type fakeMacros map[string]*object.Macro

func (m fakeMacros) LookupMacro(name string) (*object.Macro, bool) {
	mac, ok := m[name]
	return mac, ok
}

type fakeEval struct {
	result ast.Expression
	err    error
	calls  int
}

func (f *fakeEval) EvalMacroBody(_ *object.Macro, _ []ast.Expression) (ast.Expression, error) {
	f.calls++
	return f.result, f.err
}

func TestExpandNonMacroCallUnchanged(t *testing.T) {
	lit := &ast.Literal{Value: &object.Long{Value: 5}}
	e := NewExpander(fakeMacros{}, &fakeEval{})

	out, err := e.Expand(lit)
	require.NoError(t, err)
	assert.Same(t, ast.Expression(lit), out)
}

func TestExpandMacroCallReplaces(t *testing.T) {
	replacement := &ast.Literal{Value: &object.Long{Value: 42}}
	eval := &fakeEval{result: replacement}
	macros := fakeMacros{"my-macro": &object.Macro{Name: "my-macro"}}
	e := NewExpander(macros, eval)

	call := &ast.CallProc{
		Target: &ast.Binding{Name: "my-macro"},
		Args:   []ast.Expression{&ast.Literal{Value: &object.Long{Value: 1}}},
	}

	out, err := e.Expand(call)
	require.NoError(t, err)
	assert.Equal(t, replacement, out)
	assert.Equal(t, 1, eval.calls)
}

func TestExpandRecursesIntoChildren(t *testing.T) {
	replacement := &ast.Literal{Value: &object.Long{Value: 9}}
	eval := &fakeEval{result: replacement}
	macros := fakeMacros{"my-macro": &object.Macro{Name: "my-macro"}}
	e := NewExpander(macros, eval)

	inner := &ast.CallProc{Target: &ast.Binding{Name: "my-macro"}}
	outer := &ast.BinaryOp{Op: token.Plus, Left: inner, Right: &ast.Literal{Value: &object.Long{Value: 1}}}

	out, err := e.Expand(outer)
	require.NoError(t, err)
	bin, ok := out.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, replacement, bin.Left)
}

func TestExpandUnboundedMacroErrors(t *testing.T) {
	macros := fakeMacros{"loop": &object.Macro{Name: "loop"}}
	eval := &fakeEval{}
	call := &ast.CallProc{Target: &ast.Binding{Name: "loop"}}
	eval.result = call // expands to itself forever
	e := NewExpander(macros, eval)
	e.MaxPasses = 5

	_, err := e.Expand(call)
	assert.Error(t, err)
}
