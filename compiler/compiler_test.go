package compiler

import (
	"testing"

	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/parser"
)

func parseScript(t *testing.T, input string) *parser.Parser {
	t.Helper()
	p := parser.New(lexer.New(input))
	return p
}

func compileScript(t *testing.T, input string) *code.CodeRegion {
	t.Helper()
	p := parseScript(t, input)
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors for %q: %v", input, errs)
	}
	c := New(Options{})
	region, err := c.CompileScript(script)
	if err != nil {
		t.Fatalf("compile error for %q: %v", input, err)
	}
	return region
}

func concatInstructions(chunks ...[]byte) code.Instructions {
	var out code.Instructions
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func testInstructions(t *testing.T, want code.Instructions, got code.Instructions) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("wrong instruction length.\nwant=%s\ngot =%s", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("instruction mismatch at byte %d.\nwant=%s\ngot =%s", i, want, got)
		}
	}
}

func TestCompileArithmeticExpression(t *testing.T) {
	region := compileScript(t, "(+ 1 2)")

	want := concatInstructions(
		code.Make(code.OpConstant, 0),
		code.Make(code.OpConstant, 1),
		code.Make(code.OpAdd),
		code.Make(code.OpReturnValue),
	)
	testInstructions(t, want, region.Instructions)
}

func TestCompileComparisonSwapsNoOperands(t *testing.T) {
	// < and <= have dedicated opcodes; the compiler never needs to
	// reorder already-pushed operands to reuse > / >=.
	region := compileScript(t, "(< 1 2)")

	want := concatInstructions(
		code.Make(code.OpConstant, 0),
		code.Make(code.OpConstant, 1),
		code.Make(code.OpLessThan),
		code.Make(code.OpReturnValue),
	)
	testInstructions(t, want, region.Instructions)
}

func TestCompileBooleanConstantsSkipConstantPool(t *testing.T) {
	region := compileScript(t, "#t")
	if len(region.Constants) != 0 {
		t.Fatalf("expected no constants for a boolean literal, got %d", len(region.Constants))
	}
	want := concatInstructions(
		code.Make(code.OpTrue),
		code.Make(code.OpReturnValue),
	)
	testInstructions(t, want, region.Instructions)
}

func TestCompileLocalDefAndReference(t *testing.T) {
	region := compileScript(t, "(define x 5) x")

	// LocalDef's value (5) is stored globally, then the second top-level
	// form loads it back for the script's return value.
	dis := region.Instructions.String()
	if !contains(dis, "OpSetGlobal 0") || !contains(dis, "OpGetGlobal 0") {
		t.Fatalf("expected a global store and load, got:\n%s", dis)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestCompileIfBranchesPatchJumpTargets(t *testing.T) {
	region := compileScript(t, "(cond (#t 1) (else 2))")
	dis := region.Instructions.String()
	if !contains(dis, "OpJumpNotTruthy") || !contains(dis, "OpJump") {
		t.Fatalf("expected conditional jumps in disassembly:\n%s", dis)
	}
}

func TestCompileQuotedSymbol(t *testing.T) {
	region := compileScript(t, "'foo")
	if len(region.Constants) != 1 {
		t.Fatalf("expected one constant, got %d", len(region.Constants))
	}
	sym, ok := region.Constants[0].(*object.Symbol)
	if !ok {
		t.Fatalf("expected *object.Symbol constant, got %T", region.Constants[0])
	}
	if sym.Value != "foo" {
		t.Fatalf("expected symbol foo, got %s", sym.Value)
	}
}

func TestCompileQuotedListBuildsPairChain(t *testing.T) {
	region := compileScript(t, "'(1 2 3)")
	if len(region.Constants) != 1 {
		t.Fatalf("expected one constant, got %d", len(region.Constants))
	}
	pair, ok := region.Constants[0].(*object.Pair)
	if !ok {
		t.Fatalf("expected *object.Pair constant, got %T", region.Constants[0])
	}
	first, ok := pair.Car.(*object.Long)
	if !ok || first.Value != 1 {
		t.Fatalf("expected first element 1, got %#v", pair.Car)
	}
	second, ok := pair.Cdr.(*object.Pair)
	if !ok {
		t.Fatalf("expected a second Pair, got %T", pair.Cdr)
	}
	secondVal, ok := second.Car.(*object.Long)
	if !ok || secondVal.Value != 2 {
		t.Fatalf("expected second element 2, got %#v", second.Car)
	}
}

func TestCompileLambdaEmitsClosure(t *testing.T) {
	region := compileScript(t, "(fn (x) (+ x 1))")
	dis := region.Instructions.String()
	if !contains(dis, "OpClosure") {
		t.Fatalf("expected OpClosure in disassembly:\n%s", dis)
	}

	foundProc := false
	for _, constVal := range region.Constants {
		if proc, ok := constVal.(*object.CompiledProcedure); ok {
			foundProc = true
			if proc.NumParameters != 1 {
				t.Fatalf("expected 1 parameter, got %d", proc.NumParameters)
			}
			body := proc.Region.Instructions.String()
			if !contains(body, "OpGetLocal 0") {
				t.Fatalf("expected the lambda body to load its local parameter:\n%s", body)
			}
		}
	}
	if !foundProc {
		t.Fatal("expected a *object.CompiledProcedure constant")
	}
}

func TestCompileRecursiveNamedLambdaUsesCurrentClosure(t *testing.T) {
	region := compileScript(t, "(defn count-down (n) (count-down n))")
	var proc *object.CompiledProcedure
	for _, constVal := range region.Constants {
		if p, ok := constVal.(*object.CompiledProcedure); ok {
			proc = p
		}
	}
	if proc == nil {
		t.Fatal("expected a *object.CompiledProcedure constant")
	}
	body := proc.Region.Instructions.String()
	if !contains(body, "OpCurrentClosure") {
		t.Fatalf("expected a recursive self-call to use OpCurrentClosure:\n%s", body)
	}
}

func TestCompileTopLevelDefineIsReadAsGlobal(t *testing.T) {
	region := compileScript(t, "(define x 5) (fn () x)")
	var proc *object.CompiledProcedure
	for _, constVal := range region.Constants {
		if p, ok := constVal.(*object.CompiledProcedure); ok {
			proc = p
		}
	}
	if proc == nil {
		t.Fatal("expected a *object.CompiledProcedure constant")
	}
	// x is global here (top-level define), so it should be read directly
	// rather than captured as a free variable.
	body := proc.Region.Instructions.String()
	if !contains(body, "OpGetGlobal") {
		t.Fatalf("expected the lambda body to read x as a global:\n%s", body)
	}
}

func TestCompileNestedLambdaCapturesOuterLocal(t *testing.T) {
	region := compileScript(t, "(defn outer (a) (fn () a))")
	var outer *object.CompiledProcedure
	for _, constVal := range region.Constants {
		if p, ok := constVal.(*object.CompiledProcedure); ok && p.NumParameters == 1 {
			outer = p
		}
	}
	if outer == nil {
		t.Fatal("expected the outer procedure constant")
	}
	body := outer.Region.Instructions.String()
	if !contains(body, "OpClosure") || !contains(body, "OpGetLocal 0") {
		t.Fatalf("expected outer to load its local then build a closure over it:\n%s", body)
	}
}

func TestCompileUnresolvedNameErrors(t *testing.T) {
	p := parser.New(lexer.New("never-bound"))
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if _, err := New(Options{}).CompileScript(script); err == nil {
		t.Fatal("expected an error for an unresolved name")
	}
}
