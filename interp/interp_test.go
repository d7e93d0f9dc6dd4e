package interp

import (
	"testing"

	"github.com/dr8co/gel/compiler"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/parser"
)

func run(t *testing.T, input string) object.Object {
	t.Helper()
	p := parser.New(lexer.New(input))
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors for %q: %v", input, errs)
	}
	region, err := compiler.New(compiler.Options{}).CompileScript(script)
	if err != nil {
		t.Fatalf("compile error for %q: %v", input, err)
	}
	result, err := New(nil).Execute(&object.CompiledProcedure{Region: region})
	if err != nil {
		t.Fatalf("interp error for %q: %v", input, err)
	}
	return result
}

func testLong(t *testing.T, got object.Object, want int64) {
	t.Helper()
	l, ok := got.(*object.Long)
	if !ok {
		t.Fatalf("expected *object.Long, got %T (%s)", got, got.Inspect())
	}
	if l.Value != want {
		t.Fatalf("expected %d, got %d", want, l.Value)
	}
}

func TestArithmeticAddition(t *testing.T) {
	testLong(t, run(t, "(+ 99 1)"), 100)
}

func TestTopLevelDefinesAreGlobalAcrossForms(t *testing.T) {
	testLong(t, run(t, "(define x 10) (define y 20) (+ x y)"), 30)
}

func TestRecursiveDefnFactorial(t *testing.T) {
	src := `(defn fact (n) (cond ((== n 0) 1) (else (* n (fact (- n 1)))))) (fact 5)`
	testLong(t, run(t, src), 120)
}

func TestDivisionByZeroProducesErrorNotPanic(t *testing.T) {
	result := run(t, "(/ 1 0)")
	errObj, ok := result.(*object.Error)
	if !ok {
		t.Fatalf("expected *object.Error, got %T (%s)", result, result.Inspect())
	}
	if errObj.Message != "division by zero" {
		t.Fatalf("unexpected error message: %s", errObj.Message)
	}
}

func TestLambdaCallAndClosureCapture(t *testing.T) {
	src := `(define make-adder (fn (n) (fn (m) (+ n m)))) (define add5 (make-adder 5)) (add5 3)`
	testLong(t, run(t, src), 8)
}

func TestComparisonOperators(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"(< 1 2)", true},
		{"(< 2 1)", false},
		{"(<= 2 2)", true},
		{"(> 2 1)", true},
		{"(>= 1 2)", false},
	}
	for _, c := range cases {
		result := run(t, c.src)
		b, ok := result.(*object.Bool)
		if !ok {
			t.Fatalf("%s: expected *object.Bool, got %T", c.src, result)
		}
		if b.Value != c.want {
			t.Fatalf("%s: expected %v, got %v", c.src, c.want, b.Value)
		}
	}
}

func TestQuotedListEvaluatesToPairChain(t *testing.T) {
	result := run(t, "'(1 2 3)")
	pair, ok := result.(*object.Pair)
	if !ok {
		t.Fatalf("expected *object.Pair, got %T", result)
	}
	first, ok := pair.Car.(*object.Long)
	if !ok || first.Value != 1 {
		t.Fatalf("expected first element 1, got %#v", pair.Car)
	}
}

func TestStringConcatenation(t *testing.T) {
	result := run(t, `(+ "foo" "bar")`)
	s, ok := result.(*object.String)
	if !ok {
		t.Fatalf("expected *object.String, got %T", result)
	}
	if s.Value != "foobar" {
		t.Fatalf("expected \"foobar\", got %q", s.Value)
	}
}

func TestMixedTypeArithmeticErrors(t *testing.T) {
	result := run(t, `(+ 1 "two")`)
	if _, ok := result.(*object.Error); !ok {
		t.Fatalf("expected *object.Error for mixed-type +, got %T (%s)", result, result.Inspect())
	}
}
