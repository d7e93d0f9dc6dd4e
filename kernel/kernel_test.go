package kernel

import (
	"testing"

	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/runtime"
)

func newLoadedRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt := runtime.New(runtime.Options{})
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := Load(rt); err != nil {
		t.Fatalf("load: %v", err)
	}
	return rt
}

func evalLong(t *testing.T, rt *runtime.Runtime, src string) int64 {
	t.Helper()
	result, err := rt.Eval(src)
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	l, ok := result.(*object.Long)
	if !ok {
		t.Fatalf("eval %q: expected *object.Long, got %T (%s)", src, result, result.Inspect())
	}
	return l.Value
}

func TestLoadDefinesStdlib(t *testing.T) {
	newLoadedRuntime(t)
}

func TestAbsMaxMin(t *testing.T) {
	rt := newLoadedRuntime(t)
	if got := evalLong(t, rt, "(abs (- 0 5))"); got != 5 {
		t.Errorf("abs: got %d, want 5", got)
	}
	if got := evalLong(t, rt, "(max 3 7)"); got != 7 {
		t.Errorf("max: got %d, want 7", got)
	}
	if got := evalLong(t, rt, "(min 3 7)"); got != 3 {
		t.Errorf("min: got %d, want 3", got)
	}
}

func TestMapFilterReduce(t *testing.T) {
	rt := newLoadedRuntime(t)
	src := `(reduce (fn (acc x) (+ acc x)) 0 (map (fn (x) (* x x)) (range 1 5)))`
	if got := evalLong(t, rt, src); got != 30 {
		t.Errorf("map/filter/reduce: got %d, want 30", got)
	}

	src = `(length (filter (fn (x) (== (% x 2) 0)) (range 0 10)))`
	if got := evalLong(t, rt, src); got != 5 {
		t.Errorf("filter: got %d, want 5", got)
	}
}

func TestReverseAndNth(t *testing.T) {
	rt := newLoadedRuntime(t)
	if got := evalLong(t, rt, `(first (reverse (range 0 5)))`); got != 4 {
		t.Errorf("reverse: got %d, want 4", got)
	}
	if got := evalLong(t, rt, `(nth (range 10 20) 3)`); got != 13 {
		t.Errorf("nth: got %d, want 13", got)
	}
	if got := evalLong(t, rt, `(last (range 0 5))`); got != 4 {
		t.Errorf("last: got %d, want 4", got)
	}
}

func TestAnyAndAll(t *testing.T) {
	rt := newLoadedRuntime(t)
	result, err := rt.Eval(`(any? (fn (x) (> x 3)) (range 0 5))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	b, ok := result.(*object.Bool)
	if !ok || !b.Value {
		t.Errorf("any?: got %T (%s), want true", result, result.Inspect())
	}

	result, err = rt.Eval(`(all? (fn (x) (< x 10)) (range 0 5))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	b, ok = result.(*object.Bool)
	if !ok || !b.Value {
		t.Errorf("all?: got %T (%s), want true", result, result.Inspect())
	}
}

func TestForEachCountsSideEffects(t *testing.T) {
	rt := newLoadedRuntime(t)
	src := `(define total 0) (for-each (fn (x) (set! total (+ total x))) (range 1 5)) total`
	if got := evalLong(t, rt, src); got != 10 {
		t.Errorf("for-each: got %d, want 10", got)
	}
}
