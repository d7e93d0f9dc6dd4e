package runtime

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dr8co/gel/object"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt := New(Options{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return rt
}

func TestEvalArithmetic(t *testing.T) {
	rt := newTestRuntime(t)
	result, err := rt.Eval("(+ 1 2)")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	l, ok := result.(*object.Long)
	if !ok || l.Value != 3 {
		t.Fatalf("got %T (%s), want Long(3)", result, result.Inspect())
	}
}

func TestEvalGlobalsPersistAcrossCalls(t *testing.T) {
	rt := newTestRuntime(t)
	if _, err := rt.Eval("(define x 10)"); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	result, err := rt.Eval("(+ x 5)")
	if err != nil {
		t.Fatalf("second eval: %v", err)
	}
	l, ok := result.(*object.Long)
	if !ok || l.Value != 15 {
		t.Fatalf("got %T (%s), want Long(15)", result, result.Inspect())
	}
}

func TestEvalDefnAndCall(t *testing.T) {
	rt := newTestRuntime(t)
	result, err := rt.Eval(`(defn square (n) (* n n)) (square 6)`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	l, ok := result.(*object.Long)
	if !ok || l.Value != 36 {
		t.Fatalf("got %T (%s), want Long(36)", result, result.Inspect())
	}
}

func TestNullAndPairPredicates(t *testing.T) {
	rt := newTestRuntime(t)
	result, err := rt.Eval(`(null? (rest (list 1)))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	b, ok := result.(*object.Bool)
	if !ok || !b.Value {
		t.Fatalf("got %T (%s), want true", result, result.Inspect())
	}

	result, err = rt.Eval(`(pair? (list 1 2))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	b, ok = result.(*object.Bool)
	if !ok || !b.Value {
		t.Fatalf("got %T (%s), want true", result, result.Inspect())
	}
}

func TestImportResolvesModuleDefinitions(t *testing.T) {
	dir := t.TempDir()
	modPath := filepath.Join(dir, "greet.cl")
	if err := os.WriteFile(modPath, []byte(`(define greeting "hi")`), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	rt := New(Options{ModuleDir: dir, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	mod, err := rt.Import("greet")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	val, ok := mod.Ns.Get("greeting")
	if !ok {
		t.Fatalf("greeting not bound in module namespace")
	}
	s, ok := val.(*object.String)
	if !ok || s.Value != "hi" {
		t.Fatalf("got %T (%v), want String(hi)", val, val)
	}
}

func TestImportIsCachedAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	modPath := filepath.Join(dir, "once.cl")
	if err := os.WriteFile(modPath, []byte(`(define n 1)`), 0o644); err != nil {
		t.Fatalf("write module: %v", err)
	}

	rt := New(Options{ModuleDir: dir, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	if err := rt.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}

	first, err := rt.Import("once")
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := rt.Import("once")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same cached *object.Module, got distinct values")
	}
}

func TestExportDotDoesNotExecute(t *testing.T) {
	rt := newTestRuntime(t)
	dot, err := rt.ExportDot(`(defn f (n) (+ n 1))`)
	if err != nil {
		t.Fatalf("export dot: %v", err)
	}
	if !bytes.Contains([]byte(dot), []byte("digraph")) {
		t.Fatalf("expected a dot digraph, got %q", dot)
	}
}

func TestDivisionByZeroReturnsErrorObject(t *testing.T) {
	rt := newTestRuntime(t)
	result, err := rt.Eval("(/ 1 0)")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if _, ok := result.(*object.Error); !ok {
		t.Fatalf("got %T (%s), want *object.Error", result, result.Inspect())
	}
}
