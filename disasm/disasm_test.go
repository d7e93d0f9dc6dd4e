package disasm

import (
	"strings"
	"testing"

	"github.com/dr8co/gel/compiler"
	"github.com/dr8co/gel/flowgraph"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/parser"
)

func parseScript(t *testing.T, input string) *parser.Parser {
	t.Helper()
	p := parser.New(lexer.New(input))
	return p
}

func TestDisassembleProducesNonEmptyListing(t *testing.T) {
	p := parseScript(t, "(+ 1 2)")
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	region, err := compiler.New(compiler.Options{}).CompileScript(script)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	out := Disassemble(region)
	if out == "" {
		t.Fatalf("expected non-empty disassembly")
	}
	if len(region.Instructions) == 0 {
		t.Fatalf("expected a non-empty compiled region")
	}
}

func TestExportGraphVisitsEveryBlock(t *testing.T) {
	p := parseScript(t, "(cond ((> 1 0) 1) (else 2))")
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	g, err := flowgraph.NewBuilder(false).BuildScript(script)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	out := ExportGraph(g)
	for _, blk := range g.Blocks {
		if !strings.Contains(out, blk.String()+":") {
			t.Errorf("expected %s to appear in ExportGraph output", blk.String())
		}
	}
}

func TestExportDotProducesValidDigraphSyntax(t *testing.T) {
	p := parseScript(t, "(cond ((> 1 0) 1) (else 2))")
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	g, err := flowgraph.NewBuilder(false).BuildScript(script)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	dot := ExportDot(g)
	if !strings.HasPrefix(dot, "digraph flowgraph {\n") {
		t.Fatalf("expected digraph header, got %q", dot)
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Fatalf("expected closing brace, got %q", dot)
	}
	if !strings.Contains(dot, "->") {
		t.Fatalf("expected at least one edge in a branching graph")
	}
}
