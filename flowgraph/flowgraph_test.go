package flowgraph

import (
	"testing"

	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/parser"
)

func buildScript(t *testing.T, input string) *FlowGraph {
	t.Helper()
	p := parser.New(lexer.New(input))
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors for %q: %v", input, errs)
	}
	g, err := NewBuilder(false).BuildScript(script)
	if err != nil {
		t.Fatalf("build error for %q: %v", input, err)
	}
	return g
}

func TestStraightLineScriptIsOneBlock(t *testing.T) {
	g := buildScript(t, "(+ 1 2)")
	if len(g.Blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(g.Blocks))
	}
	if _, ok := g.Entry.Term.(*Return); !ok {
		t.Fatalf("expected entry block to terminate in Return, got %T", g.Entry.Term)
	}
}

func TestCondBranchesIntoMultipleBlocks(t *testing.T) {
	g := buildScript(t, "(cond ((> 1 0) 1) (else 2))")
	if len(g.Blocks) < 3 {
		t.Fatalf("expected at least 3 blocks for a cond with two arms, got %d", len(g.Blocks))
	}
	branch, ok := g.Entry.Term.(*Branch)
	if !ok {
		t.Fatalf("expected entry block to terminate in Branch, got %T", g.Entry.Term)
	}
	if branch.Then == branch.Else {
		t.Fatalf("then/else arms must be distinct blocks")
	}
}

func TestWhileIntroducesABackEdge(t *testing.T) {
	g := buildScript(t, "(define i 0) (while (< i 3) (set! i (+ i 1)))")
	rpo := g.ReversePostorder()
	if len(rpo) == 0 {
		t.Fatalf("expected at least one reachable block")
	}

	var hasBackEdge bool
	seen := make(map[*Block]bool)
	for _, b := range rpo {
		for _, s := range b.Succs {
			if seen[s] {
				hasBackEdge = true
			}
		}
		seen[b] = true
	}
	if !hasBackEdge {
		t.Fatalf("expected a while loop to introduce a back edge in reverse postorder")
	}
}

func TestReversePostorderOrdersPredecessorsBeforeJoins(t *testing.T) {
	g := buildScript(t, "(cond ((> 1 0) 1) (else 2))")
	rpo := g.ReversePostorder()
	pos := make(map[*Block]int, len(rpo))
	for i, b := range rpo {
		pos[b] = i
	}
	for _, b := range g.Blocks {
		if _, ok := b.Entry.(*JoinEntry); !ok {
			continue
		}
		for _, pred := range b.Preds {
			if pos[pred] > pos[b] {
				t.Fatalf("predecessor block%d scheduled after join block%d", pred.ID, b.ID)
			}
		}
	}
}
