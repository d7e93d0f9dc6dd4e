package flowgraph

import "fmt"

// Block is one basic block: a single entry marker, a straight-line body
// of definitions and effects, and exactly one terminator.
type Block struct {
	ID    int
	Entry Instruction // *GraphEntry, *TargetEntry, or *JoinEntry
	Body  []Instruction
	Term  Instruction // *Branch, *Goto, *Throw, or *Return

	Preds []*Block
	Succs []*Block
}

// Append adds instr to b's straight-line body.
func (b *Block) Append(instr Instruction) {
	b.Body = append(b.Body, instr)
}

// SetTerm sets b's terminator and wires Succs from it.
func (b *Block) SetTerm(term Instruction) {
	b.Term = term
	switch t := term.(type) {
	case *Branch:
		b.Succs = []*Block{t.Then, t.Else}
		t.Then.Preds = append(t.Then.Preds, b)
		t.Else.Preds = append(t.Else.Preds, b)
	case *Goto:
		b.Succs = []*Block{t.Target}
		if t.Target != nil {
			t.Target.Preds = append(t.Target.Preds, b)
		}
	case *Throw, *Return:
		b.Succs = nil
	}
}

func (b *Block) String() string {
	return fmt.Sprintf("block%d", b.ID)
}

// FlowGraph is the lowered body of one procedure or top-level script:
// an entry block plus every block reachable from it.
type FlowGraph struct {
	Entry  *Block
	Blocks []*Block

	// Params is filled in by Builder.BuildLambda from the procedure's
	// parameter list. The Builder does not set NumLocals; the compiler
	// counts locals from its own symbol table.
	Params    []string
	NumLocals int
}

// NewFlowGraph creates an empty graph with a single entry block.
func NewFlowGraph() *FlowGraph {
	g := &FlowGraph{}
	entry := g.newBlock()
	entry.Entry = &GraphEntry{}
	g.Entry = entry
	return g
}

func (g *FlowGraph) newBlock() *Block {
	b := &Block{ID: len(g.Blocks)}
	g.Blocks = append(g.Blocks, b)
	return b
}

// NewTargetBlock creates a block whose entry marker is a TargetEntry
// reached from pred.
func (g *FlowGraph) NewTargetBlock(pred *Block) *Block {
	b := g.newBlock()
	b.Entry = &TargetEntry{Predecessor: pred}
	return b
}

// NewJoinBlock creates a block whose entry marker is a JoinEntry
// reached from preds.
func (g *FlowGraph) NewJoinBlock(preds ...*Block) *Block {
	b := g.newBlock()
	b.Entry = &JoinEntry{Predecessors: preds}
	return b
}

// ReversePostorder returns every block reachable from Entry in reverse
// postorder — the order the compiler must assemble blocks in so that
// every predecessor is emitted before a JoinEntry block is reached,
// except for back-edges introduced by while-loops.
func (g *FlowGraph) ReversePostorder() []*Block {
	visited := make(map[*Block]bool, len(g.Blocks))
	var post []*Block

	var visit func(*Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(g.Entry)

	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}
