// Package disasm renders a compiled CodeRegion or a lowered FlowGraph
// for diagnostics: one line per instruction for a human reading a
// trace, and a Graphviz dot document for visualizing control flow.
//
// As spec.md §4.9 puts it, these have no behavioral contract beyond
// "every visited instruction appears exactly once" — there is nothing
// here a program depends on at run time.
package disasm

import (
	"fmt"
	"strings"

	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/flowgraph"
)

// Disassemble renders region's assembled bytecode as one line per
// instruction, offset-prefixed.
func Disassemble(region *code.CodeRegion) string {
	return region.Instructions.String()
}

// ExportGraph walks g's blocks in reverse postorder, emitting one line
// per instruction (entry marker, body, terminator) with a block label
// before each block — the flowgraph-level counterpart to Disassemble's
// bytecode-level view, useful for inspecting a procedure before it's
// assembled.
func ExportGraph(g *flowgraph.FlowGraph) string {
	var out strings.Builder
	for _, blk := range g.ReversePostorder() {
		fmt.Fprintf(&out, "%s:\n", blk)
		fmt.Fprintf(&out, "  %s\n", blk.Entry)
		for _, instr := range blk.Body {
			fmt.Fprintf(&out, "  %s\n", instr)
		}
		fmt.Fprintf(&out, "  %s\n", blk.Term)
	}
	return out.String()
}

// ExportDot renders g as a Graphviz dot document: one node per
// instruction and one edge per control-flow edge, matching the
// "node per instruction, edge per control-flow edge" shape described
// in spec.md §4.9.
func ExportDot(g *flowgraph.FlowGraph) string {
	var out strings.Builder
	out.WriteString("digraph flowgraph {\n")

	nodeID := func(blk *flowgraph.Block, idx int) string {
		return fmt.Sprintf("b%d_%d", blk.ID, idx)
	}
	blockInstrs := func(blk *flowgraph.Block) []flowgraph.Instruction {
		instrs := make([]flowgraph.Instruction, 0, len(blk.Body)+2)
		instrs = append(instrs, blk.Entry)
		instrs = append(instrs, blk.Body...)
		instrs = append(instrs, blk.Term)
		return instrs
	}

	for _, blk := range g.Blocks {
		instrs := blockInstrs(blk)
		for idx, instr := range instrs {
			label := strings.ReplaceAll(instr.String(), `"`, `\"`)
			fmt.Fprintf(&out, "  %q [label=%q];\n", nodeID(blk, idx), label)
			if idx > 0 {
				fmt.Fprintf(&out, "  %q -> %q;\n", nodeID(blk, idx-1), nodeID(blk, idx))
			}
		}
	}
	for _, blk := range g.Blocks {
		lastIdx := len(blockInstrs(blk)) - 1
		for _, succ := range blk.Succs {
			fmt.Fprintf(&out, "  %q -> %q;\n", nodeID(blk, lastIdx), nodeID(succ, 0))
		}
	}

	out.WriteString("}\n")
	return out.String()
}
