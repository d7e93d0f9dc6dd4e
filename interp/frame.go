package interp

import (
	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/object"
)

// StackFrame is one call's execution context: which procedure it's
// running, where its instruction pointer sits within that procedure's
// code region, and where its locals start on the shared operand stack.
type StackFrame struct {
	proc *object.CompiledProcedure

	// ip tracks the current instruction within proc.Region.Instructions.
	ip int

	// basePointer marks where this frame's locals begin on the shared
	// operand stack; args occupy the first NumParameters slots there.
	basePointer int
}

// NewStackFrame starts a frame for proc with its locals based at
// basePointer on the operand stack.
func NewStackFrame(proc *object.CompiledProcedure, basePointer int) *StackFrame {
	return &StackFrame{proc: proc, ip: -1, basePointer: basePointer}
}

// Instructions returns the frame's procedure's instruction stream.
func (f *StackFrame) Instructions() code.Instructions {
	return f.proc.Region.Instructions
}
