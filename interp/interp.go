// Package interp is gel's bytecode interpreter: a single-threaded
// stack machine that executes the code.Instructions a compiler.Compiler
// assembled from a flowgraph.FlowGraph.
//
// Grounded on dr8co/kong's vm.Frame (cl, ip, basePointer) — the rest of
// kong's vm package wasn't in the retrieved pack, so the dispatch loop
// below is reconstructed from first principles in the same idiom: a
// StackFrame stack, a flat OperationStack, and a big switch over
// code.Opcode in Run. Goto/Branch targets are already-patched absolute
// byte offsets into a StackFrame's Instructions, so the loop below
// needs no label resolution of its own, unlike the compiler.
package interp

import (
	"fmt"

	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/object"
)

const (
	// StackSize bounds the shared operand stack.
	StackSize = 2048
	// GlobalsSize bounds the global binding table; gel has no notion of
	// shrinking it, so every compiled global symbol gets a permanent slot.
	GlobalsSize = 65536
	// MaxFrames bounds call depth.
	MaxFrames = 1024
)

// LambdaCompiler compiles an uncompiled object.Lambda (an instance
// method body) into a reusable object.CompiledProcedure template. The
// Interp never compiles on its own — that's the compiler package's job,
// wired in by runtime — it only needs somewhere to ask for it the first
// time OpLoadInstanceMethod resolves a method it hasn't seen yet.
type LambdaCompiler func(lam *object.Lambda) (*object.CompiledProcedure, error)

// Interp is gel's stack machine: global bindings, the native procedure
// table, the operand stack, and the frame stack.
type Interp struct {
	globals []object.Object
	natives []*object.NativeProcedure

	// Classes is the host-registered class table NewInstance/Cast/
	// InstanceOf/LoadInstanceMethod resolve against. gel's grammar has
	// no user-facing class-definition form (see DESIGN.md); classes are
	// registered by whatever embeds the Interp (typically runtime's
	// kernel bootstrap), keyed by name.
	Classes map[string]*object.Class

	// CompileLambda lazily compiles an instance method's body the first
	// time it's loaded; methodCache remembers the result so repeated
	// dispatch to the same method doesn't recompile it.
	CompileLambda LambdaCompiler
	methodCache   map[*object.Lambda]*object.CompiledProcedure

	stack *OperationStack

	frames      []*StackFrame
	framesIndex int
}

// New creates an Interp with a fresh global table and the given native
// procedure table, indexed the same way the compiler's SymbolTable
// assigned NativeScope indices via DefineNative.
func New(natives []*object.NativeProcedure) *Interp {
	return &Interp{
		globals:     make([]object.Object, GlobalsSize),
		natives:     natives,
		Classes:     make(map[string]*object.Class),
		methodCache: make(map[*object.Lambda]*object.CompiledProcedure),
		stack:       NewOperationStack(),
		frames:      make([]*StackFrame, MaxFrames),
	}
}

// Globals exposes the global binding table so a runtime can carry it
// across successive REPL evaluations.
func (i *Interp) Globals() []object.Object { return i.globals }

// SetGlobals replaces the global binding table, for a runtime resuming
// a previous session's bindings.
func (i *Interp) SetGlobals(globals []object.Object) { i.globals = globals }

func (i *Interp) currentFrame() *StackFrame { return i.frames[i.framesIndex-1] }

func (i *Interp) pushFrame(f *StackFrame) {
	i.frames[i.framesIndex] = f
	i.framesIndex++
}

func (i *Interp) popFrame() *StackFrame {
	i.framesIndex--
	return i.frames[i.framesIndex]
}

// Execute begins execution of proc (a compiled script or procedure
// body) and runs to completion, returning the value left on top of the
// operand stack or an *object.Error if the run ended in an uncaught
// one. A Go error is returned only for conditions the language itself
// never raises (stack overflow, a malformed opcode) — every ordinary
// failure mode (wrong-type argument, division by zero, unbound symbol,
// a user `throw`) is an *object.Error value, not a Go error, per
// gel's own error taxonomy.
func (i *Interp) Execute(proc *object.CompiledProcedure) (object.Object, error) {
	i.framesIndex = 0
	i.stack.Reset()
	i.pushFrame(NewStackFrame(proc, 0))
	if err := i.Run(); err != nil {
		return nil, err
	}
	if top := i.stack.Top(); top != nil {
		return top, nil
	}
	return &object.Null{}, nil
}

// CallProcedure invokes proc directly with already-evaluated args,
// bypassing OpCall — the path runtime.Call takes for a host-initiated
// call (a REPL `(f 1 2)`, or a reactive-operator callback) rather than
// one reached through ordinary bytecode. Globals persist across calls;
// the operand and frame stacks are reset first, so nested calls must
// go through this method rather than being issued concurrently.
func (i *Interp) CallProcedure(proc *object.CompiledProcedure, args []object.Object) (object.Object, error) {
	i.framesIndex = 0
	i.stack.Reset()
	for _, a := range args {
		if err := i.stack.Push(a); err != nil {
			return nil, err
		}
	}
	if err := i.callProcedure(proc, len(args)); err != nil {
		return nil, err
	}
	if err := i.Run(); err != nil {
		return nil, err
	}
	if top := i.stack.Top(); top != nil {
		return top, nil
	}
	return &object.Null{}, nil
}

// Run drives the fetch-decode-execute loop until the outermost frame
// returns or an uncaught Error propagates out of it.
func (i *Interp) Run() error {
	for i.framesIndex > 0 {
		frame := i.currentFrame()
		ins := frame.Instructions()

		if frame.ip >= len(ins)-1 {
			// Fell off the end of a code region without an explicit
			// Return — happens for a script body whose flowgraph ends
			// in OpReturnValue/OpReturn already in the common case, so
			// this is a defensive fallback for an empty region.
			i.popFrame()
			if i.framesIndex == 0 {
				break
			}
			continue
		}

		frame.ip++
		ip := frame.ip
		op := code.Opcode(ins[ip])

		if err := i.dispatch(op, ins, frame); err != nil {
			return err
		}

		// Per spec.md §4.6/§7: any instruction may leave an Error on
		// top of the stack, and gel has no catch construct — once one
		// appears, no further instruction in any frame runs. Every
		// remaining frame is popped without executing the rest of its
		// body, and the Error itself becomes the whole program's
		// result.
		if _, isErr := i.stack.Top().(*object.Error); isErr {
			errVal := i.stack.Pop()
			for i.framesIndex > 0 {
				i.popFrame()
			}
			if serr := i.stack.SetTo(0); serr != nil {
				return serr
			}
			return i.stack.Push(errVal)
		}
	}
	return nil
}

func (i *Interp) dispatch(op code.Opcode, ins code.Instructions, frame *StackFrame) error {
	switch op {
	case code.OpConstant:
		idx := code.ReadUint16(ins[frame.ip+1:])
		frame.ip += 2
		obj, ok := i.currentConstants()[idx].(object.Object)
		if !ok {
			return fmt.Errorf("interp: constant %d is not an object.Object", idx)
		}
		return i.stack.Push(obj)

	case code.OpTrue:
		return i.stack.Push(trueObj)
	case code.OpFalse:
		return i.stack.Push(falseObj)
	case code.OpNull:
		return i.stack.Push(nullObj)

	case code.OpPop:
		i.stack.Pop()
		return nil

	case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpMod,
		code.OpEqual, code.OpNotEqual, code.OpGreaterThan, code.OpGreaterEq,
		code.OpLessThan, code.OpLessEq, code.OpOr:
		return i.executeBinaryOp(op)

	case code.OpMinus, code.OpBang:
		return i.executeUnaryOp(op)

	case code.OpJump:
		target := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip = target - 1
		return nil

	case code.OpJumpNotTruthy:
		target := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		cond := i.stack.Pop()
		if !object.IsTruthy(cond) {
			frame.ip = target - 1
		}
		return nil

	case code.OpGetGlobal:
		idx := code.ReadUint16(ins[frame.ip+1:])
		frame.ip += 2
		val := i.globals[idx]
		if val == nil {
			return i.stack.Push(&object.Error{Message: "unbound variable"})
		}
		return i.stack.Push(val)

	case code.OpSetGlobal:
		idx := code.ReadUint16(ins[frame.ip+1:])
		frame.ip += 2
		i.globals[idx] = i.stack.Pop()
		return nil

	case code.OpGetLocal:
		idx := int(code.ReadUint8(ins[frame.ip+1:]))
		frame.ip++
		val := i.stack.Get(frame.basePointer + idx)
		if val == nil {
			return i.stack.Push(&object.Error{Message: "unbound variable"})
		}
		return i.stack.Push(val)

	case code.OpSetLocal:
		idx := int(code.ReadUint8(ins[frame.ip+1:]))
		frame.ip++
		i.stack.SetAt(frame.basePointer+idx, i.stack.Pop())
		return nil

	case code.OpGetFree:
		idx := int(code.ReadUint8(ins[frame.ip+1:]))
		frame.ip++
		return i.stack.Push(frame.proc.Free[idx])

	case code.OpGetNative:
		idx := int(code.ReadUint8(ins[frame.ip+1:]))
		frame.ip++
		return i.stack.Push(i.natives[idx])

	case code.OpCurrentClosure:
		return i.stack.Push(frame.proc)

	case code.OpClosure:
		constIdx := int(code.ReadUint16(ins[frame.ip+1:]))
		numFree := int(code.ReadUint8(ins[frame.ip+3:]))
		frame.ip += 3
		return i.pushClosure(constIdx, numFree)

	case code.OpCall:
		numArgs := int(code.ReadUint8(ins[frame.ip+1:]))
		frame.ip++
		return i.executeCall(numArgs)

	case code.OpReturnValue:
		returnValue := i.stack.Pop()
		popped := i.popFrame()
		if err := i.stack.SetTo(popped.basePointer); err != nil {
			return err
		}
		return i.stack.Push(returnValue)

	case code.OpReturn:
		popped := i.popFrame()
		if err := i.stack.SetTo(popped.basePointer); err != nil {
			return err
		}
		return i.stack.Push(&object.Null{})

	case code.OpThrow:
		val := i.stack.Pop()
		return i.stack.Push(toError(val))

	case code.OpArray:
		n := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		elems := make([]object.Object, n)
		copy(elems, i.stack.Slice(i.stack.Depth()-n, i.stack.Depth()))
		if err := i.stack.SetTo(i.stack.Depth() - n); err != nil {
			return err
		}
		return i.stack.Push(&object.Array{Elements: elems})

	case code.OpList:
		n := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		elems := make([]object.Object, n)
		copy(elems, i.stack.Slice(i.stack.Depth()-n, i.stack.Depth()))
		if err := i.stack.SetTo(i.stack.Depth() - n); err != nil {
			return err
		}
		var list object.Object = &object.Null{}
		for j := n - 1; j >= 0; j-- {
			list = &object.Pair{Car: elems[j], Cdr: list}
		}
		return i.stack.Push(list)

	case code.OpMap:
		n := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		return i.executeMap(n)

	case code.OpIndex:
		index := i.stack.Pop()
		left := i.stack.Pop()
		return i.executeIndex(left, index)

	case code.OpSetIndex:
		value := i.stack.Pop()
		index := i.stack.Pop()
		left := i.stack.Pop()
		return i.executeSetIndex(left, index, value)

	case code.OpNewInstance:
		constIdx := int(code.ReadUint16(ins[frame.ip+1:]))
		fieldCount := int(code.ReadUint8(ins[frame.ip+3:]))
		frame.ip += 3
		return i.executeNewInstance(constIdx, fieldCount)

	case code.OpCast:
		constIdx := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		return i.executeCast(constIdx)

	case code.OpInstanceOf:
		constIdx := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		return i.executeInstanceOf(constIdx)

	case code.OpLoadInstanceMethod:
		constIdx := int(code.ReadUint16(ins[frame.ip+1:]))
		frame.ip += 2
		return i.executeLoadInstanceMethod(constIdx)

	default:
		return fmt.Errorf("interp: unhandled opcode %d", op)
	}
}

func (i *Interp) currentConstants() []any {
	return i.currentFrame().proc.Region.Constants
}

var (
	trueObj  = &object.Bool{Value: true}
	falseObj = &object.Bool{Value: false}
	nullObj  = &object.Null{}
)

func nativeBool(v bool) *object.Bool {
	if v {
		return trueObj
	}
	return falseObj
}

func toError(val object.Object) *object.Error {
	if e, ok := val.(*object.Error); ok {
		return e
	}
	return &object.Error{Message: val.Inspect()}
}
