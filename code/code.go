// Package code defines gel's bytecode instruction set: the Opcode
// constants, their operand encodings, and the helpers used to assemble
// and disassemble them.
//
// The compiler package walks a flowgraph.FlowGraph and emits
// Instructions via Make; the interp package decodes them back with
// ReadOperands during execution; the disasm package reuses both for
// human-readable dumps.
package code

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Instructions is a flat, linear sequence of encoded bytecode.
type Instructions []byte

// Opcode is a single bytecode instruction tag.
type Opcode byte

//nolint:revive
const (
	// OpConstant pushes constants[operand] onto the operand stack.
	OpConstant Opcode = iota

	// Arithmetic and comparison operate on the top two stack values;
	// gel has no separate int/float opcodes, coercion happens at
	// execution time per spec's numeric tower rules.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterEq
	OpLessThan
	OpLessEq

	// OpOr pops two values and pushes their truthy-or: used only to
	// combine a case clause's multiple datum tests into a single branch
	// condition, never produced by ordinary "or" user syntax (gel has no
	// such binary operator at the surface level; a multi-way case
	// clause is the sole source of this opcode).
	OpOr

	// OpMinus and OpBang are the unary operators.
	OpMinus
	OpBang

	OpTrue
	OpFalse
	OpNull

	OpPop

	// OpJumpNotTruthy and OpJump take a 2-byte absolute instruction
	// offset operand.
	OpJumpNotTruthy
	OpJump

	// OpGetGlobal/OpSetGlobal take a 2-byte index into the global
	// binding table.
	OpGetGlobal
	OpSetGlobal

	// OpGetLocal/OpSetLocal take a 1-byte index into the current
	// frame's locals.
	OpGetLocal
	OpSetLocal

	// OpGetFree takes a 1-byte index into the current closure's
	// captured free variables.
	OpGetFree

	// OpGetNative takes a 1-byte index into the native procedure table.
	OpGetNative

	// OpArray pops operand elements and pushes an Array.
	OpArray

	// OpList pops operand elements and pushes a proper Pair-chain list,
	// built right to left so the first popped element ends up last.
	OpList

	// OpMap pops operand*2 key/value pairs and pushes a Map.
	OpMap

	// OpIndex pops [collection, index] and pushes collection[index].
	OpIndex
	// OpSetIndex pops [collection, index, value], mutates in place, and
	// pushes no value.
	OpSetIndex

	// OpCall takes a 1-byte argument count.
	OpCall
	OpReturnValue
	OpReturn

	// OpClosure takes [constant_index:2, num_free:1].
	OpClosure
	OpCurrentClosure

	// OpThrow pops a value, wraps it as an Error if needed, and begins
	// unwind propagation.
	OpThrow

	// OpNewInstance takes a 2-byte constant index naming the Class
	// symbol and pops operandCount field values (read from a following
	// 1-byte field count) to populate the new Instance.
	OpNewInstance

	// OpCast takes a 2-byte constant index naming the target type.
	OpCast

	// OpInstanceOf takes a 2-byte constant index naming the type to
	// test against.
	OpInstanceOf

	// OpLoadInstanceMethod takes a 2-byte constant index naming the
	// method symbol; pops a receiver and pushes a bound CompiledProcedure.
	OpLoadInstanceMethod
)

// Definition documents one opcode's mnemonic and operand widths.
type Definition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*Definition{
	OpConstant:            {"OpConstant", []int{2}},
	OpAdd:                 {"OpAdd", []int{}},
	OpSub:                 {"OpSub", []int{}},
	OpMul:                 {"OpMul", []int{}},
	OpDiv:                 {"OpDiv", []int{}},
	OpMod:                 {"OpMod", []int{}},
	OpEqual:               {"OpEqual", []int{}},
	OpNotEqual:            {"OpNotEqual", []int{}},
	OpGreaterThan:         {"OpGreaterThan", []int{}},
	OpGreaterEq:           {"OpGreaterEq", []int{}},
	OpLessThan:            {"OpLessThan", []int{}},
	OpLessEq:              {"OpLessEq", []int{}},
	OpOr:                  {"OpOr", []int{}},
	OpMinus:               {"OpMinus", []int{}},
	OpBang:                {"OpBang", []int{}},
	OpTrue:                {"OpTrue", []int{}},
	OpFalse:               {"OpFalse", []int{}},
	OpNull:                {"OpNull", []int{}},
	OpPop:                 {"OpPop", []int{}},
	OpJumpNotTruthy:       {"OpJumpNotTruthy", []int{2}},
	OpJump:                {"OpJump", []int{2}},
	OpGetGlobal:           {"OpGetGlobal", []int{2}},
	OpSetGlobal:           {"OpSetGlobal", []int{2}},
	OpGetLocal:            {"OpGetLocal", []int{1}},
	OpSetLocal:            {"OpSetLocal", []int{1}},
	OpGetFree:             {"OpGetFree", []int{1}},
	OpGetNative:           {"OpGetNative", []int{1}},
	OpArray:               {"OpArray", []int{2}},
	OpList:                {"OpList", []int{2}},
	OpMap:                 {"OpMap", []int{2}},
	OpIndex:               {"OpIndex", []int{}},
	OpSetIndex:            {"OpSetIndex", []int{}},
	OpCall:                {"OpCall", []int{1}},
	OpReturnValue:         {"OpReturnValue", []int{}},
	OpReturn:              {"OpReturn", []int{}},
	OpClosure:             {"OpClosure", []int{2, 1}},
	OpCurrentClosure:      {"OpCurrentClosure", []int{}},
	OpThrow:               {"OpThrow", []int{}},
	OpNewInstance:         {"OpNewInstance", []int{2, 1}},
	OpCast:                {"OpCast", []int{2}},
	OpInstanceOf:          {"OpInstanceOf", []int{2}},
	OpLoadInstanceMethod:  {"OpLoadInstanceMethod", []int{2}},
}

// Lookup returns the Definition for op.
func Lookup(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// Make encodes op and its operands into a single instruction.
func Make(op Opcode, operands ...int) []byte {
	def, ok := definitions[op]
	if !ok {
		return []byte{}
	}
	length := 1
	for _, w := range def.OperandWidths {
		length += w
	}
	instruction := make([]byte, length)
	instruction[0] = byte(op)
	offset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 1:
			instruction[offset] = byte(operand)
		case 2:
			binary.BigEndian.PutUint16(instruction[offset:], uint16(operand))
		}
		offset += width
	}
	return instruction
}

// ReadOperands decodes the operands for def out of ins, returning them
// along with the number of bytes consumed.
func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0
	for i, width := range def.OperandWidths {
		switch width {
		case 1:
			operands[i] = int(ReadUint8(ins[offset:]))
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		}
		offset += width
	}
	return operands, offset
}

// ReadUint16 decodes a big-endian uint16 from the start of ins.
func ReadUint16(ins Instructions) uint16 { return binary.BigEndian.Uint16(ins) }

// ReadUint8 decodes the first byte of ins.
func ReadUint8(ins Instructions) uint8 { return ins[0] }

// String renders Instructions as an indented disassembly listing.
func (ins Instructions) String() string {
	var out strings.Builder
	i := 0
	for i < len(ins) {
		def, err := Lookup(ins[i])
		if err != nil {
			_, _ = fmt.Fprintf(&out, "ERROR: %s\n", err)
			i++
			continue
		}
		operands, read := ReadOperands(def, ins[i+1:])
		_, _ = fmt.Fprintf(&out, "%04d %s\n", i, ins.fmtInstruction(def, operands))
		i += read + 1
	}
	return out.String()
}

func (ins Instructions) fmtInstruction(def *Definition, operands []int) string {
	switch len(def.OperandWidths) {
	case 0:
		return def.Name
	case 1:
		return fmt.Sprintf("%s %d", def.Name, operands[0])
	case 2:
		return fmt.Sprintf("%s %d %d", def.Name, operands[0], operands[1])
	default:
		return fmt.Sprintf("ERROR: unhandled operand count for %s", def.Name)
	}
}

// CodeRegion is the assembled output for one compiled procedure or
// top-level script body: its instruction stream plus the constant pool
// it indexes into.
type CodeRegion struct {
	Instructions Instructions
	Constants    []any // []object.Object; typed any to avoid an import cycle
	// SourcePositions maps each instruction's starting byte offset to
	// the row it was compiled from, for error messages and disasm.
	SourcePositions map[int]int
}

// NewCodeRegion creates an empty CodeRegion ready for a compiler to
// append to.
func NewCodeRegion() *CodeRegion {
	return &CodeRegion{SourcePositions: make(map[int]int)}
}
