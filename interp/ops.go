package interp

import (
	"fmt"

	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/object"
)

// executeBinaryOp implements the BinaryOp row of spec.md's
// instruction-effect table: arithmetic coerces Long+Double to Double,
// string+string concatenates, + on a Pair pair-appends, mixed-type +
// throws, and division by zero throws. Comparisons delegate equality
// to object.Equal rather than Go's ==, per the "reference equality is
// never exposed to scripts" rule.
func (i *Interp) executeBinaryOp(op code.Opcode) error {
	right := i.stack.Pop()
	left := i.stack.Pop()

	switch op {
	case code.OpEqual:
		return i.stack.Push(nativeBool(object.Equal(left, right)))
	case code.OpNotEqual:
		return i.stack.Push(nativeBool(!object.Equal(left, right)))
	case code.OpOr:
		return i.stack.Push(nativeBool(object.IsTruthy(left) || object.IsTruthy(right)))
	}

	lp, lIsPair := left.(*object.Pair)
	if op == code.OpAdd && lIsPair {
		return i.stack.Push(appendPair(lp, right))
	}

	ls, lIsStr := left.(*object.String)
	rs, rIsStr := right.(*object.String)
	if op == code.OpAdd && lIsStr && rIsStr {
		return i.stack.Push(&object.String{Value: ls.Value + rs.Value})
	}

	ll, lIsLong := left.(*object.Long)
	rl, rIsLong := right.(*object.Long)
	if lIsLong && rIsLong {
		return i.executeLongBinaryOp(op, ll.Value, rl.Value)
	}

	lf, lok := numericValue(left)
	rf, rok := numericValue(right)
	if lok && rok {
		return i.executeDoubleBinaryOp(op, lf, rf)
	}

	return i.stack.Push(&object.Error{Message: fmt.Sprintf(
		"type mismatch: cannot apply %s to %s and %s", opName(op), left.Type(), right.Type())})
}

func numericValue(obj object.Object) (float64, bool) {
	switch v := obj.(type) {
	case *object.Long:
		return float64(v.Value), true
	case *object.Double:
		return v.Value, true
	default:
		return 0, false
	}
}

func appendPair(left *object.Pair, right object.Object) object.Object {
	elems := make([]object.Object, 0, 4)
	var cur object.Object = left
	for {
		p, ok := cur.(*object.Pair)
		if !ok {
			break
		}
		elems = append(elems, p.Car)
		cur = p.Cdr
	}
	var tail object.Object = right
	for j := len(elems) - 1; j >= 0; j-- {
		tail = &object.Pair{Car: elems[j], Cdr: tail}
	}
	return tail
}

func (i *Interp) executeLongBinaryOp(op code.Opcode, left, right int64) error {
	switch op {
	case code.OpAdd:
		return i.stack.Push(&object.Long{Value: left + right})
	case code.OpSub:
		return i.stack.Push(&object.Long{Value: left - right})
	case code.OpMul:
		return i.stack.Push(&object.Long{Value: left * right})
	case code.OpDiv:
		if right == 0 {
			return i.stack.Push(&object.Error{Message: "division by zero"})
		}
		return i.stack.Push(&object.Long{Value: left / right})
	case code.OpMod:
		if right == 0 {
			return i.stack.Push(&object.Error{Message: "division by zero"})
		}
		return i.stack.Push(&object.Long{Value: left % right})
	case code.OpGreaterThan:
		return i.stack.Push(nativeBool(left > right))
	case code.OpGreaterEq:
		return i.stack.Push(nativeBool(left >= right))
	case code.OpLessThan:
		return i.stack.Push(nativeBool(left < right))
	case code.OpLessEq:
		return i.stack.Push(nativeBool(left <= right))
	default:
		return fmt.Errorf("interp: unknown integer operator %s", opName(op))
	}
}

func (i *Interp) executeDoubleBinaryOp(op code.Opcode, left, right float64) error {
	switch op {
	case code.OpAdd:
		return i.stack.Push(&object.Double{Value: left + right})
	case code.OpSub:
		return i.stack.Push(&object.Double{Value: left - right})
	case code.OpMul:
		return i.stack.Push(&object.Double{Value: left * right})
	case code.OpDiv:
		if right == 0 {
			return i.stack.Push(&object.Error{Message: "division by zero"})
		}
		return i.stack.Push(&object.Double{Value: left / right})
	case code.OpGreaterThan:
		return i.stack.Push(nativeBool(left > right))
	case code.OpGreaterEq:
		return i.stack.Push(nativeBool(left >= right))
	case code.OpLessThan:
		return i.stack.Push(nativeBool(left < right))
	case code.OpLessEq:
		return i.stack.Push(nativeBool(left <= right))
	default:
		return fmt.Errorf("interp: unknown float operator %s", opName(op))
	}
}

func opName(op code.Opcode) string {
	def, err := code.Lookup(byte(op))
	if err != nil {
		return "?"
	}
	return def.Name
}

// executeUnaryOp implements UnaryOp: OpMinus negates a numeric value,
// OpBang inverts truthiness.
func (i *Interp) executeUnaryOp(op code.Opcode) error {
	value := i.stack.Pop()
	switch op {
	case code.OpBang:
		return i.stack.Push(nativeBool(!object.IsTruthy(value)))
	case code.OpMinus:
		switch v := value.(type) {
		case *object.Long:
			return i.stack.Push(&object.Long{Value: -v.Value})
		case *object.Double:
			return i.stack.Push(&object.Double{Value: -v.Value})
		default:
			return i.stack.Push(&object.Error{Message: fmt.Sprintf("cannot negate %s", value.Type())})
		}
	default:
		return fmt.Errorf("interp: unknown unary operator %s", opName(op))
	}
}

// pushClosure builds a runtime closure from the constant-pool template
// at constIdx, copying numFree values off the stack into its Free
// list — the template itself (compiled once) carries no Free values;
// each OpClosure execution produces a distinct instance.
func (i *Interp) pushClosure(constIdx, numFree int) error {
	template, ok := i.currentConstants()[constIdx].(*object.CompiledProcedure)
	if !ok {
		return fmt.Errorf("interp: constant %d is not a compiled procedure", constIdx)
	}
	free := make([]object.Object, numFree)
	copy(free, i.stack.Slice(i.stack.Depth()-numFree, i.stack.Depth()))
	if err := i.stack.SetTo(i.stack.Depth() - numFree); err != nil {
		return err
	}
	closure := &object.CompiledProcedure{
		Name:          template.Name,
		Region:        template.Region,
		NumLocals:     template.NumLocals,
		NumParameters: template.NumParameters,
		Free:          free,
	}
	return i.stack.Push(closure)
}

// executeCall dispatches OpCall. By the time the compiler reaches a
// call site, the callee has always just been compiled last (see
// compiler.go's Invoke/InvokeDynamic/InvokeNative handling), so it
// sits on top of its own already-pushed arguments: [args..., callee].
func (i *Interp) executeCall(numArgs int) error {
	callee := i.stack.Pop()
	switch fn := callee.(type) {
	case *object.CompiledProcedure:
		return i.callProcedure(fn, numArgs)
	case *object.NativeProcedure:
		return i.callNative(fn, numArgs)
	default:
		if err := i.stack.SetTo(i.stack.Depth() - numArgs); err != nil {
			return err
		}
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not callable", callee.Type())})
	}
}

func (i *Interp) callProcedure(proc *object.CompiledProcedure, numArgs int) error {
	if numArgs != proc.NumParameters {
		if err := i.stack.SetTo(i.stack.Depth() - numArgs); err != nil {
			return err
		}
		return i.stack.Push(&object.Error{Message: fmt.Sprintf(
			"wrong number of arguments: want %d, got %d", proc.NumParameters, numArgs)})
	}
	if i.framesIndex >= MaxFrames {
		return fmt.Errorf("interp: stack overflow (call depth exceeded %d)", MaxFrames)
	}
	basePointer := i.stack.Depth() - numArgs
	i.pushFrame(NewStackFrame(proc, basePointer))
	// Reserve the procedure's local slots beyond its bound parameters;
	// SetAt grows the stack's logical depth as a side effect.
	for j := numArgs; j < proc.NumLocals; j++ {
		i.stack.SetAt(basePointer+j, &object.Null{})
	}
	return nil
}

func (i *Interp) callNative(native *object.NativeProcedure, numArgs int) error {
	args := make([]object.Object, numArgs)
	copy(args, i.stack.Slice(i.stack.Depth()-numArgs, i.stack.Depth()))
	if err := i.stack.SetTo(i.stack.Depth() - numArgs); err != nil {
		return err
	}
	result := native.Fn(args...)
	if result == nil {
		return nil
	}
	return i.stack.Push(result)
}

func (i *Interp) executeMap(n int) error {
	depth := i.stack.Depth()
	keys := i.stack.Slice(depth-2*n, depth-n)
	values := i.stack.Slice(depth-n, depth)
	m := object.NewMap()
	for j := 0; j < n; j++ {
		hk, ok := keys[j].(object.Hashable)
		if !ok {
			if err := i.stack.SetTo(depth - 2*n); err != nil {
				return err
			}
			return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not usable as a map key", keys[j].Type())})
		}
		m.Pairs[hk.HashKey()] = object.MapPair{Key: keys[j], Value: values[j]}
	}
	if err := i.stack.SetTo(depth - 2*n); err != nil {
		return err
	}
	return i.stack.Push(m)
}

func (i *Interp) executeIndex(left, index object.Object) error {
	switch l := left.(type) {
	case *object.Array:
		idx, ok := index.(*object.Long)
		if !ok || idx.Value < 0 || int(idx.Value) >= len(l.Elements) {
			return i.stack.Push(&object.Error{Message: "array index out of bounds"})
		}
		return i.stack.Push(l.Elements[idx.Value])
	case *object.Map:
		hk, ok := index.(object.Hashable)
		if !ok {
			return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not usable as a map key", index.Type())})
		}
		pair, found := l.Pairs[hk.HashKey()]
		if !found {
			return i.stack.Push(&object.Null{})
		}
		return i.stack.Push(pair.Value)
	default:
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not indexable", left.Type())})
	}
}

func (i *Interp) executeSetIndex(left, index, value object.Object) error {
	switch l := left.(type) {
	case *object.Array:
		idx, ok := index.(*object.Long)
		if !ok || idx.Value < 0 || int(idx.Value) >= len(l.Elements) {
			return i.stack.Push(&object.Error{Message: "array index out of bounds"})
		}
		l.Elements[idx.Value] = value
		return nil
	case *object.Map:
		hk, ok := index.(object.Hashable)
		if !ok {
			return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not usable as a map key", index.Type())})
		}
		l.Pairs[hk.HashKey()] = object.MapPair{Key: index, Value: value}
		return nil
	default:
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not indexable", left.Type())})
	}
}

// allFields walks class's ancestor chain root-first, collecting the
// field names a NewInstance's arguments bind to, in declaration order.
func allFields(class *object.Class) []string {
	var chain []*object.Class
	for c := class; c != nil; c = c.Parent {
		chain = append(chain, c)
	}
	var names []string
	for j := len(chain) - 1; j >= 0; j-- {
		for _, f := range chain[j].Fields {
			names = append(names, f.Name)
		}
	}
	return names
}

func (i *Interp) executeNewInstance(constIdx, fieldCount int) error {
	sym, ok := i.currentConstants()[constIdx].(*object.Symbol)
	if !ok {
		return fmt.Errorf("interp: constant %d is not a class symbol", constIdx)
	}
	class, ok := i.Classes[sym.Value]
	if !ok {
		if err := i.stack.SetTo(i.stack.Depth() - fieldCount); err != nil {
			return err
		}
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("unknown class %s", sym.Value)})
	}
	args := make([]object.Object, fieldCount)
	depth := i.stack.Depth()
	copy(args, i.stack.Slice(depth-fieldCount, depth))
	if err := i.stack.SetTo(depth - fieldCount); err != nil {
		return err
	}
	names := allFields(class)
	if len(names) != fieldCount {
		return i.stack.Push(&object.Error{Message: fmt.Sprintf(
			"%s expects %d fields, got %d", sym.Value, len(names), fieldCount)})
	}
	inst := &object.Instance{Class: class, Fields: make(map[string]object.Object, len(names))}
	for j, name := range names {
		inst.Fields[name] = args[j]
	}
	return i.stack.Push(inst)
}

// executeCast supports the numeric-tower coercions (Long<->Double) and
// Class narrowing along a single ancestor chain, per DESIGN.md's
// resolution of the Cast/InstanceOf open question; anything else
// throws.
func (i *Interp) executeCast(constIdx int) error {
	sym, ok := i.currentConstants()[constIdx].(*object.Symbol)
	if !ok {
		return fmt.Errorf("interp: constant %d is not a type symbol", constIdx)
	}
	value := i.stack.Pop()
	switch sym.Value {
	case "Long":
		switch v := value.(type) {
		case *object.Long:
			return i.stack.Push(v)
		case *object.Double:
			return i.stack.Push(&object.Long{Value: int64(v.Value)})
		}
	case "Double":
		switch v := value.(type) {
		case *object.Double:
			return i.stack.Push(v)
		case *object.Long:
			return i.stack.Push(&object.Double{Value: float64(v.Value)})
		}
	default:
		if inst, ok := value.(*object.Instance); ok {
			for c := inst.Class; c != nil; c = c.Parent {
				if c.Name == sym.Value {
					return i.stack.Push(inst)
				}
			}
		}
	}
	return i.stack.Push(&object.Error{Message: fmt.Sprintf("cannot cast %s to %s", value.Type(), sym.Value)})
}

func (i *Interp) executeInstanceOf(constIdx int) error {
	sym, ok := i.currentConstants()[constIdx].(*object.Symbol)
	if !ok {
		return fmt.Errorf("interp: constant %d is not a type symbol", constIdx)
	}
	value := i.stack.Pop()
	if string(value.Type()) == sym.Value {
		return i.stack.Push(trueObj)
	}
	if inst, ok := value.(*object.Instance); ok {
		for c := inst.Class; c != nil; c = c.Parent {
			if c.Name == sym.Value {
				return i.stack.Push(trueObj)
			}
		}
	}
	return i.stack.Push(falseObj)
}

// executeLoadInstanceMethod resolves Method against the receiver's
// Class chain and binds it: since object.CompiledProcedure has no
// separate bound-method wrapper, the receiver is prepended as the
// method's sole free variable — method bodies reference it as the
// first captured free variable, a convention the compiler's method
// lowering must follow to match.
func (i *Interp) executeLoadInstanceMethod(constIdx int) error {
	sym, ok := i.currentConstants()[constIdx].(*object.Symbol)
	if !ok {
		return fmt.Errorf("interp: constant %d is not a method symbol", constIdx)
	}
	receiver := i.stack.Pop()
	inst, ok := receiver.(*object.Instance)
	if !ok {
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s is not an instance", receiver.Type())})
	}
	lam, ok := inst.Class.LookupMethod(sym.Value)
	if !ok {
		return i.stack.Push(&object.Error{Message: fmt.Sprintf("%s has no method %s", inst.Class.Name, sym.Value)})
	}
	compiled, cached := i.methodCache[lam]
	if !cached {
		if i.CompileLambda == nil {
			return fmt.Errorf("interp: no LambdaCompiler installed to compile method %s", sym.Value)
		}
		var err error
		compiled, err = i.CompileLambda(lam)
		if err != nil {
			return i.stack.Push(&object.Error{Message: fmt.Sprintf("compiling method %s: %v", sym.Value, err)})
		}
		i.methodCache[lam] = compiled
	}
	bound := &object.CompiledProcedure{
		Name:          compiled.Name,
		Region:        compiled.Region,
		NumLocals:     compiled.NumLocals,
		NumParameters: compiled.NumParameters,
		Free:          append([]object.Object{inst}, compiled.Free...),
	}
	return i.stack.Push(bound)
}
