package flowgraph

import (
	"fmt"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/object"
)

// tempCounter-based synthetic names back the join-block value merges
// below. gel's IR has no SSA phi instruction — a bytecode target has no
// use for one — so a conditional's result is instead written to a
// synthetic variable in each arm and read back after the join, exactly
// as the compiler already does for ordinary named locals.
const tempPrefix = "$t"

// Builder lowers an ast.Expression tree (already macro-expanded) into a
// FlowGraph. It holds a "current block" cursor that every lowering
// method appends to, in the go/ssa style. Every form is lowered by
// buildValue, which appends its instructions (possibly ending the
// current block with a terminator and advancing the cursor to a
// successor) and returns the instruction producing its value; values
// of forms kept only for effect are popped by the compiler.
type Builder struct {
	graph    *FlowGraph
	cur      *Block
	nextID   int
	nextTemp int

	// ReactiveEnabled gates RxOpExpr: false makes it a compile error
	// rather than a runtime one, since reactive support is a
	// build-time capability, not a value any program can branch on.
	ReactiveEnabled bool
}

// NewBuilder creates a Builder ready to lower one procedure or script
// body.
func NewBuilder(reactiveEnabled bool) *Builder {
	return &Builder{ReactiveEnabled: reactiveEnabled}
}

func (b *Builder) id() int {
	b.nextID++
	return b.nextID
}

func (b *Builder) temp() string {
	b.nextTemp++
	return fmt.Sprintf("%s%d", tempPrefix, b.nextTemp)
}

func (b *Builder) emit(instr Instruction) Instruction {
	switch v := instr.(type) {
	case *Constant:
		v.id = b.id()
	case *LoadLocal:
		v.id = b.id()
	case *LoadNative:
		v.id = b.id()
	case *UnaryOp:
		v.id = b.id()
	case *BinaryOp:
		v.id = b.id()
	case *Eval:
		v.id = b.id()
	case *Invoke:
		v.id = b.id()
	case *InvokeDynamic:
		v.id = b.id()
	case *InvokeNative:
		v.id = b.id()
	case *NewInstance:
		v.id = b.id()
	case *NewMap:
		v.id = b.id()
	case *NewList:
		v.id = b.id()
	case *Cast:
		v.id = b.id()
	case *InstanceOf:
		v.id = b.id()
	case *LoadInstanceMethod:
		v.id = b.id()
	}
	b.cur.Append(instr)
	return instr
}

// BuildScript lowers every top-level form of script into a single
// FlowGraph whose Return value is the last form's value (Null if the
// script is empty).
func (b *Builder) BuildScript(script *ast.Script) (*FlowGraph, error) {
	b.graph = NewFlowGraph()
	b.cur = b.graph.Entry

	val, err := b.buildSequence(script.Forms)
	if err != nil {
		return nil, err
	}
	if b.cur.Term == nil {
		b.cur.SetTerm(&Return{Value: val})
	}
	return b.graph, nil
}

// BuildLambda lowers a LambdaDef's body into a FlowGraph representing
// one compiled procedure.
func (b *Builder) BuildLambda(lam *ast.LambdaDef) (*FlowGraph, error) {
	b.graph = NewFlowGraph()
	b.graph.Params = lam.Args
	b.cur = b.graph.Entry

	val, err := b.buildSequence(lam.Body)
	if err != nil {
		return nil, err
	}
	if b.cur.Term == nil {
		b.cur.SetTerm(&Return{Value: val})
	}
	return b.graph, nil
}

// buildSequence lowers a body of expressions in order; the last one's
// value is the sequence's result, and the others' values are left for
// the compiler to pop. An empty body yields a Null constant.
func (b *Builder) buildSequence(body []ast.Expression) (Instruction, error) {
	if len(body) == 0 {
		return b.emit(&Constant{Value: nil}), nil
	}
	for _, e := range body[:len(body)-1] {
		if _, err := b.buildValue(e); err != nil {
			return nil, err
		}
		if b.cur.Term != nil {
			// A Throw/Return terminated this block; the remaining
			// forms are unreachable.
			return &Constant{Value: nil}, nil
		}
	}
	return b.buildValue(body[len(body)-1])
}

// buildValue lowers e and returns the Instruction producing its value.
func (b *Builder) buildValue(e ast.Expression) (Instruction, error) {
	return b.dispatch(e)
}

func (b *Builder) dispatch(e ast.Expression) (Instruction, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return b.emit(&Constant{Value: n.Value}), nil
	case *ast.Binding:
		if isOperatorName(n.Name) {
			return b.emit(&LoadNative{Name: n.Name}), nil
		}
		return b.emit(&LoadLocal{Name: n.Name}), nil
	case *ast.BinaryOp:
		return b.buildBinaryOp(n)
	case *ast.UnaryOp:
		return b.buildUnaryOp(n)
	case *ast.CallProc:
		return b.buildCallProc(n)
	case *ast.Begin:
		return b.buildSequence(n.Body)
	case *ast.Cond:
		return b.buildCond(n)
	case *ast.When:
		return b.buildWhen(n)
	case *ast.While:
		return b.buildWhile(n)
	case *ast.Case:
		return b.buildCase(n)
	case *ast.Quoted:
		return b.emit(&Constant{Value: n.Datum}), nil
	case *ast.Let:
		return b.buildLet(n, false)
	case *ast.LetRec:
		return b.buildLet(&ast.Let{Position: n.Position, Bindings: n.Bindings, Body: n.Body}, true)
	case *ast.LambdaDef:
		// A nested fn/defn produces a closure value at runtime; the
		// compiler lowers its body into its own CodeRegion separately
		// and wraps it here as a constant closure template.
		return b.emit(&Constant{Value: n}), nil
	case *ast.MacroDef:
		// Macros have no runtime value; they exist only for the
		// expander and never reach the flowgraph in a well-formed
		// program. Treat as a no-op producing Null defensively.
		return b.emit(&Constant{Value: nil}), nil
	case *ast.LocalDef:
		val, err := b.buildValue(n.Value)
		if err != nil {
			return nil, err
		}
		b.cur.Append(&StoreVariable{Name: n.Name, Value: val})
		return b.emit(&Constant{Value: nil}), nil
	case *ast.SetExpr:
		val, err := b.buildValue(n.Value)
		if err != nil {
			return nil, err
		}
		b.cur.Append(&StoreVariable{Name: n.Name, Value: val})
		return b.emit(&Constant{Value: nil}), nil
	case *ast.ModuleDef:
		return b.buildImportLike(n.Name, n.Body)
	case *ast.ImportExpr:
		return b.buildImportLike(n.Name, nil)
	case *ast.ThrowExpr:
		val, err := b.buildValue(n.Value)
		if err != nil {
			return nil, err
		}
		b.cur.SetTerm(&Throw{Value: val})
		return val, nil
	case *ast.NewExpr:
		args, err := b.buildArgs(n.Args)
		if err != nil {
			return nil, err
		}
		return b.emit(&NewInstance{ClassName: n.ClassName, Args: args}), nil
	case *ast.NewMapExpr:
		keys, err := b.buildArgs(n.Keys)
		if err != nil {
			return nil, err
		}
		vals, err := b.buildArgs(n.Values)
		if err != nil {
			return nil, err
		}
		return b.emit(&NewMap{Keys: keys, Values: vals}), nil
	case *ast.CastExpr:
		val, err := b.buildValue(n.Value)
		if err != nil {
			return nil, err
		}
		return b.emit(&Cast{TargetType: n.Type, Value: val}), nil
	case *ast.InstanceOfExpr:
		val, err := b.buildValue(n.Value)
		if err != nil {
			return nil, err
		}
		return b.emit(&InstanceOf{TargetType: n.Type, Value: val}), nil
	case *ast.LoadInstanceMethodExpr:
		recv, err := b.buildValue(n.Receiver)
		if err != nil {
			return nil, err
		}
		return b.emit(&LoadInstanceMethod{Receiver: recv, Method: n.Method}), nil
	case *ast.ListExpr:
		elems, err := b.buildArgs(n.Elements)
		if err != nil {
			return nil, err
		}
		return b.emit(&NewList{Elements: elems}), nil
	case *ast.RxOpExpr:
		if !b.ReactiveEnabled {
			return nil, fmt.Errorf("flowgraph: rx operator %q used but reactive support is disabled at build time", n.Op)
		}
		args, err := b.buildArgs(n.Args)
		if err != nil {
			return nil, err
		}
		return b.emit(&InvokeNative{Name: "rx:" + n.Op, Args: args}), nil
	default:
		return nil, fmt.Errorf("flowgraph: unhandled expression type %T", e)
	}
}

func isOperatorName(name string) bool {
	switch name {
	case "+", "-", "*", "/", "%", "<", "<=", ">", ">=", "==", "!=":
		return true
	default:
		return false
	}
}

func (b *Builder) buildBinaryOp(n *ast.BinaryOp) (Instruction, error) {
	left, err := b.buildValue(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.buildValue(n.Right)
	if err != nil {
		return nil, err
	}
	return b.emit(&BinaryOp{Op: string(n.Op), Left: left, Right: right}), nil
}

func (b *Builder) buildUnaryOp(n *ast.UnaryOp) (Instruction, error) {
	val, err := b.buildValue(n.Value)
	if err != nil {
		return nil, err
	}
	return b.emit(&UnaryOp{Op: string(n.Op), Value: val}), nil
}

func (b *Builder) buildArgs(exprs []ast.Expression) ([]Instruction, error) {
	out := make([]Instruction, len(exprs))
	for i, e := range exprs {
		val, err := b.buildValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func (b *Builder) buildCallProc(n *ast.CallProc) (Instruction, error) {
	args, err := b.buildArgs(n.Args)
	if err != nil {
		return nil, err
	}
	if name, ok := targetName(n.Target); ok {
		return b.emit(&Invoke{Target: &LoadLocal{Name: name}, Args: args}), nil
	}
	target, err := b.buildValue(n.Target)
	if err != nil {
		return nil, err
	}
	return b.emit(&InvokeDynamic{Target: target, Args: args}), nil
}

func targetName(e ast.Expression) (string, bool) {
	if bind, ok := e.(*ast.Binding); ok {
		return bind.Name, true
	}
	return "", false
}

func (b *Builder) buildImportLike(name string, body []ast.Expression) (Instruction, error) {
	if len(body) > 0 {
		// A ModuleDef's body is compiled as its own implicit script and
		// handed to the `import` native as a closure-producing thunk;
		// here we lower it inline for simplicity, relying on the
		// runtime's namespace merge semantics at InvokeNative time.
		if _, err := b.buildSequence(body); err != nil {
			return nil, err
		}
	}
	arg := b.emit(&Constant{Value: &object.String{Value: name}})
	return b.emit(&InvokeNative{Name: "import", Args: []Instruction{arg}}), nil
}

// buildCond lowers a Cond into a chain of Branch/TargetEntry blocks
// converging on a single JoinEntry block, each arm storing its value
// into a shared synthetic temporary read back after the join.
func (b *Builder) buildCond(n *ast.Cond) (Instruction, error) {
	resultVar := b.temp()
	joinPreds := make([]*Block, 0, len(n.Clauses))

	next := b.cur
	for _, clause := range n.Clauses {
		if clause.Test == nil {
			// else clause: always taken, falls straight through.
			b.cur = next
			val, err := b.buildSequence(clause.Body)
			if err != nil {
				return nil, err
			}
			if b.cur.Term == nil {
				b.cur.Append(&StoreVariable{Name: resultVar, Value: val})
				joinPreds = append(joinPreds, b.cur)
				b.cur.SetTerm(&Goto{})
			}
			next = nil
			break
		}

		b.cur = next
		test, err := b.buildValue(clause.Test)
		if err != nil {
			return nil, err
		}
		thenBlock := b.graph.NewTargetBlock(b.cur)
		elseBlock := b.graph.NewTargetBlock(b.cur)
		b.cur.SetTerm(&Branch{Cond: test, Then: thenBlock, Else: elseBlock})

		b.cur = thenBlock
		val, err := b.buildSequence(clause.Body)
		if err != nil {
			return nil, err
		}
		if b.cur.Term == nil {
			b.cur.Append(&StoreVariable{Name: resultVar, Value: val})
			joinPreds = append(joinPreds, b.cur)
			b.cur.SetTerm(&Goto{})
		}

		next = elseBlock
	}

	if next != nil {
		// No else clause matched and control fell off the end: the
		// result is Null.
		b.cur = next
		null := b.emit(&Constant{Value: nil})
		b.cur.Append(&StoreVariable{Name: resultVar, Value: null})
		joinPreds = append(joinPreds, b.cur)
		b.cur.SetTerm(&Goto{})
	}

	join := b.graph.NewJoinBlock(joinPreds...)
	for _, p := range joinPreds {
		if g, ok := p.Term.(*Goto); ok {
			g.Target = join
			p.Succs = []*Block{join}
			join.Preds = append(join.Preds, p)
		}
	}
	b.cur = join
	return b.emit(&LoadLocal{Name: resultVar}), nil
}

func (b *Builder) buildWhen(n *ast.When) (Instruction, error) {
	test, err := b.buildValue(n.Test)
	if err != nil {
		return nil, err
	}
	thenBlock := b.graph.NewTargetBlock(b.cur)
	joinBlock := b.graph.NewJoinBlock(b.cur)
	b.cur.SetTerm(&Branch{Cond: test, Then: thenBlock, Else: joinBlock})

	b.cur = thenBlock
	if _, err := b.buildSequence(n.Body); err != nil {
		return nil, err
	}
	if b.cur.Term == nil {
		b.cur.SetTerm(&Goto{Target: joinBlock})
		entry := joinBlock.Entry.(*JoinEntry)
		entry.Predecessors = append(entry.Predecessors, b.cur)
	}

	b.cur = joinBlock
	return b.emit(&Constant{Value: nil}), nil
}

func (b *Builder) buildWhile(n *ast.While) (Instruction, error) {
	headBlock := b.graph.NewJoinBlock(b.cur)
	b.cur.SetTerm(&Goto{Target: headBlock})
	headBlock.Preds = append(headBlock.Preds, b.cur)

	b.cur = headBlock
	test, err := b.buildValue(n.Test)
	if err != nil {
		return nil, err
	}
	bodyBlock := b.graph.NewTargetBlock(headBlock)
	exitBlock := b.graph.NewTargetBlock(headBlock)
	headBlock.SetTerm(&Branch{Cond: test, Then: bodyBlock, Else: exitBlock})

	b.cur = bodyBlock
	if _, err := b.buildSequence(n.Body); err != nil {
		return nil, err
	}
	if b.cur.Term == nil {
		b.cur.SetTerm(&Goto{Target: headBlock})
		headBlock.Preds = append(headBlock.Preds, b.cur)
	}

	b.cur = exitBlock
	return b.emit(&Constant{Value: nil}), nil
}

func (b *Builder) buildCase(n *ast.Case) (Instruction, error) {
	key, err := b.buildValue(n.Key)
	if err != nil {
		return nil, err
	}
	resultVar := b.temp()
	joinPreds := make([]*Block, 0, len(n.Clauses))

	next := b.cur
	for _, clause := range n.Clauses {
		b.cur = next
		if clause.Datums == nil {
			val, err := b.buildSequence(clause.Body)
			if err != nil {
				return nil, err
			}
			if b.cur.Term == nil {
				b.cur.Append(&StoreVariable{Name: resultVar, Value: val})
				joinPreds = append(joinPreds, b.cur)
				b.cur.SetTerm(&Goto{})
			}
			next = nil
			break
		}

		var test Instruction
		for _, d := range clause.Datums {
			datumVal, err := b.buildValue(d)
			if err != nil {
				return nil, err
			}
			eq := b.emit(&BinaryOp{Op: "==", Left: key, Right: datumVal})
			if test == nil {
				test = eq
			} else {
				test = b.emit(&BinaryOp{Op: "or", Left: test, Right: eq})
			}
		}

		thenBlock := b.graph.NewTargetBlock(b.cur)
		elseBlock := b.graph.NewTargetBlock(b.cur)
		b.cur.SetTerm(&Branch{Cond: test, Then: thenBlock, Else: elseBlock})

		b.cur = thenBlock
		val, err := b.buildSequence(clause.Body)
		if err != nil {
			return nil, err
		}
		if b.cur.Term == nil {
			b.cur.Append(&StoreVariable{Name: resultVar, Value: val})
			joinPreds = append(joinPreds, b.cur)
			b.cur.SetTerm(&Goto{})
		}

		next = elseBlock
	}

	if next != nil {
		b.cur = next
		null := b.emit(&Constant{Value: nil})
		b.cur.Append(&StoreVariable{Name: resultVar, Value: null})
		joinPreds = append(joinPreds, b.cur)
		b.cur.SetTerm(&Goto{})
	}

	join := b.graph.NewJoinBlock(joinPreds...)
	for _, p := range joinPreds {
		if g, ok := p.Term.(*Goto); ok {
			g.Target = join
			p.Succs = []*Block{join}
			join.Preds = append(join.Preds, p)
		}
	}
	b.cur = join
	return b.emit(&LoadLocal{Name: resultVar}), nil
}

// buildLet lowers both Let and LetRec. For LetRec, isRec pre-declares
// every bound name (as Null) before lowering binding values, so a
// binding's initializer may refer to sibling bindings (in particular,
// a recursive lambda referring to its own name).
func (b *Builder) buildLet(n *ast.Let, isRec bool) (Instruction, error) {
	if isRec {
		for _, bind := range n.Bindings {
			null := b.emit(&Constant{Value: nil})
			b.cur.Append(&StoreVariable{Name: bind.Name, Value: null})
		}
	}
	for _, bind := range n.Bindings {
		val, err := b.buildValue(bind.Value)
		if err != nil {
			return nil, err
		}
		b.cur.Append(&StoreVariable{Name: bind.Name, Value: val})
	}
	return b.buildSequence(n.Body)
}
