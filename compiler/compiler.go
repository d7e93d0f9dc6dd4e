// Package compiler assembles a macro-expanded, flowgraph-lowered script
// or procedure body into bytecode.
//
// Compilation walks each flowgraph.Block's Body in strict order and
// emits one opcode (or opcode pair) per Instruction, relying on an
// invariant the Builder guarantees: because every operand instruction
// is appended to Body before the instruction that consumes it, the
// Body slice is already in correct stack-machine push order. The
// compiler therefore never recompiles an operand it finds referenced
// from a later instruction — it only walks forward and emits. The one
// exception is a statically-resolved call's callee, which the Builder
// deliberately leaves out of Body (see Invoke); the compiler loads it
// right when it reaches the call.
package compiler

import (
	"encoding/binary"
	"fmt"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/flowgraph"
	"github.com/dr8co/gel/object"
)

type compilationScope struct {
	region *code.CodeRegion
}

// Options configures a Compiler.
type Options struct {
	// Natives lists the native procedure names available at fixed,
	// stable indices into the runtime's native procedure table.
	Natives []string
	// ReactiveEnabled gates RxOpExpr the same way it gates the
	// flowgraph.Builder: false makes an `rx` form a compile error.
	ReactiveEnabled bool
}

// Compiler assembles one script's worth of flowgraphs into bytecode,
// maintaining a stack of CodeRegions (one per nested procedure) and a
// matching stack of symbol tables.
type Compiler struct {
	scopes     []compilationScope
	scopeIndex int

	symbolTable *SymbolTable

	reactiveEnabled bool
}

// New creates a Compiler with a fresh global symbol table, pre-defining
// every entry of opts.Natives at its slice index.
func New(opts Options) *Compiler {
	symbolTable := NewSymbolTable()
	for i, name := range opts.Natives {
		symbolTable.DefineNative(i, name)
	}
	return NewWithState(opts, symbolTable)
}

// NewWithState creates a Compiler reusing an existing symbol table —
// the REPL's incremental-evaluation path, where each line compiles
// against the bindings every prior line declared.
func NewWithState(opts Options, symbolTable *SymbolTable) *Compiler {
	main := compilationScope{region: code.NewCodeRegion()}
	return &Compiler{
		scopes:          []compilationScope{main},
		symbolTable:     symbolTable,
		reactiveEnabled: opts.ReactiveEnabled,
	}
}

// SymbolTable exposes the compiler's current (outermost, after
// CompileScript returns) symbol table, so a REPL can thread bindings
// from one compiled line into the next.
func (c *Compiler) SymbolTable() *SymbolTable { return c.symbolTable }

// Bytecode returns the CodeRegion assembled so far in the current
// (outermost) scope.
func (c *Compiler) Bytecode() *code.CodeRegion { return c.currentRegion() }

func (c *Compiler) currentRegion() *code.CodeRegion { return c.scopes[c.scopeIndex].region }

func (c *Compiler) emit(op code.Opcode, operands ...int) int {
	ins := code.Make(op, operands...)
	region := c.currentRegion()
	pos := len(region.Instructions)
	region.Instructions = append(region.Instructions, ins...)
	return pos
}

func (c *Compiler) addConstant(obj object.Object) int {
	region := c.currentRegion()
	region.Constants = append(region.Constants, obj)
	return len(region.Constants) - 1
}

func (c *Compiler) enterScope() {
	c.scopes = append(c.scopes, compilationScope{region: code.NewCodeRegion()})
	c.scopeIndex++
	c.symbolTable = NewEnclosedSymbolTable(c.symbolTable)
}

func (c *Compiler) leaveScope() *code.CodeRegion {
	region := c.currentRegion()
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--
	c.symbolTable = c.symbolTable.Outer
	return region
}

// CompileScript lowers script to a flowgraph and compiles it into the
// current (outermost) CodeRegion.
func (c *Compiler) CompileScript(script *ast.Script) (*code.CodeRegion, error) {
	g, err := flowgraph.NewBuilder(c.reactiveEnabled).BuildScript(script)
	if err != nil {
		return nil, err
	}
	if err := c.compileGraph(g); err != nil {
		return nil, err
	}
	return c.currentRegion(), nil
}

// pendingJump records a jump instruction's 2-byte operand position,
// to be patched with its target block's final offset once every
// block in the graph has been assembled.
type pendingJump struct {
	operandPos int
	target     *flowgraph.Block
}

// compileGraph assembles every block of g, in reverse-postorder, into
// the current scope's CodeRegion, then backpatches every jump emitted
// along the way now that every block's final offset is known.
func (c *Compiler) compileGraph(g *flowgraph.FlowGraph) error {
	region := c.currentRegion()
	offsets := make(map[*flowgraph.Block]int, len(g.Blocks))
	var pending []pendingJump
	used := collectUsedInstructions(g)

	for _, blk := range g.ReversePostorder() {
		offsets[blk] = len(region.Instructions)
		for _, instr := range blk.Body {
			if err := c.compileBodyInstr(instr); err != nil {
				return err
			}

			// A `defn` names itself for recursive self-calls inside its
			// own body (see compileLambda's DefineSelf), but it is also
			// gel's one implicit-binding surface form: `(defn f ...)`
			// binds f in the enclosing scope the way `(define f (fn
			// ...))` would bind it explicitly. Binding consumes the
			// pushed closure value; if something else also references
			// this same instruction (it doubles as a sequence's result,
			// say), reload it from the binding just created rather than
			// leaving two consumers fighting over one pushed value.
			if cnst, ok := instr.(*flowgraph.Constant); ok {
				if lam, ok := cnst.Value.(*ast.LambdaDef); ok && lam.Name != "" {
					if err := c.bindName(lam.Name); err != nil {
						return err
					}
					if used[instr] {
						if err := c.compileNameLoad(lam.Name); err != nil {
							return err
						}
					}
					continue
				}
			}

			// A value-producing instruction nobody else references is a
			// discarded effect-only result (buildSequence's non-final
			// forms, a Cond/Case/When/While used only for its side
			// effects) — pop it so the stack doesn't grow unboundedly
			// across a multi-form body.
			if instr.IsDefinition() && !used[instr] {
				c.emit(code.OpPop)
			}
		}

		jumps, err := c.compileTerminator(blk.Term)
		if err != nil {
			return err
		}
		pending = append(pending, jumps...)
	}

	for _, pj := range pending {
		target, ok := offsets[pj.target]
		if !ok {
			return fmt.Errorf("compiler: jump target block%d never assembled", pj.target.ID)
		}
		binary.BigEndian.PutUint16(region.Instructions[pj.operandPos:], uint16(target))
	}
	return nil
}

// collectUsedInstructions walks every block of g and records which
// value-producing instructions are referenced as another instruction's
// (or a terminator's) operand, wherever in the graph that reference
// lives. Anything left out is a pushed value nobody consumes, and the
// compiler must pop it to keep the stack balanced.
func collectUsedInstructions(g *flowgraph.FlowGraph) map[flowgraph.Instruction]bool {
	used := make(map[flowgraph.Instruction]bool)
	mark := func(instr flowgraph.Instruction) {
		if instr != nil {
			used[instr] = true
		}
	}
	for _, blk := range g.Blocks {
		for _, instr := range blk.Body {
			markOperands(instr, mark)
		}
		markTerminatorOperands(blk.Term, mark)
	}
	return used
}

func markOperands(instr flowgraph.Instruction, mark func(flowgraph.Instruction)) {
	switch n := instr.(type) {
	case *flowgraph.StoreVariable:
		mark(n.Value)
	case *flowgraph.UnaryOp:
		mark(n.Value)
	case *flowgraph.BinaryOp:
		mark(n.Left)
		mark(n.Right)
	case *flowgraph.Invoke:
		for _, a := range n.Args {
			mark(a)
		}
	case *flowgraph.InvokeDynamic:
		mark(n.Target)
		for _, a := range n.Args {
			mark(a)
		}
	case *flowgraph.InvokeNative:
		for _, a := range n.Args {
			mark(a)
		}
	case *flowgraph.NewInstance:
		for _, a := range n.Args {
			mark(a)
		}
	case *flowgraph.NewMap:
		for _, k := range n.Keys {
			mark(k)
		}
		for _, v := range n.Values {
			mark(v)
		}
	case *flowgraph.NewList:
		for _, e := range n.Elements {
			mark(e)
		}
	case *flowgraph.Cast:
		mark(n.Value)
	case *flowgraph.InstanceOf:
		mark(n.Value)
	case *flowgraph.LoadInstanceMethod:
		mark(n.Receiver)
	}
}

func markTerminatorOperands(term flowgraph.Instruction, mark func(flowgraph.Instruction)) {
	switch t := term.(type) {
	case *flowgraph.Branch:
		mark(t.Cond)
	case *flowgraph.Throw:
		mark(t.Value)
	case *flowgraph.Return:
		mark(t.Value)
	}
}

// compileTerminator emits the jump/return/throw ending blk and returns
// any jump operand positions still needing their target patched in.
func (c *Compiler) compileTerminator(term flowgraph.Instruction) ([]pendingJump, error) {
	switch t := term.(type) {
	case *flowgraph.Branch:
		// Cond was already compiled as part of this block's Body; its
		// value is on top of the stack here.
		notTruthyPos := c.emit(code.OpJumpNotTruthy, 9999)
		jumpPos := c.emit(code.OpJump, 9999)
		return []pendingJump{
			{operandPos: notTruthyPos + 1, target: t.Else},
			{operandPos: jumpPos + 1, target: t.Then},
		}, nil
	case *flowgraph.Goto:
		pos := c.emit(code.OpJump, 9999)
		return []pendingJump{{operandPos: pos + 1, target: t.Target}}, nil
	case *flowgraph.Throw:
		c.emit(code.OpThrow)
		return nil, nil
	case *flowgraph.Return:
		if t.Value == nil {
			c.emit(code.OpReturn)
		} else {
			c.emit(code.OpReturnValue)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("compiler: unhandled terminator type %T", term)
	}
}

// compileBodyInstr emits the opcode(s) for a single Body instruction,
// assuming every operand instruction it references was already
// compiled (and so already sits on the stack) by an earlier call to
// compileBodyInstr in the same Body walk.
func (c *Compiler) compileBodyInstr(instr flowgraph.Instruction) error {
	switch n := instr.(type) {
	case *flowgraph.Constant:
		return c.compileConstant(n)
	case *flowgraph.LoadLocal:
		return c.compileNameLoad(n.Name)
	case *flowgraph.LoadNative:
		return c.compileNameLoad(n.Name)
	case *flowgraph.StoreVariable:
		return c.compileStoreVariable(n)
	case *flowgraph.UnaryOp:
		return c.compileUnaryOp(n)
	case *flowgraph.BinaryOp:
		return c.compileBinaryOp(n)
	case *flowgraph.Invoke:
		// Args are already on the stack; the callee is a static symbol
		// reference the Builder left out of Body (see flowgraph.Invoke),
		// so it must be loaded here, immediately before the call.
		ll, ok := n.Target.(*flowgraph.LoadLocal)
		if !ok {
			return fmt.Errorf("compiler: static invoke target is %T, want *flowgraph.LoadLocal", n.Target)
		}
		if err := c.compileNameLoad(ll.Name); err != nil {
			return err
		}
		c.emit(code.OpCall, len(n.Args))
		return nil
	case *flowgraph.InvokeDynamic:
		// Args and the callee value were both already compiled in Body
		// order [args..., callee].
		c.emit(code.OpCall, len(n.Args))
		return nil
	case *flowgraph.InvokeNative:
		if err := c.compileNameLoad(n.Name); err != nil {
			return err
		}
		c.emit(code.OpCall, len(n.Args))
		return nil
	case *flowgraph.NewInstance:
		idx := c.addConstant(&object.Symbol{Value: n.ClassName})
		c.emit(code.OpNewInstance, idx, len(n.Args))
		return nil
	case *flowgraph.NewMap:
		// Keys, then Values, were each pushed as their own contiguous
		// group (see flowgraph.NewMap) — not interleaved key/value pairs.
		c.emit(code.OpMap, len(n.Keys))
		return nil
	case *flowgraph.NewList:
		c.emit(code.OpList, len(n.Elements))
		return nil
	case *flowgraph.Cast:
		idx := c.addConstant(&object.Symbol{Value: n.TargetType})
		c.emit(code.OpCast, idx)
		return nil
	case *flowgraph.InstanceOf:
		idx := c.addConstant(&object.Symbol{Value: n.TargetType})
		c.emit(code.OpInstanceOf, idx)
		return nil
	case *flowgraph.LoadInstanceMethod:
		idx := c.addConstant(&object.Symbol{Value: n.Method})
		c.emit(code.OpLoadInstanceMethod, idx)
		return nil
	case *flowgraph.Eval:
		return fmt.Errorf("compiler: unresolved Eval placeholder %q reached the compiler", n.Note)
	default:
		return fmt.Errorf("compiler: unhandled instruction type %T", instr)
	}
}

func (c *Compiler) compileConstant(n *flowgraph.Constant) error {
	switch v := n.Value.(type) {
	case nil:
		c.emit(code.OpNull)
		return nil
	case *ast.LambdaDef:
		return c.compileLambda(v)
	case object.Object:
		c.emitObjectConstant(v)
		return nil
	case ast.Expression:
		// A Quoted node's Datum is parsed as ordinary Expression syntax
		// (quoting suspends evaluation, not parsing), so a quoted list
		// such as '(1 2 3) arrives here as a *ast.CallProc rather than
		// already-built data. Fold it down to the object.Object it
		// denotes before emitting it as a constant.
		obj, err := quoteToObject(v)
		if err != nil {
			return err
		}
		c.emitObjectConstant(obj)
		return nil
	default:
		return fmt.Errorf("compiler: constant value %T is neither an object.Object nor a quoted ast.Expression", v)
	}
}

func (c *Compiler) emitObjectConstant(obj object.Object) {
	switch v := obj.(type) {
	case *object.Null:
		c.emit(code.OpNull)
	case *object.Bool:
		if v.Value {
			c.emit(code.OpTrue)
		} else {
			c.emit(code.OpFalse)
		}
	default:
		c.emit(code.OpConstant, c.addConstant(obj))
	}
}

// QuoteToObject exposes quoteToObject to callers outside this package
// (the runtime's macro evaluator, which needs the same unevaluated-
// expression-to-datum folding for a macro's argument expressions, per
// spec.md §4.3's "evaluated against its unevaluated argument
// expressions").
func QuoteToObject(e ast.Expression) (object.Object, error) { return quoteToObject(e) }

// quoteToObject folds a quoted expression's parsed syntax down to the
// datum it denotes: a literal evaluates to itself, a bare identifier
// becomes a Symbol, and any form of parenthesized list (however the
// parser happened to shape it — CallProc for the general case,
// BinaryOp/UnaryOp when its head was an operator token) becomes a
// proper Pair-chain list of its own quoted elements.
func quoteToObject(e ast.Expression) (object.Object, error) {
	switch n := e.(type) {
	case *ast.Literal:
		return n.Value, nil
	case *ast.Binding:
		return &object.Symbol{Value: n.Name}, nil
	case *ast.Quoted:
		inner, err := quoteToObject(n.Datum)
		if err != nil {
			return nil, err
		}
		return &object.Pair{
			Car: &object.Symbol{Value: "quote"},
			Cdr: &object.Pair{Car: inner, Cdr: &object.Null{}},
		}, nil
	case *ast.ListExpr:
		return quoteList(n.Elements)
	case *ast.CallProc:
		elems := make([]ast.Expression, 0, len(n.Args)+1)
		elems = append(elems, n.Target)
		elems = append(elems, n.Args...)
		return quoteList(elems)
	case *ast.UnaryOp:
		return quoteList([]ast.Expression{&ast.Binding{Name: string(n.Op)}, n.Value})
	case *ast.BinaryOp:
		return quoteList([]ast.Expression{&ast.Binding{Name: string(n.Op)}, n.Left, n.Right})
	default:
		return nil, fmt.Errorf("compiler: cannot quote expression of type %T", e)
	}
}

func quoteList(elems []ast.Expression) (object.Object, error) {
	var result object.Object = &object.Null{}
	for i := len(elems) - 1; i >= 0; i-- {
		obj, err := quoteToObject(elems[i])
		if err != nil {
			return nil, err
		}
		result = &object.Pair{Car: obj, Cdr: result}
	}
	return result, nil
}

// bindName pops the top-of-stack value (a just-compiled `defn`
// closure) into name's binding in the current scope.
func (c *Compiler) bindName(name string) error {
	sym := c.resolveOrDefine(name)
	return c.emitBind(name, sym)
}

func (c *Compiler) compileNameLoad(name string) error {
	sym, ok := c.symbolTable.Resolve(name)
	if !ok {
		return fmt.Errorf("compiler: unresolved name %q", name)
	}
	c.loadSymbol(sym)
	return nil
}

func (c *Compiler) loadSymbol(s Symbol) {
	switch s.Scope {
	case GlobalScope:
		c.emit(code.OpGetGlobal, s.Index)
	case LocalScope:
		c.emit(code.OpGetLocal, s.Index)
	case FreeScope:
		c.emit(code.OpGetFree, s.Index)
	case NativeScope:
		c.emit(code.OpGetNative, s.Index)
	case SelfScope:
		c.emit(code.OpCurrentClosure)
	}
}

// compileStoreVariable declares name in the current scope if it is not
// already bound anywhere visible (LocalDef semantics), or rebinds the
// nearest existing binding otherwise (SetExpr semantics) — the
// flowgraph does not distinguish the two forms, so symbol resolution
// alone decides which applies.
func (c *Compiler) compileStoreVariable(n *flowgraph.StoreVariable) error {
	sym := c.resolveOrDefine(n.Name)
	return c.emitBind(n.Name, sym)
}

// resolveOrDefine finds name's nearest existing binding, or declares a
// fresh one in the current scope if none is visible.
func (c *Compiler) resolveOrDefine(name string) Symbol {
	if sym, ok := c.symbolTable.DefinedLocally(name); ok {
		return sym
	}
	if sym, ok := c.symbolTable.Resolve(name); ok && sym.Scope != NativeScope {
		return sym
	}
	return c.symbolTable.Define(name)
}

// emitBind pops the top-of-stack value into sym's slot.
func (c *Compiler) emitBind(name string, sym Symbol) error {
	switch sym.Scope {
	case GlobalScope:
		c.emit(code.OpSetGlobal, sym.Index)
		return nil
	case LocalScope:
		c.emit(code.OpSetLocal, sym.Index)
		return nil
	case FreeScope:
		// Closures capture by value, not by reference — gel has no
		// OpSetFree, matching the teacher's Monkey closures, which are
		// likewise read-only snapshots of their enclosing locals.
		return fmt.Errorf("compiler: cannot rebind %q, captured from an enclosing procedure", name)
	default:
		return fmt.Errorf("compiler: cannot rebind %q in scope %s", name, sym.Scope)
	}
}

func (c *Compiler) compileUnaryOp(n *flowgraph.UnaryOp) error {
	switch n.Op {
	case "-":
		c.emit(code.OpMinus)
	case "!":
		c.emit(code.OpBang)
	default:
		return fmt.Errorf("compiler: unknown unary operator %q", n.Op)
	}
	return nil
}

func (c *Compiler) compileBinaryOp(n *flowgraph.BinaryOp) error {
	switch n.Op {
	case "+":
		c.emit(code.OpAdd)
	case "-":
		c.emit(code.OpSub)
	case "*":
		c.emit(code.OpMul)
	case "/":
		c.emit(code.OpDiv)
	case "%":
		c.emit(code.OpMod)
	case "==":
		c.emit(code.OpEqual)
	case "!=":
		c.emit(code.OpNotEqual)
	case ">":
		c.emit(code.OpGreaterThan)
	case ">=":
		c.emit(code.OpGreaterEq)
	case "<":
		c.emit(code.OpLessThan)
	case "<=":
		c.emit(code.OpLessEq)
	case "or":
		// Synthetic combinator the Builder uses to OR together a case
		// clause's multiple datum tests; never surface syntax.
		c.emit(code.OpOr)
	default:
		return fmt.Errorf("compiler: unknown binary operator %q", n.Op)
	}
	return nil
}

// compileLambda compiles lam's body into its own CodeRegion (a fresh
// scope with parameters and, for a named fn/defn, its own name
// pre-declared for unqualified recursive calls) and emits it as a
// closure constant in the enclosing scope.
func (c *Compiler) compileLambda(lam *ast.LambdaDef) error {
	c.enterScope()
	if lam.Name != "" {
		c.symbolTable.DefineSelf(lam.Name)
	}
	for _, param := range lam.Args {
		c.symbolTable.Define(param)
	}

	g, err := flowgraph.NewBuilder(c.reactiveEnabled).BuildLambda(lam)
	if err != nil {
		c.leaveScope()
		return err
	}
	if err := c.compileGraph(g); err != nil {
		c.leaveScope()
		return err
	}

	freeSymbols := c.symbolTable.FreeSymbols
	numLocals := c.symbolTable.NumDefinitions()
	region := c.leaveScope()

	for _, s := range freeSymbols {
		c.loadSymbol(s)
	}

	compiled := &object.CompiledProcedure{
		Name:          lam.Name,
		Region:        region,
		NumLocals:     numLocals,
		NumParameters: len(lam.Args),
	}
	idx := c.addConstant(compiled)
	c.emit(code.OpClosure, idx, len(freeSymbols))
	return nil
}

// CompileLambdaValue compiles an already-allocated object.Lambda's body
// into a standalone *object.CompiledProcedure, rather than emitting an
// OpClosure into whatever region is currently open. This is how a class
// method (an object.Lambda sitting in object.Class.Methods, never
// reached by ordinary surface compilation — see DESIGN.md's host-
// registered class note) gets compiled the first time it's dispatched:
// the runtime calls this against its persistent top-level Compiler so
// the method body still resolves globals and natives normally.
func (c *Compiler) CompileLambdaValue(lam *object.Lambda) (*object.CompiledProcedure, error) {
	body := make([]ast.Expression, 0, len(lam.Body))
	for _, e := range lam.Body {
		expr, ok := e.(ast.Expression)
		if !ok {
			return nil, fmt.Errorf("compiler: lambda body element is not an ast.Expression: %T", e)
		}
		body = append(body, expr)
	}
	def := &ast.LambdaDef{Name: lam.Name, Args: lam.Params, Body: body}

	c.enterScope()
	c.symbolTable.DefineReceiver("self")
	if def.Name != "" {
		c.symbolTable.DefineSelf(def.Name)
	}
	for _, param := range def.Args {
		c.symbolTable.Define(param)
	}

	g, err := flowgraph.NewBuilder(c.reactiveEnabled).BuildLambda(def)
	if err != nil {
		c.leaveScope()
		return nil, err
	}
	if err := c.compileGraph(g); err != nil {
		c.leaveScope()
		return nil, err
	}

	numLocals := c.symbolTable.NumDefinitions()
	region := c.leaveScope()

	return &object.CompiledProcedure{
		Name:          def.Name,
		Region:        region,
		NumLocals:     numLocals,
		NumParameters: len(def.Args),
	}, nil
}
