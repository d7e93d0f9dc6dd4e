// Package runtime ties every other package together into the thing a
// script actually runs against: a persistent compiler and interpreter
// pair, the native procedure table, the macro table, the host-
// registered class table, and module import/dedup.
//
// Grounded in shape on dr8co/kong's REPL driving a single long-lived
// vm.VM across successive lines (the same compiler.SymbolTable and
// interp globals table carry bindings from one Eval call to the next),
// generalized to gel's richer Exec/Call/Import surface per spec.md
// §4.7.
package runtime

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/viant/afs"

	"github.com/dr8co/gel/ast"
	"github.com/dr8co/gel/code"
	"github.com/dr8co/gel/compiler"
	"github.com/dr8co/gel/disasm"
	"github.com/dr8co/gel/flowgraph"
	"github.com/dr8co/gel/heap"
	"github.com/dr8co/gel/interp"
	"github.com/dr8co/gel/lexer"
	"github.com/dr8co/gel/macroexpand"
	"github.com/dr8co/gel/object"
	"github.com/dr8co/gel/parser"
)

// Options configures a Runtime, mirroring spec.md §6's CLI surface
// (--kernel, --module_dir, --log_script_instrs) plus the reactive
// feature gate §9 mentions.
type Options struct {
	// ModuleDir is the directory `import` resolves symbol+".cl" against.
	ModuleDir string
	// LogScriptInstrs disassembles a region before executing it.
	LogScriptInstrs bool
	// Reactive gates the rx:* native family and the `rx` surface form.
	Reactive bool

	Stdout io.Writer
	Stderr io.Writer
	// Exit is called by the `exit` native; defaults to os.Exit.
	Exit func(code int)
}

func (o *Options) setDefaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Exit == nil {
		o.Exit = os.Exit
	}
}

// Runtime is gel's single-worker execution context: per spec.md §5,
// exactly one exists per OS-level worker, installed for that worker's
// lifetime. It owns the persistent compiler (whose SymbolTable
// accumulates global bindings the way a REPL line-by-line session
// does) and the persistent Interp (whose globals table is indexed the
// same way).
type Runtime struct {
	Options Options

	compiler *compiler.Compiler
	interp   *interp.Interp
	expander *macroexpand.Expander

	macros     map[string]*object.Macro
	macroCache map[*object.Macro]*object.CompiledProcedure
	lambdas    map[*object.Lambda]*object.CompiledProcedure

	// imported deduplicates Import by resolved absolute path, per the
	// invariant spec.md §8 names ("re-importing the same module name is
	// a no-op").
	imported    map[string]*object.Module
	importGroup singleflight.Group
	fs          afs.Service

	heap *heap.Heap
	rand *rand.Rand
}

// New creates a Runtime. Call Init before running any script.
func New(opts Options) *Runtime {
	opts.setDefaults()
	rt := &Runtime{
		Options:    opts,
		macros:     make(map[string]*object.Macro),
		macroCache: make(map[*object.Macro]*object.CompiledProcedure),
		lambdas:    make(map[*object.Lambda]*object.CompiledProcedure),
		imported:   make(map[string]*object.Module),
		fs:         afs.New(),
		heap:       heap.New(heap.DefaultConfig()),
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	rt.expander = macroexpand.NewExpander(rt, rt)
	return rt
}

// Init wires the compiler and interpreter against the native table.
// Loading the kernel module is the caller's job —
// see package kernel, which depends on Runtime and so cannot be
// depended on back from here — typically right after Init returns.
func (rt *Runtime) Init() error {
	names := rt.nativeNames()
	rt.compiler = compiler.New(compiler.Options{Natives: names, ReactiveEnabled: rt.Options.Reactive})

	natives := rt.buildNatives()
	rt.interp = interp.New(natives)
	rt.interp.CompileLambda = rt.compileLambdaValue
	return nil
}

// compileLambdaValue is the interp.LambdaCompiler hook: it compiles and
// caches an object.Lambda (an instance method body, the only kind of
// Lambda OpLoadInstanceMethod ever asks for) the first time it's
// dispatched.
func (rt *Runtime) compileLambdaValue(lam *object.Lambda) (*object.CompiledProcedure, error) {
	if proc, ok := rt.lambdas[lam]; ok {
		return proc, nil
	}
	proc, err := rt.compiler.CompileLambdaValue(lam)
	if err != nil {
		return nil, err
	}
	rt.lambdas[lam] = proc
	return proc, nil
}

// RegisterClass installs cls into the host-registered class table
// NewExpr/InstanceOfExpr/CastExpr/LoadInstanceMethodExpr resolve
// against — gel's grammar has no user-facing class-definition form
// (see DESIGN.md), so a host application embedding a Runtime calls
// this directly; the kernel registers no classes.
func (rt *Runtime) RegisterClass(cls *object.Class) {
	rt.interp.Classes[cls.Name] = cls
}

// Roots implements heap.RootProvider for the debug `gc:collect`
// native. The real object graph gel executes is ordinary Go-heap-
// allocated (see DESIGN.md's heap entry on DISABLE_HEAP), so there is
// nothing reachable through rt.heap to report — it exists as its own
// exercised subsystem (TryAllocate, semispace copying, Stat) rather
// than the allocator actually backing interp's values.
func (rt *Runtime) Roots() []heap.Pointer { return nil }

// Eval parses, macro-expands, and compiles source as a new top-level
// unit, then executes it and returns the top of the operand stack (or
// Null), per spec.md §4.7's Eval description.
func (rt *Runtime) Eval(source string) (object.Object, error) {
	p := parser.New(lexer.New(source))
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("runtime: parse error: %v", errs)
	}
	region, err := rt.compileForms(script.Forms)
	if err != nil {
		return nil, fmt.Errorf("runtime: compile error: %w", err)
	}
	return rt.execRegion(region)
}

// Exec runs an already-compiled script, per spec.md §4.7.
func (rt *Runtime) Exec(script *object.Script) (object.Object, error) {
	return rt.execRegion(script.Region)
}

func (rt *Runtime) execRegion(region *code.CodeRegion) (object.Object, error) {
	if rt.Options.LogScriptInstrs {
		fmt.Fprint(rt.Options.Stderr, disasm.Disassemble(region))
	}
	proc := &object.CompiledProcedure{Region: region}
	result, err := rt.interp.Execute(proc)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// compileForms registers every top-level *ast.MacroDef into rt.macros
// (so later forms in the same batch can call it) and macro-expands and
// compiles the rest, mirroring macroexpand.Expander.ExpandScript's own
// per-form loop but intercepting macro definitions before they reach
// it — the Builder treats a MacroDef it still sees as a defensive no-op
// (see flowgraph/builder.go), so a well-formed program never leaves one
// in the form list Builder ends up seeing.
func (rt *Runtime) compileForms(forms []ast.Expression) (*code.CodeRegion, error) {
	expanded := make([]ast.Expression, 0, len(forms))
	for _, form := range forms {
		if md, ok := form.(*ast.MacroDef); ok {
			rt.registerMacro(md)
			continue
		}
		exp, err := rt.expander.Expand(form)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, exp)
	}
	return rt.compiler.CompileScript(&ast.Script{Forms: expanded})
}

// Call invokes an uncompiled procedure value with already-evaluated
// args, compiling (and caching) its body on first use — the host-
// initiated call path spec.md §4.7 describes separately from an
// ordinary bytecode OpCall.
func (rt *Runtime) Call(lambda *object.Lambda, args []object.Object) (object.Object, error) {
	proc, err := rt.compileLambdaValue(lambda)
	if err != nil {
		return nil, err
	}
	return rt.interp.CallProcedure(proc, args)
}

// CallNative invokes a native procedure directly, for a host embedding
// gel that holds a *object.NativeProcedure value (looked up by name,
// say) rather than going through bytecode's OpCall.
func (rt *Runtime) CallNative(native *object.NativeProcedure, args []object.Object) object.Object {
	return native.Fn(args...)
}

// Import resolves symbol against Options.ModuleDir and GEL_PATH,
// parses and compiles the file, executes it once, and returns the
// resulting Module — a Namespace of whatever top-level bindings the
// module body produced. Concurrent importers of the same resolved path
// within one process are deduplicated via singleflight, and the result
// is cached for the life of the Runtime, matching spec.md §8's
// re-import invariant.
func (rt *Runtime) Import(symbol string) (*object.Module, error) {
	path, err := rt.resolveModulePath(symbol)
	if err != nil {
		return nil, err
	}

	v, err, _ := rt.importGroup.Do(path, func() (any, error) {
		if mod, ok := rt.imported[path]; ok {
			return mod, nil
		}
		data, err := rt.fs.DownloadWithURL(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("runtime: reading module %q: %w", symbol, err)
		}
		p := parser.New(lexer.New(string(data)))
		script := p.ParseScript()
		if errs := p.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("runtime: parsing module %q: %v", symbol, errs)
		}

		globalsBefore := rt.compiler.SymbolTable().NumDefinitions()
		region, err := rt.compileForms(script.Forms)
		if err != nil {
			return nil, fmt.Errorf("runtime: compiling module %q: %w", symbol, err)
		}
		if _, err := rt.execRegion(region); err != nil {
			return nil, fmt.Errorf("runtime: executing module %q: %w", symbol, err)
		}

		ns := object.NewNamespace(symbol)
		for name, sym := range rt.compiler.SymbolTable().Bindings() {
			if sym.Index >= globalsBefore {
				ns.Set(name, rt.interp.Globals()[sym.Index])
			}
		}
		mod := &object.Module{Name: symbol, Ns: ns}
		rt.imported[path] = mod
		return mod, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*object.Module), nil
}

func (rt *Runtime) resolveModulePath(symbol string) (string, error) {
	filename := symbol + ".cl"
	dirs := make([]string, 0, 4)
	if rt.Options.ModuleDir != "" {
		dirs = append(dirs, rt.Options.ModuleDir)
	}
	if gelPath := os.Getenv("GEL_PATH"); gelPath != "" {
		dirs = append(dirs, strings.Split(gelPath, ":")...)
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("runtime: module %q not found in module_dir or GEL_PATH", symbol)
}

// ExportDot compiles source to a flowgraph and renders it as a dot
// document, for the `--dot` debug CLI path. It shares the Runtime's
// persistent compiler state (so globals from an earlier Eval resolve),
// but — unlike Eval — never executes anything.
func (rt *Runtime) ExportDot(source string) (string, error) {
	p := parser.New(lexer.New(source))
	script := p.ParseScript()
	if errs := p.Errors(); len(errs) > 0 {
		return "", fmt.Errorf("runtime: parse error: %v", errs)
	}
	g, err := flowgraph.NewBuilder(rt.Options.Reactive).BuildScript(script)
	if err != nil {
		return "", err
	}
	return disasm.ExportDot(g), nil
}
