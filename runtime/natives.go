package runtime

import (
	"fmt"
	"strings"

	"github.com/dr8co/gel/disasm"
	"github.com/dr8co/gel/object"
)

// NativeNames lists every native procedure this runtime registers, in
// the fixed order the compiler's SymbolTable.DefineNative and the
// Interp's native table both index by — the two must stay in lockstep,
// so this slice is the single source of truth for both (see
// Runtime.compiler and Runtime.interp construction in runtime.go).
//
// Grounded in shape on kong's object.Builtins ([]struct{Name string;
// Builtin *Builtin}), generalized to gel's ~25-native surface from
// spec.md §4.7 plus the debug natives §4.9 names.
var NativeNames = []string{
	"print", "list", "format", "random", "random:range", "type?",
	"import", "exit",
	"set-car!", "set-cdr!",
	"array:new", "array:get", "array:set", "array:length",
	"set:new", "set:add", "set:has?",
	"map:new", "map:get", "map:set",
	"length", "first", "rest", "append", "null?", "pair?",
	"gc:collect", "gc:stats", "disasm",
}

// reactiveNativeNames is registered in addition to NativeNames only
// when Options.Reactive is set, per spec.md §9's feature-gate note.
var reactiveNativeNames = []string{"rx:map", "rx:filter", "rx:subscribe"}

// buildNatives constructs the native procedure table in the same order
// as rt.nativeNames(), closing each implementation over
// rt so a native can call back into the interpreter (rt.Call), the
// module system (rt.Import), or the heap (rt.heap).
func (rt *Runtime) buildNatives() []*object.NativeProcedure {
	names := rt.nativeNames()
	procs := make([]*object.NativeProcedure, len(names))
	for i, name := range names {
		procs[i] = &object.NativeProcedure{Name: name, Fn: rt.nativeImpl(name)}
	}
	return procs
}

func (rt *Runtime) nativeNames() []string {
	if rt.Options.Reactive {
		return append(append([]string{}, NativeNames...), reactiveNativeNames...)
	}
	return NativeNames
}

func (rt *Runtime) nativeImpl(name string) object.NativeProcedureFn {
	switch name {
	case "print":
		return rt.nativePrint
	case "list":
		return rt.nativeList
	case "format":
		return rt.nativeFormat
	case "random":
		return rt.nativeRandom
	case "random:range":
		return rt.nativeRandomRange
	case "type?":
		return rt.nativeTypeOf
	case "import":
		return rt.nativeImport
	case "exit":
		return rt.nativeExit
	case "set-car!":
		return rt.nativeSetCar
	case "set-cdr!":
		return rt.nativeSetCdr
	case "array:new":
		return rt.nativeArrayNew
	case "array:get":
		return rt.nativeArrayGet
	case "array:set":
		return rt.nativeArraySet
	case "array:length":
		return rt.nativeArrayLength
	case "set:new":
		return rt.nativeSetNew
	case "set:add":
		return rt.nativeSetAdd
	case "set:has?":
		return rt.nativeSetHas
	case "map:new":
		return rt.nativeMapNew
	case "map:get":
		return rt.nativeMapGet
	case "map:set":
		return rt.nativeMapSet
	case "length":
		return rt.nativeLength
	case "first":
		return rt.nativeFirst
	case "rest":
		return rt.nativeRest
	case "append":
		return rt.nativeAppend
	case "null?":
		return rt.nativeIsNull
	case "pair?":
		return rt.nativeIsPair
	case "gc:collect":
		return rt.nativeGCCollect
	case "gc:stats":
		return rt.nativeGCStats
	case "disasm":
		return rt.nativeDisasm
	case "rx:map":
		return rt.nativeRxMap
	case "rx:filter":
		return rt.nativeRxFilter
	case "rx:subscribe":
		return rt.nativeRxSubscribe
	default:
		panic("runtime: no implementation registered for native " + name)
	}
}

func args(name string, a ...object.Object) NativeArgs { return NativeArgs{Name: name, Args: a} }

func (rt *Runtime) nativePrint(a ...object.Object) object.Object {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = v.Inspect()
	}
	fmt.Fprintln(rt.Options.Stdout, strings.Join(parts, " "))
	return nil // DoNothing: print has no useful return value
}

func (rt *Runtime) nativeList(a ...object.Object) object.Object {
	var result object.Object = &object.Null{}
	for i := len(a) - 1; i >= 0; i-- {
		result = &object.Pair{Car: a[i], Cdr: result}
	}
	return result
}

func (rt *Runtime) nativeFormat(a ...object.Object) object.Object {
	na := args("format", a...)
	if err := na.MinArity(1); err != nil {
		return err
	}
	tmpl, terr := na.String(0)
	if terr != nil {
		return terr
	}
	rest := make([]any, len(a)-1)
	for i, v := range a[1:] {
		rest[i] = v.Inspect()
	}
	return &object.String{Value: fmt.Sprintf(tmpl, rest...)}
}

func (rt *Runtime) nativeRandom(a ...object.Object) object.Object {
	if err := args("random", a...).Arity(0); err != nil {
		return err
	}
	return &object.Double{Value: rt.rand.Float64()}
}

func (rt *Runtime) nativeRandomRange(a ...object.Object) object.Object {
	na := args("random:range", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	lo, err := na.Long(0)
	if err != nil {
		return err
	}
	hi, err := na.Long(1)
	if err != nil {
		return err
	}
	if hi <= lo {
		return &object.Error{Message: "random:range: upper bound must exceed lower bound"}
	}
	return &object.Long{Value: lo + rt.rand.Int63n(hi-lo)}
}

func (rt *Runtime) nativeTypeOf(a ...object.Object) object.Object {
	if err := args("type?", a...).Arity(1); err != nil {
		return err
	}
	return &object.Symbol{Value: strings.ToLower(string(a[0].Type()))}
}

func (rt *Runtime) nativeExit(a ...object.Object) object.Object {
	code := int64(0)
	if len(a) == 1 {
		if v, ok := a[0].(*object.Long); ok {
			code = v.Value
		}
	}
	rt.Options.Exit(int(code))
	return nil
}

func (rt *Runtime) nativeImport(a ...object.Object) object.Object {
	na := args("import", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	sym, serr := na.String(0)
	if serr != nil {
		return serr
	}
	mod, ierr := rt.Import(sym)
	if ierr != nil {
		return &object.Error{Message: ierr.Error()}
	}
	return mod
}

func (rt *Runtime) nativeSetCar(a ...object.Object) object.Object {
	na := args("set-car!", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	p, err := na.Pair(0)
	if err != nil {
		return err
	}
	p.Car = a[1]
	return nil
}

func (rt *Runtime) nativeSetCdr(a ...object.Object) object.Object {
	na := args("set-cdr!", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	p, err := na.Pair(0)
	if err != nil {
		return err
	}
	p.Cdr = a[1]
	return nil
}

func (rt *Runtime) nativeArrayNew(a ...object.Object) object.Object {
	elems := make([]object.Object, len(a))
	copy(elems, a)
	return &object.Array{Elements: elems}
}

func (rt *Runtime) nativeArrayGet(a ...object.Object) object.Object {
	na := args("array:get", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	arr, err := na.Array(0)
	if err != nil {
		return err
	}
	idx, ierr := na.Long(1)
	if ierr != nil {
		return ierr
	}
	if idx < 0 || int(idx) >= len(arr.Elements) {
		return &object.Error{Message: fmt.Sprintf("array:get: index %d out of range", idx)}
	}
	return arr.Elements[idx]
}

func (rt *Runtime) nativeArraySet(a ...object.Object) object.Object {
	na := args("array:set", a...)
	if err := na.Arity(3); err != nil {
		return err
	}
	arr, err := na.Array(0)
	if err != nil {
		return err
	}
	idx, ierr := na.Long(1)
	if ierr != nil {
		return ierr
	}
	if idx < 0 || int(idx) >= len(arr.Elements) {
		return &object.Error{Message: fmt.Sprintf("array:set: index %d out of range", idx)}
	}
	arr.Elements[idx] = a[2]
	return nil
}

func (rt *Runtime) nativeArrayLength(a ...object.Object) object.Object {
	na := args("array:length", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	arr, aerr := na.Array(0)
	if aerr != nil {
		return aerr
	}
	return &object.Long{Value: int64(len(arr.Elements))}
}

func (rt *Runtime) nativeSetNew(a ...object.Object) object.Object {
	s := object.NewSet()
	for i, v := range a {
		h, ok := v.(object.Hashable)
		if !ok {
			return args("set:new", a...).typeError(i, "HASHABLE", v)
		}
		s.Elements[h.HashKey()] = v
	}
	return s
}

func (rt *Runtime) nativeSetAdd(a ...object.Object) object.Object {
	na := args("set:add", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	s, ok := a[0].(*object.Set)
	if !ok {
		return na.typeError(0, object.SetType, a[0])
	}
	h, ok := a[1].(object.Hashable)
	if !ok {
		return na.typeError(1, "HASHABLE", a[1])
	}
	s.Elements[h.HashKey()] = a[1]
	return nil
}

func (rt *Runtime) nativeSetHas(a ...object.Object) object.Object {
	na := args("set:has?", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	s, ok := a[0].(*object.Set)
	if !ok {
		return na.typeError(0, object.SetType, a[0])
	}
	h, ok := a[1].(object.Hashable)
	if !ok {
		return na.typeError(1, "HASHABLE", a[1])
	}
	_, present := s.Elements[h.HashKey()]
	return boolObj(present)
}

func (rt *Runtime) nativeMapNew(a ...object.Object) object.Object {
	m := object.NewMap()
	for i := 0; i+1 < len(a); i += 2 {
		h, ok := a[i].(object.Hashable)
		if !ok {
			return args("map:new", a...).typeError(i, "HASHABLE", a[i])
		}
		m.Pairs[h.HashKey()] = object.MapPair{Key: a[i], Value: a[i+1]}
	}
	return m
}

func (rt *Runtime) nativeMapGet(a ...object.Object) object.Object {
	na := args("map:get", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	m, ok := a[0].(*object.Map)
	if !ok {
		return na.typeError(0, object.MapType, a[0])
	}
	h, ok := a[1].(object.Hashable)
	if !ok {
		return na.typeError(1, "HASHABLE", a[1])
	}
	p, present := m.Pairs[h.HashKey()]
	if !present {
		return &object.Null{}
	}
	return p.Value
}

func (rt *Runtime) nativeMapSet(a ...object.Object) object.Object {
	na := args("map:set", a...)
	if err := na.Arity(3); err != nil {
		return err
	}
	m, ok := a[0].(*object.Map)
	if !ok {
		return na.typeError(0, object.MapType, a[0])
	}
	h, ok := a[1].(object.Hashable)
	if !ok {
		return na.typeError(1, "HASHABLE", a[1])
	}
	m.Pairs[h.HashKey()] = object.MapPair{Key: a[1], Value: a[2]}
	return nil
}

func (rt *Runtime) nativeLength(a ...object.Object) object.Object {
	na := args("length", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	n := 0
	cur := a[0]
	for {
		p, ok := cur.(*object.Pair)
		if !ok {
			break
		}
		n++
		cur = p.Cdr
	}
	if _, ok := cur.(*object.Null); !ok && n == 0 {
		return na.typeError(0, object.PairType, a[0])
	}
	return &object.Long{Value: int64(n)}
}

func (rt *Runtime) nativeFirst(a ...object.Object) object.Object {
	na := args("first", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	p, perr := na.Pair(0)
	if perr != nil {
		return perr
	}
	return p.Car
}

func (rt *Runtime) nativeRest(a ...object.Object) object.Object {
	na := args("rest", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	p, perr := na.Pair(0)
	if perr != nil {
		return perr
	}
	return p.Cdr
}

func (rt *Runtime) nativeAppend(a ...object.Object) object.Object {
	na := args("append", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	p, perr := na.Pair(0)
	if perr != nil {
		return perr
	}
	elems := []object.Object{}
	var cur object.Object = p
	for {
		pr, ok := cur.(*object.Pair)
		if !ok {
			break
		}
		elems = append(elems, pr.Car)
		cur = pr.Cdr
	}
	result := a[1]
	for i := len(elems) - 1; i >= 0; i-- {
		result = &object.Pair{Car: elems[i], Cdr: result}
	}
	return result
}

func (rt *Runtime) nativeIsNull(a ...object.Object) object.Object {
	if err := args("null?", a...).Arity(1); err != nil {
		return err
	}
	_, ok := a[0].(*object.Null)
	return boolObj(ok)
}

func (rt *Runtime) nativeIsPair(a ...object.Object) object.Object {
	if err := args("pair?", a...).Arity(1); err != nil {
		return err
	}
	_, ok := a[0].(*object.Pair)
	return boolObj(ok)
}

func (rt *Runtime) nativeGCCollect(a ...object.Object) object.Object {
	rt.heap.MinorCollect(rt)
	return nil
}

func (rt *Runtime) nativeGCStats(a ...object.Object) object.Object {
	stats := rt.heap.Stat()
	m := object.NewMap()
	set := func(key string, v int64) {
		k := &object.Symbol{Value: key}
		m.Pairs[k.HashKey()] = object.MapPair{Key: k, Value: &object.Long{Value: v}}
	}
	set("new-space-used", int64(stats.NewSpaceUsed))
	set("new-space-capacity", int64(stats.NewSpaceCapacity))
	set("old-space-used", int64(stats.OldSpaceUsed))
	set("old-space-capacity", int64(stats.OldSpaceCapacity))
	set("minor-collections", int64(stats.MinorCollections))
	set("major-collections", int64(stats.MajorCollections))
	return m
}

func (rt *Runtime) nativeDisasm(a ...object.Object) object.Object {
	na := args("disasm", a...)
	if err := na.Arity(1); err != nil {
		return err
	}
	proc, ok := a[0].(*object.CompiledProcedure)
	if !ok {
		return na.typeError(0, object.CompiledProcedureType, a[0])
	}
	return &object.String{Value: disasm.Disassemble(proc.Region)}
}

// callable invokes fn — a Lambda, CompiledProcedure, or NativeProcedure
// — with args, the same three callee shapes executeCall accepts.
func (rt *Runtime) callable(fn object.Object, args ...object.Object) (object.Object, error) {
	switch f := fn.(type) {
	case *object.Lambda:
		return rt.Call(f, args)
	case *object.CompiledProcedure:
		return rt.interp.CallProcedure(f, args)
	case *object.NativeProcedure:
		return f.Fn(args...), nil
	default:
		return nil, fmt.Errorf("runtime: %s is not callable", fn.Type())
	}
}

func (rt *Runtime) nativeRxMap(a ...object.Object) object.Object {
	na := args("rx:map", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	obs, ok := a[1].(*object.Observable)
	if !ok {
		return na.typeError(1, object.ObservableType, a[1])
	}
	out := make([]object.Object, len(obs.Values))
	for i, v := range obs.Values {
		result, err := rt.callable(a[0], v)
		if err != nil {
			return &object.Error{Message: err.Error()}
		}
		out[i] = result
	}
	return &object.Observable{Values: out}
}

func (rt *Runtime) nativeRxFilter(a ...object.Object) object.Object {
	na := args("rx:filter", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	obs, ok := a[1].(*object.Observable)
	if !ok {
		return na.typeError(1, object.ObservableType, a[1])
	}
	out := make([]object.Object, 0, len(obs.Values))
	for _, v := range obs.Values {
		keep, err := rt.callable(a[0], v)
		if err != nil {
			return &object.Error{Message: err.Error()}
		}
		if object.IsTruthy(keep) {
			out = append(out, v)
		}
	}
	return &object.Observable{Values: out}
}

func (rt *Runtime) nativeRxSubscribe(a ...object.Object) object.Object {
	na := args("rx:subscribe", a...)
	if err := na.Arity(2); err != nil {
		return err
	}
	obs, ok := a[1].(*object.Observable)
	if !ok {
		return na.typeError(1, object.ObservableType, a[1])
	}
	for _, v := range obs.Values {
		if _, err := rt.callable(a[0], v); err != nil {
			return &object.Error{Message: err.Error()}
		}
	}
	return nil
}

func boolObj(v bool) *object.Bool { return &object.Bool{Value: v} }
