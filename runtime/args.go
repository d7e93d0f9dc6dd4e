package runtime

import (
	"fmt"

	"github.com/dr8co/gel/object"
)

// NativeArgs is the typed-argument view a native procedure's Go
// implementation checks its call through: a position plus the expected
// object.Type, producing a gel-level *object.Error (never a Go panic)
// on an arity or type mismatch. Grounded in shape on kong's
// object.Builtins table, where every builtin starts with the same
// `len(args) != N` check and a per-arg type switch; NativeArgs gives
// every native here that boilerplate once instead of reimplementing it
// per procedure.
type NativeArgs struct {
	Name string
	Args []object.Object
}

// Arity reports an *object.Error if exactly want arguments weren't
// given.
func (a NativeArgs) Arity(want int) *object.Error {
	if len(a.Args) == want {
		return nil
	}
	return &object.Error{Message: fmt.Sprintf(
		"%s: wrong number of arguments: want %d, got %d", a.Name, want, len(a.Args))}
}

// MinArity reports an *object.Error if fewer than want arguments were
// given.
func (a NativeArgs) MinArity(want int) *object.Error {
	if len(a.Args) >= want {
		return nil
	}
	return &object.Error{Message: fmt.Sprintf(
		"%s: wrong number of arguments: want at least %d, got %d", a.Name, want, len(a.Args))}
}

func (a NativeArgs) typeError(pos int, want object.Type, got object.Object) *object.Error {
	return &object.Error{Message: fmt.Sprintf(
		"%s: argument %d: want %s, got %s", a.Name, pos, want, got.Type())}
}

// Long reads args[pos] as *object.Long.
func (a NativeArgs) Long(pos int) (int64, *object.Error) {
	v, ok := a.Args[pos].(*object.Long)
	if !ok {
		return 0, a.typeError(pos, object.LongType, a.Args[pos])
	}
	return v.Value, nil
}

// Double reads args[pos] as *object.Double.
func (a NativeArgs) Double(pos int) (float64, *object.Error) {
	v, ok := a.Args[pos].(*object.Double)
	if !ok {
		return 0, a.typeError(pos, object.DoubleType, a.Args[pos])
	}
	return v.Value, nil
}

// String reads args[pos] as *object.String.
func (a NativeArgs) String(pos int) (string, *object.Error) {
	v, ok := a.Args[pos].(*object.String)
	if !ok {
		return "", a.typeError(pos, object.StringType, a.Args[pos])
	}
	return v.Value, nil
}

// Array reads args[pos] as *object.Array.
func (a NativeArgs) Array(pos int) (*object.Array, *object.Error) {
	v, ok := a.Args[pos].(*object.Array)
	if !ok {
		return nil, a.typeError(pos, object.ArrayType, a.Args[pos])
	}
	return v, nil
}

// Pair reads args[pos] as *object.Pair.
func (a NativeArgs) Pair(pos int) (*object.Pair, *object.Error) {
	v, ok := a.Args[pos].(*object.Pair)
	if !ok {
		return nil, a.typeError(pos, object.PairType, a.Args[pos])
	}
	return v, nil
}

// At returns args[pos] with no type check, for natives that accept any
// Object (print, type?, ...).
func (a NativeArgs) At(pos int) object.Object { return a.Args[pos] }
