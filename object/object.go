// Package object defines the runtime object system for gel.
//
// Every value a gel program can hold — numbers, strings, symbols, pairs,
// procedures, errors, class instances — implements Object. The
// interpreter and the native procedure table operate exclusively in
// terms of Object; nothing outside this package inspects a value's
// concrete Go type except through a type switch or the Hashable
// interface.
//
// Hash keys are computed with HighwayHash (github.com/minio/highwayhash)
// rather than hash/fnv: gel hashes are used as Map keys for
// user-supplied, potentially adversarial string/symbol data, and
// HighwayHash is the keyed, DoS-resistant hash the rest of the module's
// dependency stack already carries.
package object

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/minio/highwayhash"

	"github.com/dr8co/gel/code"
)

//nolint:revive
const (
	BoolType               = "BOOL"
	LongType               = "LONG"
	DoubleType             = "DOUBLE"
	StringType             = "STRING"
	SymbolType             = "SYMBOL"
	NullType               = "NULL"
	PairType               = "PAIR"
	ArrayType              = "ARRAY"
	SetType                = "SET"
	MapType                = "MAP"
	ErrorType              = "ERROR"
	LambdaType             = "LAMBDA"
	NativeProcedureType    = "NATIVE_PROCEDURE"
	CompiledProcedureType  = "COMPILED_PROCEDURE"
	MacroType              = "MACRO"
	ScriptType             = "SCRIPT"
	NamespaceType          = "NAMESPACE"
	ModuleType             = "MODULE"
	ClassType              = "CLASS"
	InstanceType           = "INSTANCE"
	ObservableType         = "OBSERVABLE"
)

// hashKeySeed is the fixed 32-byte key HighwayHash requires. It need not
// be secret — gel hashes are never used as an authentication tag — only
// stable across a process run, which a fixed key guarantees.
var hashKeySeed = make([]byte, 32)

// Type identifies the runtime category of an Object.
type Type string

// Object is the interface every gel runtime value implements.
type Object interface {
	Type() Type
	Inspect() string
}

// Bool is the gel boolean value.
type Bool struct{ Value bool }

func (b *Bool) Type() Type      { return BoolType }
func (b *Bool) Inspect() string { return strconv.FormatBool(b.Value) }

// Long is a gel fixed-precision integer (the `LiteralLong` token kind).
type Long struct{ Value int64 }

func (l *Long) Type() Type      { return LongType }
func (l *Long) Inspect() string { return strconv.FormatInt(l.Value, 10) }

// Double is a gel floating-point number.
type Double struct{ Value float64 }

func (d *Double) Type() Type      { return DoubleType }
func (d *Double) Inspect() string { return strconv.FormatFloat(d.Value, 'g', -1, 64) }

// String is a gel string value.
type String struct {
	Value   string
	hashKey *HashKey
}

func (s *String) Type() Type      { return StringType }
func (s *String) Inspect() string { return strconv.Quote(s.Value) }

// Symbol is a gel interned-identifier value — the result of evaluating
// a Quoted name, or the key type used by Namespace/Module bindings.
type Symbol struct {
	Value   string
	hashKey *HashKey
}

func (s *Symbol) Type() Type      { return SymbolType }
func (s *Symbol) Inspect() string { return s.Value }

// Null is the singleton empty-list / no-value object.
type Null struct{}

func (n *Null) Type() Type      { return NullType }
func (n *Null) Inspect() string { return "()" }

// Pair is a cons cell. A proper list is a chain of Pairs terminated by
// Null; an improper list terminates in some other Object.
type Pair struct {
	Car Object
	Cdr Object
}

func (p *Pair) Type() Type { return PairType }
func (p *Pair) Inspect() string {
	var b strings.Builder
	b.WriteString("(")
	cur := Object(p)
	first := true
	for {
		pair, ok := cur.(*Pair)
		if !ok {
			break
		}
		if !first {
			b.WriteString(" ")
		}
		first = false
		b.WriteString(pair.Car.Inspect())
		cur = pair.Cdr
	}
	if _, isNull := cur.(*Null); !isNull {
		b.WriteString(" . ")
		b.WriteString(cur.Inspect())
	}
	b.WriteString(")")
	return b.String()
}

// Array is a gel vector — fixed-size, random-access, distinct from the
// linked-list Pair chain produced by ListExpr.
type Array struct {
	Elements []Object
}

func (a *Array) Type() Type { return ArrayType }
func (a *Array) Inspect() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.Inspect()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// HashKey is the comparable key computed for any Hashable object.
type HashKey struct {
	Type  Type
	Value uint64
}

// Hashable is implemented by every Object that may serve as a Set
// element or Map key.
type Hashable interface {
	HashKey() HashKey
}

func highwayHash(data []byte) uint64 {
	h, err := highwayhash.New64(hashKeySeed)
	if err != nil {
		// hashKeySeed is always exactly 32 bytes; New64 cannot fail.
		panic(err)
	}
	_, _ = h.Write(data)
	return h.Sum64()
}

func (b *Bool) HashKey() HashKey {
	var v uint64
	if b.Value {
		v = 1
	}
	return HashKey{Type: b.Type(), Value: v}
}

func (l *Long) HashKey() HashKey {
	//nolint:gosec
	return HashKey{Type: l.Type(), Value: uint64(l.Value)}
}

func (s *String) HashKey() HashKey {
	if s.hashKey != nil {
		return *s.hashKey
	}
	hk := HashKey{Type: s.Type(), Value: highwayHash([]byte(s.Value))}
	s.hashKey = &hk
	return hk
}

func (s *Symbol) HashKey() HashKey {
	if s.hashKey != nil {
		return *s.hashKey
	}
	hk := HashKey{Type: s.Type(), Value: highwayHash([]byte(s.Value))}
	s.hashKey = &hk
	return hk
}

// Set is an unordered collection of distinct Hashable objects.
type Set struct {
	Elements map[HashKey]Object
}

func NewSet() *Set { return &Set{Elements: make(map[HashKey]Object)} }

func (s *Set) Type() Type { return SetType }
func (s *Set) Inspect() string {
	parts := make([]string, 0, len(s.Elements))
	for _, e := range s.Elements {
		parts = append(parts, e.Inspect())
	}
	return "#{" + strings.Join(parts, " ") + "}"
}

// MapPair is a single key/value entry stored in a Map.
type MapPair struct {
	Key   Object
	Value Object
}

// Map is a hash map keyed by any Hashable object.
type Map struct {
	Pairs map[HashKey]MapPair
}

func NewMap() *Map { return &Map{Pairs: make(map[HashKey]MapPair)} }

func (m *Map) Type() Type { return MapType }
func (m *Map) Inspect() string {
	parts := make([]string, 0, len(m.Pairs))
	for _, p := range m.Pairs {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Key.Inspect(), p.Value.Inspect()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Error is a raised gel condition — the value produced by ThrowExpr and
// propagated by the interpreter until caught or surfaced to the caller.
type Error struct {
	Message string
	// Cause chains an underlying error, mirroring Go's error-wrapping
	// idiom for natives that surface an *os.PathError or similar.
	Cause error
}

func (e *Error) Type() Type { return ErrorType }
func (e *Error) Inspect() string {
	if e.Cause != nil {
		return fmt.Sprintf("error: %s: %v", e.Message, e.Cause)
	}
	return "error: " + e.Message
}

// Lambda is an uncompiled user procedure — a name, parameter list and
// body, the value bound by a LambdaDef before the compiler turns its
// body into a CompiledProcedure. It holds no captured scope.
type Lambda struct {
	Name   string
	Params []string
	Body   []any // []ast.Expression; typed any to avoid an import cycle
}

func (l *Lambda) Type() Type { return LambdaType }
func (l *Lambda) Inspect() string {
	if l.Name != "" {
		return "#<lambda:" + l.Name + ">"
	}
	return fmt.Sprintf("#<lambda:%p>", l)
}

// NativeProcedureFn is the Go function signature backing a
// NativeProcedure: it receives already-evaluated arguments and returns
// either a result Object or an *Error.
type NativeProcedureFn func(args ...Object) Object

// NativeProcedure wraps a Go-implemented builtin procedure.
type NativeProcedure struct {
	Name string
	Fn   NativeProcedureFn
}

func (n *NativeProcedure) Type() Type      { return NativeProcedureType }
func (n *NativeProcedure) Inspect() string { return "#<native:" + n.Name + ">" }

// CompiledProcedure is a procedure body lowered to a FlowGraph and
// assembled into a code.CodeRegion by the compiler.
type CompiledProcedure struct {
	Name          string
	Region        *code.CodeRegion
	NumLocals     int
	NumParameters int
	Free          []Object
}

func (c *CompiledProcedure) Type() Type { return CompiledProcedureType }
func (c *CompiledProcedure) Inspect() string {
	if c.Name != "" {
		return "#<procedure:" + c.Name + ">"
	}
	return fmt.Sprintf("#<procedure:%p>", c)
}

// Macro is a user-defined syntax transformer — like Lambda, but its
// body is evaluated by the macro expander against unevaluated argument
// expressions, and it never reaches the compiler directly.
type Macro struct {
	Name   string
	Params []string
	Body   []any // []ast.Expression
}

func (m *Macro) Type() Type      { return MacroType }
func (m *Macro) Inspect() string { return "#<macro:" + m.Name + ">" }

// Script represents a fully loaded, compiled top-level program or
// imported module body, addressable by its defining file path.
type Script struct {
	Path   string
	Region *code.CodeRegion
}

func (s *Script) Type() Type      { return ScriptType }
func (s *Script) Inspect() string { return "#<script:" + s.Path + ">" }

// Namespace is a named, mutable binding table — the backing store for
// both the global scope and ModuleDef/ImportExpr results.
type Namespace struct {
	Name     string
	Bindings map[string]Object
}

func NewNamespace(name string) *Namespace {
	return &Namespace{Name: name, Bindings: make(map[string]Object)}
}

func (n *Namespace) Type() Type      { return NamespaceType }
func (n *Namespace) Inspect() string { return "#<namespace:" + n.Name + ">" }

// Get looks up a binding by name.
func (n *Namespace) Get(name string) (Object, bool) {
	v, ok := n.Bindings[name]
	return v, ok
}

// Set installs or overwrites a binding.
func (n *Namespace) Set(name string, value Object) {
	n.Bindings[name] = value
}

// Module is the resolved result of importing a named gel module: the
// namespace of top-level bindings its body produced.
type Module struct {
	Name string
	Ns   *Namespace
}

func (m *Module) Type() Type      { return ModuleType }
func (m *Module) Inspect() string { return "#<module:" + m.Name + ">" }

// Field describes one named slot of a Class, in declaration order.
type Field struct {
	Name string
}

// Class is a user-defined type introduced by a `new`-able declaration
// in kernel or script code: a name, its fields, and its methods.
type Class struct {
	Name    string
	Fields  []Field
	Methods map[string]*Lambda
	Parent  *Class
}

func (c *Class) Type() Type      { return ClassType }
func (c *Class) Inspect() string { return "#<class:" + c.Name + ">" }

// HasField reports whether name is declared on c or any ancestor.
func (c *Class) HasField(name string) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		for _, f := range cur.Fields {
			if f.Name == name {
				return true
			}
		}
	}
	return false
}

// LookupMethod resolves name against c and its ancestors, nearest first.
func (c *Class) LookupMethod(name string) (*Lambda, bool) {
	for cur := c; cur != nil; cur = cur.Parent {
		if m, ok := cur.Methods[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// Instance is a single allocated object of a Class, holding one value
// per declared field (including inherited ones).
type Instance struct {
	Class  *Class
	Fields map[string]Object
}

func (i *Instance) Type() Type      { return InstanceType }
func (i *Instance) Inspect() string { return fmt.Sprintf("#<instance:%s %p>", i.Class.Name, i) }

// GetField reads a field value from the instance's own field map; the
// class chain is not consulted.
func (i *Instance) GetField(name string) (Object, bool) {
	v, ok := i.Fields[name]
	return v, ok
}

// SetField writes a field value.
func (i *Instance) SetField(name string, value Object) {
	i.Fields[name] = value
}

// Observable is a reactive-operator value: the {function, observable}
// -> observable shape the `rx` surface form builds on, gated behind
// runtime's Reactive option. Unlike a push-based stream, this is a
// realized sequence: rx:map/rx:filter apply eagerly and return a new
// Observable over the transformed Values, which keeps the feature
// usable without a scheduler or cancellation model spec.md never
// describes.
type Observable struct {
	Values []Object
}

func (o *Observable) Type() Type { return ObservableType }
func (o *Observable) Inspect() string {
	parts := make([]string, len(o.Values))
	for i, v := range o.Values {
		parts[i] = v.Inspect()
	}
	return "#<observable:[" + strings.Join(parts, " ") + "]>"
}

// IsTruthy implements gel's truthiness rule: everything is truthy
// except #f and the null/empty-list object.
func IsTruthy(obj Object) bool {
	switch o := obj.(type) {
	case *Bool:
		return o.Value
	case *Null:
		return false
	default:
		return true
	}
}

// Equal implements gel's structural equality: numbers compare by value
// across Long/Double, strings and symbols by content, pairs recursively,
// everything else by identity.
func Equal(a, b Object) bool {
	switch av := a.(type) {
	case *Long:
		switch bv := b.(type) {
		case *Long:
			return av.Value == bv.Value
		case *Double:
			return float64(av.Value) == bv.Value
		}
		return false
	case *Double:
		switch bv := b.(type) {
		case *Long:
			return av.Value == float64(bv.Value)
		case *Double:
			return av.Value == bv.Value
		}
		return false
	case *Bool:
		bv, ok := b.(*Bool)
		return ok && av.Value == bv.Value
	case *String:
		bv, ok := b.(*String)
		return ok && av.Value == bv.Value
	case *Symbol:
		bv, ok := b.(*Symbol)
		return ok && av.Value == bv.Value
	case *Null:
		_, ok := b.(*Null)
		return ok
	case *Pair:
		bv, ok := b.(*Pair)
		return ok && Equal(av.Car, bv.Car) && Equal(av.Cdr, bv.Cdr)
	default:
		return a == b
	}
}
