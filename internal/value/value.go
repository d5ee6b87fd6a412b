// Package value defines the tagged-union Value type that flows through
// the compiler and the VM, and the Object interface that every heap
// object (string, function, closure, class, ...) must implement.
//
// Value itself knows nothing about what an Object actually is beyond
// its header -- the concrete object shapes live in package heap. This
// split exists so that package chunk (which stores Values in its
// constant pool) never needs to import heap, and heap never needs to
// import chunk's consumer, avoiding an import cycle between the two.
package value

// Kind distinguishes the variants of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObject
)

// ObjType distinguishes the variants of a heap Object.
type ObjType int

const (
	ObjString ObjType = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

func (t ObjType) String() string {
	switch t {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "native"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Header is the common header every heap object embeds: its kind, the
// collector's mark bit, and the intrusive "next" link threading every
// live object into the heap's single object list.
type Header struct {
	Kind   ObjType
	Marked bool
	Next   Object
}

// Object is implemented by every heap-allocated value: strings,
// functions, native functions, closures, upvalues, classes, instances
// and bound methods.
type Object interface {
	ObjType() ObjType
	Head() *Header
}

// Value is a tagged union over nil, boolean, 64-bit float and a
// reference to a heap Object.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	object Object
}

func Nil() Value               { return Value{kind: KindNil} }
func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Number(n float64) Value   { return Value{kind: KindNumber, n: n} }
func Obj(o Object) Value       { return Value{kind: KindObject, object: o} }

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsNil() bool        { return v.kind == KindNil }
func (v Value) IsBool() bool       { return v.kind == KindBool }
func (v Value) IsNumber() bool     { return v.kind == KindNumber }
func (v Value) IsObject() bool     { return v.kind == KindObject }
func (v Value) AsBool() bool       { return v.b }
func (v Value) AsNumber() float64  { return v.n }
func (v Value) AsObject() Object   { return v.object }

func (v Value) IsObjType(t ObjType) bool {
	return v.kind == KindObject && v.object.ObjType() == t
}

// IsFalsey implements the language's truthiness rule: nil and false
// are falsey, everything else is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.b)
}

// Equal implements value equality: same variant and same contents;
// heap objects compare by reference, which for interned strings
// coincides with structural equality by construction.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindObject:
		return v.object == o.object
	default:
		return false
	}
}
