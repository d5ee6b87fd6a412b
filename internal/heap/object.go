package heap

import (
	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/value"
)

// String is an immutable byte sequence plus its precomputed FNV-1a
// hash. Every String the heap hands out is interned: two byte
// sequences that compare equal are always represented by the same
// *String.
type String struct {
	value.Header
	Bytes []byte
	Hash  uint32
}

func (s *String) ObjType() value.ObjType { return value.ObjString }
func (s *String) Head() *value.Header    { return &s.Header }
func (s *String) Go() string             { return string(s.Bytes) }

// Function is a compiled function: fixed arity, declared upvalue
// count, an optional interned name (nil for the top-level script),
// and the Chunk holding its bytecode.
type Function struct {
	value.Header
	Arity        int
	UpvalueCount int
	Name         *String
	Chunk        *chunk.Chunk
}

func (f *Function) ObjType() value.ObjType { return value.ObjFunction }
func (f *Function) Head() *value.Header    { return &f.Header }

// NativeFn is the signature every built-in function must implement.
type NativeFn func(args []value.Value) (value.Value, error)

// NativeFunction wraps a host-implemented function exposed to lox
// code under a name, e.g. clock.
type NativeFunction struct {
	value.Header
	Name string
	Fn   NativeFn
}

func (n *NativeFunction) ObjType() value.ObjType { return value.ObjNative }
func (n *NativeFunction) Head() *value.Header    { return &n.Header }

// Upvalue mediates a variable captured by a closure. While open, it
// points at a live stack slot; once closed, it owns a copy of the
// value that used to live there. Open upvalues are additionally
// threaded into the VM's open-upvalue list, sorted by descending
// stack address, via Next.
type Upvalue struct {
	value.Header
	Location *value.Value
	Closed   value.Value
	Next     *Upvalue
}

func (u *Upvalue) ObjType() value.ObjType { return value.ObjUpvalue }
func (u *Upvalue) Head() *value.Header    { return &u.Header }
func (u *Upvalue) IsOpen() bool           { return u.Location != nil }

// Close transitions an open upvalue to closed: it copies the value
// currently visible through Location into Closed and redirects
// Location to point at that owned copy.
func (u *Upvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// Closure pairs a Function with the upvalues it captured; the slice
// length always equals the function's declared upvalue count.
type Closure struct {
	value.Header
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjType() value.ObjType { return value.ObjClosure }
func (c *Closure) Head() *value.Header    { return &c.Header }

// Class is a name plus a table mapping method name to Closure.
type Class struct {
	value.Header
	Name    *String
	Methods *Table
}

func (c *Class) ObjType() value.ObjType { return value.ObjClass }
func (c *Class) Head() *value.Header    { return &c.Header }

// Instance is a runtime object: a class reference and a mutable
// field table.
type Instance struct {
	value.Header
	Class  *Class
	Fields *Table
}

func (i *Instance) ObjType() value.ObjType { return value.ObjInstance }
func (i *Instance) Head() *value.Header    { return &i.Header }

// BoundMethod pairs a receiver value with the Closure it was read
// off of, produced when a method is accessed as a value rather than
// immediately invoked.
type BoundMethod struct {
	value.Header
	Receiver value.Value
	Method   *Closure
}

func (b *BoundMethod) ObjType() value.ObjType { return value.ObjBoundMethod }
func (b *BoundMethod) Head() *value.Header    { return &b.Header }
