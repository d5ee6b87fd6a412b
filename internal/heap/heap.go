// Package heap implements the object model (strings, functions,
// closures, classes, instances, bound methods, upvalues), the string
// interner, and the precise mark-sweep collector that owns them all.
//
// The collector is a textbook tracing mark-sweep pass: mark roots,
// trace the gray worklist to blacken every reachable object, prune
// the weak interner of dead entries, then sweep the intrusive object
// list. It is backed by Go's own runtime GC for actual memory
// reclamation -- sweeping here means "unlink from our object list and
// stop counting it against bytesAllocated", not "return memory to the
// OS" -- but the bookkeeping (mark bits, the object list, the
// threshold growth rule) faithfully reproduces the source algorithm,
// which is what the invariants in the surrounding spec are about.
package heap

import (
	"fmt"
	"io"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/value"
)

// RootMarker is implemented by anything that owns GC roots outside the
// heap itself -- the compiler (while a Function is still under
// construction) and the VM (the value stack, frame stack, open
// upvalues and globals). The heap calls MarkRoots during mark
// without importing either package, breaking what would otherwise be
// an import cycle.
type RootMarker interface {
	MarkRoots(mark func(value.Value))
}

// Heap owns every live object, the string interner, and the
// collector's bookkeeping state.
type Heap struct {
	objects value.Object
	strings *Table

	initString *String

	bytesAllocated int
	nextGC         int
	growFactor     int

	grayStack []value.Object

	stressGC bool
	logGC    bool
	logW     io.Writer

	roots []RootMarker
}

// New returns a heap primed with the interned "init" string and the
// default next-GC threshold from the original implementation (1 MiB).
func New() *Heap {
	h := &Heap{
		strings:    NewTable(),
		growFactor: 2,
		nextGC:     1 << 20,
	}
	h.initString = h.InternCopy([]byte("init"))
	return h
}

// SetStressGC enables/disables collecting on every allocation.
func (h *Heap) SetStressGC(on bool) { h.stressGC = on }

// SetLogGC enables/disables printing collector activity to w.
func (h *Heap) SetLogGC(on bool, w io.Writer) {
	h.logGC = on
	h.logW = w
}

// SetGrowFactor overrides the multiplier applied to bytesAllocated to
// compute the next collection threshold (default 2).
func (h *Heap) SetGrowFactor(f int) {
	if f > 0 {
		h.growFactor = f
	}
}

// InitString returns the heap's single interned "init" string, a GC
// root used by the VM to recognize initializer methods without a
// fresh allocation on every instance construction.
func (h *Heap) InitString() *String { return h.initString }

// AddRootMarker registers rm so its roots are marked on every future
// collection. Used by the compiler for the duration of compilation
// and by the VM for the lifetime of interpretation.
func (h *Heap) AddRootMarker(rm RootMarker) {
	h.roots = append(h.roots, rm)
}

// RemoveRootMarker unregisters rm, e.g. once a compiler finishes and
// its Function is reachable only through the result it returned.
func (h *Heap) RemoveRootMarker(rm RootMarker) {
	for i, r := range h.roots {
		if r == rm {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

func (h *Heap) link(o value.Object) {
	o.Head().Next = h.objects
	h.objects = o
}

func (h *Heap) track(size int) {
	h.bytesAllocated += size
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// sizeOf is a rough, relative accounting of an object's footprint --
// good enough to drive the grow-by-factor threshold rule; it does not
// need to match Go's actual allocator.
func sizeOf(o value.Object) int {
	switch v := o.(type) {
	case *String:
		return 24 + len(v.Bytes)
	case *Function:
		return 32 + len(v.Chunk.Code) + len(v.Chunk.Lines)*8 + len(v.Chunk.Constants)*16
	case *NativeFunction:
		return 16
	case *Closure:
		return 16 + len(v.Upvalues)*8
	case *Upvalue:
		return 24
	case *Class:
		return 16
	case *Instance:
		return 16
	case *BoundMethod:
		return 24
	default:
		return 16
	}
}

func (h *Heap) alloc(o value.Object, kind value.ObjType) {
	o.Head().Kind = kind
	// track may trigger Collect(); it must run before the object is
	// linked into h.objects, or a GC triggered by this very allocation
	// would sweep an object no root can reach yet (it hasn't been
	// pushed, stored, or interned), permanently dropping it from the
	// intrusive list -- and if it's later marked reachable, sweep()
	// never revisits it to clear that bit, so it stops tracing its
	// children forever.
	h.track(sizeOf(o))
	h.link(o)
}

// NewFunction allocates an empty Function of the given kind-neutral
// shape; the compiler fills in Arity/UpvalueCount/Name as it goes.
func (h *Heap) NewFunction() *Function {
	f := &Function{Chunk: chunk.New()}
	h.alloc(f, value.ObjFunction)
	return f
}

// NewNative allocates a native function wrapping fn under name.
func (h *Heap) NewNative(name string, fn NativeFn) *NativeFunction {
	n := &NativeFunction{Name: name, Fn: fn}
	h.alloc(n, value.ObjNative)
	return n
}

// NewClosure allocates a closure over fn with space for its declared
// upvalue count; every entry is nil until the VM's OP_CLOSURE handler
// fills it in.
func (h *Heap) NewClosure(fn *Function) *Closure {
	c := &Closure{Function: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.alloc(c, value.ObjClosure)
	return c
}

// NewUpvalue allocates an open upvalue pointing at slot.
func (h *Heap) NewUpvalue(slot *value.Value) *Upvalue {
	u := &Upvalue{Location: slot}
	h.alloc(u, value.ObjUpvalue)
	return u
}

// NewClass allocates an empty class named name.
func (h *Heap) NewClass(name *String) *Class {
	c := &Class{Name: name, Methods: NewTable()}
	h.alloc(c, value.ObjClass)
	return c
}

// NewInstance allocates an instance of class with an empty field table.
func (h *Heap) NewInstance(class *Class) *Instance {
	i := &Instance{Class: class, Fields: NewTable()}
	h.alloc(i, value.ObjInstance)
	return i
}

// NewBoundMethod allocates a bound method pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *Closure) *BoundMethod {
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.alloc(b, value.ObjBoundMethod)
	return b
}

func fnv1a(b []byte) uint32 {
	var hash uint32 = 2166136261
	for _, c := range b {
		hash ^= uint32(c)
		hash *= 16777619
	}
	return hash
}

// InternCopy returns the canonical interned String for b, copying the
// bytes if no equal string has been interned yet.
func (h *Heap) InternCopy(b []byte) *String {
	hash := fnv1a(b)
	if s := h.strings.FindString(b, hash); s != nil {
		return s
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return h.internNew(cp, hash)
}

// InternTake returns the canonical interned String for b, taking
// ownership of b (i.e. reusing the slice directly) if no equal string
// has been interned yet, and discarding it otherwise.
func (h *Heap) InternTake(b []byte) *String {
	hash := fnv1a(b)
	if s := h.strings.FindString(b, hash); s != nil {
		return s
	}
	return h.internNew(b, hash)
}

func (h *Heap) internNew(b []byte, hash uint32) *String {
	s := &String{Bytes: b, Hash: hash}
	h.alloc(s, value.ObjString)
	// The string must be reachable before Set, which may itself grow
	// the interner's backing array -- but that growth never allocates
	// through h.alloc, so there is no reentrant collection risk here.
	h.strings.Set(s, value.Nil())
	return s
}

// markValue marks v's referenced object, if it has one.
func (h *Heap) markValue(v value.Value) {
	if v.IsObject() {
		h.markObject(v.AsObject())
	}
}

func (h *Heap) markObject(o value.Object) {
	if o == nil {
		return
	}
	hdr := o.Head()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.grayStack = append(h.grayStack, o)
}

func (h *Heap) blacken(o value.Object) {
	switch v := o.(type) {
	case *String, *NativeFunction:
		// leaves
	case *Function:
		if v.Name != nil {
			h.markObject(v.Name)
		}
		for _, c := range v.Chunk.Constants {
			h.markValue(c)
		}
	case *Closure:
		h.markObject(v.Function)
		for _, up := range v.Upvalues {
			h.markObject(up)
		}
	case *Upvalue:
		h.markValue(v.Closed)
	case *Class:
		h.markObject(v.Name)
		v.Methods.Each(func(key *String, mv value.Value) {
			h.markObject(key)
			h.markValue(mv)
		})
	case *Instance:
		h.markObject(v.Class)
		v.Fields.Each(func(key *String, fv value.Value) {
			h.markObject(key)
			h.markValue(fv)
		})
	case *BoundMethod:
		h.markValue(v.Receiver)
		h.markObject(v.Method)
	}
}

func (h *Heap) logf(format string, args ...interface{}) {
	if h.logGC && h.logW != nil {
		fmt.Fprintf(h.logW, format, args...)
	}
}

// Collect runs one full mark-sweep cycle.
func (h *Heap) Collect() {
	h.logf("-- gc begin\n")
	before := h.bytesAllocated

	for _, rm := range h.roots {
		rm.MarkRoots(h.markValue)
	}
	h.markObject(h.initString)

	for len(h.grayStack) > 0 {
		n := len(h.grayStack) - 1
		o := h.grayStack[n]
		h.grayStack = h.grayStack[:n]
		h.blacken(o)
	}

	h.strings.DeleteUnmarkedKeys()
	h.sweep()

	h.nextGC = h.bytesAllocated * h.growFactor
	if h.nextGC < 1<<20 {
		h.nextGC = 1 << 20
	}
	h.logf("-- gc end, collected %d bytes (from %d to %d), next at %d\n",
		before-h.bytesAllocated, before, h.bytesAllocated, h.nextGC)
}

func (h *Heap) sweep() {
	var prev value.Object
	obj := h.objects
	for obj != nil {
		hdr := obj.Head()
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
			obj = hdr.Next
			continue
		}
		unreached := obj
		obj = hdr.Next
		if prev != nil {
			prev.Head().Next = obj
		} else {
			h.objects = obj
		}
		h.bytesAllocated -= sizeOf(unreached)
	}
}

// BytesAllocated reports the collector's current byte accounting,
// exposed for tests asserting that a collection frees unreachable
// objects.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }
