// Package vm implements the stack-based bytecode interpreter: a call
// stack of CallFrames, a value stack shared across all of them, global
// variable storage, and the open-upvalue list closures capture into.
package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/compiler"
	"github.com/clarete/golox/internal/config"
	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxerr"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/clarete/golox/internal/value"
)

// CallFrame is one active invocation: the closure being run, the
// instruction pointer into its chunk, and the window of the shared
// value stack holding its locals (slot 0 is the receiver for methods).
type CallFrame struct {
	closure *heap.Closure
	ip      int
	slots   int // index into vm.stack where this frame's window begins
}

// VM is one interpreter session: a heap, the global variable table, a
// value stack, a stack of call frames, and the head of the open
// upvalue list (sorted by descending stack slot).
type VM struct {
	heap    *heap.Heap
	globals *heap.Table
	cfg     *config.Config
	logger  *loxlog.Logger
	out     io.Writer

	framesMax int

	stack        []value.Value
	frames       []CallFrame
	openUpvalues *heap.Upvalue
}

// New returns a fresh VM backed by h, with the single native function
// clock already defined. Frame and stack capacity are read from cfg's
// vm.frames_max / vm.stack_slots_per_frame (see internal/config).
func New(h *heap.Heap, cfg *config.Config, logger *loxlog.Logger) *VM {
	framesMax := cfg.GetInt("vm.frames_max")
	stackMax := framesMax * cfg.GetInt("vm.stack_slots_per_frame")
	vm := &VM{
		heap:      h,
		globals:   heap.NewTable(),
		cfg:       cfg,
		logger:    logger,
		out:       os.Stdout,
		framesMax: framesMax,
		stack:     make([]value.Value, 0, stackMax),
		frames:    make([]CallFrame, 0, framesMax),
	}
	h.AddRootMarker(vm)
	vm.defineNative("clock", func(args []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})
	return vm
}

// SetOutput redirects the destination of `print` statements, used by
// tests to capture program output instead of writing to stdout.
func (vm *VM) SetOutput(w io.Writer) { vm.out = w }

// Heap returns the heap backing this VM, for callers (e.g. the CLI's
// -debug-bytecode path) that need to compile without running.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

// MarkRoots implements heap.RootMarker: the value stack, every
// closure on the frame stack, the open upvalue chain and the globals
// table are all GC roots for the lifetime of the VM.
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for _, v := range vm.stack {
		mark(v)
	}
	for _, f := range vm.frames {
		mark(value.Obj(f.closure))
	}
	for up := vm.openUpvalues; up != nil; up = up.Next {
		mark(value.Obj(up))
	}
	vm.globals.Each(func(key *heap.String, v value.Value) {
		mark(value.Obj(key))
		mark(v)
	})
}

func (vm *VM) defineNative(name string, fn heap.NativeFn) {
	n := vm.heap.NewNative(name, fn)
	key := vm.heap.InternCopy([]byte(name))
	vm.push(value.Obj(key))
	vm.push(value.Obj(n))
	vm.globals.Set(key, vm.stack[len(vm.stack)-1])
	vm.pop()
	vm.pop()
}

func (vm *VM) resetStack() {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// runtimeError builds a loxerr.RuntimeError carrying a traceback of
// every active frame, innermost first, and resets the VM so a REPL can
// keep going after a failed statement.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var trace []loxerr.Frame
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := fn.Chunk.Line(f.ip - 1)
		var name string
		if fn.Name != nil {
			name = fn.Name.Go()
		}
		trace = append(trace, loxerr.Frame{FuncName: name, Line: line})
	}
	vm.resetStack()
	return &loxerr.RuntimeError{Message: msg, Trace: trace}
}

// Interpret compiles and runs source against this VM's heap and
// global state. Returns a *loxerr.CompileError or *loxerr.RuntimeError
// on failure.
func (vm *VM) Interpret(source string) error {
	fn, err := compiler.Compile(source, vm.heap, vm.logger)
	if err != nil {
		return err
	}

	vm.push(value.Obj(fn))
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(value.Obj(closure))
	if err := vm.callClosure(closure, 0); err != nil {
		return err
	}

	return vm.run()
}

func isFalsey(v value.Value) bool { return v.IsFalsey() }

func valuesEqual(a, b value.Value) bool { return a.Equal(b) }

func (vm *VM) concatenate() error {
	b := vm.peek(0).AsObject().(*heap.String)
	a := vm.peek(1).AsObject().(*heap.String)
	combined := make([]byte, 0, len(a.Bytes)+len(b.Bytes))
	combined = append(combined, a.Bytes...)
	combined = append(combined, b.Bytes...)
	result := vm.heap.InternTake(combined)
	vm.pop()
	vm.pop()
	vm.push(value.Obj(result))
	return nil
}

// run executes bytecode from the topmost call frame until it returns
// to frame depth zero or a runtime error occurs.
func (vm *VM) run() error {
	frame := &vm.frames[len(vm.frames)-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi := readByte()
		lo := readByte()
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *heap.String {
		return readConstant().AsObject().(*heap.String)
	}

	for {
		op := chunk.OpCode(readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(readConstant())

		case chunk.OpNil:
			vm.push(value.Nil())
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slots+slot])
		case chunk.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slots+slot] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Go())
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Go())
			}

		case chunk.OpGetUpvalue:
			slot := int(readByte())
			vm.push(*frame.closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := int(readByte())
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case chunk.OpGetProperty:
			if !vm.peek(0).IsObject() || !vm.peek(0).IsObjType(value.ObjInstance) {
				return vm.runtimeError("Only instances have properties.")
			}
			inst := vm.peek(0).AsObject().(*heap.Instance)
			name := readString()
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}

		case chunk.OpSetProperty:
			if !vm.peek(1).IsObject() || !vm.peek(1).IsObjType(value.ObjInstance) {
				return vm.runtimeError("Only instances have fields.")
			}
			inst := vm.peek(1).AsObject().(*heap.Instance)
			name := readString()
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case chunk.OpGetSuper:
			name := readString()
			superclass := vm.pop().AsObject().(*heap.Class)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(valuesEqual(a, b)))

		case chunk.OpGreater, chunk.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			if op == chunk.OpGreater {
				vm.push(value.Bool(a > b))
			} else {
				vm.push(value.Bool(a < b))
			}

		case chunk.OpAdd:
			switch {
			case vm.peek(0).IsObjType(value.ObjString) && vm.peek(1).IsObjType(value.ObjString):
				if err := vm.concatenate(); err != nil {
					return err
				}
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.pop().AsNumber()
				a := vm.pop().AsNumber()
				vm.push(value.Number(a + b))
			default:
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return vm.runtimeError("Operands must be numbers.")
			}
			b := vm.pop().AsNumber()
			a := vm.pop().AsNumber()
			switch op {
			case chunk.OpSubtract:
				vm.push(value.Number(a - b))
			case chunk.OpMultiply:
				vm.push(value.Number(a * b))
			case chunk.OpDivide:
				vm.push(value.Number(a / b))
			}

		case chunk.OpNot:
			vm.push(value.Bool(isFalsey(vm.pop())))

		case chunk.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case chunk.OpPrint:
			vm.printValue(vm.pop())

		case chunk.OpJump:
			offset := readShort()
			frame.ip += offset
		case chunk.OpJumpIfFalse:
			offset := readShort()
			if isFalsey(vm.peek(0)) {
				frame.ip += offset
			}
		case chunk.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case chunk.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpInvoke:
			method := readString()
			argCount := int(readByte())
			if err := vm.invoke(method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpSuperInvoke:
			method := readString()
			argCount := int(readByte())
			superclass := vm.pop().AsObject().(*heap.Class)
			if err := vm.invokeFromClass(superclass, method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpClosure:
			fn := readConstant().AsObject().(*heap.Function)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.Obj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case chunk.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.pop()
				return nil
			}
			vm.stack = vm.stack[:frame.slots]
			vm.push(result)
			frame = &vm.frames[len(vm.frames)-1]

		case chunk.OpClass:
			name := readString()
			vm.push(value.Obj(vm.heap.NewClass(name)))

		case chunk.OpInherit:
			superVal := vm.peek(1)
			if !superVal.IsObjType(value.ObjClass) {
				return vm.runtimeError("Superclass must be a class.")
			}
			superclass := superVal.AsObject().(*heap.Class)
			subclass := vm.peek(0).AsObject().(*heap.Class)
			subclass.Methods.AddAll(superclass.Methods)
			vm.pop()

		case chunk.OpMethod:
			name := readString()
			vm.defineMethod(name)

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) defineMethod(name *heap.String) {
	method := vm.pop().AsObject().(*heap.Closure)
	class := vm.peek(0).AsObject().(*heap.Class)
	class.Methods.Set(name, value.Obj(method))
}

func (vm *VM) bindMethod(class *heap.Class, name *heap.String) error {
	methodVal, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Go())
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), methodVal.AsObject().(*heap.Closure))
	vm.pop()
	vm.push(value.Obj(bound))
	return nil
}

// captureUpvalue returns the open upvalue for stack slot slotIndex,
// creating and inserting one into the descending-address-sorted list
// if none exists yet. Locations are pointers into vm.stack's backing
// array, which New preallocates to its full capacity and append never
// reallocates within that capacity, so they stay valid for the life
// of the VM.
func (vm *VM) captureUpvalue(slotIndex int) *heap.Upvalue {
	var prev *heap.Upvalue
	cur := vm.openUpvalues
	for cur != nil && vm.slotOf(cur) > slotIndex {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && vm.slotOf(cur) == slotIndex {
		return cur
	}

	created := vm.heap.NewUpvalue(&vm.stack[slotIndex])
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// slotOf recovers an open upvalue's stack index from its Location
// pointer by scanning the backing array; cheap since the open list is
// only ever as long as the number of captured-but-unclosed locals.
func (vm *VM) slotOf(up *heap.Upvalue) int {
	for i := range vm.stack {
		if &vm.stack[i] == up.Location {
			return i
		}
	}
	return -1
}

// closeUpvalues closes every open upvalue at or above fromIndex,
// copying each one's value out of the stack before the frame that
// owns it is popped.
func (vm *VM) closeUpvalues(fromIndex int) {
	for vm.openUpvalues != nil && vm.slotOf(vm.openUpvalues) >= fromIndex {
		up := vm.openUpvalues
		up.Close()
		vm.openUpvalues = up.Next
	}
}

func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.IsObject() {
		switch obj := callee.AsObject().(type) {
		case *heap.BoundMethod:
			vm.stack[len(vm.stack)-argCount-1] = obj.Receiver
			return vm.callClosure(obj.Method, argCount)
		case *heap.Class:
			inst := vm.heap.NewInstance(obj)
			vm.stack[len(vm.stack)-argCount-1] = value.Obj(inst)
			if initVal, ok := obj.Methods.Get(vm.heap.InitString()); ok {
				return vm.callClosure(initVal.AsObject().(*heap.Closure), argCount)
			} else if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case *heap.Closure:
			return vm.callClosure(obj, argCount)
		case *heap.NativeFunction:
			args := vm.stack[len(vm.stack)-argCount:]
			result, err := obj.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stack = vm.stack[:len(vm.stack)-argCount-1]
			vm.push(result)
			return nil
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) invoke(name *heap.String, argCount int) error {
	receiver := vm.peek(argCount)
	if !receiver.IsObjType(value.ObjInstance) {
		return vm.runtimeError("Only instances have methods.")
	}
	inst := receiver.AsObject().(*heap.Instance)

	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[len(vm.stack)-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *heap.Class, name *heap.String, argCount int) error {
	methodVal, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Go())
	}
	return vm.callClosure(methodVal.AsObject().(*heap.Closure), argCount)
}

func (vm *VM) callClosure(closure *heap.Closure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if len(vm.frames) == vm.framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, CallFrame{
		closure: closure,
		ip:      0,
		slots:   len(vm.stack) - argCount - 1,
	})
	return nil
}

func (vm *VM) printValue(v value.Value) {
	fmt.Fprintln(vm.out, heap.Stringify(v))
}
