// Package compiler implements the single-pass Pratt compiler: it
// pulls tokens from a scanner and emits bytecode directly into the
// Chunk of the Function currently being compiled, resolving local
// variables, building upvalue chains for closures, and validating
// `this`/`super` usage against a parallel class-compiler stack.
package compiler

import (
	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/clarete/golox/internal/scanner"
	"github.com/clarete/golox/internal/token"
	"github.com/clarete/golox/internal/value"
)

// maxLocals and maxUpvalues mirror the 8-bit operand limits imposed
// by GET_LOCAL/SET_LOCAL and the CLOSURE upvalue descriptors.
const (
	maxLocals   = 256
	maxUpvalues = 256
)

type funcType int

const (
	typeFunction funcType = iota
	typeScript
	typeMethod
	typeInitializer
)

type local struct {
	name       token.Token
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

// classCompiler threads through nested `class` declarations, tracking
// the enclosing class (for a class declared inside a method body of
// another class) and whether
// the current class has a superclass, which `this`/`super` validation
// consults.
type classCompiler struct {
	enclosing     *classCompiler
	hasSuperclass bool
}

// Compiler holds the state specific to one function body being
// compiled: the Function under construction, its locals and upvalue
// tables, the current scope depth, and a link to the compiler for the
// lexically enclosing function, so the upvalue resolver can walk
// outward across function boundaries.
type Compiler struct {
	ps        *state
	enclosing *Compiler

	function *heap.Function
	funcType funcType

	locals     []local
	scopeDepth int

	upvalues []upvalueRef
}

func newCompiler(ps *state, enclosing *Compiler, ft funcType, name string) *Compiler {
	fn := ps.heap.NewFunction()
	c := &Compiler{ps: ps, enclosing: enclosing, function: fn, funcType: ft}
	// Make fn reachable through the active-compiler chain before
	// interning its name, which may trigger a collection.
	ps.activeCompiler = c
	if name != "" {
		fn.Name = ps.heap.InternCopy([]byte(name))
	}

	// Slot 0 is reserved: the implicit receiver for methods and
	// initializers, an unnameable empty slot for plain functions and
	// the top-level script.
	reserved := ""
	if ft == typeMethod || ft == typeInitializer {
		reserved = "this"
	}
	c.locals = append(c.locals, local{name: token.Token{Lexeme: reserved}, depth: 0})

	return c
}

func (c *Compiler) chunk() *chunk.Chunk { return c.function.Chunk }

func (c *Compiler) emitByte(b byte) {
	c.chunk().Write(b, c.ps.prevTok.Line)
}

func (c *Compiler) emitOp(op chunk.OpCode)                  { c.emitByte(byte(op)) }
func (c *Compiler) emitOpByte(op chunk.OpCode, operand byte) { c.emitOp(op); c.emitByte(operand) }

func (c *Compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 65535 {
		c.ps.errorAtPrevious("Loop body too large.")
	}
	c.emitByte(byte((offset >> 8) & 0xff))
	c.emitByte(byte(offset & 0xff))
}

// emitJump writes op followed by a 16-bit placeholder, returning the
// offset of the placeholder's first byte for patchJump to fill in
// once the target is known.
func (c *Compiler) emitJump(op chunk.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 65535 {
		c.ps.errorAtPrevious("Too much code to jump over.")
	}
	code := c.chunk().Code
	code[offset] = byte((jump >> 8) & 0xff)
	code[offset+1] = byte(jump & 0xff)
}

func (c *Compiler) emitReturn() {
	if c.funcType == typeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0)
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.emitOp(chunk.OpReturn)
}

func (c *Compiler) makeConstant(v value.Value) byte {
	idx, err := c.chunk().AddConstant(v)
	if err != nil {
		c.ps.errorAtPrevious(err.Error())
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v value.Value) {
	c.emitOpByte(chunk.OpConstant, c.makeConstant(v))
}

// endCompiler emits the function's implicit return, pops it off the
// active-compiler chain (restoring the enclosing compiler, if any)
// and returns the finished Function.
func (c *Compiler) endCompiler() *heap.Function {
	c.emitReturn()
	c.ps.activeCompiler = c.enclosing
	return c.function
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emitOp(chunk.OpCloseUpvalue)
		} else {
			c.emitOp(chunk.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) identifierConstant(name token.Token) byte {
	s := c.ps.heap.InternCopy([]byte(name.Lexeme))
	return c.makeConstant(value.Obj(s))
}

// resolveLocal walks locals from newest to oldest looking for name,
// reporting (and still returning the slot for) the self-reference
// error when the match is mid-initialization.
func (c *Compiler) resolveLocal(name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name.Lexeme == name.Lexeme {
			if c.locals[i].depth == -1 {
				c.ps.errorAtPrevious("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addUpvalue(index byte, isLocal bool) int {
	count := c.function.UpvalueCount
	for i := 0; i < count; i++ {
		uv := c.upvalues[i]
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		c.ps.errorAtPrevious("Too many closure variables in function.")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount++
	return count
}

// resolveUpvalue recurses into the enclosing compiler: a hit on a
// local there captures it (marking it isCaptured) and records a
// local-sourced upvalue; a hit on an upvalue there records an
// upvalue-sourced one. Records are deduplicated per compiler.
func (c *Compiler) resolveUpvalue(name token.Token) int {
	if c.enclosing == nil {
		return -1
	}
	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(byte(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(byte(up), false)
	}
	return -1
}

func (c *Compiler) addLocal(name token.Token) {
	if len(c.locals) == maxLocals {
		c.ps.errorAtPrevious("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.ps.prevTok
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name.Lexeme == name.Lexeme {
			c.ps.errorAtPrevious("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *Compiler) parseVariable(errMessage string) byte {
	c.ps.consume(token.Identifier, errMessage)
	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.ps.prevTok)
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(chunk.OpDefineGlobal, global)
}

func (c *Compiler) argumentList() byte {
	var argCount int
	if !c.ps.check(token.RightParen) {
		for {
			c.expression()
			if argCount == 255 {
				c.ps.errorAtPrevious("Can't have more than 255 arguments.")
			}
			argCount++
			if !c.ps.match(token.Comma) {
				break
			}
		}
	}
	c.ps.consume(token.RightParen, "Expect ')' after arguments.")
	return byte(argCount)
}

// Compile compiles source into a top-level script Function, rooted
// in h for the duration of compilation. A non-nil error is the first
// CompileError the parser produced.
func Compile(source string, h *heap.Heap, logger *loxlog.Logger) (*heap.Function, error) {
	ps := &state{heap: h, logger: logger}
	ps.scanner = scanner.New(source)

	root := newCompiler(ps, nil, typeScript, "")
	h.AddRootMarker(ps)
	defer h.RemoveRootMarker(ps)

	ps.advance()
	for !ps.match(token.EOF) {
		declaration(root)
	}
	fn := root.endCompiler()

	if ps.hadError {
		return nil, ps.firstErr
	}
	return fn, nil
}
