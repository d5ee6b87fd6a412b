package compiler_test

import (
	"testing"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/compiler"
	"github.com/clarete/golox/internal/heap"
	"github.com/clarete/golox/internal/loxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, source string) *heap.Function {
	t.Helper()
	h := heap.New()
	fn, err := compiler.Compile(source, h, loxlog.New(nil, false))
	require.NoError(t, err)
	return fn
}

func opcodes(fn *heap.Function) []chunk.OpCode {
	var ops []chunk.OpCode
	code := fn.Chunk.Code
	for i := 0; i < len(code); {
		op := chunk.OpCode(code[i])
		ops = append(ops, op)
		switch op {
		case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetGlobal,
			chunk.OpDefineGlobal, chunk.OpSetGlobal, chunk.OpGetUpvalue, chunk.OpSetUpvalue,
			chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper, chunk.OpCall,
			chunk.OpClass, chunk.OpMethod:
			i += 2
		case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop, chunk.OpInvoke, chunk.OpSuperInvoke:
			i += 3
		case chunk.OpClosure:
			fnConst := fn.Chunk.Constants[code[i+1]].AsObject().(*heap.Function)
			i += 2 + fnConst.UpvalueCount*2
		default:
			i++
		}
	}
	return ops
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	fn := compile(t, "print 1 + 2 * 3;")
	assert.Contains(t, opcodes(fn), chunk.OpMultiply)
	assert.Contains(t, opcodes(fn), chunk.OpAdd)
}

func TestCompileVarDeclaration(t *testing.T) {
	fn := compile(t, "var a = 1;")
	assert.Contains(t, opcodes(fn), chunk.OpDefineGlobal)
}

func TestCompileFunctionEmitsClosure(t *testing.T) {
	fn := compile(t, "fun f() { return 1; } f();")
	assert.Contains(t, opcodes(fn), chunk.OpClosure)
	assert.Contains(t, opcodes(fn), chunk.OpCall)
}

func TestCompileClassWithMethod(t *testing.T) {
	fn := compile(t, "class C { greet() { return 1; } }")
	assert.Contains(t, opcodes(fn), chunk.OpClass)
	assert.Contains(t, opcodes(fn), chunk.OpMethod)
}

func TestCompileClassInheritance(t *testing.T) {
	fn := compile(t, "class A {} class B < A {}")
	assert.Contains(t, opcodes(fn), chunk.OpInherit)
}

func TestCompileErrorOnMissingExpression(t *testing.T) {
	h := heap.New()
	_, err := compiler.Compile("var a = ;", h, loxlog.New(nil, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expect expression")
}

func TestCompileReportsFirstErrorOnly(t *testing.T) {
	h := heap.New()
	logger := loxlog.New(nil, false)
	_, err := compiler.Compile("var a = ;\nvar b = ;", h, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[line 1]")
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	h := heap.New()
	_, err := compiler.Compile("return 1;", h, loxlog.New(nil, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't return from top-level code")
}

func TestCompileThisOutsideClassIsError(t *testing.T) {
	h := heap.New()
	_, err := compiler.Compile("print this;", h, loxlog.New(nil, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can't use 'this' outside of a class")
}
