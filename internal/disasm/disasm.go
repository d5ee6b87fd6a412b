// Package disasm prints a Chunk's bytecode in the textual form used by
// the -debug-bytecode CLI flag.
package disasm

import (
	"fmt"
	"io"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/heap"
)

// Disassemble writes name followed by every instruction in c to w.
func Disassemble(w io.Writer, c *chunk.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = Instruction(w, c, offset)
	}
}

// Instruction writes the single instruction at offset and returns the
// offset of the next one.
func Instruction(w io.Writer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && c.Line(offset) == c.Line(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", c.Line(offset))
	}

	op := chunk.OpCode(c.Code[offset])
	switch op {
	case chunk.OpConstant:
		return constantInstruction(w, op, c, offset)
	case chunk.OpNil, chunk.OpTrue, chunk.OpFalse, chunk.OpPop,
		chunk.OpEqual, chunk.OpGreater, chunk.OpLess,
		chunk.OpAdd, chunk.OpSubtract, chunk.OpMultiply, chunk.OpDivide,
		chunk.OpNot, chunk.OpNegate, chunk.OpPrint, chunk.OpCloseUpvalue,
		chunk.OpReturn, chunk.OpInherit:
		return simpleInstruction(w, op, offset)
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpCall:
		return byteInstruction(w, op, c, offset)
	case chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
		chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper, chunk.OpClass, chunk.OpMethod:
		return constantInstruction(w, op, c, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, c, offset)
	case chunk.OpLoop:
		return jumpInstruction(w, op, -1, c, offset)
	case chunk.OpInvoke, chunk.OpSuperInvoke:
		return invokeInstruction(w, op, c, offset)
	case chunk.OpClosure:
		return closureInstruction(w, c, offset)
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", op)
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, op chunk.OpCode, offset int) int {
	fmt.Fprintf(w, "%s\n", op)
	return offset + 1
}

func byteInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", op, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, op chunk.OpCode, sign int, c *chunk.Chunk, offset int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func constantInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", op, idx, heap.Stringify(c.Constants[idx]))
	return offset + 2
}

func invokeInstruction(w io.Writer, op chunk.OpCode, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	argCount := c.Code[offset+2]
	fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", op, argCount, idx, heap.Stringify(c.Constants[idx]))
	return offset + 3
}

func closureInstruction(w io.Writer, c *chunk.Chunk, offset int) int {
	offset++
	constant := c.Code[offset]
	offset++
	fmt.Fprintf(w, "%-16s %4d '%s'\n", chunk.OpClosure, constant, heap.Stringify(c.Constants[constant]))

	if fn, ok := c.Constants[constant].AsObject().(*heap.Function); ok {
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[offset]
			index := c.Code[offset+1]
			offset += 2
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(w, "%04d      |                     %s %d\n", offset-2, kind, index)
		}
	}
	return offset
}
