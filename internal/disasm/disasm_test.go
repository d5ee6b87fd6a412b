package disasm_test

import (
	"strings"
	"testing"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/disasm"
	"github.com/clarete/golox/internal/value"
	"github.com/stretchr/testify/assert"
)

func TestDisassembleSimpleChunk(t *testing.T) {
	c := chunk.New()
	idx, _ := c.AddConstant(value.Number(1.5))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(idx), 1)
	c.WriteOp(chunk.OpReturn, 1)

	var b strings.Builder
	disasm.Disassemble(&b, c, "test")

	out := b.String()
	assert.Contains(t, out, "== test ==")
	assert.Contains(t, out, "OP_CONSTANT")
	assert.Contains(t, out, "OP_RETURN")
}
