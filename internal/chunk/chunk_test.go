package chunk_test

import (
	"testing"

	"github.com/clarete/golox/internal/chunk"
	"github.com/clarete/golox/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndLine(t *testing.T) {
	c := chunk.New()
	c.WriteOp(chunk.OpNil, 1)
	c.WriteOp(chunk.OpReturn, 2)

	assert.Equal(t, []byte{byte(chunk.OpNil), byte(chunk.OpReturn)}, c.Code)
	assert.Equal(t, 1, c.Line(0))
	assert.Equal(t, 2, c.Line(1))
}

func TestAddConstant(t *testing.T) {
	c := chunk.New()
	idx, err := c.AddConstant(value.Number(42))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, value.Number(42), c.Constants[idx])
}

func TestAddConstantOverflow(t *testing.T) {
	c := chunk.New()
	for i := 0; i < chunk.MaxConstants; i++ {
		_, err := c.AddConstant(value.Number(float64(i)))
		require.NoError(t, err)
	}
	_, err := c.AddConstant(value.Number(999))
	assert.ErrorIs(t, err, chunk.ErrTooManyConstants)
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "OP_RETURN", chunk.OpReturn.String())
	assert.Contains(t, chunk.OpCode(255).String(), "UNKNOWN")
}
