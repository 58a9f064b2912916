package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassID(t *testing.T) {
	a := mustAssemble(t, calcSource)
	b := mustAssemble(t, calcSource)

	idA, err := ClassID(a)
	require.NoError(t, err)
	idB, err := ClassID(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB, "identical input must hash identically")

	b.Methods[0].Code[3].Operand = 1
	idC, err := ClassID(b)
	require.NoError(t, err)
	assert.NotEqual(t, idA, idC, "changed code must change the id")

	assert.Len(t, FormatClassID(idA), 16)
}

func TestMarshalClass_RoundTrip(t *testing.T) {
	c := mustAssemble(t, calcSource)
	data, err := MarshalClass(c)
	require.NoError(t, err)

	back, err := UnmarshalClass(data)
	require.NoError(t, err)
	assert.Equal(t, Disassemble(c), Disassemble(back))

	again, err := MarshalClass(back)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
