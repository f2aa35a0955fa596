package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeModule_RoundTrip(t *testing.T) {
	m := &Module{Name: "mod.c", SourceFileSize: 1234}
	f := &Function{Name: "main"}
	m.Functions = append(m.Functions, f)

	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()

	cond := NewValue(f.NewValueID(), TypeI1)
	entry.InsertInstruction(&Instruction{Opcode: OpIcmp, Cond: CondEq, Result: cond, Operands: []Value{NewValue(f.NewValueID(), TypeI32), NewValue(f.NewValueID(), TypeI32)}, ID: 7})
	entry.InsertInstruction(&Instruction{Opcode: OpBr, Operands: []Value{cond}, Target: then, Else: els})

	then.InsertInstruction(&Instruction{Opcode: OpCall, CalleeName: "main", Callee: f})
	then.InsertInstruction(&Instruction{Opcode: OpReturn})
	els.InsertInstruction(&Instruction{Opcode: OpReturn})

	data, err := EncodeModule(m)
	require.NoError(t, err)

	decoded, err := DecodeModule(data)
	require.NoError(t, err)

	require.Equal(t, m.Name, decoded.Name)
	require.Equal(t, m.SourceFileSize, decoded.SourceFileSize)
	require.Len(t, decoded.Functions, 1)
	df := decoded.Functions[0]
	require.Len(t, df.Blocks, 3)

	require.Equal(t, OpIcmp, df.Blocks[0].Root().Opcode)
	require.EqualValues(t, 7, df.Blocks[0].Root().ID)

	br := df.Blocks[0].Root().Next()
	require.Equal(t, OpBr, br.Opcode)
	require.Equal(t, df.Blocks[1], br.Target)
	require.Equal(t, df.Blocks[2], br.Else)

	call := df.Blocks[1].Root()
	require.Equal(t, OpCall, call.Opcode)
	require.Equal(t, df, call.Callee)
}
