package angora

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

func TestNewRuntimeABI_DeclaresSymbolsAndRenamesLoader(t *testing.T) {
	m := &ir.Module{Name: "m"}
	m.Functions = append(m.Functions, &ir.Function{Name: "dlopen", IsDeclaration: true})

	abi := NewRuntimeABI(m)

	require.NotNil(t, abi.TraceCmp)
	require.Equal(t, "__angora_trace_cmp", abi.TraceCmp.Name)
	require.Equal(t, "__angora_trace_cmp_tt", abi.TraceCmpTT.Name)
	require.NotNil(t, m.FuncByName("__angora_trace_cmp"))

	require.Equal(t, "__angora_dlopen", m.Functions[0].Name)
	require.Equal(t, abi.Dlopen.Name, m.Functions[0].Name)

	require.True(t, abi.Context.ThreadLocal)
	require.False(t, abi.AreaPtr.ThreadLocal)
}

func TestRuntimeABI_EmitTraceCmp_InsertsSyntheticCall(t *testing.T) {
	m := &ir.Module{Name: "m"}
	abi := NewRuntimeABI(m)
	f := &ir.Function{Name: "f"}
	bb := f.NewBlock()

	head := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: 1}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32)}
	bb.InsertInstruction(head)

	call, result := abi.EmitTraceCmp(bb, head, f.NewValueID, 0, 0, 0, 0, 0)
	require.True(t, call.Synthetic)
	require.Equal(t, abi.TraceCmp, call.Callee)
	require.True(t, result.Valid())
	require.Same(t, head, call.Prev())
}

func TestRuntimeABI_LoadStoreGlobals(t *testing.T) {
	m := &ir.Module{Name: "m"}
	abi := NewRuntimeABI(m)
	f := &ir.Function{Name: "f"}
	bb := f.NewBlock()
	head := &ir.Instruction{Opcode: ir.OpReturn}
	bb.InsertInstruction(head)

	ld, v := abi.LoadContext(bb, nil, f.NewValueID)
	require.True(t, ld.Synthetic)
	require.Equal(t, abi.Context, ld.GlobalVar)

	st := abi.StoreContext(bb, ld, v)
	require.True(t, st.Synthetic)
	require.Equal(t, []ir.Value{v}, st.Operands)
}
