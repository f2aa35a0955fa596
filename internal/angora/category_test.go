package angora

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

func TestCategoryList_IsFuncAndIsCall(t *testing.T) {
	cats := NewCategoryList(map[string][]string{
		"memcmp": {CategoryCmpFn},
		"read":   {CategorySource},
		"system": {CategorySink},
	})

	memcmp := &ir.Function{Name: "memcmp", IsDeclaration: true}
	require.True(t, cats.IsFunc(memcmp, CategoryCmpFn))
	require.False(t, cats.IsFunc(memcmp, CategorySink))

	call := &ir.Instruction{Opcode: ir.OpCall, Callee: memcmp, CalleeName: "memcmp"}
	require.True(t, cats.IsCall(call, CategoryCmpFn))

	indirect := &ir.Instruction{Opcode: ir.OpCall, CalleeName: "system"}
	require.True(t, cats.IsCall(indirect, CategorySink))
}

func TestCategoryList_IsInstr_NonCallUsesExploitTag(t *testing.T) {
	cats := NewCategoryList(map[string][]string{
		"taint_source": {ExploitCategory(0), CategoryAll},
	})

	load := &ir.Instruction{Opcode: ir.OpLoadGlobal, ExploitTag: "taint_source"}
	require.True(t, cats.IsInstr(load, CategoryAll))
	require.True(t, cats.IsInstr(load, ExploitCategory(0)))
	require.False(t, cats.IsInstr(load, ExploitCategory(1)))

	untagged := &ir.Instruction{Opcode: ir.OpBinary}
	require.False(t, cats.IsInstr(untagged, CategoryAll))
}

func TestCategoryList_NilReceiverIsSafe(t *testing.T) {
	var cats *CategoryList
	require.False(t, cats.IsFunc(&ir.Function{Name: "x"}, CategorySink))
	require.False(t, cats.IsCall(&ir.Instruction{Opcode: ir.OpCall, CalleeName: "x"}, CategorySink))
	require.False(t, cats.IsInstr(&ir.Instruction{}, CategoryAll))
}
