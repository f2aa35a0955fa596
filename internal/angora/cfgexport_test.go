package angora

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

// buildCFGModule builds:
//   b1: %c1 = icmp eq i32 %a,%b (id=1); jump b2
//   b2: call dangerous();          jump b3
//   b3: %c2 = icmp eq i32 %a,%b (id=2); return
// so walking from cmp id 1 must cross the intermediate non-comparison block
// b2 (marking id 1 as a target, since b2 calls a "sink"), before reaching
// cmp id 2 in b3, recording edge 1 -> 2.
func buildCFGModule(t *testing.T) (*ir.Module, *CategoryList, *IdOracle) {
	t.Helper()
	m := &ir.Module{Name: "m"}
	dangerous := &ir.Function{Name: "dangerous", IsDeclaration: true}
	f := &ir.Function{Name: "f"}
	m.Functions = append(m.Functions, f, dangerous)

	b1 := f.NewBlock()
	b2 := f.NewBlock()
	b3 := f.NewBlock()

	a := ir.NewValue(f.NewValueID(), ir.TypeI32)
	b := ir.NewValue(f.NewValueID(), ir.TypeI32)

	cmp1 := &ir.Instruction{Opcode: ir.OpIcmp, Cond: ir.CondEq, Operands: []ir.Value{a, b}, ID: 1}
	b1.InsertInstruction(cmp1)
	b1.InsertInstruction(&ir.Instruction{Opcode: ir.OpJump, Target: b2})

	b2.InsertInstruction(&ir.Instruction{Opcode: ir.OpCall, Callee: dangerous, CalleeName: "dangerous"})
	b2.InsertInstruction(&ir.Instruction{Opcode: ir.OpJump, Target: b3})

	cmp2 := &ir.Instruction{Opcode: ir.OpIcmp, Cond: ir.CondEq, Operands: []ir.Value{a, b}, ID: 2}
	b3.InsertInstruction(cmp2)
	b3.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})

	f.ComputePreds()

	cats := NewCategoryList(map[string][]string{"dangerous": {CategorySink}})
	ids := NewIdOracle()
	ids.RecordCmp(cmp1)
	ids.RecordCmp(cmp2)
	return m, cats, ids
}

func TestCFGExporter_Export_WalksThroughIntermediateBlock(t *testing.T) {
	m, cats, ids := buildCFGModule(t)
	exp := NewCFGExporter(cats, ids)

	g := exp.Export(m)
	require.Equal(t, []uint32{1}, g.Targets)
	require.Equal(t, [][2]uint32{{1, 2}}, g.Edges)
}

func TestCFGGraph_MarshalJSON_EmptyIsNotNull(t *testing.T) {
	g := &CFGGraph{CallsiteDominators: map[string][]uint32{}}
	data, err := json.Marshal(g)
	require.NoError(t, err)
	require.JSONEq(t, `{"targets":[],"edges":[],"callsite_dominators":{}}`, string(data))
}
