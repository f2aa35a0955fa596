package angora

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

// buildEarlyTermModule builds:
//   entry(source): call read(); jump sinkBlock
//   sinkBlock:     call system(); jump after
//   after:         return
// entry is a source, so its own CanReachSinkBeforeSource is forced No
// (blocked by I4). sinkBlock calls a sink with no prior source call in its
// own block, so IsSinkBeforeSource(sinkBlock) is Yes, making
// CanReachSinkBeforeSource(sinkBlock) Yes too. after has neither, so its
// CanReachSinkBeforeSource is No: the sinkBlock -> after edge is exactly
// the "leaving a can-reach-sink region" transition EarlyTerminator cuts.
func buildEarlyTermModule(t *testing.T) (*ir.Module, *CategoryList) {
	t.Helper()
	m := &ir.Module{Name: "m"}
	readSource := &ir.Function{Name: "read", IsDeclaration: true}
	systemSink := &ir.Function{Name: "system", IsDeclaration: true}
	f := &ir.Function{Name: "f"}
	m.Functions = append(m.Functions, f, readSource, systemSink)

	entry := f.NewBlock()
	sinkBlock := f.NewBlock()
	after := f.NewBlock()

	entry.InsertInstruction(&ir.Instruction{Opcode: ir.OpCall, Callee: readSource, CalleeName: "read"})
	entry.InsertInstruction(&ir.Instruction{Opcode: ir.OpJump, Target: sinkBlock})

	sinkBlock.InsertInstruction(&ir.Instruction{Opcode: ir.OpCall, Callee: systemSink, CalleeName: "system"})
	sinkBlock.InsertInstruction(&ir.Instruction{Opcode: ir.OpJump, Target: after})

	after.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})

	f.ComputePreds()

	cats := NewCategoryList(map[string][]string{
		"read":   {CategorySource},
		"system": {CategorySink},
	})
	return m, cats
}

func TestRunEarlyTerminator_Off(t *testing.T) {
	m, cats := buildEarlyTermModule(t)
	ra := RunReachability(m, cats)
	abi := NewRuntimeABI(m)
	cg := ir.BuildCallGraph(m)

	res := RunEarlyTerminator(m, ra, cg, abi, Config{EarlyTermination: EarlyTerminationOff})
	require.False(t, res.Ran)
	require.Zero(t, res.EdgesCut)
}

func TestRunEarlyTerminator_CutsEdgeLeavingSinkBeforeSourceRegion(t *testing.T) {
	m, cats := buildEarlyTermModule(t)
	ra := RunReachability(m, cats)
	abi := NewRuntimeABI(m)
	cg := ir.BuildCallGraph(m)

	f := m.Functions[0]
	entry, sinkBlock, after := f.Blocks[0], f.Blocks[1], f.Blocks[2]
	require.True(t, ra.IsSource[entry])
	require.False(t, ra.CanReachSinkBeforeSource[entry])
	require.True(t, ra.CanReachSinkBeforeSource[sinkBlock])
	require.False(t, ra.CanReachSinkBeforeSource[after])

	blocksBefore := len(f.Blocks)

	res := RunEarlyTerminator(m, ra, cg, abi, Config{EarlyTermination: EarlyTerminationStatic})
	require.True(t, res.Ran)
	require.Equal(t, 1, res.EdgesCut)
	require.Greater(t, len(f.Blocks), blocksBefore)

	jmp := sinkBlock.Tail()
	require.NotEqual(t, after, jmp.Target)
	probe := jmp.Target
	require.Equal(t, ir.OpCall, probe.Root().Opcode)
	require.Equal(t, abi.CheckTerminateStatic, probe.Root().Callee)
	require.Equal(t, after, probe.Tail().Target)
}

func TestRunEarlyTerminator_AggressiveSkipsDoNotModify(t *testing.T) {
	m, cats := buildEarlyTermModule(t)
	ra := RunReachability(m, cats)
	abi := NewRuntimeABI(m)
	cg := ir.BuildCallGraph(m)

	doNotModify := computeDoNotModify(m, ra, Config{EarlyAggressive: true})
	require.Empty(t, doNotModify)

	res := RunEarlyTerminator(m, ra, cg, abi, Config{EarlyTermination: EarlyTerminationStatic, EarlyAggressive: true})
	require.True(t, res.Ran)
}
