package angora

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

func buildPassModule(t *testing.T) (*ir.Module, *CategoryList) {
	t.Helper()
	m := &ir.Module{Name: "pass.c", SourceFileSize: 321}
	readSource := &ir.Function{Name: "read", IsDeclaration: true}
	systemSink := &ir.Function{Name: "system", IsDeclaration: true}
	f := &ir.Function{Name: "caller"}
	m.Functions = append(m.Functions, f, readSource, systemSink)

	bb := f.NewBlock()
	bb.InsertInstruction(&ir.Instruction{Opcode: ir.OpCall, Callee: readSource, CalleeName: "read"})
	bb.InsertInstruction(&ir.Instruction{Opcode: ir.OpCall, Callee: systemSink, CalleeName: "system"})

	a := ir.NewValue(f.NewValueID(), ir.TypeI32)
	b := ir.NewValue(f.NewValueID(), ir.TypeI32)
	bb.InsertInstruction(&ir.Instruction{Opcode: ir.OpIcmp, Cond: ir.CondEq, Operands: []ir.Value{a, b}, ID: 5})
	bb.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})

	cats := NewCategoryList(map[string][]string{
		"read":   {CategorySource},
		"system": {CategorySink},
	})
	return m, cats
}

func TestModuleID_DeterministicFromNameAndSize(t *testing.T) {
	m1 := &ir.Module{Name: "a.c", SourceFileSize: 100}
	m2 := &ir.Module{Name: "a.c", SourceFileSize: 100}
	m3 := &ir.Module{Name: "a.c", SourceFileSize: 101}

	require.Equal(t, moduleID(m1), moduleID(m2))
	require.NotEqual(t, moduleID(m1), moduleID(m3))
}

func TestRun_FastMode_ReportsSourceBlocksAndNoCFG(t *testing.T) {
	m, cats := buildPassModule(t)
	var diag bytes.Buffer

	res, err := Run(m, cats, Config{Mode: ModeFast, InstRatio: 100}, &diag)
	require.NoError(t, err)
	require.Equal(t, 1, res.SourceBlocks)
	require.Nil(t, res.CFG)
	require.Equal(t, moduleID(&ir.Module{Name: "pass.c", SourceFileSize: 321}), res.ModuleID)
	require.Contains(t, diag.String(), "mode=fast")
	require.Contains(t, diag.String(), "sources=1")
}

func TestRun_TrackMode_ExportsCFG(t *testing.T) {
	m, cats := buildPassModule(t)
	var diag bytes.Buffer

	res, err := Run(m, cats, Config{Mode: ModeTrack, InstRatio: 100}, &diag)
	require.NoError(t, err)
	require.NotNil(t, res.CFG)
	require.Contains(t, diag.String(), "mode=track")
}

func TestRun_EarlyTerminationOff_DoesNotRun(t *testing.T) {
	m, cats := buildPassModule(t)
	var diag bytes.Buffer

	res, err := Run(m, cats, Config{Mode: ModeFast, InstRatio: 100, EarlyTermination: EarlyTerminationOff}, &diag)
	require.NoError(t, err)
	require.False(t, res.EarlyTermination.Ran)
	require.Contains(t, diag.String(), "early_term=false")
}
