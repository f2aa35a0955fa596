package angora

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

// buildCmpModule builds a single function with one icmp feeding a
// conditional branch:
//   entry: %c = icmp eq i32 %a, %b; br %c, then, els
//   then:  return
//   els:   return
func buildCmpModule(t *testing.T) (*ir.Module, *ir.Function, *ir.Instruction) {
	t.Helper()
	m := &ir.Module{Name: "m.c", SourceFileSize: 100}
	f := &ir.Function{Name: "f"}
	m.Functions = append(m.Functions, f)

	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()

	a := ir.NewValue(f.NewValueID(), ir.TypeI32)
	b := ir.NewValue(f.NewValueID(), ir.TypeI32)
	cond := ir.NewValue(f.NewValueID(), ir.TypeI1)
	cmp := &ir.Instruction{Opcode: ir.OpIcmp, Cond: ir.CondEq, Operands: []ir.Value{a, b}, Result: cond, ID: 11}
	entry.InsertInstruction(cmp)
	entry.InsertInstruction(&ir.Instruction{Opcode: ir.OpBr, Operands: []ir.Value{cond}, Target: then, Else: els})

	then.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})
	els.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})

	f.ComputePreds()
	return m, f, cmp
}

func countInstructions(f *ir.Function) int {
	n := 0
	for _, bb := range f.Blocks {
		if !bb.Valid() {
			continue
		}
		for i := bb.Root(); i != nil; i = i.Next() {
			n++
		}
	}
	return n
}

// findCallTo returns the first OpCall instruction in f targeting callee, in
// block order, or nil.
func findCallTo(f *ir.Function, callee *ir.Function) *ir.Instruction {
	for _, bb := range f.Blocks {
		for i := bb.Root(); i != nil; i = i.Next() {
			if i.Opcode == ir.OpCall && i.Callee == callee {
				return i
			}
		}
	}
	return nil
}

// defsOf maps every Value f's instructions define back to its defining
// instruction, across every block including ones the Instrumenter split off
// mid-pass, so a test can walk a traced operand back to its origin.
func defsOf(f *ir.Function) map[ir.ValueID]*ir.Instruction {
	defs := make(map[ir.ValueID]*ir.Instruction)
	for _, bb := range f.Blocks {
		for i := bb.Root(); i != nil; i = i.Next() {
			if i.Result.Valid() {
				defs[i.Result.ID()] = i
			}
		}
	}
	return defs
}

func TestInstrumenter_FastMode_TracesComparison(t *testing.T) {
	m, f, cmp := buildCmpModule(t)
	abi := NewRuntimeABI(m)
	cats := NewCategoryList(nil)
	ids := NewIdOracle()
	cfg := Config{Mode: ModeFast, InstRatio: 100}

	before := countInstructions(f)
	inst := NewInstrumenter(abi, cats, ids, cfg, 1)
	inst.Run(m)

	require.Greater(t, countInstructions(f), before)
	require.Same(t, cmp, ids.CmpByID(11))

	call := findCallTo(f, abi.TraceCmp)
	require.NotNil(t, call)

	// The call must sit behind a __angora_cond_cmpid gate, not run
	// unconditionally: its block has exactly one predecessor, reached only
	// when that predecessor's branch compares the drawn cid against a
	// load of CondCmpID.
	hot := call.Block
	require.Len(t, hot.Preds, 1)
	gate := hot.Preds[0]
	require.NotSame(t, gate, hot)

	br := gate.Tail()
	require.Equal(t, ir.OpBr, br.Opcode)
	require.Same(t, hot, br.Target)
	require.NotSame(t, hot, br.Else)

	defs := defsOf(f)
	eq := defs[br.Operands[0].ID()]
	require.Equal(t, ir.OpIcmp, eq.Opcode)
	require.Equal(t, ir.CondEq, eq.Cond)
	ld := defs[eq.Operands[1].ID()]
	require.Equal(t, ir.OpLoadGlobal, ld.Opcode)
	require.Same(t, abi.CondCmpID, ld.GlobalVar)

	// The traced cond argument is the comparison's own zero-extended
	// runtime result, not the predicate constant.
	condArg := defs[call.Operands[0].ID()]
	require.Equal(t, ir.OpZext, condArg.Opcode)
	require.Equal(t, cmp.Result, condArg.Operands[0])
}

func TestInstrumenter_TrackMode_TracesComparisonTT(t *testing.T) {
	m, f, cmp := buildCmpModule(t)
	abi := NewRuntimeABI(m)
	cats := NewCategoryList(nil)
	ids := NewIdOracle()
	cfg := Config{Mode: ModeTrack, InstRatio: 100}

	inst := NewInstrumenter(abi, cats, ids, cfg, 2)
	inst.Run(m)

	require.Same(t, cmp, ids.CmpByID(11))

	call := findCallTo(f, abi.TraceCmpTT)
	require.NotNil(t, call)

	// Track mode traces unconditionally: no gate block was split in ahead
	// of the call, so it still sits in the function's entry block.
	require.Same(t, f.Entry(), call.Block)

	// The final cond argument is the zero-extended comparison result, not
	// a hardcoded "always true".
	defs := defsOf(f)
	condArg := call.Operands[len(call.Operands)-1]
	condDef := defs[condArg.ID()]
	require.Equal(t, ir.OpZext, condDef.Opcode)
	require.Equal(t, cmp.Result, condDef.Operands[0])
}

func TestInstrumenter_InstRatioZero_NoEdgeCounters(t *testing.T) {
	m, f, _ := buildCmpModule(t)
	abi := NewRuntimeABI(m)
	cats := NewCategoryList(nil)
	ids := NewIdOracle()
	cfg := Config{Mode: ModeFast, InstRatio: 0}

	inst := NewInstrumenter(abi, cats, ids, cfg, 3)
	inst.Run(m)

	for _, bb := range f.Blocks {
		for i := bb.Root(); i != nil; i = i.Next() {
			require.NotEqual(t, ir.OpMapIncrement, i.Opcode)
		}
	}
}

// With contexts disabled no function-wrap or call-site context update is
// emitted, so nothing ever writes the context global and it stays zero.
// Trace calls still read it for their ctx argument.
func TestInstrumenter_CustomFnCtxZero_NeverWritesContext(t *testing.T) {
	m, f, _ := buildCmpModule(t)
	abi := NewRuntimeABI(m)
	cats := NewCategoryList(nil)
	ids := NewIdOracle()
	zero := 0
	cfg := Config{Mode: ModeFast, InstRatio: 100, ContextDepth: &zero}

	inst := NewInstrumenter(abi, cats, ids, cfg, 4)
	inst.Run(m)

	for _, bb := range f.Blocks {
		for i := bb.Root(); i != nil; i = i.Next() {
			if i.Opcode == ir.OpStoreGlobal && i.GlobalVar == abi.Context {
				t.Fatalf("unexpected store to context global with CUSTOM_FN_CTX=0: %+v", i)
			}
		}
	}
}

func TestInstrumenter_SecondRunIsNoOpOnInstrumentedInstructions(t *testing.T) {
	m, f, _ := buildCmpModule(t)
	abi := NewRuntimeABI(m)
	cats := NewCategoryList(nil)
	ids := NewIdOracle()
	cfg := Config{Mode: ModeFast, InstRatio: 100}

	inst := NewInstrumenter(abi, cats, ids, cfg, 5)
	inst.Run(m)
	traces1 := countCallsTo(f, abi.TraceCmp)

	inst2 := NewInstrumenter(abi, cats, ids, cfg, 5)
	inst2.Run(m)
	traces2 := countCallsTo(f, abi.TraceCmp)

	// The second run traces the one original comparison again, but not the
	// synthetic cond-cmpid gate comparison the first run inserted.
	require.Equal(t, 1, traces1)
	require.Equal(t, traces1+1, traces2)
}

// countCallsTo counts the OpCall instructions in f targeting callee.
func countCallsTo(f *ir.Function, callee *ir.Function) int {
	n := 0
	for _, bb := range f.Blocks {
		for i := bb.Root(); i != nil; i = i.Next() {
			if i.Opcode == ir.OpCall && i.Callee == callee {
				n++
			}
		}
	}
	return n
}

func TestInstrumenter_MemcmpCall_TracesFnTT(t *testing.T) {
	m := &ir.Module{Name: "m.c", SourceFileSize: 10}
	memcmp := &ir.Function{Name: "memcmp", IsDeclaration: true}
	f := &ir.Function{Name: "f"}
	m.Functions = append(m.Functions, f, memcmp)

	bb := f.NewBlock()
	p1 := ir.NewValue(f.NewValueID(), ir.TypePtr)
	p2 := ir.NewValue(f.NewValueID(), ir.TypePtr)
	n := ir.NewValue(f.NewValueID(), ir.TypeI64)
	call := &ir.Instruction{Opcode: ir.OpCall, Callee: memcmp, CalleeName: "memcmp", Operands: []ir.Value{p1, p2, n}, ID: 21}
	bb.InsertInstruction(call)
	bb.InsertInstruction(&ir.Instruction{Opcode: ir.OpReturn})

	abi := NewRuntimeABI(m)
	cats := NewCategoryList(map[string][]string{"memcmp": {CategoryCmpFn}})
	ids := NewIdOracle()
	cfg := Config{Mode: ModeTrack, InstRatio: 100}

	inst := NewInstrumenter(abi, cats, ids, cfg, 6)
	inst.Run(m)

	foundFnTT := false
	for i := bb.Root(); i != nil; i = i.Next() {
		if i.Opcode == ir.OpCall && i.Callee == abi.TraceFnTT {
			foundFnTT = true
		}
	}
	require.True(t, foundFnTT)
}
