package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceSuccessor_RewritesPhiIncoming(t *testing.T) {
	f := &Function{Name: "f"}
	from := f.NewBlock()
	oldTarget := f.NewBlock()
	newTarget := f.NewBlock()

	p := oldTarget.AddParam(f.NewValueID(), TypeI32)
	_ = p

	arg := NewValue(f.NewValueID(), TypeI32)
	br := &Instruction{Opcode: OpJump, Target: oldTarget, BranchArgs: map[*BasicBlock][]Value{
		oldTarget: {arg},
	}}
	from.InsertInstruction(br)

	f.ReplaceSuccessor(br, oldTarget, newTarget)

	require.Equal(t, newTarget, br.Target)
	require.Equal(t, []Value{arg}, br.BranchArgs[newTarget])
	_, hasOld := br.BranchArgs[oldTarget]
	require.False(t, hasOld)
}

func TestRemoveUnreachableBlocks(t *testing.T) {
	f := &Function{Name: "f"}
	entry := f.NewBlock()
	reachable := f.NewBlock()
	dead := f.NewBlock()

	entry.InsertInstruction(&Instruction{Opcode: OpJump, Target: reachable})
	reachable.InsertInstruction(&Instruction{Opcode: OpReturn})
	dead.InsertInstruction(&Instruction{Opcode: OpReturn})

	f.RemoveUnreachableBlocks()

	require.Len(t, f.Blocks, 2)
	require.False(t, dead.Valid())
}

func TestCallGraphSCCs_CalleesBeforeCallers(t *testing.T) {
	m := &Module{Name: "m"}
	callee := &Function{Name: "callee"}
	caller := &Function{Name: "caller"}
	m.Functions = append(m.Functions, caller, callee)

	cb := caller.NewBlock()
	cb.InsertInstruction(&Instruction{Opcode: OpCall, Callee: callee, CalleeName: "callee"})
	cb.InsertInstruction(&Instruction{Opcode: OpReturn})

	eb := callee.NewBlock()
	eb.InsertInstruction(&Instruction{Opcode: OpReturn})

	cg := BuildCallGraph(m)
	sccs := CallGraphSCCs(m, cg)

	indexOf := func(fn *Function) int {
		for i, scc := range sccs {
			for _, f := range scc {
				if f == fn {
					return i
				}
			}
		}
		return -1
	}

	require.Less(t, indexOf(callee), indexOf(caller))
}
