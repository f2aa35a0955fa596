package angora

import (
	"fmt"
	"os"

	"github.com/cispa/ampfuzz/ir"
)

// EarlyTermResult reports what the EarlyTerminator did, for the pass's
// startup diagnostic line (spec.md §7 "any early-termination activity").
type EarlyTermResult struct {
	Ran       bool
	EdgesCut  int
}

// RunEarlyTerminator implements spec.md §4.6: given a completed
// ReachabilityAnalysis, it cuts CFG edges that leave "can-reach-sink"
// regions and re-routes them through a call to
// __angora_check_terminate_static, preserving SSA correctness via phi
// fixup in ir.Function.ReplaceSuccessor.
func RunEarlyTerminator(m *ir.Module, ra *ReachabilityAnalysis, cg *ir.CallGraph, abi *RuntimeABI, cfg Config) EarlyTermResult {
	if cfg.EarlyTermination == EarlyTerminationOff {
		return EarlyTermResult{}
	}

	doNotModify := computeDoNotModify(m, ra, cfg)

	type cutEdge struct {
		from *ir.BasicBlock
		to   *ir.BasicBlock
	}
	var order []cutEdge
	seen := make(map[cutEdge]bool)

	visited := make(map[*ir.BasicBlock]bool)
	var queue []*ir.BasicBlock
	for _, src := range ra.sources(m) {
		if doNotModify[src.Fn] || visited[src] {
			continue
		}
		visited[src] = true
		queue = append(queue, src)
	}

	for len(queue) > 0 {
		bb := queue[0]
		queue = queue[1:]

		for _, succ := range bb.Successors() {
			if ra.CanReachSinkBeforeSource[bb] && !ra.CanReachSinkBeforeSource[succ] {
				e := cutEdge{bb, succ}
				if !seen[e] {
					seen[e] = true
					order = append(order, e)
				}
				continue
			}
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, succ)
			}
		}
	}

	for _, e := range order {
		if PrintEarlyTermination {
			fmt.Fprintf(os.Stderr, "angora: early-term cut %s.%s -> %s.%s\n",
				e.from.Fn.Name, e.from.Name(), e.to.Fn.Name, e.to.Name())
		}
		rewriteEdge(e.from, e.to, abi)
	}

	return EarlyTermResult{Ran: true, EdgesCut: len(order)}
}

// computeDoNotModify builds the set of functions that must not have their
// CFG mutated because some can-reach-sink block calls into them (spec.md
// §4.6 step 1). Disabled by ANGORA_EARLY_AGGRESSIVE.
//
// Faithfully reproduces the upstream quirk noted in spec.md §9: an
// unresolved indirect call's nil callee is inserted into the set too. This
// has no effect on any real function (nothing is ever compared against a
// nil *ir.Function as "the current function"), so it is harmless, but it
// is kept rather than special-cased away, matching the original's
// documented behavior.
func computeDoNotModify(m *ir.Module, ra *ReachabilityAnalysis, cfg Config) map[*ir.Function]bool {
	doNotModify := make(map[*ir.Function]bool)
	if cfg.EarlyAggressive {
		return doNotModify
	}
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() || !ra.CanReachSinkBeforeSource[bb] {
				continue
			}
			for i := bb.Root(); i != nil; i = i.Next() {
				if i.Opcode == ir.OpCall || i.Opcode == ir.OpInvoke {
					doNotModify[i.Callee] = true
				}
			}
		}
	}
	return doNotModify
}

// rewriteEdge replaces the from->to edge with from->T->to, where T contains
// a single call to __angora_check_terminate_static (spec.md §4.6 step 3).
func rewriteEdge(from, to *ir.BasicBlock, abi *RuntimeABI) {
	fn := from.Fn
	t := fn.NewBlock()
	call := abi.EmitCheckTerminateStatic(t, nil)
	jmp := &ir.Instruction{Opcode: ir.OpJump, Target: to, Synthetic: true}
	t.InsertInstructionAfter(jmp, call)

	fn.ReplaceSuccessor(from.Tail(), to, t)
	// T has no params of its own: the block args from passed to `to` are
	// forwarded by T's jump instead.
	if args, ok := from.Tail().BranchArgs[t]; ok {
		delete(from.Tail().BranchArgs, t)
		jmp.BranchArgs = map[*ir.BasicBlock][]ir.Value{to: args}
	}
	fn.ComputePreds()
}
