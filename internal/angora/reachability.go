package angora

import (
	"fmt"
	"os"

	"github.com/cispa/ampfuzz/ir"
)

// fact is the tri-valued lattice element spec.md §3 describes for each of
// the four reachability predicates, before they are frozen into the final
// bool maps.
type fact int

const (
	factUnknown fact = iota
	factYes
	factNo
)

// ReachabilityAnalysis is the fixed-point interprocedural analysis of
// spec.md §4.4: for every basic block in the module it decides whether the
// block is a source, will (on every continuation) eventually reach a
// source, is itself a sink reached before any source, or may reach a sink
// before any source. EarlyTerminator consumes CanReachSinkBeforeSource and
// IsSource; the Instrumenter does not consult this analysis at all (it is
// purely an EarlyTerminator precondition).
type ReachabilityAnalysis struct {
	IsSource                 map[*ir.BasicBlock]bool
	WillReachSource          map[*ir.BasicBlock]bool
	IsSinkBeforeSource       map[*ir.BasicBlock]bool
	CanReachSinkBeforeSource map[*ir.BasicBlock]bool
}

// RunReachability computes the ReachabilityAnalysis over every function in
// m.
//
// Implementation note: spec.md §4.4 processes the call graph SCC by SCC, in
// reverse-topological (callees-first) order, to bound worklist re-work.
// This implementation instead runs each of the two worklist passes once
// over the whole module's blocks, using the call graph's reverse edges
// (ir.CallGraph.CallersOf) to requeue callers whenever a callee's entry
// fact changes. Both converge to the same fixed point — the SCC ordering
// is a complexity optimization, not a correctness requirement — and
// decomposing by SCC first is a sizeable amount of extra bookkeeping for no
// behavioral difference at the module sizes this pass instruments; see
// DESIGN.md for the tradeoff.
func RunReachability(m *ir.Module, cats *CategoryList) *ReachabilityAnalysis {
	cg := ir.BuildCallGraph(m)

	ra := &ReachabilityAnalysis{
		IsSource:                 make(map[*ir.BasicBlock]bool),
		WillReachSource:          make(map[*ir.BasicBlock]bool),
		IsSinkBeforeSource:       make(map[*ir.BasicBlock]bool),
		CanReachSinkBeforeSource: make(map[*ir.BasicBlock]bool),
	}

	resolved1 := runWorklist(m, cg, func(bb *ir.BasicBlock, resolved map[*ir.BasicBlock]fact) fact {
		return willReachSourceStep(bb, resolved, cats)
	})
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() {
				continue
			}
			// I5: unresolved will_reach_source blocks default to Yes
			// (conservative for termination correctness).
			ra.WillReachSource[bb] = resolved1[bb] != factNo
		}
	}

	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() {
				continue
			}
			ra.IsSource[bb] = blockCallsSource(bb, resolved1, cats)
		}
	}

	resolved2 := runWorklist(m, cg, func(bb *ir.BasicBlock, resolved map[*ir.BasicBlock]fact) fact {
		return canReachSinkStep(bb, resolved, resolved1, cats, ra.IsSource)
	})
	for bb, f := range resolved2 {
		// I5: unresolved can_reach_sink_before_source blocks default to
		// No (conservative against over-cutting).
		ra.CanReachSinkBeforeSource[bb] = f == factYes
	}

	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() {
				continue
			}
			ra.IsSinkBeforeSource[bb] = blockHasSinkBeforeSource(bb, resolved2, resolved1, cats)
		}
	}

	if PrintReachability {
		ra.dump(m)
	}

	return ra
}

// dump prints the four reachability facts per block, gated by
// PrintReachability.
func (ra *ReachabilityAnalysis) dump(m *ir.Module) {
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() {
				continue
			}
			fmt.Fprintf(os.Stderr, "angora: reachability %s.%s source=%v will_reach_source=%v sink_before_source=%v can_reach_sink_before_source=%v\n",
				f.Name, bb.Name(), ra.IsSource[bb], ra.WillReachSource[bb], ra.IsSinkBeforeSource[bb], ra.CanReachSinkBeforeSource[bb])
		}
	}
}

// runWorklist drives the generic two-phase (init + worklist-to-quiescence)
// fixed-point shape shared by both passes of spec.md §4.4.
func runWorklist(m *ir.Module, cg *ir.CallGraph, step func(bb *ir.BasicBlock, resolved map[*ir.BasicBlock]fact) fact) map[*ir.BasicBlock]fact {
	resolved := make(map[*ir.BasicBlock]fact)
	var queue []*ir.BasicBlock
	queued := make(map[*ir.BasicBlock]bool)

	enqueue := func(bb *ir.BasicBlock) {
		if bb == nil || resolved[bb] != factUnknown || queued[bb] {
			return
		}
		queue = append(queue, bb)
		queued[bb] = true
	}

	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if bb.Valid() {
				enqueue(bb)
			}
		}
	}

	for len(queue) > 0 {
		bb := queue[0]
		queue = queue[1:]
		queued[bb] = false

		if resolved[bb] != factUnknown {
			continue
		}
		newFact := step(bb, resolved)
		if newFact == factUnknown {
			continue
		}
		resolved[bb] = newFact

		for _, p := range bb.Preds {
			enqueue(p)
		}
		if bb.EntryBlock() {
			for _, cs := range cg.CallersOf[bb.Fn] {
				enqueue(cs.Block)
			}
		}
	}
	return resolved
}

func successorFact(succs []*ir.BasicBlock, resolved map[*ir.BasicBlock]fact) (allYes, allResolved, anyNo bool) {
	allYes, allResolved, anyNo = true, true, false
	for _, s := range succs {
		f := resolved[s]
		if f == factUnknown {
			allResolved = false
			allYes = false
			continue
		}
		if f != factYes {
			allYes = false
		}
		if f == factNo {
			anyNo = true
		}
	}
	return
}

// willReachSourceStep implements spec.md §4.4 step 2 (will-reach-source
// fixed point) for one block.
func willReachSourceStep(bb *ir.BasicBlock, resolved map[*ir.BasicBlock]fact, cats *CategoryList) fact {
	for i := bb.Root(); i != nil; i = i.Next() {
		if i.Opcode != ir.OpCall && i.Opcode != ir.OpInvoke {
			continue
		}
		if calleeReachesSource(i.Callee, resolved, cats) {
			return factYes
		}
	}
	succs := bb.Successors()
	if len(succs) == 0 {
		return factNo
	}
	allYes, allResolved, anyNo := successorFact(succs, resolved)
	if allYes {
		return factYes
	}
	if allResolved && anyNo {
		return factNo
	}
	return factUnknown
}

// calleeReachesSource resolves whether calling callee is guaranteed to
// eventually execute a source call, per spec.md §4.4's "callee resolution
// through the categorized sets": category "source" membership, or a
// defined function whose entry block will_reach_source resolves Yes.
// Indirect calls (nil callee) are under-approximated to false, "reflecting
// the safety direction" of the source-reachability fact.
func calleeReachesSource(callee *ir.Function, resolved map[*ir.BasicBlock]fact, cats *CategoryList) bool {
	if callee == nil {
		return false
	}
	if cats.IsFunc(callee, CategorySource) {
		return true
	}
	if callee.IsDeclaration {
		return false
	}
	entry := callee.Entry()
	return entry != nil && resolved[entry] == factYes
}

// blockCallsSource materializes the final is_source(BB) fact: some call in
// BB resolves to a source, using the frozen pass-1 results (spec.md §3
// "some instruction in BB calls a source function").
func blockCallsSource(bb *ir.BasicBlock, resolved1 map[*ir.BasicBlock]fact, cats *CategoryList) bool {
	for i := bb.Root(); i != nil; i = i.Next() {
		if i.Opcode != ir.OpCall && i.Opcode != ir.OpInvoke {
			continue
		}
		if calleeReachesSource(i.Callee, resolved1, cats) {
			return true
		}
	}
	return false
}

// canReachSinkStep implements spec.md §4.4 step 4 (can-reach-sink-before-
// source fixed point) for one block.
func canReachSinkStep(bb *ir.BasicBlock, resolved2, resolved1 map[*ir.BasicBlock]fact, cats *CategoryList, isSource map[*ir.BasicBlock]bool) fact {
	if blockHasSinkBeforeSource(bb, resolved2, resolved1, cats) {
		return factYes
	}
	if isSource[bb] {
		return factNo
	}
	succs := bb.Successors()
	if len(succs) == 0 {
		return factNo
	}
	anyYes := false
	allResolved := true
	for _, s := range succs {
		f := resolved2[s]
		if f == factUnknown {
			allResolved = false
			continue
		}
		if f == factYes {
			anyYes = true
		}
	}
	if anyYes {
		return factYes
	}
	if allResolved {
		return factNo
	}
	return factUnknown
}

// calleeIsSink resolves whether calling callee constitutes "a call to a
// sink" for the purposes of is_sink_before_source: category "sink"
// membership, or a defined function whose entry block can_reach_sink_
// before_source resolves Yes. Indirect calls are over-approximated to true
// (spec.md §4.4 "over-approximated to Yes for unresolved indirect calls ...
// in sink queries").
func calleeIsSink(callee *ir.Function, resolved2 map[*ir.BasicBlock]fact, cats *CategoryList) bool {
	if callee == nil {
		return true
	}
	if cats.IsFunc(callee, CategorySink) {
		return true
	}
	if callee.IsDeclaration {
		return false
	}
	entry := callee.Entry()
	return entry != nil && resolved2[entry] == factYes
}

// blockHasSinkBeforeSource scans bb's calls in program order and reports
// whether a sink call is reached before any source call (spec.md §3
// is_sink_before_source, §4.4 step 4's Yes clause).
func blockHasSinkBeforeSource(bb *ir.BasicBlock, resolved2, resolved1 map[*ir.BasicBlock]fact, cats *CategoryList) bool {
	sawSource := false
	for i := bb.Root(); i != nil; i = i.Next() {
		if i.Opcode != ir.OpCall && i.Opcode != ir.OpInvoke {
			continue
		}
		if !sawSource && calleeIsSink(i.Callee, resolved2, cats) {
			return true
		}
		if calleeReachesSource(i.Callee, resolved1, cats) {
			sawSource = true
		}
	}
	return false
}

// sources returns every basic block the analysis marked IsSource, across
// every function, in module order — consumed by EarlyTerminator's forward
// walk (spec.md §4.6 step 2).
func (ra *ReachabilityAnalysis) sources(m *ir.Module) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if bb.Valid() && ra.IsSource[bb] {
				out = append(out, bb)
			}
		}
	}
	return out
}
