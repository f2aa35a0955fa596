package angora

import (
	"fmt"
	"io"

	"github.com/cispa/ampfuzz/ir"
)

// Result summarizes one pass invocation (spec.md §7 "startup diagnostic
// line"): how many source blocks and sink-before-source blocks the
// reachability analysis found, whether
// early-termination ran and how many edges it cut, and (track mode only)
// the CFG graph CFGExporter produced.
type Result struct {
	ModuleID          uint32
	SourceBlocks      int
	SinkBlocks        int
	EarlyTermination  EarlyTermResult
	CFG               *CFGGraph
}

// moduleID hashes m's name and source-file size into the deterministic
// per-module seed that drives every random draw the pass makes (spec.md
// §3 "Module id": djb2-style string hash, mixed with the source file
// size).
func moduleID(m *ir.Module) uint32 {
	h := uint32(5381) + uint32(m.SourceFileSize)*223
	for _, c := range m.Name {
		h = h*33 + uint32(c)
	}
	return h
}

// Run executes the full pass over m: it declares the RuntimeABI, computes
// the module id, runs ReachabilityAnalysis once, runs the EarlyTerminator
// if configured, instruments every function, and (track mode) exports the
// CFG graph. diag receives the spec.md §7 startup diagnostic line; pass
// io.Discard in tests that don't care about it.
func Run(m *ir.Module, cats *CategoryList, cfg Config, diag io.Writer) (Result, error) {
	abi := NewRuntimeABI(m)
	ids := NewIdOracle()
	id := moduleID(m)

	ra := RunReachability(m, cats)
	cg := ir.BuildCallGraph(m)

	var et EarlyTermResult
	if cfg.EarlyTermination != EarlyTerminationOff {
		et = RunEarlyTerminator(m, ra, cg, abi, cfg)
	}

	inst := NewInstrumenter(abi, cats, ids, cfg, id)
	inst.Run(m)

	var cfgGraph *CFGGraph
	if cfg.Mode == ModeTrack {
		cfgGraph = NewCFGExporter(cats, ids).Export(m)
	}

	sourceBlocks, sinkBlocks := 0, 0
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			if !bb.Valid() {
				continue
			}
			if ra.IsSource[bb] {
				sourceBlocks++
			}
			if ra.IsSinkBeforeSource[bb] {
				sinkBlocks++
			}
		}
	}

	res := Result{ModuleID: id, SourceBlocks: sourceBlocks, SinkBlocks: sinkBlocks, EarlyTermination: et, CFG: cfgGraph}

	mode := "fast"
	if cfg.Mode == ModeTrack {
		mode = "track"
	}
	fmt.Fprintf(diag, "angora: module=%s id=%#x mode=%s sources=%d sinks=%d early_term=%v edges_cut=%d\n",
		m.Name, res.ModuleID, mode, res.SourceBlocks, res.SinkBlocks, res.EarlyTermination.Ran, res.EarlyTermination.EdgesCut)

	return res, nil
}
