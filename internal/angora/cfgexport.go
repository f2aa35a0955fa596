package angora

import (
	"encoding/json"
	"sort"

	"github.com/cispa/ampfuzz/ir"
)

// CFGGraph is the track-mode CFG export (spec.md §4.7): the comparison-id
// graph the downstream fuzzer consults to pick which constraint to target
// next, plus the set of comparison ids on a path that crosses a sink call.
type CFGGraph struct {
	Targets            []uint32         `json:"targets"`
	Edges              [][2]uint32      `json:"edges"`
	CallsiteDominators map[string][]uint32 `json:"callsite_dominators"`
}

// CFGExporter builds the CFGGraph by walking forward from every
// instrumented comparison id recorded in ids, crossing terminators into
// successor blocks, until the next instrumented comparison is reached
// (spec.md §4.7 "from_id -> to_id").
type CFGExporter struct {
	cats *CategoryList
	ids  *IdOracle
}

// NewCFGExporter builds a CFGExporter.
func NewCFGExporter(cats *CategoryList, ids *IdOracle) *CFGExporter {
	return &CFGExporter{cats: cats, ids: ids}
}

// Export walks m and returns the CFGGraph. Only meaningful after the
// Instrumenter has run in track mode, since that is what populates
// IdOracle's CmpIDs.
func (e *CFGExporter) Export(m *ir.Module) *CFGGraph {
	g := &CFGGraph{CallsiteDominators: map[string][]uint32{}}

	targets := make(map[uint32]bool)
	edges := make(map[[2]uint32]bool)

	cmpBlocks := make(map[*ir.BasicBlock]uint32)
	for _, id := range e.ids.CmpIDs() {
		i := e.ids.CmpByID(id)
		if i != nil && i.Block != nil {
			cmpBlocks[i.Block] = id
		}
	}

	for _, id := range e.ids.CmpIDs() {
		from := e.ids.CmpByID(id)
		if from == nil || from.Block == nil {
			continue
		}
		e.walk(from.Block, id, cmpBlocks, targets, edges, make(map[*ir.BasicBlock]bool))
	}

	for id := range targets {
		g.Targets = append(g.Targets, id)
	}
	sort.Slice(g.Targets, func(i, j int) bool { return g.Targets[i] < g.Targets[j] })

	for e := range edges {
		g.Edges = append(g.Edges, e)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i][0] != g.Edges[j][0] {
			return g.Edges[i][0] < g.Edges[j][0]
		}
		return g.Edges[i][1] < g.Edges[j][1]
	})

	return g
}

// walk performs the forward crossing described in spec.md §4.7: starting
// in bb (which contains the comparison fromID), follow successors until
// another instrumented comparison's block is found, recording fromID ->
// toID; along the way, any block whose instructions call a "sink"
// category function marks fromID as a target.
func (e *CFGExporter) walk(bb *ir.BasicBlock, fromID uint32, cmpBlocks map[*ir.BasicBlock]uint32, targets map[uint32]bool, edges map[[2]uint32]bool, visited map[*ir.BasicBlock]bool) {
	if visited[bb] {
		return
	}
	visited[bb] = true

	for i := bb.Root(); i != nil; i = i.Next() {
		if (i.Opcode == ir.OpCall || i.Opcode == ir.OpInvoke) && e.cats.IsCall(i, CategorySink) {
			targets[fromID] = true
		}
	}

	for _, succ := range bb.Successors() {
		if toID, ok := cmpBlocks[succ]; ok && succ != bb {
			edges[[2]uint32{fromID, toID}] = true
			continue
		}
		e.walk(succ, fromID, cmpBlocks, targets, edges, visited)
	}
}

// MarshalJSON renders g the way cmd/irpass writes the CFG output file
// (spec.md §4.7).
func (g *CFGGraph) MarshalJSON() ([]byte, error) {
	type alias CFGGraph
	if g.Targets == nil {
		g.Targets = []uint32{}
	}
	if g.Edges == nil {
		g.Edges = [][2]uint32{}
	}
	return json.Marshal((*alias)(g))
}
