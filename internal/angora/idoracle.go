package angora

import "github.com/cispa/ampfuzz/ir"

// IdOracle reads the per-instruction id metadata a prior pass attaches to
// every ir.Instruction (spec.md §4.1), and records the subset of ids that
// belong to comparison instructions for CFGExporter's use (spec.md §4.7).
//
// IdOracle never assigns ids itself; it only reads ir.Instruction.ID, which
// ir.AssignIDs (or a real external id-assignment pass) populates ahead of
// time. This mirrors spec.md §1's "treated as an input oracle".
type IdOracle struct {
	cmpIDs map[uint32]*ir.Instruction
}

// NewIdOracle constructs an empty IdOracle.
func NewIdOracle() *IdOracle {
	return &IdOracle{cmpIDs: make(map[uint32]*ir.Instruction)}
}

// IID returns the instruction id attached to i, or 0 if none was ever
// attached (spec.md §4.1 "returns 0 if absent").
func (o *IdOracle) IID(i *ir.Instruction) uint32 {
	if i == nil {
		return 0
	}
	return i.ID
}

// RecordCmp registers i as a comparison instruction under its iid, for
// later lookup by CFGExporter via CmpByID. Called by the Instrumenter every
// time it instruments an OpIcmp/OpFcmp/boolean-compare instruction.
func (o *IdOracle) RecordCmp(i *ir.Instruction) {
	if i == nil {
		return
	}
	o.cmpIDs[o.IID(i)] = i
}

// CmpByID returns the comparison instruction previously recorded under id,
// or nil.
func (o *IdOracle) CmpByID(id uint32) *ir.Instruction {
	return o.cmpIDs[id]
}

// CmpIDs returns every comparison id recorded so far, used by CFGExporter
// to enumerate the graph's nodes.
func (o *IdOracle) CmpIDs() []uint32 {
	ids := make([]uint32, 0, len(o.cmpIDs))
	for id := range o.cmpIDs {
		ids = append(ids, id)
	}
	return ids
}
