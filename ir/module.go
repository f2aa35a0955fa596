package ir

// Global is a module-level constant emitted by the pass itself — currently
// only the switch case-value arrays the Instrumenter materializes for
// track-mode trace_switch_tt calls (spec.md §4.5, §5 "Emitted globals").
type Global struct {
	Name     string
	Values   []int64
	Linkage  string // "internal", matching spec.md §5.
}

// Module is the compilation unit the pass rewrites in place: a set of
// Functions sharing a call graph, plus module-level metadata used to seed
// the pass's determinism (spec.md §3 "Module id").
type Module struct {
	// Name is the module identifier (e.g. translation unit name) mixed
	// into the module-id hash.
	Name string
	// SourceFileSize is the size in bytes of the originating source file,
	// the second ingredient of the module-id hash (spec.md §3).
	SourceFileSize int64

	Functions []*Function
	Globals   []*Global

	nextGlobalID int
}

// FuncByName returns the function named n, or nil.
func (m *Module) FuncByName(n string) *Function {
	for _, f := range m.Functions {
		if f.Name == n {
			return f
		}
	}
	return nil
}

// AddGlobal registers a new internal-linkage global and returns it.
func (m *Module) AddGlobal(namePrefix string, values []int64) *Global {
	g := &Global{Name: namePrefix, Values: values, Linkage: "internal"}
	m.nextGlobalID++
	m.Globals = append(m.Globals, g)
	return g
}

// AllInstructions walks every instruction of every valid block of every
// defined function, in function/block/program order, invoking visit. This
// is the traversal IdOracle's companion AssignIDs, and several tests, use.
func (m *Module) AllInstructions(visit func(f *Function, b *BasicBlock, i *Instruction)) {
	for _, f := range m.Functions {
		for _, b := range f.Blocks {
			if !b.Valid() {
				continue
			}
			for i := b.Root(); i != nil; i = i.Next() {
				visit(f, b, i)
			}
		}
	}
}

// AssignIDs stamps every instruction in the module with a stable id: a
// monotonic per-module counter XORed with baseID, assigned in
// function/block/instruction order. This stands in for the external
// id-assignment sub-pass IDPass.cc performs ahead of this one (spec.md §1
// "treated as an input oracle"); it exists here purely so tests can build a
// fully-formed module end to end, as SPEC_FULL.md §6 explains.
func AssignIDs(m *Module, baseID uint32) {
	var counter uint32
	m.AllInstructions(func(_ *Function, _ *BasicBlock, i *Instruction) {
		i.ID = baseID ^ counter
		counter++
	})
}

// CallSite describes one call/invoke instruction found while building the
// module's call graph.
type CallSite struct {
	Caller *Function
	Block  *BasicBlock
	Instr  *Instruction
	Callee *Function // nil for indirect calls
}

// CallGraph maps each function to the call sites that target it (direct
// calls only; indirect calls have no resolved target and so appear in
// Indirect instead). Consulted by ReachabilityAnalysis for its
// reverse-call edges.
type CallGraph struct {
	CallersOf map[*Function][]CallSite
	Indirect  []CallSite
}

// BuildCallGraph scans every instruction in the module and indexes its
// call/invoke instructions by resolved callee.
func BuildCallGraph(m *Module) *CallGraph {
	cg := &CallGraph{CallersOf: make(map[*Function][]CallSite)}
	m.AllInstructions(func(f *Function, b *BasicBlock, i *Instruction) {
		if i.Opcode != OpCall && i.Opcode != OpInvoke {
			return
		}
		cs := CallSite{Caller: f, Block: b, Instr: i, Callee: i.Callee}
		if i.Callee == nil {
			cg.Indirect = append(cg.Indirect, cs)
			return
		}
		cg.CallersOf[i.Callee] = append(cg.CallersOf[i.Callee], cs)
	})
	return cg
}
