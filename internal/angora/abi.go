package angora

import "github.com/cispa/ampfuzz/ir"

// RuntimeABI declares the external trace/runtime symbols listed in
// spec.md §4.3 and builds the call/load/store instructions the
// Instrumenter and EarlyTerminator splice into the IR to reach them. Its
// declarations and argument order are part of the system's external
// contract: whatever runtime library backs a compiled binary must match
// this ABI bit-for-bit (spec.md §1).
type RuntimeABI struct {
	// TLS globals (spec.md §3); PrevLoc/Context/CallSite/IndCallSite are
	// per-thread, AreaPtr/CondCmpID are process-wide and shared (spec.md
	// §5).
	PrevLoc      *ir.GlobalVar
	Context      *ir.GlobalVar
	CallSite     *ir.GlobalVar
	IndCallSite  *ir.GlobalVar
	AreaPtr      *ir.GlobalVar
	CondCmpID    *ir.GlobalVar

	// Trace/runtime functions, declared as external, non-throwing calls
	// (spec.md §4.3 "All trace calls are marked non-throwing").
	TraceCmp           *ir.Function // fast
	TraceSwitch        *ir.Function // fast
	TraceCmpTT         *ir.Function // track
	TraceSwitchTT      *ir.Function // track
	TraceFnTT          *ir.Function // track
	TraceExploitValTT  *ir.Function // track
	ListenReady        *ir.Function
	CheckTerminateStatic *ir.Function
	Dlopen, Dlmopen, Dlsym, Dlvsym *ir.Function
}

// declareFunc returns the module's existing declaration named name, or
// creates and registers a fresh external declaration.
func declareFunc(m *ir.Module, name string) *ir.Function {
	if f := m.FuncByName(name); f != nil {
		return f
	}
	f := &ir.Function{Name: name, IsDeclaration: true}
	m.Functions = append(m.Functions, f)
	return f
}

// declareGlobal declares a fresh GlobalVar named name on every call; it
// does not look up earlier declarations. GlobalVars aren't tracked on ir.Module directly (they're addressed by the
// RuntimeABI instance, the only thing that ever references them), so no
// module-side dedup is needed beyond RuntimeABI itself being constructed
// once per pass run.
func declareGlobal(name string, t ir.Type, threadLocal bool) *ir.GlobalVar {
	return &ir.GlobalVar{Name: name, Type: t, ThreadLocal: threadLocal}
}

// renameLoaderSymbols renames dlopen/dlmopen/dlsym/dlvsym declarations
// already present in m (as found by the host IR's libc interposition) to
// their __angora_* variants (spec.md §6 "Symbol renames"), so the
// interposition shim the runtime provides is what actually gets linked.
func renameLoaderSymbols(m *ir.Module) {
	renames := map[string]string{
		"dlopen":  "__angora_dlopen",
		"dlmopen": "__angora_dlmopen",
		"dlsym":   "__angora_dlsym",
		"dlvsym":  "__angora_dlvsym",
	}
	for _, f := range m.Functions {
		if newName, ok := renames[f.Name]; ok {
			f.Name = newName
		}
	}
}

// NewRuntimeABI declares every RuntimeABI symbol on m (idempotent — safe to
// call once per pass run) and renames any loader symbols already present.
func NewRuntimeABI(m *ir.Module) *RuntimeABI {
	renameLoaderSymbols(m)

	abi := &RuntimeABI{
		PrevLoc:     declareGlobal("__angora_prev_loc", ir.TypeI32, true),
		Context:     declareGlobal("__angora_context", ir.TypeI32, true),
		CallSite:    declareGlobal("__angora_call_site", ir.TypeI32, true),
		IndCallSite: declareGlobal("__angora_indirect_call_site", ir.TypeI32, true),
		AreaPtr:     declareGlobal("__angora_area_ptr", ir.TypePtr, false),
		CondCmpID:   declareGlobal("__angora_cond_cmpid", ir.TypeI32, false),

		TraceCmp:          declareFunc(m, "__angora_trace_cmp"),
		TraceSwitch:       declareFunc(m, "__angora_trace_switch"),
		TraceCmpTT:        declareFunc(m, "__angora_trace_cmp_tt"),
		TraceSwitchTT:     declareFunc(m, "__angora_trace_switch_tt"),
		TraceFnTT:         declareFunc(m, "__angora_trace_fn_tt"),
		TraceExploitValTT: declareFunc(m, "__angora_trace_exploit_val_tt"),
		ListenReady:          declareFunc(m, "__angora_listen_ready"),
		CheckTerminateStatic: declareFunc(m, "__angora_check_terminate_static"),
		Dlopen:  declareFunc(m, "__angora_dlopen"),
		Dlmopen: declareFunc(m, "__angora_dlmopen"),
		Dlsym:   declareFunc(m, "__angora_dlsym"),
		Dlvsym:  declareFunc(m, "__angora_dlvsym"),
	}
	return abi
}

// insertCall builds and inserts a call to callee with args, right after
// `after`, returning the new instruction. All RuntimeABI calls go through
// this so the "non-throwing" contract (spec.md §4.3) and insertion
// discipline stay in one place.
func insertCall(blk *ir.BasicBlock, after *ir.Instruction, fn *ir.Function, resultType ir.Type, fnID func() ir.ValueID, args ...ir.Value) *ir.Instruction {
	call := &ir.Instruction{
		Opcode:     ir.OpCall,
		Callee:     fn,
		CalleeName: fn.Name,
		Operands:   args,
		Synthetic:  true,
	}
	if resultType != ir.TypeInvalid {
		call.Result = ir.NewValue(fnID(), resultType)
	}
	blk.InsertInstructionAfter(call, after)
	return call
}

func loadGlobal(blk *ir.BasicBlock, after *ir.Instruction, gv *ir.GlobalVar, id ir.ValueID) (*ir.Instruction, ir.Value) {
	v := ir.NewValue(id, gv.Type)
	ld := &ir.Instruction{Opcode: ir.OpLoadGlobal, GlobalVar: gv, Result: v, Synthetic: true}
	blk.InsertInstructionAfter(ld, after)
	return ld, v
}

func storeGlobal(blk *ir.BasicBlock, after *ir.Instruction, gv *ir.GlobalVar, val ir.Value) *ir.Instruction {
	st := &ir.Instruction{Opcode: ir.OpStoreGlobal, GlobalVar: gv, Operands: []ir.Value{val}, Synthetic: true}
	blk.InsertInstructionAfter(st, after)
	return st
}

// LoadPrevLoc / LoadContext / LoadCallSite / LoadIndCallSite / LoadAreaPtr /
// LoadCondCmpID read the corresponding TLS/process global, inserting the
// load immediately after `after` and returning both the instruction and its
// result Value.
func (a *RuntimeABI) LoadPrevLoc(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.PrevLoc, newID())
}

func (a *RuntimeABI) LoadContext(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.Context, newID())
}

func (a *RuntimeABI) LoadCallSite(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.CallSite, newID())
}

func (a *RuntimeABI) LoadIndCallSite(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.IndCallSite, newID())
}

func (a *RuntimeABI) LoadAreaPtr(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.AreaPtr, newID())
}

func (a *RuntimeABI) LoadCondCmpID(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID) (*ir.Instruction, ir.Value) {
	return loadGlobal(blk, after, a.CondCmpID, newID())
}

// StorePrevLoc / StoreContext / StoreCallSite / StoreIndCallSite write the
// corresponding TLS global.
func (a *RuntimeABI) StorePrevLoc(blk *ir.BasicBlock, after *ir.Instruction, val ir.Value) *ir.Instruction {
	return storeGlobal(blk, after, a.PrevLoc, val)
}

func (a *RuntimeABI) StoreContext(blk *ir.BasicBlock, after *ir.Instruction, val ir.Value) *ir.Instruction {
	return storeGlobal(blk, after, a.Context, val)
}

func (a *RuntimeABI) StoreCallSite(blk *ir.BasicBlock, after *ir.Instruction, val ir.Value) *ir.Instruction {
	return storeGlobal(blk, after, a.CallSite, val)
}

func (a *RuntimeABI) StoreIndCallSite(blk *ir.BasicBlock, after *ir.Instruction, val ir.Value) *ir.Instruction {
	return storeGlobal(blk, after, a.IndCallSite, val)
}

// EmitTraceCmp builds the fast-mode __angora_trace_cmp(cond, cid, ctx, a, b)
// call (spec.md §4.3), returning its u32 result.
func (a *RuntimeABI) EmitTraceCmp(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID, cond, cid, ctx, va, vb ir.Value) (*ir.Instruction, ir.Value) {
	call := insertCall(blk, after, a.TraceCmp, ir.TypeI32, newID, cond, cid, ctx, va, vb)
	return call, call.Result
}

// EmitTraceSwitch builds the fast-mode __angora_trace_switch(cid, ctx, cond)
// call, returning its u64 result.
func (a *RuntimeABI) EmitTraceSwitch(blk *ir.BasicBlock, after *ir.Instruction, newID func() ir.ValueID, cid, ctx, cond ir.Value) (*ir.Instruction, ir.Value) {
	call := insertCall(blk, after, a.TraceSwitch, ir.TypeI64, newID, cid, ctx, cond)
	return call, call.Result
}

// EmitTraceCmpTT builds the track-mode __angora_trace_cmp_tt(cid, ctx,
// callsite, size, predicate, a, b, cond) call.
func (a *RuntimeABI) EmitTraceCmpTT(blk *ir.BasicBlock, after *ir.Instruction, cid, ctx, callsite, size, predicate, va, vb, cond ir.Value) *ir.Instruction {
	return insertCall(blk, after, a.TraceCmpTT, ir.TypeInvalid, nil, cid, ctx, callsite, size, predicate, va, vb, cond)
}

// EmitTraceSwitchTT builds the track-mode __angora_trace_switch_tt(cid, ctx,
// callsite, size, cond, n_cases, cases) call.
func (a *RuntimeABI) EmitTraceSwitchTT(blk *ir.BasicBlock, after *ir.Instruction, cid, ctx, callsite, size, cond, nCases, cases ir.Value) *ir.Instruction {
	return insertCall(blk, after, a.TraceSwitchTT, ir.TypeInvalid, nil, cid, ctx, callsite, size, cond, nCases, cases)
}

// EmitTraceFnTT builds the track-mode __angora_trace_fn_tt(cid, ctx,
// callsite, size, a, b) call used for cmpfn-category calls (memcmp/strcmp).
func (a *RuntimeABI) EmitTraceFnTT(blk *ir.BasicBlock, after *ir.Instruction, cid, ctx, callsite, size, pa, pb ir.Value) *ir.Instruction {
	return insertCall(blk, after, a.TraceFnTT, ir.TypeInvalid, nil, cid, ctx, callsite, size, pa, pb)
}

// EmitTraceExploitValTT builds the track-mode
// __angora_trace_exploit_val_tt(cid, ctx, callsite, size, op, val) call.
func (a *RuntimeABI) EmitTraceExploitValTT(blk *ir.BasicBlock, after *ir.Instruction, cid, ctx, callsite, size, op, val ir.Value) *ir.Instruction {
	return insertCall(blk, after, a.TraceExploitValTT, ir.TypeInvalid, nil, cid, ctx, callsite, size, op, val)
}

// EmitListenReady builds the __angora_listen_ready() call, used right after
// an instruction matching the "socket" category (spec.md §4.5).
func (a *RuntimeABI) EmitListenReady(blk *ir.BasicBlock, after *ir.Instruction) *ir.Instruction {
	return insertCall(blk, after, a.ListenReady, ir.TypeInvalid, nil)
}

// EmitCheckTerminateStatic builds the __angora_check_terminate_static()
// call the EarlyTerminator places in a freshly created termination-probe
// block (spec.md §4.6).
func (a *RuntimeABI) EmitCheckTerminateStatic(blk *ir.BasicBlock, after *ir.Instruction) *ir.Instruction {
	return insertCall(blk, after, a.CheckTerminateStatic, ir.TypeInvalid, nil)
}
