package angora

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/cispa/ampfuzz/ir"
)

// Instrumenter rewrites one function at a time: function-wrap (call-
// context encoding), per-BB edge counting, and per-instruction comparison/
// switch/call/exploit tracing (spec.md §4.5). It is the largest single
// component of the pass (spec.md §2, "45%").
type Instrumenter struct {
	abi  *RuntimeABI
	cats *CategoryList
	ids  *IdOracle
	cfg  Config
	rng  *rand.Rand
	mod  *ir.Module
}

// NewInstrumenter builds an Instrumenter whose randomness (cur_loc and
// csid draws) is seeded from moduleID, so instrumenting byte-identical IR
// twice produces byte-identical output (spec.md §9 "Determinism").
func NewInstrumenter(abi *RuntimeABI, cats *CategoryList, ids *IdOracle, cfg Config, moduleID uint32) *Instrumenter {
	return &Instrumenter{abi: abi, cats: cats, ids: ids, cfg: cfg, rng: rand.New(rand.NewSource(int64(moduleID)))}
}

// Run instruments every instrumentable function of m.
func (in *Instrumenter) Run(m *ir.Module) {
	in.mod = m
	for _, f := range m.Functions {
		if !f.IsInstrumentable() {
			continue
		}
		f.RemoveUnreachableBlocks()
		in.instrumentFunction(f)
		if PrintInstrumentedIR {
			dumpFunction(f)
		}
	}
}

// dumpFunction prints every instruction of f, gated by PrintInstrumentedIR,
// marking synthetic (pass-inserted) instructions so a debugging session can
// tell original IR apart from what the Instrumenter spliced in.
func dumpFunction(f *ir.Function) {
	fmt.Fprintf(os.Stderr, "angora: instrumented %s\n", f.Name)
	for _, bb := range f.Blocks {
		if !bb.Valid() {
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s:\n", bb.Name())
		for i := bb.Root(); i != nil; i = i.Next() {
			tag := ""
			if i.Synthetic {
				tag = " [synthetic]"
			}
			fmt.Fprintf(os.Stderr, "    %v%s\n", i.Opcode, tag)
		}
	}
}

func (in *Instrumenter) instrumentFunction(f *ir.Function) {
	entry := f.Entry()
	if entry == nil {
		return
	}

	origFirst := make(map[*ir.BasicBlock]*ir.Instruction, len(f.Blocks))
	for _, bb := range f.Blocks {
		if bb.Valid() {
			origFirst[bb] = bb.Root()
		}
	}
	defOf := buildDefMap(f)

	contextsOn := in.cfg.ContextsEnabled()
	var entryCursor *ir.Instruction
	var savedCtx ir.Value
	if contextsOn {
		entryCursor, savedCtx = in.wrapEntry(f, entry)
	}

	for _, bb := range f.Blocks {
		if !bb.Valid() {
			continue
		}
		var cursor *ir.Instruction
		if bb == entry {
			cursor = entryCursor
		}

		if in.cfg.Mode == ModeFast && in.rng.Intn(100) < in.cfg.InstRatio {
			cursor = in.instrumentEdgeCounter(f, bb, cursor)
		}

		if contextsOn && bb.IsExit() {
			in.restoreContext(bb, savedCtx)
		}

		in.instrumentInstructions(f, bb, defOf, origFirst[bb])
	}
}

// wrapEntry implements spec.md §4.5's function-wrap: at entry, load the
// pre-call context and call site, compute the updated context per spec.md
// §3's context-update rule, and store it. Returns the last instruction
// inserted (so the edge counter, if any, chains after it) and the saved
// pre-entry context value every exit block must restore.
func (in *Instrumenter) wrapEntry(f *ir.Function, entry *ir.BasicBlock) (*ir.Instruction, ir.Value) {
	origHead := entry.Root()

	ldCtx := &ir.Instruction{Opcode: ir.OpLoadGlobal, GlobalVar: in.abi.Context, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	entry.InsertInstructionBefore(ldCtx, origHead)
	cursor := ldCtx
	savedCtx := ldCtx.Result

	ldCallSite, callSiteVal := in.abi.LoadCallSite(entry, cursor, f.NewValueID)
	cursor = ldCallSite

	var newCtx ir.Value
	if k, ok := in.cfg.ContextShiftK(); ok {
		shiftAmt := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: int64(32 / k)}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
		entry.InsertInstructionAfter(shiftAmt, cursor)
		cursor = shiftAmt

		shifted := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "shr", Operands: []ir.Value{savedCtx, shiftAmt.Result}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
		entry.InsertInstructionAfter(shifted, cursor)
		cursor = shifted

		xored := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "xor", Operands: []ir.Value{shifted.Result, callSiteVal}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
		entry.InsertInstructionAfter(xored, cursor)
		cursor = xored
		newCtx = xored.Result
	} else {
		xored := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "xor", Operands: []ir.Value{savedCtx, callSiteVal}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
		entry.InsertInstructionAfter(xored, cursor)
		cursor = xored
		newCtx = xored.Result
	}

	st := in.abi.StoreContext(entry, cursor, newCtx)
	return st, savedCtx
}

// restoreContext implements the exit half of the function-wrap: before a
// return/resume terminator, restore context to its pre-entry value and
// zero ind_call_site (spec.md §4.5, invariant P3).
func (in *Instrumenter) restoreContext(bb *ir.BasicBlock, savedCtx ir.Value) {
	term := bb.Tail()
	st := &ir.Instruction{Opcode: ir.OpStoreGlobal, GlobalVar: in.abi.Context, Operands: []ir.Value{savedCtx}, Synthetic: true}
	bb.InsertInstructionBefore(st, term)

	zero := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: 0}, Result: ir.NewValue(bb.Fn.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionBefore(zero, term)
	st2 := &ir.Instruction{Opcode: ir.OpStoreGlobal, GlobalVar: in.abi.IndCallSite, Operands: []ir.Value{zero.Result}, Synthetic: true}
	bb.InsertInstructionBefore(st2, term)
}

// instrumentEdgeCounter implements spec.md §4.5's per-BB edge counting:
// draw cur_loc, hash it against prev_loc into the coverage map with a
// never-zero saturating increment, then update prev_loc. cursor is the
// last already-inserted instruction to chain after (nil meaning "insert at
// the block's head"); it returns the new cursor.
func (in *Instrumenter) instrumentEdgeCounter(f *ir.Function, bb *ir.BasicBlock, cursor *ir.Instruction) *ir.Instruction {
	curLoc := int64(in.rng.Intn(MapSize))
	curLocConst := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: curLoc}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	if cursor == nil {
		bb.InsertInstructionBefore(curLocConst, bb.Root())
	} else {
		bb.InsertInstructionAfter(curLocConst, cursor)
	}
	cursor = curLocConst

	ldPrev, prevLocVal := in.abi.LoadPrevLoc(bb, cursor, f.NewValueID)
	cursor = ldPrev

	idx := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "xor", Operands: []ir.Value{prevLocVal, curLocConst.Result}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionAfter(idx, cursor)
	cursor = idx

	incr := &ir.Instruction{Opcode: ir.OpMapIncrement, Operands: []ir.Value{idx.Result}, Synthetic: true}
	bb.InsertInstructionAfter(incr, cursor)
	cursor = incr

	one := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: 1}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionAfter(one, cursor)
	cursor = one

	curShifted := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "shr", Operands: []ir.Value{curLocConst.Result, one.Result}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionAfter(curShifted, cursor)
	cursor = curShifted

	var newPrevLoc ir.Value
	if in.cfg.ContextsEnabled() {
		ldCtx, ctxVal := in.abi.LoadContext(bb, cursor, f.NewValueID)
		cursor = ldCtx
		mixed := &ir.Instruction{Opcode: ir.OpBinary, BinOp: "xor", Operands: []ir.Value{ctxVal, curShifted.Result}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
		bb.InsertInstructionAfter(mixed, cursor)
		cursor = mixed
		newPrevLoc = mixed.Result
	} else {
		newPrevLoc = curShifted.Result
	}

	st := in.abi.StorePrevLoc(bb, cursor, newPrevLoc)
	return st
}

// buildDefMap maps every Value a function's (pre-instrumentation)
// instructions define back to the instruction that defines it, so the
// Instrumenter can ask "was this operand produced by an icmp?" or "is this
// operand a compile-time constant?" without a separate dataflow pass.
func buildDefMap(f *ir.Function) map[ir.ValueID]*ir.Instruction {
	defs := make(map[ir.ValueID]*ir.Instruction)
	for _, bb := range f.Blocks {
		if !bb.Valid() {
			continue
		}
		for i := bb.Root(); i != nil; i = i.Next() {
			if i.Result.Valid() {
				defs[i.Result.ID()] = i
			}
		}
	}
	return defs
}

// instrumentInstructions walks bb's ORIGINAL instructions (starting at
// start, following .Next() but skipping anything Synthetic so inserted
// trace code is never re-visited) and dispatches each to the
// per-instruction handlers of spec.md §4.5.
//
// Handlers are always given instr.Block rather than the bb this call
// started with: a gated fast-mode trace (instrumentComparison,
// instrumentSwitch) splits its block mid-traversal, so instructions later
// in the walk may have moved into a freshly created continuation block.
// The instruction linked list itself survives a split untouched, only the
// owning Block pointers change, so following .Next()/.Prev() here remains
// correct.
func (in *Instrumenter) instrumentInstructions(f *ir.Function, bb *ir.BasicBlock, defOf map[ir.ValueID]*ir.Instruction, start *ir.Instruction) {
	for instr := start; instr != nil; {
		next := instr.Next()
		for next != nil && next.Synthetic {
			next = next.Next()
		}
		if instr.Synthetic || instr.NoSanitize {
			instr = next
			continue
		}

		curBB := instr.Block

		switch instr.Opcode {
		case ir.OpCall:
			if instr.IsIntrinsic || instr.IsInlineAsm {
				break
			}
			if instr.CalleeName == "__unfold_branch_fn" {
				curBB.RemoveInstruction(instr)
				instr = next
				continue
			}
			in.processCall(f, curBB, instr)
		case ir.OpInvoke:
			in.processCall(f, curBB, instr)
		case ir.OpIcmp, ir.OpFcmp:
			in.instrumentComparison(f, curBB, instr, defOf)
		case ir.OpBr:
			if !in.isDefinedByCompare(instr.Operands[0], defOf) {
				in.instrumentBooleanComparison(f, curBB, instr)
			}
		case ir.OpSwitch:
			in.instrumentSwitch(f, curBB, instr)
		}

		in.instrumentExploitOperands(f, instr.Block, instr, defOf)

		instr = next
	}
}

func (in *Instrumenter) isDefinedByCompare(v ir.Value, defOf map[ir.ValueID]*ir.Instruction) bool {
	d, ok := defOf[v.ID()]
	return ok && (d.Opcode == ir.OpIcmp || d.Opcode == ir.OpFcmp)
}

func (in *Instrumenter) isConstInt(v ir.Value, defOf map[ir.ValueID]*ir.Instruction) bool {
	d, ok := defOf[v.ID()]
	return ok && d.Opcode == ir.OpIconst && d.ConstVal != nil
}

func (in *Instrumenter) isNegativeConst(v ir.Value, defOf map[ir.ValueID]*ir.Instruction) bool {
	d, ok := defOf[v.ID()]
	return ok && d.Opcode == ir.OpIconst && d.ConstNegative
}

// nextRealInsertionPoint returns the instruction after which a trace
// should be spliced. For a non-terminator that is the instruction itself.
// A terminator (a branch or switch) is traced ahead of itself, so the
// insertion point is the instruction before it; a terminator that is the
// first instruction of its block, and any OpInvoke, is not traced.
func nextRealInsertionPoint(instr *ir.Instruction) (*ir.Instruction, bool) {
	if !instr.IsTerminator() {
		return instr, true
	}
	if instr.Opcode == ir.OpInvoke || instr.Prev() == nil {
		return nil, false
	}
	return instr.Prev(), true
}

func (in *Instrumenter) drawCallSite() int64 {
	return int64(in.rng.Intn(MapSize))
}

// constI32 splices an i32 constant after `after` and returns the new
// cursor and its value, a convenience shared by every handler below that
// needs to materialize a literal operand for a trace call.
func (in *Instrumenter) constI32(f *ir.Function, bb *ir.BasicBlock, after *ir.Instruction, val int64) (*ir.Instruction, ir.Value) {
	c := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: val}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionAfter(c, after)
	return c, c.Result
}

// zext64 converts v to i64 (the width every trace call's operand values
// are passed at, spec.md §4.5), splicing the conversion after `after`:
// OpFPToUI for floats, OpPtrToInt for pointers, OpZext for narrower
// integers. Values already of type i64 pass through unchanged.
func (in *Instrumenter) zext64(f *ir.Function, bb *ir.BasicBlock, after *ir.Instruction, v ir.Value) (*ir.Instruction, ir.Value) {
	if v.Type() == ir.TypeI64 {
		return after, v
	}
	op := ir.OpZext
	if v.Type().IsFloat() {
		op = ir.OpFPToUI
	} else if v.Type() == ir.TypePtr {
		op = ir.OpPtrToInt
	}
	z := &ir.Instruction{Opcode: op, Operands: []ir.Value{v}, Result: ir.NewValue(f.NewValueID(), ir.TypeI64), Synthetic: true}
	bb.InsertInstructionAfter(z, after)
	return z, z.Result
}

// gateOnCondCmpID implements spec.md §4.5/§8's fast-mode gate: "a gated
// trace for the currently targeted comparison id". It splits bb right
// after cursor into a continuation block holding everything that
// originally followed, and a freshly built "hot" block populated by emit
// that runs only when cidVal equals the value currently loaded from
// __angora_cond_cmpid — a cold branch, mirroring the id compare
// AngoraPass.cc's processCmp/visitSwitchInst perform before calling into
// the trace runtime (spec.md §4.5, §8 scenario 1's "guarded trace_cmp").
func (in *Instrumenter) gateOnCondCmpID(f *ir.Function, bb *ir.BasicBlock, cursor *ir.Instruction, cidVal ir.Value, emit func(hot *ir.BasicBlock)) {
	cont := bb.SplitAfter(cursor)

	hot := f.NewBlock()
	emit(hot)
	hot.InsertInstruction(&ir.Instruction{Opcode: ir.OpJump, Target: cont, Synthetic: true})

	ldCmpID, cmpIDVal := in.abi.LoadCondCmpID(bb, cursor, f.NewValueID)
	eq := &ir.Instruction{
		Opcode:    ir.OpIcmp,
		Cond:      ir.CondEq,
		Operands:  []ir.Value{cidVal, cmpIDVal},
		Result:    ir.NewValue(f.NewValueID(), ir.TypeI1),
		Synthetic: true,
	}
	bb.InsertInstructionAfter(eq, ldCmpID)
	br := &ir.Instruction{Opcode: ir.OpBr, Operands: []ir.Value{eq.Result}, Target: hot, Else: cont, Synthetic: true}
	bb.InsertInstructionAfter(br, eq)

	f.ComputePreds()
}

// storeCallSite draws a fresh call-site id and stores it to the indirect-
// or direct-call TLS global (whichever the call requires), right before
// call (spec.md §4.5 "processCall": "record the call site before
// transferring control"). It does nothing when contexts are disabled.
func (in *Instrumenter) storeCallSite(f *ir.Function, bb *ir.BasicBlock, call *ir.Instruction) {
	if !in.cfg.ContextsEnabled() {
		return
	}
	site := in.drawCallSite()
	c := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: site}, Result: ir.NewValue(f.NewValueID(), ir.TypeI32), Synthetic: true}
	bb.InsertInstructionBefore(c, call)

	gv := in.abi.CallSite
	if call.IsIndirectCall() {
		gv = in.abi.IndCallSite
	}
	st := &ir.Instruction{Opcode: ir.OpStoreGlobal, GlobalVar: gv, Operands: []ir.Value{c.Result}, Synthetic: true}
	bb.InsertInstructionBefore(st, call)
}

// processCall implements spec.md §4.5's call-site handling: record the
// call site for context propagation, flag "socket" category calls with a
// __angora_listen_ready() call immediately after, and (track mode only)
// trace "cmpfn" category calls (memcmp/strncmp/...) via trace_fn_tt.
func (in *Instrumenter) processCall(f *ir.Function, bb *ir.BasicBlock, instr *ir.Instruction) {
	if instr.IsIntrinsic || instr.IsInlineAsm {
		return
	}

	in.storeCallSite(f, bb, instr)

	insertAfter, ok := nextRealInsertionPoint(instr)
	if !ok {
		return
	}

	if in.cats.IsCall(instr, CategorySocket) {
		insertAfter = in.abi.EmitListenReady(bb, insertAfter)
	}

	if in.cfg.Mode != ModeTrack || !in.cats.IsCall(instr, CategoryCmpFn) {
		return
	}
	args := instr.CallArgs()
	if len(args) < 2 {
		return
	}

	in.ids.RecordCmp(instr)
	cid := in.ids.IID(instr)

	cidConst, cidVal := in.constI32(f, bb, insertAfter, int64(cid))
	ldCtx, ctxVal := in.abi.LoadContext(bb, cidConst, f.NewValueID)
	siteConst, siteVal := in.constI32(f, bb, ldCtx, in.drawCallSite())

	var sizeVal ir.Value
	sizeCursor := siteConst
	if len(args) >= 3 {
		sizeCursor, sizeVal = in.zext64(f, bb, siteConst, args[2])
	} else {
		sizeCursor, sizeVal = in.constI32(f, bb, siteConst, 0)
	}

	in.abi.EmitTraceFnTT(bb, sizeCursor, cidVal, ctxVal, siteVal, sizeVal, args[0], args[1])
}

// instrumentComparison implements spec.md §4.5's icmp/fcmp handling: draw
// the comparison's operands and its own runtime result, zero-extend all
// three to 64 bits, and splice the fast-mode trace_cmp (behind a
// __angora_cond_cmpid gate, spec.md §8 scenario 1) or the unguarded
// track-mode trace_cmp_tt, with CondSignMask set when the right-hand
// operand is a known-negative constant (spec.md §4.5 "COND_SIGN_MASK").
func (in *Instrumenter) instrumentComparison(f *ir.Function, bb *ir.BasicBlock, instr *ir.Instruction, defOf map[ir.ValueID]*ir.Instruction) {
	insertAfter, ok := nextRealInsertionPoint(instr)
	if !ok {
		return
	}
	if len(instr.Operands) < 2 {
		return
	}

	in.ids.RecordCmp(instr)
	cid := in.ids.IID(instr)

	predicate := icmpPredicate(instr.Cond)
	if in.isNegativeConst(instr.Operands[1], defOf) {
		predicate |= CondSignMask
	}

	cursor, lhs := in.zext64(f, bb, insertAfter, instr.Operands[0])
	cursor, rhs := in.zext64(f, bb, cursor, instr.Operands[1])
	cursor, condVal := in.zext64(f, bb, cursor, instr.Result)

	if in.cfg.Mode == ModeFast {
		cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
		in.gateOnCondCmpID(f, bb, cidConst, cidVal, func(hot *ir.BasicBlock) {
			ldCtx, ctxVal := in.abi.LoadContext(hot, nil, f.NewValueID)
			in.abi.EmitTraceCmp(hot, ldCtx, f.NewValueID, condVal, cidVal, ctxVal, lhs, rhs)
		})
		return
	}

	cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
	ldCtx, ctxVal := in.abi.LoadContext(bb, cidConst, f.NewValueID)
	siteConst, siteVal := in.constI32(f, bb, ldCtx, in.drawCallSite())
	sizeConst, sizeVal := in.constI32(f, bb, siteConst, int64(operandByteSize(instr.Operands[0].Type())))
	predConst, predVal := in.constI32(f, bb, sizeConst, int64(predicate))
	in.abi.EmitTraceCmpTT(bb, predConst, cidVal, ctxVal, siteVal, sizeVal, predVal, lhs, rhs, condVal)
}

// operandByteSize returns t's size in bytes, falling back to 8 for types
// with no whole-byte width (pointers), since the track-mode trace only
// uses this to size its recorded operand buffer (spec.md §4.5).
func operandByteSize(t ir.Type) int {
	if n := t.Bytes(); n > 0 {
		return n
	}
	return 8
}

// instrumentBooleanComparison implements spec.md §4.5's "boolean
// comparisons": an OpBr whose condition was not produced by an icmp/fcmp is
// traced as an equality test against the literal 1, using CondBoolMask so
// the runtime can distinguish it from a real predicate. The traced cond
// argument is the branch condition's own zero-extended value — it already
// is the runtime outcome of the synthetic "== 1" comparison — gated behind
// __angora_cond_cmpid in fast mode, unguarded in track mode (spec.md §4.5,
// §8 scenario 1).
func (in *Instrumenter) instrumentBooleanComparison(f *ir.Function, bb *ir.BasicBlock, instr *ir.Instruction) {
	insertAfter, ok := nextRealInsertionPoint(instr)
	if !ok {
		return
	}
	if len(instr.Operands) < 1 {
		return
	}

	in.ids.RecordCmp(instr)
	cid := in.ids.IID(instr)
	predicate := CondEqOp | CondBoolMask

	cursor, cond := in.zext64(f, bb, insertAfter, instr.Operands[0])
	one := ir.NewValue(f.NewValueID(), ir.TypeI64)
	oneConst := &ir.Instruction{Opcode: ir.OpIconst, ConstVal: &ir.ConstInt{Val: 1}, Result: one, Synthetic: true}
	bb.InsertInstructionAfter(oneConst, cursor)
	cursor = oneConst

	if in.cfg.Mode == ModeFast {
		cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
		in.gateOnCondCmpID(f, bb, cidConst, cidVal, func(hot *ir.BasicBlock) {
			ldCtx, ctxVal := in.abi.LoadContext(hot, nil, f.NewValueID)
			in.abi.EmitTraceCmp(hot, ldCtx, f.NewValueID, cond, cidVal, ctxVal, cond, one)
		})
		return
	}

	cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
	ldCtx, ctxVal := in.abi.LoadContext(bb, cidConst, f.NewValueID)
	siteConst, siteVal := in.constI32(f, bb, ldCtx, in.drawCallSite())
	sizeConst, sizeVal := in.constI32(f, bb, siteConst, 8)
	predConst, predVal := in.constI32(f, bb, sizeConst, int64(predicate))
	in.abi.EmitTraceCmpTT(bb, predConst, cidVal, ctxVal, siteVal, sizeVal, predVal, cond, one, cond)
}

// instrumentSwitch implements spec.md §4.5's switch handling: validate
// the scrutinee's byte width (skip switches whose condition is not a
// whole number of bytes wide), draw a comparison id, and emit a fast-mode
// trace_switch gated behind __angora_cond_cmpid (spec.md §4.5 "Emit a
// gated trace_switch in fast mode") or an unguarded track-mode
// trace_switch_tt with the case values materialized into a module-level
// constant array (spec.md §5 "Emitted globals").
func (in *Instrumenter) instrumentSwitch(f *ir.Function, bb *ir.BasicBlock, instr *ir.Instruction) {
	if len(instr.Operands) < 1 {
		return
	}
	if instr.Operands[0].Type().Bytes() <= 0 {
		return
	}
	insertAfter, ok := nextRealInsertionPoint(instr)
	if !ok {
		return
	}

	in.ids.RecordCmp(instr)
	cid := in.ids.IID(instr)

	cursor, cond64 := in.zext64(f, bb, insertAfter, instr.Operands[0])

	if in.cfg.Mode == ModeFast {
		cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
		in.gateOnCondCmpID(f, bb, cidConst, cidVal, func(hot *ir.BasicBlock) {
			ldCtx, ctxVal := in.abi.LoadContext(hot, nil, f.NewValueID)
			in.abi.EmitTraceSwitch(hot, ldCtx, f.NewValueID, cidVal, ctxVal, cond64)
		})
		return
	}

	g := in.mod.AddGlobal("__angora_switch_cases", instr.Cases)
	cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
	ldCtx, ctxVal := in.abi.LoadContext(bb, cidConst, f.NewValueID)
	siteConst, siteVal := in.constI32(f, bb, ldCtx, in.drawCallSite())
	sizeConst, sizeVal := in.constI32(f, bb, siteConst, int64(operandByteSize(instr.Operands[0].Type())))
	nCasesConst, nCasesVal := in.constI32(f, bb, sizeConst, int64(len(instr.Cases)))
	addr := &ir.Instruction{Opcode: ir.OpGlobalAddr, GlobalRef: g, Result: ir.NewValue(f.NewValueID(), ir.TypePtr), Synthetic: true}
	bb.InsertInstructionAfter(addr, nCasesConst)
	in.abi.EmitTraceSwitchTT(bb, addr, cidVal, ctxVal, siteVal, sizeVal, cond64, nCasesVal, addr.Result)
}

// instrumentExploitOperands implements spec.md §4.5's "Exploitation"
// handling: for track mode only, check the first up to 5 operands of
// instr (call arguments for a call/invoke, raw Operands otherwise)
// against the "all" and "i<k>" exploit categories, skipping compile-time
// constants, and trace matches via trace_exploit_val_tt with
// CondExploitMask OR'd into instr's opcode.
func (in *Instrumenter) instrumentExploitOperands(f *ir.Function, bb *ir.BasicBlock, instr *ir.Instruction, defOf map[ir.ValueID]*ir.Instruction) {
	if in.cfg.Mode != ModeTrack {
		return
	}
	if !in.cats.IsInstr(instr, CategoryAll) {
		matched := false
		for k := 0; k < maxExploitCategory; k++ {
			if in.cats.IsInstr(instr, ExploitCategory(k)) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}
	}

	var operands []ir.Value
	if instr.Opcode == ir.OpCall || instr.Opcode == ir.OpInvoke {
		operands = instr.CallArgs()
	} else {
		operands = instr.Operands
	}

	insertAfter, ok := nextRealInsertionPoint(instr)
	if !ok {
		return
	}

	cid := in.ids.IID(instr)
	op := uint32(instr.Opcode) | CondExploitMask

	n := len(operands)
	if n > maxExploitCategory {
		n = maxExploitCategory
	}
	for k := 0; k < n; k++ {
		v := operands[k]
		if in.isConstInt(v, defOf) {
			continue
		}
		if !in.cats.IsInstr(instr, CategoryAll) && !in.cats.IsInstr(instr, ExploitCategory(k)) {
			continue
		}

		cursor, v64 := in.zext64(f, bb, insertAfter, v)
		cidConst, cidVal := in.constI32(f, bb, cursor, int64(cid))
		ldCtx, ctxVal := in.abi.LoadContext(bb, cidConst, f.NewValueID)
		siteConst, siteVal := in.constI32(f, bb, ldCtx, in.drawCallSite())
		sizeConst, sizeVal := in.constI32(f, bb, siteConst, int64(operandByteSize(v.Type())))
		opConst, opVal := in.constI32(f, bb, sizeConst, int64(op))
		insertAfter = in.abi.EmitTraceExploitValTT(bb, opConst, cidVal, ctxVal, siteVal, sizeVal, opVal, v64)
	}
}
