package ir

import "strings"

// Function is a single function in the Module: either a definition (has
// Blocks) or an external declaration (IsDeclaration, no Blocks).
type Function struct {
	Name          string
	IsDeclaration bool
	Blocks        []*BasicBlock
	nextBlockID   BasicBlockID
	nextValueID   ValueID
}

// Entry returns the function's entry block, or nil for a declaration.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// IsInstrumentable reports whether the Instrumenter should visit this
// function: it must have a body, and spec.md §4.5 excludes names beginning
// with "asan.module".
func (f *Function) IsInstrumentable() bool {
	return !f.IsDeclaration && !strings.HasPrefix(f.Name, "asan.module")
}

// NewBlock appends a fresh, empty basic block to f and returns it. The
// first block added to a function becomes its entry block.
func (f *Function) NewBlock() *BasicBlock {
	b := &BasicBlock{id: f.nextBlockID, Fn: f}
	f.nextBlockID++
	if len(f.Blocks) == 0 {
		b.entry = true
	}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewValueID hands out a fresh, function-unique value id, used when the
// Instrumenter or EarlyTerminator materializes new instructions.
func (f *Function) NewValueID() ValueID {
	id := f.nextValueID
	f.nextValueID++
	return id
}

// ComputePreds recomputes every block's Preds list from the current
// terminators. Must be re-run after any control-flow edit (the
// EarlyTerminator and dead-block elimination both call this).
func (f *Function) ComputePreds() {
	for _, b := range f.Blocks {
		b.Preds = b.Preds[:0]
	}
	for _, b := range f.Blocks {
		if !b.Valid() {
			continue
		}
		for _, s := range b.Successors() {
			s.Preds = append(s.Preds, b)
		}
	}
}

// RemoveUnreachableBlocks marks every block not reachable from the entry
// block as invalid and compacts f.Blocks, mirroring wazero's
// passDeadBlockEliminationOpt (spec.md §1 Non-goals: "dead-block removal at
// function entry" is the one optimization this pass performs).
func (f *Function) RemoveUnreachableBlocks() {
	entry := f.Entry()
	if entry == nil {
		return
	}
	visited := make(map[BasicBlockID]bool, len(f.Blocks))
	stack := []*BasicBlock{entry}
	visited[entry.id] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Successors() {
			if !visited[s.id] {
				visited[s.id] = true
				stack = append(stack, s)
			}
		}
	}
	kept := f.Blocks[:0]
	for _, b := range f.Blocks {
		if visited[b.id] {
			kept = append(kept, b)
		} else {
			b.invalid = true
		}
	}
	f.Blocks = kept
	f.ComputePreds()
}

// ReplaceSuccessor rewrites from's terminator so that any edge to oldTarget
// now goes to newTarget, and fixes up phis: every incoming value oldTarget's
// Params received keyed by `from` now arrives keyed by `newTarget` instead
// (EarlyTerminator §4.6 "rename incoming block from to T").
//
// If newTarget already has incoming args recorded for some other edge from
// `from` (can happen when `from` had two parallel edges into oldTarget, e.g.
// a switch with duplicate cases), the duplicate phi incoming entries are
// collapsed per spec.md §4.6.
func (f *Function) ReplaceSuccessor(from *Instruction, oldTarget, newTarget *BasicBlock) {
	rewireArgs := func() {
		if from.BranchArgs == nil {
			return
		}
		if args, ok := from.BranchArgs[oldTarget]; ok {
			if existing, dup := from.BranchArgs[newTarget]; dup && equalArgs(existing, args) {
				// Collapse the duplicate incoming entry: newTarget already
				// has identical args recorded for this edge.
			} else {
				from.BranchArgs[newTarget] = args
			}
			delete(from.BranchArgs, oldTarget)
		}
	}
	switch from.Opcode {
	case OpJump:
		if from.Target == oldTarget {
			from.Target = newTarget
		}
	case OpBr:
		if from.Target == oldTarget {
			from.Target = newTarget
		}
		if from.Else == oldTarget {
			from.Else = newTarget
		}
	case OpSwitch:
		for i, t := range from.Targets {
			if t == oldTarget {
				from.Targets[i] = newTarget
			}
		}
		if from.Default == oldTarget {
			from.Default = newTarget
		}
	case OpInvoke:
		if from.Normal == oldTarget {
			from.Normal = newTarget
		}
		if from.Unwind == oldTarget {
			from.Unwind = newTarget
		}
	}
	rewireArgs()
}

func equalArgs(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
