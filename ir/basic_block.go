package ir

import "fmt"

// BasicBlockID uniquely identifies a BasicBlock within its Function.
type BasicBlockID uint32

// BlockParam is a block-argument-style phi (the same representation wazero's
// ssa package uses instead of classic PHI instructions): a value defined at
// block entry whose definition is supplied by each predecessor's branch.
type BlockParam struct {
	Value Value
}

// BasicBlock is a maximal straight-line sequence of Instructions ending in
// exactly one terminator. Successor/predecessor edges are derived from the
// terminator rather than stored redundantly, except where EarlyTerminator
// needs to rewrite them (see Function.ReplaceSuccessor).
type BasicBlock struct {
	id    BasicBlockID
	Fn    *Function
	root  *Instruction
	tail  *Instruction
	Preds []*BasicBlock
	Params []*BlockParam

	entry  bool
	invalid bool
}

// ID returns the unique id of this block.
func (b *BasicBlock) ID() BasicBlockID { return b.id }

// Name returns a debug name for this block, e.g. "blk3".
func (b *BasicBlock) Name() string { return fmt.Sprintf("blk%d", b.id) }

// EntryBlock reports whether this is its function's entry block.
func (b *BasicBlock) EntryBlock() bool { return b.entry }

// Valid reports whether this block is still part of the function (false
// after dead-block elimination marks it invalid).
func (b *BasicBlock) Valid() bool { return !b.invalid }

// Root returns the first instruction in the block, or nil if empty.
func (b *BasicBlock) Root() *Instruction { return b.root }

// Tail returns the terminator instruction, or nil if the block is still
// being built and has no terminator yet.
func (b *BasicBlock) Tail() *Instruction { return b.tail }

// AddParam appends a new block parameter (phi) of type t and returns the
// Value defining it.
func (b *BasicBlock) AddParam(id ValueID, t Type) Value {
	v := NewValue(id, t)
	b.Params = append(b.Params, &BlockParam{Value: v})
	return v
}

// InsertInstructionBefore inserts inst immediately before mark in program
// order. If mark is nil, inst is appended to the tail of the block.
func (b *BasicBlock) InsertInstructionBefore(inst, mark *Instruction) {
	inst.Block = b
	if mark == nil {
		b.appendTail(inst)
		return
	}
	prev := mark.prev
	inst.prev = prev
	inst.next = mark
	mark.prev = inst
	if prev != nil {
		prev.next = inst
	} else {
		b.root = inst
	}
}

// InsertInstructionAfter inserts inst immediately after mark in program
// order.
func (b *BasicBlock) InsertInstructionAfter(inst, mark *Instruction) {
	inst.Block = b
	if mark == nil || mark == b.tail {
		b.appendTail(inst)
		return
	}
	next := mark.next
	inst.prev = mark
	inst.next = next
	mark.next = inst
	if next != nil {
		next.prev = inst
	}
}

func (b *BasicBlock) appendTail(inst *Instruction) {
	inst.Block = b
	if b.tail == nil {
		b.root = inst
		b.tail = inst
		inst.prev, inst.next = nil, nil
		return
	}
	inst.prev = b.tail
	b.tail.next = inst
	inst.next = nil
	b.tail = inst
}

// InsertInstruction appends inst to the tail of the block (the common case
// used while constructing a module from scratch, e.g. in tests).
func (b *BasicBlock) InsertInstruction(inst *Instruction) {
	b.appendTail(inst)
}

// SplitAfter splits b at the point right after `after`: a new block is
// appended to b.Fn, taking over every instruction originally following
// `after` (including b's terminator, if any), while b keeps everything up to
// and including `after` and is left with no terminator. Callers are
// responsible for giving b a new terminator into the returned block (or
// elsewhere). Used to materialize a cold branch ahead of a conditionally
// emitted trace call (spec.md §4.5's gated fast-mode tracing).
func (b *BasicBlock) SplitAfter(after *Instruction) *BasicBlock {
	rest := after.next

	cont := b.Fn.NewBlock()
	cont.root = rest
	cont.tail = b.tail
	for inst := rest; inst != nil; inst = inst.next {
		inst.Block = cont
	}
	if rest != nil {
		rest.prev = nil
	}

	b.tail = after
	after.next = nil
	return cont
}

// RemoveInstruction unlinks inst from the block's instruction list.
func (b *BasicBlock) RemoveInstruction(inst *Instruction) {
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else {
		b.root = inst.next
	}
	if inst.next != nil {
		inst.next.prev = inst.prev
	} else {
		b.tail = inst.prev
	}
	inst.prev, inst.next, inst.Block = nil, nil, nil
}

// Successors returns the blocks this block's terminator may branch to, in a
// stable order. Returns nil if the block has no terminator yet.
func (b *BasicBlock) Successors() []*BasicBlock {
	t := b.tail
	if t == nil {
		return nil
	}
	switch t.Opcode {
	case OpJump:
		if t.Target != nil {
			return []*BasicBlock{t.Target}
		}
	case OpBr:
		succs := make([]*BasicBlock, 0, 2)
		if t.Target != nil {
			succs = append(succs, t.Target)
		}
		if t.Else != nil {
			succs = append(succs, t.Else)
		}
		return succs
	case OpSwitch:
		succs := make([]*BasicBlock, 0, len(t.Targets)+1)
		succs = append(succs, t.Targets...)
		if t.Default != nil {
			succs = append(succs, t.Default)
		}
		return succs
	case OpInvoke:
		succs := make([]*BasicBlock, 0, 2)
		if t.Normal != nil {
			succs = append(succs, t.Normal)
		}
		if t.Unwind != nil {
			succs = append(succs, t.Unwind)
		}
		return succs
	}
	return nil
}

// IsExit reports whether this block ends in OpReturn/OpResume, i.e. it is a
// function exit point (spec.md §4.5 "every return/resume terminator").
func (b *BasicBlock) IsExit() bool {
	t := b.tail
	return t != nil && (t.Opcode == OpReturn || t.Opcode == OpResume)
}
