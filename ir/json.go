package ir

import "encoding/json"

// wireModule/wireFunction/... are the JSON-friendly mirrors of Module's
// pointer-linked structure, used only at the cmd/irpass boundary (spec.md
// §1: the pass itself never serializes IR, only a host driver does). The
// instruction linked-list and resolved *Function/*BasicBlock pointers are
// flattened to indices and re-linked on decode.
type wireModule struct {
	Name           string         `json:"name"`
	SourceFileSize int64          `json:"source_file_size"`
	Functions      []wireFunction `json:"functions"`
	Globals        []wireGlobal   `json:"globals,omitempty"`
}

type wireGlobal struct {
	Name   string  `json:"name"`
	Values []int64 `json:"values"`
}

type wireFunction struct {
	Name          string        `json:"name"`
	IsDeclaration bool          `json:"is_declaration,omitempty"`
	Blocks        []wireBlock   `json:"blocks,omitempty"`
}

type wireBlock struct {
	Params       []wireParam        `json:"params,omitempty"`
	Instructions []wireInstruction  `json:"instructions"`
}

type wireParam struct {
	ID   uint32 `json:"id"`
	Type byte   `json:"type"`
}

type wireValue struct {
	ID   uint32 `json:"id"`
	Type byte   `json:"type"`
}

// wireInstruction carries every field Instruction might need; block/
// function targets are encoded as (funcIndex implied by context,
// blockIndex) pairs relative to the owning function.
type wireInstruction struct {
	Opcode        Opcode           `json:"opcode"`
	ID            uint32           `json:"id,omitempty"`
	Result        *wireValue       `json:"result,omitempty"`
	Operands      []wireValue      `json:"operands,omitempty"`
	Cond          ICmpCond         `json:"cond,omitempty"`
	CalleeName    string           `json:"callee_name,omitempty"`
	UnwindBlock   *int             `json:"unwind_block,omitempty"`
	NormalBlock   *int             `json:"normal_block,omitempty"`
	TargetBlock   *int             `json:"target_block,omitempty"`
	ElseBlock     *int             `json:"else_block,omitempty"`
	Cases         []int64          `json:"cases,omitempty"`
	TargetsBlocks []int            `json:"targets_blocks,omitempty"`
	DefaultBlock  *int             `json:"default_block,omitempty"`
	ConstVal      *int64           `json:"const_val,omitempty"`
	ConstNegative bool             `json:"const_negative,omitempty"`
	BinOp         string           `json:"bin_op,omitempty"`
	NoSanitize    bool             `json:"no_sanitize,omitempty"`
	IsIntrinsic   bool             `json:"is_intrinsic,omitempty"`
	IsInlineAsm   bool             `json:"is_inline_asm,omitempty"`
	ExploitTag    string           `json:"exploit_tag,omitempty"`
}

// EncodeModule renders m to its JSON wire form.
func EncodeModule(m *Module) ([]byte, error) {
	wm := wireModule{Name: m.Name, SourceFileSize: m.SourceFileSize}
	for _, g := range m.Globals {
		wm.Globals = append(wm.Globals, wireGlobal{Name: g.Name, Values: g.Values})
	}
	for _, f := range m.Functions {
		wf := wireFunction{Name: f.Name, IsDeclaration: f.IsDeclaration}
		blockIndex := make(map[BasicBlockID]int, len(f.Blocks))
		for idx, bb := range f.Blocks {
			blockIndex[bb.ID()] = idx
		}
		for _, bb := range f.Blocks {
			wb := wireBlock{}
			for _, p := range bb.Params {
				wb.Params = append(wb.Params, wireParam{ID: uint32(p.Value.ID()), Type: byte(p.Value.Type())})
			}
			for i := bb.Root(); i != nil; i = i.Next() {
				wb.Instructions = append(wb.Instructions, encodeInstruction(i, blockIndex))
			}
			wf.Blocks = append(wf.Blocks, wb)
		}
		wm.Functions = append(wm.Functions, wf)
	}
	return json.MarshalIndent(wm, "", "  ")
}

func encodeInstruction(i *Instruction, blockIndex map[BasicBlockID]int) wireInstruction {
	wi := wireInstruction{
		Opcode: i.Opcode, ID: i.ID, Cond: i.Cond, CalleeName: i.CalleeName,
		Cases: i.Cases, ConstNegative: i.ConstNegative, BinOp: i.BinOp,
		NoSanitize: i.NoSanitize, IsIntrinsic: i.IsIntrinsic, IsInlineAsm: i.IsInlineAsm,
		ExploitTag: i.ExploitTag,
	}
	if i.Result.Valid() {
		wi.Result = &wireValue{ID: uint32(i.Result.ID()), Type: byte(i.Result.Type())}
	}
	for _, op := range i.Operands {
		wi.Operands = append(wi.Operands, wireValue{ID: uint32(op.ID()), Type: byte(op.Type())})
	}
	if i.ConstVal != nil {
		v := i.ConstVal.Val
		wi.ConstVal = &v
	}
	if i.Unwind != nil {
		idx := blockIndex[i.Unwind.ID()]
		wi.UnwindBlock = &idx
	}
	if i.Normal != nil {
		idx := blockIndex[i.Normal.ID()]
		wi.NormalBlock = &idx
	}
	if i.Target != nil {
		idx := blockIndex[i.Target.ID()]
		wi.TargetBlock = &idx
	}
	if i.Else != nil {
		idx := blockIndex[i.Else.ID()]
		wi.ElseBlock = &idx
	}
	for _, t := range i.Targets {
		wi.TargetsBlocks = append(wi.TargetsBlocks, blockIndex[t.ID()])
	}
	if i.Default != nil {
		idx := blockIndex[i.Default.ID()]
		wi.DefaultBlock = &idx
	}
	return wi
}

// DecodeModule parses a JSON wire-form module, rebuilding the linked
// BasicBlock/Instruction structure.
func DecodeModule(data []byte) (*Module, error) {
	var wm wireModule
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, err
	}
	m := &Module{Name: wm.Name, SourceFileSize: wm.SourceFileSize}
	for _, wg := range wm.Globals {
		m.AddGlobal(wg.Name, wg.Values)
	}
	for _, wf := range wm.Functions {
		f := &Function{Name: wf.Name, IsDeclaration: wf.IsDeclaration}
		m.Functions = append(m.Functions, f)
		blocks := make([]*BasicBlock, len(wf.Blocks))
		for idx := range wf.Blocks {
			blocks[idx] = f.NewBlock()
		}
		maxValueID := ValueID(0)
		for idx, wb := range wf.Blocks {
			bb := blocks[idx]
			for _, p := range wb.Params {
				bb.AddParam(ValueID(p.ID), Type(p.Type))
				if ValueID(p.ID) > maxValueID {
					maxValueID = ValueID(p.ID)
				}
			}
			for _, wi := range wb.Instructions {
				instr := decodeInstruction(wi, blocks)
				bb.InsertInstruction(instr)
				if instr.Result.Valid() && instr.Result.ID() > maxValueID {
					maxValueID = instr.Result.ID()
				}
			}
		}
		f.nextValueID = maxValueID + 1
		f.nextBlockID = BasicBlockID(len(blocks))
	}

	// Resolve direct-call callees by name now that every function in m is
	// known; CalleeName alone (set above) is what the wire form carries,
	// since functions can forward-reference each other across the module.
	m.AllInstructions(func(_ *Function, _ *BasicBlock, i *Instruction) {
		if (i.Opcode == OpCall || i.Opcode == OpInvoke) && i.CalleeName != "" {
			i.Callee = m.FuncByName(i.CalleeName)
		}
	})
	for _, f := range m.Functions {
		f.ComputePreds()
	}
	return m, nil
}

func decodeInstruction(wi wireInstruction, blocks []*BasicBlock) *Instruction {
	i := &Instruction{
		Opcode: wi.Opcode, ID: wi.ID, Cond: wi.Cond, CalleeName: wi.CalleeName,
		Cases: wi.Cases, ConstNegative: wi.ConstNegative, BinOp: wi.BinOp,
		NoSanitize: wi.NoSanitize, IsIntrinsic: wi.IsIntrinsic, IsInlineAsm: wi.IsInlineAsm,
		ExploitTag: wi.ExploitTag,
		Result:     ValueInvalid,
	}
	if wi.Result != nil {
		i.Result = NewValue(ValueID(wi.Result.ID), Type(wi.Result.Type))
	}
	for _, op := range wi.Operands {
		i.Operands = append(i.Operands, NewValue(ValueID(op.ID), Type(op.Type)))
	}
	if wi.ConstVal != nil {
		i.ConstVal = &ConstInt{Val: *wi.ConstVal}
	}
	if wi.UnwindBlock != nil {
		i.Unwind = blocks[*wi.UnwindBlock]
	}
	if wi.NormalBlock != nil {
		i.Normal = blocks[*wi.NormalBlock]
	}
	if wi.TargetBlock != nil {
		i.Target = blocks[*wi.TargetBlock]
	}
	if wi.ElseBlock != nil {
		i.Else = blocks[*wi.ElseBlock]
	}
	for _, t := range wi.TargetsBlocks {
		i.Targets = append(i.Targets, blocks[t])
	}
	if wi.DefaultBlock != nil {
		i.Default = blocks[*wi.DefaultBlock]
	}
	return i
}
