package angora

import "github.com/cispa/ampfuzz/ir"

// Category names recognized by CategoryList (spec.md §3 "Category lists",
// confirmed against AngoraPass.cc's CompareFuncCat/SocketReadyCat/
// SourceCat/SinkCat/ExploitCategoryAll/ExploitCategory constants).
const (
	CategoryCmpFn = "cmpfn"
	CategorySocket = "socket"
	CategorySource = "source"
	CategorySink   = "sink"
	CategoryAll    = "all"
)

// ExploitCategory returns the per-argument exploit category name "i0".."i4"
// for operand index k (0-4, spec.md §4.5 "first up to 5 operands").
func ExploitCategory(k int) string {
	return "i" + string(rune('0'+k))
}

// CategoryList is the pass's view of the ABI-list and exploitation-list
// files: a pure membership predicate over (entity, category). The real
// file format (clang's SpecialCaseList syntax) is an external collaborator
// (spec.md §1 OUT OF SCOPE) and is parsed upstream; CategoryList only
// holds the resulting name->categories membership table, exactly like
// AngoraPass.cc wraps clang's SpecialCaseList behind `isIn(entity,
// category)` with no built-in defaults of its own.
type CategoryList struct {
	byName map[string]map[string]bool
}

// NewCategoryList builds a CategoryList from a name -> categories mapping
// (as produced by parsing an abilist/exploitation-list file upstream, or
// assembled directly in tests).
func NewCategoryList(entries map[string][]string) *CategoryList {
	cl := &CategoryList{byName: make(map[string]map[string]bool, len(entries))}
	for name, cats := range entries {
		set := make(map[string]bool, len(cats))
		for _, c := range cats {
			set[c] = true
		}
		cl.byName[name] = set
	}
	return cl
}

// IsFunc reports whether function f belongs to category.
func (cl *CategoryList) IsFunc(f *ir.Function, category string) bool {
	if cl == nil || f == nil {
		return false
	}
	return cl.byName[f.Name][category]
}

// IsFuncName reports whether the function named name belongs to category;
// used where only a callee name is available (e.g. an external declaration
// or an unresolved indirect-call target name).
func (cl *CategoryList) IsFuncName(name string, category string) bool {
	if cl == nil || name == "" {
		return false
	}
	return cl.byName[name][category]
}

// IsInstr reports whether instruction i belongs to category, for
// exploit-value tracing's category check, which (per AngoraPass.cc's
// visitExploitation) applies to any instruction, not only calls: a call
// matches by its callee (same rule as IsCall), anything else matches by
// its ExploitTag, if one was set.
func (cl *CategoryList) IsInstr(i *ir.Instruction, category string) bool {
	if cl == nil || i == nil {
		return false
	}
	if i.Opcode == ir.OpCall || i.Opcode == ir.OpInvoke {
		return cl.IsCall(i, category)
	}
	return cl.IsFuncName(i.ExploitTag, category)
}

// IsCall reports whether the callee of a call/invoke instruction belongs to
// category, matching by the statically known Callee if present, falling
// back to CalleeName for indirect calls with only a symbolic name.
func (cl *CategoryList) IsCall(i *ir.Instruction, category string) bool {
	if cl == nil || i == nil {
		return false
	}
	if i.Callee != nil && cl.IsFunc(i.Callee, category) {
		return true
	}
	return cl.IsFuncName(i.CalleeName, category)
}
