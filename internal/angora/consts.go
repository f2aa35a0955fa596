package angora

import "github.com/cispa/ampfuzz/ir"

// MapSize is the coverage byte map size in bytes: 2^16, fixed (spec.md §3,
// §6).
const MapSize = 1 << 16

// Comparison-trace predicate/type tags, carried verbatim from the original
// AngoraPass.cc constants (spec.md §4.5, §8).
const (
	// CondEqOp is the predicate value used for boolean (non-icmp)
	// conditions, always compared for equality against a literal 1.
	CondEqOp uint32 = 0
	// CondBoolMask marks a trace as a boolean-compare rather than a true
	// icmp/fcmp (spec.md §4.5 "Boolean comparisons").
	CondBoolMask uint32 = 1 << 31
	// CondSignMask is OR'd into the predicate when the right-hand
	// operand of a comparison is a negative constant (spec.md §4.5).
	CondSignMask uint32 = 1 << 30
	// CondExploitMask tags an exploit-value trace's "op" field, OR'd
	// with the originating instruction's opcode (spec.md §4.5
	// "Exploitation").
	CondExploitMask uint32 = 1 << 29
)

// maxExploitCategory bounds how many leading operands of an instruction or
// call are checked against the i0..i4 exploit categories (spec.md §4.5,
// confirmed by AngoraPass.cc's MAX_EXPLOIT_CATEGORY).
const maxExploitCategory = 5

// icmpPredicate maps an ir.ICmpCond to the wire predicate value the
// RuntimeABI trace calls expect. These are LLVM ICmpInst::Predicate-
// compatible values so a real consumer downstream can decode them the same
// way the original pass's runtime does.
func icmpPredicate(cond ir.ICmpCond) uint32 {
	// Values of llvm::CmpInst::Predicate's ICMP_* members, which the
	// runtime ABI treats as opaque but stable.
	switch cond {
	case ir.CondEq:
		return 32
	case ir.CondNe:
		return 33
	case ir.CondUgt:
		return 34
	case ir.CondUge:
		return 35
	case ir.CondUlt:
		return 36
	case ir.CondUle:
		return 37
	case ir.CondSgt:
		return 38
	case ir.CondSge:
		return 39
	case ir.CondSlt:
		return 40
	case ir.CondSle:
		return 41
	}
	return 0
}
