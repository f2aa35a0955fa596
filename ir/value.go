package ir

import (
	"fmt"
	"math"
)

// ValueID is the pure identifier of a Value, without type information.
type ValueID uint32

const invalidValueID ValueID = math.MaxUint32

// Value represents an SSA-like value with its type packed into the high
// 32 bits, following the same trick as wazero's ssa.Value: a Value is a
// plain, comparable, zero-allocation identifier that can be stored in maps
// and compared with ==.
type Value uint64

// ValueInvalid is the explicit "no value" marker. The zero Value (id 0 with
// TypeInvalid, what an unset Result field holds) is not Valid either.
const ValueInvalid Value = Value(invalidValueID)

// NewValue creates a Value with the given id and type.
func NewValue(id ValueID, t Type) Value {
	return Value(id) | Value(t)<<32
}

// ID returns the identifier portion of v.
func (v Value) ID() ValueID { return ValueID(v) }

// Type returns the type portion of v.
func (v Value) Type() Type { return Type(v >> 32) }

// Valid reports whether v refers to a real value.
func (v Value) Valid() bool { return v.ID() != invalidValueID && v.Type() != TypeInvalid }

// String implements fmt.Stringer.
func (v Value) String() string {
	if !v.Valid() {
		return "<invalid>"
	}
	return fmt.Sprintf("v%d:%s", v.ID(), v.Type())
}

// ConstInt, when non-nil, is attached to Instructions that produce a known
// constant integer, so the Instrumenter's exploit-operand check (spec.md
// §4.5, "when an exploit operand is a constant integer, skip") can tell a
// literal from a runtime-computed value without re-deriving it.
type ConstInt struct {
	Val int64
}
