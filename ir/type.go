package ir

// Type is the type of an IR Value, analogous to an LLVM first-class type
// reduced to the handful of kinds the pass cares about.
type Type byte

const (
	// TypeInvalid is the zero value of Type, meaning "no type" (used for
	// instructions that define no result value).
	TypeInvalid Type = iota

	// TypeI1 is a one-bit boolean value, e.g. the result of an icmp.
	TypeI1
	// TypeI8 is an 8-bit integer.
	TypeI8
	// TypeI16 is a 16-bit integer.
	TypeI16
	// TypeI32 is a 32-bit integer.
	TypeI32
	// TypeI64 is a 64-bit integer.
	TypeI64
	// TypeF32 is a 32-bit IEEE-754 float.
	TypeF32
	// TypeF64 is a 64-bit IEEE-754 float.
	TypeF64
	// TypePtr is an opaque pointer.
	TypePtr
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeI1:
		return "i1"
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	case TypePtr:
		return "ptr"
	default:
		return "invalid"
	}
}

// IsInteger reports whether t is an integer type of 64 bits or fewer.
func (t Type) IsInteger() bool {
	switch t {
	case TypeI1, TypeI8, TypeI16, TypeI32, TypeI64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t == TypeF32 || t == TypeF64
}

// Bits returns the width of the type in bits, or 0 if the type has no fixed
// scalar width (e.g. TypePtr, which is reported separately by callers that
// know their target pointer size).
func (t Type) Bits() int {
	switch t {
	case TypeI1:
		return 1
	case TypeI8:
		return 8
	case TypeI16:
		return 16
	case TypeI32, TypeF32:
		return 32
	case TypeI64, TypeF64:
		return 64
	default:
		return 0
	}
}

// Bytes returns Bits rounded to whole bytes, or -1 if the width is not a
// whole number of bytes (used by switch-condition validation, spec.md §4.5).
func (t Type) Bytes() int {
	bits := t.Bits()
	if bits == 0 || bits%8 != 0 {
		return -1
	}
	return bits / 8
}
