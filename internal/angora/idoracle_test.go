package angora

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/cispa/ampfuzz/ir"
)

func TestIdOracle_RecordAndLookup(t *testing.T) {
	o := NewIdOracle()
	cmp := &ir.Instruction{Opcode: ir.OpIcmp, ID: 42}

	require.EqualValues(t, 0, o.IID(nil))
	require.EqualValues(t, 42, o.IID(cmp))

	o.RecordCmp(cmp)
	require.Same(t, cmp, o.CmpByID(42))
	require.Contains(t, o.CmpIDs(), uint32(42))
	require.Nil(t, o.CmpByID(99))
}
