package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeIndexSpace(t *testing.T) {
	// Every defined opcode fits the 448-entry index space, and the
	// synthetic cost indices live directly after it.
	require.LessOrEqual(t, int(opcodeSentinel), OpcodeCount)
	require.Equal(t, OpcodeCount, LocalAllocateCostIndex)
	require.Equal(t, OpcodeCount+1, CostTableLength)

	// Spot-check stability of the numbering the cost tables rely on.
	require.Equal(t, Opcode(0), OpcodeUnreachable)
	require.Equal(t, OpcodeBlock+1, OpcodeLoop)
	require.Less(t, OpcodeMemoryGrow, OpcodeI32Const)
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpcodeUnreachable, "unreachable"},
		{OpcodeBrTable, "br_table"},
		{OpcodeCallIndirect, "call_indirect"},
		{OpcodeMemoryGrow, "memory.grow"},
		{OpcodeI64GeU, "i64.ge_u"},
		{OpcodeI32TruncSatF64U, "i32.trunc_sat_f64_u"},
		{OpcodeV128Load8x8S, "v128.load8x8_s"},
		{Opcode(OpcodeCount - 1), "opcode(447)"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, tc.op.String())
	}
}

func TestOperatorString(t *testing.T) {
	c := NewI64Const(-3)
	require.Equal(t, "i64.const -3", c.String())
	require.Equal(t, "br 2", (&Operator{Opcode: OpcodeBr, U32: 2}).String())
	ifOp := NewIfEmpty()
	require.Equal(t, "if", ifOp.String())
	op := Operator{Opcode: OpcodeBrTable, Depths: []uint32{0, 1, 0}}
	require.Equal(t, "br_table [0 1 0]", op.String())
}

func TestFunctionType_EqualsSignature(t *testing.T) {
	ft := FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	require.True(t, ft.EqualsSignature([]ValueType{ValueTypeI32}, []ValueType{ValueTypeI64}))
	require.False(t, ft.EqualsSignature([]ValueType{ValueTypeI64}, []ValueType{ValueTypeI64}))
	require.False(t, ft.EqualsSignature(nil, nil))
}
