package middleware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/wasm"
)

func noLocals() []struct {
	ty wasm.ValueType
	n  int
} {
	return nil
}

func TestMetering_FlushAtBlockBoundary(t *testing.T) {
	m := NewMetering(GetCostsTable("uniform_one"), 0)

	events := feedFunction(t, m, noLocals(), []wasm.Operator{
		wasm.NewI64Const(1),
		wasm.NewOp(wasm.OpcodeDrop),
		wasm.NewEnd(),
	})

	// The accumulator covers const+drop+end and flushes once, ahead of the
	// End that triggered it.
	require.Equal(t, []string{
		"begin:0",
		"op:i64.const 1",
		"op:drop",
		fmt.Sprintf("get:%d", FieldUsedPoints.Index()),
		"op:i64.const 3",
		"op:i64.add",
		fmt.Sprintf("set:%d", FieldUsedPoints.Index()),
		"op:end",
		"end-func",
	}, describe(events))
}

func TestMetering_LocalsPrologueCost(t *testing.T) {
	m := NewMetering(GetCostsTable("uniform_one"), 2)

	events := feedFunction(t, m, []struct {
		ty wasm.ValueType
		n  int
	}{
		{wasm.ValueTypeI32, 5}, // 3 metered locals at cost 1
		{wasm.ValueTypeI64, 1}, // below the unmetered threshold
	}, []wasm.Operator{
		wasm.NewEnd(),
	})

	// Prologue (3) + end (1).
	require.Contains(t, describe(events), "op:i64.const 4")
}

func TestMetering_LimitCheckAtControlTransfer(t *testing.T) {
	m := NewMetering(GetCostsTable("uniform_one"), 0)

	events := feedFunction(t, m, noLocals(), []wasm.Operator{
		{Opcode: wasm.OpcodeBr, U32: 0},
	})

	require.Equal(t, []string{
		"begin:0",
		// Flush of the accumulator (just the br itself).
		fmt.Sprintf("get:%d", FieldUsedPoints.Index()),
		"op:i64.const 1",
		"op:i64.add",
		fmt.Sprintf("set:%d", FieldUsedPoints.Index()),
		// Limit check: used >= limit -> out-of-gas breakpoint.
		fmt.Sprintf("get:%d", FieldUsedPoints.Index()),
		fmt.Sprintf("get:%d", FieldPointsLimit.Index()),
		"op:i64.ge_u",
		"op:if",
		fmt.Sprintf("op:i64.const %d", BreakpointValueOutOfGas),
		fmt.Sprintf("set:%d", FieldRuntimeBreakpointValue.Index()),
		"breakpoint",
		"op:end",
		"op:br 0",
		"end-func",
	}, describe(events))
}

func TestMetering_NoChecksInsideStraightLineCode(t *testing.T) {
	m := NewMetering(GetCostsTable("uniform_one"), 0)

	events := feedFunction(t, m, noLocals(), []wasm.Operator{
		wasm.NewI64Const(1),
		wasm.NewI64Const(2),
		wasm.NewOp(wasm.OpcodeI64Add),
		wasm.NewOp(wasm.OpcodeDrop),
	})

	// Straight-line code carries no instrumentation at all.
	require.Equal(t, []string{
		"begin:0",
		"op:i64.const 1",
		"op:i64.const 2",
		"op:i64.add",
		"op:drop",
		"end-func",
	}, describe(events))
}

func TestMetering_Deterministic(t *testing.T) {
	body := []wasm.Operator{
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockTypeEmpty},
		{Opcode: wasm.OpcodeBr, U32: 0},
		wasm.NewEnd(),
		wasm.NewEnd(),
	}
	first := describe(feedFunction(t, NewMetering(GetCostsTable("expensive_branching_else_one"), 0), noLocals(), body))
	second := describe(feedFunction(t, NewMetering(GetCostsTable("expensive_branching_else_one"), 0), noLocals(), body))
	require.Equal(t, first, second)
}

func TestGetCostsTable(t *testing.T) {
	tests := []struct {
		name     string
		loop     uint32
		call     uint32
		i64Add   uint32
		localAll uint32
	}{
		{name: "uniform_one", loop: 1, call: 1, i64Add: 1, localAll: 1},
		{name: "expensive_loop_else_one", loop: 12, call: 1, i64Add: 1, localAll: 1},
		{name: "expensive_branching_else_one", loop: 12, call: 12, i64Add: 1, localAll: 1},
		{name: "unknown_table", loop: 0, call: 0, i64Add: 0, localAll: 0},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			table := GetCostsTable(tc.name)
			require.Equal(t, wasm.CostTableLength, len(table))
			require.Equal(t, tc.loop, table[wasm.OpcodeLoop])
			require.Equal(t, tc.call, table[wasm.OpcodeCall])
			require.Equal(t, tc.i64Add, table[wasm.OpcodeI64Add])
			require.Equal(t, tc.localAll, table[wasm.LocalAllocateCostIndex])
		})
	}
}

func TestSetOpcodeCosts_Validation(t *testing.T) {
	err := SetOpcodeCosts(make([]uint32, 3))
	require.Error(t, err)
	require.Contains(t, err.Error(), "entries")
}
