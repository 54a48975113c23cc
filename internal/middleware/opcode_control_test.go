package middleware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/wasm"
)

func TestOpcodeControl_InstrumentsMemoryGrow(t *testing.T) {
	c := NewOpcodeControl(3, 7)

	sink := &EventSink{}
	grow := wasm.NewOp(wasm.OpcodeMemoryGrow)
	require.NoError(t, c.FeedEvent(Wasm(&grow), nil, sink, 0))

	require.Equal(t, []string{
		// Grow-count ceiling.
		fmt.Sprintf("get:%d", FieldMemoryGrowCount.Index()),
		"op:i64.const 3",
		"op:i64.ge_u",
		"op:if",
		fmt.Sprintf("op:i64.const %d", BreakpointValueMemoryLimit),
		fmt.Sprintf("set:%d", FieldRuntimeBreakpointValue.Index()),
		"breakpoint",
		"op:end",
		// Count the operation.
		fmt.Sprintf("get:%d", FieldMemoryGrowCount.Index()),
		"op:i64.const 1",
		"op:i64.add",
		fmt.Sprintf("set:%d", FieldMemoryGrowCount.Index()),
		// Delta ceiling, via the operand backup.
		fmt.Sprintf("set:%d", FieldOperandBackup.Index()),
		fmt.Sprintf("get:%d", FieldOperandBackup.Index()),
		"op:i32.const 7",
		"op:i32.gt_u",
		"op:if",
		fmt.Sprintf("op:i64.const %d", BreakpointValueMemoryLimit),
		fmt.Sprintf("set:%d", FieldRuntimeBreakpointValue.Index()),
		"breakpoint",
		"op:end",
		// Replay the operand and run the original operator.
		fmt.Sprintf("get:%d", FieldOperandBackup.Index()),
		"op:memory.grow",
	}, describe(sink.Drain()))
}

func TestOpcodeControl_RejectsNonzeroMemoryIndex(t *testing.T) {
	c := NewOpcodeControl(3, 7)

	sink := &EventSink{}
	grow := wasm.Operator{Opcode: wasm.OpcodeMemoryGrow, U32: 1}
	require.EqualError(t, c.FeedEvent(Wasm(&grow), nil, sink, 0), "memory.grow must have memory index 0")
}

func TestOpcodeControl_IgnoresOtherOperators(t *testing.T) {
	c := NewOpcodeControl(3, 7)

	events := feedFunction(t, c, noLocals(), []wasm.Operator{
		wasm.NewI32Const(1),
		wasm.NewOp(wasm.OpcodeMemorySize),
		wasm.NewOp(wasm.OpcodeDrop),
		wasm.NewOp(wasm.OpcodeDrop),
	})
	require.Equal(t, []string{
		"begin:0",
		"op:i32.const 1",
		"op:memory.size",
		"op:drop",
		"op:drop",
		"end-func",
	}, describe(events))
}
