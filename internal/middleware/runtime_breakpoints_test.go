package middleware

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/multiversx/wasmer/internal/wasm"
)

func TestRuntimeBreakpointHandler_ChecksAfterCalls(t *testing.T) {
	h := NewRuntimeBreakpointHandler()

	for _, op := range []wasm.Operator{
		{Opcode: wasm.OpcodeCall, U32: 2},
		{Opcode: wasm.OpcodeCallIndirect},
	} {
		op := op
		sink := &EventSink{}
		require.NoError(t, h.FeedEvent(Wasm(&op), nil, sink, 0))
		events := describe(sink.Drain())

		// The original call first, then the non-zero check.
		require.Equal(t, "op:"+op.String(), events[0])
		require.Equal(t, []string{
			fmt.Sprintf("get:%d", FieldRuntimeBreakpointValue.Index()),
			"op:i64.const 0",
			"op:i64.ne",
			"op:if",
			"breakpoint",
			"op:end",
		}, events[1:])
	}
}

func TestRuntimeBreakpointHandler_IgnoresOtherOperators(t *testing.T) {
	h := NewRuntimeBreakpointHandler()

	events := feedFunction(t, h, noLocals(), []wasm.Operator{
		wasm.NewI64Const(7),
		wasm.NewOp(wasm.OpcodeDrop),
		{Opcode: wasm.OpcodeBr, U32: 0},
	})
	require.Equal(t, []string{
		"begin:0",
		"op:i64.const 7",
		"op:drop",
		"op:br 0",
		"end-func",
	}, describe(events))
}

func TestRuntimeBreakpointError_CarriesValue(t *testing.T) {
	ins := wasm.NewInstance(&wasm.ModuleInfo{}, FieldCount())
	SetRuntimeBreakpointValue(ins, BreakpointValueOutOfGas)
	require.Equal(t, BreakpointValueOutOfGas, GetRuntimeBreakpointValue(ins))

	sink := &EventSink{}
	PushRuntimeBreakpoint(sink, BreakpointValueMemoryLimit)
	events := sink.Drain()
	require.Len(t, events, 3)
	require.Equal(t, EventBreakpoint, events[2].Kind)

	// The handler surfaces whatever the field holds at trap time.
	ins.SetInternal(uint32(FieldRuntimeBreakpointValue.Index()), BreakpointValueMemoryLimit)
	err := events[2].Handler(ins)
	var bp *RuntimeBreakpointError
	require.ErrorAs(t, err, &bp)
	require.Equal(t, BreakpointValueMemoryLimit, bp.Value)
	require.Contains(t, err.Error(), "runtime breakpoint")
}
