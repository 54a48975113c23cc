package middleware

import (
	"fmt"

	"github.com/multiversx/wasmer/internal/wasm"
)

// OpcodeControl bounds the growth of guest memory: at most maxMemoryGrow
// successful memory.grow operations per invocation, each requesting at most
// maxMemoryGrowDelta pages. Both violations trip a memory-limit breakpoint
// before the backend's own limit enforcement sees the operation.
type OpcodeControl struct {
	maxMemoryGrow      uint64
	maxMemoryGrowDelta uint64
}

// NewOpcodeControl returns the middleware with the given caps.
func NewOpcodeControl(maxMemoryGrow, maxMemoryGrowDelta uint64) *OpcodeControl {
	return &OpcodeControl{
		maxMemoryGrow:      maxMemoryGrow,
		maxMemoryGrowDelta: maxMemoryGrowDelta,
	}
}

// FeedEvent implements FunctionMiddleware.
func (c *OpcodeControl) FeedEvent(ev Event, _ *wasm.ModuleInfo, sink *EventSink, _ uint32) error {
	if ev.Kind == EventWasmOp && ev.Op.Opcode == wasm.OpcodeMemoryGrow {
		if ev.Op.U32 != 0 {
			return fmt.Errorf("memory.grow must have memory index 0")
		}

		// Stop when the grow budget is already spent.
		sink.Push(GetInternal(FieldMemoryGrowCount.Index()))
		sink.Push(WasmOwned(wasm.NewI64Const(int64(c.maxMemoryGrow))))
		sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI64GeU)))
		sink.Push(WasmOwned(wasm.NewIfEmpty()))
		PushRuntimeBreakpoint(sink, BreakpointValueMemoryLimit)
		sink.Push(WasmOwned(wasm.NewEnd()))

		// Count this operation.
		sink.Push(GetInternal(FieldMemoryGrowCount.Index()))
		sink.Push(WasmOwned(wasm.NewI64Const(1)))
		sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI64Add)))
		sink.Push(SetInternal(FieldMemoryGrowCount.Index()))

		// Back up the top of the stack (the requested delta) in order to
		// duplicate it: once for the comparison against the delta cap and
		// again for memory.grow itself, assuming the comparison passes.
		sink.Push(SetInternal(FieldOperandBackup.Index()))
		sink.Push(GetInternal(FieldOperandBackup.Index()))
		sink.Push(WasmOwned(wasm.NewI32Const(int32(c.maxMemoryGrowDelta))))
		sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI32GtU)))
		sink.Push(WasmOwned(wasm.NewIfEmpty()))
		PushRuntimeBreakpoint(sink, BreakpointValueMemoryLimit)
		sink.Push(WasmOwned(wasm.NewEnd()))

		// Bring back the backed-up operand for memory.grow.
		sink.Push(GetInternal(FieldOperandBackup.Index()))
	}

	sink.Push(ev)
	return nil
}

// FeedLocal implements FunctionMiddleware.
func (c *OpcodeControl) FeedLocal(wasm.ValueType, int, uint32) error {
	return nil
}

// GetMemoryGrowCount returns how many memory.grow operations the instance
// has performed since its last reset of the counter.
func GetMemoryGrowCount(ins *wasm.Instance) uint64 {
	return ins.GetInternal(uint32(FieldMemoryGrowCount.Index()))
}

// SetMemoryGrowCount sets the grow counter, typically to zero between
// invocations.
func SetMemoryGrowCount(ins *wasm.Instance, value uint64) {
	ins.SetInternal(uint32(FieldMemoryGrowCount.Index()), value)
}
