package middleware

import (
	"fmt"

	"github.com/multiversx/wasmer/internal/wasm"
)

// Reserved runtime-breakpoint values. Values not listed are available to the
// host.
const (
	BreakpointValueNoBreakpoint    uint64 = 0
	BreakpointValueExecutionFailed uint64 = 1
	BreakpointValueSignalError     uint64 = 3
	BreakpointValueOutOfGas        uint64 = 4
	BreakpointValueMemoryLimit     uint64 = 5
)

// RuntimeBreakpointError is returned to the host when an injected breakpoint
// fires; Value is the reason code found in the breakpoint field.
type RuntimeBreakpointError struct {
	Value uint64
}

func (e *RuntimeBreakpointError) Error() string {
	return fmt.Sprintf("runtime breakpoint reached (value %d)", e.Value)
}

// PushRuntimeBreakpoint emits the cooperative abort sequence other
// middlewares use: store value into the breakpoint field, then invoke the
// handler that surfaces it to the host.
func PushRuntimeBreakpoint(sink *EventSink, value uint64) {
	sink.Push(WasmOwned(wasm.NewI64Const(int64(value))))
	sink.Push(SetInternal(FieldRuntimeBreakpointValue.Index()))
	sink.Push(Breakpoint(func(ins *wasm.Instance) error {
		return &RuntimeBreakpointError{Value: ins.GetInternal(uint32(FieldRuntimeBreakpointValue.Index()))}
	}))
}

// RuntimeBreakpointHandler is the middleware that makes host-set breakpoint
// values take effect: after every outgoing call it emits a check of the
// breakpoint field, invoking the handler when the field is non-zero. The
// host may set the field from another thread or from within an imported
// function; the call boundary is the earliest safe point to observe it.
type RuntimeBreakpointHandler struct{}

// NewRuntimeBreakpointHandler returns the middleware.
func NewRuntimeBreakpointHandler() *RuntimeBreakpointHandler {
	return &RuntimeBreakpointHandler{}
}

// FeedEvent implements FunctionMiddleware.
func (h *RuntimeBreakpointHandler) FeedEvent(ev Event, _ *wasm.ModuleInfo, sink *EventSink, _ uint32) error {
	sink.Push(ev)

	if ev.Kind == EventWasmOp {
		switch ev.Op.Opcode {
		case wasm.OpcodeCall, wasm.OpcodeCallIndirect:
			sink.Push(GetInternal(FieldRuntimeBreakpointValue.Index()))
			sink.Push(WasmOwned(wasm.NewI64Const(0)))
			sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI64Ne)))
			sink.Push(WasmOwned(wasm.NewIfEmpty()))
			sink.Push(Breakpoint(func(ins *wasm.Instance) error {
				return &RuntimeBreakpointError{Value: ins.GetInternal(uint32(FieldRuntimeBreakpointValue.Index()))}
			}))
			sink.Push(WasmOwned(wasm.NewEnd()))
		}
	}
	return nil
}

// FeedLocal implements FunctionMiddleware.
func (h *RuntimeBreakpointHandler) FeedLocal(wasm.ValueType, int, uint32) error {
	return nil
}

// GetRuntimeBreakpointValue reads the breakpoint field with the ordering a
// host thread needs.
func GetRuntimeBreakpointValue(ins *wasm.Instance) uint64 {
	return ins.GetInternalAtomic(uint32(FieldRuntimeBreakpointValue.Index()))
}

// SetRuntimeBreakpointValue writes the breakpoint field with the ordering a
// host thread needs.
func SetRuntimeBreakpointValue(ins *wasm.Instance, value uint64) {
	ins.SetInternalAtomic(uint32(FieldRuntimeBreakpointValue.Index()), value)
}
