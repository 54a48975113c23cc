package middleware

import (
	"github.com/multiversx/wasmer/internal/wasm"
)

// Metering prices every guest instruction at compile time and makes
// generated code count the cost of the instructions it executes. The unit of
// accounting is the point.
//
// Costs accumulate into a compile-time constant across each basic block and
// are flushed to the used-points field only at block boundaries, so a
// straight-line run costs a single add at runtime. The points limit is
// checked at control-transfer operators, the only points from which runaway
// computation can begin; exceeding it trips an out-of-gas breakpoint.
//
// Every backend compiling with Metering enabled charges the same points for
// the same execution, which is what makes metering deterministic.
type Metering struct {
	unmeteredLocals int
	currentBlock    uint64
	funcLocalsCosts uint32
	opcodeCosts     []uint32
}

// NewMetering returns a metering middleware charging per opcodeCosts. The
// first unmeteredLocals locals of each function are declared free of charge.
func NewMetering(opcodeCosts []uint32, unmeteredLocals int) *Metering {
	return &Metering{
		unmeteredLocals: unmeteredLocals,
		opcodeCosts:     opcodeCosts,
	}
}

// FeedLocal implements FunctionMiddleware. Local declarations of a function
// are fed before its FunctionBegin event; the accumulated cost seeds that
// function's first basic block.
func (m *Metering) FeedLocal(_ wasm.ValueType, count int, _ uint32) error {
	if count > m.unmeteredLocals {
		meteredLocals := uint32(count - m.unmeteredLocals)
		// count is bounded by the front-end's validation, so the
		// multiplication cannot overflow.
		m.funcLocalsCosts += m.opcodeCosts[wasm.LocalAllocateCostIndex] * meteredLocals
	}
	return nil
}

// FeedEvent implements FunctionMiddleware.
func (m *Metering) FeedEvent(ev Event, _ *wasm.ModuleInfo, sink *EventSink, _ uint32) error {
	switch ev.Kind {
	case EventFunctionBegin:
		m.currentBlock = uint64(m.funcLocalsCosts)
		m.funcLocalsCosts = 0
	case EventWasmOp:
		op := ev.Op
		m.currentBlock += uint64(m.opcodeCosts[op.Index()])

		switch op.Opcode {
		case wasm.OpcodeLoop, wasm.OpcodeBlock, wasm.OpcodeEnd, wasm.OpcodeIf, wasm.OpcodeElse,
			wasm.OpcodeUnreachable, wasm.OpcodeBr, wasm.OpcodeBrTable, wasm.OpcodeBrIf,
			wasm.OpcodeCall, wasm.OpcodeCallIndirect, wasm.OpcodeReturn:
			sink.Push(GetInternal(FieldUsedPoints.Index()))
			sink.Push(WasmOwned(wasm.NewI64Const(int64(m.currentBlock))))
			sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI64Add)))
			sink.Push(SetInternal(FieldUsedPoints.Index()))
			m.currentBlock = 0
		}

		switch op.Opcode {
		case wasm.OpcodeBr, wasm.OpcodeBrTable, wasm.OpcodeBrIf,
			wasm.OpcodeCall, wasm.OpcodeCallIndirect:
			sink.Push(GetInternal(FieldUsedPoints.Index()))
			sink.Push(GetInternal(FieldPointsLimit.Index()))
			sink.Push(WasmOwned(wasm.NewOp(wasm.OpcodeI64GeU)))
			sink.Push(WasmOwned(wasm.NewIfEmpty()))
			PushRuntimeBreakpoint(sink, BreakpointValueOutOfGas)
			sink.Push(WasmOwned(wasm.NewEnd()))
		}
	}

	sink.Push(ev)
	return nil
}

// GetPointsUsed returns the points an instance has used.
func GetPointsUsed(ins *wasm.Instance) uint64 {
	return ins.GetInternal(uint32(FieldUsedPoints.Index()))
}

// SetPointsUsed sets the points an instance has used. Hosts reset this to
// zero between invocations they account separately.
func SetPointsUsed(ins *wasm.Instance, value uint64) {
	ins.SetInternal(uint32(FieldUsedPoints.Index()), value)
}

// SetPointsLimit sets the points ceiling of an instance.
func SetPointsLimit(ins *wasm.Instance, value uint64) {
	ins.SetInternal(uint32(FieldPointsLimit.Index()), value)
}

// GetPointsLimit returns the points ceiling of an instance.
func GetPointsLimit(ins *wasm.Instance) uint64 {
	return ins.GetInternal(uint32(FieldPointsLimit.Index()))
}
