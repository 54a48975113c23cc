package middleware

import "sync/atomic"

// FieldIndex is the position of one internal field in every instance's cell
// array.
type FieldIndex uint32

// InternalField is a process-global 64-bit slot allocated once; its index is
// stable for the lifetime of the process. Instances size their cell arrays
// from FieldCount at creation, so fields must be allocated before the first
// instantiation — in practice at package initialization of the middlewares
// that own them.
type InternalField struct {
	index FieldIndex
}

// Index returns the field's position in the per-instance cell array.
func (f InternalField) Index() FieldIndex {
	return f.index
}

var allocatedFields uint32

// AllocateField assigns the next dense field index.
func AllocateField() InternalField {
	return InternalField{index: FieldIndex(atomic.AddUint32(&allocatedFields, 1) - 1)}
}

// FieldCount returns how many internal fields have been allocated. An
// instance's cell array must cover at least this many cells.
func FieldCount() int {
	return int(atomic.LoadUint32(&allocatedFields))
}

// The fields the core instrumentation owns.
var (
	// FieldUsedPoints accumulates the points charged so far.
	FieldUsedPoints = AllocateField()
	// FieldPointsLimit is the configured points ceiling.
	FieldPointsLimit = AllocateField()
	// FieldMemoryGrowCount counts successful memory.grow operations.
	FieldMemoryGrowCount = AllocateField()
	// FieldOperandBackup temporarily holds a guest operand the
	// instrumentation needs to inspect and replay.
	FieldOperandBackup = AllocateField()
	// FieldRuntimeBreakpointValue encodes the pending breakpoint reason.
	FieldRuntimeBreakpointValue = AllocateField()
	// FieldOpcodeLastLocation mirrors the source offset of the last traced
	// operator.
	FieldOpcodeLastLocation = AllocateField()
)
