package wasm

import (
	"fmt"
	"sync/atomic"
)

// CompiledFunction is the callable form of one guest function, bound to an
// instance by the backend at instantiation.
type CompiledFunction func(ins *Instance, args ...uint64) ([]uint64, error)

// Instance is one instantiation of a compiled module: the per-instance
// internal-field cells the instrumentation reads and writes, the guest's
// mutable state, and the exported entry points.
type Instance struct {
	Info *ModuleInfo

	// fields are the 64-bit internal cells, indexed by the process-global
	// field registry. Sized once at creation; see NewInstance.
	fields []uint64

	Memories []*MemoryInstance
	Tables   []*TableInstance
	Globals  []*GlobalInstance

	// PassiveElements and PassiveData are the not-yet-consumed passive
	// segments, keyed by segment index. table.init/memory.init consume
	// them; a reset re-arms them from Info.
	PassiveElements map[uint32][]uint32
	PassiveData     map[uint32][]byte

	// Functions are the exported entry points by export name.
	Functions map[string]CompiledFunction
}

// NewInstance returns an Instance whose internal-field array covers
// fieldCount cells. fieldCount must be the process-global registry's count at
// instantiation time so every allocated field has a cell.
func NewInstance(info *ModuleInfo, fieldCount int) *Instance {
	return &Instance{
		Info:            info,
		fields:          make([]uint64, fieldCount),
		PassiveElements: map[uint32][]uint32{},
		PassiveData:     map[uint32][]byte{},
		Functions:       map[string]CompiledFunction{},
	}
}

// GetInternal reads an internal field. Callers on the execution thread need
// no synchronization; host threads must use GetInternalAtomic.
func (ins *Instance) GetInternal(idx uint32) uint64 {
	return ins.fields[idx]
}

// SetInternal writes an internal field from the execution thread.
func (ins *Instance) SetInternal(idx uint32, v uint64) {
	ins.fields[idx] = v
}

// GetInternalAtomic reads an internal field with SeqCst ordering, for host
// threads racing the execution thread.
func (ins *Instance) GetInternalAtomic(idx uint32) uint64 {
	return atomic.LoadUint64(&ins.fields[idx])
}

// SetInternalAtomic writes an internal field with SeqCst ordering.
func (ins *Instance) SetInternalAtomic(idx uint32, v uint64) {
	atomic.StoreUint64(&ins.fields[idx], v)
}

// FieldCount returns the size of the internal-field array.
func (ins *Instance) FieldCount() int {
	return len(ins.fields)
}

// Call invokes the exported function by name.
func (ins *Instance) Call(name string, args ...uint64) ([]uint64, error) {
	f, ok := ins.Functions[name]
	if !ok {
		return nil, fmt.Errorf("no exported function %q", name)
	}
	return f(ins, args...)
}
