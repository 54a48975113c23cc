package wasm

import (
	"errors"
	"fmt"
)

// Reset rewinds the instance to its post-instantiation state in place:
// element segments are re-armed, globals re-evaluated, memories zeroed,
// shrunk to their declared minimum and re-initialized from data segments.
// Compiled code and import bindings are untouched.
//
// On error the instance is in an undefined state and must be discarded.
func (ins *Instance) Reset() error {
	if err := ins.resetElements(); err != nil {
		return err
	}
	if err := ins.resetGlobals(); err != nil {
		return err
	}
	return ins.resetMemories()
}

// resetElements re-arms every passive element segment and re-copies the
// active ones into their tables, undoing any table.init/elem.drop the
// previous run did.
func (ins *Instance) resetElements() error {
	ins.PassiveElements = map[uint32][]uint32{}
	for i, seg := range ins.Info.ElemInitializers {
		if seg.Passive {
			ins.PassiveElements[uint32(i)] = seg.FuncIndices
			continue
		}
		if err := ins.ApplyElemInitializer(&ins.Info.ElemInitializers[i]); err != nil {
			var trap *Trap
			if errors.As(err, &trap) {
				return fmt.Errorf("%s", trap.Code.Message())
			}
			return err
		}
	}
	return nil
}

func (ins *Instance) resetGlobals() error {
	numImported := len(ins.Info.ImportedGlobals)
	for i, init := range ins.Info.Globals {
		v, err := init.Init.Evaluate(ins)
		if err != nil {
			return fmt.Errorf("re-evaluating global %d: %s", i, err)
		}
		ins.Globals[numImported+i].Val = v
	}
	return nil
}

func (ins *Instance) resetMemories() error {
	if err := ins.zeroMemories(); err != nil {
		return err
	}
	if err := ins.shrinkMemories(); err != nil {
		return err
	}
	return ins.reinitializeMemories()
}

// zeroMemories clears [0, current_length) of every memory through the same
// primitive memory.fill uses, so the host observes the same trap semantics.
func (ins *Instance) zeroMemories() error {
	for _, m := range ins.Memories {
		if err := m.Fill(0, 0, m.Size()); err != nil {
			var trap *Trap
			if errors.As(err, &trap) {
				return fmt.Errorf("%s", trap.Code.Message())
			}
			return fmt.Errorf("unexpected trap")
		}
	}
	return nil
}

func (ins *Instance) shrinkMemories() error {
	for _, m := range ins.Memories {
		if err := m.ShrinkToMinimum(); err != nil {
			var memErr *MemoryError
			if errors.As(err, &memErr) {
				return fmt.Errorf("%s", memErr.Message)
			}
			return fmt.Errorf("unexpected memory error")
		}
	}
	return nil
}

// reinitializeMemories re-runs data-segment initialization exactly as during
// instantiation: active segments are copied in, passive ones re-armed.
func (ins *Instance) reinitializeMemories() error {
	ins.PassiveData = map[uint32][]byte{}
	for i, seg := range ins.Info.DataInitializers {
		if seg.Passive {
			ins.PassiveData[uint32(i)] = seg.Data
			continue
		}
		if err := ins.applyDataInitializer(&ins.Info.DataInitializers[i]); err != nil {
			var trap *Trap
			if errors.As(err, &trap) {
				return fmt.Errorf("%s", trap.Code.Message())
			}
			return err
		}
	}
	return nil
}

// applyDataInitializer copies one active data segment into its memory. Reset
// uses it; instantiation in the engine writes data segments itself.
func (ins *Instance) applyDataInitializer(seg *DataInitializer) error {
	if int(seg.MemoryIndex) >= len(ins.Memories) {
		return fmt.Errorf("data segment targets memory %d of %d", seg.MemoryIndex, len(ins.Memories))
	}
	base, err := seg.Base.Evaluate(ins)
	if err != nil {
		return err
	}
	return ins.Memories[seg.MemoryIndex].Write(uint32(base), seg.Data)
}

// ApplyElemInitializer copies one active element segment into its table. It
// is shared by instantiation and reset.
func (ins *Instance) ApplyElemInitializer(seg *ElemInitializer) error {
	if int(seg.TableIndex) >= len(ins.Tables) {
		return fmt.Errorf("element segment targets table %d of %d", seg.TableIndex, len(ins.Tables))
	}
	base, err := seg.Base.Evaluate(ins)
	if err != nil {
		return err
	}
	return ins.Tables[seg.TableIndex].Init(uint32(base), seg.FuncIndices)
}
