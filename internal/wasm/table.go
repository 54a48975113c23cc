package wasm

// RefNull is the null function reference.
const RefNull = ^uint32(0)

// TableInstance is one table of an instance. Refs holds function indices,
// RefNull for uninitialized slots.
type TableInstance struct {
	Refs []uint32
	Def  TableDescriptor
}

// NewTableInstance allocates a table at its declared minimum size with all
// slots null.
func NewTableInstance(def TableDescriptor) *TableInstance {
	refs := make([]uint32, def.Minimum)
	for i := range refs {
		refs[i] = RefNull
	}
	return &TableInstance{Refs: refs, Def: def}
}

// Init copies funcIndices into the table starting at base, with table.init's
// trap semantics on an out-of-bounds range.
func (t *TableInstance) Init(base uint32, funcIndices []uint32) error {
	if uint64(base)+uint64(len(funcIndices)) > uint64(len(t.Refs)) {
		return NewTrap(TrapOutOfBoundsTableAccess)
	}
	copy(t.Refs[base:], funcIndices)
	return nil
}
