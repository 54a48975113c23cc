package wasm

// MemoryPageSize is the size of one linear-memory page.
const MemoryPageSize = 65536

// MemoryInstance is one linear memory of an instance. Buffer always spans
// exactly the current page count.
type MemoryInstance struct {
	Buffer []byte
	Def    MemoryDescriptor
}

// NewMemoryInstance allocates a memory at its declared minimum size.
func NewMemoryInstance(def MemoryDescriptor) *MemoryInstance {
	return &MemoryInstance{
		Buffer: make([]byte, int(def.Minimum)*MemoryPageSize),
		Def:    def,
	}
}

// Pages returns the current size in pages.
func (m *MemoryInstance) Pages() uint32 {
	return uint32(len(m.Buffer) / MemoryPageSize)
}

// Size returns the current size in bytes.
func (m *MemoryInstance) Size() uint32 {
	return uint32(len(m.Buffer))
}

// Grow appends delta pages of zeroes, returning the previous page count.
// ok is false when the declared maximum would be exceeded, which is the
// memory.grow -1 result.
func (m *MemoryInstance) Grow(delta uint32) (prev uint32, ok bool) {
	prev = m.Pages()
	if delta == 0 {
		return prev, true
	}
	newPages := uint64(prev) + uint64(delta)
	if newPages > 65536 {
		return prev, false
	}
	if m.Def.HasMax && newPages > uint64(m.Def.Maximum) {
		return prev, false
	}
	m.Buffer = append(m.Buffer, make([]byte, int(delta)*MemoryPageSize)...)
	return prev, true
}

// Fill sets length bytes starting at dst to val, with memory.fill's trap
// semantics on an out-of-bounds range.
func (m *MemoryInstance) Fill(dst uint32, val byte, length uint32) error {
	if uint64(dst)+uint64(length) > uint64(len(m.Buffer)) {
		return NewTrap(TrapOutOfBoundsMemoryAccess)
	}
	buf := m.Buffer[dst : dst+length]
	for i := range buf {
		buf[i] = val
	}
	return nil
}

// Write copies data into the memory at offset, with the same bounds check
// data-segment initialization uses.
func (m *MemoryInstance) Write(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.Buffer)) {
		return NewTrap(TrapOutOfBoundsMemoryAccess)
	}
	copy(m.Buffer[offset:], data)
	return nil
}

// ShrinkToMinimum truncates the memory back to its declared minimum page
// count. Growing through this method is invalid.
func (m *MemoryInstance) ShrinkToMinimum() error {
	min := int(m.Def.Minimum) * MemoryPageSize
	if min > len(m.Buffer) {
		return NewInvalidMemoryError("memory is smaller than its declared minimum")
	}
	m.Buffer = m.Buffer[:min]
	return nil
}
