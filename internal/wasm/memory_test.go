package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryInstance_Grow(t *testing.T) {
	m := NewMemoryInstance(MemoryDescriptor{Minimum: 1, Maximum: 3, HasMax: true})
	require.Equal(t, uint32(1), m.Pages())

	prev, ok := m.Grow(2)
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(3), m.Pages())

	_, ok = m.Grow(1)
	require.False(t, ok)
	require.Equal(t, uint32(3), m.Pages())

	prev, ok = m.Grow(0)
	require.True(t, ok)
	require.Equal(t, uint32(3), prev)
}

func TestMemoryInstance_FillTrapsOutOfBounds(t *testing.T) {
	m := NewMemoryInstance(MemoryDescriptor{Minimum: 1})

	require.NoError(t, m.Fill(0, 0xAA, MemoryPageSize))
	require.Equal(t, byte(0xAA), m.Buffer[MemoryPageSize-1])

	err := m.Fill(MemoryPageSize-1, 0, 2)
	var trap *Trap
	require.ErrorAs(t, err, &trap)
	require.Equal(t, TrapOutOfBoundsMemoryAccess, trap.Code)
	require.Equal(t, "out of bounds memory access", trap.Error())
}

func TestMemoryInstance_ShrinkToMinimum(t *testing.T) {
	m := NewMemoryInstance(MemoryDescriptor{Minimum: 1})
	_, ok := m.Grow(4)
	require.True(t, ok)
	require.Equal(t, uint32(5), m.Pages())

	require.NoError(t, m.ShrinkToMinimum())
	require.Equal(t, uint32(1), m.Pages())
}

func TestMemoryInstance_Write(t *testing.T) {
	m := NewMemoryInstance(MemoryDescriptor{Minimum: 1})
	require.NoError(t, m.Write(10, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, m.Buffer[10:13])

	err := m.Write(MemoryPageSize, []byte{1})
	var trap *Trap
	require.ErrorAs(t, err, &trap)
}

func TestTableInstance_Init(t *testing.T) {
	tbl := NewTableInstance(TableDescriptor{ElementType: ValueTypeFuncref, Minimum: 4})
	for _, ref := range tbl.Refs {
		require.Equal(t, RefNull, ref)
	}

	require.NoError(t, tbl.Init(1, []uint32{7, 8}))
	require.Equal(t, []uint32{RefNull, 7, 8, RefNull}, tbl.Refs)

	err := tbl.Init(3, []uint32{1, 2})
	var trap *Trap
	require.ErrorAs(t, err, &trap)
	require.Equal(t, TrapOutOfBoundsTableAccess, trap.Code)
}
