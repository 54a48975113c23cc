package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithSize_RoundsUpToPageSize(t *testing.T) {
	m, err := WithSize(1)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	require.Equal(t, pageSize(), m.Size())
	require.Equal(t, ProtectNone, m.Protection())
	require.NotZero(t, m.Ptr())
}

func TestWithSize_ZeroYieldsPlaceholder(t *testing.T) {
	m, err := WithSize(0)
	require.NoError(t, err)
	require.Zero(t, m.Ptr())
	require.Zero(t, m.Size())
	require.Nil(t, m.AsSlice())
	require.NoError(t, m.Unmap())
}

func TestWithSizeProtect_ReadWrite(t *testing.T) {
	m, err := WithSizeProtect(100, ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	s := m.AsSliceMut()
	copy(s, "abcdefghijkl")
	require.Equal(t, []byte("abcdefghijkl"), m.AsSlice()[:12])
}

func TestMemory_ContentSize(t *testing.T) {
	m, err := WithContentSizeProtect(12, ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	require.Equal(t, uint32(12), m.ContentSize())
	copy(m.AsSliceMut(), "abcdefghijkl")
	require.Equal(t, []byte("abcdefghijkl"), m.AsSliceContents())
}

func TestMemory_ProtectRoundTrip(t *testing.T) {
	m, err := WithSizeProtect(pageSize()*2, ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	copy(m.AsSliceMut(), "executable bytes")

	require.NoError(t, m.ProtectAll(ProtectReadExec))
	require.Equal(t, ProtectReadExec, m.Protection())
	// Reads stay legal under rx.
	require.Equal(t, []byte("executable bytes"), m.AsSlice()[:16])

	require.NoError(t, m.ProtectAll(ProtectReadWrite))
	require.Equal(t, ProtectReadWrite, m.Protection())
}

func TestMemory_ProtectRangeOutsideMapping(t *testing.T) {
	m, err := WithSizeProtect(pageSize(), ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	require.Error(t, m.Protect(0, m.Size()+1, ProtectRead))
}

func TestMemory_SplitAt(t *testing.T) {
	ps := pageSize()
	m, err := WithSizeProtect(ps*4, ProtectReadWrite)
	require.NoError(t, err)

	m.AsSliceMut()[0] = 'a'
	m.AsSliceMut()[ps*2] = 'b'

	second := m.SplitAt(ps * 2)
	require.Equal(t, ps*2, m.Size())
	require.Equal(t, ps*2, second.Size())
	require.Equal(t, byte('a'), m.AsSlice()[0])
	require.Equal(t, byte('b'), second.AsSlice()[0])

	// Halves unmap independently.
	require.NoError(t, second.Unmap())
	require.Equal(t, byte('a'), m.AsSlice()[0])
	require.NoError(t, m.Unmap())
}

func TestMemory_SplitAtMisalignedPanics(t *testing.T) {
	m, err := WithSizeProtect(pageSize()*2, ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	require.Panics(t, func() { m.SplitAt(3) })
}

func TestMemory_Clone(t *testing.T) {
	m, err := WithContentSizeProtect(16, ProtectReadWrite)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()
	copy(m.AsSliceMut(), "abcdefghijklmnop")

	t.Run("writable source", func(t *testing.T) {
		c, err := m.Clone()
		require.NoError(t, err)
		defer func() { require.NoError(t, c.Unmap()) }()

		require.Equal(t, m.AsSlice(), c.AsSlice())
		require.Equal(t, m.Protection(), c.Protection())
		require.Equal(t, m.ContentSize(), c.ContentSize())

		// Fresh mapping: mutating the clone leaves the source alone.
		c.AsSliceMut()[0] = 'z'
		require.Equal(t, byte('a'), m.AsSlice()[0])
	})

	t.Run("non-writable source", func(t *testing.T) {
		require.NoError(t, m.ProtectAll(ProtectReadExec))
		defer func() { require.NoError(t, m.ProtectAll(ProtectReadWrite)) }()

		c, err := m.Clone()
		require.NoError(t, err)
		defer func() { require.NoError(t, c.Unmap()) }()

		require.Equal(t, ProtectReadExec, c.Protection())
		require.Equal(t, []byte("abcdefghijklmnop"), c.AsSlice()[:16])
	})
}

func TestFromFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.bin")
	content := make([]byte, int(pageSize())+100)
	copy(content, "file-backed mapping")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	m, err := FromFilePath(path, ProtectRead)
	require.NoError(t, err)

	require.Equal(t, []byte("file-backed mapping"), m.AsSlice()[:19])
	require.Equal(t, ProtectRead, m.Protection())

	// Splitting shares the descriptor; both halves close cleanly and the
	// last one releases it.
	second := m.SplitAt(pageSize())
	require.NoError(t, m.Unmap())
	require.Equal(t, pageSize(), second.Size())
	require.Equal(t, content[pageSize():], second.AsSlice()[:len(content)-int(pageSize())])
	require.NoError(t, second.Unmap())
}

func TestFromFilePath_Missing(t *testing.T) {
	_, err := FromFilePath(filepath.Join(t.TempDir(), "nope"), ProtectRead)
	require.Error(t, err)
}

func TestSigsegvPassthroughFlag(t *testing.T) {
	// The flag is process-global and one-way.
	SetSigsegvPassthrough()
	require.True(t, SigsegvPassthrough())
}
