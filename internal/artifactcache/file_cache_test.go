package artifactcache

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashWasm(t *testing.T) {
	a := HashWasm([]byte("module-a"))
	b := HashWasm([]byte("module-b"))
	require.NotEqual(t, a, b)
	require.Equal(t, a, HashWasm([]byte("module-a")))
}

func TestFileCache_AddGetDelete(t *testing.T) {
	fc := NewFileCache(t.TempDir())
	key := HashWasm([]byte("some module"))

	// Missing entries are not errors.
	_, ok, err := fc.Get(key)
	require.NoError(t, err)
	require.False(t, ok)

	content := []byte{1, 2, 3, 4, 5}
	require.NoError(t, fc.Add(key, bytes.NewReader(content)))

	rc, ok, err := fc.Get(key)
	require.NoError(t, err)
	require.True(t, ok)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, content, got)

	// Replacing an entry keeps the latest content.
	require.NoError(t, fc.Add(key, bytes.NewReader([]byte{9})))
	rc, _, err = fc.Get(key)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte{9}, got)

	require.NoError(t, fc.Delete(key))
	_, ok, err = fc.Get(key)
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting a missing key is fine.
	require.NoError(t, fc.Delete(key))
}

func TestFileCache_CreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/cache"
	fc := NewFileCache(dir)

	require.NoError(t, fc.Add(Key{1}, bytes.NewReader([]byte{1})))
	st, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, st.IsDir())
}

func TestFileCache_ReadLockHeldUntilClose(t *testing.T) {
	fc := NewFileCache(t.TempDir()).(*fileCache)
	key := Key{1, 2, 3}
	require.NoError(t, fc.Add(key, bytes.NewReader([]byte{1, 2, 3, 4})))

	rc, ok, err := fc.Get(key)
	require.NoError(t, err)
	require.True(t, ok)

	// While the content is open, writers must wait.
	require.False(t, fc.mux.TryLock())
	require.NoError(t, rc.Close())
	require.True(t, fc.mux.TryLock())
	fc.mux.Unlock()
}
