package zarr

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocalStore(filepath.Join(t.TempDir(), "local"))
	require.NoError(t, err)
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "zarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		MemoryStoreType: NewMemoryStore(),
		LocalStoreType:  local,
		SQLiteStoreType: sq,
	}
}

func put(t *testing.T, s Store, key, val string) {
	t.Helper()
	require.NoError(t, s.Put(key, strings.NewReader(val)))
}

func TestStores(t *testing.T) {
	for typ, s := range testStores(t) {
		t.Run(typ, func(t *testing.T) {
			assert.Equal(t, typ, s.Type())

			_, err := s.Get("missing")
			assert.ErrorIs(t, err, ErrNotfound)
			ok, err := hasKey(s, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			put(t, s, "a/.zgroup", "{}")
			put(t, s, "a/b/0.0", "chunk")
			put(t, s, "a/b/0.0", "chunk2")
			put(t, s, "ab", "sibling")
			put(t, s, "c", "top")

			v, err := readKey(s, "a/b/0.0")
			require.NoError(t, err)
			assert.Equal(t, "chunk2", string(v))

			require.NoError(t, s.Create("a/b/.zarray", bytes.NewReader([]byte("{}"))))
			err = s.Create("a/b/.zarray", bytes.NewReader([]byte("other")))
			assert.ErrorIs(t, err, ErrAlreadyExists)
			v, err = readKey(s, "a/b/.zarray")
			require.NoError(t, err)
			assert.Equal(t, "{}", string(v), "failed create leaves the value alone")

			keys, err := s.List("a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/.zgroup", "a/b/.zarray", "a/b/0.0"}, keys)

			keys, err = s.List("a")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/.zgroup", "a/b/.zarray", "a/b/0.0", "ab"}, keys)

			keys, err = s.List("")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/.zgroup", "a/b/.zarray", "a/b/0.0", "ab", "c"}, keys)

			keys, err = s.List("nothing/")
			require.NoError(t, err)
			assert.Empty(t, keys)

			require.NoError(t, s.Delete("c"))
			require.NoError(t, s.Delete("c"), "deleting a missing key is not an error")
			_, err = s.Get("c")
			assert.ErrorIs(t, err, ErrNotfound)

			require.NoError(t, removePrefix(s, "a/"))
			keys, err = s.List("")
			require.NoError(t, err)
			assert.Equal(t, []string{"ab"}, keys)
		})
	}
}

func TestStoresHoldArrays(t *testing.T) {
	for typ, s := range testStores(t) {
		t.Run(typ, func(t *testing.T) {
			root, err := NewGroup(s)
			require.NoError(t, err)
			a, err := root.CreateDataset("data/grid", WithShape(6, 6), WithChunks(4, 4), WithDtype(i4), WithDimensionSeparator("/"))
			require.NoError(t, err)
			require.NoError(t, a.Set(int32(7), Range(2, 5), Range(3, 6)))

			n, err := a.NChunksInitialized()
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			_, err = s.Get("data/grid/1/1")
			assert.NoError(t, err)

			reopened, err := OpenArray(s, "data/grid", ModeRead)
			require.NoError(t, err)
			res, err := reopened.Get(Index(4))
			require.NoError(t, err)
			assert.Equal(t, []int32{0, 0, 0, 7, 7, 7}, res.Data)
		})
	}
}

func TestLocalStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Base())

	put(t, s, "x/y/0.0", "data")
	data, err := os.ReadFile(filepath.Join(dir, "x", "y", "0.0"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	// temporary files left by an interrupted write are not keys
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x", ".tmp-0.1-123"), []byte("partial"), 0644))
	keys, err := s.List("x/")
	require.NoError(t, err)
	assert.Equal(t, []string{"x/y/0.0"}, keys)

	// directories read as missing keys
	_, err = s.Get("x/y")
	assert.ErrorIs(t, err, ErrNotfound)
}

func TestSQLiteStoreErrors(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.Error(t, err)

	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	var nilStore *SQLiteStore
	assert.NoError(t, nilStore.Close())

	assert.False(t, isUniqueViolation(nil))
}
