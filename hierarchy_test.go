package zarr

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func memRoot(t *testing.T) *Group {
	t.Helper()
	root, err := NewGroup(nil)
	require.NoError(t, err)
	return root
}

func TestCreateGroupNested(t *testing.T) {
	root := memRoot(t)

	c, err := root.CreateGroup("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", c.Path())
	assert.Equal(t, "/a/b/c", c.Name())
	assert.Equal(t, "c", c.Basename())

	s := root.slot()
	for _, p := range []string{"a", "a/b", "a/b/c"} {
		path, err := NewPath(p)
		require.NoError(t, err)
		k, err := slot{store: s.store, path: path}.kind()
		require.NoError(t, err)
		assert.Equal(t, SlotGroup, k, p)
	}

	_, err = root.CreateGroup("a/b/c")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	b, err := root.RequireGroup("a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", b.Path())
	keys, err := b.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, keys)

	// paths are normalized before use
	again, err := root.RequireGroup("/a//b/")
	require.NoError(t, err)
	assert.Equal(t, "a/b", again.Path())

	// nested groups resolve relative to their parent
	cc, err := b.GetGroup("c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", cc.Path())
}

func TestGetErrors(t *testing.T) {
	root := memRoot(t)
	_, err := root.CreateGroup("g")
	require.NoError(t, err)

	_, err = root.Get("nope")
	assert.ErrorIs(t, err, ErrNotfound)
	_, err = root.Get("g/nope/deeper")
	assert.ErrorIs(t, err, ErrNotfound)

	for _, p := range []string{"", "/", "//"} {
		_, err = root.Get(p)
		assert.ErrorIs(t, err, ErrInvalidPath, "%q", p)
		_, err = root.CreateGroup(p)
		assert.ErrorIs(t, err, ErrInvalidPath, "%q", p)
	}
	_, err = root.Get("g/../g")
	assert.ErrorIs(t, err, ErrInvalidPath)

	// keys without a marker do not make a member
	require.NoError(t, root.store.Put("stray/file", bytes.NewReader([]byte("x"))))
	_, err = root.Get("stray")
	assert.ErrorIs(t, err, ErrNotfound)

	_, err = root.GetArray("g")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateDatasetThroughArray(t *testing.T) {
	root := memRoot(t)
	x, err := root.CreateDataset("x", WithShape(4), WithDtype(i4))
	require.NoError(t, err)
	require.NoError(t, x.Set([]int32{1, 2, 3, 4}))
	before, err := root.store.List("x/")
	require.NoError(t, err)

	_, err = root.CreateDataset("x/y", WithShape(2))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.CreateGroup("x/y/z")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.RequireGroup("x")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.CreateGroup("x")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = root.CreateDataset("x", WithShape(4))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	after, err := root.store.List("x/")
	require.NoError(t, err)
	assert.Equal(t, before, after, "array keys are untouched")

	got, err := root.GetArray("x")
	require.NoError(t, err)
	res, err := got.Get()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, res.Data)
}

func TestCreateDatasetWithData(t *testing.T) {
	root := memRoot(t)
	a, err := root.CreateDataset("deep/data", WithData([]float32{1, 2, 3, 4, 5, 6}, 2, 3), WithChunks(1, 3))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, a.Shape())
	assert.Equal(t, "<f4", a.Dtype().String())

	n, err := root.Get("deep/data")
	require.NoError(t, err)
	res, err := n.(*Array).Get(Index(1))
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, res.Data)

	g, err := root.GetGroup("deep")
	require.NoError(t, err)
	assert.Equal(t, SlotGroup, g.Kind())
}

// A failing final step keeps the groups created on the way to it
func TestCreateIsNotTransactional(t *testing.T) {
	root := memRoot(t)

	_, err := root.CreateDataset("u/v/w")
	assert.Error(t, err, "missing shape")
	_, err = root.CreateDataset("u2/v2/w2", WithShape(4), WithCompressor("lz4", 1))
	assert.ErrorIs(t, err, ErrNotSupported)

	for _, p := range []string{"u", "u/v", "u2", "u2/v2"} {
		ok, err := root.Contains(p)
		require.NoError(t, err)
		assert.True(t, ok, p)
	}
	for _, p := range []string{"u/v/w", "u2/v2/w2"} {
		ok, err := root.Contains(p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
}

func TestConcurrentCreateGroup(t *testing.T) {
	root := memRoot(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := root.CreateGroup("race/target")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else {
				assert.ErrorIs(t, err, ErrAlreadyExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestMembers(t *testing.T) {
	root := memRoot(t)
	_, err := root.CreateGroup("g1")
	require.NoError(t, err)
	_, err = root.CreateDataset("arr", WithShape(3), WithDtype(i4))
	require.NoError(t, err)
	require.NoError(t, root.Attrs().Set("owner", "me"))
	require.NoError(t, root.store.Put("junk/file", bytes.NewReader([]byte("x"))))

	keys, err := root.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"arr", "g1"}, keys)
	n, err := root.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items := root.Items()
	// members added after the listing are not part of it
	_, err = root.CreateGroup("g2")
	require.NoError(t, err)

	for pass := 0; pass < 2; pass++ {
		var names []string
		for m, err := range items {
			require.NoError(t, err)
			names = append(names, m.Name)
			switch m.Name {
			case "arr":
				a, ok := m.Node.(*Array)
				require.True(t, ok)
				assert.Equal(t, []int{3}, a.Shape())
			case "g1":
				assert.IsType(t, &Group{}, m.Node)
			}
		}
		assert.Equal(t, []string{"arr", "g1"}, names, "pass %d", pass)
	}

	var kinds []SlotKind
	for node, err := range root.Values() {
		require.NoError(t, err)
		kinds = append(kinds, node.Kind())
		break
	}
	assert.Equal(t, []SlotKind{SlotArray}, kinds)

	ok, err := root.Contains("g2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = root.Contains("junk")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = root.Contains("")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestItemsListingError(t *testing.T) {
	s := NewMemoryStore()
	root, err := NewGroup(s)
	require.NoError(t, err)
	require.NoError(t, s.Put("bad/.zarray", bytes.NewReader([]byte("{}"))))
	require.NoError(t, s.Put("bad/.zgroup", bytes.NewReader([]byte(`{"zarr_format":2}`))))

	_, err = root.Get("bad")
	assert.ErrorIs(t, err, ErrConflict)

	count := 0
	for _, err := range root.Items() {
		count++
		assert.ErrorIs(t, err, ErrConflict)
	}
	assert.Equal(t, 1, count)
}

func TestAssignNotSupported(t *testing.T) {
	root := memRoot(t)
	err := root.Assign("x", []int32{1, 2})
	assert.ErrorIs(t, err, ErrNotSupported)
	ok, err := root.Contains("x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequireDataset(t *testing.T) {
	root := memRoot(t)

	a, err := root.RequireDataset("d", []int{10}, i4, true, WithChunks(5))
	require.NoError(t, err)
	assert.Equal(t, []int{5}, a.Chunks())
	require.NoError(t, a.Set(3))

	again, err := root.RequireDataset("d", []int{10}, i4, true)
	require.NoError(t, err)
	res, err := again.Get(Index(0))
	require.NoError(t, err)
	v, err := res.Scalar()
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)

	_, err = root.RequireDataset("d", []int{10}, MustParseDtype("<i2"), false)
	assert.NoError(t, err, "int16 casts safely to int32")
	_, err = root.RequireDataset("d", []int{10}, MustParseDtype("<i2"), true)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.RequireDataset("d", []int{10}, MustParseDtype("<f8"), false)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.RequireDataset("d", []int{11}, i4, false)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = root.CreateGroup("grp")
	require.NoError(t, err)
	_, err = root.RequireDataset("grp", []int{10}, i4, false)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = root.RequireDataset("d/below", []int{10}, i4, false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOpenGroupModes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "root.zarr")

	_, err := OpenGroup(dir, ModeRead)
	assert.ErrorIs(t, err, ErrNotfound)
	_, err = OpenGroup(dir, ModeReadWrite)
	assert.ErrorIs(t, err, ErrNotfound)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "read modes must not create the directory")

	g, err := OpenGroup(dir, ModeReadWriteCreate)
	require.NoError(t, err)
	assert.False(t, g.ReadOnly())
	_, err = g.CreateGroup("child")
	require.NoError(t, err)

	g, err = OpenGroup(dir, ModeReadWriteCreate)
	require.NoError(t, err)
	keys, err := g.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"child"}, keys, "a second open does not re-initialize")

	ro, err := OpenGroup(dir, ModeRead)
	require.NoError(t, err)
	assert.True(t, ro.ReadOnly())
	_, err = ro.CreateGroup("other")
	assert.ErrorIs(t, err, ErrReadOnly)

	rw, err := OpenGroup(dir, ModeReadWrite)
	require.NoError(t, err)
	assert.False(t, rw.ReadOnly())

	_, err = OpenGroup(dir, ModeWriteFail)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	_, err = OpenGroup(dir, ModeCreate)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	g, err = OpenGroup(dir, ModeWrite)
	require.NoError(t, err)
	keys, err = g.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys, "w re-initializes the group")

	fresh := filepath.Join(t.TempDir(), "fresh.zarr")
	_, err = OpenGroup(fresh, ModeCreate)
	require.NoError(t, err)
	_, err = OpenGroup(filepath.Join(t.TempDir(), "w.zarr"), ModeWrite)
	require.NoError(t, err)

	_, err = OpenGroup(dir, "rw")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestOpenGroupOverArray(t *testing.T) {
	s := NewMemoryStore()
	_, err := Create(s, "arr", WithShape(2))
	require.NoError(t, err)

	for _, mode := range []PersistenceMode{ModeRead, ModeReadWrite, ModeReadWriteCreate, ModeWrite, ModeWriteFail, ModeCreate} {
		_, err := OpenGroupStore(s, "arr", mode)
		assert.ErrorIs(t, err, ErrConflict, string(mode))
	}
	// w must not have cleared the array
	_, err = OpenArray(s, "arr", ModeRead)
	assert.NoError(t, err)

	rootArray := NewMemoryStore()
	_, err = Create(rootArray, "", WithShape(2))
	require.NoError(t, err)
	_, err = NewGroup(rootArray)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestOpenGroupStoreSubpath(t *testing.T) {
	s := NewMemoryStore()
	g, err := OpenGroupStore(s, "a/b", ModeWriteFail)
	require.NoError(t, err)
	assert.Equal(t, "a/b", g.Path())

	_, err = g.CreateDataset("x", WithShape(2))
	require.NoError(t, err)

	root, err := NewGroup(s)
	require.NoError(t, err)
	a, err := root.GetArray("a/b/x")
	require.NoError(t, err)
	assert.Equal(t, "a/b/x", a.Path())

	// ancestors of a group opened below the root are groups too
	keys, err := root.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
	_, err = root.GetGroup("a")
	assert.NoError(t, err)
}

func TestCreateMarksAncestors(t *testing.T) {
	s := NewMemoryStore()
	_, err := Create(s, "c/arr", WithShape(2))
	require.NoError(t, err)

	root, err := OpenGroupStore(s, "", ModeRead)
	require.NoError(t, err, "the root is marked as a group")
	_, err = root.GetGroup("c")
	assert.NoError(t, err)

	_, err = OpenGroupStore(s, "a/b", ModeReadWriteCreate)
	require.NoError(t, err)
	_, err = OpenGroupStore(s, "d/e", ModeWrite)
	require.NoError(t, err)
	keys, err := root.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, keys)
	for _, p := range []string{"a", "d"} {
		_, err = root.GetGroup(p)
		assert.NoError(t, err, p)
	}

	_, err = Create(s, "c/arr/x", WithShape(2))
	assert.ErrorIs(t, err, ErrConflict)
	_, err = OpenArray(s, "c/arr/y", ModeReadWriteCreate, WithShape(2))
	assert.ErrorIs(t, err, ErrConflict)
	for _, mode := range []PersistenceMode{ModeReadWriteCreate, ModeWrite, ModeWriteFail} {
		_, err = OpenGroupStore(s, "c/arr/g", mode)
		assert.ErrorIs(t, err, ErrConflict, mode)
	}
	ok, err := hasKey(s, "c/arr/g/.zgroup")
	require.NoError(t, err)
	assert.False(t, ok)
}

// interleavedStore writes another key just before creating certain keys, the
// way a concurrent creator of the other node kind would
type interleavedStore struct {
	*MemoryStore
	before map[string]string
}

func (s *interleavedStore) Create(key string, val io.Reader) error {
	if other, ok := s.before[key]; ok {
		if err := s.MemoryStore.Put(other, strings.NewReader("{}")); err != nil {
			return err
		}
	}
	return s.MemoryStore.Create(key, val)
}

func TestCreateRacingOtherKind(t *testing.T) {
	s := &interleavedStore{
		MemoryStore: NewMemoryStore(),
		before: map[string]string{
			"x/.zgroup": "x/.zarray",
			"y/.zarray": "y/.zgroup",
			"z/.zgroup": "z/.zarray",
		},
	}
	root, err := NewGroup(s)
	require.NoError(t, err)

	hasOnly := func(keep, gone string) {
		t.Helper()
		ok, err := hasKey(s, keep)
		require.NoError(t, err)
		assert.True(t, ok, keep)
		ok, err = hasKey(s, gone)
		require.NoError(t, err)
		assert.False(t, ok, gone)
	}

	_, err = root.CreateGroup("x")
	assert.ErrorIs(t, err, ErrConflict)
	hasOnly("x/.zarray", "x/.zgroup")

	_, err = Create(s, "y", WithShape(2))
	assert.ErrorIs(t, err, ErrConflict)
	hasOnly("y/.zgroup", "y/.zarray")

	// intermediate groups back out the same way
	_, err = root.CreateDataset("z/arr", WithShape(2))
	assert.ErrorIs(t, err, ErrConflict)
	hasOnly("z/.zarray", "z/.zgroup")
	ok, err := hasKey(s, "z/arr/.zarray")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReservedNames(t *testing.T) {
	root, err := OpenGroup(filepath.Join(t.TempDir(), "r.zarr"), ModeReadWriteCreate)
	require.NoError(t, err)
	for _, name := range []string{".zattrs", ".zgroup", "a/.zarray", ".zmetadata/b"} {
		_, err = root.CreateGroup(name)
		assert.ErrorIs(t, err, ErrInvalidPath, name)
		_, err = root.CreateDataset(name, WithShape(2))
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
	_, err = Create(root.Store(), "x/.zattrs", WithShape(2))
	assert.ErrorIs(t, err, ErrInvalidPath)

	// root attributes are untouched
	require.NoError(t, root.Attrs().Set("k", "v"))
	keys, err := root.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNewGroupIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	root, err := NewGroup(s)
	require.NoError(t, err)
	_, err = root.CreateGroup("kept")
	require.NoError(t, err)

	root, err = NewGroup(s)
	require.NoError(t, err)
	ok, err := root.Contains("kept")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, MemoryStoreType, root.Store().Type())
}

func TestReadOnlyGroup(t *testing.T) {
	s := NewMemoryStore()
	root, err := NewGroup(s)
	require.NoError(t, err)
	_, err = root.CreateGroup("g")
	require.NoError(t, err)
	_, err = root.CreateDataset("g/a", WithShape(2), WithDtype(i4))
	require.NoError(t, err)

	ro, err := OpenGroupStore(s, "", ModeRead)
	require.NoError(t, err)

	_, err = ro.CreateDataset("b", WithShape(2))
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = ro.RequireGroup("missing")
	assert.ErrorIs(t, err, ErrReadOnly)
	g, err := ro.RequireGroup("g")
	require.NoError(t, err)
	assert.True(t, g.ReadOnly())

	a, err := g.GetArray("a")
	require.NoError(t, err)
	assert.True(t, a.ReadOnly())
	assert.ErrorIs(t, a.Set(1), ErrReadOnly)
	assert.ErrorIs(t, ro.Attrs().Set("k", "v"), ErrReadOnly)
	assert.ErrorIs(t, a.Attrs().Delete("k"), ErrReadOnly)
}

func TestTreeAndInfo(t *testing.T) {
	root := memRoot(t)
	_, err := root.CreateGroup("a/b")
	require.NoError(t, err)
	_, err = root.CreateDataset("a/temps", WithShape(4, 4), WithDtype(i4))
	require.NoError(t, err)
	_, err = root.CreateDataset("z", WithShape(2))
	require.NoError(t, err)

	tree, err := root.Tree()
	require.NoError(t, err)
	assert.Equal(t, "/\n"+
		"├── a\n"+
		"│   ├── b\n"+
		"│   └── temps (4, 4) <i4\n"+
		"└── z (2,) <f8\n", tree)

	info := root.Info()
	assert.Contains(t, info, "Type               : zarr.Group")
	assert.Contains(t, info, "No. members        : 2")
	assert.Contains(t, info, "Arrays             : z")
	assert.Contains(t, info, "Groups             : a")
}

func TestGroupLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	root, err := NewGroup(nil, WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = root.CreateGroup("logged")
	require.NoError(t, err)
	_, err = root.CreateDataset("logged/arr", WithShape(2))
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("path", "logged")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "created group", entries[0].Message)
	assert.Equal(t, 1, logs.FilterMessage("created array").Len())
}
