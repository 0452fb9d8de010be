package zarr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSelection(t *testing.T) {
	norm, err := normalizeSelection(Tuple{Index(1)}, 3)
	require.NoError(t, err)
	assert.Equal(t, Tuple{Index(1), All(), All()}, norm)

	norm, err = normalizeSelection(Tuple{Ellipsis, Index(2)}, 3)
	require.NoError(t, err)
	assert.Equal(t, Tuple{All(), All(), Index(2)}, norm)

	norm, err = normalizeSelection(Tuple{Index(0), Ellipsis, Index(2)}, 2)
	require.NoError(t, err)
	assert.Equal(t, Tuple{Index(0), Index(2)}, norm)

	_, err = normalizeSelection(Tuple{Ellipsis, Ellipsis}, 2)
	assert.ErrorIs(t, err, ErrInvalidSelection)
	_, err = normalizeSelection(Tuple{Index(0), Index(0)}, 1)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDimIndexers(t *testing.T) {
	coords := func(ix dimIndexer) []int {
		out := []int{}
		for i := 0; i < ix.Len(); i++ {
			out = append(out, ix.At(i))
		}
		return out
	}

	cases := []struct {
		sel    Selector
		expect []int
		drop   bool
	}{
		{Index(3), []int{3}, true},
		{Index(-1), []int{9}, true},
		{All(), []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, false},
		{Range(2, 5), []int{2, 3, 4}, false},
		{Range(-3, 100), []int{7, 8, 9}, false},
		{RangeStep(1, 10, 4), []int{1, 5, 9}, false},
		{Range(6, 2), []int{}, false},
		{From(8), []int{8, 9}, false},
		{To(-8), []int{0, 1}, false},
		{Mask{true, false, false, true, false, false, false, false, false, true}, []int{0, 3, 9}, false},
		{IndexList{4, -1, 4}, []int{4, 9, 4}, false},
	}
	for _, c := range cases {
		ix, err := newDimIndexer(c.sel, 10)
		require.NoError(t, err, FormatSelection(c.sel))
		assert.Equal(t, c.expect, coords(ix), FormatSelection(c.sel))
		assert.Equal(t, c.drop, ix.Drop(), FormatSelection(c.sel))
	}

	errs := []struct {
		sel Selector
		err error
	}{
		{Index(10), ErrOutOfBounds},
		{Index(-11), ErrOutOfBounds},
		{IndexList{0, 10}, ErrOutOfBounds},
		{RangeStep(0, 5, -1), ErrInvalidSelection},
		{Mask{true}, ErrShapeMismatch},
		{Tuple{Index(0)}, ErrUnsupportedSelection},
		{nil, ErrInvalidSelection},
	}
	for _, c := range errs {
		_, err := newDimIndexer(c.sel, 10)
		assert.ErrorIs(t, err, c.err, FormatSelection(c.sel))
	}
}

func TestProjectDim(t *testing.T) {
	ix, err := newDimIndexer(Range(3, 9), 10)
	require.NoError(t, err)
	assert.Equal(t, []chunkDimProjection{
		{DimChunkIX: 0, DimChunkSel: []int{3}, DimOutSel: []int{0}},
		{DimChunkIX: 1, DimChunkSel: []int{0, 1, 2, 3}, DimOutSel: []int{1, 2, 3, 4}},
		{DimChunkIX: 2, DimChunkSel: []int{0}, DimOutSel: []int{5}},
	}, projectDim(ix, 4))
}

func TestIndexerProjections(t *testing.T) {
	meta := &ArrayMeta{Shape: []int{6, 6}, Chunks: []int{4, 4}}
	ix, err := newIndexer(meta, Tuple{Range(2, 5), Index(5)})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ix.shape)
	assert.Equal(t, 3, ix.size())
	assert.Equal(t, []int{1, 0}, ix.outStrides)

	var visited [][]int
	require.NoError(t, ix.projections(func(p chunkProjection) error {
		visited = append(visited, p.ChunkCoords)
		return nil
	}))
	assert.Equal(t, [][]int{{0, 1}, {1, 1}}, visited)

	empty, err := newIndexer(meta, Tuple{Range(3, 3)})
	require.NoError(t, err)
	calls := 0
	require.NoError(t, empty.projections(func(chunkProjection) error {
		calls++
		return nil
	}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, empty.size())
}

func TestChunkProjectionEach(t *testing.T) {
	p := chunkProjection{
		ChunkSelection: [][]int{{1, 2}, {0, 3}},
		OutSelection:   [][]int{{0, 1}, {0, 1}},
	}
	var pairs [][2]int
	p.each(cStrides([]int{4, 4}), cStrides([]int{2, 2}), func(chunkOff, outOff int) {
		pairs = append(pairs, [2]int{chunkOff, outOff})
	})
	assert.Equal(t, [][2]int{{4, 0}, {7, 1}, {8, 2}, {11, 3}}, pairs)

	assert.Equal(t, []int{1, 4}, fStrides([]int{4, 3}))
	assert.Equal(t, []int{3, 1}, cStrides([]int{4, 3}))
}

func TestFormatSelection(t *testing.T) {
	assert.Equal(t, "0, -1000:-990, ...", FormatSelection(Tuple{Index(0), Range(-1000, -990), Ellipsis}))
	assert.Equal(t, ":, 1::2, (3, :5)", FormatSelection(Tuple{All(), Slice{Start: intp(1), Step: 2}, Tuple{Index(3), To(5)}}))
	assert.Equal(t, "[true false]", FormatSelection(Mask{true, false}))
}

func intp(i int) *int { return &i }
