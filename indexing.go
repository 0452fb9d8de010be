package zarr

import "fmt"

// dimIndexer enumerates the coordinates one selector picks along an axis
type dimIndexer interface {
	Len() int
	At(i int) int
	// Drop reports whether the axis is removed from the result shape
	Drop() bool
}

type intDimIndexer struct {
	coord int
}

func (ix intDimIndexer) Len() int   { return 1 }
func (ix intDimIndexer) At(int) int { return ix.coord }
func (ix intDimIndexer) Drop() bool { return true }

type sliceDimIndexer struct {
	start, step, n int
}

func (ix sliceDimIndexer) Len() int     { return ix.n }
func (ix sliceDimIndexer) At(i int) int { return ix.start + i*ix.step }
func (ix sliceDimIndexer) Drop() bool   { return false }

type listDimIndexer struct {
	coords []int
}

func (ix listDimIndexer) Len() int     { return len(ix.coords) }
func (ix listDimIndexer) At(i int) int { return ix.coords[i] }
func (ix listDimIndexer) Drop() bool   { return false }

func boundIndex(i, dimLen int) (int, error) {
	if i < 0 {
		i += dimLen
	}
	if i < 0 || i >= dimLen {
		return 0, fmt.Errorf("%w: index %d for axis of length %d", ErrOutOfBounds, i, dimLen)
	}
	return i, nil
}

func clampSliceBound(b *int, dflt, dimLen int) int {
	if b == nil {
		return dflt
	}
	v := *b
	if v < 0 {
		v += dimLen
		if v < 0 {
			v = 0
		}
	}
	if v > dimLen {
		v = dimLen
	}
	return v
}

func newDimIndexer(sel Selector, dimLen int) (dimIndexer, error) {
	switch s := sel.(type) {
	case Index:
		i, err := boundIndex(int(s), dimLen)
		if err != nil {
			return nil, err
		}
		return intDimIndexer{coord: i}, nil
	case Slice:
		step := s.Step
		if step == 0 {
			step = 1
		}
		if step < 0 {
			return nil, fmt.Errorf("%w: slice step must be positive, got %d", ErrInvalidSelection, step)
		}
		start := clampSliceBound(s.Start, 0, dimLen)
		stop := clampSliceBound(s.Stop, dimLen, dimLen)
		n := 0
		if stop > start {
			n = (stop-start-1)/step + 1
		}
		return sliceDimIndexer{start: start, step: step, n: n}, nil
	case Mask:
		if len(s) != dimLen {
			return nil, fmt.Errorf("%w: mask of length %d for axis of length %d", ErrShapeMismatch, len(s), dimLen)
		}
		coords := []int{}
		for i, set := range s {
			if set {
				coords = append(coords, i)
			}
		}
		return listDimIndexer{coords: coords}, nil
	case IndexList:
		coords := make([]int, len(s))
		for i, c := range s {
			b, err := boundIndex(c, dimLen)
			if err != nil {
				return nil, err
			}
			coords[i] = b
		}
		return listDimIndexer{coords: coords}, nil
	case Tuple:
		return nil, fmt.Errorf("%w: nested selection (%s) along a single axis", ErrUnsupportedSelection, FormatSelection(s))
	default:
		return nil, fmt.Errorf("%w: unexpected selection type %T", ErrInvalidSelection, sel)
	}
}

// normalizeSelection expands an Ellipsis and pads trailing axes with full
// slices so the result holds exactly ndim selectors
func normalizeSelection(sel Tuple, ndim int) (Tuple, error) {
	ellipses := 0
	for _, s := range sel {
		if s == Ellipsis {
			ellipses++
		}
	}
	if ellipses > 1 {
		return nil, fmt.Errorf("%w: a selection may only contain a single ellipsis", ErrInvalidSelection)
	}
	named := len(sel) - ellipses
	if named > ndim {
		return nil, fmt.Errorf("%w: %d selectors for %d dimensions", ErrShapeMismatch, named, ndim)
	}

	norm := make(Tuple, 0, ndim)
	for _, s := range sel {
		if s == Ellipsis {
			for i := 0; i < ndim-named; i++ {
				norm = append(norm, All())
			}
			continue
		}
		norm = append(norm, s)
	}
	for len(norm) < ndim {
		norm = append(norm, All())
	}
	return norm, nil
}

type chunkDimProjection struct {
	// Index of chunk.
	DimChunkIX int
	// Selection of items from chunk array.
	DimChunkSel []int
	// Selection of items in target (output) array.
	DimOutSel []int
}

// projectDim groups consecutive selected coordinates by the chunk holding them
func projectDim(ix dimIndexer, chunkLen int) []chunkDimProjection {
	var projs []chunkDimProjection
	for k := 0; k < ix.Len(); k++ {
		c := ix.At(k)
		ci, off := c/chunkLen, c%chunkLen
		if n := len(projs); n == 0 || projs[n-1].DimChunkIX != ci {
			projs = append(projs, chunkDimProjection{DimChunkIX: ci})
		}
		p := &projs[len(projs)-1]
		p.DimChunkSel = append(p.DimChunkSel, off)
		p.DimOutSel = append(p.DimOutSel, k)
	}
	return projs
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// Selection of items from chunk array, per axis.
	ChunkSelection [][]int
	// Selection of items in target (output) array, per axis.
	OutSelection [][]int
}

// each calls fn with the flat chunk and output element offsets of every
// selected item in the projection
func (p chunkProjection) each(chunkStrides, outStrides []int, fn func(chunkOff, outOff int)) {
	ndim := len(p.ChunkSelection)
	pos := make([]int, ndim)
	for {
		chunkOff, outOff := 0, 0
		for d := 0; d < ndim; d++ {
			chunkOff += p.ChunkSelection[d][pos[d]] * chunkStrides[d]
			outOff += p.OutSelection[d][pos[d]] * outStrides[d]
		}
		fn(chunkOff, outOff)

		d := ndim - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(p.ChunkSelection[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

// indexer resolves an orthogonal selection against an array's shape and chunk grid
type indexer struct {
	// shape of the selection result; dropped axes are omitted
	shape []int
	// per-axis output strides, zero for dropped axes
	outStrides []int
	dims       [][]chunkDimProjection
}

func newIndexer(meta *ArrayMeta, sel Tuple) (*indexer, error) {
	ndim := len(meta.Shape)
	norm, err := normalizeSelection(sel, ndim)
	if err != nil {
		return nil, err
	}

	ix := &indexer{dims: make([][]chunkDimProjection, ndim)}
	dimIxs := make([]dimIndexer, ndim)
	for d := 0; d < ndim; d++ {
		if dimIxs[d], err = newDimIndexer(norm[d], meta.Shape[d]); err != nil {
			return nil, err
		}
		if !dimIxs[d].Drop() {
			ix.shape = append(ix.shape, dimIxs[d].Len())
		}
		ix.dims[d] = projectDim(dimIxs[d], meta.Chunks[d])
	}

	strides := cStrides(ix.shape)
	ix.outStrides = make([]int, ndim)
	j := 0
	for d := 0; d < ndim; d++ {
		if dimIxs[d].Drop() {
			continue
		}
		ix.outStrides[d] = strides[j]
		j++
	}
	return ix, nil
}

// size is the number of elements the selection covers
func (ix *indexer) size() int {
	return product(ix.shape)
}

// projections calls fn once per chunk touched by the selection
func (ix *indexer) projections(fn func(chunkProjection) error) error {
	ndim := len(ix.dims)
	for _, d := range ix.dims {
		if len(d) == 0 {
			return nil
		}
	}

	pos := make([]int, ndim)
	for {
		p := chunkProjection{
			ChunkCoords:    make([]int, ndim),
			ChunkSelection: make([][]int, ndim),
			OutSelection:   make([][]int, ndim),
		}
		for d := 0; d < ndim; d++ {
			dp := ix.dims[d][pos[d]]
			p.ChunkCoords[d] = dp.DimChunkIX
			p.ChunkSelection[d] = dp.DimChunkSel
			p.OutSelection[d] = dp.DimOutSel
		}
		if err := fn(p); err != nil {
			return err
		}

		d := ndim - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(ix.dims[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// cStrides are row-major element strides for shape
func cStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = acc
		acc *= shape[d]
	}
	return strides
}

// fStrides are column-major element strides for shape
func fStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for d := 0; d < len(shape); d++ {
		strides[d] = acc
		acc *= shape[d]
	}
	return strides
}

func product(xs []int) int {
	n := 1
	for _, x := range xs {
		n *= x
	}
	return n
}
