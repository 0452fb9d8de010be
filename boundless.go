package zarr

import (
	"fmt"
	"math"
)

// AnyArity disables the arity check of Extent.Translate
const AnyArity = -1

// Extent is the length of every dimension of a boundless array. Logical index
// 0 sits at physical index Origin, so logical indices range over
// [-Origin, Size-Origin).
type Extent struct {
	Size int
}

// DefaultExtent is bounded by the largest signed 32-bit integer
var DefaultExtent = Extent{Size: math.MaxInt32}

func NewExtent(size int) (Extent, error) {
	if size < 2 {
		return Extent{}, fmt.Errorf("extent size must be at least 2, got %d", size)
	}
	return Extent{Size: size}, nil
}

// Origin is the physical index of logical index 0
func (e Extent) Origin() int {
	return e.Size / 2
}

// Translate shifts a logical selection into physical coordinates. With ndim
// other than AnyArity sel must be a Tuple of exactly ndim selectors.
//
// Slices must name both ends; the step is left as is. Masks and index lists
// are refused because they describe positions in the physical extent.
func (e Extent) Translate(sel Selector, ndim int) (Selector, error) {
	if ndim != AnyArity {
		t, ok := sel.(Tuple)
		if !ok {
			return nil, fmt.Errorf("%w: want a selection of %d dimensions, got %s", ErrShapeMismatch, ndim, FormatSelection(sel))
		}
		if len(t) != ndim {
			return nil, fmt.Errorf("%w: %d selectors for %d dimensions", ErrShapeMismatch, len(t), ndim)
		}
	}
	return e.shift(sel, e.Origin(), true)
}

// Untranslate shifts a physical selection back into logical coordinates.
// Untranslate(Translate(sel)) == sel for every selection Translate accepts.
func (e Extent) Untranslate(sel Selector) (Selector, error) {
	return e.shift(sel, -e.Origin(), false)
}

func (e Extent) shift(sel Selector, offset int, bounded bool) (Selector, error) {
	switch s := sel.(type) {
	case Tuple:
		out := make(Tuple, len(s))
		for i, el := range s {
			sh, err := e.shift(el, offset, bounded)
			if err != nil {
				return nil, err
			}
			out[i] = sh
		}
		return out, nil
	case Slice:
		if s.Start == nil || s.Stop == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnboundedRange, s)
		}
		start, stop := *s.Start+offset, *s.Stop+offset
		if bounded && (start < 0 || start > e.Size || stop < 0 || stop > e.Size) {
			return nil, fmt.Errorf("%w: range %s exceeds extent of %d", ErrOutOfBounds, s, e.Size)
		}
		return Slice{Start: &start, Stop: &stop, Step: s.Step}, nil
	case Index:
		i := int(s) + offset
		if bounded && (i < 0 || i >= e.Size) {
			return nil, fmt.Errorf("%w: index %d exceeds extent of %d", ErrOutOfBounds, int(s), e.Size)
		}
		return Index(i), nil
	case Mask:
		return nil, fmt.Errorf("%w: boolean mask on a boundless array", ErrUnsupportedSelection)
	case IndexList:
		return nil, fmt.Errorf("%w: integer list %s on a boundless array", ErrUnsupportedSelection, FormatSelection(s))
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelection, FormatSelection(sel))
	}
}

// BoundlessArray presents an Array whose dimensions all span one Extent as
// an index space centered on zero. Only touched chunks are stored.
type BoundlessArray struct {
	array  *Array
	extent Extent
}

var _ ArrayInfo = (*BoundlessArray)(nil)

// CreateBoundless allocates an ndim-dimensional boundless array at path.
// Chunks equal to the fill value are not stored unless WithWriteEmptyChunks(true)
// is given.
func CreateBoundless(store Store, path string, ndim int, opts ...Option) (*BoundlessArray, error) {
	if ndim < 0 {
		return nil, fmt.Errorf("%w: negative dimensionality %d", ErrShapeMismatch, ndim)
	}
	ext := DefaultExtent
	if c := newConfig(opts); c.extent != nil {
		ext = *c.extent
	}
	shape := make([]int, ndim)
	for i := range shape {
		shape[i] = ext.Size
	}

	o := append([]Option{WithWriteEmptyChunks(false)}, opts...)
	o = append(o, WithShape(shape...))
	a, err := Create(store, path, o...)
	if err != nil {
		return nil, err
	}
	return &BoundlessArray{array: a, extent: ext}, nil
}

// NewBoundless wraps an existing array. Every dimension of a must equal the
// extent size, DefaultExtent unless WithExtent is given.
func NewBoundless(a *Array, opts ...Option) (*BoundlessArray, error) {
	ext := DefaultExtent
	if c := newConfig(opts); c.extent != nil {
		ext = *c.extent
	}
	for _, s := range a.meta.Shape {
		if s != ext.Size {
			return nil, fmt.Errorf("%w: array shape %v does not span extent %d", ErrShapeMismatch, a.meta.Shape, ext.Size)
		}
	}
	return &BoundlessArray{array: a, extent: ext}, nil
}

// Array returns the underlying array, addressed in physical coordinates
func (b *BoundlessArray) Array() *Array { return b.array }

func (b *BoundlessArray) Extent() Extent { return b.extent }

// Get reads a logical selection. Every dimension needs a selector.
func (b *BoundlessArray) Get(sel ...Selector) (*NDArray, error) {
	phys, err := b.extent.Translate(Tuple(sel), b.array.NDim())
	if err != nil {
		return nil, err
	}
	return b.array.Get(phys.(Tuple)...)
}

// Set writes value to a logical selection. Every dimension needs a selector.
func (b *BoundlessArray) Set(value interface{}, sel ...Selector) error {
	phys, err := b.extent.Translate(Tuple(sel), b.array.NDim())
	if err != nil {
		return err
	}
	return b.array.Set(value, phys.(Tuple)...)
}

func (b *BoundlessArray) Store() Store                     { return b.array.Store() }
func (b *BoundlessArray) Path() string                     { return b.array.Path() }
func (b *BoundlessArray) Name() string                     { return b.array.Name() }
func (b *BoundlessArray) ReadOnly() bool                   { return b.array.ReadOnly() }
func (b *BoundlessArray) Dtype() Dtype                     { return b.array.Dtype() }
func (b *BoundlessArray) Compressor() *CompressionMeta     { return b.array.Compressor() }
func (b *BoundlessArray) DimensionSeparator() string       { return b.array.DimensionSeparator() }
func (b *BoundlessArray) FillValue() interface{}           { return b.array.FillValue() }
func (b *BoundlessArray) Order() string                    { return b.array.Order() }
func (b *BoundlessArray) Synchronizer() Synchronizer       { return b.array.Synchronizer() }
func (b *BoundlessArray) Filters() []Filter                { return b.array.Filters() }
func (b *BoundlessArray) Attrs() *Attrs                    { return b.array.Attrs() }
func (b *BoundlessArray) ItemSize() int                    { return b.array.ItemSize() }
func (b *BoundlessArray) NBytesStored() (int, error)       { return b.array.NBytesStored() }
func (b *BoundlessArray) NChunksInitialized() (int, error) { return b.array.NChunksInitialized() }
func (b *BoundlessArray) NDim() int                        { return b.array.NDim() }
func (b *BoundlessArray) IsView() bool                     { return b.array.IsView() }
func (b *BoundlessArray) Info() string                     { return b.array.Info() }
func (b *BoundlessArray) WriteEmptyChunks() bool           { return b.array.WriteEmptyChunks() }
func (b *BoundlessArray) Shape() []int                     { return b.array.Shape() }
func (b *BoundlessArray) Chunks() []int                    { return b.array.Chunks() }
func (b *BoundlessArray) NChunks() int                     { return b.array.NChunks() }
