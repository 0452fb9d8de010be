package zarr

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
)

const (
	// Version is the zarr storage specification version this library writes
	Version = 2
)

// ArrayInfo is the introspection surface shared by arrays and the boundless
// arrays wrapping them. None of it depends on how a selection is interpreted.
type ArrayInfo interface {
	Store() Store
	Path() string
	Name() string
	ReadOnly() bool
	Dtype() Dtype
	Compressor() *CompressionMeta
	DimensionSeparator() string
	FillValue() interface{}
	Order() string
	Synchronizer() Synchronizer
	Filters() []Filter
	Attrs() *Attrs
	ItemSize() int
	NBytesStored() (int, error)
	NChunksInitialized() (int, error)
	NDim() int
	IsView() bool
	Info() string
	WriteEmptyChunks() bool
	Shape() []int
	Chunks() []int
	NChunks() int
}

// Array is a fixed-shape chunked array stored in a Store. Chunks are allocated
// lazily: a chunk that was never written reads back as the fill value and
// occupies no storage.
type Array struct {
	path     Path
	store    Store
	readOnly bool
	meta     *ArrayMeta

	dtype            Dtype
	fill             []byte
	sync             Synchronizer
	writeEmptyChunks bool
	log              *zap.Logger
}

var (
	_ ArrayInfo = (*Array)(nil)
	_ Node      = (*Array)(nil)
)

// Create allocates a new array at path, failing with ErrAlreadyExists if the
// path is already an array and ErrConflict if it is a group. A nil store
// creates the array in a fresh MemoryStore.
func Create(store Store, path string, opts ...Option) (*Array, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	return createArray(slot{store: store, path: p}, newConfig(opts), true)
}

// Empty creates an array without a fill value; unwritten elements read as zero
func Empty(store Store, path string, opts ...Option) (*Array, error) {
	return Create(store, path, append(opts, WithFillValue(nil))...)
}

func Zeros(store Store, path string, opts ...Option) (*Array, error) {
	return Create(store, path, append(opts, WithFillValue(0))...)
}

func Ones(store Store, path string, opts ...Option) (*Array, error) {
	return Create(store, path, append(opts, WithFillValue(1))...)
}

// FromData creates an array holding data, a typed slice or *NDArray. Shape and
// dtype are inferred from data unless given as options.
func FromData(store Store, path string, data interface{}, opts ...Option) (*Array, error) {
	return Create(store, path, append([]Option{WithData(data)}, opts...)...)
}

// OpenArray opens or creates the array at path following mode
func OpenArray(store Store, path string, mode PersistenceMode, opts ...Option) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	c := newConfig(opts)
	s := slot{store: store, path: p}

	k, err := s.kind()
	if err != nil {
		return nil, err
	}
	if k == SlotGroup {
		return nil, fmt.Errorf("%w: %q contains a group", ErrConflict, p.String())
	}
	exists := k == SlotArray

	switch mode {
	case ModeRead, ModeReadWrite:
		if !exists {
			return nil, fmt.Errorf("%w: array %q", ErrNotfound, p.String())
		}
		if mode == ModeRead {
			c.readOnly = true
		}
		return openArraySlot(s, c)
	case ModeReadWriteCreate:
		if exists {
			return openArraySlot(s, c)
		}
		return createArray(s, c, true)
	case ModeWrite:
		return createArray(s, c, false)
	case ModeWriteFail, ModeCreate:
		if exists {
			return nil, fmt.Errorf("%w: array %q", ErrAlreadyExists, p.String())
		}
		return createArray(s, c, true)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func newArrayMeta(c *config) (*ArrayMeta, error) {
	shape := c.shape
	var dt Dtype
	if c.dtype != nil {
		dt = *c.dtype
	} else {
		dt = DefaultDtype
	}

	if c.data != nil {
		data := c.data
		if nd, ok := data.(*NDArray); ok {
			data = nd.Data
			if c.dataShape == nil {
				c.dataShape = nd.Shape
			}
		}
		rv := reflect.ValueOf(data)
		if rv.Kind() != reflect.Slice {
			return nil, fmt.Errorf("data must be a slice or *NDArray, got %T", c.data)
		}
		if c.dtype == nil {
			inferred, err := DtypeOf(rv.Type().Elem())
			if err != nil {
				return nil, err
			}
			dt = inferred
		}
		if c.dataShape == nil {
			c.dataShape = []int{rv.Len()}
		}
		if product(c.dataShape) != rv.Len() {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, rv.Len(), c.dataShape)
		}
		if shape == nil {
			shape = c.dataShape
		}
	}
	if shape == nil {
		return nil, fmt.Errorf("array shape is required")
	}

	chunks := c.chunks
	if chunks == nil {
		chunks = GuessChunks(shape, dt.ItemSize())
	}

	compressor := c.compressor
	if !c.compressorSet {
		dflt := DefaultCompressor
		compressor = &dflt
	}

	meta := &ArrayMeta{
		ZarrFormat:         Version,
		Shape:              append([]int{}, shape...),
		Chunks:             append([]int{}, chunks...),
		Dtype:              StructuredType{Dtype: dt},
		Compressor:         compressor,
		FillValue:          jsonFillValue(c.fillValue),
		Order:              c.order,
		Filters:            c.filters,
		DimensionSeparator: c.dimSeparator,
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if _, err := dt.fillBytes(meta.FillValue); err != nil {
		return nil, err
	}
	return meta, nil
}

func createArray(s slot, c *config, exclusive bool) (*Array, error) {
	meta, err := newArrayMeta(c)
	if err != nil {
		return nil, err
	}
	if err := s.requireParents(); err != nil {
		return nil, err
	}
	if exclusive {
		if err := s.markArray(meta); err != nil {
			return nil, err
		}
	} else {
		if err := s.clear(); err != nil {
			return nil, err
		}
		if err := s.putMeta(MTArray, meta, false); err != nil {
			return nil, err
		}
	}

	a, err := newArray(s, meta, c)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("created array", zap.String("path", s.path.String()), zap.Ints("shape", meta.Shape), zap.Ints("chunks", meta.Chunks))

	if c.data != nil {
		if err := a.set(c.data, nil); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func openArraySlot(s slot, c *config) (*Array, error) {
	meta := &ArrayMeta{}
	if err := s.readMeta(MTArray, meta); err != nil {
		return nil, err
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("array %q: %w", s.path.String(), err)
	}
	return newArray(s, meta, c)
}

func newArray(s slot, meta *ArrayMeta, c *config) (*Array, error) {
	dt := meta.Dtype.Dtype
	fill, err := dt.fillBytes(meta.FillValue)
	if err != nil {
		return nil, err
	}
	writeEmpty := true
	if c.writeEmptyChunks != nil {
		writeEmpty = *c.writeEmptyChunks
	}
	return &Array{
		path:             s.path,
		store:            s.store,
		readOnly:         c.readOnly,
		meta:             meta,
		dtype:            dt,
		fill:             fill,
		sync:             c.synchronizer,
		writeEmptyChunks: writeEmpty,
		log:              c.logger,
	}, nil
}

func (a *Array) slot() slot {
	return slot{store: a.store, path: a.path}
}

// Get reads the elements picked by sel. Missing trailing selectors select
// whole axes.
func (a *Array) Get(sel ...Selector) (*NDArray, error) {
	if err := a.checkCodec(); err != nil {
		return nil, err
	}
	ix, err := newIndexer(a.meta, Tuple(sel))
	if err != nil {
		return nil, err
	}

	is := a.dtype.ItemSize()
	n := ix.size()
	out := make([]byte, n*is)
	chunkStrides := a.chunkStrides()

	err = ix.projections(func(p chunkProjection) error {
		chunk, ok, err := a.readChunk(a.chunkKey(p.ChunkCoords))
		if err != nil {
			return err
		}
		if !ok {
			p.each(chunkStrides, ix.outStrides, func(_, o int) {
				copy(out[o*is:(o+1)*is], a.fill)
			})
			return nil
		}
		p.each(chunkStrides, ix.outStrides, func(c, o int) {
			copy(out[o*is:(o+1)*is], chunk[c*is:(c+1)*is])
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := a.dtype.decodeValues(out, n)
	if err != nil {
		return nil, err
	}
	shape := ix.shape
	if shape == nil {
		shape = []int{}
	}
	return &NDArray{Shape: shape, Dtype: a.dtype, Data: data}, nil
}

// Set writes value to the elements picked by sel. value is a scalar, which is
// broadcast to every element, or a slice / *NDArray with one value per element.
func (a *Array) Set(value interface{}, sel ...Selector) error {
	if a.readOnly {
		return fmt.Errorf("%w: array %q", ErrReadOnly, a.path.String())
	}
	return a.set(value, Tuple(sel))
}

func (a *Array) set(value interface{}, sel Tuple) error {
	if err := a.checkCodec(); err != nil {
		return err
	}
	ix, err := newIndexer(a.meta, sel)
	if err != nil {
		return err
	}
	raw, broadcast, err := a.dtype.encodeValues(value, ix.size())
	if err != nil {
		return err
	}

	is := a.dtype.ItemSize()
	chunkStrides := a.chunkStrides()
	return ix.projections(func(p chunkProjection) error {
		key := a.chunkKey(p.ChunkCoords)
		return a.withChunkLock(key, func() error {
			chunk, ok, err := a.readChunk(key)
			if err != nil {
				return err
			}
			if !ok {
				chunk = bytes.Repeat(a.fill, product(a.meta.Chunks))
			}
			p.each(chunkStrides, ix.outStrides, func(c, o int) {
				if broadcast {
					copy(chunk[c*is:(c+1)*is], raw)
				} else {
					copy(chunk[c*is:(c+1)*is], raw[o*is:(o+1)*is])
				}
			})
			return a.writeChunk(key, chunk)
		})
	})
}

func (a *Array) withChunkLock(key string, fn func() error) error {
	if a.sync == nil {
		return fn()
	}
	unlock, err := a.sync.Lock(key)
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		unlock()
		return err
	}
	return unlock()
}

func (a *Array) checkCodec() error {
	if len(a.meta.Filters) > 0 {
		return fmt.Errorf("%w: array %q uses filters", ErrNotSupported, a.path.String())
	}
	return nil
}

func (a *Array) chunkStrides() []int {
	if a.meta.Order == "F" {
		return fStrides(a.meta.Chunks)
	}
	return cStrides(a.meta.Chunks)
}

func (a *Array) chunkKey(coords []int) string {
	return a.path.Key(ChunkKey(coords, a.meta.separator()))
}

func (a *Array) chunkSize() int {
	return product(a.meta.Chunks) * a.dtype.ItemSize()
}

// readChunk returns the raw bytes of a stored chunk. ok is false for chunks
// that were never written.
func (a *Array) readChunk(key string) (raw []byte, ok bool, err error) {
	f, err := a.store.Get(key)
	if errors.Is(err, ErrNotfound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	raw, err = a.meta.Compressor.decode(f, a.chunkSize())
	if err != nil {
		return nil, false, fmt.Errorf("reading chunk %q: %w", key, err)
	}
	return raw, true, nil
}

func (a *Array) writeChunk(key string, raw []byte) error {
	if !a.writeEmptyChunks && a.isFillChunk(raw) {
		a.log.Debug("dropping empty chunk", zap.String("key", key))
		return a.store.Delete(key)
	}
	enc, err := a.meta.Compressor.encode(raw)
	if err != nil {
		return fmt.Errorf("encoding chunk %q: %w", key, err)
	}
	return a.store.Put(key, bytes.NewReader(enc))
}

func (a *Array) isFillChunk(raw []byte) bool {
	is := len(a.fill)
	for off := 0; off < len(raw); off += is {
		if !bytes.Equal(raw[off:off+is], a.fill) {
			return false
		}
	}
	return true
}

func (a *Array) Kind() SlotKind { return SlotArray }

func (a *Array) Store() Store { return a.store }

func (a *Array) Path() string { return a.path.String() }

// Name is the absolute name of the array within its store, e.g. "/foo/bar"
func (a *Array) Name() string { return "/" + a.path.String() }

// Basename is the final component of the array's path
func (a *Array) Basename() string { return a.path.Name() }

func (a *Array) ReadOnly() bool { return a.readOnly }

func (a *Array) Meta() ArrayMeta { return *a.meta }

func (a *Array) Dtype() Dtype { return a.dtype }

func (a *Array) Compressor() *CompressionMeta { return a.meta.Compressor }

func (a *Array) DimensionSeparator() string { return a.meta.separator() }

func (a *Array) FillValue() interface{} { return a.meta.FillValue }

func (a *Array) Order() string { return a.meta.Order }

func (a *Array) Synchronizer() Synchronizer { return a.sync }

func (a *Array) Filters() []Filter { return a.meta.Filters }

func (a *Array) Attrs() *Attrs { return newAttrs(a.slot(), a.readOnly) }

func (a *Array) ItemSize() int { return a.dtype.ItemSize() }

func (a *Array) NDim() int { return len(a.meta.Shape) }

// IsView is always false; selections always copy
func (a *Array) IsView() bool { return false }

func (a *Array) WriteEmptyChunks() bool { return a.writeEmptyChunks }

func (a *Array) Shape() []int { return append([]int{}, a.meta.Shape...) }

func (a *Array) Chunks() []int { return append([]int{}, a.meta.Chunks...) }

// NChunks is the number of chunks in the full chunk grid
func (a *Array) NChunks() int {
	return saturatingProduct(GridShape(a.meta.Shape, a.meta.Chunks))
}

// NBytes is the logical size of the array in bytes
func (a *Array) NBytes() int {
	return saturatingProduct(append(a.Shape(), a.ItemSize()))
}

// NChunksInitialized counts the chunks currently held in the store
func (a *Array) NChunksInitialized() (int, error) {
	keys, err := a.store.List(a.path.Prefix())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if !isMetaKey(k) {
			n++
		}
	}
	return n, nil
}

// NBytesStored totals the stored size of the array's metadata and chunks
func (a *Array) NBytesStored() (int, error) {
	keys, err := a.store.List(a.path.Prefix())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		data, err := readKey(a.store, k)
		if err != nil {
			return 0, err
		}
		n += len(data)
	}
	return n, nil
}

func (a *Array) Info() string {
	b := &strings.Builder{}
	row := func(k string, v interface{}) { fmt.Fprintf(b, "%-19s: %v\n", k, v) }
	row("Name", a.Name())
	row("Type", "zarr.Array")
	row("Data type", a.dtype)
	row("Shape", formatShape(a.meta.Shape))
	row("Chunk shape", formatShape(a.meta.Chunks))
	row("Order", a.meta.Order)
	row("Read-only", a.readOnly)
	if c := a.meta.Compressor; c != nil {
		row("Compressor", fmt.Sprintf("%s(level=%d)", c.ID, c.Clevel))
	} else {
		row("Compressor", "None")
	}
	row("Store type", a.store.Type())
	row("No. bytes", a.NBytes())
	if n, err := a.NChunksInitialized(); err == nil {
		row("Chunks initialized", fmt.Sprintf("%d/%d", n, a.NChunks()))
	}
	return b.String()
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, s := range shape {
		parts[i] = fmt.Sprint(s)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

type PersistenceMode string

const (
	// Persistence mode:
	// 'r' means read only (must exist);
	ModeRead PersistenceMode = "r"
	// 'r+' means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// 'a' means read/write (create if doesn't exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// 'w' means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// 'w-' means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
	// 'x' is an alias of 'w-'
	ModeCreate PersistenceMode = "x"
)
