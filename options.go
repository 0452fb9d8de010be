package zarr

import (
	"go.uber.org/zap"
)

// Option customizes how groups and arrays are opened or created. Options that
// describe array layout are ignored by group operations.
type Option func(*config)

type config struct {
	readOnly bool
	logger   *zap.Logger

	shape            []int
	chunks           []int
	dtype            *Dtype
	compressor       *CompressionMeta
	compressorSet    bool
	fillValue        interface{}
	order            string
	filters          []Filter
	dimSeparator     string
	synchronizer     Synchronizer
	writeEmptyChunks *bool
	data             interface{}
	dataShape        []int
	extent           *Extent
}

func newConfig(opts []Option) *config {
	c := &config{
		logger: zap.NewNop(),
		order:  "C",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithReadOnly opens nodes so every mutation fails with ErrReadOnly
func WithReadOnly(readOnly bool) Option {
	return func(c *config) {
		c.readOnly = readOnly
	}
}

// WithLogger specifies a logger for hierarchy and chunk operations.
// If not provided, a no-op logger is used.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithShape sets the shape of a new array. WithShape() with no dimensions
// creates a zero-dimensional array.
func WithShape(shape ...int) Option {
	return func(c *config) {
		c.shape = append([]int{}, shape...)
	}
}

// WithChunks sets the chunk shape of a new array. If not provided a chunk
// shape is guessed from the array shape and item size.
func WithChunks(chunks ...int) Option {
	return func(c *config) {
		c.chunks = append([]int(nil), chunks...)
	}
}

// WithDtype sets the element type of a new array, defaulting to DefaultDtype
func WithDtype(dt Dtype) Option {
	return func(c *config) {
		c.dtype = &dt
	}
}

// WithCompressor selects the chunk codec ("zstd" or "gzip")
func WithCompressor(id string, level int) Option {
	return func(c *config) {
		c.compressor = &CompressionMeta{ID: id, Clevel: level}
		c.compressorSet = true
	}
}

// WithNoCompressor stores chunks uncompressed
func WithNoCompressor() Option {
	return func(c *config) {
		c.compressor = nil
		c.compressorSet = true
	}
}

// WithFillValue sets the value read from never-written positions
func WithFillValue(v interface{}) Option {
	return func(c *config) {
		c.fillValue = v
	}
}

// WithOrder sets the element layout within chunks, "C" or "F"
func WithOrder(order string) Option {
	return func(c *config) {
		c.order = order
	}
}

// WithFilters records filter codecs in array metadata. Arrays with filters
// can be created and inspected but not read or written.
func WithFilters(filters ...Filter) Option {
	return func(c *config) {
		c.filters = append([]Filter(nil), filters...)
	}
}

// WithDimensionSeparator sets the chunk key separator, "." or "/"
func WithDimensionSeparator(sep string) Option {
	return func(c *config) {
		c.dimSeparator = sep
	}
}

// WithSynchronizer serializes chunk writes through s
func WithSynchronizer(s Synchronizer) Option {
	return func(c *config) {
		c.synchronizer = s
	}
}

// WithWriteEmptyChunks controls whether chunks equal to the fill value are
// stored (true) or deleted (false). Arrays default to true, boundless arrays
// to false.
func WithWriteEmptyChunks(write bool) Option {
	return func(c *config) {
		c.writeEmptyChunks = &write
	}
}

// WithData initializes a new array from data, a typed slice or *NDArray.
// Shape defaults to the NDArray shape, or the slice length when omitted.
func WithData(data interface{}, shape ...int) Option {
	return func(c *config) {
		c.data = data
		c.dataShape = append([]int(nil), shape...)
	}
}

// WithExtent sets the per-dimension extent of a boundless array
func WithExtent(e Extent) Option {
	return func(c *config) {
		c.extent = &e
	}
}
