package zarr

import "errors"

var (
	// ErrNotfound is returned when a key, path or slot does not exist
	ErrNotfound = errors.New("not found")
	// ErrAlreadyExists is returned by strict creation when the target is occupied
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when a slot holds the wrong kind of node, for
	// example when a path descends through an array
	ErrConflict = errors.New("conflict")
	// ErrInvalidPath is returned for paths with no non-empty components
	ErrInvalidPath = errors.New("invalid path")
	// ErrNotSupported is returned for operations that are deliberately disallowed
	ErrNotSupported = errors.New("not supported")
	// ErrReadOnly is returned when mutating a read-only group or array
	ErrReadOnly = errors.New("read only")
	// ErrInvalidMode is returned for unknown persistence modes
	ErrInvalidMode = errors.New("invalid persistence mode")
)

// selection errors
var (
	ErrShapeMismatch        = errors.New("selection does not match array dimensionality")
	ErrUnboundedRange       = errors.New("range must have an explicit start and stop")
	ErrUnsupportedSelection = errors.New("unsupported selection")
	ErrInvalidSelection     = errors.New("invalid selection")
	ErrOutOfBounds          = errors.New("index out of bounds")
)
