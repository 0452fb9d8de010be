package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MetaType is the reserved key name of a metadata document
type MetaType string

const (
	// MTAttributes holds user attributes of an array or group
	MTAttributes MetaType = ".zattrs"
	// MTArray marks an array and holds its ArrayMeta
	MTArray MetaType = ".zarray"
	// MTGroup marks a group and holds its GroupMeta
	MTGroup MetaType = ".zgroup"
	// MTMetadata holds the consolidated documents of a hierarchy
	MTMetadata MetaType = ".zmetadata"
)

// MetaTyper is a metadata document that knows the key it is stored under
type MetaTyper interface {
	MetaType() MetaType
}

// KeyMetaType reports which per-node document a store key names. The
// consolidated ".zmetadata" key is not a per-node document.
func KeyMetaType(key string) (MetaType, bool) {
	mt := MetaType(key[strings.LastIndex(key, PathSeparator)+1:])
	switch mt {
	case MTAttributes, MTArray, MTGroup:
		return mt, true
	}
	return mt, false
}

// isMetaKey reports whether the final component of key is reserved for metadata
func isMetaKey(key string) bool {
	name := key
	if i := strings.LastIndex(key, PathSeparator); i >= 0 {
		name = key[i+1:]
	}
	return strings.HasPrefix(name, ".z")
}

// decodeMetaDoc parses a per-node document of type mt
func decodeMetaDoc(mt MetaType, data []byte) (MetaTyper, error) {
	var doc MetaTyper
	switch mt {
	case MTArray:
		doc = &ArrayMeta{}
	case MTGroup:
		doc = &GroupMeta{}
	case MTAttributes:
		doc = &Attributes{}
	default:
		return nil, fmt.Errorf("%w: metadata document %q", ErrNotSupported, mt)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("reading %s: %w", mt, err)
	}
	switch d := doc.(type) {
	case *GroupMeta:
		return *d, nil
	case *Attributes:
		return *d, nil
	}
	return doc, nil
}

// Attributes are the user attributes stored in ".zattrs"
type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// GroupMeta is the ".zgroup" document. Its presence under a path is what
// makes that path a group.
type GroupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

func (GroupMeta) MetaType() MetaType { return MTGroup }

// ConsolidatedMetadata collects the documents of a hierarchy, keyed by their
// store key relative to the consolidated root
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	var raw struct {
		ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
		Metadata           map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(d, &raw); err != nil {
		return err
	}

	cm := ConsolidatedMetadata{
		ConsolidatedFormat: raw.ConsolidatedFormat,
		Metadata:           make(map[string]MetaTyper, len(raw.Metadata)),
	}
	for key, data := range raw.Metadata {
		mt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key %q", key)
		}
		doc, err := decodeMetaDoc(mt, data)
		if err != nil {
			return fmt.Errorf("%q: %w", key, err)
		}
		cm.Metadata[key] = doc
	}
	*m = cm
	return nil
}

// ConsolidateMetadata gathers every array, group and attribute document
// beneath path into a single ".zmetadata" key at path
func ConsolidateMetadata(store Store, path string) (*ConsolidatedMetadata, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	keys, err := store.List(p.Prefix())
	if err != nil {
		return nil, err
	}

	cm := &ConsolidatedMetadata{
		ConsolidatedFormat: 1,
		Metadata:           map[string]MetaTyper{},
	}
	for _, key := range keys {
		mt, ok := KeyMetaType(key)
		if !ok {
			continue
		}
		data, err := readKey(store, key)
		if err != nil {
			return nil, err
		}
		doc, err := decodeMetaDoc(mt, data)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		cm.Metadata[strings.TrimPrefix(key, p.Prefix())] = doc
	}

	data, err := json.Marshal(cm)
	if err != nil {
		return nil, err
	}
	if err := store.Put(p.Key(string(MTMetadata)), bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cm, nil
}

// ReadConsolidated loads the ".zmetadata" document stored at path
func ReadConsolidated(store Store, path string) (*ConsolidatedMetadata, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	data, err := readKey(store, p.Key(string(MTMetadata)))
	if err != nil {
		return nil, err
	}
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal(data, cm); err != nil {
		return nil, err
	}
	return cm, nil
}

// ArrayMeta is the ".zarray" document describing an array's layout
type ArrayMeta struct {
	ZarrFormat int `json:"zarr_format"`
	// length of each dimension
	Shape []int `json:"shape"`
	// length of each dimension of every chunk
	Chunks []int          `json:"chunks"`
	Dtype  StructuredType `json:"dtype"`
	// nil stores chunks uncompressed
	Compressor *CompressionMeta `json:"compressor"`
	// value of never-written elements: a number, bool, nil, or one of the
	// FillValue strings for non-finite floats
	FillValue interface{} `json:"fill_value"`
	// "C" (row-major) or "F" (column-major) element order inside a chunk
	Order   string   `json:"order"`
	Filters []Filter `json:"filters"`
	// "." or "/" between chunk indices in chunk keys; empty means "."
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

// separator returns the chunk key separator, applying the "." default
func (a *ArrayMeta) separator() string {
	if a.DimensionSeparator == "" {
		return "."
	}
	return a.DimensionSeparator
}

// validate checks that the array layout is one this package understands.
// Filters are checked when chunks are accessed.
func (a *ArrayMeta) validate() error {
	if len(a.Shape) != len(a.Chunks) {
		return fmt.Errorf("%w: shape %v and chunks %v differ in dimensionality", ErrShapeMismatch, a.Shape, a.Chunks)
	}
	for i := range a.Shape {
		if a.Shape[i] < 0 {
			return fmt.Errorf("invalid shape %v: negative length", a.Shape)
		}
		if a.Chunks[i] <= 0 {
			return fmt.Errorf("invalid chunks %v: chunk lengths must be positive", a.Chunks)
		}
	}
	if !a.Dtype.IsBasic() {
		return fmt.Errorf("%w: structured dtype %q", ErrNotSupported, a.Dtype.Human())
	}
	if _, err := a.Dtype.Dtype.goType(); err != nil {
		return err
	}
	switch a.Order {
	case "C", "F":
	default:
		return fmt.Errorf("invalid order %q: want \"C\" or \"F\"", a.Order)
	}
	switch a.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("invalid dimension separator %q", a.DimensionSeparator)
	}
	if a.Compressor != nil {
		if _, err := compressionFormat(a.Compressor.ID); err != nil {
			return err
		}
	}
	return nil
}

type Filter struct {
	ID     string `json:"id"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

// JSON spellings of non-finite float fill values
const (
	FillValueNaN              = "NaN"
	FillValueInfinity         = "Infinity"
	FillValueNegativeInfinity = "-Infinity"
)
