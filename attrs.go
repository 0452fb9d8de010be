package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Attrs reads and writes the user attributes (".zattrs") of a group or array.
// Every call goes to the store; concurrent writers of the same attributes
// document are not serialized.
type Attrs struct {
	store    Store
	key      string
	readOnly bool
}

func newAttrs(s slot, readOnly bool) *Attrs {
	return &Attrs{store: s.store, key: s.metaKey(MTAttributes), readOnly: readOnly}
}

// AsMap returns every attribute. A node without attributes yields an empty map.
func (a *Attrs) AsMap() (Attributes, error) {
	data, err := readKey(a.store, a.key)
	if errors.Is(err, ErrNotfound) {
		return Attributes{}, nil
	} else if err != nil {
		return nil, err
	}
	attrs := Attributes{}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("reading %q: %w", a.key, err)
	}
	return attrs, nil
}

func (a *Attrs) Keys() ([]string, error) {
	attrs, err := a.AsMap()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *Attrs) Get(key string) (interface{}, error) {
	attrs, err := a.AsMap()
	if err != nil {
		return nil, err
	}
	v, ok := attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %q", ErrNotfound, key)
	}
	return v, nil
}

func (a *Attrs) Set(key string, v interface{}) error {
	return a.Update(Attributes{key: v})
}

// Update merges attrs into the stored attributes
func (a *Attrs) Update(attrs Attributes) error {
	if a.readOnly {
		return fmt.Errorf("%w: cannot write attributes %q", ErrReadOnly, a.key)
	}
	cur, err := a.AsMap()
	if err != nil {
		return err
	}
	for k, v := range attrs {
		cur[k] = v
	}
	return a.write(cur)
}

func (a *Attrs) Delete(key string) error {
	if a.readOnly {
		return fmt.Errorf("%w: cannot write attributes %q", ErrReadOnly, a.key)
	}
	cur, err := a.AsMap()
	if err != nil {
		return err
	}
	if _, ok := cur[key]; !ok {
		return fmt.Errorf("%w: attribute %q", ErrNotfound, key)
	}
	delete(cur, key)
	return a.write(cur)
}

func (a *Attrs) write(attrs Attributes) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return a.store.Put(a.key, bytes.NewReader(data))
}
