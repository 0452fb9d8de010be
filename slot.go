package zarr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SlotKind classifies a position in a store hierarchy. A slot is always
// exactly one kind; markers are written once and never changed.
type SlotKind int

const (
	// SlotEmpty holds no array or group marker
	SlotEmpty SlotKind = iota
	// SlotArray holds a ".zarray" marker
	SlotArray
	// SlotGroup holds a ".zgroup" marker
	SlotGroup
)

func (k SlotKind) String() string {
	switch k {
	case SlotArray:
		return "array"
	case SlotGroup:
		return "group"
	default:
		return "empty"
	}
}

// slot is a named position in a store's key hierarchy. A slot exists once
// any key lives beneath it.
type slot struct {
	store Store
	path  Path
}

func (s slot) metaKey(mt MetaType) string {
	return s.path.Key(string(mt))
}

func (s slot) child(name string) slot {
	return slot{store: s.store, path: s.path.Join(name)}
}

func (s slot) exists() (bool, error) {
	keys, err := s.store.List(s.path.Prefix())
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// get returns the existing child slot name
func (s slot) get(name string) (slot, error) {
	ch := s.child(name)
	ok, err := ch.exists()
	if err != nil {
		return ch, err
	}
	if !ok {
		return ch, fmt.Errorf("%w: %q", ErrNotfound, ch.path.String())
	}
	return ch, nil
}

// create returns child slot name, which must not exist yet. The check is
// advisory; marking the slot is what claims it.
func (s slot) create(name string) (slot, error) {
	ch := s.child(name)
	ok, err := ch.exists()
	if err != nil {
		return ch, err
	}
	if ok {
		return ch, fmt.Errorf("%w: %q", ErrAlreadyExists, ch.path.String())
	}
	return ch, nil
}

// require returns child slot name whether or not it exists
func (s slot) require(name string) slot {
	return s.child(name)
}

// enumerate lists the names of the direct children of s in ascending order
func (s slot) enumerate() ([]string, error) {
	prefix := s.path.Prefix()
	keys, err := s.store.List(prefix)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		i := strings.Index(rest, PathSeparator)
		if i <= 0 {
			continue
		}
		name := rest[:i]
		// keys arrive sorted, so repeats of a child are adjacent
		if n := len(names); n > 0 && names[n-1] == name {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// kind reads the slot's marker. A slot carrying both markers violates
// exclusivity and is reported as ErrConflict.
func (s slot) kind() (SlotKind, error) {
	isArray, err := hasKey(s.store, s.metaKey(MTArray))
	if err != nil {
		return SlotEmpty, err
	}
	isGroup, err := hasKey(s.store, s.metaKey(MTGroup))
	if err != nil {
		return SlotEmpty, err
	}
	switch {
	case isArray && isGroup:
		return SlotEmpty, fmt.Errorf("%w: %q is marked as both array and group", ErrConflict, s.path.String())
	case isArray:
		return SlotArray, nil
	case isGroup:
		return SlotGroup, nil
	default:
		return SlotEmpty, nil
	}
}

func (s slot) putMeta(mt MetaType, v interface{}, exclusive bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if exclusive {
		return s.store.Create(s.metaKey(mt), bytes.NewReader(data))
	}
	return s.store.Put(s.metaKey(mt), bytes.NewReader(data))
}

func (s slot) readMeta(mt MetaType, v interface{}) error {
	data, err := readKey(s.store, s.metaKey(mt))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// requireGroup marks an empty slot as a group, accepts an existing group
// and refuses an array
func (s slot) requireGroup() error {
	k, err := s.kind()
	if err != nil {
		return err
	}
	switch k {
	case SlotArray:
		return fmt.Errorf("%w: %q is an array", ErrConflict, s.path.String())
	case SlotGroup:
		return nil
	}
	err = s.claim(MTGroup, GroupMeta{ZarrFormat: Version})
	if errors.Is(err, ErrAlreadyExists) {
		// lost a race with another creator of the same group
		return nil
	}
	return err
}

// markGroup claims an empty slot as a group and fails if anything marked it first
func (s slot) markGroup() error {
	k, err := s.kind()
	if err != nil {
		return err
	}
	switch k {
	case SlotArray:
		return fmt.Errorf("%w: %q is an array", ErrConflict, s.path.String())
	case SlotGroup:
		return fmt.Errorf("%w: %q", ErrAlreadyExists, s.path.String())
	}
	return s.claim(MTGroup, GroupMeta{ZarrFormat: Version})
}

// initGroup marks s as a group. With overwrite every key beneath s is
// removed first; without it an existing group marker is left as is.
func (s slot) initGroup(overwrite bool) error {
	if overwrite {
		if err := s.clear(); err != nil {
			return err
		}
		return s.putMeta(MTGroup, GroupMeta{ZarrFormat: Version}, false)
	}
	return s.requireGroup()
}

// markArray claims an empty slot for an array by writing its metadata
func (s slot) markArray(meta *ArrayMeta) error {
	k, err := s.kind()
	if err != nil {
		return err
	}
	switch k {
	case SlotGroup:
		return fmt.Errorf("%w: %q is a group", ErrConflict, s.path.String())
	case SlotArray:
		return fmt.Errorf("%w: %q", ErrAlreadyExists, s.path.String())
	}
	return s.claim(MTArray, meta)
}

// claim writes marker mt with the store's atomic Create. Array and group
// markers live under different keys, so Create alone cannot stop a group
// creator and an array creator from both winning the same slot; after the
// write the rival marker is checked and, if present, this marker is withdrawn.
// At most one kind survives a race; both creators may lose.
func (s slot) claim(mt MetaType, v interface{}) error {
	if err := s.putMeta(mt, v, true); err != nil {
		return err
	}
	rival := MTGroup
	if mt == MTGroup {
		rival = MTArray
	}
	contested, err := hasKey(s.store, s.metaKey(rival))
	if err != nil {
		return err
	}
	if contested {
		if err := s.store.Delete(s.metaKey(mt)); err != nil {
			return err
		}
		return fmt.Errorf("%w: %q was claimed as both array and group", ErrConflict, s.path.String())
	}
	return nil
}

// requireParents marks every ancestor of s, the root included, as a group.
// An array ancestor is ErrConflict. Ancestors marked before a failure stay
// marked.
func (s slot) requireParents() error {
	for i := range s.path {
		parent := slot{store: s.store, path: s.path[:i]}
		if err := parent.requireGroup(); err != nil {
			return err
		}
	}
	return nil
}

// clear deletes every key beneath s
func (s slot) clear() error {
	return removePrefix(s.store, s.path.Prefix())
}
