package zarr

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Node is a member of a hierarchy, either an *Array or a *Group
type Node interface {
	Kind() SlotKind
	Store() Store
	Path() string
	Name() string
	Basename() string
	ReadOnly() bool
	Attrs() *Attrs
}

// Member pairs a child name with its node
type Member struct {
	Name string
	Node Node
}

// Group is a view of a group-marked slot. It holds no state of its own, so
// handles to the same path are interchangeable.
type Group struct {
	store    Store
	path     Path
	readOnly bool
	log      *zap.Logger
}

var _ Node = (*Group)(nil)

// NewGroup returns the root group of store, marking the root as a group if
// it is not one already. A nil store creates a fresh MemoryStore.
func NewGroup(store Store, opts ...Option) (*Group, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	c := newConfig(opts)
	s := slot{store: store}
	if err := s.requireGroup(); err != nil {
		return nil, err
	}
	return newGroup(s, c), nil
}

// OpenGroup opens or creates a group rooted at the directory dir
func OpenGroup(dir string, mode PersistenceMode, opts ...Option) (*Group, error) {
	switch mode {
	case ModeRead, ModeReadWrite:
		// don't create a directory just to report that it holds nothing
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: group %q", ErrNotfound, dir)
		}
	}
	store, err := NewLocalStore(dir)
	if err != nil {
		return nil, err
	}
	return OpenGroupStore(store, "", mode, opts...)
}

// OpenGroupStore opens or creates the group at path in store following mode:
//
//	mode    missing     group               array
//	r       ErrNotfound open read-only      ErrConflict
//	r+      ErrNotfound open read-write     ErrConflict
//	a       create      open read-write     ErrConflict
//	w       create      clear and re-create ErrConflict
//	w-, x   create      ErrAlreadyExists    ErrConflict
func OpenGroupStore(store Store, path string, mode PersistenceMode, opts ...Option) (*Group, error) {
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
	if k == SlotArray {
		return nil, fmt.Errorf("%w: %q contains an array", ErrConflict, p.String())
	}

	switch mode {
	case ModeRead, ModeReadWrite:
		if k != SlotGroup {
			return nil, fmt.Errorf("%w: group %q", ErrNotfound, p.String())
		}
		if mode == ModeRead {
			c.readOnly = true
		}
	case ModeReadWriteCreate:
		if k == SlotEmpty {
			if err := s.requireParents(); err != nil {
				return nil, err
			}
			if err := s.requireGroup(); err != nil {
				return nil, err
			}
			c.logger.Debug("created group", zap.String("path", p.String()))
		}
	case ModeWrite:
		if err := s.requireParents(); err != nil {
			return nil, err
		}
		if err := s.initGroup(true); err != nil {
			return nil, err
		}
		c.logger.Debug("initialized group", zap.String("path", p.String()), zap.Bool("existed", k == SlotGroup))
	case ModeWriteFail, ModeCreate:
		if k == SlotGroup {
			return nil, fmt.Errorf("%w: group %q", ErrAlreadyExists, p.String())
		}
		if err := s.requireParents(); err != nil {
			return nil, err
		}
		if err := s.markGroup(); err != nil {
			return nil, err
		}
		c.logger.Debug("created group", zap.String("path", p.String()))
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return newGroup(s, c), nil
}

func newGroup(s slot, c *config) *Group {
	return &Group{store: s.store, path: s.path, readOnly: c.readOnly, log: c.logger}
}

func (g *Group) slot() slot {
	return slot{store: g.store, path: g.path}
}

// childConfig carries the group's read-only flag and logger to its members
func (g *Group) childConfig(opts ...Option) *config {
	return newConfig(append([]Option{WithReadOnly(g.readOnly), WithLogger(g.log)}, opts...))
}

func (g *Group) Kind() SlotKind { return SlotGroup }

func (g *Group) Store() Store { return g.store }

func (g *Group) Path() string { return g.path.String() }

// Name is the absolute name of the group within its store, "/" for the root
func (g *Group) Name() string { return "/" + g.path.String() }

func (g *Group) Basename() string { return g.path.Name() }

func (g *Group) ReadOnly() bool { return g.readOnly }

func (g *Group) Attrs() *Attrs { return newAttrs(g.slot(), g.readOnly) }

// node opens the array or group held by s
func (g *Group) node(s slot) (Node, error) {
	k, err := s.kind()
	if err != nil {
		return nil, err
	}
	switch k {
	case SlotArray:
		return openArraySlot(s, g.childConfig())
	case SlotGroup:
		return newGroup(s, g.childConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %q holds neither an array nor a group", ErrNotfound, s.path.String())
	}
}

// Get resolves path relative to g to an *Array or *Group
func (g *Group) Get(path string) (Node, error) {
	rel, err := splitName(path)
	if err != nil {
		return nil, err
	}
	s := g.slot()
	for _, name := range rel {
		if s, err = s.get(name); err != nil {
			return nil, err
		}
	}
	return g.node(s)
}

// GetArray resolves path to an array, failing with ErrConflict for a group
func (g *Group) GetArray(path string) (*Array, error) {
	n, err := g.Get(path)
	if err != nil {
		return nil, err
	}
	a, ok := n.(*Array)
	if !ok {
		return nil, fmt.Errorf("%w: %q is a group", ErrConflict, n.Path())
	}
	return a, nil
}

// GetGroup resolves path to a group, failing with ErrConflict for an array
func (g *Group) GetGroup(path string) (*Group, error) {
	n, err := g.Get(path)
	if err != nil {
		return nil, err
	}
	grp, ok := n.(*Group)
	if !ok {
		return nil, fmt.Errorf("%w: %q is an array", ErrConflict, n.Path())
	}
	return grp, nil
}

// Contains reports whether path resolves to an array or group
func (g *Group) Contains(path string) (bool, error) {
	_, err := g.Get(path)
	if errors.Is(err, ErrNotfound) {
		return false, nil
	}
	return err == nil, err
}

// Assign always fails. Members are added with CreateGroup and CreateDataset
// so every slot is initialized before it becomes visible.
func (g *Group) Assign(name string, value interface{}) error {
	return fmt.Errorf("%w: assigning %q directly; use CreateGroup or CreateDataset", ErrNotSupported, name)
}

// requireParents walks every component of rel but the last, marking empty
// slots as groups. It returns the slot of the final component's parent.
// Groups created on the way are kept if a later step fails.
func (g *Group) requireParents(rel Path) (slot, error) {
	s := g.slot()
	for _, name := range rel[:len(rel)-1] {
		s = s.require(name)
		if err := s.requireGroup(); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (g *Group) checkWritable() error {
	if g.readOnly {
		return fmt.Errorf("%w: group %q", ErrReadOnly, g.Name())
	}
	return nil
}

// CreateGroup creates a new group at path, creating missing intermediate
// groups. The final component must not exist.
func (g *Group) CreateGroup(path string) (*Group, error) {
	if err := g.checkWritable(); err != nil {
		return nil, err
	}
	rel, err := splitName(path)
	if err != nil {
		return nil, err
	}
	parent, err := g.requireParents(rel)
	if err != nil {
		return nil, err
	}
	s, err := parent.create(rel.Name())
	if err != nil {
		return nil, err
	}
	if err := s.markGroup(); err != nil {
		return nil, err
	}
	g.log.Debug("created group", zap.String("path", s.path.String()))
	return newGroup(s, g.childConfig()), nil
}

// RequireGroup returns the group at path, creating it and any missing
// intermediate groups
func (g *Group) RequireGroup(path string) (*Group, error) {
	rel, err := splitName(path)
	if err != nil {
		return nil, err
	}
	if g.readOnly {
		grp, err := g.GetGroup(path)
		if errors.Is(err, ErrNotfound) {
			return nil, fmt.Errorf("%w: cannot create group %q", ErrReadOnly, path)
		}
		return grp, err
	}

	parent, err := g.requireParents(rel)
	if err != nil {
		return nil, err
	}
	s := parent.require(rel.Name())
	if err := s.requireGroup(); err != nil {
		return nil, err
	}
	return newGroup(s, g.childConfig()), nil
}

// CreateDataset creates a new array at path, creating missing intermediate
// groups. With WithData the array is initialized from data; otherwise
// WithShape is required.
func (g *Group) CreateDataset(path string, opts ...Option) (*Array, error) {
	if err := g.checkWritable(); err != nil {
		return nil, err
	}
	rel, err := splitName(path)
	if err != nil {
		return nil, err
	}
	parent, err := g.requireParents(rel)
	if err != nil {
		return nil, err
	}
	s, err := parent.create(rel.Name())
	if err != nil {
		return nil, err
	}
	return createArray(s, g.childConfig(opts...), true)
}

// RequireDataset returns the array at path if its shape equals shape and its
// dtype matches dtype: exactly when exact is set, or when dtype casts safely
// to the stored dtype otherwise. A missing array is created with opts.
func (g *Group) RequireDataset(path string, shape []int, dtype Dtype, exact bool, opts ...Option) (*Array, error) {
	a, err := g.GetArray(path)
	if errors.Is(err, ErrNotfound) {
		return g.CreateDataset(path, append(opts, WithShape(shape...), WithDtype(dtype))...)
	}
	if err != nil {
		return nil, err
	}

	if !slices.Equal(a.meta.Shape, shape) {
		return nil, fmt.Errorf("%w: array %q has shape %v, want %v", ErrConflict, a.Path(), a.meta.Shape, shape)
	}
	if exact && !a.dtype.sameType(dtype) {
		return nil, fmt.Errorf("%w: array %q has dtype %s, want %s", ErrConflict, a.Path(), a.dtype, dtype)
	}
	if !exact && !dtype.castsTo(a.dtype) {
		return nil, fmt.Errorf("%w: dtype %s cannot be safely cast to %s of array %q", ErrConflict, dtype, a.dtype, a.Path())
	}
	return a, nil
}

// Keys lists the names of the arrays and groups directly beneath g in
// ascending order
func (g *Group) Keys() ([]string, error) {
	names, err := g.slot().enumerate()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(names))
	for _, name := range names {
		k, err := g.slot().child(name).kind()
		if err != nil {
			return nil, err
		}
		if k != SlotEmpty {
			keys = append(keys, name)
		}
	}
	return keys, nil
}

// Items yields each member of g. The member list is read when Items is
// called; each member is opened as it is yielded. Ranging over the sequence
// again replays the same list.
func (g *Group) Items() iter.Seq2[Member, error] {
	names, err := g.Keys()
	return func(yield func(Member, error) bool) {
		if err != nil {
			yield(Member{}, err)
			return
		}
		for _, name := range names {
			n, err := g.node(g.slot().child(name))
			if !yield(Member{Name: name, Node: n}, err) {
				return
			}
		}
	}
}

// Values yields the node of each member of g, in the manner of Items
func (g *Group) Values() iter.Seq2[Node, error] {
	items := g.Items()
	return func(yield func(Node, error) bool) {
		for m, err := range items {
			if !yield(m.Node, err) {
				return
			}
		}
	}
}

// Len is the number of members of g
func (g *Group) Len() (int, error) {
	keys, err := g.Keys()
	return len(keys), err
}

func (g *Group) Info() string {
	b := &strings.Builder{}
	row := func(k string, v interface{}) { fmt.Fprintf(b, "%-19s: %v\n", k, v) }
	row("Name", g.Name())
	row("Type", "zarr.Group")
	row("Read-only", g.readOnly)
	row("Store type", g.store.Type())

	var arrays, groups []string
	for m, err := range g.Items() {
		if err != nil {
			row("Error", err)
			return b.String()
		}
		if m.Node.Kind() == SlotArray {
			arrays = append(arrays, m.Name)
		} else {
			groups = append(groups, m.Name)
		}
	}
	row("No. members", len(arrays)+len(groups))
	row("No. arrays", len(arrays))
	row("No. groups", len(groups))
	if len(arrays) > 0 {
		row("Arrays", strings.Join(arrays, ", "))
	}
	if len(groups) > 0 {
		row("Groups", strings.Join(groups, ", "))
	}
	return b.String()
}

// Tree renders the hierarchy beneath g, one member per line
func (g *Group) Tree() (string, error) {
	b := &strings.Builder{}
	b.WriteString(g.Name() + "\n")
	if err := g.writeTree(b, ""); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (g *Group) writeTree(b *strings.Builder, indent string) error {
	var members []Member
	for m, err := range g.Items() {
		if err != nil {
			return err
		}
		members = append(members, m)
	}

	for i, m := range members {
		branch, next := "├── ", "│   "
		if i == len(members)-1 {
			branch, next = "└── ", "    "
		}
		switch n := m.Node.(type) {
		case *Array:
			fmt.Fprintf(b, "%s%s%s %s %s\n", indent, branch, m.Name, formatShape(n.meta.Shape), n.dtype)
		case *Group:
			fmt.Fprintf(b, "%s%s%s\n", indent, branch, m.Name)
			if err := n.writeTree(b, indent+next); err != nil {
				return err
			}
		}
	}
	return nil
}
