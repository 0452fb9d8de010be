package zarr

import (
	"fmt"
	"strings"
)

// PathSeparator separates the components of a logical path
const PathSeparator = "/"

// Path is a normalized logical path into a store. The empty Path is the root.
type Path []string

// NewPath normalizes a posix-style path:
// * backward slash characters ("\") become forward slashes ("/")
// * leading and trailing "/" characters are stripped
// * sequences of more than one "/" collapse into a single "/"
//
// "." and ".." components are invalid, as are the metadata key names
// (".zarray", ".zgroup", ".zattrs" and ".zmetadata").
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, PathSeparator)
	var p Path
	for _, s := range strings.Split(posix, PathSeparator) {
		if s == "" {
			continue
		}
		if s == "." || s == ".." {
			return nil, fmt.Errorf("%w: %q contains relative component %q", ErrInvalidPath, posix, s)
		}
		switch MetaType(s) {
		case MTArray, MTGroup, MTAttributes, MTMetadata:
			return nil, fmt.Errorf("%w: %q uses reserved name %q", ErrInvalidPath, posix, s)
		}
		p = append(p, s)
	}
	return p, nil
}

// splitName splits a hierarchy name into its components. Names that reduce
// to nothing are invalid.
func splitName(name string) (Path, error) {
	p, err := NewPath(name)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, PathSeparator)
}

// Name is the final path component, or "" for the root
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

func (p Path) Shift() (head string, ch Path) {
	switch len(p) {
	case 0:
		return "", nil
	case 1:
		return p[0], nil
	default:
		return p[0], p[1:]
	}
}

// Join returns a new path with elems appended. p is never modified.
func (p Path) Join(elems ...string) Path {
	joined := make(Path, 0, len(p)+len(elems))
	joined = append(joined, p...)
	return append(joined, elems...)
}

// Key returns the store key for name beneath p
func (p Path) Key(name string) string {
	if len(p) == 0 {
		return name
	}
	return p.String() + PathSeparator + name
}

// Prefix is the key prefix shared by everything stored beneath p
func (p Path) Prefix() string {
	if len(p) == 0 {
		return ""
	}
	return p.String() + PathSeparator
}
