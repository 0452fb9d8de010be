package zarr

import (
	"fmt"
	"strings"
)

// Selector picks coordinates along one or more axes of an array. The
// concrete selectors are Index, Slice, Tuple, Mask, IndexList and Ellipsis.
type Selector interface {
	selector()
}

// Index selects a single coordinate and drops the axis from the result.
// Negative values count back from the end of the axis.
type Index int

// Slice selects coordinates Start, Start+Step, ... up to but excluding Stop.
// A nil Start or Stop leaves that end open. A zero Step means 1.
type Slice struct {
	Start *int
	Stop  *int
	Step  int
}

// Tuple is a selection made of one selector per axis
type Tuple []Selector

// Mask selects the coordinates along one axis whose entry is true
type Mask []bool

// IndexList selects an explicit list of coordinates along one axis
type IndexList []int

type ellipsis struct{}

// Ellipsis stands for as many full slices as needed to cover the axes not
// named by the rest of a selection
var Ellipsis Selector = ellipsis{}

func (Index) selector()     {}
func (Slice) selector()     {}
func (Tuple) selector()     {}
func (Mask) selector()      {}
func (IndexList) selector() {}
func (ellipsis) selector()  {}

// Range is the bounded slice [start, stop)
func Range(start, stop int) Slice {
	return Slice{Start: &start, Stop: &stop}
}

// RangeStep is the bounded slice [start, stop) taking every step-th coordinate
func RangeStep(start, stop, step int) Slice {
	return Slice{Start: &start, Stop: &stop, Step: step}
}

// From is the slice from start to the end of the axis
func From(start int) Slice {
	return Slice{Start: &start}
}

// To is the slice from the beginning of the axis up to stop
func To(stop int) Slice {
	return Slice{Stop: &stop}
}

// All is the slice covering a whole axis
func All() Slice {
	return Slice{}
}

func (s Slice) String() string {
	b := &strings.Builder{}
	if s.Start != nil {
		fmt.Fprintf(b, "%d", *s.Start)
	}
	b.WriteString(":")
	if s.Stop != nil {
		fmt.Fprintf(b, "%d", *s.Stop)
	}
	if s.Step != 0 {
		fmt.Fprintf(b, ":%d", s.Step)
	}
	return b.String()
}

func (e ellipsis) String() string { return "..." }

// FormatSelection renders a selection the way it would be written as a
// subscript, e.g. "0, -1000:-990, ..."
func FormatSelection(sel Selector) string {
	switch s := sel.(type) {
	case Tuple:
		parts := make([]string, len(s))
		for i, el := range s {
			if t, ok := el.(Tuple); ok {
				parts[i] = "(" + FormatSelection(t) + ")"
			} else {
				parts[i] = FormatSelection(el)
			}
		}
		return strings.Join(parts, ", ")
	case nil:
		return "<nil>"
	default:
		return fmt.Sprint(s)
	}
}
