package models

import (
	"errors"
	"math"
)

// ErrBadAxis is returned when coordinates do not form a usable axis
var ErrBadAxis = errors.New("axis must hold at least two finite, strictly increasing coordinates")

// Point is a query coordinate pair, ordered like the axes of the grid it is
// evaluated against.
type Point [2]float64

// Axis is the coordinate sequence of one logical grid dimension
type Axis []float64

// Validate checks that the axis can be interpolated along
func (a Axis) Validate() error {
	if len(a) < 2 {
		return ErrBadAxis
	}
	for i, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrBadAxis
		}
		if i > 0 && v <= a[i-1] {
			return ErrBadAxis
		}
	}
	return nil
}

// First returns the lowest coordinate
func (a Axis) First() float64 { return a[0] }

// Last returns the highest coordinate
func (a Axis) Last() float64 { return a[len(a)-1] }

// Contains reports whether v lies inside [First, Last]
func (a Axis) Contains(v float64) bool {
	return v >= a.First() && v <= a.Last()
}

// IndexRange is a half-open window [Min, Max) into a dimension
type IndexRange struct {
	Min int
	Max int
}

// Len returns the number of indices covered by the window
func (r IndexRange) Len() int { return r.Max - r.Min }

// Dimension is one entry of a stored variable's shape
type Dimension struct {
	// Name is the dimension identifier used by the data file
	Name string

	// Length is the number of entries along the dimension
	Length int
}

// Mask marks invalid ("land") cells of a 2D grid.
// Cells are stored row-major: Land[i*Cols + j].
type Mask struct {
	Rows int
	Cols int
	Land []bool
}

// NewMask returns an all-valid mask of the given shape
func NewMask(rows, cols int) *Mask {
	return &Mask{
		Rows: rows,
		Cols: cols,
		Land: make([]bool, rows*cols),
	}
}

// At reports whether cell (i, j) is masked
func (m *Mask) At(i, j int) bool {
	return m.Land[i*m.Cols+j]
}

// Set marks or clears cell (i, j)
func (m *Mask) Set(i, j int, land bool) {
	m.Land[i*m.Cols+j] = land
}

// Count returns the number of masked cells
func (m *Mask) Count() int {
	n := 0
	for _, land := range m.Land {
		if land {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the mask
func (m *Mask) Clone() *Mask {
	c := NewMask(m.Rows, m.Cols)
	copy(c.Land, m.Land)
	return c
}
