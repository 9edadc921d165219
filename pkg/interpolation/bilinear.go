package interpolation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"ncgrid/internal/models"
)

// Bilinear is a piecewise-bilinear interpolant over a rectilinear grid.
// values.At(i, j) is the value at (x[i], y[j]).
type Bilinear struct {
	x      models.Axis
	y      models.Axis
	values mat.Matrix
}

// NewBilinear builds an interpolant over the given axes and values
func NewBilinear(x, y models.Axis, values mat.Matrix) (*Bilinear, error) {
	if err := x.Validate(); err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	if err := y.Validate(); err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}
	r, c := values.Dims()
	if r != len(x) || c != len(y) {
		return nil, fmt.Errorf("%w: values are %dx%d, axes are %dx%d", ErrShapeMismatch, r, c, len(x), len(y))
	}
	return &Bilinear{x: x, y: y, values: values}, nil
}

// Evaluate returns the interpolated value at (px, py).
// Points outside the axes are extrapolated linearly from the edge cell;
// callers are expected to check the domain first.
func (b *Bilinear) Evaluate(px, py float64) float64 {
	i, t := cell(b.x, px)
	j, u := cell(b.y, py)

	v00 := b.values.At(i, j)
	v10 := b.values.At(i+1, j)
	v01 := b.values.At(i, j+1)
	v11 := b.values.At(i+1, j+1)

	return v00*(1-t)*(1-u) + v10*t*(1-u) + v01*(1-t)*u + v11*t*u
}

// cell returns the index i of the cell x[i] <= v < x[i+1] (the last cell for
// v at or beyond the upper edge) and the fractional position of v inside it.
func cell(x models.Axis, v float64) (int, float64) {
	i := sort.Search(len(x), func(k int) bool { return x[k] > v }) - 1
	if i < 0 {
		i = 0
	}
	if i > len(x)-2 {
		i = len(x) - 2
	}
	return i, (v - x[i]) / (x[i+1] - x[i])
}
