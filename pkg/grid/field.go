package grid

import (
	"fmt"

	"github.com/ctessum/sparse"

	"ncgrid/internal/models"
)

type shapeError struct {
	got  []int
	want []int
}

func (e *shapeError) Error() string {
	return fmt.Sprintf("shape %v does not match grid shape %v", e.got, e.want)
}

// GetField reads a field with its grid dimensions last, in axis order:
// (..., axis0, axis1). Other dimensions are kept in stored order in front.
// With a range set, only the range window of the grid dimensions is read and
// the field must be 2 or 3 dimensional.
func (g *Grid) GetField(fieldName string) (*sparse.DenseArray, error) {
	shape, err := g.src.VariableShape(fieldName)
	if err != nil {
		return nil, configError("get field", err, "field %q", fieldName)
	}

	order := make([]int, 0, len(shape))
	pos := [2]int{-1, -1}
	for d, dim := range shape {
		matched := false
		for i, name := range g.dims {
			if dim.Name != name {
				continue
			}
			matched = true
			if pos[i] >= 0 {
				pos[i] = -2
			} else if pos[i] == -1 {
				pos[i] = d
			}
		}
		if !matched {
			order = append(order, d)
		}
	}
	if pos[0] < 0 || pos[1] < 0 {
		return nil, configError("get field", nil,
			"in the dimensions %v of field %q both grid dimensions %v should occur once",
			dimensionNames(shape), fieldName, g.dims)
	}
	order = append(order, pos[0], pos[1])

	var slice []models.IndexRange
	if g.ranges != nil {
		if len(shape) != 2 && len(shape) != 3 {
			return nil, configError("get field", nil,
				"field %q should be 2 or 3 dimensional, got %d", fieldName, len(shape))
		}
		slice = make([]models.IndexRange, len(shape))
		for d, dim := range shape {
			slice[d] = models.IndexRange{Min: 0, Max: dim.Length}
		}
		slice[pos[0]] = g.ranges[0]
		slice[pos[1]] = g.ranges[1]
	}

	data, err := g.src.ReadVariable(fieldName, slice)
	if err != nil {
		return nil, configError("get field", err, "reading %q", fieldName)
	}
	return permute(data, order), nil
}

func dimensionNames(shape []models.Dimension) []string {
	names := make([]string, len(shape))
	for i, d := range shape {
		names[i] = d.Name
	}
	return names
}

// permute returns a with its dimensions reordered so that dimension k of the
// result is dimension order[k] of a. a itself is returned for the identity.
func permute(a *sparse.DenseArray, order []int) *sparse.DenseArray {
	identity := true
	for k, d := range order {
		identity = identity && k == d
	}
	if identity {
		return a
	}

	strides := make([]int, len(a.Shape))
	s := 1
	for d := len(a.Shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= a.Shape[d]
	}

	shape := make([]int, len(order))
	for k, d := range order {
		shape[k] = a.Shape[d]
	}
	out := sparse.ZerosDense(shape...)
	index := make([]int, len(shape))
	for k := range out.Elements {
		src := 0
		for j, i := range index {
			src += i * strides[order[j]]
		}
		out.Elements[k] = a.Elements[src]

		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	return out
}
