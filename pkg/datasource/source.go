// Package datasource reads gridded variables from data files.
// A Source reports dimension lengths and variable shapes and reads
// (optionally cropped) numeric variables in their stored dimension order.
package datasource

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/ctessum/sparse"

	"ncgrid/internal/models"
)

var (
	// ErrUnknownDimension is returned for dimension names the source does not hold
	ErrUnknownDimension = errors.New("unknown dimension")

	// ErrUnknownVariable is returned for variable names the source does not hold
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrBadSlice is returned when a slice does not fit the variable
	ErrBadSlice = errors.New("slice does not fit variable")

	// ErrUnsupportedType is returned for non-numeric or scalar variables
	ErrUnsupportedType = errors.New("unsupported variable type")
)

// Source is a gridded data file, or anything that looks like one
type Source interface {
	// DimensionLength returns the length of the named dimension
	DimensionLength(name string) (int, error)

	// VariableShape returns the dimensions of a variable in stored order
	VariableShape(name string) ([]models.Dimension, error)

	// ReadVariable reads a variable, restricted to one index window per
	// dimension when slice is non-nil
	ReadVariable(name string, slice []models.IndexRange) (*sparse.DenseArray, error)

	// Close releases the underlying file
	Close() error
}

// checkSlice reports whether slice holds one non-empty window inside shape
// per dimension. A nil slice selects everything.
func checkSlice(shape []int, slice []models.IndexRange) error {
	if slice == nil {
		return nil
	}
	if len(slice) != len(shape) {
		return fmt.Errorf("%w: %d windows for %d dimensions", ErrBadSlice, len(slice), len(shape))
	}
	for d, r := range slice {
		if r.Min < 0 || r.Max > shape[d] || r.Min >= r.Max {
			return fmt.Errorf("%w: window [%d, %d) on dimension %d of length %d",
				ErrBadSlice, r.Min, r.Max, d, shape[d])
		}
	}
	return nil
}

// splitLeading returns the window on the leading dimension, which file
// backends read from disk, and the slice left to crop from the block read.
// slice must have passed checkSlice.
func splitLeading(shape []int, slice []models.IndexRange) (models.IndexRange, []models.IndexRange) {
	if slice == nil {
		return models.IndexRange{Min: 0, Max: shape[0]}, nil
	}
	rest := append([]models.IndexRange(nil), slice...)
	rest[0] = models.IndexRange{Min: 0, Max: slice[0].Len()}
	return slice[0], rest
}

// crop extracts the block selected by slice from a. A nil slice returns a.
func crop(a *sparse.DenseArray, slice []models.IndexRange) (*sparse.DenseArray, error) {
	if slice == nil {
		return a, nil
	}
	if err := checkSlice(a.Shape, slice); err != nil {
		return nil, err
	}
	full := true
	shape := make([]int, len(slice))
	for d, r := range slice {
		shape[d] = r.Len()
		full = full && shape[d] == a.Shape[d]
	}
	if full {
		return a, nil
	}

	strides := rowMajorStrides(a.Shape)
	out := sparse.ZerosDense(shape...)
	index := make([]int, len(shape))
	for k := range out.Elements {
		src := 0
		for d, i := range index {
			src += (i + slice[d].Min) * strides[d]
		}
		out.Elements[k] = a.Elements[src]

		// advance the row-major odometer
		for d := len(index) - 1; d >= 0; d-- {
			index[d]++
			if index[d] < shape[d] {
				break
			}
			index[d] = 0
		}
	}
	return out, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

// toFloat64 converts a flat numeric slice as returned by a file reader
func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	}

	v := reflect.ValueOf(buf)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, buf)
	}
	out := make([]float64, v.Len())
	for i := range out {
		x, err := numeric(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

// flatten converts nested numeric slices ([][]float64, [][][]int16, ...)
// into their shape and row-major values
func flatten(values interface{}) ([]int, []float64, error) {
	v := reflect.ValueOf(values)
	if v.Kind() != reflect.Slice {
		return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedType, values)
	}

	var shape []int
	n := 1
	for t := v; t.Kind() == reflect.Slice; {
		shape = append(shape, t.Len())
		n *= t.Len()
		if t.Len() == 0 {
			break
		}
		t = t.Index(0)
	}

	out := make([]float64, 0, n)
	var walk func(reflect.Value, int) error
	walk = func(s reflect.Value, depth int) error {
		if s.Len() != shape[depth] {
			return fmt.Errorf("%w: ragged array", ErrUnsupportedType)
		}
		for i := 0; i < s.Len(); i++ {
			e := s.Index(i)
			if depth < len(shape)-1 {
				if e.Kind() != reflect.Slice {
					return fmt.Errorf("%w: ragged array", ErrUnsupportedType)
				}
				if err := walk(e, depth+1); err != nil {
					return err
				}
				continue
			}
			x, err := numeric(e)
			if err != nil {
				return err
			}
			out = append(out, x)
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return nil, nil, err
	}
	return shape, out, nil
}

func numeric(e reflect.Value) (float64, error) {
	switch e.Kind() {
	case reflect.Float32, reflect.Float64:
		return e.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(e.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(e.Uint()), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, e.Type())
}
