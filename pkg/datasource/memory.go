package datasource

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"

	"ncgrid/internal/models"
)

// Memory is a Source whose dimensions and variables are defined in code
type Memory struct {
	dims     map[string]int
	dimOrder []string
	vars     map[string]memoryVariable
}

type memoryVariable struct {
	dims []string
	data *sparse.DenseArray
}

// NewMemory returns an empty in-memory source
func NewMemory() *Memory {
	return &Memory{
		dims: make(map[string]int),
		vars: make(map[string]memoryVariable),
	}
}

// AddDimension defines (or redefines) a dimension
func (m *Memory) AddDimension(name string, length int) {
	if _, ok := m.dims[name]; !ok {
		m.dimOrder = append(m.dimOrder, name)
	}
	m.dims[name] = length
}

// AddVariable defines a variable over existing dimensions.
// values are row-major in the order of dims and are not copied.
func (m *Memory) AddVariable(name string, dims []string, values []float64) error {
	if len(dims) == 0 {
		return fmt.Errorf("variable %q: %w", name, ErrUnsupportedType)
	}
	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		l, ok := m.dims[d]
		if !ok {
			return fmt.Errorf("variable %q: %w %q", name, ErrUnknownDimension, d)
		}
		shape[i] = l
		n *= l
	}
	if len(values) != n {
		return fmt.Errorf("variable %q: dims are %d but array length is %d", name, n, len(values))
	}
	data := sparse.ZerosDense(shape...)
	data.Elements = values
	m.vars[name] = memoryVariable{dims: append([]string(nil), dims...), data: data}
	return nil
}

// Dimensions returns the dimension names in definition order
func (m *Memory) Dimensions() []string {
	return append([]string(nil), m.dimOrder...)
}

// Variables returns the sorted variable names
func (m *Memory) Variables() []string {
	names := make([]string, 0, len(m.vars))
	for n := range m.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Memory) DimensionLength(name string) (int, error) {
	l, ok := m.dims[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownDimension, name)
	}
	return l, nil
}

func (m *Memory) VariableShape(name string) ([]models.Dimension, error) {
	v, ok := m.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	shape := make([]models.Dimension, len(v.dims))
	for i, d := range v.dims {
		shape[i] = models.Dimension{Name: d, Length: v.data.Shape[i]}
	}
	return shape, nil
}

// ReadVariable returns a copy of the selected block
func (m *Memory) ReadVariable(name string, slice []models.IndexRange) (*sparse.DenseArray, error) {
	v, ok := m.vars[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	out, err := crop(v.data, slice)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	if out == v.data {
		out = sparse.ZerosDense(v.data.Shape...)
		copy(out.Elements, v.data.Elements)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
