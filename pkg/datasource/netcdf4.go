package datasource

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	ncwriter "github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/ctessum/sparse"

	"ncgrid/internal/models"
)

// NetCDF4 reads NetCDF4/HDF5 files (and classic files) without cgo.
// Shapes are collected when the file is opened; reads fetch only the rows of
// the leading window.
type NetCDF4 struct {
	// mu serializes reads, the group seeks one shared file handle
	mu    sync.Mutex
	group api.Group

	dims    map[string]int
	shapes  map[string][]models.Dimension
	getters map[string]api.VarGetter
}

// OpenNetCDF4 opens a NetCDF4 or NetCDF classic file for reading
func OpenNetCDF4(path string) (*NetCDF4, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening netcdf file %s: %w", path, err)
	}
	n := &NetCDF4{
		group:   g,
		dims:    make(map[string]int),
		shapes:  make(map[string][]models.Dimension),
		getters: make(map[string]api.VarGetter),
	}
	for _, d := range g.ListDimensions() {
		if l, ok := g.GetDimension(d); ok {
			n.dims[d] = int(l)
		}
	}
	for _, name := range g.ListVariables() {
		vg, err := g.GetVarGetter(name)
		if err != nil {
			// string and compound variables cannot define a numeric grid
			continue
		}
		shape, err := n.shapeOf(vg)
		if err != nil {
			continue
		}
		n.getters[name] = vg
		n.shapes[name] = shape
	}
	return n, nil
}

// shapeOf resolves dimension lengths from the file's dimension list. The
// leading length comes from the getter, which also covers unlimited
// dimensions; inner lengths the file does not list are read off the first row.
func (n *NetCDF4) shapeOf(vg api.VarGetter) ([]models.Dimension, error) {
	names := vg.Dimensions()
	shape := make([]models.Dimension, len(names))
	missing := false
	for i, d := range names {
		shape[i].Name = d
		l, ok := n.dims[d]
		switch {
		case i == 0:
			shape[i].Length = int(vg.Len())
		case ok && l > 0:
			shape[i].Length = l
		default:
			missing = true
		}
	}
	if !missing {
		return shape, nil
	}
	if vg.Len() == 0 {
		return nil, fmt.Errorf("%w: empty variable with unknown dimensions", ErrUnsupportedType)
	}
	row, err := vg.GetSlice(0, 1)
	if err != nil {
		return nil, err
	}
	lengths, _, err := flatten(row)
	if err != nil {
		return nil, err
	}
	if len(lengths) != len(shape) {
		return nil, fmt.Errorf("%d dimension names for a %d-d array", len(shape), len(lengths))
	}
	for i := 1; i < len(shape); i++ {
		shape[i].Length = lengths[i]
	}
	return shape, nil
}

func (n *NetCDF4) hasVariable(name string) bool {
	for _, v := range n.group.ListVariables() {
		if v == name {
			return true
		}
	}
	return false
}

func (n *NetCDF4) lookup(name string) ([]models.Dimension, api.VarGetter, error) {
	if shape, ok := n.shapes[name]; ok {
		return shape, n.getters[name], nil
	}
	if n.hasVariable(name) {
		return nil, nil, fmt.Errorf("reading %q: %w", name, ErrUnsupportedType)
	}
	return nil, nil, fmt.Errorf("%w %q", ErrUnknownVariable, name)
}

// DimensionLength reads the dimension from the file, falling back to the
// variables that use it for unlimited or unlisted dimensions
func (n *NetCDF4) DimensionLength(name string) (int, error) {
	if l, ok := n.dims[name]; ok && l > 0 {
		return l, nil
	}
	for _, shape := range n.shapes {
		for _, d := range shape {
			if d.Name == name {
				return d.Length, nil
			}
		}
	}
	if _, ok := n.dims[name]; ok {
		return 0, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownDimension, name)
}

func (n *NetCDF4) VariableShape(name string) ([]models.Dimension, error) {
	shape, _, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]models.Dimension(nil), shape...), nil
}

func (n *NetCDF4) ReadVariable(name string, slice []models.IndexRange) (*sparse.DenseArray, error) {
	shape, vg, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	lengths := make([]int, len(shape))
	for i, d := range shape {
		lengths[i] = d.Length
	}
	if len(lengths) == 0 {
		return nil, fmt.Errorf("reading %q: %w: scalar", name, ErrUnsupportedType)
	}
	if err := checkSlice(lengths, slice); err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	lead, rest := splitLeading(lengths, slice)

	n.mu.Lock()
	values, err := vg.GetSlice(int64(lead.Min), int64(lead.Max))
	n.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("reading netcdf variable %s: %w", name, err)
	}
	block, vals, err := flatten(values)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	if len(block) != len(lengths) {
		return nil, fmt.Errorf("reading %q: %d dimension names for a %d-d array", name, len(lengths), len(block))
	}

	data := sparse.ZerosDense(block...)
	if len(vals) != len(data.Elements) {
		return nil, fmt.Errorf("reading %q: dims are %d but array length is %d", name, len(data.Elements), len(vals))
	}
	copy(data.Elements, vals)

	out, err := crop(data, rest)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	return out, nil
}

func (n *NetCDF4) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.group.Close()
	return nil
}

// WriteNetCDF writes the variables of m as a NetCDF classic file with the
// pure Go writer. Only dimensions used by a variable are written.
func WriteNetCDF(path string, m *Memory) error {
	cw, err := ncwriter.OpenWriter(path)
	if err != nil {
		return err
	}
	for _, name := range m.Variables() {
		v := m.vars[name]
		err := cw.AddVar(name, api.Variable{
			Values:     nest(v.data.Elements, v.data.Shape),
			Dimensions: v.dims,
		})
		if err != nil {
			cw.Close()
			return fmt.Errorf("writing netcdf variable %s: %w", name, err)
		}
	}
	return cw.Close()
}

// nest is the inverse of flatten: row-major values to [][]...[]float64
func nest(values []float64, shape []int) interface{} {
	typ := reflect.TypeOf([]float64(nil))
	for range shape[1:] {
		typ = reflect.SliceOf(typ)
	}
	return nestValue(values, shape, typ).Interface()
}

func nestValue(values []float64, shape []int, typ reflect.Type) reflect.Value {
	if len(shape) == 1 {
		return reflect.ValueOf(append([]float64(nil), values[:shape[0]]...))
	}
	out := reflect.MakeSlice(typ, shape[0], shape[0])
	if shape[0] == 0 {
		return out
	}
	stride := len(values) / shape[0]
	for i := 0; i < shape[0]; i++ {
		out.Index(i).Set(nestValue(values[i*stride:(i+1)*stride], shape[1:], typ.Elem()))
	}
	return out
}
