package datasource

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"ncgrid/internal/models"
)

// CDF reads NetCDF classic (CDF-1 and CDF-2) files
type CDF struct {
	file *os.File
	nc   *cdf.File
}

// OpenCDF opens a NetCDF classic file for reading
func OpenCDF(path string) (*CDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening netcdf file %s: %w", path, err)
	}
	return &CDF{file: f, nc: nc}, nil
}

func (c *CDF) hasVariable(name string) bool {
	for _, v := range c.nc.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// DimensionLength reads the dimension from the file header. The record
// dimension reports 0.
func (c *CDF) DimensionLength(name string) (int, error) {
	lengths := c.nc.Header.Lengths("")
	for i, d := range c.nc.Header.Dimensions("") {
		if d == name {
			return lengths[i], nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownDimension, name)
}

func (c *CDF) VariableShape(name string) ([]models.Dimension, error) {
	if !c.hasVariable(name) {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	dims := c.nc.Header.Dimensions(name)
	lengths := c.nc.Header.Lengths(name)
	shape := make([]models.Dimension, len(dims))
	for i := range dims {
		shape[i] = models.Dimension{Name: dims[i], Length: lengths[i]}
	}
	return shape, nil
}

// ReadVariable reads the rows of the leading window from the file and crops
// the remaining dimensions in memory. Reads go through ReadAt, so concurrent
// calls are safe.
func (c *CDF) ReadVariable(name string, slice []models.IndexRange) (*sparse.DenseArray, error) {
	if !c.hasVariable(name) {
		return nil, fmt.Errorf("%w %q", ErrUnknownVariable, name)
	}
	lengths := c.nc.Header.Lengths(name)
	if len(lengths) == 0 {
		return nil, fmt.Errorf("reading %q: %w: scalar", name, ErrUnsupportedType)
	}
	if err := checkSlice(lengths, slice); err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	lead, rest := splitLeading(lengths, slice)

	// begin and end are inclusive corners of one contiguous block
	begin := make([]int, len(lengths))
	end := make([]int, len(lengths))
	begin[0], end[0] = lead.Min, lead.Max-1
	for d := 1; d < len(lengths); d++ {
		end[d] = lengths[d] - 1
	}
	r := c.nc.Reader(name, begin, end)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading netcdf variable %s: %w", name, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}

	block := append([]int(nil), lengths...)
	block[0] = lead.Len()
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

func (c *CDF) Close() error {
	return c.file.Close()
}

// WriteCDF writes all dimensions and variables of m as a NetCDF classic file
// of doubles. Dimensions no variable uses are kept.
func WriteCDF(path string, m *Memory) error {
	dims := m.Dimensions()
	lengths := make([]int, len(dims))
	for i, d := range dims {
		lengths[i] = m.dims[d]
	}
	h := cdf.NewHeader(dims, lengths)

	names := m.Variables()
	for _, name := range names {
		h.AddVariable(name, m.vars[name].dims, []float64{0})
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	nc, err := cdf.Create(f, h) // writes the header to f
	if err != nil {
		return fmt.Errorf("writing netcdf header: %w", err)
	}
	for _, name := range names {
		w := nc.Writer(name, nil, nil)
		if _, err := w.Write(m.vars[name].data.Elements); err != nil {
			return fmt.Errorf("writing netcdf variable %s: %w", name, err)
		}
	}
	// replace the streaming record count left by Create
	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("writing netcdf record count: %w", err)
	}
	return f.Close()
}
