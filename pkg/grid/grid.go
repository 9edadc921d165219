// Package grid reads a logically rectangular, coordinate-aligned 2D grid
// from a gridded data source and builds interpolators for its fields.
//
// A Grid is created from two dimension names and the coordinate fields that
// vary along them:
//
//	g, err := grid.New(src, [2]string{"lon", "lat"}, [2]string{"longitude", "latitude"})
//
// The order given here (not the order the file stores) decides the order of
// coordinates in every later call. Before building interpolators a Grid can be
// restricted to a coordinate window with SetRange, and then given a land mask
// with SetMask or SetMaskFromFillValue:
//
//	err = g.SetRange([2][2]float64{{-4, -2}, {58, 59}})
//	err = g.SetMask("mask", interpolation.DefaultExtrapolationLevel)
//	ip, err := g.GetInterpolator("z")
//	v, err := ip.Value(models.Point{lon, lat})
//
// All configuration must happen before a Grid is shared between goroutines.
package grid

import (
	"github.com/ctessum/sparse"
	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"

	"ncgrid/internal/models"
	"ncgrid/pkg/datasource"
	"ncgrid/pkg/interpolation"
)

// Grid holds the coordinates, optional range restriction and optional land
// mask of a 2D grid stored in a data source
type Grid struct {
	src  datasource.Source
	dims [2]string
	axes [2]models.Axis

	// ranges is the index window of each axis into the stored coordinates,
	// nil until SetRange
	ranges *[2]models.IndexRange

	mask  *models.Mask
	level int
}

// New reads the grid coordinates from src. dims names the two logical grid
// dimensions and coords the coordinate fields varying along each of them.
func New(src datasource.Source, dims [2]string, coords [2]string) (*Grid, error) {
	if dims[0] == dims[1] {
		return nil, configError("new", nil, "grid dimensions must differ, got %q twice", dims[0])
	}
	g := &Grid{
		src:   src,
		dims:  dims,
		level: interpolation.DefaultExtrapolationLevel,
	}
	for i := range dims {
		n, err := src.DimensionLength(dims[i])
		if err != nil {
			return nil, configError("new", err, "grid dimension %q", dims[i])
		}
		as, err := resolveAxisSource(src, dims[i], coords[i])
		if err != nil {
			return nil, err
		}
		axis, err := as.read(src)
		if err != nil {
			return nil, err
		}
		if len(axis) != n {
			return nil, configError("new", nil, "coordinate field %q has %d values, dimension %q has length %d",
				coords[i], len(axis), dims[i], n)
		}
		if err := axis.Validate(); err != nil {
			return nil, configError("new", err, "coordinate field %q", coords[i])
		}
		g.axes[i] = axis
	}
	glog.V(1).Infof("grid %v: %d x %d points", dims, len(g.axes[0]), len(g.axes[1]))
	return g, nil
}

// NewFromGrid returns a grid reading its fields from src but sharing the
// coordinates, range restriction, mask and extrapolation level of other.
// Use it when field values are stored separately from the grid description.
func NewFromGrid(src datasource.Source, other *Grid) *Grid {
	g := &Grid{
		src:   src,
		dims:  other.dims,
		axes:  other.axes,
		mask:  other.mask,
		level: other.level,
	}
	if other.ranges != nil {
		r := *other.ranges
		g.ranges = &r
	}
	return g
}

// SetRange restricts the grid to the given coordinate bounds, one (min, max)
// pair per axis. Only the covering index window of each axis is read by later
// calls. It can be called once, and only before a mask is set.
func (g *Grid) SetRange(ranges [2][2]float64) error {
	if g.mask != nil {
		return configError("set range", nil, "should set ranges before setting the mask")
	}
	if g.ranges != nil {
		return configError("set range", nil, "can only set ranges once")
	}

	var windows [2]models.IndexRange
	for i, axis := range g.axes {
		lo, hi := ranges[i][0], ranges[i][1]
		if lo > hi {
			return configError("set range", nil, "range [%g, %g] of %q is empty", lo, hi, g.dims[i])
		}
		if lo > axis.Last() || hi < axis.First() {
			return configError("set range", nil, "range [%g, %g] outside coordinates [%g, %g] of %q",
				lo, hi, axis.First(), axis.Last(), g.dims[i])
		}
		windows[i] = indexWindow(axis, lo, hi)
	}

	for i, w := range windows {
		g.axes[i] = g.axes[i][w.Min:w.Max]
	}
	g.ranges = &windows
	glog.V(1).Infof("grid %v: restricted to index windows %v", g.dims, windows)
	return nil
}

// indexWindow returns the index window read for coordinates [lo, hi]: it
// starts one below the first coordinate above lo and ends two past the first
// coordinate at or above hi, clamped to the axis.
func indexWindow(axis models.Axis, lo, hi float64) models.IndexRange {
	n := len(axis)

	above := 0
	for k, v := range axis {
		if v > lo {
			above = k
			break
		}
	}
	atOrAbove := n
	for k, v := range axis {
		if v >= hi {
			atOrAbove = k
			break
		}
	}

	w := models.IndexRange{Min: above - 1, Max: atOrAbove + 2}
	if w.Min < 0 {
		w.Min = 0
	}
	if w.Max > n {
		w.Max = n
	}
	return w
}

// SetMask sets the land mask from a field that is nonzero on invalid points.
// Masked points reachable within level extrapolation passes are filled in by
// later interpolators.
func (g *Grid) SetMask(fieldName string, level int) error {
	return g.setMask("set mask", fieldName, level, func(v float64) bool { return v != 0 })
}

// SetMaskFromFillValue masks the points where fieldName equals fillValue.
// fieldName does not have to be the field that is interpolated later.
func (g *Grid) SetMaskFromFillValue(fieldName string, fillValue float64, level int) error {
	return g.setMask("set mask from fill value", fieldName, level, func(v float64) bool { return v == fillValue })
}

func (g *Grid) setMask(op, fieldName string, level int, land func(float64) bool) error {
	if level < 0 {
		return configError(op, interpolation.ErrBadLevel, "level %d", level)
	}
	field, err := g.GetField(fieldName)
	if err != nil {
		return err
	}
	if err := g.checkPlane(field); err != nil {
		return configError(op, err, "mask field %q", fieldName)
	}

	mask := models.NewMask(field.Shape[0], field.Shape[1])
	for k, v := range field.Elements {
		mask.Land[k] = land(v)
	}
	g.mask = mask
	g.level = level
	glog.V(1).Infof("grid %v: mask %q covers %d of %d points, %d extrapolation passes",
		g.dims, fieldName, mask.Count(), len(mask.Land), level)
	return nil
}

// GetInterpolator reads a 2D field and returns an interpolator for it
func (g *Grid) GetInterpolator(fieldName string) (*interpolation.Interpolator, error) {
	field, err := g.GetField(fieldName)
	if err != nil {
		return nil, err
	}
	return g.GetInterpolatorFromArray(field)
}

// GetInterpolatorAt returns an interpolator for one leading index of a 3D
// field, e.g. one time step
func (g *Grid) GetInterpolatorAt(fieldName string, index int) (*interpolation.Interpolator, error) {
	field, err := g.GetField(fieldName)
	if err != nil {
		return nil, err
	}
	if len(field.Shape) != 3 {
		return nil, configError("get interpolator", nil, "field %q is %d dimensional, want 3", fieldName, len(field.Shape))
	}
	if index < 0 || index >= field.Shape[0] {
		return nil, configError("get interpolator", nil, "index %d outside leading dimension of %q (length %d)",
			index, fieldName, field.Shape[0])
	}
	size := field.Shape[1] * field.Shape[2]
	plane := sparse.ZerosDense(field.Shape[1], field.Shape[2])
	copy(plane.Elements, field.Elements[index*size:(index+1)*size])
	return g.GetInterpolatorFromArray(plane)
}

// GetInterpolatorFromArray returns an interpolator for a field computed by
// the caller, typically from fields returned by GetField. The field must
// have the shape of the grid.
func (g *Grid) GetInterpolatorFromArray(field *sparse.DenseArray) (*interpolation.Interpolator, error) {
	if err := g.checkPlane(field); err != nil {
		return nil, configError("get interpolator", err, "field")
	}
	values := mat.NewDense(field.Shape[0], field.Shape[1], field.Elements)
	ip, err := interpolation.New(g.axes[0], g.axes[1], values, g.mask, g.level)
	if err != nil {
		return nil, configError("get interpolator", err, "building interpolator")
	}
	return ip, nil
}

// checkPlane verifies that field is 2D with one value per grid point
func (g *Grid) checkPlane(field *sparse.DenseArray) error {
	if len(field.Shape) != 2 || field.Shape[0] != len(g.axes[0]) || field.Shape[1] != len(g.axes[1]) {
		return &shapeError{got: field.Shape, want: []int{len(g.axes[0]), len(g.axes[1])}}
	}
	return nil
}

// Source returns the data source fields are read from
func (g *Grid) Source() datasource.Source { return g.src }

// Dimensions returns the logical dimension names in axis order
func (g *Grid) Dimensions() [2]string { return g.dims }

// Axes returns the coordinates of both axes after any range restriction.
// They must not be modified.
func (g *Grid) Axes() [2]models.Axis { return g.axes }

// Ranges returns the index windows set by SetRange
func (g *Grid) Ranges() ([2]models.IndexRange, bool) {
	if g.ranges == nil {
		return [2]models.IndexRange{}, false
	}
	return *g.ranges, true
}

// Mask returns the land mask, or nil. It must not be modified.
func (g *Grid) Mask() *models.Mask { return g.mask }

// ExtrapolationLevel returns the number of extrapolation passes applied to
// masked fields
func (g *Grid) ExtrapolationLevel() int { return g.level }
