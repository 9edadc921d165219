package interpolation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"ncgrid/internal/models"
)

// DefaultExtrapolationLevel is the number of extrapolation passes used when
// a mask is set without an explicit level
const DefaultExtrapolationLevel = 2

// Interpolator evaluates one field on a rectilinear grid, reporting points
// outside the grid or inside the land mask as a CoordinateError.
// It is immutable once built and safe for concurrent use.
type Interpolator struct {
	x        models.Axis
	y        models.Axis
	values   *mat.Dense
	residual *models.Mask
	spline   *Bilinear
}

// New builds an interpolator over values, where values.At(i, j) belongs to
// (x[i], y[j]). If mask is non-nil, masked cells are first filled by level
// passes of Extrapolate.
func New(x, y models.Axis, values mat.Matrix, mask *models.Mask, level int) (*Interpolator, error) {
	if level < 0 {
		return nil, ErrBadLevel
	}
	r, c := values.Dims()
	if r != len(x) || c != len(y) {
		return nil, fmt.Errorf("%w: values are %dx%d, axes are %dx%d", ErrShapeMismatch, r, c, len(x), len(y))
	}

	ip := &Interpolator{x: x, y: y}
	if mask != nil {
		if mask.Rows != r || mask.Cols != c {
			return nil, fmt.Errorf("%w: mask is %dx%d, values are %dx%d", ErrShapeMismatch, mask.Rows, mask.Cols, r, c)
		}
		ip.values, ip.residual = Extrapolate(values, mask, level)
	} else {
		ip.values = mat.DenseCopyOf(values)
	}

	spline, err := NewBilinear(x, y, ip.values)
	if err != nil {
		return nil, err
	}
	ip.spline = spline
	return ip, nil
}

// Value returns the interpolated field at p
func (ip *Interpolator) Value(p models.Point) (float64, error) {
	if !ip.x.Contains(p[0]) || !ip.y.Contains(p[1]) {
		return 0, &CoordinateError{Point: p, Reason: ErrOutsideDomain}
	}
	v := ip.spline.Evaluate(p[0], p[1])
	if math.IsNaN(v) {
		return 0, &CoordinateError{Point: p, Reason: ErrInsideMask}
	}
	return v, nil
}

// Bounds returns the lower and upper corners of the domain
func (ip *Interpolator) Bounds() (lo, hi models.Point) {
	return models.Point{ip.x.First(), ip.y.First()}, models.Point{ip.x.Last(), ip.y.Last()}
}

// Values returns the interpolated grid values, with extrapolated cells filled
// in and unreached cells set to NaN. The matrix must not be modified.
func (ip *Interpolator) Values() mat.Matrix { return ip.values }

// Residual returns the cells left masked after extrapolation, or nil if the
// interpolator was built without a mask
func (ip *Interpolator) Residual() *models.Mask { return ip.residual }
