package interpolation

import (
	"errors"
	"fmt"

	"ncgrid/internal/models"
)

var (
	// ErrOutsideDomain is the reason of a CoordinateError for points outside the axes
	ErrOutsideDomain = errors.New("point outside domain")

	// ErrInsideMask is the reason of a CoordinateError for points on cells the
	// extrapolation never reached
	ErrInsideMask = errors.New("point inside landmask")

	// ErrShapeMismatch is returned when values, mask and axes disagree in shape
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrBadLevel is returned for negative extrapolation levels
	ErrBadLevel = errors.New("extrapolation level must be non-negative")
)

// CoordinateError reports a query point that cannot be interpolated.
// It is expected near domain boundaries and coastlines and should be
// handled per query.
type CoordinateError struct {
	Point  models.Point
	Reason error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("for coordinates x, y=%v; %v", e.Point, e.Reason)
}

func (e *CoordinateError) Unwrap() error { return e.Reason }
