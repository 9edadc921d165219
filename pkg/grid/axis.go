package grid

import (
	"ncgrid/internal/models"
	"ncgrid/pkg/datasource"
)

type axisKind int

const (
	// coordinate1D is a coordinate field over the grid dimension alone
	coordinate1D axisKind = iota

	// coordinate2DAligned is a 2D coordinate field that only varies along
	// the grid dimension
	coordinate2DAligned
)

// axisSource says where the coordinates of one logical axis are stored
type axisSource struct {
	kind  axisKind
	field string
	shape []models.Dimension

	// along is the position of the grid dimension in a 2D field
	along int
}

func resolveAxisSource(src datasource.Source, dimension, field string) (axisSource, error) {
	shape, err := src.VariableShape(field)
	if err != nil {
		return axisSource{}, configError("new", err, "coordinate field %q", field)
	}
	as := axisSource{field: field, shape: shape}
	switch len(shape) {
	case 1:
		as.kind = coordinate1D
	case 2:
		as.kind = coordinate2DAligned
		switch dimension {
		case shape[0].Name:
			as.along = 0
		case shape[1].Name:
			as.along = 1
		default:
			return axisSource{}, configError("new", nil,
				"unrecognized dimension of coordinate field %q: none of (%s, %s) is %q",
				field, shape[0].Name, shape[1].Name, dimension)
		}
	default:
		return axisSource{}, configError("new", nil,
			"unrecognized shape of coordinate field %q: %d dimensions", field, len(shape))
	}
	return as, nil
}

// read loads the coordinates. For a 2D field only the first row or column
// along the grid dimension is read.
func (as axisSource) read(src datasource.Source) (models.Axis, error) {
	var slice []models.IndexRange
	if as.kind == coordinate2DAligned {
		slice = make([]models.IndexRange, 2)
		for d, dim := range as.shape {
			if d == as.along {
				slice[d] = models.IndexRange{Min: 0, Max: dim.Length}
			} else {
				slice[d] = models.IndexRange{Min: 0, Max: 1}
			}
		}
	}
	data, err := src.ReadVariable(as.field, slice)
	if err != nil {
		return nil, configError("new", err, "reading coordinate field %q", as.field)
	}
	return models.Axis(data.Elements), nil
}
