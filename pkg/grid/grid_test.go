package grid

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ncgrid/internal/models"
	"ncgrid/pkg/datasource"
	"ncgrid/pkg/interpolation"
)

// f is used to fill the test fields and has to be bilinear
func f(lat, lon float64) float64 {
	return lat*10 + lon
}

// addFieldAndMask adds z(lat, lon), a mask that is 1 on the first three
// latitude rows, and the same mask stored as (lon, lat)
func addFieldAndMask(t *testing.T, m *datasource.Memory) {
	t.Helper()
	z := make([]float64, 100)
	mask := make([]float64, 100)
	transposed := make([]float64, 100)
	for lat := 0; lat < 10; lat++ {
		for lon := 0; lon < 10; lon++ {
			z[lat*10+lon] = f(float64(lat), float64(lon))
			if lat < 3 {
				mask[lat*10+lon] = 1
				transposed[lon*10+lat] = 1
			}
		}
	}
	require.NoError(t, m.AddVariable("z", []string{"lat", "lon"}, z))
	require.NoError(t, m.AddVariable("mask", []string{"lat", "lon"}, mask))
	require.NoError(t, m.AddVariable("transposed_mask", []string{"lon", "lat"}, transposed))
}

func newSource() *datasource.Memory {
	m := datasource.NewMemory()
	m.AddDimension("lat", 10)
	m.AddDimension("lon", 10)
	return m
}

// createGridSource holds 1D coordinate fields
func createGridSource(t *testing.T) *datasource.Memory {
	m := newSource()
	coords := make([]float64, 10)
	for i := range coords {
		coords[i] = float64(i)
	}
	require.NoError(t, m.AddVariable("latitude", []string{"lat"}, coords))
	require.NoError(t, m.AddVariable("longitude", []string{"lon"}, coords))
	addFieldAndMask(t, m)
	return m
}

// createGrid2DSource holds 2D coordinate fields, latitude stored as (lon, lat)
func createGrid2DSource(t *testing.T) *datasource.Memory {
	m := newSource()
	tiled := make([]float64, 100)
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			tiled[i*10+j] = float64(j)
		}
	}
	require.NoError(t, m.AddVariable("latitude", []string{"lon", "lat"}, tiled))
	require.NoError(t, m.AddVariable("longitude", []string{"lat", "lon"}, tiled))
	addFieldAndMask(t, m)
	return m
}

// createFieldSource holds only the field, no coordinates or mask
func createFieldSource(t *testing.T) *datasource.Memory {
	m := newSource()
	z := make([]float64, 100)
	for lat := 0; lat < 10; lat++ {
		for lon := 0; lon < 10; lon++ {
			z[lat*10+lon] = f(float64(lat), float64(lon))
		}
	}
	require.NoError(t, m.AddVariable("z", []string{"lat", "lon"}, z))
	return m
}

// point orders (lat, lon) like the grid's axes
func point(lat, lon float64, swapped bool) models.Point {
	if swapped {
		return models.Point{lon, lat}
	}
	return models.Point{lat, lon}
}

func has(comb []string, what ...string) bool {
	for _, c := range comb {
		for _, w := range what {
			if c == w {
				return true
			}
		}
	}
	return false
}

func newTestGrid(t *testing.T, src datasource.Source, swapped bool) *Grid {
	t.Helper()
	dims, coords := [2]string{"lat", "lon"}, [2]string{"latitude", "longitude"}
	if swapped {
		dims, coords = [2]string{"lon", "lat"}, [2]string{"longitude", "latitude"}
	}
	g, err := New(src, dims, coords)
	require.NoError(t, err)
	return g
}

func configure(t *testing.T, g *Grid, comb []string, swapped bool) {
	t.Helper()
	if has(comb, "ranges") {
		ranges := [2][2]float64{{0, 4}, {2, 8}}
		if swapped {
			ranges = [2][2]float64{{2, 8}, {0, 4}}
		}
		require.NoError(t, g.SetRange(ranges))
	}
	if has(comb, "mask") {
		require.NoError(t, g.SetMask("mask", interpolation.DefaultExtrapolationLevel))
	}
	if has(comb, "transposed_mask") {
		require.NoError(t, g.SetMask("transposed_mask", interpolation.DefaultExtrapolationLevel))
	}
	if has(comb, "mask_from_fill_value") {
		require.NoError(t, g.SetMaskFromFillValue("mask", 1.0, interpolation.DefaultExtrapolationLevel))
	}
}

func checkPreparedGrid(t *testing.T, g *Grid, comb []string, swapped bool) {
	t.Helper()
	ip, err := g.GetInterpolator("z")
	require.NoError(t, err)

	// always inside
	v, err := ip.Value(point(4.33, 5.2, swapped))
	require.NoError(t, err)
	assert.InDelta(t, f(4.33, 5.2), v, 1e-9)

	_, err = ip.Value(point(-4.95, 8.3, swapped))
	assert.ErrorIs(t, err, interpolation.ErrOutsideDomain)

	if has(comb, "mask", "transposed_mask", "mask_from_fill_value") {
		// between a row of land and of sea points: extrapolated from the nearest sea row
		v, err = ip.Value(point(1.2, 8.3, swapped))
		require.NoError(t, err)
		assert.InDelta(t, f(3, 8.3), v, 1e-9)

		// inside the first two land rows
		_, err = ip.Value(point(0.95, 8.3, swapped))
		var cerr *interpolation.CoordinateError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, point(0.95, 8.3, swapped), cerr.Point)
		assert.ErrorIs(t, err, interpolation.ErrInsideMask)
	}
	if has(comb, "ranges") {
		v, err = ip.Value(point(3, 7, swapped))
		require.NoError(t, err)
		assert.InDelta(t, f(3, 7), v, 1e-9)

		_, err = ip.Value(point(3.2, 0.9, swapped))
		assert.ErrorIs(t, err, interpolation.ErrOutsideDomain)
		_, err = ip.Value(point(5.9, 9.0, swapped))
		assert.ErrorIs(t, err, interpolation.ErrOutsideDomain)
	}
}

func TestAllCombinations(t *testing.T) {
	combinations := [][]string{
		{},
		{"ranges"},
		{"mask"},
		{"ranges", "mask"},
		{"transposed_mask"},
		{"ranges", "transposed_mask"},
		{"mask_from_fill_value"},
		{"ranges", "mask_from_fill_value"},
	}
	sources := map[string]func(*testing.T) *datasource.Memory{
		"1d coordinates": createGridSource,
		"2d coordinates": createGrid2DSource,
	}
	for name, create := range sources {
		for _, comb := range combinations {
			for _, swapped := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/%v/swapped=%v", name, comb, swapped), func(t *testing.T) {
					g := newTestGrid(t, create(t), swapped)
					configure(t, g, comb, swapped)
					checkPreparedGrid(t, g, comb, swapped)

					// same grid, field values stored in a separate source
					g2 := NewFromGrid(createFieldSource(t), g)
					checkPreparedGrid(t, g2, comb, swapped)
				})
			}
		}
	}
}

func TestGridFromNetCDFFiles(t *testing.T) {
	dir := t.TempDir()
	gridPath := filepath.Join(dir, "grid.nc")
	fieldPath := filepath.Join(dir, "values.nc")
	require.NoError(t, datasource.WriteCDF(gridPath, createGrid2DSource(t)))
	require.NoError(t, datasource.WriteNetCDF(fieldPath, createFieldSource(t)))

	for _, backend := range []string{datasource.BackendCDF, datasource.BackendNetCDF4} {
		t.Run(backend, func(t *testing.T) {
			comb := []string{"ranges", "transposed_mask"}

			src, err := datasource.Open(gridPath, backend)
			require.NoError(t, err)
			defer src.Close()
			g := newTestGrid(t, src, true)
			configure(t, g, comb, true)
			checkPreparedGrid(t, g, comb, true)

			values, err := datasource.Open(fieldPath, backend)
			require.NoError(t, err)
			defer values.Close()
			checkPreparedGrid(t, NewFromGrid(values, g), comb, true)
		})
	}
}

func TestConcurrentInterpolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.nc")
	require.NoError(t, datasource.WriteCDF(path, createGridSource(t)))

	sources := map[string]func() (datasource.Source, error){
		"memory": func() (datasource.Source, error) { return createGridSource(t), nil },
		datasource.BackendCDF: func() (datasource.Source, error) {
			return datasource.Open(path, datasource.BackendCDF)
		},
		datasource.BackendNetCDF4: func() (datasource.Source, error) {
			return datasource.Open(path, datasource.BackendNetCDF4)
		},
	}
	points := []models.Point{{4.33, 5.2}, {3.5, 4.1}, {3, 7}, {4.5, 3.5}}

	for name, open := range sources {
		t.Run(name, func(t *testing.T) {
			src, err := open()
			require.NoError(t, err)
			defer src.Close()
			g := newTestGrid(t, src, false)
			configure(t, g, []string{"ranges", "mask"}, false)

			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for k := 0; k < 20; k++ {
						ip, err := g.GetInterpolator("z")
						if err != nil {
							errs <- err
							return
						}
						for _, p := range points {
							v, err := ip.Value(p)
							if err != nil {
								errs <- err
								return
							}
							if want := f(p[0], p[1]); math.Abs(v-want) > 1e-9 {
								errs <- fmt.Errorf("value at %v: got %g, want %g", p, v, want)
								return
							}
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Error(err)
			}
		})
	}
}

func TestIndexWindow(t *testing.T) {
	axis := models.Axis{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	tests := []struct {
		lo, hi float64
		want   models.IndexRange
	}{
		{0, 4, models.IndexRange{Min: 0, Max: 6}},
		{2, 8, models.IndexRange{Min: 2, Max: 10}},
		{2.5, 3.5, models.IndexRange{Min: 2, Max: 6}},
		{-3, 0.5, models.IndexRange{Min: 0, Max: 3}},
		{5, 20, models.IndexRange{Min: 5, Max: 10}},
		{9, 9, models.IndexRange{Min: 0, Max: 10}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, indexWindow(axis, tc.lo, tc.hi), "range [%g, %g]", tc.lo, tc.hi)
	}
}

func TestSetRangeErrors(t *testing.T) {
	var cerr *ConfigurationError

	g := newTestGrid(t, createGridSource(t), false)
	require.NoError(t, g.SetMask("mask", 2))
	err := g.SetRange([2][2]float64{{0, 4}, {2, 8}})
	assert.True(t, errors.As(err, &cerr), "range after mask")

	g = newTestGrid(t, createGridSource(t), false)
	require.NoError(t, g.SetRange([2][2]float64{{0, 4}, {2, 8}}))
	err = g.SetRange([2][2]float64{{0, 4}, {2, 8}})
	assert.True(t, errors.As(err, &cerr), "second range")

	for _, ranges := range [][2][2]float64{
		{{10, 12}, {2, 8}},
		{{0, 4}, {-5, -1}},
		{{4, 0}, {2, 8}},
	} {
		g = newTestGrid(t, createGridSource(t), false)
		err = g.SetRange(ranges)
		assert.True(t, errors.As(err, &cerr), "ranges %v", ranges)
		_, ok := g.Ranges()
		assert.False(t, ok, "failed SetRange must not restrict the grid")
		assert.Len(t, g.Axes()[0], 10)
	}
}

func TestRangeRestrictedGridAgreesWithFullGrid(t *testing.T) {
	full := newTestGrid(t, createGridSource(t), false)
	restricted := newTestGrid(t, createGridSource(t), false)
	require.NoError(t, restricted.SetRange([2][2]float64{{2.5, 6.1}, {1, 4}}))

	ranges, ok := restricted.Ranges()
	require.True(t, ok)
	assert.Equal(t, [2]models.IndexRange{{Min: 2, Max: 9}, {Min: 1, Max: 6}}, ranges)

	ipFull, err := full.GetInterpolator("z")
	require.NoError(t, err)
	ipRestricted, err := restricted.GetInterpolator("z")
	require.NoError(t, err)

	lo, hi := ipRestricted.Bounds()
	for x := lo[0]; x <= hi[0]; x += 0.37 {
		for y := lo[1]; y <= hi[1]; y += 0.41 {
			a, err := ipFull.Value(models.Point{x, y})
			require.NoError(t, err)
			b, err := ipRestricted.Value(models.Point{x, y})
			require.NoError(t, err)
			assert.InDelta(t, a, b, 1e-9, "at (%f, %f)", x, y)
		}
	}
}

func TestSwappedAxesAgree(t *testing.T) {
	g := newTestGrid(t, createGridSource(t), false)
	gs := newTestGrid(t, createGridSource(t), true)
	require.NoError(t, g.SetMask("mask", 1))
	require.NoError(t, gs.SetMask("mask", 1))

	ip, err := g.GetInterpolator("z")
	require.NoError(t, err)
	ips, err := gs.GetInterpolator("z")
	require.NoError(t, err)

	for lat := 0.0; lat <= 9; lat += 0.45 {
		for lon := 0.0; lon <= 9; lon += 0.7 {
			a, errA := ip.Value(models.Point{lat, lon})
			b, errB := ips.Value(models.Point{lon, lat})
			if errA != nil {
				assert.ErrorIs(t, errB, interpolation.ErrInsideMask)
				continue
			}
			require.NoError(t, errB)
			assert.InDelta(t, a, b, 1e-12)
		}
	}
}

func TestGetFieldOrdersDimensions(t *testing.T) {
	src := createGridSource(t)
	src.AddDimension("time", 2)
	tz := make([]float64, 200)
	for k := 0; k < 2; k++ {
		for lon := 0; lon < 10; lon++ {
			for lat := 0; lat < 10; lat++ {
				tz[k*100+lon*10+lat] = 1000*float64(k) + f(float64(lat), float64(lon))
			}
		}
	}
	require.NoError(t, src.AddVariable("tz", []string{"lon", "time", "lat"}, reorder(tz)))

	g := newTestGrid(t, src, false)
	require.NoError(t, g.SetRange([2][2]float64{{0, 4}, {2, 8}}))

	field, err := g.GetField("tz")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 8}, field.Shape)
	assert.Equal(t, 1000+f(3, 7), field.Get(1, 3, 5))

	ip, err := g.GetInterpolatorAt("tz", 1)
	require.NoError(t, err)
	v, err := ip.Value(models.Point{3.5, 6.5})
	require.NoError(t, err)
	assert.InDelta(t, 1000+f(3.5, 6.5), v, 1e-9)

	var cerr *ConfigurationError
	_, err = g.GetInterpolatorAt("tz", 2)
	assert.True(t, errors.As(err, &cerr))
	_, err = g.GetInterpolatorAt("z", 0)
	assert.True(t, errors.As(err, &cerr))
	_, err = g.GetInterpolator("tz")
	assert.True(t, errors.As(err, &cerr))
}

// reorder turns (time, lon, lat) into the (lon, time, lat) storage order
func reorder(tz []float64) []float64 {
	out := make([]float64, len(tz))
	for k := 0; k < 2; k++ {
		for lon := 0; lon < 10; lon++ {
			for lat := 0; lat < 10; lat++ {
				out[lon*20+k*10+lat] = tz[k*100+lon*10+lat]
			}
		}
	}
	return out
}

func TestGetFieldErrors(t *testing.T) {
	src := createGridSource(t)
	src.AddDimension("a", 2)
	src.AddDimension("b", 2)
	require.NoError(t, src.AddVariable("twice", []string{"lat", "lat"}, make([]float64, 100)))
	require.NoError(t, src.AddVariable("four", []string{"a", "b", "lat", "lon"}, make([]float64, 400)))

	g := newTestGrid(t, src, false)
	var cerr *ConfigurationError

	_, err := g.GetField("nope")
	assert.True(t, errors.As(err, &cerr))
	assert.ErrorIs(t, err, datasource.ErrUnknownVariable)

	_, err = g.GetField("twice")
	assert.True(t, errors.As(err, &cerr))

	_, err = g.GetField("latitude")
	assert.True(t, errors.As(err, &cerr))

	field, err := g.GetField("four")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 10, 10}, field.Shape)

	require.NoError(t, g.SetRange([2][2]float64{{0, 4}, {2, 8}}))
	_, err = g.GetField("four")
	assert.True(t, errors.As(err, &cerr))
}

func TestNewErrors(t *testing.T) {
	src := createGridSource(t)
	src.AddDimension("c", 3)
	src.AddDimension("short", 9)
	require.NoError(t, src.AddVariable("cube", []string{"c", "lat", "lon"}, make([]float64, 300)))
	require.NoError(t, src.AddVariable("offgrid", []string{"c", "lon"}, make([]float64, 30)))
	require.NoError(t, src.AddVariable("shortlat", []string{"short"}, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, src.AddVariable("flat", []string{"lat"}, make([]float64, 10)))

	tests := []struct {
		name   string
		dims   [2]string
		coords [2]string
	}{
		{"unknown dimension", [2]string{"depth", "lon"}, [2]string{"latitude", "longitude"}},
		{"unknown coordinate", [2]string{"lat", "lon"}, [2]string{"nope", "longitude"}},
		{"3d coordinate", [2]string{"lat", "lon"}, [2]string{"cube", "longitude"}},
		{"2d coordinate off grid", [2]string{"lat", "lon"}, [2]string{"offgrid", "longitude"}},
		{"length mismatch", [2]string{"lat", "lon"}, [2]string{"shortlat", "longitude"}},
		{"not increasing", [2]string{"lat", "lon"}, [2]string{"flat", "longitude"}},
		{"same dimension", [2]string{"lat", "lat"}, [2]string{"latitude", "latitude"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(src, tc.dims, tc.coords)
			var cerr *ConfigurationError
			assert.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}
}

func TestMaskErrors(t *testing.T) {
	src := createGridSource(t)
	src.AddDimension("c", 3)
	require.NoError(t, src.AddVariable("cube", []string{"c", "lat", "lon"}, make([]float64, 300)))

	g := newTestGrid(t, src, false)
	var cerr *ConfigurationError

	assert.True(t, errors.As(g.SetMask("cube", 2), &cerr))
	assert.True(t, errors.As(g.SetMask("mask", -1), &cerr))
	assert.ErrorIs(t, g.SetMaskFromFillValue("mask", 1, -1), interpolation.ErrBadLevel)
	assert.Nil(t, g.Mask())

	require.NoError(t, g.SetMaskFromFillValue("mask", 1, 3))
	assert.Equal(t, 30, g.Mask().Count())
	assert.Equal(t, 3, g.ExtrapolationLevel())
}

func TestGetInterpolatorFromArray(t *testing.T) {
	g := newTestGrid(t, createGridSource(t), true)
	require.NoError(t, g.SetRange([2][2]float64{{2, 8}, {0, 4}}))

	z, err := g.GetField("z")
	require.NoError(t, err)
	mask, err := g.GetField("mask")
	require.NoError(t, err)

	// combine two stored fields before interpolating
	combined := sparse.ZerosDense(z.Shape...)
	for k := range combined.Elements {
		combined.Elements[k] = 2*z.Elements[k] + mask.Elements[k]
	}
	ip, err := g.GetInterpolatorFromArray(combined)
	require.NoError(t, err)
	v, err := ip.Value(models.Point{6.5, 4.5})
	require.NoError(t, err)
	assert.InDelta(t, 2*f(4.5, 6.5), v, 1e-9)

	var cerr *ConfigurationError
	_, err = g.GetInterpolatorFromArray(sparse.ZerosDense(10, 10))
	assert.True(t, errors.As(err, &cerr))
}

func TestNewFromGridIsIndependent(t *testing.T) {
	g := newTestGrid(t, createGridSource(t), false)
	g2 := NewFromGrid(createFieldSource(t), g)

	require.NoError(t, g.SetRange([2][2]float64{{0, 4}, {2, 8}}))
	require.NoError(t, g.SetMask("mask", 2))

	_, ok := g2.Ranges()
	assert.False(t, ok)
	assert.Nil(t, g2.Mask())
	assert.Len(t, g2.Axes()[0], 10)
	assert.Equal(t, [2]string{"lat", "lon"}, g2.Dimensions())

	// a copy of a configured grid keeps its state and cannot be re-ranged
	g3 := NewFromGrid(createFieldSource(t), g)
	assert.Same(t, g.Mask(), g3.Mask())
	assert.Equal(t, g.Axes(), g3.Axes())
	assert.Error(t, g3.SetRange([2][2]float64{{0, 4}, {2, 8}}))
}
