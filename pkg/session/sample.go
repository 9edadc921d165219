package session

import (
	"ncgrid/pkg/datasource"
)

// SampleValue is the field stored in the sample dataset
func SampleValue(lat, lon float64) float64 {
	return 10*lat + lon
}

// SampleSource returns a 10x10 demonstration grid: coordinates 0..9 along lat
// and lon, z = SampleValue(lat, lon), a mask covering lat < 3, and a field
// zt(time, lat, lon) offset by 100 per time step.
func SampleSource() *datasource.Memory {
	const n, steps = 10, 3
	m := datasource.NewMemory()
	m.AddDimension("time", steps)
	m.AddDimension("lat", n)
	m.AddDimension("lon", n)

	coords := make([]float64, n)
	for i := range coords {
		coords[i] = float64(i)
	}
	z := make([]float64, n*n)
	mask := make([]float64, n*n)
	zt := make([]float64, steps*n*n)
	for lat := 0; lat < n; lat++ {
		for lon := 0; lon < n; lon++ {
			v := SampleValue(float64(lat), float64(lon))
			z[lat*n+lon] = v
			if lat < 3 {
				mask[lat*n+lon] = 1
			}
			for k := 0; k < steps; k++ {
				zt[k*n*n+lat*n+lon] = v + 100*float64(k)
			}
		}
	}

	for _, v := range []struct {
		name   string
		dims   []string
		values []float64
	}{
		{"latitude", []string{"lat"}, coords},
		{"longitude", []string{"lon"}, coords},
		{"z", []string{"lat", "lon"}, z},
		{"mask", []string{"lat", "lon"}, mask},
		{"zt", []string{"time", "lat", "lon"}, zt},
	} {
		// shapes are fixed above
		if err := m.AddVariable(v.name, v.dims, v.values); err != nil {
			panic(err)
		}
	}
	return m
}

// WriteSample writes the sample dataset as a NetCDF classic file
func WriteSample(path string) error {
	return datasource.WriteCDF(path, SampleSource())
}
