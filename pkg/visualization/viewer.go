package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ncgrid/internal/models"
)

// Evaluator is an interpolated field that can be sampled over its domain
type Evaluator interface {
	Value(p models.Point) (float64, error)
	Bounds() (lo, hi models.Point)
}

// Raster holds a field sampled on a regular lattice spanning an evaluator's
// domain. Samples that could not be evaluated are NaN.
type Raster struct {
	// Width and Height are the number of samples along axis 0 and axis 1
	Width  int
	Height int

	// Data is row-major, Data[row*Width + col]. Row 0 is the axis 1 maximum.
	Data []float64

	// Lo and Hi are the corners of the sampled domain
	Lo models.Point
	Hi models.Point
}

// Stats summarises the valid samples of a raster
type Stats struct {
	Min     float64
	Max     float64
	Mean    float64
	Invalid int
}

// Render samples ip on a width x height lattice including the domain edges
func Render(ip Evaluator, width, height int) (*Raster, error) {
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("raster must be at least 2x2, got %dx%d", width, height)
	}
	lo, hi := ip.Bounds()
	r := &Raster{
		Width:  width,
		Height: height,
		Data:   make([]float64, width*height),
		Lo:     lo,
		Hi:     hi,
	}

	xs := make([]float64, width)
	floats.Span(xs, lo[0], hi[0])
	ys := make([]float64, height)
	floats.Span(ys, hi[1], lo[1])

	for row, y := range ys {
		for col, x := range xs {
			v, err := ip.Value(models.Point{x, y})
			if err != nil {
				v = math.NaN()
			}
			r.Data[row*width+col] = v
		}
	}
	return r, nil
}

// At returns the sample at (col, row)
func (r *Raster) At(col, row int) float64 {
	return r.Data[row*r.Width+col]
}

// Stats returns the range and mean of the valid samples. Min, Max and Mean
// are NaN when no sample is valid.
func (r *Raster) Stats() Stats {
	valid := make([]float64, 0, len(r.Data))
	for _, v := range r.Data {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	s := Stats{Invalid: len(r.Data) - len(valid)}
	if len(valid) == 0 {
		s.Min, s.Max, s.Mean = math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Min = floats.Min(valid)
	s.Max = floats.Max(valid)
	s.Mean = stat.Mean(valid, nil)
	return s
}

// Image maps the valid samples linearly onto [1, 65535], invalid samples are
// black
func (r *Raster) Image() *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	s := r.Stats()
	span := s.Max - s.Min

	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			v := r.At(col, row)
			if math.IsNaN(v) {
				continue
			}
			level := 1.0
			if span > 0 {
				level = (v - s.Min) / span
			}
			y := uint16(math.Max(1, math.Min(65535, math.Round(level*65535))))
			img.SetGray16(col, row, color.Gray16{Y: y})
		}
	}
	return img
}

// SaveJPEG writes img as a JPEG file, creating the directory if needed
func SaveJPEG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
