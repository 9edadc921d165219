// Package session runs a configured grid: it opens the data files, builds the
// grid and its interpolator, and evaluates batches of query points in
// parallel.
//
// The pipeline consists of several steps:
// 1. Opening the grid file and reading the coordinates
// 2. Restricting the grid to the configured ranges
// 3. Reading the land mask
// 4. Building the interpolator for the configured field, from the grid file
// or a separate values file
// 5. Evaluating query points or rendering the field
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"ncgrid/internal/models"
	"ncgrid/pkg/config"
	"ncgrid/pkg/datasource"
	"ncgrid/pkg/grid"
	"ncgrid/pkg/interpolation"
	"ncgrid/pkg/visualization"
)

// Result is the outcome of evaluating one query point. Err is a
// *interpolation.CoordinateError when the point is outside the domain or
// inside the land mask.
type Result struct {
	Point models.Point
	Value float64
	Err   error
}

// Session holds an open grid and the interpolator of its configured field
type Session struct {
	cfg *config.Config

	// sources are closed with the session, grid file first
	sources []datasource.Source

	grid *grid.Grid
	ip   *interpolation.Interpolator
}

// Open builds the grid and interpolator described by cfg
func Open(cfg *config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &Session{cfg: cfg}
	if err := s.open(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	start := time.Now()
	cfg := s.cfg

	src, err := datasource.Open(cfg.Grid.File, cfg.Grid.Backend)
	if err != nil {
		return fmt.Errorf("opening grid file: %w", err)
	}
	s.sources = append(s.sources, src)

	g, err := grid.New(src, cfg.GridDimensions(), cfg.GridCoordinates())
	if err != nil {
		return err
	}
	if ranges, ok := cfg.GridRanges(); ok {
		if err := g.SetRange(ranges); err != nil {
			return err
		}
	}
	if cfg.Mask.Field != "" {
		if cfg.Mask.FillValue != nil {
			err = g.SetMaskFromFillValue(cfg.Mask.Field, *cfg.Mask.FillValue, cfg.Mask.ExtrapolationLevel)
		} else {
			err = g.SetMask(cfg.Mask.Field, cfg.Mask.ExtrapolationLevel)
		}
		if err != nil {
			return err
		}
	}

	if cfg.ValuesFile() != cfg.Grid.File {
		values, err := datasource.Open(cfg.ValuesFile(), cfg.Grid.Backend)
		if err != nil {
			return fmt.Errorf("opening values file: %w", err)
		}
		s.sources = append(s.sources, values)
		g = grid.NewFromGrid(values, g)
	}
	s.grid = g

	if cfg.Values.Index >= 0 {
		s.ip, err = g.GetInterpolatorAt(cfg.Values.Field, cfg.Values.Index)
	} else {
		s.ip, err = g.GetInterpolator(cfg.Values.Field)
	}
	if err != nil {
		return err
	}

	if glog.V(1) {
		lo, hi := s.ip.Bounds()
		glog.Infof("field %q ready on [%v, %v] in %v", cfg.Values.Field, lo, hi, time.Since(start))
	}
	return nil
}

// Grid returns the configured grid
func (s *Session) Grid() *grid.Grid { return s.grid }

// Interpolator returns the interpolator of the configured field
func (s *Session) Interpolator() *interpolation.Interpolator { return s.ip }

// Evaluate evaluates the points on processing.numCores goroutines. Results are
// returned in input order; a failed point does not stop the others.
func (s *Session) Evaluate(points []models.Point) []Result {
	results := make([]Result, len(points))
	if len(points) == 0 {
		return results
	}

	numWorkers := s.cfg.Processing.NumCores
	if numWorkers > len(points) {
		numWorkers = len(points)
	}

	// Create a channel for results
	type evaluationResult struct {
		idx   int
		value float64
		err   error
	}
	jobs := make(chan int)
	resultChan := make(chan evaluationResult)

	for w := 0; w < numWorkers; w++ {
		go func() {
			for idx := range jobs {
				v, err := s.ip.Value(points[idx])
				resultChan <- evaluationResult{idx: idx, value: v, err: err}
			}
		}()
	}
	go func() {
		for idx := range points {
			jobs <- idx
		}
		close(jobs)
	}()

	// Collect results
	failed := 0
	for completed := 0; completed < len(points); completed++ {
		res := <-resultChan
		results[res.idx] = Result{Point: points[res.idx], Value: res.value, Err: res.err}
		if res.err != nil {
			failed++
		}
	}
	glog.V(1).Infof("evaluated %d points on %d workers, %d failed", len(points), numWorkers, failed)
	return results
}

// Render samples the field on the configured raster size
func (s *Session) Render() (*visualization.Raster, error) {
	return visualization.Render(s.ip, s.cfg.Render.Width, s.cfg.Render.Height)
}

// Close closes the data files
func (s *Session) Close() error {
	var first error
	for _, src := range s.sources {
		if err := src.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.sources = nil
	return first
}

// ParsePoint parses "x,y" or "x y" into a point
func ParsePoint(text string) (models.Point, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) != 2 {
		return models.Point{}, fmt.Errorf("point %q: want two coordinates", text)
	}
	var p models.Point
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return models.Point{}, fmt.Errorf("point %q: %w", text, err)
		}
		p[i] = v
	}
	return p, nil
}
