package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"ncgrid/internal/models"
	"ncgrid/pkg/config"
	"ncgrid/pkg/interpolation"
	"ncgrid/pkg/session"
	"ncgrid/pkg/visualization"
)

// pointList collects repeated -point flags
type pointList []models.Point

func (p *pointList) String() string { return fmt.Sprint(*p) }

func (p *pointList) Set(s string) error {
	pt, err := session.ParsePoint(s)
	if err != nil {
		return err
	}
	*p = append(*p, pt)
	return nil
}

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "ncgrid.yaml", "YAML configuration of the grid")
	renderPath := flag.String("render", "", "Write a JPEG of the field, overriding render.output")
	initConfig := flag.String("init-config", "", "Write the default configuration to this path and exit")
	writeSample := flag.String("write-sample", "", "Write the 10x10 sample dataset as NetCDF to this path and exit")
	var points pointList
	flag.Var(&points, "point", "Query point x,y in grid axis order (repeatable, default: read from stdin)")
	flag.Parse()
	defer glog.Flush()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			glog.Exitf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *initConfig)
		return
	}
	if *writeSample != "" {
		if err := session.WriteSample(*writeSample); err != nil {
			glog.Exitf("Failed to write sample dataset: %v", err)
		}
		fmt.Printf("Sample dataset written to: %s\n", *writeSample)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	if *renderPath != "" {
		cfg.Render.Output = *renderPath
	}
	if cfg.Output.Verbose {
		flag.Set("v", "1")
	}

	startTime := time.Now()
	s, err := session.Open(cfg)
	if err != nil {
		glog.Exitf("Failed to build grid: %v", err)
	}
	defer s.Close()
	glog.V(1).Infof("grid ready in %v", time.Since(startTime))

	if cfg.Render.Output != "" {
		if err := render(s, cfg.Render.Output); err != nil {
			glog.Warningf("Failed to render field: %v", err)
		}
		if len(points) == 0 {
			return
		}
	}

	if len(points) == 0 {
		points, err = readPoints(os.Stdin)
		if err != nil {
			glog.Exitf("Failed to read points: %v", err)
		}
	}
	printResults(os.Stdout, s.Evaluate(points))
}

// readPoints reads one point per line, skipping blank lines and # comments
func readPoints(r io.Reader) ([]models.Point, error) {
	var points []models.Point
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		p, err := session.ParsePoint(text)
		if err != nil {
			glog.Warningf("line %d: %v", line, err)
			continue
		}
		points = append(points, p)
	}
	return points, scanner.Err()
}

func printResults(w io.Writer, results []session.Result) {
	for _, r := range results {
		var cerr *interpolation.CoordinateError
		switch {
		case r.Err == nil:
			fmt.Fprintf(w, "%g %g %g\n", r.Point[0], r.Point[1], r.Value)
		case errors.As(r.Err, &cerr):
			fmt.Fprintf(w, "%g %g error: %v\n", r.Point[0], r.Point[1], cerr.Reason)
		default:
			fmt.Fprintf(w, "%g %g error: %v\n", r.Point[0], r.Point[1], r.Err)
		}
	}
}

func render(s *session.Session, path string) error {
	raster, err := s.Render()
	if err != nil {
		return err
	}
	if err := visualization.SaveJPEG(raster.Image(), path); err != nil {
		return err
	}
	stats := raster.Stats()
	fmt.Printf("Field rendered to: %s (%dx%d)\n", path, raster.Width, raster.Height)
	fmt.Printf("Min: %g  Max: %g  Mean: %g  Invalid samples: %d\n", stats.Min, stats.Max, stats.Mean, stats.Invalid)
	return nil
}
