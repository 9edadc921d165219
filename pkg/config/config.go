// Package config provides configuration loading and management for ncgrid.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"ncgrid/pkg/datasource"
	"ncgrid/pkg/interpolation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid describes where the grid coordinates are stored
	Grid struct {
		// File is the NetCDF file holding the coordinate fields
		File string `yaml:"file"`

		// Backend selects the file reader: auto, cdf or netcdf4
		Backend string `yaml:"backend"`

		// Dimensions are the two logical grid dimensions, in query order
		Dimensions []string `yaml:"dimensions"`

		// Coordinates are the coordinate fields varying along each dimension
		Coordinates []string `yaml:"coordinates"`

		// Ranges optionally restricts the grid to one (min, max) pair per axis
		Ranges [][]float64 `yaml:"ranges,omitempty"`
	} `yaml:"grid"`

	// Mask parameters, disabled when Field is empty
	Mask struct {
		// Field is the field marking land points
		Field string `yaml:"field"`

		// FillValue, when set, masks points equal to it instead of nonzero points
		FillValue *float64 `yaml:"fillValue,omitempty"`

		// ExtrapolationLevel is the number of passes filling masked points
		ExtrapolationLevel int `yaml:"extrapolationLevel"`
	} `yaml:"mask"`

	// Values names the interpolated field
	Values struct {
		// File holds the field, the grid file when empty
		File string `yaml:"file"`

		// Field is the interpolated field
		Field string `yaml:"field"`

		// Index selects one leading index of a 3D field, -1 for 2D fields
		Index int `yaml:"index"`
	} `yaml:"values"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many goroutines evaluate query points
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Render parameters
	Render struct {
		// Output is the JPEG written by the render step, disabled when empty
		Output string `yaml:"output"`

		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"render"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default grid parameters, matching the sample dataset
	cfg.Grid.File = "sample.nc"
	cfg.Grid.Backend = datasource.BackendAuto
	cfg.Grid.Dimensions = []string{"lat", "lon"}
	cfg.Grid.Coordinates = []string{"latitude", "longitude"}

	// Set default mask parameters
	cfg.Mask.Field = "mask"
	cfg.Mask.ExtrapolationLevel = interpolation.DefaultExtrapolationLevel

	// Set default value parameters
	cfg.Values.Field = "z"
	cfg.Values.Index = -1

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	// Set default render parameters
	cfg.Render.Width = 400
	cfg.Render.Height = 400

	cfg.Output.Verbose = false

	return cfg
}

// Validate checks the configuration for values the grid cannot be built from
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Grid.File == "" {
		errs = append(errs, errors.New("grid.file is required"))
	}
	switch cfg.Grid.Backend {
	case datasource.BackendAuto, datasource.BackendCDF, datasource.BackendNetCDF4:
	default:
		errs = append(errs, fmt.Errorf("grid.backend %q is not one of auto, cdf, netcdf4", cfg.Grid.Backend))
	}
	if len(cfg.Grid.Dimensions) != 2 {
		errs = append(errs, fmt.Errorf("grid.dimensions needs 2 names, got %d", len(cfg.Grid.Dimensions)))
	}
	if len(cfg.Grid.Coordinates) != 2 {
		errs = append(errs, fmt.Errorf("grid.coordinates needs 2 names, got %d", len(cfg.Grid.Coordinates)))
	}
	if cfg.Grid.Ranges != nil {
		if len(cfg.Grid.Ranges) != 2 {
			errs = append(errs, fmt.Errorf("grid.ranges needs 2 pairs, got %d", len(cfg.Grid.Ranges)))
		}
		for i, r := range cfg.Grid.Ranges {
			if len(r) != 2 {
				errs = append(errs, fmt.Errorf("grid.ranges[%d] needs (min, max), got %v", i, r))
			}
		}
	}
	if cfg.Mask.ExtrapolationLevel < 0 {
		errs = append(errs, fmt.Errorf("mask.extrapolationLevel must be non-negative, got %d", cfg.Mask.ExtrapolationLevel))
	}
	if cfg.Values.Field == "" {
		errs = append(errs, errors.New("values.field is required"))
	}
	if cfg.Values.Index < -1 {
		errs = append(errs, fmt.Errorf("values.index must be -1 or a leading index, got %d", cfg.Values.Index))
	}
	if cfg.Processing.NumCores < 1 {
		errs = append(errs, fmt.Errorf("processing.numCores must be positive, got %d", cfg.Processing.NumCores))
	}
	if cfg.Render.Output != "" && (cfg.Render.Width < 2 || cfg.Render.Height < 2) {
		errs = append(errs, fmt.Errorf("render size must be at least 2x2, got %dx%d", cfg.Render.Width, cfg.Render.Height))
	}
	return errors.Join(errs...)
}

// GridDimensions returns the configured dimension names as a pair.
// Validate must have succeeded.
func (cfg *Config) GridDimensions() [2]string {
	return [2]string{cfg.Grid.Dimensions[0], cfg.Grid.Dimensions[1]}
}

// GridCoordinates returns the configured coordinate field names as a pair.
// Validate must have succeeded.
func (cfg *Config) GridCoordinates() [2]string {
	return [2]string{cfg.Grid.Coordinates[0], cfg.Grid.Coordinates[1]}
}

// GridRanges returns the configured ranges, or false if none are set.
// Validate must have succeeded.
func (cfg *Config) GridRanges() ([2][2]float64, bool) {
	var r [2][2]float64
	if cfg.Grid.Ranges == nil {
		return r, false
	}
	for i := range r {
		r[i] = [2]float64{cfg.Grid.Ranges[i][0], cfg.Grid.Ranges[i][1]}
	}
	return r, true
}

// ValuesFile returns the file holding the interpolated field
func (cfg *Config) ValuesFile() string {
	if cfg.Values.File == "" {
		return cfg.Grid.File
	}
	return cfg.Values.File
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
