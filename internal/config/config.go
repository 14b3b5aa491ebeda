// Package config holds runtime settings for the CLI and the workspace
// server. Values may be loaded from a JSON file and overridden by
// command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/tampercheck/internal/align"
	"github.com/cwbudde/tampercheck/internal/viewport"
)

// Config holds runtime configuration.
type Config struct {
	Addr string `json:"addr"`

	// Workspace
	SurfaceWidth   float64 `json:"surface_width"`
	SurfaceHeight  float64 `json:"surface_height"`
	MinScale       float64 `json:"min_scale"`
	MaxScale       float64 `json:"max_scale"`
	ScaleStep      float64 `json:"scale_step"`
	DefaultOpacity float64 `json:"default_opacity"`
	Perceptual     bool    `json:"perceptual"`

	// Uploads
	MaxUploadBytes int64 `json:"max_upload_bytes"`
	MaxImagePixels int64 `json:"max_image_pixels"`

	// Auto-alignment
	AlignIterations int   `json:"align_iterations"`
	AlignPopulation int   `json:"align_population"`
	AlignSeed       int64 `json:"align_seed"`
	AlignGrid       int   `json:"align_grid"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	ap := align.DefaultParams()
	return &Config{
		Addr:            "localhost:8080",
		SurfaceWidth:    viewport.DefaultSurface.W,
		SurfaceHeight:   viewport.DefaultSurface.H,
		MinScale:        viewport.DefaultScaleRange.Min,
		MaxScale:        viewport.DefaultScaleRange.Max,
		ScaleStep:       0.05,
		DefaultOpacity:  0.7,
		MaxUploadBytes:  32 << 20,
		MaxImagePixels:  64 << 20,
		AlignIterations: ap.Iterations,
		AlignPopulation: ap.Population,
		AlignSeed:       ap.Seed,
		AlignGrid:       ap.Grid,
	}
}

// Validate clamps/normalizes values to safe ranges. It only fails when the
// server address is empty.
func (c *Config) Validate() error {
	d := DefaultConfig()

	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.SurfaceWidth <= 0 || c.SurfaceHeight <= 0 {
		c.SurfaceWidth, c.SurfaceHeight = d.SurfaceWidth, d.SurfaceHeight
	}
	if c.MinScale <= 0 {
		c.MinScale = d.MinScale
	}
	if c.MaxScale < c.MinScale {
		c.MaxScale = c.MinScale
	}
	if c.ScaleStep <= 0 || c.ScaleStep > c.MaxScale-c.MinScale {
		c.ScaleStep = d.ScaleStep
	}
	if c.DefaultOpacity < 0.1 || c.DefaultOpacity > 1 {
		c.DefaultOpacity = d.DefaultOpacity
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxImagePixels <= 0 {
		c.MaxImagePixels = d.MaxImagePixels
	}
	if c.AlignIterations <= 0 {
		c.AlignIterations = d.AlignIterations
	}
	if c.AlignPopulation < 20 {
		c.AlignPopulation = d.AlignPopulation
	}
	if c.AlignGrid < 8 {
		c.AlignGrid = d.AlignGrid
	}
	return nil
}

// Surface returns the configured display surface.
func (c *Config) Surface() viewport.Surface {
	return viewport.Surface{W: c.SurfaceWidth, H: c.SurfaceHeight}
}

// ScaleRange returns the configured slider range.
func (c *Config) ScaleRange() viewport.ScaleRange {
	return viewport.ScaleRange{Min: c.MinScale, Max: c.MaxScale}
}

// AlignParams returns the auto-alignment budget.
func (c *Config) AlignParams() align.Params {
	return align.Params{
		Iterations: c.AlignIterations,
		Population: c.AlignPopulation,
		Seed:       c.AlignSeed,
		Grid:       c.AlignGrid,
		ScaleRange: c.ScaleRange(),
	}
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns DefaultConfig(). Keys missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
