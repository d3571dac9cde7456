// Package config provides configuration loading and access for the fluid solver.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all solver configuration parameters.
type Config struct {
	Boundary  BoundaryConfig  `yaml:"boundary"`
	Particle  ParticleConfig  `yaml:"particle"`
	Solver    SolverConfig    `yaml:"solver"`
	Limits    LimitsConfig    `yaml:"limits"`
	Threading ThreadingConfig `yaml:"threading"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// BoundaryConfig describes the simulated domain. The domain is centered on the origin.
type BoundaryConfig struct {
	Width  float64 `yaml:"width"`  // World units
	Aspect float64 `yaml:"aspect"` // Width / height
}

// ParticleConfig holds per-particle geometry.
type ParticleConfig struct {
	Radius          float64 `yaml:"radius"`
	CollisionRadius float64 `yaml:"collision_radius"` // 0 = radius
	// CollisionMargin must be numerically significant but visually insignificant.
	CollisionMargin float64 `yaml:"collision_margin"`
	JitterScale     float64 `yaml:"jitter_scale"` // Spawn jitter as a fraction of kernel height
}

// SolverConfig holds the default SPH parameters and the fixed step.
type SolverConfig struct {
	KernelHeightFactor  float64 `yaml:"kernel_height_factor"` // Kernel height = radius * this
	SpacingFactor       float64 `yaml:"spacing_factor"`       // Spacing = kernel height * this
	RestDensity         float64 `yaml:"rest_density"`
	Stiffness           float64 `yaml:"stiffness"`
	NearStiffnessFactor float64 `yaml:"near_stiffness_factor"` // Near stiffness = stiffness * this
	LinearViscosity     float64 `yaml:"linear_viscosity"`
	QuadraticViscosity  float64 `yaml:"quadratic_viscosity"`
	DT                  float64 `yaml:"dt"`
	Substeps            int     `yaml:"substeps"`
}

// LimitsConfig holds the fixed capacities. Exceeding any of them is reported as an error.
type LimitsConfig struct {
	MaxCellParticles   int `yaml:"max_cell_particles"`
	MaxNeighbors       int `yaml:"max_neighbors"`
	MaxParticles       int `yaml:"max_particles"`
	MaxBodies          int `yaml:"max_bodies"`
	MaxEmitters        int `yaml:"max_emitters"`
	MaxPolygonVertices int `yaml:"max_polygon_vertices"`
}

// ThreadingConfig holds worker pool settings.
type ThreadingConfig struct {
	Enabled bool `yaml:"enabled"`
	Workers int  `yaml:"workers"` // 0 = GOMAXPROCS
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow float64 `yaml:"stats_window"` // Seconds of simulated time per window
	PerfWindow  int     `yaml:"perf_window"`  // Frames averaged by the perf collector
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	BoundaryWidth   float32
	BoundaryHeight  float32
	HalfWidth       float32
	HalfHeight      float32
	KernelHeight    float32
	CellSize        float32 // Equals kernel height
	GridCountX      int
	GridCountY      int
	ParticleSpacing float32
	CollisionRadius float32
	CollisionMargin float32
	JitterScale     float32
	DT32            float32 // Solver.DT as float32
	SubstepDT       float32 // DT / substeps
}

// maxPolygonStorage is the fixed vertex storage of a polygon body.
const maxPolygonStorage = 8

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns the embedded defaults. It panics if they do not parse.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// validate rejects configurations the grid and solver cannot be built from.
func (c *Config) validate() error {
	switch {
	case c.Boundary.Width <= 0 || c.Boundary.Aspect <= 0:
		return fmt.Errorf("config: boundary width and aspect must be positive")
	case c.Particle.Radius <= 0:
		return fmt.Errorf("config: particle radius must be positive")
	case c.Particle.Radius <= c.Particle.CollisionMargin:
		return fmt.Errorf("config: particle radius %v must exceed collision margin %v",
			c.Particle.Radius, c.Particle.CollisionMargin)
	case c.Solver.KernelHeightFactor <= 0:
		return fmt.Errorf("config: kernel height factor must be positive")
	case c.Solver.DT <= 0:
		return fmt.Errorf("config: dt must be positive")
	case c.Limits.MaxCellParticles <= 0 || c.Limits.MaxNeighbors <= 0 || c.Limits.MaxParticles <= 0:
		return fmt.Errorf("config: particle limits must be positive")
	case c.Limits.MaxPolygonVertices < 3 || c.Limits.MaxPolygonVertices > maxPolygonStorage:
		return fmt.Errorf("config: max polygon vertices must be in [3, %d]", maxPolygonStorage)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	d := &c.Derived

	d.BoundaryWidth = float32(c.Boundary.Width)
	d.BoundaryHeight = float32(c.Boundary.Width / c.Boundary.Aspect)
	d.HalfWidth = d.BoundaryWidth * 0.5
	d.HalfHeight = d.BoundaryHeight * 0.5

	d.KernelHeight = float32(c.Particle.Radius * c.Solver.KernelHeightFactor)
	d.CellSize = d.KernelHeight
	d.GridCountX = max(int(d.BoundaryWidth/d.CellSize), 1)
	d.GridCountY = max(int(d.BoundaryHeight/d.CellSize), 1)
	d.ParticleSpacing = d.KernelHeight * float32(c.Solver.SpacingFactor)

	d.CollisionRadius = float32(c.Particle.CollisionRadius)
	if d.CollisionRadius == 0 {
		d.CollisionRadius = float32(c.Particle.Radius)
	}
	d.CollisionMargin = float32(c.Particle.CollisionMargin)
	d.JitterScale = float32(c.Particle.JitterScale)

	if c.Solver.Substeps < 1 {
		c.Solver.Substeps = 1
	}
	d.DT32 = float32(c.Solver.DT)
	d.SubstepDT = d.DT32 / float32(c.Solver.Substeps)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
