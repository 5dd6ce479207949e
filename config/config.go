// Package config provides configuration loading and access for the
// simulation. Core packages receive explicit structs built from this; only
// the binaries touch the global singleton.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid          GridConfig          `yaml:"grid"`
	Boundary      BoundaryConfig      `yaml:"boundary"`
	Phases        []PhaseConfig       `yaml:"phases"`
	Interface     InterfaceConfig     `yaml:"interface"`
	Driving       DrivingConfig       `yaml:"driving"`
	Normalization NormalizationConfig `yaml:"normalization"`
	Time          TimeConfig          `yaml:"time"`
	Initial       InitialConfig       `yaml:"initial"`
	Nucleation    NucleationConfig    `yaml:"nucleation"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Checkpoint    CheckpointConfig    `yaml:"checkpoint"`
	Run           RunConfig           `yaml:"run"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the simulation grid geometry.
type GridConfig struct {
	Nx             int     `yaml:"nx"`
	Ny             int     `yaml:"ny"`
	Nz             int     `yaml:"nz"`
	Dx             float64 `yaml:"dx"`              // cell spacing in meters
	InterfaceWidth int     `yaml:"interface_width"` // diffuse interface width in cells
	Bcells         int     `yaml:"bcells"`          // minimum halo width
	Resolution     string  `yaml:"resolution"`      // single or dual
	Stencil        string  `yaml:"stencil"`         // simple or isotropic Laplacian
}

// BoundaryConfig holds one rule per face: periodic, noflux or fixed.
type BoundaryConfig struct {
	X0 string `yaml:"x0"`
	XN string `yaml:"xn"`
	Y0 string `yaml:"y0"`
	YN string `yaml:"yn"`
	Z0 string `yaml:"z0"`
	ZN string `yaml:"zn"`
}

// PhaseConfig describes one thermodynamic phase.
type PhaseConfig struct {
	Name    string `yaml:"name"`
	Solid   bool   `yaml:"solid"`
	Combine bool   `yaml:"combine"` // absorb stable same-phase grains into the majority
}

// InterfaceConfig holds the phase-pair interface parameters.
type InterfaceConfig struct {
	Pairs                []PairConfig `yaml:"pairs"`
	RegularizationFactor float64      `yaml:"regularization_factor"`
}

// PairConfig sets energy and mobility of one unordered phase pair. Pairs
// not listed fall back to the defaults.
type PairConfig struct {
	PhaseA   int     `yaml:"phase_a"`
	PhaseB   int     `yaml:"phase_b"`
	Energy   float64 `yaml:"energy"`   // J/m^2
	Mobility float64 `yaml:"mobility"` // m^4/(J s)
	Limit    float64 `yaml:"limit"`    // driving force limiter fraction
}

// DrivingConfig holds the driving-force post-processing parameters.
type DrivingConfig struct {
	Averaging   bool    `yaml:"averaging"`
	Limiting    bool    `yaml:"limiting"`
	Range       int     `yaml:"range"`     // averaging window radius in cells (0 = derive from interface width)
	Threshold   float64 `yaml:"threshold"` // occupancy band seeding the averaging (0 = derive)
	WeightsMode string  `yaml:"weights_mode"`
}

// NormalizationConfig holds the increment normalization parameters.
type NormalizationConfig struct {
	IterationCap int  `yaml:"iteration_cap"` // clamp loop bound (0 = default)
	Debug        bool `yaml:"debug"`         // per-step conservation check, fatal on violation
}

// TimeConfig holds the time integration parameters.
type TimeConfig struct {
	Dt         float64 `yaml:"dt"`
	Steps      int     `yaml:"steps"`
	Adaptive   bool    `yaml:"adaptive"`    // shrink dt to the stability estimate each step
	TheorLimit float64 `yaml:"theor_limit"` // fraction of the Neumann bound
	NumerLimit float64 `yaml:"numer_limit"` // max per-step increment under adaptive stepping
}

// InitialConfig selects the starting microstructure.
type InitialConfig struct {
	Type      string  `yaml:"type"`      // single, sphere, voronoi, noisy_voronoi
	Phase     int     `yaml:"phase"`     // phase of the planted grains
	Matrix    int     `yaml:"matrix"`    // phase of the surrounding matrix (sphere)
	Radius    float64 `yaml:"radius"`    // sphere radius in cells
	Grains    int     `yaml:"grains"`    // voronoi site count
	Amplitude float64 `yaml:"amplitude"` // noisy voronoi displacement in cells
	Frequency float64 `yaml:"frequency"` // noisy voronoi noise frequency
	Seed      int64   `yaml:"seed"`
}

// NucleationConfig plants seed grains at fixed cells and steps.
type NucleationConfig struct {
	Seeds []SeedConfig `yaml:"seeds"`
}

// SeedConfig is one planted nucleus.
type SeedConfig struct {
	Phase   int `yaml:"phase"`
	Variant int `yaml:"variant"`
	X       int `yaml:"x"`
	Y       int `yaml:"y"`
	Z       int `yaml:"z"`
	Step    int `yaml:"step"` // simulation step at which to plant
}

// TelemetryConfig holds output cadence parameters.
type TelemetryConfig struct {
	StatsEvery  int `yaml:"stats_every"`  // steps between telemetry rows
	GrainsEvery int `yaml:"grains_every"` // steps between per-grain rows
	PerfWindow  int `yaml:"perf_window"`  // rolling window of perf samples
}

// CheckpointConfig holds persistence parameters.
type CheckpointConfig struct {
	Every   int    `yaml:"every"`   // steps between checkpoints (0 = disabled)
	Archive bool   `yaml:"archive"` // store snapshots in the sqlite archive
	Path    string `yaml:"path"`    // archive database path
}

// RunConfig holds process-level parameters.
type RunConfig struct {
	Workers   int    `yaml:"workers"` // 0 = GOMAXPROCS
	OutputDir string `yaml:"output_dir"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Dimensions int     // active axes
	TotalCells int     // Nx*Ny*Nz
	CellVolume float64 // dx^dim
	Eta        float64 // physical interface width, iwidth*dx
	DtStable   float64 // Neumann stability estimate dx^2/(2*dim*max sigma*mu)
	Workers    int     // resolved worker count
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults
// if path is empty. Must be called before Cfg().
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

// Load loads configuration from a YAML file, merging with embedded
// defaults. If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
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

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Grid.Nx < 1 || c.Grid.Ny < 1 || c.Grid.Nz < 1 {
		return fmt.Errorf("grid extents must be positive, got %dx%dx%d",
			c.Grid.Nx, c.Grid.Ny, c.Grid.Nz)
	}
	if c.Grid.InterfaceWidth < 1 {
		return fmt.Errorf("interface width must be at least one cell, got %d",
			c.Grid.InterfaceWidth)
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("at least one phase must be configured")
	}
	n := len(c.Phases)
	for _, p := range c.Interface.Pairs {
		if p.PhaseA < 0 || p.PhaseA >= n || p.PhaseB < 0 || p.PhaseB >= n {
			return fmt.Errorf("interface pair (%d,%d) references an unknown phase",
				p.PhaseA, p.PhaseB)
		}
		if p.Limit < 0 {
			return fmt.Errorf("interface pair (%d,%d) has negative limit %g",
				p.PhaseA, p.PhaseB, p.Limit)
		}
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	dim := 0
	for _, n := range []int{c.Grid.Nx, c.Grid.Ny, c.Grid.Nz} {
		if n > 1 {
			dim++
		}
	}
	c.Derived.Dimensions = dim
	c.Derived.TotalCells = c.Grid.Nx * c.Grid.Ny * c.Grid.Nz
	c.Derived.CellVolume = 1.0
	for d := 0; d < dim; d++ {
		c.Derived.CellVolume *= c.Grid.Dx
	}
	c.Derived.Eta = float64(c.Grid.InterfaceWidth) * c.Grid.Dx

	maxRate := 0.0
	for _, p := range c.Interface.Pairs {
		if rate := p.Energy * p.Mobility; rate > maxRate {
			maxRate = rate
		}
	}
	if maxRate > 0 && dim > 0 {
		c.Derived.DtStable = c.Grid.Dx * c.Grid.Dx / (2.0 * float64(dim) * maxRate)
	}

	c.Derived.Workers = c.Run.Workers
	if c.Derived.Workers <= 0 {
		c.Derived.Workers = runtime.GOMAXPROCS(0)
	}
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
