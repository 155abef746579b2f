// Package config provides configuration loading and management for hydroinvert.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"hydroinvert/internal/models"
	"hydroinvert/pkg/ncio"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Component types understood by the model builder.
const (
	TypeWater         = "water"
	TypePhytoplankton = "phytoplankton"
	TypeCDOM          = "cdom"
	TypeNAP           = "nap"
)

// Reflectance model names.
const (
	ReflectanceLogPolynomial = "log-polynomial"
	ReflectanceQuasiSingle   = "quasi-single"
)

// MethodLM selects the built-in Levenberg-Marquardt solver. Any other method
// name is resolved against the gonum optimizers.
const MethodLM = "lm"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Model selects the waveband grid and the reflectance approximation
	Model struct {
		// Start, Stop and Step define the inclusive waveband grid in nm
		Start float64 `yaml:"start"`
		Stop  float64 `yaml:"stop"`
		Step  float64 `yaml:"step"`

		// Reflectance is log-polynomial or quasi-single
		Reflectance string `yaml:"reflectance"`

		// CoefficientsFile optionally replaces the built-in log-polynomial
		// coefficients
		CoefficientsFile string `yaml:"coefficientsFile,omitempty"`
	} `yaml:"model"`

	// Components are the optically active constituents in model order
	Components []Component `yaml:"components"`

	// Parameters are the initial values and bounds of the free components
	Parameters []Parameter `yaml:"parameters"`

	// Inversion parameters
	Inversion struct {
		// Method is lm or one of lbfgs, bfgs, cg, gradient-descent, nelder-mead
		Method string `yaml:"method"`

		// MaxIterations bounds the solver iterations per pixel
		MaxIterations int `yaml:"maxIterations"`

		// NumericJacobian forces finite-difference derivatives
		NumericJacobian bool `yaml:"numericJacobian"`

		// Weights optionally weight the residual of each model band
		Weights []float64 `yaml:"weights,omitempty"`
	} `yaml:"inversion"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// WarmStart seeds each pixel with the previous solution of its row
		WarmStart bool `yaml:"warmStart"`

		// Resample is linear or nearest
		Resample string `yaml:"resample"`
	} `yaml:"processing"`

	// Input scene
	Input struct {
		// File is the netCDF scene
		File string `yaml:"file"`

		// Prefix of the band variables, e.g. rhos_ for rhos_443
		Prefix string `yaml:"prefix"`

		// Bands are the sensor band centres in nm
		Bands []float64 `yaml:"bands"`
	} `yaml:"input"`

	// Mask parameters
	Mask struct {
		// Enabled turns Otsu water masking on
		Enabled bool `yaml:"enabled"`

		// Sigma is the gaussian blur standard deviation in pixels
		Sigma float64 `yaml:"sigma"`

		// Red, Green and Blue are the band centres used for the gray image
		Red   float64 `yaml:"red"`
		Green float64 `yaml:"green"`
		Blue  float64 `yaml:"blue"`
	} `yaml:"mask"`

	// Output parameters
	Output struct {
		// Dir receives the maps file and the rendered images
		Dir string `yaml:"dir"`

		// MapsFile is the netCDF file name inside Dir
		MapsFile string `yaml:"mapsFile"`

		// Format of the rendered maps: png, jpg or tif; empty disables rendering
		Format string `yaml:"format"`

		// Scale enlarges the rendered maps by an integer factor
		Scale int `yaml:"scale"`

		// Ranges fixes the colour range per parameter
		Ranges map[string]Range `yaml:"ranges,omitempty"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// Component describes one constituent. Fields irrelevant to Type are ignored.
type Component struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Backscatter is the specific backscatter of phytoplankton
	Backscatter float64 `yaml:"backscatter,omitempty"`

	// Reference and Slope shape the CDOM and NAP exponential absorption
	Reference float64 `yaml:"reference,omitempty"`
	Slope     float64 `yaml:"slope,omitempty"`

	// A443, BB555 and Eta parameterize non-algal particles
	A443  float64 `yaml:"a443,omitempty"`
	BB555 float64 `yaml:"bb555,omitempty"`
	Eta   float64 `yaml:"eta,omitempty"`

	// Exponent makes the IOPs scale as c^Exponent; zero means linear
	Exponent float64 `yaml:"exponent,omitempty"`
}

// Parameter is the starting point of one free component. A nil Max means no
// upper bound.
type Parameter struct {
	Name  string   `yaml:"name"`
	Value float64  `yaml:"value"`
	Min   float64  `yaml:"min"`
	Max   *float64 `yaml:"max,omitempty"`
	Fixed bool     `yaml:"fixed,omitempty"`
}

// Upper returns the upper bound, +Inf when unset.
func (p Parameter) Upper() float64 {
	if p.Max == nil {
		return math.Inf(1)
	}
	return *p.Max
}

// Range is a colour scale range.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// 63 bands from 400 to 710 nm
	cfg.Model.Start = 400
	cfg.Model.Stop = 710
	cfg.Model.Step = 5
	cfg.Model.Reflectance = ReflectanceLogPolynomial

	cfg.Components = []Component{
		{Name: "water", Type: TypeWater},
		{Name: "phyto", Type: TypePhytoplankton, Backscatter: 0.014 * 0.18},
		{Name: "cdom", Type: TypeCDOM, Reference: 440, Slope: 0.017},
	}
	cfg.Parameters = []Parameter{
		{Name: "phyto", Value: 0.5, Min: 1e-9},
		{Name: "cdom", Value: 0.01, Min: 1e-9},
	}

	cfg.Inversion.Method = MethodLM
	cfg.Inversion.MaxIterations = 200

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Resample = "linear"

	// Sentinel-3 OLCI bands as delivered by ACOLITE
	cfg.Input.Prefix = "rhos_"
	cfg.Input.Bands = []float64{400, 412, 443, 490, 510, 560, 620, 665, 674, 682, 709}

	cfg.Mask.Enabled = true
	cfg.Mask.Sigma = 1.0
	cfg.Mask.Red = 665
	cfg.Mask.Green = 560
	cfg.Mask.Blue = 412

	cfg.Output.Dir = "output"
	cfg.Output.MapsFile = "maps.nc"
	cfg.Output.Format = "png"
	cfg.Output.Scale = 1
	cfg.Output.Ranges = map[string]Range{"cdom": {Min: 0, Max: 1}}
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig reads the YAML file at configPath over the defaults. A missing
// file yields the defaults. A ranges section in the file replaces the
// default colour ranges instead of merging into them.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}
	ranges := cfg.Output.Ranges
	cfg.Output.Ranges = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}
	if cfg.Output.Ranges == nil {
		cfg.Output.Ranges = ranges
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, creating the parent directory.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", configPath, err)
	}
	return nil
}

// CreateDefaultConfigFile writes DefaultConfig to configPath.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// Validate checks the configuration for values the pipeline cannot use.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
	}

	if c.Model.Step <= 0 || c.Model.Stop < c.Model.Start {
		return invalid("model grid %g..%g step %g", c.Model.Start, c.Model.Stop, c.Model.Step)
	}
	switch c.Model.Reflectance {
	case ReflectanceLogPolynomial, ReflectanceQuasiSingle:
	default:
		return invalid("unknown reflectance model %q", c.Model.Reflectance)
	}

	if len(c.Components) == 0 {
		return invalid("no components")
	}
	free := make(map[string]bool)
	seen := make(map[string]bool)
	for _, comp := range c.Components {
		if comp.Name == "" {
			return invalid("component without name")
		}
		if seen[comp.Name] {
			return invalid("duplicate component %q", comp.Name)
		}
		seen[comp.Name] = true
		switch comp.Type {
		case TypeWater:
		case TypePhytoplankton, TypeCDOM, TypeNAP:
			free[comp.Name] = true
		default:
			return invalid("component %q has unknown type %q", comp.Name, comp.Type)
		}
		if comp.Exponent < 0 {
			return invalid("component %q has negative exponent", comp.Name)
		}
	}

	params := make(map[string]bool)
	for _, p := range c.Parameters {
		if !free[p.Name] {
			return invalid("parameter %q does not name a free component", p.Name)
		}
		if params[p.Name] {
			return invalid("duplicate parameter %q", p.Name)
		}
		if reservedName(p.Name) {
			return invalid("parameter %q collides with an output map name", p.Name)
		}
		params[p.Name] = true
		if p.Upper() < p.Min {
			return invalid("parameter %q has max %g below min %g", p.Name, p.Upper(), p.Min)
		}
	}
	for name := range free {
		if !params[name] {
			return invalid("free component %q has no parameter", name)
		}
	}

	if c.Inversion.MaxIterations < 0 {
		return invalid("negative maxIterations")
	}
	if c.Processing.NumCores < 0 {
		return invalid("negative numCores")
	}
	switch c.Processing.Resample {
	case "", "linear", "nearest":
	default:
		return invalid("unknown resample method %q", c.Processing.Resample)
	}
	if len(c.Input.Bands) == 0 {
		return invalid("no input bands")
	}
	if c.Mask.Sigma < 0 {
		return invalid("negative mask sigma")
	}
	if c.Output.Scale < 0 {
		return invalid("negative output scale")
	}
	return nil
}

// reservedName reports whether a parameter map would share its variable name
// with a statistic or a standard error map.
func reservedName(name string) bool {
	for _, stat := range models.StatNames {
		if name == stat {
			return true
		}
	}
	return strings.HasSuffix(name, ncio.StdErrSuffix)
}
