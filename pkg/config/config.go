// Package config provides configuration loading and management for ptychofft.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"ptychofft/internal/models"
	"ptychofft/pkg/device"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Operator holds the problem sizes the operator is built for
	Operator models.Dims `yaml:"operator"`

	// Execution parameters
	Execution struct {
		// NumWorkers is the number of goroutines each kernel launch is spread across
		NumWorkers int `yaml:"numWorkers"`

		// MemoryLimitMB caps operator buffers and plans; 0 means unlimited
		MemoryLimitMB int `yaml:"memoryLimitMB"`

		// BoundsCheck validates every scan window before device work
		BoundsCheck bool `yaml:"boundsCheck"`
	} `yaml:"execution"`

	// Simulation parameters for the synthetic test problem
	Simulation struct {
		// ProbeSigma is the Gaussian probe width in pixels
		ProbeSigma float64 `yaml:"probeSigma"`

		// ScanStep is the raster step between neighbouring scan points in pixels
		ScanStep int `yaml:"scanStep"`

		// Subpixel adds a random fractional offset to every scan position
		Subpixel bool `yaml:"subpixel"`

		// Seed seeds the random object, positions and residuals
		Seed int64 `yaml:"seed"`

		// ObjectContrast scales the phase of the synthetic object
		ObjectContrast float64 `yaml:"objectContrast"`
	} `yaml:"simulation"`

	// Output parameters
	Output struct {
		// SaveFrames writes detector intensities and gradients as images
		SaveFrames bool `yaml:"saveFrames"`

		// FramesDir is the directory frames are written to
		FramesDir string `yaml:"framesDir"`

		// Verbose controls per-call timing logs
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Operator = models.Dims{
		Ntheta: 4,
		Nz:     64,
		N:      64,
		Nscan:  64,
		Ndetx:  32,
		Ndety:  32,
		Nprb:   16,
	}

	cfg.Execution.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Execution.MemoryLimitMB = 0
	cfg.Execution.BoundsCheck = true

	cfg.Simulation.ProbeSigma = 4
	cfg.Simulation.ScanStep = 6
	cfg.Simulation.Subpixel = true
	cfg.Simulation.Seed = 1
	cfg.Simulation.ObjectContrast = 0.5

	cfg.Output.SaveFrames = false
	cfg.Output.FramesDir = "frames"
	cfg.Output.Verbose = false

	return cfg
}

// Validate reports values the operator or simulation cannot use
func (c *Config) Validate() error {
	d := c.Operator
	if d.Ntheta < 1 || d.Nz < 1 || d.N < 1 || d.Nscan < 1 || d.Ndetx < 1 || d.Ndety < 1 || d.Nprb < 1 {
		return fmt.Errorf("operator sizes must be positive: %+v", d)
	}
	if c.Execution.NumWorkers < 1 {
		return fmt.Errorf("numWorkers must be positive, got %d", c.Execution.NumWorkers)
	}
	if c.Execution.MemoryLimitMB < 0 {
		return fmt.Errorf("memoryLimitMB must not be negative, got %d", c.Execution.MemoryLimitMB)
	}
	if c.Simulation.ProbeSigma <= 0 {
		return fmt.Errorf("probeSigma must be positive, got %g", c.Simulation.ProbeSigma)
	}
	if c.Simulation.ScanStep < 1 {
		return fmt.Errorf("scanStep must be positive, got %d", c.Simulation.ScanStep)
	}
	return nil
}

// DeviceConfig returns the device context configuration
func (c *Config) DeviceConfig() device.Config {
	return device.Config{
		Workers:     c.Execution.NumWorkers,
		MemoryLimit: int64(c.Execution.MemoryLimitMB) << 20,
	}
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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
