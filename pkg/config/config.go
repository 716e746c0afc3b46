// Package config provides configuration loading and management for permclust.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"permclust/pkg/cluster"
	"permclust/pkg/distribution"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers is the size of the permutation worker pool. 0 runs
		// sequentially, a negative value means the CPU count plus the value.
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Permutation parameters
	Permutation struct {
		// Samples is the number of permutations; a negative value enumerates
		// all of them.
		Samples int `yaml:"samples"`

		// Seed makes random permutations reproducible
		Seed uint64 `yaml:"seed"`

		// ForcePermutation permutes even when the original map has no clusters
		ForcePermutation bool `yaml:"forcePermutation"`
	} `yaml:"permutation"`

	// Test parameters
	Test struct {
		// Threshold is a statistic value, "tfce", or empty for a raw test
		Threshold string `yaml:"threshold"`

		// PMin sets the cluster threshold as an uncorrected p-value instead
		PMin float64 `yaml:"pmin"`

		// Tail is -1, 0 (both), or 1
		Tail int `yaml:"tail"`

		// TStart and TStop restrict the test to a time window in seconds
		TStart *float64 `yaml:"tstart,omitempty"`
		TStop  *float64 `yaml:"tstop,omitempty"`

		// Criteria holds minimum cluster extents, e.g. mintime or minsensor
		Criteria map[string]float64 `yaml:"criteria,omitempty"`

		// Parc keeps one distribution per parcel of this dimension
		Parc string `yaml:"parc"`

		// DistDim keeps one distribution per index of these dimensions
		DistDim []string `yaml:"distDim,omitempty"`

		// DistTStep keeps one distribution per time bin of this length
		DistTStep float64 `yaml:"distTStep"`
	} `yaml:"test"`

	// TFCE parameters
	TFCE struct {
		Step float64 `yaml:"step"`
		E    float64 `yaml:"e"`
		H    float64 `yaml:"h"`
	} `yaml:"tfce"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// PMin filters the printed cluster table
		PMin float64 `yaml:"pmin"`
	} `yaml:"output"`

	// Cache parameters
	Cache struct {
		// Path is the SQLite file caching finished distributions; empty
		// disables the cache.
		Path string `yaml:"path"`
	} `yaml:"cache"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumWorkers = runtime.NumCPU()

	cfg.Permutation.Samples = 10000
	cfg.Permutation.Seed = 0
	cfg.Permutation.ForcePermutation = false

	cfg.Test.Threshold = ""
	cfg.Test.Tail = 0

	tfce := cluster.DefaultTFCEParams()
	cfg.TFCE.Step = tfce.Step
	cfg.TFCE.E = tfce.E
	cfg.TFCE.H = tfce.H

	cfg.Output.Verbose = false
	cfg.Output.PMin = 0.05

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// Validate checks the values that can be checked without data.
func (c *Config) Validate() error {
	if c.Test.Threshold != "" && c.Test.PMin != 0 {
		return fmt.Errorf("test.threshold and test.pmin are exclusive: %w", distribution.ErrConfiguration)
	}
	if c.Test.PMin < 0 || c.Test.PMin >= 1 {
		return fmt.Errorf("test.pmin=%g must be in (0, 1): %w", c.Test.PMin, distribution.ErrConfiguration)
	}
	if !cluster.Tail(c.Test.Tail).Valid() {
		return fmt.Errorf("test.tail=%d must be -1, 0, or 1: %w", c.Test.Tail, distribution.ErrConfiguration)
	}
	if _, err := distribution.ParseThreshold(c.Test.Threshold); err != nil {
		return err
	}
	if c.Output.PMin <= 0 || c.Output.PMin > 1 {
		return fmt.Errorf("output.pmin=%g must be in (0, 1]: %w", c.Output.PMin, distribution.ErrConfiguration)
	}
	return nil
}

// Mode returns the execution mode selected by processing.numWorkers.
func (c *Config) Mode() distribution.ExecutionMode {
	if c.Processing.NumWorkers == 0 {
		return distribution.Sequential()
	}
	return distribution.Pooled(c.Processing.NumWorkers)
}

// DistributionParams converts the configuration into distribution
// parameters. pminThreshold converts test.pmin into a statistic threshold
// and is only called when test.pmin is set. Samples is left for the caller
// to resolve against the permutation source.
func (c *Config) DistributionParams(pminThreshold func(pmin float64, tail cluster.Tail) (float64, error)) (distribution.Params, error) {
	if err := c.Validate(); err != nil {
		return distribution.Params{}, err
	}
	tail := cluster.Tail(c.Test.Tail)
	threshold, err := distribution.ParseThreshold(c.Test.Threshold)
	if err != nil {
		return distribution.Params{}, err
	}
	if c.Test.PMin > 0 {
		v, err := pminThreshold(c.Test.PMin, tail)
		if err != nil {
			return distribution.Params{}, fmt.Errorf("test.pmin: %v: %w", err, distribution.ErrConfiguration)
		}
		threshold = distribution.ClusterThreshold(v)
	}
	return distribution.Params{
		Samples:          c.Permutation.Samples,
		Threshold:        threshold,
		Tail:             tail,
		Criteria:         c.Test.Criteria,
		TStart:           c.Test.TStart,
		TStop:            c.Test.TStop,
		DistDim:          c.Test.DistDim,
		Parc:             c.Test.Parc,
		DistTStep:        c.Test.DistTStep,
		ForcePermutation: c.Permutation.ForcePermutation,
		Mode:             c.Mode(),
		TFCE:             cluster.TFCEParams{Step: c.TFCE.Step, E: c.TFCE.E, H: c.TFCE.H},
		Verbose:          c.Output.Verbose,
	}, nil
}
