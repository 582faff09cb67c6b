// Package config provides configuration loading and management for
// fiberwarp. It handles loading configuration from YAML files and
// provides default values for everything the command line does not set.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Processing parameters
	Processing struct {
		// Convention selects how stored fiber positions are interpreted:
		// "local-index" or "object-transform".
		Convention string `yaml:"convention"`

		// PointRadius is the display radius assigned to points whose
		// tensor data is recomputed.
		PointRadius float64 `yaml:"pointRadius"`
	} `yaml:"processing"`

	// Voxelization parameters
	Voxelize struct {
		// Label is the default value written in overwrite-label mode.
		Label int32 `yaml:"label"`
	} `yaml:"voxelize"`

	// Output parameters
	Output struct {
		// CompressVolumes enables gzip encoding for written label
		// volumes.
		CompressVolumes bool `yaml:"compressVolumes"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Convention = "object-transform"
	cfg.Processing.PointRadius = 0.5

	cfg.Voxelize.Label = 1

	cfg.Output.CompressVolumes = true
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

// SaveConfig saves the configuration to a YAML file.
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
