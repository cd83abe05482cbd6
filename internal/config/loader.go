package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads the profile at configPath, merges it over Default() and loads
// secrets from the environment. An empty path yields the defaults.
func Load(configPath string) (*Config, *Secrets, error) {
	cfg := Default()

	if configPath != "" {
		fileCfg, err := parseFile(configPath)
		if err != nil {
			return nil, nil, err
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Additional input validation
	if err := cfg.ValidateInputs(); err != nil {
		return nil, nil, fmt.Errorf("input validation failed: %w", err)
	}

	return &cfg, LoadSecrets(), nil
}

// parseFile decodes a profile as YAML for .yaml/.yml and as TOML otherwise
func parseFile(configPath string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}
