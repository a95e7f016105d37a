package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a configuration file and unmarshals it into the specified type.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// T must be a struct type that can be unmarshaled from either format.
func LoadConfig[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg T
	if IsTOML(path) {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return &cfg, nil
}

// IsTOML reports whether path names a TOML file.
func IsTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadClientConfig reads a client configuration file, applies defaults,
// deduplicates servers and validates the result.
func LoadClientConfig(path string) (*Client, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Client](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	hasDuplicates, err := cfg.ValidateAndDeduplicate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if hasDuplicates {
		logger.Warn().Msg("duplicate servers detected and removed from configuration")
	}

	logger.Debug().
		Int("server_count", len(cfg.Servers)).
		Str("fragment_mode", cfg.Fragment.Mode).
		Msg("loaded configuration")

	return cfg, nil
}

// NewClient builds a validated configuration for a single address, used
// when no configuration file is present.
func NewClient(address string) (*Client, error) {
	cfg := &Client{
		Servers: []Server{{Name: "default", Address: address}},
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
