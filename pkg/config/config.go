/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/dbcache/pkg/container"
	"github.com/ssargent/dbcache/pkg/schema"
)

// Config represents the dbcache configuration
type Config struct {
	SchemaDir string    `yaml:"schema_dir"`
	Workers   int       `yaml:"workers"`
	TieBreak  string    `yaml:"tie_break"`
	DigestDir string    `yaml:"digest_dir"`
	Logging   Logging   `yaml:"logging"`
	Drift     Drift     `yaml:"drift"`
	Container Container `yaml:"container"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Drift contains drift detector configuration
type Drift struct {
	LogUnknownTrailing bool `yaml:"log_unknown_trailing"`
}

// Container contains container reader configuration
type Container struct {
	// AmbiguousVersions maps a container version to the entry shapes probed for it, in order
	AmbiguousVersions map[uint32][]string `yaml:"ambiguous_versions"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	ambiguous := make(map[uint32][]string)
	for version, shapes := range container.DefaultAmbiguous() {
		for _, s := range shapes {
			ambiguous[version] = append(ambiguous[version], s.Name)
		}
	}

	return &Config{
		SchemaDir: "./definitions",
		Workers:   0,
		TieBreak:  schema.TieBreakLast.String(),
		DigestDir: "./digests",
		Logging: Logging{
			Level: "info",
		},
		Drift: Drift{
			LogUnknownTrailing: true,
		},
		Container: Container{
			AmbiguousVersions: ambiguous,
		},
	}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Errorf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks the configuration and normalises names to lower case
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !logLevels[c.Logging.Level] {
		return errors.Errorf("unknown logging level %q", c.Logging.Level)
	}

	tb, err := schema.ParseTieBreak(c.TieBreak)
	if err != nil {
		return err
	}
	c.TieBreak = tb.String()

	_, err = c.Ambiguous()
	return err
}

// TieBreakRule returns the parsed tie break
func (c *Config) TieBreakRule() schema.TieBreak {
	tb, _ := schema.ParseTieBreak(c.TieBreak)
	return tb
}

// Ambiguous returns the parsed ambiguous version table
func (c *Config) Ambiguous() (map[uint32][]container.Shape, error) {
	out := make(map[uint32][]container.Shape, len(c.Container.AmbiguousVersions))
	for version, names := range c.Container.AmbiguousVersions {
		if len(names) == 0 {
			return nil, errors.Errorf("container version %d lists no shapes", version)
		}
		for _, name := range names {
			s, err := container.ParseShape(name)
			if err != nil {
				return nil, errors.Wrapf(err, "container version %d", version)
			}
			out[version] = append(out[version], s)
		}
	}
	return out, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./dbcache.yaml"
	}

	// For Linux/macOS, use ~/.config/dbcache/config.yaml
	configDir := filepath.Join(homeDir, ".config", "dbcache")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
