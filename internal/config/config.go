// Package config loads the application configuration: a YAML file with
// defaults for every knob, overridable through LISTIE_-prefixed environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// CacheTTLSec bounds how long opened documents are served from memory.
	CacheTTLSec int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`

	// JitterToleranceMS is the timestamp window within which two item
	// modification times count as equal during a merge. Clock skew across
	// devices may require widening it.
	JitterToleranceMS int `mapstructure:"jitter_tolerance_ms" yaml:"jitter_tolerance_ms"`

	// MaterializeTimeoutSec bounds the wait for evicted remote content.
	MaterializeTimeoutSec int `mapstructure:"materialize_timeout_sec" yaml:"materialize_timeout_sec"`

	// RegistryPath locates the bookmark registry database.
	RegistryPath string `mapstructure:"registry_path" yaml:"registry_path"`

	// LogFile receives watch-daemon logs. Empty logs to stderr.
	LogFile string `mapstructure:"log_file" yaml:"log_file"`

	// LogMaxSizeMB and LogMaxBackups control log rotation.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb" yaml:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups" yaml:"log_max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheTTLSec:           30,
		JitterToleranceMS:     1000,
		MaterializeTimeoutSec: 15,
		RegistryPath:          filepath.Join(stateDir(), "bookmarks.db"),
		LogFile:               "",
		LogMaxSizeMB:          5,
		LogMaxBackups:         3,
	}
}

// DefaultPath returns where `listie config init` writes the config file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "listie.yaml")
	}
	return filepath.Join(home, ".config", "listie", "config.yaml")
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "listie")
}

// Load reads the config at path, layering file values over defaults and
// environment variables (LISTIE_ prefix) over both. A missing file is not
// an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("cache_ttl_sec", def.CacheTTLSec)
	v.SetDefault("jitter_tolerance_ms", def.JitterToleranceMS)
	v.SetDefault("materialize_timeout_sec", def.MaterializeTimeoutSec)
	v.SetDefault("registry_path", def.RegistryPath)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("log_max_size_mb", def.LogMaxSizeMB)
	v.SetDefault("log_max_backups", def.LogMaxBackups)

	v.SetEnvPrefix("LISTIE")
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// WriteDefault renders the default configuration as YAML at path, creating
// parent directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("render default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// JitterTolerance returns the merge jitter tolerance as a duration.
func (c *Config) JitterTolerance() time.Duration {
	return time.Duration(c.JitterToleranceMS) * time.Millisecond
}

// MaterializeTimeout returns the materialization bound as a duration.
func (c *Config) MaterializeTimeout() time.Duration {
	return time.Duration(c.MaterializeTimeoutSec) * time.Second
}
