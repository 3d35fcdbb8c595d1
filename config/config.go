// Package config loads pool settings from a YAML file at ./bucketpool.yaml
// (overridable via the BUCKETPOOL_CONFIG environment variable) and turns
// them into pool options and a logger.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the default location for the config file
	DefaultConfigPath = "bucketpool.yaml"

	// ConfigEnvVar is the environment variable to override config file location
	ConfigEnvVar = "BUCKETPOOL_CONFIG"
)

// Config is the root configuration structure
type Config struct {
	Pool     PoolConfig     `yaml:"pool"`
	Trimmer  TrimmerConfig  `yaml:"trimmer"`
	Log      LogConfig      `yaml:"log"`
	Exporter ExporterConfig `yaml:"exporter"`
}

// PoolConfig defines size classes and tiers of a pool
type PoolConfig struct {
	MinArrayLength int   `yaml:"min_array_length"` // Smallest pooled size class, a power of two
	MaxArrayLength int   `yaml:"max_array_length"` // Largest pooled size class, a power of two
	ProbeWidth     int   `yaml:"probe_width"`      // Shared buckets visited per rent or return
	LocalCache     *bool `yaml:"local_cache"`      // Per-P cache tier, on unless set to false
	DebugChecks    bool  `yaml:"debug_checks"`     // Panic on uncleared or double returns
}

// TrimmerConfig defines the background trimmer.
// Durations are duration strings (e.g., "30s", "1m").
type TrimmerConfig struct {
	Interval   string `yaml:"interval"`    // How often the trimmer runs
	StaleAfter string `yaml:"stale_after"` // Idle time before a bucket is cleared

	// MemoryLimit is a size such as "512MiB". When set, pressure is measured
	// as Go runtime memory against this limit instead of system memory.
	MemoryLimit string `yaml:"memory_limit"`
}

// GetInterval returns the trim interval as a time.Duration.
func (t *TrimmerConfig) GetInterval() time.Duration {
	return mustParseDuration(t.Interval)
}

// GetStaleAfter returns the staleness threshold as a time.Duration.
func (t *TrimmerConfig) GetStaleAfter() time.Duration {
	return mustParseDuration(t.StaleAfter)
}

// GetMemoryLimit returns the memory limit in bytes, or 0 when unset.
func (t *TrimmerConfig) GetMemoryLimit() int64 {
	if t.MemoryLimit == "" {
		return 0
	}
	n, err := units.RAMInBytes(t.MemoryLimit)
	if err != nil {
		panic(fmt.Sprintf("invalid memory limit %q: %v (config validation should have caught this)", t.MemoryLimit, err))
	}
	return n
}

// LogConfig defines logging
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn or error
	Development bool   `yaml:"development"` // Console encoding and stack traces on warnings
}

// ExporterConfig defines where metric snapshots are posted
type ExporterConfig struct {
	URL      string `yaml:"url"`      // Base URL, exporting is off when empty
	Interval string `yaml:"interval"` // Snapshot interval
}

// GetInterval returns the export interval as a time.Duration.
func (e *ExporterConfig) GetInterval() time.Duration {
	return mustParseDuration(e.Interval)
}

// mustParseDuration parses a duration string, panicking on error.
// Validation has already checked the format.
func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("invalid duration %q: %v (config validation should have caught this)", s, err))
	}
	return d
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.Mutex
	errConfig    error
)

// Reset clears the cached global config, forcing the next Get() call to reload.
// Callers must ensure no concurrent Get() calls are in progress.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig = nil
	errConfig = nil
	configOnce = sync.Once{}
}

// Get returns the global config, loading it on first call.
func Get() (*Config, error) {
	configOnce.Do(func() {
		globalConfig, errConfig = Load()
	})
	return globalConfig, errConfig
}

// Load loads configuration from BUCKETPOOL_CONFIG or ./bucketpool.yaml.
// A missing default file yields the default configuration; a missing file
// named by the environment variable is an error.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnvVar)
	if configPath == "" {
		if _, err := os.Stat(DefaultConfigPath); os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		configPath = DefaultConfigPath
	}

	return LoadFrom(configPath)
}

// LoadFrom loads configuration from a specific path.
// Returns error if file doesn't exist or is invalid.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s. Create one or set the %s environment variable", path, ConfigEnvVar)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	localCache := true
	return &Config{
		Pool: PoolConfig{
			MinArrayLength: 16,
			MaxArrayLength: 1 << 23,
			ProbeWidth:     3,
			LocalCache:     &localCache,
		},
		Trimmer: TrimmerConfig{
			Interval:   "1m",
			StaleAfter: "2m",
		},
		Log: LogConfig{
			Level: "info",
		},
		Exporter: ExporterConfig{
			Interval: "10s",
		},
	}
}

// applyDefaults fills in default values for any empty fields
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Pool.MinArrayLength == 0 {
		c.Pool.MinArrayLength = defaults.Pool.MinArrayLength
	}
	if c.Pool.MaxArrayLength == 0 {
		c.Pool.MaxArrayLength = defaults.Pool.MaxArrayLength
	}
	if c.Pool.ProbeWidth == 0 {
		c.Pool.ProbeWidth = defaults.Pool.ProbeWidth
	}
	if c.Pool.LocalCache == nil {
		c.Pool.LocalCache = defaults.Pool.LocalCache
	}

	if c.Trimmer.Interval == "" {
		c.Trimmer.Interval = defaults.Trimmer.Interval
	}
	if c.Trimmer.StaleAfter == "" {
		c.Trimmer.StaleAfter = defaults.Trimmer.StaleAfter
	}
	// MemoryLimit stays empty to measure system memory

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}

	if c.Exporter.Interval == "" {
		c.Exporter.Interval = defaults.Exporter.Interval
	}
}
