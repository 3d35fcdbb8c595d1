package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"go.uber.org/zap/zapcore"
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validatePool(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := c.validateTrimmer(); err != nil {
		return fmt.Errorf("trimmer: %w", err)
	}
	if err := c.validateLog(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.validateExporter(); err != nil {
		return fmt.Errorf("exporter: %w", err)
	}
	return nil
}

func (c *Config) validatePool() error {
	if !isPow2(c.Pool.MinArrayLength) {
		return fmt.Errorf("min_array_length must be a positive power of two, got %d", c.Pool.MinArrayLength)
	}
	if !isPow2(c.Pool.MaxArrayLength) {
		return fmt.Errorf("max_array_length must be a positive power of two, got %d", c.Pool.MaxArrayLength)
	}
	if c.Pool.MinArrayLength > c.Pool.MaxArrayLength {
		return fmt.Errorf("min_array_length (%d) must not exceed max_array_length (%d)",
			c.Pool.MinArrayLength, c.Pool.MaxArrayLength)
	}
	if c.Pool.ProbeWidth < 1 {
		return fmt.Errorf("probe_width must be at least 1, got %d", c.Pool.ProbeWidth)
	}
	return nil
}

func (c *Config) validateTrimmer() error {
	if err := validatePositiveDuration(c.Trimmer.Interval, "interval"); err != nil {
		return err
	}
	if err := validatePositiveDuration(c.Trimmer.StaleAfter, "stale_after"); err != nil {
		return err
	}
	if c.Trimmer.MemoryLimit != "" {
		n, err := units.RAMInBytes(c.Trimmer.MemoryLimit)
		if err != nil {
			return fmt.Errorf("invalid memory_limit %q: %w", c.Trimmer.MemoryLimit, err)
		}
		if n <= 0 {
			return fmt.Errorf("memory_limit must be positive, got %q", c.Trimmer.MemoryLimit)
		}
	}
	return nil
}

func (c *Config) validateLog() error {
	if _, err := zapcore.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	return nil
}

func (c *Config) validateExporter() error {
	if err := validatePositiveDuration(c.Exporter.Interval, "interval"); err != nil {
		return err
	}
	if c.Exporter.URL == "" {
		return nil
	}
	u, err := url.Parse(c.Exporter.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url must use http or https, got %q", c.Exporter.URL)
	}
	return nil
}

func validatePositiveDuration(s, field string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, s)
	}
	return nil
}

func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}
