package config

import (
	"fmt"
	"strings"

	"github.com/alesr/bucketpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PoolOptions converts the configuration into pool options. logger may be
// nil to keep the pool silent.
func (c *Config) PoolOptions(logger *zap.Logger) []bucketpool.Option {
	opts := []bucketpool.Option{
		bucketpool.WithArrayLengths(c.Pool.MinArrayLength, c.Pool.MaxArrayLength),
		bucketpool.WithProbeWidth(c.Pool.ProbeWidth),
		bucketpool.WithLocalCache(c.Pool.LocalCache == nil || *c.Pool.LocalCache),
		bucketpool.WithDebugChecks(c.Pool.DebugChecks),
		bucketpool.WithTrimInterval(c.Trimmer.GetInterval()),
		bucketpool.WithStaleAfter(c.Trimmer.GetStaleAfter()),
	}
	if limit := c.Trimmer.GetMemoryLimit(); limit > 0 {
		opts = append(opts, bucketpool.WithMemoryLimit(limit))
	}
	if logger != nil {
		opts = append(opts, bucketpool.WithLogger(logger))
	}
	return opts
}

// Logger builds a zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
