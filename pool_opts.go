package bucketpool

import (
	"time"

	"go.uber.org/zap"
)

const (
	// defaultTrimInterval is how often the trimmer wakes up.
	defaultTrimInterval = time.Minute

	// defaultStaleAfter is how long a bucket may go untouched before the
	// trimmer clears it.
	defaultStaleAfter = 2 * time.Minute
)

// Option configures an ArrayPool.
type Option func(*options)

type options struct {
	minLength    int
	maxLength    int
	probeWidth   int
	localCache   bool
	trimInterval time.Duration
	staleAfter   time.Duration
	memoryLimit  int64
	memoryProbe  func() (MemoryStats, error)
	logger       *zap.Logger
	debugChecks  bool
}

func defaultOptions() options {
	return options{
		minLength:    MinimumArrayLength,
		maxLength:    MaximumArrayLength,
		probeWidth:   defaultProbeWidth,
		localCache:   true,
		trimInterval: defaultTrimInterval,
		staleAfter:   defaultStaleAfter,
		logger:       zap.NewNop(),
	}
}

// WithArrayLengths sets the smallest and largest pooled size classes.
// Both must be powers of two with minLength <= maxLength, otherwise the
// option is ignored.
func WithArrayLengths(minLength, maxLength int) Option {
	return func(o *options) {
		if isPow2(minLength) && isPow2(maxLength) && minLength <= maxLength {
			o.minLength = minLength
			o.maxLength = maxLength
		}
	}
}

// WithProbeWidth sets how many shared buckets a rent or return visits
// before falling back to allocation or dropping the array.
func WithProbeWidth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.probeWidth = n
		}
	}
}

// WithLocalCache enables or disables the per-P cache tier.
func WithLocalCache(enabled bool) Option {
	return func(o *options) {
		o.localCache = enabled
	}
}

// WithTrimInterval sets how often the background trimmer runs.
func WithTrimInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.trimInterval = d
		}
	}
}

// WithStaleAfter sets the idle time after which a bucket is cleared.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithMemoryLimit makes the trimmer measure pressure against limit bytes
// of Go runtime memory instead of system memory.
func WithMemoryLimit(limit int64) Option {
	return func(o *options) {
		if limit > 0 {
			o.memoryLimit = limit
		}
	}
}

// WithMemoryProbe replaces the memory statistics source used by the trimmer.
func WithMemoryProbe(probe func() (MemoryStats, error)) Option {
	return func(o *options) {
		if probe != nil {
			o.memoryProbe = probe
		}
	}
}

// WithLogger sets the logger. Rent and return activity is logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDebugChecks turns on the checks for arrays returned without being
// cleared and for arrays returned twice. The checks are costly and panic
// on failure.
func WithDebugChecks(enabled bool) Option {
	return func(o *options) {
		o.debugChecks = enabled
	}
}
