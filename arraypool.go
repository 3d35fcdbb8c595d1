package bucketpool

import (
	"fmt"
	"runtime"
	"time"
	"weak"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ArrayPool pools arrays of T bucketed by power-of-two length.
// All methods are safe for concurrent use.
type ArrayPool[T any] struct {
	id      ulid.ULID
	opts    options
	traits  elemTraits
	buckets []*slotBucket[T]
	locals  *localCaches[T]
	log     *zap.Logger
	now     func() time.Time
	probe   func() (MemoryStats, error)

	disposed      atomic.Bool
	trimScheduled atomic.Bool
	trim          *trimState

	stats poolStats
}

type poolStats struct {
	rented        atomic.Uint64
	allocated     atomic.Uint64
	oversized     atomic.Uint64
	returned      atomic.Uint64
	dropped       atomic.Uint64
	localHits     atomic.Uint64
	sharedHits    atomic.Uint64
	trimmedArrays atomic.Uint64
	trimmedBytes  atomic.Uint64
}

// New creates an ArrayPool with the given options. The background trimmer
// starts lazily, the first time an array is parked in a shared bucket.
func New[T any](opts ...Option) *ArrayPool[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := ulid.Make()
	p := &ArrayPool[T]{
		id:     id,
		opts:   o,
		traits: traitsOf[T](),
		log:    o.logger.With(zap.Stringer("pool", id)),
		now:    time.Now,
		probe:  o.memoryProbe,
		trim:   newTrimState(),
	}
	if p.probe == nil {
		p.probe = newMemoryProbe(o.memoryLimit)
	}

	n := bucketIndex(o.maxLength, o.minLength) + 1
	p.buckets = make([]*slotBucket[T], n)
	for i := range p.buckets {
		p.buckets[i] = newSlotBucket[T](o.minLength<<i, slotsFor(i))
	}
	p.locals = newLocalCaches[T](n, o.localCache)

	// stop the trimmer once the pool itself is unreachable
	runtime.AddCleanup(p, func(s *trimState) { s.stop() }, p.trim)
	return p
}

// ID returns the unique identifier of the pool, as carried in its logs.
func (p *ArrayPool[T]) ID() string {
	return p.id.String()
}

// Rent returns an array of at least minimumLength elements. Pooled arrays
// have a power-of-two length; requests above the largest size class get an
// exact, unpooled allocation. Rent never fails, but panics with an error
// wrapping ErrNegativeLength when minimumLength is negative.
//
// The contents of a rented array are unspecified.
func (p *ArrayPool[T]) Rent(minimumLength int) []T {
	if minimumLength < 0 {
		panic(fmt.Errorf("%w: %d", ErrNegativeLength, minimumLength))
	}
	p.stats.rented.Inc()
	if minimumLength == 0 {
		return []T{}
	}
	if minimumLength > p.opts.maxLength {
		p.stats.oversized.Inc()
		p.debug("allocated oversized array", zap.Int("length", minimumLength))
		return make([]T, minimumLength)
	}

	length := roundUpPow2(max(minimumLength, p.opts.minLength))
	index := bucketIndex(length, p.opts.minLength)
	if p.disposed.Load() {
		return p.allocate(length, index)
	}

	if arr, ok := p.locals.tryRent(index); ok {
		p.stats.localHits.Inc()
		p.debug("rented array", zap.Int("length", length), zap.Int("bucket", index), zap.String("tier", "local"))
		return arr
	}

	now := p.now().UnixNano()
	last := min(index+p.opts.probeWidth, len(p.buckets))
	for i := index; i < last; i++ {
		if arr, ok := p.buckets[i].tryRent(now); ok {
			p.stats.sharedHits.Inc()
			p.debug("rented array", zap.Int("length", len(arr)), zap.Int("bucket", i), zap.String("tier", "shared"))
			return arr
		}
	}

	// never hand out a larger class than asked for when nothing was pooled
	return p.allocate(length, index)
}

// Return gives an array back to the pool. A nil array is ignored. Arrays
// whose capacity falls outside the pooled size classes, and arrays for
// which every candidate slot is taken, are dropped for the garbage
// collector. Arrays not obtained from this pool are accepted.
//
// Arrays of element types holding references should be cleared by the
// caller first; the pool does not clear them.
func (p *ArrayPool[T]) Return(array []T) {
	if array == nil {
		return
	}
	c := cap(array)
	if c < p.opts.minLength || c > p.opts.maxLength {
		p.drop(c, "outside pooled size classes")
		return
	}

	length := roundDownPow2(c)
	array = array[:length:length]
	index := bucketIndex(length, p.opts.minLength)
	if p.opts.debugChecks {
		p.verifyReturn(array)
	}
	if p.disposed.Load() {
		p.drop(length, "pool disposed")
		return
	}

	if p.locals.tryReturn(index, array) {
		p.stats.returned.Inc()
		p.debug("returned array", zap.Int("length", length), zap.Int("bucket", index), zap.String("tier", "local"))
		return
	}

	now := p.now().UnixNano()
	lowest := max(index-p.opts.probeWidth+1, 0)
	for i := index; i >= lowest; i-- {
		b := p.buckets[i]
		if b.tryReturn(array[:b.length:b.length], now) {
			p.stats.returned.Inc()
			p.debug("returned array", zap.Int("length", b.length), zap.Int("bucket", i), zap.String("tier", "shared"))
			p.ensureTrimmer()
			return
		}
	}
	p.drop(length, "buckets full")
}

// Clear empties every bucket and invalidates every local cache.
func (p *ArrayPool[T]) Clear() {
	p.locals.invalidate()
	for _, b := range p.buckets {
		b.clear()
	}
}

// Dispose stops the trimmer and empties the pool. Later rents allocate and
// later returns are dropped. Arrays already rented stay valid. Dispose is
// safe to call more than once.
func (p *ArrayPool[T]) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	p.trim.stop()
	p.Clear()
	p.debug("pool disposed")
}

func (p *ArrayPool[T]) allocate(length, index int) []T {
	p.stats.allocated.Inc()
	p.debug("allocated array", zap.Int("length", length), zap.Int("bucket", index))
	return make([]T, length)
}

func (p *ArrayPool[T]) drop(length int, reason string) {
	p.stats.dropped.Inc()
	p.debug("dropped array", zap.Int("length", length), zap.String("reason", reason))
}

// verifyReturn panics on the caller bugs the pool can see cheaply enough
// in debug mode.
func (p *ArrayPool[T]) verifyReturn(array []T) {
	if p.traits.pointers && !isZeroed(array) {
		panic(fmt.Errorf("%w: length %d", ErrNotCleared, len(array)))
	}
	if p.traits.zeroSize {
		return
	}
	for i, b := range p.buckets {
		if b.length <= len(array) && (b.contains(array) || p.locals.contains(i, array)) {
			panic(fmt.Errorf("%w: length %d", ErrDoubleReturn, len(array)))
		}
	}
}

// ensureTrimmer starts the trimmer goroutine once per pool.
func (p *ArrayPool[T]) ensureTrimmer() {
	if p.trimScheduled.Load() || p.disposed.Load() {
		return
	}
	if p.trimScheduled.CompareAndSwap(false, true) {
		go runTrimmer(weak.Make(p), p.trim, p.opts.trimInterval, p.log)
	}
}

func (p *ArrayPool[T]) debug(msg string, fields ...zap.Field) {
	if ce := p.log.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(fields...)
	}
}
