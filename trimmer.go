package bucketpool

import (
	"sync"
	"time"
	"weak"

	units "github.com/docker/go-units"
	"go.uber.org/zap"
)

const (
	// highWaterCommon is the fraction of memory that may be in use before
	// pools of primitive element types start evicting.
	highWaterCommon = 0.90

	// highWaterOther applies to every other element type.
	highWaterOther = 0.80
)

// TrimReport summarizes one trimmer pass.
type TrimReport struct {
	StaleBuckets  int    // buckets cleared because they sat idle
	Evicted       int    // arrays released, stale buckets included
	Released      uint64 // estimated bytes released
	Deficit       uint64 // bytes over the high-water mark when the pass began
	LocalsDropped bool   // local caches were invalidated
}

// trimState is shared by a pool and its trimmer goroutine. It must never
// point back at the pool, otherwise the pool could not be collected.
type trimState struct {
	done chan struct{}
	once sync.Once
}

func newTrimState() *trimState {
	return &trimState{done: make(chan struct{})}
}

func (s *trimState) stop() {
	s.once.Do(func() { close(s.done) })
}

// runTrimmer trims the pool every interval until the pool is disposed or
// collected.
func runTrimmer[T any](pool weak.Pointer[ArrayPool[T]], state *trimState, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Debug("trimmer started", zap.Duration("interval", interval))
	for {
		select {
		case <-state.done:
			log.Debug("trimmer stopped")
			return
		case <-ticker.C:
			if !trimOnce(pool) {
				log.Debug("trimmer stopped, pool released")
				return
			}
		}
	}
}

// trimOnce holds the pool strongly only for the length of one pass.
func trimOnce[T any](pool weak.Pointer[ArrayPool[T]]) bool {
	p := pool.Value()
	if p == nil || p.disposed.Load() {
		return false
	}
	p.Trim()
	return true
}

// Trim runs one trimmer pass synchronously and reports what it released.
// If memory statistics cannot be read, only stale buckets are cleared.
func (p *ArrayPool[T]) Trim() TrimReport {
	mem, err := p.probe()
	if err != nil {
		p.log.Warn("failed to read memory statistics", zap.Error(err))
		mem = MemoryStats{}
	}
	return p.trimAt(p.now(), mem)
}

func (p *ArrayPool[T]) trimAt(now time.Time, mem MemoryStats) TrimReport {
	var report TrimReport
	if p.disposed.Load() {
		return report
	}
	elemSize := uint64(p.traits.size)

	cutoff := now.Add(-p.opts.staleAfter).UnixNano()
	for i := len(p.buckets) - 1; i >= 0; i-- {
		b := p.buckets[i]
		if b.pooled() == 0 || b.lastAccess.Load() >= cutoff {
			continue
		}
		n := b.clear()
		report.StaleBuckets++
		report.Evicted += n
		report.Released += uint64(n) * uint64(b.length) * elemSize
	}

	threshold := highWaterOther
	if p.traits.common {
		threshold = highWaterCommon
	}
	report.Deficit = mem.deficit(threshold)

	for i := len(p.buckets) - 1; i >= 0 && report.Released < report.Deficit; i-- {
		b := p.buckets[i]
		for report.Released < report.Deficit {
			if _, ok := b.take(); !ok {
				break
			}
			report.Evicted++
			report.Released += uint64(b.length) * elemSize
		}
	}
	if report.Released < report.Deficit {
		p.locals.invalidate()
		report.LocalsDropped = true
	}

	p.stats.trimmedArrays.Add(uint64(report.Evicted))
	p.stats.trimmedBytes.Add(report.Released)
	if report.Evicted > 0 || report.LocalsDropped {
		p.log.Debug("trimmed pool",
			zap.Int("stale_buckets", report.StaleBuckets),
			zap.Int("evicted", report.Evicted),
			zap.String("released", units.HumanSize(float64(report.Released))),
			zap.String("deficit", units.HumanSize(float64(report.Deficit))),
			zap.Bool("locals_dropped", report.LocalsDropped),
		)
	}
	return report
}
