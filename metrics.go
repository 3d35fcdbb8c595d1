package bucketpool

import "time"

// Metrics is a snapshot of pool activity. Counters are read one by one and
// are only approximately consistent with each other under concurrent use.
type Metrics struct {
	ID            string          `json:"id"`
	Rented        uint64          `json:"rented"`
	Allocated     uint64          `json:"allocated"`
	Oversized     uint64          `json:"oversized"`
	Returned      uint64          `json:"returned"`
	Dropped       uint64          `json:"dropped"`
	LocalHits     uint64          `json:"local_hits"`
	SharedHits    uint64          `json:"shared_hits"`
	TrimmedArrays uint64          `json:"trimmed_arrays"`
	TrimmedBytes  uint64          `json:"trimmed_bytes"`
	PooledArrays  int             `json:"pooled_arrays"`
	PooledBytes   uint64          `json:"pooled_bytes"`
	Buckets       []BucketMetrics `json:"buckets"`
}

// BucketMetrics describes one shared bucket. Arrays held in local caches
// are not visible here.
type BucketMetrics struct {
	Length     int       `json:"length"`
	Capacity   int       `json:"capacity"`
	Pooled     int       `json:"pooled"`
	LastAccess time.Time `json:"last_access,omitzero"`
}

// Metrics returns a snapshot of the pool counters and shared buckets.
func (p *ArrayPool[T]) Metrics() Metrics {
	m := Metrics{
		ID:            p.ID(),
		Rented:        p.stats.rented.Load(),
		Allocated:     p.stats.allocated.Load(),
		Oversized:     p.stats.oversized.Load(),
		Returned:      p.stats.returned.Load(),
		Dropped:       p.stats.dropped.Load(),
		LocalHits:     p.stats.localHits.Load(),
		SharedHits:    p.stats.sharedHits.Load(),
		TrimmedArrays: p.stats.trimmedArrays.Load(),
		TrimmedBytes:  p.stats.trimmedBytes.Load(),
		Buckets:       make([]BucketMetrics, len(p.buckets)),
	}
	for i, b := range p.buckets {
		bm := BucketMetrics{
			Length:   b.length,
			Capacity: len(b.slots),
			Pooled:   b.pooled(),
		}
		if ts := b.lastAccess.Load(); ts != 0 {
			bm.LastAccess = time.Unix(0, ts)
		}
		m.Buckets[i] = bm
		m.PooledArrays += bm.Pooled
		m.PooledBytes += uint64(bm.Pooled) * uint64(b.length) * uint64(p.traits.size)
	}
	return m
}
