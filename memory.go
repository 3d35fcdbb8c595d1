package bucketpool

import (
	"fmt"
	"runtime/metrics"
)

// MemoryStats is a point-in-time view of the memory the trimmer weighs
// pooled arrays against. A zero Total means the size is unknown and no
// pressure is reported.
type MemoryStats struct {
	Total uint64
	Used  uint64
}

// deficit returns how many bytes must be released to bring usage back
// under threshold (a fraction of Total).
func (m MemoryStats) deficit(threshold float64) uint64 {
	if m.Total == 0 {
		return 0
	}
	highWater := uint64(float64(m.Total) * threshold)
	if m.Used <= highWater {
		return 0
	}
	return m.Used - highWater
}

// newMemoryProbe picks the memory source: Go runtime memory against limit
// when one is set, system memory otherwise.
func newMemoryProbe(limit int64) func() (MemoryStats, error) {
	if limit > 0 {
		return func() (MemoryStats, error) {
			return runtimeMemoryStats(uint64(limit))
		}
	}
	return systemMemoryStats
}

var runtimeSamples = []string{
	"/memory/classes/total:bytes",
	"/memory/classes/heap/released:bytes",
}

// runtimeMemoryStats reports memory mapped by the Go runtime, minus heap
// already returned to the OS.
func runtimeMemoryStats(limit uint64) (MemoryStats, error) {
	samples := make([]metrics.Sample, len(runtimeSamples))
	for i, name := range runtimeSamples {
		samples[i].Name = name
	}
	metrics.Read(samples)
	for _, s := range samples {
		if s.Value.Kind() != metrics.KindUint64 {
			return MemoryStats{}, fmt.Errorf("runtime metric %s unavailable", s.Name)
		}
	}
	total := samples[0].Value.Uint64()
	released := samples[1].Value.Uint64()
	used := uint64(0)
	if total > released {
		used = total - released
	}
	return MemoryStats{Total: limit, Used: used}, nil
}
