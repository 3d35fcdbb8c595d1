//go:build !linux

package bucketpool

// systemMemoryStats has no system source outside Linux. Use WithMemoryLimit
// to enable pressure trimming against Go runtime memory.
func systemMemoryStats() (MemoryStats, error) {
	return MemoryStats{}, nil
}
