//go:build linux

package bucketpool

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const meminfoPath = "/proc/meminfo"

var errMeminfoIncomplete = errors.New("MemTotal not found in meminfo")

// systemMemoryStats reports physical memory with reclaimable page cache
// counted as free. It reads /proc/meminfo and falls back to sysinfo(2)
// when the file cannot be opened.
func systemMemoryStats() (MemoryStats, error) {
	f, err := os.Open(meminfoPath)
	if err != nil {
		return sysinfoMemoryStats()
	}
	defer f.Close()

	return parseMeminfo(f)
}

// parseMeminfo computes usage as MemTotal - MemAvailable. Kernels older than
// 3.14 lack MemAvailable; there MemFree + Buffers + Cached stands in for it.
func parseMeminfo(r io.Reader) (MemoryStats, error) {
	fields := map[string]uint64{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// Format: "MemAvailable:   16384000 kB"
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch key {
		case "MemTotal", "MemAvailable", "MemFree", "Buffers", "Cached":
		default:
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			continue
		}
		v, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return MemoryStats{}, fmt.Errorf("parse %s: %w", key, err)
		}
		if len(parts) > 1 && parts[1] == "kB" {
			v *= 1024
		}
		fields[key] = v
	}
	if err := scanner.Err(); err != nil {
		return MemoryStats{}, fmt.Errorf("read meminfo: %w", err)
	}

	total, ok := fields["MemTotal"]
	if !ok || total == 0 {
		return MemoryStats{}, errMeminfoIncomplete
	}
	available, ok := fields["MemAvailable"]
	if !ok {
		available = fields["MemFree"] + fields["Buffers"] + fields["Cached"]
	}
	available = min(available, total)
	return MemoryStats{Total: total, Used: total - available}, nil
}

// sysinfoMemoryStats cannot see the page cache, so it counts only free and
// buffer memory as available.
func sysinfoMemoryStats() (MemoryStats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return MemoryStats{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	free := min((uint64(info.Freeram)+uint64(info.Bufferram))*unit, total)
	return MemoryStats{Total: total, Used: total - free}, nil
}
