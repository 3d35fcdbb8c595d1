package bucketpool

import (
	"sync"
	"unsafe"

	"go.uber.org/atomic"
)

// localStack is a fixed-depth LIFO of arrays for one size class.
// Slots at or above count are logically empty.
type localStack[T any] struct {
	slots [localDepth][]T
	count int
}

func (s *localStack[T]) tryRent() ([]T, bool) {
	if s.count == 0 {
		return nil, false
	}
	s.count--
	arr := s.slots[s.count]
	s.slots[s.count] = nil
	return arr, true
}

func (s *localStack[T]) tryReturn(arr []T) bool {
	if s.count == localDepth {
		return false
	}
	s.slots[s.count] = arr
	s.count++
	return true
}

func (s *localStack[T]) contains(arr []T) bool {
	ptr := unsafe.SliceData(arr)
	for _, held := range s.slots[:s.count] {
		if unsafe.SliceData(held) == ptr {
			return true
		}
	}
	return false
}

// localCache holds one stack per size class. It is owned by a single
// goroutine between acquire and release, so it needs no synchronization.
type localCache[T any] struct {
	epoch  uint64
	stacks []localStack[T]
}

func (c *localCache[T]) reset(epoch uint64) {
	clear(c.stacks)
	c.epoch = epoch
}

// localCaches hands out per-P localCache values backed by a sync.Pool.
// The epoch invalidates every cache at once: a cache acquired with a stale
// epoch is emptied before use.
type localCaches[T any] struct {
	enabled bool
	buckets int
	epoch   atomic.Uint64
	pool    sync.Pool
}

func newLocalCaches[T any](buckets int, enabled bool) *localCaches[T] {
	return &localCaches[T]{
		enabled: enabled,
		buckets: buckets,
	}
}

// acquire returns a cache owned by the caller until release, or nil when
// local caching is disabled.
func (l *localCaches[T]) acquire() *localCache[T] {
	if !l.enabled {
		return nil
	}
	epoch := l.epoch.Load()
	c, _ := l.pool.Get().(*localCache[T])
	if c == nil {
		return &localCache[T]{
			epoch:  epoch,
			stacks: make([]localStack[T], l.buckets),
		}
	}
	if c.epoch != epoch {
		c.reset(epoch)
	}
	return c
}

func (l *localCaches[T]) release(c *localCache[T]) {
	if c != nil {
		l.pool.Put(c)
	}
}

// invalidate logically empties every local cache.
func (l *localCaches[T]) invalidate() {
	l.epoch.Inc()
}

func (l *localCaches[T]) tryRent(index int) ([]T, bool) {
	c := l.acquire()
	if c == nil {
		return nil, false
	}
	arr, ok := c.stacks[index].tryRent()
	l.release(c)
	return arr, ok
}

func (l *localCaches[T]) tryReturn(index int, arr []T) bool {
	c := l.acquire()
	if c == nil {
		return false
	}
	ok := c.stacks[index].tryReturn(arr)
	l.release(c)
	return ok
}

// contains only sees the cache the calling goroutine happens to acquire.
func (l *localCaches[T]) contains(index int, arr []T) bool {
	c := l.acquire()
	if c == nil {
		return false
	}
	found := c.stacks[index].contains(arr)
	l.release(c)
	return found
}
