package bucketpool

import (
	"math/bits"
	"unsafe"

	"go.uber.org/atomic"
)

// slotBucket holds up to len(slots) arrays of a single size class.
//
// Bit i of positions is set while slot i holds an array. Both the mask and
// the slots are updated with CAS, so a renter and a returner racing on the
// same slot can briefly disagree; the loser retries and gives up after
// maxSlotTries rather than spinning.
type slotBucket[T any] struct {
	length     int
	full       uint64
	positions  atomic.Uint64
	lastAccess atomic.Int64 // unix nanos of the last successful rent or return
	slots      []atomic.Pointer[T]
}

func newSlotBucket[T any](length, capacity int) *slotBucket[T] {
	return &slotBucket[T]{
		length: length,
		full:   ^uint64(0) >> (64 - capacity),
		slots:  make([]atomic.Pointer[T], capacity),
	}
}

// tryRent takes an array out of the bucket and records now as the access tick.
func (b *slotBucket[T]) tryRent(now int64) ([]T, bool) {
	arr, ok := b.take()
	if ok {
		b.lastAccess.Store(now)
	}
	return arr, ok
}

// take removes one array without touching the access tick.
func (b *slotBucket[T]) take() ([]T, bool) {
	for range maxSlotTries {
		mask := b.positions.Load()
		if mask == 0 {
			return nil, false
		}
		i := bits.TrailingZeros64(mask)
		bit := uint64(1) << i
		if !b.positions.CompareAndSwap(mask, mask&^bit) {
			continue
		}
		ptr := b.slots[i].Swap(nil)
		if ptr == nil {
			// a returner claimed the bit but has not stored yet
			continue
		}
		return unsafe.Slice(ptr, b.length), true
	}
	return nil, false
}

// tryReturn stores arr, which must be exactly b.length long, into a free slot.
func (b *slotBucket[T]) tryReturn(arr []T, now int64) bool {
	ptr := unsafe.SliceData(arr)
	for range maxSlotTries {
		mask := b.positions.Load()
		free := ^mask & b.full
		if free == 0 {
			return false
		}
		i := bits.TrailingZeros64(free)
		bit := uint64(1) << i
		if !b.positions.CompareAndSwap(mask, mask|bit) {
			continue
		}
		if !b.slots[i].CompareAndSwap(nil, ptr) {
			// slot still holds an array a racing renter could not see; the
			// bit we just set now describes it correctly
			continue
		}
		b.lastAccess.Store(now)
		return true
	}
	return false
}

// contains reports whether the backing array of arr is parked in the bucket.
func (b *slotBucket[T]) contains(arr []T) bool {
	ptr := unsafe.SliceData(arr)
	for i := range b.slots {
		if b.slots[i].Load() == ptr {
			return true
		}
	}
	return false
}

// clear drops every pooled array and returns how many were dropped.
func (b *slotBucket[T]) clear() int {
	n := 0
	for i := range b.slots {
		if b.slots[i].Swap(nil) != nil {
			n++
		}
	}
	b.positions.Store(0)
	return n
}

// pooled is the number of occupied slots according to the mask.
func (b *slotBucket[T]) pooled() int {
	return bits.OnesCount64(b.positions.Load())
}
