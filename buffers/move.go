package buffers

import (
	"fmt"
	"unsafe"
)

// Integer is any integer type usable as an element count.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// moveChunk caps the elements moved by a single copy call.
const moveChunk = 1 << 30

// Move copies count elements from src to dst with memmove semantics: the
// result is correct when the two ranges overlap. It panics with
// ErrCountOutOfRange when count is negative or exceeds either slice.
func Move[T any, N Integer](dst, src []T, count N) {
	n := checkCount(count, min(len(dst), len(src)))
	moveChunked(dst[:n], src[:n], moveChunk)
}

// MoveWithin moves count elements of s from offset src to offset dst.
func MoveWithin[T any, N Integer](s []T, dst, src int, count N) {
	if dst < 0 || src < 0 || dst > len(s) || src > len(s) {
		panic(fmt.Errorf("%w: offsets %d and %d in %d elements", ErrCountOutOfRange, dst, src, len(s)))
	}
	Move(s[dst:], s[src:], count)
}

func checkCount[N Integer](count N, limit int) int {
	if count < 0 || uint64(count) > uint64(limit) {
		panic(fmt.Errorf("%w: %d of %d", ErrCountOutOfRange, count, limit))
	}
	return int(count)
}

// moveChunked copies len(dst) == len(src) elements chunk at a time. When dst
// starts inside src, chunks are copied back to front so no source element
// is overwritten before it is read.
func moveChunked[T any](dst, src []T, chunk int) {
	n := len(dst)
	if n == 0 {
		return
	}
	if overlapsAfter(dst, src) {
		for end := n; end > 0; {
			start := max(end-chunk, 0)
			copy(dst[start:end], src[start:end])
			end = start
		}
		return
	}
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		copy(dst[start:end], src[start:end])
	}
}

// overlapsAfter reports whether dst begins strictly inside src.
func overlapsAfter[T any](dst, src []T) bool {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		return false
	}
	d := uintptr(unsafe.Pointer(unsafe.SliceData(dst)))
	s := uintptr(unsafe.Pointer(unsafe.SliceData(src)))
	return d > s && d < s+uintptr(len(src))*size
}
