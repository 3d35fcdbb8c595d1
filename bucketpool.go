// Package bucketpool provides a typed array pool that buckets arrays by
// power-of-two size class.
//
// Rent first consults a small per-P cache, then a set of shared lock-free
// buckets, and falls back to a fresh allocation when neither has a suitable
// array. Return reverses the lookup. A background trimmer releases arrays
// from buckets that went stale or when the system runs short on memory.
//
//	pool := bucketpool.New[byte]()
//	defer pool.Dispose()
//
//	buf := pool.Rent(1000) // len(buf) == 1024
//	// ... use buf ...
//	pool.Return(buf)
//
// A rented array is owned exclusively by the caller until it is returned.
// The pool does not track rentals: returning an array twice, or using it
// after Return, is a caller bug.
package bucketpool

import (
	"math/bits"
	"reflect"
	"unsafe"
)

const (
	// MinimumArrayLength is the default smallest pooled size class.
	MinimumArrayLength = 16

	// MaximumArrayLength is the default largest pooled size class.
	// Larger requests are allocated directly and never pooled.
	MaximumArrayLength = 1 << 23

	// localDepth is the number of arrays a local cache keeps per size class.
	localDepth = 4

	// maxSlotTries bounds the CAS retries of a shared bucket operation.
	maxSlotTries = 6

	// defaultProbeWidth is how many shared buckets Rent and Return visit.
	defaultProbeWidth = 3
)

// isPow2 reports whether n is a positive power of two.
func isPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// roundUpPow2 returns the smallest power of two >= n, for n >= 1.
func roundUpPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// roundDownPow2 returns the largest power of two <= n, for n >= 1.
func roundDownPow2(n int) int {
	return 1 << (bits.Len(uint(n)) - 1)
}

// bucketIndex maps a power-of-two length to its bucket, relative to the
// smallest size class.
func bucketIndex(length, minLength int) int {
	return bits.TrailingZeros(uint(length)) - bits.TrailingZeros(uint(minLength))
}

// slotsFor returns the shared bucket capacity for a bucket index.
// Larger size classes keep fewer arrays.
func slotsFor(index int) int {
	return max(4, 64>>(index/3))
}

// elemTraits describes the element type of a pool.
type elemTraits struct {
	size     uintptr // bytes per element, at least 1
	zeroSize bool    // all arrays share one address, so identity is meaningless
	pointers bool    // may hold references the GC must trace
	common   bool    // primitive numeric, bool or string
}

func traitsOf[T any]() elemTraits {
	var zero T
	t := reflect.TypeFor[T]()
	return elemTraits{
		size:     max(unsafe.Sizeof(zero), 1),
		zeroSize: unsafe.Sizeof(zero) == 0,
		pointers: mayContainReferences(t),
		common:   isCommonlyPooled(t),
	}
}

// ContainsReferences reports whether arrays of T should be cleared before
// they are returned to a pool, so that pooled arrays keep nothing alive.
func ContainsReferences[T any]() bool {
	return mayContainReferences(reflect.TypeFor[T]())
}

func mayContainReferences(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && mayContainReferences(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if mayContainReferences(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func isCommonlyPooled(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// isZeroed reports whether every byte of arr is zero.
func isZeroed[T any](arr []T) bool {
	var zero T
	size := unsafe.Sizeof(zero)
	if len(arr) == 0 || size == 0 {
		return true
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(arr))), uintptr(len(arr))*size)
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}
