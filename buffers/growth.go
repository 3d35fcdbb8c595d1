// Package buffers holds growable buffers backed by pooled arrays and the
// sizing and copy helpers they are built on.
//
// A Writer owns exactly one pooled array at a time. Growing rents a larger
// array, copies the written prefix, and returns the old array to the pool;
// there is no in-place resize.
package buffers

import (
	"fmt"
	"math/bits"

	"github.com/alesr/bucketpool"
)

const (
	// MaxPow2Capacity is the largest capacity growth rounds to a power of two.
	MaxPow2Capacity = 1 << 30

	// MaxCapacity is the largest capacity growth will produce.
	MaxCapacity = 0x7FFFFFC7
)

// Pool is the part of *bucketpool.ArrayPool the buffers depend on.
type Pool[T any] interface {
	Rent(minimumLength int) []T
	Return(array []T)
}

// GrowByPow2 returns the capacity needed to hold current+additional
// elements. Up to MaxPow2Capacity it is the next power of two; beyond that
// it is exact. It fails with ErrCapacityExceeded past MaxCapacity.
func GrowByPow2(current, additional int) (int, error) {
	if current < 0 || additional < 0 {
		return 0, fmt.Errorf("%w: grow %d by %d", ErrNegativeCount, current, additional)
	}
	if current > MaxCapacity || additional > MaxCapacity-current {
		return 0, fmt.Errorf("%w: %d + %d", ErrCapacityExceeded, current, additional)
	}

	required := max(current+additional, 1)
	if required <= MaxPow2Capacity {
		return 1 << bits.Len(uint(required-1)), nil
	}
	return required, nil
}

// GrowArray rents an array big enough for used+additional elements from
// pool, copies arr[:used] into it and returns arr to the pool. arr is
// cleared first when its elements may hold references. On error arr is
// left untouched.
func GrowArray[T any](pool Pool[T], arr []T, used, additional int) ([]T, error) {
	if used < 0 || used > len(arr) {
		return nil, fmt.Errorf("%w: used %d of %d", ErrCountOutOfRange, used, len(arr))
	}
	next, err := growInto(pool, arr, used, additional)
	if err != nil {
		return nil, err
	}
	release(pool, arr, bucketpool.ContainsReferences[T]())
	return next, nil
}

// growInto rents the grown array and copies arr[:used] into it, leaving arr
// owned by the caller.
func growInto[T any](pool Pool[T], arr []T, used, additional int) ([]T, error) {
	size, err := GrowByPow2(used, additional)
	if err != nil {
		return nil, err
	}
	next := pool.Rent(size)
	copy(next, arr[:used])
	return next, nil
}

func release[T any](pool Pool[T], arr []T, clearFirst bool) {
	if arr == nil {
		return
	}
	if clearFirst {
		clear(arr)
	}
	pool.Return(arr)
}
