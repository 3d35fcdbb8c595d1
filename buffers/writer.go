package buffers

import (
	"fmt"

	"github.com/alesr/bucketpool"
	"go.uber.org/atomic"
)

const defaultInitialCapacity = 256

// Writer is a growable buffer of T backed by a pooled array. It is not safe
// for concurrent use, except that Close may be called more than once.
type Writer[T any] struct {
	pool     Pool[T]
	buf      []T
	count    int
	clearOld bool
	closed   atomic.Bool
}

// NewWriter returns a Writer renting from pool, or from the shared pool for
// T when pool is nil. A non-positive initialCapacity selects a default.
func NewWriter[T any](pool Pool[T], initialCapacity int) *Writer[T] {
	if pool == nil {
		pool = bucketpool.Shared[T]()
	}
	if initialCapacity <= 0 {
		initialCapacity = defaultInitialCapacity
	}
	return &Writer[T]{
		pool:     pool,
		buf:      pool.Rent(initialCapacity),
		clearOld: bucketpool.ContainsReferences[T](),
	}
}

// Len returns the number of elements written.
func (w *Writer[T]) Len() int { return w.count }

// Cap returns the length of the owned array.
func (w *Writer[T]) Cap() int { return len(w.buf) }

// FreeCapacity returns how many elements fit before the next growth.
func (w *Writer[T]) FreeCapacity() int { return len(w.buf) - w.count }

// WrittenSlice returns the written elements. The slice aliases the owned
// array and is only valid until the next write, Reset or Close.
func (w *Writer[T]) WrittenSlice() []T {
	return w.buf[:w.count]
}

// ToSlice returns a copy of the written elements.
func (w *Writer[T]) ToSlice() []T {
	out := make([]T, w.count)
	copy(out, w.buf[:w.count])
	return out
}

// GetSpan returns the free tail of the buffer, at least sizeHint long
// (at least one element when sizeHint is zero). Elements filled in must be
// committed with Advance. GetSpan panics after Close.
func (w *Writer[T]) GetSpan(sizeHint int) []T {
	w.mustBeOpen()
	if sizeHint < 0 {
		panic(fmt.Errorf("%w: size hint %d", ErrNegativeCount, sizeHint))
	}
	w.mustGrow(max(sizeHint, 1))
	return w.buf[w.count:]
}

// Advance commits n elements written into the span returned by GetSpan.
func (w *Writer[T]) Advance(n int) {
	w.mustBeOpen()
	if n < 0 {
		panic(fmt.Errorf("%w: advance %d", ErrNegativeCount, n))
	}
	if n > w.FreeCapacity() {
		panic(fmt.Errorf("%w: advance %d with %d free", ErrAdvanceTooFar, n, w.FreeCapacity()))
	}
	w.count += n
}

// Write appends data.
func (w *Writer[T]) Write(data []T) error {
	if w.closed.Load() {
		return ErrDisposed
	}
	old, err := w.reserve(len(data))
	if err != nil {
		return err
	}
	// data may alias the replaced array, so it is released after the copy
	w.count += copy(w.buf[w.count:], data)
	release(w.pool, old, w.clearOld)
	return nil
}

// WriteOne appends a single element.
func (w *Writer[T]) WriteOne(v T) error {
	if w.closed.Load() {
		return ErrDisposed
	}
	if err := w.grow(1); err != nil {
		return err
	}
	w.buf[w.count] = v
	w.count++
	return nil
}

// Reset discards the written elements and keeps the owned array.
func (w *Writer[T]) Reset() {
	w.mustBeOpen()
	if w.clearOld {
		clear(w.buf[:w.count])
	}
	w.count = 0
}

// Close returns the owned array to the pool. Later calls do nothing.
func (w *Writer[T]) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	release(w.pool, w.buf, w.clearOld)
	w.buf = nil
	w.count = 0
	return nil
}

// grow makes room for n more elements.
func (w *Writer[T]) grow(n int) error {
	old, err := w.reserve(n)
	if err != nil {
		return err
	}
	release(w.pool, old, w.clearOld)
	return nil
}

// reserve makes room for n more elements and hands back the array it
// replaced, if any, still unreleased.
func (w *Writer[T]) reserve(n int) ([]T, error) {
	if n <= w.FreeCapacity() {
		return nil, nil
	}
	next, err := growInto(w.pool, w.buf, w.count, n)
	if err != nil {
		return nil, err
	}
	old := w.buf
	w.buf = next
	return old, nil
}

func (w *Writer[T]) mustGrow(n int) {
	if err := w.grow(n); err != nil {
		panic(err)
	}
}

func (w *Writer[T]) mustBeOpen() {
	if w.closed.Load() {
		panic(ErrDisposed)
	}
}
