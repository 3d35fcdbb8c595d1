package buffers

import (
	"unicode/utf8"
)

// StringBuilder builds a string in a pooled byte array. The zero value is
// not usable; create one with NewStringBuilder and Close it when done.
type StringBuilder struct {
	w *Writer[byte]
}

// NewStringBuilder returns a builder renting from pool, or from the shared
// byte pool when pool is nil.
func NewStringBuilder(pool Pool[byte], initialCapacity int) *StringBuilder {
	return &StringBuilder{w: NewWriter(pool, initialCapacity)}
}

// Len returns the number of bytes written.
func (b *StringBuilder) Len() int { return b.w.Len() }

// Cap returns the length of the owned array.
func (b *StringBuilder) Cap() int { return b.w.Cap() }

// Write appends p. It implements io.Writer.
func (b *StringBuilder) Write(p []byte) (int, error) {
	if err := b.w.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte appends c. It implements io.ByteWriter.
func (b *StringBuilder) WriteByte(c byte) error {
	return b.w.WriteOne(c)
}

// WriteString appends s. It implements io.StringWriter.
func (b *StringBuilder) WriteString(s string) (int, error) {
	if b.w.closed.Load() {
		return 0, ErrDisposed
	}
	old, err := b.w.reserve(len(s))
	if err != nil {
		return 0, err
	}
	b.w.count += copy(b.w.buf[b.w.count:], s)
	release(b.w.pool, old, false)
	return len(s), nil
}

// WriteRune appends the UTF-8 encoding of r.
func (b *StringBuilder) WriteRune(r rune) (int, error) {
	if b.w.closed.Load() {
		return 0, ErrDisposed
	}
	if err := b.w.grow(utf8.UTFMax); err != nil {
		return 0, err
	}
	n := utf8.EncodeRune(b.w.buf[b.w.count:], r)
	b.w.count += n
	return n, nil
}

// GetSpan returns free space of at least sizeHint bytes to be committed
// with Advance.
func (b *StringBuilder) GetSpan(sizeHint int) []byte { return b.w.GetSpan(sizeHint) }

// Advance commits n bytes written into the span returned by GetSpan.
func (b *StringBuilder) Advance(n int) { b.w.Advance(n) }

// Bytes returns the written bytes, valid until the next write or Close.
func (b *StringBuilder) Bytes() []byte { return b.w.WrittenSlice() }

// String returns a copy of the written bytes as a string.
func (b *StringBuilder) String() string {
	return string(b.w.WrittenSlice())
}

// Reset discards the written bytes.
func (b *StringBuilder) Reset() { b.w.Reset() }

// Close returns the owned array to the pool. Later calls do nothing.
func (b *StringBuilder) Close() error { return b.w.Close() }
