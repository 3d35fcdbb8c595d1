package buffers

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unsafe"

	"github.com/alesr/bucketpool"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// panicError runs fn and returns the error it panicked with.
func panicError(t *testing.T, fn func()) (err error) {
	t.Helper()

	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		err, ok = r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
	}()
	fn()
	return nil
}

func randomString(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func TestWriterGrowth(t *testing.T) {
	t.Parallel()

	t.Run("One element at a time", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[byte]()
		w := NewWriter[byte](pool, 1)
		defer w.Close()

		var expected strings.Builder
		for i := range 10_000 {
			c := byte('a' + i%26)
			require.NoError(t, w.WriteOne(c))
			expected.WriteByte(c)
		}

		assert.Equal(t, 10_000, w.Len())
		assert.Equal(t, 16384, w.Cap())
		assert.Equal(t, expected.String(), string(w.WrittenSlice()))
	})

	t.Run("Rented buffer then large append", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[byte]()
		arr := pool.Rent(10)
		require.Len(t, arr, bucketpool.MinimumArrayLength)
		pool.Return(arr)

		w := NewWriter[byte](pool, 10)
		defer w.Close()
		require.Equal(t, 16, w.Cap())

		random := randomString(rand.New(rand.NewSource(1)), 1000)
		require.NoError(t, w.Write([]byte("hello")))
		require.NoError(t, w.Write([]byte(random)))

		assert.Equal(t, 1005, w.Len())
		assert.GreaterOrEqual(t, w.Cap(), 1005)
		assert.Equal(t, "hello"+random, string(w.ToSlice()))
	})

	t.Run("Growth returns old arrays", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[int](bucketpool.WithLocalCache(false))
		w := NewWriter[int](pool, 16)
		for i := range 100 {
			require.NoError(t, w.WriteOne(i))
		}

		// 16 -> 32 -> 64 -> 128
		m := pool.Metrics()
		assert.Equal(t, uint64(4), m.Allocated)
		assert.Equal(t, uint64(3), m.Returned)

		require.NoError(t, w.Close())
		assert.Equal(t, uint64(4), pool.Metrics().Returned)
	})

	t.Run("Appending own contents", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[string](bucketpool.WithLocalCache(false))
		w := NewWriter[string](pool, 16)
		defer w.Close()

		want := make([]string, 16)
		for i := range want {
			want[i] = string(rune('a' + i))
			require.NoError(t, w.WriteOne(want[i]))
		}
		require.Zero(t, w.FreeCapacity())

		require.NoError(t, w.Write(w.WrittenSlice()))

		assert.Equal(t, 32, w.Len())
		assert.Equal(t, append(want, want...), w.ToSlice())
		// the replaced array still went back to the pool, cleared
		assert.Equal(t, uint64(1), pool.Metrics().Returned)
		for _, s := range pool.Rent(16) {
			assert.Empty(t, s)
		}
	})

	t.Run("Appending own bytes", func(t *testing.T) {
		t.Parallel()

		sb := NewStringBuilder(bucketpool.New[byte](bucketpool.WithLocalCache(false)), 16)
		defer sb.Close()

		sb.WriteString("0123456789abcdef")
		_, err := sb.Write(sb.Bytes())
		require.NoError(t, err)
		_, err = sb.Write(sb.Bytes()[:4])
		require.NoError(t, err)

		assert.Equal(t, "0123456789abcdef0123456789abcdef0123", sb.String())
	})
}

func TestWriterSpans(t *testing.T) {
	t.Parallel()

	pool := bucketpool.New[byte]()
	w := NewWriter[byte](pool, 16)
	defer w.Close()

	span := w.GetSpan(4)
	require.GreaterOrEqual(t, len(span), 4)
	n := copy(span, "abcd")
	w.Advance(n)
	assert.Equal(t, "abcd", string(w.WrittenSlice()))

	// growing keeps the committed prefix
	span = w.GetSpan(100)
	require.GreaterOrEqual(t, len(span), 100)
	assert.Equal(t, 128, w.Cap())
	w.Advance(copy(span, "efgh"))
	assert.Equal(t, "abcdefgh", string(w.WrittenSlice()))

	assert.NotEmpty(t, w.GetSpan(0))

	err := panicError(t, func() { w.Advance(w.FreeCapacity() + 1) })
	assert.ErrorIs(t, err, ErrAdvanceTooFar)

	err = panicError(t, func() { w.Advance(-1) })
	assert.ErrorIs(t, err, ErrNegativeCount)

	err = panicError(t, func() { w.GetSpan(-1) })
	assert.ErrorIs(t, err, ErrNegativeCount)

	w.Reset()
	assert.Zero(t, w.Len())
	assert.Equal(t, 128, w.Cap())
}

func TestWriterClose(t *testing.T) {
	t.Parallel()

	t.Run("Close is idempotent", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[byte](bucketpool.WithLocalCache(false), bucketpool.WithDebugChecks(true))
		w := NewWriter[byte](pool, 32)
		require.NoError(t, w.Write([]byte("data")))

		require.NoError(t, w.Close())
		require.NoError(t, w.Close())
		assert.Equal(t, uint64(1), pool.Metrics().Returned)

		// a double return would hand the same array out twice
		a := pool.Rent(32)
		b := pool.Rent(32)
		assert.NotEqual(t, unsafe.SliceData(a), unsafe.SliceData(b))
	})

	t.Run("Writes fail after close", func(t *testing.T) {
		t.Parallel()

		w := NewWriter[byte](bucketpool.New[byte](), 16)
		require.NoError(t, w.Close())

		assert.ErrorIs(t, w.Write([]byte("x")), ErrDisposed)
		assert.ErrorIs(t, w.WriteOne('x'), ErrDisposed)
		assert.True(t, errdefs.IsFailedPrecondition(w.WriteOne('x')))

		err := panicError(t, func() { w.GetSpan(1) })
		assert.ErrorIs(t, err, ErrDisposed)
		err = panicError(t, func() { w.Advance(0) })
		assert.ErrorIs(t, err, ErrDisposed)
		err = panicError(t, func() { w.Reset() })
		assert.ErrorIs(t, err, ErrDisposed)
		assert.Empty(t, w.WrittenSlice())
	})

	t.Run("Reference elements are cleared", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[*string](bucketpool.WithLocalCache(false), bucketpool.WithDebugChecks(true))
		w := NewWriter[*string](pool, 16)
		s := "kept"
		for range 40 {
			require.NoError(t, w.WriteOne(&s))
		}
		assert.NotPanics(t, func() { w.Close() })
		assert.Equal(t, 3, pool.Metrics().PooledArrays)
	})

	t.Run("Shared pool by default", func(t *testing.T) {
		t.Parallel()

		w := NewWriter[float64](nil, 0)
		assert.Equal(t, defaultInitialCapacity, w.Cap())
		require.NoError(t, w.Close())
	})
}

func TestStringBuilder(t *testing.T) {
	t.Parallel()

	t.Run("Implements writers", func(t *testing.T) {
		t.Parallel()

		sb := NewStringBuilder(bucketpool.New[byte](), 4)
		defer sb.Close()

		_, err := fmt.Fprintf(sb, "%s=%d", "answer", 42)
		require.NoError(t, err)
		require.NoError(t, sb.WriteByte(' '))
		n, err := sb.WriteRune('é')
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = sb.WriteString(" ok")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		assert.Equal(t, "answer=42 é ok", sb.String())
		assert.Equal(t, len("answer=42 é ok"), sb.Len())
	})

	t.Run("Ten thousand runes", func(t *testing.T) {
		t.Parallel()

		sb := NewStringBuilder(nil, 1)
		defer sb.Close()

		var expected strings.Builder
		for i := range 10_000 {
			r := rune('α' + i%24)
			_, err := sb.WriteRune(r)
			require.NoError(t, err)
			expected.WriteRune(r)
		}
		assert.Equal(t, expected.String(), sb.String())
	})

	t.Run("Span and advance", func(t *testing.T) {
		t.Parallel()

		sb := NewStringBuilder(nil, 16)
		defer sb.Close()

		sb.WriteString("id:")
		sb.Advance(copy(sb.GetSpan(8), "12345678"))
		assert.Equal(t, "id:12345678", sb.String())
		assert.Equal(t, []byte("id:12345678"), sb.Bytes())

		sb.Reset()
		assert.Empty(t, sb.String())
	})

	t.Run("Closed builder", func(t *testing.T) {
		t.Parallel()

		sb := NewStringBuilder(nil, 16)
		require.NoError(t, sb.Close())
		require.NoError(t, sb.Close())

		_, err := sb.WriteString("late")
		assert.ErrorIs(t, err, ErrDisposed)
		_, err = sb.WriteRune('x')
		assert.ErrorIs(t, err, ErrDisposed)
		_, err = sb.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrDisposed)
		assert.Empty(t, sb.String())
	})
}
