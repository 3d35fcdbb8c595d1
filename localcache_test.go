package bucketpool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStack(t *testing.T) {
	t.Parallel()

	var s localStack[byte]

	_, ok := s.tryRent()
	assert.False(t, ok, "empty stack should have nothing to rent")

	arrays := make([][]byte, localDepth)
	for i := range arrays {
		arrays[i] = make([]byte, 16)
		require.True(t, s.tryReturn(arrays[i]))
	}
	assert.False(t, s.tryReturn(make([]byte, 16)), "full stack should reject")
	assert.True(t, s.contains(arrays[0]))

	// last in, first out
	for i := localDepth - 1; i >= 0; i-- {
		arr, ok := s.tryRent()
		require.True(t, ok)
		assert.Equal(t, unsafe.SliceData(arrays[i]), unsafe.SliceData(arr))
	}
	assert.False(t, s.contains(arrays[0]))
	for _, slot := range s.slots {
		assert.Nil(t, slot, "rented slots should not keep arrays alive")
	}
}

func TestLocalCaches(t *testing.T) {
	t.Parallel()

	t.Run("Disabled", func(t *testing.T) {
		t.Parallel()

		l := newLocalCaches[byte](4, false)
		assert.Nil(t, l.acquire())
		assert.False(t, l.tryReturn(0, make([]byte, 16)))

		_, ok := l.tryRent(0)
		assert.False(t, ok)
	})

	t.Run("Acquire sizes stacks", func(t *testing.T) {
		t.Parallel()

		l := newLocalCaches[byte](5, true)
		c := l.acquire()
		require.NotNil(t, c)
		assert.Len(t, c.stacks, 5)
		l.release(c)
	})

	t.Run("Invalidate empties caches", func(t *testing.T) {
		t.Parallel()

		l := newLocalCaches[byte](2, true)
		c := l.acquire()
		require.True(t, c.stacks[1].tryReturn(make([]byte, 32)))
		l.release(c)

		l.invalidate()

		// whether the pool hands back the same cache or a new one, it is empty
		c = l.acquire()
		assert.Zero(t, c.stacks[1].count)
		assert.Equal(t, l.epoch.Load(), c.epoch)
		l.release(c)
	})
}
