package irc

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/alesr/bucketpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func readAll(t *testing.T, r *Reader) ([]Message, error) {
	t.Helper()

	var msgs []Message
	for {
		msg, err := r.ReadMessage()
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}

func TestReader(t *testing.T) {
	t.Parallel()

	t.Run("Reads lines one byte at a time", func(t *testing.T) {
		t.Parallel()

		input := "PING :a\r\n\r\n:n!n@h PRIVMSG #c :hello\r\nPING :b"
		r := NewReader(iotest.OneByteReader(strings.NewReader(input)))
		defer r.Close()

		msgs, err := readAll(t, r)
		assert.ErrorIs(t, err, io.EOF)
		require.Len(t, msgs, 3)
		assert.Equal(t, "a", msgs[0].Trailing())
		assert.Equal(t, "hello", msgs[1].Trailing())
		assert.Equal(t, "b", msgs[2].Trailing(), "final unterminated line is parsed")
	})

	t.Run("Grows for long lines", func(t *testing.T) {
		t.Parallel()

		pool := bucketpool.New[byte](bucketpool.WithLocalCache(false))
		long := strings.Repeat("x", 3000)
		input := "PRIVMSG #c :" + long + "\r\nPING :after\r\n"

		r := NewReader(strings.NewReader(input), WithPool(pool))
		msgs, err := readAll(t, r)
		assert.ErrorIs(t, err, io.EOF)
		require.Len(t, msgs, 2)
		assert.Equal(t, long, msgs[0].Trailing())
		assert.Equal(t, "after", msgs[1].Trailing())

		require.NoError(t, r.Close())
		require.NoError(t, r.Close())

		m := pool.Metrics()
		assert.Greater(t, m.Allocated, uint64(1), "buffer should have grown")
		assert.Equal(t, m.Allocated, m.Returned, "every buffer goes back to the pool")
	})

	t.Run("Line too long", func(t *testing.T) {
		t.Parallel()

		input := "PRIVMSG #c :" + strings.Repeat("y", 5000) + "\r\n"
		r := NewReader(strings.NewReader(input), WithMaxLineLength(1024))
		defer r.Close()

		_, err := readAll(t, r)
		assert.ErrorIs(t, err, ErrLineTooLong)
	})

	t.Run("Malformed lines skipped", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.DebugLevel)
		input := ":only-prefix\r\nPING :ok\r\n"
		r := NewReader(strings.NewReader(input), WithLogger(zap.New(core)))
		defer r.Close()

		msgs, err := readAll(t, r)
		assert.ErrorIs(t, err, io.EOF)
		require.Len(t, msgs, 1)
		assert.Equal(t, "PING", msgs[0].Command)
		assert.Equal(t, 1, logs.FilterMessage("skipping malformed line").Len())
	})

	t.Run("Source errors surface after pending messages", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		src := io.MultiReader(strings.NewReader("PING :a\r\nPING :b\r\n"), iotest.ErrReader(boom))
		r := NewReader(src)
		defer r.Close()

		msgs, err := readAll(t, r)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, msgs, 2)
	})

	t.Run("Closed reader", func(t *testing.T) {
		t.Parallel()

		r := NewReader(strings.NewReader("PING :a\r\n"))
		require.NoError(t, r.Close())

		_, err := r.ReadMessage()
		assert.ErrorIs(t, err, ErrClosed)
	})
}
