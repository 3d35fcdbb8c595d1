package irc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/alesr/bucketpool"
	"github.com/alesr/bucketpool/buffers"
	"github.com/containerd/errdefs"
	"github.com/eapache/queue"
	"go.uber.org/zap"
)

const (
	defaultBufferSize    = 512
	defaultMaxLineLength = 16 << 10
)

var (
	// ErrLineTooLong is returned when a line does not fit the maximum length.
	ErrLineTooLong = fmt.Errorf("irc: line too long: %w", errdefs.ErrOutOfRange)

	// ErrClosed is returned by ReadMessage after Close.
	ErrClosed = fmt.Errorf("irc: reader closed: %w", errdefs.ErrFailedPrecondition)
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPool sets the pool the read buffer is rented from.
func WithPool(pool *bucketpool.ArrayPool[byte]) ReaderOption {
	return func(r *Reader) {
		if pool != nil {
			r.pool = pool
		}
	}
}

// WithMaxLineLength caps the length of a single line.
func WithMaxLineLength(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxLine = n
		}
	}
}

// WithLogger sets the logger used to report skipped lines.
func WithLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.log = logger
		}
	}
}

// Reader reads CR LF delimited IRC lines from an io.Reader into a pooled
// buffer. Lines that fail to parse are skipped. A Reader is not safe for
// concurrent use.
type Reader struct {
	src     io.Reader
	pool    *bucketpool.ArrayPool[byte]
	log     *zap.Logger
	maxLine int

	buf        []byte
	start, end int // unconsumed bytes are buf[start:end]
	pending    *queue.Queue
	err        error
}

// NewReader returns a Reader on src. The read buffer comes from the shared
// byte pool unless WithPool says otherwise; Close gives it back.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:     src,
		pool:    bucketpool.Shared[byte](),
		log:     zap.NewNop(),
		maxLine: defaultMaxLineLength,
		pending: queue.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.buf = r.pool.Rent(min(defaultBufferSize, r.maxLine))
	return r
}

// ReadMessage returns the next message. At the end of the input it returns
// io.EOF; read errors from the source are returned once pending messages
// are drained.
func (r *Reader) ReadMessage() (Message, error) {
	for r.pending.Length() == 0 {
		if r.err != nil {
			return Message{}, r.err
		}
		r.fill()
	}
	return r.pending.Remove().(Message), nil
}

// Buffered returns the number of parsed messages waiting to be read.
func (r *Reader) Buffered() int {
	return r.pending.Length()
}

// Close returns the read buffer to the pool.
func (r *Reader) Close() error {
	if r.buf == nil {
		return nil
	}
	r.pool.Return(r.buf)
	r.buf = nil
	r.start, r.end = 0, 0
	r.err = ErrClosed
	return nil
}

func (r *Reader) fill() {
	if r.end == len(r.buf) {
		if err := r.makeRoom(); err != nil {
			r.err = err
			return
		}
	}

	n, err := r.src.Read(r.buf[r.end:])
	r.end += n
	r.scan()
	if err != nil {
		if errors.Is(err, io.EOF) && r.start < r.end {
			r.parse(r.buf[r.start:r.end])
			r.start = r.end
		}
		r.err = err
	}
}

// scan parses every complete line in the buffer.
func (r *Reader) scan() {
	for {
		i := bytes.IndexByte(r.buf[r.start:r.end], '\n')
		if i < 0 {
			return
		}
		r.parse(r.buf[r.start : r.start+i+1])
		r.start += i + 1
	}
}

func (r *Reader) parse(line []byte) {
	msg, err := Parse(line)
	switch {
	case errors.Is(err, ErrEmptyLine):
	case err != nil:
		r.log.Debug("skipping malformed line", zap.ByteString("line", line), zap.Error(err))
	default:
		r.pending.Add(msg)
	}
}

// makeRoom compacts the unconsumed bytes to the front of the buffer and
// grows it when a single line fills all of it.
func (r *Reader) makeRoom() error {
	if r.start > 0 {
		n := r.end - r.start
		buffers.MoveWithin(r.buf, 0, r.start, n)
		r.start, r.end = 0, n
		if r.end < len(r.buf) {
			return nil
		}
	}
	if len(r.buf) >= r.maxLine {
		return fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, r.maxLine)
	}

	next, err := buffers.GrowArray(r.pool, r.buf, r.end, min(len(r.buf), r.maxLine-len(r.buf)))
	if err != nil {
		return err
	}
	r.buf = next
	return nil
}
