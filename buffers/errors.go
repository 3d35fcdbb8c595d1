package buffers

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrNegativeCount reports a negative size or count argument.
	ErrNegativeCount = fmt.Errorf("buffers: negative count: %w", errdefs.ErrInvalidArgument)

	// ErrCapacityExceeded reports growth past MaxCapacity.
	ErrCapacityExceeded = fmt.Errorf("buffers: capacity exceeds maximum array length: %w", errdefs.ErrOutOfRange)

	// ErrCountOutOfRange reports a move count larger than one of its slices.
	ErrCountOutOfRange = fmt.Errorf("buffers: count out of range: %w", errdefs.ErrOutOfRange)

	// ErrAdvanceTooFar reports an Advance past the free capacity.
	ErrAdvanceTooFar = fmt.Errorf("buffers: advanced past free capacity: %w", errdefs.ErrOutOfRange)

	// ErrDisposed reports use of a writer after Close.
	ErrDisposed = fmt.Errorf("buffers: writer is closed: %w", errdefs.ErrFailedPrecondition)
)
