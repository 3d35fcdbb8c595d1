package bucketpool

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrNegativeLength is the panic value cause for Rent called with a negative length.
	ErrNegativeLength = fmt.Errorf("bucketpool: negative array length: %w", errdefs.ErrInvalidArgument)

	// ErrNotCleared reports an array holding references that was returned
	// without being cleared. Only detected with debug checks enabled.
	ErrNotCleared = fmt.Errorf("bucketpool: returned array was not cleared: %w", errdefs.ErrFailedPrecondition)

	// ErrDoubleReturn reports an array returned while the pool already holds it.
	// Only detected with debug checks enabled.
	ErrDoubleReturn = fmt.Errorf("bucketpool: array returned twice: %w", errdefs.ErrFailedPrecondition)
)
