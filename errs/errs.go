// Package errs collects the sentinel and typed errors shared across the
// collection, viewport, loader, and engine packages. Keeping them in a leaf
// package lets every component return or check against the same values
// without creating an import cycle back through the engine facade.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOutOfBounds is returned by Engine.RetryFailed for a negative block id.
// A scroll-to target past the known total does not produce it: the viewport
// clamps the scroll position and neither logs nor reports the condition.
var ErrOutOfBounds = errors.New("vlist: index out of bounds")

// ErrItemNotLoaded is returned by ScrollToItem when the requested id is not
// present in the sparse item store.
var ErrItemNotLoaded = errors.New("vlist: item not loaded")

// ErrDestroyed is returned by Collection.LoadRange and RetryFailed (and so
// by Engine.RetryFailed) after Destroy. Other methods do not report it:
// after Destroy the viewport stops emitting render plans and the loader's
// context is cancelled, but their calls return no error.
var ErrDestroyed = errors.New("vlist: engine destroyed")

// ErrInvalidConfig is returned at construction time for out-of-range
// configuration values. Configuration errors are always fatal at
// construction rather than surfacing later as a runtime failure.
var ErrInvalidConfig = errors.New("vlist: invalid configuration")

// AdapterError wraps a failure surfaced by the external read(range)
// capability, whether a transport-level error or an explicit error field in
// the adapter's response.
type AdapterError struct {
	BlockStart, BlockEnd int
	Attempts             int
	Code                 string
	cause                error
}

// NewAdapterError wraps cause with block and attempt context.
func NewAdapterError(start, end, attempts int, code string, cause error) *AdapterError {
	return &AdapterError{
		BlockStart: start,
		BlockEnd:   end,
		Attempts:   attempts,
		Code:       code,
		cause:      errors.WithStack(cause),
	}
}

func (e *AdapterError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("vlist: adapter error reading range [%d,%d] (attempt %d, code %s): %v", e.BlockStart, e.BlockEnd, e.Attempts, e.Code, e.cause)
	}
	return fmt.Sprintf("vlist: adapter error reading range [%d,%d] (attempt %d): %v", e.BlockStart, e.BlockEnd, e.Attempts, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AdapterError) Unwrap() error {
	return e.cause
}
