package asset

import "errors"

// Sentinel errors. Operations wrap these so callers can classify failures
// with errors.Is while the underlying cause stays reachable via Unwrap.
var (
	// ErrNotFound is returned when a path does not exist under the root.
	ErrNotFound = errors.New("asset: not found")

	// ErrUnsupportedFormat is returned when no loader is registered for a
	// file's extension and the requested result type.
	ErrUnsupportedFormat = errors.New("asset: unsupported format")

	// ErrParse is returned when a loader fails. The loader's own error is
	// preserved as the cause.
	ErrParse = errors.New("asset: parse failed")

	// ErrInvalidArgument is returned for empty paths and nil loaders.
	ErrInvalidArgument = errors.New("asset: invalid argument")

	// ErrClosed is returned for any operation after the manager is closed.
	ErrClosed = errors.New("asset: manager closed")
)
