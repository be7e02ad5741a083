package asset

import (
	"context"
	"io"
)

// Loader decodes assets of type T from a byte stream.
//
// A loader claims one or more file extensions. Extensions are matched
// case-insensitively; the manager normalizes them to lowercase with a
// leading dot at registration time.
//
// Implementations must be safe for concurrent use: the manager may invoke
// the same loader from multiple goroutines for different paths.
type Loader[T any] interface {
	// Extensions returns the file extensions this loader claims,
	// e.g. []string{".png", ".jpg"}. Must be non-empty.
	Extensions() []string

	// Load decodes one asset from r. Synchronous callers pass a background
	// context; asynchronous loads pass a context that is cancelled when the
	// last waiting caller gives up.
	Load(ctx context.Context, r io.Reader, lc *LoadContext) (T, error)

	// EstimateSize reports the in-memory size of a decoded value in bytes.
	// Used for cache budgeting and eviction ordering.
	EstimateSize(v T) int64
}

// LoadContext carries per-invocation information into a loader.
type LoadContext struct {
	// Path is the cache-relative path of the asset being loaded.
	Path string

	// Manager is the manager performing the load. Loaders use it to pull
	// in dependencies via LoadDependency.
	Manager *Manager

	// Services is an optional read-only value supplied at manager
	// construction, for loaders that need external collaborators
	// (e.g. a GPU upload queue).
	Services any

	// Priority is the scheduling priority the caller requested.
	Priority LoadPriority
}

// LoadPriority orders load requests. It is scheduling metadata only: no
// guarantee is made about completion order.
type LoadPriority int

const (
	PriorityImmediate LoadPriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityStreaming
)

func (p LoadPriority) String() string {
	switch p {
	case PriorityImmediate:
		return "immediate"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// CachePolicy selects what happens to entries whose reference count
// drops to zero.
type CachePolicy int

const (
	// PolicyLRU keeps zero-reference entries cached and evicts them
	// oldest-access-first when the cache is trimmed.
	PolicyLRU CachePolicy = iota

	// PolicyManual keeps entries cached until explicitly unloaded.
	// TrimCache never evicts.
	PolicyManual

	// PolicyAggressive disposes an entry as soon as its last reference
	// is released.
	PolicyAggressive
)

func (p CachePolicy) String() string {
	switch p {
	case PolicyLRU:
		return "lru"
	case PolicyManual:
		return "manual"
	case PolicyAggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// LoadOption configures a single load request.
type LoadOption func(*loadOptions)

type loadOptions struct {
	priority LoadPriority
}

// WithPriority sets the scheduling priority for this load request.
// Defaults to the manager's configured DefaultPriority.
func WithPriority(p LoadPriority) LoadOption {
	return func(o *loadOptions) {
		o.priority = p
	}
}
