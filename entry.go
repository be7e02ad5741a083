package asset

import (
	"context"
	"reflect"
)

// entryState tracks where a cache entry is in its lifecycle. Absence from
// the table is the implicit empty state; removal is terminal.
type entryState uint8

const (
	stateLoading entryState = iota
	stateLoaded
)

// cacheEntry is the manager's record for one cached asset. All mutable
// fields are guarded by Manager.mu; key, path, typ and id are immutable
// after creation.
type cacheEntry struct {
	key  string // normalized, case-insensitive cache key
	path string // caller-supplied relative path, cleaned
	typ  reflect.Type
	id   uint64

	state    entryState
	priority LoadPriority

	// stateLoaded
	value      any
	size       int64
	refs       int
	lastAccess uint64

	// stateLoading
	flight *flight
}

// flight is the shared in-flight load every concurrent caller for one path
// awaits. The waiter count is guarded by Manager.mu; when it drops to zero
// the flight's context is cancelled and the underlying I/O aborts. Result
// fields are written exactly once before done is closed.
type flight struct {
	entry   *cacheEntry
	done    chan struct{}
	value   any
	size    int64
	err     error
	waiters int
	cancel  context.CancelFunc
}
