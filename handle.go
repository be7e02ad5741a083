package asset

import "sync/atomic"

// Handle is a caller-held reference to a cache entry. Every handle owns
// exactly one unit of the entry's reference count, taken when the handle
// was created and returned by Release.
//
// All handles referencing the same cache entry share the same ID and
// observe the same underlying value, including values swapped in by hot
// reload.
type Handle[T any] struct {
	m        *Manager
	key      string
	path     string
	id       uint64
	released atomic.Bool
}

// Asset returns the cached value. It returns the zero value after the
// handle has been released or the entry has been force-unloaded.
func (h *Handle[T]) Asset() T {
	var zero T
	if h == nil || h.released.Load() {
		return zero
	}
	v, ok := h.m.value(h.key)
	if !ok {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		return zero
	}
	return t
}

// Path returns the asset path this handle refers to.
func (h *Handle[T]) Path() string {
	return h.path
}

// ID returns the cache entry's opaque identifier. It is identical for all
// handles referencing the same entry.
func (h *Handle[T]) ID() uint64 {
	return h.id
}

// Acquire increments the entry's reference count and returns a new handle
// for the same entry. It returns nil if this handle was already released
// or the entry is gone.
func (h *Handle[T]) Acquire() *Handle[T] {
	if h == nil || h.released.Load() {
		return nil
	}
	if !h.m.acquire(h.key) {
		return nil
	}
	return &Handle[T]{m: h.m, key: h.key, path: h.path, id: h.id}
}

// Release returns this handle's reference-count unit. Repeated calls are
// safe no-ops: each handle decrements the count at most once.
func (h *Handle[T]) Release() {
	if h == nil || h.released.Swap(true) {
		return
	}
	h.m.release(h.key)
}
