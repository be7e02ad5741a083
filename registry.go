package asset

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/orion-ecs/asset/internal/pathutil"
)

// ErasedLoader is the type-erased form of a [Loader]. It is what the
// registry stores and what the manager invokes: callers that only know the
// result type at runtime can still drive a load through it.
type ErasedLoader struct {
	exts []string
	typ  reflect.Type
	load func(ctx context.Context, r io.Reader, lc *LoadContext) (any, int64, error)
	impl any
}

// Erase wraps a typed loader in its type-erased form. The loader's
// extensions are normalized to lowercase with a leading dot.
func Erase[T any](l Loader[T]) (*ErasedLoader, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil loader", ErrInvalidArgument)
	}
	raw := l.Extensions()
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: loader claims no extensions", ErrInvalidArgument)
	}
	exts := make([]string, 0, len(raw))
	for _, ext := range raw {
		ext = pathutil.NormalizeExt(ext)
		if ext == "" {
			continue
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("%w: loader claims no usable extensions", ErrInvalidArgument)
	}
	return &ErasedLoader{
		exts: exts,
		typ:  reflect.TypeFor[T](),
		impl: l,
		load: func(ctx context.Context, r io.Reader, lc *LoadContext) (any, int64, error) {
			v, err := l.Load(ctx, r, lc)
			if err != nil {
				return nil, 0, err
			}
			return v, l.EstimateSize(v), nil
		},
	}, nil
}

// Extensions returns the loader's normalized extensions.
func (el *ErasedLoader) Extensions() []string {
	out := make([]string, len(el.exts))
	copy(out, el.exts)
	return out
}

// Type returns the loader's result type.
func (el *ErasedLoader) Type() reflect.Type {
	return el.typ
}

// Load decodes one asset from r and reports the decoded value together
// with its estimated in-memory size.
func (el *ErasedLoader) Load(ctx context.Context, r io.Reader, lc *LoadContext) (any, int64, error) {
	return el.load(ctx, r, lc)
}

// Registry maps (extension, result type) pairs to loaders.
//
// Registering a loader for an already-claimed pair replaces the previous
// loader. Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]map[reflect.Type]*ErasedLoader
	byType map[reflect.Type]*ErasedLoader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]map[reflect.Type]*ErasedLoader),
		byType: make(map[reflect.Type]*ErasedLoader),
	}
}

// Register stores el under each of its extensions.
func (r *Registry) Register(el *ErasedLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range el.exts {
		m := r.byExt[ext]
		if m == nil {
			m = make(map[reflect.Type]*ErasedLoader)
			r.byExt[ext] = m
		}
		m[el.typ] = el
	}
	r.byType[el.typ] = el
}

// HasLoader reports whether any loader claims ext, for any result type.
// The extension may be given with or without a leading dot, in any case.
// The empty string is never registered.
func (r *Registry) HasLoader(ext string) bool {
	ext = pathutil.NormalizeExt(ext)
	if ext == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byExt[ext]) > 0
}

// SupportedExtensions returns the sorted set of all registered extensions
// across all result types.
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Erased returns the loader registered for a result type known only at
// runtime, or false if nothing is registered for that type.
func (r *Registry) Erased(typ reflect.Type) (*ErasedLoader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.byType[typ]
	return el, ok
}

// erasedFor returns the loader bound to (ext, typ). It reports false when
// nothing claims ext, and also when ext is claimed but under a different
// result type.
func (r *Registry) erasedFor(ext string, typ reflect.Type) (*ErasedLoader, bool) {
	ext = pathutil.NormalizeExt(ext)
	if ext == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.byExt[ext][typ]
	return el, ok
}

// LoaderFor returns the typed loader bound to (ext, T). An empty ext looks
// the loader up by result type alone.
func LoaderFor[T any](r *Registry, ext string) (Loader[T], bool) {
	typ := reflect.TypeFor[T]()

	var (
		el *ErasedLoader
		ok bool
	)
	if ext == "" {
		el, ok = r.Erased(typ)
	} else {
		el, ok = r.erasedFor(ext, typ)
	}
	if !ok {
		return nil, false
	}
	l, ok := el.impl.(Loader[T])
	return l, ok
}
