package asset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/orion-ecs/asset/internal/pathutil"
)

// Manager is the single source of truth for what is cached, how many
// references exist, and which eviction policy applies.
//
// The entry table is guarded by one mutex that is never held across loader
// I/O: loaders run unlocked, so unrelated paths do not serialize behind one
// another. Concurrent loads for the same path share a single flight.
type Manager struct {
	cfg      Config
	registry *Registry
	logger   *slog.Logger
	services any

	// sem bounds concurrent loader invocations across the manager.
	sem *semaphore.Weighted

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	deps       map[string]map[string]struct{}
	totalBytes int64
	closed     bool
	onReload   []func(path string)

	tick   atomic.Uint64 // monotonic access clock for LRU ordering
	nextID atomic.Uint64

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	failures  atomic.Uint64

	inflight    sync.WaitGroup
	reloadGroup singleflight.Group
	reloader    *ReloadManager
}

// ManagerOption configures a Manager beyond its Config.
type ManagerOption func(*Manager)

// WithLogger sets the logger for manager operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithServices attaches an opaque read-only value that is passed to every
// loader invocation via LoadContext.Services.
func WithServices(services any) ManagerOption {
	return func(m *Manager) {
		m.services = services
	}
}

// WithRegistry uses a shared loader registry instead of a fresh one.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// NewManager creates a manager for the asset tree rooted at cfg.RootPath.
//
// When cfg.EnableHotReload is set the manager starts a filesystem watcher
// on the root; construction fails if the root directory does not exist.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("%w: empty root path", ErrInvalidArgument)
	}
	if cfg.MaxConcurrentLoads < 1 {
		cfg.MaxConcurrentLoads = 1
	}
	if cfg.MaxCacheBytes < 0 {
		cfg.MaxCacheBytes = 0
	}

	m := &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		entries:  make(map[string]*cacheEntry),
		deps:     make(map[string]map[string]struct{}),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentLoads)),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}

	if cfg.EnableHotReload {
		rm, err := NewReloadManager(m)
		if err != nil {
			return nil, err
		}
		m.reloader = rm
	}
	return m, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (m *Manager) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// Registry returns the manager's loader registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RegisterLoader registers a typed loader with the manager's registry.
func RegisterLoader[T any](m *Manager, l Loader[T]) error {
	if m == nil {
		return fmt.Errorf("%w: nil manager", ErrInvalidArgument)
	}
	el, err := Erase(l)
	if err != nil {
		return err
	}
	m.registry.Register(el)
	return nil
}

// ref identifies a cache entry for handle construction.
type ref struct {
	key  string
	path string
	id   uint64
}

// Load loads the asset at path synchronously, blocking on I/O. On a cache
// hit it returns a new handle sharing the cached value. If an asynchronous
// load for the same path is already in flight, Load joins it.
func Load[T any](m *Manager, path string, opts ...LoadOption) (*Handle[T], error) {
	return load[T](context.Background(), m, path, opts, true)
}

// LoadAsync loads the asset at path, honoring ctx for cancellation.
// Concurrent calls for the same path are coalesced into one loader
// invocation; every caller observes its single result. A cancelled caller
// fails with ctx's error without disturbing co-waiters; the underlying
// I/O is aborted only when the last waiter gives up.
func LoadAsync[T any](ctx context.Context, m *Manager, path string, opts ...LoadOption) (*Handle[T], error) {
	return load[T](ctx, m, path, opts, false)
}

// LoadDependency loads dependencyPath exactly as Load would, additionally
// recording that parentPath depends on it.
func LoadDependency[T any](m *Manager, parentPath, dependencyPath string) (*Handle[T], error) {
	h, err := Load[T](m, dependencyPath)
	if err != nil {
		return nil, err
	}
	m.recordDependency(parentPath, dependencyPath)
	return h, nil
}

// LoadDependencyAsync loads dependencyPath exactly as LoadAsync would,
// additionally recording that parentPath depends on it.
func LoadDependencyAsync[T any](ctx context.Context, m *Manager, parentPath, dependencyPath string) (*Handle[T], error) {
	h, err := LoadAsync[T](ctx, m, dependencyPath)
	if err != nil {
		return nil, err
	}
	m.recordDependency(parentPath, dependencyPath)
	return h, nil
}

func load[T any](ctx context.Context, m *Manager, path string, opts []LoadOption, syncLoad bool) (*Handle[T], error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidArgument)
	}
	o := loadOptions{priority: m.cfg.DefaultPriority}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	r, err := m.load(ctx, path, reflect.TypeFor[T](), o.priority, syncLoad)
	if err != nil {
		return nil, err
	}
	return &Handle[T]{m: m, key: r.key, path: r.path, id: r.id}, nil
}

// load resolves a single load request against the entry table: cache hit,
// join of an in-flight load, or a fresh flight. The returned ref carries
// one unit of the entry's reference count.
func (m *Manager) load(ctx context.Context, p string, typ reflect.Type, pri LoadPriority, syncLoad bool) (ref, error) {
	key := pathutil.Key(p)
	if key == "" {
		return ref{}, fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ref{}, ErrClosed
	}

	if e, ok := m.entries[key]; ok {
		if e.typ != typ {
			m.mu.Unlock()
			return ref{}, fmt.Errorf("%w: %s cached as %s, requested %s", ErrUnsupportedFormat, p, e.typ, typ)
		}
		switch e.state {
		case stateLoaded:
			e.refs++
			e.lastAccess = m.tick.Add(1)
			m.hits.Add(1)
			m.mu.Unlock()
			return ref{key: e.key, path: e.path, id: e.id}, nil
		case stateLoading:
			f := e.flight
			f.waiters++
			m.mu.Unlock()
			if err := m.await(ctx, p, f); err != nil {
				return ref{}, err
			}
			return ref{key: e.key, path: e.path, id: e.id}, nil
		}
	}

	// Miss: create the entry in its loading state and become the flight's
	// first waiter.
	m.misses.Add(1)
	fctx, cancel := context.WithCancel(context.Background())
	e := &cacheEntry{
		key:      key,
		path:     cleanRel(p),
		typ:      typ,
		id:       m.nextID.Add(1),
		state:    stateLoading,
		priority: pri,
	}
	f := &flight{entry: e, done: make(chan struct{}), waiters: 1, cancel: cancel}
	e.flight = f
	m.entries[key] = e
	m.inflight.Add(1)
	m.mu.Unlock()

	m.log().Debug("asset load started", "path", e.path, "priority", pri.String())

	if syncLoad {
		m.fetch(fctx, e)
		<-f.done
		if f.err != nil {
			return ref{}, f.err
		}
		return ref{key: e.key, path: e.path, id: e.id}, nil
	}

	go m.fetch(fctx, e)
	if err := m.await(ctx, p, f); err != nil {
		return ref{}, err
	}
	return ref{key: e.key, path: e.path, id: e.id}, nil
}

// await blocks until the flight settles or ctx is cancelled. A waiter that
// gives up leaves the flight; when the last waiter leaves, the flight's
// context is cancelled and the I/O aborts.
func (m *Manager) await(ctx context.Context, p string, f *flight) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		m.leave(f)
		return fmt.Errorf("asset: load %s: %w", p, ctx.Err())
	}
}

// leave withdraws one waiter from a flight. If the flight already
// completed successfully, the waiter's pre-granted reference is returned.
func (m *Manager) leave(f *flight) {
	var dispose *cacheEntry
	m.mu.Lock()
	select {
	case <-f.done:
		if f.err == nil {
			dispose = m.releaseLocked(f.entry.key)
		}
	default:
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
		}
	}
	m.mu.Unlock()
	if dispose != nil {
		m.dispose(dispose.path, dispose.value)
	}
}

// fetch runs the loader for a fresh flight and publishes the result.
func (m *Manager) fetch(ctx context.Context, e *cacheEntry) {
	defer m.inflight.Done()
	value, size, err := m.runLoader(ctx, e.path, e.typ, e.priority)
	m.complete(e, value, size, err)
}

// runLoader performs one loader invocation: existence check, loader
// lookup, bounded-concurrency admission, open, decode.
func (m *Manager) runLoader(ctx context.Context, relPath string, typ reflect.Type, pri LoadPriority) (any, int64, error) {
	full := filepath.Join(m.cfg.RootPath, filepath.FromSlash(relPath))

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return nil, 0, fmt.Errorf("asset: stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("%w: %s is a directory", ErrNotFound, relPath)
	}

	ext := pathutil.Ext(relPath)
	el, ok := m.registry.erasedFor(ext, typ)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no loader for %q as %s", ErrUnsupportedFormat, ext, typ)
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, 0, fmt.Errorf("asset: load %s: %w", relPath, err)
	}
	defer m.sem.Release(1)

	fh, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, relPath)
		}
		return nil, 0, fmt.Errorf("asset: open %s: %w", relPath, err)
	}
	defer fh.Close()

	var r io.Reader = fh
	if pathutil.IsCompressed(relPath) {
		zr, err := zstd.NewReader(fh)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %w", ErrParse, relPath, err)
		}
		defer zr.Close()
		r = zr
	}

	lc := &LoadContext{Path: relPath, Manager: m, Services: m.services, Priority: pri}
	value, size, err := el.Load(ctx, r, lc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("asset: load %s: %w", relPath, ctx.Err())
		}
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrParse, relPath, err)
	}
	return value, size, nil
}

// complete settles a flight. Failed entries are not retained: the next
// load for the same path attempts I/O again.
func (m *Manager) complete(e *cacheEntry, value any, size int64, err error) {
	var toDispose []*cacheEntry
	var orphaned bool

	m.mu.Lock()
	f := e.flight
	e.flight = nil

	if err != nil {
		m.failures.Add(1)
		if m.entries[e.key] == e {
			delete(m.entries, e.key)
		}
		f.err = err
		close(f.done)
		m.mu.Unlock()
		m.log().Debug("asset load failed", "path", e.path, "error", err)
		return
	}

	if m.entries[e.key] != e {
		// Entry was removed from the table while loading. Deliver the
		// result to any waiters but do not cache it.
		orphaned = true
	}

	e.state = stateLoaded
	e.value = value
	e.size = size
	e.refs = f.waiters
	e.lastAccess = m.tick.Add(1)
	f.value = value
	f.size = size
	close(f.done)

	switch {
	case orphaned:
		toDispose = append(toDispose, e)
	default:
		m.totalBytes += size
		if f.waiters == 0 && m.cfg.CachePolicy == PolicyAggressive {
			// Every caller cancelled before completion; nothing holds a
			// reference, so aggressive disposal applies immediately.
			toDispose = append(toDispose, m.removeLocked(e))
		}
		if m.cfg.CachePolicy == PolicyLRU && m.cfg.MaxCacheBytes > 0 && m.totalBytes > m.cfg.MaxCacheBytes {
			toDispose = append(toDispose, m.evictLocked(m.cfg.MaxCacheBytes)...)
		}
	}
	m.mu.Unlock()

	m.log().Debug("asset loaded", "path", e.path, "bytes", size)
	for _, de := range toDispose {
		if de != nil {
			m.dispose(de.path, de.value)
		}
	}
}

// IsLoaded reports whether an entry for path exists in the loaded state.
func (m *Manager) IsLoaded(path string) bool {
	key := pathutil.Key(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && e.state == stateLoaded
}

// Unload removes and disposes the entry for path regardless of policy and
// reference count. It is a no-op if the path is not loaded.
func (m *Manager) Unload(path string) {
	key := pathutil.Key(path)

	var dispose *cacheEntry
	m.mu.Lock()
	if e, ok := m.entries[key]; ok && e.state == stateLoaded {
		dispose = m.removeLocked(e)
	}
	m.mu.Unlock()

	if dispose != nil {
		m.dispose(dispose.path, dispose.value)
	}
}

// UnloadAll removes and disposes every loaded entry. In-flight loads are
// left to settle on their own.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	var drop []*cacheEntry
	for _, e := range m.entries {
		if e.state == stateLoaded {
			drop = append(drop, m.removeLocked(e))
		}
	}
	m.mu.Unlock()

	for _, e := range drop {
		m.dispose(e.path, e.value)
	}
}

// Reload re-runs the loader for a currently loaded path and swaps the
// cached value in place, so existing handles observe the new value. It
// does nothing if the path is not loaded. Failures keep the previous value
// and are reported only through Config.OnLoadError; Reload never returns
// an error to its caller. Concurrent reloads for one path are coalesced.
func (m *Manager) Reload(ctx context.Context, path string) {
	key := pathutil.Key(path)
	if key == "" {
		return
	}
	_, _, _ = m.reloadGroup.Do(key, func() (any, error) {
		m.reloadOne(ctx, key)
		return nil, nil
	})
}

func (m *Manager) reloadOne(ctx context.Context, key string) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if m.closed || !ok || e.state != stateLoaded {
		m.mu.Unlock()
		return
	}
	relPath, typ, pri := e.path, e.typ, e.priority
	m.mu.Unlock()

	value, size, err := m.runLoader(ctx, relPath, typ, pri)
	if err != nil {
		m.reportError(relPath, err)
		return
	}

	m.mu.Lock()
	e, ok = m.entries[key]
	if m.closed || !ok || e.state != stateLoaded {
		m.mu.Unlock()
		m.dispose(relPath, value)
		return
	}
	old := e.value
	m.totalBytes += size - e.size
	e.value = value
	e.size = size
	e.lastAccess = m.tick.Add(1)
	callbacks := slices.Clone(m.onReload)
	m.mu.Unlock()

	m.dispose(relPath, old)
	m.log().Debug("asset reloaded", "path", relPath, "bytes", size)
	for _, cb := range callbacks {
		cb(relPath)
	}
}

// OnReload registers a callback invoked with the path of every
// successfully reloaded asset.
func (m *Manager) OnReload(fn func(path string)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.onReload = append(m.onReload, fn)
	m.mu.Unlock()
}

// TrimCache evicts zero-reference entries, oldest access first, until the
// cache occupies at most targetBytes. Only PolicyLRU evicts; under
// PolicyManual and PolicyAggressive TrimCache is a no-op. Entries with
// outstanding references are never evicted.
func (m *Manager) TrimCache(targetBytes int64) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	m.mu.Lock()
	if m.closed || m.cfg.CachePolicy != PolicyLRU {
		m.mu.Unlock()
		return
	}
	evicted := m.evictLocked(targetBytes)
	m.mu.Unlock()

	for _, e := range evicted {
		m.dispose(e.path, e.value)
	}
}

// evictLocked removes zero-reference loaded entries in oldest-access-first
// order until totalBytes <= target or no eligible entries remain.
// Caller holds m.mu; returned entries must be disposed after unlock.
func (m *Manager) evictLocked(target int64) []*cacheEntry {
	if m.totalBytes <= target {
		return nil
	}
	var candidates []*cacheEntry
	for _, e := range m.entries {
		if e.state == stateLoaded && e.refs == 0 {
			candidates = append(candidates, e)
		}
	}
	slices.SortFunc(candidates, func(a, b *cacheEntry) int {
		switch {
		case a.lastAccess < b.lastAccess:
			return -1
		case a.lastAccess > b.lastAccess:
			return 1
		default:
			return 0
		}
	})

	var evicted []*cacheEntry
	for _, e := range candidates {
		if m.totalBytes <= target {
			break
		}
		evicted = append(evicted, m.removeLocked(e))
		m.evictions.Add(1)
	}
	return evicted
}

// removeLocked deletes a loaded entry from the table and adjusts the size
// accounting. Caller holds m.mu and disposes the value after unlock.
func (m *Manager) removeLocked(e *cacheEntry) *cacheEntry {
	delete(m.entries, e.key)
	delete(m.deps, e.key)
	m.totalBytes -= e.size
	return e
}

// releaseLocked decrements an entry's reference count. Under
// PolicyAggressive it removes the entry when the count reaches zero and
// returns it for disposal. Caller holds m.mu.
func (m *Manager) releaseLocked(key string) *cacheEntry {
	e, ok := m.entries[key]
	if !ok || e.state != stateLoaded {
		return nil
	}
	if e.refs > 0 {
		e.refs--
	}
	if e.refs == 0 && m.cfg.CachePolicy == PolicyAggressive {
		return m.removeLocked(e)
	}
	return nil
}

// release returns one reference-count unit for a handle.
func (m *Manager) release(key string) {
	m.mu.Lock()
	dispose := m.releaseLocked(key)
	m.mu.Unlock()
	if dispose != nil {
		m.dispose(dispose.path, dispose.value)
	}
}

// acquire takes one additional reference-count unit for an existing loaded
// entry and touches its access marker.
func (m *Manager) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if m.closed || !ok || e.state != stateLoaded {
		return false
	}
	e.refs++
	e.lastAccess = m.tick.Add(1)
	return true
}

// value returns the current cached value for key.
func (m *Manager) value(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.state != stateLoaded {
		return nil, false
	}
	return e.value, true
}

func (m *Manager) recordDependency(parent, dep string) {
	parentKey := pathutil.Key(parent)
	depKey := pathutil.Key(dep)
	if parentKey == "" || depKey == "" {
		return
	}
	m.mu.Lock()
	set := m.deps[parentKey]
	if set == nil {
		set = make(map[string]struct{})
		m.deps[parentKey] = set
	}
	set[depKey] = struct{}{}
	m.mu.Unlock()
}

// Dependencies returns the sorted set of paths recorded as dependencies of
// parentPath.
func (m *Manager) Dependencies(parentPath string) []string {
	key := pathutil.Key(parentPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.deps[key]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	slices.Sort(out)
	return out
}

// Stats returns an immutable snapshot of cache statistics.
func (m *Manager) Stats() CacheStats {
	m.mu.Lock()
	var loaded, pending int
	for _, e := range m.entries {
		switch e.state {
		case stateLoaded:
			loaded++
		case stateLoading:
			pending++
		}
	}
	total := len(m.entries)
	totalBytes := m.totalBytes
	m.mu.Unlock()

	return CacheStats{
		TotalAssets:    total,
		LoadedAssets:   loaded,
		PendingAssets:  pending,
		FailedLoads:    m.failures.Load(),
		TotalSizeBytes: totalBytes,
		MaxSizeBytes:   m.cfg.MaxCacheBytes,
		CacheHits:      m.hits.Load(),
		CacheMisses:    m.misses.Load(),
		Evictions:      m.evictions.Load(),
	}
}

// Close tears the manager down: new operations fail with ErrClosed,
// in-flight loads are cancelled and waited for, then every cached value is
// disposed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, e := range m.entries {
		if e.state == stateLoading && e.flight != nil {
			e.flight.cancel()
		}
	}
	reloader := m.reloader
	m.reloader = nil
	m.mu.Unlock()

	if reloader != nil {
		reloader.Close()
	}
	m.inflight.Wait()

	m.mu.Lock()
	var drop []*cacheEntry
	for _, e := range m.entries {
		if e.state == stateLoaded {
			drop = append(drop, e)
		}
	}
	m.entries = make(map[string]*cacheEntry)
	m.deps = make(map[string]map[string]struct{})
	m.totalBytes = 0
	m.mu.Unlock()

	for _, e := range drop {
		m.dispose(e.path, e.value)
	}
	return nil
}

// dispose releases a cached value. Values implementing io.Closer are
// closed; close failures are reported but never propagated.
func (m *Manager) dispose(path string, value any) {
	closer, ok := value.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		m.reportError(path, err)
	}
}

func (m *Manager) reportError(path string, err error) {
	m.log().Warn("asset error", "path", path, "error", err)
	if m.cfg.OnLoadError != nil {
		m.cfg.OnLoadError(path, err)
	}
}

// cleanRel normalizes a caller-supplied path for display and filesystem
// resolution, preserving its original casing.
func cleanRel(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(path.Clean(p), "/")
}
