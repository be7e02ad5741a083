package asset

// Config controls manager behavior. The zero value is not useful; start
// from DefaultConfig or DevelopmentConfig and adjust.
type Config struct {
	// RootPath is the directory asset paths are resolved against.
	RootPath string

	// CachePolicy selects the eviction behavior for zero-reference entries.
	CachePolicy CachePolicy

	// MaxCacheBytes is the cache size budget. Under PolicyLRU the manager
	// trims zero-reference entries back under this budget after each load.
	// Zero disables the budget.
	MaxCacheBytes int64

	// MaxConcurrentLoads bounds how many loader invocations run at once
	// across the whole manager. Values < 1 are treated as 1.
	MaxConcurrentLoads int

	// EnableHotReload starts a filesystem watcher on RootPath that reloads
	// cached assets when their files change.
	EnableHotReload bool

	// DefaultPriority is used for load requests that do not set one.
	DefaultPriority LoadPriority

	// OnLoadError, when set, receives failures that have no caller to
	// surface to: reload failures and disposal errors.
	OnLoadError func(path string, err error)
}

// DefaultConfig returns the production preset: assets under "Assets",
// LRU eviction with a 512 MiB budget, four concurrent loads, hot reload off.
func DefaultConfig() Config {
	return Config{
		RootPath:           "Assets",
		CachePolicy:        PolicyLRU,
		MaxCacheBytes:      512 << 20,
		MaxConcurrentLoads: 4,
		DefaultPriority:    PriorityNormal,
	}
}

// DevelopmentConfig returns the development preset: DefaultConfig with hot
// reload enabled and aggressive disposal, so edits show up immediately and
// stale values do not linger.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableHotReload = true
	cfg.CachePolicy = PolicyAggressive
	return cfg
}
