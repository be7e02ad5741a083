// Package asset provides a type-safe, reference-counted cache for loading
// named resources from disk on demand.
//
// A [Manager] owns the cache: it resolves paths against a root directory,
// dispatches to registered [Loader] implementations by file extension,
// deduplicates concurrent loads for the same path, tracks reference counts,
// and enforces one of several eviction policies. Callers receive a
// [Handle] that pins the loaded value until released.
//
// # Quick Start
//
// Register a loader and load an asset:
//
//	m, err := asset.NewManager(asset.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if err := asset.RegisterLoader(m, textLoader{}); err != nil {
//	    return err
//	}
//	h, err := asset.Load[Text](m, "dialog/intro.txt")
//	if err != nil {
//	    return err
//	}
//	defer h.Release()
//	fmt.Println(h.Asset().Content)
//
// # Concurrency
//
// [LoadAsync] is safe to call from any goroutine. Concurrent calls for the
// same path share a single loader invocation and observe the same result.
// A global limit ([Config.MaxConcurrentLoads]) bounds how many loader
// invocations run at once across the manager.
//
// # Eviction
//
// Entries whose reference count is above zero are never evicted. What
// happens when the count reaches zero depends on [Config.CachePolicy]:
// [PolicyManual] keeps entries until explicitly unloaded, [PolicyAggressive]
// disposes them immediately, and [PolicyLRU] keeps them cached but
// eligible for eviction by [Manager.TrimCache].
//
// # Background loading and hot reload
//
// [StreamingManager] drains a bulk preload queue through the same load path
// with bounded concurrency. [ReloadManager] watches the asset root with
// fsnotify and re-runs loaders when files on disk change, swapping the
// cached value in place so existing handles observe the new value.
//
// For the optional persisted asset index, see the manifest subpackage.
// For Prometheus exposition of cache statistics, see the metrics subpackage.
package asset
