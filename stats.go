package asset

// CacheStats is a point-in-time snapshot of manager statistics.
type CacheStats struct {
	// TotalAssets is the number of entries in the cache table, loaded or
	// pending.
	TotalAssets int

	// LoadedAssets is the number of entries holding a decoded value.
	LoadedAssets int

	// PendingAssets is the number of entries with a load in flight.
	PendingAssets int

	// FailedLoads is the cumulative number of loader invocations that
	// failed. Failed entries are not retained, so this is a counter, not
	// a gauge.
	FailedLoads uint64

	// TotalSizeBytes is the sum of the estimated sizes of all loaded
	// entries.
	TotalSizeBytes int64

	// MaxSizeBytes is the configured cache budget. Zero means unbounded.
	MaxSizeBytes int64

	// CacheHits and CacheMisses count load requests resolved from cache
	// versus requests that triggered a loader invocation.
	CacheHits   uint64
	CacheMisses uint64

	// Evictions counts entries removed by TrimCache or budget
	// enforcement.
	Evictions uint64
}

// HitRatio returns hits/(hits+misses), or 0 when no requests were made.
func (s CacheStats) HitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// UtilizationRatio returns TotalSizeBytes/MaxSizeBytes, or 0 when the
// cache is unbounded or empty.
func (s CacheStats) UtilizationRatio() float64 {
	if s.MaxSizeBytes <= 0 || s.TotalSizeBytes <= 0 {
		return 0
	}
	return float64(s.TotalSizeBytes) / float64(s.MaxSizeBytes)
}
