package httpcache

import "time"

// CacheConfig holds the tunables spec.md Section 6 names. Zero-valued
// numeric, duration and string fields are replaced by the documented
// defaults in withDefaults; the bool fields are used as given.
type CacheConfig struct {
	// SharedCache enables s-maxage, private, and proxy-revalidate
	// semantics. Default: true.
	SharedCache bool

	// MaxObjectSize bounds the cacheable body size in bytes; larger
	// responses bypass the cache and stream through unmodified.
	// Default: 8 KiB.
	MaxObjectSize int64

	// MaxCacheEntries is a storage capacity hint passed through to
	// Storage implementations that honor it. Default: 1000.
	MaxCacheEntries int

	// HeuristicCachingEnabled permits the Last-Modified based freshness
	// heuristic (spec.md Section 4.1) when a response carries no
	// explicit freshness information. Default: true.
	HeuristicCachingEnabled bool

	// HeuristicCoefficient is the fraction of time-since-Last-Modified
	// used as heuristic freshness lifetime. Default: 0.1.
	HeuristicCoefficient float64

	// HeuristicDefaultLifetime floors heuristic freshness when no
	// Last-Modified is present. Default: 0.
	HeuristicDefaultLifetime time.Duration

	// HeuristicCeiling caps heuristic freshness lifetime regardless of
	// coefficient. Default: 24h.
	HeuristicCeiling time.Duration

	// AsyncWorkersMax sizes the AsynchronousRevalidator's worker pool.
	// Default: 1.
	AsyncWorkersMax int

	// RevalidationQueueSize bounds the pending-set of in-flight async
	// revalidations. Default: 100.
	RevalidationQueueSize int

	// Allow303Caching permits caching a 303 response that carries
	// explicit freshness information. Default: false.
	Allow303Caching bool

	// CASRetries bounds the number of re-read-and-retry attempts on a
	// failed compare-and-set storage update. Default: 3.
	CASRetries int

	// AsyncFailureThreshold is the consecutive-failure count at which
	// FailureCache suppresses further async revalidation for a key.
	// Default: 5.
	AsyncFailureThreshold int

	// AsyncFailureCacheCapacity bounds the FailureCache's tracked key
	// count. Default: 1000.
	AsyncFailureCacheCapacity int

	// Pseudonym is the token this cache identifies itself as in the Via
	// header it appends. Default: "httpcache".
	Pseudonym string
}

// DefaultConfig returns the documented defaults from spec.md Section 6.
func DefaultConfig() CacheConfig {
	return CacheConfig{
		SharedCache:               true,
		MaxObjectSize:             8 * 1024,
		MaxCacheEntries:           1000,
		HeuristicCachingEnabled:   true,
		HeuristicCoefficient:      0.1,
		HeuristicDefaultLifetime:  0,
		HeuristicCeiling:          24 * time.Hour,
		AsyncWorkersMax:           1,
		RevalidationQueueSize:     100,
		Allow303Caching:           false,
		CASRetries:                3,
		AsyncFailureThreshold:     5,
		AsyncFailureCacheCapacity: 1000,
		Pseudonym:                 "httpcache",
	}
}

// withDefaults fills zero-valued fields of cfg with DefaultConfig's values,
// so callers can supply a partially populated CacheConfig. The bool fields
// (SharedCache, HeuristicCachingEnabled, Allow303Caching) are not filled: a
// false value is kept as false.
func withDefaults(cfg CacheConfig) CacheConfig {
	d := DefaultConfig()
	if cfg.MaxObjectSize == 0 {
		cfg.MaxObjectSize = d.MaxObjectSize
	}
	if cfg.MaxCacheEntries == 0 {
		cfg.MaxCacheEntries = d.MaxCacheEntries
	}
	if cfg.HeuristicCoefficient == 0 {
		cfg.HeuristicCoefficient = d.HeuristicCoefficient
	}
	if cfg.HeuristicCeiling == 0 {
		cfg.HeuristicCeiling = d.HeuristicCeiling
	}
	if cfg.AsyncWorkersMax == 0 {
		cfg.AsyncWorkersMax = d.AsyncWorkersMax
	}
	if cfg.RevalidationQueueSize == 0 {
		cfg.RevalidationQueueSize = d.RevalidationQueueSize
	}
	if cfg.CASRetries == 0 {
		cfg.CASRetries = d.CASRetries
	}
	if cfg.AsyncFailureThreshold == 0 {
		cfg.AsyncFailureThreshold = d.AsyncFailureThreshold
	}
	if cfg.AsyncFailureCacheCapacity == 0 {
		cfg.AsyncFailureCacheCapacity = d.AsyncFailureCacheCapacity
	}
	if cfg.Pseudonym == "" {
		cfg.Pseudonym = d.Pseudonym
	}
	return cfg
}
