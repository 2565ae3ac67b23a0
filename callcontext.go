package httpcache

// CacheStatus reports how a response was produced, for callers that want to
// surface cache behavior (metrics, debug headers, logging).
type CacheStatus int

const (
	// StatusMiss means no usable entry existed; the backend was invoked
	// and its response stored (if cacheable).
	StatusMiss CacheStatus = iota
	// StatusHit means a fresh entry was served without contacting the
	// backend.
	StatusHit
	// StatusValidated means a stale entry was revalidated against the
	// backend and confirmed still current (304), or replaced by a fresh
	// 200.
	StatusValidated
	// StatusModuleResponse means the cache module generated the response
	// itself, without an entry or backend round trip (e.g. a 504 for
	// only-if-cached, or a 400 for fatal non-compliance).
	StatusModuleResponse
	// StatusFailure means the backend was invoked and failed, and no
	// usable stale entry was available to fall back on.
	StatusFailure
)

func (s CacheStatus) String() string {
	switch s {
	case StatusHit:
		return "HIT"
	case StatusValidated:
		return "VALIDATED"
	case StatusModuleResponse:
		return "CACHE_MODULE_RESPONSE"
	case StatusFailure:
		return "FAILURE"
	default:
		return "MISS"
	}
}

// CallContext carries per-request context that is not part of the HTTP
// request itself: the authoritative host (for virtual-hosted origins behind
// a shared connection), whether this cache instance is acting as a shared
// (vs. private) cache, and a result sink for the resolved CacheStatus.
type CallContext struct {
	// Host overrides the host used for storage-key derivation and
	// Location/Content-Location invalidation targets. If empty, the
	// request's own Host/URL.Host is used.
	Host string

	// Shared overrides the CacheConfig's SharedCache setting for this
	// single call. Leave nil to use the configured default.
	Shared *bool

	// Status receives the resolved CacheStatus once Executor.Do has
	// finished handling the request. If nil, Executor.Do sets it to a
	// newly allocated CacheStatus.
	Status *CacheStatus
}

func (ctx *CallContext) shared(cfg CacheConfig) bool {
	if ctx != nil && ctx.Shared != nil {
		return *ctx.Shared
	}
	return cfg.SharedCache
}

func (ctx *CallContext) setStatus(s CacheStatus) {
	if ctx == nil {
		return
	}
	if ctx.Status == nil {
		ctx.Status = new(CacheStatus)
	}
	*ctx.Status = s
}
