package httpcache

import (
	"log/slog"
	"net/http"
	"time"
)

// suitability is SuitabilityChecker's verdict for a stored entry against an
// incoming request (spec.md Section 4.4).
type suitability int

const (
	// suitabilityMiss means the entry cannot be used at all; the backend
	// must be contacted and its response treated as a fresh miss.
	suitabilityMiss suitability = iota
	// suitabilityFresh means the entry may be served as-is.
	suitabilityFresh
	// suitabilityStaleOK means the entry is stale but may be served
	// as-is anyway (max-stale override, stale-while-revalidate window
	// without must-revalidate, disconnected operation).
	suitabilityStaleOK
	// suitabilityRevalidate means the entry is usable as the basis for a
	// conditional request but must not be served without validation.
	suitabilityRevalidate
)

// checkSuitability decides how (or whether) a stored entry satisfies req,
// given parsed request directives, the entry's own Cache-Control, and
// configuration.
func checkSuitability(entry *CacheEntry, req *http.Request, reqCC, storedCC cacheControl, cfg CacheConfig, shared bool, now time.Time, log *slog.Logger) suitability {
	if entry.IsVariantParent() {
		return suitabilityMiss
	}
	if reqCC.has(ccNoCache) {
		return suitabilityRevalidate
	}
	if pragma := req.Header.Get(headerPragma); !reqCC.has(ccMaxAge) && containsToken(pragma, pragmaNoCache) {
		return suitabilityRevalidate
	}

	if maxAge, ok := reqCC.seconds(ccMaxAge); ok {
		if currentAge(entry, now, log) > maxAge {
			return suitabilityRevalidate
		}
	}

	over := staleness(entry, storedCC, cfg, shared, now, log)

	if minFresh, ok := reqCC.seconds(ccMinFresh); ok {
		if -over < minFresh {
			return suitabilityRevalidate
		}
	}

	if over <= 0 {
		return suitabilityFresh
	}

	if maxStale, ok := reqCC.seconds(ccMaxStale); ok {
		if !mustRevalidateOnStale(storedCC, shared) && (maxStale == 0 || over <= maxStale) {
			return suitabilityStaleOK
		}
	}

	if mayServeStaleWhileRevalidating(storedCC, over) {
		return suitabilityStaleOK
	}

	if !entry.Revalidatable() {
		return suitabilityMiss
	}
	return suitabilityRevalidate
}
