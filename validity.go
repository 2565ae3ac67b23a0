package httpcache

import (
	"log/slog"
	"time"
)

// freshnessLifetime implements spec.md Section 4.1's freshness_lifetime
// calculation: shared caches prefer s-maxage over max-age, then Expires
// minus Date, then (if enabled) the Last-Modified heuristic.
func freshnessLifetime(e *CacheEntry, cc cacheControl, cfg CacheConfig, shared bool, log *slog.Logger) time.Duration {
	if shared {
		if d, ok := cc.seconds(ccSMaxAge); ok {
			return d
		}
	}
	if d, ok := cc.seconds(ccMaxAge); ok {
		return d
	}
	if expires, ok := ParseHTTPDate(e.Header.Get("Expires")); ok {
		if date, ok := Date(e.Header); ok {
			if d := expires.Sub(date); d > 0 {
				return d
			}
			return 0
		}
	}
	if cfg.HeuristicCachingEnabled {
		return heuristicFreshnessLifetime(e, cfg, log)
	}
	return 0
}

// heuristicFreshnessLifetime implements the RFC 9111 Section 4.2.2 heuristic:
// a coefficient of the time elapsed since Last-Modified, bounded by a
// configured ceiling and floored by a configured default.
func heuristicFreshnessLifetime(e *CacheEntry, cfg CacheConfig, log *slog.Logger) time.Duration {
	lm, ok := ParseHTTPDate(e.Header.Get("Last-Modified"))
	if !ok {
		return cfg.HeuristicDefaultLifetime
	}
	date, ok := Date(e.Header)
	if !ok {
		date = e.ResponseTime
	}
	age := date.Sub(lm)
	if age <= 0 {
		return cfg.HeuristicDefaultLifetime
	}
	lifetime := time.Duration(float64(age) * cfg.HeuristicCoefficient)
	if cfg.HeuristicCeiling > 0 && lifetime > cfg.HeuristicCeiling {
		lifetime = cfg.HeuristicCeiling
	}
	if lifetime < cfg.HeuristicDefaultLifetime {
		lifetime = cfg.HeuristicDefaultLifetime
	}
	if log != nil {
		log.Debug("heuristic freshness lifetime", "lifetime", lifetime)
	}
	return lifetime
}

// staleness returns how far past its freshness lifetime e currently is; a
// non-positive result means e is still fresh.
func staleness(e *CacheEntry, cc cacheControl, cfg CacheConfig, shared bool, now time.Time, log *slog.Logger) time.Duration {
	lifetime := freshnessLifetime(e, cc, cfg, shared, log)
	age := currentAge(e, now, log)
	return age - lifetime
}

// isFresh reports whether e's current age is within its freshness lifetime.
func isFresh(e *CacheEntry, cc cacheControl, cfg CacheConfig, shared bool, now time.Time, log *slog.Logger) bool {
	return staleness(e, cc, cfg, shared, now, log) <= 0
}

// mustRevalidateOnStale reports whether a stale e must not be served even
// with a request's max-stale override: either the stored response carries
// must-revalidate (or proxy-revalidate for a shared cache), or this cache
// and request are shared/public with no stale-serving directive at all.
func mustRevalidateOnStale(storedCC cacheControl, shared bool) bool {
	if storedCC.has(ccMustRevalidate) {
		return true
	}
	if shared && storedCC.has(ccProxyRevalidate) {
		return true
	}
	return false
}

// staleWhileRevalidateWindow returns the stale-while-revalidate extension
// granted by the stored response (spec.md Section 4.1), or 0 if absent.
func staleWhileRevalidateWindow(storedCC cacheControl) time.Duration {
	d, _ := storedCC.seconds(ccStaleWhileRevalidate)
	return d
}

// staleIfErrorWindow returns the stale-if-error extension granted by either
// the stored response or the requesting client, whichever is larger.
func staleIfErrorWindow(storedCC, requestCC cacheControl) time.Duration {
	a, _ := storedCC.seconds(ccStaleIfError)
	b, _ := requestCC.seconds(ccStaleIfError)
	if b > a {
		return b
	}
	return a
}

// mayServeStaleWhileRevalidating reports whether e, currently stale by
// `over`, still falls within its stale-while-revalidate grace window.
func mayServeStaleWhileRevalidating(storedCC cacheControl, over time.Duration) bool {
	if over <= 0 {
		return false
	}
	window := staleWhileRevalidateWindow(storedCC)
	return window > 0 && over <= window
}

// mayServeStaleIfError reports whether e, currently stale by `over`, still
// falls within its stale-if-error grace window.
func mayServeStaleIfError(storedCC, requestCC cacheControl, over time.Duration) bool {
	if over <= 0 {
		return false
	}
	window := staleIfErrorWindow(storedCC, requestCC)
	return window > 0 && over <= window
}
