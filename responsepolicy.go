package httpcache

import "net/http"

// cacheableStatus reports whether status is one whose responses may be
// stored at all, independent of headers (RFC 9111 Section 3, as extended
// by spec.md's Allow303Caching knob).
func cacheableStatus(status int, allow303 bool) bool {
	switch status {
	case http.StatusOK,
		http.StatusNonAuthoritativeInfo,
		http.StatusNoContent,
		http.StatusPartialContent,
		http.StatusMultipleChoices,
		http.StatusMovedPermanently,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusGone,
		http.StatusRequestURITooLong,
		http.StatusNotImplemented,
		http.StatusPermanentRedirect:
		return true
	case http.StatusFound,
		http.StatusTemporaryRedirect:
		return true
	case http.StatusSeeOther:
		return allow303
	default:
		return false
	}
}

// mayStore implements ResponsePolicy's cacheability decision (spec.md
// Section 4.3): whether a response, given the request that produced it,
// stored headers, and configuration, may be written to Storage at all.
// This subsumes the former canStore logic that lived alongside
// Cache-Control parsing.
func mayStore(req *http.Request, status int, respHeader http.Header, respCC cacheControl, reqCC cacheControl, cfg CacheConfig, shared bool) bool {
	if requestForbidsStore(reqCC) {
		return false
	}
	if respCC.has(ccNoStore) {
		return false
	}
	if hasWildcardVary(respHeader) {
		return false
	}
	if !cacheableStatus(status, cfg.Allow303Caching) {
		return false
	}
	if shared {
		if respCC.has(ccPrivate) {
			return false
		}
		if req.Header.Get("Authorization") != "" {
			if !respCC.has(ccPublic) && !respCC.has(ccMustRevalidate) && !respCC.has(ccSMaxAge) {
				return false
			}
		}
	}
	return true
}

// exceedsSizeLimit reports whether a body of the given length must bypass
// storage under the configured MaxObjectSize (0 meaning unlimited).
func exceedsSizeLimit(length int64, cfg CacheConfig) bool {
	return cfg.MaxObjectSize > 0 && length > cfg.MaxObjectSize
}
