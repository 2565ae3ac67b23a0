package httpcache

import (
	"net/http"
	"strings"
)

// cacheableMethod reports whether method is one this cache ever stores or
// looks up entries for. Per RFC 9111 Section 3, only GET has cache
// semantics fully defined here. HEAD responses are looked up and stored
// under their own method-prefixed storage key (see StorageKey), so a HEAD
// request is not answered from an entry stored for a GET.
func cacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// unsafeMethod reports whether method's semantics invalidate prior stored
// responses for its target URI on a non-error response (spec.md Section
// 4.9).
func unsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// requestForbidsLookup implements RequestPolicy's admissibility check
// (spec.md Section 4.2): a request that forbids lookup skips Storage
// entirely and always goes to the backend (subject to only-if-cached, which
// is handled separately since it forbids the opposite: going to the
// backend).
func requestForbidsLookup(req *http.Request, cc cacheControl) bool {
	if !cacheableMethod(req.Method) {
		return true
	}
	if cc.has(ccNoStore) {
		return true
	}
	if cc.has(ccNoCache) {
		return true
	}
	if pragma := req.Header.Get(headerPragma); !cc.has(ccMaxAge) && containsToken(pragma, pragmaNoCache) {
		return true
	}
	return false
}

// requestOnlyIfCached reports whether the request forbids contacting the
// backend at all, per the only-if-cached directive.
func requestOnlyIfCached(cc cacheControl) bool {
	return cc.has(ccOnlyIfCached)
}

// requestForbidsStore reports whether a request's own Cache-Control
// forbids storing the eventual response (no-store only; no-cache on a
// request only forbids serving from cache, not storing the fresh result).
func requestForbidsStore(cc cacheControl) bool {
	return cc.has(ccNoStore)
}

func containsToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
