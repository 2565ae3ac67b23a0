package httpcache

import (
	"net/http"
	"testing"
)

func TestCacheableMethod(t *testing.T) {
	if !cacheableMethod(http.MethodGet) || !cacheableMethod(http.MethodHead) {
		t.Error("GET and HEAD should be cacheable methods")
	}
	if cacheableMethod(http.MethodPost) {
		t.Error("POST should not be a cacheable method")
	}
}

func TestUnsafeMethod(t *testing.T) {
	safe := []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace}
	for _, m := range safe {
		if unsafeMethod(m) {
			t.Errorf("%s should not be an unsafe method", m)
		}
	}
	unsafe := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, m := range unsafe {
		if !unsafeMethod(m) {
			t.Errorf("%s should be an unsafe method", m)
		}
	}
}

func TestRequestForbidsLookup(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://foo.example.com/r", nil)
	if !requestForbidsLookup(req, cacheControl{}) {
		t.Error("a non-cacheable method should forbid lookup")
	}

	getReq, _ := http.NewRequest(http.MethodGet, "http://foo.example.com/r", nil)
	noStoreCC := parseCacheControl([]string{"no-store"}, nil)
	if !requestForbidsLookup(getReq, noStoreCC) {
		t.Error("request no-store should forbid lookup")
	}

	noCacheCC := parseCacheControl([]string{"no-cache"}, nil)
	if !requestForbidsLookup(getReq, noCacheCC) {
		t.Error("request no-cache should forbid lookup")
	}

	if requestForbidsLookup(getReq, cacheControl{}) {
		t.Error("a plain GET with no restrictive directives should not forbid lookup")
	}
}

func TestRequestForbidsLookupPragmaNoCache(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://foo.example.com/r", nil)
	req.Header.Set("Pragma", "no-cache")
	if !requestForbidsLookup(req, cacheControl{}) {
		t.Error("legacy Pragma: no-cache should forbid lookup absent a Cache-Control max-age override")
	}
}

func TestRequestForbidsLookupPragmaIgnoredWhenCacheControlMaxAgePresent(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://foo.example.com/r", nil)
	req.Header.Set("Pragma", "no-cache")
	cc := parseCacheControl([]string{"max-age=30"}, nil)
	if requestForbidsLookup(req, cc) {
		t.Error("Cache-Control max-age should take precedence over legacy Pragma")
	}
}

func TestRequestOnlyIfCached(t *testing.T) {
	cc := parseCacheControl([]string{"only-if-cached"}, nil)
	if !requestOnlyIfCached(cc) {
		t.Error("only-if-cached directive should be detected")
	}
	if requestOnlyIfCached(cacheControl{}) {
		t.Error("absent only-if-cached should not be detected")
	}
}

func TestRequestForbidsStoreOnlyNoStore(t *testing.T) {
	noStoreCC := parseCacheControl([]string{"no-store"}, nil)
	if !requestForbidsStore(noStoreCC) {
		t.Error("request no-store should forbid storing the response")
	}
	noCacheCC := parseCacheControl([]string{"no-cache"}, nil)
	if requestForbidsStore(noCacheCC) {
		t.Error("request no-cache should not forbid storing the response, only serving from cache")
	}
}

func TestContainsToken(t *testing.T) {
	if !containsToken("no-cache, no-store", "no-cache") {
		t.Error("containsToken should find a comma-separated token")
	}
	if !containsToken(" NO-CACHE ", "no-cache") {
		t.Error("containsToken should be case-insensitive and trim whitespace")
	}
	if containsToken("no-store", "no-cache") {
		t.Error("containsToken should not find an absent token")
	}
}
