package httpcache

import (
	"net/http"
	"testing"
	"time"
)

func TestFreshnessLifetimePrefersSMaxAgeWhenShared(t *testing.T) {
	cc := parseCacheControl([]string{"max-age=10, s-maxage=100"}, nil)
	e := &CacheEntry{Header: http.Header{}}

	shared := freshnessLifetime(e, cc, DefaultConfig(), true, nil)
	if shared != 100*time.Second {
		t.Errorf("shared freshness lifetime = %v, want 100s (s-maxage wins)", shared)
	}

	private := freshnessLifetime(e, cc, DefaultConfig(), false, nil)
	if private != 10*time.Second {
		t.Errorf("private freshness lifetime = %v, want 10s (max-age, s-maxage ignored)", private)
	}
}

func TestFreshnessLifetimeFallsBackToExpires(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Date", FormatHTTPDate(t0))
	h.Set("Expires", FormatHTTPDate(t0.Add(2*time.Hour)))
	e := &CacheEntry{Header: h}

	got := freshnessLifetime(e, cacheControl{}, DefaultConfig(), true, nil)
	if got != 2*time.Hour {
		t.Errorf("freshness lifetime from Expires = %v, want 2h", got)
	}
}

func TestFreshnessLifetimeHeuristic(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Date", FormatHTTPDate(t0))
	h.Set("Last-Modified", FormatHTTPDate(t0.Add(-100*time.Hour)))
	e := &CacheEntry{Header: h, ResponseTime: t0}

	cfg := DefaultConfig()
	got := freshnessLifetime(e, cacheControl{}, cfg, true, nil)
	want := time.Duration(float64(100*time.Hour) * cfg.HeuristicCoefficient)
	if got != want {
		t.Errorf("heuristic freshness lifetime = %v, want %v", got, want)
	}
}

func TestFreshnessLifetimeHeuristicDisabled(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Date", FormatHTTPDate(t0))
	h.Set("Last-Modified", FormatHTTPDate(t0.Add(-100*time.Hour)))
	e := &CacheEntry{Header: h, ResponseTime: t0}

	cfg := DefaultConfig()
	cfg.HeuristicCachingEnabled = false
	got := freshnessLifetime(e, cacheControl{}, cfg, true, nil)
	if got != 0 {
		t.Errorf("freshness lifetime with heuristic disabled = %v, want 0", got)
	}
}

func TestStalenessAndIsFresh(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := http.Header{}
	h.Set("Date", FormatHTTPDate(t0))
	h.Set("Cache-Control", "max-age=10")
	cc := parseCacheControl(h.Values("Cache-Control"), nil)
	e := &CacheEntry{Header: h, RequestTime: t0, ResponseTime: t0}

	if !isFresh(e, cc, DefaultConfig(), true, t0.Add(5*time.Second), nil) {
		t.Error("entry at age 5s with max-age=10 should be fresh")
	}
	if isFresh(e, cc, DefaultConfig(), true, t0.Add(15*time.Second), nil) {
		t.Error("entry at age 15s with max-age=10 should be stale")
	}
	if got := staleness(e, cc, DefaultConfig(), true, t0.Add(15*time.Second), nil); got != 5*time.Second {
		t.Errorf("staleness at age 15s, max-age=10 = %v, want 5s", got)
	}
}

func TestMustRevalidateOnStale(t *testing.T) {
	cc := parseCacheControl([]string{"must-revalidate"}, nil)
	if !mustRevalidateOnStale(cc, false) {
		t.Error("must-revalidate should force revalidation regardless of shared")
	}

	ccProxy := parseCacheControl([]string{"proxy-revalidate"}, nil)
	if mustRevalidateOnStale(ccProxy, false) {
		t.Error("proxy-revalidate should not apply to a private cache")
	}
	if !mustRevalidateOnStale(ccProxy, true) {
		t.Error("proxy-revalidate should apply to a shared cache")
	}
}

func TestMayServeStaleWhileRevalidatingRespectsWindow(t *testing.T) {
	cc := parseCacheControl([]string{"stale-while-revalidate=30"}, nil)
	if !mayServeStaleWhileRevalidating(cc, 10*time.Second) {
		t.Error("10s over with a 30s window should be allowed")
	}
	if mayServeStaleWhileRevalidating(cc, 60*time.Second) {
		t.Error("60s over with a 30s window should not be allowed")
	}
	if mayServeStaleWhileRevalidating(cc, 0) {
		t.Error("a fresh (non-stale) entry should never need stale-while-revalidate")
	}
}

func TestStaleIfErrorWindowPrefersLarger(t *testing.T) {
	stored := parseCacheControl([]string{"stale-if-error=10"}, nil)
	request := parseCacheControl([]string{"stale-if-error=60"}, nil)
	if got := staleIfErrorWindow(stored, request); got != 60*time.Second {
		t.Errorf("staleIfErrorWindow = %v, want the larger of the two (60s)", got)
	}
}
