package httpcache

import "testing"

func TestParseCacheControlBasic(t *testing.T) {
	cc := parseCacheControl([]string{`max-age=3600, no-cache, private="X-Foo"`}, nil)

	if !cc.has(ccNoCache) {
		t.Error("expected no-cache to be present")
	}
	if d, ok := cc.seconds(ccMaxAge); !ok || d.Seconds() != 3600 {
		t.Errorf("max-age = %v, ok=%v, want 3600s", d, ok)
	}
	if v := cc[ccPrivate]; v != "X-Foo" {
		t.Errorf("private value = %q, want X-Foo", v)
	}
}

func TestParseCacheControlKeepsFirstDuplicate(t *testing.T) {
	cc := parseCacheControl([]string{"max-age=10", "max-age=20"}, nil)
	if d, _ := cc.seconds(ccMaxAge); d.Seconds() != 10 {
		t.Errorf("max-age = %v, want first occurrence 10s", d)
	}
}

func TestParseCacheControlDropsInvalidSeconds(t *testing.T) {
	cc := parseCacheControl([]string{"max-age=not-a-number"}, nil)
	if cc.has(ccMaxAge) {
		t.Error("invalid max-age should be dropped entirely")
	}

	ccNeg := parseCacheControl([]string{"max-age=-5"}, nil)
	if ccNeg.has(ccMaxAge) {
		t.Error("negative max-age should be dropped")
	}
}

func TestCacheControlBareMaxStale(t *testing.T) {
	cc := parseCacheControl([]string{"max-stale"}, nil)
	d, ok := cc.seconds(ccMaxStale)
	if !ok {
		t.Fatal("bare max-stale should be present")
	}
	if d != 0 {
		t.Errorf("bare max-stale duration = %v, want 0 (meaning unbounded)", d)
	}
}

func TestCacheControlMultipleHeaderLines(t *testing.T) {
	cc := parseCacheControl([]string{"no-store", "must-revalidate"}, nil)
	if !cc.has(ccNoStore) || !cc.has(ccMustRevalidate) {
		t.Error("directives from separate header lines should both be recorded")
	}
}
