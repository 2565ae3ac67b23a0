package httpcache

import "testing"

func TestCacheStatusString(t *testing.T) {
	cases := map[CacheStatus]string{
		StatusMiss:           "MISS",
		StatusHit:            "HIT",
		StatusValidated:      "VALIDATED",
		StatusModuleResponse: "CACHE_MODULE_RESPONSE",
		StatusFailure:        "FAILURE",
		CacheStatus(99):      "MISS",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("CacheStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestCallContextSharedDefaultsToConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SharedCache = true

	if !(*CallContext)(nil).shared(cfg) {
		t.Error("a nil CallContext should fall back to the config default")
	}

	ctx := &CallContext{}
	if !ctx.shared(cfg) {
		t.Error("a CallContext with no Shared override should fall back to the config default")
	}

	private := false
	ctx2 := &CallContext{Shared: &private}
	if ctx2.shared(cfg) {
		t.Error("CallContext.Shared should override the config default")
	}
}

func TestCallContextSetStatus(t *testing.T) {
	var status CacheStatus
	ctx := &CallContext{Status: &status}
	ctx.setStatus(StatusHit)
	if status != StatusHit {
		t.Errorf("status = %v, want StatusHit", status)
	}

	// Must not panic when Status is nil or ctx itself is nil.
	(&CallContext{}).setStatus(StatusMiss)
	(*CallContext)(nil).setStatus(StatusMiss)
}
