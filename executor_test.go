package httpcache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a settable clock for deterministic age/staleness math.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedBackend serves responses from a sequence of handlers, one per
// call; calling it more times than there are handlers fails the test.
type scriptedBackend struct {
	t        *testing.T
	handlers []func(req *http.Request) *http.Response
	calls    int32
}

func (b *scriptedBackend) Fetch(req *http.Request) (*http.Response, error) {
	n := int(atomic.AddInt32(&b.calls, 1)) - 1
	if n >= len(b.handlers) {
		b.t.Fatalf("backend called more times than scripted (%d calls, %d handlers)", n+1, len(b.handlers))
	}
	return b.handlers[n](req), nil
}

func (b *scriptedBackend) callCount() int { return int(atomic.LoadInt32(&b.calls)) }

func newTestExecutor(t *testing.T, backend Backend, now *fakeClock) *Executor {
	e := NewExecutor(backend, newMemStorage(), withClock(now))
	t.Cleanup(e.Close)
	return e
}

func newRequest(t *testing.T, method, rawURL string) *http.Request {
	req, err := http.NewRequest(method, rawURL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func textResponse(status int, header http.Header, body string) *http.Response {
	h := header.Clone()
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

func readAllAndClose(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("close body: %v", err)
	}
	return string(data)
}

// Scenario 1: cold GET is stored; a hot GET one second later is served from
// cache without a second origin call, carrying Age: 1 and CACHE_HIT.
func TestExecutorColdThenHotGet(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)
	body := string(bytes.Repeat([]byte("a"), 128))

	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=3600")
			return textResponse(http.StatusOK, h, body)
		},
	}}

	e := newTestExecutor(t, backend, now)
	callCtx := &CallContext{Host: "foo.example.com"}

	req1 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp1, err := e.Do(t.Context(), callCtx, req1)
	if err != nil {
		t.Fatalf("req1: %v", err)
	}
	body1 := readAllAndClose(t, resp1)
	if callCtx.Status == nil || *callCtx.Status != StatusMiss {
		t.Errorf("req1 status = %v, want StatusMiss", callCtx.Status)
	}

	now.advance(1 * time.Second)
	callCtx2 := &CallContext{Host: "foo.example.com"}
	req2 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp2, err := e.Do(t.Context(), callCtx2, req2)
	if err != nil {
		t.Fatalf("req2: %v", err)
	}
	body2 := readAllAndClose(t, resp2)

	if backend.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", backend.callCount())
	}
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("req2 status code = %d, want 200", resp2.StatusCode)
	}
	if body2 != body1 {
		t.Error("req2 body does not match req1 body")
	}
	if got := resp2.Header.Get("Age"); got != "1" {
		t.Errorf("req2 Age = %q, want \"1\"", got)
	}
	if callCtx2.Status == nil || *callCtx2.Status != StatusHit {
		t.Errorf("req2 status = %v, want StatusHit", callCtx2.Status)
	}
}

// Scenario 2: a stale entry is revalidated with a conditional request and
// confirmed via 304; the stale body is reused and the status is VALIDATED.
func TestExecutorRevalidationWith304(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)
	body := "stored body"

	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=5")
			h.Set("ETag", `"v1"`)
			return textResponse(http.StatusOK, h, body)
		},
		func(req *http.Request) *http.Response {
			if got := req.Header.Get("If-None-Match"); got != `"v1"` {
				t.Errorf("revalidation request If-None-Match = %q, want %q", got, `"v1"`)
			}
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(now.Now()))
			h.Set("ETag", `"v1"`)
			return textResponse(http.StatusNotModified, h, "")
		},
	}}

	e := newTestExecutor(t, backend, now)
	host := "foo.example.com"

	req1 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp1, err := e.Do(t.Context(), &CallContext{Host: host}, req1)
	if err != nil {
		t.Fatalf("req1: %v", err)
	}
	readAllAndClose(t, resp1)

	now.advance(10 * time.Second)
	callCtx := &CallContext{Host: host}
	req2 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp2, err := e.Do(t.Context(), callCtx, req2)
	if err != nil {
		t.Fatalf("req2: %v", err)
	}
	body2 := readAllAndClose(t, resp2)

	if backend.callCount() != 2 {
		t.Fatalf("backend called %d times, want 2", backend.callCount())
	}
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("req2 status code = %d, want 200", resp2.StatusCode)
	}
	if body2 != body {
		t.Errorf("req2 body = %q, want %q", body2, body)
	}
	if callCtx.Status == nil || *callCtx.Status != StatusValidated {
		t.Errorf("req2 status = %v, want StatusValidated", callCtx.Status)
	}
	if age := resp2.Header.Get("Age"); age != "0" {
		t.Errorf("req2 Age = %q, want \"0\"", age)
	}
}

// Scenario 3: a 304 that carries the stored entry's ETag but a Date older
// than the entry's own Date is rejected as a stale/misdirected
// revalidation; the executor falls back to a second, unconditional fetch
// and only that response updates the entry.
func TestExecutorStale304Rejection(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)

	freshBody := "the real fresh body"
	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=5")
			h.Set("ETag", `"v1"`)
			return textResponse(http.StatusOK, h, "original body")
		},
		func(req *http.Request) *http.Response {
			// A misdirected/stale 304: the ETag matches the stored "v1",
			// but the Date predates the entry's own Date. This is the
			// re-aging case the Date check exists to catch even when the
			// ETag alone would otherwise confirm.
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0.Add(-5*time.Second)))
			h.Set("ETag", `"v1"`)
			return textResponse(http.StatusNotModified, h, "")
		},
		func(req *http.Request) *http.Response {
			if req.Header.Get("If-None-Match") != "" {
				t.Errorf("second fallback fetch should be unconditional, got If-None-Match=%q", req.Header.Get("If-None-Match"))
			}
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(now.Now()))
			h.Set("Cache-Control", "max-age=5")
			h.Set("ETag", `"v2"`)
			return textResponse(http.StatusOK, h, freshBody)
		},
	}}

	e := newTestExecutor(t, backend, now)
	host := "foo.example.com"

	req1 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp1, err := e.Do(t.Context(), &CallContext{Host: host}, req1)
	if err != nil {
		t.Fatalf("req1: %v", err)
	}
	readAllAndClose(t, resp1)

	now.advance(60 * time.Second)
	req2 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp2, err := e.Do(t.Context(), &CallContext{Host: host}, req2)
	if err != nil {
		t.Fatalf("req2: %v", err)
	}
	body2 := readAllAndClose(t, resp2)

	if backend.callCount() != 3 {
		t.Fatalf("backend called %d times, want 3 (initial, rejected 304, unconditional fallback)", backend.callCount())
	}
	if body2 != freshBody {
		t.Errorf("req2 body = %q, want fallback body %q", body2, freshBody)
	}
	if got := resp2.Header.Get("ETag"); got != `"v2"` {
		t.Errorf("req2 ETag = %q, want the fallback response's %q", got, `"v2"`)
	}
}

// Scenario 4: a Vary-ing origin produces a variant parent with one leaf per
// distinct variant-key; a request for a variant-key not yet stored offers
// every known sibling's ETag in one If-None-Match, and the variant the
// origin answers with is added to the parent.
func TestExecutorVarySelection(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)

	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		// Req1: Accept-Encoding: gzip -> 200, Vary: Accept-Encoding, ETag "g"
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=3600")
			h.Set("Vary", "Accept-Encoding")
			h.Set("ETag", `"g"`)
			return textResponse(http.StatusOK, h, "gzip variant")
		},
		// Req2: Accept-Encoding: deflate -> no stored variant for this key
		// yet, so the variant parent's known sibling ("g") is offered as a
		// multi-validator If-None-Match instead of an unconditional fetch.
		// The origin doesn't recognize "g" for this variant, so it returns
		// a fresh 200 carrying a new variant.
		func(req *http.Request) *http.Response {
			if got := req.Header.Get("If-None-Match"); got != `"g"` {
				t.Errorf("req2 If-None-Match = %q, want %q", got, `"g"`)
			}
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=3600")
			h.Set("Vary", "Accept-Encoding")
			h.Set("ETag", `"d"`)
			return textResponse(http.StatusOK, h, "deflate variant")
		},
		// Req3: Accept-Encoding: "gzip, deflate" is a third, distinct
		// variant-key the parent has never seen. Both known siblings' ETags
		// are offered, comma-joined in insertion order, and the origin
		// again returns a fresh variant.
		func(req *http.Request) *http.Response {
			if got := req.Header.Get("If-None-Match"); got != `"g", "d"` {
				t.Errorf("req3 If-None-Match = %q, want %q", got, `"g", "d"`)
			}
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=3600")
			h.Set("Vary", "Accept-Encoding")
			h.Set("ETag", `"gd"`)
			return textResponse(http.StatusOK, h, "gzip-deflate variant")
		},
	}}

	e := newTestExecutor(t, backend, now)
	host := "foo.example.com"

	req1 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	req1.Header.Set("Accept-Encoding", "gzip")
	resp1, err := e.Do(t.Context(), &CallContext{Host: host}, req1)
	if err != nil {
		t.Fatalf("req1: %v", err)
	}
	readAllAndClose(t, resp1)

	req2 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	req2.Header.Set("Accept-Encoding", "deflate")
	resp2, err := e.Do(t.Context(), &CallContext{Host: host}, req2)
	if err != nil {
		t.Fatalf("req2: %v", err)
	}
	readAllAndClose(t, resp2)

	req3 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	req3.Header.Set("Accept-Encoding", "gzip, deflate")
	resp3, err := e.Do(t.Context(), &CallContext{Host: host}, req3)
	if err != nil {
		t.Fatalf("req3: %v", err)
	}
	body3 := readAllAndClose(t, resp3)

	if resp3.StatusCode != http.StatusOK {
		t.Errorf("req3 status code = %d, want 200", resp3.StatusCode)
	}
	if body3 != "gzip-deflate variant" {
		t.Errorf("req3 body = %q, want the origin-selected variant body", body3)
	}

	parentKey := primaryKey(&CallContext{Host: host}, req1)
	stored, err := e.storage.Load(t.Context(), parentKey)
	if err != nil {
		t.Fatalf("load parent entry: %v", err)
	}
	parent, _, err := decodeEntry(stored.Data, nil)
	if err != nil {
		t.Fatalf("decode parent entry: %v", err)
	}
	if !parent.IsVariantParent() {
		t.Fatal("entry at the primary key is not a variant parent")
	}
	if len(parent.Variants) != 3 {
		t.Errorf("variant parent has %d variants, want 3", len(parent.Variants))
	}
}

// Scenario 5: a PUT with a same-origin Content-Location invalidates the
// cached GET entry for that URI; the next GET is a cache miss.
func TestExecutorInvalidationOnPut(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)

	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0))
			h.Set("Cache-Control", "max-age=3600")
			return textResponse(http.StatusOK, h, "before put")
		},
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0.Add(1*time.Second)))
			h.Set("Content-Location", "http://foo.example.com/r")
			return textResponse(http.StatusOK, h, "put accepted")
		},
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0.Add(2*time.Second)))
			h.Set("Cache-Control", "max-age=3600")
			return textResponse(http.StatusOK, h, "after put")
		},
	}}

	e := newTestExecutor(t, backend, now)
	host := "foo.example.com"

	getReq := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp1, err := e.Do(t.Context(), &CallContext{Host: host}, getReq)
	if err != nil {
		t.Fatalf("get1: %v", err)
	}
	readAllAndClose(t, resp1)

	putReq := newRequest(t, http.MethodPut, "http://foo.example.com/r")
	respPut, err := e.Do(t.Context(), &CallContext{Host: host}, putReq)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	readAllAndClose(t, respPut)

	getReq2 := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	callCtx := &CallContext{Host: host}
	resp2, err := e.Do(t.Context(), callCtx, getReq2)
	if err != nil {
		t.Fatalf("get2: %v", err)
	}
	body2 := readAllAndClose(t, resp2)

	if backend.callCount() != 3 {
		t.Fatalf("backend called %d times, want 3 (initial GET, PUT, re-fetched GET)", backend.callCount())
	}
	if body2 != "after put" {
		t.Errorf("get2 body = %q, want the PUT-invalidated, freshly fetched body", body2)
	}
	if callCtx.Status == nil || *callCtx.Status != StatusMiss {
		t.Errorf("get2 status = %v, want StatusMiss (invalidated entry forces a fresh fetch)", callCtx.Status)
	}
}

// Scenario 6: only-if-cached against an empty cache never reaches the
// backend and synthesizes a 504.
func TestExecutorOnlyIfCachedMiss(t *testing.T) {
	now := newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	backend := &scriptedBackend{t: t}

	e := newTestExecutor(t, backend, now)
	callCtx := &CallContext{Host: "foo.example.com"}

	req := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	req.Header.Set("Cache-Control", "only-if-cached")

	resp, err := e.Do(t.Context(), callCtx, req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	readAllAndClose(t, resp)

	if backend.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", backend.callCount())
	}
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status code = %d, want 504", resp.StatusCode)
	}
	if callCtx.Status == nil || *callCtx.Status != StatusModuleResponse {
		t.Errorf("status = %v, want StatusModuleResponse", callCtx.Status)
	}
}

// TestExecutorAgeNeverNegative exercises the Age invariant from spec.md
// Section 8: even a response time that precedes its own Date (clock skew)
// must never produce a negative Age.
func TestExecutorAgeNeverNegative(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	now := newFakeClock(t0)

	backend := &scriptedBackend{t: t, handlers: []func(*http.Request) *http.Response{
		func(req *http.Request) *http.Response {
			h := http.Header{}
			h.Set("Date", FormatHTTPDate(t0.Add(1*time.Hour))) // origin clock ahead
			h.Set("Cache-Control", "max-age=3600")
			return textResponse(http.StatusOK, h, "body")
		},
	}}

	e := newTestExecutor(t, backend, now)
	req := newRequest(t, http.MethodGet, "http://foo.example.com/r")
	resp, err := e.Do(t.Context(), &CallContext{Host: "foo.example.com"}, req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	readAllAndClose(t, resp)

	if age := resp.Header.Get("Age"); age != "0" {
		t.Errorf("Age = %q, want \"0\" (clamped, never negative)", age)
	}
}

// TestExecutorOnlyIfCachedMissIntegratesWithTransport exercises the
// RoundTripper façade end to end, confirming Transport.RoundTrip surfaces
// the same synthesized 504 as a direct Executor.Do call.
func TestExecutorOnlyIfCachedMissIntegratesWithTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("origin must not be contacted for an only-if-cached miss")
	}))
	defer server.Close()

	transport := NewTransport(http.DefaultTransport, newMemStorage())
	client := transport.Client()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Cache-Control", "only-if-cached")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status code = %d, want 504", resp.StatusCode)
	}
}
