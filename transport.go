package httpcache

import "net/http"

// XFromCache is set to "1" on responses that Transport served from a fresh
// or revalidated cache entry, for callers that can't thread a CallContext
// through an *http.Client call chain.
const XFromCache = "X-From-Cache"

// Transport is a thin http.RoundTripper façade over an Executor, for
// callers that just want to drop a caching layer into an *http.Client
// without touching the CallContext-based Do method directly.
type Transport struct {
	Executor *Executor
}

// NewTransport builds a Transport wrapping an http.RoundTripper backend and
// the given Storage.
func NewTransport(rt http.RoundTripper, storage Storage, opts ...Option) *Transport {
	return &Transport{Executor: NewExecutor(RoundTripperBackend{Transport: rt}, storage, opts...)}
}

// RoundTrip implements http.RoundTripper. It tags the response with
// XFromCache when it was served from the cache (fresh or revalidated)
// rather than fetched fresh from the backend.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var status CacheStatus
	resp, err := t.Executor.Do(req.Context(), &CallContext{Status: &status}, req)
	if err != nil {
		return nil, err
	}
	if status == StatusHit || status == StatusValidated {
		resp.Header.Set(XFromCache, "1")
	}
	return resp, nil
}

// Client returns an *http.Client using this Transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}
