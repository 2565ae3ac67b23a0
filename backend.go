package httpcache

import "net/http"

// Backend is the origin the cache sits in front of: anything that can
// round-trip an HTTP request to a response. An *http.Client's Transport
// (or any http.RoundTripper) satisfies this directly via RoundTripperBackend.
type Backend interface {
	Fetch(req *http.Request) (*http.Response, error)
}

// RoundTripperBackend adapts an http.RoundTripper to Backend, so the cache
// can sit in front of any existing Transport (spec.md Section 2's
// ResourceFactory/Backend boundary).
type RoundTripperBackend struct {
	Transport http.RoundTripper
}

func (b RoundTripperBackend) Fetch(req *http.Request) (*http.Response, error) {
	rt := b.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(req *http.Request) (*http.Response, error)

func (f BackendFunc) Fetch(req *http.Request) (*http.Response, error) { return f(req) }
