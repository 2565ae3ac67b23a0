// Package httpcache implements an RFC 9111 (which obsoletes RFC 7234)
// compliant HTTP caching layer that sits between a client and an origin
// Backend. It does not move bytes itself: transport, storage, and body
// materialization are abstracted behind the Backend, Storage, and
// ResourceFactory interfaces so the decision engine in this package can be
// exercised against any of them.
//
// The entry point is Executor.Do, which runs the request
// through compliance normalization, invalidation, admissibility,
// suitability, and (if needed) revalidation or origin fetch, before
// returning an annotated response. Transport adapts this engine to the
// standard library's http.RoundTripper for drop-in use with http.Client.
package httpcache
