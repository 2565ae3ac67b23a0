package httpcache

import (
	"net/http"
	"net/url"
	"strings"
)

// defaultPorts maps a scheme to the port number elided from a canonical
// authority.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// StorageKey derives the canonical storage key for req, per spec.md Section
// 3: scheme + authority (with default-port normalization) + absolute path
// and query. host, taken from the call context rather than parsed off the
// request line, lets a single connection to a virtual-host-shared origin
// produce distinct keys per logical host.
func StorageKey(method, scheme, host string, req *http.Request) string {
	authority := canonicalAuthority(scheme, host)
	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	key := scheme + "://" + authority + path
	if method != http.MethodGet {
		return method + " " + key
	}
	return key
}

func canonicalAuthority(scheme, host string) string {
	h := strings.ToLower(host)
	if i := strings.LastIndex(h, ":"); i >= 0 {
		if port := h[i+1:]; port == defaultPorts[scheme] {
			h = h[:i]
		}
	}
	return h
}

// requestHost resolves the authoritative host for key derivation: the call
// context's Host takes precedence over the request's own Host/URL.Host,
// since a single connection may serve several virtual hosts.
func requestHost(ctx *CallContext, req *http.Request) string {
	if ctx != nil && ctx.Host != "" {
		return ctx.Host
	}
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}

// requestScheme resolves the scheme used for key derivation.
func requestScheme(req *http.Request) string {
	if req.URL.Scheme != "" {
		return req.URL.Scheme
	}
	return "http"
}

// primaryKey is the storage key for req's primary (Vary-less) cache entry.
func primaryKey(ctx *CallContext, req *http.Request) string {
	return StorageKey(req.Method, requestScheme(req), requestHost(ctx, req), req)
}

// keyForURL derives the storage key a GET/HEAD request for u would use,
// given the call context's host override.
func keyForURL(ctx *CallContext, method string, u *url.URL) string {
	req := &http.Request{Method: method, URL: u}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := u.Host
	if ctx != nil && ctx.Host != "" {
		host = ctx.Host
	}
	return StorageKey(method, scheme, host, req)
}
