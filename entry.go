package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// EntryKind tags a CacheEntry as either a leaf (holds a body) or a variant
// parent (holds a map of variant-key to sibling storage-key). Exactly one
// of these holds for any stored entry.
type EntryKind int

const (
	// EntryLeaf is a stored origin response with a body resource.
	EntryLeaf EntryKind = iota
	// EntryVariantParent indexes sibling leaf entries by variant-key,
	// derived from the fields named in the stored response's Vary header.
	EntryVariantParent
)

func (k EntryKind) String() string {
	if k == EntryVariantParent {
		return "variant-parent"
	}
	return "leaf"
}

// hopByHopHeaders are never stored or forwarded across this cache's hop,
// per RFC 9111 Section 7.6.1.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// stripHopByHop removes hop-by-hop headers from h, including any header
// named by a Connection header field-value, and returns the sanitized
// header set. h is modified in place and returned for convenience.
func stripHopByHop(h http.Header) http.Header {
	for _, connHeader := range h.Values("Connection") {
		for _, name := range strings.Split(connHeader, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				h.Del(name)
			}
		}
	}
	for name := range hopByHopHeaders {
		h.Del(name)
	}
	return h
}

// ResourceHandle is an opaque, reference-counted handle to a readable byte
// sequence backing a CacheEntry's body. Storage holds one reference for as
// long as the entry is stored; each response synthesized from the entry
// holds another. The underlying resource is released only once every
// acquired reference has been released, so a reader in progress can finish
// even after the entry has been evicted from storage.
type ResourceHandle interface {
	// Open returns a fresh reader positioned at the start of the body.
	// Callers must close the returned reader.
	Open() (ReadCloser, error)
	// Len reports the body length in bytes.
	Len() int64
	// Acquire increments the reference count. Every caller that retains
	// a ResourceHandle beyond the scope it received it in must Acquire
	// first and Release when done.
	Acquire()
	// Release decrements the reference count, freeing the underlying
	// resource when it reaches zero.
	Release()
}

// ReadCloser is the minimal surface ResourceHandle.Open returns; it is
// satisfied by io.ReadCloser and declared separately so this package does
// not need to import io just for the alias.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// refCount is an embeddable atomic reference counter for ResourceHandle
// implementations.
type refCount struct {
	n     int64
	onFree func()
}

func newRefCount(onFree func()) *refCount {
	return &refCount{n: 1, onFree: onFree}
}

func (r *refCount) Acquire() {
	atomic.AddInt64(&r.n, 1)
}

func (r *refCount) Release() {
	if atomic.AddInt64(&r.n, -1) == 0 && r.onFree != nil {
		r.onFree()
	}
}

// CacheEntry represents one stored origin response (leaf) or one variant
// index (variant parent). See SPEC_FULL.md Section 3 for the invariants.
type CacheEntry struct {
	Kind EntryKind

	// RequestTime and ResponseTime are the wall-clock instants the
	// request was sent and the response headers were received,
	// RequestTime <= ResponseTime.
	RequestTime  time.Time
	ResponseTime time.Time

	Status int
	Reason string

	// Header holds end-to-end headers only; hop-by-hop headers are
	// stripped before an entry is constructed. Multi-valued headers
	// preserve insertion order via http.Header's native semantics.
	Header http.Header

	// Body is nil for a variant parent that holds no representation of
	// its own; for a leaf it is always non-nil.
	Body ResourceHandle

	// Variants maps a variant-key (derived from the Vary-named request
	// headers) to the storage key of the sibling leaf entry. Non-empty
	// only when Kind == EntryVariantParent.
	Variants map[string]string

	// VariantOrder lists the keys of Variants in the order each edge was
	// first inserted, since map iteration order is not stable. Used to
	// build a deterministic, comma-joined If-None-Match across every
	// known variant.
	VariantOrder []string
}

// IsVariantParent reports whether e indexes variants rather than holding a
// body of its own.
func (e *CacheEntry) IsVariantParent() bool {
	return e.Kind == EntryVariantParent
}

// ETag returns the entry's ETag header value, or "" if absent.
func (e *CacheEntry) ETag() string {
	return e.Header.Get("ETag")
}

// LastModified returns the entry's Last-Modified header value, or "" if
// absent.
func (e *CacheEntry) LastModified() string {
	return e.Header.Get("Last-Modified")
}

// Revalidatable reports whether the entry carries a validator a conditional
// request can be built from (spec.md Section 4.1).
func (e *CacheEntry) Revalidatable() bool {
	return e.ETag() != "" || e.LastModified() != ""
}

// newLeafEntry constructs a leaf CacheEntry, stripping hop-by-hop headers
// and validating the Content-Length/body-length invariant when a
// Content-Length header is present.
func newLeafEntry(requestTime, responseTime time.Time, status int, reason string, header http.Header, body ResourceHandle) *CacheEntry {
	header = stripHopByHop(header.Clone())
	if cl := header.Get("Content-Length"); cl != "" && body != nil {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n != body.Len() {
			header.Set("Content-Length", strconv.FormatInt(body.Len(), 10))
		}
	}
	return &CacheEntry{
		Kind:         EntryLeaf,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
		Status:       status,
		Reason:       reason,
		Header:       header,
		Body:         body,
	}
}

// newVariantParent constructs a variant-parent CacheEntry from the stored
// response that carried the Vary header, plus the first variant edge.
func newVariantParent(parent *CacheEntry, variantKey, variantStorageKey string) *CacheEntry {
	clone := *parent
	clone.Kind = EntryVariantParent
	clone.Body = nil
	clone.Variants = map[string]string{variantKey: variantStorageKey}
	return &clone
}
