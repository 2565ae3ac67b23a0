package httpcache

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// generatorOptions configures ResponseGenerator's annotations; it mirrors
// the ProtocolCompliance pseudonym and the flags that decide which
// diagnostic headers get added.
type generatorOptions struct {
	pseudonym      string
	proto          string
	disableWarning bool
}

// buildResponse implements ResponseGenerator (spec.md Section 4.6): turns a
// stored CacheEntry into the *http.Response served to the caller, adding
// Age, Via, and (for stale/validated serves) Warning headers. The returned
// response's Body must be closed by the caller; it acquires entry's
// underlying ResourceHandle and releases it on Close.
func buildResponse(entry *CacheEntry, req *http.Request, now time.Time, stale bool, opts generatorOptions, log *slog.Logger) (*http.Response, error) {
	if !stale {
		if cond := evaluateClientConditional(req, entry); cond.hasCondition && cond.satisfied {
			return build304Response(entry, req, now, cond.weak, opts, log), nil
		}
	}

	header := entry.Header.Clone()
	header.Set("Age", formatAge(currentAge(entry, now, log)))

	if stale && !opts.disableWarning {
		addStaleWarning(header)
	}
	opts.annotateVia(header)

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", entry.Status, entry.Reason),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Request:       req,
		ContentLength: -1,
	}

	if req.Method == http.MethodHead || entry.Body == nil {
		resp.Body = http.NoBody
		resp.ContentLength = 0
		if cl := header.Get("Content-Length"); cl != "" {
			fmt.Sscanf(cl, "%d", &resp.ContentLength)
		}
		return resp, nil
	}

	entry.Body.Acquire()
	rc, err := entry.Body.Open()
	if err != nil {
		entry.Body.Release()
		return nil, fmt.Errorf("httpcache: open stored body: %w", err)
	}
	resp.ContentLength = entry.Body.Len()
	resp.Body = &releasingBody{ReadCloser: rc, handle: entry.Body}
	return resp, nil
}

func (o generatorOptions) annotateVia(h http.Header) {
	(ProtocolCompliance{Pseudonym: o.pseudonym}).annotateVia(h, o.proto)
}

// entity304Headers lists the headers that describe a representation's body
// rather than its cache-relevant metadata. They are dropped from a
// locally-synthesized 304 whenever the match that produced it was only
// weak, since a weak validator promises an equivalent representation, not
// a byte-identical one.
var entity304Headers = []string{
	"Content-Length", "Content-Type", "Content-Encoding", "Content-Language", "Content-Range",
}

// build304Response synthesizes the locally-generated 304 Not Modified
// spec.md Section 4.6 and Section 8's 304-body invariant require when a
// request's own conditional validators are already satisfied by entry: no
// body, and a header set restricted to Date, ETag, Content-Location,
// Expires, Cache-Control, Vary, and any other end-to-end header entry
// carries, except the entity headers dropped on a weak match.
func build304Response(entry *CacheEntry, req *http.Request, now time.Time, weakMatch bool, opts generatorOptions, log *slog.Logger) *http.Response {
	header := entry.Header.Clone()
	if weakMatch {
		for _, name := range entity304Headers {
			header.Del(name)
		}
	}
	header.Set("Age", formatAge(currentAge(entry, now, log)))
	opts.annotateVia(header)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusNotModified, http.StatusText(http.StatusNotModified)),
		StatusCode:    http.StatusNotModified,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Request:       req,
		ContentLength: 0,
		Body:          http.NoBody,
	}
}

// releasingBody wraps a ResourceHandle's ReadCloser so the handle's
// reference count is released exactly once, when the HTTP layer closes the
// response body.
type releasingBody struct {
	ReadCloser
	handle ResourceHandle
	closed bool
}

func (b *releasingBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.ReadCloser.Close()
	b.handle.Release()
	return err
}

// synthesizeOnlyIfCachedMiss builds the module-generated 504 response
// spec.md Section 4.2 requires when only-if-cached cannot be satisfied.
func synthesizeOnlyIfCachedMiss(req *http.Request) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	body := "httpcache: no cached response available for only-if-cached request"
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)),
		StatusCode:    http.StatusGatewayTimeout,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Request:       req,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(strings.NewReader(body)),
	}
}
