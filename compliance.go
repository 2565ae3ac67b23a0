package httpcache

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ProtocolCompliance holds the cache's identifying token for the Via
// header (spec.md Section 4.11). The HTTP version announced alongside it is
// passed to annotateVia per call.
type ProtocolCompliance struct {
	Pseudonym string
}

// annotateVia appends this cache's Via entry to h, per RFC 9110 Section
// 7.6.3.
func (p ProtocolCompliance) annotateVia(h http.Header, proto string) {
	entry := fmt.Sprintf("%s %s", proto, p.Pseudonym)
	h.Add("Via", entry)
}

// fatalNonCompliance reports whether req is so malformed the cache must
// refuse to process it at all rather than forward it, returning the 400
// response to synthesize in that case. A must-understand directive paired
// with a status code this cache cannot reason about degrades to
// no-store; it is not itself fatal.
func fatalNonCompliance(req *http.Request) (reason string, fatal bool) {
	if req.Method == "" {
		return "missing request method", true
	}
	if req.URL == nil {
		return "missing request target", true
	}
	return "", false
}

// synthesizeComplianceError builds the module-generated 400 response for a
// fatally non-compliant request (spec.md Section 4.11).
func synthesizeComplianceError(req *http.Request, reason string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	body := "httpcache: " + reason
	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusBadRequest, http.StatusText(http.StatusBadRequest)),
		StatusCode:    http.StatusBadRequest,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Request:       req,
		ContentLength: int64(len(body)),
	}
	resp.Body = io.NopCloser(strings.NewReader(body))
	return resp
}

// mustUnderstandUnknown reports whether resp carries must-understand but
// its status code is not one this cache's ResponsePolicy assigns explicit
// semantics to, in which case must-understand downgrades the response to
// no-store (RFC 9111 Section 5.2.2.3).
func mustUnderstandUnknown(status int, cc cacheControl, allow303 bool) bool {
	return cc.has(ccMustUnderstand) && !cacheableStatus(status, allow303)
}
