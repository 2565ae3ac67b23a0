package httpcache

import "net/http"

// Warning header and code constants. RFC 9111 has formally obsoleted the
// Warning header field, but spec.md Section 4.10 still asks for 110/111/112
// annotations when serving stale content, so ResponseGenerator keeps
// emitting it for compatibility with existing clients that inspect it.
const (
	headerWarning = "Warning"

	warningResponseIsStale    = `110 - "Response is Stale"`
	warningRevalidationFailed = `111 - "Revalidation Failed"`
	warningDisconnectedOp     = `112 - "Disconnected Operation"`
)

// addWarning appends a Warning header value to h. Warning values stack, so
// this always adds rather than replacing a prior value.
func addWarning(h http.Header, code string) {
	h.Add(headerWarning, code)
}

func addStaleWarning(h http.Header) { addWarning(h, warningResponseIsStale) }

func addRevalidationFailedWarning(h http.Header) { addWarning(h, warningRevalidationFailed) }

func addDisconnectedOperationWarning(h http.Header) { addWarning(h, warningDisconnectedOp) }
