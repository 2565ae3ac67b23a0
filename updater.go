package httpcache

import (
	"net/http"
	"time"
)

// end-to-end headers a 304 response updates on the stored entry, per RFC
// 9111 Section 3.2. All other stored headers are left untouched.
var revalidationUpdateHeaders = []string{
	"Cache-Control", "Content-Location", "Date", "ETag", "Expires",
	"Last-Modified", "Vary",
}

// mergeRevalidation implements EntryUpdater (spec.md Section 4.6): given the
// previously stored entry and a 304 Not Modified response, produces the
// updated entry with refreshed timestamps and headers, keeping the
// original stored body untouched.
//
// If validationResp does not actually carry a strong or weak validator
// match against entry (a misbehaving origin sending a bodyless 304 for an
// unrelated resource), the caller should treat this as a stale-304 and
// fall back to re-requesting unconditionally rather than call this
// function; that decision is made by the executor, not here.
func mergeRevalidation(entry *CacheEntry, validationResp *http.Response, requestTime, responseTime time.Time) *CacheEntry {
	header := entry.Header.Clone()
	for _, name := range revalidationUpdateHeaders {
		if values := validationResp.Header.Values(name); len(values) > 0 {
			header.Del(name)
			for _, v := range values {
				header.Add(name, v)
			}
		}
	}

	updated := *entry
	updated.Header = stripHopByHop(header)
	updated.RequestTime = requestTime
	updated.ResponseTime = responseTime
	return &updated
}

// revalidatorConfirms reports whether a 304 response is a genuine
// revalidation of entry rather than a misdirected or stale 304. An origin
// that sends no validator at all on the 304 is, per RFC 9111 Section
// 4.3.4, still treated as confirming the stored entry on ETag grounds, but
// a 304 whose Date predates the stored entry's Date is always rejected:
// that is the re-aging case a stale intermediary or misbehaving origin
// produces, and merging it would move the entry's clock backwards.
func revalidatorConfirms(entry *CacheEntry, validationResp *http.Response) bool {
	respETag := validationResp.Header.Get("ETag")
	if respETag != "" && !weakETagMatch(respETag, entry.ETag()) {
		return false
	}

	respDate, respOK := responseDate(validationResp.Header)
	entryDate, entryOK := responseDate(entry.Header)
	if respOK && entryOK && respDate.Before(entryDate) {
		return false
	}

	return true
}

func weakETagMatch(a, b string) bool {
	return trimWeak(a) == trimWeak(b)
}

// strongETagMatch reports whether a and b identify the same representation
// under RFC 9110's strong comparison: neither may be a weak validator, and
// the (untrimmed) values must be byte-identical.
func strongETagMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if isWeakETag(a) || isWeakETag(b) {
		return false
	}
	return a == b
}

func isWeakETag(etag string) bool {
	return len(etag) >= 2 && etag[0] == 'W' && etag[1] == '/'
}

func trimWeak(etag string) string {
	if len(etag) >= 2 && etag[0] == 'W' && etag[1] == '/' {
		return etag[2:]
	}
	return etag
}
