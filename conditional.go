package httpcache

import (
	"net/http"
	"strings"
)

// buildConditionalRequest constructs the revalidation request for entry per
// spec.md Section 4.5: a clone of req carrying If-None-Match and/or
// If-Modified-Since derived from the stored entry's validators, so the
// origin can answer with 304 when the entry is still current. The clone
// keeps req's method, so a HEAD request is revalidated with a HEAD and the
// origin never sends a body.
func buildConditionalRequest(req *http.Request, entry *CacheEntry) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header = req.Header.Clone()

	if etag := entry.ETag(); etag != "" {
		clone.Header.Set("If-None-Match", etag)
	}
	if lm := entry.LastModified(); lm != "" {
		if clone.Header.Get("If-None-Match") == "" {
			clone.Header.Set("If-Modified-Since", lm)
		}
	}
	return clone
}

// buildVariantConditionalRequest constructs the revalidation request for a
// Vary-ing resource whose variant parent exists but has no leaf for req's
// specific variant-key yet: an If-None-Match listing every already-known
// variant's ETag, comma-joined in the order those variants were first
// stored, so the origin can confirm this request wants a representation it
// already holds under a different variant key before a new one is fetched.
func buildVariantConditionalRequest(req *http.Request, knownETags []string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header = req.Header.Clone()
	if len(knownETags) > 0 {
		clone.Header.Set("If-None-Match", strings.Join(knownETags, ", "))
	}
	return clone
}

// conditionalOutcome is the result of evaluating a request's own
// conditional validators against a stored entry (spec.md Section 4.4 item 6
// and Section 4.6's locally-synthesized 304).
type conditionalOutcome struct {
	// hasCondition is true if req carried at least one conditional header
	// this cache evaluates. When false, satisfied and weak are meaningless
	// and the caller must serve entry normally.
	hasCondition bool
	// satisfied is true when every conditional header req carried is met
	// by entry, meaning a locally-synthesized 304 may be served instead of
	// the full representation.
	satisfied bool
	// weak is true when satisfied was reached only through a weak
	// comparison (a weak ETag match, or any date-based match, which RFC
	// 9110 always treats as weak). Entity headers are omitted from a
	// locally-synthesized 304 when weak is true, since a weak match only
	// promises an equivalent representation, not a byte-identical one.
	weak bool
}

// evaluateClientConditional implements the request-conditional half of
// spec.md Section 4.4 item 6: it checks req's If-None-Match,
// If-Modified-Since, If-Match, and If-Unmodified-Since against entry.
// If-Range is not evaluated here; this cache never serves partial content,
// so there is no range response for If-Range to gate.
//
// Per RFC 9110 Section 8.8.3.2, weak comparison is only permitted for
// If-None-Match and If-Modified-Since, and only on a GET without a Range
// header; If-Match and If-Unmodified-Since always require strong
// comparison.
func evaluateClientConditional(req *http.Request, entry *CacheEntry) conditionalOutcome {
	weakAllowed := req.Method == http.MethodGet && req.Header.Get("Range") == ""

	if inm := req.Header.Get("If-None-Match"); inm != "" {
		matched, weak := etagListMatches(inm, entry.ETag(), weakAllowed)
		if !matched {
			return conditionalOutcome{hasCondition: true}
		}
		return mergeStrongConditionals(req, entry, true, weak)
	}

	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if !entryUnmodifiedSince(entry, ims) {
			return conditionalOutcome{hasCondition: true}
		}
		return mergeStrongConditionals(req, entry, true, true)
	}

	return mergeStrongConditionals(req, entry, false, false)
}

// mergeStrongConditionals applies If-Match and If-Unmodified-Since, which
// are evaluated independently of (and in addition to) If-None-Match or
// If-Modified-Since above.
func mergeStrongConditionals(req *http.Request, entry *CacheEntry, hasCondition, weak bool) conditionalOutcome {
	if im := req.Header.Get("If-Match"); im != "" {
		hasCondition = true
		if matched, _ := etagListMatches(im, entry.ETag(), false); !matched {
			return conditionalOutcome{hasCondition: true}
		}
	}
	if ius := req.Header.Get("If-Unmodified-Since"); ius != "" {
		hasCondition = true
		if !entryUnmodifiedSince(entry, ius) {
			return conditionalOutcome{hasCondition: true}
		}
	}
	return conditionalOutcome{hasCondition: hasCondition, satisfied: hasCondition, weak: weak}
}

// etagListMatches reports whether any entity-tag in the comma-separated
// header value matches entryETag, and whether the matching comparison was
// weak. A strong match is tried first regardless of weakAllowed; a weak
// match is only accepted when weakAllowed is true.
func etagListMatches(headerValue, entryETag string, weakAllowed bool) (matched, weak bool) {
	if entryETag == "" {
		return false, false
	}
	for _, raw := range strings.Split(headerValue, ",") {
		candidate := strings.TrimSpace(raw)
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true, false
		}
		if strongETagMatch(candidate, entryETag) {
			return true, false
		}
		if weakAllowed && weakETagMatch(candidate, entryETag) {
			return true, true
		}
	}
	return false, false
}

// entryUnmodifiedSince reports whether entry's Last-Modified is at or
// before value, the comparison RFC 9110 Section 13.1.3/13.1.4 uses for both
// If-Modified-Since and If-Unmodified-Since. A missing or unparsable date
// on either side cannot satisfy the condition.
func entryUnmodifiedSince(entry *CacheEntry, value string) bool {
	since, ok := ParseHTTPDate(value)
	if !ok {
		return false
	}
	lastModified, ok := ParseHTTPDate(entry.LastModified())
	if !ok {
		return false
	}
	return !lastModified.After(since)
}
