package httpcache

import (
	"net/http"
	"sort"
	"strings"
)

// varyFields returns the field-names listed in h's Vary header, trimmed,
// deduplicated, and alphabetized. A literal "*" is returned as the sole
// element when present, since it overrides any other listed field.
func varyFields(h http.Header) []string {
	var fields []string
	seen := map[string]bool{}
	for _, line := range h.Values("Vary") {
		for _, f := range strings.Split(line, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if f == "*" {
				return []string{"*"}
			}
			canon := http.CanonicalHeaderKey(f)
			if !seen[canon] {
				seen[canon] = true
				fields = append(fields, canon)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// hasWildcardVary reports whether h's Vary header contains "*", which per
// RFC 9111 Section 4.1 means the stored response can never be matched
// again and so must not be cached.
func hasWildcardVary(h http.Header) bool {
	for _, f := range varyFields(h) {
		if f == "*" {
			return true
		}
	}
	return false
}

// variantKey derives the variant-key for req given the field-names listed
// in a stored response's Vary header: the canonical, joined value of each
// named request header, concatenated in alphabetized field order. Two
// requests that agree on every Vary-named header produce the same
// variant-key regardless of header ordering or casing.
func variantKey(req *http.Request, fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+"="+normalizeHeaderValue(req.Header.Get(f)))
	}
	return strings.Join(parts, "\x1f")
}

// normalizeHeaderValue folds whitespace variations that RFC 9111 Section
// 4.1 treats as equivalent, so that semantically identical header values
// produce the same variant-key.
func normalizeHeaderValue(value string) string {
	value = strings.TrimSpace(value)
	var b strings.Builder
	prevSpace := false
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		b.WriteRune(r)
		prevSpace = false
	}
	return strings.ReplaceAll(b.String(), ", ", ",")
}
