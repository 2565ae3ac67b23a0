package httpcache

import (
	"net/http"
	"time"
)

// httpDateLayouts are the date formats RFC 9110 Section 5.6.7 requires a
// recipient to accept, in order of preference. Responses are always
// produced in the first (IMF-fixdate / RFC1123) form.
var httpDateLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.ANSIC,
	"Monday, 02-Jan-06 15:04:05 MST", // RFC 850
}

// ParseHTTPDate parses an HTTP-date header value, accepting the legacy
// formats RFC 9110 requires caches to tolerate on receipt. It returns the
// zero Time and false if the value does not parse under any accepted
// layout.
func ParseHTTPDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range httpDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatHTTPDate renders t in the IMF-fixdate form mandated for generated
// Date, Expires, and Last-Modified header values.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// responseDate returns the response's Date header, parsed, and whether it
// was present and well-formed.
func responseDate(h http.Header) (time.Time, bool) {
	return ParseHTTPDate(h.Get("Date"))
}
