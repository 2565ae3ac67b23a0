package httpcache

import (
	"log/slog"
	"strings"
	"time"
)

// Recognized Cache-Control directive names (spec.md Section 6).
const (
	ccNoCache              = "no-cache"
	ccNoStore              = "no-store"
	ccMaxAge               = "max-age"
	ccSMaxAge              = "s-maxage"
	ccMinFresh             = "min-fresh"
	ccMaxStale             = "max-stale"
	ccMustRevalidate       = "must-revalidate"
	ccProxyRevalidate      = "proxy-revalidate"
	ccPublic               = "public"
	ccPrivate              = "private"
	ccOnlyIfCached         = "only-if-cached"
	ccNoTransform          = "no-transform"
	ccStaleIfError         = "stale-if-error"
	ccStaleWhileRevalidate = "stale-while-revalidate"
	ccMustUnderstand       = "must-understand"

	headerPragma  = "Pragma"
	pragmaNoCache = "no-cache"
)

// cacheControl is a parsed Cache-Control header: directive name to value
// (empty string for valueless directives).
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header field-value(s) in h.
// Per RFC 9111 Section 4.2.1, a duplicate directive keeps its first
// occurrence and invalid numeric values are dropped rather than rejecting
// the whole header; both are logged at debug level so misbehaving origins
// are visible without breaking the request.
func parseCacheControl(rawValues []string, log *slog.Logger) cacheControl {
	cc := cacheControl{}
	seen := map[string]bool{}

	for _, header := range rawValues {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			directive, value, _ := strings.Cut(part, "=")
			directive = strings.ToLower(strings.TrimSpace(directive))
			value = strings.Trim(strings.TrimSpace(value), `"`)

			if seen[directive] {
				if log != nil {
					log.Debug("duplicate Cache-Control directive, keeping first",
						"directive", directive, "ignored_value", value)
				}
				continue
			}
			seen[directive] = true
			cc[directive] = value
		}
	}

	validateSeconds(cc, ccMaxAge, log)
	validateSeconds(cc, ccSMaxAge, log)
	return cc
}

// validateSeconds drops a delta-seconds directive whose value is not a
// non-negative integer, per RFC 9111 Section 1.2.2.
func validateSeconds(cc cacheControl, directive string, log *slog.Logger) {
	value, ok := cc[directive]
	if !ok || value == "" {
		return
	}
	if strings.ContainsAny(value, ".-") {
		if log != nil {
			log.Debug("invalid Cache-Control seconds value, dropping directive",
				"directive", directive, "value", value)
		}
		delete(cc, directive)
		return
	}
	if _, err := time.ParseDuration(value + "s"); err != nil {
		if log != nil {
			log.Debug("non-numeric Cache-Control seconds value, dropping directive",
				"directive", directive, "value", value)
		}
		delete(cc, directive)
	}
}

// seconds returns the directive's value as a duration and whether it was
// present and well-formed.
func (cc cacheControl) seconds(directive string) (time.Duration, bool) {
	value, ok := cc[directive]
	if !ok {
		return 0, false
	}
	if value == "" {
		return 0, true // bare max-stale
	}
	d, err := time.ParseDuration(value + "s")
	if err != nil {
		return 0, false
	}
	return d, true
}

func (cc cacheControl) has(directive string) bool {
	_, ok := cc[directive]
	return ok
}
