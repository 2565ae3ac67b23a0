package httpcache

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// clock abstracts wall-clock "now" so the decision engine never reads a
// process-wide clock directly (spec.md Section 9, Design Notes).
type clock interface {
	Now() time.Time
}

// systemClock is the default clock, backed by time.Now.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ParseHTTPDate and FormatHTTPDate live in date.go; Date here parses the
// Date header specifically and reports whether it was present and
// well-formed.
func Date(h http.Header) (time.Time, bool) {
	return ParseHTTPDate(h.Get("Date"))
}

// parseAgeHeader parses the Age header per RFC 9111 Section 5.1: the first
// value is authoritative when duplicated, and a negative or non-numeric
// value is discarded entirely.
func parseAgeHeader(h http.Header, log *slog.Logger) (time.Duration, bool) {
	values := h.Values("Age")
	if len(values) == 0 {
		return 0, false
	}
	raw := strings.TrimSpace(values[0])
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		if log != nil {
			log.Debug("invalid Age header, ignoring", "value", raw)
		}
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// apparentAge implements RFC 9111 Section 4.2.3's apparent_age term:
// max(0, response_time - date_value). A missing or malformed Date yields 0.
func apparentAge(e *CacheEntry) time.Duration {
	date, ok := Date(e.Header)
	if !ok {
		return 0
	}
	if d := e.ResponseTime.Sub(date); d > 0 {
		return d
	}
	return 0
}

// correctedInitialAge implements spec.md Section 4.1's corrected_initial_age:
// max(apparent_age, Age header) + (response_time - request_time).
func correctedInitialAge(e *CacheEntry, log *slog.Logger) time.Duration {
	responseDelay := e.ResponseTime.Sub(e.RequestTime)
	if responseDelay < 0 {
		responseDelay = 0
	}
	age := apparentAge(e)
	if headerAge, ok := parseAgeHeader(e.Header, log); ok && headerAge > age {
		age = headerAge
	}
	return age + responseDelay
}

// currentAge implements spec.md Section 4.1's current_age: corrected
// initial age plus the resident time since the response was received.
func currentAge(e *CacheEntry, now time.Time, log *slog.Logger) time.Duration {
	resident := now.Sub(e.ResponseTime)
	if resident < 0 {
		resident = 0
	}
	return correctedInitialAge(e, log) + resident
}

// formatAge renders a duration as a non-negative whole-seconds Age value,
// rounded down per spec.md Section 4.6.
func formatAge(age time.Duration) string {
	seconds := int64(age.Seconds())
	if seconds < 0 {
		seconds = 0
	}
	return strconv.FormatInt(seconds, 10)
}
