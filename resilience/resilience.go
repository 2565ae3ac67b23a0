// Package resilience wraps an http.RoundTripper with failsafe-go retry and
// circuit-breaker policies. It composes ahead of httpcache.RoundTripperBackend
// so a cache sits in front of a resilient backend rather than the other way
// around: a response served from a fresh cache entry never touches these
// policies at all.
package resilience

import (
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Config holds the resilience policies to apply around a backend round trip.
// Both fields are optional; a Config with neither set disables resilience
// entirely and RoundTrip forwards to the underlying transport directly.
type Config struct {
	// RetryPolicy configures retry behavior using failsafe-go.
	// If nil, retry is disabled.
	RetryPolicy retrypolicy.RetryPolicy[*http.Response]

	// CircuitBreaker configures circuit breaker behavior using failsafe-go.
	// If nil, circuit breaking is disabled.
	CircuitBreaker circuitbreaker.CircuitBreaker[*http.Response]
}

// RetryPolicyBuilder returns a pre-configured retry policy builder for HTTP
// requests, further customizable before calling Build().
//
// Default configuration:
//   - Retries on: network errors and 5xx status codes
//   - Max retries: 3
//   - Backoff: exponential from 100ms to 10s
func RetryPolicyBuilder() retrypolicy.Builder[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode >= 500
		}).
		WithMaxRetries(3).
		WithBackoff(100*time.Millisecond, 10*time.Second)
}

// CircuitBreakerBuilder returns a pre-configured circuit breaker builder for
// HTTP requests, further customizable before calling Build().
//
// Default configuration:
//   - Opens on: network errors and 5xx status codes
//   - Failure threshold: 5 consecutive failures
//   - Success threshold: 2 consecutive successes (in half-open state)
//   - Delay: 60 seconds before entering half-open state
func CircuitBreakerBuilder() circuitbreaker.Builder[*http.Response] {
	return circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return r != nil && r.StatusCode >= 500
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}

// RoundTripper wraps an underlying http.RoundTripper with the policies in
// Config. A nil underlying defaults to http.DefaultTransport.
type RoundTripper struct {
	underlying http.RoundTripper
	config     Config
}

// NewRoundTripper builds a RoundTripper wrapping underlying with config.
func NewRoundTripper(underlying http.RoundTripper, config Config) *RoundTripper {
	if underlying == nil {
		underlying = http.DefaultTransport
	}
	return &RoundTripper{underlying: underlying, config: config}
}

// RoundTrip implements http.RoundTripper, applying the configured retry and
// circuit-breaker policies around the underlying round trip.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	fn := func() (*http.Response, error) { return t.underlying.RoundTrip(req) }

	var policies []failsafe.Policy[*http.Response]
	if t.config.RetryPolicy != nil {
		policies = append(policies, t.config.RetryPolicy)
	}
	if t.config.CircuitBreaker != nil {
		policies = append(policies, t.config.CircuitBreaker)
	}

	if len(policies) == 0 {
		return fn()
	}
	return failsafe.With(policies...).Get(fn)
}

var _ http.RoundTripper = (*RoundTripper)(nil)
