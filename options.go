package httpcache

import (
	"github.com/sandrolain/httpcache/metrics"
)

// Option configures an Executor built by NewExecutor.
type Option func(*Executor)

// WithResourceFactory sets the ResourceFactory used for response bodies.
// Defaults to an in-process memory factory when unset.
func WithResourceFactory(rf ResourceFactory) Option {
	return func(e *Executor) { e.resources = rf }
}

// WithCacheConfig sets the CacheConfig, merged with documented defaults for
// any zero-valued numeric, duration or string field. The bool fields keep
// the values given in cfg.
func WithCacheConfig(cfg CacheConfig) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithMetricsCollector sets the metrics.Collector used to record cache
// operations. Defaults to metrics.DefaultCollector (a no-op).
func WithMetricsCollector(c metrics.Collector) Option {
	return func(e *Executor) {
		if c != nil {
			e.collector = c
		}
	}
}

// WithClock overrides the Executor's time source. Intended for tests; not
// exported beyond the package since callers have no legitimate reason to
// supply a clock other than time.Now in production.
func withClock(c clock) Option {
	return func(e *Executor) { e.clock = c }
}
