package prometheus

import (
	"context"
	"time"

	"github.com/sandrolain/httpcache"
	"github.com/sandrolain/httpcache/metrics"
)

// Metric result constants.
const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultSuccess = "success"
	resultError   = "error"
)

// InstrumentedStorage wraps an httpcache.Storage with Prometheus metrics.
type InstrumentedStorage struct {
	underlying httpcache.Storage
	collector  metrics.Collector
	backend    string // backend name: "memory", "redis", "leveldb", etc.
}

// NewInstrumentedStorage creates a storage wrapper that records metrics for
// every operation.
//
// Parameters:
//   - storage: the underlying storage implementation to wrap
//   - backend: the name of the storage backend (e.g., "disk", "redis", "leveldb")
//   - collector: the metrics collector (if nil, uses metrics.DefaultCollector)
//
// Example:
//
//	collector := prometheus.NewCollector()
//	storage := prometheus.NewInstrumentedStorage(
//	    diskcache.New("/tmp/cache"),
//	    "disk",
//	    collector,
//	)
func NewInstrumentedStorage(storage httpcache.Storage, backend string, collector metrics.Collector) *InstrumentedStorage {
	if collector == nil {
		collector = metrics.DefaultCollector
	}

	return &InstrumentedStorage{
		underlying: storage,
		collector:  collector,
		backend:    backend,
	}
}

// Load retrieves an entry with metrics recording.
func (s *InstrumentedStorage) Load(ctx context.Context, key string) (httpcache.StoredEntry, error) {
	start := time.Now()
	entry, err := s.underlying.Load(ctx, key)
	duration := time.Since(start)

	result := resultMiss
	switch {
	case err != nil && err != httpcache.ErrNotFound:
		result = resultError
	case err == nil:
		result = resultHit
	}

	s.collector.RecordCacheOperation("get", s.backend, result, duration)

	return entry, err
}

// Store writes an entry with metrics recording.
func (s *InstrumentedStorage) Store(ctx context.Context, key string, data []byte) (string, error) {
	start := time.Now()
	version, err := s.underlying.Store(ctx, key, data)
	duration := time.Since(start)

	result := resultSuccess
	if err != nil {
		result = resultError
	}

	s.collector.RecordCacheOperation("set", s.backend, result, duration)

	return version, err
}

// Update performs a compare-and-swap write with metrics recording.
func (s *InstrumentedStorage) Update(ctx context.Context, key, oldVersion string, newData []byte) (string, error) {
	start := time.Now()
	version, err := s.underlying.Update(ctx, key, oldVersion, newData)
	duration := time.Since(start)

	result := resultSuccess
	if err != nil {
		result = resultError
	}

	s.collector.RecordCacheOperation("update", s.backend, result, duration)

	return version, err
}

// Delete removes an entry with metrics recording.
func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.underlying.Delete(ctx, key)
	duration := time.Since(start)

	result := resultSuccess
	if err != nil {
		result = resultError
	}

	s.collector.RecordCacheOperation("delete", s.backend, result, duration)

	return err
}

// Keys lists stored keys by prefix, delegating to the underlying storage
// without recording per-call metrics (Keys is a bulk, backend-specific scan).
func (s *InstrumentedStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.underlying.Keys(ctx, prefix)
}

// Verify interface implementation at compile time
var _ httpcache.Storage = (*InstrumentedStorage)(nil)
