package httpcache

import (
	"context"
	"log/slog"
	"sync"
)

// asyncRevalidator implements AsynchronousRevalidator (spec.md Section
// 4.8): a bounded worker pool that revalidates stale-while-revalidate
// entries in the background, deduplicating concurrent requests for the
// same key via a pending-set so a hot key under load triggers at most one
// in-flight revalidation.
type asyncRevalidator struct {
	jobs     chan func()
	wg       sync.WaitGroup
	mu       sync.Mutex
	pending  map[string]bool
	failures *failureCache
	log      *slog.Logger
}

func newAsyncRevalidator(workers, queueSize int, failures *failureCache, log *slog.Logger) *asyncRevalidator {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	a := &asyncRevalidator{
		jobs:     make(chan func(), queueSize),
		pending:  map[string]bool{},
		failures: failures,
		log:      log,
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

func (a *asyncRevalidator) worker() {
	defer a.wg.Done()
	for job := range a.jobs {
		job()
	}
}

// tryRevalidate schedules fn to run asynchronously for key unless key
// already has a revalidation in flight or has exceeded its failure
// threshold. fn is responsible for calling onDone when it finishes, which
// clears the pending marker and records success/failure.
func (a *asyncRevalidator) tryRevalidate(key string, fn func(onDone func(success bool))) {
	if a.failures != nil && a.failures.suppressed(key) {
		if a.log != nil {
			a.log.Debug("async revalidation suppressed by failure threshold", "key", key)
		}
		return
	}

	a.mu.Lock()
	if a.pending[key] {
		a.mu.Unlock()
		return
	}
	a.pending[key] = true
	a.mu.Unlock()

	onDone := func(success bool) {
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
		if a.failures == nil {
			return
		}
		if success {
			a.failures.recordSuccess(key)
		} else {
			a.failures.recordFailure(key, systemClock{}.Now())
		}
	}

	select {
	case a.jobs <- func() { fn(onDone) }:
	default:
		if a.log != nil {
			a.log.Debug("async revalidation queue full, dropping job", "key", key)
		}
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
	}
}

func (a *asyncRevalidator) close() {
	close(a.jobs)
	a.wg.Wait()
}

// backgroundContext is used for revalidation requests triggered after the
// originating request's own context may already have ended.
func backgroundContext() context.Context { return context.Background() }
