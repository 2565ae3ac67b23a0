package httpcache

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandrolain/httpcache/metrics"
)

// Executor is CachingExecutor (spec.md Section 4.10): the orchestrator that
// wires RequestPolicy, SuitabilityChecker, ConditionalRequestBuilder,
// ResponseGenerator, EntryUpdater, Invalidator, ProtocolCompliance, and
// AsynchronousRevalidator together around a Storage and ResourceFactory.
type Executor struct {
	backend   Backend
	storage   Storage
	resources ResourceFactory
	cfg       CacheConfig
	clock     clock
	async     *asyncRevalidator
	failures  *failureCache
	collector metrics.Collector
	pseudonym string
}

// NewExecutor builds an Executor from functional Options. backend and
// storage are required; a nil ResourceFactory defaults to an in-process
// memory resource factory suitable for tests and small deployments.
func NewExecutor(backend Backend, storage Storage, opts ...Option) *Executor {
	cfg := DefaultConfig()
	e := &Executor{
		backend:   backend,
		storage:   storage,
		cfg:       cfg,
		clock:     systemClock{},
		collector: metrics.DefaultCollector,
		pseudonym: cfg.Pseudonym,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = withDefaults(e.cfg)
	e.pseudonym = e.cfg.Pseudonym
	if e.resources == nil {
		e.resources = newMemResourceFactory()
	}
	e.failures = newFailureCache(e.cfg.AsyncFailureCacheCapacity, e.cfg.AsyncFailureThreshold)
	e.async = newAsyncRevalidator(e.cfg.AsyncWorkersMax, e.cfg.RevalidationQueueSize, e.failures, GetLogger())
	return e
}

// Close stops the background revalidation workers.
func (e *Executor) Close() { e.async.close() }

// Do implements the full request handling algorithm. ctx governs the
// lifetime of this single call; callCtx carries per-call overrides such as
// the authoritative host.
func (e *Executor) Do(ctx context.Context, callCtx *CallContext, req *http.Request) (*http.Response, error) {
	log := GetLogger()
	start := e.clock.Now()

	if reason, fatal := fatalNonCompliance(req); fatal {
		callCtx.setStatus(StatusModuleResponse)
		return synthesizeComplianceError(req, reason), nil
	}

	reqCC := parseCacheControl(req.Header.Values("Cache-Control"), log)
	shared := callCtx.shared(e.cfg)
	key := primaryKey(callCtx, req)

	var resp *http.Response
	var status CacheStatus
	var err error

	if unsafeMethod(req.Method) {
		resp, err = e.backend.Fetch(req)
		if err == nil && resp.StatusCode < 400 {
			invalidate(backgroundContext(), e.storage, invalidationTargets(callCtx, req, resp), resp)
		}
		status = StatusMiss
	} else if requestForbidsLookup(req, reqCC) {
		if requestOnlyIfCached(reqCC) {
			callCtx.setStatus(StatusModuleResponse)
			return synthesizeOnlyIfCachedMiss(req), nil
		}
		resp, status, err = e.fetchAndStore(ctx, callCtx, req, key, reqCC, shared, log)
	} else {
		resp, status, err = e.serveFromCache(ctx, callCtx, req, key, reqCC, shared, log)
	}

	if err != nil {
		return nil, err
	}

	callCtx.setStatus(status)
	e.collector.RecordHTTPRequest(req.Method, statusLabel(status), resp.StatusCode, e.clock.Now().Sub(start))
	return resp, nil
}

func statusLabel(s CacheStatus) string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusValidated:
		return "revalidated"
	case StatusModuleResponse:
		return "bypass"
	case StatusFailure:
		return "error"
	default:
		return "miss"
	}
}

// serveFromCache looks up key, decides suitability, and either serves the
// stored entry, revalidates it, or falls through to a fresh fetch.
func (e *Executor) serveFromCache(ctx context.Context, callCtx *CallContext, req *http.Request, key string, reqCC cacheControl, shared bool, log *slog.Logger) (*http.Response, CacheStatus, error) {
	now := e.clock.Now()

	entry, leafKey, resourceID, storedCC, ok, err := e.loadEntry(ctx, key, req, log)
	if err != nil {
		return nil, StatusFailure, err
	}
	if !ok {
		if requestOnlyIfCached(reqCC) {
			return synthesizeOnlyIfCachedMiss(req), StatusModuleResponse, nil
		}
		if entry != nil && entry.IsVariantParent() {
			return e.revalidateVariantMiss(ctx, callCtx, req, key, entry, reqCC, shared, log)
		}
		return e.fetchAndStore(ctx, callCtx, req, key, reqCC, shared, log)
	}

	verdict := checkSuitability(entry, req, reqCC, storedCC, e.cfg, shared, now, log)

	switch verdict {
	case suitabilityFresh:
		resp, err := buildResponse(entry, req, now, false, e.genOpts(), log)
		return resp, StatusHit, err

	case suitabilityStaleOK:
		over := staleness(entry, storedCC, e.cfg, shared, now, log)
		if mayServeStaleWhileRevalidating(storedCC, over) {
			e.scheduleRevalidation(leafKey, req, entry, resourceID, callCtx, log)
		}
		resp, err := buildResponse(entry, req, now, true, e.genOpts(), log)
		return resp, StatusHit, err

	case suitabilityRevalidate:
		return e.revalidate(ctx, callCtx, req, key, leafKey, entry, resourceID, storedCC, reqCC, shared, now, log)

	default: // suitabilityMiss
		if requestOnlyIfCached(reqCC) {
			return synthesizeOnlyIfCachedMiss(req), StatusModuleResponse, nil
		}
		return e.fetchAndStore(ctx, callCtx, req, key, reqCC, shared, log)
	}
}

// revalidate issues a conditional request against the backend and merges or
// replaces the stored entry depending on the outcome, falling back to
// stale-if-error serving when the backend call itself fails.
func (e *Executor) revalidate(ctx context.Context, callCtx *CallContext, req *http.Request, key, leafKey string, entry *CacheEntry, resourceID string, storedCC, reqCC cacheControl, shared bool, now time.Time, log *slog.Logger) (*http.Response, CacheStatus, error) {
	condReq := buildConditionalRequest(req, entry)
	backendResp, err := e.backend.Fetch(condReq)
	if err != nil {
		over := staleness(entry, storedCC, e.cfg, shared, now, log)
		if mayServeStaleIfError(storedCC, reqCC, over) {
			resp, berr := buildResponse(entry, req, now, true, e.genOpts(), log)
			if berr != nil {
				return nil, StatusFailure, berr
			}
			addWarning(resp.Header, warningDisconnectedOp)
			e.collector.RecordStaleResponse("backend_error")
			return resp, StatusHit, nil
		}
		return nil, StatusFailure, err
	}
	defer backendResp.Body.Close()

	requestTime, responseTime := now, e.clock.Now()

	if backendResp.StatusCode == http.StatusNotModified {
		if !revalidatorConfirms(entry, backendResp) {
			return e.fetchAndStore(ctx, callCtx, req, key, reqCC, shared, log)
		}
		updated := mergeRevalidation(entry, backendResp, requestTime, responseTime)
		if err := e.persist(ctx, leafKey, updated, resourceID); err != nil {
			log.Debug("persist revalidated entry failed", "key", leafKey, "error", err)
		}
		resp, err := buildResponse(updated, req, responseTime, false, e.genOpts(), log)
		return resp, StatusValidated, err
	}

	resp, storeErr := e.storeFreshResponse(ctx, callCtx, req, key, backendResp, requestTime, responseTime, reqCC, shared, log)
	if storeErr != nil {
		log.Debug("store fresh response after revalidation failed", "key", key, "error", storeErr)
	}
	return resp, StatusValidated, nil
}

// revalidateVariantMiss handles a request whose variant-key has no leaf
// under an existing variant parent: rather than an unconditional fetch, it
// issues a conditional request carrying an If-None-Match listing every
// already-known variant's ETag. A 304 that strongly matches one of those
// candidates means this variant negotiates to a representation already
// stored under a different variant-key, so that leaf is reused and given a
// new edge; anything else (a fresh 200, or a 304 that cannot be matched to
// a known candidate) falls through to the ordinary storage path.
func (e *Executor) revalidateVariantMiss(ctx context.Context, callCtx *CallContext, req *http.Request, key string, parent *CacheEntry, reqCC cacheControl, shared bool, log *slog.Logger) (*http.Response, CacheStatus, error) {
	candidates := e.loadVariantCandidates(ctx, parent, log)
	condReq := buildVariantConditionalRequest(req, variantCandidateETags(candidates))

	requestTime := e.clock.Now()
	backendResp, err := e.backend.Fetch(condReq)
	if err != nil {
		return nil, StatusFailure, err
	}
	defer backendResp.Body.Close()
	responseTime := e.clock.Now()

	if backendResp.StatusCode == http.StatusNotModified {
		if match, ok := matchVariantCandidate(candidates, backendResp); ok {
			handle, err := e.resources.Open(ctx, match.resourceID)
			if err != nil {
				return nil, StatusFailure, err
			}
			match.entry.Body = handle
			updated := mergeRevalidation(match.entry, backendResp, requestTime, responseTime)
			if err := e.persist(ctx, match.key, updated, match.resourceID); err != nil {
				log.Debug("persist revalidated variant failed", "key", match.key, "error", err)
			}
			if fields := varyFields(updated.Header); len(fields) > 0 {
				vk := variantKey(req, fields)
				if err := e.updateVariantParent(ctx, key, updated.Header, fields, vk, match.key); err != nil {
					log.Debug("update variant parent failed", "key", key, "error", err)
				}
			}
			resp, err := buildResponse(updated, req, responseTime, false, e.genOpts(), log)
			return resp, StatusValidated, err
		}
		return e.fetchAndStore(ctx, callCtx, req, key, reqCC, shared, log)
	}

	resp, storeErr := e.storeFreshResponse(ctx, callCtx, req, key, backendResp, requestTime, responseTime, reqCC, shared, log)
	if storeErr != nil {
		log.Debug("store fresh response after variant revalidation failed", "key", key, "error", storeErr)
	}
	return resp, StatusMiss, storeErr
}

// fetchAndStore performs an unconditional backend fetch and stores the
// result if cacheable.
func (e *Executor) fetchAndStore(ctx context.Context, callCtx *CallContext, req *http.Request, key string, reqCC cacheControl, shared bool, log *slog.Logger) (*http.Response, CacheStatus, error) {
	requestTime := e.clock.Now()
	backendResp, err := e.backend.Fetch(req)
	if err != nil {
		return nil, StatusFailure, err
	}
	defer backendResp.Body.Close()
	responseTime := e.clock.Now()

	resp, err := e.storeFreshResponse(ctx, callCtx, req, key, backendResp, requestTime, responseTime, reqCC, shared, log)
	return resp, StatusMiss, err
}

// scheduleRevalidation kicks off a background conditional fetch for a
// stale-while-revalidate-eligible entry.
func (e *Executor) scheduleRevalidation(leafKey string, req *http.Request, entry *CacheEntry, resourceID string, callCtx *CallContext, log *slog.Logger) {
	condReq := buildConditionalRequest(req.Clone(backgroundContext()), entry)
	e.async.tryRevalidate(leafKey, func(onDone func(success bool)) {
		requestTime := e.clock.Now()
		backendResp, err := e.backend.Fetch(condReq)
		if err != nil {
			onDone(false)
			return
		}
		defer backendResp.Body.Close()
		responseTime := e.clock.Now()

		if backendResp.StatusCode == http.StatusNotModified && revalidatorConfirms(entry, backendResp) {
			updated := mergeRevalidation(entry, backendResp, requestTime, responseTime)
			_ = e.persist(backgroundContext(), leafKey, updated, resourceID)
			onDone(true)
			return
		}
		reqCC := parseCacheControl(condReq.Header.Values("Cache-Control"), log)
		shared := callCtx.shared(e.cfg)
		_, err = e.storeFreshResponse(backgroundContext(), callCtx, req, leafKey, backendResp, requestTime, responseTime, reqCC, shared, log)
		onDone(err == nil)
	})
}

func (e *Executor) genOpts() generatorOptions {
	return generatorOptions{pseudonym: e.pseudonym, proto: "1.1"}
}
