package httpcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// variantSeparator joins a variant parent's storage key with its
// variant-key to derive a stable sibling storage key for that variant's
// leaf entry.
const variantSeparator = "\x1e"

// loadEntry resolves key to a usable leaf CacheEntry for req, following a
// variant-parent indirection when the stored entry at key is one (spec.md
// Section 4.1's variant storage model). It returns ok=false, not an error,
// when nothing usable is stored for req's specific variant.
func (e *Executor) loadEntry(ctx context.Context, key string, req *http.Request, log *slog.Logger) (entry *CacheEntry, leafKey, resourceID string, storedCC cacheControl, ok bool, err error) {
	stored, err := e.storage.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, "", "", nil, false, nil
	}
	if err != nil {
		return nil, "", "", nil, false, err
	}

	entry, resourceID, err = decodeEntry(stored.Data, nil)
	if err != nil {
		return nil, "", "", nil, false, err
	}

	if entry.IsVariantParent() {
		fields := varyFields(entry.Header)
		vk := variantKey(req, fields)
		childKey, has := entry.Variants[vk]
		if !has {
			// No leaf for this specific variant yet, but the parent and its
			// known sibling variants are returned so the caller can build a
			// multi-validator conditional request instead of an
			// unconditional fetch.
			return entry, "", "", nil, false, nil
		}
		return e.loadEntry(ctx, childKey, req, log)
	}

	if resourceID != "" {
		handle, err := e.resources.Open(ctx, resourceID)
		if err != nil {
			return nil, "", "", nil, false, err
		}
		entry.Body = handle
	}

	storedCC = parseCacheControl(entry.Header.Values("Cache-Control"), log)
	return entry, key, resourceID, storedCC, true, nil
}

// persist overwrites key's stored bytes with entry, reusing resourceID
// (entry's body is unchanged across a 304 merge, so no new resource is
// created).
func (e *Executor) persist(ctx context.Context, key string, entry *CacheEntry, resourceID string) error {
	raw, err := encodeEntry(entry, resourceID)
	if err != nil {
		return err
	}
	_, err = e.storage.Store(ctx, key, raw)
	return err
}

// storeFreshResponse decides whether backendResp is cacheable, stores it
// (handling Vary-based variant indirection) if so, and returns the
// *http.Response to serve to the caller either way.
func (e *Executor) storeFreshResponse(ctx context.Context, callCtx *CallContext, req *http.Request, key string, backendResp *http.Response, requestTime, responseTime time.Time, reqCC cacheControl, shared bool, log *slog.Logger) (*http.Response, error) {
	respCC := parseCacheControl(backendResp.Header.Values("Cache-Control"), log)

	body, truncated, err := readLimitedBody(backendResp.Body, e.cfg.MaxObjectSize)
	if err != nil {
		return nil, err
	}

	store := !truncated &&
		mayStore(req, backendResp.StatusCode, backendResp.Header, respCC, reqCC, e.cfg, shared) &&
		!mustUnderstandUnknown(backendResp.StatusCode, respCC, e.cfg.Allow303Caching)

	reason := backendResp.Status
	if _, r, found := strings.Cut(backendResp.Status, " "); found {
		reason = r
	}

	if !store {
		resp := passthroughResponse(req, backendResp, body)
		(ProtocolCompliance{Pseudonym: e.pseudonym}).annotateVia(resp.Header, "1.1")
		return resp, nil
	}

	fields := varyFields(backendResp.Header)
	leafKey := key
	if len(fields) > 0 {
		vk := variantKey(req, fields)
		leafKey = key + variantSeparator + vk
		if err := e.updateVariantParent(ctx, key, backendResp.Header, fields, vk, leafKey); err != nil {
			log.Debug("update variant parent failed", "key", key, "error", err)
		}
	}

	resourceID, handle, err := e.resources.Create(ctx, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entry := newLeafEntry(requestTime, responseTime, backendResp.StatusCode, reason, backendResp.Header, handle)
	if err := e.persist(ctx, leafKey, entry, resourceID); err != nil {
		log.Debug("store fresh entry failed", "key", leafKey, "error", err)
	}

	return buildResponse(entry, req, responseTime, false, e.genOpts(), log)
}

// variantCandidate is one already-stored sibling leaf considered when a
// request's variant-key has no leaf of its own under an existing variant
// parent.
type variantCandidate struct {
	key        string
	entry      *CacheEntry
	resourceID string
}

// loadVariantCandidates loads every leaf parent currently indexes, in the
// order those variants were first stored. Leaves that fail to load or
// decode are skipped rather than failing the whole lookup.
func (e *Executor) loadVariantCandidates(ctx context.Context, parent *CacheEntry, log *slog.Logger) []variantCandidate {
	candidates := make([]variantCandidate, 0, len(parent.VariantOrder))
	for _, vk := range parent.VariantOrder {
		leafKey, ok := parent.Variants[vk]
		if !ok {
			continue
		}
		stored, err := e.storage.Load(ctx, leafKey)
		if err != nil {
			log.Debug("load variant candidate failed", "key", leafKey, "error", err)
			continue
		}
		leaf, resourceID, err := decodeEntry(stored.Data, nil)
		if err != nil {
			log.Debug("decode variant candidate failed", "key", leafKey, "error", err)
			continue
		}
		candidates = append(candidates, variantCandidate{key: leafKey, entry: leaf, resourceID: resourceID})
	}
	return candidates
}

// variantCandidateETags returns the ETag of every candidate that has one,
// in the same order the candidates were given.
func variantCandidateETags(candidates []variantCandidate) []string {
	etags := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if etag := c.entry.ETag(); etag != "" {
			etags = append(etags, etag)
		}
	}
	return etags
}

// matchVariantCandidate finds the candidate whose stored ETag strongly
// matches resp's ETag, if any.
func matchVariantCandidate(candidates []variantCandidate, resp *http.Response) (variantCandidate, bool) {
	respETag := resp.Header.Get("ETag")
	if respETag == "" {
		return variantCandidate{}, false
	}
	for _, c := range candidates {
		if strongETagMatch(respETag, c.entry.ETag()) {
			return c, true
		}
	}
	return variantCandidate{}, false
}

// updateVariantParent ensures the entry at parentKey is a variant parent
// mapping vk to leafKey, retrying on CAS conflict so a concurrent writer
// adding a different variant edge is never lost.
func (e *Executor) updateVariantParent(ctx context.Context, parentKey string, respHeader http.Header, fields []string, vk, leafKey string) error {
	return casRetry(ctx, e.storage, parentKey, e.cfg, func(current []byte, version string) ([]byte, bool, error) {
		var parent *CacheEntry
		if current != nil {
			existing, _, err := decodeEntry(current, nil)
			if err == nil && existing.IsVariantParent() {
				parent = existing
			}
		}
		if parent == nil {
			parent = &CacheEntry{
				Kind:     EntryVariantParent,
				Header:   stripHopByHop(respHeader.Clone()),
				Variants: map[string]string{},
			}
		}
		if parent.Variants == nil {
			parent.Variants = map[string]string{}
		}
		if _, exists := parent.Variants[vk]; !exists {
			parent.VariantOrder = append(parent.VariantOrder, vk)
		}
		parent.Variants[vk] = leafKey
		data, err := encodeEntry(parent, "")
		return data, true, err
	})
}

// passthroughResponse builds the response served when backendResp was not
// cacheable: the original response with its headers and a replayable copy
// of the body the caller already drained.
func passthroughResponse(req *http.Request, backendResp *http.Response, body []byte) *http.Response {
	header := stripHopByHop(backendResp.Header.Clone())
	resp := &http.Response{
		Status:        backendResp.Status,
		StatusCode:    backendResp.StatusCode,
		Proto:         backendResp.Proto,
		ProtoMajor:    backendResp.ProtoMajor,
		ProtoMinor:    backendResp.ProtoMinor,
		Header:        header,
		Request:       req,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
	return resp
}

// readLimitedBody reads r fully unless it exceeds limit (0 meaning
// unlimited), in which case it reports truncated=true and the caller must
// not treat the returned bytes as the complete body for storage purposes.
func readLimitedBody(r io.ReadCloser, limit int64) (data []byte, truncated bool, err error) {
	if limit <= 0 {
		data, err = io.ReadAll(r)
		return data, false, err
	}
	lr := io.LimitReader(r, limit+1)
	data, err = io.ReadAll(lr)
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		rest, _ := io.ReadAll(r)
		full := append(data, rest...)
		return full, true, nil
	}
	return data, false, nil
}
