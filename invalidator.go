package httpcache

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// invalidationTargets implements Invalidator (spec.md Section 4.9): the set
// of storage keys to remove after an unsafe method receives a non-error
// response. The primary key is always invalidated; Location and
// Content-Location targets are invalidated too, but only when they resolve
// to the same origin as the request, so a redirect to a third-party URI
// cannot be used to evict an unrelated cache entry.
func invalidationTargets(ctx *CallContext, req *http.Request, resp *http.Response) []string {
	keys := []string{primaryKey(ctx, req)}
	if resp == nil {
		return keys
	}
	for _, header := range []string{"Location", "Content-Location"} {
		value := resp.Header.Get(header)
		if value == "" {
			continue
		}
		target, err := req.URL.Parse(value)
		if err != nil {
			continue
		}
		if !sameOrigin(ctx, req, target) {
			continue
		}
		keys = append(keys, keyForURL(ctx, http.MethodGet, target))
	}
	return keys
}

func sameOrigin(ctx *CallContext, req *http.Request, target *url.URL) bool {
	scheme := requestScheme(req)
	host := requestHost(ctx, req)
	targetScheme := target.Scheme
	if targetScheme == "" {
		targetScheme = scheme
	}
	targetHost := target.Host
	if targetHost == "" {
		targetHost = host
	}
	return canonicalAuthority(targetScheme, targetHost) == canonicalAuthority(scheme, host) && targetScheme == scheme
}

// invalidate removes each key in keys from storage whose stored entry is
// "older" than resp (spec.md Section 4.8): the stored entry's Date must be
// strictly earlier than resp's Date, and, when both carry an ETag, those
// ETags must differ. A missing or unparsable Date on either side is
// treated conservatively and blocks the flush for that key. When a
// flushed entry is itself a variant parent, every variant leaf it
// indexes is flushed along with it, unconditionally. Per-key storage
// errors are logged, not failed.
func invalidate(ctxBg context.Context, storage Storage, keys []string, resp *http.Response) {
	log := GetLogger()
	respDate, respDateOK := responseDate(resp.Header)
	respETag := resp.Header.Get("ETag")

	for _, key := range keys {
		entry, flush := loadForInvalidation(ctxBg, storage, key, respDate, respDateOK, respETag, log)
		if !flush {
			continue
		}
		if err := storage.Delete(ctxBg, key); err != nil {
			log.Debug("invalidation delete failed", "key", key, "error", err)
		}
		if entry.IsVariantParent() {
			for _, childKey := range entry.Variants {
				if err := storage.Delete(ctxBg, childKey); err != nil {
					log.Debug("invalidation delete failed", "key", childKey, "error", err)
				}
			}
		}
	}
}

// loadForInvalidation loads the entry stored at key, if any, and reports
// whether it passes the "older than the response" gate and should be
// flushed. The entry is returned (even when err/not-found makes flush
// false) only when flush is true, since the caller needs it to enumerate
// variant children.
func loadForInvalidation(ctx context.Context, storage Storage, key string, respDate time.Time, respDateOK bool, respETag string, log *slog.Logger) (*CacheEntry, bool) {
	if !respDateOK {
		return nil, false
	}
	stored, err := storage.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		log.Debug("invalidation load failed", "key", key, "error", err)
		return nil, false
	}
	entry, _, err := decodeEntry(stored.Data, nil)
	if err != nil {
		log.Debug("invalidation decode failed", "key", key, "error", err)
		return nil, false
	}

	entryDate, entryDateOK := responseDate(entry.Header)
	if !entryDateOK || !entryDate.Before(respDate) {
		return nil, false
	}
	if entryETag := entry.ETag(); entryETag != "" && respETag != "" && entryETag == respETag {
		return nil, false
	}
	return entry, true
}
