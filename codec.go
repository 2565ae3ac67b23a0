package httpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Synthetic metadata headers used to round-trip CacheEntry fields that
// http.Response's wire format has no field for. These are stripped from
// the entry's real Header before it is ever handed back to a caller;
// ResponseGenerator never sees them.
const (
	metaRequestTime  = "X-Httpcache-Request-Time"
	metaResponseTime = "X-Httpcache-Response-Time"
	metaKind         = "X-Httpcache-Kind"
	metaResourceID   = "X-Httpcache-Resource-Id"
	metaResourceLen  = "X-Httpcache-Resource-Len"
	metaVariant      = "X-Httpcache-Variant" // repeated "variantKey storageKey" pairs, each side query-escaped
)

var metaHeaders = []string{
	metaRequestTime, metaResponseTime, metaKind, metaResourceID, metaResourceLen, metaVariant,
}

// encodeEntry serializes e to bytes using the HTTP/1.1 response wire format
// (status line + headers), the same representation http.ReadResponse
// parses back, with synthetic metadata headers appended for the fields a
// wire response has no room for. The entry's body is never included here:
// it is addressed separately via ResourceFactory and referenced by
// metaResourceID.
func encodeEntry(e *CacheEntry, resourceID string) ([]byte, error) {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(metaRequestTime, FormatHTTPDate(e.RequestTime))
	header.Set(metaResponseTime, FormatHTTPDate(e.ResponseTime))
	header.Set(metaKind, strconv.Itoa(int(e.Kind)))
	if resourceID != "" {
		header.Set(metaResourceID, resourceID)
	}
	if e.Body != nil {
		header.Set(metaResourceLen, strconv.FormatInt(e.Body.Len(), 10))
	}
	ordered := make(map[string]bool, len(e.VariantOrder))
	variantKeys := make([]string, 0, len(e.Variants))
	for _, variantKey := range e.VariantOrder {
		if _, ok := e.Variants[variantKey]; ok && !ordered[variantKey] {
			ordered[variantKey] = true
			variantKeys = append(variantKeys, variantKey)
		}
	}
	var unordered []string
	for variantKey := range e.Variants {
		if !ordered[variantKey] {
			unordered = append(unordered, variantKey)
		}
	}
	sort.Strings(unordered)
	for _, variantKey := range append(variantKeys, unordered...) {
		header.Add(metaVariant, url.QueryEscape(variantKey)+" "+url.QueryEscape(e.Variants[variantKey]))
	}

	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", e.Status, e.Reason),
		StatusCode: e.Status,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       http.NoBody,
	}

	raw, err := httputil.DumpResponse(resp, false)
	if err != nil {
		return nil, fmt.Errorf("httpcache: encode entry: %w", err)
	}
	return raw, nil
}

// decodeEntry parses bytes produced by encodeEntry back into a CacheEntry.
// body, if non-nil, is attached as the decoded entry's Body; pass nil for a
// variant-parent entry, which carries no body of its own.
func decodeEntry(raw []byte, body ResourceHandle) (*CacheEntry, string, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return nil, "", fmt.Errorf("httpcache: decode entry: %w", err)
	}
	defer resp.Body.Close()

	header := resp.Header.Clone()

	requestTime, _ := ParseHTTPDate(header.Get(metaRequestTime))
	responseTime, _ := ParseHTTPDate(header.Get(metaResponseTime))
	kind := EntryLeaf
	if k, err := strconv.Atoi(header.Get(metaKind)); err == nil {
		kind = EntryKind(k)
	}
	resourceID := header.Get(metaResourceID)

	var variants map[string]string
	var variantOrder []string
	for _, v := range header.Values(metaVariant) {
		escapedVariant, escapedStorage, found := strings.Cut(v, " ")
		if !found {
			continue
		}
		variantKey, err1 := url.QueryUnescape(escapedVariant)
		storageKey, err2 := url.QueryUnescape(escapedStorage)
		if err1 != nil || err2 != nil {
			continue
		}
		if variants == nil {
			variants = map[string]string{}
		}
		if _, exists := variants[variantKey]; !exists {
			variantOrder = append(variantOrder, variantKey)
		}
		variants[variantKey] = storageKey
	}

	for _, h := range metaHeaders {
		header.Del(h)
	}

	status, reason, _ := strings.Cut(resp.Status, " ")
	_ = status

	e := &CacheEntry{
		Kind:         kind,
		RequestTime:  requestTime,
		ResponseTime: responseTime,
		Status:       resp.StatusCode,
		Reason:       reason,
		Header:       header,
		Body:         body,
		Variants:     variants,
		VariantOrder: variantOrder,
	}
	return e, resourceID, nil
}
