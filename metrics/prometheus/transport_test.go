package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sandrolain/httpcache"
)

func TestInstrumentedTransportRecordsHitAndMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	collector := NewCollectorWithRegistry(registry)

	transport := httpcache.NewTransport(http.DefaultTransport, newMockStorage())
	defer transport.Executor.Close()

	instrumented := NewInstrumentedTransport(transport, collector)
	client := instrumented.Client()

	resp1, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	resp1.Body.Close()

	resp2, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	resp2.Body.Close()
	if resp2.Header.Get(httpcache.XFromCache) != "1" {
		t.Fatal("second request should have been served from cache")
	}

	expected := `
		# HELP httpcache_http_requests_total Total number of HTTP requests
		# TYPE httpcache_http_requests_total counter
		httpcache_http_requests_total{cache_status="hit",method="GET",status_code="200"} 1
		httpcache_http_requests_total{cache_status="miss",method="GET",status_code="200"} 1
	`
	if err := testutil.CollectAndCompare(collector.httpRequests, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestInstrumentedTransportClient(t *testing.T) {
	transport := httpcache.NewTransport(http.DefaultTransport, newMockStorage())
	defer transport.Executor.Close()
	instrumented := NewInstrumentedTransport(transport, nil)

	client := instrumented.Client()
	if client.Transport != instrumented {
		t.Error("Client() should return an *http.Client wired to the instrumented transport")
	}
}
