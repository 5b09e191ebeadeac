package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	m := New()

	m.CacheHitsTotal.Inc()
	m.CacheMissesTotal.Inc()
	m.CacheInvalidationsTotal.WithLabelValues("Recipient").Inc()
	m.PollTicksTotal.WithLabelValues("Campaign").Inc()
	m.ObserveBackendRequest(http.MethodGet, 200, 10*time.Millisecond)
	m.HTTPRequestsTotal.WithLabelValues("GET", "/campaigns", "200").Inc()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	want := map[string]bool{
		"mailward_cache_hits_total":                false,
		"mailward_cache_misses_total":              false,
		"mailward_cache_invalidations_total":       false,
		"mailward_poll_ticks_total":                false,
		"mailward_backend_requests_total":          false,
		"mailward_backend_request_duration_seconds": false,
		"mailward_http_requests_total":             false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestObserveBackendRequestLabels(t *testing.T) {
	m := New()

	m.ObserveBackendRequest(http.MethodPost, 403, time.Millisecond)
	m.ObserveBackendRequest(http.MethodGet, 0, time.Millisecond)

	if v := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("POST", "403")); v != 1 {
		t.Errorf("POST/403 count = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("GET", "transport_error")); v != 1 {
		t.Errorf("GET/transport_error count = %v, want 1", v)
	}
}

func TestHandlerServesScrape(t *testing.T) {
	m := New()
	m.CacheHitsTotal.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "mailward_cache_hits_total") {
		t.Error("scrape output missing cache hit counter")
	}
	if !strings.Contains(string(body), "mailward_uptime_seconds") {
		t.Error("scrape output missing uptime gauge")
	}
}

func TestGlobalHelpersTolerateNil(t *testing.T) {
	SetGlobal(nil)

	// Must not panic with no global instance.
	IncCacheHit()
	IncCacheMiss()
	IncInvalidation("Recipient")
	IncPollTick("Campaign")
	IncHTTPErrors("server_error")

	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncCacheHit()
	if v := testutil.ToFloat64(m.CacheHitsTotal); v != 1 {
		t.Errorf("cache hits = %v, want 1", v)
	}
}
