package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionCounters(t *testing.T) {
	m := NewMetrics()

	m.DecisionRecorded("deny", false)
	m.DecisionRecorded("legacy_role", true)
	m.DecisionRecorded("legacy_role", true)

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("legacy_role", "granted")); got != 2 {
		t.Fatalf("granted legacy_role = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("deny", "denied")); got != 1 {
		t.Fatalf("denied deny = %v, want 1", got)
	}
}

func TestCacheCounters(t *testing.T) {
	m := NewMetrics()

	m.PermissionCacheMiss()
	m.PermissionCacheHit()
	m.PermissionCacheHit()

	if got := testutil.ToFloat64(m.cacheHits); got != 2 {
		t.Fatalf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 1 {
		t.Fatalf("misses = %v, want 1", got)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things", nil))

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("unknown", "418")); got != 1 {
		t.Fatalf("requests = %v, want 1", got)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.DecisionRecorded("abac", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "veridian_permission_decisions_total") {
		t.Fatal("decision counter missing from exposition")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.DecisionRecorded("abac", true)
	m.PermissionCacheHit()
	m.PermissionCacheMiss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
