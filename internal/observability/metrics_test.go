package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `labconsole_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `labconsole_http_request_duration_seconds_bucket{route="/test"`)
}

func TestObserveDecision(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("tests.", "allowed")
	metrics.ObserveDecision("tests.", "allowed")
	metrics.ObserveDecision("doctor.edit", "denied")

	body := scrape(t, metrics)
	assert.Contains(t, body, `labconsole_authz_decisions_total{gate="tests.",outcome="allowed"} 2`)
	assert.Contains(t, body, `labconsole_authz_decisions_total{gate="doctor.edit",outcome="denied"} 1`)
}

func TestObserveBackend(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveBackend(http.MethodGet, http.StatusUnauthorized, 20*time.Millisecond)
	metrics.ObserveBackend(http.MethodPost, 0, time.Second)

	body := scrape(t, metrics)
	assert.Contains(t, body, `labconsole_backend_requests_total{code="401",method="GET"} 1`)
	assert.Contains(t, body, `labconsole_backend_requests_total{code="error",method="POST"} 1`)
	assert.Contains(t, body, `labconsole_backend_request_duration_seconds_count{method="GET"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision("x", "denied")
	metrics.ObserveBackend(http.MethodGet, 200, time.Millisecond)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rr := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
