package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_IndependentRegistries(t *testing.T) {
	a := NewMetricsCollector("a")
	b := NewMetricsCollector("b")

	a.RecordStoreRequest("list", "success", 10*time.Millisecond)
	a.RecordStoreRequest("list", "success", 20*time.Millisecond)
	a.RecordStaleResponse()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.StoreRequests("list", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.StaleResponses()))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.StoreRequests("list", "success")))
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector("entries-service")
	m.RecordReading("created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `readings_total{action="created",service="entries-service"} 1`)
}

func TestHTTPMiddleware_LabelsRouteTemplate(t *testing.T) {
	metrics := NewMetricsCollector("svc")
	mw := NewMonitoringMiddleware(metrics, NewTracingManager("svc"), logger.Discard())

	router := mux.NewRouter()
	router.Use(mw.HTTPMiddleware)
	router.HandleFunc("/api/entries/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/entries/17", nil)
	req.Header.Set("X-Request-ID", "abc")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	body := scrape(t, metrics)
	assert.Contains(t, body, `endpoint="/api/entries/{id}"`)
	assert.NotContains(t, body, `endpoint="/api/entries/17"`)
}

func TestHTTPMiddleware_GeneratesRequestID(t *testing.T) {
	mw := NewMonitoringMiddleware(NewMetricsCollector("svc"), NewTracingManager("svc"), logger.Discard())

	var seen string
	h := mw.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestDatabaseMiddleware_PropagatesError(t *testing.T) {
	mw := NewMonitoringMiddleware(NewMetricsCollector("svc"), NewTracingManager("svc"), logger.Discard())
	wrap := mw.DatabaseMiddleware("insert", "glucose_entries")

	boom := errors.New("boom")
	err := wrap(context.Background(), func() (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	err = wrap(context.Background(), func() (int64, error) { return 1, nil })
	assert.NoError(t, err)
}

func TestHealthManager_AggregatesStatus(t *testing.T) {
	hm := NewHealthManager("svc")
	hm.RegisterChecker("ok", CheckerFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy}
	}))
	hm.RegisterChecker("slow", CheckerFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusDegraded}
	}))

	report := hm.CheckHealth(context.Background())
	assert.Equal(t, HealthStatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "ok", report.Checks[0].Name)
	assert.Equal(t, 1, report.Summary["degraded"])

	hm.RegisterChecker("down", CheckerFunc(func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusUnhealthy}
	}))
	rec := httptest.NewRecorder()
	hm.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var decoded HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decoded))
	assert.Equal(t, HealthStatusUnhealthy, decoded.Status)
}

func TestHTTPHealthChecker(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	checker := NewHTTPHealthChecker(srv.URL+"/health", time.Second)
	assert.Equal(t, HealthStatusHealthy, checker.Check(context.Background()).Status)

	status.Store(http.StatusNotFound)
	assert.Equal(t, HealthStatusDegraded, checker.Check(context.Background()).Status)

	status.Store(http.StatusBadGateway)
	assert.Equal(t, HealthStatusUnhealthy, checker.Check(context.Background()).Status)

	srv.Close()
	assert.Equal(t, HealthStatusUnhealthy, checker.Check(context.Background()).Status)
}

func scrape(t *testing.T, m *MetricsCollector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return strings.TrimSpace(rec.Body.String())
}
