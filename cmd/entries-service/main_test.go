package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medrex/glucose-tracker/internal/entries"
	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, limiter *entries.WriteLimiter) *httptest.Server {
	t.Helper()
	cfg, err := config.LoadFrom(viper.New())
	require.NoError(t, err)

	metrics := monitoring.NewMetricsCollector("entries-service-test")
	svc := entries.NewService(entries.NewMemoryRepository(), cfg.Recommendations, logger.Discard(), metrics)
	srv := httptest.NewServer(newRouter(cfg, svc, logger.Discard(), metrics, monitoring.NewHealthManager(serviceName), limiter))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_EntriesHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/entries", "application/json",
		strings.NewReader(`{"value": 120, "timestamp": "2024-03-01T08:00:00Z", "punctureSpot": "L2R"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/entries?sortBy=time-asc&page=1&size=5")
	require.NoError(t, err)
	var items []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	resp.Body.Close()
	assert.Len(t, items, 1)
	assert.Equal(t, "1", resp.Header.Get("X-Total-Count"))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/entries", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRouter_WriteLimit(t *testing.T) {
	srv := newTestServer(t, entries.NewWriteLimiter(1, time.Hour))

	post := func() int {
		resp, err := http.Post(srv.URL+"/api/entries", "application/json",
			strings.NewReader(`{"value": 100, "timestamp": "2024-03-01T08:00:00Z"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusCreated, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	resp, err := http.Get(srv.URL + "/api/entries")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
