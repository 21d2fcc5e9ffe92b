package entries

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() *mux.Router {
	svc := NewService(NewMemoryRepository(), config.RecommendationConfig{Count: 2, Lookback: 20}, logger.Discard(), monitoring.NewMetricsCollector("handlers-test"))
	router := mux.NewRouter()
	NewHandler(svc, logger.Discard(), "X-Total-Count").RegisterRoutes(router)
	return router
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateListDelete(t *testing.T) {
	router := newTestRouter()

	rec := do(t, router, http.MethodPost, "/api/entries", `{"value":120,"timestamp":"2024-03-01T08:00:00.000Z","description":"fasting","punctureSpot":"R2L"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, float64(120), created["value"])
	assert.Equal(t, "fasting", created["description"])
	assert.Equal(t, "R2L", created["punctureSpot"])

	do(t, router, http.MethodPost, "/api/entries", `{"value":95,"timestamp":"2024-03-01T09:00:00Z"}`)

	rec = do(t, router, http.MethodGet, "/api/entries?sortBy=value-asc&page=1&size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var listed []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed, 2)
	assert.Equal(t, float64(95), listed[0]["value"])
	_, hasSpot := listed[0]["punctureSpot"]
	assert.False(t, hasSpot)

	rec = do(t, router, http.MethodDelete, "/api/entries/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/entries/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListDefaults(t *testing.T) {
	router := newTestRouter()

	rec := do(t, router, http.MethodGet, "/api/entries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Total-Count"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandler_RejectsBadInput(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/entries", `{"value":`, "INVALID_INPUT"},
		{"non positive value", http.MethodPost, "/api/entries", `{"value":0,"timestamp":"2024-03-01T08:00:00Z"}`, "VALIDATION_FAILED"},
		{"bad site", http.MethodPost, "/api/entries", `{"value":1,"timestamp":"2024-03-01T08:00:00Z","punctureSpot":"X1L"}`, "VALIDATION_FAILED"},
		{"bad sort", http.MethodGet, "/api/entries?sortBy=random", "", "INVALID_INPUT"},
		{"bad page", http.MethodGet, "/api/entries?page=two", "", "INVALID_INPUT"},
		{"zero size", http.MethodGet, "/api/entries?size=0", "", "INVALID_INPUT"},
		{"page past the offset range", http.MethodGet, "/api/entries?page=92233720368547759&size=100", "", "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandler_RecommendedSpots(t *testing.T) {
	router := newTestRouter()
	do(t, router, http.MethodPost, "/api/entries", `{"value":100,"timestamp":"2024-03-01T08:00:00Z","punctureSpot":"L1L"}`)

	rec := do(t, router, http.MethodGet, "/api/entries/recommended-spots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["L1R","L2L"]`, rec.Body.String())
}
