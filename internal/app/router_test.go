package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/catalogsync/internal/fakeapi"
	"github.com/odyssey-erp/catalogsync/internal/observability"
	"github.com/odyssey-erp/catalogsync/internal/platform/httpx"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, cfg *Config) (http.Handler, *fakeapi.Store, *observability.Metrics) {
	t.Helper()
	store := fakeapi.NewStore(nil)
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		Logger:         quietLogger(),
		Config:         cfg,
		CatalogHandler: fakeapi.NewHandler(quietLogger(), store, 0),
		Metrics:        metrics,
	})
	return router, store, metrics
}

func TestRouterServesCatalogAndHealth(t *testing.T) {
	router, store, _ := newTestRouter(t, &Config{})
	store.Seed()

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products?limit=3", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Products   []json.RawMessage `json:"products"`
		Pagination struct {
			Limit int `json:"limit"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Products, 3)
	assert.Equal(t, 3, body.Pagination.Limit)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterUnknownRouteIsProblem(t *testing.T) {
	router, _, _ := newTestRouter(t, &Config{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusNotFound, problem.Status)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/products", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouterRateLimit(t *testing.T) {
	router, _, _ := newTestRouter(t, &Config{AppRateLimit: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRouterExposesMetrics(t *testing.T) {
	router, _, _ := newTestRouter(t, &Config{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/999", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"Product not found"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `catalog_http_requests_total{code="404",route="/products/{id}"} 1`))
}
