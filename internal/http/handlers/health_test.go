package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/streamwatch/internal/http/handlers"
	"github.com/angelstreet/streamwatch/internal/service/monitor"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

func TestGetHealth(t *testing.T) {
	breakers := httpclient.NewCircuitBreakerManager()
	breakers.GetOrCreate("playlist")

	hub := monitor.NewHub(10, quietLogger())
	defer hub.Close()

	handler := handlers.NewHealthHandler("1.2.3").
		WithCircuitBreakerManager(breakers).
		WithSessionManager(newTestManager(t)).
		WithEventHub(hub)

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handler.Register(api)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.NotEmpty(t, body.Uptime)
	require.Len(t, body.Components.CircuitBreakers, 1)
	assert.Equal(t, "playlist", body.Components.CircuitBreakers[0].Name)
	// No DB wired in this test: the check reports unknown, not an error.
	assert.Equal(t, "unknown", body.Components.Database.Status)
}

func TestGetVersion(t *testing.T) {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewVersionHandler().Register(api)

	req := httptest.NewRequest("GET", "/api/v1/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "go_version")
}

func TestGetSystemStats(t *testing.T) {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewSystemHandler().Register(api)

	req := httptest.NewRequest("GET", "/api/v1/system/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.SystemStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotZero(t, body.Runtime.Goroutines)
	assert.NotEmpty(t, body.Runtime.GoVersion)
}
