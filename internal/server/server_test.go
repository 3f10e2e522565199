package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bazarkua/molexa-api/internal/config"
	"github.com/bazarkua/molexa-api/internal/eventstore"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	components, err := Build(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { components.Close(context.Background()) })

	srv, err := New(cfg, components, log)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.GetRouter().ServeHTTP(w, req)
	return w
}

func TestBuildMemoryOnly(t *testing.T) {
	components, err := Build(context.Background(), config.Default(), logger.NewNop())
	require.NoError(t, err)
	defer components.Close(context.Background())

	assert.Nil(t, components.Postgres)
	assert.Nil(t, components.Redis)
	assert.False(t, components.Analytics.Connected())
	assert.NotNil(t, components.Hub)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, config.Default())

	w := serve(srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["databaseConnected"])
	assert.Equal(t, "disabled", health["redis"])

	w = serve(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "molexa_analytics_requests_skipped_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestProxiedRequestIsTracked(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Upstreams.PubChem = upstream.URL
	srv := newTestServer(t, cfg)

	w := serve(srv, http.MethodGet, "/api/pubchem/compound/name/aspirin/JSON")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path":"/compound/name/aspirin/JSON"}`, w.Body.String())

	w = serve(srv, http.MethodGet, "/api/analytics/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		TotalRequests int64 `json:"totalRequests"`
		TopTypes      []eventstore.Count `json:"topTypes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, int64(1), summary.TotalRequests)
	require.Len(t, summary.TopTypes, 1)
	assert.Equal(t, "Compound Search", summary.TopTypes[0].Name)
}

func TestPanickingHandlerIsTracked(t *testing.T) {
	srv := newTestServer(t, config.Default())
	srv.GetRouter().GET("/api/educational/:name", func(c *gin.Context) {
		panic("boom")
	})

	w := serve(srv, http.MethodGet, "/api/educational/aspirin")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	recent := srv.components.Analytics.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, "/api/educational/aspirin", recent[0].Endpoint)
	assert.Equal(t, http.StatusInternalServerError, recent[0].StatusCode)
}

func TestMonthlyWithoutDatabase(t *testing.T) {
	srv := newTestServer(t, config.Default())

	w := serve(srv, http.MethodGet, "/api/analytics/monthly/2025-01")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, config.Default())

	for _, path := range []string{"/admin/analytics/archive/2025-01", "/admin/analytics/rollover", "/admin/upstreams/pubchem/reset"} {
		w := serve(srv, http.MethodPost, path)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := serve(srv, http.MethodGet, "/admin/upstreams")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvalidUpstream(t *testing.T) {
	cfg := config.Default()
	cfg.Upstreams.PugView = "not a url"

	components, err := Build(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer components.Close(context.Background())

	_, err = New(cfg, components, logger.NewNop())
	assert.Error(t, err)
}

func TestNewArchiveStore(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Dir = t.TempDir()

	store, err := newArchiveStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "file", store.Name())

	cfg.Archive.Backend = "ftp"
	_, err = newArchiveStore(context.Background(), cfg)
	assert.Error(t, err)
}
