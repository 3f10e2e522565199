package proxy

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bazarkua/molexa-api/internal/circuitbreaker"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, upstream string, cb circuitbreaker.Config) (*gin.Engine, *Proxy) {
	t.Helper()

	p, err := New(Config{
		Name:           "pubchem",
		Prefix:         "/api/pubchem",
		Target:         upstream,
		CircuitBreaker: cb,
	}, logger.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.Any("/api/pubchem/*path", p.Handle)
	return r, p
}

func TestProxy_StripsPrefixAndKeepsQuery(t *testing.T) {
	seen := make(chan *http.Request, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(r.Context())
		w.Write([]byte(`{"PropertyTable":{}}`))
	}))
	defer upstream.Close()

	r, _ := newRouter(t, upstream.URL+"/rest/pug", circuitbreaker.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/pubchem/compound/name/aspirin/JSON?record_type=2d", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	got := <-seen
	assert.Equal(t, "/rest/pug/compound/name/aspirin/JSON", got.URL.Path)
	assert.Equal(t, "record_type=2d", got.URL.RawQuery)
	assert.NotEmpty(t, got.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "pubchem", w.Header().Get("X-Upstream"))
}

func TestProxy_OpensCircuitOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	r, p := newRouter(t, upstream.URL, circuitbreaker.Config{MaxFailures: 2})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pubchem/compound/cid/1/JSON", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, circuitbreaker.StateOpen, p.CircuitBreakerMetrics().State)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pubchem/compound/cid/1/JSON", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "temporarily unavailable")
	assert.Equal(t, int32(2), calls.Load())

	p.ResetCircuitBreaker()
	assert.Equal(t, circuitbreaker.StateClosed, p.CircuitBreakerMetrics().State)
}

func TestProxy_UnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	r, p := newRouter(t, addr, circuitbreaker.Config{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pubchem/compound/cid/1/JSON", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 1, p.CircuitBreakerMetrics().FailureCount)
}

func TestNew_InvalidTarget(t *testing.T) {
	_, err := New(Config{Name: "x", Target: "not a url"}, logger.NewNop())
	assert.Error(t, err)
}
