package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/bazarkua/molexa-api/internal/circuitbreaker"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/gin-gonic/gin"
)

var errUpstreamStatus = errors.New("upstream returned a server error")

// Forwards one route prefix to a single PubChem upstream
type Proxy struct {
	name           string
	prefix         string
	target         *url.URL
	reverse        *httputil.ReverseProxy
	circuitBreaker *circuitbreaker.CircuitBreaker
	log            logger.Logger
}

type Config struct {
	Name           string // e.g. "pubchem"
	Prefix         string // stripped from the inbound path, e.g. "/api/pubchem"
	Target         string // upstream base URL
	Timeout        time.Duration
	CircuitBreaker circuitbreaker.Config
}

func New(cfg Config, log logger.Logger) (*Proxy, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %s: %w", cfg.Name, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %s: %q is not an absolute URL", cfg.Name, cfg.Target)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	log = log.WithFields(logger.String("upstream", cfg.Name))

	cbCfg := cfg.CircuitBreaker
	cbCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("Circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}

	p := &Proxy{
		name:           cfg.Name,
		prefix:         strings.TrimSuffix(cfg.Prefix, "/"),
		target:         target,
		circuitBreaker: circuitbreaker.New(cbCfg),
		log:            log,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	p.reverse = &httputil.ReverseProxy{
		Rewrite:      p.rewrite,
		Transport:    transport,
		ErrorHandler: p.handleError,
	}

	return p, nil
}

func (p *Proxy) rewrite(r *httputil.ProxyRequest) {
	path := strings.TrimPrefix(r.In.URL.Path, p.prefix)
	if path == "" {
		path = "/"
	}

	r.Out.URL.Path = path
	r.Out.URL.RawPath = ""
	r.SetURL(p.target)
	r.SetXForwarded()
	r.Out.Host = p.target.Host
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.log.Warn("Upstream request failed", logger.Error(err))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	fmt.Fprint(w, `{"error":"Upstream request failed"}`)
}

// Forwards the request to the upstream
func (p *Proxy) Handle(c *gin.Context) {
	err := p.circuitBreaker.Call(func() error {
		c.Header("X-Upstream", p.name)
		p.reverse.ServeHTTP(c.Writer, c.Request)

		if c.Writer.Status() >= http.StatusInternalServerError {
			return errUpstreamStatus
		}
		return nil
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "Service temporarily unavailable",
			"upstream": p.name,
		})
	}
}

func (p *Proxy) Name() string {
	return p.name
}

func (p *Proxy) Target() string {
	return p.target.String()
}

func (p *Proxy) CircuitBreakerMetrics() circuitbreaker.Metrics {
	return p.circuitBreaker.Metrics()
}

// Manually resets the circuit breaker
func (p *Proxy) ResetCircuitBreaker() {
	p.circuitBreaker.Reset()
}
