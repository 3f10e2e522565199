package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bazarkua/molexa-api/internal/config"
	"github.com/bazarkua/molexa-api/internal/handler"
	"github.com/bazarkua/molexa-api/internal/logger"
	"github.com/bazarkua/molexa-api/internal/middleware"
	"github.com/bazarkua/molexa-api/internal/proxy"
	"github.com/bazarkua/molexa-api/internal/ratelimit"
	"github.com/bazarkua/molexa-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

const rolloverTimeout = 10 * time.Minute

type Server struct {
	router     *gin.Engine
	config     *config.Config
	components *Components
	auth       *service.AuthService
	proxies    []*proxy.Proxy
	cron       *cron.Cron
	log        logger.Logger
	httpServer *http.Server
	stopHub    context.CancelFunc
}

func New(cfg *config.Config, components *Components, log logger.Logger) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		config:     cfg,
		components: components,
		auth:       service.NewAuthService(cfg.Auth.AdminPasswordHash, cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryHours),
		cron:       cron.New(cron.WithLocation(time.UTC)),
		log:        log,
	}

	if err := s.initializeProxies(); err != nil {
		return nil, err
	}
	if err := s.scheduleRollover(); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()

	if !s.auth.Enabled() {
		log.Warn("Admin login disabled: set JWT_SECRET and MOLEXA_ADMIN_PASSWORD_HASH to enable it")
	}

	return s, nil
}

func (s *Server) initializeProxies() error {
	upstreams := []proxy.Config{
		{Name: "pubchem", Prefix: "/api/pubchem", Target: s.config.Upstreams.PubChem},
		{Name: "pugview", Prefix: "/api/pugview", Target: s.config.Upstreams.PugView},
		{Name: "autocomplete", Prefix: "/api/autocomplete", Target: s.config.Upstreams.Autocomplete},
	}

	for _, cfg := range upstreams {
		p, err := proxy.New(cfg, s.log)
		if err != nil {
			return err
		}

		s.proxies = append(s.proxies, p)
		s.log.Info("Initialized proxy",
			logger.String("prefix", cfg.Prefix),
			logger.String("target", cfg.Target))
	}

	return nil
}

func (s *Server) scheduleRollover() error {
	if !s.components.Analytics.Connected() {
		return nil
	}

	_, err := s.cron.AddFunc(s.config.Analytics.RolloverSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), rolloverTimeout)
		defer cancel()

		results, err := s.components.Analytics.Rollover(ctx)
		if errors.Is(err, service.ErrNotConfigured) {
			return
		}
		if err != nil {
			s.log.Error("Scheduled rollover failed", logger.Error(err))
			return
		}
		s.log.Info("Scheduled rollover finished", logger.Int("archived", len(results)))
	})

	return err
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.TrackAnalytics(s.components.Analytics))
	// Innermost, so a panicking handler is still logged and tracked as a 500
	s.router.Use(middleware.Recovery(s.log))
}

// Returns a nil interface when Redis is absent so the middleware skips throttling
func (s *Server) limiter(scope string, perMinute int) ratelimit.Limiter {
	if s.components.Redis == nil || perMinute <= 0 {
		return nil
	}
	return ratelimit.NewFixedWindow(s.components.Redis, scope, perMinute, time.Minute)
}

func (s *Server) setupRoutes() {
	analytics := s.components.Analytics

	var redisPinger handler.Pinger
	if s.components.Redis != nil {
		redisPinger = s.components.Redis
	}

	healthHandler := handler.NewHealthHandler(analytics, redisPinger)
	analyticsHandler := handler.NewAnalyticsHandler(analytics, s.components.Hub)
	streamHandler := handler.NewStreamHandler(s.components.Hub, s.log)
	adminHandler := handler.NewAdminHandler(s.auth, analytics)
	systemHandler := handler.NewSystemHandler(s.proxies)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.components.Registry, promhttp.HandlerOpts{})))

	api := s.router.Group("/api/analytics")
	{
		api.GET("/summary", analyticsHandler.GetSummary)
		api.GET("/recent", analyticsHandler.GetRecent)
		api.GET("/monthly/:period", analyticsHandler.GetMonthly)

		streamLimit := middleware.RateLimit(s.limiter("stream", s.config.RateLimit.StreamPerMinute), s.components.Hasher, s.log)
		api.GET("/stream", streamLimit, streamHandler.SSE)
		api.GET("/ws", streamLimit, streamHandler.WebSocket)
	}

	adminLimit := middleware.RateLimit(s.limiter("admin", s.config.RateLimit.AdminPerMinute), s.components.Hasher, s.log)
	s.router.POST("/admin/login", adminLimit, adminHandler.Login)

	admin := s.router.Group("/admin", adminLimit, middleware.RequireAuth(s.auth))
	{
		admin.POST("/analytics/archive/:period", adminHandler.Archive)
		admin.POST("/analytics/rollover", adminHandler.Rollover)
		admin.GET("/upstreams", systemHandler.CircuitBreakerStatus)
		admin.POST("/upstreams/:name/reset", systemHandler.ResetCircuitBreaker)
	}

	s.setupProxyRoutes()
}

func (s *Server) setupProxyRoutes() {
	for _, p := range s.proxies {
		s.router.Any("/api/"+p.Name()+"/*path", p.Handle)
		s.log.Info("Registered proxy route", logger.String("path", "/api/"+p.Name()))
	}
}

// Initializes analytics, starts background jobs and serves until Shutdown
func (s *Server) Run(ctx context.Context, addr string) error {
	s.components.Analytics.Initialize(ctx)

	hubCtx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.components.Hub.Run(hubCtx)

	s.cron.Start()

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: analytics streams stay open
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info("Starting molexa API",
		logger.String("addr", addr),
		logger.String("environment", s.config.Server.Environment),
		logger.Bool("database_connected", s.components.Analytics.Connected()))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server...")

	<-s.cron.Stop().Done()
	if s.stopHub != nil {
		s.stopHub()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	if closeErr := s.components.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
