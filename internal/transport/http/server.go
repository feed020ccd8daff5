// Package http implements the oneM2M HTTP binding: the `X-M2M-*` header
// contract over GET/POST/PUT/DELETE, status-code mapping via
// model.ResponseStatusCode.HTTPStatus(), and the gin-based server
// infrastructure (middleware, graceful shutdown, metrics) grounded on the
// teacher's internal/server/server.go.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/config"
	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/observability"
	"github.com/onem2m/acme-cse/internal/requestmanager"
)

// Server is the oneM2M HTTP binding: a Gin router fronting a Dispatcher,
// with the same middleware stack and lifecycle shape as the teacher's
// O2-IMS server (recovery, logging, metrics, CORS, rate limiting, and
// signal-driven graceful shutdown).
type Server struct {
	config         *config.Config
	dispatcher     *dispatcher.Dispatcher
	requestManager *requestmanager.Manager
	logger         *zap.Logger
	router         *gin.Engine
	httpServer     *http.Server
	metrics        *Metrics
	health         *observability.HealthChecker
}

// Metrics holds Prometheus metrics for the server.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
}

// New creates a Server wired to d and rm, following the CSE's configured
// middleware and route table. Incoming requests are dissected via rm
// (spec.md §4.6) and their paths resolved to a `ri` (and any trailing
// virtual suffix) via d.ResolveAddress, per spec.md §4.7.
func New(cfg *config.Config, d *dispatcher.Dispatcher, rm *requestmanager.Manager, logger *zap.Logger) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if d == nil {
		panic("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rm == nil {
		rm = requestmanager.New(nil, cfg.CSE.SupportedReleaseVersions, nil, logger)
	}

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	metrics := initMetrics(cfg)

	s := &Server{config: cfg, dispatcher: d, requestManager: rm, logger: logger, router: router, metrics: metrics}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func initMetrics(cfg *config.Config) *Metrics {
	if !cfg.Observability.Metrics.Enabled {
		return nil
	}

	namespace := cfg.Observability.Metrics.Namespace
	subsystem := cfg.Observability.Metrics.Subsystem

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "http_requests_total", Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "http_requests_active", Help: "Number of active HTTP requests",
			},
		),
	}

	prometheus.MustRegister(m.RequestsTotal, m.RequestDuration, m.ActiveRequests)
	return m
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.loggingMiddleware())
	if s.config.Observability.Metrics.Enabled {
		s.router.Use(s.metricsMiddleware())
	}
	if s.config.Security.EnableCORS {
		s.router.Use(s.corsMiddleware())
	}
	if s.config.Security.RateLimitEnabled {
		s.router.Use(s.rateLimitMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	if s.config.Observability.Metrics.Enabled {
		s.router.GET(s.config.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	s.router.GET("/*path", s.handleRetrieve)
	s.router.POST("/*path", s.handleCreate)
	s.router.PUT("/*path", s.handleUpdate)
	s.router.DELETE("/*path", s.handleDelete)
}

// Router returns the underlying Gin router, for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until shutdown, mirroring the
// teacher's signal-driven graceful-shutdown lifecycle.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting HTTP server", zap.String("address", addr), zap.String("mode", s.config.Server.GinMode))

		var err error
		if s.config.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		return s.Shutdown()
	}
}

// Shutdown gracefully shuts the server down within the configured timeout.
func (s *Server) Shutdown() error {
	s.logger.Info("initiating graceful shutdown", zap.Duration("timeout", s.config.Server.ShutdownTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during shutdown", zap.Error(err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.String("client_ip", c.ClientIP()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("originator", c.GetHeader(headerOrigin)),
		)

		for _, e := range c.Errors {
			s.logger.Error("request error", zap.Error(e.Err))
		}
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		s.metrics.ActiveRequests.Inc()
		defer s.metrics.ActiveRequests.Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", c.Writer.Status())

		s.metrics.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		s.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := len(s.config.Security.AllowedOrigins) == 0
		for _, allowedOrigin := range s.config.Security.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", joinStrings(s.config.Security.AllowedHeaders, ", "))
			c.Writer.Header().Set("Access-Control-Allow-Methods", joinStrings(s.config.Security.AllowedMethods, ", "))
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// rateLimitMiddleware implements rate limiting for HTTP requests.
// TODO: back this with the per-originator Redis token bucket described in
// SPEC_FULL.md's rate-limiting section; for now requests pass through.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
	}
}

// SetHealthChecker wires health/readiness reporting onto /health and
// /ready, replacing the static ok/ready stub once the caller has
// registered component checks (Redis, MQTT broker, ...).
func (s *Server) SetHealthChecker(hc *observability.HealthChecker) {
	s.health = hc
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	s.health.HealthHandler()(c.Writer, c.Request)
}

func (s *Server) handleReady(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	s.health.ReadinessHandler()(c.Writer, c.Request)
}

func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for i := 1; i < len(strs); i++ {
		result += sep + strs[i]
	}
	return result
}
