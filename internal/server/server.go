// Package server provides the administrative REST API
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/internal/authorizer"
	"github.com/broker-authz/go-core/internal/metrics"
	"github.com/broker-authz/go-core/internal/principal"
	"github.com/broker-authz/go-core/internal/store"
)

// Config configures the REST server
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default REST server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server exposes authorization and ACL management over HTTP
type Server struct {
	authz    authorizer.Authorizer
	store    store.Store
	resolver principal.Resolver
	metrics  *metrics.Metrics
	logger   *zap.Logger

	router     *gin.Engine
	httpServer *http.Server
}

// New creates a REST server over the given authorizer
func New(cfg Config, authz authorizer.Authorizer, s store.Store, resolver principal.Resolver, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if authz == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if s == nil {
		return nil, fmt.Errorf("binding store is required")
	}
	if resolver == nil {
		resolver = principal.NewDefaultResolver("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		authz:    authz,
		store:    s,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
		router:   router,
	}
	srv.registerRoutes()

	srv.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func (s *Server) registerRoutes() {
	s.router.Use(s.requestLogger())

	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/readyz", s.handleReadyz)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.HTTPHandler()))
	}

	v1 := s.router.Group("/v1")
	v1.POST("/authorize", s.handleAuthorize)
	v1.POST("/authorize/batch", s.handleAuthorizeBatch)
	v1.GET("/acls", s.handleListAcls)
	v1.POST("/acls", s.handleAddAcls)
	v1.DELETE("/acls", s.handleRemoveAcls)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}

// Start begins serving. It blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("REST server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("REST server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
