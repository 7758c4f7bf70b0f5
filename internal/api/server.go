// Package api exposes the review workflow over HTTP for dashboard and
// integration consumers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ledgerlink/ledgerlink/internal/adaptive"
	"github.com/ledgerlink/ledgerlink/internal/engine"
	"github.com/ledgerlink/ledgerlink/internal/service"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	storage    service.Storage
	engine     *engine.MatchingEngine
	models     *adaptive.Store
}

// NewServer creates a new API server.
func NewServer(cfg Config, storage service.Storage, eng *engine.MatchingEngine, models *adaptive.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		config:  cfg,
		router:  router,
		logger:  logger,
		storage: storage,
		engine:  eng,
		models:  models,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check stays unprefixed for load balancers.
	s.router.GET("/health", s.getHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/documents/pending", s.getPendingDocuments)
		v1.GET("/documents/search", s.searchDocuments)
		v1.GET("/documents/:id", s.getDocument)
		v1.POST("/documents", s.createDocument)
		v1.POST("/documents/:id/corrections", s.createCorrection)

		v1.GET("/audit", s.getAudit)

		v1.GET("/models", s.getModels)
		v1.POST("/models/:version/rollback", s.rollbackModel)

		v1.GET("/stats", s.getStats)
	}
}

// Router returns the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}
