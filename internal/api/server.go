// Package api exposes scanning and scan history over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/core"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/rules"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/scoring"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Version is reported by /health.
var Version = "dev"

// Scanner is the part of scanner.Scanner the API needs.
type Scanner interface {
	Scan(ctx context.Context, rawURL, userID string) (*types.ScanResult, error)
	Catalogue() *rules.Catalogue
	Policy() scoring.Policy
}

type Server struct {
	cfg     config.ServerConfig
	scanner Scanner
	store   core.ScanStore
	logger  *logger.Logger
	router  *gin.Engine
	http    *http.Server
}

// NewServer builds the router. store may be nil, in which case history
// endpoints answer 503.
func NewServer(cfg *config.Config, scanner Scanner, store core.ScanStore, log *logger.Logger) (*Server, error) {
	if scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if cfg.Security.APIKey == "" {
		return nil, fmt.Errorf("API key not configured: set SAFELINK_SECURITY_API_KEY or security.api_key in the config file")
	}

	s := &Server{
		cfg:     cfg.Server,
		scanner: scanner,
		store:   store,
		logger:  log.WithComponent("api-server"),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware(s.logger))
	if cfg.Server.EnableCORS {
		router.Use(CORSMiddleware())
	}

	router.GET("/health", s.health)

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.Security.APIKey, s.logger))
	v1.Use(RateLimitMiddleware(cfg.Security.RateLimit))
	v1.Use(UserMiddleware())
	{
		v1.POST("/scan", s.scan)
		v1.GET("/scans", s.listScans)
		v1.GET("/scans/:id", s.getScan)
		v1.DELETE("/scans/:id", s.deleteScan)
		v1.GET("/trend", s.trend)
		v1.GET("/rules", s.listRules)
	}

	s.router = router

	s.logger.Infow("API routes registered",
		"endpoints", []string{
			"GET /health",
			"POST /api/v1/scan",
			"GET /api/v1/scans",
			"GET /api/v1/scans/:id",
			"DELETE /api/v1/scans/:id",
			"GET /api/v1/trend",
			"GET /api/v1/rules",
		},
		"history", store != nil,
	)
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down within the grace
// period.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErrors := make(chan error, 1)
	go func() {
		tls := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
		s.logger.Infow("HTTP server listening", "address", addr, "tls", tls)
		if tls {
			serverErrors <- s.http.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			serverErrors <- s.http.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Infow("Shutting down HTTP server", "grace", grace.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Infow("Server shutdown complete")
		return nil
	}
}
