// Package api implements the read-only HTTP API over scan results.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ishaqmohammed8765-png/flipscan/internal/config"
	"github.com/ishaqmohammed8765-png/flipscan/internal/database"
	"github.com/ishaqmohammed8765-png/flipscan/internal/logger"
	"github.com/ishaqmohammed8765-png/flipscan/internal/scan"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
	defaultOppLimit   = 50
	maxOppLimit       = 200
)

// SummarySource exposes the most recent scan cycle summary, if any.
// *schedule.Manager satisfies it.
type SummarySource interface {
	LastSummary() *scan.Summary
}

// Server serves stored targets, opportunities and scan summaries. It
// never writes; mutations go through the CLI and the scan pipeline.
type Server struct {
	store     *database.Store
	summaries SummarySource
	settings  *config.Settings
	log       logger.Interface
}

// NewServer creates an API server. summaries may be nil when no
// scheduler runs in the same process.
func NewServer(store *database.Store, summaries SummarySource, settings *config.Settings, log logger.Interface) *Server {
	return &Server{
		store:     store,
		summaries: summaries,
		settings:  settings,
		log:       log.WithComponent("api"),
	}
}

// Router builds the gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(s.log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	apiGroup.GET("/opportunities", s.handleOpportunities)
	apiGroup.GET("/targets", s.handleTargets)
	apiGroup.GET("/targets/:name/listings", s.handleTargetListings)
	apiGroup.GET("/summary", s.handleSummary)

	return router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.ServerAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loggingMiddleware logs each request with latency and status.
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String())
	}
}
