// Package api exposes job submission and control over HTTP.
package api

//go:generate mockgen -source=server.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"creator_sync/internal/config"
	"creator_sync/internal/domain"
	"creator_sync/internal/service"
)

type JobService interface {
	CreateJob(ctx context.Context, req service.NewJobRequest) (*domain.JobRecord, error)
	CreateRescrapeJob(ctx context.Context, req service.RescrapeRequest) (*domain.JobRecord, error)
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	List(ctx context.Context, limit int) ([]*domain.JobRecord, error)
	Stats(ctx context.Context) (map[domain.JobStatus]int, error)
	Cancel(ctx context.Context, id string) (*domain.JobRecord, error)
	Pause(ctx context.Context, id string) (*domain.JobRecord, error)
	Resume(ctx context.Context, id string) (*domain.JobRecord, error)
}

// Pinger is a dependency the health endpoint reports on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type Server struct {
	jobs   JobService
	checks map[string]Pinger
	cfg    config.HTTPConfig
	logger *slog.Logger
}

func NewServer(cfg config.HTTPConfig, jobs JobService, checks map[string]Pinger, logger *slog.Logger) *Server {
	return &Server{
		jobs:   jobs,
		checks: checks,
		cfg:    cfg,
		logger: logger.With("component", "api"),
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	origins := s.cfg.AllowedOrigins
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", s.health)
	router.GET("/stats", s.stats)

	jobs := router.Group("/jobs")
	{
		jobs.POST("", s.createJob)
		jobs.POST("/rescrape", s.createRescrapeJob)
		jobs.GET("", s.listJobs)
		jobs.GET("/:id", s.getJob)
		jobs.DELETE("/:id", s.cancelJob)
		jobs.POST("/:id/cancel", s.cancelJob)
		jobs.POST("/:id/pause", s.pauseJob)
		jobs.POST("/:id/resume", s.resumeJob)
	}

	return router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return ctx.Err()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
