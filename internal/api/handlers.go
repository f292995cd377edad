package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"creator_sync/internal/domain"
	"creator_sync/internal/service"
)

type targetRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Platform string `json:"platform" binding:"required"`
}

type createJobRequest struct {
	PrimaryNiche string          `json:"primary_niche" binding:"required"`
	Description  string          `json:"description"`
	Targets      []targetRequest `json:"targets" binding:"required,min=1,dive"`
}

type rescrapeRequest struct {
	PrimaryNiche string  `json:"primary_niche" binding:"required"`
	Platform     *string `json:"platform"`
	Description  string  `json:"description"`
}

// GET /health
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// POST /jobs
func (s *Server) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targets := make([]domain.Target, len(req.Targets))
	for i, t := range req.Targets {
		targets[i] = domain.Target{Handle: t.Handle, Platform: domain.Platform(t.Platform)}
	}

	job, err := s.jobs.CreateJob(c.Request.Context(), service.NewJobRequest{
		PrimaryNiche: req.PrimaryNiche,
		Description:  req.Description,
		Targets:      targets,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// POST /jobs/rescrape
func (s *Server) createRescrapeJob(c *gin.Context) {
	var req rescrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var platform *domain.Platform
	if req.Platform != nil && *req.Platform != "" {
		p, err := domain.ParsePlatform(*req.Platform)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		platform = &p
	}

	job, err := s.jobs.CreateRescrapeJob(c.Request.Context(), service.RescrapeRequest{
		PrimaryNiche: req.PrimaryNiche,
		Platform:     platform,
		Description:  req.Description,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GET /jobs?limit=
func (s *Server) listJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []*domain.JobRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GET /jobs/:id
func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// POST /jobs/:id/cancel, DELETE /jobs/:id
func (s *Server) cancelJob(c *gin.Context) {
	s.control(c, s.jobs.Cancel)
}

// POST /jobs/:id/pause
func (s *Server) pauseJob(c *gin.Context) {
	s.control(c, s.jobs.Pause)
}

// POST /jobs/:id/resume
func (s *Server) resumeJob(c *gin.Context) {
	s.control(c, s.jobs.Resume)
}

func (s *Server) control(c *gin.Context, action func(context.Context, string) (*domain.JobRecord, error)) {
	job, err := action(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GET /stats
func (s *Server) stats(c *gin.Context) {
	counts, err := s.jobs.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"jobs": counts, "total": total})
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidJob):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, domain.ErrJobConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
