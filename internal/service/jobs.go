package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
)

// ErrInvalidJob marks a request that cannot become a job.
var ErrInvalidJob = errors.New("invalid job request")

// NicheResolver maps a user supplied niche name onto its canonical spelling.
type NicheResolver func(name string) (string, bool)

// NewJobRequest is the input for a new-creators job.
type NewJobRequest struct {
	PrimaryNiche string
	Description  string
	Targets      []domain.Target
}

// RescrapeRequest is the input for a job refreshing stored creators.
type RescrapeRequest struct {
	PrimaryNiche string
	Platform     *domain.Platform
	Description  string
}

// JobService owns the job lifecycle outside of a running batch.
type JobService struct {
	jobs       JobStore
	creators   CreatorStore
	dispatcher Dispatcher
	niches     NicheResolver
	logger     *slog.Logger
}

func NewJobService(jobs JobStore, creators CreatorStore, dispatcher Dispatcher, niches NicheResolver, logger *slog.Logger) *JobService {
	return &JobService{
		jobs:       jobs,
		creators:   creators,
		dispatcher: dispatcher,
		niches:     niches,
		logger:     logger.With("component", "jobs"),
	}
}

// CreateJob stores a new-creators job and hands it to the queue.
func (s *JobService) CreateJob(ctx context.Context, req NewJobRequest) (*domain.JobRecord, error) {
	niche, err := s.resolveNiche(req.PrimaryNiche)
	if err != nil {
		return nil, err
	}

	targets, err := cleanTargets(req.Targets)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets", ErrInvalidJob)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("%d new %s creators", len(targets), niche)
	}

	return s.submit(ctx, &domain.JobRecord{
		Type:         domain.JobNewCreators,
		PrimaryNiche: niche,
		Description:  description,
		Targets:      targets,
	})
}

// CreateRescrapeJob refreshes every stored creator of a niche, oldest first.
func (s *JobService) CreateRescrapeJob(ctx context.Context, req RescrapeRequest) (*domain.JobRecord, error) {
	niche, err := s.resolveNiche(req.PrimaryNiche)
	if err != nil {
		return nil, err
	}

	targets, err := s.creators.ListTargets(ctx, niche, req.Platform)
	if err != nil {
		return nil, fmt.Errorf("list rescrape targets: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no stored %s creators", ErrInvalidJob, niche)
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("rescrape %d %s creators", len(targets), niche)
		if req.Platform != nil {
			description += " on " + string(*req.Platform)
		}
	}

	return s.submit(ctx, &domain.JobRecord{
		Type:         domain.JobRescrape,
		PrimaryNiche: niche,
		Platform:     req.Platform,
		Description:  description,
		Targets:      targets,
	})
}

func (s *JobService) submit(ctx context.Context, job *domain.JobRecord) (*domain.JobRecord, error) {
	job.Status = domain.JobPending
	running, err := s.jobs.ListRunning(ctx)
	if err != nil {
		s.logger.Warn("list running jobs failed", "error", err)
	} else if len(running) > 0 {
		job.Status = domain.JobQueued
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, job.ID, job.Targets); err != nil {
		msg := "enqueue failed: " + err.Error()
		if serr := s.jobs.Finish(ctx, job.ID, domain.JobFailed, job.Results, msg); serr != nil {
			s.logger.Error("mark unqueued job failed", "job_id", job.ID, "error", serr)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"type", job.Type,
		"niche", job.PrimaryNiche,
		"targets", len(job.Targets),
		"status", job.Status,
	)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	return s.jobs.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context, limit int) ([]*domain.JobRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.List(ctx, limit)
}

func (s *JobService) Stats(ctx context.Context) (map[domain.JobStatus]int, error) {
	return s.jobs.CountByStatus(ctx)
}

// Cancel signals a running job and cancels a waiting one directly.
func (s *JobService) Cancel(ctx context.Context, id string) (*domain.JobRecord, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case job.Status == domain.JobRunning:
		if err := s.dispatcher.SendSignal(ctx, id, domain.SignalCancel); err != nil {
			return nil, fmt.Errorf("signal cancel: %w", err)
		}
	case job.Status.Terminal():
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobConflict, job.Status)
	default:
		err := s.jobs.SetStatus(ctx, id, domain.JobCancelled, "cancelled by operator",
			domain.JobPending, domain.JobQueued, domain.JobPaused)
		if err != nil {
			return nil, err
		}
		// A worker that picks the id up later sees the terminal status and drops it.
		if err := s.dispatcher.SendSignal(ctx, id, domain.SignalCancel); err != nil {
			s.logger.Warn("signal cancel failed", "job_id", id, "error", err)
		}
	}

	s.logger.Info("job cancel requested", "job_id", id, "status", job.Status)
	return s.jobs.Get(ctx, id)
}

// Pause asks a running job to stop after its current item.
func (s *JobService) Pause(ctx context.Context, id string) (*domain.JobRecord, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobRunning {
		return nil, fmt.Errorf("%w: only running jobs can be paused, job is %s", domain.ErrJobConflict, job.Status)
	}

	if err := s.dispatcher.SendSignal(ctx, id, domain.SignalPause); err != nil {
		return nil, fmt.Errorf("signal pause: %w", err)
	}

	s.logger.Info("job pause requested", "job_id", id)
	return job, nil
}

// Resume requeues a stopped job; the worker continues from its processed offset.
func (s *JobService) Resume(ctx context.Context, id string) (*domain.JobRecord, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Resumable() {
		return nil, fmt.Errorf("%w: job is %s", domain.ErrJobConflict, job.Status)
	}
	if len(job.Targets) == 0 {
		return nil, fmt.Errorf("%w: job has no stored targets", ErrInvalidJob)
	}

	if err := s.jobs.SetStatus(ctx, id, domain.JobQueued, "", domain.JobPaused, domain.JobFailed, domain.JobCancelled); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Enqueue(ctx, id, job.Targets); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job resumed", "job_id", id, "from", job.ProcessedItems, "total", len(job.Targets))
	job.Status = domain.JobQueued
	job.ErrorMessage = ""
	return job, nil
}

func (s *JobService) resolveNiche(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: primary niche is required", ErrInvalidJob)
	}
	if s.niches == nil {
		return strings.TrimSpace(name), nil
	}
	niche, ok := s.niches(name)
	if !ok {
		return "", fmt.Errorf("%w: unknown primary niche %q", ErrInvalidJob, name)
	}
	return niche, nil
}

// cleanTargets normalizes handles and platforms, keeping order. Duplicates are
// kept so the driver can report them as skipped.
func cleanTargets(in []domain.Target) ([]domain.Target, error) {
	out := make([]domain.Target, 0, len(in))
	for i, t := range in {
		platform, err := domain.ParsePlatform(string(t.Platform))
		if err != nil {
			return nil, fmt.Errorf("%w: target %d: %v", ErrInvalidJob, i, err)
		}
		handle := extract.NormalizeHandle(t.Handle)
		if handle == "" {
			return nil, fmt.Errorf("%w: target %d: empty handle", ErrInvalidJob, i)
		}
		out = append(out, domain.Target{Handle: handle, Platform: platform})
	}
	return out, nil
}
