// Package worker pulls job IDs off the queue and drives them one at a time.
package worker

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creator_sync/internal/domain"
	"creator_sync/internal/queue"
)

type Queue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
	Targets(ctx context.Context, jobID string) ([]domain.Target, error)
	Clear(ctx context.Context, jobID string) error
}

type Jobs interface {
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
}

type Runner interface {
	RunBatch(ctx context.Context, jobID string, targets []domain.Target, resumeFrom int) (*domain.JobSummary, error)
}

type Worker struct {
	queue        Queue
	jobs         Jobs
	runner       Runner
	logger       *slog.Logger
	pollTimeout  time.Duration
	errorBackoff time.Duration
}

func New(q Queue, jobs Jobs, runner Runner, logger *slog.Logger) *Worker {
	return &Worker{
		queue:        q,
		jobs:         jobs,
		runner:       runner,
		logger:       logger.With("component", "worker"),
		pollTimeout:  5 * time.Second,
		errorBackoff: 2 * time.Second,
	}
}

// Start consumes jobs until ctx is cancelled. A job interrupted by shutdown is
// left paused by the driver and can be resumed.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", "poll_timeout", w.pollTimeout)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return ctx.Err()
		}

		jobID, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("dequeue failed", "error", err)
			w.wait(ctx, w.errorBackoff)
			continue
		}
		if jobID == "" {
			continue
		}

		if err := w.Handle(ctx, jobID); err != nil {
			w.logger.Error("job failed", "job_id", jobID, "error", err)
		}
	}
}

// Handle drives a single dequeued job.
func (w *Worker) Handle(ctx context.Context, jobID string) error {
	logger := w.logger.With("job_id", jobID)
	defer w.clear(ctx, jobID)

	job, err := w.jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		logger.Warn("dropping unknown job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if job.Status != domain.JobPending && job.Status != domain.JobQueued {
		logger.Info("skipping job", "status", job.Status)
		return nil
	}

	targets, err := w.queue.Targets(ctx, jobID)
	if err != nil && !errors.Is(err, queue.ErrNoJobData) {
		logger.Warn("read queued targets failed, using stored targets", "error", err)
	}
	if len(targets) == 0 {
		targets = job.Targets
	}

	resumeFrom := min(max(job.ProcessedItems, 0), len(targets))

	summary, err := w.runner.RunBatch(ctx, jobID, targets, resumeFrom)
	if err != nil {
		return err
	}

	logger.Info("job done",
		"status", summary.Status,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return nil
}

func (w *Worker) clear(ctx context.Context, jobID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := w.queue.Clear(cctx, jobID); err != nil {
		w.logger.Warn("clear job data failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
