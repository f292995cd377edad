package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creator_sync/internal/domain"
)

// StallSweeper fails running jobs whose worker stopped reporting progress,
// typically because the process died mid-batch.
type StallSweeper struct {
	jobs   JobStore
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewStallSweeper(jobs JobStore, window time.Duration, logger *slog.Logger) *StallSweeper {
	return &StallSweeper{
		jobs:   jobs,
		window: window,
		logger: logger.With("component", "sweeper"),
		now:    time.Now,
	}
}

// Sweep returns how many jobs it marked failed.
func (s *StallSweeper) Sweep(ctx context.Context) (int, error) {
	running, err := s.jobs.ListRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}

	now := s.now()
	swept := 0
	for _, job := range running {
		idle := now.Sub(job.UpdatedAt)
		if idle <= s.window {
			continue
		}

		msg := fmt.Sprintf("stuck: no progress for %s", idle.Round(time.Second))
		err := s.jobs.SetStatus(ctx, job.ID, domain.JobFailed, msg, domain.JobRunning)
		switch {
		case errors.Is(err, domain.ErrJobConflict), errors.Is(err, domain.ErrJobNotFound):
			// Finished or removed since the listing.
			continue
		case err != nil:
			s.logger.Error("mark stalled job failed", "job_id", job.ID, "error", err)
			continue
		}

		s.logger.Warn("stalled job failed",
			"job_id", job.ID,
			"processed", job.ProcessedItems,
			"total", job.TotalItems,
			"idle", idle.Round(time.Second),
		)
		swept++
	}
	return swept, nil
}
