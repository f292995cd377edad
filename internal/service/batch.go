package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"creator_sync/internal/config"
	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
)

// persistTimeout bounds the final job write, which must happen even after ctx is cancelled.
const persistTimeout = 10 * time.Second

// BatchDriver walks a job's targets strictly in order, one at a time.
type BatchDriver struct {
	items   ItemProcessor
	jobs    JobStore
	control ControlSource
	logger  *slog.Logger
	config  config.SyncConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewBatchDriver wires the driver. control may be nil when no operator signals are expected.
func NewBatchDriver(items ItemProcessor, jobs JobStore, control ControlSource, logger *slog.Logger, cfg config.SyncConfig) *BatchDriver {
	return &BatchDriver{
		items:   items,
		jobs:    jobs,
		control: control,
		logger:  logger.With("component", "batch"),
		config:  cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// WithClock replaces the time source used for budgets. sleep, when non-nil,
// replaces the pacing wait.
func (d *BatchDriver) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *BatchDriver {
	d.now = now
	if sleep != nil {
		d.sleep = sleep
	}
	return d
}

type batchRun struct {
	job          *domain.JobRecord
	results      domain.JobResults
	processed    int
	failed       int
	started      time.Time
	lastProgress time.Time
	logger       *slog.Logger
}

// RunBatch drives targets[resumeFrom:] for jobID. Per-item failures land in the
// summary; an error is returned only when the job itself could not be driven.
func (d *BatchDriver) RunBatch(ctx context.Context, jobID string, targets []domain.Target, resumeFrom int) (*domain.JobSummary, error) {
	if resumeFrom < 0 || resumeFrom > len(targets) {
		return nil, fmt.Errorf("resume offset %d outside 0..%d", resumeFrom, len(targets))
	}

	job, err := d.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	if err := d.jobs.MarkRunning(ctx, jobID, len(targets)); err != nil {
		_ = d.persistFinal(ctx, jobID, domain.JobFailed, job.Results, "could not start: "+err.Error())
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	now := d.now()
	run := &batchRun{
		job:          job,
		results:      domain.NewJobResults(),
		started:      now,
		lastProgress: now,
		logger:       d.logger.With("job_id", jobID, "niche", job.PrimaryNiche),
	}

	seen := make(map[string]struct{}, len(targets))
	if resumeFrom > 0 {
		run.results = job.Results.Clone()
		run.processed = resumeFrom
		run.failed = min(job.FailedItems, resumeFrom)
		for _, t := range targets[:resumeFrom] {
			seen[targetKey(t)] = struct{}{}
		}
	}

	run.logger.Info("starting batch",
		"type", job.Type,
		"targets", len(targets),
		"resume_from", resumeFrom,
	)

	var previous *domain.ItemResult
	for i := resumeFrom; i < len(targets); i++ {
		if status, reason, stop := d.checkStop(ctx, run); stop {
			return d.finish(ctx, run, status, reason)
		}

		if previous != nil {
			if err := d.sleep(ctx, d.pacing(previous)); err != nil {
				return d.finish(ctx, run, domain.JobPaused, "interrupted: "+err.Error())
			}
		}

		target := targets[i]
		target.Handle = extract.NormalizeHandle(target.Handle)
		key := targetKey(target)

		var res domain.ItemResult
		if _, dup := seen[key]; dup {
			res = skipped(target, "duplicate in job")
		} else {
			seen[key] = struct{}{}
			var ok bool
			res, ok = d.runItem(ctx, target, job.PrimaryNiche)
			if !ok {
				return d.finish(ctx, run, domain.JobPaused, "interrupted: "+ctx.Err().Error())
			}
		}
		previous = &res

		run.results.Record(res)
		run.processed++
		if res.Outcome == domain.OutcomeFailed {
			run.failed++
		}
		run.lastProgress = d.now()

		run.logger.Debug("item done",
			"index", i,
			"handle", target.Handle,
			"outcome", res.Outcome,
			"reason", res.Reason,
		)

		if err := d.jobs.UpdateProgress(ctx, jobID, run.processed, run.failed); err != nil {
			run.logger.Warn("persist progress failed", "error", err)
		}
		if (i+1-resumeFrom)%d.config.CheckpointEvery == 0 {
			if err := d.jobs.SaveSnapshot(ctx, jobID, run.results.Clone()); err != nil {
				run.logger.Warn("persist snapshot failed", "error", err)
			}
		}
	}

	return d.finish(ctx, run, domain.JobCompleted, "")
}

// checkStop looks for a reason to end the batch before the next item.
func (d *BatchDriver) checkStop(ctx context.Context, run *batchRun) (domain.JobStatus, string, bool) {
	if err := ctx.Err(); err != nil {
		return domain.JobPaused, "interrupted: " + err.Error(), true
	}

	if d.control != nil {
		sig, err := d.control.Signal(ctx, run.job.ID)
		if err != nil {
			run.logger.Warn("read control signal failed", "error", err)
		}
		switch sig {
		case domain.SignalCancel:
			return domain.JobCancelled, "cancelled by operator", true
		case domain.SignalPause:
			return domain.JobPaused, "paused by operator", true
		}
	}

	now := d.now()
	if elapsed := now.Sub(run.started); elapsed > d.config.JobTimeout {
		return domain.JobFailed, fmt.Sprintf("job exceeded time budget of %s", d.config.JobTimeout), true
	}
	if idle := now.Sub(run.lastProgress); idle > d.config.StallWindow {
		return domain.JobFailed, fmt.Sprintf("stuck: no progress for %s", idle.Round(time.Second)), true
	}
	return "", "", false
}

// runItem bounds one item by the item timeout. The work runs in its own
// goroutine so a call that ignores its context cannot hold the batch. ok is
// false when the batch context itself ended, in which case the item does not count.
func (d *BatchDriver) runItem(ctx context.Context, target domain.Target, primaryNiche string) (domain.ItemResult, bool) {
	itemCtx, cancel := context.WithTimeout(ctx, d.config.ItemTimeout)
	defer cancel()

	done := make(chan domain.ItemResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("item panicked", "handle", target.Handle, "panic", p, "stack", string(debug.Stack()))
				done <- failed(target, fmt.Errorf("internal error: %v", p))
			}
		}()
		done <- d.items.Process(itemCtx, target, primaryNiche)
	}()

	select {
	case res := <-done:
		return res, true
	case <-itemCtx.Done():
		if ctx.Err() != nil {
			return domain.ItemResult{}, false
		}
		return failed(target, fmt.Errorf("%w after %s", domain.ErrTimeout, d.config.ItemTimeout)), true
	}
}

// pacing picks the delay before the next item from how the previous one went.
func (d *BatchDriver) pacing(previous *domain.ItemResult) time.Duration {
	switch {
	case previous.Outcome == domain.OutcomeSkipped:
		return 0
	case errors.Is(previous.Err, domain.ErrRateLimited):
		return d.config.Pacing.AfterRateLimit
	case previous.Outcome == domain.OutcomeFailed && domain.IsAPIFailure(previous.Err):
		return d.config.Pacing.AfterFailure
	default:
		return d.config.Pacing.Normal
	}
}

func (d *BatchDriver) finish(ctx context.Context, run *batchRun, status domain.JobStatus, reason string) (*domain.JobSummary, error) {
	summary := &domain.JobSummary{
		JobID:     run.job.ID,
		Status:    status,
		Processed: run.processed,
		Failed:    run.failed,
		Results:   run.results.Clone(),
		Reason:    reason,
		Duration:  d.now().Sub(run.started),
	}

	err := d.persistFinal(ctx, run.job.ID, status, summary.Results, reason, run.processed, run.failed)

	counts := summary.Counts()
	run.logger.Info("batch finished",
		"status", status,
		"reason", reason,
		"processed", run.processed,
		"added", counts[domain.OutcomeAdded],
		"updated", counts[domain.OutcomeUpdated],
		"filtered", counts[domain.OutcomeFiltered],
		"failed", counts[domain.OutcomeFailed],
		"skipped", counts[domain.OutcomeSkipped],
		"duration", summary.Duration,
	)

	if err != nil {
		return summary, fmt.Errorf("persist final job state: %w", err)
	}
	return summary, nil
}

// persistFinal writes the final state on a context detached from ctx's
// cancellation, so an interrupted batch still records where it stopped.
// When counts are given they are written first.
func (d *BatchDriver) persistFinal(ctx context.Context, jobID string, status domain.JobStatus, results domain.JobResults, reason string, counts ...int) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if len(counts) == 2 {
		if err := d.jobs.UpdateProgress(pctx, jobID, counts[0], counts[1]); err != nil {
			d.logger.Warn("persist final progress failed", "job_id", jobID, "error", err)
		}
	}

	if err := d.jobs.Finish(pctx, jobID, status, results, reason); err != nil {
		d.logger.Error("persist final job state failed", "job_id", jobID, "status", status, "error", err)
		return err
	}
	return nil
}

func targetKey(t domain.Target) string {
	return string(t.Platform) + "/" + strings.ToLower(extract.NormalizeHandle(t.Handle))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
