package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"creator_sync/internal/domain"
)

var (
	runJobID      string
	runResumeFrom int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one stored job in the foreground",
	Long: `Load a job by ID and process its stored targets in this process,
bypassing the queue. Use --resume-from to skip targets already handled.`,
	Example: `  creatorsync run --job 7b1c2f4e-3d0a-4c55-9d0e-6a1b2c3d4e5f
  creatorsync run --job 7b1c2f4e-3d0a-4c55-9d0e-6a1b2c3d4e5f --resume-from 40`,
	RunE: runJob,
}

func init() {
	runCmd.Flags().StringVar(&runJobID, "job", "", "job ID to run (required)")
	runCmd.Flags().IntVar(&runResumeFrom, "resume-from", -1, "target offset to resume at (default: the job's processed count)")
	_ = runCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	job, err := a.jobs.Get(ctx, runJobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", runJobID, err)
	}
	switch {
	case job.Status == domain.JobRunning:
		return fmt.Errorf("%w: job %s is already running", domain.ErrJobConflict, job.ID)
	case job.Status == domain.JobCompleted:
		return fmt.Errorf("%w: job %s already completed", domain.ErrJobConflict, job.ID)
	}

	resumeFrom := runResumeFrom
	if resumeFrom < 0 {
		resumeFrom = 0
		if job.Status.Resumable() {
			resumeFrom = min(job.ProcessedItems, len(job.Targets))
		}
	}

	driver, err := a.batchDriver(ctx)
	if err != nil {
		return err
	}

	summary, err := driver.RunBatch(ctx, job.ID, job.Targets, resumeFrom)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s %s: %d processed, %d failed in %s\n",
		summary.JobID, summary.Status, summary.Processed, summary.Failed, summary.Duration.Round(time.Second))
	if summary.Reason != "" {
		fmt.Fprintf(out, "  reason: %s\n", summary.Reason)
	}
	counts := summary.Counts()
	for _, outcome := range []domain.Outcome{
		domain.OutcomeAdded, domain.OutcomeUpdated, domain.OutcomeFiltered, domain.OutcomeFailed, domain.OutcomeSkipped,
	} {
		fmt.Fprintf(out, "  %-10s %d\n", outcome, counts[outcome])
	}
	return nil
}
