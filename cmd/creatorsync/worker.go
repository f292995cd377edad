package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"creator_sync/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain the job queue",
	Long: `Pull job IDs off the Redis queue and drive each one through the
scrape, classify and reconcile pipeline. Jobs interrupted by shutdown are
left paused and can be resumed through the API.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	driver, err := a.batchDriver(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.New(a.queue, a.jobs, driver, a.logger).Start(ctx) })
	g.Go(func() error { return a.sweepScheduler().Start(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("worker stopped", "error", err)
		return err
	}
	return nil
}
