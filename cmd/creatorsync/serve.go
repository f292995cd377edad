package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"creator_sync/internal/api"
	"creator_sync/internal/storage/postgres"
	"creator_sync/internal/worker"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job API and the stall sweeper",
	Long: `Start the HTTP API that accepts new-creator and rescrape jobs and lets
operators cancel, pause and resume them. The stall sweeper runs alongside.

Pass --with-worker to also drain the job queue in this process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run a queue worker in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	server := api.NewServer(a.cfg.HTTP, a.jobService(), map[string]api.Pinger{
		"postgres": api.PingFunc(func(ctx context.Context) error { return postgres.Ping(ctx, a.db) }),
		"redis":    a.queue,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return a.sweepScheduler().Start(ctx) })

	if serveWithWorker {
		driver, err := a.batchDriver(ctx)
		if err != nil {
			return err
		}
		w := worker.New(a.queue, a.jobs, driver, a.logger)
		g.Go(func() error { return w.Start(ctx) })
	}

	a.logger.Info("creatorsync serving", "addr", a.cfg.HTTP.Addr, "with_worker", serveWithWorker)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("serve stopped", "error", err)
		return err
	}
	return nil
}
