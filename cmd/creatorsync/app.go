package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"creator_sync/internal/classifier"
	"creator_sync/internal/config"
	"creator_sync/internal/llm"
	"creator_sync/internal/media"
	"creator_sync/internal/publisher"
	"creator_sync/internal/queue"
	"creator_sync/internal/scheduler"
	"creator_sync/internal/service"
	"creator_sync/internal/source/scrapecreators"
	"creator_sync/internal/storage/gcs"
	"creator_sync/internal/storage/postgres"
)

// app holds the connections every subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqlx.DB
	queue    *queue.Queue
	jobs     *postgres.JobStore
	creators *postgres.CreatorStore
	closers  []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := postgres.Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	q, err := queue.New(ctx, queue.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		QueueKey:   cfg.Redis.QueueKey,
		JobDataTTL: cfg.Redis.JobDataTTL,
		ControlTTL: cfg.Redis.ControlTTL,
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		queue:    q,
		jobs:     postgres.NewJobStore(db),
		creators: postgres.NewCreatorStore(db),
		closers:  []func() error{db.Close, q.Close},
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) jobService() *service.JobService {
	resolve := func(name string) (string, bool) {
		canonical, _, ok := a.cfg.Niche(name)
		return canonical, ok
	}
	return service.NewJobService(a.jobs, a.creators, a.queue, resolve, a.logger)
}

func (a *app) sweepScheduler() *scheduler.Scheduler {
	sweeper := service.NewStallSweeper(a.jobs, a.cfg.Sync.StallWindow, a.logger)
	return scheduler.NewScheduler(sweeper, a.cfg.Sync.SweepInterval, a.logger)
}

// batchDriver builds the full per-item pipeline: scraper, classifier, media
// relocation and event publishing feeding the reconciler.
func (a *app) batchDriver(ctx context.Context) (*service.BatchDriver, error) {
	cfg := a.cfg

	scraper := scrapecreators.New(scrapecreators.Config{
		BaseURL:           cfg.Scrape.BaseURL,
		APIKey:            cfg.Scrape.APIKey,
		Timeout:           cfg.Scrape.Timeout,
		RequestsPerSecond: cfg.Scrape.RequestsPerSecond,
		Burst:             cfg.Scrape.Burst,
		MaxAttempts:       cfg.Scrape.Retry.MaxAttempts,
		InitialBackoff:    cfg.Scrape.Retry.InitialBackoff,
		MaxBackoff:        cfg.Scrape.Retry.MaxBackoff,
	}, a.logger)

	gemini, err := llm.NewGeminiClient(ctx, llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	a.closers = append(a.closers, gemini.Close)
	classify := classifier.New(gemini, cfg.Niches, cfg.LLM.Timeout, a.logger)

	var relocator service.MediaRelocator
	if cfg.Storage.Bucket != "" {
		bucket, err := gcs.New(ctx, gcs.Config{
			Bucket:          cfg.Storage.Bucket,
			CredentialsFile: cfg.Storage.CredentialsFile,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		a.closers = append(a.closers, bucket.Close)
		relocator = media.NewRelocator(bucket, media.Config{
			DownloadTimeout:  cfg.Storage.DownloadTimeout,
			UploadTimeout:    cfg.Storage.UploadTimeout,
			MaxDownloadBytes: cfg.Storage.MaxDownloadBytes,
			MaxMedia:         cfg.Sync.MaxRelocated,
		}, a.logger)
	} else {
		a.logger.Warn("storage bucket not configured, media stays on platform cdn")
	}

	var events service.Publisher = publisher.Noop{}
	if !cfg.RabbitMQ.Disabled {
		rabbit, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			a.logger.Warn("rabbitmq unavailable, creator events disabled", "error", err)
		} else {
			events = rabbit
		}
	}
	a.closers = append(a.closers, events.Close)

	reconciler := service.NewReconciler(
		scraper,
		classify,
		a.creators,
		postgres.NewTransactionManager(a.db),
		relocator,
		events,
		a.logger,
		cfg.Sync,
	)

	return service.NewBatchDriver(reconciler, a.jobs, a.queue, a.logger, cfg.Sync), nil
}
