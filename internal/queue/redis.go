// Package queue dispatches job IDs to workers through a Redis list and carries
// operator control signals for running jobs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"creator_sync/internal/domain"
)

// ErrNoJobData means the cached target list expired or was never written.
var ErrNoJobData = errors.New("job data not found")

type Config struct {
	Addr       string
	Password   string
	DB         int
	QueueKey   string
	JobDataTTL time.Duration
	ControlTTL time.Duration
}

type Queue struct {
	rdb        *redis.Client
	key        string
	dataTTL    time.Duration
	controlTTL time.Duration
	logger     *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("connected to redis", "addr", cfg.Addr, "queue", cfg.QueueKey)
	return NewWithClient(rdb, cfg, logger), nil
}

func NewWithClient(rdb *redis.Client, cfg Config, logger *slog.Logger) *Queue {
	return &Queue{
		rdb:        rdb,
		key:        cfg.QueueKey,
		dataTTL:    cfg.JobDataTTL,
		controlTTL: cfg.ControlTTL,
		logger:     logger.With("component", "queue"),
	}
}

func dataKey(jobID string) string {
	return "job_data:" + jobID
}

func controlKey(jobID string) string {
	return "job_control:" + jobID
}

// Enqueue caches the job's targets and pushes its ID onto the queue in one round trip.
func (q *Queue) Enqueue(ctx context.Context, jobID string, targets []domain.Target) error {
	data, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, dataKey(jobID), data, q.dataTTL)
		pipe.Del(ctx, controlKey(jobID))
		pipe.LPush(ctx, q.key, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}

	q.logger.Debug("job enqueued", "job_id", jobID, "targets", len(targets))
	return nil
}

// Dequeue blocks up to timeout for the next job ID. An empty ID with a nil
// error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP answers [key, value].
	if len(res) != 2 {
		return "", fmt.Errorf("dequeue: unexpected reply %v", res)
	}
	return res[1], nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Targets returns the cached target list of a job.
func (q *Queue) Targets(ctx context.Context, jobID string) ([]domain.Target, error) {
	raw, err := q.rdb.Get(ctx, dataKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJobData
	}
	if err != nil {
		return nil, fmt.Errorf("get job data: %w", err)
	}

	var targets []domain.Target
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("unmarshal job data: %w", err)
	}
	return targets, nil
}

// Clear drops the cached targets and any pending signal once a job is done.
func (q *Queue) Clear(ctx context.Context, jobID string) error {
	if err := q.rdb.Del(ctx, dataKey(jobID), controlKey(jobID)).Err(); err != nil {
		return fmt.Errorf("clear job %s: %w", jobID, err)
	}
	return nil
}

// SendSignal asks the driver running jobID to stop at the next item boundary.
func (q *Queue) SendSignal(ctx context.Context, jobID string, sig domain.ControlSignal) error {
	if err := q.rdb.Set(ctx, controlKey(jobID), string(sig), q.controlTTL).Err(); err != nil {
		return fmt.Errorf("send %s signal: %w", sig, err)
	}
	q.logger.Info("control signal sent", "job_id", jobID, "signal", sig)
	return nil
}

// Signal reads the pending control signal of a job, SignalNone when there is none.
func (q *Queue) Signal(ctx context.Context, jobID string) (domain.ControlSignal, error) {
	v, err := q.rdb.Get(ctx, controlKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.SignalNone, nil
	}
	if err != nil {
		return domain.SignalNone, fmt.Errorf("read signal: %w", err)
	}

	switch sig := domain.ControlSignal(v); sig {
	case domain.SignalCancel, domain.SignalPause:
		return sig, nil
	default:
		q.logger.Warn("ignoring unknown control signal", "job_id", jobID, "value", v)
		return domain.SignalNone, nil
	}
}

func (q *Queue) Ping(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}
