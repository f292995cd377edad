package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"creator_sync/internal/domain"
)

type jobRow struct {
	ID             string                   `db:"id"`
	Type           string                   `db:"job_type"`
	Status         string                   `db:"status"`
	PrimaryNiche   string                   `db:"primary_niche"`
	Platform       sql.NullString           `db:"platform"`
	Description    string                   `db:"description"`
	Targets        jsonb[[]domain.Target]   `db:"targets"`
	TotalItems     int                      `db:"total_items"`
	ProcessedItems int                      `db:"processed_items"`
	FailedItems    int                      `db:"failed_items"`
	Results        jsonb[domain.JobResults] `db:"results"`
	ErrorMessage   string                   `db:"error_message"`
	CreatedAt      time.Time                `db:"created_at"`
	UpdatedAt      time.Time                `db:"updated_at"`
	StartedAt      sql.NullTime             `db:"started_at"`
	FinishedAt     sql.NullTime             `db:"finished_at"`
}

const jobColumns = `
	id, job_type, status, primary_niche, platform, description, targets,
	total_items, processed_items, failed_items, results, error_message,
	created_at, updated_at, started_at, finished_at`

func (r *jobRow) toDomain() *domain.JobRecord {
	job := &domain.JobRecord{
		ID:             r.ID,
		Type:           domain.JobType(r.Type),
		Status:         domain.JobStatus(r.Status),
		PrimaryNiche:   r.PrimaryNiche,
		Description:    r.Description,
		Targets:        r.Targets.V,
		TotalItems:     r.TotalItems,
		ProcessedItems: r.ProcessedItems,
		FailedItems:    r.FailedItems,
		Results:        r.Results.V,
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Platform.Valid {
		p := domain.Platform(r.Platform.String)
		job.Platform = &p
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		job.StartedAt = &t
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		job.FinishedAt = &t
	}
	return job
}

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create persists a new job. An empty ID is filled with a fresh UUID, and the
// stored timestamps are copied back onto job.
func (s *JobStore) Create(ctx context.Context, job *domain.JobRecord) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobPending
	}

	var platform sql.NullString
	if job.Platform != nil {
		platform = sql.NullString{String: string(*job.Platform), Valid: true}
	}

	results := job.Results
	if results.Added == nil {
		results = domain.NewJobResults()
		job.Results = results
	}

	query := `
		INSERT INTO jobs (
			id, job_type, status, primary_niche, platform, description, targets, total_items, results
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		job.ID,
		job.Type,
		job.Status,
		job.PrimaryNiche,
		platform,
		job.Description,
		jsonb[[]domain.Target]{V: job.Targets},
		len(job.Targets),
		jsonb[domain.JobResults]{V: results},
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	job.TotalItems = len(job.Targets)
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.JobRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrJobNotFound
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var row jobRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.toDomain(), nil
}

// List returns the most recent jobs without their target lists.
func (s *JobStore) List(ctx context.Context, limit int) ([]*domain.JobRecord, error) {
	query := `
		SELECT id, job_type, status, primary_niche, platform, description, '[]'::jsonb AS targets,
			total_items, processed_items, failed_items, results, error_message,
			created_at, updated_at, started_at, finished_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1`

	var rows []jobRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*domain.JobRecord, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}

// ListRunning returns jobs in the running status, oldest progress first.
func (s *JobStore) ListRunning(ctx context.Context) ([]*domain.JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY updated_at ASC`

	var rows []jobRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, domain.JobRunning); err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}

	jobs := make([]*domain.JobRecord, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toDomain())
	}
	return jobs, nil
}

// MarkRunning moves a job into running. started_at keeps its first value so a
// resumed job reports its original start.
func (s *JobStore) MarkRunning(ctx context.Context, id string, total int) error {
	query := `
		UPDATE jobs SET
			status = $2, total_items = $3, error_message = '',
			started_at = COALESCE(started_at, NOW()), finished_at = NULL, updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, domain.JobRunning, total)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return expectOneRow(res, domain.ErrJobNotFound)
}

func (s *JobStore) UpdateProgress(ctx context.Context, id string, processed, failed int) error {
	query := `UPDATE jobs SET processed_items = $2, failed_items = $3, updated_at = NOW() WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, processed, failed)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return expectOneRow(res, domain.ErrJobNotFound)
}

// SaveSnapshot persists partial results while the job is still running.
func (s *JobStore) SaveSnapshot(ctx context.Context, id string, results domain.JobResults) error {
	query := `UPDATE jobs SET results = $2, updated_at = NOW() WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, jsonb[domain.JobResults]{V: results})
	if err != nil {
		return fmt.Errorf("save job snapshot: %w", err)
	}
	return expectOneRow(res, domain.ErrJobNotFound)
}

// Finish writes the final status and results. finished_at is only set for terminal statuses.
func (s *JobStore) Finish(ctx context.Context, id string, status domain.JobStatus, results domain.JobResults, errMsg string) error {
	query := `
		UPDATE jobs SET
			status = $2, results = $3, error_message = $4, updated_at = NOW(),
			finished_at = CASE WHEN $5 THEN NOW() ELSE NULL END
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		id, status, jsonb[domain.JobResults]{V: results}, errMsg, status.Terminal(),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return expectOneRow(res, domain.ErrJobNotFound)
}

// SetStatus moves a job to status to. When from is given, the row must currently
// be in one of those statuses or domain.ErrJobConflict is returned.
func (s *JobStore) SetStatus(ctx context.Context, id string, to domain.JobStatus, msg string, from ...domain.JobStatus) error {
	query := `
		UPDATE jobs SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))`

	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, to, msg, pq.StringArray(allowed))
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot move job %s to %s", domain.ErrJobConflict, id, to)
}

// CountByStatus returns the number of jobs per status. Statuses with no jobs report zero.
func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM jobs GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int, len(domain.AllJobStatuses))
	for _, st := range domain.AllJobStatuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[domain.JobStatus(r.Status)] = r.Count
	}
	return counts, nil
}
