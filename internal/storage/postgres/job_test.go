package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator_sync/internal/domain"
)

const testJobID = "7b1c2f4e-3d0a-4c55-9d0e-6a1b2c3d4e5f"

var jobRowColumns = []string{
	"id", "job_type", "status", "primary_niche", "platform", "description", "targets",
	"total_items", "processed_items", "failed_items", "results", "error_message",
	"created_at", "updated_at", "started_at", "finished_at",
}

func TestJobStore_Create(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "new_creators", "pending", "Crypto", nil, "", sqlmock.AnyArg(), 2, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	job := &domain.JobRecord{
		Type:         domain.JobNewCreators,
		PrimaryNiche: "Crypto",
		Targets: []domain.Target{
			{Handle: "a", Platform: domain.PlatformInstagram},
			{Handle: "b", Platform: domain.PlatformTikTok},
		},
	}
	err := store.Create(context.Background(), job)

	require.NoError(t, err)
	assert.Len(t, job.ID, 36)
	assert.Equal(t, domain.JobPending, job.Status)
	assert.Equal(t, 2, job.TotalItems)
	assert.Equal(t, now, job.CreatedAt)
	assert.NotNil(t, job.Results.Added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			testJobID, "rescrape", "running", "Crypto", "tiktok", "weekly",
			[]byte(`[{"handle":"a","platform":"tiktok"}]`),
			1, 0, 0,
			[]byte(`{"added":[],"updated":[],"filtered":[],"failed":[],"skipped":[],"niche_stats":{"primary_niches":{},"secondary_niches":{}}}`),
			"", now, now, now, nil,
		))

	job, err := store.Get(context.Background(), testJobID)

	require.NoError(t, err)
	assert.Equal(t, domain.JobRescrape, job.Type)
	assert.Equal(t, domain.JobRunning, job.Status)
	require.NotNil(t, job.Platform)
	assert.Equal(t, domain.PlatformTikTok, *job.Platform)
	assert.Equal(t, []domain.Target{{Handle: "a", Platform: domain.PlatformTikTok}}, job.Targets)
	require.NotNil(t, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Get_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)

	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	_, err := store.Get(context.Background(), testJobID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	_, err = store.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_MarkRunning(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)

	mock.ExpectExec(`UPDATE jobs SET .*started_at = COALESCE\(started_at, NOW\(\)\)`).
		WithArgs(testJobID, "running", 20).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkRunning(context.Background(), testJobID, 20))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_Finish(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)

	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs(testJobID, "completed", sqlmock.AnyArg(), "", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs(testJobID, "paused", sqlmock.AnyArg(), "paused by operator", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, store.Finish(ctx, testJobID, domain.JobCompleted, domain.NewJobResults(), ""))
	require.NoError(t, store.Finish(ctx, testJobID, domain.JobPaused, domain.NewJobResults(), "paused by operator"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_SetStatus_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)
	now := time.Now()

	mock.ExpectExec(`UPDATE jobs SET status = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs(testJobID).
		WillReturnRows(sqlmock.NewRows(jobRowColumns).AddRow(
			testJobID, "new_creators", "completed", "Crypto", nil, "",
			[]byte(`[]`), 0, 0, 0, []byte(`{}`), "", now, now, nil, nil,
		))

	err := store.SetStatus(context.Background(), testJobID, domain.JobQueued, "", domain.JobPaused, domain.JobFailed)

	assert.ErrorIs(t, err, domain.ErrJobConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStore_SetStatus_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)

	mock.ExpectExec(`UPDATE jobs SET status = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WillReturnRows(sqlmock.NewRows(jobRowColumns))

	err := store.SetStatus(context.Background(), testJobID, domain.JobCancelled, "")

	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestJobStore_CountByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewJobStore(db)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM jobs GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("running", 2).
			AddRow("completed", 5))

	counts, err := store.CountByStatus(context.Background())

	require.NoError(t, err)
	assert.Len(t, counts, len(domain.AllJobStatuses))
	assert.Equal(t, 2, counts[domain.JobRunning])
	assert.Equal(t, 5, counts[domain.JobCompleted])
	assert.Equal(t, 0, counts[domain.JobPaused])
}
