//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"creator_sync/internal/domain"
	"creator_sync/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_creators.up.sql"),
			filepath.Join(migrationsPath, "002_create_jobs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM creators")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM jobs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) newCreator(handle string, platform domain.Platform, updated time.Time) *domain.CreatorRecord {
	return &domain.CreatorRecord{
		Platform:        platform,
		Handle:          handle,
		DisplayName:     "Display " + handle,
		ProfileURL:      platform.ProfileURL(handle),
		Emails:          []string{handle + "@example.com"},
		PrimaryNiche:    "Crypto",
		SecondaryNiche:  "DeFi",
		Location:        "Global",
		Followers:       20000,
		EngagementRate:  4.5,
		FollowersChange: domain.Change{Type: domain.ChangeZero},
		BuzzScore:       50,
		Hashtags:        []string{"btc"},
		Posts: []domain.PostSnapshot{
			{Caption: "gm", Likes: utils.Ptr(int64(120)), Comments: utils.Ptr(int64(4)), Hashtags: []string{"btc"}},
		},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

func (s *PostgresIntegrationSuite) TestCreatorStore_InsertAndFind() {
	store := NewCreatorStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	id, err := store.Insert(s.ctx, s.newCreator("alice", domain.PlatformInstagram, now))
	s.NoError(err)
	s.Greater(id, int64(0))

	rec, err := store.Find(s.ctx, domain.PlatformInstagram, "alice")
	s.Require().NoError(err)
	s.Equal(id, rec.ID)
	s.Equal([]string{"alice@example.com"}, rec.Emails)
	s.Equal("DeFi", rec.SecondaryNiche)
	s.Require().Len(rec.Posts, 1)
	s.Equal(int64(120), *rec.Posts[0].Likes)
	s.Nil(rec.Posts[0].Views)
	s.WithinDuration(now, rec.CreatedAt, time.Second)

	_, err = store.Find(s.ctx, domain.PlatformTikTok, "alice")
	s.ErrorIs(err, domain.ErrCreatorNotFound)
}

func (s *PostgresIntegrationSuite) TestCreatorStore_Insert_Duplicate() {
	store := NewCreatorStore(s.db)
	now := time.Now().UTC()

	_, err := store.Insert(s.ctx, s.newCreator("alice", domain.PlatformInstagram, now))
	s.Require().NoError(err)

	_, err = store.Insert(s.ctx, s.newCreator("alice", domain.PlatformInstagram, now))
	s.ErrorIs(err, domain.ErrDuplicateCreator)

	_, err = store.Insert(s.ctx, s.newCreator("alice", domain.PlatformTikTok, now))
	s.NoError(err)
}

func (s *PostgresIntegrationSuite) TestCreatorStore_Update_KeepsPrimaryNicheAndCreatedAt() {
	store := NewCreatorStore(s.db)
	created := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)

	rec := s.newCreator("bob", domain.PlatformTikTok, created)
	id, err := store.Insert(s.ctx, rec)
	s.Require().NoError(err)

	rec.ID = id
	rec.PrimaryNiche = "Trading"
	rec.Followers = 25000
	rec.FollowersChange = domain.Change{Percent: 25, Type: domain.ChangePositive}
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = time.Now().UTC()
	s.Require().NoError(store.Update(s.ctx, rec))

	got, err := store.Find(s.ctx, domain.PlatformTikTok, "bob")
	s.Require().NoError(err)
	s.Equal("Crypto", got.PrimaryNiche)
	s.Equal(int64(25000), got.Followers)
	s.Equal(domain.Change{Percent: 25, Type: domain.ChangePositive}, got.FollowersChange)
	s.WithinDuration(created, got.CreatedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestCreatorStore_UpdateMedia() {
	store := NewCreatorStore(s.db)

	rec := s.newCreator("carol", domain.PlatformInstagram, time.Now().UTC())
	id, err := store.Insert(s.ctx, rec)
	s.Require().NoError(err)

	posts := rec.Posts
	posts[0].MediaURL = "https://storage.googleapis.com/creators/carol/media_1.jpg"
	s.Require().NoError(store.UpdateMedia(s.ctx, id, "https://storage.googleapis.com/creators/carol/profile.jpg", posts))

	got, err := store.Find(s.ctx, domain.PlatformInstagram, "carol")
	s.Require().NoError(err)
	s.Equal("https://storage.googleapis.com/creators/carol/profile.jpg", got.AvatarURL)
	s.Equal("https://storage.googleapis.com/creators/carol/media_1.jpg", got.Posts[0].MediaURL)

	s.ErrorIs(store.UpdateMedia(s.ctx, id+100, "", nil), domain.ErrCreatorNotFound)
}

func (s *PostgresIntegrationSuite) TestCreatorStore_ListTargets_OldestFirst() {
	store := NewCreatorStore(s.db)
	now := time.Now().UTC()

	_, err := store.Insert(s.ctx, s.newCreator("fresh", domain.PlatformInstagram, now))
	s.Require().NoError(err)
	_, err = store.Insert(s.ctx, s.newCreator("stale", domain.PlatformInstagram, now.Add(-72*time.Hour)))
	s.Require().NoError(err)
	_, err = store.Insert(s.ctx, s.newCreator("tok", domain.PlatformTikTok, now.Add(-24*time.Hour)))
	s.Require().NoError(err)

	other := s.newCreator("elsewhere", domain.PlatformInstagram, now)
	other.PrimaryNiche = "Finance"
	_, err = store.Insert(s.ctx, other)
	s.Require().NoError(err)

	all, err := store.ListTargets(s.ctx, "Crypto", nil)
	s.Require().NoError(err)
	s.Equal([]domain.Target{
		{Handle: "stale", Platform: domain.PlatformInstagram},
		{Handle: "tok", Platform: domain.PlatformTikTok},
		{Handle: "fresh", Platform: domain.PlatformInstagram},
	}, all)

	insta, err := store.ListTargets(s.ctx, "Crypto", utils.Ptr(domain.PlatformInstagram))
	s.Require().NoError(err)
	s.Len(insta, 2)
}

func (s *PostgresIntegrationSuite) TestJobStore_Lifecycle() {
	store := NewJobStore(s.db)

	job := &domain.JobRecord{
		Type:         domain.JobNewCreators,
		PrimaryNiche: "Crypto",
		Platform:     utils.Ptr(domain.PlatformInstagram),
		Targets: []domain.Target{
			{Handle: "a", Platform: domain.PlatformInstagram},
			{Handle: "b", Platform: domain.PlatformInstagram},
		},
	}
	s.Require().NoError(store.Create(s.ctx, job))

	s.Require().NoError(store.MarkRunning(s.ctx, job.ID, 2))
	s.Require().NoError(store.UpdateProgress(s.ctx, job.ID, 1, 0))

	results := domain.NewJobResults()
	results.Record(domain.ItemResult{
		Target:  job.Targets[0],
		Outcome: domain.OutcomeAdded,
		Record:  &domain.CreatorRecord{PrimaryNiche: "Crypto", SecondaryNiche: "DeFi"},
	})
	s.Require().NoError(store.SaveSnapshot(s.ctx, job.ID, results))

	running, err := store.ListRunning(s.ctx)
	s.Require().NoError(err)
	s.Len(running, 1)

	got, err := store.Get(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(domain.JobRunning, got.Status)
	s.Equal(1, got.ProcessedItems)
	s.Equal(job.Targets, got.Targets)
	s.Equal([]string{"@a"}, got.Results.Added)
	s.Equal(1, got.Results.NicheStats.Secondary["DeFi"])
	s.NotNil(got.StartedAt)
	s.Nil(got.FinishedAt)

	results.Record(domain.ItemResult{Target: job.Targets[1], Outcome: domain.OutcomeFiltered, Reason: "followers below minimum"})
	s.Require().NoError(store.UpdateProgress(s.ctx, job.ID, 2, 0))
	s.Require().NoError(store.Finish(s.ctx, job.ID, domain.JobCompleted, results, ""))

	got, err = store.Get(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(domain.JobCompleted, got.Status)
	s.Equal([]string{"@b - followers below minimum"}, got.Results.Filtered)
	s.NotNil(got.FinishedAt)

	counts, err := store.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[domain.JobCompleted])
	s.Equal(0, counts[domain.JobRunning])
}

func (s *PostgresIntegrationSuite) TestJobStore_SetStatus_Guarded() {
	store := NewJobStore(s.db)

	job := &domain.JobRecord{Type: domain.JobRescrape, PrimaryNiche: "Trading"}
	s.Require().NoError(store.Create(s.ctx, job))
	s.Require().NoError(store.Finish(s.ctx, job.ID, domain.JobPaused, domain.NewJobResults(), "paused"))

	err := store.SetStatus(s.ctx, job.ID, domain.JobQueued, "", domain.JobPaused, domain.JobFailed)
	s.NoError(err)

	err = store.SetStatus(s.ctx, job.ID, domain.JobQueued, "", domain.JobPaused)
	s.ErrorIs(err, domain.ErrJobConflict)

	err = store.SetStatus(s.ctx, "5d1b7c1e-0000-4000-8000-000000000000", domain.JobCancelled, "")
	s.ErrorIs(err, domain.ErrJobNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewCreatorStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		_, err := store.Insert(ctx, s.newCreator("txn", domain.PlatformInstagram, time.Now().UTC()))
		return err
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM creators WHERE handle = $1", "txn")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewCreatorStore(s.db)

	_, err := store.Insert(s.ctx, s.newCreator("existing", domain.PlatformInstagram, time.Now().UTC()))
	s.Require().NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := store.Insert(ctx, s.newCreator("rolled-back", domain.PlatformInstagram, time.Now().UTC())); err != nil {
			return err
		}
		_, err := store.Insert(ctx, s.newCreator("existing", domain.PlatformInstagram, time.Now().UTC()))
		return err
	})
	s.ErrorIs(err, domain.ErrDuplicateCreator)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM creators WHERE handle = $1", "rolled-back")
	s.NoError(err)
	s.Equal(0, count)
}
