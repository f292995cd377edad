package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"creator_sync/internal/domain"
	"creator_sync/internal/service/mocks"
)

type JobServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	jobs       *mocks.MockJobStore
	creators   *mocks.MockCreatorStore
	dispatcher *mocks.MockDispatcher

	service *JobService
}

func (s *JobServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.creators = mocks.NewMockCreatorStore(s.ctrl)
	s.dispatcher = mocks.NewMockDispatcher(s.ctrl)

	niches := func(name string) (string, bool) {
		if strings.EqualFold(strings.TrimSpace(name), "crypto") {
			return "Crypto", true
		}
		return "", false
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewJobService(s.jobs, s.creators, s.dispatcher, niches, logger)
}

func (s *JobServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestJobServiceTestSuite(t *testing.T) {
	suite.Run(t, new(JobServiceTestSuite))
}

func (s *JobServiceTestSuite) stored(status domain.JobStatus) *domain.JobRecord {
	return &domain.JobRecord{
		ID:             batchJobID,
		Type:           domain.JobNewCreators,
		Status:         status,
		PrimaryNiche:   "Crypto",
		Targets:        handles("alice", "bob"),
		ProcessedItems: 1,
		Results:        domain.NewJobResults(),
	}
}

func (s *JobServiceTestSuite) TestCreateJob() {
	ctx := context.Background()

	s.jobs.EXPECT().ListRunning(ctx).Return(nil, nil)
	s.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.JobRecord) error {
		s.Equal(domain.JobPending, job.Status)
		s.Equal(domain.JobNewCreators, job.Type)
		s.Equal("Crypto", job.PrimaryNiche)
		s.Equal("2 new Crypto creators", job.Description)
		job.ID = batchJobID
		return nil
	})
	s.dispatcher.EXPECT().Enqueue(ctx, batchJobID, []domain.Target{
		{Handle: "alice", Platform: domain.PlatformInstagram},
		{Handle: "bob", Platform: domain.PlatformTikTok},
	}).Return(nil)

	job, err := s.service.CreateJob(ctx, NewJobRequest{
		PrimaryNiche: " crypto",
		Targets: []domain.Target{
			{Handle: "@alice ", Platform: "Instagram"},
			{Handle: "bob", Platform: "TIKTOK"},
		},
	})

	s.Require().NoError(err)
	s.Equal(batchJobID, job.ID)
}

func (s *JobServiceTestSuite) TestCreateJob_QueuedBehindRunningJob() {
	ctx := context.Background()

	s.jobs.EXPECT().ListRunning(ctx).Return([]*domain.JobRecord{s.stored(domain.JobRunning)}, nil)
	s.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.JobRecord) error {
		s.Equal(domain.JobQueued, job.Status)
		job.ID = "next"
		return nil
	})
	s.dispatcher.EXPECT().Enqueue(ctx, "next", gomock.Any()).Return(nil)

	job, err := s.service.CreateJob(ctx, NewJobRequest{
		PrimaryNiche: "Crypto",
		Description:  "weekly import",
		Targets:      handles("alice"),
	})

	s.Require().NoError(err)
	s.Equal("weekly import", job.Description)
}

func (s *JobServiceTestSuite) TestCreateJob_Invalid() {
	ctx := context.Background()

	_, err := s.service.CreateJob(ctx, NewJobRequest{PrimaryNiche: "Crypto"})
	s.ErrorIs(err, ErrInvalidJob)

	_, err = s.service.CreateJob(ctx, NewJobRequest{PrimaryNiche: "Gardening", Targets: handles("alice")})
	s.ErrorIs(err, ErrInvalidJob)

	_, err = s.service.CreateJob(ctx, NewJobRequest{PrimaryNiche: "", Targets: handles("alice")})
	s.ErrorIs(err, ErrInvalidJob)

	_, err = s.service.CreateJob(ctx, NewJobRequest{
		PrimaryNiche: "Crypto",
		Targets:      []domain.Target{{Handle: "alice", Platform: "youtube"}},
	})
	s.ErrorIs(err, ErrInvalidJob)

	_, err = s.service.CreateJob(ctx, NewJobRequest{
		PrimaryNiche: "Crypto",
		Targets:      []domain.Target{{Handle: " @", Platform: domain.PlatformInstagram}},
	})
	s.ErrorIs(err, ErrInvalidJob)
}

func (s *JobServiceTestSuite) TestCreateJob_EnqueueFailureMarksJobFailed() {
	ctx := context.Background()

	s.jobs.EXPECT().ListRunning(ctx).Return(nil, nil)
	s.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.JobRecord) error {
		job.ID = batchJobID
		return nil
	})
	s.dispatcher.EXPECT().Enqueue(ctx, batchJobID, gomock.Any()).Return(errors.New("redis down"))
	s.jobs.EXPECT().Finish(ctx, batchJobID, domain.JobFailed, gomock.Any(), "enqueue failed: redis down").Return(nil)

	_, err := s.service.CreateJob(ctx, NewJobRequest{PrimaryNiche: "Crypto", Targets: handles("alice")})

	s.Error(err)
}

func (s *JobServiceTestSuite) TestCreateRescrapeJob() {
	ctx := context.Background()
	platform := domain.PlatformTikTok
	targets := []domain.Target{{Handle: "carol", Platform: domain.PlatformTikTok}}

	s.creators.EXPECT().ListTargets(ctx, "Crypto", &platform).Return(targets, nil)
	s.jobs.EXPECT().ListRunning(ctx).Return(nil, errors.New("db hiccup"))
	s.jobs.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, job *domain.JobRecord) error {
		s.Equal(domain.JobRescrape, job.Type)
		s.Equal(domain.JobPending, job.Status)
		s.Equal(targets, job.Targets)
		s.Equal("rescrape 1 Crypto creators on tiktok", job.Description)
		job.ID = batchJobID
		return nil
	})
	s.dispatcher.EXPECT().Enqueue(ctx, batchJobID, targets).Return(nil)

	job, err := s.service.CreateRescrapeJob(ctx, RescrapeRequest{PrimaryNiche: "crypto", Platform: &platform})

	s.Require().NoError(err)
	s.Equal(&platform, job.Platform)
}

func (s *JobServiceTestSuite) TestCreateRescrapeJob_NothingStored() {
	ctx := context.Background()

	s.creators.EXPECT().ListTargets(ctx, "Crypto", nil).Return(nil, nil)

	_, err := s.service.CreateRescrapeJob(ctx, RescrapeRequest{PrimaryNiche: "Crypto"})

	s.ErrorIs(err, ErrInvalidJob)
}

func (s *JobServiceTestSuite) TestList_ClampsLimit() {
	ctx := context.Background()

	s.jobs.EXPECT().List(ctx, 20).Return(nil, nil).Times(2)
	s.jobs.EXPECT().List(ctx, 50).Return(nil, nil)

	_, err := s.service.List(ctx, 0)
	s.NoError(err)
	_, err = s.service.List(ctx, 1000)
	s.NoError(err)
	_, err = s.service.List(ctx, 50)
	s.NoError(err)
}

func (s *JobServiceTestSuite) TestCancel_RunningJobIsSignalled() {
	ctx := context.Background()
	job := s.stored(domain.JobRunning)

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(job, nil).Times(2)
	s.dispatcher.EXPECT().SendSignal(ctx, batchJobID, domain.SignalCancel).Return(nil)

	got, err := s.service.Cancel(ctx, batchJobID)

	s.Require().NoError(err)
	s.Equal(domain.JobRunning, got.Status)
}

func (s *JobServiceTestSuite) TestCancel_WaitingJobIsCancelledDirectly() {
	ctx := context.Background()

	gomock.InOrder(
		s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobQueued), nil),
		s.jobs.EXPECT().SetStatus(ctx, batchJobID, domain.JobCancelled, "cancelled by operator",
			domain.JobPending, domain.JobQueued, domain.JobPaused).Return(nil),
		s.dispatcher.EXPECT().SendSignal(ctx, batchJobID, domain.SignalCancel).Return(nil),
		s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobCancelled), nil),
	)

	got, err := s.service.Cancel(ctx, batchJobID)

	s.Require().NoError(err)
	s.Equal(domain.JobCancelled, got.Status)
}

func (s *JobServiceTestSuite) TestCancel_FinishedJobConflicts() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobCompleted), nil)

	_, err := s.service.Cancel(ctx, batchJobID)

	s.ErrorIs(err, domain.ErrJobConflict)
}

func (s *JobServiceTestSuite) TestPause() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobRunning), nil)
	s.dispatcher.EXPECT().SendSignal(ctx, batchJobID, domain.SignalPause).Return(nil)

	_, err := s.service.Pause(ctx, batchJobID)

	s.NoError(err)
}

func (s *JobServiceTestSuite) TestPause_NotRunning() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobQueued), nil)

	_, err := s.service.Pause(ctx, batchJobID)

	s.ErrorIs(err, domain.ErrJobConflict)
}

func (s *JobServiceTestSuite) TestResume() {
	ctx := context.Background()
	job := s.stored(domain.JobPaused)
	job.ErrorMessage = "paused by operator"

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(job, nil)
	s.jobs.EXPECT().SetStatus(ctx, batchJobID, domain.JobQueued, "",
		domain.JobPaused, domain.JobFailed, domain.JobCancelled).Return(nil)
	s.dispatcher.EXPECT().Enqueue(ctx, batchJobID, job.Targets).Return(nil)

	got, err := s.service.Resume(ctx, batchJobID)

	s.Require().NoError(err)
	s.Equal(domain.JobQueued, got.Status)
	s.Empty(got.ErrorMessage)
	s.Equal(1, got.ProcessedItems)
}

func (s *JobServiceTestSuite) TestResume_RejectsActiveJob() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, batchJobID).Return(s.stored(domain.JobRunning), nil)

	_, err := s.service.Resume(ctx, batchJobID)

	s.ErrorIs(err, domain.ErrJobConflict)
}

func (s *JobServiceTestSuite) TestGet_NotFound() {
	ctx := context.Background()

	s.jobs.EXPECT().Get(ctx, "missing").Return(nil, domain.ErrJobNotFound)

	_, err := s.service.Get(ctx, "missing")

	s.ErrorIs(err, domain.ErrJobNotFound)
}
