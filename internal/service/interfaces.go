package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"creator_sync/internal/classifier"
	"creator_sync/internal/domain"
)

type Scraper interface {
	FetchProfile(ctx context.Context, platform domain.Platform, handle string) (*domain.RawProfilePayload, error)
}

type Classifier interface {
	IsInDomain(ctx context.Context, primary, handle, displayName, bio string) bool
	SecondaryNiche(ctx context.Context, primary string, hashtags []string, bio string, taggedUsers []string) (string, error)
	Location(ctx context.Context, hints classifier.LocationHints) (string, error)
}

type MediaRelocator interface {
	RelocateCreator(ctx context.Context, rec *domain.CreatorRecord) domain.MediaUpdate
}

type CreatorStore interface {
	Find(ctx context.Context, platform domain.Platform, handle string) (*domain.CreatorRecord, error)
	Insert(ctx context.Context, rec *domain.CreatorRecord) (int64, error)
	Update(ctx context.Context, rec *domain.CreatorRecord) error
	UpdateMedia(ctx context.Context, id int64, avatarURL string, posts []domain.PostSnapshot) error
	ListTargets(ctx context.Context, primaryNiche string, platform *domain.Platform) ([]domain.Target, error)
}

type JobStore interface {
	Create(ctx context.Context, job *domain.JobRecord) error
	Get(ctx context.Context, id string) (*domain.JobRecord, error)
	List(ctx context.Context, limit int) ([]*domain.JobRecord, error)
	ListRunning(ctx context.Context) ([]*domain.JobRecord, error)
	MarkRunning(ctx context.Context, id string, total int) error
	UpdateProgress(ctx context.Context, id string, processed, failed int) error
	SaveSnapshot(ctx context.Context, id string, results domain.JobResults) error
	Finish(ctx context.Context, id string, status domain.JobStatus, results domain.JobResults, errMsg string) error
	SetStatus(ctx context.Context, id string, to domain.JobStatus, msg string, from ...domain.JobStatus) error
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}

// ControlSource reports operator signals for a running job.
type ControlSource interface {
	Signal(ctx context.Context, jobID string) (domain.ControlSignal, error)
}

// Dispatcher hands jobs to workers and relays operator signals to them.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string, targets []domain.Target) error
	SendSignal(ctx context.Context, jobID string, sig domain.ControlSignal) error
}

// ItemProcessor turns one target into an outcome. It must not panic for
// ordinary failures; the batch driver still guards against it.
type ItemProcessor interface {
	Process(ctx context.Context, target domain.Target, primaryNiche string) domain.ItemResult
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, rec *domain.CreatorRecord, isNew bool) error
	Close() error
}
