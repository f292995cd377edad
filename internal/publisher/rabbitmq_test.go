package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"creator_sync/internal/domain"
)

func TestNewCreatorEvent(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	rec := &domain.CreatorRecord{ID: 5, Platform: domain.PlatformInstagram, Handle: "bob", BuzzScore: 50}

	created := NewCreatorEvent(rec, true, now)
	assert.Equal(t, ActionCreate, created.Action)
	assert.Equal(t, int64(5), created.ID)
	assert.Equal(t, time.UTC, created.Timestamp.Location())

	updated := NewCreatorEvent(rec, false, now)
	assert.Equal(t, ActionUpdate, updated.Action)
}

func TestNoop(t *testing.T) {
	var n Noop
	assert.NoError(t, n.Publish(context.Background(), &domain.CreatorRecord{}, true))
	assert.NoError(t, n.Close())
}
