package gcs

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func testBucket(t *testing.T, cfg Config) *Bucket {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return newBucket(client, cfg, logger)
}

func TestPublicURL_DefaultHost(t *testing.T) {
	b := testBucket(t, Config{Bucket: "creator-media"})

	assert.Equal(t, "https://storage.googleapis.com/creator-media/alice/profile.jpg", b.PublicURL("alice/profile.jpg"))
	assert.Equal(t, "https://storage.googleapis.com/creator-media/", b.PublicURL(""))
}

func TestPublicURL_CDN(t *testing.T) {
	b := testBucket(t, Config{Bucket: "creator-media", PublicBaseURL: "https://media.example.com/"})

	assert.Equal(t, "https://media.example.com/bob/media_1.mp4", b.PublicURL("/bob/media_1.mp4"))
}

func TestNew_RequiresBucket(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := New(context.Background(), Config{}, logger)
	assert.Error(t, err)
}
