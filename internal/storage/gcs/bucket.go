// Package gcs stores relocated media in a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"creator_sync/internal/domain"
	"creator_sync/internal/media"
)

const cacheControl = "public, max-age=86400"

type Config struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

type Bucket struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	baseURL string
	logger  *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return newBucket(client, cfg, logger), nil
}

func newBucket(client *storage.Client, cfg Config, logger *slog.Logger) *Bucket {
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}

	return &Bucket{
		client:  client,
		bucket:  client.Bucket(cfg.Bucket),
		name:    cfg.Bucket,
		baseURL: baseURL,
		logger:  logger.With("bucket", cfg.Bucket),
	}
}

var _ media.ObjectStore = (*Bucket)(nil)

func (b *Bucket) Stat(ctx context.Context, path string) (*media.ObjectInfo, error) {
	attrs, err := b.bucket.Object(path).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object attrs: %w", err)
	}

	return &media.ObjectInfo{
		ContentType: attrs.ContentType,
		Metadata:    attrs.Metadata,
	}, nil
}

func (b *Bucket) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	w := b.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl
	w.Metadata = metadata

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer: %w", err)
	}

	b.logger.Debug("object uploaded", "path", path, "bytes", len(data), "content_type", contentType)
	return nil
}

// PublicURL returns the URL of path; PublicURL("") is the prefix every object URL shares.
func (b *Bucket) PublicURL(path string) string {
	return b.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (b *Bucket) Close() error {
	return b.client.Close()
}
