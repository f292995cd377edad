// Package media re-hosts creator media from short-lived platform URLs into the object store.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
)

const (
	SlotProfile = "profile"

	// DigestKey is the object metadata key holding the digest of the source URL.
	DigestKey = "source-digest"
)

// ObjectInfo is what the relocator needs to know about a stored object.
type ObjectInfo struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is a flat key/value blob store with public URLs.
// Stat returns domain.ErrObjectNotFound when nothing is stored at path.
type ObjectStore interface {
	Stat(ctx context.Context, path string) (*ObjectInfo, error)
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error
	PublicURL(path string) string
}

type Config struct {
	DownloadTimeout  time.Duration
	UploadTimeout    time.Duration
	MaxDownloadBytes int64
	// MaxMedia is how many post media are relocated per creator.
	MaxMedia int
}

type Relocator struct {
	store      ObjectStore
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

func NewRelocator(store ObjectStore, cfg Config, logger *slog.Logger) *Relocator {
	return &Relocator{
		store:      store,
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger.With("component", "media"),
	}
}

// MediaSlot names the n-th relocated post media, starting at 1.
func MediaSlot(n int) string {
	return fmt.Sprintf("media_%d", n)
}

// ObjectPath is the canonical location of a creator's slot.
func ObjectPath(handle, slot, ext string) string {
	return extract.SanitizeHandle(handle) + "/" + slot + ext
}

// RelocateCreator re-hosts the avatar and the first media of up to MaxMedia posts.
// Failures are logged and the affected slot is omitted from the result.
func (r *Relocator) RelocateCreator(ctx context.Context, rec *domain.CreatorRecord) domain.MediaUpdate {
	update := domain.MediaUpdate{PostMedia: map[int]string{}}
	logger := r.logger.With("handle", rec.Handle, "platform", rec.Platform)

	if rec.AvatarURL != "" {
		u, err := r.Relocate(ctx, rec.Handle, SlotProfile, rec.AvatarURL, "")
		if err != nil {
			logger.Warn("relocate avatar failed", "error", err)
		} else if u != rec.AvatarURL {
			update.AvatarURL = u
		}
	}

	n := 0
	for i, post := range rec.Posts {
		if n >= r.cfg.MaxMedia {
			break
		}
		if post.MediaURL == "" {
			continue
		}
		n++

		u, err := r.Relocate(ctx, rec.Handle, MediaSlot(n), post.MediaURL, post.MediaContentType)
		if err != nil {
			logger.Warn("relocate post media failed", "slot", MediaSlot(n), "error", err)
			continue
		}
		if u != post.MediaURL {
			update.PostMedia[i] = u
		}
	}

	logger.Debug("media relocated",
		"avatar", update.AvatarURL != "",
		"posts", len(update.PostMedia),
	)

	return update
}

// Relocate copies one source URL into slot and returns its public URL. An object
// already stored for the same source is reused without any transfer.
func (r *Relocator) Relocate(ctx context.Context, handle, slot, sourceURL, contentTypeHint string) (string, error) {
	if sourceURL == "" {
		return "", errors.New("empty source url")
	}
	if r.isHosted(sourceURL) {
		return sourceURL, nil
	}

	ext, contentType := DeriveFormat(sourceURL, contentTypeHint)
	if needsTranscode(contentType) {
		ext, contentType = ".jpg", "image/jpeg"
	}

	objectPath := ObjectPath(handle, slot, ext)
	digest := SourceDigest(sourceURL)

	stored, err := r.stored(ctx, objectPath, digest)
	if err != nil {
		return "", err
	}
	if stored {
		return r.store.PublicURL(objectPath), nil
	}

	data, fetchedType, err := r.download(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	// The served type wins over the one guessed from the URL.
	if needsTranscode(fetchedType) {
		converted, err := toJPEG(data, fetchedType)
		if err != nil {
			return "", fmt.Errorf("transcode %s: %w", objectPath, err)
		}
		data, ext, contentType = converted, ".jpg", "image/jpeg"
	} else if e, ok := contentTypeExts[strings.ToLower(fetchedType)]; ok {
		ext, contentType = e, extContentTypes[e]
	}

	if p := ObjectPath(handle, slot, ext); p != objectPath {
		objectPath = p
		stored, err := r.stored(ctx, objectPath, digest)
		if err != nil {
			return "", err
		}
		if stored {
			return r.store.PublicURL(objectPath), nil
		}
	}

	putCtx, cancel := context.WithTimeout(ctx, r.cfg.UploadTimeout)
	defer cancel()

	if err := r.store.Put(putCtx, objectPath, data, contentType, map[string]string{DigestKey: digest}); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}

	return r.store.PublicURL(objectPath), nil
}

// stored reports whether path already holds the object copied from digest's source.
func (r *Relocator) stored(ctx context.Context, path, digest string) (bool, error) {
	info, err := r.store.Stat(ctx, path)
	switch {
	case err == nil:
		return info.Metadata[DigestKey] == digest, nil
	case errors.Is(err, domain.ErrObjectNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}

func (r *Relocator) download(ctx context.Context, sourceURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download: unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > r.cfg.MaxDownloadBytes {
		return nil, "", fmt.Errorf("download: body exceeds %d bytes", r.cfg.MaxDownloadBytes)
	}

	contentType, _, _ := strings.Cut(resp.Header.Get("Content-Type"), ";")
	contentType = strings.TrimSpace(contentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	return data, contentType, nil
}

func (r *Relocator) isHosted(u string) bool {
	prefix := r.store.PublicURL("")
	return prefix != "" && strings.HasPrefix(u, prefix)
}

// DeriveFormat picks the stored extension and content type of a source URL:
// the URL path extension first, then the hint, then a video/image guess from the path.
func DeriveFormat(sourceURL, hint string) (string, string) {
	p := sourceURL
	if parsed, err := url.Parse(sourceURL); err == nil {
		p = parsed.Path
	}

	ext := strings.ToLower(path.Ext(p))
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if ct, ok := extContentTypes[ext]; ok {
		return ext, ct
	}

	if hint != "" {
		if e, ok := contentTypeExts[strings.ToLower(hint)]; ok {
			return e, extContentTypes[e]
		}
	}

	if strings.Contains(strings.ToLower(p), "video") {
		return ".mp4", "video/mp4"
	}
	return ".jpg", "image/jpeg"
}

// SourceDigest identifies a source independently of its expiring query signature.
func SourceDigest(sourceURL string) string {
	base, _, _ := strings.Cut(sourceURL, "?")
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

var extContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

var contentTypeExts = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/heif":      ".heif",
	"image/tiff":      ".tiff",
	"image/bmp":       ".bmp",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}
