package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gen2brain/heic"
	"github.com/stretchr/testify/suite"
	"golang.org/x/image/tiff"

	"creator_sync/internal/domain"
)

type storedObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	puts    map[string]int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]storedObject{}, puts: map[string]int{}}
}

func (m *memoryStore) Stat(_ context.Context, path string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return &ObjectInfo{ContentType: obj.contentType, Metadata: obj.metadata}, nil
}

func (m *memoryStore) Put(_ context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = storedObject{data: data, contentType: contentType, metadata: metadata}
	m.puts[path]++
	return nil
}

func (m *memoryStore) PublicURL(path string) string {
	return "https://storage.googleapis.com/creators/" + path
}

type RelocatorTestSuite struct {
	suite.Suite

	server    *httptest.Server
	downloads map[string]int
	mu        sync.Mutex

	store     *memoryStore
	relocator *Relocator
}

func (s *RelocatorTestSuite) SetupTest() {
	s.downloads = map[string]int{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.downloads[r.URL.Path]++
		s.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/missing"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, ".tiff"):
			w.Header().Set("Content-Type", "image/tiff")
			_, _ = w.Write(tiffBytes(s.T()))
		case strings.HasSuffix(r.URL.Path, ".heic"):
			w.Header().Set("Content-Type", "image/heic")
			_, _ = w.Write([]byte("heic-bytes"))
		case strings.HasPrefix(r.URL.Path, "/mislabeled"):
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes(s.T()))
		case strings.HasPrefix(r.URL.Path, "/huge"):
			_, _ = w.Write(bytes.Repeat([]byte{0xff}, 2048))
		default:
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))
		}
	}))

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.store = newMemoryStore()
	s.relocator = NewRelocator(s.store, Config{
		DownloadTimeout:  5 * time.Second,
		UploadTimeout:    5 * time.Second,
		MaxDownloadBytes: 1024,
		MaxMedia:         4,
	}, logger)
}

func (s *RelocatorTestSuite) TearDownTest() {
	s.server.Close()
}

func TestRelocatorTestSuite(t *testing.T) {
	suite.Run(t, new(RelocatorTestSuite))
}

func redSquare() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, redSquare()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func tiffBytes(t *testing.T) []byte {
	img := redSquare()
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return buf.Bytes()
}

func (s *RelocatorTestSuite) creator(postCount int) *domain.CreatorRecord {
	rec := &domain.CreatorRecord{
		ID:        7,
		Platform:  domain.PlatformInstagram,
		Handle:    "alice/crypto",
		AvatarURL: s.server.URL + "/avatar.jpg?sig=abc",
	}
	for i := 0; i < postCount; i++ {
		rec.Posts = append(rec.Posts, domain.PostSnapshot{
			MediaURL: s.server.URL + "/post" + string(rune('a'+i)) + ".jpg?sig=1",
		})
	}
	return rec
}

func (s *RelocatorTestSuite) TestRelocateCreator_Slots() {
	rec := s.creator(6)
	rec.Posts[1].MediaURL = ""

	update := s.relocator.RelocateCreator(context.Background(), rec)

	s.Equal("https://storage.googleapis.com/creators/alice_crypto/profile.jpg", update.AvatarURL)
	s.Len(update.PostMedia, 4)
	s.Equal("https://storage.googleapis.com/creators/alice_crypto/media_1.jpg", update.PostMedia[0])
	s.Equal("https://storage.googleapis.com/creators/alice_crypto/media_2.jpg", update.PostMedia[2])
	s.Equal("https://storage.googleapis.com/creators/alice_crypto/media_4.jpg", update.PostMedia[4])
	s.NotContains(update.PostMedia, 5)
	s.Len(s.store.objects, 5)
}

func (s *RelocatorTestSuite) TestRelocateCreator_Idempotent() {
	rec := s.creator(4)

	first := s.relocator.RelocateCreator(context.Background(), rec)

	// Same sources with fresh signatures.
	for i := range rec.Posts {
		rec.Posts[i].MediaURL = strings.Replace(rec.Posts[i].MediaURL, "sig=1", "sig=2", 1)
	}
	second := s.relocator.RelocateCreator(context.Background(), rec)

	s.Equal(first, second)
	for path, n := range s.store.puts {
		s.Equal(1, n, path)
	}
	for path, n := range s.downloads {
		s.Equal(1, n, path)
	}
}

func (s *RelocatorTestSuite) TestRelocate_ChangedSourceOverwrites() {
	ctx := context.Background()

	_, err := s.relocator.Relocate(ctx, "bob", MediaSlot(1), s.server.URL+"/old.jpg", "")
	s.Require().NoError(err)
	_, err = s.relocator.Relocate(ctx, "bob", MediaSlot(1), s.server.URL+"/new.jpg", "")
	s.Require().NoError(err)

	s.Equal(2, s.store.puts["bob/media_1.jpg"])
}

func (s *RelocatorTestSuite) TestRelocate_TranscodesTIFF() {
	u, err := s.relocator.Relocate(context.Background(), "bob", SlotProfile, s.server.URL+"/avatar.tiff", "")

	s.Require().NoError(err)
	s.Equal("https://storage.googleapis.com/creators/bob/profile.jpg", u)

	obj := s.store.objects["bob/profile.jpg"]
	s.Equal("image/jpeg", obj.contentType)
	_, err = jpeg.Decode(bytes.NewReader(obj.data))
	s.NoError(err)
}

func (s *RelocatorTestSuite) TestRelocate_TranscodesHEIC() {
	var decoded []byte
	decodeHEIF = func(r io.Reader) (image.Image, error) {
		decoded, _ = io.ReadAll(r)
		return redSquare(), nil
	}
	defer func() { decodeHEIF = heic.Decode }()

	u, err := s.relocator.Relocate(context.Background(), "bob", MediaSlot(1), s.server.URL+"/photo.heic", "")

	s.Require().NoError(err)
	s.Equal("https://storage.googleapis.com/creators/bob/media_1.jpg", u)
	s.Equal([]byte("heic-bytes"), decoded)
	s.NotContains(s.store.objects, "bob/media_1.heic")

	obj := s.store.objects["bob/media_1.jpg"]
	s.Equal("image/jpeg", obj.contentType)
	img, err := jpeg.Decode(bytes.NewReader(obj.data))
	s.Require().NoError(err)
	s.Equal(4, img.Bounds().Dx())
}

func (s *RelocatorTestSuite) TestRelocate_UndecodableHEIC() {
	_, err := s.relocator.Relocate(context.Background(), "bob", MediaSlot(1), s.server.URL+"/broken.heic", "")

	s.ErrorContains(err, "transcode")
	s.Empty(s.store.objects)
}

func (s *RelocatorTestSuite) TestRelocate_UsesServedContentType() {
	ctx := context.Background()
	source := s.server.URL + "/mislabeled.jpg?sig=1"

	u, err := s.relocator.Relocate(ctx, "bob", MediaSlot(1), source, "")

	s.Require().NoError(err)
	s.Equal("https://storage.googleapis.com/creators/bob/media_1.png", u)
	s.Equal("image/png", s.store.objects["bob/media_1.png"].contentType)
	s.NotContains(s.store.objects, "bob/media_1.jpg")

	again, err := s.relocator.Relocate(ctx, "bob", MediaSlot(1), s.server.URL+"/mislabeled.jpg?sig=2", "")

	s.Require().NoError(err)
	s.Equal(u, again)
	s.Equal(1, s.store.puts["bob/media_1.png"])
}

func (s *RelocatorTestSuite) TestRelocate_Failures() {
	ctx := context.Background()

	_, err := s.relocator.Relocate(ctx, "bob", MediaSlot(1), s.server.URL+"/missing.jpg", "")
	s.Error(err)

	_, err = s.relocator.Relocate(ctx, "bob", MediaSlot(2), s.server.URL+"/huge.jpg", "")
	s.ErrorContains(err, "exceeds")

	_, err = s.relocator.Relocate(ctx, "bob", MediaSlot(3), "", "")
	s.Error(err)

	s.Empty(s.store.objects)
}

func (s *RelocatorTestSuite) TestRelocateCreator_FailureOmitsSlot() {
	rec := s.creator(2)
	rec.Posts[0].MediaURL = s.server.URL + "/missing.jpg"

	update := s.relocator.RelocateCreator(context.Background(), rec)

	s.NotEmpty(update.AvatarURL)
	s.NotContains(update.PostMedia, 0)
	s.Equal("https://storage.googleapis.com/creators/alice_crypto/media_2.jpg", update.PostMedia[1])
}

func (s *RelocatorTestSuite) TestRelocate_AlreadyHosted() {
	hosted := "https://storage.googleapis.com/creators/bob/profile.jpg"

	u, err := s.relocator.Relocate(context.Background(), "bob", SlotProfile, hosted, "")

	s.NoError(err)
	s.Equal(hosted, u)
	s.Empty(s.downloads)
}

func (s *RelocatorTestSuite) TestDeriveFormat() {
	cases := []struct {
		url, hint, ext, contentType string
	}{
		{"https://cdn.example.com/a/b.JPEG?x=1", "", ".jpg", "image/jpeg"},
		{"https://cdn.example.com/a/b.png", "video/mp4", ".png", "image/png"},
		{"https://cdn.example.com/a/b", "video/mp4", ".mp4", "video/mp4"},
		{"https://cdn.example.com/video/stream", "", ".mp4", "video/mp4"},
		{"https://cdn.example.com/img/stream", "", ".jpg", "image/jpeg"},
		{"https://cdn.example.com/a.heic", "", ".heic", "image/heic"},
	}
	for _, tc := range cases {
		ext, ct := DeriveFormat(tc.url, tc.hint)
		s.Equal(tc.ext, ext, tc.url)
		s.Equal(tc.contentType, ct, tc.url)
	}
}

func (s *RelocatorTestSuite) TestSourceDigest_IgnoresQuery() {
	s.Equal(SourceDigest("https://a/b.jpg?sig=1"), SourceDigest("https://a/b.jpg?sig=2"))
	s.NotEqual(SourceDigest("https://a/b.jpg"), SourceDigest("https://a/c.jpg"))
}
