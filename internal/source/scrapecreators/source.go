package scrapecreators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
)

const (
	SourceID = "scrapecreators"

	instagramProfilePath = "/v1/instagram/profile"
	instagramPostsPath   = "/v2/instagram/user/posts"
	tiktokVideosPath     = "/v3/tiktok/profile/videos"

	// taken_at values above this are milliseconds rather than seconds.
	millisecondThreshold = 9_999_999_999
)

// Config holds ScrapeCreators client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// Source fetches creator profiles from the ScrapeCreators API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		limiter:        rate.NewLimiter(limit, burst),
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// FetchProfile returns the profile and recent posts of one creator.
// Errors wrap domain.ErrNotFound, ErrAccessDenied, ErrRateLimited, ErrServer or ErrTimeout.
func (s *Source) FetchProfile(ctx context.Context, platform domain.Platform, handle string) (*domain.RawProfilePayload, error) {
	switch platform {
	case domain.PlatformInstagram:
		return s.fetchInstagram(ctx, handle)
	case domain.PlatformTikTok:
		return s.fetchTikTok(ctx, handle)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, platform)
	}
}

func (s *Source) fetchInstagram(ctx context.Context, handle string) (*domain.RawProfilePayload, error) {
	var profile InstagramProfileResponse
	if err := s.get(ctx, instagramProfilePath, handle, &profile); err != nil {
		return nil, fmt.Errorf("fetch instagram profile: %w", err)
	}
	if profile.Data == nil || profile.Data.User == nil {
		return nil, fmt.Errorf("fetch instagram profile: %w: response has no user", domain.ErrNotFound)
	}

	var posts InstagramPostsResponse
	if err := s.get(ctx, instagramPostsPath, handle, &posts); err != nil {
		return nil, fmt.Errorf("fetch instagram posts: %w", err)
	}

	payload := transformInstagram(handle, profile.Data.User, posts.Items)

	s.logger.Debug("fetched instagram profile",
		"handle", handle,
		"followers", payload.Followers,
		"posts", len(payload.Posts),
	)

	return payload, nil
}

func (s *Source) fetchTikTok(ctx context.Context, handle string) (*domain.RawProfilePayload, error) {
	var resp TikTokVideosResponse
	if err := s.get(ctx, tiktokVideosPath, handle, &resp); err != nil {
		return nil, fmt.Errorf("fetch tiktok videos: %w", err)
	}
	if len(resp.AwemeList) == 0 {
		return nil, fmt.Errorf("fetch tiktok videos: %w: no videos", domain.ErrNotFound)
	}

	payload := transformTikTok(handle, resp.AwemeList)

	s.logger.Debug("fetched tiktok profile",
		"handle", handle,
		"followers", payload.Followers,
		"posts", len(payload.Posts),
	)

	return payload, nil
}

func (s *Source) get(ctx context.Context, path, handle string, out any) error {
	endpoint := s.baseURL + path + "?handle=" + url.QueryEscape(handle)

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.doRequest(ctx, endpoint, out)
		if err == nil || !retryable(err) {
			return err
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"handle", handle,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrTimeout, ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, endpoint string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: wait for rate limiter: %w", domain.ErrTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "CreatorSync/1.0")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: execute request: %w", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: execute request: %w", domain.ErrServer, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", domain.ErrAccessDenied, code)
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", domain.ErrServer, code)
	default:
		return fmt.Errorf("unexpected status: %d", code)
	}
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrServer) || errors.Is(err, domain.ErrTimeout)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func transformInstagram(handle string, user *InstagramUser, items []InstagramPost) *domain.RawProfilePayload {
	payload := &domain.RawProfilePayload{
		Platform:    domain.PlatformInstagram,
		Handle:      handle,
		DisplayName: user.FullName,
		Bio:         user.Biography,
		AvatarURL:   firstNonEmpty(user.ProfilePicHD, user.ProfilePicURL),
		Followers:   user.EdgeFollowedBy.Count,
		Following:   user.EdgeFollow.Count,
		Verified:    user.IsVerified,
		BioLinks:    []string{},
		Posts:       make([]domain.RawPost, 0, len(items)),
	}

	for _, link := range user.BioLinks {
		if link.URL != "" {
			payload.BioLinks = append(payload.BioLinks, link.URL)
		}
	}
	if user.ExternalURL != "" {
		payload.BioLinks = append(payload.BioLinks, user.ExternalURL)
	}
	payload.BioLinks = extract.Unique(payload.BioLinks)

	for _, item := range items {
		payload.Posts = append(payload.Posts, transformInstagramPost(item))
	}

	return payload
}

func transformInstagramPost(item InstagramPost) domain.RawPost {
	// Likes count as hidden unless the API says otherwise.
	hidden := item.LikesHidden == nil || *item.LikesHidden

	post := domain.RawPost{
		Caption:     item.Caption.Text,
		Comments:    item.CommentCount,
		Views:       item.PlayCount,
		IsVideo:     item.MediaType == 2 || item.MediaType == 8,
		IsCarousel:  item.CarouselMediaCount > 0,
		TaggedUsers: []string{},
		MediaURLs:   []string{},
	}
	if !hidden {
		post.Likes = item.LikeCount
		if post.Likes == nil {
			post.Likes = new(int64)
		}
	}
	if post.Comments == nil {
		post.Comments = new(int64)
	}
	if item.IsPaidPartnership {
		post.PartnershipLabel = extract.PaidPartnershipMarker
	}
	if item.Code != "" {
		post.ShareURL = "https://www.instagram.com/p/" + item.Code + "/"
	}
	if item.Location != nil {
		post.LocationName = item.Location.Name
	}
	if item.Usertags != nil {
		for _, tag := range item.Usertags.In {
			if tag.User.Username != "" {
				post.TaggedUsers = append(post.TaggedUsers, tag.User.Username)
			}
		}
	}
	if item.TakenAt > 0 {
		ts := item.TakenAt
		if ts > millisecondThreshold {
			ts /= 1000
		}
		t := time.Unix(ts, 0).UTC()
		post.PostedAt = &t
	}

	mediaURL, contentType := instagramMedia(item)
	if mediaURL != "" {
		post.MediaURLs = append(post.MediaURLs, mediaURL)
		post.MediaContentType = contentType
	}

	return post
}

func instagramMedia(item InstagramPost) (string, string) {
	if item.CarouselMediaCount > 0 && len(item.CarouselMedia) > 0 {
		first := item.CarouselMedia[0]
		if first.MediaType == 2 {
			if len(first.VideoVersions) > 0 && first.VideoVersions[0].URL != "" {
				return first.VideoVersions[0].URL, "video/mp4"
			}
			return first.DisplayURI, ""
		}
		if len(first.ImageVersions.Candidates) > 0 && first.ImageVersions.Candidates[0].URL != "" {
			return first.ImageVersions.Candidates[0].URL, ""
		}
		return first.DisplayURI, ""
	}

	if item.MediaType == 2 || item.MediaType == 8 {
		if ac := item.ImageVersions.AdditionalCandidates; ac != nil && ac.IgtvFirstFrame != nil && ac.IgtvFirstFrame.URL != "" {
			return ac.IgtvFirstFrame.URL, ""
		}
	}

	if len(item.ImageVersions.Candidates) > 0 && item.ImageVersions.Candidates[0].URL != "" {
		return item.ImageVersions.Candidates[0].URL, ""
	}
	return item.DisplayURI, ""
}

func transformTikTok(handle string, videos []TikTokVideo) *domain.RawProfilePayload {
	author := videos[0].Author

	payload := &domain.RawProfilePayload{
		Platform:    domain.PlatformTikTok,
		Handle:      firstNonEmpty(author.UniqueID, handle),
		DisplayName: author.Nickname,
		Bio:         author.Signature,
		AvatarURL:   firstNonEmpty(author.AvatarMedium.First(), author.AvatarThumb.First()),
		Followers:   author.FollowerCount,
		Following:   author.FollowingCount,
		Verified:    author.CustomVerify != "",
		BioLinks:    []string{},
		Posts:       make([]domain.RawPost, 0, len(videos)),
	}

	for _, v := range videos {
		post := domain.RawPost{
			Caption:     v.Desc,
			Likes:       valueOrZero(v.Statistics.DiggCount),
			Comments:    valueOrZero(v.Statistics.CommentCount),
			Views:       valueOrZero(v.Statistics.PlayCount),
			Shares:      v.Statistics.ShareCount,
			Region:      v.Region,
			IsVideo:     true,
			TaggedUsers: extract.Mentions(v.Desc),
			MediaURLs:   []string{},
			ShareURL:    v.ShareURL,
		}
		if post.ShareURL == "" && v.AwemeID != "" {
			post.ShareURL = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", payload.Handle, v.AwemeID)
		}
		if v.Commerce != nil {
			post.PartnershipLabel = v.Commerce.LabelText
		}
		if v.CreateTime > 0 {
			t := time.Unix(v.CreateTime, 0).UTC()
			post.PostedAt = &t
		}
		if cover := firstNonEmpty(v.Video.AIDynamicCover.First(), v.Video.Cover.First()); cover != "" {
			post.MediaURLs = append(post.MediaURLs, cover)
		}
		payload.Posts = append(payload.Posts, post)
	}

	return payload
}

func valueOrZero(v *int64) *int64 {
	if v == nil {
		return new(int64)
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
