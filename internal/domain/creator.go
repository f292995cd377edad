package domain

import (
	"fmt"
	"strings"
	"time"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// ParsePlatform accepts any casing ("Instagram", "TIKTOK").
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformInstagram:
		return PlatformInstagram, nil
	case PlatformTikTok:
		return PlatformTikTok, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
	}
}

// ProfileURL returns the public profile link for a handle on the platform.
func (p Platform) ProfileURL(handle string) string {
	switch p {
	case PlatformTikTok:
		return "https://www.tiktok.com/@" + handle
	default:
		return "https://instagram.com/" + handle
	}
}

// Target is one entry of a job's ordered input list.
type Target struct {
	Handle   string   `json:"handle"`
	Platform Platform `json:"platform"`
}

func (t Target) String() string {
	return fmt.Sprintf("@%s (%s)", t.Handle, t.Platform)
}

type ChangeType string

const (
	ChangePositive ChangeType = "positive"
	ChangeNegative ChangeType = "negative"
	ChangeZero     ChangeType = "zero"
)

// Change is a percentage delta against the previous snapshot.
type Change struct {
	Percent float64    `json:"percent"`
	Type    ChangeType `json:"type"`
}

// PostSnapshot is a normalized post kept on the creator record.
type PostSnapshot struct {
	Caption          string     `json:"caption"`
	Likes            *int64     `json:"likes,omitempty"`
	Comments         *int64     `json:"comments,omitempty"`
	Views            *int64     `json:"views,omitempty"`
	Shares           *int64     `json:"shares,omitempty"`
	Hashtags         []string   `json:"hashtags"`
	Mentions         []string   `json:"mentions"`
	IsPaidPartner    bool       `json:"is_paid_partnership"`
	MediaURL         string     `json:"media_url,omitempty"`
	MediaContentType string     `json:"media_content_type,omitempty"`
	ShareURL         string     `json:"share_url,omitempty"`
	IsVideo          bool       `json:"is_video"`
	IsCarousel       bool       `json:"is_carousel"`
	Location         string     `json:"location,omitempty"`
	PostedAt         *time.Time `json:"posted_at,omitempty"`
}

// CreatorRecord is the persisted creator entity, unique per (platform, handle).
type CreatorRecord struct {
	ID          int64    `json:"id"`
	Platform    Platform `json:"platform"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"display_name"`
	ProfileURL  string   `json:"profile_url"`
	AvatarURL   string   `json:"avatar_url"`
	Bio         string   `json:"bio"`
	Emails      []string `json:"emails"`
	BioLinks    []string `json:"bio_links"`
	Verified    bool     `json:"verified"`

	PrimaryNiche   string `json:"primary_niche"`
	SecondaryNiche string `json:"secondary_niche"`
	Location       string `json:"location"`

	Followers      int64   `json:"followers"`
	Following      int64   `json:"following"`
	AvgLikes       int64   `json:"avg_likes"`
	AvgComments    int64   `json:"avg_comments"`
	AvgViews       int64   `json:"avg_views"`
	EngagementRate float64 `json:"engagement_rate"`

	FollowersChange      Change `json:"followers_change"`
	EngagementRateChange Change `json:"engagement_rate_change"`
	AvgViewsChange       Change `json:"avg_views_change"`
	AvgLikesChange       Change `json:"avg_likes_change"`
	AvgCommentsChange    Change `json:"avg_comments_change"`
	BuzzScore            int    `json:"buzz_score"`

	BrandTags        []string       `json:"brand_tags"`
	Hashtags         []string       `json:"hashtags"`
	PastAdPlacements []string       `json:"past_ad_placements"`
	Posts            []PostSnapshot `json:"posts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *CreatorRecord) Target() Target {
	return Target{Handle: c.Handle, Platform: c.Platform}
}

// HasEngagement reports whether any averaged engagement metric is non-zero.
func (c *CreatorRecord) HasEngagement() bool {
	return c.AvgLikes != 0 || c.AvgComments != 0 || c.AvgViews != 0 || c.EngagementRate != 0
}

// MediaUpdate carries relocated URLs to write back onto a stored creator.
// Empty AvatarURL means the profile image was not relocated. PostMedia is keyed
// by index into CreatorRecord.Posts.
type MediaUpdate struct {
	AvatarURL string
	PostMedia map[int]string
}

func (m MediaUpdate) Empty() bool {
	return m.AvatarURL == "" && len(m.PostMedia) == 0
}

// RawProfilePayload is the typed shape of a scrape response, with every
// optional field defaulted at the source boundary.
type RawProfilePayload struct {
	Platform    Platform
	Handle      string
	DisplayName string
	Bio         string
	AvatarURL   string
	Followers   int64
	Following   int64
	Verified    bool
	BioLinks    []string
	Posts       []RawPost
}

type RawPost struct {
	Caption          string
	Likes            *int64
	Comments         *int64
	Views            *int64
	Shares           *int64
	MediaURLs        []string
	MediaContentType string
	ShareURL         string
	PartnershipLabel string
	TaggedUsers      []string
	PostedAt         *time.Time
	Region           string
	LocationName     string
	IsVideo          bool
	IsCarousel       bool
}
