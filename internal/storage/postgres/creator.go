package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"creator_sync/internal/domain"
)

type creatorRow struct {
	ID                       int64                        `db:"id"`
	Platform                 string                       `db:"platform"`
	Handle                   string                       `db:"handle"`
	DisplayName              string                       `db:"display_name"`
	ProfileURL               string                       `db:"profile_url"`
	AvatarURL                string                       `db:"avatar_url"`
	Bio                      string                       `db:"bio"`
	Emails                   pq.StringArray               `db:"emails"`
	BioLinks                 pq.StringArray               `db:"bio_links"`
	Verified                 bool                         `db:"verified"`
	PrimaryNiche             string                       `db:"primary_niche"`
	SecondaryNiche           string                       `db:"secondary_niche"`
	Location                 string                       `db:"location"`
	Followers                int64                        `db:"followers"`
	Following                int64                        `db:"following"`
	AvgLikes                 int64                        `db:"avg_likes"`
	AvgComments              int64                        `db:"avg_comments"`
	AvgViews                 int64                        `db:"avg_views"`
	EngagementRate           float64                      `db:"engagement_rate"`
	FollowersChange          float64                      `db:"followers_change"`
	FollowersChangeType      string                       `db:"followers_change_type"`
	EngagementRateChange     float64                      `db:"engagement_rate_change"`
	EngagementRateChangeType string                       `db:"engagement_rate_change_type"`
	AvgViewsChange           float64                      `db:"avg_views_change"`
	AvgViewsChangeType       string                       `db:"avg_views_change_type"`
	AvgLikesChange           float64                      `db:"avg_likes_change"`
	AvgLikesChangeType       string                       `db:"avg_likes_change_type"`
	AvgCommentsChange        float64                      `db:"avg_comments_change"`
	AvgCommentsChangeType    string                       `db:"avg_comments_change_type"`
	BuzzScore                int                          `db:"buzz_score"`
	BrandTags                pq.StringArray               `db:"brand_tags"`
	Hashtags                 pq.StringArray               `db:"hashtags"`
	PastAdPlacements         pq.StringArray               `db:"past_ad_placements"`
	Posts                    jsonb[[]domain.PostSnapshot] `db:"posts"`
	CreatedAt                time.Time                    `db:"created_at"`
	UpdatedAt                time.Time                    `db:"updated_at"`
}

const creatorColumns = `
	id, platform, handle, display_name, profile_url, avatar_url, bio, emails, bio_links, verified,
	primary_niche, secondary_niche, location,
	followers, following, avg_likes, avg_comments, avg_views, engagement_rate,
	followers_change, followers_change_type, engagement_rate_change, engagement_rate_change_type,
	avg_views_change, avg_views_change_type, avg_likes_change, avg_likes_change_type,
	avg_comments_change, avg_comments_change_type, buzz_score,
	brand_tags, hashtags, past_ad_placements, posts, created_at, updated_at`

func (r *creatorRow) toDomain() *domain.CreatorRecord {
	return &domain.CreatorRecord{
		ID:                   r.ID,
		Platform:             domain.Platform(r.Platform),
		Handle:               r.Handle,
		DisplayName:          r.DisplayName,
		ProfileURL:           r.ProfileURL,
		AvatarURL:            r.AvatarURL,
		Bio:                  r.Bio,
		Emails:               []string(r.Emails),
		BioLinks:             []string(r.BioLinks),
		Verified:             r.Verified,
		PrimaryNiche:         r.PrimaryNiche,
		SecondaryNiche:       r.SecondaryNiche,
		Location:             r.Location,
		Followers:            r.Followers,
		Following:            r.Following,
		AvgLikes:             r.AvgLikes,
		AvgComments:          r.AvgComments,
		AvgViews:             r.AvgViews,
		EngagementRate:       r.EngagementRate,
		FollowersChange:      domain.Change{Percent: r.FollowersChange, Type: domain.ChangeType(r.FollowersChangeType)},
		EngagementRateChange: domain.Change{Percent: r.EngagementRateChange, Type: domain.ChangeType(r.EngagementRateChangeType)},
		AvgViewsChange:       domain.Change{Percent: r.AvgViewsChange, Type: domain.ChangeType(r.AvgViewsChangeType)},
		AvgLikesChange:       domain.Change{Percent: r.AvgLikesChange, Type: domain.ChangeType(r.AvgLikesChangeType)},
		AvgCommentsChange:    domain.Change{Percent: r.AvgCommentsChange, Type: domain.ChangeType(r.AvgCommentsChangeType)},
		BuzzScore:            r.BuzzScore,
		BrandTags:            []string(r.BrandTags),
		Hashtags:             []string(r.Hashtags),
		PastAdPlacements:     []string(r.PastAdPlacements),
		Posts:                r.Posts.V,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type CreatorStore struct {
	db *sqlx.DB
}

func NewCreatorStore(db *sqlx.DB) *CreatorStore {
	return &CreatorStore{db: db}
}

// Find returns domain.ErrCreatorNotFound when no creator has the handle on the platform.
func (s *CreatorStore) Find(ctx context.Context, platform domain.Platform, handle string) (*domain.CreatorRecord, error) {
	query := `SELECT ` + creatorColumns + ` FROM creators WHERE platform = $1 AND handle = $2`

	var row creatorRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, platform, handle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCreatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find creator: %w", err)
	}
	return row.toDomain(), nil
}

// Insert stores a new creator and returns its id. A concurrent insert of the
// same (platform, handle) surfaces as domain.ErrDuplicateCreator.
func (s *CreatorStore) Insert(ctx context.Context, c *domain.CreatorRecord) (int64, error) {
	query := `
		INSERT INTO creators (
			platform, handle, display_name, profile_url, avatar_url, bio, emails, bio_links, verified,
			primary_niche, secondary_niche, location,
			followers, following, avg_likes, avg_comments, avg_views, engagement_rate,
			followers_change, followers_change_type, engagement_rate_change, engagement_rate_change_type,
			avg_views_change, avg_views_change_type, avg_likes_change, avg_likes_change_type,
			avg_comments_change, avg_comments_change_type, buzz_score,
			brand_tags, hashtags, past_ad_placements, posts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26,
			$27, $28, $29,
			$30, $31, $32, $33, $34, $35
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		c.Platform, c.Handle, c.DisplayName, c.ProfileURL, c.AvatarURL, c.Bio,
		pq.StringArray(nonNil(c.Emails)), pq.StringArray(nonNil(c.BioLinks)), c.Verified,
		c.PrimaryNiche, c.SecondaryNiche, c.Location,
		c.Followers, c.Following, c.AvgLikes, c.AvgComments, c.AvgViews, c.EngagementRate,
		c.FollowersChange.Percent, changeType(c.FollowersChange),
		c.EngagementRateChange.Percent, changeType(c.EngagementRateChange),
		c.AvgViewsChange.Percent, changeType(c.AvgViewsChange),
		c.AvgLikesChange.Percent, changeType(c.AvgLikesChange),
		c.AvgCommentsChange.Percent, changeType(c.AvgCommentsChange),
		c.BuzzScore,
		pq.StringArray(nonNil(c.BrandTags)), pq.StringArray(nonNil(c.Hashtags)), pq.StringArray(nonNil(c.PastAdPlacements)),
		jsonb[[]domain.PostSnapshot]{V: nonNilPosts(c.Posts)},
		c.CreatedAt, c.UpdatedAt,
	).Scan(&id)

	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert creator @%s: %w", c.Handle, domain.ErrDuplicateCreator)
	}
	if err != nil {
		return 0, fmt.Errorf("insert creator: %w", err)
	}
	return id, nil
}

// Update rewrites the refreshable fields of a stored creator. primary_niche and
// created_at are never touched.
func (s *CreatorStore) Update(ctx context.Context, c *domain.CreatorRecord) error {
	query := `
		UPDATE creators SET
			display_name = $2, profile_url = $3, avatar_url = $4, bio = $5,
			emails = $6, bio_links = $7, verified = $8,
			secondary_niche = $9, location = $10,
			followers = $11, following = $12, avg_likes = $13, avg_comments = $14, avg_views = $15,
			engagement_rate = $16,
			followers_change = $17, followers_change_type = $18,
			engagement_rate_change = $19, engagement_rate_change_type = $20,
			avg_views_change = $21, avg_views_change_type = $22,
			avg_likes_change = $23, avg_likes_change_type = $24,
			avg_comments_change = $25, avg_comments_change_type = $26,
			buzz_score = $27,
			brand_tags = $28, hashtags = $29, past_ad_placements = $30,
			posts = $31, updated_at = $32
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		c.ID,
		c.DisplayName, c.ProfileURL, c.AvatarURL, c.Bio,
		pq.StringArray(nonNil(c.Emails)), pq.StringArray(nonNil(c.BioLinks)), c.Verified,
		c.SecondaryNiche, c.Location,
		c.Followers, c.Following, c.AvgLikes, c.AvgComments, c.AvgViews,
		c.EngagementRate,
		c.FollowersChange.Percent, changeType(c.FollowersChange),
		c.EngagementRateChange.Percent, changeType(c.EngagementRateChange),
		c.AvgViewsChange.Percent, changeType(c.AvgViewsChange),
		c.AvgLikesChange.Percent, changeType(c.AvgLikesChange),
		c.AvgCommentsChange.Percent, changeType(c.AvgCommentsChange),
		c.BuzzScore,
		pq.StringArray(nonNil(c.BrandTags)), pq.StringArray(nonNil(c.Hashtags)), pq.StringArray(nonNil(c.PastAdPlacements)),
		jsonb[[]domain.PostSnapshot]{V: nonNilPosts(c.Posts)}, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update creator: %w", err)
	}
	return expectOneRow(res, domain.ErrCreatorNotFound)
}

// UpdateMedia writes relocated media URLs back onto a stored creator.
func (s *CreatorStore) UpdateMedia(ctx context.Context, id int64, avatarURL string, posts []domain.PostSnapshot) error {
	query := `UPDATE creators SET avatar_url = $2, posts = $3 WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, id, avatarURL, jsonb[[]domain.PostSnapshot]{V: nonNilPosts(posts)})
	if err != nil {
		return fmt.Errorf("update creator media: %w", err)
	}
	return expectOneRow(res, domain.ErrCreatorNotFound)
}

// ListTargets returns stored creators of a niche, least recently refreshed first.
func (s *CreatorStore) ListTargets(ctx context.Context, primaryNiche string, platform *domain.Platform) ([]domain.Target, error) {
	query := `
		SELECT handle, platform FROM creators
		WHERE primary_niche = $1 AND ($2::text IS NULL OR platform = $2)
		ORDER BY updated_at ASC, id ASC`

	var platformArg *string
	if platform != nil {
		p := string(*platform)
		platformArg = &p
	}

	var targets []domain.Target
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &targets, query, primaryNiche, platformArg); err != nil {
		return nil, fmt.Errorf("list creator targets: %w", err)
	}
	return targets, nil
}

func changeType(c domain.Change) string {
	if c.Type == "" {
		return string(domain.ChangeZero)
	}
	return string(c.Type)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilPosts(p []domain.PostSnapshot) []domain.PostSnapshot {
	if p == nil {
		return []domain.PostSnapshot{}
	}
	return p
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
