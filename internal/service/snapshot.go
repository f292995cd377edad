package service

import (
	"creator_sync/internal/classifier"
	"creator_sync/internal/domain"
	"creator_sync/internal/extract"
	"creator_sync/internal/stats"
)

// snapshot is a freshly built creator record plus the inputs the classifier needs.
type snapshot struct {
	record      *domain.CreatorRecord
	hashtags    []string
	taggedUsers []string
	location    classifier.LocationHints
}

// buildSnapshot normalizes a scrape payload into a creator record. Classification
// fields, identity and timestamps are left for the reconciler to fill.
func buildSnapshot(p *domain.RawProfilePayload, primaryNiche string, maxPosts, skipRecent int) snapshot {
	raw := p.Posts
	if maxPosts > 0 && len(raw) > maxPosts {
		raw = raw[:maxPosts]
	}

	posts := make([]domain.PostSnapshot, 0, len(raw))
	var hashtags, tagged, pastAds, captions, locationTags []string

	for _, rp := range raw {
		tags := extract.Hashtags(rp.Caption)
		paid := extract.IsPaidPartnership(rp.PartnershipLabel)
		mentions := extract.Unique(append(append([]string{}, rp.TaggedUsers...), extract.Mentions(rp.Caption)...))

		post := domain.PostSnapshot{
			Caption:          rp.Caption,
			Likes:            rp.Likes,
			Comments:         rp.Comments,
			Views:            rp.Views,
			Shares:           rp.Shares,
			Hashtags:         tags,
			Mentions:         mentions,
			IsPaidPartner:    paid,
			MediaContentType: rp.MediaContentType,
			ShareURL:         rp.ShareURL,
			IsVideo:          rp.IsVideo,
			IsCarousel:       rp.IsCarousel,
			Location:         rp.LocationName,
			PostedAt:         rp.PostedAt,
		}
		if len(rp.MediaURLs) > 0 {
			post.MediaURL = rp.MediaURLs[0]
		}
		posts = append(posts, post)

		hashtags = append(hashtags, tags...)
		tagged = append(tagged, rp.TaggedUsers...)
		if paid {
			pastAds = append(pastAds, rp.TaggedUsers...)
		}
		captions = append(captions, rp.Caption)
		if rp.LocationName != "" {
			locationTags = append(locationTags, rp.LocationName)
		}
	}

	// The newest posts are still accruing engagement and would drag the averages down.
	window := posts[min(skipRecent, len(posts)):]
	means := stats.Averages(window)

	rec := &domain.CreatorRecord{
		Platform:         p.Platform,
		Handle:           p.Handle,
		DisplayName:      p.DisplayName,
		ProfileURL:       p.Platform.ProfileURL(p.Handle),
		AvatarURL:        p.AvatarURL,
		Bio:              p.Bio,
		Emails:           extract.Emails(p.Bio),
		BioLinks:         extract.Unique(p.BioLinks),
		Verified:         p.Verified,
		PrimaryNiche:     primaryNiche,
		Followers:        p.Followers,
		Following:        p.Following,
		AvgLikes:         means.Likes,
		AvgComments:      means.Comments,
		AvgViews:         means.Views,
		EngagementRate:   stats.EngagementRate(means.TotalLikes, means.TotalComments, p.Followers),
		BrandTags:        extract.Unique(tagged),
		Hashtags:         extract.Unique(hashtags),
		PastAdPlacements: extract.Unique(pastAds),
		Posts:            posts,
	}
	zero := domain.Change{Type: domain.ChangeZero}
	rec.FollowersChange = zero
	rec.EngagementRateChange = zero
	rec.AvgViewsChange = zero
	rec.AvgLikesChange = zero
	rec.AvgCommentsChange = zero

	return snapshot{
		record:      rec,
		hashtags:    hashtags,
		taggedUsers: tagged,
		location: classifier.LocationHints{
			Region:       extract.Region(p.Posts),
			Bio:          p.Bio,
			LocationTags: locationTags,
			Captions:     captions,
		},
	}
}

// applyChanges fills the percentage changes of current against previous.
func applyChanges(current, previous *domain.CreatorRecord) {
	current.FollowersChange = stats.PercentageChange(float64(previous.Followers), float64(current.Followers))
	current.EngagementRateChange = stats.PercentageChange(previous.EngagementRate, current.EngagementRate)
	current.AvgViewsChange = stats.PercentageChange(float64(previous.AvgViews), float64(current.AvgViews))
	current.AvgLikesChange = stats.PercentageChange(float64(previous.AvgLikes), float64(current.AvgLikes))
	current.AvgCommentsChange = stats.PercentageChange(float64(previous.AvgComments), float64(current.AvgComments))
}
