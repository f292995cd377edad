package stats

import (
	"math"

	"creator_sync/internal/domain"
)

// DefaultBuzzScore is assigned when there is no prior snapshot to compare against.
const DefaultBuzzScore = 50

// BuzzWeights blends the three buzz components. They are expected to sum to 1.
type BuzzWeights struct {
	Growth      float64 `yaml:"growth" validate:"gte=0,lte=1"`
	Engagement  float64 `yaml:"engagement" validate:"gte=0,lte=1"`
	Consistency float64 `yaml:"consistency" validate:"gte=0,lte=1"`
}

func DefaultBuzzWeights() BuzzWeights {
	return BuzzWeights{Growth: 0.45, Engagement: 0.35, Consistency: 0.20}
}

// BuzzBreakdown exposes the component scores behind a buzz score.
type BuzzBreakdown struct {
	Growth      int
	Engagement  int
	Consistency int
	Score       int
}

// BuzzScore rates a refreshed snapshot against the previous one on a 0-100 scale.
// A nil previous snapshot, or one without followers, yields DefaultBuzzScore.
func BuzzScore(current, previous *domain.CreatorRecord, w BuzzWeights) int {
	return Buzz(current, previous, w).Score
}

func Buzz(current, previous *domain.CreatorRecord, w BuzzWeights) BuzzBreakdown {
	if current == nil || previous == nil || previous.Followers <= 0 {
		return BuzzBreakdown{Score: DefaultBuzzScore}
	}

	viewsNow := nonEmpty(Views(current.Posts))
	viewsBefore := nonEmpty(Views(previous.Posts))
	medianNow := Median(viewsNow)

	b := BuzzBreakdown{
		Growth: growthScore(
			0.35*growth(medianNow, Median(viewsBefore)) +
				0.35*growth(float64(current.Followers), float64(previous.Followers)) +
				0.15*growth(float64(current.AvgLikes), float64(previous.AvgLikes)) +
				0.15*growth(float64(current.AvgComments), float64(previous.AvgComments)),
		),
		Engagement:  engagementScore(current.AvgLikes, current.AvgComments, current.Followers),
		Consistency: consistencyScore(viewsNow, medianNow, current.Followers),
	}

	score := float64(b.Growth)*w.Growth +
		float64(b.Engagement)*w.Engagement +
		float64(b.Consistency)*w.Consistency
	if math.IsNaN(score) {
		score = DefaultBuzzScore
	}
	b.Score = clamp(int(score), 0, 100)
	return b
}

func growth(now, before float64) float64 {
	if before == 0 {
		return 0
	}
	return (now - before) / before
}

func growthScore(avg float64) int {
	switch {
	case avg >= 0.4:
		return 100
	case avg >= 0.2:
		return 80
	case avg >= 0.05:
		return 60
	case avg >= 0:
		return 45
	default:
		return 30
	}
}

func engagementScore(likes, comments, followers int64) int {
	var rate, ratio float64
	if followers > 0 {
		rate = float64(likes+comments) / float64(followers)
	}
	if likes > 0 {
		ratio = float64(comments) / float64(likes)
	}

	score := 25
	switch {
	case rate >= 0.06:
		score = 100
	case rate >= 0.04:
		score = 80
	case rate >= 0.02:
		score = 60
	case rate >= 0.01:
		score = 40
	}
	if ratio >= 0.10 {
		score += 5
	}
	return min(score, 100)
}

func consistencyScore(views []float64, median float64, followers int64) int {
	var volatility float64
	if median > 0 {
		volatility = StdDev(views) / median
	}

	score := 40
	switch {
	case volatility <= 0.4:
		score = 100
	case volatility <= 0.6:
		score = 80
	case volatility <= 0.8:
		score = 60
	}

	threshold := math.Max(2*median, 1.5*float64(followers))
	viral := 0
	for _, v := range views {
		if v > threshold {
			viral++
		}
	}

	switch {
	case viral >= 4:
		score += 15
	case viral >= 2:
		score += 10
	}
	return min(score, 100)
}

func nonEmpty(views []float64) []float64 {
	if len(views) == 0 {
		return []float64{0}
	}
	return views
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
