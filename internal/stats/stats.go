// Package stats holds the pure metric functions used when building creator snapshots.
package stats

import (
	"math"
	"sort"

	"creator_sync/internal/domain"
)

// MaxChangePercent bounds PercentageChange so a near-zero baseline cannot produce absurd deltas.
const MaxChangePercent = 1000.0

// Means holds per-metric averages, totals and the post counts they were taken over.
type Means struct {
	Likes    int64
	Comments int64
	Views    int64

	TotalLikes    int64
	TotalComments int64

	LikesSamples    int
	CommentsSamples int
	ViewsSamples    int
}

// Averages returns the integer-truncated mean of each metric over the posts that carry it.
// A metric no post carries averages to 0.
func Averages(posts []domain.PostSnapshot) Means {
	var likes, comments, views int64
	var m Means

	for _, p := range posts {
		if p.Likes != nil {
			likes += *p.Likes
			m.LikesSamples++
		}
		if p.Comments != nil {
			comments += *p.Comments
			m.CommentsSamples++
		}
		if p.Views != nil {
			views += *p.Views
			m.ViewsSamples++
		}
	}

	m.TotalLikes = likes
	m.TotalComments = comments
	m.Likes = mean(likes, m.LikesSamples)
	m.Comments = mean(comments, m.CommentsSamples)
	m.Views = mean(views, m.ViewsSamples)
	return m
}

func mean(total int64, n int) int64 {
	if n == 0 {
		return 0
	}
	return total / int64(n)
}

// EngagementRate is 100*(likes+comments)/followers rounded to two decimals, 0 without followers.
func EngagementRate(likes, comments, followers int64) float64 {
	if followers <= 0 {
		return 0
	}
	return Round2(100 * float64(likes+comments) / float64(followers))
}

// PercentageChange compares a new value against a baseline. A zero baseline yields {0, zero}.
func PercentageChange(oldValue, newValue float64) domain.Change {
	if oldValue == 0 || math.IsNaN(oldValue) {
		return domain.Change{Percent: 0, Type: domain.ChangeZero}
	}

	pct := Round2(100 * (newValue - oldValue) / oldValue)
	pct = math.Max(-MaxChangePercent, math.Min(MaxChangePercent, pct))

	switch {
	case pct > 0:
		return domain.Change{Percent: pct, Type: domain.ChangePositive}
	case pct < 0:
		return domain.Change{Percent: pct, Type: domain.ChangeNegative}
	default:
		return domain.Change{Percent: 0, Type: domain.ChangeZero}
	}
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Median returns the median of values without modifying the input.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// StdDev is the sample standard deviation; fewer than two values yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

// Views collects the view counts of posts that report one.
func Views(posts []domain.PostSnapshot) []float64 {
	out := make([]float64, 0, len(posts))
	for _, p := range posts {
		if p.Views != nil {
			out = append(out, float64(*p.Views))
		}
	}
	return out
}
