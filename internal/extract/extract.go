// Package extract pulls structured bits out of captions, bios and raw post fields.
package extract

import (
	"regexp"
	"strings"
	"time"

	"creator_sync/internal/domain"
)

const (
	// PaidPartnershipMarker is the label the platforms attach to sponsored posts.
	PaidPartnershipMarker = "Paid partnership"
	GlobalRegion          = "Global"
)

var (
	hashtagRe = regexp.MustCompile(`#(\w+)`)
	mentionRe = regexp.MustCompile(`@(\w+)`)
	emailRe   = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w{2,4}\b`)
	unsafeRe  = regexp.MustCompile(`[\\/*?:"<>|]`)
)

// Hashtags returns lower-cased tags without the leading '#', in order of appearance.
func Hashtags(text string) []string {
	matches := hashtagRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m[1]))
	}
	return out
}

// Mentions returns usernames following '@', in order of appearance.
func Mentions(text string) []string {
	matches := mentionRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func Emails(text string) []string {
	return Unique(emailRe.FindAllString(text, -1))
}

// IsPaidPartnership reports whether a post's partnership marker is the sponsored label.
func IsPaidPartnership(marker string) bool {
	return marker == PaidPartnershipMarker
}

// Region returns the first post's region upper-cased, or GlobalRegion.
func Region(posts []domain.RawPost) string {
	if len(posts) == 0 {
		return GlobalRegion
	}
	region := strings.TrimSpace(posts[0].Region)
	if region == "" {
		return GlobalRegion
	}
	return strings.ToUpper(region)
}

// SanitizeHandle flattens a handle into a single safe path segment.
func SanitizeHandle(handle string) string {
	return unsafeRe.ReplaceAllString(strings.TrimSpace(handle), "_")
}

// NormalizeHandle strips the leading '@' and surrounding whitespace users tend to paste in.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// IsActive reports whether the newest dated post falls within window of now.
// A non-positive window disables the check. Posts without timestamps count as inactive.
func IsActive(posts []domain.RawPost, window time.Duration, now time.Time) bool {
	if window <= 0 {
		return true
	}
	cutoff := now.Add(-window)
	for _, p := range posts {
		if p.PostedAt != nil && p.PostedAt.After(cutoff) {
			return true
		}
	}
	return false
}

// Unique drops empty strings and repeats while keeping first-seen order.
func Unique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
