// Package classifier asks the LLM three closed questions about a creator and
// maps every failure onto a safe default.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"creator_sync/internal/config"
	"creator_sync/internal/extract"
)

// Generator is a single-shot text-in/text-out model call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LocationHints is everything the location prompt may draw on, in priority order.
type LocationHints struct {
	Region       string
	Bio          string
	LocationTags []string
	Captions     []string
}

type Classifier struct {
	gen     Generator
	niches  map[string]config.NicheConfig
	timeout time.Duration
	logger  *slog.Logger
}

func New(gen Generator, niches map[string]config.NicheConfig, timeout time.Duration, logger *slog.Logger) *Classifier {
	return &Classifier{
		gen:     gen,
		niches:  niches,
		timeout: timeout,
		logger:  logger.With("component", "classifier"),
	}
}

// FallbackNiche is the generic secondary niche of a primary niche.
func FallbackNiche(primary string) string {
	return "General " + primary
}

// Vocabulary returns the closed set of secondary niches for a primary niche.
// The generic bucket is always a member.
func (c *Classifier) Vocabulary(primary string) []string {
	presets := c.niche(primary).Presets
	fallback := FallbackNiche(primary)
	if slices.Contains(presets, fallback) {
		return presets
	}
	return append(slices.Clone(presets), fallback)
}

// IsInDomain reports whether the profile belongs to the primary niche. Any failure answers false.
func (c *Classifier) IsInDomain(ctx context.Context, primary, handle, displayName, bio string) bool {
	prompt := fmt.Sprintf(inDomainPrompt, primary, c.niche(primary).Criteria, handle, displayName, bio)

	resp, err := c.ask(ctx, prompt)
	if err != nil {
		c.logger.Warn("in-domain check failed", "handle", handle, "niche", primary, "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(resp), "yes")
}

// SecondaryNiche always returns a member of Vocabulary(primary). When the model call
// fails the fallback is returned together with the error.
func (c *Classifier) SecondaryNiche(ctx context.Context, primary string, hashtags []string, bio string, taggedUsers []string) (string, error) {
	vocabulary := c.Vocabulary(primary)
	fallback := FallbackNiche(primary)

	prompt := fmt.Sprintf(secondaryNichePrompt,
		primary,
		quoteList(vocabulary),
		bio,
		quoteList(extract.Unique(hashtags)),
		quoteList(extract.Unique(taggedUsers)),
		fallback,
	)

	resp, err := c.ask(ctx, prompt)
	if err != nil {
		return fallback, fmt.Errorf("predict secondary niche: %w", err)
	}

	answer := cleanAnswer(resp)
	if slices.Contains(vocabulary, answer) {
		return answer, nil
	}

	c.logger.Debug("secondary niche outside vocabulary", "niche", primary, "answer", answer)
	return fallback, nil
}

// Location returns a "City, Country" guess or extract.GlobalRegion.
func (c *Classifier) Location(ctx context.Context, hints LocationHints) (string, error) {
	tags := "No location tags in posts"
	if len(hints.LocationTags) > 0 {
		tags = "- " + strings.Join(extract.Unique(hints.LocationTags), "\n- ")
	}

	captions := make([]string, 0, len(hints.Captions))
	for i, caption := range hints.Captions {
		captions = append(captions, fmt.Sprintf("Post %d: %s", i+1, caption))
	}

	region := hints.Region
	if region == "" {
		region = extract.GlobalRegion
	}

	prompt := fmt.Sprintf(locationPrompt, region, hints.Bio, tags, strings.Join(captions, "\n"))

	resp, err := c.ask(ctx, prompt)
	if err != nil {
		return extract.GlobalRegion, fmt.Errorf("predict location: %w", err)
	}

	answer := cleanAnswer(resp)
	if answer == "" || strings.EqualFold(answer, extract.GlobalRegion) {
		return extract.GlobalRegion, nil
	}
	return answer, nil
}

func (c *Classifier) ask(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.gen.Generate(ctx, prompt)
}

func (c *Classifier) niche(primary string) config.NicheConfig {
	for name, n := range c.niches {
		if strings.EqualFold(name, primary) {
			return n
		}
	}
	return config.NicheConfig{Criteria: strings.ToLower(primary)}
}

// cleanAnswer keeps the first line of a response without surrounding quotes or punctuation.
func cleanAnswer(resp string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(resp), "\n")
	return strings.Trim(strings.TrimSpace(line), "\"'`*. ")
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = fmt.Sprintf("%q", it)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
