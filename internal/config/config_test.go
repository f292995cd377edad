package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator_sync/internal/stats"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(10_000), cfg.Sync.MinFollowers)
	assert.Equal(t, int64(350_000), cfg.Sync.MaxFollowers)
	assert.Equal(t, 12, cfg.Sync.MaxPosts)
	assert.Equal(t, 4, cfg.Sync.MaxRelocated)
	assert.Equal(t, 3, cfg.Sync.SkipRecentPosts)
	assert.Equal(t, 2*time.Minute, cfg.Sync.ItemTimeout)
	assert.Equal(t, 4*time.Hour, cfg.Sync.JobTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Sync.StallWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.Pacing.Normal)
	assert.Equal(t, 3*time.Second, cfg.Sync.Pacing.AfterFailure)
	assert.Equal(t, 90*time.Second, cfg.Sync.Pacing.AfterRateLimit)
	assert.Equal(t, 5, cfg.Sync.CheckpointEvery)
	assert.Equal(t, stats.DefaultBuzzWeights(), cfg.Sync.BuzzWeights)
	assert.Equal(t, time.Hour, cfg.Redis.JobDataTTL)
	assert.Len(t, cfg.Niches, 3)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_SCRAPE_KEY", "secret-key")
	t.Setenv("TEST_DB_HOST", "db.internal")

	path := writeConfig(t, `
database:
  host: ${TEST_DB_HOST}
  port: 6543
scrape:
  api_key: ${TEST_SCRAPE_KEY}
sync:
  min_followers: 1000
  max_followers: 2000
  activity_window: -1s
  buzz_weights:
    growth: 0.5
    engagement: 0.3
    consistency: 0.2
niches:
  Gaming:
    criteria: "games, esports"
    presets: ["Esports", "General Gaming"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "secret-key", cfg.Scrape.APIKey)
	assert.Equal(t, int64(1000), cfg.Sync.MinFollowers)
	assert.Equal(t, -time.Second, cfg.Sync.ActivityWindow)
	assert.Equal(t, 0.5, cfg.Sync.BuzzWeights.Growth)

	name, niche, ok := cfg.Niche("gaming")
	assert.True(t, ok)
	assert.Equal(t, "Gaming", name)
	assert.Equal(t, []string{"Esports", "General Gaming"}, niche.Presets)

	_, _, ok = cfg.Niche("Crypto")
	assert.False(t, ok)
}

func TestLoad_KeepsExplicitZeros(t *testing.T) {
	path := writeConfig(t, `
sync:
  min_followers: 0
  max_relocated: 0
  skip_recent_posts: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(0), cfg.Sync.MinFollowers)
	assert.Equal(t, 0, cfg.Sync.MaxRelocated)
	assert.Equal(t, 0, cfg.Sync.SkipRecentPosts)
	assert.Equal(t, int64(350_000), cfg.Sync.MaxFollowers)
	assert.Equal(t, 12, cfg.Sync.MaxPosts)
}

func TestLoad_RejectsInvertedFollowerRange(t *testing.T) {
	path := writeConfig(t, `
sync:
  min_followers: 5000
  max_followers: 100
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "validate config")
}

func TestLoad_RejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, "log_level: verbose\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}
