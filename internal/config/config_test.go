package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	cfg := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Minute, cfg.JanitorInterval)
	assert.Equal(t, float64(10), cfg.RateLimits.InviteGenerationPerMinute)
}

func TestLoadUnparsableFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	cfg := Load(path)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMergesOverrideOverDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("log: debug\ndataDir: /srv/foldsync\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/foldsync", cfg.DataDir)
	// Untouched fields still take the default.
	assert.Equal(t, 5*time.Minute, cfg.JanitorInterval)
	assert.Equal(t, float64(200), cfg.RateLimits.FileDownloadPerMinute)
}

func TestWriteThenLoadRoundTrips(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := defaults()
	cfg.LogLevel = "warn"

	require.NoError(t, cfg.Write(path))
	got := Load(path)
	assert.Equal(t, "warn", got.LogLevel)
}
