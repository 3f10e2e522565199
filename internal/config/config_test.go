package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Analytics.BufferCapacity)
	assert.Equal(t, 30*time.Second, cfg.Analytics.PublishInterval)
	assert.Equal(t, "file", cfg.Archive.Backend)
	assert.False(t, cfg.DatabaseEnabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_FileThenEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "molexa.yaml")
	yamlBody := `
server:
  port: "8080"
analytics:
  buffer_capacity: 50
  publish_interval: 10s
  prune_on_archive: true
database:
  url: postgres://from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("DATABASE_URL", "postgres://from-env")
	t.Setenv("MOLEXA_TOP_K", "5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 50, cfg.Analytics.BufferCapacity)
	assert.Equal(t, 10*time.Second, cfg.Analytics.PublishInterval)
	assert.True(t, cfg.Analytics.PruneOnArchive)
	assert.Equal(t, "postgres://from-env", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Analytics.TopK)
	assert.Equal(t, 50, cfg.Analytics.HydrateCount, "hydrate count capped to capacity")
}

func TestValidate(t *testing.T) {
	t.Run("normalises bad numbers", func(t *testing.T) {
		cfg := Default()
		cfg.Analytics.BufferCapacity = -1
		cfg.Analytics.PublishInterval = 0
		cfg.Analytics.RecentLimit = 1000

		require.NoError(t, cfg.Validate())
		assert.Equal(t, 100, cfg.Analytics.BufferCapacity)
		assert.Equal(t, 30*time.Second, cfg.Analytics.PublishInterval)
		assert.Equal(t, 10, cfg.Analytics.RecentLimit)
	})

	t.Run("buffer capacity clamped", func(t *testing.T) {
		tests := map[int]int{0: 100, 10: 50, 50: 50, 75: 75, 100: 100, 5000: 100}
		for in, want := range tests {
			cfg := Default()
			cfg.Analytics.BufferCapacity = in
			require.NoError(t, cfg.Validate())
			assert.Equal(t, want, cfg.Analytics.BufferCapacity, "capacity %d", in)
		}
	})

	t.Run("s3 requires bucket", func(t *testing.T) {
		cfg := Default()
		cfg.Archive.Backend = "s3"
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Default()
		cfg.Archive.Backend = "tape"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analytics: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
