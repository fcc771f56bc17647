package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 150*time.Millisecond, cfg.CoordinateDebounce)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, 0.01, cfg.DefaultThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rangesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_url: https://station.example.org\ncoordinate_debounce: 250ms\nlog_level: debug\n",
	), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://station.example.org", cfg.ServerURL)
	assert.Equal(t, 250*time.Millisecond, cfg.CoordinateDebounce)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.01, cfg.DefaultThreshold)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RANGESYNC_SERVER_URL", "https://env.example.org")
	t.Setenv("RANGESYNC_API_TOKEN", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.org", cfg.ServerURL)
	assert.Equal(t, "secret", cfg.APIToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"main:\n  name: test-station\nbirdnet:\n  latitude: 60.17\n  longitude: 24.94\n",
	), 0o644))

	tree, err := LoadSeed(path)
	require.NoError(t, err)

	main, ok := tree["main"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test-station", main["name"])
}
