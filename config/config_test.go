package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "igextract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IGX_PORT", "9090")
	t.Setenv("IGX_ANTI_DETECTION", "false")
	t.Setenv("IGX_URL_TIMEOUT", "10s")
	t.Setenv("IGX_API_KEYS", " a , b ,,")
	t.Setenv("IGX_MAX_REQUESTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Session.AntiDetection)
	assert.Equal(t, 10*time.Second, cfg.Session.URLTimeout)
	assert.Equal(t, []string{"a", "b"}, cfg.Auth.APIKeys)
	assert.Equal(t, 50, cfg.Session.Pacing.MaxRequests, "unparseable values keep the default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
session:
  mobile: true
  pacing:
    min_delay: 1s
    max_delay: 3s
extraction:
  markers:
    api: ["/api/v2/"]
log:
  level: debug
`)
	t.Setenv("IGX_CONFIG_FILE", path)
	t.Setenv("IGX_MAX_DELAY", "4s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Session.Mobile)
	assert.Equal(t, time.Second, cfg.Session.Pacing.MinDelay)
	assert.Equal(t, 4*time.Second, cfg.Session.Pacing.MaxDelay)
	assert.Equal(t, []string{"/api/v2/"}, cfg.Extraction.Markers.API)
	assert.NotEmpty(t, cfg.Extraction.Markers.GraphQL, "absent keys keep defaults")
	assert.Equal(t, 50, cfg.Session.Pacing.MaxRequests)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("IGX_SCROLL_DISTANCE=640\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("IGX_SCROLL_DISTANCE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Session.ScrollDistance)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("IGX_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad pattern", func(t *testing.T) {
		t.Setenv("IGX_CONFIG_FILE", writeFile(t, `
extraction:
  patterns:
    script:
      - field: username
        expr: "no capture group"
`))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("inverted delays", func(t *testing.T) {
		t.Setenv("IGX_MIN_DELAY", "10s")
		t.Setenv("IGX_MAX_DELAY", "1s")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for level, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "bogus": "INFO"} {
		cfg.Log.Level = level
		assert.Equal(t, want, cfg.SlogLevel().String(), level)
	}
}
