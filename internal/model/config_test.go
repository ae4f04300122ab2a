package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.API.BaseURL)
	assert.Equal(t, 30, cfg.API.TimeoutSec)
	assert.Equal(t, DefaultPageSize, cfg.List.PageSize)
	assert.Equal(t, 3, cfg.List.DashboardPageSize)
	assert.Equal(t, 500, cfg.List.SearchDebounceMs)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `api:
  base_url: https://complaints.example.com/api/
  timeout_sec: 5
list:
  page_size: 0
  search_debounce_ms: 250
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("COMPLAINTDESK_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://complaints.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.TimeoutSec)
	assert.Equal(t, DefaultPageSize, cfg.List.PageSize)
	assert.Equal(t, 250, cfg.List.SearchDebounceMs)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.API.BaseURL = "http://desk.internal/api"
	cfg.Metrics.Addr = "127.0.0.1:9100"

	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://desk.internal/api", got.API.BaseURL)
	assert.Equal(t, "127.0.0.1:9100", got.Metrics.Addr)
}
