package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate, testi boş bir dizinde çalıştırır (.env okunmasın) ve ilgili env'leri temizler.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"CHATSYNC_CONFIG", "CHATSYNC_API_URL", "CHATSYNC_WS_URL", "CHATSYNC_REQUEST_TIMEOUT",
		"DATABASE_PATH", "CHATSYNC_REFRESH_MARGIN", "CHATSYNC_HISTORY_PAGE_SIZE",
		"CHATSYNC_TYPING_WINDOW", "CHATSYNC_TYPING_SWEEP", "CHATSYNC_TYPING_DEBOUNCE",
		"CHATSYNC_MAX_ATTACHMENTS", "LOG_LEVEL", "LOG_DEVELOPMENT", "METRICS_ADDR",
	} {
		if val, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, val) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 3*time.Second, cfg.Session.TypingWindow)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: https://chat.example.com
  request_timeout: 30s
session:
  history_page_size: 20
  typing_window: 5s
log:
  level: debug
`), 0o600))

	t.Setenv("CHATSYNC_HISTORY_PAGE_SIZE", "75")
	t.Setenv("LOG_DEVELOPMENT", "true")
	t.Setenv("METRICS_ADDR", ":9102")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.API.URL)
	assert.Equal(t, "ws://localhost:8082/ws/websocket", cfg.API.WSURL)
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout)
	assert.Equal(t, 75, cfg.Session.HistoryPageSize)
	assert.Equal(t, 5*time.Second, cfg.Session.TypingWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: /tmp/x.db\n"), 0o600))
	t.Setenv("CHATSYNC_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
}

func TestLoad_InvalidValues(t *testing.T) {
	isolate(t)

	t.Setenv("CHATSYNC_TYPING_WINDOW", "soon")
	_, err := Load("")
	assert.ErrorContains(t, err, "invalid CHATSYNC_TYPING_WINDOW")

	t.Setenv("CHATSYNC_TYPING_WINDOW", "3s")
	t.Setenv("CHATSYNC_MAX_ATTACHMENTS", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "max attachments")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
