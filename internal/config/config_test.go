package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DEEPTOK_CONFIG", "ADDR", "DB_PATH", "REPLY_DELAY", "PRAYER_BASE_URL",
	"PRAYER_TIMEOUT", "REDIS_ADDR", "REDIS_PASSWORD", "LOG_LEVEL", "ASSISTANT_NAME",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	// keep the default config path away from the package directory
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, 1500*time.Millisecond, cfg.ReplyDelay)
	assert.Equal(t, DefaultPrayerBaseURL, cfg.PrayerBaseURL)
	assert.Equal(t, 10*time.Second, cfg.PrayerTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "DeepTok", cfg.AssistantName)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: "9000"
dbPath: /tmp/chat.db
replyDelay: 2s
redisAddr: localhost:6379
assistantName: Tok
`), 0o600))
	t.Setenv("DEEPTOK_CONFIG", path)
	t.Setenv("REPLY_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/tmp/chat.db", cfg.DBPath)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplyDelay)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "Tok", cfg.AssistantName)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEEPTOK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"REPLY_DELAY":    "soon",
		"PRAYER_TIMEOUT": "-1s",
		"LOG_LEVEL":      "chatty",
		"DB_PATH":        ":memory:",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
