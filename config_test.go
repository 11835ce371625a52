package chatwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "chatwatch.yaml", `
listen: 127.0.0.1:9000
db_path: /var/lib/chatwatch
source:
  url: https://example.com/chat
  poll_interval: 2s
  retry_delay: 30
page:
  message_selector: li.msg
  discovery_interval: 250ms
notify:
  webhook_url: https://hooks.example.com/x
pins:
  clear_cron: "0 4 * * *"
features:
  default: [mentions, keywords]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.Source.PollInterval.Duration())
	assert.Equal(t, 30*time.Second, cfg.Source.RetryDelay.Duration())
	assert.Equal(t, "li.msg", cfg.Page.MessageSelector)
	assert.Equal(t, 250*time.Millisecond, cfg.ObserverConfig().Interval)
	assert.Equal(t, DefaultDiscoveryAttempts, cfg.ObserverConfig().Attempts)
	assert.Equal(t, "player", cfg.Page.AuthorParam)
	assert.Equal(t, DefaultHistoryCapacity, cfg.Page.HistoryCapacity)
	assert.Equal(t, []string{"mentions", "keywords"}, cfg.Features.Default)
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:8750", cfg.Listen)
	assert.Equal(t, DefaultPollInterval, cfg.Source.PollInterval.Duration())
	assert.Equal(t, DefaultContainerSelectors, cfg.Page.ContainerSelectors)
	assert.Equal(t, DefaultAlertQueue, cfg.Notify.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("CHATWATCH_LISTEN", ":7000")
	t.Setenv("CHATWATCH_POLL_INTERVAL", "5s")
	t.Setenv("CHATWATCH_TELEGRAM_TOKEN", "abc")
	t.Setenv("CHATWATCH_TELEGRAM_CHAT_ID", "42")
	t.Setenv("CHATWATCH_FEATURES", "pins, separator")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, 5*time.Second, cfg.Source.PollInterval.Duration())
	assert.Equal(t, int64(42), cfg.Notify.Telegram.ChatID)
	assert.Equal(t, []string{"pins", "separator"}, cfg.Features.Default)
}

func TestConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"cron":     "pins:\n  clear_cron: \"every day\"\n",
		"feature":  "features:\n  default: [weather]\n",
		"telegram": "notify:\n  telegram:\n    token: abc\n",
		"duration": "source:\n  poll_interval: soon\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "bad.yaml", content))
			assert.Error(t, err)
		})
	}

	t.Setenv("CHATWATCH_TELEGRAM_CHAT_ID", "not-a-number")
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := writeFile(t, ".env", "CHATWATCH_TEST_DOTENV=loaded\n")
	t.Setenv("CHATWATCH_TEST_DOTENV", "")
	os.Unsetenv("CHATWATCH_TEST_DOTENV")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CHATWATCH_TEST_DOTENV"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel(" Warning ").String())
	assert.Equal(t, "ERROR", ParseLevel("error").String())
	assert.Equal(t, "INFO", ParseLevel("verbose").String())
}
