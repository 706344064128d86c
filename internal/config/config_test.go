package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit_relay/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_REFRESH_TOKEN", "REDDIT_USER_AGENT",
		"REDDIT_REDIRECT_URI", "SUBREDDIT", "TOKEN_FILE", "DISCORD_WEBHOOK_URL", "DISCORD_FORMAT",
		"SYNC_SCHEDULE", "TZ", "SYNC_TIMEZONE", "LEDGER_FILE", "HEALTH_ADDR", "LOG_LEVEL", "FETCH_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileWithEnvExpansionAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SECRET", "s3cr3t")

	path := writeConfig(t, `
reddit:
  client_id: abc
  client_secret: ${TEST_SECRET}
  subreddit: r/golang
discord:
  webhook_url: https://discord.com/api/webhooks/1/token
sync:
  schedule: "*/10 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cr3t", cfg.Reddit.ClientSecret)
	assert.Equal(t, "golang", cfg.Reddit.Subreddit)
	assert.Equal(t, 25, cfg.Reddit.FetchLimit)
	assert.Equal(t, 2*time.Second, cfg.Reddit.MinInterval)
	assert.Equal(t, FormatEmbed, cfg.Discord.Format)
	assert.Equal(t, 3, cfg.Discord.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Discord.Retry.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Discord.Retry.MaxBackoff)
	assert.Equal(t, 80, cfg.Discord.ThreadNameMaxLength)
	assert.Equal(t, "*/10 * * * *", cfg.Sync.Schedule)
	assert.Equal(t, "UTC", cfg.Sync.Timezone)
	assert.True(t, cfg.HealthEnabled())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOnlyWhenFileMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDDIT_CLIENT_ID", "id")
	t.Setenv("REDDIT_CLIENT_SECRET", "secret")
	t.Setenv("SUBREDDIT", "golang")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/token")
	t.Setenv("FETCH_LIMIT", "50")
	t.Setenv("SYNC_TIMEZONE", "Europe/Berlin")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Reddit.FetchLimit)
	assert.Equal(t, "Europe/Berlin", cfg.Sync.Timezone)
	assert.Equal(t, "@every 5m0s", cfg.Sync.Schedule)
}

func TestLoad_MissingRequiredIsConfigError(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "log_level: info\n"))
	require.Error(t, err)

	assert.True(t, domain.IsKind(err, domain.KindConfig))
	assert.Equal(t, domain.CodeConfigInvalid, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "reddit.client_id is required")
	assert.Contains(t, err.Error(), "discord.webhook_url is required")
}

func TestLoad_InvalidFetchLimitEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_LIMIT", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConfig))
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Config{
			Reddit:  RedditConfig{ClientID: "id", ClientSecret: "secret", Subreddit: "golang"},
			Discord: DiscordConfig{WebhookURL: "https://discord.com/api/webhooks/1/token"},
		}
		c.setDefaults()
		return c
	}

	tests := map[string]struct {
		mutate  func(c *Config)
		wantErr string
	}{
		"valid": {
			mutate: func(c *Config) {},
		},
		"fetch limit too high": {
			mutate:  func(c *Config) { c.Reddit.FetchLimit = 101 },
			wantErr: "fetch_limit must be between 1 and 100",
		},
		"fetch limit negative": {
			mutate:  func(c *Config) { c.Reddit.FetchLimit = -1 },
			wantErr: "fetch_limit must be between 1 and 100",
		},
		"relative webhook": {
			mutate:  func(c *Config) { c.Discord.WebhookURL = "/api/webhooks" },
			wantErr: "webhook_url must be an absolute URL",
		},
		"unknown format": {
			mutate:  func(c *Config) { c.Discord.Format = "markdown" },
			wantErr: "discord.format",
		},
		"unknown timezone": {
			mutate:  func(c *Config) { c.Sync.Timezone = "Mars/Olympus" },
			wantErr: "sync.timezone",
		},
		"bad log level": {
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: "log_level",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)

			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
