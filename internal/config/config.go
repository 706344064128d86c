package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reddit_relay/internal/domain"
)

type Config struct {
	Reddit   RedditConfig  `yaml:"reddit"`
	Discord  DiscordConfig `yaml:"discord"`
	Sync     SyncConfig    `yaml:"sync"`
	Health   HealthConfig  `yaml:"health"`
	LogLevel string        `yaml:"log_level"`
}

type RedditConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	UserAgent    string        `yaml:"user_agent"`
	RedirectURI  string        `yaml:"redirect_uri"`
	RefreshToken string        `yaml:"refresh_token"`
	Subreddit    string        `yaml:"subreddit"`
	FetchLimit   int           `yaml:"fetch_limit"`
	TokenFile    string        `yaml:"token_file"`
	AuthBaseURL  string        `yaml:"auth_base_url"`
	APIBaseURL   string        `yaml:"api_base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MinInterval  time.Duration `yaml:"min_interval"`
}

type DiscordConfig struct {
	WebhookURL          string        `yaml:"webhook_url"`
	Username            string        `yaml:"username"`
	AvatarURL           string        `yaml:"avatar_url"`
	Format              string        `yaml:"format"`
	ThreadNames         bool          `yaml:"thread_names"`
	ThreadPrefix        string        `yaml:"thread_prefix"`
	ThreadNameMaxLength int           `yaml:"thread_name_max_length"`
	Timeout             time.Duration `yaml:"timeout"`
	MinInterval         time.Duration `yaml:"min_interval"`
	Retry               RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxJitter      time.Duration `yaml:"max_jitter"`
}

type SyncConfig struct {
	Schedule    string        `yaml:"schedule"`
	Timezone    string        `yaml:"timezone"`
	Interval    time.Duration `yaml:"interval"`
	ItemSpacing time.Duration `yaml:"item_spacing"`
	LedgerFile  string        `yaml:"ledger_file"`
}

type HealthConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

const (
	FormatEmbed = "embed"
	FormatText  = "text"
)

// Load reads the YAML file at path (optional), expands ${VAR} references,
// applies environment overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, domain.NewError(domain.KindConfig, domain.CodeConfigInvalid, "parse config", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&c.Reddit.RefreshToken, "REDDIT_REFRESH_TOKEN")
	setString(&c.Reddit.UserAgent, "REDDIT_USER_AGENT")
	setString(&c.Reddit.RedirectURI, "REDDIT_REDIRECT_URI")
	setString(&c.Reddit.Subreddit, "SUBREDDIT")
	setString(&c.Reddit.TokenFile, "TOKEN_FILE")
	setString(&c.Discord.WebhookURL, "DISCORD_WEBHOOK_URL")
	setString(&c.Discord.Format, "DISCORD_FORMAT")
	setString(&c.Sync.Schedule, "SYNC_SCHEDULE")
	setString(&c.Sync.Timezone, "TZ")
	setString(&c.Sync.Timezone, "SYNC_TIMEZONE")
	setString(&c.Sync.LedgerFile, "LEDGER_FILE")
	setString(&c.Health.Addr, "HEALTH_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("FETCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.NewError(domain.KindConfig, domain.CodeConfigInvalid, "invalid FETCH_LIMIT", err)
		}
		c.Reddit.FetchLimit = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) setDefaults() {
	c.Reddit.Subreddit = strings.TrimPrefix(strings.TrimSpace(c.Reddit.Subreddit), "r/")
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "reddit_relay/1.0"
	}
	if c.Reddit.FetchLimit == 0 {
		c.Reddit.FetchLimit = 25
	}
	if c.Reddit.TokenFile == "" {
		c.Reddit.TokenFile = "data/token.json"
	}
	if c.Reddit.AuthBaseURL == "" {
		c.Reddit.AuthBaseURL = "https://www.reddit.com"
	}
	if c.Reddit.APIBaseURL == "" {
		c.Reddit.APIBaseURL = "https://oauth.reddit.com"
	}
	if c.Reddit.Timeout == 0 {
		c.Reddit.Timeout = 30 * time.Second
	}
	if c.Reddit.MinInterval == 0 {
		c.Reddit.MinInterval = 2 * time.Second
	}
	if c.Discord.Format == "" {
		c.Discord.Format = FormatEmbed
	}
	if c.Discord.ThreadNameMaxLength == 0 {
		c.Discord.ThreadNameMaxLength = 80
	}
	if c.Discord.Timeout == 0 {
		c.Discord.Timeout = 10 * time.Second
	}
	if c.Discord.MinInterval == 0 {
		c.Discord.MinInterval = 1 * time.Second
	}
	if c.Discord.Retry.MaxAttempts == 0 {
		c.Discord.Retry.MaxAttempts = 3
	}
	if c.Discord.Retry.InitialBackoff == 0 {
		c.Discord.Retry.InitialBackoff = 1 * time.Second
	}
	if c.Discord.Retry.MaxBackoff == 0 {
		c.Discord.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Discord.Retry.MaxJitter == 0 {
		c.Discord.Retry.MaxJitter = 1 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = "@every " + c.Sync.Interval.String()
	}
	if c.Sync.Timezone == "" {
		c.Sync.Timezone = "UTC"
	}
	if c.Sync.ItemSpacing == 0 {
		c.Sync.ItemSpacing = 1 * time.Second
	}
	if c.Sync.LedgerFile == "" {
		c.Sync.LedgerFile = "data/posted_ids.json"
	}
	if c.Health.Enabled == nil {
		enabled := true
		c.Health.Enabled = &enabled
	}
	if c.Health.Addr == "" {
		c.Health.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every missing or invalid required setting in one error.
func (c *Config) Validate() error {
	var problems []string

	if c.Reddit.ClientID == "" {
		problems = append(problems, "reddit.client_id is required")
	}
	if c.Reddit.ClientSecret == "" {
		problems = append(problems, "reddit.client_secret is required")
	}
	if c.Reddit.Subreddit == "" {
		problems = append(problems, "reddit.subreddit is required")
	}
	if c.Reddit.FetchLimit < 1 || c.Reddit.FetchLimit > 100 {
		problems = append(problems, fmt.Sprintf("reddit.fetch_limit must be between 1 and 100, got %d", c.Reddit.FetchLimit))
	}
	if c.Discord.WebhookURL == "" {
		problems = append(problems, "discord.webhook_url is required")
	} else if u, err := url.Parse(c.Discord.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "discord.webhook_url must be an absolute URL")
	}
	if c.Discord.Format != FormatEmbed && c.Discord.Format != FormatText {
		problems = append(problems, fmt.Sprintf("discord.format must be %q or %q, got %q", FormatEmbed, FormatText, c.Discord.Format))
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("sync.timezone %q is unknown", c.Sync.Timezone))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is invalid", c.LogLevel))
	}

	if len(problems) > 0 {
		return domain.NewError(domain.KindConfig, domain.CodeConfigInvalid, strings.Join(problems, "; "), nil)
	}
	return nil
}

// HealthEnabled reports whether the HTTP health surface should be served.
func (c *Config) HealthEnabled() bool {
	return c.Health.Enabled == nil || *c.Health.Enabled
}
