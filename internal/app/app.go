// Package app builds the relay components from configuration. Both the daemon
// and the operator CLI use it so they read the same files the same way.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"reddit_relay/internal/config"
	"reddit_relay/internal/handler"
	"reddit_relay/internal/ledger"
	"reddit_relay/internal/metrics"
	"reddit_relay/internal/oauth"
	"reddit_relay/internal/publisher"
	"reddit_relay/internal/retry"
	"reddit_relay/internal/scheduler"
	"reddit_relay/internal/service"
	"reddit_relay/internal/source/reddit"
)

// AuthScope is requested when building the consent URL.
const AuthScope = "read"

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	OAuth     *oauth.Client
	Tokens    *oauth.Manager
	Ledger    *ledger.FileLedger
	Source    *reddit.Source
	Sink      *publisher.Discord
	Scheduler *scheduler.Scheduler
	Sync      *service.SyncService
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	sched, err := scheduler.New(cfg.Sync.Schedule, cfg.Sync.Timezone, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	oauthClient := oauth.NewClient(
		cfg.Reddit.ClientID,
		cfg.Reddit.ClientSecret,
		cfg.Reddit.AuthBaseURL,
		cfg.Reddit.UserAgent,
		cfg.Reddit.Timeout,
		logger,
	)
	tokens := oauth.NewManager(oauthClient, oauth.NewFileStore(cfg.Reddit.TokenFile), oauth.ManagerConfig{
		RedirectURI: cfg.Reddit.RedirectURI,
		Fallback:    cfg.Reddit.RefreshToken,
	}, logger)

	source := reddit.New(reddit.Config{
		BaseURL:     cfg.Reddit.APIBaseURL,
		Subreddit:   cfg.Reddit.Subreddit,
		UserAgent:   cfg.Reddit.UserAgent,
		Timeout:     cfg.Reddit.Timeout,
		MinInterval: cfg.Reddit.MinInterval,
	}, tokens, logger)

	sink := publisher.NewDiscord(publisher.Config{
		WebhookURL: cfg.Discord.WebhookURL,
		Formatter: publisher.Formatter{
			Format:              cfg.Discord.Format,
			Username:            cfg.Discord.Username,
			AvatarURL:           cfg.Discord.AvatarURL,
			ThreadNames:         cfg.Discord.ThreadNames,
			ThreadPrefix:        cfg.Discord.ThreadPrefix,
			ThreadNameMaxLength: cfg.Discord.ThreadNameMaxLength,
		},
		Timeout:     cfg.Discord.Timeout,
		MinInterval: cfg.Discord.MinInterval,
		Retry: retry.Policy{
			MaxAttempts:    cfg.Discord.Retry.MaxAttempts,
			InitialBackoff: cfg.Discord.Retry.InitialBackoff,
			MaxBackoff:     cfg.Discord.Retry.MaxBackoff,
			MaxJitter:      cfg.Discord.Retry.MaxJitter,
		},
	}, logger)

	l := ledger.NewFileLedger(cfg.Sync.LedgerFile, logger)

	syncService := service.NewSyncService(source, sink, l, sched, m, logger, service.Config{
		FetchLimit:  cfg.Reddit.FetchLimit,
		ItemSpacing: cfg.Sync.ItemSpacing,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  registry,
		Metrics:   m,
		OAuth:     oauthClient,
		Tokens:    tokens,
		Ledger:    l,
		Source:    source,
		Sink:      sink,
		Scheduler: sched,
		Sync:      syncService,
	}, nil
}

// HealthServer builds the HTTP status surface for the sync service.
func (a *App) HealthServer() *handler.Server {
	h := handler.NewHealthHandler(a.Sync, a.Ledger)
	return handler.NewServer(a.Config.Health.Addr, h, a.Registry, a.Logger)
}

// AuthorizeURL is the consent page an operator opens to grant access.
func (a *App) AuthorizeURL(state string) string {
	return a.OAuth.AuthorizeURL(a.Config.Reddit.RedirectURI, AuthScope, state)
}

// NewLogger returns a JSON slog logger at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	return slog.New(slog.NewJSONHandler(w, opts))
}
