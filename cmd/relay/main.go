package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"reddit_relay/internal/app"
	"reddit_relay/internal/config"
	"reddit_relay/internal/domain"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := app.NewLogger("info", os.Stdout)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = app.NewLogger(cfg.LogLevel, os.Stdout)

	relay, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting reddit relay",
		"subreddit", cfg.Reddit.Subreddit,
		"schedule", cfg.Sync.Schedule,
		"timezone", cfg.Sync.Timezone,
		"fetch_limit", cfg.Reddit.FetchLimit,
	)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.HealthEnabled() {
		server := relay.HealthServer()

		g.Go(server.Start)

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := relay.Sync.Start(ctx); err != nil {
			return fmt.Errorf("start sync service: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return relay.Sync.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reddit relay failed", "error", err, "code", domain.CodeOf(err))
		os.Exit(1)
	}

	logger.Info("reddit relay stopped")
}
