// Package cli implements relayctl, the operator commands for the relay.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"reddit_relay/internal/app"
	"reddit_relay/internal/config"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	relay      *app.App
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Operate the Reddit to Discord relay",
	Long: `relayctl manages the relay's OAuth credential and delivered-post ledger,
and runs one-off syncs and connectivity checks using the daemon's configuration.

Example usage:
  relayctl auth url               # Print the Reddit consent URL
  relayctl auth exchange CODE     # Store a refresh token from a one-time code
  relayctl ledger stats           # Show delivered-post counters
  relayctl sync                   # Run a single sync cycle now`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp(cmd.ErrOrStderr())
	},
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func initApp(stderr io.Writer) error {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	relay, err = app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("building relay: %w", err)
	}

	logger.Debug("configuration loaded",
		"subreddit", cfg.Reddit.Subreddit,
		"ledger_file", cfg.Sync.LedgerFile,
		"token_file", cfg.Reddit.TokenFile,
	)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printResult writes v as indented JSON when --json is set, otherwise calls text.
func printResult(w io.Writer, v any, text func(w io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

