package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Fetch the latest posts, deliver the ones not yet in the ledger and record
them. Do not run this while the daemon is running against the same ledger file.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test Reddit and Discord connectivity",
	Long: `Fetch one post from the subreddit and send a test message to the webhook.
The webhook check posts a visible message to the channel.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(syncCmd, checkCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if err := relay.Ledger.Load(); err != nil {
		return err
	}

	stats, err := relay.Sync.PerformSync(commandContext(cmd))
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), stats, func(w io.Writer) {
		if stats.Soft {
			fmt.Fprintln(w, "Skipped: Reddit is not authorized yet. Run \"relayctl auth url\".")
			return
		}
		fmt.Fprintf(w, "Sync %s finished in %s\n", stats.CycleID, stats.Duration)
		fmt.Fprintf(w, "  found:    %d\n", stats.Found)
		fmt.Fprintf(w, "  sent:     %d\n", stats.Sent)
		fmt.Fprintf(w, "  failed:   %d\n", stats.Failed)
		fmt.Fprintf(w, "  filtered: %d\n", stats.Filtered)
	})
}

type checkResult struct {
	Reddit  string `json:"reddit"`
	Discord string `json:"discord"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	result := checkResult{Reddit: "ok", Discord: "ok"}

	redditErr := relay.Source.TestConnection(ctx)
	if redditErr != nil {
		result.Reddit = redditErr.Error()
	}
	discordErr := relay.Sink.TestConnection(ctx)
	if discordErr != nil {
		result.Discord = discordErr.Error()
	}

	if err := printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "reddit:  %s\n", result.Reddit)
		fmt.Fprintf(w, "discord: %s\n", result.Discord)
	}); err != nil {
		return err
	}

	if redditErr != nil || discordErr != nil {
		return fmt.Errorf("connectivity check failed")
	}
	return nil
}
