package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or reset the delivered-post ledger",
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger counters",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStats,
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every delivered post id",
	Long: `Empty the ledger and reset its processed counter. Posts still present in the
subreddit listing will be delivered again on the next sync. Stop the daemon
first; the ledger file is not safe for concurrent writers.`,
	Args: cobra.NoArgs,
	RunE: runLedgerClear,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd, ledgerClearCmd)

	ledgerClearCmd.Flags().Bool("yes", false, "confirm clearing the ledger")
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	if err := relay.Ledger.Load(); err != nil {
		return err
	}
	stats := relay.Ledger.Stats()

	return printResult(cmd.OutOrStdout(), stats, func(w io.Writer) {
		fmt.Fprintf(w, "Ledger %s\n", relay.Config.Sync.LedgerFile)
		fmt.Fprintf(w, "  posted ids:      %d\n", stats.PostedCount)
		fmt.Fprintf(w, "  total processed: %d\n", stats.TotalProcessed)
		fmt.Fprintf(w, "  last check:      %s\n", formatTime(stats.LastCheck))
		fmt.Fprintf(w, "  created:         %s\n", formatTime(stats.CreatedAt))
		fmt.Fprintf(w, "  last updated:    %s\n", formatTime(stats.LastUpdated))
	})
}

func runLedgerClear(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		return errors.New("refusing to clear the ledger without --yes")
	}

	if err := relay.Ledger.Load(); err != nil {
		return err
	}
	if err := relay.Ledger.Clear(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Ledger %s cleared\n", relay.Config.Sync.LedgerFile)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
