package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Reddit OAuth credential",
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the consent URL that grants a permanent refresh token",
	Long: `Print the Reddit consent URL. Open it in a browser, approve access, then pass
the "code" query parameter of the redirect to "relayctl auth exchange".`,
	Args: cobra.NoArgs,
	RunE: runAuthURL,
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange CODE",
	Short: "Exchange a one-time authorization code and store the token record",
	Long: `Exchange a one-time authorization code for a refresh token and write the
token file. Codes are single use and expire after a few minutes; a trailing
"#_" fragment copied from the browser is ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthExchange,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored token record without contacting Reddit",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authURLCmd, authExchangeCmd, authStatusCmd)
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	if relay.Config.Reddit.RedirectURI == "" {
		return fmt.Errorf("reddit.redirect_uri is required to build the consent URL")
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), relay.AuthorizeURL(uuid.NewString()))
	return err
}

func runAuthExchange(cmd *cobra.Command, args []string) error {
	rec, err := relay.Tokens.Exchange(commandContext(cmd), args[0])
	if err != nil {
		return err
	}

	out := map[string]any{
		"token_file": relay.Config.Reddit.TokenFile,
		"scope":      rec.Scope,
		"expires_at": rec.ExpiryTime(),
	}
	return printResult(cmd.OutOrStdout(), out, func(w io.Writer) {
		fmt.Fprintf(w, "Token stored in %s\n", relay.Config.Reddit.TokenFile)
		fmt.Fprintf(w, "  scope:      %s\n", rec.Scope)
		fmt.Fprintf(w, "  expires at: %s\n", rec.ExpiryTime().Format(time.RFC3339))
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	status, err := relay.Tokens.Status()
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), status, func(w io.Writer) {
		if !status.HasRecord {
			fmt.Fprintln(w, "No token record stored. Run \"relayctl auth url\" to authorize.")
			return
		}
		state := "expired (will refresh on next fetch)"
		if status.Valid {
			state = "valid"
		}
		fmt.Fprintf(w, "Access token: %s\n", state)
		fmt.Fprintf(w, "  scope:      %s\n", status.Scope)
		fmt.Fprintf(w, "  expires at: %s\n", status.ExpiresAt.Format(time.RFC3339))
	})
}
