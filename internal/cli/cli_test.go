package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstreams struct {
	reddit     *httptest.Server
	discord    *httptest.Server
	deliveries atomic.Int32
	exchanges  atomic.Int32
}

const listingBody = `{"kind":"Listing","data":{"after":null,"children":[
{"kind":"t3","data":{"id":"p2","title":"Second","author":"bob","url":"https://example.com/2","selftext":"","permalink":"/r/golang/comments/p2/second/","thumbnail":"self","link_flair_text":null,"score":3,"num_comments":1,"created_utc":1700000100,"subreddit":"golang"}},
{"kind":"t3","data":{"id":"p1","title":"First","author":"alice","url":"https://example.com/1","selftext":"hello","permalink":"/r/golang/comments/p1/first/","thumbnail":"","link_flair_text":"News","score":10,"num_comments":4,"created_utc":1700000000,"subreddit":"golang"}}
]}}`

func newFakeUpstreams(t *testing.T) *fakeUpstreams {
	t.Helper()
	f := &fakeUpstreams{}

	f.reddit = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/access_token":
			require.NoError(t, r.ParseForm())
			resp := map[string]any{"access_token": "access", "token_type": "bearer", "expires_in": 3600, "scope": "read"}
			if r.PostForm.Get("grant_type") == "authorization_code" {
				f.exchanges.Add(1)
				resp["refresh_token"] = "refresh-from-code"
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/r/golang/new":
			assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
			_, _ = io.WriteString(w, listingBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.reddit.Close)

	f.discord = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.deliveries.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.discord.Close)

	return f
}

func writeTestConfig(t *testing.T, f *fakeUpstreams, refreshToken string) string {
	t.Helper()
	for _, key := range []string{
		"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_REFRESH_TOKEN", "REDDIT_REDIRECT_URI",
		"SUBREDDIT", "TOKEN_FILE", "DISCORD_WEBHOOK_URL", "SYNC_SCHEDULE", "TZ", "SYNC_TIMEZONE", "LEDGER_FILE",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	body := fmt.Sprintf(`
reddit:
  client_id: client
  client_secret: secret
  redirect_uri: http://localhost:8080/callback
  refresh_token: %q
  subreddit: golang
  token_file: %s
  auth_base_url: %s
  api_base_url: %s
  min_interval: 1ms
discord:
  webhook_url: %s
  min_interval: 1ms
  retry:
    initial_backoff: 1ms
    max_backoff: 2ms
    max_jitter: 1ms
sync:
  item_spacing: 1ms
  ledger_file: %s
`, refreshToken, filepath.Join(dir, "token.json"), f.reddit.URL, f.reddit.URL, f.discord.URL, filepath.Join(dir, "posted_ids.json"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	jsonOutput = false
	verbose = false
	require.NoError(t, ledgerClearCmd.Flags().Set("yes", "false"))

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_SubcommandsList(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})

	require.NoError(t, rootCmd.Execute())

	for _, cmd := range []string{"auth", "ledger", "sync", "check"} {
		assert.Contains(t, buf.String(), cmd)
	}
}

func TestAuthURL(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "")

	out, err := run(t, path, "auth", "url")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, f.reddit.URL+"/api/v1/authorize?"))
	assert.Contains(t, out, "duration=permanent")
	assert.Contains(t, out, "client_id=client")
}

func TestAuthExchangeAndStatus(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "")

	out, err := run(t, path, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No token record stored")

	out, err = run(t, path, "auth", "exchange", "one-time-code#_")
	require.NoError(t, err)
	assert.Contains(t, out, "Token stored in")
	assert.Equal(t, int32(1), f.exchanges.Load())

	out, err = run(t, path, "auth", "status", "--json")
	require.NoError(t, err)

	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, true, status["has_record"])
	assert.Equal(t, true, status["valid"])
	assert.Equal(t, "read", status["scope"])
}

func TestSyncAndLedger(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "stored-refresh-token")

	out, err := run(t, path, "sync", "--json")
	require.NoError(t, err)

	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, float64(2), stats["found"])
	assert.Equal(t, float64(2), stats["sent"])
	assert.Equal(t, int32(2), f.deliveries.Load())

	out, err = run(t, path, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "filtered: 2")
	assert.Equal(t, int32(2), f.deliveries.Load())

	out, err = run(t, path, "ledger", "stats", "--json")
	require.NoError(t, err)
	var ledgerStats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ledgerStats))
	assert.Equal(t, float64(2), ledgerStats["posted_count"])
	assert.Equal(t, float64(2), ledgerStats["total_processed"])

	_, err = run(t, path, "ledger", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err = run(t, path, "ledger", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, err = run(t, path, "ledger", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "posted ids:      0")
}

func TestSync_NotAuthorizedIsSkipped(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "")

	out, err := run(t, path, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped")
	assert.Zero(t, f.deliveries.Load())
}

func TestCheck(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "stored-refresh-token")

	out, err := run(t, path, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "reddit:  ok")
	assert.Contains(t, out, "discord: ok")
	assert.Equal(t, int32(1), f.deliveries.Load())
}

func TestCheck_ReportsFailure(t *testing.T) {
	f := newFakeUpstreams(t)
	path := writeTestConfig(t, f, "")

	out, err := run(t, path, "check")
	require.Error(t, err)
	assert.Contains(t, out, "NO_STORED_CREDENTIAL")
	assert.Contains(t, out, "discord: ok")
}
