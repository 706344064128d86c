package oauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientForServer(url string) *Client {
	return NewClient("client-id", "client-secret", url, "reddit_relay/test", 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Refresh(t *testing.T) {
	tests := map[string]struct {
		handler     http.HandlerFunc
		expectErrIs error
		expectToken string
	}{
		"success": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v1/access_token", r.URL.Path)
				assert.Equal(t, "reddit_relay/test", r.Header.Get("User-Agent"))
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "client-id", user)
				assert.Equal(t, "client-secret", pass)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
				assert.Equal(t, "the-refresh-token", r.Form.Get("refresh_token"))

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"access_token": "new-access",
					"token_type":   "bearer",
					"expires_in":   86400,
					"scope":        "read",
				})
			},
			expectToken: "new-access",
		},
		"invalid grant": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			},
			expectErrIs: ErrInvalidGrant,
		},
		"unauthorized client": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			expectErrIs: ErrRejected,
		},
		"server error": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			expectErrIs: ErrTemporaryFailure,
		},
		"invalid grant in 200 body": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			},
			expectErrIs: ErrInvalidGrant,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			resp, err := newClientForServer(server.URL).Refresh(context.Background(), "the-refresh-token")

			if tc.expectErrIs != nil {
				assert.ErrorIs(t, err, tc.expectErrIs)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectToken, resp.AccessToken)
			assert.Equal(t, 86400, resp.ExpiresIn)
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := newClientForServer(server.URL).Refresh(context.Background(), "r")

	assert.ErrorIs(t, err, ErrTemporaryFailure)
}

func TestClient_Exchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "one-time", r.Form.Get("code"))
		assert.Equal(t, "http://localhost/cb", r.Form.Get("redirect_uri"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "a",
			"refresh_token": "r",
			"expires_in":    3600,
			"scope":         "read",
		})
	}))
	defer server.Close()

	resp, err := newClientForServer(server.URL).Exchange(context.Background(), "one-time", "http://localhost/cb")

	require.NoError(t, err)
	assert.Equal(t, "r", resp.RefreshToken)
	assert.Equal(t, "read", resp.Scope)
}

func TestClient_AuthorizeURL(t *testing.T) {
	raw := newClientForServer("https://www.reddit.com/").AuthorizeURL("http://localhost/cb", "read", "xyz")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/authorize", u.Path)
	assert.Equal(t, "permanent", u.Query().Get("duration"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "read", u.Query().Get("scope"))
}
