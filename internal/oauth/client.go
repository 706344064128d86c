package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrInvalidGrant means the refresh token or authorization code was refused.
	ErrInvalidGrant = errors.New("invalid grant")
	// ErrRejected covers other client errors from the token endpoint.
	ErrRejected = errors.New("token request rejected")
	// ErrTemporaryFailure covers transport errors and 5xx responses.
	ErrTemporaryFailure = errors.New("temporary token endpoint failure")
)

// TokenResponse is the token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Client calls the Reddit OAuth2 token endpoint.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	userAgent    string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewClient(clientID, clientSecret, baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		userAgent:    userAgent,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// Exchange trades a one-time authorization code for an access and refresh token.
func (c *Client) Exchange(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	return c.tokenRequest(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	})
}

// AuthorizeURL builds the consent URL for a permanent (refreshable) grant.
func (c *Client) AuthorizeURL(redirectURI, scope, state string) string {
	q := url.Values{
		"client_id":     {c.clientID},
		"response_type": {"code"},
		"state":         {state},
		"redirect_uri":  {redirectURI},
		"duration":      {"permanent"},
		"scope":         {scope},
	}
	return c.baseURL + "/api/v1/authorize?" + q.Encode()
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemporaryFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTemporaryFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, body)
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	// Reddit answers some failures with 200 and an error body.
	if tr.AccessToken == "" {
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Error == "invalid_grant" {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("%w: response has no access_token", ErrRejected)
	}

	c.logger.Debug("token request succeeded",
		"grant_type", form.Get("grant_type"),
		"expires_in", tr.ExpiresIn,
		"has_refresh_token", tr.RefreshToken != "",
	)
	return &tr, nil
}

func (c *Client) statusError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)

	c.logger.Error("token request failed",
		"status_code", status,
		"oauth2_error", er.Error,
		"description", er.ErrorDescription,
	)

	switch {
	case er.Error == "invalid_grant":
		return fmt.Errorf("%w: HTTP %d", ErrInvalidGrant, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: HTTP %d %s", ErrRejected, status, er.Error)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrTemporaryFailure, status)
	}
}
