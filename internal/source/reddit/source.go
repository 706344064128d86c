package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reddit_relay/internal/domain"
)

const (
	SiteURL  = "https://www.reddit.com"
	MaxLimit = 100
)

// TokenProvider hands out a bearer token valid for the next request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config holds Reddit source configuration.
type Config struct {
	BaseURL     string
	Subreddit   string
	UserAgent   string
	Timeout     time.Duration
	MinInterval time.Duration
}

// Source fetches the newest posts of one subreddit.
type Source struct {
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *rate.Limiter
	baseURL    string
	subreddit  string
	userAgent  string
	logger     *slog.Logger
}

// New creates a Reddit source. Calls are spaced at least MinInterval apart.
func New(cfg Config, tokens TokenProvider, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		subreddit: cfg.Subreddit,
		userAgent: cfg.UserAgent,
		logger:    logger.With("source", "reddit", "subreddit", cfg.Subreddit),
	}
}

// Subreddit returns the configured subreddit name.
func (s *Source) Subreddit() string {
	return s.subreddit
}

// FetchLatest returns up to limit of the newest posts, newest first. Token
// failures are returned unchanged so callers can tell them apart from fetch
// failures.
func (s *Source) FetchLatest(ctx context.Context, limit int) ([]domain.Item, error) {
	limit = min(max(limit, 1), MaxLimit)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := s.authorizedRequest(ctx, limit)
	if err != nil {
		return nil, err
	}

	listing, err := s.doRequest(req)
	if err != nil {
		return nil, err
	}

	items := s.transform(listing.Data.Children)
	s.logger.Debug("fetched listing", "limit", limit, "items", len(items))
	return items, nil
}

// TestConnection performs a one-item fetch to validate credentials and connectivity.
func (s *Source) TestConnection(ctx context.Context) error {
	_, err := s.FetchLatest(ctx, 1)
	return err
}

func (s *Source) authorizedRequest(ctx context.Context, limit int) (*http.Request, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"limit":    {strconv.Itoa(limit)},
		"raw_json": {"1"},
	}
	endpoint := fmt.Sprintf("%s/r/%s/new?%s", s.baseURL, url.PathEscape(s.subreddit), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, domain.CodeFetchFailed, "create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	return req, nil
}

func (s *Source) doRequest(req *http.Request) (*Listing, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, domain.CodeFetchFailed, "execute request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewError(domain.KindFetch, domain.CodeFetchUnauthorized,
			fmt.Sprintf("listing request refused with status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewError(domain.KindFetch, domain.CodeFetchFailed,
			fmt.Sprintf("unexpected status: %d", resp.StatusCode), nil)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, domain.NewError(domain.KindFetch, domain.CodeFetchFailed, "decode response", err)
	}
	return &listing, nil
}

func (s *Source) transform(children []Child) []domain.Item {
	items := make([]domain.Item, 0, len(children))

	for _, c := range children {
		p := c.Data
		if p.ID == "" {
			s.logger.Warn("skipping listing entry without id", "kind", c.Kind)
			continue
		}

		item := domain.Item{
			ID:          p.ID,
			Title:       p.Title,
			Author:      p.Author,
			URL:         p.URL,
			Body:        p.Selftext,
			Permalink:   absolutePermalink(p.Permalink),
			Thumbnail:   p.Thumbnail,
			Score:       p.Score,
			NumComments: p.NumComments,
			CreatedUTC:  int64(p.CreatedUTC),
			Subreddit:   p.Subreddit,
		}
		if item.Author == "" {
			item.Author = "[deleted]"
		}
		if item.Subreddit == "" {
			item.Subreddit = s.subreddit
		}
		if p.LinkFlairText != nil && strings.TrimSpace(*p.LinkFlairText) != "" {
			flair := *p.LinkFlairText
			item.Flair = &flair
		}

		items = append(items, item)
	}

	return items
}

func absolutePermalink(permalink string) string {
	switch {
	case permalink == "":
		return ""
	case strings.HasPrefix(permalink, "http://"), strings.HasPrefix(permalink, "https://"):
		return permalink
	case strings.HasPrefix(permalink, "/"):
		return SiteURL + permalink
	default:
		return SiteURL + "/" + permalink
	}
}
