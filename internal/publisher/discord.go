package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"reddit_relay/internal/domain"
	"reddit_relay/internal/retry"
)

const testMessage = "Reddit relay connected. New posts will appear in this channel."

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook responded with status %d: %s", e.StatusCode, e.Body)
}

// Config holds Discord webhook configuration.
type Config struct {
	WebhookURL  string
	Formatter   Formatter
	Timeout     time.Duration
	MinInterval time.Duration
	Retry       retry.Policy
}

// Discord delivers items to a channel webhook. Requests are spaced at least
// MinInterval apart and retried under the configured policy; 4xx responses
// are never retried.
type Discord struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retrier    *retry.Retrier
	webhookURL string
	formatter  Formatter
	logger     *slog.Logger
}

func NewDiscord(cfg Config, logger *slog.Logger) *Discord {
	logger = logger.With("publisher", "discord")
	return &Discord{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		retrier:    retry.New(cfg.Retry, logger),
		webhookURL: cfg.WebhookURL,
		formatter:  cfg.Formatter,
		logger:     logger,
	}
}

// Deliver formats item and posts it to the webhook.
func (d *Discord) Deliver(ctx context.Context, item *domain.Item) error {
	msg := d.formatter.Message(item)
	if err := d.send(ctx, msg); err != nil {
		return err
	}

	d.logger.Debug("delivered item", "item_id", item.ID)
	return nil
}

// TestConnection posts a fixed message through the regular delivery path.
func (d *Discord) TestConnection(ctx context.Context) error {
	return d.send(ctx, WebhookMessage{
		Username:  d.formatter.Username,
		AvatarURL: d.formatter.AvatarURL,
		Content:   testMessage,
	})
}

func (d *Discord) send(ctx context.Context, msg WebhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return domain.NewError(domain.KindDelivery, domain.CodeDeliveryRejected, "marshal message", err)
	}

	err = d.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return d.post(ctx, body)
	})
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	var attemptsErr *retry.AttemptsError
	switch {
	case errors.As(err, &attemptsErr):
		return domain.NewError(domain.KindDelivery, domain.CodeDeliveryExhausted,
			fmt.Sprintf("delivery failed after %d attempts", attemptsErr.Attempts), attemptsErr.Err)
	case errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
		return domain.NewError(domain.KindDelivery, domain.CodeDeliveryRejected, "webhook rejected message", err)
	default:
		return domain.NewError(domain.KindDelivery, domain.CodeDeliveryExhausted, "delivery interrupted", err)
	}
}

func (d *Discord) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "reddit_relay/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return backoff.Permanent(statusErr)
	}
	return statusErr
}
