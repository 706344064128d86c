// Package retry runs an operation with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how many attempts are made and how long to wait between them.
// The wait before attempt n+1 is InitialBackoff*2^(n-1) plus a random jitter in
// [0, MaxJitter), capped at MaxBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxJitter      time.Duration
}

// AttemptsError is returned once every attempt has failed.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error {
	return e.Err
}

// Retrier executes functions under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger
	jitter func(max time.Duration) time.Duration
}

func New(policy Policy, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{
		policy: policy,
		logger: logger,
		jitter: randomJitter,
	}
}

// Do calls fn until it succeeds, returns an error wrapped with
// backoff.Permanent, the context is cancelled, or MaxAttempts is reached. A
// permanent error is returned without its marker; exhaustion returns
// *AttemptsError carrying the last error.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		return struct{}{}, fn(ctx, attempt)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("attempt failed, retrying",
				"attempt", attempt,
				"backoff", next,
				"error", err,
			)
		}),
	)
	if err == nil {
		return nil
	}

	// Retry returns the marker as-is when the last allowed attempt was permanent.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	if attempt >= r.policy.MaxAttempts {
		return &AttemptsError{Attempts: attempt, Err: err}
	}
	return err
}

// Backoff returns the wait after the given failed attempt (1-based).
func (r *Retrier) Backoff(attempt int) time.Duration {
	wait := r.policy.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if r.policy.MaxBackoff > 0 && wait > r.policy.MaxBackoff {
			break
		}
	}
	if r.policy.MaxJitter > 0 {
		wait += r.jitter(r.policy.MaxJitter)
	}
	if r.policy.MaxBackoff > 0 && wait > r.policy.MaxBackoff {
		wait = r.policy.MaxBackoff
	}
	return wait
}

func (r *Retrier) newBackOff() *policyBackOff {
	return &policyBackOff{retrier: r}
}

// policyBackOff feeds the Policy schedule to backoff.Retry.
type policyBackOff struct {
	retrier *Retrier
	failed  int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.failed++
	return b.retrier.Backoff(b.failed)
}

func (b *policyBackOff) Reset() {
	b.failed = 0
}

func randomJitter(max time.Duration) time.Duration {
	return rand.N(max)
}
