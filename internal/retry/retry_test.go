package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(policy Policy) *Retrier {
	r := New(policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.jitter = func(time.Duration) time.Duration { return 0 }
	return r
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})

	var attempts []int
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("server error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 3, InitialBackoff: time.Hour})
	rejected := errors.New("bad request")

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return backoff.Permanent(rejected)
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, rejected, err)
}

func TestDo_PermanentOnLastAttemptIsUnwrapped(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond})
	rejected := errors.New("bad request")

	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			return errors.New("server error")
		}
		return backoff.Permanent(rejected)
	})

	assert.Same(t, rejected, err)
}

func TestDo_ExhaustedCarriesLastError(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond})

	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return errors.New("attempt failed")
	})

	var attemptsErr *AttemptsError
	require.ErrorAs(t, err, &attemptsErr)
	assert.Equal(t, 2, attemptsErr.Attempts)
	assert.EqualError(t, attemptsErr.Err, "attempt failed")
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 3, InitialBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	var attemptsErr *AttemptsError
	assert.False(t, errors.As(err, &attemptsErr))
}

func TestBackoff(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second, MaxJitter: time.Second})
	r.jitter = func(time.Duration) time.Duration { return 500 * time.Millisecond }

	assert.Equal(t, 1500*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 2500*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 4500*time.Millisecond, r.Backoff(3))
	assert.Equal(t, 30*time.Second, r.Backoff(6))
	assert.Equal(t, 30*time.Second, r.Backoff(40))
}

func TestPolicyBackOff_FollowsScheduleAndResets(t *testing.T) {
	r := newTestRetrier(Policy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second})
	var b backoff.BackOff = r.newBackOff()

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestRandomJitterWithinBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := randomJitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
}
