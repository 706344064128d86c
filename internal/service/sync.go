package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"reddit_relay/internal/domain"
	"reddit_relay/internal/metrics"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// HealthWindow is how recent a successful cycle must be for a service with
// recorded errors to report degraded rather than unhealthy.
const HealthWindow = time.Hour

type Config struct {
	FetchLimit  int
	ItemSpacing time.Duration
}

// SyncService moves new subreddit posts to the sink. Cycles never overlap:
// scheduled ticks are serialized by the scheduler and items within a cycle
// are delivered one at a time.
type SyncService struct {
	source    Source
	sink      Sink
	ledger    Ledger
	scheduler Scheduler
	metrics   *metrics.Metrics
	logger    *slog.Logger
	config    Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	state    State
	lifetime domain.LifetimeStats
	// Set by Stop; a cycle seeing it, or a closed startDone, finishes the
	// item in flight and leaves the rest for the next run.
	stopRequested bool
	startDone     <-chan struct{}
}

func NewSyncService(
	source Source,
	sink Sink,
	ledger Ledger,
	scheduler Scheduler,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *SyncService {
	return &SyncService{
		source:    source,
		sink:      sink,
		ledger:    ledger,
		scheduler: scheduler,
		metrics:   m,
		logger:    logger.With("component", "sync", "subreddit", source.Subreddit()),
		config:    cfg,
		now:       time.Now,
		sleep:     sleepContext,
		state:     StateStopped,
	}
}

// Start loads the ledger, checks both ends, runs one cycle and arms the
// schedule. It is a no-op unless the service is stopped. A sink that cannot be
// reached aborts the start; a source that cannot is only logged, since
// authorization may not have been completed yet.
//
// Cancelling ctx or calling Stop before Start returns cuts the first cycle
// short after the item in flight and leaves the service stopped.
func (s *SyncService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("start ignored", "state", state)
		return nil
	}
	s.state = StateStarting
	s.stopRequested = false
	s.startDone = ctx.Done()
	s.mu.Unlock()

	s.logger.Info("starting sync service", "fetch_limit", s.config.FetchLimit)

	if err := s.ledger.Load(); err != nil {
		s.resetStopped()
		return fmt.Errorf("load ledger: %w", err)
	}

	if err := s.sink.TestConnection(ctx); err != nil {
		s.resetStopped()
		return fmt.Errorf("test sink connection: %w", err)
	}

	if err := s.source.TestConnection(ctx); err != nil {
		s.logger.Warn("source connection test failed, continuing", "error", err)
	}

	if s.stopping() {
		s.resetStopped()
		s.logger.Info("stop requested during startup, skipping first cycle")
		return nil
	}

	runCtx := context.WithoutCancel(ctx)
	s.guardedCycle(runCtx)

	if s.stopping() {
		s.resetStopped()
		s.logger.Info("stop requested during first cycle")
		return nil
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(runCtx, s.scheduledCycle); err != nil {
			s.resetStopped()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	s.mu.Lock()
	s.startDone = nil
	if s.stopRequested || ctx.Err() != nil {
		s.stopRequested = true
		s.state = StateStopping
		s.mu.Unlock()
		s.logger.Info("stop requested during startup")
		return s.shutdown(runCtx)
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.metrics.SetRunning(true)
	s.logger.Info("sync service running")
	return nil
}

// Stop disarms the schedule, waits for an in-flight cycle and stamps the
// ledger. A Stop during startup is only recorded; Start carries it out.
// Calling it on a stopped service does nothing.
func (s *SyncService) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStarting:
		s.stopRequested = true
		s.mu.Unlock()
		s.logger.Info("stop requested while starting")
		return nil
	case StateRunning:
		s.stopRequested = true
		s.state = StateStopping
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		return nil
	}
	return s.shutdown(ctx)
}

func (s *SyncService) shutdown(ctx context.Context) error {
	s.logger.Info("stopping sync service")

	var errs []error
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("scheduler did not stop cleanly", "error", err)
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}

	if err := s.ledger.UpdateLastCheck(); err != nil {
		s.logger.Error("failed to stamp ledger on stop", "error", err)
		errs = append(errs, fmt.Errorf("update last check: %w", err))
	}

	s.resetStopped()
	s.metrics.SetRunning(false)
	s.logger.Info("sync service stopped")
	return errors.Join(errs...)
}

// PerformSync runs one cycle and folds the result into the lifetime counters.
func (s *SyncService) PerformSync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := s.now()
	cycleID := uuid.NewString()
	logger := s.logger.With("cycle_id", cycleID)

	logger.Info("starting sync")

	stats, err := s.sync(ctx, logger)
	if stats == nil {
		stats = &domain.SyncStats{}
	}
	stats.CycleID = cycleID
	stats.CompletedAt = s.now()
	stats.Duration = stats.CompletedAt.Sub(startTime)

	s.record(stats, err)

	if err != nil {
		logger.Error("sync failed", "error", err, "duration", stats.Duration)
		return stats, err
	}

	logger.Info("sync completed",
		"found", stats.Found,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"filtered", stats.Filtered,
		"soft", stats.Soft,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *SyncService) sync(ctx context.Context, logger *slog.Logger) (*domain.SyncStats, error) {
	items, err := s.source.FetchLatest(ctx, s.config.FetchLimit)
	if err != nil {
		if domain.IsKind(err, domain.KindAuth) {
			logger.Warn("source not authorized yet, skipping cycle",
				"code", domain.CodeOf(err),
				"error", err,
			)
			return &domain.SyncStats{Soft: true}, nil
		}
		return nil, fmt.Errorf("fetch latest: %w", err)
	}

	stats := &domain.SyncStats{Found: len(items)}
	logger.Debug("fetched items", "count", len(items))

	pending, err := s.filterNew(items)
	if err != nil {
		return stats, fmt.Errorf("filter delivered: %w", err)
	}
	stats.Filtered = len(items) - len(pending)

	delivered := make([]string, 0, len(pending))
	for i := range pending {
		item := &pending[i]

		if ctx.Err() != nil || s.stopping() {
			logger.Info("cycle interrupted by shutdown", "remaining", len(pending)-i)
			break
		}
		if i > 0 {
			if err := s.sleep(ctx, s.config.ItemSpacing); err != nil {
				logger.Info("cycle interrupted by shutdown", "remaining", len(pending)-i)
				break
			}
		}

		if err := s.sink.Deliver(ctx, item); err != nil {
			stats.Failed++
			s.metrics.RecordError(err)
			logger.Warn("failed to deliver item",
				"item_id", item.ID,
				"code", domain.CodeOf(err),
				"error", err,
			)
			continue
		}

		stats.Sent++
		delivered = append(delivered, item.ID)
	}

	if len(delivered) > 0 {
		if err := s.ledger.AddIDs(delivered); err != nil {
			return stats, fmt.Errorf("record delivered ids: %w", err)
		}
	}

	if err := s.ledger.UpdateLastCheck(); err != nil {
		return stats, fmt.Errorf("update last check: %w", err)
	}

	return stats, nil
}

// filterNew drops items already in the ledger, preserving order.
func (s *SyncService) filterNew(items []domain.Item) ([]domain.Item, error) {
	var pending []domain.Item
	for _, item := range items {
		seen, err := s.ledger.HasID(item.ID)
		if err != nil {
			return nil, err
		}
		if !seen {
			pending = append(pending, item)
		}
	}
	return pending, nil
}

// scheduledCycle is the scheduler job. Ticks while not running are skipped.
func (s *SyncService) scheduledCycle(ctx context.Context) {
	if state := s.State(); state != StateRunning {
		s.logger.Debug("skipping scheduled cycle", "state", state)
		return
	}
	s.guardedCycle(ctx)
}

// guardedCycle runs PerformSync and converts a panic into a recorded error.
func (s *SyncService) guardedCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync cycle panicked: %v", r)
			s.logger.Error("recovered from panic in sync cycle",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			s.record(&domain.SyncStats{CompletedAt: s.now()}, err)
		}
	}()

	_, _ = s.PerformSync(ctx)
}

func (s *SyncService) record(stats *domain.SyncStats, err error) {
	status := metrics.CycleSuccess

	s.mu.Lock()
	s.lifetime.TotalCycles++
	s.lifetime.TotalSent += int64(stats.Sent)
	s.lifetime.TotalFailed += int64(stats.Failed)
	switch {
	case err != nil:
		status = metrics.CycleFailure
		s.lifetime.TotalErrors++
		s.lifetime.LastError = err.Error()
		s.lifetime.LastErrorAt = stats.CompletedAt
	case stats.Soft:
		status = metrics.CycleSoft
		s.lifetime.LastSuccessfulSync = stats.CompletedAt
	default:
		s.lifetime.LastSuccessfulSync = stats.CompletedAt
	}
	last := *stats
	s.lifetime.LastCycle = &last
	s.mu.Unlock()

	s.metrics.RecordCycle(status, stats, stats.Duration)
	s.metrics.RecordError(err)
}

// Stats returns a snapshot of the lifetime counters.
func (s *SyncService) Stats() domain.LifetimeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.lifetime
	out.State = string(s.state)
	if s.lifetime.LastCycle != nil {
		last := *s.lifetime.LastCycle
		out.LastCycle = &last
	}
	return out
}

// Health derives the service health from the lifetime counters.
func (s *SyncService) Health() domain.Health {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := domain.Health{
		State:              string(s.state),
		TotalErrors:        s.lifetime.TotalErrors,
		LastError:          s.lifetime.LastError,
		LastSuccessfulSync: s.lifetime.LastSuccessfulSync,
	}

	switch {
	case s.lifetime.TotalErrors == 0:
		h.Status = domain.HealthHealthy
	case !s.lifetime.LastSuccessfulSync.IsZero() && s.now().Sub(s.lifetime.LastSuccessfulSync) <= HealthWindow:
		h.Status = domain.HealthDegraded
	default:
		h.Status = domain.HealthUnhealthy
	}
	return h
}

func (s *SyncService) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SyncService) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopRequested {
		return true
	}
	if s.startDone != nil {
		select {
		case <-s.startDone:
			return true
		default:
		}
	}
	return false
}

func (s *SyncService) resetStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.stopRequested = false
	s.startDone = nil
	s.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
