// Package scheduler runs a job on a cron expression in a fixed timezone.
// A tick that fires while the previous run is still in progress is skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"reddit_relay/internal/domain"
)

// Job is the unit of work executed on each tick.
type Job func(ctx context.Context)

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Scheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger
	cron     *cron.Cron

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// New validates spec and timezone. spec accepts five-field cron expressions
// and descriptors such as "@hourly" or "@every 5m".
func New(spec, timezone string, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, domain.NewError(domain.KindConfig, domain.CodeConfigInvalid,
			fmt.Sprintf("unknown timezone %q", timezone), err)
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, domain.NewError(domain.KindConfig, domain.CodeConfigInvalid,
			fmt.Sprintf("invalid schedule %q", spec), err)
	}

	logger = logger.With("component", "scheduler")
	cl := cronLogger{logger: logger}

	return &Scheduler{
		spec:     spec,
		location: loc,
		logger:   logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}, nil
}

// Start arms the schedule. Every run receives ctx. Calling Start on a
// running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() { job(ctx) })
	if err != nil {
		return fmt.Errorf("add schedule: %w", err)
	}
	s.entryID = id
	s.started = true
	s.cron.Start()

	s.logger.Info("scheduler started",
		"schedule", s.spec,
		"timezone", s.location.String(),
		"next_run", s.cron.Entry(id).Next,
	)
	return nil
}

// Stop disarms the schedule and waits for a running job to finish or for ctx
// to end, whichever comes first. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cron.Remove(s.entryID)
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running job: %w", ctx.Err())
	}
}

// Next returns the next scheduled run, or the zero time when not started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// cronLogger routes cron's internal logging to slog. Routine wake-ups go to
// debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
