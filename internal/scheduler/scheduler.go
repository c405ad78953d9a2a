// Package scheduler runs the playback-event retention sweep on a cron
// schedule, deleting history rows older than the configured maximum age.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/angelstreet/streamwatch/internal/repository"
)

// RetentionConfig holds configuration for the retention sweep.
type RetentionConfig struct {
	// MaxAge is how long events are kept. Zero disables the sweep.
	MaxAge time.Duration

	// Schedule is a 6-field cron expression (seconds granularity)
	// controlling when the sweep runs.
	Schedule string
}

// DefaultRetentionConfig returns the default retention configuration:
// keep 30 days of history, sweep nightly at 03:30.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:   30 * 24 * time.Hour,
		Schedule: "0 30 3 * * *",
	}
}

// Sweeper periodically deletes playback events older than the retention
// window.
type Sweeper struct {
	mu sync.Mutex

	events repository.PlaybackEventRepository
	logger *slog.Logger

	parser   cron.Parser
	schedule cron.Schedule
	maxAge   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a retention sweeper. It returns an error when the
// cron expression does not parse.
func NewSweeper(events repository.PlaybackEventRepository, config RetentionConfig) (*Sweeper, error) {
	s := &Sweeper{
		events: events,
		logger: slog.Default(),
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		maxAge: config.MaxAge,
	}

	expr := config.Schedule
	if expr == "" {
		expr = DefaultRetentionConfig().Schedule
	}
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing retention sweep schedule %q: %w", expr, err)
	}
	s.schedule = schedule

	return s, nil
}

// WithLogger sets a custom logger.
func (s *Sweeper) WithLogger(logger *slog.Logger) *Sweeper {
	s.logger = logger
	return s
}

// Start begins the sweep loop. It is a no-op when retention is disabled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("retention sweeper already started")
	}
	if s.maxAge <= 0 {
		s.logger.Info("event retention disabled, sweep loop not started")
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Info("retention sweeper started",
		slog.Duration("max_age", s.maxAge),
		slog.Time("next_sweep", s.schedule.Next(time.Now())))

	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("retention sweeper stopped")
}

func (s *Sweeper) sweepLoop() {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(s.ctx)
		}
	}
}

// Sweep deletes events older than the retention window and returns the
// number of rows removed. Exposed so operators can trigger it on demand.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	cutoff := time.Now().Add(-s.maxAge)

	deleted, err := s.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", slog.Any("error", err))
		return 0
	}

	if deleted > 0 {
		s.logger.Info("retention sweep completed",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted
}
