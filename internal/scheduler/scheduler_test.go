package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/streamwatch/internal/models"
)

type sweepRepo struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (r *sweepRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.cutoffs = append(r.cutoffs, before)
	return r.deleted, nil
}

func (r *sweepRepo) Create(context.Context, *models.PlaybackEvent) error { return nil }

func (r *sweepRepo) GetByID(context.Context, models.ULID) (*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *sweepRepo) ListBySession(context.Context, string, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *sweepRepo) ListByDevice(context.Context, string, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *sweepRepo) ListRecent(context.Context, int) ([]*models.PlaybackEvent, error) {
	return nil, nil
}

func (r *sweepRepo) CountBySession(context.Context, string) (int64, error) { return 0, nil }

func (r *sweepRepo) calls() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Time, len(r.cutoffs))
	copy(out, r.cutoffs)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(&sweepRepo{}, RetentionConfig{
		MaxAge:   time.Hour,
		Schedule: "not a cron expression",
	})
	require.Error(t, err)
}

func TestNewSweeperDefaultsSchedule(t *testing.T) {
	s, err := NewSweeper(&sweepRepo{}, RetentionConfig{MaxAge: time.Hour})
	require.NoError(t, err)
	assert.NotNil(t, s.schedule)
}

func TestSweepUsesRetentionCutoff(t *testing.T) {
	repo := &sweepRepo{deleted: 7}
	s, err := NewSweeper(repo, RetentionConfig{
		MaxAge:   48 * time.Hour,
		Schedule: "0 0 3 * * *",
	})
	require.NoError(t, err)
	s.WithLogger(testLogger())

	before := time.Now().Add(-48 * time.Hour)
	deleted := s.Sweep(context.Background())
	after := time.Now().Add(-48 * time.Hour)

	assert.Equal(t, int64(7), deleted)
	cutoffs := repo.calls()
	require.Len(t, cutoffs, 1)
	assert.False(t, cutoffs[0].Before(before))
	assert.False(t, cutoffs[0].After(after))
}

func TestSweepSwallowsRepositoryErrors(t *testing.T) {
	repo := &sweepRepo{err: errors.New("database locked")}
	s, err := NewSweeper(repo, RetentionConfig{MaxAge: time.Hour})
	require.NoError(t, err)
	s.WithLogger(testLogger())

	assert.Equal(t, int64(0), s.Sweep(context.Background()))
}

func TestSweepLoopFiresOnSchedule(t *testing.T) {
	repo := &sweepRepo{}
	// Every-second schedule keeps the test fast.
	s, err := NewSweeper(repo, RetentionConfig{
		MaxAge:   time.Hour,
		Schedule: "* * * * * *",
	})
	require.NoError(t, err)
	s.WithLogger(testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return len(repo.calls()) >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestStartIsNoOpWhenRetentionDisabled(t *testing.T) {
	repo := &sweepRepo{}
	s, err := NewSweeper(repo, RetentionConfig{MaxAge: 0, Schedule: "* * * * * *"})
	require.NoError(t, err)
	s.WithLogger(testLogger())

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(1500 * time.Millisecond)
	s.Stop()

	assert.Empty(t, repo.calls())
}

func TestStartTwiceFails(t *testing.T) {
	s, err := NewSweeper(&sweepRepo{}, RetentionConfig{MaxAge: time.Hour})
	require.NoError(t, err)
	s.WithLogger(testLogger())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}
