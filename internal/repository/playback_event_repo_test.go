package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelstreet/streamwatch/internal/models"
)

func setupEventTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.PlaybackEvent{})
	require.NoError(t, err)

	return db
}

func sampleEvent(sessionID, deviceID, kind string) *models.PlaybackEvent {
	return &models.PlaybackEvent{
		SessionID: sessionID,
		DeviceID:  deviceID,
		Kind:      kind,
		Lifecycle: "ready",
		Transport: "segmented",
		Mode:      "live",
		TargetURL: "http://origin.example/stream.m3u8",
		Active:    true,
	}
}

func TestPlaybackEventRepo_Create(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	event := sampleEvent("session-1", "device-1", "state")

	err := repo.Create(ctx, event)
	require.NoError(t, err)
	assert.False(t, event.ID.IsZero())

	found, err := repo.GetByID(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "session-1", found.SessionID)
	assert.Equal(t, "state", found.Kind)
	assert.True(t, found.Active)
}

func TestPlaybackEventRepo_Create_Invalid(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	event := sampleEvent("", "device-1", "state")

	err := repo.Create(ctx, event)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSessionIDRequired)
}

func TestPlaybackEventRepo_GetByID(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	event := sampleEvent("session-1", "device-1", "state")
	require.NoError(t, repo.Create(ctx, event))

	t.Run("existing event", func(t *testing.T) {
		found, err := repo.GetByID(ctx, event.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, event.ID, found.ID)
	})

	t.Run("non-existent event", func(t *testing.T) {
		found, err := repo.GetByID(ctx, models.NewULID())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestPlaybackEventRepo_ListBySession(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	// Interleave two sessions; sleep keeps created_at strictly ordered
	kinds := []string{"state", "error", "retry_scheduled", "state", "stuck"}
	for _, kind := range kinds {
		require.NoError(t, repo.Create(ctx, sampleEvent("session-a", "device-1", kind)))
		require.NoError(t, repo.Create(ctx, sampleEvent("session-b", "device-2", "state")))
		time.Sleep(2 * time.Millisecond)
	}

	t.Run("newest first", func(t *testing.T) {
		events, err := repo.ListBySession(ctx, "session-a", 10)
		require.NoError(t, err)
		require.Len(t, events, 5)
		assert.Equal(t, "stuck", events[0].Kind)
		assert.Equal(t, "state", events[len(events)-1].Kind)
		for _, e := range events {
			assert.Equal(t, "session-a", e.SessionID)
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		events, err := repo.ListBySession(ctx, "session-a", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "stuck", events[0].Kind)
		assert.Equal(t, "state", events[1].Kind)
	})

	t.Run("unknown session", func(t *testing.T) {
		events, err := repo.ListBySession(ctx, "no-such-session", 10)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestPlaybackEventRepo_ListByDevice(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	// Same device across two sessions
	require.NoError(t, repo.Create(ctx, sampleEvent("session-a", "device-1", "state")))
	require.NoError(t, repo.Create(ctx, sampleEvent("session-b", "device-1", "error")))
	require.NoError(t, repo.Create(ctx, sampleEvent("session-c", "device-2", "state")))

	events, err := repo.ListByDevice(ctx, "device-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "device-1", e.DeviceID)
	}
}

func TestPlaybackEventRepo_ListRecent(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, sampleEvent("session-a", "device-1", "state")))
	}

	events, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestPlaybackEventRepo_CountBySession(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, sampleEvent("session-a", "device-1", "state")))
	}
	require.NoError(t, repo.Create(ctx, sampleEvent("session-b", "device-2", "state")))

	count, err := repo.CountBySession(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	count, err = repo.CountBySession(ctx, "no-such-session")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestPlaybackEventRepo_DeleteOlderThan(t *testing.T) {
	db := setupEventTestDB(t)
	repo := NewPlaybackEventRepository(db)
	ctx := context.Background()

	old := sampleEvent("session-a", "device-1", "state")
	require.NoError(t, repo.Create(ctx, old))

	// Backdate the first event past the cutoff
	backdated := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(old).Update("created_at", backdated).Error)

	recent := sampleEvent("session-a", "device-1", "error")
	require.NoError(t, repo.Create(ctx, recent))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Only the recent event remains
	events, err := repo.ListBySession(ctx, "session-a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Kind)

	// Second sweep finds nothing
	deleted, err = repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
