package migrations

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

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_ReturnsExpectedCount(t *testing.T) {
	migrations := AllMigrations()

	// Migrations:
	// 001: Create playback event history table
	// 002: Add composite index on playback_events(session_id, created_at)
	assert.Len(t, migrations, 2)
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	versions := make(map[string]bool)

	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate version: %s", m.Version)
		versions[m.Version] = true
	}
}

func TestAllMigrations_VersionsAreOrdered(t *testing.T) {
	migrations := AllMigrations()

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version,
			"migrations should be in ascending version order")
	}
}

func TestMigrator_Up_AllMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("playback_events"))
	assert.True(t, db.Migrator().HasTable("schema_migrations"))
	assert.True(t, db.Migrator().HasIndex(&models.PlaybackEvent{}, "idx_playback_events_session_created"))
}

func TestMigrator_Up_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	// Run migrations twice - should not error
	err := migrator.Up(ctx)
	require.NoError(t, err)

	err = migrator.Up(ctx)
	require.NoError(t, err)
}

func TestMigrator_Status(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	// Before running migrations
	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)

	for _, s := range statuses {
		assert.False(t, s.Applied)
		assert.Nil(t, s.AppliedAt)
	}

	// After running migrations
	err = migrator.Up(ctx)
	require.NoError(t, err)

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)

	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestMigrator_Down_RollsBackLastMigration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("playback_events"))
	assert.True(t, db.Migrator().HasIndex(&models.PlaybackEvent{}, "idx_playback_events_session_created"))

	// Roll back migration 002 (composite index)
	err = migrator.Down(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("playback_events"))
	assert.False(t, db.Migrator().HasIndex(&models.PlaybackEvent{}, "idx_playback_events_session_created"))

	// Roll back migration 001 (schema)
	err = migrator.Down(ctx)
	require.NoError(t, err)

	assert.False(t, db.Migrator().HasTable("playback_events"))

	// Nothing left to roll back - should be a no-op
	err = migrator.Down(ctx)
	require.NoError(t, err)
}

func TestMigrator_Down_UnregisteredMigration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	// A migrator missing the applied migration cannot roll it back
	empty := NewMigrator(db, nil)
	err = empty.Down(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestMigrations_CanInsertEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	event := &models.PlaybackEvent{
		SessionID: "c6a13b52-8e3f-4f3e-9f1a-2b7c8d9e0f11",
		DeviceID:  "device-42",
		Kind:      "lifecycle",
		Lifecycle: "ready",
		Transport: "segmented",
		Mode:      "live",
		TargetURL: "http://origin.example/stream.m3u8",
		Active:    true,
	}
	err = db.Create(event).Error
	require.NoError(t, err)
	assert.False(t, event.ID.IsZero())
	assert.False(t, event.CreatedAt.IsZero())
}

func TestMigrations_SessionHistoryQuery(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	// Two sessions, interleaved events
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.PlaybackEvent{
			SessionID: "session-a",
			DeviceID:  "device-1",
			Kind:      "retry_scheduled",
		}).Error)
		require.NoError(t, db.Create(&models.PlaybackEvent{
			SessionID: "session-b",
			DeviceID:  "device-2",
			Kind:      "lifecycle",
		}).Error)
		time.Sleep(time.Millisecond)
	}

	var events []models.PlaybackEvent
	err = db.Where("session_id = ?", "session-a").
		Order("created_at DESC").
		Limit(10).
		Find(&events).Error
	require.NoError(t, err)
	assert.Len(t, events, 3)
	for _, e := range events {
		assert.Equal(t, "session-a", e.SessionID)
	}
}
