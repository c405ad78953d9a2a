package migrations

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelstreet/streamwatch/internal/models"
)

// AllMigrations returns every migration in apply order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002SessionCreatedIndex(),
	}
}

// migration001Schema creates the playback event history table.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create playback event history table",
		Up: func(ctx context.Context, tx *gorm.DB) error {
			return tx.AutoMigrate(&models.PlaybackEvent{})
		},
		Down: func(ctx context.Context, tx *gorm.DB) error {
			return tx.Migrator().DropTable("playback_events")
		},
	}
}

// migration002SessionCreatedIndex adds the composite index backing the
// per-session history query (newest first, bounded limit).
func migration002SessionCreatedIndex() Migration {
	const indexName = "idx_playback_events_session_created"

	return Migration{
		Version:     "002",
		Description: "Add composite index on playback_events(session_id, created_at)",
		Up: func(ctx context.Context, tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.PlaybackEvent{}, indexName) {
				return nil
			}
			stmt := fmt.Sprintf(
				"CREATE INDEX %s ON playback_events(session_id, created_at)",
				indexName,
			)
			return tx.Exec(stmt).Error
		},
		Down: func(ctx context.Context, tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.PlaybackEvent{}, indexName) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.PlaybackEvent{}, indexName)
		},
	}
}
