// Package repository defines data access interfaces for streamwatch
// entities. All database access goes through these interfaces, enabling
// easy testing and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/angelstreet/streamwatch/internal/models"
)

// PlaybackEventRepository defines operations for playback event history
// persistence. Events are append-only; the only mutation is the retention
// sweep's bulk delete.
type PlaybackEventRepository interface {
	// Create appends a playback event.
	Create(ctx context.Context, event *models.PlaybackEvent) error
	// GetByID retrieves a single event by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.PlaybackEvent, error)
	// ListBySession retrieves the most recent events for a session,
	// newest first, capped at limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.PlaybackEvent, error)
	// ListByDevice retrieves the most recent events for a device across
	// all of its sessions, newest first, capped at limit.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.PlaybackEvent, error)
	// ListRecent retrieves the most recent events across all sessions,
	// newest first, capped at limit.
	ListRecent(ctx context.Context, limit int) ([]*models.PlaybackEvent, error)
	// CountBySession returns the number of recorded events for a session.
	CountBySession(ctx context.Context, sessionID string) (int64, error)
	// DeleteOlderThan deletes events created before the given time and
	// returns the number of rows removed. Used by the retention sweep.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
