package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelstreet/streamwatch/internal/models"
)

// playbackEventRepo implements PlaybackEventRepository using GORM.
type playbackEventRepo struct {
	db *gorm.DB
}

// NewPlaybackEventRepository creates a new PlaybackEventRepository.
func NewPlaybackEventRepository(db *gorm.DB) *playbackEventRepo {
	return &playbackEventRepo{db: db}
}

// Create appends a playback event.
func (r *playbackEventRepo) Create(ctx context.Context, event *models.PlaybackEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating playback event: %w", err)
	}
	return nil
}

// GetByID retrieves a single event by ID.
func (r *playbackEventRepo) GetByID(ctx context.Context, id models.ULID) (*models.PlaybackEvent, error) {
	var event models.PlaybackEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting playback event by ID: %w", err)
	}
	return &event, nil
}

// ListBySession retrieves the most recent events for a session, newest
// first, capped at limit.
func (r *playbackEventRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.PlaybackEvent, error) {
	var events []*models.PlaybackEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing playback events by session: %w", err)
	}
	return events, nil
}

// ListByDevice retrieves the most recent events for a device, newest
// first, capped at limit.
func (r *playbackEventRepo) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.PlaybackEvent, error) {
	var events []*models.PlaybackEvent
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing playback events by device: %w", err)
	}
	return events, nil
}

// ListRecent retrieves the most recent events across all sessions,
// newest first, capped at limit.
func (r *playbackEventRepo) ListRecent(ctx context.Context, limit int) ([]*models.PlaybackEvent, error) {
	var events []*models.PlaybackEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing recent playback events: %w", err)
	}
	return events, nil
}

// CountBySession returns the number of recorded events for a session.
func (r *playbackEventRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PlaybackEvent{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting playback events by session: %w", err)
	}
	return count, nil
}

// DeleteOlderThan deletes events created before the given time and
// returns the number of rows removed.
func (r *playbackEventRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&models.PlaybackEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting playback events older than %s: %w", before.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure playbackEventRepo implements PlaybackEventRepository at compile time.
var _ PlaybackEventRepository = (*playbackEventRepo)(nil)
