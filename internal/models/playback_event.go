package models

import (
	"gorm.io/gorm"
)

// PlaybackEvent records one observable change in a playback session: an
// intent, a state transition, an error, or a recovery step. Rows are
// append-only; the retention sweep hard-deletes old ones.
//
// Kind carries the publish reason from the playback controller
// ("ready", "retry_scheduled", "stuck", ...). Lifecycle, Transport and Mode
// are the stringified session fields at the time of the event so history
// stays readable without joining anything.
type PlaybackEvent struct {
	BaseModel

	// SessionID is the UUID of the playback session.
	SessionID string `gorm:"not null;size:36;index" json:"session_id"`

	// DeviceID identifies the device under test.
	DeviceID string `gorm:"not null;size:100;index" json:"device_id"`

	// Kind is the publish reason for this event.
	Kind string `gorm:"not null;size:40;index" json:"kind"`

	// Lifecycle is the session lifecycle state after the event.
	Lifecycle string `gorm:"not null;size:20" json:"lifecycle"`

	// Transport is the transport kind in use ("segmented", "native", "none").
	Transport string `gorm:"size:10" json:"transport"`

	// Mode is the stream mode ("live", "archive", "direct").
	Mode string `gorm:"size:10" json:"mode,omitempty"`

	// TargetURL is the stream URL with credentials stripped.
	TargetURL string `gorm:"size:2048" json:"target_url,omitempty"`

	// RetryCount is the recovery attempt counter at the time of the event.
	RetryCount int `gorm:"default:0" json:"retry_count"`

	// SegmentFailures is the consecutive segment failure counter.
	SegmentFailures int `gorm:"default:0" json:"segment_failures"`

	// Message is the user-facing message, if the event carries one.
	Message string `gorm:"size:1024" json:"message,omitempty"`

	// Active records whether playback was user-enabled at the time.
	Active bool `json:"active"`

	// RequiresGesture records whether the sink was waiting on a user
	// gesture.
	RequiresGesture bool `json:"requires_gesture"`
}

// TableName returns the table name for PlaybackEvent.
func (PlaybackEvent) TableName() string {
	return "playback_events"
}

// Validate performs basic validation on the event.
func (e *PlaybackEvent) Validate() error {
	if e.SessionID == "" {
		return ErrSessionIDRequired
	}
	if e.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	if e.Kind == "" {
		return ErrEventKindRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the event and generates a ULID.
func (e *PlaybackEvent) BeforeCreate(tx *gorm.DB) error {
	if err := e.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return e.Validate()
}
