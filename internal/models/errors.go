package models

import "errors"

// Common validation errors for models.
var (
	// ErrSessionIDRequired indicates a required session ID field is empty.
	ErrSessionIDRequired = errors.New("session_id is required")

	// ErrDeviceIDRequired indicates a required device ID field is empty.
	ErrDeviceIDRequired = errors.New("device_id is required")

	// ErrEventKindRequired indicates a required event kind field is empty.
	ErrEventKindRequired = errors.New("event kind is required")
)
