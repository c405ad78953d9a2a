package main

import (
	"time"
)

// Timeout constants for the scenario runner.
const (
	// DefaultTimeout is the default timeout for the whole run.
	DefaultTimeout = 2 * time.Minute

	// ScenarioTimeout bounds a single scenario.
	ScenarioTimeout = 20 * time.Second

	// PollInterval is how often snapshot conditions are re-checked.
	PollInterval = 50 * time.Millisecond

	// SSEWaitTimeout is the timeout for waiting on a single SSE event.
	SSEWaitTimeout = 10 * time.Second
)

// TestResult represents the outcome of a single scenario.
type TestResult struct {
	Name    string
	Passed  bool
	Message string
	Elapsed time.Duration
}

// Session mirrors the session snapshot JSON served by the API. The runner
// decodes responses into its own type so it exercises the wire format, not
// the server's structs.
type Session struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	TargetURL       string    `json:"target_url"`
	Mode            string    `json:"mode"`
	Quality         string    `json:"quality"`
	Transport       string    `json:"transport"`
	Lifecycle       string    `json:"lifecycle"`
	Active          bool      `json:"active"`
	Suspended       bool      `json:"suspended"`
	RetryCount      int       `json:"retry_count"`
	SegmentFailures int       `json:"segment_failures"`
	RequiresGesture bool      `json:"requires_gesture"`
	LastError       string    `json:"last_error"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionEvent is a captured SSE playback event.
type SessionEvent struct {
	Timestamp time.Time
	Kind      string
	Session   Session
	Message   string
}

// HistoryEvent mirrors a persisted playback event from the history API.
type HistoryEvent struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	Kind      string `json:"kind"`
	Lifecycle string `json:"lifecycle"`
}
