package playback

import "errors"

// Common errors returned by the playback package.
var (
	// ErrSessionClosed is returned when an intent reaches a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound is returned by the manager for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDeviceBusy is returned when a device already has an open session.
	ErrDeviceBusy = errors.New("device already has an active session")

	// ErrNoTarget is returned when a start intent arrives without a target.
	ErrNoTarget = errors.New("no stream target")

	// ErrEnvironmentUnsupported is returned by the transport selector when
	// neither the segmented engine nor native segmented playback is
	// available for a segmented target.
	ErrEnvironmentUnsupported = errors.New("no supported transport for segmented target")

	// ErrPlaybackPolicy is returned by a display sink when programmatic
	// playback is rejected pending a user gesture. It is not a stream
	// error and never enters the retry machinery.
	ErrPlaybackPolicy = errors.New("playback rejected by autoplay policy")

	// ErrTransportDestroyed is returned by transport operations after
	// Destroy has been called.
	ErrTransportDestroyed = errors.New("transport destroyed")
)
