// Package playback implements the adaptive stream playback controller:
// transport selection, bounded retry with fixed delay, stuck-stream
// detection, and the session recovery state machine. Each session keeps one
// device's stream playing against a display sink despite an unreliable
// upstream encoder and transient network failures.
package playback

import (
	"strings"
	"time"
)

// TransportKind identifies the concrete playback path for a session.
type TransportKind int

const (
	// TransportNone means no transport is attached.
	TransportNone TransportKind = iota

	// TransportSegmented is the in-process segmented-streaming engine
	// (playlist polling plus segment fetching).
	TransportSegmented

	// TransportNative is the direct playback path: the source URL is handed
	// straight to the display sink.
	TransportNative
)

// String returns the string representation of the transport kind.
func (k TransportKind) String() string {
	switch k {
	case TransportSegmented:
		return "segmented"
	case TransportNative:
		return "native"
	case TransportNone:
		return "none"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for TransportKind.
func (k TransportKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for TransportKind.
func (k *TransportKind) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	switch str {
	case "segmented":
		*k = TransportSegmented
	case "native":
		*k = TransportNative
	default:
		*k = TransportNone
	}
	return nil
}

// Lifecycle is the session state machine's primary state. The pause flag
// (Session.active) is orthogonal and never encoded here.
type Lifecycle int

const (
	// LifecycleIdle means no playback attempt has been made yet.
	LifecycleIdle Lifecycle = iota

	// LifecycleInitializing means a transport is attaching and loading.
	LifecycleInitializing

	// LifecycleReady means the transport reported a playable stream.
	LifecycleReady

	// LifecycleErroring means a recoverable error occurred and the session
	// is retrying or soft-recovering.
	LifecycleErroring

	// LifecycleStuck means the upstream producer stopped emitting segments.
	// Only a manual restart exits this state.
	LifecycleStuck

	// LifecycleTerminal means no automatic path forward exists (manifest
	// permanently missing, or environment unsupported). Never retried.
	LifecycleTerminal
)

// String returns the string representation of the lifecycle state.
func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleInitializing:
		return "initializing"
	case LifecycleReady:
		return "ready"
	case LifecycleErroring:
		return "erroring"
	case LifecycleStuck:
		return "stuck"
	case LifecycleTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for Lifecycle.
func (l Lifecycle) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Lifecycle.
func (l *Lifecycle) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}
	switch str {
	case "initializing":
		*l = LifecycleInitializing
	case "ready":
		*l = LifecycleReady
	case "erroring":
		*l = LifecycleErroring
	case "stuck":
		*l = LifecycleStuck
	case "terminal":
		*l = LifecycleTerminal
	default:
		*l = LifecycleIdle
	}
	return nil
}

// StreamMode classifies how a stream target should be buffered and tracked.
type StreamMode string

const (
	// ModeLive targets the live edge with a small initial buffer.
	ModeLive StreamMode = "live"

	// ModeArchive disables live-edge targeting in favor of a larger
	// seekable buffer.
	ModeArchive StreamMode = "archive"
)

// ParseStreamMode converts a string to a StreamMode, defaulting to live.
func ParseStreamMode(s string) StreamMode {
	if StreamMode(strings.ToLower(s)) == ModeArchive {
		return ModeArchive
	}
	return ModeLive
}

// StreamTarget is the immutable description of what to play. It is replaced
// wholesale whenever the caller requests a different URL or quality.
type StreamTarget struct {
	// URL is the stream source URL (playlist or single file).
	URL string `json:"url"`

	// Mode selects the engine profile (live or archive).
	Mode StreamMode `json:"mode"`

	// Quality is the requested quality tier. For multivariant playlists it
	// selects the variant; empty means highest bandwidth.
	Quality string `json:"quality,omitempty"`

	// Container optionally overrides format detection ("hls" forces
	// segmented handling, "file" forces direct playback).
	Container string `json:"container,omitempty"`
}

// Segmented reports whether the target is a segmented stream. The URL path
// extension decides unless an explicit container hint overrides it.
func (t StreamTarget) Segmented() bool {
	switch strings.ToLower(t.Container) {
	case "hls":
		return true
	case "file", "progressive":
		return false
	}
	path := t.URL
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	path = strings.ToLower(path)
	return strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".m3u")
}

// Capabilities declares what the playback environment supports. It is fixed
// per process and consulted by the transport selector.
type Capabilities struct {
	// SegmentedEngine reports whether the in-process segmented engine is
	// available for segmented targets.
	SegmentedEngine bool `json:"segmented_engine"`

	// NativeSegmented reports whether the native path can play segmented
	// URLs directly. This is the escalation fallback.
	NativeSegmented bool `json:"native_segmented"`
}

// Snapshot is the read model of a session, safe to serialize and hand to
// observers. The target URL is credential-sanitized before it gets here.
type Snapshot struct {
	ID              string        `json:"id"`
	DeviceID        string        `json:"device_id"`
	TargetURL       string        `json:"target_url,omitempty"`
	Mode            StreamMode    `json:"mode,omitempty"`
	Quality         string        `json:"quality,omitempty"`
	Transport       TransportKind `json:"transport"`
	Lifecycle       Lifecycle     `json:"lifecycle"`
	Active          bool          `json:"active"`
	Suspended       bool          `json:"suspended"`
	RetryCount      int           `json:"retry_count"`
	SegmentFailures int           `json:"segment_failures"`
	RequiresGesture bool          `json:"requires_gesture"`
	LastError       string        `json:"last_error,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Config holds the controller tuning. The defaults encode the recovery
// contract: fixed retry delay, bounded attempt count, an independent
// consecutive-segment-failure budget, and short grace delays around
// teardown and restart.
type Config struct {
	// StartThrottle suppresses a start attempted within this window of the
	// previous one.
	StartThrottle time.Duration

	// RetryDelay is the fixed delay before a scheduled retry fires. There
	// is no exponential backoff at this layer.
	RetryDelay time.Duration

	// MaxRetries bounds retryCount. Reaching it forces the selector to the
	// native transport.
	MaxRetries int

	// NativeEscalationThreshold is the retry count after which the selector
	// escalates to native, provided the environment can play segmented
	// streams natively.
	NativeEscalationThreshold int

	// MaxSegmentFailures is the consecutive segment-not-found budget.
	// Reaching it marks the session stuck.
	MaxSegmentFailures int

	// StuckTeardownGrace is the delay before a stuck session's transport is
	// destroyed to stop further upstream requests.
	StuckTeardownGrace time.Duration

	// RestartDelay is the delay between a manual restart's teardown and its
	// fresh start.
	RestartDelay time.Duration

	// NativeSwitchDelay is the delay before a fatal error escalates to the
	// native transport.
	NativeSwitchDelay time.Duration
}

// DefaultConfig returns the standard controller tuning.
func DefaultConfig() Config {
	return Config{
		StartThrottle:             1000 * time.Millisecond,
		RetryDelay:                6000 * time.Millisecond,
		MaxRetries:                5,
		NativeEscalationThreshold: 2,
		MaxSegmentFailures:        10,
		StuckTeardownGrace:        500 * time.Millisecond,
		RestartDelay:              250 * time.Millisecond,
		NativeSwitchDelay:         500 * time.Millisecond,
	}
}
