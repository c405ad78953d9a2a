package playback

import "time"

// EngineProfile tunes the segmented engine for one stream mode. Live
// playback keeps a small buffer pinned to the live edge; archive playback
// trades latency for a deep seekable buffer.
type EngineProfile struct {
	// MaxBufferLength caps forward buffer depth.
	MaxBufferLength time.Duration

	// MaxBufferBytes caps forward buffer size.
	MaxBufferBytes int64

	// BackBufferLength is how much played media is retained behind the
	// playhead.
	BackBufferLength time.Duration

	// LiveSyncDuration is the target distance from the live edge. Zero for
	// archive profiles.
	LiveSyncDuration time.Duration

	// LiveMaxLatency is the distance from the live edge at which the
	// engine jumps forward rather than chasing. Zero for archive profiles.
	LiveMaxLatency time.Duration
}

// Profiles is the per-mode engine tuning set.
type Profiles struct {
	Live    EngineProfile
	Archive EngineProfile
}

// For returns the profile for a stream mode.
func (p Profiles) For(mode StreamMode) EngineProfile {
	if mode == ModeArchive {
		return p.Archive
	}
	return p.Live
}

// DefaultProfiles returns the standard engine tuning.
func DefaultProfiles() Profiles {
	return Profiles{
		Live: EngineProfile{
			MaxBufferLength:  30 * time.Second,
			MaxBufferBytes:   60 << 20,
			BackBufferLength: 10 * time.Second,
			LiveSyncDuration: 9 * time.Second,
			LiveMaxLatency:   30 * time.Second,
		},
		Archive: EngineProfile{
			MaxBufferLength:  60 * time.Second,
			MaxBufferBytes:   120 << 20,
			BackBufferLength: 90 * time.Second,
		},
	}
}
