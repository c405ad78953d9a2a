package playback

import "io"

// Source is what a transport hands to the sink: either a URL the sink
// fetches itself (native transport) or a fed reader (segmented engine).
type Source struct {
	// URL is set for native playback; the sink fetches it directly.
	URL string

	// Reader is set for engine-fed playback; the transport pipes remuxed
	// media into it. Exactly one of URL and Reader is set.
	Reader io.Reader

	// Label names the source for logs.
	Label string
}

// SinkCallbacks receive playback-surface events from the sink.
type SinkCallbacks struct {
	// OnCanPlay fires once the sink has decoded enough to render.
	OnCanPlay func()

	// OnEnded fires when a finite source plays out.
	OnEnded func()

	// OnError reports a sink-level failure (decode, network on a URL
	// source).
	OnError func(err error)
}

// DisplaySink is the presentation end of a session. Play may fail with
// ErrPlaybackPolicy when the environment requires a user gesture first.
type DisplaySink interface {
	// SetCallbacks registers the event receivers, replacing any previous
	// set. The attached transport calls this before SetSource.
	SetCallbacks(cb SinkCallbacks)

	// SetSource binds a source, replacing any previous one.
	SetSource(src Source) error

	// Play begins or resumes presentation.
	Play() error

	// Pause halts presentation but keeps the source bound.
	Pause()

	// Paused reports whether presentation is currently halted.
	Paused() bool

	// Clear drops the source and any buffered media.
	Clear()

	// Close releases the sink.
	Close() error
}
