package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

// Autoplay policies for the headless sink.
const (
	// AutoplayAllow lets the first Play of a source succeed.
	AutoplayAllow = "allow"

	// AutoplayRequireGesture rejects the first Play of each source with
	// ErrPlaybackPolicy. A later Play (after the gesture intent) succeeds.
	AutoplayRequireGesture = "require-gesture"
)

// HeadlessSinkOptions configures a headless sink.
type HeadlessSinkOptions struct {
	// Media fetches URL sources (native transport). Should have no
	// client-level deadline.
	Media *httpclient.Client

	// AutoplayPolicy is AutoplayAllow or AutoplayRequireGesture.
	AutoplayPolicy string

	Logger *slog.Logger
}

// HeadlessSink is a display sink with no display: it drains media bytes to
// validate that the stream actually flows, emits canplay once bytes
// arrive, and models the autoplay policy of a real playback surface.
type HeadlessSink struct {
	media          *httpclient.Client
	log            *slog.Logger
	requireGesture bool

	bytesDrained atomic.Int64

	mu        sync.Mutex
	cb        SinkCallbacks
	hasSource bool
	playing   bool
	// playAttempted tracks whether Play has run for the current source,
	// for the require-gesture policy.
	playAttempted bool
	closed        bool
	cancel        context.CancelFunc
}

// NewHeadlessSink builds a headless sink.
func NewHeadlessSink(opts HeadlessSinkOptions) *HeadlessSink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HeadlessSink{
		media:          opts.Media,
		log:            logger,
		requireGesture: opts.AutoplayPolicy == AutoplayRequireGesture,
	}
}

// SetCallbacks registers the event receivers.
func (s *HeadlessSink) SetCallbacks(cb SinkCallbacks) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

// SetSource binds a source and starts draining it.
func (s *HeadlessSink) SetSource(src Source) error {
	if src.URL == "" && src.Reader == nil {
		return fmt.Errorf("source has neither URL nor reader")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.hasSource = true
	s.playing = false
	s.playAttempted = false
	s.mu.Unlock()

	go s.drain(ctx, src)
	return nil
}

// Play begins presentation. Under the require-gesture policy the first
// attempt per source is rejected with ErrPlaybackPolicy.
func (s *HeadlessSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.hasSource {
		return fmt.Errorf("no source bound")
	}
	if s.requireGesture && !s.playAttempted {
		s.playAttempted = true
		return ErrPlaybackPolicy
	}
	s.playAttempted = true
	s.playing = true
	return nil
}

// Pause halts presentation; the source stays bound.
func (s *HeadlessSink) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

// Paused reports whether presentation is halted.
func (s *HeadlessSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing
}

// Clear drops the source and stops the drain.
func (s *HeadlessSink) Clear() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.hasSource = false
	s.playing = false
	s.playAttempted = false
	s.mu.Unlock()
}

// Close releases the sink.
func (s *HeadlessSink) Close() error {
	s.Clear()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// BytesDrained returns the total media bytes consumed across sources.
func (s *HeadlessSink) BytesDrained() int64 {
	return s.bytesDrained.Load()
}

func (s *HeadlessSink) callbacks() SinkCallbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

// drain consumes the source, emitting canplay on first bytes and ended on
// EOF. Replacement of the source (pipe closed, context canceled) exits
// silently.
func (s *HeadlessSink) drain(ctx context.Context, src Source) {
	var r io.ReadCloser
	switch {
	case src.Reader != nil:
		r = io.NopCloser(src.Reader)
	default:
		resp, err := s.media.Get(ctx, src.URL)
		if err != nil {
			if ctx.Err() == nil {
				if cb := s.callbacks(); cb.OnError != nil {
					cb.OnError(err)
				}
			}
			return
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			if cb := s.callbacks(); cb.OnError != nil {
				cb.OnError(fmt.Errorf("media fetch: HTTP %d", resp.StatusCode))
			}
			return
		}
		r = resp.Body
	}
	defer r.Close()

	buf := make([]byte, 64<<10)
	first := true
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.bytesDrained.Add(int64(n))
			if first {
				first = false
				if cb := s.callbacks(); cb.OnCanPlay != nil {
					cb.OnCanPlay()
				}
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				if cb := s.callbacks(); cb.OnEnded != nil {
					cb.OnEnded()
				}
			case ctx.Err() != nil,
				errors.Is(err, io.ErrClosedPipe),
				errors.Is(err, ErrTransportDestroyed):
				// Source replaced or torn down; not a playback failure.
			default:
				if cb := s.callbacks(); cb.OnError != nil {
					cb.OnError(err)
				}
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
