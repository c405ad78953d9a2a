package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/angelstreet/streamwatch/internal/urlutil"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

// EngineTuning holds the segmented engine's loop parameters.
type EngineTuning struct {
	// MinPollInterval is the floor between playlist polls.
	MinPollInterval time.Duration

	// MaxPlaylistFailures is the consecutive playlist fetch/parse budget
	// before the engine gives up with a fatal network error.
	MaxPlaylistFailures int
}

// DefaultEngineTuning returns the standard loop parameters.
func DefaultEngineTuning() EngineTuning {
	return EngineTuning{
		MinPollInterval:     800 * time.Millisecond,
		MaxPlaylistFailures: 6,
	}
}

// hlsTransport is the in-process segmented engine: it polls the media
// playlist, fetches new segments in order, probes their integrity, and
// pipes the continuous stream into the display sink.
type hlsTransport struct {
	playlists *httpclient.Client
	segments  *httpclient.Client
	profiles  Profiles
	tuning    EngineTuning
	log       *slog.Logger
	sink      DisplaySink
	cb        TransportCallbacks

	destroyed atomic.Bool
	// loadEnabled gates segment fetching without killing the poll loop;
	// StopLoad and StartLoad toggle it.
	loadEnabled atomic.Bool

	mu        sync.Mutex
	target    StreamTarget
	cancel    context.CancelFunc
	writer    *io.PipeWriter
	loopDone  chan struct{}
	readyOnce *sync.Once
}

func newHLSTransport(playlists, segments *httpclient.Client, profiles Profiles, tuning EngineTuning, sink DisplaySink, cb TransportCallbacks, log *slog.Logger) *hlsTransport {
	t := &hlsTransport{
		playlists: playlists,
		segments:  segments,
		profiles:  profiles,
		tuning:    tuning,
		log:       log,
		sink:      sink,
		cb:        cb,
	}
	t.loadEnabled.Store(true)
	sink.SetCallbacks(SinkCallbacks{
		OnError: func(err error) {
			t.emitError(TransportError{Category: CategoryMedia, Fatal: true, Err: err})
		},
	})
	return t
}

func (t *hlsTransport) Kind() TransportKind { return TransportSegmented }

func (t *hlsTransport) Load(ctx context.Context, target StreamTarget) error {
	if t.destroyed.Load() {
		return ErrTransportDestroyed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLoopLocked(ctx, target)
}

func (t *hlsTransport) SwapSource(ctx context.Context, target StreamTarget) error {
	if t.destroyed.Load() {
		return ErrTransportDestroyed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLoopLocked()
	return t.startLoopLocked(ctx, target)
}

func (t *hlsTransport) StopLoad() {
	t.loadEnabled.Store(false)
}

func (t *hlsTransport) StartLoad() error {
	if t.destroyed.Load() {
		return ErrTransportDestroyed
	}
	t.mu.Lock()
	done := t.loopDone
	t.mu.Unlock()
	if done == nil {
		return fmt.Errorf("no source loaded")
	}
	select {
	case <-done:
		// The poll loop already exited; in-place recovery cannot help.
		return fmt.Errorf("engine loop finished")
	default:
	}
	t.loadEnabled.Store(true)
	return nil
}

func (t *hlsTransport) Destroy() {
	if t.destroyed.Swap(true) {
		return
	}
	t.mu.Lock()
	t.stopLoopLocked()
	t.mu.Unlock()
	t.sink.SetCallbacks(SinkCallbacks{})
}

// startLoopLocked binds a fresh pipe to the sink and launches the poll
// loop for the target.
func (t *hlsTransport) startLoopLocked(ctx context.Context, target StreamTarget) error {
	pr, pw := io.Pipe()
	if err := t.sink.SetSource(Source{Reader: pr, Label: urlutil.Sanitize(target.URL)}); err != nil {
		pw.CloseWithError(err)
		return fmt.Errorf("binding sink source: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	once := &sync.Once{}

	t.target = target
	t.cancel = cancel
	t.writer = pw
	t.loopDone = done
	t.readyOnce = once
	t.loadEnabled.Store(true)

	go t.pollLoop(loopCtx, target, pw, once, done)
	return nil
}

func (t *hlsTransport) stopLoopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.writer != nil {
		t.writer.CloseWithError(ErrTransportDestroyed)
		t.writer = nil
	}
}

// emit delivers a callback unless the transport has been destroyed.
func (t *hlsTransport) emitError(terr TransportError) {
	if !t.destroyed.Load() && t.cb.OnError != nil {
		t.cb.OnError(terr)
	}
}

func (t *hlsTransport) emitFragment(uri string) {
	if !t.destroyed.Load() && t.cb.OnFragment != nil {
		t.cb.OnFragment(uri)
	}
}

func (t *hlsTransport) emitReady(once *sync.Once) {
	once.Do(func() {
		if !t.destroyed.Load() && t.cb.OnReady != nil {
			t.cb.OnReady()
		}
	})
}

// pollLoop is the engine core: resolve the media playlist, then poll it,
// fetching and piping each new segment in order.
func (t *hlsTransport) pollLoop(ctx context.Context, target StreamTarget, pw *io.PipeWriter, readyOnce *sync.Once, done chan struct{}) {
	defer close(done)
	defer pw.Close()

	profile := t.profiles.For(target.Mode)

	mediaURL, err := t.resolveMediaPlaylist(ctx, target)
	if err != nil {
		t.emitError(classifyPlaylistError(err))
		return
	}

	seenSegments := make(map[string]struct{})
	seenSequences := make(map[uint64]struct{})
	var playlistFailures int
	var firstPoll = true
	targetDuration := 6.0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fetchStart := time.Now()

		media, status, err := t.fetchMediaPlaylist(ctx, mediaURL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			playlistFailures++
			t.log.Debug("playlist poll failed",
				"url", urlutil.Sanitize(mediaURL),
				"failures", playlistFailures,
				"error", err)
			if playlistFailures >= t.tuning.MaxPlaylistFailures {
				t.emitError(TransportError{Category: CategoryNetwork, Fatal: true,
					Err: fmt.Errorf("playlist poll failed %d times: %w", playlistFailures, err)})
				return
			}
			if !sleepCtx(ctx, 500*time.Millisecond) {
				return
			}
			continue
		case status == http.StatusNotFound:
			// The manifest itself is gone. Nothing to retry against.
			t.emitError(TransportError{Category: CategoryManifestNotFound, Fatal: true,
				StatusCode: status, Err: fmt.Errorf("manifest missing: %s", urlutil.Sanitize(mediaURL))})
			return
		}
		playlistFailures = 0

		if media.TargetDuration > 0 {
			targetDuration = float64(media.TargetDuration)
		}

		if firstPoll && target.Mode == ModeLive {
			markLiveEdge(media, seenSegments, seenSequences, profile.LiveSyncDuration)
		}
		firstPoll = false

		t.emitReady(readyOnce)

		emittedAny, ok := t.emitSegments(ctx, media, mediaURL, pw, seenSegments, seenSequences)
		if !ok {
			return
		}

		if media.Endlist {
			t.log.Info("playlist ended", "url", urlutil.Sanitize(mediaURL), "mode", string(target.Mode))
			return
		}

		if !t.waitPoll(ctx, fetchStart, targetDuration, emittedAny) {
			return
		}
	}
}

// emitSegments fetches and pipes every not-yet-seen segment. The second
// return value is false when the loop must exit.
func (t *hlsTransport) emitSegments(ctx context.Context, media *playlist.Media, mediaURL string, pw *io.PipeWriter, seenSegments map[string]struct{}, seenSequences map[uint64]struct{}) (bool, bool) {
	var emittedAny bool
	mediaSequence := uint64(media.MediaSequence)

	for i, seg := range media.Segments {
		if seg == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return emittedAny, false
		default:
		}
		if !t.loadEnabled.Load() {
			// Load is stopped; leave the segment unseen so it is picked up
			// when loading resumes.
			continue
		}

		seq := mediaSequence + uint64(i)
		if _, ok := seenSequences[seq]; ok {
			continue
		}
		if _, ok := seenSegments[seg.URI]; ok {
			seenSequences[seq] = struct{}{}
			continue
		}
		seenSequences[seq] = struct{}{}
		seenSegments[seg.URI] = struct{}{}

		absURL, err := urlutil.ResolveReference(mediaURL, seg.URI)
		if err != nil {
			t.emitError(TransportError{Category: CategoryFragmentLoad, Err: err})
			continue
		}

		data, status, err := t.fetchSegment(ctx, absURL)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return emittedAny, false
			}
			t.emitError(TransportError{Category: CategoryFragmentLoad, Err: err})
			continue
		case status == http.StatusNotFound:
			// The playlist advertises a segment the origin no longer (or
			// not yet) has. This feeds the stuck detector, not the retry
			// counter.
			t.emitError(TransportError{Category: CategorySegmentNotFound, StatusCode: status,
				Err: fmt.Errorf("segment missing: %s", urlutil.Sanitize(absURL))})
			continue
		}

		if looksLikeTS(data) {
			if err := probeTS(data); err != nil {
				t.emitError(TransportError{Category: CategoryFragmentParse,
					Err: fmt.Errorf("corrupt segment %s: %w", urlutil.Sanitize(absURL), err)})
				continue
			}
		}

		if _, err := pw.Write(data); err != nil {
			// The sink side closed the pipe.
			return emittedAny, false
		}
		emittedAny = true
		t.emitFragment(absURL)
	}
	return emittedAny, true
}

// waitPoll sleeps until the next poll. Half the target duration, clamped
// between the configured floor and one full target duration, shortened
// slightly when the last poll produced nothing.
func (t *hlsTransport) waitPoll(ctx context.Context, fetchStart time.Time, targetDuration float64, emittedAny bool) bool {
	intervalMs := targetDuration * 1000 * 0.5
	if intervalMs > targetDuration*1000 {
		intervalMs = targetDuration * 1000
	}
	if !emittedAny {
		intervalMs *= 0.85
	}
	interval := time.Duration(intervalMs) * time.Millisecond
	if interval < t.tuning.MinPollInterval {
		interval = t.tuning.MinPollInterval
	}

	elapsed := time.Since(fetchStart)
	if interval <= elapsed {
		return ctx.Err() == nil
	}
	return sleepCtx(ctx, interval-elapsed)
}

// resolveMediaPlaylist fetches the target URL and, for multivariant
// playlists, picks the variant matching the requested quality.
func (t *hlsTransport) resolveMediaPlaylist(ctx context.Context, target StreamTarget) (string, error) {
	data, status, err := t.fetchPlaylistBytes(ctx, target.URL)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", &playlistStatusError{status: status, url: target.URL}
	}

	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("parsing playlist: %w", err)
	}

	switch p := pl.(type) {
	case *playlist.Media:
		return target.URL, nil
	case *playlist.Multivariant:
		if len(p.Variants) == 0 {
			return "", fmt.Errorf("multivariant playlist has no variants")
		}
		variant := pickVariant(p.Variants, target.Quality)
		resolved, err := urlutil.ResolveReference(target.URL, variant.URI)
		if err != nil {
			return "", fmt.Errorf("resolving variant URI: %w", err)
		}
		t.log.Debug("variant selected",
			"quality", target.Quality,
			"bandwidth", variant.Bandwidth,
			"uri", urlutil.Sanitize(resolved))
		return resolved, nil
	default:
		return "", fmt.Errorf("unrecognized playlist type")
	}
}

func (t *hlsTransport) fetchMediaPlaylist(ctx context.Context, url string) (*playlist.Media, int, error) {
	data, status, err := t.fetchPlaylistBytes(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	if status == http.StatusNotFound {
		return nil, status, nil
	}
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, status, fmt.Errorf("parsing playlist: %w", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, status, fmt.Errorf("expected media playlist, got multivariant")
	}
	return media, status, nil
}

func (t *hlsTransport) fetchPlaylistBytes(ctx context.Context, url string) ([]byte, int, error) {
	resp, err := t.playlists.Get(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func (t *hlsTransport) fetchSegment(ctx context.Context, url string) ([]byte, int, error) {
	resp, err := t.segments.Get(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// pickVariant chooses a variant by quality tier. Variants are ranked by
// bandwidth; an unrecognized quality falls back to a URI substring match,
// then to the highest bandwidth.
func pickVariant(variants []*playlist.MultivariantVariant, quality string) *playlist.MultivariantVariant {
	sorted := make([]*playlist.MultivariantVariant, len(variants))
	copy(sorted, variants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})

	switch strings.ToLower(quality) {
	case "", "high", "best":
		return sorted[0]
	case "low":
		return sorted[len(sorted)-1]
	case "medium":
		return sorted[len(sorted)/2]
	}

	for _, v := range sorted {
		if strings.Contains(strings.ToLower(v.URI), strings.ToLower(quality)) {
			return v
		}
	}
	return sorted[0]
}

// markLiveEdge pre-marks all but the trailing segments as seen so a live
// session starts near the edge instead of replaying the window. The tail
// kept covers roughly the profile's live sync duration.
func markLiveEdge(media *playlist.Media, seenSegments map[string]struct{}, seenSequences map[uint64]struct{}, syncDuration time.Duration) {
	if syncDuration <= 0 {
		syncDuration = 9 * time.Second
	}

	keepFrom := len(media.Segments)
	var tail time.Duration
	for i := len(media.Segments) - 1; i >= 0; i-- {
		if media.Segments[i] == nil {
			continue
		}
		tail += media.Segments[i].Duration
		keepFrom = i
		if tail >= syncDuration {
			break
		}
	}

	mediaSequence := uint64(media.MediaSequence)
	for i := 0; i < keepFrom; i++ {
		seg := media.Segments[i]
		if seg == nil {
			continue
		}
		seenSequences[mediaSequence+uint64(i)] = struct{}{}
		seenSegments[seg.URI] = struct{}{}
	}
}

// playlistStatusError carries an HTTP status from the initial playlist
// resolution so it can be classified as manifest-not-found.
type playlistStatusError struct {
	status int
	url    string
}

func (e *playlistStatusError) Error() string {
	return fmt.Sprintf("playlist HTTP %d: %s", e.status, urlutil.Sanitize(e.url))
}

func classifyPlaylistError(err error) TransportError {
	if se, ok := err.(*playlistStatusError); ok && se.status == http.StatusNotFound {
		return TransportError{Category: CategoryManifestNotFound, Fatal: true, StatusCode: se.status, Err: err}
	}
	return TransportError{Category: CategoryNetwork, Fatal: true, Err: err}
}

// sleepCtx sleeps for d, returning false if the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
