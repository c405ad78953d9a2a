package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Origin is a scriptable HLS origin for tests and scenario runs. It serves
// a live media playlist that advances on demand, a multivariant playlist
// referencing it, an archive playlist, and a progressive file. Failure
// modes are injected per call: missing segments, corrupt segments, a
// vanished manifest, playlist 500s.
type Origin struct {
	server *httptest.Server

	mu             sync.Mutex
	window         []string // segment URIs currently advertised
	mediaSequence  int
	nextSegment    int
	targetDuration int
	windowSize     int
	ended          bool

	segments        map[string][]byte
	missingSegments map[string]bool
	corruptSegments map[string]bool
	manifestGone    bool
	playlistFails   int

	playlistHits int
	segmentHits  int
}

// NewOrigin starts an origin with an initial live window of three
// segments.
func NewOrigin() *Origin {
	o := &Origin{
		targetDuration:  4,
		windowSize:      6,
		segments:        make(map[string][]byte),
		missingSegments: make(map[string]bool),
		corruptSegments: make(map[string]bool),
	}
	o.server = httptest.NewServer(http.HandlerFunc(o.handle))
	o.Advance(3)
	return o
}

// Close shuts down the origin's HTTP server.
func (o *Origin) Close() { o.server.Close() }

// URL returns the live media playlist URL.
func (o *Origin) URL() string { return o.server.URL + "/live/index.m3u8" }

// MultivariantURL returns a multivariant playlist referencing the live
// media playlist at two bandwidth tiers.
func (o *Origin) MultivariantURL() string { return o.server.URL + "/live/master.m3u8" }

// ArchiveURL returns a finished playlist with every segment available.
func (o *Origin) ArchiveURL() string { return o.server.URL + "/vod/index.m3u8" }

// FileURL returns a progressive media file URL for native playback.
func (o *Origin) FileURL() string { return o.server.URL + "/media/movie.mp4" }

// Advance appends n fresh, fetchable segments to the live window.
func (o *Origin) Advance(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < n; i++ {
		o.appendSegmentLocked(TSSegment(4))
	}
}

// AdvanceMissing appends n segments that are advertised in the playlist
// but answered with 404, simulating a frozen upstream encoder.
func (o *Origin) AdvanceMissing(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < n; i++ {
		uri := o.appendSegmentLocked(nil)
		o.missingSegments[uri] = true
	}
}

// AdvanceCorrupt appends n segments whose bytes fail the integrity probe.
func (o *Origin) AdvanceCorrupt(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i < n; i++ {
		uri := o.appendSegmentLocked(CorruptSegment())
		o.corruptSegments[uri] = true
	}
}

// End marks the live playlist finished.
func (o *Origin) End() {
	o.mu.Lock()
	o.ended = true
	o.mu.Unlock()
}

// SetManifestGone makes playlist requests answer 404.
func (o *Origin) SetManifestGone(gone bool) {
	o.mu.Lock()
	o.manifestGone = gone
	o.mu.Unlock()
}

// FailPlaylistRequests makes the next n playlist requests answer 500.
func (o *Origin) FailPlaylistRequests(n int) {
	o.mu.Lock()
	o.playlistFails = n
	o.mu.Unlock()
}

// PlaylistHits returns how many playlist requests have been served.
func (o *Origin) PlaylistHits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.playlistHits
}

// SegmentHits returns how many segment requests have been served.
func (o *Origin) SegmentHits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.segmentHits
}

func (o *Origin) appendSegmentLocked(data []byte) string {
	uri := fmt.Sprintf("seg%05d.ts", o.nextSegment)
	o.nextSegment++
	if data != nil {
		o.segments[uri] = data
	}
	o.window = append(o.window, uri)
	for len(o.window) > o.windowSize {
		o.window = o.window[1:]
		o.mediaSequence++
	}
	return uri
}

func (o *Origin) handle(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case r.URL.Path == "/live/index.m3u8":
		o.playlistHits++
		if o.manifestGone {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if o.playlistFails > 0 {
			o.playlistFails--
			http.Error(w, "origin error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, MediaPlaylist(o.mediaSequence, o.targetDuration, o.window, o.ended))

	case r.URL.Path == "/live/master.m3u8":
		o.playlistHits++
		if o.manifestGone {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, MultivariantPlaylist(map[int]string{
			5000000: "/live/index.m3u8",
			1000000: "/live/index.m3u8",
		}))

	case r.URL.Path == "/vod/index.m3u8":
		o.playlistHits++
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, MediaPlaylist(0, o.targetDuration, o.window, true))

	case strings.HasPrefix(r.URL.Path, "/live/seg"), strings.HasPrefix(r.URL.Path, "/vod/seg"):
		o.segmentHits++
		uri := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if o.missingSegments[uri] {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		data, ok := o.segments[uri]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write(data)

	case r.URL.Path == "/media/movie.mp4":
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(bytes32k())

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func bytes32k() []byte {
	data := make([]byte, 32<<10)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
