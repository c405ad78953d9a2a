package playback

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/streamwatch/internal/testutil"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type transportEvents struct {
	mu        sync.Mutex
	ready     int
	fragments []string
	errors    []TransportError
}

func (e *transportEvents) callbacks() TransportCallbacks {
	return TransportCallbacks{
		OnReady: func() { e.mu.Lock(); e.ready++; e.mu.Unlock() },
		OnFragment: func(uri string) {
			e.mu.Lock()
			e.fragments = append(e.fragments, uri)
			e.mu.Unlock()
		},
		OnError: func(terr TransportError) {
			e.mu.Lock()
			e.errors = append(e.errors, terr)
			e.mu.Unlock()
		},
	}
}

func (e *transportEvents) readyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *transportEvents) fragmentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fragments)
}

func (e *transportEvents) errorsByCategory(cat ErrorCategory) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, terr := range e.errors {
		if terr.Category == cat {
			n++
		}
	}
	return n
}

func (e *transportEvents) firstError() (TransportError, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errors) == 0 {
		return TransportError{}, false
	}
	return e.errors[0], true
}

func newTestHLSTransport(t *testing.T) (*hlsTransport, *transportEvents, *HeadlessSink) {
	t.Helper()
	factory := httpclient.NewClientFactory(httpclient.NewCircuitBreakerManager())
	sink := NewHeadlessSink(HeadlessSinkOptions{AutoplayPolicy: AutoplayAllow})
	events := &transportEvents{}
	tuning := EngineTuning{MinPollInterval: 20 * time.Millisecond, MaxPlaylistFailures: 3}
	tr := newHLSTransport(
		factory.PlaylistClient(2*time.Second),
		factory.SegmentClient(2*time.Second),
		DefaultProfiles(),
		tuning,
		sink,
		events.callbacks(),
		testLogger(),
	)
	t.Cleanup(func() {
		tr.Destroy()
		_ = sink.Close()
	})
	return tr, events, sink
}

func TestHLSTransportLivePlayback(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, sink := newTestHLSTransport(t)

	target := StreamTarget{URL: origin.URL(), Mode: ModeLive}
	require.NoError(t, tr.Load(context.Background(), target))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1 && events.fragmentCount() >= 1
	}, 3*time.Second, 10*time.Millisecond)

	origin.Advance(2)
	require.Eventually(t, func() bool {
		return events.fragmentCount() >= 3
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, events.readyCount(), "ready fires once per load")
	assert.Positive(t, sink.BytesDrained())
	assert.Zero(t, events.errorsByCategory(CategoryFragmentLoad))
}

func TestHLSTransportDedupesSegmentsAcrossPolls(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return origin.PlaylistHits() >= 3
	}, 3*time.Second, 10*time.Millisecond)

	events.mu.Lock()
	seen := make(map[string]int)
	for _, uri := range events.fragments {
		seen[uri]++
	}
	events.mu.Unlock()
	for uri, n := range seen {
		assert.Equal(t, 1, n, "segment %s fetched more than once", uri)
	}
}

func TestHLSTransportMissingSegmentsEmit404s(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	origin.AdvanceMissing(3)
	require.Eventually(t, func() bool {
		return events.errorsByCategory(CategorySegmentNotFound) >= 3
	}, 3*time.Second, 10*time.Millisecond)

	terr, ok := events.firstError()
	require.True(t, ok)
	assert.Equal(t, 404, terr.StatusCode)
	assert.False(t, terr.Fatal, "segment 404s are never fatal at the transport level")
}

func TestHLSTransportCorruptSegmentEmitsParseError(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	origin.AdvanceCorrupt(1)
	require.Eventually(t, func() bool {
		return events.errorsByCategory(CategoryFragmentParse) >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHLSTransportMissingManifestIsFatal(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()
	origin.SetManifestGone(true)

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return events.errorsByCategory(CategoryManifestNotFound) == 1
	}, 3*time.Second, 10*time.Millisecond)

	terr, _ := events.firstError()
	assert.True(t, terr.Fatal)
	assert.Zero(t, events.readyCount())
}

func TestHLSTransportManifestVanishingMidStreamIsFatal(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	origin.SetManifestGone(true)
	require.Eventually(t, func() bool {
		return events.errorsByCategory(CategoryManifestNotFound) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHLSTransportPersistentPlaylistFailureIsFatalNetwork(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1
	}, 3*time.Second, 10*time.Millisecond)

	origin.FailPlaylistRequests(1000)
	require.Eventually(t, func() bool {
		return events.errorsByCategory(CategoryNetwork) == 1
	}, 10*time.Second, 10*time.Millisecond)

	terr, _ := events.firstError()
	assert.True(t, terr.Fatal)
}

func TestHLSTransportMultivariantSelection(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, _ := newTestHLSTransport(t)
	target := StreamTarget{URL: origin.MultivariantURL(), Mode: ModeLive, Quality: "high"}
	require.NoError(t, tr.Load(context.Background(), target))

	require.Eventually(t, func() bool {
		return events.readyCount() == 1 && events.fragmentCount() >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHLSTransportArchiveFinishesOnEndlist(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, events, sink := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.ArchiveURL(), Mode: ModeArchive}))

	require.Eventually(t, func() bool {
		return events.fragmentCount() >= 3
	}, 3*time.Second, 10*time.Millisecond)

	// The loop exits cleanly: in-place recovery is then refused.
	require.Eventually(t, func() bool {
		return tr.StartLoad() != nil
	}, 3*time.Second, 10*time.Millisecond)

	assert.Zero(t, events.errorsByCategory(CategoryNetwork))
	assert.Positive(t, sink.BytesDrained())
}

func TestHLSTransportDestroyedRefusesOperations(t *testing.T) {
	origin := testutil.NewOrigin()
	defer origin.Close()

	tr, _, _ := newTestHLSTransport(t)
	require.NoError(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL(), Mode: ModeLive}))

	tr.Destroy()
	assert.ErrorIs(t, tr.StartLoad(), ErrTransportDestroyed)
	assert.ErrorIs(t, tr.Load(context.Background(), StreamTarget{URL: origin.URL()}), ErrTransportDestroyed)
	assert.ErrorIs(t, tr.SwapSource(context.Background(), StreamTarget{URL: origin.URL()}), ErrTransportDestroyed)
}
