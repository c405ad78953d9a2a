package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelstreet/streamwatch/internal/http/handlers"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/resolver"
)

type stubSink struct{ paused bool }

func (s *stubSink) SetCallbacks(playback.SinkCallbacks) {}
func (s *stubSink) SetSource(playback.Source) error     { return nil }
func (s *stubSink) Play() error                         { s.paused = false; return nil }
func (s *stubSink) Pause()                              { s.paused = true }
func (s *stubSink) Paused() bool                        { return s.paused }
func (s *stubSink) Clear()                              {}
func (s *stubSink) Close() error                        { return nil }

type stubTransport struct {
	kind playback.TransportKind
	cb   playback.TransportCallbacks
}

func (t *stubTransport) Kind() playback.TransportKind { return t.kind }

func (t *stubTransport) Load(context.Context, playback.StreamTarget) error {
	go t.cb.OnReady()
	return nil
}

func (t *stubTransport) SwapSource(context.Context, playback.StreamTarget) error {
	go t.cb.OnReady()
	return nil
}

func (t *stubTransport) StopLoad()        {}
func (t *stubTransport) StartLoad() error { return nil }
func (t *stubTransport) Destroy()         {}

type stubFactory struct{}

func (stubFactory) New(kind playback.TransportKind, _ playback.DisplaySink, cb playback.TransportCallbacks) (playback.Transport, error) {
	return &stubTransport{kind: kind, cb: cb}, nil
}

type stubResolver struct {
	target playback.StreamTarget
	err    error
	calls  int
}

func (r *stubResolver) Resolve(_ context.Context, deviceID string) (playback.StreamTarget, error) {
	r.calls++
	if r.err != nil {
		return playback.StreamTarget{}, r.err
	}
	return r.target, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *playback.Manager {
	t.Helper()
	mgr := playback.NewManager(playback.ManagerOptions{
		Config:       playback.DefaultConfig(),
		Capabilities: playback.Capabilities{SegmentedEngine: true, NativeSegmented: true},
		Factory:      stubFactory{},
		Sinks:        func() (playback.DisplaySink, error) { return &stubSink{}, nil },
		Logger:       quietLogger(),
	})
	t.Cleanup(mgr.Stop)
	return mgr
}

func setupSessionsRouter(mgr *playback.Manager, res resolver.Resolver) *chi.Mux {
	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewSessionsHandler(mgr, res, quietLogger()).Register(api)
	return router
}

func postJSON(t *testing.T, router *chi.Mux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) playback.Snapshot {
	t.Helper()
	var snap playback.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	return snap
}

func TestCreateSessionStartsPlayback(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{
		URL:  "http://origin.example/live/index.m3u8",
		Mode: playback.ModeLive,
	}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeSession(t, rec)
	assert.Equal(t, "dev-1", snap.DeviceID)
	assert.NotEmpty(t, snap.ID)
	assert.True(t, snap.Active)
	assert.Equal(t, 1, res.calls)

	assert.Eventually(t, func() bool {
		ctrl, err := mgr.Get(snap.ID)
		return err == nil && ctrl.Snapshot().Lifecycle == playback.LifecycleReady
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateSessionWithExplicitURLSkipsResolver(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{
		"device_id": "dev-1",
		"url":       "http://origin.example/vod/index.m3u8",
		"mode":      "archive",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeSession(t, rec)
	assert.Equal(t, playback.ModeArchive, snap.Mode)
	assert.Zero(t, res.calls)
}

func TestCreateSessionDeviceBusy(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSessionUnknownDevice(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{err: resolver.ErrDeviceNotFound}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionAutostartFalse(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{
		"device_id": "dev-1",
		"autostart": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	snap := decodeSession(t, rec)
	assert.Equal(t, playback.LifecycleIdle, snap.Lifecycle)
}

func TestSessionIntentsRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeSession(t, rec).ID

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeSession(t, rec).Active)

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeSession(t, rec).Active)

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/restart", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/gesture", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionNotFoundMapsTo404(t *testing.T) {
	mgr := newTestManager(t)
	router := setupSessionsRouter(mgr, &stubResolver{})

	req := httptest.NewRequest("GET", "/api/v1/sessions/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, router, "/api/v1/sessions/nope/pause", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseSessionRemovesIt(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeSession(t, rec).ID

	req := httptest.NewRequest("DELETE", "/api/v1/sessions/"+id, nil)
	del := httptest.NewRecorder()
	router.ServeHTTP(del, req)
	require.Equal(t, http.StatusOK, del.Code)

	_, err := mgr.Get(id)
	assert.ErrorIs(t, err, playback.ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-2"})

	req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.SessionListBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.Sessions, 2)
}

func TestQualitySwitchReResolves(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/master.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeSession(t, rec).ID

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/quality", map[string]any{"quality": "low"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snap := decodeSession(t, rec)
	assert.Equal(t, "low", snap.Quality)
	assert.Equal(t, 2, res.calls)
}

func TestVisibilityEndpoint(t *testing.T) {
	mgr := newTestManager(t)
	res := &stubResolver{target: playback.StreamTarget{URL: "http://origin.example/live/index.m3u8"}}
	router := setupSessionsRouter(mgr, res)

	rec := postJSON(t, router, "/api/v1/sessions", map[string]any{"device_id": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeSession(t, rec).ID

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/visibility", map[string]any{"visible": false})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, router, "/api/v1/sessions/"+id+"/visibility", map[string]any{"visible": true})
	assert.Equal(t, http.StatusOK, rec.Code)
}
