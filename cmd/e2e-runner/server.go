//nolint:errcheck,wrapcheck,gosec // E2E test runner uses relaxed linting
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/angelstreet/streamwatch/internal/config"
	"github.com/angelstreet/streamwatch/internal/database"
	"github.com/angelstreet/streamwatch/internal/database/migrations"
	internalhttp "github.com/angelstreet/streamwatch/internal/http"
	"github.com/angelstreet/streamwatch/internal/http/handlers"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/repository"
	"github.com/angelstreet/streamwatch/internal/resolver"
	"github.com/angelstreet/streamwatch/internal/service/monitor"
	"github.com/angelstreet/streamwatch/internal/testutil"
	"github.com/angelstreet/streamwatch/internal/version"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

// Device names used by the scenarios. Each device resolves to its own
// synthetic origin so failure scripts do not bleed between scenarios.
var scenarioDevices = []string{
	"bench-a", "bench-b", "bench-c", "bench-d", "bench-e", "bench-f",
	"bench-extra",
}

// Harness boots the full streamwatch stack against synthetic HLS origins.
// The stack is assembled in-process the way the serve command does it, but
// every scenario drives it through the public HTTP surface only.
type Harness struct {
	origins  map[string]*testutil.Origin
	db       *database.DB
	hub      *monitor.Hub
	recorder *monitor.Recorder
	manager  *playback.Manager
	server   *httptest.Server
}

// fastPlaybackConfig returns controller tuning scaled down so scenarios
// complete in seconds. The ratios between the delays match the production
// defaults.
func fastPlaybackConfig() playback.Config {
	return playback.Config{
		StartThrottle:             50 * time.Millisecond,
		RetryDelay:                400 * time.Millisecond,
		MaxRetries:                5,
		NativeEscalationThreshold: 2,
		MaxSegmentFailures:        10,
		StuckTeardownGrace:        100 * time.Millisecond,
		RestartDelay:              50 * time.Millisecond,
		NativeSwitchDelay:         100 * time.Millisecond,
	}
}

// NewHarness assembles the stack and starts the HTTP server.
func NewHarness(logger *slog.Logger) (*Harness, error) {
	h := &Harness{origins: make(map[string]*testutil.Origin)}

	devices := make(map[string]config.StaticStreamConfig, len(scenarioDevices))
	for _, device := range scenarioDevices {
		origin := testutil.NewOrigin()
		h.origins[device] = origin
		devices[device] = config.StaticStreamConfig{URL: origin.URL(), Mode: "live"}
	}

	db, err := database.New(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file::memory:?cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}, logger, database.DefaultOptions())
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	h.db = db

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		h.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	eventRepo := repository.NewPlaybackEventRepository(db.DB)
	h.hub = monitor.NewHub(64, logger)
	h.recorder = monitor.NewRecorder(eventRepo, logger)

	clients := httpclient.NewClientFactory(httpclient.NewCircuitBreakerManager()).WithLogger(logger)

	factory := playback.NewEngineFactory(playback.EngineOptions{
		Playlists: clients.PlaylistClient(2 * time.Second),
		Segments:  clients.SegmentClient(2 * time.Second),
		Profiles: playback.Profiles{
			Live:    playback.EngineProfile{MaxBufferLength: 10 * time.Second, MaxBufferBytes: 8 << 20},
			Archive: playback.EngineProfile{MaxBufferLength: 30 * time.Second, MaxBufferBytes: 16 << 20},
		},
		Tuning: playback.EngineTuning{
			MinPollInterval:     100 * time.Millisecond,
			MaxPlaylistFailures: 3,
		},
		Logger: logger,
	})

	sinks := func() (playback.DisplaySink, error) {
		return playback.NewHeadlessSink(playback.HeadlessSinkOptions{
			Media:          clients.MediaClient(),
			AutoplayPolicy: playback.AutoplayAllow,
			Logger:         logger,
		}), nil
	}

	h.manager = playback.NewManager(playback.ManagerOptions{
		Config:       fastPlaybackConfig(),
		Capabilities: playback.Capabilities{SegmentedEngine: true, NativeSegmented: true},
		Factory:      factory,
		Sinks:        sinks,
		Logger:       logger,
		Notify:       monitor.FanOut(h.hub.Publish, h.recorder.Record),
	})

	res, err := resolver.New(config.ResolverConfig{Mode: "static", Devices: devices}, clients, logger)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("initializing resolver: %w", err)
	}

	srv := internalhttp.NewServer(internalhttp.DefaultServerConfig(), logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithSessionManager(h.manager).
		WithEventHub(h.hub).
		Register(srv.API())
	handlers.NewSessionsHandler(h.manager, res, logger).Register(srv.API())
	handlers.NewHistoryHandler(eventRepo, 100).Register(srv.API())
	handlers.NewEventsHandler(h.hub, logger).RegisterSSE(srv.Router())
	handlers.NewVersionHandler().Register(srv.API())
	handlers.NewSystemHandler().Register(srv.API())

	h.server = httptest.NewServer(srv.Router())
	return h, nil
}

// BaseURL returns the harness server's base URL.
func (h *Harness) BaseURL() string { return h.server.URL }

// Origin returns the synthetic origin backing the given device.
func (h *Harness) Origin(device string) *testutil.Origin { return h.origins[device] }

// Close tears the harness down in reverse construction order.
func (h *Harness) Close() {
	if h.server != nil {
		h.server.Close()
	}
	if h.manager != nil {
		h.manager.CloseAll()
		h.manager.Stop()
	}
	if h.recorder != nil {
		h.recorder.Stop()
	}
	if h.hub != nil {
		h.hub.Close()
	}
	if h.db != nil {
		h.db.Close()
	}
	for _, origin := range h.origins {
		origin.Close()
	}
}
