package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelstreet/streamwatch/internal/config"
	"github.com/angelstreet/streamwatch/internal/database"
	"github.com/angelstreet/streamwatch/internal/database/migrations"
	internalhttp "github.com/angelstreet/streamwatch/internal/http"
	"github.com/angelstreet/streamwatch/internal/http/handlers"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/repository"
	"github.com/angelstreet/streamwatch/internal/resolver"
	"github.com/angelstreet/streamwatch/internal/scheduler"
	"github.com/angelstreet/streamwatch/internal/service/monitor"
	"github.com/angelstreet/streamwatch/internal/version"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

const (
	playlistFetchTimeout = 10 * time.Second
	segmentFetchTimeout  = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the streamwatch server",
	Long: `Start the streamwatch HTTP server and API.

The server provides:
- REST API for managing playback sessions
- Server-sent events stream of session state changes at /api/v1/events
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags. Not bound to viper: they override the loaded config
	// only when explicitly set, so env vars and the config file keep their
	// priority over flag defaults.
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "", "Database DSN (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	// Database and migrations
	db, err := database.New(cfg.Database, logger, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing database", slog.String("error", err.Error()))
		}
	}()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	eventRepo := repository.NewPlaybackEventRepository(db.DB)

	// Event fan-out: SSE subscribers plus async persistence.
	hub := monitor.NewHub(cfg.Events.BufferSize, logger)
	defer hub.Close()

	recorder := monitor.NewRecorder(eventRepo, logger)
	defer recorder.Stop()

	// HTTP clients share the default circuit breaker manager so the health
	// endpoint can report breaker state.
	clients := httpclient.NewClientFactory(httpclient.DefaultManager).WithLogger(logger)

	factory := playback.NewEngineFactory(playback.EngineOptions{
		Playlists: clients.PlaylistClient(playlistFetchTimeout),
		Segments:  clients.SegmentClient(segmentFetchTimeout),
		Profiles: playback.Profiles{
			Live:    engineProfile(cfg.Playback.Live),
			Archive: engineProfile(cfg.Playback.Archive),
		},
		Tuning: playback.DefaultEngineTuning(),
		Logger: logger,
	})

	sinks := func() (playback.DisplaySink, error) {
		return playback.NewHeadlessSink(playback.HeadlessSinkOptions{
			Media:          clients.MediaClient(),
			AutoplayPolicy: cfg.Playback.Sink.AutoplayPolicy,
			Logger:         logger,
		}), nil
	}

	manager := playback.NewManager(playback.ManagerOptions{
		Config: playbackConfig(cfg.Playback),
		Capabilities: playback.Capabilities{
			SegmentedEngine: cfg.Playback.Capabilities.SegmentedEngine,
			NativeSegmented: cfg.Playback.Capabilities.NativeSegmented,
		},
		Factory:     factory,
		Sinks:       sinks,
		Logger:      logger,
		Notify:      monitor.FanOut(hub.Publish, recorder.Record),
		IdleTimeout: cfg.Playback.SessionIdleTimeout,
	})
	defer manager.Stop()
	defer manager.CloseAll()

	res, err := resolver.New(cfg.Resolver, clients, logger)
	if err != nil {
		return fmt.Errorf("initializing resolver: %w", err)
	}

	// Retention sweep for persisted playback events.
	sweeper, err := scheduler.NewSweeper(eventRepo, scheduler.RetentionConfig{
		MaxAge:   cfg.Events.RetentionMaxAge.Duration(),
		Schedule: cfg.Events.RetentionSweepSchedule,
	})
	if err != nil {
		return fmt.Errorf("initializing retention sweeper: %w", err)
	}
	sweeper.WithLogger(logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Initialize HTTP server
	serverConfig := internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	docsHandler := handlers.NewDocsHandler("streamwatch API", "/openapi.yaml")
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	healthHandler := handlers.NewHealthHandler(version.Version).
		WithCircuitBreakerManager(httpclient.DefaultManager).
		WithDB(db.DB).
		WithSessionManager(manager).
		WithEventHub(hub)
	healthHandler.Register(server.API())

	sessionsHandler := handlers.NewSessionsHandler(manager, res, logger)
	sessionsHandler.Register(server.API())

	historyHandler := handlers.NewHistoryHandler(eventRepo, cfg.Events.HistoryLimit)
	historyHandler.Register(server.API())

	eventsHandler := handlers.NewEventsHandler(hub, logger)
	eventsHandler.RegisterSSE(server.Router())

	systemHandler := handlers.NewSystemHandler()
	systemHandler.Register(server.API())

	versionHandler := handlers.NewVersionHandler()
	versionHandler.Register(server.API())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting streamwatch server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
		slog.String("resolver_mode", cfg.Resolver.Mode),
	)

	return server.ListenAndServe(ctx)
}

// applyServeFlags overrides loaded config values with CLI flags, but only
// when the flag was explicitly set.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
}

func playbackConfig(cfg config.PlaybackConfig) playback.Config {
	return playback.Config{
		StartThrottle:             cfg.StartThrottle,
		RetryDelay:                cfg.RetryDelay,
		MaxRetries:                cfg.MaxRetries,
		NativeEscalationThreshold: cfg.NativeEscalationThreshold,
		MaxSegmentFailures:        cfg.MaxSegmentFailures,
		StuckTeardownGrace:        cfg.StuckTeardownGrace,
		RestartDelay:              cfg.RestartDelay,
		NativeSwitchDelay:         cfg.NativeSwitchDelay,
	}
}

func engineProfile(cfg config.EngineProfileConfig) playback.EngineProfile {
	return playback.EngineProfile{
		MaxBufferLength:  cfg.MaxBufferLength,
		MaxBufferBytes:   cfg.MaxBufferBytes.Bytes(),
		BackBufferLength: cfg.BackBufferLength,
		LiveSyncDuration: cfg.LiveSyncDuration,
		LiveMaxLatency:   cfg.LiveMaxLatency,
	}
}
