// Package config provides configuration management for streamwatch using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultResolverTimeout       = 10 * time.Second
	defaultResolverRetryAttempts = 3
	defaultResolverRetryDelay    = 2 * time.Second

	defaultStartThrottle       = 1000 * time.Millisecond
	defaultRetryDelay          = 6000 * time.Millisecond
	defaultMaxRetries          = 5
	defaultEscalationThreshold = 2
	defaultMaxSegmentFailures  = 10
	defaultStuckTeardownGrace  = 500 * time.Millisecond
	defaultRestartDelay        = 250 * time.Millisecond
	defaultNativeSwitchDelay   = 500 * time.Millisecond
	defaultSessionIdleTimeout  = 30 * time.Minute

	defaultHistoryLimit     = 100
	defaultEventBufferSize  = 64
	defaultRetentionMaxAge  = "30d"
	defaultRetentionCron    = "0 0 3 * * *" // Daily at 3 AM (6-field cron)
	defaultMaxRetentionDays = 365
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ResolverConfig holds stream resolution configuration. The resolver maps
// a device under test to the URL and mode of its stream, either from a
// static table in this file or by asking the console's device API.
type ResolverConfig struct {
	Mode          string        `mapstructure:"mode"` // static, console
	ConsoleURL    string        `mapstructure:"console_url"`
	Token         string        `mapstructure:"token" masq:"secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// Devices is the static device -> stream table used in "static" mode.
	Devices map[string]StaticStreamConfig `mapstructure:"devices"`
}

// StaticStreamConfig describes one statically configured device stream.
type StaticStreamConfig struct {
	URL  string `mapstructure:"url"`
	Mode string `mapstructure:"mode"` // live, archive
}

// PlaybackConfig holds the playback controller tuning. The defaults encode
// the recovery contract: a fixed retry delay with a bounded attempt count,
// a separate consecutive-segment-failure budget, and short grace delays
// around teardown and restart.
type PlaybackConfig struct {
	StartThrottle             time.Duration       `mapstructure:"start_throttle"`
	RetryDelay                time.Duration       `mapstructure:"retry_delay"`
	MaxRetries                int                 `mapstructure:"max_retries"`
	NativeEscalationThreshold int                 `mapstructure:"native_escalation_threshold"`
	MaxSegmentFailures        int                 `mapstructure:"max_segment_failures"`
	StuckTeardownGrace        time.Duration       `mapstructure:"stuck_teardown_grace"`
	RestartDelay              time.Duration       `mapstructure:"restart_delay"`
	NativeSwitchDelay         time.Duration       `mapstructure:"native_switch_delay"`
	SessionIdleTimeout        time.Duration       `mapstructure:"session_idle_timeout"`
	Capabilities              CapabilitiesConfig  `mapstructure:"capabilities"`
	Live                      EngineProfileConfig `mapstructure:"live"`
	Archive                   EngineProfileConfig `mapstructure:"archive"`
	Sink                      SinkConfig          `mapstructure:"sink"`
}

// CapabilitiesConfig declares what the playback environment supports.
type CapabilitiesConfig struct {
	// SegmentedEngine reports whether the in-process segmented engine is
	// available for HLS targets.
	SegmentedEngine bool `mapstructure:"segmented_engine"`
	// NativeSegmented reports whether the native pipeline can play
	// segmented streams directly (the escalation fallback).
	NativeSegmented bool `mapstructure:"native_segmented"`
}

// EngineProfileConfig tunes the segmented engine for one stream mode.
// Buffer sizes support human-readable values like "30MB".
type EngineProfileConfig struct {
	MaxBufferLength  time.Duration `mapstructure:"max_buffer_length"`
	MaxBufferBytes   ByteSize      `mapstructure:"max_buffer_bytes"`
	BackBufferLength time.Duration `mapstructure:"back_buffer_length"`
	LiveSyncDuration time.Duration `mapstructure:"live_sync_duration"`
	LiveMaxLatency   time.Duration `mapstructure:"live_max_latency"`
}

// SinkConfig holds display sink configuration.
type SinkConfig struct {
	// AutoplayPolicy controls whether the first Play of a loaded source
	// succeeds ("allow") or is rejected until a user gesture
	// ("require-gesture").
	AutoplayPolicy string `mapstructure:"autoplay_policy"`
}

// EventsConfig holds playback-event history configuration.
type EventsConfig struct {
	// RetentionMaxAge is how long persisted events are kept. Supports
	// human-readable values like "30d" or "2w".
	RetentionMaxAge Duration `mapstructure:"retention_max_age"`
	// RetentionSweepSchedule is a 6-field cron expression for the
	// retention sweep.
	RetentionSweepSchedule string `mapstructure:"retention_sweep_schedule"`
	HistoryLimit           int    `mapstructure:"history_limit"`
	// BufferSize is the per-subscriber event channel depth for SSE.
	BufferSize int `mapstructure:"buffer_size"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMWATCH_ and use underscores
// for nesting. Example: STREAMWATCH_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamwatch")
		v.AddConfigPath("$HOME/.streamwatch")
	}

	// Environment variable settings
	v.SetEnvPrefix("STREAMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	// The TextUnmarshaller hook lets Duration and ByteSize fields accept
	// human-readable strings; viper's default hooks do not run it.
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	// Zero write timeout: the SSE endpoint holds responses open
	// indefinitely.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streamwatch.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Resolver defaults
	v.SetDefault("resolver.mode", "static")
	v.SetDefault("resolver.console_url", "")
	v.SetDefault("resolver.token", "")
	v.SetDefault("resolver.timeout", defaultResolverTimeout)
	v.SetDefault("resolver.retry_attempts", defaultResolverRetryAttempts)
	v.SetDefault("resolver.retry_delay", defaultResolverRetryDelay)

	// Playback defaults
	v.SetDefault("playback.start_throttle", defaultStartThrottle)
	v.SetDefault("playback.retry_delay", defaultRetryDelay)
	v.SetDefault("playback.max_retries", defaultMaxRetries)
	v.SetDefault("playback.native_escalation_threshold", defaultEscalationThreshold)
	v.SetDefault("playback.max_segment_failures", defaultMaxSegmentFailures)
	v.SetDefault("playback.stuck_teardown_grace", defaultStuckTeardownGrace)
	v.SetDefault("playback.restart_delay", defaultRestartDelay)
	v.SetDefault("playback.native_switch_delay", defaultNativeSwitchDelay)
	v.SetDefault("playback.session_idle_timeout", defaultSessionIdleTimeout)
	v.SetDefault("playback.capabilities.segmented_engine", true)
	v.SetDefault("playback.capabilities.native_segmented", false)
	v.SetDefault("playback.live.max_buffer_length", 10*time.Second)
	v.SetDefault("playback.live.max_buffer_bytes", "30MB")
	v.SetDefault("playback.live.back_buffer_length", 10*time.Second)
	v.SetDefault("playback.live.live_sync_duration", 10*time.Second)
	v.SetDefault("playback.live.live_max_latency", 30*time.Second)
	v.SetDefault("playback.archive.max_buffer_length", 30*time.Second)
	v.SetDefault("playback.archive.max_buffer_bytes", "60MB")
	v.SetDefault("playback.archive.back_buffer_length", 30*time.Second)
	v.SetDefault("playback.sink.autoplay_policy", "allow")

	// Events defaults
	v.SetDefault("events.retention_max_age", defaultRetentionMaxAge)
	v.SetDefault("events.retention_sweep_schedule", defaultRetentionCron)
	v.SetDefault("events.history_limit", defaultHistoryLimit)
	v.SetDefault("events.buffer_size", defaultEventBufferSize)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	validDBLevels := map[string]bool{"silent": true, "error": true, "warn": true, "info": true}
	if !validDBLevels[c.Database.LogLevel] {
		return fmt.Errorf("database.log_level must be one of: silent, error, warn, info")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Resolver validation
	switch c.Resolver.Mode {
	case "static":
	case "console":
		if c.Resolver.ConsoleURL == "" {
			return fmt.Errorf("resolver.console_url is required when resolver.mode is console")
		}
	default:
		return fmt.Errorf("resolver.mode must be one of: static, console")
	}

	// Playback validation
	if c.Playback.RetryDelay <= 0 {
		return fmt.Errorf("playback.retry_delay must be positive")
	}
	if c.Playback.MaxRetries < 1 {
		return fmt.Errorf("playback.max_retries must be at least 1")
	}
	if c.Playback.NativeEscalationThreshold < 1 || c.Playback.NativeEscalationThreshold > c.Playback.MaxRetries {
		return fmt.Errorf("playback.native_escalation_threshold must be between 1 and playback.max_retries")
	}
	if c.Playback.MaxSegmentFailures < 1 {
		return fmt.Errorf("playback.max_segment_failures must be at least 1")
	}
	if c.Playback.StartThrottle < 0 {
		return fmt.Errorf("playback.start_throttle must not be negative")
	}
	validPolicies := map[string]bool{"allow": true, "require-gesture": true}
	if !validPolicies[c.Playback.Sink.AutoplayPolicy] {
		return fmt.Errorf("playback.sink.autoplay_policy must be one of: allow, require-gesture")
	}

	// Events validation
	if c.Events.HistoryLimit < 1 {
		return fmt.Errorf("events.history_limit must be at least 1")
	}
	if c.Events.RetentionMaxAge <= 0 {
		return fmt.Errorf("events.retention_max_age must be positive")
	}
	if maxAge := time.Duration(defaultMaxRetentionDays) * 24 * time.Hour; c.Events.RetentionMaxAge.Duration() > maxAge {
		return fmt.Errorf("events.retention_max_age must not exceed %d days", defaultMaxRetentionDays)
	}
	if c.Events.RetentionSweepSchedule == "" {
		return fmt.Errorf("events.retention_sweep_schedule is required")
	}
	if c.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
