package httpclient

import (
	"log/slog"
	"net/http"
	"time"
)

// Service names used for shared circuit breakers. Each upstream role gets
// its own breaker so a flapping segment host cannot poison resolver calls.
const (
	ServiceResolver = "resolver"
	ServicePlaylist = "playlist"
	ServiceSegment  = "segment"
	ServiceMedia    = "media"
)

// ClientFactory creates HTTP clients wired to shared circuit breakers,
// decoupling callers from breaker management.
type ClientFactory struct {
	manager       *CircuitBreakerManager
	defaultConfig Config
	logger        *slog.Logger
}

// NewClientFactory creates a factory. A nil manager uses DefaultManager.
func NewClientFactory(manager *CircuitBreakerManager) *ClientFactory {
	if manager == nil {
		manager = DefaultManager
	}
	return &ClientFactory{
		manager:       manager,
		defaultConfig: DefaultConfig(),
		logger:        slog.Default(),
	}
}

// WithLogger sets the logger used by created clients.
func (f *ClientFactory) WithLogger(logger *slog.Logger) *ClientFactory {
	f.logger = logger
	f.defaultConfig.Logger = logger
	return f
}

// WithDefaultConfig replaces the base config used when creating clients.
func (f *ClientFactory) WithDefaultConfig(cfg Config) *ClientFactory {
	f.defaultConfig = cfg
	return f
}

// Manager returns the breaker manager backing this factory.
func (f *ClientFactory) Manager() *CircuitBreakerManager {
	return f.manager
}

// ClientForService creates a client for the named service using the
// factory defaults, sharing the service's circuit breaker.
func (f *ClientFactory) ClientForService(service string) *Client {
	return f.ClientWithConfig(service, f.defaultConfig)
}

// ClientWithConfig creates a client for the named service with an explicit
// config, still sharing the service's circuit breaker.
func (f *ClientFactory) ClientWithConfig(service string, cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = f.logger
	}
	return NewWithBreaker(cfg, f.manager.GetOrCreate(service))
}

// PlaylistClient returns a client tuned for playlist polling: short
// timeout, no client-level retries (the playback engine owns error
// accounting), and 404 acceptable so missing manifests are classified by
// the caller rather than tripping the breaker.
func (f *ClientFactory) PlaylistClient(timeout time.Duration) *Client {
	cfg := f.defaultConfig
	cfg.Timeout = timeout
	cfg.RetryAttempts = 0
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
	return f.ClientWithConfig(ServicePlaylist, cfg)
}

// SegmentClient returns a client tuned for media segment fetches: no
// retries, 404 acceptable (segment-level 404s are counted by the playback
// layer, not the breaker).
func (f *ClientFactory) SegmentClient(timeout time.Duration) *Client {
	cfg := f.defaultConfig
	cfg.Timeout = timeout
	cfg.RetryAttempts = 0
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
	return f.ClientWithConfig(ServiceSegment, cfg)
}

// MediaClient returns a client for long-lived progressive fetches: no
// client-level deadline and no decompression (media bytes pass through).
func (f *ClientFactory) MediaClient() *Client {
	cfg := f.defaultConfig
	cfg.Timeout = 0
	cfg.RetryAttempts = 0
	cfg.EnableDecompression = false
	cfg.BaseClient = &http.Client{Timeout: 0}
	return f.ClientWithConfig(ServiceMedia, cfg)
}

// ResolverClient returns a client for console REST calls: retries enabled,
// 404 acceptable so unknown devices map to a typed error.
func (f *ClientFactory) ResolverClient(timeout time.Duration) *Client {
	cfg := f.defaultConfig
	cfg.Timeout = timeout
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,404")
	return f.ClientWithConfig(ServiceResolver, cfg)
}
