// Package resolver maps a device under test to its stream target: the URL
// to play, the stream mode, and an optional quality hint. Two
// implementations exist: a static table from configuration and a client
// for the console's device API.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/angelstreet/streamwatch/internal/config"
	"github.com/angelstreet/streamwatch/internal/playback"
	"github.com/angelstreet/streamwatch/internal/urlutil"
	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

// ErrDeviceNotFound is returned when no stream is known for a device.
var ErrDeviceNotFound = errors.New("device not found")

// Resolver resolves a device ID to its stream target.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (playback.StreamTarget, error)
}

// New builds the resolver selected by configuration.
func New(cfg config.ResolverConfig, clients *httpclient.ClientFactory, logger *slog.Logger) (Resolver, error) {
	switch cfg.Mode {
	case "static", "":
		return NewStatic(cfg.Devices), nil
	case "console":
		return NewConsole(cfg, clients, logger)
	default:
		return nil, fmt.Errorf("unknown resolver mode %q", cfg.Mode)
	}
}

// StaticResolver serves stream targets from the configuration file.
type StaticResolver struct {
	devices map[string]playback.StreamTarget
}

// NewStatic builds a resolver over a static device table.
func NewStatic(devices map[string]config.StaticStreamConfig) *StaticResolver {
	targets := make(map[string]playback.StreamTarget, len(devices))
	for id, d := range devices {
		targets[id] = playback.StreamTarget{
			URL:  d.URL,
			Mode: playback.ParseStreamMode(d.Mode),
		}
	}
	return &StaticResolver{devices: targets}
}

// Resolve returns the statically configured target for the device.
func (r *StaticResolver) Resolve(_ context.Context, deviceID string) (playback.StreamTarget, error) {
	target, ok := r.devices[deviceID]
	if !ok {
		return playback.StreamTarget{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return target, nil
}

// ConsoleResolver asks the console's device API for a device's stream.
type ConsoleResolver struct {
	client  *httpclient.Client
	baseURL string
	token   string
	log     *slog.Logger
}

// consoleStreamResponse is the console's device stream payload.
type consoleStreamResponse struct {
	URL     string `json:"url"`
	Mode    string `json:"mode"`
	Quality string `json:"quality,omitempty"`
}

// NewConsole builds a console-backed resolver.
func NewConsole(cfg config.ResolverConfig, clients *httpclient.ClientFactory, logger *slog.Logger) (*ConsoleResolver, error) {
	if cfg.ConsoleURL == "" {
		return nil, fmt.Errorf("console resolver requires console_url")
	}
	return &ConsoleResolver{
		client:  clients.ResolverClient(cfg.Timeout),
		baseURL: urlutil.NormalizeBaseURL(cfg.ConsoleURL),
		token:   cfg.Token,
		log:     logger.With("component", "resolver"),
	}, nil
}

// Resolve fetches the device's stream from the console. A 404 maps to
// ErrDeviceNotFound.
func (r *ConsoleResolver) Resolve(ctx context.Context, deviceID string) (playback.StreamTarget, error) {
	url := urlutil.JoinPath(r.baseURL, "/api/v1/devices/"+deviceID+"/stream")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return playback.StreamTarget{}, fmt.Errorf("creating request: %w", err)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return playback.StreamTarget{}, fmt.Errorf("console request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return playback.StreamTarget{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	default:
		return playback.StreamTarget{}, fmt.Errorf("console returned HTTP %d", resp.StatusCode)
	}

	var payload consoleStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return playback.StreamTarget{}, fmt.Errorf("decoding console response: %w", err)
	}
	if payload.URL == "" {
		return playback.StreamTarget{}, fmt.Errorf("console returned no stream URL for %s", deviceID)
	}

	r.log.Debug("device resolved",
		"device_id", deviceID,
		"url", urlutil.Sanitize(payload.URL),
		"mode", payload.Mode)

	return playback.StreamTarget{
		URL:     payload.URL,
		Mode:    playback.ParseStreamMode(payload.Mode),
		Quality: payload.Quality,
	}, nil
}
