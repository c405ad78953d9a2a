package playback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/angelstreet/streamwatch/pkg/httpclient"
)

// Transport is a playback engine bound to one source. Implementations
// deliver their callbacks from their own goroutines; the controller
// serializes them.
type Transport interface {
	// Kind reports which engine this is.
	Kind() TransportKind

	// Load binds a source to the transport and begins fetching. It is
	// called once after construction and again after SwapSource.
	Load(ctx context.Context, target StreamTarget) error

	// SwapSource replaces the source without destroying the engine.
	SwapSource(ctx context.Context, target StreamTarget) error

	// StopLoad halts fetching but keeps buffered media and the source
	// binding intact.
	StopLoad()

	// StartLoad resumes fetching from the current position. It is also the
	// soft-recovery mechanism after a fragment error.
	StartLoad() error

	// Destroy releases the engine. It must be signal-only: safe to call
	// from a callback's dispatch path without deadlocking.
	Destroy()
}

// TransportCallbacks receive engine events. All three may be invoked
// concurrently with controller intents.
type TransportCallbacks struct {
	// OnReady fires when enough media is buffered to begin playback.
	OnReady func()

	// OnFragment fires for every media fragment delivered to the sink.
	OnFragment func(uri string)

	// OnError reports a classified transport error.
	OnError func(err TransportError)
}

// TransportFactory builds a transport of the given kind attached to the
// session's sink. The factory owns engine configuration (HTTP clients,
// poll tuning); the controller owns lifecycle.
type TransportFactory interface {
	New(kind TransportKind, sink DisplaySink, cb TransportCallbacks) (Transport, error)
}

// EngineOptions configures the standard transport factory.
type EngineOptions struct {
	// Playlists fetches playlist documents. Should accept 404 as a
	// non-error status so the engine can classify missing manifests.
	Playlists *httpclient.Client

	// Segments fetches media segments, with the same 404 handling.
	Segments *httpclient.Client

	Profiles Profiles
	Tuning   EngineTuning
	Logger   *slog.Logger
}

type engineFactory struct {
	opts EngineOptions
}

// NewEngineFactory returns the standard factory: the in-process segmented
// engine plus the sink-direct native path.
func NewEngineFactory(opts EngineOptions) TransportFactory {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tuning.MinPollInterval == 0 && opts.Tuning.MaxPlaylistFailures == 0 {
		opts.Tuning = DefaultEngineTuning()
	}
	return &engineFactory{opts: opts}
}

func (f *engineFactory) New(kind TransportKind, sink DisplaySink, cb TransportCallbacks) (Transport, error) {
	switch kind {
	case TransportSegmented:
		return newHLSTransport(f.opts.Playlists, f.opts.Segments, f.opts.Profiles, f.opts.Tuning, sink, cb, f.opts.Logger), nil
	case TransportNative:
		return newNativeTransport(sink, cb), nil
	default:
		return nil, fmt.Errorf("no transport for kind %q", kind.String())
	}
}
