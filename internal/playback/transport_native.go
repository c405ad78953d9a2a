package playback

import (
	"context"
	"sync/atomic"

	"github.com/angelstreet/streamwatch/internal/urlutil"
)

// nativeTransport hands the source URL straight to the display sink and
// lets its pipeline fetch and decode. It is both the path for single-file
// targets and the escalation fallback for segmented ones.
type nativeTransport struct {
	sink DisplaySink
	cb   TransportCallbacks

	destroyed atomic.Bool
}

func newNativeTransport(sink DisplaySink, cb TransportCallbacks) *nativeTransport {
	t := &nativeTransport{sink: sink, cb: cb}
	sink.SetCallbacks(SinkCallbacks{
		OnCanPlay: t.onCanPlay,
		OnError:   t.onSinkError,
	})
	return t
}

func (t *nativeTransport) Kind() TransportKind { return TransportNative }

func (t *nativeTransport) Load(_ context.Context, target StreamTarget) error {
	if t.destroyed.Load() {
		return ErrTransportDestroyed
	}
	return t.sink.SetSource(Source{URL: target.URL, Label: urlutil.Sanitize(target.URL)})
}

func (t *nativeTransport) SwapSource(ctx context.Context, target StreamTarget) error {
	return t.Load(ctx, target)
}

// StopLoad is a no-op: the native pipeline manages its own fetching and
// pausing the sink is a separate, explicit effect.
func (t *nativeTransport) StopLoad() {}

func (t *nativeTransport) StartLoad() error {
	if t.destroyed.Load() {
		return ErrTransportDestroyed
	}
	return nil
}

func (t *nativeTransport) Destroy() {
	if t.destroyed.Swap(true) {
		return
	}
	t.sink.SetCallbacks(SinkCallbacks{})
}

func (t *nativeTransport) onCanPlay() {
	if !t.destroyed.Load() && t.cb.OnReady != nil {
		t.cb.OnReady()
	}
}

func (t *nativeTransport) onSinkError(err error) {
	if !t.destroyed.Load() && t.cb.OnError != nil {
		t.cb.OnError(TransportError{Category: CategoryMedia, Fatal: true, Err: err})
	}
}
