package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTransport(t *testing.T) {
	cfg := DefaultConfig()
	hls := StreamTarget{URL: "http://origin.test/live/index.m3u8"}
	file := StreamTarget{URL: "http://origin.test/vod/movie.mp4"}

	tests := []struct {
		name       string
		target     StreamTarget
		caps       Capabilities
		retryCount int
		forced     bool
		wantKind   TransportKind
		wantLatch  bool
		wantErr    error
	}{
		{
			name:     "single file plays natively",
			target:   file,
			caps:     Capabilities{SegmentedEngine: true, NativeSegmented: true},
			wantKind: TransportNative,
		},
		{
			name:     "segmented prefers the engine",
			target:   hls,
			caps:     Capabilities{SegmentedEngine: true, NativeSegmented: true},
			wantKind: TransportSegmented,
		},
		{
			name:     "no engine falls back to native segmented",
			target:   hls,
			caps:     Capabilities{NativeSegmented: true},
			wantKind: TransportNative,
		},
		{
			name:    "nothing available is an error",
			target:  hls,
			caps:    Capabilities{},
			wantErr: ErrEnvironmentUnsupported,
		},
		{
			name:       "at the threshold the engine is still used",
			target:     hls,
			caps:       Capabilities{SegmentedEngine: true, NativeSegmented: true},
			retryCount: cfg.NativeEscalationThreshold,
			wantKind:   TransportSegmented,
		},
		{
			name:       "past the threshold with native support escalates and latches",
			target:     hls,
			caps:       Capabilities{SegmentedEngine: true, NativeSegmented: true},
			retryCount: cfg.NativeEscalationThreshold + 1,
			wantKind:   TransportNative,
			wantLatch:  true,
		},
		{
			name:       "past the threshold without native support keeps the engine",
			target:     hls,
			caps:       Capabilities{SegmentedEngine: true},
			retryCount: cfg.NativeEscalationThreshold + 1,
			wantKind:   TransportSegmented,
		},
		{
			name:       "at the retry ceiling native is forced regardless of support",
			target:     hls,
			caps:       Capabilities{SegmentedEngine: true},
			retryCount: cfg.MaxRetries,
			wantKind:   TransportNative,
			wantLatch:  true,
		},
		{
			name:     "latched session stays native at zero retries",
			target:   hls,
			caps:     Capabilities{SegmentedEngine: true, NativeSegmented: true},
			forced:   true,
			wantKind: TransportNative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectTransport(tt.target, tt.caps, tt.retryCount, tt.forced, cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, TransportNone, sel.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, sel.Kind)
			assert.Equal(t, tt.wantLatch, sel.Latch)
			assert.NotEmpty(t, sel.Reasons, "every selection carries its reasons")
		})
	}
}

func TestStreamTargetSegmented(t *testing.T) {
	tests := []struct {
		url       string
		container string
		want      bool
	}{
		{url: "http://h.test/a/index.m3u8", want: true},
		{url: "http://h.test/a/index.M3U8?token=x", want: true},
		{url: "http://h.test/a/list.m3u", want: true},
		{url: "http://h.test/a/movie.mp4", want: false},
		{url: "http://h.test/a/movie.mp4", container: "hls", want: true},
		{url: "http://h.test/a/index.m3u8", container: "file", want: false},
		{url: "http://h.test/a/stream#frag.m3u8", want: false},
	}
	for _, tt := range tests {
		got := StreamTarget{URL: tt.url, Container: tt.container}.Segmented()
		if got != tt.want {
			t.Errorf("Segmented(%q, container=%q) = %v, want %v", tt.url, tt.container, got, tt.want)
		}
	}
}
