// Package testutil provides test fixtures: playlist builders, transport
// stream bytes, a scriptable HLS origin, and sample playback events.
package testutil

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelstreet/streamwatch/internal/models"
)

const tsPacketSize = 188

// TSPacket builds one minimal transport stream packet for the given PID.
func TSPacket(pid uint16, continuity byte) []byte {
	pkt := make([]byte, tsPacketSize)
	pkt[0] = 0x47
	pkt[1] = byte(pid >> 8 & 0x1f)
	pkt[2] = byte(pid & 0xff)
	pkt[3] = 0x10 | continuity&0x0f
	return pkt
}

// TSSegment builds a well-formed segment of the given packet count.
func TSSegment(packets int) []byte {
	var buf bytes.Buffer
	for i := 0; i < packets; i++ {
		buf.Write(TSPacket(0x100, byte(i)))
	}
	return buf.Bytes()
}

// CorruptSegment builds a segment that starts with a valid sync byte but
// breaks packet alignment, so it passes the cheap check and fails the
// integrity probe.
func CorruptSegment() []byte {
	data := TSSegment(4)
	data[tsPacketSize] = 0x00
	return data
}

// MediaPlaylist renders a media playlist for the given segment URIs
// starting at mediaSequence.
func MediaPlaylist(mediaSequence, targetDuration int, segmentURIs []string, ended bool) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)
	for _, uri := range segmentURIs {
		fmt.Fprintf(&b, "#EXTINF:%d.000,\n%s\n", targetDuration, uri)
	}
	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// MultivariantPlaylist renders a multivariant playlist from bandwidth to
// variant URI, highest bandwidth first.
func MultivariantPlaylist(variants map[int]string) string {
	bandwidths := make([]int, 0, len(variants))
	for bw := range variants {
		bandwidths = append(bandwidths, bw)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(bandwidths)))

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, bw := range bandwidths {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d\n%s\n", bw, variants[bw])
	}
	return b.String()
}

// SamplePlaybackEvent builds a persisted playback event for repository and
// retention tests.
func SamplePlaybackEvent(sessionID, deviceID, kind string, at time.Time) *models.PlaybackEvent {
	ev := &models.PlaybackEvent{
		SessionID: sessionID,
		DeviceID:  deviceID,
		Kind:      kind,
		Lifecycle: "ready",
		Transport: "segmented",
		Mode:      "live",
		TargetURL: "http://origin.test/live/index.m3u8",
		Active:    true,
	}
	ev.CreatedAt = at
	ev.UpdatedAt = at
	return ev
}
