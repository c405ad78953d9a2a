package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/asticode/go-astits"
)

const tsPacketSize = 188

// maxProbePackets bounds how much of a segment the integrity probe parses.
const maxProbePackets = 16

// looksLikeTS reports whether the data plausibly starts an MPEG-TS stream.
// Non-TS segments (fMP4, raw audio) are passed through unprobed.
func looksLikeTS(data []byte) bool {
	return len(data) >= tsPacketSize && data[0] == 0x47
}

// probeTS validates segment integrity: sync-byte alignment across the
// leading packets, then a real header parse. A corrupt segment here is
// cheaper to catch than a decoder stall in the sink.
func probeTS(data []byte) error {
	if len(data) < tsPacketSize {
		return fmt.Errorf("short segment: %d bytes", len(data))
	}

	packets := len(data) / tsPacketSize
	if packets > maxProbePackets {
		packets = maxProbePackets
	}
	for i := 0; i < packets; i++ {
		if data[i*tsPacketSize] != 0x47 {
			return fmt.Errorf("sync byte missing at packet %d", i)
		}
	}

	dmx := astits.NewDemuxer(context.Background(), bytes.NewReader(data[:packets*tsPacketSize]))
	for i := 0; i < packets; i++ {
		if _, err := dmx.NextPacket(); err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return fmt.Errorf("packet %d: %w", i, err)
		}
	}
	return nil
}
