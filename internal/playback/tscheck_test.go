package playback

import (
	"bytes"
	"testing"
)

// tsPacket builds one minimal transport stream packet for the given PID.
func tsPacket(pid uint16, continuity byte) []byte {
	pkt := make([]byte, tsPacketSize)
	pkt[0] = 0x47
	pkt[1] = byte(pid >> 8 & 0x1f)
	pkt[2] = byte(pid & 0xff)
	pkt[3] = 0x10 | continuity&0x0f // payload only
	return pkt
}

func tsSegment(packets int) []byte {
	var buf bytes.Buffer
	for i := 0; i < packets; i++ {
		buf.Write(tsPacket(0x100, byte(i)))
	}
	return buf.Bytes()
}

func TestProbeTSAcceptsWellFormedSegment(t *testing.T) {
	if err := probeTS(tsSegment(8)); err != nil {
		t.Errorf("probeTS() = %v, want nil", err)
	}
}

func TestProbeTSRejectsShortSegment(t *testing.T) {
	if err := probeTS(make([]byte, 100)); err == nil {
		t.Error("probeTS() accepted a segment shorter than one packet")
	}
}

func TestProbeTSRejectsMisalignedSync(t *testing.T) {
	seg := tsSegment(4)
	seg[tsPacketSize] = 0x00 // clobber the second packet's sync byte
	if err := probeTS(seg); err == nil {
		t.Error("probeTS() accepted a segment with a missing sync byte")
	}
}

func TestLooksLikeTS(t *testing.T) {
	if !looksLikeTS(tsSegment(1)) {
		t.Error("looksLikeTS() = false for a TS packet")
	}
	if looksLikeTS([]byte("ftypisom, definitely not ts")) {
		t.Error("looksLikeTS() = true for non-TS data")
	}
	if looksLikeTS([]byte{0x47}) {
		t.Error("looksLikeTS() = true for a truncated packet")
	}
}
