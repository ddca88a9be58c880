package mts

import (
	"testing"

	"github.com/ausocean/tsmux/container/mts/psi"
	"github.com/ausocean/utils/logging"
)

func TestSectionStreamDrainsPAT(t *testing.T) {
	log := (*logging.TestLogger)(t)
	s := NewSectionStream(PatPid, patRefreshRateMs, log)

	pkt, ok, err := s.NextPacket(nil, muxTime{})
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if ok {
		t.Fatalf("expected no packet before any table content is set")
	}

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if _, err := psi.UpdateTable(s.Tables(), psi.TableIDPAT, 0, payload, psi.Options{UseSyntaxIndicator: true, UseChecksum: true}); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	s.Tables().ResetCursor()

	pkt, ok, err = s.NextPacket(nil, muxTime{})
	if err != nil || !ok {
		t.Fatalf("NextPacket() = (%v, %v, %v), want a packet", pkt, ok, err)
	}
	if !pkt.PUSI {
		t.Errorf("expected PUSI set on first section packet")
	}
	if pkt.PID != PatPid {
		t.Errorf("PID = %d, want %d", pkt.PID, PatPid)
	}
	if pkt.Payload[0] != 0x00 {
		t.Errorf("pointer_field = 0x%02x, want 0x00", pkt.Payload[0])
	}
}

// TestCarouselGatesNextCycleByRefreshRate verifies a PAT/PMT section stream
// does not start a fresh carousel cycle until its refresh rate has elapsed,
// but continues uninterrupted once a cycle is underway.
func TestCarouselGatesNextCycleByRefreshRate(t *testing.T) {
	log := (*logging.TestLogger)(t)
	const refreshMs = 500
	s := NewSectionStream(PatPid, refreshMs, log)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if _, err := psi.UpdateTable(s.Tables(), psi.TableIDPAT, 0, payload, psi.Options{UseSyntaxIndicator: true, UseChecksum: true}); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	s.Tables().ResetCursor()

	// First cycle starts immediately at mux time zero.
	pkt, ok, err := s.NextPacket(nil, muxTime{})
	if err != nil || !ok {
		t.Fatalf("first cycle NextPacket() = (%v, %v, %v), want a packet", pkt, ok, err)
	}

	// Immediately after wrapping, a second cycle must not start yet.
	pkt, ok, err = s.NextPacket(nil, muxTime{})
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if ok {
		t.Fatalf("expected the carousel to refuse a new cycle before refresh_rate_ms elapses, got a packet")
	}

	// Once mux time reaches the refresh rate, a new cycle is allowed.
	due := muxTime{nanosec: refreshMs * 1e6}
	pkt, ok, err = s.NextPacket(nil, due)
	if err != nil || !ok {
		t.Fatalf("NextPacket() at due time = (%v, %v, %v), want a packet", pkt, ok, err)
	}
}

func TestPESStreamPullsAndPacketizes(t *testing.T) {
	log := (*logging.TestLogger)(t)
	ing := &fakePuller{
		streamType: 0x1B,
		timescale:  90000,
		aus: []*AccessUnit{
			{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAB}, Flags: AUStart | AUEnd | AURAP, CTS: 90000},
		},
	}
	s := NewPESStream(0x100, 0xE0, ing, false, nil, log)

	pkt, ok, err := s.NextPacket(nil, muxTime{})
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if !ok {
		t.Fatalf("expected a packet from a pull-mode ingest with data queued")
	}
	if !pkt.PUSI {
		t.Errorf("expected PUSI on first PES packet")
	}
	if !pkt.RAI {
		t.Errorf("expected RAI set for a random-access-point access unit")
	}
	if pkt.PID != 0x100 {
		t.Errorf("PID = %d, want 0x100", pkt.PID)
	}

	// Start code prefix must appear at the payload start.
	if pkt.Payload[0] != 0x00 || pkt.Payload[1] != 0x00 || pkt.Payload[2] != 0x01 {
		t.Errorf("PES start code missing: %x", pkt.Payload[:3])
	}

	// No more data: ingest is exhausted and not yet marked over.
	if _, ok, _ := s.NextPacket(nil, muxTime{}); ok {
		t.Errorf("expected no further packet once the pull ingest is drained")
	}
}

func TestPESStreamAttachesPCROnlyWhenRequested(t *testing.T) {
	log := (*logging.TestLogger)(t)
	ing := &fakePuller{
		streamType: 0x1B,
		timescale:  90000,
		aus:        []*AccessUnit{{Data: []byte{0x01}, Flags: AUStart | AUEnd, CTS: 0}},
	}
	s := NewPESStream(0x101, 0xE0, ing, false, nil, log)
	pcr := uint64(123456)
	pkt, ok, err := s.NextPacket(&pcr, muxTime{})
	if err != nil || !ok {
		t.Fatalf("NextPacket: (%v, %v, %v)", pkt, ok, err)
	}
	if !pkt.PCRF || pkt.PCR != pcr {
		t.Errorf("PCR not attached: PCRF=%v PCR=%d, want %d", pkt.PCRF, pkt.PCR, pcr)
	}
	if pkt.AFC != AFCAdaptationAndPayload {
		t.Errorf("AFC = %d, want AFCAdaptationAndPayload", pkt.AFC)
	}
}

func TestPushModeQueueAndEndOfStream(t *testing.T) {
	log := (*logging.TestLogger)(t)
	ing := &fakePusher{streamType: 0x0F, timescale: 90000}
	s := NewPESStream(0x102, 0xC0, ing, false, nil, log)

	if err := s.Push(&AccessUnit{Data: []byte{0x01, 0x02}, Flags: AUStart | AUEnd, CTS: 0}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if s.QueueLen() != 1 {
		t.Fatalf("QueueLen() = %d, want 1", s.QueueLen())
	}

	pkt, ok, err := s.NextPacket(nil, muxTime{})
	if err != nil || !ok {
		t.Fatalf("NextPacket: (%v, %v, %v)", pkt, ok, err)
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen() after drain = %d, want 0", s.QueueLen())
	}

	if s.EndOfStream() {
		t.Fatalf("EndOfStream() true before ingest signals CapStreamIsOver")
	}
	ing.done = true
	if _, ok, _ := s.NextPacket(nil, muxTime{}); ok {
		t.Fatalf("expected no packet once queue is empty")
	}
	if !s.EndOfStream() {
		t.Errorf("expected EndOfStream() true once queue drained and ingest reports CapStreamIsOver")
	}
}

// TestPESFinalPartialPacketReservesMinimalAdaptationField verifies that a
// PES packet's final, partial TS packet reserves a 2-byte adaptation field
// rather than going out payload-only, since Bytes() only has room to stuff
// the shortfall when the adaptation field control says one is present.
func TestPESFinalPartialPacketReservesMinimalAdaptationField(t *testing.T) {
	log := (*logging.TestLogger)(t)
	data := make([]byte, 300) // PES packet exceeds one TS packet's payload.
	for i := range data {
		data[i] = byte(i)
	}
	ing := &fakePuller{
		streamType: 0x1B,
		timescale:  90000,
		aus: []*AccessUnit{
			{Data: data, Flags: AUStart | AUEnd | AURAP, CTS: 0},
		},
	}
	s := NewPESStream(0x100, 0xE0, ing, false, nil, log)

	pkt, ok, err := s.NextPacket(nil, muxTime{})
	if err != nil || !ok {
		t.Fatalf("NextPacket (first) = (%v, %v, %v)", pkt, ok, err)
	}
	if pkt.AFC != AFCPayloadOnly {
		t.Fatalf("first packet AFC = %d, want AFCPayloadOnly (full payload, no PCR)", pkt.AFC)
	}

	pkt, ok, err = s.NextPacket(nil, muxTime{})
	if err != nil || !ok {
		t.Fatalf("NextPacket (final) = (%v, %v, %v)", pkt, ok, err)
	}
	if pkt.AFC != AFCAdaptationAndPayload {
		t.Errorf("final partial packet AFC = %d, want AFCAdaptationAndPayload", pkt.AFC)
	}
	if len(s.pending) != 0 {
		t.Errorf("expected pending fully drained after the final packet, got %d bytes left", len(s.pending))
	}
}

func TestPushOnPullIngestReturnsError(t *testing.T) {
	log := (*logging.TestLogger)(t)
	ing := &fakePuller{streamType: 0x1B, timescale: 90000}
	s := NewPESStream(0x103, 0xE0, ing, false, nil, log)
	if err := s.Push(&AccessUnit{}); err == nil {
		t.Fatalf("expected Push on a pull-mode stream to fail")
	}
}
