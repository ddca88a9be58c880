/*
NAME
  stream.go

DESCRIPTION
  stream.go implements Stream, the mux's per-elementary-stream state
  machine: section streams (PAT, a program's PMT, or an MPEG-4 OD/BIFS
  stream) drain a psi.TableSet packet by packet; PES streams pull or accept
  pushed access units from an Ingest, SL/LATM-wrap them where configured,
  and packetize the resulting PES packet.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"fmt"
	"sync"
	"time"

	"github.com/ausocean/tsmux/container/mts/latm"
	"github.com/ausocean/tsmux/container/mts/pes"
	"github.com/ausocean/tsmux/container/mts/psi"
	"github.com/ausocean/tsmux/container/mts/sl"
	"github.com/ausocean/utils/logging"
)

// Stream is one elementary PID the mux emits: a section stream (PAT, PMT,
// or an SL-packetized MPEG-4 OD/BIFS stream) or a PES stream (§3, §4.6).
type Stream struct {
	PID uint16
	cc  byte

	// Section-stream state. IsSection reports whether this is a section
	// stream (no ingest, or a non-zero auTableID).
	tables        psi.TableSet
	refreshRateMs int
	auTableID     byte // 0 for PAT/PMT, whose content is set externally by mux.go/program.go.
	auExt         uint16
	nextDue       muxTime // Earliest mux time a PAT/PMT may start its next carousel cycle.

	// PES-stream state.
	ingest   Ingest
	streamID byte
	useSL    bool
	latmMux  *latm.Muxer

	mu    sync.Mutex
	queue []*AccessUnit

	pending      []byte
	pendingStart bool
	pendingRAI   bool

	// mux and prog back-link this stream to its owning Muxer and Program,
	// wired up by NewMuxer/Muxer.AddProgram/Program.AddStream. prog is nil
	// for the PAT and PMT streams. Both are nil for a PES stream exercised
	// standalone, in which case scheduling falls back to the mux's "now" and
	// timestamps pass through unadjusted.
	mux  *Muxer
	prog *Program

	// curAU holds an access unit already pulled from ingest by schedule but
	// not yet packetized, so that a Puller's one-shot Pull is never called
	// more than once per access unit.
	curAU *AccessUnit

	// time is this stream's next scheduled emission time (§4.3 step 7,
	// §4.6), set by schedule and compared against sibling streams by the
	// mux's arbiter.
	time muxTime

	haveInitialTS bool
	initialTS     int64 // §4.3 step 5: dts - backlogTicks() at the stream's first access unit.

	eos bool

	log logging.Logger
}

// NewSectionStream returns a Stream that drains a psi.TableSet of
// externally-managed tables (a PAT or a program's PMT). Content is set via
// psi.UpdateTable(stream.Tables(), ...) and stream.tables.ResetCursor().
func NewSectionStream(pid uint16, refreshRateMs int, log logging.Logger) *Stream {
	return &Stream{PID: pid, refreshRateMs: refreshRateMs, log: log}
}

// NewAUSectionStream returns a Stream that re-segments a fresh section every
// time an access unit is pulled or pushed, for an MPEG-4 OD or BIFS
// elementary stream carried as MPEG4_SECTIONS (§4.4).
func NewAUSectionStream(pid uint16, tableID byte, ext uint16, ingest Ingest, log logging.Logger) *Stream {
	return &Stream{
		PID:       pid,
		auTableID: tableID,
		auExt:     ext,
		ingest:    ingest,
		useSL:     true,
		log:       log,
	}
}

// NewPESStream returns a Stream that packetizes access units from ingest
// as PES, optionally wrapping each access unit in an SL header (for
// MPEG4_PES streams) and/or a LATM muxer (for AAC audio).
func NewPESStream(pid uint16, streamID byte, ingest Ingest, useSL bool, latmMux *latm.Muxer, log logging.Logger) *Stream {
	return &Stream{PID: pid, ingest: ingest, streamID: streamID, useSL: useSL, latmMux: latmMux, log: log}
}

// Tables returns the stream's section table set, for direct manipulation by
// the owning Muxer (PAT) or Program (PMT) when their content changes.
func (s *Stream) Tables() *psi.TableSet { return &s.tables }

// IsSection reports whether this stream drains sections rather than PES.
func (s *Stream) IsSection() bool { return s.ingest == nil || s.auTableID != 0 }

// Push enqueues an access unit for a push-mode ingest. It is safe to call
// from any goroutine. Returns an error if the stream's ingest pulls instead.
func (s *Stream) Push(au *AccessUnit) error {
	if _, ok := s.ingest.(Puller); ok {
		return fmt.Errorf("mts: stream pid %d is pull-mode, cannot Push", s.PID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, au)
	return nil
}

// QueueLen reports the number of access units currently buffered for a
// push-mode ingest.
func (s *Stream) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// nextAU returns the stream's next access unit, pulling directly from a
// Puller ingest or dequeuing from the push-mode queue.
func (s *Stream) nextAU() (*AccessUnit, bool, error) {
	if p, ok := s.ingest.(Puller); ok {
		au, ok, err := p.Pull()
		if err != nil {
			return nil, false, fmt.Errorf("mts: pull failed on pid %d: %w", s.PID, err)
		}
		if !ok && p.Capabilities().Has(CapStreamIsOver) {
			s.eos = true
		}
		return au, ok, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		if s.ingest != nil && s.ingest.Capabilities().Has(CapStreamIsOver) {
			s.eos = true
		}
		return nil, false, nil
	}
	au := s.queue[0]
	s.queue = s.queue[1:]
	return au, true, nil
}

// EndOfStream reports whether the ingest has signaled it is exhausted and
// the stream has no further buffered data.
func (s *Stream) EndOfStream() bool {
	return s.eos && len(s.pending) == 0 && s.QueueLen() == 0
}

// wrapAU applies this stream's SL header and/or LATM framing to an access
// unit's payload (§4.4, §4.5).
func (s *Stream) wrapAU(au *AccessUnit) []byte {
	data := au.Data
	if s.latmMux != nil {
		data = s.latmMux.Mux(data, time.Now())
	}
	if s.useSL {
		h := sl.Header{
			AUStart: true,
			AUEnd:   true,
			RAP:     au.Flags&AURAP != 0,
			HasCTS:  au.Flags&AUHasCTS != 0,
			CTS:     au.CTS,
		}
		data = append(h.Bytes(), data...)
	}
	return data
}

// rescale converts a timestamp expressed in fromHz units to toHz units.
func rescale(v, fromHz, toHz uint64) uint64 {
	if fromHz == 0 {
		return v
	}
	return v * toHz / fromHz
}

// NextPacket returns the stream's next TS packet. pcr, when non-nil, is
// attached to the packet's adaptation field as this program's PCR value
// (only ever requested of a program's designated PCR stream). now is the
// mux's current notional time, used to gate a PAT/PMT's next carousel
// cycle against its refresh rate. ok is false when the stream currently has
// no packet to contribute.
func (s *Stream) NextPacket(pcr *uint64, now muxTime) (*Packet, bool, error) {
	if s.auTableID != 0 && s.tables.Done() {
		au, ok, err := s.nextAU()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if err := s.segmentMPEG4AU(au); err != nil {
			return nil, false, err
		}
	}

	if s.IsSection() {
		return s.nextSectionPacket(now)
	}
	return s.nextPESPacket(pcr, now)
}

// segmentMPEG4AU re-segments the table's sections from au, giving each
// fragment its own SL header (§4.2 update_table_mpeg4): only the first
// fragment carries accessUnitStartFlag, only the last carries
// accessUnitEndFlag, so a decoder reassembling the AU across sections sees
// exactly one start and one end regardless of how many sections it took.
func (s *Stream) segmentMPEG4AU(au *AccessUnit) error {
	hasCTS := au.Flags&AUHasCTS != 0
	rap := au.Flags&AURAP != 0
	header := func(first, last bool) []byte {
		return sl.Header{AUStart: first, AUEnd: last, RAP: rap && first, HasCTS: hasCTS, CTS: au.CTS}.Bytes()
	}
	_, err := psi.UpdateTableMPEG4(&s.tables, s.auTableID, s.auExt, au.Data, sl.HeaderSize(hasCTS), header, psi.Options{UseSyntaxIndicator: true, UseChecksum: true})
	if err != nil {
		return fmt.Errorf("mts: failed to segment AU section on pid %d: %w", s.PID, err)
	}
	s.tables.ResetCursor()
	s.log.Debug("segmented MPEG-4 section access unit", "pid", s.PID, "sections", len(s.tables.Tables[len(s.tables.Tables)-1].Sections))
	return nil
}

// nextSectionPacket drains one TS packet's worth of the stream's section
// content. For a PAT/PMT (auTableID == 0), a fresh carousel cycle may only
// start once now reaches nextDue (§4.2/§4.6 refresh cadence); a cycle
// already in progress (mid-section or mid-table) always continues,
// matching table_next_packet's refusal to truncate a section.
func (s *Stream) nextSectionPacket(now muxTime) (*Packet, bool, error) {
	if s.tables.Done() {
		return nil, false, nil
	}
	if s.auTableID == 0 && s.tables.AtSectionStart() && now.before(s.nextDue) {
		return nil, false, nil
	}
	atStart := s.tables.AtSectionStart()
	const maxPayload = PacketSize - HeadSize
	payload := make([]byte, 0, maxPayload)
	avail := maxPayload
	if atStart {
		payload = append(payload, 0x00) // pointer_field.
		avail--
	}
	payload = append(payload, s.tables.Read(avail, s.refreshRateMs)...)
	if s.auTableID == 0 && s.tables.Wrapped() && s.refreshRateMs > 0 {
		s.nextDue.inc(uint64(s.refreshRateMs), 1000)
	}
	for len(payload) < maxPayload {
		payload = append(payload, 0xFF)
	}

	pkt := &Packet{PUSI: atStart, PID: s.PID, CC: s.cc, AFC: AFCPayloadOnly, Payload: payload}
	s.cc = (s.cc + 1) % 16
	return pkt, true, nil
}

// nextPESPacket drains one TS packet's worth of the stream's pending PES
// bytes, scheduling a fresh access unit first if nothing is pending (the
// self-contained path exercised when NextPacket is called without first
// going through schedule, e.g. directly in tests).
func (s *Stream) nextPESPacket(pcr *uint64, now muxTime) (*Packet, bool, error) {
	if len(s.pending) == 0 {
		ok, err := s.schedulePES(now)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}

	pkt := &Packet{PID: s.PID, CC: s.cc, PUSI: s.pendingStart}
	if s.pendingStart {
		pkt.RAI = s.pendingRAI
	}
	const maxPayload = PacketSize - HeadSize
	switch {
	case pcr != nil:
		// §4.3 step 3: a PCR attachment always gets the full 8-byte AF.
		pkt.AFC = AFCAdaptationAndPayload
		pkt.PCRF = true
		pkt.PCR = *pcr
	case len(s.pending) < maxPayload:
		// §4.3 step 3: the final partial packet of an AU reserves a minimal
		// 2-byte AF rather than going out payload-only, since a
		// payload-only packet has no adaptation field to hold the stuffing
		// that fills the shortfall (mpegts.go Bytes would then write the
		// 0xFF filler into the payload area, ahead of the PES bytes).
		pkt.AFC = AFCAdaptationAndPayload
	default:
		pkt.AFC = AFCPayloadOnly
	}
	n := pkt.FillPayload(s.pending)
	s.pending = s.pending[n:]
	s.pendingStart = false
	s.cc = (s.cc + 1) % 16
	return pkt, true, nil
}

// schedule refreshes the stream's schedule and reports whether it has a
// packet ready this mux_step (§4.6 steps 1-2).
func (s *Stream) schedule(now muxTime) (bool, error) {
	if s.IsSection() {
		return s.scheduleSection(now), nil
	}
	return s.schedulePES(now)
}

// scheduleSection reports whether a section stream is due: an MPEG-4 AU
// section stream is due whenever it has a fresh AU to segment or sections
// still to drain; a PAT/PMT is due once its next carousel cycle's start
// time has arrived, but a cycle already in progress is always due so it is
// never truncated.
func (s *Stream) scheduleSection(now muxTime) bool {
	if s.auTableID != 0 {
		due := !s.tables.Done() || s.hasAUSource()
		s.time = now
		return due
	}
	if s.tables.Done() {
		return false
	}
	if s.tables.AtSectionStart() && now.before(s.nextDue) {
		s.time = s.nextDue
		return false
	}
	s.time = now
	return true
}

func (s *Stream) hasAUSource() bool {
	if _, ok := s.ingest.(Puller); ok {
		return true
	}
	return s.QueueLen() > 0
}

// schedulePES implements the PES stream side of process() (§4.3 steps
// 1-7): continue draining a pending AU without re-scheduling; otherwise
// pull one, rescale its timestamps, gate a program's non-PCR streams until
// the program's PCR stream has initialized, derive this stream's
// initial_ts on its first AU, packetize it, and compute the stream's next
// scheduled time from the program's PCR-init epoch.
func (s *Stream) schedulePES(now muxTime) (bool, error) {
	if len(s.pending) > 0 {
		return true, nil
	}

	if s.curAU == nil {
		au, ok, err := s.nextAU()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		s.curAU = au
	}

	timescale := s.ingest.Timescale()
	cts := rescale(s.curAU.CTS, timescale, PTSFrequency)
	dts := cts
	if s.curAU.Flags&AUHasDTS != 0 {
		dts = rescale(s.curAU.DTS, timescale, PTSFrequency)
	}

	if s.prog != nil {
		if s == s.prog.pcrStream {
			s.prog.initPCRIfNeeded(s.mux)
		} else if !s.prog.havePCRInit {
			return false, nil
		}
	}

	if !s.haveInitialTS {
		s.initialTS = int64(dts) - s.backlogTicks()
		s.haveInitialTS = true
	}

	au := s.curAU
	s.curAU = nil
	s.fillPESPacket(au, cts, dts)

	if s.prog != nil {
		nextTicks := int64(dts) - s.initialTS - s.transmissionLookback()
		s.time = s.prog.tsTimeAtPCRInit
		s.time.incScaled(nextTicks, PTSFrequency)
	} else {
		s.time = now
	}

	return true, nil
}

// backlogTicks is §4.3 step 5's backlog_ticks: the 90kHz-scaled playout
// time of the packets already sent for this program since its PCR stream
// initialized, used to set a non-PCR stream's initial_ts far enough behind
// its first dts that it doesn't appear to start in the past.
func (s *Stream) backlogTicks() int64 {
	if s.mux == nil || s.prog == nil || s.mux.bitRate == 0 {
		return 0
	}
	return int64(PTSFrequency * bitsPerPacket * (s.mux.totPckSent - s.prog.numPckAtPCRInit) / s.mux.bitRate)
}

// transmissionLookback is §4.3 step 7's transmission_lookback: the time it
// will take the mux to actually transmit the PES packet just built, at the
// current bit rate, subtracted from dts-initial_ts so the stream is
// scheduled to start sending early enough to finish by its timestamp.
func (s *Stream) transmissionLookback() int64 {
	if s.mux == nil || s.mux.bitRate == 0 {
		return 0
	}
	const maxPayload = PacketSize - HeadSize
	packets := uint64((len(s.pending) + maxPayload - 1) / maxPayload)
	return int64(PTSFrequency * bitsPerPacket * packets / s.mux.bitRate)
}

func (s *Stream) fillPESPacket(au *AccessUnit, cts, dts uint64) {
	data := s.wrapAU(au)

	var initialTS int64
	var pcrInitTime uint64
	if s.prog != nil {
		initialTS = s.initialTS
		pcrInitTime = s.prog.pcrInitTime
	}

	p := pes.Packet{StreamID: s.streamID, PDI: pes.PDIPTS, PTS: adjustTimestamp(cts, initialTS, pcrInitTime)}
	hdrExtra := 5
	if au.Flags&AUHasDTS != 0 {
		p.PDI = pes.PDIPTSDTS
		p.DTS = adjustTimestamp(dts, initialTS, pcrInitTime)
		hdrExtra = 10
	}
	p.Data = data

	esLen := 3 + hdrExtra + len(data)
	if esLen <= 0xFFFF {
		p.Length = uint16(esLen)
	}

	s.pending = p.Bytes(nil)
	s.pendingStart = true
	s.pendingRAI = au.Flags&AURAP != 0
	s.log.Debug("built PES packet", "pid", s.PID, "pts", p.PTS, "bytes", len(s.pending), "rai", s.pendingRAI)
}

// adjustTimestamp is §4.3 step 8: ts ← ts - initial_ts + pcr_init_time/300,
// moving a PTS/DTS from the stream's own near-zero epoch onto the same 90kHz
// epoch as the program's PCR, clamped to a valid 33-bit PTS/DTS value.
func adjustTimestamp(ts uint64, initialTS int64, pcrInitTime uint64) uint64 {
	v := int64(ts) - initialTS + int64(pcrInitTime/300)
	if v < 0 {
		v = 0
	}
	return uint64(v) & MaxPTS
}
