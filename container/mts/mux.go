/*
NAME
  mux.go

DESCRIPTION
  mux.go implements Muxer and mux_step, the scheduler that interleaves a
  PAT stream, each program's PMT stream, and each program's elementary
  streams into a single 188-byte packet stream, inserting PCR on each
  program's designated stream and NULL packets when no program has data to
  send under a fixed output bit rate (§2, §4.6).

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
	"io"
	"time"

	"github.com/ausocean/tsmux/container/mts/psi"
	"github.com/ausocean/utils/logging"
)

// patRefreshRateMs is how often the PAT is re-sent on its own PID (§4.2
// carousel).
const patRefreshRateMs = 500

// Muxer interleaves a set of Programs into one MPEG-2 Transport Stream
// (§3). Construct with NewMuxer, passing options such as FixedBitrate or
// RealTime, before calling AddProgram.
type Muxer struct {
	bitRate        uint64
	realTime       bool
	tsID           uint16
	mpeg4Signaling bool

	time       muxTime
	lastWall   time.Time // Last wall-clock Step call, used to advance time under RealTime().
	totPckSent uint64
	totPadSent uint64

	pat      *Stream
	programs []*Program

	nullPkt []byte

	log logging.Logger
}

// NewMuxer returns a Muxer with no programs, configured by options (§4.6,
// see FixedBitrate, RealTime, TransportStreamID and MPEG4Signaling).
func NewMuxer(log logging.Logger, options ...func(*Muxer) error) (*Muxer, error) {
	m := &Muxer{
		pat: NewSectionStream(PatPid, patRefreshRateMs, log),
		log: log,
	}
	m.pat.mux = m
	for _, opt := range options {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("mts: option failed: %w", err)
		}
	}

	null := &Packet{PID: NullPid, AFC: AFCPayloadOnly, Payload: make([]byte, PacketSize-HeadSize)}
	m.nullPkt = null.Bytes(nil)

	log.Debug("muxer configured", "bit_rate", m.bitRate, "real_time", m.realTime, "ts_id", m.tsID)
	return m, nil
}

// AddProgram adds a program to the mux and rebuilds the PAT.
func (m *Muxer) AddProgram(p *Program) error {
	m.programs = append(m.programs, p)
	p.mux = m
	p.PMT.mux = m
	for _, e := range p.es {
		e.stream.mux = m
		e.stream.prog = p
	}
	return m.rebuildPAT()
}

func (m *Muxer) rebuildPAT() error {
	progs := make([]psi.Program, 0, len(m.programs))
	for _, p := range m.programs {
		progs = append(progs, psi.Program{Number: p.Number, PMTPID: p.PMT.PID})
	}
	payload := psi.PATPayload(progs)
	_, err := psi.UpdateTable(m.pat.Tables(), psi.TableIDPAT, m.tsID, payload, psi.Options{UseSyntaxIndicator: true, UseChecksum: true})
	if err != nil {
		return fmt.Errorf("mts: failed to build PAT: %w", err)
	}
	m.pat.Tables().ResetCursor()
	m.log.Debug("rebuilt PAT", "programs", len(m.programs))
	return nil
}

// streamOwner pairs a Stream with the Program it belongs to, or nil for the
// PAT and for a program's own PMT stream.
type streamOwner struct {
	stream  *Stream
	program *Program
}

func (m *Muxer) flatten() []streamOwner {
	owners := make([]streamOwner, 0, 1+2*len(m.programs))
	owners = append(owners, streamOwner{m.pat, nil})
	for _, p := range m.programs {
		owners = append(owners, streamOwner{p.PMT, nil})
		for _, e := range p.es {
			owners = append(owners, streamOwner{e.stream, p})
		}
	}
	return owners
}

// Done reports whether every program's elementary streams have signaled end
// of stream and drained, so mux_step will never produce another packet.
func (m *Muxer) Done() bool {
	for _, o := range m.flatten() {
		if o.program == nil {
			continue
		}
		if !o.stream.EndOfStream() {
			return false
		}
	}
	return len(m.programs) > 0
}

// candidate is one stream due this mux_step, carrying enough of the
// arbiter's tie-break rank to resolve an exact tie between PAT, a
// program's PMT, and a program's elementary streams (§4.6 step 2: PAT
// wins any tie outright; a program's PMT wins ties against its own ES).
type candidate struct {
	owner streamOwner
	time  muxTime
	rank  int
}

const (
	rankPAT = iota
	rankPMT
	rankES
)

// Step runs one iteration of mux_step, returning the next TS packet. ok is
// false when real-time pacing means the caller should wait and call Step
// again later (no NULL stuffing is emitted for real time muxes mid-program
// since the caller controls timing); err is non-nil only on a genuine
// ingest or section-generation failure.
func (m *Muxer) Step(now time.Time) (pkt *Packet, ok bool, err error) {
	if m.realTime {
		m.syncWallClock(now)
	}

	var due []candidate
	for _, o := range m.flatten() {
		ready, err := o.stream.schedule(m.time)
		if err != nil {
			return nil, false, fmt.Errorf("mts: stream pid %d: %w", o.stream.PID, err)
		}
		if !ready {
			continue
		}
		rank := rankES
		switch {
		case o.stream == m.pat:
			rank = rankPAT
		case o.program == nil: // A program's PMT (see streamOwner).
			rank = rankPMT
		}
		due = append(due, candidate{owner: o, time: o.stream.time, rank: rank})
	}

	if len(due) == 0 {
		if m.realTime {
			return nil, false, nil
		}
		if m.bitRate == 0 {
			return nil, false, nil
		}
		m.totPadSent++
		m.advance(now)
		null := &Packet{PID: NullPid, AFC: AFCPayloadOnly, Payload: make([]byte, PacketSize-HeadSize)}
		return null, true, nil
	}

	// §4.6 step 2: select the candidate with the smallest scheduled time,
	// breaking exact ties by rank.
	best := due[0]
	for _, c := range due[1:] {
		if c.time.before(best.time) || (c.time.equal(best.time) && c.rank < best.rank) {
			best = c
		}
	}

	var pcr *uint64
	if p := best.owner.program; p != nil && best.owner.stream == p.pcrStream && p.havePCRInit && p.pcrDue(now) {
		v := p.pcrValue(m)
		pcr = &v
	}

	p, sent, err := best.owner.stream.NextPacket(pcr, m.time)
	if err != nil {
		return nil, false, fmt.Errorf("mts: stream pid %d: %w", best.owner.stream.PID, err)
	}
	if !sent {
		return nil, false, nil
	}
	if pcr != nil {
		best.owner.program.lastPCRAt = now
	}

	m.advance(now)
	return p, true, nil
}

// syncWallClock advances m.time by the elapsed wall-clock duration since the
// previous Step call, so a real-time mux's PAT/PMT carousel cadence is gated
// against actual elapsed time even on ticks where no packet is sent (§4.6).
func (m *Muxer) syncWallClock(now time.Time) {
	if !m.lastWall.IsZero() {
		if d := now.Sub(m.lastWall); d > 0 {
			m.time.inc(uint64(d.Nanoseconds()), uint64(time.Second))
		}
	}
	m.lastWall = now
}

func (m *Muxer) advance(now time.Time) {
	m.totPckSent++
	if m.bitRate > 0 {
		m.time.inc(bitsPerPacket, m.bitRate)
	}
}

// Run drives Step in a loop until Done, writing each resulting packet's
// bytes to dst. It is the synchronous convenience path for pull-mode-only
// muxing; push-mode or real-time muxes should call Step directly from their
// own timing loop instead.
func (m *Muxer) Run(dst io.Writer) error {
	var buf []byte
	for !m.Done() {
		pkt, ok, err := m.Step(time.Now())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		buf = pkt.Bytes(buf)
		if _, err := dst.Write(buf); err != nil {
			return fmt.Errorf("mts: write failed: %w", err)
		}
	}
	return nil
}
