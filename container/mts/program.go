/*
NAME
  program.go

DESCRIPTION
  program.go implements Program: a PAT entry's PMT stream plus the
  elementary streams it lists, including automatic PCR stream selection and
  PCR clock extrapolation from a packet-count snapshot (§3, §4.3).

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
	"math/rand"
	"time"

	"github.com/ausocean/tsmux/container/mts/psi"
	"github.com/ausocean/utils/logging"
)

// esEntry records what a Program needs to remember about one of its
// elementary streams in order to rebuild the PMT payload.
type esEntry struct {
	stream      *Stream
	streamType  byte
	descriptors []psi.Descriptor
}

// Program is one entry in the Muxer's PAT: a PMT stream plus the
// elementary streams it describes (§3).
type Program struct {
	Number uint16
	PMT    *Stream

	mux *Muxer // Set by Muxer.AddProgram; nil until the program is attached.

	es  []esEntry
	iod *psi.Descriptor // Set when MPEG-4 Systems signaling is enabled.

	pcrStream       *Stream
	pcrInitTime     uint64
	tsTimeAtPCRInit muxTime
	numPckAtPCRInit uint64
	lastPCRAt       time.Time
	havePCRInit     bool

	log logging.Logger
}

// pcrReadyVideoTypes are stream_type values this mux prefers as a program's
// PCR carrier (§3 pcr stream selection: video preferred, else first audio).
var pcrReadyVideoTypes = map[byte]bool{0x1B: true, 0x24: true}

// NewProgram returns a Program with no elementary streams, carried on PAT
// under number, with its PMT on pmtPID.
func NewProgram(number, pmtPID uint16, refreshRateMs int, log logging.Logger) *Program {
	return &Program{
		Number: number,
		PMT:    NewSectionStream(pmtPID, refreshRateMs, log),
		log:    log,
	}
}

// AddStream adds an elementary stream to the program, selecting it as the
// PCR carrier if it is the first video stream added (or the first stream of
// any kind, if no video stream is added later), and rebuilds the PMT.
func (p *Program) AddStream(s *Stream, streamType byte, descriptors []psi.Descriptor) error {
	p.es = append(p.es, esEntry{stream: s, streamType: streamType, descriptors: descriptors})
	s.prog = p
	if p.mux != nil {
		s.mux = p.mux
	}

	if p.pcrStream == nil || (pcrReadyVideoTypes[streamType] && !pcrReadyVideoTypes[p.currentPCRStreamType()]) {
		p.pcrStream = s
	}
	return p.rebuildPMT()
}

func (p *Program) currentPCRStreamType() byte {
	for _, e := range p.es {
		if e.stream == p.pcrStream {
			return e.streamType
		}
	}
	return 0
}

// EnableMPEG4Signaling attaches an IOD descriptor to the PMT's program_info
// loop, pointing at the given OD and BIFS elementary stream PIDs (§4.4), and
// rebuilds the PMT.
func (p *Program) EnableMPEG4Signaling(odPID, bifsPID uint16) error {
	d := psi.IODDescriptor(0x02, 0x01, odPID, bifsPID)
	p.iod = &d
	return p.rebuildPMT()
}

func (p *Program) rebuildPMT() error {
	var pcrPID uint16 = PatPid
	if p.pcrStream != nil {
		pcrPID = p.pcrStream.PID
	}

	var programInfo []psi.Descriptor
	if p.iod != nil {
		programInfo = append(programInfo, *p.iod)
	}

	streams := make([]psi.ElementaryStream, 0, len(p.es))
	for _, e := range p.es {
		streams = append(streams, psi.ElementaryStream{StreamType: e.streamType, PID: e.stream.PID, Descriptors: e.descriptors})
	}

	payload := psi.PMTPayload(pcrPID, programInfo, streams)
	_, err := psi.UpdateTable(p.PMT.Tables(), psi.TableIDPMT, p.Number, payload, psi.Options{UseSyntaxIndicator: true, UseChecksum: true})
	if err != nil {
		return fmt.Errorf("mts: failed to build PMT for program %d: %w", p.Number, err)
	}
	p.PMT.Tables().ResetCursor()
	p.log.Debug("rebuilt PMT", "program", p.Number, "streams", len(p.es), "pcr_pid", pcrPID)
	return nil
}

// initPCRIfNeeded establishes the program's random PCR base the first time
// its PCR stream has data to send, snapshotting the mux's current time and
// total packet count so later PCR values can be extrapolated without
// revisiting the clock (§4.3). A prior, unfixed version of this logic
// always picked a degenerate pcr_init_time of 1; this seeds from the
// process-wide random source instead so independent programs phase apart.
func (p *Program) initPCRIfNeeded(mux *Muxer) {
	if p.havePCRInit {
		return
	}
	p.pcrInitTime = rand.Uint64() % (uint64(MaxPCRBase)*300 + MaxPCRExt)
	if mux != nil {
		p.tsTimeAtPCRInit = mux.time
		p.numPckAtPCRInit = mux.totPckSent
	}
	p.havePCRInit = true
	p.log.Debug("initialized PCR", "program", p.Number, "pcr_init_time", p.pcrInitTime)
}

// pcrDue reports whether the program's PCR stream should carry a fresh PCR
// value on its next packet (§8 PCR cadence: at most once every 200ms).
func (p *Program) pcrDue(now time.Time) bool {
	return now.Sub(p.lastPCRAt) >= pcrReinsertPeriod
}

// pcrValue computes the program's current PCR, extrapolated from packets
// sent since initialization (§4.3).
func (p *Program) pcrValue(mux *Muxer) uint64 {
	return pcrFor(mux.totPckSent-p.numPckAtPCRInit, mux.bitRate, p.pcrInitTime)
}
