/*
NAME
  ingest.go

DESCRIPTION
  ingest.go defines the contract a media source implements to supply access
  units to a Stream: static stream properties (type, timescale, decoder
  config) plus a control operation used to pull data or signal flush/end of
  stream. Sources that cannot be pulled on demand push access units into
  their Stream's queue instead (see Stream.Push).

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

import "time"

// Capability is a bitset of optional behaviours an Ingest supports (§6).
type Capability uint8

const (
	// CapAUPull indicates the ingest implements Puller and mux_step should
	// pull access units from it directly rather than waiting for pushes.
	CapAUPull Capability = 1 << iota

	// CapSignalDTS indicates access units from this ingest carry a DTS
	// distinct from their CTS/PTS (out-of-order B-frame coding).
	CapSignalDTS

	// CapStreamIsOver is set by an ingest to signal end of stream; mux_step
	// drops the owning Stream from scheduling once its queue drains.
	CapStreamIsOver
)

// Has reports whether c includes capability x.
func (c Capability) Has(x Capability) bool { return c&x != 0 }

// CtrlOp is an operation passed to Ingest.Control.
type CtrlOp int

const (
	CtrlDataRelease CtrlOp = iota // A previously pulled AccessUnit's buffer may be reused.
	CtrlDataFlush                 // Drop any buffered access units; a discontinuity follows.
	CtrlDestroy                   // The ingest is being torn down; release any resources.
)

// AUFlag is a bitset of per-access-unit properties (§6).
type AUFlag uint8

const (
	AUStart AUFlag = 1 << iota // First fragment of the access unit.
	AUEnd                      // Last fragment of the access unit.
	AURAP                      // Random access point: safe to start decoding here.
	AUHasCTS                   // CTS field is valid.
	AUHasDTS                   // DTS field is valid.
)

// AccessUnit is one timed unit of elementary stream data (a video frame, an
// audio frame, an MPEG-4 OD or BIFS command) ready for packetization.
type AccessUnit struct {
	Data  []byte
	Flags AUFlag
	CTS   uint64 // Composition/presentation time, in the stream's declared Timescale.
	DTS   uint64 // Decoding time, valid only when Flags&AUHasDTS != 0.
}

// Ingest describes a single elementary stream source (§6).
type Ingest interface {
	// StreamType returns the MPEG-TS stream_type value for this ingest
	// (e.g. 0x1B for H.264, 0x12 for SL-packetized MPEG-4).
	StreamType() byte

	// ObjectTypeIndication returns the MPEG-4 object type; 0 if not
	// applicable. The mux does not read this value.
	ObjectTypeIndication() byte

	// Timescale returns the clock rate, in Hz, that AccessUnit.CTS/DTS are
	// expressed in.
	Timescale() uint64

	// BitRate returns the ingest's expected bit rate in bits/second; 0 if
	// unknown/best-effort. The mux does not read this value.
	BitRate() uint64

	// DecoderConfig returns an out-of-band decoder configuration record
	// (e.g. an AudioSpecificConfig), or nil. The mux does not read this
	// value; descriptors are passed to Program.AddStream explicitly.
	DecoderConfig() []byte

	// RepeatRate returns how often out-of-band configuration carried
	// in-band (e.g. a LATM StreamMuxConfig) should be repeated; 0 selects
	// the codec's default.
	RepeatRate() time.Duration

	// Capabilities returns the ingest's capability bitset.
	Capabilities() Capability

	// Control notifies the ingest of a lifecycle operation.
	Control(op CtrlOp) error
}

// Puller is implemented by ingests with CapAUPull set. mux_step calls Pull
// directly on the stream's scheduling thread instead of waiting for a push.
type Puller interface {
	Ingest

	// Pull returns the next access unit, or ok=false if none is currently
	// available (the stream is skipped this mux_step without error).
	Pull() (au *AccessUnit, ok bool, err error)
}
