/*
DESCRIPTION
  options.go provides option functions passed to NewMuxer for mux-wide
  configuration: output bit rate, real-time pacing, transport stream ID and
  MPEG-4 Systems signaling.

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import "errors"

var ErrInvalidBitRate = errors.New("invalid bit rate")

// FixedBitrate configures the mux for constant bit rate output: mux_step
// inserts NULL packets when no program has data due, and PCR is
// extrapolated from this rate rather than the wall clock (§4.3, §4.6).
func FixedBitrate(bitsPerSecond uint64) func(*Muxer) error {
	return func(m *Muxer) error {
		if bitsPerSecond == 0 {
			return ErrInvalidBitRate
		}
		m.bitRate = bitsPerSecond
		m.log.Debug("configured for fixed bit rate", "bit_rate", bitsPerSecond)
		return nil
	}
}

// RealTime configures the mux so Step never busy-pads with NULL packets;
// instead it returns ok=false when no program has data due, leaving pacing
// to the caller's own clock (§4.6).
func RealTime() func(*Muxer) error {
	return func(m *Muxer) error {
		m.realTime = true
		m.log.Debug("configured for real-time pacing")
		return nil
	}
}

// TransportStreamID sets the transport_stream_id carried in the PAT
// (table_id_extension, §6). Defaults to 0.
func TransportStreamID(id uint16) func(*Muxer) error {
	return func(m *Muxer) error {
		m.tsID = id
		m.log.Debug("configured transport stream id", "ts_id", id)
		return nil
	}
}

// MPEG4Signaling marks the mux as carrying MPEG-4 Systems content. It only
// records the mode on the Muxer: it adds no stream and no descriptor, nothing
// in this package reads the flag, and Program.EnableMPEG4Signaling works
// whether or not it is set.
func MPEG4Signaling() func(*Muxer) error {
	return func(m *Muxer) error {
		m.mpeg4Signaling = true
		m.log.Debug("configured for MPEG-4 Systems signaling")
		return nil
	}
}
