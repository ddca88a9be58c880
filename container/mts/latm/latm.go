/*
NAME
  latm.go

DESCRIPTION
  latm.go implements LATM/LOAS encapsulation of raw AAC access units (ISO/IEC
  14496-3 Annex 1.7), the transport this mux uses for AAC elementary streams
  instead of bare ADTS: each access unit becomes one LOAS frame carrying an
  AudioMuxElement, with the StreamMuxConfig repeated periodically rather than
  on every frame.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package latm provides LATM/LOAS encapsulation of AAC access units for
// carriage as an MPEG-4 Systems elementary stream.
package latm

import "time"

// LOASSync is the 11-bit LOAS frame sync word (ISO/IEC 14496-3 §1.7.3).
const LOASSync = 0x2B7

// DefaultRepeatRate is how often the StreamMuxConfig is re-sent when the
// caller does not specify a rate, trading off robustness to channel loss
// against per-frame overhead.
const DefaultRepeatRate = 500 * time.Millisecond

// Muxer turns successive raw AAC access units into LOAS frames, re-sending
// the StreamMuxConfig at most once every RepeatRate.
type Muxer struct {
	asc        []byte // 2-byte MPEG-4 AudioSpecificConfig, from codec/aac.AudioSpecificConfig.
	RepeatRate time.Duration

	lastConfigSent time.Time
	sentOnce       bool
}

// NewMuxer returns a Muxer that signals the given AudioSpecificConfig,
// repeating it at most every repeatRate (DefaultRepeatRate if repeatRate is
// zero).
func NewMuxer(asc []byte, repeatRate time.Duration) *Muxer {
	if repeatRate <= 0 {
		repeatRate = DefaultRepeatRate
	}
	return &Muxer{asc: asc, RepeatRate: repeatRate}
}

// Mux wraps a raw AAC access unit (an ADTS payload with the 7-byte header
// stripped) into one LOAS frame, at time now.
func (m *Muxer) Mux(payload []byte, now time.Time) []byte {
	useSame := m.sentOnce && now.Sub(m.lastConfigSent) < m.RepeatRate
	if !useSame {
		m.lastConfigSent = now
		m.sentOnce = true
	}

	var bw bitWriter
	bw.writeBit(boolBit(useSame))
	if !useSame {
		m.writeStreamMuxConfig(&bw)
	}
	ame := bw.bytes()

	ame = append(ame, payloadLengthInfo(len(payload))...)
	ame = append(ame, payload...)

	var out bitWriter
	out.writeBits(LOASSync, 11)
	out.writeBits(uint64(len(ame)), 13)
	framed := out.bytes()
	return append(framed, ame...)
}

// writeStreamMuxConfig appends a minimal, single-program, single-layer
// StreamMuxConfig (audioMuxVersion 0, frameLengthType 0 i.e. variable
// length signaled via PayloadLengthInfo) carrying m's AudioSpecificConfig.
func (m *Muxer) writeStreamMuxConfig(bw *bitWriter) {
	bw.writeBit(0) // audioMuxVersion = 0.
	bw.writeBit(1) // allStreamsSameTimeFraming.
	bw.writeBits(0, 6) // numSubFrames - 1 = 0.
	bw.writeBits(0, 4) // numProgram - 1 = 0.
	bw.writeBits(0, 3) // numLayer - 1 = 0.

	// useSameConfig = 0: an AudioSpecificConfig follows, bit-packed.
	bw.writeBit(0)
	for _, b := range m.asc {
		bw.writeBits(uint64(b), 8)
	}

	bw.writeBits(0, 3) // frameLengthType = 0: variable frame length.
	bw.writeBits(0xFF, 8) // latmBufferFullness: unspecified/VBR.
	bw.writeBit(0)        // otherDataPresent = 0.
	bw.writeBit(0)        // crcCheckPresent = 0.
}

// payloadLengthInfo encodes n as a run of 0xFF bytes followed by the
// remainder, byte-aligned (ISO/IEC 14496-3 §1.7.3 PayloadLengthInfo, for
// frameLengthType 0).
func payloadLengthInfo(n int) []byte {
	var out []byte
	for n >= 255 {
		out = append(out, 0xFF)
		n -= 255
	}
	return append(out, byte(n))
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// bitWriter accumulates bits MSB-first into a byte slice, padding the final
// byte with zero bits.
type bitWriter struct {
	buf  []byte
	acc  uint64
	nacc uint
}

func (w *bitWriter) writeBit(v uint64) { w.writeBits(v, 1) }

func (w *bitWriter) writeBits(v uint64, n uint) {
	w.acc = w.acc<<n | (v & (1<<n - 1))
	w.nacc += n
	for w.nacc >= 8 {
		w.nacc -= 8
		w.buf = append(w.buf, byte(w.acc>>w.nacc))
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nacc > 0 {
		w.buf = append(w.buf, byte(w.acc<<(8-w.nacc)))
		w.nacc = 0
	}
	return w.buf
}
