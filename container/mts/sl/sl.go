/*
NAME
  sl.go

DESCRIPTION
  sl.go implements MPEG-4 Systems Sync Layer (SL) packetization: wrapping
  access units from an MPEG-4 elementary stream (object descriptors, BIFS
  commands, or LATM audio) with a minimal SL header before they are carried
  in a PES or section stream.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package sl provides MPEG-4 Systems Sync Layer packetization (ISO/IEC
// 14496-1 §9, Annex I). Only the minimal, predefined SLConfigDescriptor
// this mux signals (predefined value 0x01) is supported: no OCR, no
// idle/padding flags, no degradation priority, no packet sequence number.
package sl

import "fmt"

// Predefined is the SLConfigDescriptor predefinedSLValue for the header
// layout this package writes (psi.SLDescriptor carries such a value; the mux
// itself does not attach one): fixed-length headers consisting only of
// accessUnitStartFlag, accessUnitEndFlag, randomAccessPointFlag and an
// optional composition time stamp.
const Predefined = 0x01

// TimestampBits is the width of the composition/decoding time stamp field,
// matching the 90kHz PES timestamp width so access unit times round-trip
// exactly between the SL and PES layers.
const TimestampBits = 33

// Header is the set of per-access-unit SL header fields this mux writes.
type Header struct {
	AUStart bool
	AUEnd   bool
	RAP     bool   // Random access point: this AU can be a decoding entry point.
	HasCTS  bool   // Composition time stamp present.
	CTS     uint64 // 33-bit composition time stamp, in the stream's declared timescale.
}

// Bytes encodes h as a bit-packed, byte-aligned SL header. Without HasCTS it
// is a single flags byte (AUStart, AUEnd, RAP, HasCTS, then four zero bits).
// With HasCTS the four flag bits are followed directly by the 33-bit CTS
// value MSB-first, and the 37 bits are zero-padded to five bytes in all.
func (h Header) Bytes() []byte {
	flags := byte(0)
	if h.AUStart {
		flags |= 0x80
	}
	if h.AUEnd {
		flags |= 0x40
	}
	if h.RAP {
		flags |= 0x20
	}
	if h.HasCTS {
		flags |= 0x10
	}
	if !h.HasCTS {
		return []byte{flags}
	}

	// Pack flags(4 bits used, 4 spare) followed immediately by the 33-bit
	// CTS, most significant bit first, using a small running bit buffer.
	var bw bitWriter
	bw.writeBits(uint64(flags)>>4, 4)
	bw.writeBits(h.CTS, TimestampBits)
	return bw.bytes()
}

// HeaderSize returns the encoded size in bytes of a header with the given
// HasCTS setting, used to size per-section SL fragment budgets.
func HeaderSize(hasCTS bool) int {
	if !hasCTS {
		return 1
	}
	return (4 + TimestampBits + 7) / 8
}

// ParseHeader decodes the SL header at the start of b, returning the
// decoded Header, the header's length in bytes, and an error if b is too
// short.
func ParseHeader(b []byte, hasCTS bool) (Header, int, error) {
	if len(b) < 1 {
		return Header{}, 0, fmt.Errorf("sl: short header")
	}
	h := Header{
		AUStart: b[0]&0x80 != 0,
		AUEnd:   b[0]&0x40 != 0,
		RAP:     b[0]&0x20 != 0,
		HasCTS:  b[0]&0x10 != 0,
	}
	if !h.HasCTS {
		return h, 1, nil
	}
	n := HeaderSize(true)
	if len(b) < n {
		return Header{}, 0, fmt.Errorf("sl: short header with timestamp: have %d, need %d", len(b), n)
	}
	var br bitReader
	br.b = b
	br.readBits(4) // Skip the flags nibble already decoded above.
	h.CTS = br.readBits(TimestampBits)
	return h, n, nil
}

// bitWriter accumulates bits MSB-first into a byte slice.
type bitWriter struct {
	buf  []byte
	acc  uint64
	nacc uint
}

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

// bitReader reads bits MSB-first from a byte slice, starting at its head.
type bitReader struct {
	b    []byte
	pos  int // Bit position from the start of b.
}

func (r *bitReader) readBits(n uint) uint64 {
	var v uint64
	for i := uint(0); i < n; i++ {
		byteIdx := r.pos / 8
		bitIdx := 7 - uint(r.pos%8)
		bit := uint64(0)
		if byteIdx < len(r.b) {
			bit = uint64(r.b[byteIdx]>>bitIdx) & 1
		}
		v = v<<1 | bit
		r.pos++
	}
	return v
}
