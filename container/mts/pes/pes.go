/*
NAME
  pes.go - provides encoding of PES packets.

DESCRIPTION
  See Readme.md

AUTHOR
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes provides encoding of PES packets.
package pes

import "github.com/Comcast/gots/v2"

const MaxPesSize = 64 * 1 << 10

// PTS/DTS indicator values (PDI, §4.3).
const (
	PDINone   = 0x0
	PDIPTS    = 0x2
	PDIPTSDTS = 0x3
)

/*
Packet encapsulates the fields of a PES packet.

													PES Packet Formatting
============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | 0x00                                                          |
----------------------------------------------------------------------------
| octet 1  | 0x00                                                          |
----------------------------------------------------------------------------
| octet 2  | 0x01                                                          |
----------------------------------------------------------------------------
| octet 3  | Stream ID                                                     |
----------------------------------------------------------------------------
| octet 4  | PES Packet Length (no of bytes in packet after this field)    |
----------------------------------------------------------------------------
| octet 5  | PES Length cont.                                              |
----------------------------------------------------------------------------
| octet 6  | 0x2           |  SC           | Prior | DAI   | Copyr | Copy  |
----------------------------------------------------------------------------
| octet 7  | PDI           | ESCRF | ESRF  | DSMTMF| ACIF  | CRCF  | EF    |
----------------------------------------------------------------------------
| octet 8  | PES Header Length                                             |
----------------------------------------------------------------------------
| optional | PTS (5 bytes, PDI=2 or 3)                                     |
----------------------------------------------------------------------------
| optional | DTS (5 bytes, PDI=3)                                          |
----------------------------------------------------------------------------
| optional | Data (variable length)                                        |
----------------------------------------------------------------------------
*/
type Packet struct {
	StreamID     byte   // Type of stream.
	Length       uint16 // Pes packet length in bytes after this field.
	SC           byte   // Scrambling control.
	Priority     bool   // Priority Indicator.
	DAI          bool   // Data alignment indicator.
	Copyright    bool   // Copyright indicator.
	Original     bool   // Original data indicator.
	PDI          byte   // PTS/DTS indicator: PDINone, PDIPTS or PDIPTSDTS.
	PTS          uint64 // Presentation time stamp, 90kHz, 33-bit.
	DTS          uint64 // Decoding time stamp, 90kHz, 33-bit.
	Stuff        []byte // Stuffing bytes.
	Data         []byte // Pes packet data.
}

// headerLength returns the PES_header_data_length field value for p's
// current PDI and stuffing.
func (p *Packet) headerLength() byte {
	var n int
	switch p.PDI {
	case PDIPTS:
		n = 5
	case PDIPTSDTS:
		n = 10
	}
	return byte(n + len(p.Stuff))
}

// Bytes encodes p into buf, reusing it as scratch space when it has
// sufficient capacity.
func (p *Packet) Bytes(buf []byte) []byte {
	if buf == nil || cap(buf) < MaxPesSize {
		buf = make([]byte, 0, MaxPesSize)
	}
	buf = buf[:0]
	hl := p.headerLength()
	buf = append(buf, []byte{
		0x00, 0x00, 0x01,
		p.StreamID,
		byte((p.Length & 0xFF00) >> 8),
		byte(p.Length & 0x00FF),
		(0x2<<6 | p.SC<<4 | boolByte(p.Priority)<<3 | boolByte(p.DAI)<<2 |
			boolByte(p.Copyright)<<1 | boolByte(p.Original)),
		(p.PDI << 6),
		hl,
	}...)

	switch p.PDI {
	case PDIPTS:
		ptsIdx := len(buf)
		buf = buf[:ptsIdx+5]
		gots.InsertPTS(buf[ptsIdx:], p.PTS)
	case PDIPTSDTS:
		ptsIdx := len(buf)
		buf = buf[:ptsIdx+5]
		insertTimestamp(buf[ptsIdx:], 0x3, p.PTS)
		dtsIdx := len(buf)
		buf = buf[:dtsIdx+5]
		insertTimestamp(buf[dtsIdx:], 0x1, p.DTS)
	}

	buf = append(buf, p.Stuff...)
	buf = append(buf, p.Data...)
	return buf
}

// insertTimestamp writes a 33-bit, marker-bit-interleaved 90kHz timestamp
// into the first 5 bytes of b, using prefix as the 4-bit field marking it as
// a PTS-only (0010, not used here), PTS-of-a-pair (0011) or DTS (0001)
// timestamp (§4.3). This mirrors gots.InsertPTS's layout so that the same
// bit pattern is used whether or not a DTS follows.
func insertTimestamp(b []byte, prefix byte, ts uint64) {
	b[0] = prefix<<4 | byte((ts>>29)&0x0E) | 0x1
	b[1] = byte(ts >> 22)
	b[2] = byte((ts>>14)&0xFE) | 0x1
	b[3] = byte(ts >> 7)
	b[4] = byte((ts<<1)&0xFE) | 0x1
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
