/*
NAME
  mpegts.go - provides a data structure intended to encapsulate the properties
  of an MPEG-TS packet and also functions to allow manipulation of these packets.

DESCRIPTION
  See Readme.md

AUTHORS
  Saxon A. Nelson-Milton <saxon.milton@gmail.com>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mts provides encoding of an MPEG-2 Transport Stream: PAT/PMT
// generation, PES packetization, PCR insertion and the multiplex scheduler
// that interleaves a set of elementary streams into a single packet stream.
package mts

// PacketSize is the size in bytes of an MPEG-TS packet.
const PacketSize = 188

// Reserved and standard program IDs.
const (
	PatPid  = 0x0000
	NullPid = 0x1FFF
)

// HeadSize is the size of an MPEG-TS packet header.
const HeadSize = 4

// Consts relating to the adaptation field.
const (
	AdaptationIdx         = 4 // Index of the adaptation field length (AFL).
	AdaptationControlIdx  = 3 // Index of the octet carrying the adaptation field control.
	AdaptationControlMask = 0x30
)

// Adaptation field control values (AFC, 2 bits).
const (
	AFCPayloadOnly           = 0x1
	AFCAdaptationOnly        = 0x2
	AFCAdaptationAndPayload  = 0x3
)

/*
Packet encapsulates the fields of an MPEG-TS packet. Below is the formatting
of an MPEG-TS packet for reference.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | sync byte (0x47)                                              |
----------------------------------------------------------------------------
| octet 1  | TEI   | PUSI  | Prior | PID                                   |
----------------------------------------------------------------------------
| octet 2  | PID cont.                                                     |
----------------------------------------------------------------------------
| octet 3  | TSC           | AFC           | CC                            |
----------------------------------------------------------------------------
| octet 4  | AFL                                                           |
----------------------------------------------------------------------------
| octet 5  | DI    | RAI   | ESPI  | PCRF  | OPCRF | SPF   | TPDF  | AFEF  |
----------------------------------------------------------------------------
| optional | PCR (48 bits => 6 bytes)                                      |
----------------------------------------------------------------------------
| optional | Stuffing (variable length)                                    |
----------------------------------------------------------------------------
| optional | Payload (variable length)                                     |
----------------------------------------------------------------------------
*/
type Packet struct {
	TEI      bool   // Transport error indicator.
	PUSI     bool   // Payload unit start indicator.
	Priority bool   // Transport priority indicator.
	PID      uint16 // Packet identifier.
	TSC      byte   // Transport scrambling control.
	AFC      byte   // Adaptation field control.
	CC       byte   // Continuity counter.
	DI       bool   // Discontinuity indicator.
	RAI      bool   // Random access indicator.
	ESPI     bool   // Elementary stream priority indicator.
	PCRF     bool   // PCR flag.
	PCR      uint64 // Program clock reference (27 MHz units: base*300+ext).
	Payload  []byte // MPEG-TS payload.
}

// FillPayload copies as much of data as fits into p's Payload, given any
// space already reserved by the adaptation field, and returns the number of
// bytes consumed.
func (p *Packet) FillPayload(data []byte) int {
	afReserve := 0
	if p.AFC&AFCAdaptationOnly != 0 || p.PCRF {
		afReserve = 2 // AF length + flags byte.
		if p.PCRF {
			afReserve += 6 // PCR.
		}
	}
	max := PacketSize - HeadSize - afReserve
	if len(data) > max {
		p.Payload = make([]byte, max)
	} else {
		p.Payload = make([]byte, len(data))
	}
	return copy(p.Payload, data)
}

// Bytes interprets the fields of the TS packet instance and outputs a
// corresponding 188-byte slice. buf is reused as scratch space when it has
// sufficient capacity.
func (p *Packet) Bytes(buf []byte) []byte {
	if buf == nil || cap(buf) < PacketSize {
		buf = make([]byte, PacketSize)
	}
	buf = buf[:4]
	buf[0] = 0x47
	buf[1] = asByte(p.TEI)<<7 | asByte(p.PUSI)<<6 | asByte(p.Priority)<<5 | byte((p.PID&0xFF00)>>8)
	buf[2] = byte(p.PID & 0x00FF)
	buf[3] = p.TSC<<6 | p.AFC<<4 | p.CC

	hasAF := p.AFC&AFCAdaptationOnly != 0
	var maxPayloadSize int
	if hasAF {
		maxPayloadSize = PacketSize - 6 - asInt(p.PCRF)*6
	} else {
		maxPayloadSize = PacketSize - HeadSize
	}

	stuffingLen := maxPayloadSize - len(p.Payload)
	if hasAF {
		buf = append(buf, byte(1+stuffingLen+asInt(p.PCRF)*6))
		buf = append(buf, asByte(p.DI)<<7|asByte(p.RAI)<<6|asByte(p.ESPI)<<5|asByte(p.PCRF)<<4)
	}

	if p.PCRF {
		base := p.PCR / 300
		ext := p.PCR % 300
		buf = append(buf,
			byte(base>>25),
			byte(base>>17),
			byte(base>>9),
			byte(base>>1),
			byte(base<<7)|0x7E|byte(ext>>8),
			byte(ext),
		)
	}

	for i := 0; i < stuffingLen; i++ {
		buf = append(buf, 0xFF)
	}
	curLen := len(buf)
	buf = buf[:PacketSize]
	copy(buf[curLen:], p.Payload)
	return buf
}

func asInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
