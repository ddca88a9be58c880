/*
NAME
  pcr.go

DESCRIPTION
  pcr.go provides Program Clock Reference arithmetic: the 27MHz clock
  carried in the adaptation field, derived from packet count and a
  program's randomly chosen initial PCR base (§3, §4.3).

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

// Clock frequencies used throughout the mux.
const (
	PCRFrequency = 27000000 // PCR clock frequency in Hz.
	PTSFrequency = 90000    // PTS/DTS clock frequency in Hz.
	MaxPTS       = (1 << 33) - 1
	MaxPCRBase   = (1 << 33) - 1
	MaxPCRExt    = 300 - 1

	bitsPerPacket = PacketSize * 8 // 1504, per §4.1.
)

// pcrReinsertPeriod is the minimum interval between PCR insertions on a
// program's PCR stream (§3 last_pcr/last_sys_clock, §8 PCR cadence).
const pcrReinsertPeriod = 200 * time.Millisecond

// pcrFor computes the current 27MHz PCR value for a program given the
// number of packets sent since its PCR was initialized, the mux bit rate,
// and the random pcrInitTime base established the first time the PCR
// stream had data (§4.3).
func pcrFor(pckSentSincePcrInit uint64, bitRate uint64, pcrInitTime uint64) uint64 {
	if bitRate == 0 {
		return pcrInitTime
	}
	return PCRFrequency*pckSentSincePcrInit*bitsPerPacket/bitRate + pcrInitTime
}
