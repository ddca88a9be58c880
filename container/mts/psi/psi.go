/*
NAME
  psi.go

DESCRIPTION
  psi.go builds the table-specific payloads carried inside PAT and PMT
  sections: program entries, elementary stream entries, and descriptors
  (including the MPEG-4 IOD and SL descriptors used for Systems signaling).

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

// Program is one program_number/PID pair carried in a PAT payload.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PATPayload builds the table payload (everything after the extended
// section header) for a Program Association Table (§6).
func PATPayload(programs []Program) []byte {
	out := make([]byte, 0, 4*len(programs))
	for _, p := range programs {
		out = append(out,
			byte(p.Number>>8), byte(p.Number),
			0xe0|byte((p.PMTPID>>8)&0x1f), byte(p.PMTPID),
		)
	}
	return out
}

// Descriptor is a single TLV descriptor as carried in program_info or
// ES_info loops (§6).
type Descriptor struct {
	Tag  byte
	Data []byte
}

// Bytes encodes d as tag, length, data.
func (d Descriptor) Bytes() []byte {
	out := make([]byte, 2, 2+len(d.Data))
	out[0] = d.Tag
	out[1] = byte(len(d.Data))
	return append(out, d.Data...)
}

func descriptorsBytes(ds []Descriptor) []byte {
	var out []byte
	for _, d := range ds {
		out = append(out, d.Bytes()...)
	}
	return out
}

// ElementaryStream is one ES entry carried in a PMT payload.
type ElementaryStream struct {
	StreamType  byte
	PID         uint16
	Descriptors []Descriptor
}

func (e ElementaryStream) bytes() []byte {
	info := descriptorsBytes(e.Descriptors)
	out := make([]byte, 5, 5+len(info))
	out[0] = e.StreamType
	out[1] = 0xe0 | byte((e.PID>>8)&0x1f)
	out[2] = byte(e.PID)
	out[3] = 0xf0 | byte((len(info)>>8)&0x03)
	out[4] = byte(len(info))
	return append(out, info...)
}

// PMTPayload builds the table payload for a Program Map Table: the PCR PID,
// optional program-level descriptors (carrying an IOD descriptor when
// MPEG-4 Systems signaling is enabled), and the elementary stream loop
// (§6, §4.6 PMT construction).
func PMTPayload(pcrPID uint16, programInfo []Descriptor, streams []ElementaryStream) []byte {
	info := descriptorsBytes(programInfo)
	out := make([]byte, 4, 4+len(info))
	out[0] = 0xe0 | byte((pcrPID>>8)&0x1f)
	out[1] = byte(pcrPID)
	out[2] = 0xf0 | byte((len(info)>>8)&0x03)
	out[3] = byte(len(info))
	out = append(out, info...)
	for _, s := range streams {
		out = append(out, s.bytes()...)
	}
	return out
}

// IODDescriptor builds the descriptor carrying an MPEG-4 Initial Object
// Descriptor in a PMT's program_info loop (§4.4, §6). scope and label
// identify the object descriptor as the program's root IOD (scope 0x02
// "program", any label); odPID and bifsPID are the elementary PIDs carrying
// the OD and BIFS streams respectively.
func IODDescriptor(scope, label byte, odPID, bifsPID uint16) Descriptor {
	// Minimal form: the scope and label bytes, followed by one ES_Descriptor
	// reference each for the OD and BIFS elementary streams, referenced here
	// by their PIDs as the ES_ID (acceptable since PIDs are unique per
	// program).
	data := []byte{scope, label}
	data = append(data, esDescriptorRef(odPID)...)
	data = append(data, esDescriptorRef(bifsPID)...)
	return Descriptor{Tag: IODTag, Data: data}
}

// esDescriptorRef builds a minimal ES_Descriptor referencing an elementary
// stream by PID, used inside an IOD to point at this program's OD/BIFS
// streams.
func esDescriptorRef(pid uint16) []byte {
	return []byte{0x03, 4, byte(pid >> 8), byte(pid), 0x00, 0x00}
}

// SLDescriptor builds the SL descriptor (§4.4, §6) attached to an
// elementary stream's ES_info loop in a PMT, identifying it as carrying
// SL-packetized access units under the given SL configuration predefined
// value (0x01 for the default, header-only profile this mux uses).
func SLDescriptor(predefined byte) Descriptor {
	return Descriptor{Tag: SLTag, Data: []byte{predefined}}
}
