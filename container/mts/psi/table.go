/*
NAME
  table.go

DESCRIPTION
  table.go implements the PSI/MPEG-4 section engine: table segmentation,
  versioning, CRC, and the carousel drain cursor used to turn a table's
  payload into a sequence of 183/184-byte section chunks for packetization.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding of MPEG-TS program specific information and
// MPEG-4 Systems sections: PAT/PMT payload construction, generic table
// segmentation with CRC and versioning, and carousel retransmission.
package psi

import (
	"encoding/binary"
	"fmt"
)

// Table IDs (§6).
const (
	TableIDPAT  = 0x00
	TableIDPMT  = 0x02
	TableIDOD   = 0x10 // MPEG-4 Object Descriptor stream section.
	TableIDBIFS = 0x11 // MPEG-4 BIFS stream section.
)

// Descriptor tags (§6).
const (
	MetadataTag = 0x26
	IODTag      = 0x1D
	SLTag       = 0x1F
)

// Maximum section length per table family (§4.2 step 3).
const (
	maxSectionLenPSI   = 1024
	maxSectionLenMPEG4 = 4096
)

var errUnsupportedTableID = fmt.Errorf("unsupported table_id for section generation")

func maxSectionLen(tableID byte) (int, error) {
	switch tableID {
	case TableIDPAT, TableIDPMT:
		return maxSectionLenPSI, nil
	case TableIDOD, TableIDBIFS:
		return maxSectionLenMPEG4, nil
	default:
		return 0, errUnsupportedTableID
	}
}

// Section is one section of a Table, fully encoded (header, optional
// extended header, payload slice and optional CRC).
type Section struct {
	Data []byte
}

// Table is a PSI or MPEG-4 section table, tracked across carousel refreshes.
// Version increments mod 32 every time UpdateTable/UpdateTableMPEG4 change
// its payload.
type Table struct {
	TableID  byte
	Version  byte
	Sections []Section

	// RefreshRateMs records a carousel repeat period in milliseconds.
	// TableSet.Read does not consult it: the refreshRateMs argument passed
	// to Read decides whether the cursor wraps.
	RefreshRateMs int
}

// TableSet is the ordered collection of Tables owned by a section stream
// (e.g. the PAT stream, a program's PMT stream, or an MPEG-4 OD/BIFS
// stream), plus the cursor used to drain it packet by packet (§3 Stream,
// §4.2 table_next_packet).
type TableSet struct {
	Tables []*Table

	tableIdx   int
	sectionIdx int
	offset     int
	wrapped    bool // Set by the most recent Read call that carousel-wrapped the cursor.
}

// find returns the table with the given id, or nil.
func (ts *TableSet) find(tableID byte) *Table {
	for _, t := range ts.Tables {
		if t.TableID == tableID {
			return t
		}
	}
	return nil
}

// Options configures section generation for UpdateTable.
type Options struct {
	UseSyntaxIndicator bool
	PrivateIndicator   bool
	UseChecksum        bool
}

// UpdateTable (re)builds the sections of the table identified by tableID in
// ts, replacing its payload with payload (§4.2 steps 1-8). If a table with
// tableID already exists its version increments mod 32; otherwise a new
// table is allocated with version 0. An empty payload clears the table's
// sections (it is considered up to date but carries nothing). ResetCursor
// should be called by the owner after any call that changes ts's contents
// so that the PID it is emitted on restarts draining from the head.
func UpdateTable(ts *TableSet, tableID byte, ext uint16, payload []byte, opts Options) (*Table, error) {
	t := ts.allocTable(tableID)
	if len(payload) == 0 {
		return t, nil
	}

	overhead, err := sectionOverhead(tableID, opts, 0)
	if err != nil {
		return nil, err
	}
	chunk := overhead.maxLen - overhead.fixed
	if chunk <= 0 {
		return nil, fmt.Errorf("section overhead %d leaves no room for payload in table_id 0x%02x", overhead.fixed, tableID)
	}

	nbSections := (len(payload) + chunk - 1) / chunk
	sections := make([]Section, 0, nbSections)
	for i := 0; i < nbSections; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(payload) {
			end = len(payload)
		}
		sections = append(sections, buildSection(tableID, ext, t.Version, byte(i), byte(nbSections-1), payload[start:end], opts))
	}
	t.Sections = sections
	return t, nil
}

// UpdateTableMPEG4 behaves like UpdateTable, but first wraps payload in
// per-section SL framing (§4.2 update_table_mpeg4): when the access unit
// does not fit in a single section it is fragmented, and each fragment
// carries its own SL header built by slHeader(first, last) — only the
// first fragment's header sets accessUnitStartFlag, only the last sets
// accessUnitEndFlag, and any middle fragments set neither.
func UpdateTableMPEG4(ts *TableSet, tableID byte, ext uint16, payload []byte, slHeaderSize int, slHeader func(first, last bool) []byte, opts Options) (*Table, error) {
	t := ts.allocTable(tableID)
	if len(payload) == 0 {
		return t, nil
	}

	overhead, err := sectionOverhead(tableID, opts, slHeaderSize)
	if err != nil {
		return nil, err
	}
	chunk := overhead.maxLen - overhead.fixed
	if chunk <= 0 {
		return nil, fmt.Errorf("section overhead %d leaves no room for an SL-framed payload in table_id 0x%02x", overhead.fixed, tableID)
	}

	nbSections := (len(payload) + chunk - 1) / chunk
	sections := make([]Section, 0, nbSections)
	for i := 0; i < nbSections; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(payload) {
			end = len(payload)
		}
		first, last := i == 0, i == nbSections-1
		fragment := append(slHeader(first, last), payload[start:end]...)
		sections = append(sections, buildSection(tableID, ext, t.Version, byte(i), byte(nbSections-1), fragment, opts))
	}
	t.Sections = sections
	return t, nil
}

// allocTable finds or allocates the table identified by tableID, bumping
// its version (mod 32) and clearing its sections if it already existed
// (§4.2 step 1).
func (ts *TableSet) allocTable(tableID byte) *Table {
	t := ts.find(tableID)
	if t == nil {
		t = &Table{TableID: tableID}
		ts.Tables = append(ts.Tables, t)
	} else {
		t.Version = (t.Version + 1) % 32
		t.Sections = nil
	}
	return t
}

// sectionOverhead reports the maximum section length for tableID and the
// fixed per-section overhead (header, extended header, CRC, and any SL
// framing) that payload bytes must be chunked around.
type overheadBudget struct {
	maxLen int
	fixed  int
}

func sectionOverhead(tableID byte, opts Options, slHeaderSize int) (overheadBudget, error) {
	maxLen, err := maxSectionLen(tableID)
	if err != nil {
		return overheadBudget{}, err
	}
	fixed := 3 + slHeaderSize
	if opts.UseSyntaxIndicator {
		fixed += 5
	}
	if opts.UseChecksum {
		fixed += 4
	}
	return overheadBudget{maxLen: maxLen, fixed: fixed}, nil
}

// buildSection writes one section's bytes per §4.2 step 6-7.
func buildSection(tableID byte, ext uint16, version, sectionNum, lastSectionNum byte, data []byte, opts Options) Section {
	sectionLen := len(data)
	if opts.UseSyntaxIndicator {
		sectionLen += 5
	}
	if opts.UseChecksum {
		sectionLen += 4
	}

	out := make([]byte, 0, 3+sectionLen)
	out = append(out, tableID)

	b1 := byte(0x30) // reserved '11'.
	if opts.UseSyntaxIndicator {
		b1 |= 0x80
	}
	if opts.PrivateIndicator {
		b1 |= 0x40
	}
	b1 |= byte((sectionLen >> 8) & 0x0F)
	out = append(out, b1, byte(sectionLen))

	if opts.UseSyntaxIndicator {
		out = append(out, byte(ext>>8), byte(ext))
		out = append(out, 0xC0|(version<<1)|0x01) // reserved '11' | version:5 | current_next=1.
		out = append(out, sectionNum, lastSectionNum)
	}

	out = append(out, data...)

	if opts.UseChecksum {
		out = AddCRCPlaceholder(out)
		UpdateCrc(out)
	}
	return Section{Data: out}
}

// AddCRCPlaceholder appends four zero bytes to out, to be filled by UpdateCrc.
func AddCRCPlaceholder(out []byte) []byte {
	return append(out, 0, 0, 0, 0)
}

// Bitrate estimates the section stream's bit rate for its current payload
// given the carousel refresh rate (§4.2 Bitrate). A refreshRateMs of 0 uses
// the 500ms default.
func (ts *TableSet) Bitrate(refreshRateMs int) uint64 {
	if refreshRateMs <= 0 {
		refreshRateMs = 500
	}
	var total int
	for _, t := range ts.Tables {
		for _, s := range t.Sections {
			total += len(s.Data)
		}
	}
	return uint64(total) * 8 * 1000 / uint64(refreshRateMs)
}

// ResetCursor rewinds the drain cursor to the head of the table set (§4.2
// step 8, "reset draining cursor").
func (ts *TableSet) ResetCursor() {
	ts.tableIdx, ts.sectionIdx, ts.offset = 0, 0, 0
}

// currentSection returns the section at the cursor, or false if the cursor
// has run past the end of the table set.
func (ts *TableSet) currentSection() (*Section, bool) {
	for ts.tableIdx < len(ts.Tables) {
		t := ts.Tables[ts.tableIdx]
		if ts.sectionIdx < len(t.Sections) {
			return &t.Sections[ts.sectionIdx], true
		}
		ts.tableIdx++
		ts.sectionIdx = 0
	}
	return nil, false
}

// AtSectionStart reports whether the cursor is at the first byte of a
// section (i.e. the next Read call begins a new section, so a payload unit
// start indicator and pointer_field are due).
func (ts *TableSet) AtSectionStart() bool {
	_, ok := ts.currentSection()
	return ok && ts.offset == 0
}

// Done reports whether the cursor has drained every section of every table
// with no carousel repeat pending.
func (ts *TableSet) Done() bool {
	_, ok := ts.currentSection()
	return !ok
}

// Read returns up to n bytes of the current section from the drain cursor's
// position (a slice of the section, not a copy), advancing the cursor past
// them. It never reads past the end of one section. refreshRateMs > 0 makes the cursor
// wrap back to the first table once the last section of the last table has
// been fully drained (the carousel, §4.2 step 8); refreshRateMs == 0 leaves
// the cursor exhausted (Done() then reports true) so the table is sent once.
func (ts *TableSet) Read(n int, refreshRateMs int) []byte {
	ts.wrapped = false
	sec, ok := ts.currentSection()
	if !ok {
		return nil
	}
	remaining := sec.Data[ts.offset:]
	take := n
	if take > len(remaining) {
		take = len(remaining)
	}
	out := remaining[:take]
	ts.offset += take

	if ts.offset >= len(sec.Data) {
		ts.offset = 0
		ts.sectionIdx++
		if ts.tableIdx < len(ts.Tables) && ts.sectionIdx >= len(ts.Tables[ts.tableIdx].Sections) {
			ts.tableIdx++
			ts.sectionIdx = 0
		}
		if ts.tableIdx >= len(ts.Tables) && refreshRateMs > 0 {
			ts.ResetCursor()
			ts.wrapped = true
		}
	}
	return out
}

// Wrapped reports whether the most recent Read call completed a full
// carousel cycle and wrapped the cursor back to the first table, signaling
// the caller to reschedule the next cycle's start time.
func (ts *TableSet) Wrapped() bool { return ts.wrapped }

// uint16At is a small helper for tests that need to read a big-endian
// uint16 out of raw section bytes.
func uint16At(b []byte, i int) uint16 {
	return binary.BigEndian.Uint16(b[i:])
}
