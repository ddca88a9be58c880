package psi

import (
	"bytes"
	"testing"
)

func TestPATPayload(t *testing.T) {
	got := PATPayload([]Program{{Number: 1, PMTPID: 0x1000}, {Number: 2, PMTPID: 0x1001}})
	want := []byte{
		0x00, 0x01, 0xe0 | 0x10, 0x00,
		0x00, 0x02, 0xe0 | 0x10, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("PATPayload() = %x, want %x", got, want)
	}
}

func TestPMTPayloadNoDescriptors(t *testing.T) {
	got := PMTPayload(0x0100, nil, []ElementaryStream{{StreamType: 0x1B, PID: 0x0100}})
	want := []byte{
		0xe0 | 0x01, 0x00, // PCR_PID.
		0xf0, 0x00, // program_info_length = 0.
		0x1B, 0xe0 | 0x01, 0x00, 0xf0, 0x00, // ES entry, ES_info_length = 0.
	}
	if !bytes.Equal(got, want) {
		t.Errorf("PMTPayload() = %x, want %x", got, want)
	}
}

func TestPMTPayloadWithIODAndSLDescriptors(t *testing.T) {
	iod := IODDescriptor(0x02, 0x01, 0x0200, 0x0201)
	sld := SLDescriptor(0x01)
	got := PMTPayload(0x0100, []Descriptor{iod}, []ElementaryStream{
		{StreamType: 0x12, PID: 0x0100, Descriptors: []Descriptor{sld}},
	})

	if got[0] != 0xe0|0x01 || got[1] != 0x00 {
		t.Fatalf("PCR_PID not encoded correctly: %x", got[:2])
	}
	progInfoLen := int(got[2]&0x0F)<<8 | int(got[3])
	if progInfoLen != len(iod.Bytes()) {
		t.Errorf("program_info_length = %d, want %d", progInfoLen, len(iod.Bytes()))
	}
	if got[4] != IODTag {
		t.Errorf("first program descriptor tag = 0x%02x, want IOD tag 0x%02x", got[4], IODTag)
	}

	esStart := 4 + progInfoLen
	if got[esStart] != 0x12 {
		t.Errorf("ES stream_type = 0x%02x, want 0x12", got[esStart])
	}
	esInfoLen := int(got[esStart+3]&0x03)<<8 | int(got[esStart+4])
	if esInfoLen != len(sld.Bytes()) {
		t.Errorf("ES_info_length = %d, want %d", esInfoLen, len(sld.Bytes()))
	}
	if got[esStart+5] != SLTag {
		t.Errorf("ES descriptor tag = 0x%02x, want SL tag 0x%02x", got[esStart+5], SLTag)
	}
}

func TestDescriptorBytes(t *testing.T) {
	d := Descriptor{Tag: 0x1F, Data: []byte{0x01}}
	got := d.Bytes()
	want := []byte{0x1F, 0x01, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %x, want %x", got, want)
	}
}
