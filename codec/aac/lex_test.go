package aac

import (
	"bytes"
	"testing"
)

func TestReadADTSFrame(t *testing.T) {
	// 7-byte ADTS header, profile=AAC-LC(1), sampling index=4 (44.1kHz),
	// channel config=2, frame length = header(7) + payload(3) = 10.
	hdr := []byte{
		0xFF, 0xF1, // syncword:12 | ID:1=0 | layer:2=00 | protection_absent:1=1
		0x50, // profile:2=01 | sfi:4=0100 | private:1=0 | channel MSB:1=0
		0x80, // channel lo:2=10 | orig:1 | home:1 | copyr bit:1 | copyr start:1 | frame len MSB:2=00
		0x01, // frame len mid:8
		0x5F, // frame len LSB:3=010 | buffer fullness MSB:5=11111
		0xFC, // buffer fullness LSB:6=111111 | num raw data blocks:2=00
	}
	payload := []byte{0x01, 0x02, 0x03}
	r := bytes.NewReader(append(append([]byte{}, hdr...), payload...))

	h, p, err := ReadADTSFrame(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Profile != 1 {
		t.Errorf("Profile = %d, want 1", h.Profile)
	}
	if !bytes.Equal(p, payload) {
		t.Errorf("payload = %v, want %v", p, payload)
	}
}

func TestAudioSpecificConfig(t *testing.T) {
	h := &ADTSHeader{
		Profile:                1, // AAC-LC -> object type 2.
		SamplingFrequencyIndex: 4,
		ChannelConfiguration:   2,
	}
	cfg, err := AudioSpecificConfig(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// objectType=2 (00010) | sfi=4 (0100) | chanConf=2 (0010) | 000
	// = 00010 0100 0010 000 = 0x1210
	want := []byte{0x12, 0x10}
	if !bytes.Equal(cfg, want) {
		t.Errorf("AudioSpecificConfig() = %x, want %x", cfg, want)
	}
}
