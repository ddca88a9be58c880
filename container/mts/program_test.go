package mts

import (
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

func TestAddStreamPrefersVideoForPCR(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := NewProgram(1, 0x1000, patRefreshRateMs, log)

	audio := NewPESStream(0x101, 0xC0, &fakePuller{streamType: 0x0F, timescale: 90000}, false, nil, log)
	if err := p.AddStream(audio, 0x0F, nil); err != nil {
		t.Fatalf("AddStream(audio): %v", err)
	}
	if p.pcrStream != audio {
		t.Fatalf("expected the first stream (audio) to be the initial PCR carrier")
	}

	video := NewPESStream(0x102, 0xE0, &fakePuller{streamType: 0x1B, timescale: 90000}, false, nil, log)
	if err := p.AddStream(video, 0x1B, nil); err != nil {
		t.Fatalf("AddStream(video): %v", err)
	}
	if p.pcrStream != video {
		t.Errorf("expected a later video stream to displace a non-video PCR carrier")
	}

	// A second video stream must not displace the first.
	video2 := NewPESStream(0x103, 0xE1, &fakePuller{streamType: 0x1B, timescale: 90000}, false, nil, log)
	if err := p.AddStream(video2, 0x1B, nil); err != nil {
		t.Fatalf("AddStream(video2): %v", err)
	}
	if p.pcrStream != video {
		t.Errorf("expected PCR carrier to remain the first video stream")
	}
}

func TestRebuildPMTReflectsPCRPID(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := NewProgram(1, 0x1000, patRefreshRateMs, log)
	video := NewPESStream(0x102, 0xE0, &fakePuller{streamType: 0x1B, timescale: 90000}, false, nil, log)
	if err := p.AddStream(video, 0x1B, nil); err != nil {
		t.Fatalf("AddStream: %v", err)
	}

	pmtSection := p.PMT.Tables().Tables[0].Sections[0].Data
	// Skip table_id(1) + flags/length(2) + table_id_ext/version/section_nums(5) = 8 bytes to PCR_PID.
	pcrPID := uint16(pmtSection[8]&0x1F)<<8 | uint16(pmtSection[9])
	if pcrPID != 0x102 {
		t.Errorf("PCR_PID in PMT = 0x%x, want 0x102", pcrPID)
	}
}

func TestEnableMPEG4SignalingAddsIOD(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := NewProgram(1, 0x1000, patRefreshRateMs, log)
	video := NewPESStream(0x102, 0xE0, &fakePuller{streamType: 0x1B, timescale: 90000}, false, nil, log)
	if err := p.AddStream(video, 0x1B, nil); err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if err := p.EnableMPEG4Signaling(0x200, 0x201); err != nil {
		t.Fatalf("EnableMPEG4Signaling: %v", err)
	}

	pmtSection := p.PMT.Tables().Tables[0].Sections[0].Data
	progInfoLen := int(pmtSection[10]&0x0F)<<8 | int(pmtSection[11])
	if progInfoLen == 0 {
		t.Fatalf("program_info_length = 0, want > 0 after EnableMPEG4Signaling")
	}
	if pmtSection[12] != 0x1D { // psi.IODTag
		t.Errorf("first program descriptor tag = 0x%02x, want IOD tag 0x1D", pmtSection[12])
	}
}

func TestPcrDueCadence(t *testing.T) {
	log := (*logging.TestLogger)(t)
	p := NewProgram(1, 0x1000, patRefreshRateMs, log)
	if !p.pcrDue(time.Now()) {
		t.Errorf("expected PCR due before any PCR has ever been sent")
	}
}
