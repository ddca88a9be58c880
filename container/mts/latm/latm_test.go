package latm

import (
	"testing"
	"time"
)

func TestMuxFirstFrameSendsConfig(t *testing.T) {
	asc := []byte{0x12, 0x10}
	m := NewMuxer(asc, 500*time.Millisecond)
	now := time.Unix(0, 0)

	frame := m.Mux([]byte{0xAA, 0xBB, 0xCC}, now)
	if len(frame) < 3 {
		t.Fatalf("frame too short: %d bytes", len(frame))
	}
	// useSameStreamMux must be 0 (bit 0 of the 4th byte, right after the
	// 24-bit LOAS header) on the very first frame.
	if frame[3]&0x80 != 0 {
		t.Errorf("first frame set useSameStreamMux, want StreamMuxConfig present")
	}
}

func TestMuxRepeatsConfigAfterRate(t *testing.T) {
	m := NewMuxer([]byte{0x12, 0x10}, 10*time.Millisecond)
	t0 := time.Unix(0, 0)
	m.Mux([]byte{0x01}, t0)

	soon := t0.Add(1 * time.Millisecond)
	frame := m.Mux([]byte{0x02}, soon)
	if frame[3]&0x80 == 0 {
		t.Errorf("frame within RepeatRate should reuse config (useSameStreamMux=1)")
	}

	later := t0.Add(20 * time.Millisecond)
	frame = m.Mux([]byte{0x03}, later)
	if frame[3]&0x80 != 0 {
		t.Errorf("frame past RepeatRate should resend config (useSameStreamMux=0)")
	}
}

func TestPayloadLengthInfo(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{10, []byte{0x0A}},
		{255, []byte{0xFF, 0x00}},
		{256, []byte{0xFF, 0x01}},
		{510, []byte{0xFF, 0xFF, 0x00}},
	}
	for _, c := range cases {
		got := payloadLengthInfo(c.n)
		if len(got) != len(c.want) {
			t.Errorf("payloadLengthInfo(%d) = %x, want %x", c.n, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("payloadLengthInfo(%d) = %x, want %x", c.n, got, c.want)
				break
			}
		}
	}
}
