package h264

import "testing"

func TestNALType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{
			name: "sps with 4 byte start code",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00},
			want: NALTypeSPS,
		},
		{
			name: "idr with 3 byte start code",
			data: []byte{0x00, 0x00, 0x01, 0x65, 0xff},
			want: NALTypeIDR,
		},
		{
			name: "access unit delimiter skipped",
			data: []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xf0, 0x00, 0x00, 0x00, 0x01, 0x61, 0xff},
			want: NALTypeNonIDR,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := NALType(test.data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != test.want {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestNALTypeNotEnoughBytes(t *testing.T) {
	_, err := NALType([]byte{0x00, 0x00})
	if err != errNotEnoughBytes {
		t.Errorf("got %v, want %v", err, errNotEnoughBytes)
	}
}
