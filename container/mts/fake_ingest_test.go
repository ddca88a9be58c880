package mts

import "time"

// fakePuller is a minimal pull-mode Ingest for exercising Stream/Program/Muxer
// scheduling without a real codec: it serves a fixed slice of access units
// and then reports CapStreamIsOver.
type fakePuller struct {
	streamType byte
	timescale  uint64
	bitRate    uint64
	cfg        []byte
	caps       Capability
	aus        []*AccessUnit
	idx        int
}

func (f *fakePuller) StreamType() byte              { return f.streamType }
func (f *fakePuller) ObjectTypeIndication() byte     { return 0 }
func (f *fakePuller) Timescale() uint64              { return f.timescale }
func (f *fakePuller) BitRate() uint64                { return f.bitRate }
func (f *fakePuller) DecoderConfig() []byte          { return f.cfg }
func (f *fakePuller) RepeatRate() time.Duration      { return 0 }
func (f *fakePuller) Capabilities() Capability       { return f.caps | CapAUPull }
func (f *fakePuller) Control(op CtrlOp) error        { return nil }

func (f *fakePuller) Pull() (*AccessUnit, bool, error) {
	if f.idx >= len(f.aus) {
		return nil, false, nil
	}
	au := f.aus[f.idx]
	f.idx++
	return au, true, nil
}

func (f *fakePuller) exhausted() bool { return f.idx >= len(f.aus) }

// fakePusher is a minimal push-mode Ingest (no Pull method), for exercising
// Stream.Push and the queue-drain path.
type fakePusher struct {
	streamType byte
	timescale  uint64
	done       bool
}

func (f *fakePusher) StreamType() byte          { return f.streamType }
func (f *fakePusher) ObjectTypeIndication() byte { return 0 }
func (f *fakePusher) Timescale() uint64          { return f.timescale }
func (f *fakePusher) BitRate() uint64            { return 0 }
func (f *fakePusher) DecoderConfig() []byte      { return nil }
func (f *fakePusher) RepeatRate() time.Duration  { return 0 }
func (f *fakePusher) Control(op CtrlOp) error    { return nil }
func (f *fakePusher) Capabilities() Capability {
	if f.done {
		return CapStreamIsOver
	}
	return 0
}
