/*
NAME
  time.go

DESCRIPTION
  time.go implements the mux time model: a {seconds, nanoseconds} pair
  advanced by rational increments at nanosecond resolution, used to schedule packet
  emission against a target bitrate or the real-time clock.

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

const nsPerSec = 1e9

// muxTime is a monotonic {seconds, nanoseconds} pair used to schedule packet
// emission. nanosec is always in [0, 1e9).
type muxTime struct {
	sec     uint64
	nanosec uint64
}

// inc advances t by num/den seconds at nanosecond resolution: whole seconds
// are added first, the remainder is converted to nanoseconds (rounding
// down, so each call may fall up to 1ns short), and any nanosecond overflow
// is carried into sec.
func (t *muxTime) inc(num, den uint64) {
	if den == 0 {
		return
	}
	whole := num / den
	rem := num % den
	t.sec += whole
	t.nanosec += rem * nsPerSec / den
	if t.nanosec >= nsPerSec {
		t.sec += t.nanosec / nsPerSec
		t.nanosec %= nsPerSec
	}
}

// incScaled advances t by ticks/scale seconds, where ticks counts units of
// 1/scale seconds (e.g. a 90kHz PTS tick count); a negative ticks moves t
// backwards.
func (t *muxTime) incScaled(ticks int64, scale uint64) {
	if ticks < 0 {
		t.decScaled(uint64(-ticks), scale)
		return
	}
	t.inc(uint64(ticks), scale)
}

func (t *muxTime) decScaled(ticks, scale uint64) {
	whole := ticks / scale
	rem := ticks % scale
	remNs := rem * nsPerSec / scale
	if remNs > t.nanosec {
		t.sec--
		t.nanosec += nsPerSec
	}
	t.nanosec -= remNs
	if whole > t.sec {
		t.sec = 0
	} else {
		t.sec -= whole
	}
}

// before reports whether t occurs strictly before u.
func (t muxTime) before(u muxTime) bool {
	if t.sec != u.sec {
		return t.sec < u.sec
	}
	return t.nanosec < u.nanosec
}

// after reports whether t occurs strictly after u.
func (t muxTime) after(u muxTime) bool {
	return u.before(t)
}

// equal reports whether t and u name the same instant.
func (t muxTime) equal(u muxTime) bool {
	return t.sec == u.sec && t.nanosec == u.nanosec
}

// nanoseconds returns t as a total nanosecond count.
func (t muxTime) nanoseconds() uint64 {
	return t.sec*nsPerSec + t.nanosec
}

// sub returns the duration in nanoseconds from o to t (t - o). The
// result may be negative, expressed via the ok return: when false the
// subtraction underflowed (o is after t) and 0 is returned.
func (t muxTime) sub(o muxTime) (ns int64, ok bool) {
	tn, on := t.nanoseconds(), o.nanoseconds()
	if tn < on {
		return 0, false
	}
	return int64(tn - on), true
}
