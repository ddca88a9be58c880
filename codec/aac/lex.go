/*
NAME
  lex.go

DESCRIPTION
  lex.go provides ADTS frame parsing and AudioSpecificConfig derivation,
  used by the mts/latm package to build LATM AudioMuxElement configs.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package aac provides minimal AAC ADTS parsing.
package aac

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ADTSHeader holds the parsed fields of an ADTS frame header.
type ADTSHeader struct {
	Syncword               uint16 // Should always be 0xFFF.
	MPEGID                 uint8  // 0: MPEG-4, 1: MPEG-2.
	ProtectionAbsent       bool   // true if no CRC (7-byte header).
	Profile                uint8  // AAC profile (1 = AAC-LC).
	SamplingFrequencyIndex uint8
	ChannelConfiguration   uint8
	FrameLength            uint16 // Total frame length in bytes, header included.
	RawDataBlocks          uint8  // Number of raw data blocks minus 1.
}

const adtsSyncword uint16 = 0xFFF

// HeaderSize is the ADTS header size when no CRC is present.
const HeaderSize = 7

// ReadADTSFrame reads the next ADTS frame from r and returns its header and
// raw AAC payload.
func ReadADTSFrame(r io.Reader) (*ADTSHeader, []byte, error) {
	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("failed to read ADTS header: %w", err)
	}
	if n < HeaderSize {
		return nil, nil, io.ErrUnexpectedEOF
	}

	h := &ADTSHeader{}
	fixed := binary.BigEndian.Uint32(buf[0:4])

	h.Syncword = uint16((fixed & 0xFFF00000) >> 20)
	if h.Syncword != adtsSyncword {
		return nil, nil, fmt.Errorf("syncword mismatch: expected 0x%X, got 0x%X", adtsSyncword, h.Syncword)
	}
	h.MPEGID = uint8((fixed & 0x00080000) >> 19)
	h.ProtectionAbsent = (fixed&0x00010000)>>16 == 1
	h.Profile = uint8((fixed & 0x0000C000) >> 14)
	h.SamplingFrequencyIndex = uint8((fixed & 0x00003C00) >> 10)

	// Channel configuration straddles byte 2 and byte 3.
	ch := (buf[2] & 0x01) << 2
	ch |= (buf[3] & 0xC0) >> 6
	h.ChannelConfiguration = ch

	// Frame length straddles bytes 3, 4 and 5.
	fl := uint16(buf[3]&0x03) << 11
	fl |= uint16(buf[4]) << 3
	fl |= uint16(buf[5]&0xE0) >> 5
	h.FrameLength = fl

	h.RawDataBlocks = uint8(buf[6] & 0x03)

	if h.FrameLength < HeaderSize {
		return h, nil, fmt.Errorf("invalid frame length: %d bytes (less than header size %d)", h.FrameLength, HeaderSize)
	}
	payloadSize := int(h.FrameLength) - HeaderSize
	if !h.ProtectionAbsent {
		payloadSize -= 2
	}
	if payloadSize <= 0 {
		return h, nil, errors.New("calculated payload size is zero or negative")
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return h, nil, fmt.Errorf("failed to read frame payload of size %d: %w", payloadSize, err)
	}
	if !h.ProtectionAbsent {
		if _, err := io.CopyN(io.Discard, r, 2); err != nil {
			return h, nil, fmt.Errorf("failed to skip CRC checksum: %w", err)
		}
	}
	return h, payload, nil
}

// AudioSpecificConfig converts the relevant fields of an ADTS header into the
// raw 2-byte MPEG-4 AudioSpecificConfig used by LATM's AudioMuxElement config
// (ISO/IEC 14496-3 §1.6.2.1).
func AudioSpecificConfig(h *ADTSHeader) ([]byte, error) {
	var audioObjectType uint8
	switch h.Profile {
	case 1: // AAC-LC is ADTS profile 1, ASC object type 2.
		audioObjectType = 2
	case 2: // HE-AAC/SBR is ADTS profile 2, ASC object type 5.
		audioObjectType = 5
	default:
		audioObjectType = h.Profile
	}
	if audioObjectType > 31 {
		return nil, fmt.Errorf("unsupported audio object type derived from ADTS profile: %d", h.Profile)
	}

	var cfg uint16
	cfg |= uint16(audioObjectType) << 11
	cfg |= uint16(h.SamplingFrequencyIndex) << 7
	cfg |= uint16(h.ChannelConfiguration) << 3

	return []byte{byte(cfg >> 8), byte(cfg)}, nil
}
