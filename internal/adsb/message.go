package adsb

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Frame geometry for a DF17 extended squitter.
const (
	FrameHexLen = 28  // 28 hex characters
	FrameBits   = 112 // 112 bits = 14 bytes
	FrameBytes  = 14

	DF17 = 17
)

// Rejection reasons. Every path that drops a frame wraps one of these so
// callers can test rejection deterministically with errors.Is.
var (
	ErrFrameLength    = errors.New("frame length error")
	ErrFrameHex       = errors.New("hex decode error")
	ErrDownlinkFormat = errors.New("downlink format error")
	ErrDecodeFault    = errors.New("decode fault")
)

// RawMessage is an immutable 112-bit Mode-S extended squitter frame.
type RawMessage [FrameBytes]byte

// ParseRawMessage builds a RawMessage from a 28-character hex string.
// Leading/trailing whitespace is tolerated; hex digits are case-insensitive.
func ParseRawMessage(frame string) (RawMessage, error) {
	frame = strings.TrimSpace(frame)
	if len(frame) != FrameHexLen {
		return RawMessage{}, fmt.Errorf("%w: got %d chars, want %d", ErrFrameLength, len(frame), FrameHexLen)
	}
	b, err := hex.DecodeString(frame)
	if err != nil {
		return RawMessage{}, fmt.Errorf("%w: %v", ErrFrameHex, err)
	}
	var m RawMessage
	copy(m[:], b)
	return m, nil
}

// Bits returns the unsigned integer formed by bits [start,end), 0-indexed
// and MSB-first. The widest supported read is 32 bits.
func (m RawMessage) Bits(start, end int) (uint32, error) {
	if start < 0 || end > FrameBits || start >= end {
		return 0, fmt.Errorf("bit range [%d,%d) out of bounds", start, end)
	}
	if end-start > 32 {
		return 0, fmt.Errorf("bit range [%d,%d) wider than 32 bits", start, end)
	}
	var v uint32
	for i := start; i < end; i++ {
		v = v<<1 | uint32(m[i/8]>>(7-i%8))&1
	}
	return v, nil
}

// DownlinkFormat extracts the 5-bit DF field.
func (m RawMessage) DownlinkFormat() uint8 {
	return (m[0] >> 3) & 0x1F
}

// ICAO extracts the 24-bit aircraft address (bits 8-31).
func (m RawMessage) ICAO() uint32 {
	return uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
}

// TypeCode extracts the 5-bit type code of the ME field (bits 32-36).
func (m RawMessage) TypeCode() uint8 {
	return (m[4] >> 3) & 0x1F
}

// String renders the frame as uppercase hex.
func (m RawMessage) String() string {
	return strings.ToUpper(hex.EncodeToString(m[:]))
}

// Header carries the fields parsed from every accepted frame.
type Header struct {
	DF   uint8
	ICAO uint32
	TC   uint8
}

// ICAOString renders the 24-bit address as six hex digits.
func (h Header) ICAOString() string {
	return fmt.Sprintf("%06X", h.ICAO)
}
