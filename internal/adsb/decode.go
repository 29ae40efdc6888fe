package adsb

import (
	"fmt"
	"math"
	"strings"
)

// Fields is the optional-valued bundle decoded from one accepted frame.
// A nil pointer means the frame did not carry that field; this is not an
// error (the type code simply selects what a DF17 payload contains).
type Fields struct {
	Altitude *int    // barometric altitude, feet
	Callsign *string // trimmed, 1-8 chars
	Track    *int    // degrees 0-359
	Speed    *int    // ground speed, knots
	CPR      *CPRObservation
}

// CPRObservation is a raw airborne-position tuple awaiting even/odd pairing.
type CPRObservation struct {
	LatCPR uint32 // 17-bit latitude code
	LonCPR uint32 // 17-bit longitude code
	Odd    bool   // parity flag: false=even, true=odd
}

// DecodeFrame validates a hex frame and decodes every field its type code
// carries. A non-nil error means the frame was rejected outright; absent
// fields on an accepted frame are nil, not errors. Decoding is total: any
// internal fault is recovered here and reported as a rejection.
func DecodeFrame(frame string) (hdr Header, fields Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			hdr, fields = Header{}, Fields{}
			err = fmt.Errorf("%w: %v", ErrDecodeFault, r)
		}
	}()

	m, err := ParseRawMessage(frame)
	if err != nil {
		return Header{}, Fields{}, err
	}
	df := m.DownlinkFormat()
	if df != DF17 {
		return Header{}, Fields{}, fmt.Errorf("%w: got DF=%d, want DF=%d", ErrDownlinkFormat, df, DF17)
	}

	hdr = Header{DF: df, ICAO: m.ICAO(), TC: m.TypeCode()}
	fields = Fields{
		Altitude: DecodeAltitude(m, hdr.TC),
		Callsign: DecodeCallsign(m, hdr.TC),
		CPR:      DecodeCPR(m, hdr.TC),
	}
	fields.Track, fields.Speed = DecodeVelocity(m, hdr.TC)
	return hdr, fields, nil
}

// DecodeAltitude decodes barometric altitude from airborne position
// messages (TC 9-18). The 12-bit field at offset 40 carries the Q-bit at
// index 7; only the Q=1 (25 ft increment) encoding is supported, the
// Gillham-coded Q=0 path yields no altitude.
func DecodeAltitude(m RawMessage, tc uint8) *int {
	if tc < 9 || tc > 18 {
		return nil
	}
	field, err := m.Bits(40, 52)
	if err != nil {
		return nil
	}
	if field&0x10 == 0 { // Q-bit clear
		return nil
	}
	// Drop the Q-bit to rebuild the 11-bit altitude code.
	code := int(field>>5)<<4 | int(field&0x0F)
	alt := code*25 - 1000
	return &alt
}

// DecodeCallsign decodes the flight identification from TC 1-4 messages:
// eight 6-bit characters starting at offset 40. Trailing spaces are
// trimmed; an all-space identification is absent rather than empty.
func DecodeCallsign(m RawMessage, tc uint8) *string {
	if tc < 1 || tc > 4 {
		return nil
	}
	var raw [8]byte
	for i := range raw {
		code, err := m.Bits(40+6*i, 46+6*i)
		if err != nil {
			return nil
		}
		raw[i] = callsignChar(uint8(code))
	}
	cs := strings.TrimRight(string(raw[:]), " ")
	if cs == "" {
		return nil
	}
	return &cs
}

// callsignChar maps one 6-bit identification character code.
func callsignChar(v uint8) byte {
	switch {
	case v >= 1 && v <= 26:
		return 'A' + v - 1
	case v >= 48 && v <= 57:
		return '0' + v - 48
	default:
		// 0 and 32 encode space; unassigned codes degrade to space too.
		return ' '
	}
}

// DecodeVelocity decodes ground track and speed from TC 19 subtype 1/2
// (ground speed) messages. Magnitude 0 means "unavailable" for that axis;
// nonzero magnitudes carry a +1 encoding offset. The track convention is
// atan2(east, north) normalized to [0,360) — kept exactly as the original
// approximate decoder specifies it.
func DecodeVelocity(m RawMessage, tc uint8) (track, speed *int) {
	if tc != 19 {
		return nil, nil
	}
	subtype, err := m.Bits(37, 40)
	if err != nil || (subtype != 1 && subtype != 2) {
		return nil, nil
	}
	ewDir, _ := m.Bits(45, 46) // 0=East, 1=West
	ewMag, _ := m.Bits(46, 56)
	nsDir, _ := m.Bits(56, 57) // 0=North, 1=South
	nsMag, _ := m.Bits(57, 67)
	if ewMag == 0 && nsMag == 0 {
		return nil, nil
	}
	vx := int(ewMag)
	if vx > 0 {
		vx--
	}
	vy := int(nsMag)
	if vy > 0 {
		vy--
	}
	if ewDir == 1 {
		vx = -vx
	}
	if nsDir == 1 {
		vy = -vy
	}

	gs := int(math.Round(math.Hypot(float64(vx), float64(vy))))
	deg := math.Atan2(float64(vx), float64(vy)) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	trk := int(math.Round(deg)) % 360
	return &trk, &gs
}

// DecodeCPR extracts the raw CPR tuple from airborne position messages
// (TC 9-18): parity flag at bit 53, 17-bit codes at offsets 54 and 71.
func DecodeCPR(m RawMessage, tc uint8) *CPRObservation {
	if tc < 9 || tc > 18 {
		return nil
	}
	parity, err := m.Bits(53, 54)
	if err != nil {
		return nil
	}
	lat, _ := m.Bits(54, 71)
	lon, _ := m.Bits(71, 88)
	return &CPRObservation{LatCPR: lat, LonCPR: lon, Odd: parity == 1}
}
