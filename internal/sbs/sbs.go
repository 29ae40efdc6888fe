// Package sbs renders decoded updates as BaseStation (SBS-1) MSG lines,
// the CSV format consumed by tools like Virtual Radar Server.
package sbs

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"aviator/internal/tracker"
)

// BaseStation transmission types.
const (
	TransmissionESIdentCat = 1 // Extended Squitter Aircraft ID and Category
	TransmissionESSurface  = 2 // Extended Squitter Surface Position
	TransmissionESAirborne = 3 // Extended Squitter Airborne Position
	TransmissionESVelocity = 4 // Extended Squitter Airborne Velocity
)

// Message is one BaseStation MSG record before CSV encoding.
type Message struct {
	TransmissionType int
	SessionID        int
	AircraftID       int
	HexIdent         string
	FlightID         int
	Generated        time.Time
	Logged           time.Time
	Callsign         string
	Altitude         string
	GroundSpeed      string
	Track            string
	Latitude         string
	Longitude        string
}

// WriterProvider hands out the current output stream. A rotating log
// implements this so each line lands in the right file.
type WriterProvider interface {
	GetWriter() (io.Writer, error)
}

// Writer converts tracker updates to MSG lines and appends them to the
// provided output.
type Writer struct {
	provider  WriterProvider
	logger    *logrus.Logger
	sessionID int
}

// NewWriter creates a BaseStation writer.
func NewWriter(provider WriterProvider, logger *logrus.Logger) *Writer {
	return &Writer{
		provider:  provider,
		logger:    logger,
		sessionID: 1,
	}
}

// WriteUpdate renders one decoded update as a MSG line. Updates whose type
// code has no BaseStation mapping are skipped without error.
func (w *Writer) WriteUpdate(u *tracker.Update, now time.Time) error {
	if u == nil {
		return fmt.Errorf("update cannot be nil")
	}

	msg := Convert(u, now)
	if msg == nil {
		return nil
	}
	msg.SessionID = w.sessionID

	out, err := w.provider.GetWriter()
	if err != nil {
		return fmt.Errorf("get log writer: %w", err)
	}
	if _, err := out.Write([]byte(FormatCSV(msg) + "\n")); err != nil {
		return fmt.Errorf("write basestation line: %w", err)
	}
	return nil
}

// Convert maps a decoded update onto a BaseStation record. It returns nil
// for type codes BaseStation has no transmission type for.
func Convert(u *tracker.Update, now time.Time) *Message {
	msg := &Message{
		SessionID:  1,
		AircraftID: 1,
		FlightID:   1,
		HexIdent:   u.ICAO,
		Generated:  now,
		Logged:     now,
	}

	tc := u.Header.TC
	switch {
	case tc >= 1 && tc <= 4:
		msg.TransmissionType = TransmissionESIdentCat
		if u.Fields.Callsign != nil {
			msg.Callsign = *u.Fields.Callsign
		}

	case tc >= 5 && tc <= 8:
		msg.TransmissionType = TransmissionESSurface

	case tc >= 9 && tc <= 18:
		msg.TransmissionType = TransmissionESAirborne
		if u.Fields.Altitude != nil {
			msg.Altitude = strconv.Itoa(*u.Fields.Altitude)
		}
		if u.Position != nil {
			msg.Latitude = fmt.Sprintf("%.6f", u.Position.Latitude)
			msg.Longitude = fmt.Sprintf("%.6f", u.Position.Longitude)
		}

	case tc == 19:
		msg.TransmissionType = TransmissionESVelocity
		if u.Fields.Speed != nil {
			msg.GroundSpeed = strconv.Itoa(*u.Fields.Speed)
		}
		if u.Fields.Track != nil {
			msg.Track = fmt.Sprintf("%.1f", float64(*u.Fields.Track))
		}

	default:
		return nil
	}

	return msg
}

// FormatCSV encodes a record as a 22-field BaseStation CSV line.
func FormatCSV(msg *Message) string {
	fields := []string{
		"MSG",
		strconv.Itoa(msg.TransmissionType),
		strconv.Itoa(msg.SessionID),
		strconv.Itoa(msg.AircraftID),
		msg.HexIdent,
		strconv.Itoa(msg.FlightID),
		msg.Generated.Format("2006/01/02"),
		msg.Generated.Format("15:04:05.000"),
		msg.Logged.Format("2006/01/02"),
		msg.Logged.Format("15:04:05.000"),
		msg.Callsign,
		msg.Altitude,
		msg.GroundSpeed,
		msg.Track,
		msg.Latitude,
		msg.Longitude,
		"", // vertical rate
		"", // squawk
		"", // alert
		"", // emergency
		"", // SPI
		"", // is on ground
	}
	return strings.Join(fields, ",")
}
