// Package sim produces synthetic flights for development without a live
// receiver. Flights either come from the built-in seed set or from a YAML
// scenario script.
package sim

import (
	"time"

	"aviator/internal/tracker"
)

// flightState is one synthetic aircraft and its per-tick motion.
type flightState struct {
	icao     string
	callsign string
	lat      float64
	lon      float64
	altFt    int
	heading  int
	groundKt int
	distKM   float64
	turnDeg  int
}

// Simulator advances a fixed set of synthetic flights. Not safe for
// concurrent use; the embedding application drives it from one goroutine.
type Simulator struct {
	flights []flightState
}

// New seeds the default pair of synthetic flights near the reference point.
func New(ref tracker.Reference) *Simulator {
	return &Simulator{
		flights: []flightState{
			{
				icao:     "ABC123",
				callsign: "SIM1",
				lat:      ref.Lat + 0.15,
				lon:      ref.Lon - 0.05,
				altFt:    31000,
				heading:  95,
				distKM:   14.2,
				turnDeg:  2,
			},
			{
				icao:     "DEF456",
				callsign: "SIM2",
				lat:      ref.Lat - 0.08,
				lon:      ref.Lon + 0.11,
				altFt:    28000,
				heading:  275,
				distKM:   32.8,
				turnDeg:  2,
			},
		},
	}
}

// Advance turns every flight by its per-tick rate and returns the current
// set as tracker records stamped at now.
func (s *Simulator) Advance(now time.Time) []tracker.Flight {
	out := make([]tracker.Flight, 0, len(s.flights))
	for i := range s.flights {
		f := &s.flights[i]
		f.heading = (f.heading + f.turnDeg) % 360

		cs := f.callsign
		alt := f.altFt
		lat, lon := f.lat, f.lon
		hdg := f.heading
		dist := f.distKM
		rec := tracker.Flight{
			ICAO:       f.icao,
			Callsign:   &cs,
			Altitude:   &alt,
			Latitude:   &lat,
			Longitude:  &lon,
			Track:      &hdg,
			DistanceKM: &dist,
			Source:     tracker.SourceSim,
			Updated:    now,
		}
		if f.groundKt > 0 {
			kt := f.groundKt
			rec.Speed = &kt
		}
		out = append(out, rec)
	}
	return out
}

// Len reports the number of synthetic flights.
func (s *Simulator) Len() int {
	return len(s.flights)
}
