package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"aviator/internal/tracker"
)

// Scenario is a YAML-scripted set of synthetic flights.
//
// Schema (v1):
//
//	version: 1
//	flights:
//	  - icao: "ABC123"
//	    callsign: "SIM1"
//	    lat_offset: 0.15
//	    lon_offset: -0.05
//	    alt_feet: 31000
//	    heading: 95
//	    ground_kt: 440
//	    dist_km: 14.2
//	    turn_rate_deg: 2
//
// Offsets are relative to the configured reference point so one script
// works at any receiver location.
type Scenario struct {
	Version int              `yaml:"version"`
	Flights []ScenarioFlight `yaml:"flights"`
}

// ScenarioFlight describes one scripted aircraft.
type ScenarioFlight struct {
	ICAO        string  `yaml:"icao"`
	Callsign    string  `yaml:"callsign"`
	LatOffset   float64 `yaml:"lat_offset"`
	LonOffset   float64 `yaml:"lon_offset"`
	AltFeet     int     `yaml:"alt_feet"`
	Heading     int     `yaml:"heading"`
	GroundKt    int     `yaml:"ground_kt"`
	DistKM      float64 `yaml:"dist_km"`
	TurnRateDeg int     `yaml:"turn_rate_deg"`
}

// LoadScenario reads and validates a YAML scenario script from path.
func LoadScenario(path string) (Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return ParseScenario(b)
}

// ParseScenario parses and validates a YAML scenario script.
func ParseScenario(b []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario: %w", err)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Version != 1 {
		return Scenario{}, fmt.Errorf("unsupported scenario version %d", s.Version)
	}
	if len(s.Flights) == 0 {
		return Scenario{}, fmt.Errorf("scenario has no flights")
	}
	for i, f := range s.Flights {
		if f.ICAO == "" {
			return Scenario{}, fmt.Errorf("flights[%d]: icao is required", i)
		}
		if f.Heading < 0 || f.Heading > 359 {
			return Scenario{}, fmt.Errorf("flights[%d]: heading must be 0-359", i)
		}
	}
	return s, nil
}

// FromScenario builds a Simulator from a scenario script, placing each
// flight at its offset from the reference point.
func FromScenario(s Scenario, ref tracker.Reference) *Simulator {
	sim := &Simulator{flights: make([]flightState, 0, len(s.Flights))}
	for _, f := range s.Flights {
		turn := f.TurnRateDeg
		if turn == 0 {
			turn = 2
		}
		sim.flights = append(sim.flights, flightState{
			icao:     f.ICAO,
			callsign: f.Callsign,
			lat:      ref.Lat + f.LatOffset,
			lon:      ref.Lon + f.LonOffset,
			altFt:    f.AltFeet,
			heading:  f.Heading,
			groundKt: f.GroundKt,
			distKM:   f.DistKM,
			turnDeg:  turn,
		})
	}
	return sim
}
