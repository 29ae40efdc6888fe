// Package web serves the flight table and decoder statistics as a small
// JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"aviator/internal/flightinfo"
	"aviator/internal/tracker"
	"aviator/internal/weather"
)

// Stats is the decoder counters view returned by /api/stats.
type Stats struct {
	Mode       string `json:"mode"`
	Aircraft   int    `json:"aircraft"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	LastReject string `json:"last_reject,omitempty"`
	UptimeSec  int64  `json:"uptime_sec"`
}

// FlightSource is the read side of the flight table.
type FlightSource interface {
	Snapshot(ref *tracker.Reference) []tracker.Flight
	Get(icao string, ref *tracker.Reference) (tracker.Flight, bool)
	Len() int
	Accepted() uint64
	Rejected() (uint64, string)
}

// WeatherSource resolves weather near a position. Nil disables the
// endpoint.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lon float64, altitudeFt *int) (*weather.Report, error)
}

// RouteSource resolves route details for a callsign. Nil disables the
// endpoint.
type RouteSource interface {
	Lookup(ctx context.Context, callsign string) (*flightinfo.Info, error)
}

// Server exposes the HTTP API.
type Server struct {
	flights FlightSource
	weather WeatherSource
	routes  RouteSource
	ref     *tracker.Reference
	mode    string
	started time.Time
	logger  *logrus.Logger
	httpSrv *http.Server
}

// NewServer builds the API server. ref, weatherSrc and routeSrc may be
// nil when the matching feature is not configured.
func NewServer(addr string, flights FlightSource, weatherSrc WeatherSource, routeSrc RouteSource,
	ref *tracker.Reference, mode string, logger *logrus.Logger) *Server {
	s := &Server{
		flights: flights,
		weather: weatherSrc,
		routes:  routeSrc,
		ref:     ref,
		mode:    mode,
		started: time.Now().UTC(),
		logger:  logger,
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/flights", s.handleFlights)
	mux.HandleFunc("/api/flights/", s.handleFlight)
	mux.HandleFunc("/api/stats", s.handleStats)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	s.logger.WithField("addr", s.httpSrv.Addr).Info("http api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	flights := s.flights.Snapshot(s.ref)
	sort.Slice(flights, func(i, j int) bool { return flights[i].ICAO < flights[j].ICAO })

	writeJSON(w, map[string]interface{}{
		"count":   len(flights),
		"flights": flights,
	})
}

// handleFlight serves /api/flights/{icao} and its weather and route
// subresources.
func (s *Server) handleFlight(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/flights/")
	icao, sub, _ := strings.Cut(rest, "/")
	icao = strings.ToUpper(icao)
	if icao == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	flight, ok := s.flights.Get(icao, s.ref)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch sub {
	case "":
		writeJSON(w, flight)
	case "weather":
		s.serveWeather(w, r, flight)
	case "route":
		s.serveRoute(w, r, flight)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) serveWeather(w http.ResponseWriter, r *http.Request, flight tracker.Flight) {
	if s.weather == nil {
		http.Error(w, "weather lookup not configured", http.StatusNotFound)
		return
	}
	if !flight.HasPosition() {
		http.Error(w, "flight has no resolved position", http.StatusConflict)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	report, err := s.weather.Fetch(ctx, *flight.Latitude, *flight.Longitude, flight.Altitude)
	if err != nil {
		s.logger.WithError(err).Warn("weather lookup failed")
		http.Error(w, "weather lookup failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, report)
}

func (s *Server) serveRoute(w http.ResponseWriter, r *http.Request, flight tracker.Flight) {
	if s.routes == nil {
		http.Error(w, "route lookup not configured", http.StatusNotFound)
		return
	}
	if flight.Callsign == nil {
		http.Error(w, "flight has no callsign", http.StatusConflict)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	info, err := s.routes.Lookup(ctx, *flight.Callsign)
	if err != nil {
		if errors.Is(err, flightinfo.ErrNotFound) {
			http.Error(w, "no route found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Warn("route lookup failed")
		http.Error(w, "route lookup failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	rejected, lastReject := s.flights.Rejected()
	writeJSON(w, Stats{
		Mode:       s.mode,
		Aircraft:   s.flights.Len(),
		Accepted:   s.flights.Accepted(),
		Rejected:   rejected,
		LastReject: lastReject,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
	})
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
