// Package flightinfo resolves route details for a callsign from the
// OpenSky Network flights API.
package flightinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://opensky-network.org"

// ErrNotFound means OpenSky has no flight for the callsign in the window.
var ErrNotFound = errors.New("no flight found for callsign")

// Info is the route summary for one flight.
type Info struct {
	Callsign      string     `json:"callsign"`
	ICAO24        string     `json:"icao24"`
	Origin        string     `json:"origin,omitempty"`
	Destination   string     `json:"destination,omitempty"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	ArrivalTime   *time.Time `json:"arrival_time,omitempty"`
}

// openskyFlight mirrors one entry of the OpenSky flights response.
type openskyFlight struct {
	ICAO24              string `json:"icao24"`
	EstDepartureAirport string `json:"estDepartureAirport"`
	EstArrivalAirport   string `json:"estArrivalAirport"`
	FirstSeen           int64  `json:"firstSeen"`
	LastSeen            int64  `json:"lastSeen"`
}

// Client queries the OpenSky Network.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
	now     func() time.Time
}

// NewClient creates an OpenSky client with a 10 second timeout.
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		now:     time.Now,
	}
}

// NewClientWithBaseURL is used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string, logger *logrus.Logger) *Client {
	c := NewClient(logger)
	c.baseURL = baseURL
	return c
}

// Lookup finds the most recent flight for a callsign within the past 24
// hours. Returns ErrNotFound when OpenSky has no match.
func (c *Client) Lookup(ctx context.Context, callsign string) (*Info, error) {
	end := c.now().Unix()
	begin := end - 24*3600

	q := url.Values{}
	q.Set("callsign", callsign)
	q.Set("begin", fmt.Sprintf("%d", begin))
	q.Set("end", fmt.Sprintf("%d", end))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/flights/callsign?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opensky request: %w", err)
	}
	defer resp.Body.Close()

	// OpenSky answers 404 for callsigns without flights in the window.
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opensky status %d", resp.StatusCode)
	}

	var flights []openskyFlight
	if err := json.NewDecoder(resp.Body).Decode(&flights); err != nil {
		return nil, fmt.Errorf("decode opensky response: %w", err)
	}
	if len(flights) == 0 {
		return nil, ErrNotFound
	}

	// The list is oldest first; take the most recent flight.
	f := flights[len(flights)-1]
	info := &Info{
		Callsign:    callsign,
		ICAO24:      f.ICAO24,
		Origin:      f.EstDepartureAirport,
		Destination: f.EstArrivalAirport,
	}
	if f.FirstSeen > 0 {
		t := time.Unix(f.FirstSeen, 0).UTC()
		info.DepartureTime = &t
	}
	if f.LastSeen > 0 {
		t := time.Unix(f.LastSeen, 0).UTC()
		info.ArrivalTime = &t
	}
	return info, nil
}
