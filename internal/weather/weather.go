// Package weather fetches winds and temperature near a tracked aircraft
// from the Open-Meteo forecast API. No API key is required.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBaseURL = "https://api.open-meteo.com"

// Pressure levels Open-Meteo exposes hourly data for.
var pressureLevels = []string{"850hPa", "700hPa", "500hPa", "300hPa", "250hPa"}

// Surface is the current surface weather at a point.
type Surface struct {
	Temperature   float64 `json:"temperature"`
	WindSpeed     float64 `json:"windspeed"`
	WindDirection float64 `json:"winddirection"`
	WeatherCode   int     `json:"weathercode"`
	Time          string  `json:"time"`
}

// Altitude is the weather at the pressure level closest to a flight level.
type Altitude struct {
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"windspeed"`
	WindDirection *float64 `json:"winddirection"`
	PressureLevel string   `json:"pressure_level"`
	AltitudeFt    int      `json:"altitude_ft"`
}

// Report combines surface conditions with an optional altitude slice.
type Report struct {
	Surface  Surface   `json:"surface"`
	Altitude *Altitude `json:"altitude,omitempty"`
}

// Client talks to the Open-Meteo API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

// NewClient creates an Open-Meteo client with a 10 second timeout.
func NewClient(logger *logrus.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// NewClientWithBaseURL is used by tests to point at a local server.
func NewClientWithBaseURL(baseURL string, logger *logrus.Logger) *Client {
	c := NewClient(logger)
	c.baseURL = baseURL
	return c
}

// PressureLevel maps a barometric altitude in feet onto the closest
// Open-Meteo pressure level.
func PressureLevel(altitudeFt int) string {
	switch {
	case altitudeFt < 7500:
		return "850hPa"
	case altitudeFt < 15000:
		return "700hPa"
	case altitudeFt < 25000:
		return "500hPa"
	case altitudeFt < 32000:
		return "300hPa"
	default:
		return "250hPa"
	}
}

// Fetch returns surface weather at lat/lon. When altitudeFt is non-nil it
// also resolves the weather at the matching pressure level; an altitude
// lookup failure degrades to a surface-only report.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, altitudeFt *int) (*Report, error) {
	surface, err := c.fetchSurface(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	report := &Report{Surface: *surface}
	if altitudeFt == nil {
		return report, nil
	}

	alt, err := c.fetchAltitude(ctx, lat, lon, *altitudeFt)
	if err != nil {
		c.logger.WithError(err).Warn("altitude weather unavailable, returning surface only")
		return report, nil
	}
	report.Altitude = alt
	return report, nil
}

func (c *Client) fetchSurface(ctx context.Context, lat, lon float64) (*Surface, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("current_weather", "true")

	var body struct {
		CurrentWeather Surface `json:"current_weather"`
	}
	if err := c.getJSON(ctx, "/v1/forecast?"+q.Encode(), &body); err != nil {
		return nil, fmt.Errorf("surface weather: %w", err)
	}
	return &body.CurrentWeather, nil
}

func (c *Client) fetchAltitude(ctx context.Context, lat, lon float64, altitudeFt int) (*Altitude, error) {
	var hourlyVars []string
	for _, lvl := range pressureLevels {
		hourlyVars = append(hourlyVars,
			"temperature_"+lvl, "windspeed_"+lvl, "winddirection_"+lvl)
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	for _, v := range hourlyVars {
		q.Add("hourly", v)
	}

	var body struct {
		Hourly map[string][]*float64 `json:"hourly"`
	}
	if err := c.getJSON(ctx, "/v1/forecast?"+q.Encode(), &body); err != nil {
		return nil, fmt.Errorf("altitude weather: %w", err)
	}

	level := PressureLevel(altitudeFt)
	alt := &Altitude{
		PressureLevel: level,
		AltitudeFt:    altitudeFt,
	}
	alt.Temperature = firstValue(body.Hourly["temperature_"+level])
	alt.WindSpeed = firstValue(body.Hourly["windspeed_"+level])
	alt.WindDirection = firstValue(body.Hourly["winddirection_"+level])
	return alt, nil
}

// firstValue takes the current hour, the first entry in the hourly series.
func firstValue(series []*float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	return series[0]
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
