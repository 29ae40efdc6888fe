package weather

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPressureLevel(t *testing.T) {
	tests := []struct {
		altitudeFt int
		want       string
	}{
		{0, "850hPa"},
		{7499, "850hPa"},
		{7500, "700hPa"},
		{14999, "700hPa"},
		{15000, "500hPa"},
		{24999, "500hPa"},
		{25000, "300hPa"},
		{31999, "300hPa"},
		{32000, "250hPa"},
		{41000, "250hPa"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PressureLevel(tt.altitudeFt), "altitude %d", tt.altitudeFt)
	}
}

func weatherServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("current_weather") == "true" {
			io.WriteString(w, `{
				"current_weather": {
					"temperature": 14.3,
					"windspeed": 22.1,
					"winddirection": 250.0,
					"weathercode": 3,
					"time": "2026-03-14T15:00"
				}
			}`)
			return
		}
		io.WriteString(w, `{
			"hourly": {
				"temperature_500hPa": [-21.5, -21.1],
				"windspeed_500hPa": [88.0, 85.5],
				"winddirection_500hPa": [270.0, 268.0],
				"temperature_850hPa": [5.0],
				"windspeed_850hPa": [30.0],
				"winddirection_850hPa": [180.0]
			}
		}`)
	}))
}

func TestFetchSurfaceOnly(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, testLogger())
	report, err := c.Fetch(context.Background(), 40.7128, -74.0060, nil)
	require.NoError(t, err)

	assert.InDelta(t, 14.3, report.Surface.Temperature, 1e-9)
	assert.InDelta(t, 22.1, report.Surface.WindSpeed, 1e-9)
	assert.InDelta(t, 250.0, report.Surface.WindDirection, 1e-9)
	assert.Nil(t, report.Altitude)
}

func TestFetchWithAltitude(t *testing.T) {
	srv := weatherServer(t)
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, testLogger())
	alt := 20000
	report, err := c.Fetch(context.Background(), 40.7128, -74.0060, &alt)
	require.NoError(t, err)

	require.NotNil(t, report.Altitude)
	assert.Equal(t, "500hPa", report.Altitude.PressureLevel)
	assert.Equal(t, 20000, report.Altitude.AltitudeFt)
	require.NotNil(t, report.Altitude.Temperature)
	assert.InDelta(t, -21.5, *report.Altitude.Temperature, 1e-9)
	require.NotNil(t, report.Altitude.WindSpeed)
	assert.InDelta(t, 88.0, *report.Altitude.WindSpeed, 1e-9)
	require.NotNil(t, report.Altitude.WindDirection)
	assert.InDelta(t, 270.0, *report.Altitude.WindDirection, 1e-9)
}

func TestFetchAltitudeFailureDegradesToSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_weather") == "true" {
			io.WriteString(w, `{"current_weather": {"temperature": 10.0}}`)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, testLogger())
	alt := 31000
	report, err := c.Fetch(context.Background(), 52.0, 4.0, &alt)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, report.Surface.Temperature, 1e-9)
	assert.Nil(t, report.Altitude)
}

func TestFetchSurfaceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, testLogger())
	_, err := c.Fetch(context.Background(), 52.0, 4.0, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "429"))
}

func TestFetchMissingLevelSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current_weather") == "true" {
			io.WriteString(w, `{"current_weather": {"temperature": 10.0}}`)
			return
		}
		io.WriteString(w, `{"hourly": {}}`)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, testLogger())
	alt := 5000
	report, err := c.Fetch(context.Background(), 52.0, 4.0, &alt)
	require.NoError(t, err)
	require.NotNil(t, report.Altitude)
	assert.Equal(t, "850hPa", report.Altitude.PressureLevel)
	assert.Nil(t, report.Altitude.Temperature)
	assert.Nil(t, report.Altitude.WindSpeed)
}
