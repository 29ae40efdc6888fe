package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aviator/internal/adsb"
)

// Frames for ICAO 40621D: an airborne position pair and a synthesized
// identification frame (callsign "ALAY").
const (
	frameEvenPos  = "8D40621D58C382D690C8AC2863A7"
	frameOddPos   = "8D40621D58C386435CC412692AD6"
	frameIdent    = "8840621D2004C059000000000000"
	frameCallsign = "8D4840D6202CC371C32CE0576098" // ICAO 4840D6, KLM1023
	frameDF11     = "5D4840D6202CC371C32CE0576098"
)

func newTestTracker() *Tracker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger)
}

func TestIngestCreatesRecord(t *testing.T) {
	tr := newTestTracker()

	upd, err := tr.Ingest(frameCallsign, nil)
	require.NoError(t, err)
	assert.True(t, upd.Created)
	assert.Equal(t, "4840D6", upd.ICAO)

	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	f := flights[0]
	assert.Equal(t, "4840D6", f.ICAO)
	require.NotNil(t, f.Callsign)
	assert.Equal(t, "KLM1023", *f.Callsign)
	assert.Equal(t, uint8(4), f.LastTC)
	assert.Equal(t, SourceDecoded, f.Source)
	assert.Equal(t, frameCallsign, f.LastFrame)
	assert.Nil(t, f.Altitude)
	assert.Nil(t, f.Latitude)
}

func TestIngestMergesPartialUpdates(t *testing.T) {
	tr := newTestTracker()

	// First frame supplies only altitude, second only callsign: the merged
	// record must carry both, neither overwritten to absent.
	_, err := tr.Ingest(frameEvenPos, nil)
	require.NoError(t, err)
	upd, err := tr.Ingest(frameIdent, nil)
	require.NoError(t, err)
	assert.False(t, upd.Created)

	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	f := flights[0]
	require.NotNil(t, f.Altitude)
	assert.Equal(t, 38000, *f.Altitude)
	require.NotNil(t, f.Callsign)
	assert.Equal(t, "ALAY", *f.Callsign)
	assert.Equal(t, uint8(4), f.LastTC, "last TC follows the newest frame")
}

func TestIngestResolvesPositionAndDistance(t *testing.T) {
	tr := newTestTracker()
	ref := &Reference{Lat: 52.0, Lon: 4.0}

	upd, err := tr.Ingest(frameOddPos, ref)
	require.NoError(t, err)
	assert.Nil(t, upd.Position, "one parity is not enough for a position")

	upd, err = tr.Ingest(frameEvenPos, ref)
	require.NoError(t, err)
	require.NotNil(t, upd.Position)
	assert.InDelta(t, 52.25720, upd.Position.Latitude, 1e-3)
	assert.InDelta(t, 3.91937, upd.Position.Longitude, 1e-3)

	flights := tr.Snapshot(ref)
	require.Len(t, flights, 1)
	f := flights[0]
	require.True(t, f.HasPosition())
	require.NotNil(t, f.DistanceKM)
	want := Haversine(52.0, 4.0, *f.Latitude, *f.Longitude)
	assert.InDelta(t, want, *f.DistanceKM, 0.01)
}

func TestIngestRejectionDiagnostics(t *testing.T) {
	tr := newTestTracker()

	count, reason := tr.Rejected()
	assert.Equal(t, uint64(0), count)
	assert.Empty(t, reason)

	tests := []struct {
		frame   string
		wantErr error
	}{
		{frame: "8D4840", wantErr: adsb.ErrFrameLength},
		{frame: "ZZ4840D6202CC371C32CE0576098", wantErr: adsb.ErrFrameHex},
		{frame: frameDF11, wantErr: adsb.ErrDownlinkFormat},
	}
	for i, tt := range tests {
		upd, err := tr.Ingest(tt.frame, nil)
		assert.Nil(t, upd)
		assert.ErrorIs(t, err, tt.wantErr)
		count, reason = tr.Rejected()
		assert.Equal(t, uint64(i+1), count, "each rejection increments exactly once")
		assert.Contains(t, reason, tt.wantErr.Error())
	}

	assert.Equal(t, uint64(0), tr.Accepted())
	assert.Zero(t, tr.Len(), "rejected frames contribute nothing")
}

func TestRejectionDoesNotCorruptState(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Ingest(frameCallsign, nil)
	require.NoError(t, err)

	_, err = tr.Ingest("not a frame at all", nil)
	require.Error(t, err)

	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	require.NotNil(t, flights[0].Callsign)
	assert.Equal(t, "KLM1023", *flights[0].Callsign)
}

func TestSnapshotRecomputesDistance(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Ingest(frameOddPos, nil)
	require.NoError(t, err)
	_, err = tr.Ingest(frameEvenPos, nil)
	require.NoError(t, err)

	// No reference at ingest time: no stored distance.
	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	assert.Nil(t, flights[0].DistanceKM)

	// Distance is derived at read time from the supplied reference.
	near := tr.Snapshot(&Reference{Lat: 52.25720, Lon: 3.91937})
	require.NotNil(t, near[0].DistanceKM)
	assert.InDelta(t, 0.0, *near[0].DistanceKM, 0.1)

	far := tr.Snapshot(&Reference{Lat: 0, Lon: 0})
	require.NotNil(t, far[0].DistanceKM)
	assert.Greater(t, *far[0].DistanceKM, 5000.0)
}

func TestSnapshotCopiesDoNotAliasState(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Ingest(frameEvenPos, nil)
	require.NoError(t, err)

	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	*flights[0].Altitude = 1

	again := tr.Snapshot(nil)
	assert.Equal(t, 38000, *again[0].Altitude)
}

func TestGet(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Ingest(frameEvenPos, nil)
	require.NoError(t, err)

	f, ok := tr.Get("40621D", nil)
	require.True(t, ok)
	assert.Equal(t, "40621D", f.ICAO)
	require.NotNil(t, f.Altitude)
	assert.Equal(t, 38000, *f.Altitude)

	_, ok = tr.Get("DEAD00", nil)
	assert.False(t, ok)
}

func TestUpsertSynthetic(t *testing.T) {
	tr := newTestTracker()

	cs := "SIM1"
	alt := 31000
	tr.UpsertSynthetic(Flight{ICAO: "ABC123", Callsign: &cs, Altitude: &alt, Updated: time.Now()})

	flights := tr.Snapshot(nil)
	require.Len(t, flights, 1)
	assert.Equal(t, SourceSim, flights[0].Source)
	assert.Equal(t, "SIM1", *flights[0].Callsign)
}

func TestExpire(t *testing.T) {
	tr := newTestTracker()

	_, err := tr.Ingest(frameCallsign, nil)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	tr.UpsertSynthetic(Flight{ICAO: "STALE1", Updated: old})
	require.Equal(t, 2, tr.Len())

	removed := tr.Expire(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tr.Len())

	flights := tr.Snapshot(nil)
	assert.Equal(t, "4840D6", flights[0].ICAO)
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		delta                  float64
	}{
		{name: "one degree of longitude at the equator", lat2: 0, lon2: 1, want: 111.19, delta: 0.5},
		{name: "zero distance", want: 0, delta: 1e-9},
		{name: "antipodal points", lat2: 0, lon2: 180, want: math.Pi * EarthRadiusKM, delta: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.delta)
		})
	}
}
