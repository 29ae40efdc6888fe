// Package tracker maintains the live table of aircraft state built from
// decoded DF17 frames: one record per ICAO address, merged field by field
// as partial decodes arrive.
package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"aviator/internal/adsb"
)

// Record source tags.
const (
	SourceDecoded = "decoded"
	SourceSim     = "sim"
)

// Reference is the receiver location distances are computed against.
type Reference struct {
	Lat float64
	Lon float64
}

// Flight is the latest known state for one aircraft. Pointer fields are
// explicitly optional: nil means the field has never been decoded, which is
// distinct from a zero value.
type Flight struct {
	ICAO       string    `json:"icao"`
	Callsign   *string   `json:"callsign,omitempty"`
	Altitude   *int      `json:"alt_ft,omitempty"`
	Latitude   *float64  `json:"lat,omitempty"`
	Longitude  *float64  `json:"lon,omitempty"`
	Track      *int      `json:"heading,omitempty"`
	Speed      *int      `json:"gs_kt,omitempty"`
	DistanceKM *float64  `json:"dist_km,omitempty"`
	LastTC     uint8     `json:"last_tc"`
	Source     string    `json:"mode"`
	Updated    time.Time `json:"updated"`
	LastFrame  string    `json:"-"`
}

// HasPosition reports whether the record carries a resolved position.
func (f *Flight) HasPosition() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// Update describes what one accepted frame contributed.
type Update struct {
	ICAO     string
	Header   adsb.Header
	Fields   adsb.Fields
	Position *adsb.Position // set when this frame completed a CPR pair
	Created  bool           // first frame for this aircraft
}

// Tracker owns the flight table and the CPR cache. All methods are safe
// for concurrent use; one mutex guards both structures so readers always
// observe a consistent snapshot.
type Tracker struct {
	mu       sync.RWMutex
	flights  map[string]*Flight
	resolver *adsb.Resolver
	logger   *logrus.Logger

	accepted   uint64
	rejected   uint64
	lastReject string
}

// New creates an empty tracker. The caller owns its lifecycle; nothing is
// reinitialized implicitly.
func New(logger *logrus.Logger) *Tracker {
	return &Tracker{
		flights:  make(map[string]*Flight),
		resolver: adsb.NewResolver(logger),
		logger:   logger,
	}
}

// Ingest validates and decodes one hex frame, then merges the decoded
// fields into the aircraft's record. A non-nil error means the frame was
// rejected and contributed nothing; the diagnostics counter is incremented
// and previously stored state is untouched. ref, when non-nil, is used to
// derive the distance for a freshly resolved position.
func (t *Tracker) Ingest(frame string, ref *Reference) (*Update, error) {
	hdr, fields, err := adsb.DecodeFrame(frame)
	if err != nil {
		t.mu.Lock()
		t.rejected++
		t.lastReject = err.Error()
		t.mu.Unlock()
		t.logger.WithError(err).Debug("frame rejected")
		return nil, err
	}

	now := time.Now()
	icao := hdr.ICAOString()
	upd := &Update{ICAO: icao, Header: hdr, Fields: fields}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.flights[icao]
	if rec == nil {
		rec = &Flight{ICAO: icao, Source: SourceDecoded}
		t.flights[icao] = rec
		upd.Created = true
	}

	// Last-value-wins per field; absent fields leave the record untouched.
	if fields.Altitude != nil {
		rec.Altitude = fields.Altitude
	}
	if fields.Callsign != nil {
		rec.Callsign = fields.Callsign
	}
	if fields.Track != nil {
		rec.Track = fields.Track
	}
	if fields.Speed != nil {
		rec.Speed = fields.Speed
	}
	rec.LastTC = hdr.TC
	rec.Updated = now
	rec.LastFrame = strings.ToUpper(strings.TrimSpace(frame))

	if fields.CPR != nil {
		if pos, ok := t.resolver.Observe(hdr.ICAO, *fields.CPR, now); ok {
			lat, lon := pos.Latitude, pos.Longitude
			rec.Latitude = &lat
			rec.Longitude = &lon
			upd.Position = &pos
			if ref != nil {
				d := round2(Haversine(ref.Lat, ref.Lon, lat, lon))
				rec.DistanceKM = &d
			}
		}
	}

	t.accepted++
	return upd, nil
}

// UpsertSynthetic merges a simulator-produced record, keyed by its ICAO.
func (t *Tracker) UpsertSynthetic(f Flight) {
	f.Source = SourceSim
	t.mu.Lock()
	defer t.mu.Unlock()
	clone := f.clone()
	t.flights[f.ICAO] = &clone
}

// Snapshot returns copies of all current records, unordered. When ref is
// non-nil the distance of every positioned record is recomputed at read
// time, so a moved reference never leaves stale distances behind.
func (t *Tracker) Snapshot(ref *Reference) []Flight {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Flight, 0, len(t.flights))
	for _, rec := range t.flights {
		c := rec.clone()
		if ref != nil && c.HasPosition() {
			d := round2(Haversine(ref.Lat, ref.Lon, *c.Latitude, *c.Longitude))
			c.DistanceKM = &d
		}
		out = append(out, c)
	}
	return out
}

// Get returns a copy of one aircraft's record. When ref is non-nil the
// distance is recomputed the same way Snapshot does.
func (t *Tracker) Get(icao string, ref *Reference) (Flight, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.flights[icao]
	if !ok {
		return Flight{}, false
	}
	c := rec.clone()
	if ref != nil && c.HasPosition() {
		d := round2(Haversine(ref.Lat, ref.Lon, *c.Latitude, *c.Longitude))
		c.DistanceKM = &d
	}
	return c, true
}

// Len reports how many aircraft are currently tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flights)
}

// Accepted returns the monotonic count of frames merged into state.
func (t *Tracker) Accepted() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.accepted
}

// Rejected returns the monotonic rejected-frame count and the most recent
// rejection reason (empty until the first rejection).
func (t *Tracker) Rejected() (uint64, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rejected, t.lastReject
}

// Expire removes flights and CPR cache entries untouched for longer than
// maxAge and returns how many flights were dropped. Ingest and Snapshot
// never evict on their own; the embedding application decides when and
// whether to call this.
func (t *Tracker) Expire(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	var removed int
	for icao, rec := range t.flights {
		if rec.Updated.Before(cutoff) {
			delete(t.flights, icao)
			removed++
		}
	}
	t.mu.Unlock()

	t.resolver.Expire(cutoff)
	if removed > 0 {
		t.logger.Debugf("expired %d stale flights", removed)
	}
	return removed
}

// clone copies a record, reallocating the optional fields so callers can
// never alias live state.
func (f *Flight) clone() Flight {
	c := *f
	c.Callsign = clonePtr(f.Callsign)
	c.Altitude = clonePtr(f.Altitude)
	c.Latitude = clonePtr(f.Latitude)
	c.Longitude = clonePtr(f.Longitude)
	c.Track = clonePtr(f.Track)
	c.Speed = clonePtr(f.Speed)
	c.DistanceKM = clonePtr(f.DistanceKM)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
