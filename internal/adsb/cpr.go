package adsb

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	cprMax   = 131072.0     // 2^17
	dLatEven = 360.0 / 60.0 // even frame latitude zone width
	dLatOdd  = 360.0 / 59.0 // odd frame latitude zone width
)

// Position is a resolved geographic position in degrees.
type Position struct {
	Latitude  float64
	Longitude float64
}

// cprFrame is one cached raw tuple with its arrival time.
type cprFrame struct {
	lat, lon uint32
	at       time.Time
}

// cprEntry holds the rolling two-slot (even/odd) window for one aircraft.
type cprEntry struct {
	even, odd *cprFrame
}

// Resolver caches the most recent even- and odd-parity CPR tuples per
// aircraft and resolves an unambiguous position once both are present.
// Resolution is re-attempted on every new tuple of either parity.
type Resolver struct {
	mu     sync.Mutex
	cache  map[uint32]*cprEntry
	logger *logrus.Logger
}

// NewResolver creates an empty CPR resolver.
func NewResolver(logger *logrus.Logger) *Resolver {
	return &Resolver{
		cache:  make(map[uint32]*cprEntry),
		logger: logger,
	}
}

// Observe stores a raw tuple under its parity, replacing any prior tuple of
// the same parity, and attempts resolution. It returns the resolved
// position and true, or false when the geometry is still undecidable (only
// one parity cached, zone mismatch, or polar zero-zone longitude).
func (r *Resolver) Observe(icao uint32, obs CPRObservation, at time.Time) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.cache[icao]
	if e == nil {
		e = &cprEntry{}
		r.cache[icao] = e
	}
	f := &cprFrame{lat: obs.LatCPR, lon: obs.LonCPR, at: at}
	if obs.Odd {
		e.odd = f
	} else {
		e.even = f
	}
	if e.even == nil || e.odd == nil {
		return Position{}, false
	}

	pos, ok := resolveGlobal(e.even, e.odd)
	if ok {
		r.logger.Debugf("CPR resolved: ICAO=%06X lat=%.5f lon=%.5f", icao, pos.Latitude, pos.Longitude)
	}
	return pos, ok
}

// Cached reports how many aircraft currently have CPR state.
func (r *Resolver) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Expire drops cache entries whose newest tuple is older than cutoff and
// returns how many aircraft were forgotten.
func (r *Resolver) Expire(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for icao, e := range r.cache {
		newest := time.Time{}
		if e.even != nil {
			newest = e.even.at
		}
		if e.odd != nil && e.odd.at.After(newest) {
			newest = e.odd.at
		}
		if newest.Before(cutoff) {
			delete(r.cache, icao)
			removed++
		}
	}
	return removed
}

// resolveGlobal runs the globally unambiguous airborne CPR algorithm on a
// paired even/odd tuple. The candidate matching the more recently received
// parity is selected; equal timestamps prefer even.
func resolveGlobal(even, odd *cprFrame) (Position, bool) {
	lat0, lon0 := float64(even.lat), float64(even.lon)
	lat1, lon1 := float64(odd.lat), float64(odd.lon)

	// Latitude zone index.
	j := int(math.Floor((59*lat0-60*lat1)/cprMax + 0.5))

	rlat0 := dLatEven * (float64(cprMod(j, 60)) + lat0/cprMax)
	rlat1 := dLatOdd * (float64(cprMod(j, 59)) + lat1/cprMax)
	if rlat0 >= 270 {
		rlat0 -= 360
	}
	if rlat1 >= 270 {
		rlat1 -= 360
	}
	if rlat0 < -90 || rlat0 > 90 || rlat1 < -90 || rlat1 > 90 {
		return Position{}, false
	}
	// The two candidates must sit in the same longitude-zone band, or the
	// aircraft crossed a zone boundary between frames; wait for the next pair.
	if cprNL(rlat0) != cprNL(rlat1) {
		return Position{}, false
	}

	useOdd := odd.at.After(even.at)
	rlat := rlat0
	if useOdd {
		rlat = rlat1
	}

	nl := cprNL(rlat)
	if nl == 0 {
		// Polar zero-zone: longitude is undecidable this cycle.
		return Position{}, false
	}

	m := int(math.Floor((lon0*float64(nl-1)-lon1*float64(nl))/cprMax + 0.5))
	ni := nl
	lonSel := lon0
	if useOdd {
		ni = nl - 1
		lonSel = lon1
	}
	if ni < 1 {
		ni = 1
	}
	rlon := (360.0 / float64(ni)) * (float64(cprMod(m, ni)) + lonSel/cprMax)
	// Normalize to -180..+180.
	rlon -= math.Floor((rlon+180)/360) * 360

	return Position{Latitude: rlat, Longitude: rlon}, true
}

// cprMod is the always-positive modulus the CPR zone arithmetic needs.
func cprMod(a, b int) int {
	res := a % b
	if res < 0 {
		res += b
	}
	return res
}

// nlBoundaries are the latitude transition points of the NL table (ICAO
// Doc 9871, Appendix B): index i is the upper bound of the NL=59-i band.
// Latitudes beyond the last boundary fall in the polar zero-zone (NL=0).
var nlBoundaries = [...]float64{
	10.47047130, 14.82817437, 18.18626357, 21.02939493, 23.54504487,
	25.82924707, 27.93898710, 29.91135686, 31.77209708, 33.53993436,
	35.22899598, 36.85025108, 38.41241892, 39.92256684, 41.38651832,
	42.80914012, 44.19454951, 45.54626723, 46.86733252, 48.16039128,
	49.42776439, 50.67150166, 51.89342469, 53.09516153, 54.27817472,
	55.44378444, 56.59318756, 57.72747354, 58.84763776, 59.95459277,
	61.04917774, 62.13216659, 63.20427479, 64.26616523, 65.31845310,
	66.36171008, 67.39646774, 68.42322022, 69.44242631, 70.45451075,
	71.45986473, 72.45884545, 73.45177442, 74.43893416, 75.42056257,
	76.39684391, 77.36789461, 78.33374083, 79.29428225, 80.24923213,
	81.19801349, 82.13956981, 83.07199445, 83.99173563, 84.89583158,
	85.78102276, 86.64231607, 87.47308768, 88.26416571,
}

// cprNL returns the number of longitude zones at a latitude, 59 down to 1,
// or 0 inside the polar zero-zone.
func cprNL(lat float64) int {
	lat = math.Abs(lat)
	for i, bound := range nlBoundaries {
		if lat < bound {
			return 59 - i
		}
	}
	return 0
}
