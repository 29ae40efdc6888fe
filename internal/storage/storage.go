// Package storage persists decoded flight sightings to SQLite for later
// analysis.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"aviator/internal/tracker"
)

// Sighting is one stored flight observation.
type Sighting struct {
	ID         int64
	ICAO       string
	Callsign   *string
	AltitudeFt *int
	Latitude   *float64
	Longitude  *float64
	Track      *int
	SpeedKt    *int
	DistanceKM *float64
	TypeCode   int
	SeenAt     time.Time
}

// DB wraps a SQLite database for sighting storage.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL improves concurrent reader behavior.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sightings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		icao TEXT NOT NULL,
		callsign TEXT,
		altitude_ft INTEGER,
		latitude REAL,
		longitude REAL,
		track INTEGER,
		speed_kt INTEGER,
		distance_km REAL,
		type_code INTEGER NOT NULL,
		seen_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sightings_icao ON sightings(icao);
	CREATE INDEX IF NOT EXISTS idx_sightings_seen_at ON sightings(seen_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordSighting appends the current state of a flight record.
func (d *DB) RecordSighting(f tracker.Flight) error {
	_, err := d.db.Exec(`
		INSERT INTO sightings (icao, callsign, altitude_ft, latitude, longitude,
			track, speed_kt, distance_km, type_code, seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ICAO,
		nullString(f.Callsign),
		nullInt(f.Altitude),
		nullFloat(f.Latitude),
		nullFloat(f.Longitude),
		nullInt(f.Track),
		nullInt(f.Speed),
		nullFloat(f.DistanceKM),
		int(f.LastTC),
		f.Updated.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}
	return nil
}

// SightingsForAircraft returns the most recent sightings for one aircraft,
// newest first.
func (d *DB) SightingsForAircraft(icao string, limit int) ([]Sighting, error) {
	rows, err := d.db.Query(`
		SELECT id, icao, callsign, altitude_ft, latitude, longitude,
			track, speed_kt, distance_km, type_code, seen_at
		FROM sightings WHERE icao = ? ORDER BY seen_at DESC, id DESC LIMIT ?`,
		icao, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var (
			s        Sighting
			callsign sql.NullString
			alt      sql.NullInt64
			lat, lon sql.NullFloat64
			track    sql.NullInt64
			speed    sql.NullInt64
			dist     sql.NullFloat64
			seenAt   string
		)
		if err := rows.Scan(&s.ID, &s.ICAO, &callsign, &alt, &lat, &lon,
			&track, &speed, &dist, &s.TypeCode, &seenAt); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		if callsign.Valid {
			s.Callsign = &callsign.String
		}
		if alt.Valid {
			v := int(alt.Int64)
			s.AltitudeFt = &v
		}
		if lat.Valid {
			s.Latitude = &lat.Float64
		}
		if lon.Valid {
			s.Longitude = &lon.Float64
		}
		if track.Valid {
			v := int(track.Int64)
			s.Track = &v
		}
		if speed.Valid {
			v := int(speed.Int64)
			s.SpeedKt = &v
		}
		if dist.Valid {
			s.DistanceKM = &dist.Float64
		}
		if t, err := time.Parse(time.RFC3339Nano, seenAt); err == nil {
			s.SeenAt = t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSightings reports the total number of stored sightings.
func (d *DB) CountSightings() (int64, error) {
	var n int64
	err := d.db.QueryRow("SELECT COUNT(*) FROM sightings").Scan(&n)
	return n, err
}

func nullString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
