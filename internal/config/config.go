// Package config loads application configuration from environment
// variables, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Modes the data layer can run in.
const (
	ModeSim = "sim"
	ModeRaw = "raw"
)

// Config holds the application configuration.
type Config struct {
	Mode         string   // "sim" or "raw"
	Sources      []string // TCP host:port raw-frame feeds (raw mode)
	NATSURL      string   // frame bus, empty disables
	RedisAddr    string   // frame dedup, empty disables
	DBPath       string   // sighting database, empty disables
	HTTPAddr     string   // status API listen address
	LogDir       string   // SBS export directory, empty disables
	ScenarioPath string   // sim scenario script, empty uses seeds
	RefLat       float64  // receiver reference point
	RefLon       float64
	HasRef       bool
	ExpireAfter  time.Duration // staleness horizon, 0 disables eviction
	Verbose      bool
}

// Load reads the configuration from environment variables and an optional
// .env file. Only raw mode without any input requires a hard failure;
// everything else has a usable default.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{
		Mode:         strings.ToLower(envOr("AVIATOR_MODE", ModeSim)),
		NATSURL:      os.Getenv("NATS_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		DBPath:       os.Getenv("DB_PATH"),
		HTTPAddr:     envOr("HTTP_ADDR", ":8080"),
		LogDir:       os.Getenv("LOG_DIR"),
		ScenarioPath: os.Getenv("SCENARIO"),
		ExpireAfter:  5 * time.Minute,
	}

	if sources := os.Getenv("SOURCES"); sources != "" {
		for _, s := range strings.Split(sources, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Sources = append(cfg.Sources, s)
			}
		}
	}

	if cfg.Mode != ModeSim && cfg.Mode != ModeRaw {
		return nil, fmt.Errorf("AVIATOR_MODE must be %q or %q, got %q", ModeSim, ModeRaw, cfg.Mode)
	}
	if cfg.Mode == ModeRaw && len(cfg.Sources) == 0 && cfg.NATSURL == "" {
		return nil, fmt.Errorf("raw mode requires SOURCES or NATS_URL")
	}

	latStr, lonStr := os.Getenv("REF_LAT"), os.Getenv("REF_LON")
	if latStr != "" || lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REF_LAT %q: %w", latStr, err)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REF_LON %q: %w", lonStr, err)
		}
		cfg.RefLat, cfg.RefLon, cfg.HasRef = lat, lon, true
	}

	if v := os.Getenv("EXPIRE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EXPIRE_AFTER %q: %w", v, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("EXPIRE_AFTER must not be negative")
		}
		cfg.ExpireAfter = d
	}

	if v := os.Getenv("VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid VERBOSE %q: %w", v, err)
		}
		cfg.Verbose = b
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
