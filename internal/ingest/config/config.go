// Package config holds tuning knobs for the ingestion pipeline.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config controls scheduling and run behavior for all registered sources.
type Config struct {
	// RunHourUTC is the hour of day (UTC) at which the daily run fires.
	RunHourUTC int
	// StartupDelay is how long after process start the initial run waits so
	// surrounding infrastructure can become ready.
	StartupDelay time.Duration
	// FreshnessMaxAge is the marker age under which a run is skipped.
	FreshnessMaxAge time.Duration
	// MarkerTTL is the storage TTL written with the ingestion marker.
	MarkerTTL time.Duration
	// ReconcileWorkers bounds concurrent reconciliation within one run.
	ReconcileWorkers int
	// FetchTimeout bounds a single feed download.
	FetchTimeout time.Duration
}

// DefaultConfig mirrors the production schedule: daily at 02:00 UTC, initial
// run 30s after start, 24h freshness gate.
func DefaultConfig() *Config {
	return &Config{
		RunHourUTC:       2,
		StartupDelay:     30 * time.Second,
		FreshnessMaxAge:  24 * time.Hour,
		MarkerTTL:        24 * time.Hour,
		ReconcileWorkers: 4,
		FetchTimeout:     2 * time.Minute,
	}
}

// FromEnv overlays environment overrides onto DefaultConfig.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if v, ok := envInt("INGEST_RUN_HOUR_UTC"); ok && v >= 0 && v <= 23 {
		cfg.RunHourUTC = v
	}
	if v, ok := envDuration("INGEST_STARTUP_DELAY"); ok {
		cfg.StartupDelay = v
	}
	if v, ok := envDuration("INGEST_FRESHNESS_MAX_AGE"); ok {
		cfg.FreshnessMaxAge = v
	}
	if v, ok := envDuration("INGEST_MARKER_TTL"); ok {
		cfg.MarkerTTL = v
	}
	if v, ok := envInt("INGEST_RECONCILE_WORKERS"); ok && v > 0 {
		cfg.ReconcileWorkers = v
	}
	if v, ok := envDuration("INGEST_FETCH_TIMEOUT"); ok {
		cfg.FetchTimeout = v
	}
	return cfg
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDuration(name string) (time.Duration, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
