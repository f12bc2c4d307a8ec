// Package config resolves process configuration from the environment.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// ErrMissingDatabaseURL is returned when no connection string is configured.
// This is a fatal configuration error at startup.
var ErrMissingDatabaseURL = errors.New("config: DATABASE_URL is not set")

type Config struct {
	// DatabaseURL is the connection string for the configured backend.
	DatabaseURL string

	// StorageKind selects the storage backend ("postgres", "sqlite",
	// "sqlserver"). Defaults to postgres.
	StorageKind string

	// Addr is the API listen address. Defaults to ":8000".
	Addr string

	// MetricsBackend selects metrics emission ("datadog" or "none").
	MetricsBackend string

	// MetricsTags are extra comma-separated Datadog tags.
	MetricsTags string
}

// FromEnv loads a .env file when present, then reads the environment.
//
// Binaries may still override individual fields from flags; precedence is
// flag, then environment, then default.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StorageKind:    getenvDefault("STORAGE_KIND", "postgres"),
		Addr:           getenvDefault("ADDR", ":8000"),
		MetricsBackend: os.Getenv("METRICS_BACKEND"),
		MetricsTags:    os.Getenv("METRICS_TAGS"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
