// Package config loads the ingestion/visualization core's runtime
// configuration once at process startup, following the shape of the
// original Python Settings object (original_source/backend/app/core/config.py)
// translated to a plain env-backed Go struct.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every external-system setting the core reads once at
// startup (spec §6 "Environment").
type Config struct {
	// Object store (S3-compatible)
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	// NATS (stands in for the key-value cache/pub-sub broker, §6)
	NatsURL string

	// Postgres (stands in for the document database, §6)
	DatabaseURL string

	// JWT shared secret/algorithm for the zoom query surface (§6)
	JWTSecret    string
	JWTAlgorithm string

	// HTTP
	ZoomAddr string
	CORSOrigin string
}

// Load reads Config from the process environment, applying the same
// defaults the original Settings object used for local development.
func Load() (*Config, error) {
	c := &Config{
		S3Endpoint:   getenv("S3_ENDPOINT", "127.0.0.1:9000"),
		S3Region:     getenv("S3_REGION", "us-east-1"),
		S3AccessKey:  getenv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:  getenv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:     getenv("S3_BUCKET", "flightdv"),
		NatsURL:      getenv("NATS_URL", "nats://127.0.0.1:4222"),
		DatabaseURL:  getenv("DATABASE_URL", "postgres://127.0.0.1:5432/flightdv"),
		JWTSecret:    getenv("JWT_SECRET", "change-me"),
		JWTAlgorithm: getenv("JWT_ALGORITHM", "HS256"),
		ZoomAddr:     getenv("ZOOM_ADDR", ":8090"),
		CORSOrigin:   getenv("CORS_ORIGIN", "*"),
	}
	useSSL, err := strconv.ParseBool(getenv("S3_USE_SSL", "false"))
	if err != nil {
		return nil, fmt.Errorf("config: S3_USE_SSL: %w", err)
	}
	c.S3UseSSL = useSSL
	return c, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
