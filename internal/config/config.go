// Package config reads server settings from the environment.
package config

import "os"

type Config struct {
	Addr string

	// SnapshotBackend selects where live room documents are mirrored:
	// "redis", "bolt", or "" for in-memory only.
	SnapshotBackend string
	RedisURL        string
	BoltPath        string

	// DatabaseURL enables the Postgres room archive when non-empty.
	DatabaseURL string
}

func Load() Config {
	return Config{
		Addr:            getenv("CODESYNC_ADDR", ":8080"),
		SnapshotBackend: getenv("CODESYNC_SNAPSHOT_BACKEND", ""),
		RedisURL:        getenv("REDIS_URL", "redis://localhost:6379/0"),
		BoltPath:        getenv("CODESYNC_BOLT_PATH", "./data/snapshots.db"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
