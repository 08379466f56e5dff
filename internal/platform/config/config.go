package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	// DatabaseURL selects the PostgreSQL stores when set. Empty means the
	// in-memory stores with seeded vocabulary (dev mode).
	DatabaseURL string
	// RollupRefreshInterval drives the scheduled aggregate refresh. Zero
	// disables the scheduler.
	RollupRefreshInterval time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SHRINKTRACK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	refresh := 24 * time.Hour
	if v := os.Getenv("ROLLUP_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			refresh = d
		}
	}

	return Server{
		Addr:                  addr,
		JWTSigningKey:         jwtSigningKey,
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RollupRefreshInterval: refresh,
	}
}
