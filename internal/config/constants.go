package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Timeout for the two outbound calls during the callback phase
// (token exchange and profile fetch). Platform APIs can hang; the
// inbound request must fail fast instead.
const PlatformHTTPTimeout = 10 * time.Second

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Rate limit for the browser-facing handshake endpoints, per IP per minute
const HandshakeRateLimitPerMin = 30
