package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// Config holds the admin server configuration.
//
// Use DefaultConfig() and adjust it with options:
//
//	server := httpserver.New(
//	    httpserver.WithAddr("127.0.0.1:7070"),
//	    httpserver.WithCoordinator(cleanersql.DefaultCoordinator()),
//	)
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// ServiceName identifies the server in logs, spans and metrics.
	ServiceName string

	// Version is reported by the health endpoint.
	Version string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// ShutdownTimeout bounds the wait for in-flight requests on shutdown.
	ShutdownTimeout time.Duration

	// Coordinator is driven by the /transactions endpoints.
	// If nil, cleanersql.DefaultCoordinator() is used.
	Coordinator *cleanersql.Coordinator

	Logger zerolog.Logger

	// Handler replaces the admin router entirely when set.
	Handler http.Handler

	// Middleware runs inside the built-in stack, closest to the handler.
	Middleware []Middleware

	// HealthChecks are run by GET /healthz.
	HealthChecks map[string]HealthCheck

	TracingConfig *TracingConfig
	MetricsConfig *MetricsConfig
	LoggerConfig  *LoggerConfig
}

// DefaultConfig returns a configuration suitable for a test harness: a
// loopback-friendly port and short shutdown.
func DefaultConfig() Config {
	return Config{
		Addr:              ":7070",
		ServiceName:       "dbcleaner-admin",
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		Logger:            zerolog.Nop(),
	}
}
