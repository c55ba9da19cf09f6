package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// Option configures a Server.
type Option func(*Config)

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithServiceName sets the service name used in logs, spans and metrics.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithVersion sets the version reported by GET /healthz.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithCoordinator sets the coordinator driven by the admin endpoints.
func WithCoordinator(coord *cleanersql.Coordinator) Option {
	return func(c *Config) {
		c.Coordinator = coord
	}
}

// WithLogger sets the lifecycle logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithHandler replaces the admin router.
func WithHandler(h http.Handler) Option {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithMiddleware appends middleware to the stack.
func WithMiddleware(ms ...Middleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, ms...)
	}
}

// WithHealthCheck adds a named check to GET /healthz.
//
// Example:
//
//	httpserver.WithHealthCheck("postgres", func(ctx context.Context) error {
//	    return db.PingContext(ctx)
//	})
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(c *Config) {
		if c.HealthChecks == nil {
			c.HealthChecks = make(map[string]HealthCheck)
		}
		c.HealthChecks[name] = check
	}
}

// WithTracing enables request tracing.
func WithTracing(cfg TracingConfig) Option {
	return func(c *Config) {
		c.TracingConfig = &cfg
	}
}

// WithMetrics enables request metrics.
func WithMetrics(cfg MetricsConfig) Option {
	return func(c *Config) {
		c.MetricsConfig = &cfg
	}
}

// WithLogging enables request logging.
func WithLogging(cfg LoggerConfig) Option {
	return func(c *Config) {
		c.LoggerConfig = &cfg
	}
}
