package sql

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	// This identifies the library in traces and metrics.
	scope = "github.com/kroma-labs/dbcleaner-go/sql"
)

// config holds the configuration shared by a Driver and its Coordinator.
type config struct {
	// TracerProvider is the tracer provider to use.
	// If not set, uses the global provider via otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If not set, uses the global provider via otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// Tracer is the tracer instance created from TracerProvider.
	Tracer trace.Tracer

	// Meter is the meter instance created from MeterProvider.
	Meter metric.Meter

	// Metrics holds the metric instruments.
	Metrics *metrics

	// Logger receives sweep failures and connection lifecycle events.
	// Defaults to a disabled logger.
	Logger zerolog.Logger

	// Coordinator drives the forced transaction. A Driver without one
	// gets a private Coordinator built from the same options.
	Coordinator *Coordinator

	// Providers are tried in order when resolving an address.
	Providers []Provider

	// InstanceName is added as the "db.instance" attribute on all spans.
	InstanceName string

	// QuerySanitizer sanitizes SQL queries before adding to spans.
	// If nil, queries are included as-is.
	QuerySanitizer func(query string) string

	// DisableQuery disables recording of SQL queries in spans.
	DisableQuery bool
}

// newConfig creates a new config with defaults and applies options.
func newConfig(opts ...Option) *config {
	cfg := &config{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Logger:         zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Initialize metrics (ignore errors, will just be nil if fails)
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// Option configures a Driver or a Coordinator.
type Option func(*config)

// WithTracerProvider sets a custom tracer provider.
// If not called, the global provider from otel.GetTracerProvider() is used.
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(...)
//	drv := cleanersql.NewDriver(cleanersql.WithTracerProvider(tp))
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) {
		cfg.MeterProvider = mp
	}
}

// WithLogger sets the logger used for sweep failures and lifecycle events.
//
// Example:
//
//	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	drv := cleanersql.NewDriver(cleanersql.WithLogger(logger))
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.Logger = l
	}
}

// WithCoordinator attaches a Driver to an existing Coordinator.
// Several drivers attached to the same Coordinator are started,
// committed and rolled back together.
func WithCoordinator(c *Coordinator) Option {
	return func(cfg *config) {
		cfg.Coordinator = c
	}
}

// WithProvider registers a provider that real connections are opened with.
// Providers are tried in the order they were added.
//
// Example:
//
//	drv := cleanersql.NewDriver(
//	    cleanersql.WithProvider(cleanersql.NewDriverProvider("pgx", stdlib.GetDefaultDriver())),
//	)
//	db := drv.OpenDB("dbcleaner:pgx:postgres://localhost/app_test", nil)
func WithProvider(p Provider) Option {
	return func(cfg *config) {
		cfg.Providers = append(cfg.Providers, p)
	}
}

// WithInstanceName sets an identifier added as the "db.instance" attribute
// on all statement spans.
func WithInstanceName(name string) Option {
	return func(cfg *config) {
		cfg.InstanceName = name
	}
}

// WithQuerySanitizer sets a custom query sanitizer function applied before
// queries are recorded on spans. See DefaultQuerySanitizer.
func WithQuerySanitizer(fn func(string) string) Option {
	return func(cfg *config) {
		cfg.QuerySanitizer = fn
	}
}

// WithDisableQuery disables recording of SQL queries in spans entirely.
// "db.operation" (SELECT, INSERT, etc.) is still recorded.
func WithDisableQuery() Option {
	return func(cfg *config) {
		cfg.DisableQuery = true
	}
}
