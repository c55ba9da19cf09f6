package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	scope = "github.com/kroma-labs/dbcleaner-go/httpclient"

	// DefaultBaseURL is where httpserver listens by default.
	DefaultBaseURL = "http://127.0.0.1:7070"
)

// Config holds the transport configuration of a Client.
type Config struct {
	// Timeout bounds a whole request including retries.
	// Default: 30s
	Timeout time.Duration

	// DialTimeout bounds establishing a TCP connection.
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive period.
	// Default: 30s
	KeepAlive time.Duration

	// MaxIdleConns caps idle connections across hosts.
	// Default: 10
	MaxIdleConns int

	// IdleConnTimeout closes idle connections after this long.
	// Default: 90s
	IdleConnTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers.
	// Sweeps over many connections can take a while; 0 means no limit.
	// Default: 0
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns the transport defaults. A test harness talks to a
// single admin endpoint, so pooling is kept small.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		DialTimeout:     5 * time.Second,
		KeepAlive:       30 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
}

type internalConfig struct {
	httpConfig Config

	BaseURL        string
	DefaultHeaders http.Header
	ServiceName    string

	// Transport replaces the default *http.Transport when set.
	Transport http.RoundTripper

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagators    propagation.TextMapPropagator
	Tracer         trace.Tracer
	Metrics        *metrics

	RetryConfig     RetryConfig
	RetryBackOff    backoff.BackOff
	RetryClassifier RetryClassifier

	Logger zerolog.Logger
}

func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		BaseURL:        DefaultBaseURL,
		DefaultHeaders: make(http.Header),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		RetryConfig: DefaultRetryConfig(),
		Logger:      zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	// Instruments are optional; a nil *metrics records nothing.
	cfg.Metrics, _ = newMetrics(cfg.MeterProvider.Meter(scope))

	return cfg
}

func (cfg *internalConfig) buildTransport() http.RoundTripper {
	if cfg.Transport != nil {
		return cfg.Transport
	}

	hc := cfg.httpConfig
	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		IdleConnTimeout:       hc.IdleConnTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
	}
}

func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// Option configures a Client.
type Option func(*internalConfig)

// WithConfig sets the transport configuration.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 2 * time.Minute
//	client := httpclient.New(httpclient.WithConfig(cfg))
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithBaseURL sets the admin API root, for example "http://app:7070".
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Add(key, value)
	}
}

// WithServiceName labels spans and metrics with http.client.name.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTransport replaces the underlying transport. Tracing, metrics and
// retries still wrap it.
func WithTransport(rt RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}

// WithTracerProvider sets the tracer provider. Default: otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		if tp != nil {
			cfg.TracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider. Default: otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		if mp != nil {
			cfg.MeterProvider = mp
		}
	}
}

// WithPropagators sets the propagator injecting trace context into requests.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		if p != nil {
			cfg.Propagators = p
		}
	}
}

// WithRetryConfig sets the retry behavior. Use NoRetryConfig() to disable.
func WithRetryConfig(rc RetryConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RetryConfig = rc
	}
}

// WithRetryBackOff replaces the exponential backoff derived from RetryConfig.
// MaxRetries and MaxElapsedTime still apply.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithRetryBackOff(backoff.NewConstantBackOff(100 * time.Millisecond)),
//	)
func WithRetryBackOff(b backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.RetryBackOff = b
	}
}

// WithRetryClassifier overrides DefaultClassifier.
func WithRetryClassifier(c RetryClassifier) Option {
	return func(cfg *internalConfig) {
		cfg.RetryClassifier = c
	}
}

// WithLogger sets the logger used for retry and failure events.
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = l
	}
}
