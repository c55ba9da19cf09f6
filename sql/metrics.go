package sql

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for coordinator sweeps and proxied statements.
type metrics struct {
	// Sweep latency histogram
	sweepDuration metric.Float64Histogram

	// Per-instance failures during a sweep
	sweepFailures metric.Int64Counter

	// Statement latency histogram for proxied statements
	queryDuration metric.Float64Histogram

	// Live instance gauges (set after registerInstanceMetrics)
	sharedConnections metric.Int64ObservableGauge
	proxyConnections  metric.Int64ObservableGauge
	forced            metric.Int64ObservableGauge
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.sweepDuration, err = meter.Float64Histogram(
		"dbcleaner.sweep.duration",
		metric.WithDescription("Duration of forced transaction sweeps in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.sweepFailures, err = meter.Int64Counter(
		"dbcleaner.sweep.failures",
		metric.WithDescription("Number of instances that failed during a sweep"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	m.queryDuration, err = meter.Float64Histogram(
		"db.client.operation.duration",
		metric.WithDescription("Duration of database client operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// registerInstanceMetrics registers gauges observing the coordinator's
// registries. These metrics are collected lazily when scraped.
func (m *metrics) registerInstanceMetrics(meter metric.Meter, c *Coordinator) error {
	if m == nil {
		return nil
	}

	var err error

	m.sharedConnections, err = meter.Int64ObservableGauge(
		"dbcleaner.connections.shared",
		metric.WithDescription("Number of live shared connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}

	m.proxyConnections, err = meter.Int64ObservableGauge(
		"dbcleaner.connections.proxy",
		metric.WithDescription("Number of live proxy connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}

	m.forced, err = meter.Int64ObservableGauge(
		"dbcleaner.forced",
		metric.WithDescription("1 while a forced transaction is open"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := c.Stats()

			o.ObserveInt64(m.sharedConnections, int64(stats.SharedConnections))
			o.ObserveInt64(m.proxyConnections, int64(stats.ProxyConnections))

			var active int64
			if stats.Active {
				active = 1
			}
			o.ObserveInt64(m.forced, active)

			return nil
		},
		m.sharedConnections,
		m.proxyConnections,
		m.forced,
	)

	return err
}

// recordSweep records the duration and failure count of one sweep.
func (m *metrics) recordSweep(
	ctx context.Context,
	duration time.Duration,
	operation string,
	failures int,
	err error,
) {
	if m == nil || m.sweepDuration == nil {
		return
	}

	status := "ok"
	if err != nil || failures > 0 {
		status = "error"
	}

	attrs := metric.WithAttributes(
		attribute.String("dbcleaner.operation", operation),
		attribute.String("status", status),
	)
	m.sweepDuration.Record(ctx, duration.Seconds(), attrs)

	if failures > 0 && m.sweepFailures != nil {
		m.sweepFailures.Add(ctx, int64(failures),
			metric.WithAttributes(attribute.String("dbcleaner.operation", operation)))
	}
}

// recordQueryDuration records the duration of a proxied statement.
func (m *metrics) recordQueryDuration(
	ctx context.Context,
	duration time.Duration,
	operation string,
	attrs []attribute.KeyValue,
	err error,
) {
	if m == nil || m.queryDuration == nil {
		return
	}

	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, attrs...)

	if operation != "" {
		allAttrs = append(allAttrs, attribute.String("db.operation", operation))
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	allAttrs = append(allAttrs, attribute.String("status", status))

	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(allAttrs...))
}
