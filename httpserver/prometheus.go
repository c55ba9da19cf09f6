package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// CoordinatorCollector exposes a coordinator's state to Prometheus.
type CoordinatorCollector struct {
	coord *cleanersql.Coordinator

	forced  *prometheus.Desc
	active  *prometheus.Desc
	shared  *prometheus.Desc
	proxies *prometheus.Desc
}

var _ prometheus.Collector = (*CoordinatorCollector)(nil)

// NewCoordinatorCollector creates a collector reading coord on every scrape.
// constLabels are attached to every series.
func NewCoordinatorCollector(coord *cleanersql.Coordinator, constLabels prometheus.Labels) *CoordinatorCollector {
	return &CoordinatorCollector{
		coord: coord,
		forced: prometheus.NewDesc(
			"dbcleaner_forced",
			"1 once a forced transaction has been started; new connections are born routed to their shared connection.",
			nil, constLabels,
		),
		active: prometheus.NewDesc(
			"dbcleaner_active",
			"1 between a successful start and the next commit or rollback.",
			nil, constLabels,
		),
		shared: prometheus.NewDesc(
			"dbcleaner_shared_connections",
			"Number of registered shared connections.",
			nil, constLabels,
		),
		proxies: prometheus.NewDesc(
			"dbcleaner_proxy_connections",
			"Number of open proxy connections.",
			nil, constLabels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *CoordinatorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.forced
	ch <- c.active
	ch <- c.shared
	ch <- c.proxies
}

// Collect implements prometheus.Collector.
func (c *CoordinatorCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.coord.Stats()
	ch <- prometheus.MustNewConstMetric(c.forced, prometheus.GaugeValue, boolToFloat(stats.Forced))
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, boolToFloat(stats.Active))
	ch <- prometheus.MustNewConstMetric(c.shared, prometheus.GaugeValue, float64(stats.SharedConnections))
	ch <- prometheus.MustNewConstMetric(c.proxies, prometheus.GaugeValue, float64(stats.ProxyConnections))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PrometheusHandler serves the /metrics endpoint for coord from a dedicated
// registry holding the coordinator collector and the Go runtime collectors.
func PrometheusHandler(coord *cleanersql.Coordinator, serviceName string) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCoordinatorCollector(coord, prometheus.Labels{"service": serviceName}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
