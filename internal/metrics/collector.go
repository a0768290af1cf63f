// internal/metrics/collector.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alexconrey/webmux/internal/connection"
	"github.com/alexconrey/webmux/internal/registry"
)

const namespace = "webmux"

// Source exposes the connection state the collector reads on every scrape
type Source interface {
	Stats() []connection.Stats
	Failures() []registry.Failure
}

// Collector reports per-connection counters read from the registry at scrape time
type Collector struct {
	source Source

	bytesReceived *prometheus.Desc
	bytesSent     *prometheus.Desc
	up            *prometheus.Desc
	uptime        *prometheus.Desc
	subscribers   *prometheus.Desc
	dropped       *prometheus.Desc
	logFailures   *prometheus.Desc
	openFailures  *prometheus.Desc
}

// NewCollector creates a collector over the given source
func NewCollector(source Source) *Collector {
	labels := []string{"connection"}
	return &Collector{
		source: source,
		bytesReceived: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_received_total"),
			"Bytes read from the serial port.", labels, nil),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
			"Bytes written to the serial port.", labels, nil),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connection", "up"),
			"Whether the connection is open (1) or not (0).", labels, nil),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connection", "uptime_seconds"),
			"Seconds since the connection was opened.", labels, nil),
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscribers"),
			"Current number of stream subscribers.", labels, nil),
		dropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "dropped_chunks_total"),
			"Chunks discarded because a subscriber fell behind.", labels, nil),
		logFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "traffic_log_failures_total"),
			"Traffic log lines that could not be written.", labels, nil),
		openFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "open_failures"),
			"Configured connections that failed to open at startup.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesReceived
	ch <- c.bytesSent
	ch <- c.up
	ch <- c.uptime
	ch <- c.subscribers
	ch <- c.dropped
	ch <- c.logFailures
	ch <- c.openFailures
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.Stats() {
		up := 0.0
		if s.IsConnected {
			up = 1
		}

		ch <- prometheus.MustNewConstMetric(c.bytesReceived, prometheus.CounterValue, float64(s.BytesReceived), s.Name)
		ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent), s.Name)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, s.Name)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(s.UptimeSeconds), s.Name)
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers), s.Name)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedChunks), s.Name)
		ch <- prometheus.MustNewConstMetric(c.logFailures, prometheus.CounterValue, float64(s.LogFailures), s.Name)
	}

	ch <- prometheus.MustNewConstMetric(c.openFailures, prometheus.GaugeValue, float64(len(c.source.Failures())))
}

// NewRegistry returns a Prometheus registry holding the webmux collector and
// the standard process and Go runtime collectors.
func NewRegistry(source Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
