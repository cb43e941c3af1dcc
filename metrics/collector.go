package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "redis_replicator"

// Collector records replication metrics as Prometheus series
type Collector struct {
	syncDuration   prometheus.Histogram
	syncsTotal     prometheus.Counter
	entities       *prometheus.CounterVec
	commands       *prometheus.CounterVec
	commandLatency prometheus.Histogram
	networkBytes   prometheus.Counter
	reconnections  prometheus.Counter
	errors         *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its series with reg.
// A nil reg leaves the series unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_duration_seconds",
				Help:      "Time taken to receive and decode a snapshot",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		syncsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_total",
				Help:      "Number of snapshots received",
			},
		),
		entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entities_dispatched_total",
				Help:      "Number of snapshot entities dispatched to observers",
			},
			[]string{"kind"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_dispatched_total",
				Help:      "Number of stream operations dispatched to observers",
			},
			[]string{"command"},
		),
		commandLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_dispatch_seconds",
				Help:      "Time observers took to handle an operation",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		networkBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "read_bytes_total",
				Help:      "Number of bytes read from the source",
			},
		),
		reconnections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Number of master connections established",
			},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Number of replication failures by phase",
			},
			[]string{"type"},
		),
	}
	if reg != nil {
		reg.MustRegister(c)
	}
	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.syncDuration,
		c.syncsTotal,
		c.entities,
		c.commands,
		c.commandLatency,
		c.networkBytes,
		c.reconnections,
		c.errors,
	}
}

func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
	c.syncsTotal.Inc()
}

func (c *Collector) RecordEntity(kind string) {
	c.entities.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordCommandProcessed(cmd string, duration time.Duration) {
	c.commands.WithLabelValues(cmd).Inc()
	c.commandLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordNetworkBytes(bytes int64) {
	c.networkBytes.Add(float64(bytes))
}

func (c *Collector) RecordReconnection() {
	c.reconnections.Inc()
}

func (c *Collector) RecordError(errorType string) {
	c.errors.WithLabelValues(errorType).Inc()
}
