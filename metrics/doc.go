// Package metrics exposes replication metrics to Prometheus.
//
// Collector implements replicator.MetricsCollector:
//
//	c := metrics.NewCollector(prometheus.DefaultRegisterer)
//	r, err := replicator.New(replicator.WithMaster(addr), replicator.WithMetrics(c))
package metrics
