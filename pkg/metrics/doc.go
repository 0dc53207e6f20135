/*
Package metrics provides Prometheus metrics and a lightweight health
checker for the storage engine.

engine.go registers the storage-specific gauges, counters, and
histograms (commit latency, WAL durability cost, conflict rates, vector
heap sizes) that internal/txn, internal/wal, and internal/recovery
update as they run. health.go tracks a small set of named components
("wal", "store", and whatever else a caller registers) and exposes
/health, /ready, and /live-style handlers a host process can mount.

# Usage

	metrics.RegisterComponent("wal", true, "")
	metrics.RegisterComponent("store", true, "")

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())

Timer wraps a single operation's latency:

	t := metrics.NewTimer()
	// ... do work ...
	t.ObserveDuration(metrics.CommitLatency)

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
