package metrics

import "github.com/prometheus/client_golang/prometheus"

// Storage-engine metrics: commit latency, WAL durability cost, conflict
// rates, and the counters recovery needs to reason about engine health.
// Registered with the default Prometheus registry in init below, which
// Handler in metrics.go serves.
var (
	CommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratadb_commit_duration_seconds",
			Help:    "Time taken to validate, log, and install a committed transaction.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadb_commits_total",
			Help: "Total number of transaction commit attempts by outcome.",
		},
		[]string{"outcome"}, // committed, aborted
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadb_conflicts_total",
			Help: "Total number of aborted commits by conflict kind.",
		},
		[]string{"kind"}, // write_conflict, version_conflict, json_path_conflict, json_stale_read
	)

	WALFsyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratadb_wal_fsync_duration_seconds",
			Help:    "Time taken by a WAL flush+fsync cycle.",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratadb_wal_appends_total",
			Help: "Total number of WAL records appended by record tag.",
		},
		[]string{"tag"},
	)

	GlobalVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratadb_global_version",
			Help: "Current value of the global commit version counter.",
		},
	)

	VectorHeapSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratadb_vector_heap_size",
			Help: "Number of live vectors per collection.",
		},
		[]string{"collection_id"},
	)

	ActiveRunsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratadb_active_runs",
			Help: "Number of runs currently in the Active or Paused status.",
		},
	)

	RecoveryReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratadb_recovery_replay_duration_seconds",
			Help:    "Time taken to replay the WAL (and checkpoint) during recovery.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoveryRecordsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratadb_recovery_records_applied_total",
			Help: "Total number of WAL records applied by the last recovery run.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommitLatency,
		CommitsTotal,
		ConflictsTotal,
		WALFsyncDuration,
		WALAppendsTotal,
		GlobalVersion,
		VectorHeapSize,
		ActiveRunsGauge,
		RecoveryReplayDuration,
		RecoveryRecordsApplied,
	)
}
