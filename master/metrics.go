package master

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	LiveServers         prometheus.Gauge
	MembershipChanges   *prometheus.CounterVec
	FilesInitialized    prometheus.Counter
	FilesDeleted        prometheus.Counter
	ReplicasPruned      prometheus.Counter
	ReplicasAdded       prometheus.Counter
	UnrecoverableChunks prometheus.Gauge
	RepairCycleDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LiveServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dfs",
			Subsystem: "master",
			Name:      "live_chunk_servers",
			Help:      "Chunk servers currently in the rotation queue.",
		}),
		MembershipChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dfs",
			Subsystem: "master",
			Name:      "membership_changes_total",
			Help:      "Chunk servers entering or leaving membership.",
		}, []string{"status"}),
		FilesInitialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dfs",
			Subsystem: "master",
			Name:      "files_initialized_total",
			Help:      "Files created through init.",
		}),
		FilesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dfs",
			Subsystem: "master",
			Name:      "files_deleted_total",
			Help:      "File records removed.",
		}),
		ReplicasPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dfs",
			Subsystem: "replication",
			Name:      "replicas_pruned_total",
			Help:      "Placement entries removed after a failed existence probe.",
		}),
		ReplicasAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dfs",
			Subsystem: "replication",
			Name:      "replicas_added_total",
			Help:      "Chunk copies pushed to restore the replication factor.",
		}),
		UnrecoverableChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dfs",
			Subsystem: "replication",
			Name:      "unrecoverable_chunks",
			Help:      "Chunks with no valid replica in the last repair cycle.",
		}),
		RepairCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dfs",
			Subsystem: "replication",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full repair scan.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.LiveServers,
		m.MembershipChanges,
		m.FilesInitialized,
		m.FilesDeleted,
		m.ReplicasPruned,
		m.ReplicasAdded,
		m.UnrecoverableChunks,
		m.RepairCycleDuration,
	)
	return m
}
