package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dirsync",
		Subsystem: "run",
		Name:      "total",
		Help:      "Total number of sync runs broken down by terminal status.",
	}, []string{"status"})

	syncRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dirsync",
		Subsystem: "rows",
		Name:      "written_total",
		Help:      "Total rows written broken down by object type and operation.",
	}, []string{"object_type", "op"})

	syncWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dirsync",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of write conflicts broken down by kind.",
	}, []string{"kind"})
)

func recordRun(status string) {
	syncRuns.WithLabelValues(status).Inc()
}

func recordRows(objectType, op string, n int) {
	if n <= 0 {
		return
	}
	syncRows.WithLabelValues(objectType, op).Add(float64(n))
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	syncWriteConflicts.WithLabelValues(kind).Inc()
}
