package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surreal_sync_rows_written_total",
		Help: "Rows upserted into the target during full sync.",
	}, []string{"source", "table"})

	relationsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surreal_sync_relations_written_total",
		Help: "Graph relations upserted into the target during full sync.",
	}, []string{"source", "relation"})

	changesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surreal_sync_changes_applied_total",
		Help: "Incremental changes applied to the target.",
	}, []string{"source", "op"})

	checkpointsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "surreal_sync_checkpoints_committed_total",
		Help: "Checkpoints committed to the checkpoint store.",
	}, []string{"source", "phase"})
)
