// Package syncer contains the two drivers and the t1/t2 handover protocol
// that couples them. The drivers know sources and sinks only through their
// interfaces; one concrete adapter and sink are instantiated per run.
package syncer

import (
	"context"
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// DefaultBatchSize is the number of rows per target write when none is
// configured.
const DefaultBatchSize = 100

// FullConfig configures a full sync run.
type FullConfig struct {
	// Tables to scan. Empty means autoconf: every user table the source
	// enumerates.
	Tables []string
	// BatchSize is the number of rows per target write.
	BatchSize int
	// DryRun short-circuits sink writes but still runs every codec, so type
	// errors surface.
	DryRun bool
	// EmitCheckpoints controls whether t1/t2 are persisted.
	EmitCheckpoints bool
}

// FullResult carries the bracketing checkpoints of a completed full sync.
// The incremental driver replays [T1, T2] to recover changes concurrent with
// the scan, then continues live from T2.
type FullResult struct {
	T1, T2    checkpoint.Checkpoint
	Rows      int64
	Relations int64
}

// FullSync copies every configured table from source to sink:
//
//	t1 := source position            (persisted as full_sync_start)
//	scan all tables, batched writes
//	t2 := source position            (persisted as full_sync_end)
//
// t1 is strictly earlier than any row the scan observed, t2 strictly later.
func FullSync(ctx context.Context, src core.Source, sink core.Sink, store checkpoint.Store, cfg FullConfig) (*FullResult, error) {
	t1, err := src.CurrentPosition(ctx)
	if err != nil {
		return nil, err
	}
	dbType := t1.DatabaseType()
	if cfg.EmitCheckpoints && store != nil {
		if err := saveCheckpoint(ctx, store, t1, checkpoint.PhaseFullSyncStart); err != nil {
			return nil, err
		}
	}
	log.WithFields(log.Fields{
		"source": dbType,
		"t1":     t1.ToCLIString(),
	}).Info("full sync started")

	tables := cfg.Tables
	if len(tables) == 0 {
		if tables, err = src.Tables(ctx); err != nil {
			return nil, err
		}
		log.WithField("tables", tables).Info("discovered tables from source metadata")
	}

	result := &FullResult{T1: t1}
	for _, table := range tables {
		if err := scanTable(ctx, src, sink, table, dbType, cfg, result); err != nil {
			return nil, err
		}
	}

	t2, err := src.CurrentPosition(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.EmitCheckpoints && store != nil {
		if err := saveCheckpoint(ctx, store, t2, checkpoint.PhaseFullSyncEnd); err != nil {
			return nil, err
		}
	}
	result.T2 = t2

	log.WithFields(log.Fields{
		"source":    dbType,
		"t2":        t2.ToCLIString(),
		"rows":      result.Rows,
		"relations": result.Relations,
	}).Info("full sync complete")
	return result, nil
}

func scanTable(ctx context.Context, src core.Source, sink core.Sink, table, dbType string, cfg FullConfig, result *FullResult) error {
	scan, err := src.FullScan(ctx, table)
	if err != nil {
		return err
	}
	defer scan.Close()

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var rows []core.Row
	var relations []core.Relation

	flush := func() error {
		if len(rows) > 0 {
			if !cfg.DryRun {
				batch := rows
				if err := retryTransient(ctx, "write rows", func() error {
					return sink.WriteRows(ctx, batch)
				}); err != nil {
					return err
				}
			}
			rowsWritten.WithLabelValues(dbType, table).Add(float64(len(rows)))
			result.Rows += int64(len(rows))
			rows = rows[:0]
		}
		if len(relations) > 0 {
			if !cfg.DryRun {
				batch := relations
				if err := retryTransient(ctx, "write relations", func() error {
					return sink.WriteRelations(ctx, batch)
				}); err != nil {
					return err
				}
			}
			relationsWritten.WithLabelValues(dbType, table).Add(float64(len(relations)))
			result.Relations += int64(len(relations))
			relations = relations[:0]
		}
		return nil
	}

	for {
		item, err := scan.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}
		if item.Row != nil {
			rows = append(rows, *item.Row)
		}
		if item.Relation != nil {
			relations = append(relations, *item.Relation)
		}
		if len(rows) >= batchSize || len(relations) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func saveCheckpoint(ctx context.Context, store checkpoint.Store, cp checkpoint.Checkpoint, phase string) error {
	data, err := checkpoint.Marshal(cp)
	if err != nil {
		return &core.CheckpointError{Msg: "serialising checkpoint", Err: err}
	}
	id := checkpoint.ID{DatabaseType: cp.DatabaseType(), Phase: phase}
	err = retryTransient(ctx, "store checkpoint", func() error {
		if err := store.Store(ctx, id, data); err != nil {
			return &core.SinkError{Op: "store checkpoint", Err: err}
		}
		return nil
	})
	if err != nil {
		return &core.CheckpointError{Msg: "storing " + phase, Err: err}
	}
	checkpointsCommitted.WithLabelValues(cp.DatabaseType(), phase).Inc()
	return nil
}
