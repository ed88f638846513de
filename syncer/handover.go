package syncer

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// SyncWithHandover runs the end-to-end protocol coupling full and
// incremental sync so that no change is lost or double-applied:
//
//	t1 := source.current_position()     // persisted as full_sync_start
//	full scan -> sink                   // concurrent source writes allowed
//	t2 := source.current_position()     // persisted as full_sync_end
//	incremental(from=t1, until=t2)      // shadow-window replay
//	incremental(from=t2, until=nil)     // live until cancelled
//
// Every change committed before t1 is in the scan; changes in (t1, t2] are
// replayed; changes after t2 stream live. The replay is idempotent and in
// source order, so the later of {scan output, replayed change} wins per key.
func SyncWithHandover(ctx context.Context, src core.Source, sink core.Sink, store checkpoint.Store, full FullConfig, inc IncrementalConfig) error {
	result, err := FullSync(ctx, src, sink, store, full)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"t1": result.T1.ToCLIString(),
		"t2": result.T2.ToCLIString(),
	}).Info("replaying shadow window")

	replay := inc
	replay.Deadline = 0 // The replay is bounded by t2, not by wallclock.
	if err := Incremental(ctx, src, sink, store, result.T1, result.T2, replay); err != nil {
		return err
	}

	return Incremental(ctx, src, sink, store, result.T2, nil, inc)
}
