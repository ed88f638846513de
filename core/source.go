package core

import (
	"context"
	"time"

	"github.com/surrealdb/surreal-sync/checkpoint"
)

// Scan is a restartable iterator over the rows (and, for graph sources,
// relations) of one table. Next returns io.EOF when the scan is exhausted.
type Scan interface {
	Next(ctx context.Context) (ScanItem, error)
	Close() error
}

// StreamOptions tunes an open change stream.
type StreamOptions struct {
	// BatchSize bounds how many audit rows one poll fetches.
	BatchSize int
	// PollInterval bounds each Next so an idle stream observes cancellation.
	PollInterval time.Duration
	// Deadline, when positive, terminates the stream after the elapsed
	// duration even if Until was never reached.
	Deadline time.Duration
}

// ChangeStream is a lazy, resumable sequence of changes. Next returns io.EOF
// once the stream reached its until position or its deadline expired. On
// close the adapter surfaces the last successfully emitted position through
// Position so the driver can persist it.
type ChangeStream interface {
	Next(ctx context.Context) (*Change, error)
	// Position is the checkpoint of the last emitted change, or the stream's
	// starting position when nothing was emitted yet.
	Position() checkpoint.Checkpoint
	Close() error
}

// Source is the contract every source kind implements. The drivers know only
// this interface; one concrete adapter is instantiated per run.
type Source interface {
	// CurrentPosition returns the "now" marker of the source's change
	// stream: every change committed strictly before the call is positioned
	// at or below it.
	CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error)

	// Tables enumerates user tables from source metadata, excluding the
	// engine's own audit artefacts. Used when no explicit table list is
	// configured.
	Tables(ctx context.Context) ([]string, error)

	// FullScan opens a restartable scan of one table from the beginning.
	FullScan(ctx context.Context, table string) (Scan, error)

	// OpenChanges opens the change stream from a position, optionally up to
	// an end position.
	OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts StreamOptions) (ChangeStream, error)

	Close(ctx context.Context) error
}
