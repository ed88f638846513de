package syncer

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// DefaultCommitInterval is the number of applied changes between checkpoint
// commits when none is configured.
const DefaultCommitInterval = 100

// IncrementalConfig configures an incremental sync run.
type IncrementalConfig struct {
	// CommitInterval is the number of successfully-applied changes between
	// checkpoint commits.
	CommitInterval int
	// BatchSize bounds how many audit rows one stream poll fetches.
	BatchSize int
	// PollInterval bounds each stream read so the driver observes
	// cancellation while idle.
	PollInterval time.Duration
	// Deadline, when positive, bounds the whole run. Used for live mode.
	Deadline time.Duration
	// DryRun applies codecs but skips sink writes and checkpoint commits.
	DryRun bool
	// EmitCheckpoints controls whether progress checkpoints are persisted.
	EmitCheckpoints bool
}

// Incremental consumes the change stream from `from`, applying each change
// idempotently and committing progress every CommitInterval applies. When
// `until` is set the stream terminates at that position (shadow-window
// replay); otherwise it runs live until the deadline or cancellation.
//
// A type conversion failure is fatal: the change is not applied and the
// position is not advanced past it, so a restart from the last committed
// checkpoint re-delivers it.
func Incremental(ctx context.Context, src core.Source, sink core.Sink, store checkpoint.Store, from, until checkpoint.Checkpoint, cfg IncrementalConfig) error {
	if from == nil {
		return &core.ConfigError{Msg: "incremental sync requires a starting checkpoint"}
	}
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	dbType := from.DatabaseType()
	stream, err := src.OpenChanges(ctx, from, until, core.StreamOptions{
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		Deadline:     cfg.Deadline,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	commitInterval := cfg.CommitInterval
	if commitInterval <= 0 {
		commitInterval = DefaultCommitInterval
	}

	logger := log.WithFields(log.Fields{
		"source": dbType,
		"from":   from.ToCLIString(),
	})
	if until != nil {
		logger = logger.WithField("until", until.ToCLIString())
	}
	logger.Info("incremental sync started")

	var applied int64
	var sinceCommit int

	commit := func() error {
		pos := stream.Position()
		if pos == nil || cfg.DryRun || !cfg.EmitCheckpoints || store == nil {
			return nil
		}
		if err := saveCheckpoint(ctx, store, pos, checkpoint.PhaseIncremental); err != nil {
			return err
		}
		logger.WithField("position", pos.ToCLIString()).Debug("committed checkpoint")
		return nil
	}

	for {
		change, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			if isCancellation(err) {
				// Clean shutdown: what was applied is committed, the rest is
				// recovered by idempotent replay on restart.
				if cerr := commit(); cerr != nil {
					return cerr
				}
				logger.WithField("applied", applied).Info("incremental sync cancelled")
				return err
			}
			return err
		}

		if !cfg.DryRun {
			if err := retryTransient(ctx, "apply change", func() error {
				return sink.ApplyChange(ctx, change)
			}); err != nil {
				return err
			}
		}
		changesApplied.WithLabelValues(dbType, change.Op.String()).Inc()
		applied++
		sinceCommit++

		if sinceCommit >= commitInterval {
			if err := commit(); err != nil {
				return err
			}
			sinceCommit = 0
		}
	}

	if err := commit(); err != nil {
		return err
	}
	logger.WithField("applied", applied).Info("incremental sync complete")
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
