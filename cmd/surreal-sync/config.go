package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
	"github.com/surrealdb/surreal-sync/surreal"
	"github.com/surrealdb/surreal-sync/syncer"
)

// TargetConfig is the option group shared by every subcommand: where writes
// go and which wire dialect to speak.
type TargetConfig struct {
	Endpoint   string `long:"surreal-endpoint" env:"SURREAL_ENDPOINT" default:"http://localhost:8000" description:"SurrealDB endpoint"`
	Username   string `long:"surreal-username" env:"SURREAL_USERNAME" default:"root" description:"SurrealDB root username"`
	Password   string `long:"surreal-password" env:"SURREAL_PASSWORD" default:"root" description:"SurrealDB root password"`
	Namespace  string `long:"to-namespace" required:"true" description:"Target namespace"`
	Database   string `long:"to-database" required:"true" description:"Target database"`
	SDKVersion string `long:"sdk-version" default:"auto" choice:"auto" choice:"v2" choice:"v3" description:"Target SDK major version"`
}

// SyncConfig is the option group tuning how data moves.
type SyncConfig struct {
	SchemaFile       string `long:"schema-file" description:"YAML schema declaring table types"`
	BatchSize        int    `long:"batch-size" default:"100" description:"Rows per target write"`
	DryRun           bool   `long:"dry-run" description:"Run codecs but skip target writes"`
	CheckpointDir    string `long:"checkpoint-dir" default:".surreal-sync-checkpoints" description:"Filesystem checkpoint directory"`
	CheckpointTarget bool   `long:"checkpoint-in-target" description:"Store checkpoints in the target database instead of the filesystem"`
}

// IncrementalFlags is the option group of incremental subcommands.
type IncrementalFlags struct {
	FromCheckpoint  string `long:"from-checkpoint" description:"Starting position (CLI checkpoint string)"`
	UntilCheckpoint string `long:"until-checkpoint" description:"Stop position for shadow-window replay"`
	Timeout         string `long:"timeout" description:"Overall deadline, digits with optional s/m/h suffix"`
}

var durationRe = regexp.MustCompile(`^(\d+)([smh]?)$`)

// parseTimeout parses the \d+(s|m|h)? duration grammar; bare digits are
// seconds.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	m := durationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, &core.ConfigError{Msg: fmt.Sprintf("unparseable duration %q", s)}
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &core.ConfigError{Msg: fmt.Sprintf("unparseable duration %q", s), Err: err}
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * time.Second, nil
	}
}

func (c *SyncConfig) loadSchema() (*core.Schema, error) {
	if c.SchemaFile == "" {
		return nil, nil
	}
	return core.LoadSchema(c.SchemaFile)
}

// connectTarget resolves the SDK version, connects, and builds the matching
// sink and checkpoint store.
func connectTarget(ctx context.Context, target TargetConfig, sync SyncConfig) (*surreal.Client, core.Sink, checkpoint.Store, error) {
	explicit, err := surreal.ParseSDKVersion(target.SDKVersion)
	if err != nil {
		return nil, nil, nil, err
	}
	version, err := surreal.Resolve(ctx, target.Endpoint, explicit)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := surreal.Connect(ctx, surreal.Config{
		Endpoint:  target.Endpoint,
		Username:  target.Username,
		Password:  target.Password,
		Namespace: target.Namespace,
		Database:  target.Database,
		Version:   version,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	var store checkpoint.Store
	if sync.CheckpointTarget {
		store = surreal.NewCheckpointStore(client, "")
	} else {
		store = checkpoint.NewFilesystemStore(sync.CheckpointDir)
	}
	return client, surreal.NewSink(client), store, nil
}

// parseIncrementalBounds parses the from/until CLI checkpoint strings before
// any connection is opened, so corrupt strings fail as user errors.
func parseIncrementalBounds(databaseType string, inc IncrementalFlags) (from, until checkpoint.Checkpoint, deadline time.Duration, err error) {
	if inc.FromCheckpoint != "" {
		from, err = checkpoint.FromCLIString(databaseType, inc.FromCheckpoint)
		if err != nil {
			return nil, nil, 0, &core.ConfigError{Msg: "invalid --from-checkpoint", Err: err}
		}
	}
	if inc.UntilCheckpoint != "" {
		until, err = checkpoint.FromCLIString(databaseType, inc.UntilCheckpoint)
		if err != nil {
			return nil, nil, 0, &core.ConfigError{Msg: "invalid --until-checkpoint", Err: err}
		}
	}
	deadline, err = parseTimeout(inc.Timeout)
	if err != nil {
		return nil, nil, 0, err
	}
	return from, until, deadline, nil
}

// resumeFrom falls back to the stored incremental checkpoint, then the full
// sync start, when no explicit --from-checkpoint was given.
func resumeFrom(ctx context.Context, store checkpoint.Store, databaseType string) (checkpoint.Checkpoint, error) {
	for _, phase := range []string{checkpoint.PhaseIncremental, checkpoint.PhaseFullSyncStart} {
		stored, err := store.Read(ctx, checkpoint.ID{DatabaseType: databaseType, Phase: phase})
		if err != nil {
			return nil, &core.CheckpointError{Msg: "reading stored checkpoint", Err: err}
		}
		if stored != nil {
			return stored.Checkpoint()
		}
	}
	return nil, &core.ConfigError{Msg: "no --from-checkpoint given and no stored checkpoint found"}
}

func incrementalConfig(sync SyncConfig, deadline time.Duration) syncer.IncrementalConfig {
	return syncer.IncrementalConfig{
		CommitInterval:  sync.BatchSize,
		BatchSize:       sync.BatchSize,
		Deadline:        deadline,
		DryRun:          sync.DryRun,
		EmitCheckpoints: true,
	}
}

func fullConfig(sync SyncConfig, tables []string) syncer.FullConfig {
	return syncer.FullConfig{
		Tables:          tables,
		BatchSize:       sync.BatchSize,
		DryRun:          sync.DryRun,
		EmitCheckpoints: true,
	}
}

// exitCode maps the error taxonomy to the documented process exit codes.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		configErr     *core.ConfigError
		sourceErr     *core.SourceError
		sinkErr       *core.SinkError
		typeErr       *core.TypeConversionError
		checkpointErr *core.CheckpointError
		unsupported   *core.UnsupportedError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 5
	case errors.As(err, &configErr):
		return 1
	case errors.As(err, &typeErr):
		return 4
	case errors.As(err, &sinkErr):
		return 3
	case errors.As(err, &checkpointErr):
		return 3
	case errors.As(err, &sourceErr), errors.As(err, &unsupported):
		return 2
	}
	return 1
}
