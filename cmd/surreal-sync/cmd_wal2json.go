package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/postgres"
	"github.com/surrealdb/surreal-sync/syncer"
)

type walSourceFlags struct {
	ConnectionString string   `long:"connection-string" required:"true" description:"libpq-compatible connection string"`
	SlotName         string   `long:"slot-name" default:"surreal_sync" description:"Logical replication slot name"`
	Tables           []string `long:"table" description:"Table to sync; repeatable, defaults to all user tables"`
}

func (f *walSourceFlags) open(ctx context.Context, c *SyncConfig) (*postgres.LogicalSource, error) {
	schema, err := c.loadSchema()
	if err != nil {
		return nil, err
	}
	return postgres.OpenLogical(ctx, postgres.LogicalConfig{
		ConnString: f.ConnectionString,
		SlotName:   f.SlotName,
		Tables:     f.Tables,
		Schema:     schema,
	})
}

type cmdWalFull struct {
	Target TargetConfig   `group:"Target"`
	Sync   SyncConfig     `group:"Sync"`
	Source walSourceFlags `group:"Source"`
}

func (c *cmdWalFull) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		src, err := c.Source.open(ctx, &c.Sync)
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		_, err = syncer.FullSync(ctx, src, sink, store, fullConfig(c.Sync, c.Source.Tables))
		return err
	})
}

type cmdWalIncremental struct {
	Target      TargetConfig     `group:"Target"`
	Sync        SyncConfig       `group:"Sync"`
	Source      walSourceFlags   `group:"Source"`
	Incremental IncrementalFlags `group:"Incremental"`
}

func (c *cmdWalIncremental) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		from, until, deadline, err := parseIncrementalBounds(checkpoint.TypePostgresWal2json, c.Incremental)
		if err != nil {
			return err
		}
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		if from == nil {
			if from, err = resumeFrom(ctx, store, checkpoint.TypePostgresWal2json); err != nil {
				return err
			}
		}

		src, err := c.Source.open(ctx, &c.Sync)
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		return syncer.Incremental(ctx, src, sink, store, from, until, incrementalConfig(c.Sync, deadline))
	})
}
