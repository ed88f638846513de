package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/mongodb"
	"github.com/surrealdb/surreal-sync/syncer"
)

type mongoSourceFlags struct {
	ConnectionString string   `long:"connection-string" required:"true" description:"mongodb:// connection URI"`
	Database         string   `long:"database" required:"true" description:"Source database name"`
	Collections      []string `long:"collection" description:"Collection to sync; repeatable, defaults to all collections"`
}

func (f *mongoSourceFlags) open(ctx context.Context, c *SyncConfig) (*mongodb.Source, error) {
	schema, err := c.loadSchema()
	if err != nil {
		return nil, err
	}
	return mongodb.Open(ctx, mongodb.Config{
		URI:         f.ConnectionString,
		Database:    f.Database,
		Collections: f.Collections,
		Schema:      schema,
	})
}

type cmdMongoFull struct {
	Target TargetConfig     `group:"Target"`
	Sync   SyncConfig       `group:"Sync"`
	Source mongoSourceFlags `group:"Source"`
}

func (c *cmdMongoFull) Execute(_ []string) error {
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

		_, err = syncer.FullSync(ctx, src, sink, store, fullConfig(c.Sync, c.Source.Collections))
		return err
	})
}

type cmdMongoIncremental struct {
	Target      TargetConfig     `group:"Target"`
	Sync        SyncConfig       `group:"Sync"`
	Source      mongoSourceFlags `group:"Source"`
	Incremental IncrementalFlags `group:"Incremental"`
}

func (c *cmdMongoIncremental) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		from, until, deadline, err := parseIncrementalBounds(checkpoint.TypeMongo, c.Incremental)
		if err != nil {
			return err
		}
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		if from == nil {
			if from, err = resumeFrom(ctx, store, checkpoint.TypeMongo); err != nil {
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
