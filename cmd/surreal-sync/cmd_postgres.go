package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/postgres"
	"github.com/surrealdb/surreal-sync/syncer"
)

type postgresSourceFlags struct {
	ConnectionString string   `long:"connection-string" required:"true" description:"libpq-compatible connection string"`
	Tables           []string `long:"table" description:"Table to sync; repeatable, defaults to all user tables"`
}

type cmdPostgresFull struct {
	Target TargetConfig        `group:"Target"`
	Sync   SyncConfig          `group:"Sync"`
	Source postgresSourceFlags `group:"Source"`
}

func (c *cmdPostgresFull) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		schema, err := c.Sync.loadSchema()
		if err != nil {
			return err
		}
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		src, err := postgres.Open(ctx, postgres.Config{
			ConnString: c.Source.ConnectionString,
			Tables:     c.Source.Tables,
			Schema:     schema,
		})
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		_, err = syncer.FullSync(ctx, src, sink, store, fullConfig(c.Sync, c.Source.Tables))
		return err
	})
}

type cmdPostgresIncremental struct {
	Target      TargetConfig        `group:"Target"`
	Sync        SyncConfig          `group:"Sync"`
	Source      postgresSourceFlags `group:"Source"`
	Incremental IncrementalFlags    `group:"Incremental"`
}

func (c *cmdPostgresIncremental) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		from, until, deadline, err := parseIncrementalBounds(checkpoint.TypePostgres, c.Incremental)
		if err != nil {
			return err
		}
		schema, err := c.Sync.loadSchema()
		if err != nil {
			return err
		}
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		if from == nil {
			if from, err = resumeFrom(ctx, store, checkpoint.TypePostgres); err != nil {
				return err
			}
		}

		src, err := postgres.Open(ctx, postgres.Config{
			ConnString: c.Source.ConnectionString,
			Tables:     c.Source.Tables,
			Schema:     schema,
		})
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		return syncer.Incremental(ctx, src, sink, store, from, until, incrementalConfig(c.Sync, deadline))
	})
}
