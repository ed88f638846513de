package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/neo4j"
	"github.com/surrealdb/surreal-sync/syncer"
)

type neo4jSourceFlags struct {
	ConnectionString string   `long:"connection-string" required:"true" description:"bolt:// connection URI"`
	Username         string   `long:"username" required:"true" description:"Neo4j username"`
	Password         string   `long:"password" required:"true" description:"Neo4j password"`
	Database         string   `long:"database" description:"Neo4j database name"`
	Labels           []string `long:"label" description:"Label or relationship type to sync; repeatable"`
	UpdatedAt        string   `long:"updated-at-property" default:"updated_at" description:"Monotonic timestamp property polled for changes"`
}

func (f *neo4jSourceFlags) open(ctx context.Context, c *SyncConfig) (*neo4j.Source, error) {
	schema, err := c.loadSchema()
	if err != nil {
		return nil, err
	}
	return neo4j.Open(ctx, neo4j.Config{
		URI:               f.ConnectionString,
		Username:          f.Username,
		Password:          f.Password,
		Database:          f.Database,
		Labels:            f.Labels,
		Schema:            schema,
		UpdatedAtProperty: f.UpdatedAt,
	})
}

type cmdNeo4jFull struct {
	Target TargetConfig     `group:"Target"`
	Sync   SyncConfig       `group:"Sync"`
	Source neo4jSourceFlags `group:"Source"`
}

func (c *cmdNeo4jFull) Execute(_ []string) error {
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

		_, err = syncer.FullSync(ctx, src, sink, store, fullConfig(c.Sync, c.Source.Labels))
		return err
	})
}

type cmdNeo4jIncremental struct {
	Target      TargetConfig     `group:"Target"`
	Sync        SyncConfig       `group:"Sync"`
	Source      neo4jSourceFlags `group:"Source"`
	Incremental IncrementalFlags `group:"Incremental"`
}

func (c *cmdNeo4jIncremental) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		from, until, deadline, err := parseIncrementalBounds(checkpoint.TypeNeo4j, c.Incremental)
		if err != nil {
			return err
		}
		client, sink, store, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		if from == nil {
			if from, err = resumeFrom(ctx, store, checkpoint.TypeNeo4j); err != nil {
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
